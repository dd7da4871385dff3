/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package genai is the HTTP client for the generation backend that proposes
// outlines, single slides, background images and speaker notes.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"goslidewriter/internal/domain"
	applog "goslidewriter/internal/log"
)

// Backend endpoints.
const (
	pathOutline    = "/api/outline-stream"
	pathSlide      = "/api/single-slide"
	pathImage      = "/api/slide-image"
	pathBackground = "/api/themed-background"
	pathNotes      = "/api/enhance-notes"
)

// Defaults applied to image requests when the model config leaves them empty.
const (
	DefaultImageModel  = "gemini-2.5-flash-image"
	DefaultAspectRatio = "16:9"
)

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 4 << 10

// HTTPError is returned for non-2xx backend responses.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server %s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("server %s %s: %d %s", e.Method, e.Path, e.Status, e.Body)
}

// Options configures a Client.
type Options struct {
	BaseURL string
	// APIKey is sent as a bearer token when non-empty.
	APIKey  string
	Timeout time.Duration
	// HTTPClient overrides the default client; Timeout is then ignored.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the generation backend's JSON endpoints.
type Client struct {
	BaseURL string
	Token   string
	client  *http.Client
	log     *slog.Logger
}

// NewClient creates a new backend client. baseURL may include a trailing slash; it will be normalized.
func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	l := opts.Logger
	if l == nil {
		l = applog.WithComponent("genai")
	}
	return &Client{
		BaseURL: strings.TrimRight(opts.BaseURL, "/"),
		Token:   opts.APIKey,
		client:  hc,
		log:     l,
	}
}

func (c *Client) post(ctx context.Context, path string, in any) (*http.Response, error) {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		herr := &HTTPError{Method: http.MethodPost, Path: u.Path, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
		c.log.Warn("backend request failed", slog.String("path", u.Path), slog.Int("status", resp.StatusCode), slog.Duration("took", time.Since(start)))
		return nil, herr
	}
	c.log.Debug("backend request", slog.String("path", u.Path), slog.Int("status", resp.StatusCode), slog.Duration("took", time.Since(start)))
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, path string, in, dest any) error {
	resp, err := c.post(ctx, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

type outlineRequest struct {
	Topic       string              `json:"topic"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
}

// GenerateOutline requests a slide outline for topic. The backend streams
// the model's text; it is accumulated and parsed once complete.
func (c *Client) GenerateOutline(ctx context.Context, topic string, attachments []domain.Attachment) ([]domain.SlideDraft, error) {
	resp, err := c.post(ctx, pathOutline, outlineRequest{Topic: topic, Attachments: attachments})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var sb strings.Builder
	if _, err := io.Copy(&sb, resp.Body); err != nil {
		return nil, fmt.Errorf("read outline stream: %w", err)
	}
	return ParseOutline(sb.String())
}

type singleSlideRequest struct {
	PresentationTopic string              `json:"presentationTopic"`
	SlideDescription  string              `json:"slideDescription"`
	ExistingSlides    []domain.SlideDraft `json:"existingSlides"`
	InsertIndex       int                 `json:"insertIndex"`
}

// GenerateSingleSlide asks for one slide that fits at insertIndex among the
// existing slides.
func (c *Client) GenerateSingleSlide(ctx context.Context, topic, description string, existing []domain.SlideDraft, insertIndex int) (domain.SlideDraft, error) {
	if existing == nil {
		existing = []domain.SlideDraft{}
	}
	var raw json.RawMessage
	req := singleSlideRequest{PresentationTopic: topic, SlideDescription: description, ExistingSlides: existing, InsertIndex: insertIndex}
	if err := c.doJSON(ctx, pathSlide, req, &raw); err != nil {
		return domain.SlideDraft{}, err
	}
	return ParseSlide(raw)
}

type imageSlide struct {
	VisualDescription string `json:"visualDescription"`
	Title             string `json:"title"`
}

type imageRequest struct {
	Slide  imageSlide         `json:"slide"`
	Config domain.ModelConfig `json:"config"`
}

type themeRef struct {
	Name          string `json:"name"`
	PromptSnippet string `json:"promptSnippet"`
}

type backgroundRequest struct {
	Theme               themeRef           `json:"theme"`
	PresentationContext string             `json:"presentationContext"`
	Config              domain.ModelConfig `json:"config"`
}

type imageResponse struct {
	Data string `json:"data"`
}

// GenerateImage requests a background image for one slide. An empty or
// undecodable payload is reported as domain.ErrEmptyImage.
func (c *Client) GenerateImage(ctx context.Context, visualPrompt, title string, cfg domain.ModelConfig) (string, error) {
	var out imageResponse
	req := imageRequest{Slide: imageSlide{VisualDescription: visualPrompt, Title: title}, Config: withImageDefaults(cfg)}
	if err := c.doJSON(ctx, pathImage, req, &out); err != nil {
		return "", err
	}
	return CheckImage(out.Data)
}

// GenerateThemedBackground requests one background shared by a whole deck.
func (c *Client) GenerateThemedBackground(ctx context.Context, theme domain.Theme, presentationContext string, cfg domain.ModelConfig) (string, error) {
	var out imageResponse
	req := backgroundRequest{
		Theme:               themeRef{Name: theme.Name, PromptSnippet: theme.PromptSnippet},
		PresentationContext: presentationContext,
		Config:              withImageDefaults(cfg),
	}
	if err := c.doJSON(ctx, pathBackground, req, &out); err != nil {
		return "", err
	}
	return CheckImage(out.Data)
}

type notesRequest struct {
	Notes          string           `json:"notes"`
	Mode           domain.NotesMode `json:"mode"`
	TargetLanguage string           `json:"targetLanguage,omitempty"`
}

type notesResponse struct {
	Text string `json:"text"`
}

// EnhanceNotes rewrites speaker notes. targetLanguage is only sent for
// translation.
func (c *Client) EnhanceNotes(ctx context.Context, notes string, mode domain.NotesMode, targetLanguage string) (string, error) {
	if mode == "" {
		mode = domain.NotesEnhance
	}
	req := notesRequest{Notes: notes, Mode: mode}
	if mode == domain.NotesTranslate {
		req.TargetLanguage = targetLanguage
	}
	var out notesResponse
	if err := c.doJSON(ctx, pathNotes, req, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Text), nil
}

func withImageDefaults(cfg domain.ModelConfig) domain.ModelConfig {
	if cfg.Model == "" {
		cfg.Model = DefaultImageModel
	}
	if cfg.AspectRatio == "" {
		cfg.AspectRatio = DefaultAspectRatio
	}
	return cfg
}
