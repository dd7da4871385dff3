/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goslidewriter/internal/domain"
	applog "goslidewriter/internal/log"
)

func pngBase64(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

type recorded struct {
	path string
	auth string
	body map[string]any
}

func newBackend(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.path = r.URL.Path
		rec.auth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		rec.body = map[string]any{}
		_ = json.Unmarshal(b, &rec.body)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL + "/", APIKey: "secret", Logger: applog.Discard()}), rec
}

func TestGenerateOutline_AccumulatesStreamAndStripsFences(t *testing.T) {
	c, rec := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fl := w.(http.Flusher)
		_, _ = io.WriteString(w, "```json\n[{\"title\":\"Intro\",\"content\":\"a\\nb\",")
		fl.Flush()
		_, _ = io.WriteString(w, "\"visualDescription\":\"sunrise\",\"layout\":\"left\"},{\"title\":\"End\"}]\n```")
	})
	drafts, err := c.GenerateOutline(context.Background(), "Solar", []domain.Attachment{{MimeType: "text/plain", Data: "aGk="}})
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, "Intro", drafts[0].Title)
	assert.Equal(t, "a\nb", drafts[0].Content)
	assert.Equal(t, "left", drafts[0].Layout)
	assert.Equal(t, "/api/outline-stream", rec.path)
	assert.Equal(t, "Bearer secret", rec.auth)
	assert.Equal(t, "Solar", rec.body["topic"])
	assert.Len(t, rec.body["attachments"], 1)
}

func TestGenerateOutline_RejectsInvalidOutline(t *testing.T) {
	for _, body := range []string{"not json", "[]", `[{"content":"no title"}]`, `{"title":"object not array"}`} {
		c, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, body) })
		_, err := c.GenerateOutline(context.Background(), "x", nil)
		assert.ErrorIs(t, err, ErrMalformedOutline, "body %q", body)
	}
}

func TestGenerateSingleSlide_SendsContext(t *testing.T) {
	c, rec := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"title":"New","content":"p1","visualDescription":"v","layout":"diagonal"}`)
	})
	existing := []domain.SlideDraft{{Title: "A"}, {Title: "B"}}
	d, err := c.GenerateSingleSlide(context.Background(), "Topic", "a chart", existing, 1)
	require.NoError(t, err)
	assert.Equal(t, "New", d.Title)
	assert.Equal(t, domain.LayoutDiagonal, d.ToSlide().Layout)
	assert.Equal(t, "/api/single-slide", rec.path)
	assert.Equal(t, "Topic", rec.body["presentationTopic"])
	assert.Equal(t, "a chart", rec.body["slideDescription"])
	assert.Equal(t, float64(1), rec.body["insertIndex"])
	assert.Len(t, rec.body["existingSlides"], 2)
}

func TestGenerateImage_AppliesDefaults(t *testing.T) {
	img := pngBase64(t)
	c, rec := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"data": img})
	})
	got, err := c.GenerateImage(context.Background(), "a lighthouse", "Safety", domain.ModelConfig{})
	require.NoError(t, err)
	assert.Equal(t, img, got)
	assert.Equal(t, "/api/slide-image", rec.path)
	cfg := rec.body["config"].(map[string]any)
	assert.Equal(t, DefaultImageModel, cfg["model"])
	assert.Equal(t, DefaultAspectRatio, cfg["aspectRatio"])
	_, hasSize := cfg["imageSize"]
	assert.False(t, hasSize)
	slide := rec.body["slide"].(map[string]any)
	assert.Equal(t, "a lighthouse", slide["visualDescription"])
	assert.Equal(t, "Safety", slide["title"])
}

func TestGenerateImage_EmptyOrGarbageIsEmptyImage(t *testing.T) {
	for _, data := range []string{"", "!!!not base64", base64.StdEncoding.EncodeToString([]byte("plain text"))} {
		c, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]string{"data": data})
		})
		_, err := c.GenerateImage(context.Background(), "p", "t", domain.ModelConfig{})
		assert.True(t, errors.Is(err, domain.ErrEmptyImage), "payload %q: %v", data, err)
	}
}

func TestGenerateThemedBackground_SendsTheme(t *testing.T) {
	img := pngBase64(t)
	c, rec := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"data": "data:image/png;base64," + img})
	})
	got, err := c.GenerateThemedBackground(context.Background(), domain.Theme{ID: "noir", Name: "Noir", PromptSnippet: "dark"}, "Topic", domain.ModelConfig{ImageSize: "2K"})
	require.NoError(t, err)
	assert.Equal(t, img, got)
	assert.Equal(t, "/api/themed-background", rec.path)
	theme := rec.body["theme"].(map[string]any)
	assert.Equal(t, "Noir", theme["name"])
	assert.Equal(t, "dark", theme["promptSnippet"])
	assert.Equal(t, "Topic", rec.body["presentationContext"])
	assert.Equal(t, "2K", rec.body["config"].(map[string]any)["imageSize"])
}

func TestEnhanceNotes(t *testing.T) {
	c, rec := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "  Bonjour  "})
	})
	got, err := c.EnhanceNotes(context.Background(), "Hello", domain.NotesTranslate, "French")
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", got)
	assert.Equal(t, "translate", rec.body["mode"])
	assert.Equal(t, "French", rec.body["targetLanguage"])

	_, err = c.EnhanceNotes(context.Background(), "Hello", domain.NotesShorten, "French")
	require.NoError(t, err)
	_, hasLang := rec.body["targetLanguage"]
	assert.False(t, hasLang, "language only sent for translate")
}

func TestHTTPErrorCarriesStatusAndBody(t *testing.T) {
	c, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "GEMINI_API_KEY not set", http.StatusInternalServerError)
	})
	_, err := c.GenerateImage(context.Background(), "p", "t", domain.ModelConfig{})
	var herr *HTTPError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, http.StatusInternalServerError, herr.Status)
	assert.Equal(t, "/api/slide-image", herr.Path)
	assert.Contains(t, herr.Error(), "GEMINI_API_KEY")
}

func TestRequestHonoursContextCancel(t *testing.T) {
	block := make(chan struct{})
	c, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	})
	defer close(block)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GenerateImage(ctx, "p", "t", domain.ModelConfig{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `[1]`, stripFences("```json\n[1]\n```"))
	assert.Equal(t, `[1]`, stripFences("```\n[1]```"))
	assert.Equal(t, `[1]`, stripFences("  [1] "))
}
