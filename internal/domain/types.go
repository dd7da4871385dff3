/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// This file defines the core data model of a slide deck. Decks serialize to
// JSON for durable storage and crash autosaves; the ephemeral generation
// flags on Slide are excluded from both.

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Layout names one of the nine text-placement templates.
type Layout string

const (
	LayoutCenter     Layout = "center"
	LayoutLeft       Layout = "left"
	LayoutRight      Layout = "right"
	LayoutTop        Layout = "top"
	LayoutBottom     Layout = "bottom"
	LayoutSplitLeft  Layout = "split-left"
	LayoutSplitRight Layout = "split-right"
	LayoutDiagonal   Layout = "diagonal"
	LayoutScattered  Layout = "scattered"
)

// Layouts lists every supported layout in a stable order.
var Layouts = []Layout{
	LayoutCenter, LayoutLeft, LayoutRight, LayoutTop, LayoutBottom,
	LayoutSplitLeft, LayoutSplitRight, LayoutDiagonal, LayoutScattered,
}

// ParseLayout normalizes s; unknown values map to LayoutCenter.
func ParseLayout(s string) Layout {
	l := Layout(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Layouts {
		if l == known {
			return l
		}
	}
	return LayoutCenter
}

// Field names a structured slide attribute a canvas object can mirror.
type Field string

const (
	FieldTitle Field = "title"
	FieldBody  Field = "body"
)

// Slide is one page of a deck.
type Slide struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Body             string `json:"body"` // points separated by '\n'
	VisualPrompt     string `json:"visualPrompt"`
	Layout           Layout `json:"layout"`
	Image            string `json:"image,omitempty"` // base64 payload
	CustomLayoutJSON string `json:"customLayoutJson,omitempty"`
	SpeakerNotes     string `json:"speakerNotes,omitempty"`

	// Ephemeral UI state, never persisted.
	IsGenerating     bool `json:"-"`
	GenerationFailed bool `json:"-"`
}

// NewSlide returns an empty slide with a fresh id.
func NewSlide() Slide {
	return Slide{ID: NewSlideID(), Layout: LayoutCenter}
}

// Points splits the body into its bullet points, dropping blank lines.
func (s Slide) Points() []string {
	var out []string
	for _, p := range strings.Split(s.Body, "\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Field returns the value of a bound structured field.
func (s Slide) Field(f Field) (string, bool) {
	switch f {
	case FieldTitle:
		return s.Title, true
	case FieldBody:
		return s.Body, true
	}
	return "", false
}

// SetField writes a bound structured field. Unknown fields are ignored.
func (s *Slide) SetField(f Field, v string) {
	switch f {
	case FieldTitle:
		s.Title = v
	case FieldBody:
		s.Body = v
	}
}

// WithoutEphemeral returns a copy with generating/failed cleared.
func (s Slide) WithoutEphemeral() Slide {
	s.IsGenerating = false
	s.GenerationFailed = false
	return s
}

// SameContent reports whether two slides are equal field-for-field, ignoring
// ephemeral flags and the image payload, which arrives out of band.
func (s Slide) SameContent(o Slide) bool {
	return s.ID == o.ID &&
		s.Title == o.Title &&
		s.Body == o.Body &&
		s.VisualPrompt == o.VisualPrompt &&
		s.Layout == o.Layout &&
		s.CustomLayoutJSON == o.CustomLayoutJSON &&
		s.SpeakerNotes == o.SpeakerNotes
}

// CloneSlides copies a slide list. Slide holds only value fields so a
// shallow element copy is a deep copy.
func CloneSlides(in []Slide) []Slide {
	if in == nil {
		return nil
	}
	out := make([]Slide, len(in))
	copy(out, in)
	return out
}

// Deck is the ordered list of slides being edited plus deck-wide metadata.
type Deck struct {
	ID              string    `json:"id"`
	Topic           string    `json:"topic"`
	Slides          []Slide   `json:"slides"`
	ThemeID         string    `json:"themeId,omitempty"`
	ThemeBackground string    `json:"themeBackground,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// NewDeck creates a deck with a fresh id around the given slides.
func NewDeck(topic string, slides []Slide) Deck {
	now := time.Now().UTC()
	return Deck{ID: NewDeckID(), Topic: topic, Slides: slides, CreatedAt: now, UpdatedAt: now}
}

// Clone returns a copy whose slide slice is not shared with d.
func (d Deck) Clone() Deck {
	d.Slides = CloneSlides(d.Slides)
	return d
}

// DeckSummary is the listing projection of a stored deck.
type DeckSummary struct {
	ID         string    `json:"id"`
	Topic      string    `json:"topic"`
	SlideCount int       `json:"slideCount"`
	ThemeID    string    `json:"themeId,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// SlideDraft is a slide proposal from the outline service.
type SlideDraft struct {
	Title             string `json:"title"`
	Content           string `json:"content"`
	VisualDescription string `json:"visualDescription"`
	Layout            string `json:"layout"`
}

// ToSlide turns a draft into a new slide with a fresh id.
func (d SlideDraft) ToSlide() Slide {
	return Slide{
		ID:           NewSlideID(),
		Title:        strings.TrimSpace(d.Title),
		Body:         strings.TrimSpace(d.Content),
		VisualPrompt: strings.TrimSpace(d.VisualDescription),
		Layout:       ParseLayout(d.Layout),
	}
}

// DraftOf is the inverse projection used to give the service context.
func DraftOf(s Slide) SlideDraft {
	return SlideDraft{Title: s.Title, Content: s.Body, VisualDescription: s.VisualPrompt, Layout: string(s.Layout)}
}

// Theme is a named visual style applied deck-wide.
type Theme struct {
	ID            string `json:"id" yaml:"id"`
	Name          string `json:"name" yaml:"name"`
	PromptSnippet string `json:"promptSnippet" yaml:"prompt_snippet"`
}

// ModelConfig parameterizes image generation requests.
type ModelConfig struct {
	Model       string `json:"model,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

// Attachment is an inline file handed to the outline service.
type Attachment struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

// NotesMode selects how speaker notes are rewritten.
type NotesMode string

const (
	NotesEnhance   NotesMode = "enhance"
	NotesShorten   NotesMode = "shorten"
	NotesExpand    NotesMode = "expand"
	NotesTranslate NotesMode = "translate"
)

// NewSlideID returns a new, never reused slide id.
func NewSlideID() string { return ulid.Make().String() }

// NewDeckID returns a new deck id.
func NewDeckID() string { return uuid.NewString() }
