/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package undo keeps a bounded, linear timeline of whole-deck snapshots.
package undo

import (
	"sync"

	"goslidewriter/internal/domain"
)

// DefaultMaxEntries is the timeline depth used when Config leaves it unset.
const DefaultMaxEntries = 50

// ImageLookup resolves the last known good image of a slide. Snapshots taken
// before an image arrived are filled from it on undo/redo.
type ImageLookup interface {
	Get(slideID string) (string, bool)
}

// Config controls the timeline depth.
type Config struct {
	// MaxEntries caps the number of snapshots; the oldest is dropped first.
	MaxEntries int
}

// Stats is a diagnostic view of the timeline.
type Stats struct {
	Entries int
	Pointer int
	Dropped int
}

// History is an undo/redo timeline of slide lists. Every entry holds full
// slide copies with the ephemeral generation flags cleared. It is safe for
// concurrent use.
type History struct {
	cfg   Config
	cache ImageLookup

	mu      sync.Mutex
	entries [][]domain.Slide
	ptr     int
	dropped int
}

// NewHistory returns an empty timeline. cache may be nil.
func NewHistory(cfg Config, cache ImageLookup) *History {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	return &History{cfg: cfg, cache: cache, ptr: -1}
}

// Reset starts a new timeline whose only entry is slides.
func (h *History) Reset(slides []domain.Slide) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = [][]domain.Slide{sanitize(slides)}
	h.ptr = 0
	h.dropped = 0
}

// Commit records slides as the newest entry. A commit that matches the entry
// at the pointer (ignoring flags and images) is skipped. Any redo tail is
// discarded. Reports whether an entry was pushed.
func (h *History) Commit(slides []domain.Slide) bool {
	snap := sanitize(slides)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ptr >= 0 && sameContent(h.entries[h.ptr], snap) {
		return false
	}
	h.pushLocked(snap)
	return true
}

// Push records slides as the newest entry even when only images differ from
// the entry at the pointer. Used for deck-wide image changes such as a theme.
func (h *History) Push(slides []domain.Slide) {
	snap := sanitize(slides)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pushLocked(snap)
}

func (h *History) pushLocked(snap []domain.Slide) {
	h.entries = append(h.entries[:h.ptr+1], snap)
	if over := len(h.entries) - h.cfg.MaxEntries; over > 0 {
		h.entries = append([][]domain.Slide{}, h.entries[over:]...)
		h.dropped += over
	}
	h.ptr = len(h.entries) - 1
}

// Undo moves the pointer back and returns the reconciled entry.
func (h *History) Undo() ([]domain.Slide, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ptr <= 0 {
		return nil, false
	}
	h.ptr--
	return h.reconcileLocked(h.entries[h.ptr]), true
}

// Redo moves the pointer forward and returns the reconciled entry.
func (h *History) Redo() ([]domain.Slide, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ptr < 0 || h.ptr >= len(h.entries)-1 {
		return nil, false
	}
	h.ptr++
	return h.reconcileLocked(h.entries[h.ptr]), true
}

func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ptr > 0
}

func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ptr >= 0 && h.ptr < len(h.entries)-1
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Pointer returns the index of the current entry, -1 when empty.
func (h *History) Pointer() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ptr
}

func (h *History) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{Entries: len(h.entries), Pointer: h.ptr, Dropped: h.dropped}
}

// reconcileLocked returns a copy of snap with blank images filled from the
// cache.
func (h *History) reconcileLocked(snap []domain.Slide) []domain.Slide {
	out := domain.CloneSlides(snap)
	if h.cache == nil {
		return out
	}
	for i := range out {
		if out[i].Image != "" {
			continue
		}
		if img, ok := h.cache.Get(out[i].ID); ok {
			out[i].Image = img
		}
	}
	return out
}

func sanitize(slides []domain.Slide) []domain.Slide {
	out := make([]domain.Slide, len(slides))
	for i, s := range slides {
		out[i] = s.WithoutEphemeral()
	}
	return out
}

func sameContent(a, b []domain.Slide) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].SameContent(b[i]) {
			return false
		}
	}
	return true
}
