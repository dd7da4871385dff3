/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goslidewriter/internal/domain"
	applog "goslidewriter/internal/log"
)

var errBoom = errors.New("boom")

// fakeGen records image requests by slide title. When block is set, image
// calls wait for it to close and ignore their context, like a transport
// that does not honour cancellation.
type fakeGen struct {
	mu      sync.Mutex
	calls   []string
	prompts []string
	fail    map[string]bool
	block   chan struct{}

	themeImg   string
	themeErr   error
	themeCalls int

	draft    domain.SlideDraft
	draftErr error
	outline  []domain.SlideDraft

	notes    string
	notesErr error
}

func newFakeGen() *fakeGen { return &fakeGen{fail: map[string]bool{}, themeImg: "themed-bg"} }

func (f *fakeGen) GenerateOutline(context.Context, string, []domain.Attachment) ([]domain.SlideDraft, error) {
	return f.outline, nil
}

func (f *fakeGen) GenerateSingleSlide(context.Context, string, string, []domain.SlideDraft, int) (domain.SlideDraft, error) {
	return f.draft, f.draftErr
}

func (f *fakeGen) GenerateImage(_ context.Context, prompt, title string, _ domain.ModelConfig) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, title)
	f.prompts = append(f.prompts, prompt)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[title] {
		return "", errBoom
	}
	return "img-" + title, nil
}

func (f *fakeGen) GenerateThemedBackground(context.Context, domain.Theme, string, domain.ModelConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.themeCalls++
	return f.themeImg, f.themeErr
}

func (f *fakeGen) EnhanceNotes(_ context.Context, notes string, mode domain.NotesMode, _ string) (string, error) {
	if f.notesErr != nil {
		return "", f.notesErr
	}
	if f.notes != "" {
		return f.notes, nil
	}
	return fmt.Sprintf("%s (%s)", notes, mode), nil
}

func (f *fakeGen) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeGen) setFail(title string, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[title] = v
}

// fakeStore records durable writes and can be told to fail them.
type fakeStore struct {
	mu      sync.Mutex
	saves   []domain.Deck
	images  map[string]string
	texts   map[string]domain.Slide
	failAll bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{images: map[string]string{}, texts: map[string]domain.Slide{}}
}

func (f *fakeStore) Save(_ context.Context, d domain.Deck) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errBoom
	}
	f.saves = append(f.saves, d.Clone())
	return nil
}

func (f *fakeStore) Load(_ context.Context, id string) (domain.Deck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.saves) - 1; i >= 0; i-- {
		if f.saves[i].ID == id {
			return f.saves[i].Clone(), nil
		}
	}
	return domain.Deck{}, domain.ErrDeckNotFound
}

func (f *fakeStore) ListAll(context.Context) ([]domain.DeckSummary, error) { return nil, nil }
func (f *fakeStore) Delete(context.Context, string) error                 { return nil }

func (f *fakeStore) PatchImage(_ context.Context, _, slideID, image string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errBoom
	}
	f.images[slideID] = image
	return nil
}

func (f *fakeStore) PatchText(_ context.Context, _ string, s domain.Slide) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errBoom
	}
	f.texts[s.ID] = s
	return nil
}

func (f *fakeStore) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func (f *fakeStore) image(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images[id]
}

func (f *fakeStore) text(id string) (domain.Slide, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.texts[id]
	return s, ok
}

// testDeck builds a deck whose slide i is titled "s<i>".
func testDeck(n int) domain.Deck {
	slides := make([]domain.Slide, n)
	for i := range slides {
		slides[i] = domain.Slide{
			ID:           fmt.Sprintf("id%d", i),
			Title:        fmt.Sprintf("s%d", i),
			Body:         "point",
			VisualPrompt: fmt.Sprintf("prompt %d", i),
			Layout:       domain.LayoutCenter,
		}
	}
	d := domain.NewDeck("testing", slides)
	return d
}

type sessionOpt func(*Options)

func withStore(st Store) sessionOpt { return func(o *Options) { o.Store = st } }
func withSettle(d time.Duration) sessionOpt {
	return func(o *Options) { o.SettleDelay = d }
}
func withConcurrency(n int) sessionOpt { return func(o *Options) { o.MaxConcurrent = n } }
func withEvents(fn func(GenerationEvent)) sessionOpt {
	return func(o *Options) { o.OnGeneration = fn }
}

// newTestSession opens a session with the sweep disabled unless overridden.
func newTestSession(t *testing.T, d domain.Deck, gen Generator, opts ...sessionOpt) *Session {
	t.Helper()
	o := Options{Generator: gen, SettleDelay: -1, Logger: applog.Discard()}
	for _, fn := range opts {
		fn(&o)
	}
	s, err := New(d, o)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func requireFlagsConsistent(t *testing.T, s *Session) {
	t.Helper()
	for _, sl := range s.Slides() {
		require.False(t, sl.IsGenerating && sl.GenerationFailed, "slide %s both generating and failed", sl.ID)
	}
}

func titles(slides []domain.Slide) []string {
	out := make([]string, len(slides))
	for i, sl := range slides {
		out[i] = sl.Title
	}
	return out
}
