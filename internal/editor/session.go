/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package editor is the slide-editing core: the in-memory deck, its undo
// timeline, the image cache and the per-slide generation scheduler.
//
// All state transitions happen under one session mutex and never wait on I/O.
// Generation calls and durable writes run outside the lock; their results are
// applied when they complete.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"goslidewriter/internal/canvas"
	"goslidewriter/internal/domain"
	"goslidewriter/internal/imagecache"
	applog "goslidewriter/internal/log"
	"goslidewriter/internal/theme"
	"goslidewriter/internal/undo"
	"goslidewriter/internal/workpool"
)

// Generator is the generation service consumed by a session.
type Generator interface {
	GenerateOutline(ctx context.Context, topic string, attachments []domain.Attachment) ([]domain.SlideDraft, error)
	GenerateSingleSlide(ctx context.Context, topic, description string, existing []domain.SlideDraft, insertIndex int) (domain.SlideDraft, error)
	GenerateImage(ctx context.Context, visualPrompt, title string, cfg domain.ModelConfig) (string, error)
	GenerateThemedBackground(ctx context.Context, theme domain.Theme, presentationContext string, cfg domain.ModelConfig) (string, error)
	EnhanceNotes(ctx context.Context, notes string, mode domain.NotesMode, targetLanguage string) (string, error)
}

// Store is durable deck storage.
type Store interface {
	Save(ctx context.Context, d domain.Deck) error
	Load(ctx context.Context, id string) (domain.Deck, error)
	ListAll(ctx context.Context) ([]domain.DeckSummary, error)
	Delete(ctx context.Context, id string) error
	PatchImage(ctx context.Context, deckID, slideID, image string) error
	PatchText(ctx context.Context, deckID string, s domain.Slide) error
}

// DefaultSettleDelay is the pause after navigation before the background
// sweep requests images for distant slides.
const DefaultSettleDelay = 1500 * time.Millisecond

// writeTimeout bounds a single background durable write.
const writeTimeout = 30 * time.Second

// Options configures a Session.
type Options struct {
	Generator Generator
	// Store may be nil; the session then keeps everything in memory.
	Store Store
	// Themes defaults to the built-in catalog.
	Themes *theme.Catalog
	Models domain.ModelConfig

	MaxConcurrent     int
	RequestsPerMinute int
	// SettleDelay defaults to DefaultSettleDelay; a negative value disables
	// the background sweep.
	SettleDelay time.Duration
	HistoryMax  int

	// OnGeneration is called outside the session lock after every
	// per-slide generation request completes.
	OnGeneration func(GenerationEvent)
	Logger       *slog.Logger
}

// Session is an open deck being edited. All methods are safe for concurrent use.
type Session struct {
	gen     Generator
	store   Store
	themes  *theme.Catalog
	models  domain.ModelConfig
	history *undo.History
	cache   *imagecache.Cache
	pool    *workpool.Pool
	writer  *workpool.Pool
	log     *slog.Logger
	onGen   func(GenerationEvent)

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	deck        domain.Deck
	current     int
	dirty       map[string]bool
	gens        map[string]*genState
	nextToken   uint64
	inFlight    int
	themeBusy   bool
	settleDelay time.Duration
	settle      *time.Timer
	navSeq      uint64
	closed      bool
}

// New opens a session on deck. A deck without slides gets one blank slide.
func New(d domain.Deck, opts Options) (*Session, error) {
	if opts.Generator == nil {
		return nil, errors.New("editor: generator is required")
	}
	if opts.Themes == nil {
		opts.Themes = theme.NewCatalog()
	}
	if opts.SettleDelay == 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	l := opts.Logger
	if l == nil {
		l = applog.WithComponent("editor")
	}
	d = d.Clone()
	if d.ID == "" {
		d.ID = domain.NewDeckID()
	}
	if len(d.Slides) == 0 {
		d.Slides = []domain.Slide{domain.NewSlide()}
	}
	for i := range d.Slides {
		d.Slides[i] = d.Slides[i].WithoutEphemeral()
	}

	cache := imagecache.New()
	for _, sl := range d.Slides {
		cache.Put(sl.ID, sl.Image)
	}
	history := undo.NewHistory(undo.Config{MaxEntries: opts.HistoryMax}, cache)
	history.Reset(d.Slides)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		gen:     opts.Generator,
		store:   opts.Store,
		themes:  opts.Themes,
		models:  opts.Models,
		history: history,
		cache:   cache,
		pool: workpool.New(workpool.Options{
			MaxConcurrent:     opts.MaxConcurrent,
			RequestsPerMinute: opts.RequestsPerMinute,
			Logger:            applog.WithComponent("scheduler"),
		}),
		// One writer keeps durable writes in call order.
		writer:      workpool.New(workpool.Options{MaxConcurrent: 1, Logger: applog.WithComponent("persist")}),
		log:         applog.WithDeck(l, d.ID),
		onGen:       opts.OnGeneration,
		ctx:         ctx,
		cancel:      cancel,
		deck:        d,
		dirty:       map[string]bool{},
		gens:        map[string]*genState{},
		settleDelay: opts.SettleDelay,
	}
	return s, nil
}

// Open loads a deck from store and opens a session on it.
func Open(ctx context.Context, id string, opts Options) (*Session, error) {
	if opts.Store == nil {
		return nil, errors.New("editor: store is required to open a deck")
	}
	d, err := opts.Store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return New(d, opts)
}

// NewDeckFromTopic builds a deck from the outline proposed for topic.
func NewDeckFromTopic(ctx context.Context, gen Generator, topic string, attachments []domain.Attachment) (domain.Deck, error) {
	drafts, err := gen.GenerateOutline(ctx, topic, attachments)
	if err != nil {
		return domain.Deck{}, fmt.Errorf("generate outline: %w", err)
	}
	slides := make([]domain.Slide, 0, len(drafts))
	for _, dr := range drafts {
		slides = append(slides, dr.ToSlide())
	}
	if len(slides) == 0 {
		slides = append(slides, domain.NewSlide())
	}
	return domain.NewDeck(topic, slides), nil
}

// Deck returns a copy of the deck with current ephemeral flags.
func (s *Session) Deck() domain.Deck {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deck.Clone()
}

// Slides returns a copy of the slide list.
func (s *Session) Slides() []domain.Slide {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneSlides(s.deck.Slides)
}

// Current returns the active index and a copy of the active slide.
func (s *Session) Current() (int, domain.Slide) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.deck.Slides[s.current]
}

// Objects returns the canvas objects of slide i.
func (s *Session) Objects(i int) ([]canvas.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkIndexLocked(i); err != nil {
		return nil, err
	}
	return canvas.ObjectsForSlide(s.deck.Slides[i]), nil
}

func (s *Session) CanUndo() bool { return s.history.CanUndo() }
func (s *Session) CanRedo() bool { return s.history.CanRedo() }

// HistoryStats exposes the undo timeline for diagnostics.
func (s *Session) HistoryStats() undo.Stats { return s.history.Stats() }

// EditField changes a bound text field of slide i without committing
// history. A captured canvas layout is kept in sync.
func (s *Session) EditField(i int, f domain.Field, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkIndexLocked(i); err != nil {
		return err
	}
	if _, ok := s.deck.Slides[i].Field(f); !ok {
		return fmt.Errorf("unknown field %q", f)
	}
	sl := &s.deck.Slides[i]
	sl.SetField(f, text)
	if sl.CustomLayoutJSON != "" {
		objs := canvas.ApplyFieldEdit(canvas.ObjectsForSlide(*sl), f, text)
		if raw, err := canvas.Serialize(objs); err == nil {
			sl.CustomLayoutJSON = raw
		}
	}
	s.dirty[sl.ID] = true
	return nil
}

// SetSpeakerNotes replaces the notes of slide i without committing history.
func (s *Session) SetSpeakerNotes(i int, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkIndexLocked(i); err != nil {
		return err
	}
	s.deck.Slides[i].SpeakerNotes = notes
	s.dirty[s.deck.Slides[i].ID] = true
	return nil
}

// UpdateCanvas captures objs as the custom layout of slide i and writes
// bound texts back to the slide fields. Invalid object sets are rejected
// without mutation.
func (s *Session) UpdateCanvas(i int, objs []canvas.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkIndexLocked(i); err != nil {
		return err
	}
	next, err := canvas.Capture(s.deck.Slides[i], objs)
	if err != nil {
		return err
	}
	s.deck.Slides[i] = next
	s.dirty[next.ID] = true
	return nil
}

// MoveObject ends a drag of object id on slide i at (x, y). With snap the
// position is first aligned to the other objects and the canvas frame; the
// guides behind that alignment are returned. The drag end is a commit
// boundary.
func (s *Session) MoveObject(i int, id string, x, y float64, snap bool) ([]canvas.Guide, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkIndexLocked(i); err != nil {
		return nil, err
	}
	sl := s.deck.Slides[i]
	objs := canvas.ObjectsForSlide(sl)
	if !slices.ContainsFunc(objs, func(o canvas.Object) bool { return o.ID == id }) {
		return nil, fmt.Errorf("object %q: %w", id, domain.ErrObjectNotFound)
	}
	var guides []canvas.Guide
	if snap {
		x, y, guides = canvas.Snap(objs, id, x, y, canvas.DefaultSnapOptions())
	}
	next, err := canvas.Capture(sl, canvas.CommitGeometryChange(objs, id, canvas.Geometry{X: x, Y: y}))
	if err != nil {
		return nil, err
	}
	s.deck.Slides[i] = next
	s.dirty[next.ID] = true
	s.commitEditsLocked()
	return guides, nil
}

// CommitEdits is the blur / drag-end boundary. It records a history entry
// when the slides differ from the current one and patches edited slides in
// the store. Reports whether an entry was recorded.
func (s *Session) CommitEdits() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitEditsLocked()
}

func (s *Session) commitEditsLocked() bool {
	pushed := s.history.Commit(s.deck.Slides)
	for id := range s.dirty {
		if i := s.indexOfLocked(id); i >= 0 {
			s.patchTextLocked(s.deck.Slides[i])
		}
	}
	clear(s.dirty)
	return pushed
}

// SetLayout switches slide i to another template. A captured custom layout
// is dropped so the objects are derived from the new template.
func (s *Session) SetLayout(i int, l domain.Layout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkIndexLocked(i); err != nil {
		return err
	}
	sl := &s.deck.Slides[i]
	sl.Layout = domain.ParseLayout(string(l))
	sl.CustomLayoutJSON = ""
	s.history.Commit(s.deck.Slides)
	s.patchTextLocked(*sl)
	return nil
}

// Undo restores the previous history entry. The restore is saved in the
// background.
func (s *Session) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.history.Undo()
	if !ok {
		return false
	}
	s.restoreLocked(snap)
	return true
}

// Redo restores the next history entry.
func (s *Session) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.history.Redo()
	if !ok {
		return false
	}
	s.restoreLocked(snap)
	return true
}

func (s *Session) restoreLocked(snap []domain.Slide) {
	var curID string
	if s.current < len(s.deck.Slides) {
		curID = s.deck.Slides[s.current].ID
	}
	s.deck.Slides = snap
	for i := range s.deck.Slides {
		s.applyEphemeralLocked(&s.deck.Slides[i])
	}
	if j := s.indexOfLocked(curID); j >= 0 {
		s.current = j
	}
	s.clampCurrentLocked()
	clear(s.dirty)
	s.saveLocked()
}

// DeleteSlide removes slide i. The last remaining slide cannot be deleted.
// The active index keeps pointing at the same slide, or at the new last
// slide when the deleted one was active at the end.
func (s *Session) DeleteSlide(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkIndexLocked(i); err != nil {
		return err
	}
	if len(s.deck.Slides) == 1 {
		return domain.ErrLastSlide
	}
	s.deck.Slides = append(s.deck.Slides[:i:i], s.deck.Slides[i+1:]...)
	if s.current > i {
		s.current--
	}
	s.clampCurrentLocked()
	s.history.Commit(s.deck.Slides)
	s.saveLocked()
	return nil
}

// MoveSlide moves the slide at from to position to.
func (s *Session) MoveSlide(from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkIndexLocked(from); err != nil {
		return err
	}
	if err := s.checkIndexLocked(to); err != nil {
		return err
	}
	if from == to {
		return nil
	}
	curID := s.deck.Slides[s.current].ID
	moved := s.deck.Slides[from]
	rest := append(s.deck.Slides[:from:from], s.deck.Slides[from+1:]...)
	out := make([]domain.Slide, 0, len(s.deck.Slides))
	out = append(out, rest[:to]...)
	out = append(out, moved)
	out = append(out, rest[to:]...)
	s.deck.Slides = out
	s.current = s.indexOfLocked(curID)
	s.history.Commit(s.deck.Slides)
	s.saveLocked()
	return nil
}

// InsertSlide asks the generator for a slide matching description and
// inserts it at position at (clamped to the deck end). When the generator
// fails a blank slide is inserted instead. Returns the new slide's index.
func (s *Session) InsertSlide(ctx context.Context, at int, description string) (int, error) {
	s.mu.Lock()
	if at < 0 || at > len(s.deck.Slides) {
		s.mu.Unlock()
		return 0, fmt.Errorf("insert at %d: %w", at, domain.ErrIndexOutOfRange)
	}
	topic := s.deck.Topic
	existing := make([]domain.SlideDraft, len(s.deck.Slides))
	for i, sl := range s.deck.Slides {
		existing[i] = domain.DraftOf(sl)
	}
	s.mu.Unlock()

	sl := domain.NewSlide()
	draft, err := s.gen.GenerateSingleSlide(ctx, topic, description, existing, at)
	if err != nil {
		s.log.Warn("single slide generation failed; inserting blank slide", slog.Any("err", err))
	} else {
		sl = draft.ToSlide()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if at > len(s.deck.Slides) {
		at = len(s.deck.Slides)
	}
	out := make([]domain.Slide, 0, len(s.deck.Slides)+1)
	out = append(out, s.deck.Slides[:at]...)
	out = append(out, sl)
	out = append(out, s.deck.Slides[at:]...)
	s.deck.Slides = out
	if s.current >= at {
		s.current++
	}
	s.clampCurrentLocked()
	s.history.Commit(s.deck.Slides)
	s.saveLocked()
	return at, nil
}

// EnhanceNotes rewrites the speaker notes of slide i through the generator
// and records the result as one history entry. On error nothing changes.
func (s *Session) EnhanceNotes(ctx context.Context, i int, mode domain.NotesMode, targetLanguage string) (string, error) {
	s.mu.Lock()
	if err := s.checkIndexLocked(i); err != nil {
		s.mu.Unlock()
		return "", err
	}
	id := s.deck.Slides[i].ID
	notes := s.deck.Slides[i].SpeakerNotes
	s.mu.Unlock()

	text, err := s.gen.EnhanceNotes(ctx, notes, mode, targetLanguage)
	if err != nil {
		return "", fmt.Errorf("enhance notes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.indexOfLocked(id)
	if j < 0 {
		return "", fmt.Errorf("slide %s: %w", id, domain.ErrSlideNotFound)
	}
	s.deck.Slides[j].SpeakerNotes = text
	s.history.Commit(s.deck.Slides)
	s.patchTextLocked(s.deck.Slides[j])
	return text, nil
}

// Save writes the whole deck synchronously, after any queued background writes.
func (s *Session) Save(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	s.writer.Wait()
	d := s.Deck()
	d.UpdatedAt = time.Now().UTC()
	return s.store.Save(ctx, d)
}

// Wait blocks until queued generation requests and background writes finish.
// Settle timers that have not fired yet are not waited for.
func (s *Session) Wait() {
	s.pool.Wait()
	s.writer.Wait()
}

// Close stops the scheduler, cancels in-flight requests and flushes queued
// writes.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.settle != nil {
		s.settle.Stop()
	}
	s.mu.Unlock()
	s.cancel()
	s.pool.Close()
	s.writer.Wait()
	s.writer.Close()
}

func (s *Session) checkIndexLocked(i int) error {
	if i < 0 || i >= len(s.deck.Slides) {
		return fmt.Errorf("slide %d of %d: %w", i, len(s.deck.Slides), domain.ErrIndexOutOfRange)
	}
	return nil
}

func (s *Session) indexOfLocked(id string) int {
	for i := range s.deck.Slides {
		if s.deck.Slides[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) clampCurrentLocked() {
	if s.current >= len(s.deck.Slides) {
		s.current = len(s.deck.Slides) - 1
	}
	if s.current < 0 {
		s.current = 0
	}
}

// saveLocked queues a whole-deck write of the current state.
func (s *Session) saveLocked() {
	if s.store == nil {
		return
	}
	s.deck.UpdatedAt = time.Now().UTC()
	d := s.deck.Clone()
	s.persist("save", func(ctx context.Context) error { return s.store.Save(ctx, d) })
}

func (s *Session) patchTextLocked(sl domain.Slide) {
	if s.store == nil {
		return
	}
	deckID := s.deck.ID
	s.persist("patch_text", func(ctx context.Context) error { return s.store.PatchText(ctx, deckID, sl) })
}

func (s *Session) patchImageLocked(slideID, img string) {
	if s.store == nil {
		return
	}
	deckID := s.deck.ID
	s.persist("patch_image", func(ctx context.Context) error { return s.store.PatchImage(ctx, deckID, slideID, img) })
}

// persist queues a durable write. Failures are logged and dropped; the
// in-memory deck stays authoritative.
func (s *Session) persist(op string, fn func(ctx context.Context) error) {
	l := applog.WithOperation(s.log, op)
	s.writer.Submit(context.Background(), workpool.High, func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			l.Warn("durable write failed", slog.Any("err", err))
		}
	})
}
