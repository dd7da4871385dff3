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
	"log/slog"
	"time"

	"goslidewriter/internal/domain"
	"goslidewriter/internal/workpool"
)

// Status is the generation state of one slide.
type Status int

const (
	StatusIdle Status = iota
	StatusGenerating
	StatusDone
	StatusFailed
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusGenerating:
		return "generating"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	case StatusAborted:
		return "aborted"
	default:
		return "idle"
	}
}

// Outcome classifies a completed generation request.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeFailed  Outcome = "failed"
	// OutcomeDiscarded covers requests that were stopped, superseded or
	// whose slide was deleted before completion.
	OutcomeDiscarded Outcome = "discarded"
)

// GenerationEvent reports one completed per-slide request.
type GenerationEvent struct {
	SlideID  string
	Outcome  Outcome
	Duration time.Duration
	Err      error
}

// genState is the scheduler bookkeeping of one slide, keyed by slide id so
// it survives reorders, deletes and undo.
type genState struct {
	requested bool
	aborted   bool
	status    Status
	// token identifies the request whose result may still be applied.
	token  uint64
	cancel context.CancelFunc
}

func (s *Session) stateLocked(id string) *genState {
	st, ok := s.gens[id]
	if !ok {
		st = &genState{}
		s.gens[id] = st
	}
	return st
}

// applyEphemeralLocked derives the UI flags of sl from scheduler state.
func (s *Session) applyEphemeralLocked(sl *domain.Slide) {
	sl.IsGenerating = false
	sl.GenerationFailed = false
	if st, ok := s.gens[sl.ID]; ok {
		switch st.status {
		case StatusGenerating:
			sl.IsGenerating = true
		case StatusFailed:
			sl.GenerationFailed = true
		}
	}
}

// Navigate makes slide i active. It requests images for i, i+1 and i-1 in
// that order and arms the settle timer for the background sweep.
func (s *Session) Navigate(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkIndexLocked(i); err != nil {
		return err
	}
	s.current = i
	for _, j := range []int{i, i + 1, i - 1} {
		if j >= 0 && j < len(s.deck.Slides) {
			s.requestLocked(j, false, workpool.High)
		}
	}
	s.armSettleLocked()
	return nil
}

func (s *Session) armSettleLocked() {
	if s.settle != nil {
		s.settle.Stop()
	}
	s.navSeq++
	if s.settleDelay < 0 || s.closed {
		return
	}
	seq := s.navSeq
	s.settle = time.AfterFunc(s.settleDelay, func() { s.sweep(seq) })
}

// sweep requests every slide farther than one step from the active one that
// still lacks an image. A sweep armed by an older navigation is skipped.
func (s *Session) sweep(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.navSeq || s.closed {
		return
	}
	n := 0
	for j := range s.deck.Slides {
		if d := j - s.current; d > 1 || d < -1 {
			if s.requestLocked(j, false, workpool.Background) {
				n++
			}
		}
	}
	if n > 0 {
		s.log.Debug("background sweep queued", slog.Int("slides", n))
	}
}

// RequestGeneration requests an image for slide i. Without force the call
// is a no-op when the slide has an image, is generating or was already
// requested this session. Reports whether a request was issued.
func (s *Session) RequestGeneration(i int, force bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkIndexLocked(i); err != nil {
		return false, err
	}
	return s.requestLocked(i, force, workpool.High), nil
}

func (s *Session) requestLocked(i int, force bool, pri workpool.Priority) bool {
	if s.closed || s.themeBusy {
		return false
	}
	sl := &s.deck.Slides[i]
	st := s.stateLocked(sl.ID)
	if !force && (sl.Image != "" || sl.IsGenerating || st.requested) {
		return false
	}
	if st.cancel != nil {
		st.cancel()
	}
	s.nextToken++
	token := s.nextToken
	ctx, cancel := context.WithCancel(s.ctx)
	st.aborted = false
	st.requested = true
	st.status = StatusGenerating
	st.token = token
	st.cancel = cancel
	sl.IsGenerating = true
	sl.GenerationFailed = false
	s.inFlight++

	id, prompt, title := sl.ID, sl.VisualPrompt, sl.Title
	if !s.pool.Submit(ctx, pri, func(ctx context.Context) { s.generate(ctx, id, token, prompt, title) }) {
		cancel()
		s.inFlight--
		st.status = StatusIdle
		st.requested = false
		st.cancel = nil
		sl.IsGenerating = false
		return false
	}
	return true
}

// generate runs one request and applies its result.
func (s *Session) generate(ctx context.Context, id string, token uint64, prompt, title string) {
	start := time.Now()
	var img string
	err := ctx.Err()
	if err == nil {
		img, err = s.gen.GenerateImage(ctx, prompt, title, s.models)
		if err == nil && img == "" {
			err = domain.ErrEmptyImage
		}
	}
	if err == nil {
		// The cache keeps every successful result, even one that is discarded below.
		s.cache.Put(id, img)
	}

	s.mu.Lock()
	s.inFlight--
	outcome := s.applyResultLocked(id, token, img, err)
	s.mu.Unlock()

	l := s.log.With(slog.String("slide", id), slog.String("outcome", string(outcome)), slog.Duration("took", time.Since(start)))
	switch {
	case outcome == OutcomeFailed:
		l.Warn("image generation failed", slog.Any("err", err))
	case outcome == OutcomeDiscarded && err != nil && !errors.Is(err, context.Canceled):
		l.Debug("discarded failed request", slog.Any("err", err))
	default:
		l.Debug("image request finished")
	}
	if s.onGen != nil {
		s.onGen(GenerationEvent{SlideID: id, Outcome: outcome, Duration: time.Since(start), Err: err})
	}
}

func (s *Session) applyResultLocked(id string, token uint64, img string, err error) Outcome {
	st, ok := s.gens[id]
	if !ok || st.token != token {
		return OutcomeDiscarded
	}
	if st.cancel != nil {
		st.cancel()
		st.cancel = nil
	}
	st.token = 0
	i := s.indexOfLocked(id)
	if st.aborted {
		if i >= 0 {
			s.deck.Slides[i].IsGenerating = false
		}
		return OutcomeDiscarded
	}
	if err != nil {
		st.status = StatusFailed
		if i >= 0 {
			s.deck.Slides[i].IsGenerating = false
			s.deck.Slides[i].GenerationFailed = true
			return OutcomeFailed
		}
		return OutcomeDiscarded
	}
	st.status = StatusDone
	if i < 0 {
		return OutcomeDiscarded
	}
	sl := &s.deck.Slides[i]
	sl.Image = img
	sl.IsGenerating = false
	sl.GenerationFailed = false
	s.patchImageLocked(id, img)
	return OutcomeApplied
}

// Stop abandons the in-flight request of slide i. Its result will be
// discarded; the transport call is cancelled as a best effort.
func (s *Session) Stop(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkIndexLocked(i); err != nil {
		return err
	}
	sl := &s.deck.Slides[i]
	st, ok := s.gens[sl.ID]
	if !ok || st.status != StatusGenerating {
		return nil
	}
	st.aborted = true
	st.status = StatusAborted
	sl.IsGenerating = false
	if st.cancel != nil {
		st.cancel()
	}
	return nil
}

// Retry forces a new request for slide i.
func (s *Session) Retry(i int) error {
	_, err := s.RequestGeneration(i, true)
	return err
}

// Ignore clears the failure flag of slide i without generating; the slide
// stays without illustration.
func (s *Session) Ignore(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkIndexLocked(i); err != nil {
		return err
	}
	sl := &s.deck.Slides[i]
	sl.GenerationFailed = false
	if st, ok := s.gens[sl.ID]; ok && st.status == StatusFailed {
		st.status = StatusIdle
	}
	return nil
}

// RegenerateWithPrompt replaces the visual prompt of slide i, clears its
// image, records the prompt change in history and forces a new request.
func (s *Session) RegenerateWithPrompt(i int, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkIndexLocked(i); err != nil {
		return err
	}
	sl := &s.deck.Slides[i]
	sl.VisualPrompt = prompt
	sl.Image = ""
	s.history.Commit(s.deck.Slides)
	s.patchTextLocked(*sl)
	s.patchImageLocked(sl.ID, "")
	if !s.requestLocked(i, true, workpool.High) {
		return fmt.Errorf("regenerate slide %d: scheduler unavailable", i)
	}
	return nil
}

// InFlight returns the number of requests that have not completed yet.
func (s *Session) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// GenerationStatus returns the scheduler state of slide i.
func (s *Session) GenerationStatus(i int) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkIndexLocked(i); err != nil {
		return StatusIdle, err
	}
	if st, ok := s.gens[s.deck.Slides[i].ID]; ok {
		return st.status, nil
	}
	return StatusIdle, nil
}

// supersedeAllLocked detaches every in-flight request so its result is
// discarded. Slides become requestable again.
func (s *Session) supersedeAllLocked() {
	for id, st := range s.gens {
		if st.status != StatusGenerating {
			continue
		}
		if st.cancel != nil {
			st.cancel()
			st.cancel = nil
		}
		st.token = 0
		st.status = StatusIdle
		st.requested = false
		if i := s.indexOfLocked(id); i >= 0 {
			s.deck.Slides[i].IsGenerating = false
		}
	}
}
