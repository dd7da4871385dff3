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
	"fmt"
	"log/slog"
	"time"

	"goslidewriter/internal/domain"
	applog "goslidewriter/internal/log"
)

// ApplyTheme generates one background for the whole deck and assigns it to
// every slide at once. Per-slide requests still in flight are superseded
// once the background has arrived. On failure no slide changes, pending
// requests complete normally and the error is returned.
func (s *Session) ApplyTheme(ctx context.Context, themeID string) error {
	l := applog.WithOperation(s.log, "apply_theme").With(slog.String("theme", themeID))

	s.mu.Lock()
	if s.themeBusy {
		s.mu.Unlock()
		return domain.ErrThemeInProgress
	}
	t, ok := s.themes.Get(themeID)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("theme %q: %w", themeID, domain.ErrUnknownTheme)
	}
	// New per-slide requests wait; those already in flight keep running
	// until the background is known.
	s.themeBusy = true
	topic := s.deck.Topic
	s.mu.Unlock()

	start := time.Now()
	img, err := s.gen.GenerateThemedBackground(ctx, t, topic, s.models)
	if err == nil && img == "" {
		err = domain.ErrEmptyImage
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.themeBusy = false
	if err != nil {
		l.Warn("themed background failed", slog.Any("err", err), slog.Duration("took", time.Since(start)))
		return fmt.Errorf("apply theme %q: %w", themeID, err)
	}

	s.supersedeAllLocked()
	for i := range s.deck.Slides {
		sl := &s.deck.Slides[i]
		sl.Image = img
		sl.IsGenerating = false
		sl.GenerationFailed = false
		st := s.stateLocked(sl.ID)
		st.requested = true
		st.aborted = false
		st.status = StatusDone
	}
	s.deck.ThemeID = t.ID
	s.deck.ThemeBackground = img
	s.history.Push(s.deck.Slides)
	s.saveLocked()
	l.Info("theme applied", slog.Int("slides", len(s.deck.Slides)), slog.Duration("took", time.Since(start)))
	return nil
}
