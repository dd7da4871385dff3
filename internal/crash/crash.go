/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic into a crash report plus an autosave of the
// deck that was open, then exits.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"goslidewriter/internal/domain"
	applog "goslidewriter/internal/log"
	"goslidewriter/internal/storage"
	"goslidewriter/internal/telemetry"
	"goslidewriter/internal/version"
)

// exitFn is replaced in tests.
var exitFn = os.Exit

// DeckSource yields the deck to preserve. *editor.Session implements it.
type DeckSource interface {
	Deck() domain.Deck
}

// Handler holds what a crash needs to preserve.
type Handler struct {
	// Dir is the autosave directory. Reports go to its backups folder, or
	// to the OS temp dir when Dir is empty.
	Dir string
	// Deck may be nil when no deck is open.
	Deck      DeckSource
	Telemetry *telemetry.Client
}

// Recover must be deferred directly:
//
//	defer h.Recover()
func (h *Handler) Recover() {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	var d *domain.Deck
	if h.Deck != nil {
		snap := h.Deck.Deck()
		d = &snap
	}
	reportPath, err := h.writeReport(d, r, stack)
	if err != nil {
		l.Error("write crash report failed", slog.Any("err", err))
	}
	if d != nil && h.Dir != "" {
		if path, err := storage.WriteAutosave(h.Dir, *d); err != nil {
			l.Error("crash autosave failed", slog.Any("err", err))
		} else {
			l.Info("crash autosave written", slog.String("path", path))
		}
	}

	_, _ = fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath)
	_, _ = fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH)
	exitFn(2)
}

func (h *Handler) writeReport(d *domain.Deck, panicVal any, stack []byte) (string, error) {
	dir := os.TempDir()
	if h.Dir != "" {
		dir = filepath.Join(h.Dir, storage.BackupsDirName)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", time.Now().Format("20060102-150405")))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "Go Slide Writer Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if d != nil {
		_, _ = fmt.Fprintf(&buf, "Deck: %s (%d slides)\n", d.ID, len(d.Slides))
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return path, err
	}
	// Deck content stays local; only the report is uploaded, and only on opt-in.
	h.Telemetry.UploadCrash(buf.Bytes())
	return path, nil
}
