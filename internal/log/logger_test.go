/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package log

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// TestInitFansOutToConsoleAndFile verifies that Init with a file handler writes JSON logs
// to the rotated file while the console still receives the pretty line.
func TestInitFansOutToConsoleAndFile(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "gsw.log")
	var console bytes.Buffer

	Init(Options{Level: "debug", Format: "console", File: fpath, Console: &console})
	t.Cleanup(func() { Init(Options{Level: "info", Console: &bytes.Buffer{}}) })

	l := WithDeck(WithOperation(WithComponent("scheduler"), "generate"), "deck-1")
	l.Info("image ready", slog.Int("slide", 2))

	b, err := os.ReadFile(fpath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(b))
	var last string
	for scanner.Scan() {
		if s := strings.TrimSpace(scanner.Text()); s != "" {
			last = s
		}
	}
	if last == "" {
		t.Fatalf("no log lines found")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(last), &m); err != nil {
		t.Fatalf("unmarshal json log: %v", err)
	}
	if m["app"] != "goslidewriter" {
		t.Fatalf("missing app attr: %v", m["app"])
	}
	if m["component"] != "scheduler" || m["op"] != "generate" || m["deck"] != "deck-1" {
		t.Fatalf("context attrs mismatch: %v", m)
	}
	if m["msg"] != "image ready" {
		t.Fatalf("msg mismatch: %v", m["msg"])
	}
	line := console.String()
	if !strings.Contains(line, "INF [scheduler] image ready") || !strings.Contains(line, "deck=deck-1") {
		t.Fatalf("console line missing: %q", line)
	}
	if strings.Contains(line, "app=") || strings.Contains(line, "component=") {
		t.Fatalf("console line should hide app and component attrs: %q", line)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("GSW_LOG_LEVEL", "warn")
	t.Setenv("GSW_LOG_FORMAT", "json")
	t.Setenv("GSW_LOG_SOURCE", "true")
	t.Setenv("GSW_LOG_FILE", "")

	opts := FromEnv()
	if opts.Level != "warn" || opts.Format != "json" || !opts.AddSource || opts.File != "" {
		t.Fatalf("FromEnv mismatch: %+v", opts)
	}
	if v := getenv("GSW_SURELY_UNSET_VAR", "fallback"); v != "fallback" {
		t.Fatalf("getenv fallback failed: %q", v)
	}
}

func TestPrettyTextHandler(t *testing.T) {
	var buf bytes.Buffer
	h := &prettyTextHandler{opts: prettyOpts{Level: slog.LevelWarn}, w: &buf, mu: &sync.Mutex{}}

	ctx := context.Background()
	if h.Enabled(ctx, slog.LevelInfo) {
		t.Fatalf("info should not be enabled at warn level")
	}
	if !h.Enabled(ctx, slog.LevelError) {
		t.Fatalf("error should be enabled at warn level")
	}

	h2 := h.WithAttrs([]slog.Attr{slog.String("slide", "01J")}).WithGroup("gen")
	r := slog.NewRecord(time.Now(), slog.LevelError, "generation failed", 0)
	r.AddAttrs(slog.Int("attempt", 1), slog.Float64("ratio", 1.5), slog.String("prompt", "two words"), slog.Duration("took", 2*time.Second))
	if err := h2.Handle(ctx, r); err != nil {
		t.Fatalf("handle error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"ERR generation failed", " slide=01J", "gen.attempt=1", "gen.ratio=1.5", `gen.prompt="two words"`, "gen.took=2s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q: %q", want, out)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in).Level(); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestPrettyTextHandlerElidesPayloads(t *testing.T) {
	var buf bytes.Buffer
	h := &prettyTextHandler{opts: prettyOpts{Level: slog.LevelDebug}, w: &buf, mu: &sync.Mutex{}}
	l := slog.New(h).With(slog.String("component", "genai"))

	l.Debug("payload", slog.String("image", strings.Repeat("A", 500)))

	out := buf.String()
	if !strings.Contains(out, "DBG [genai] payload") {
		t.Fatalf("missing component tag: %q", out)
	}
	if strings.Contains(out, strings.Repeat("A", 100)) || !strings.Contains(out, "(500B)") {
		t.Fatalf("long value not elided: %q", out)
	}
}
