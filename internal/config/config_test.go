/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zalando/go-keyring"
)

// isolate points the config file at a temp dir and swaps the OS keyring for
// go-keyring's in-memory mock.
func isolate(t *testing.T) string {
	t.Helper()
	keyring.MockInit()
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv(EnvConfigPath, path)
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	isolate(t)
	cfg, key, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if key != "" {
		t.Fatalf("expected no api key, got %q", key)
	}
	if cfg.Scheduler.MaxConcurrent != 3 || cfg.History.MaxEntries != 50 || cfg.Models.AspectRatio != "16:9" {
		t.Fatalf("unexpected defaults: %#v", cfg)
	}
	if got := cfg.Scheduler.SettleDelay(); got != 1500*time.Millisecond {
		t.Fatalf("SettleDelay = %v", got)
	}
}

func TestSaveLoadRoundTripWithKeyring(t *testing.T) {
	path := isolate(t)
	cfg := Defaults()
	cfg.Models.ImageSize = "2K"
	cfg.Scheduler.RequestsPerMinute = 20
	cfg.Storage.Driver = "postgres"
	if err := Save(cfg, "k-123"); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	got, key, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if key != "k-123" {
		t.Fatalf("api key = %q, want k-123", key)
	}
	if got.Models.ImageSize != "2K" || got.Scheduler.RequestsPerMinute != 20 || got.Storage.Driver != "postgres" {
		t.Fatalf("file values not loaded: %#v", got)
	}
	if err := ForgetAPIKey(); err != nil {
		t.Fatalf("ForgetAPIKey() error: %v", err)
	}
	if err := ForgetAPIKey(); err != nil {
		t.Fatalf("second ForgetAPIKey() should be a no-op, got %v", err)
	}
	if _, key, _ := Load(); key != "" {
		t.Fatalf("api key still present: %q", key)
	}
}

func TestEnvOverridesBackendURL(t *testing.T) {
	isolate(t)
	t.Setenv(EnvBackendURL, "https://example.test:8443")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got, want := cfg.Backend.BaseURL, "https://example.test:8443"; got != want {
		t.Fatalf("Backend.BaseURL = %q, want %q", got, want)
	}
	if name, ok := EnvOverrideFor("backend.base_url"); !ok || name != EnvBackendURL {
		t.Fatalf("EnvOverrideFor = %q %v", name, ok)
	}
	if _, ok := EnvOverrideFor("models.image_model"); ok {
		t.Fatalf("unset env must not report an override")
	}
}

func TestEnvOverridesScheduler(t *testing.T) {
	isolate(t)
	t.Setenv(EnvMaxConcurrent, "7")
	t.Setenv(EnvRequestsPerMinute, "not-a-number")
	t.Setenv(EnvTelemetryOptIn, "yes")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Scheduler.MaxConcurrent != 7 {
		t.Fatalf("MaxConcurrent = %d, want 7", cfg.Scheduler.MaxConcurrent)
	}
	if cfg.Scheduler.RequestsPerMinute != 0 {
		t.Fatalf("invalid int env must be ignored, got %d", cfg.Scheduler.RequestsPerMinute)
	}
	if !cfg.General.TelemetryOptIn {
		t.Fatalf("General.TelemetryOptIn expected true from env override")
	}
}

func TestMergeIncludesLogging(t *testing.T) {
	dst := Defaults()
	src := AppConfig{}
	src.Logging.Level = "DEBUG"
	src.Logging.Format = "json"
	src.Logging.Source = true
	src.Logging.File = "/tmp/gsw.log"
	mergeInto(&dst, &src)
	if dst.Logging.Level != "debug" || dst.Logging.Format != "json" || !dst.Logging.Source || dst.Logging.File != "/tmp/gsw.log" {
		t.Fatalf("logging fields not merged correctly: %#v", dst.Logging)
	}
	if dst.Scheduler.MaxConcurrent != 3 {
		t.Fatalf("zero values in file must keep defaults, got %d", dst.Scheduler.MaxConcurrent)
	}
}

func TestEnvOverridesLogging(t *testing.T) {
	isolate(t)
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvLogSource, "1")
	t.Setenv(EnvLogFile, "/tmp/gsw.log")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Logging.Level != "error" || cfg.Logging.Format != "json" || !cfg.Logging.Source || cfg.Logging.File != "/tmp/gsw.log" {
		t.Fatalf("env overrides not applied to logging: %#v", cfg.Logging)
	}
	opts := cfg.Logging.LogOptions()
	if opts.Level != "error" || !opts.AddSource {
		t.Fatalf("LogOptions mismatch: %#v", opts)
	}
}

func TestUnreadableFileFallsBackToDefaults(t *testing.T) {
	path := isolate(t)
	if err := os.WriteFile(path, []byte("scheduler: [not, a, map"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Scheduler.MaxConcurrent != 3 {
		t.Fatalf("expected defaults, got %#v", cfg.Scheduler)
	}
}

func TestModelConfigAndPaths(t *testing.T) {
	m := ModelsConfig{ImageModel: "m", AspectRatio: "4:3", ImageSize: "1K"}.ModelConfig()
	if m.Model != "m" || m.AspectRatio != "4:3" || m.ImageSize != "1K" {
		t.Fatalf("ModelConfig mismatch: %#v", m)
	}
	s := StorageConfig{SQLitePath: "/x/decks.sqlite", AutosaveDir: "/x/auto"}
	if p, _ := s.ResolveSQLitePath(); p != "/x/decks.sqlite" {
		t.Fatalf("ResolveSQLitePath = %q", p)
	}
	if p, _ := s.ResolveAutosaveDir(); p != "/x/auto" {
		t.Fatalf("ResolveAutosaveDir = %q", p)
	}
}
