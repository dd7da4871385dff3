/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"goslidewriter/internal/backend"
	"goslidewriter/internal/config"
	"goslidewriter/internal/crash"
	"goslidewriter/internal/editor"
	"goslidewriter/internal/genai"
	applog "goslidewriter/internal/log"
	"goslidewriter/internal/storage"
	"goslidewriter/internal/telemetry"
	"goslidewriter/internal/theme"
)

// store is what the commands need from a deck store.
type store interface {
	editor.Store
	io.Closer
}

// appEnv carries the wired dependencies of one CLI invocation.
type appEnv struct {
	cfg       config.AppConfig
	store     store
	gen       editor.Generator
	themes    *theme.Catalog
	telemetry *telemetry.Client
	crash     *crash.Handler
	log       *slog.Logger
}

// sessionOptions builds editor options from the loaded configuration.
func (e *appEnv) sessionOptions() editor.Options {
	return editor.Options{
		Generator:         e.gen,
		Store:             e.store,
		Themes:            e.themes,
		Models:            e.cfg.Models.ModelConfig(),
		MaxConcurrent:     e.cfg.Scheduler.MaxConcurrent,
		RequestsPerMinute: e.cfg.Scheduler.RequestsPerMinute,
		// Batch commands never navigate, so the sweep is configured but not armed.
		SettleDelay: e.cfg.Scheduler.SettleDelay(),
		HistoryMax:  e.cfg.History.MaxEntries,
		OnGeneration: func(ev editor.GenerationEvent) {
			e.telemetry.Generation(string(ev.Outcome), ev.Duration)
		},
		Logger: applog.WithComponent("editor"),
	}
}

func openStore(ctx context.Context, cfg config.StorageConfig) (store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		path, err := cfg.ResolveSQLitePath()
		if err != nil {
			return nil, err
		}
		return storage.OpenSQLite(ctx, path)
	case "postgres":
		dsn := cfg.PostgresDSN
		if dsn == "" {
			dsn = backend.DSNFromEnv()
		}
		return backend.OpenPG(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func loadThemes(path string) (*theme.Catalog, error) {
	c := theme.NewCatalog()
	if path == "" {
		return c, nil
	}
	if err := c.LoadFile(path); err != nil {
		return nil, fmt.Errorf("load themes %s: %w", path, err)
	}
	return c, nil
}

func run() int {
	cfg, apiKey, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	applog.Init(cfg.Logging.LogOptions())
	l := applog.WithComponent("cli")
	l.Debug("start", slog.Int("args", len(os.Args)))

	tel := telemetry.New(telemetry.Config{
		OptIn:     cfg.General.TelemetryOptIn,
		EventsURL: cfg.General.TelemetryURL,
		CrashURL:  telemetry.FromEnv().CrashURL,
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		tel.Flush(ctx)
		cancel()
		tel.Close()
	}()

	autosaveDir, err := cfg.Storage.ResolveAutosaveDir()
	if err != nil {
		l.Warn("autosave dir unavailable", slog.Any("err", err))
	}
	h := &crash.Handler{Dir: autosaveDir, Telemetry: tel}
	defer h.Recover()

	themes, err := loadThemes(cfg.General.ThemesFile)
	if err != nil {
		l.Error("themes", slog.Any("err", err))
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg.Storage)
	if err != nil {
		l.Error("open store failed", slog.String("driver", cfg.Storage.Driver), slog.Any("err", err))
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	defer st.Close()

	client := genai.NewClient(genai.Options{
		BaseURL: cfg.Backend.BaseURL,
		APIKey:  apiKey,
		Timeout: cfg.Backend.Timeout(),
	})
	gen := genai.NewBreaker(client, genai.BreakerConfig{
		MaxFailures: cfg.Scheduler.BreakerMaxFailures,
		Timeout:     cfg.Scheduler.BreakerTimeout(),
	}, applog.WithComponent("genai"))

	env := &appEnv{
		cfg:       cfg,
		store:     st,
		gen:       gen,
		themes:    themes,
		telemetry: tel,
		crash:     h,
		log:       l,
	}
	if err := newCLIApp(env).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run())
}
