/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"goslidewriter/internal/domain"
	applog "goslidewriter/internal/log"
	"goslidewriter/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

// schemaVersion tracks the local SQLite schema.
// Bump this when you perform breaking schema changes and add migrations.
const schemaVersion = 2

// SQLiteStore persists decks in an embedded SQLite database. It is safe for
// concurrent use; the connection pool is limited to one connection.
type SQLiteStore struct {
	db   *sql.DB
	path string
	log  *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path, enables WAL
// mode and brings the schema up to date.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "sqlite_open").With(
		slog.String("path", path),
	)
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		l.Error("create db dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	// Use a URI and set busy timeout. Convert to forward slashes for SQLite URI.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Set reasonable connection pool limits for embedded usage.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	if err := ensureDeckSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure deck schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}
	l.Info("deck store ready")
	return &SQLiteStore{db: db, path: path, log: applog.WithComponent("storage")}, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// SchemaVersion reports the schema version recorded in the database.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&v)
	return v, err
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var curSchema int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&curSchema)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// A fresh database starts at schema 1 and is migrated forward.
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, 1, ?, ?, ?)`, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		// Update app and timestamp only; keep existing schema for migrations
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// ensureDeckSchema creates the schema-1 tables.
func ensureDeckSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS decks (
			id               TEXT PRIMARY KEY,
			topic            TEXT NOT NULL,
			theme_id         TEXT NOT NULL DEFAULT '',
			theme_background TEXT NOT NULL DEFAULT '',
			created_at       TEXT NOT NULL,
			updated_at       TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS slides (
			deck_id            TEXT    NOT NULL REFERENCES decks(id) ON DELETE CASCADE,
			id                 TEXT    NOT NULL,
			position           INTEGER NOT NULL,
			title              TEXT    NOT NULL DEFAULT '',
			body               TEXT    NOT NULL DEFAULT '',
			visual_prompt      TEXT    NOT NULL DEFAULT '',
			layout             TEXT    NOT NULL DEFAULT 'center',
			image              TEXT    NOT NULL DEFAULT '',
			custom_layout_json TEXT    NOT NULL DEFAULT '',
			PRIMARY KEY(deck_id, id)
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure deck schema: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if cur > schemaVersion {
		// Do not downgrade; a newer build wrote this database.
		return nil
	}
	for cur < schemaVersion {
		next := cur + 1
		var stmts []string
		switch next {
		case 2:
			// Speaker notes and ordered slide lookups.
			stmts = []string{
				`ALTER TABLE slides ADD COLUMN speaker_notes TEXT NOT NULL DEFAULT '';`,
				`CREATE INDEX IF NOT EXISTS idx_slides_deck_pos ON slides(deck_id, position);`,
			}
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d stmt failed: %w", next, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
		cur = next
	}
	return nil
}

const tsLayout = time.RFC3339Nano

// Save writes the whole deck, replacing any stored slides.
func (s *SQLiteStore) Save(ctx context.Context, d domain.Deck) error {
	if strings.TrimSpace(d.ID) == "" {
		return errors.New("deck id is required")
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now().UTC()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `INSERT INTO decks(id, topic, theme_id, theme_background, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET topic=excluded.topic, theme_id=excluded.theme_id,
			theme_background=excluded.theme_background, updated_at=excluded.updated_at`,
		d.ID, d.Topic, d.ThemeID, d.ThemeBackground, d.CreatedAt.UTC().Format(tsLayout), d.UpdatedAt.UTC().Format(tsLayout)); err != nil {
		return fmt.Errorf("upsert deck: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM slides WHERE deck_id=?`, d.ID); err != nil {
		return fmt.Errorf("clear slides: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO slides(deck_id, id, position, title, body, visual_prompt, layout, image, custom_layout_json, speaker_notes)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare slide insert: %w", err)
	}
	defer stmt.Close()
	for i, sl := range d.Slides {
		if _, err := stmt.ExecContext(ctx, d.ID, sl.ID, i, sl.Title, sl.Body, sl.VisualPrompt, string(sl.Layout), sl.Image, sl.CustomLayoutJSON, sl.SpeakerNotes); err != nil {
			return fmt.Errorf("insert slide %s: %w", sl.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// Load reads a deck with its slides in order.
func (s *SQLiteStore) Load(ctx context.Context, id string) (domain.Deck, error) {
	var d domain.Deck
	var created, updated string
	err := s.db.QueryRowContext(ctx, `SELECT id, topic, theme_id, theme_background, created_at, updated_at FROM decks WHERE id=?`, id).
		Scan(&d.ID, &d.Topic, &d.ThemeID, &d.ThemeBackground, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Deck{}, fmt.Errorf("deck %s: %w", id, domain.ErrDeckNotFound)
	}
	if err != nil {
		return domain.Deck{}, fmt.Errorf("load deck: %w", err)
	}
	d.CreatedAt, _ = time.Parse(tsLayout, created)
	d.UpdatedAt, _ = time.Parse(tsLayout, updated)

	rows, err := s.db.QueryContext(ctx, `SELECT id, title, body, visual_prompt, layout, image, custom_layout_json, speaker_notes
		FROM slides WHERE deck_id=? ORDER BY position`, id)
	if err != nil {
		return domain.Deck{}, fmt.Errorf("load slides: %w", err)
	}
	defer rows.Close()
	d.Slides = []domain.Slide{}
	for rows.Next() {
		var sl domain.Slide
		var layout string
		if err := rows.Scan(&sl.ID, &sl.Title, &sl.Body, &sl.VisualPrompt, &layout, &sl.Image, &sl.CustomLayoutJSON, &sl.SpeakerNotes); err != nil {
			return domain.Deck{}, fmt.Errorf("scan slide: %w", err)
		}
		sl.Layout = domain.ParseLayout(layout)
		d.Slides = append(d.Slides, sl)
	}
	if err := rows.Err(); err != nil {
		return domain.Deck{}, fmt.Errorf("iterate slides: %w", err)
	}
	return d, nil
}

// ListAll returns a summary of every stored deck, most recently updated first.
func (s *SQLiteStore) ListAll(ctx context.Context) ([]domain.DeckSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT d.id, d.topic, d.theme_id, d.updated_at,
			(SELECT COUNT(*) FROM slides sl WHERE sl.deck_id = d.id)
		FROM decks d ORDER BY d.updated_at DESC, d.id`)
	if err != nil {
		return nil, fmt.Errorf("list decks: %w", err)
	}
	defer rows.Close()
	var out []domain.DeckSummary
	for rows.Next() {
		var sum domain.DeckSummary
		var updated string
		if err := rows.Scan(&sum.ID, &sum.Topic, &sum.ThemeID, &updated, &sum.SlideCount); err != nil {
			return nil, fmt.Errorf("scan deck: %w", err)
		}
		sum.UpdatedAt, _ = time.Parse(tsLayout, updated)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete removes a deck and its slides.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM decks WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete deck: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("deck %s: %w", id, domain.ErrDeckNotFound)
	}
	// Cascade is enforced by foreign_keys; clear explicitly for databases opened without it.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM slides WHERE deck_id=?`, id); err != nil {
		return fmt.Errorf("delete slides: %w", err)
	}
	return nil
}

// PatchImage updates one slide's image without rewriting the deck.
func (s *SQLiteStore) PatchImage(ctx context.Context, deckID, slideID, image string) error {
	return s.patch(ctx, deckID, slideID, `UPDATE slides SET image=? WHERE deck_id=? AND id=?`, image, deckID, slideID)
}

// PatchText updates one slide's text and canvas fields.
func (s *SQLiteStore) PatchText(ctx context.Context, deckID string, sl domain.Slide) error {
	return s.patch(ctx, deckID, sl.ID, `UPDATE slides SET title=?, body=?, visual_prompt=?, layout=?, custom_layout_json=?, speaker_notes=?
		WHERE deck_id=? AND id=?`,
		sl.Title, sl.Body, sl.VisualPrompt, string(sl.Layout), sl.CustomLayoutJSON, sl.SpeakerNotes, deckID, sl.ID)
}

func (s *SQLiteStore) patch(ctx context.Context, deckID, slideID, q string, args ...any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin patch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("patch slide %s: %w", slideID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("slide %s in deck %s: %w", slideID, deckID, domain.ErrSlideNotFound)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE decks SET updated_at=? WHERE id=?`, time.Now().UTC().Format(tsLayout), deckID); err != nil {
		return fmt.Errorf("touch deck: %w", err)
	}
	return tx.Commit()
}
