/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"goslidewriter/internal/domain"
)

const (
	autosaveSuffix = ".deck.json"
	BackupsDirName = "backups"
	// maxBackups bounds the timestamped copies kept per deck.
	maxBackups = 5
)

// AutosavePath returns the autosave file of a deck inside dir.
func AutosavePath(dir, deckID string) string {
	return filepath.Join(dir, deckID+autosaveSuffix)
}

// WriteAutosave writes deck to dir with transactional semantics and a
// timestamped backup of the previous file (if present).
func WriteAutosave(dir string, d domain.Deck) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", errors.New("autosave dir is required")
	}
	if strings.TrimSpace(d.ID) == "" {
		return "", errors.New("deck id is required")
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal deck: %w", err)
	}
	data = append(data, '\n')

	bdir := filepath.Join(dir, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return "", fmt.Errorf("ensure backups dir: %w", err)
	}
	target := AutosavePath(dir, d.ID)
	if _, statErr := os.Stat(target); statErr == nil {
		stamp := time.Now().Format("20060102-150405.000")
		bpath := filepath.Join(bdir, fmt.Sprintf("%s%s.%s.bak", d.ID, autosaveSuffix, stamp))
		if cerr := copyFile(target, bpath); cerr != nil {
			return "", fmt.Errorf("backup current autosave: %w", cerr)
		}
		pruneBackups(bdir, d.ID)
	}

	// Transactional write: to temp file in same directory, then rename over target
	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", filepath.Base(target), os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, data); werr != nil {
		return "", fmt.Errorf("write temp autosave: %w", werr)
	}
	// On Windows, replace by removing destination first if needed
	if _, err := os.Stat(target); err == nil {
		_ = os.Remove(target)
	}
	if rerr := os.Rename(temp, target); rerr != nil {
		_ = os.Remove(temp)
		return "", fmt.Errorf("replace autosave: %w", rerr)
	}
	return target, nil
}

// ReadAutosave loads a deck's autosave. If the file is missing or corrupt the
// latest backup is used.
func ReadAutosave(dir, deckID string) (domain.Deck, error) {
	path := AutosavePath(dir, deckID)
	b, err := os.ReadFile(path)
	if err == nil {
		var d domain.Deck
		if err = json.Unmarshal(b, &d); err == nil {
			return d, nil
		}
	}
	d, berr := readLatestBackup(dir, deckID)
	if berr != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Deck{}, fmt.Errorf("deck %s: %w", deckID, domain.ErrDeckNotFound)
		}
		return domain.Deck{}, fmt.Errorf("read autosave: %w; backup attempt: %v", err, berr)
	}
	return d, nil
}

// ListAutosaves returns the deck ids with an autosave in dir.
func ListAutosaves(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range ents {
		if name := e.Name(); !e.IsDir() && strings.HasSuffix(name, autosaveSuffix) && !strings.HasPrefix(name, ".") {
			ids = append(ids, strings.TrimSuffix(name, autosaveSuffix))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func backupsOf(bdir, deckID string) []string {
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil
	}
	prefix := deckID + autosaveSuffix + "."
	var out []string
	for _, e := range ents {
		if name := e.Name(); strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(bdir, name))
		}
	}
	sort.Strings(out) // timestamp in name yields lexicographic order
	return out
}

func pruneBackups(bdir, deckID string) {
	all := backupsOf(bdir, deckID)
	for len(all) > maxBackups {
		_ = os.Remove(all[0])
		all = all[1:]
	}
}

func readLatestBackup(dir, deckID string) (domain.Deck, error) {
	candidates := backupsOf(filepath.Join(dir, BackupsDirName), deckID)
	if len(candidates) == 0 {
		return domain.Deck{}, errors.New("no backups found")
	}
	latest := candidates[len(candidates)-1]
	b, err := os.ReadFile(latest)
	if err != nil {
		return domain.Deck{}, fmt.Errorf("read latest backup: %w", err)
	}
	var d domain.Deck
	if err := json.Unmarshal(b, &d); err != nil {
		return domain.Deck{}, fmt.Errorf("parse latest backup: %w", err)
	}
	return d, nil
}

// writeFileSync writes data to a file, ensures it is flushed to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies a file from src to dst (overwrites dst if exists).
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}
