/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package theme holds the catalog of deck-wide visual themes. A small set is
// built in; users can add or override entries with a YAML file.
package theme

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"goslidewriter/internal/domain"
)

var builtin = []domain.Theme{
	{ID: "midnight", Name: "Midnight Gradient", PromptSnippet: "Deep navy to violet gradient, soft glowing light trails, subtle grain."},
	{ID: "paper", Name: "Warm Paper", PromptSnippet: "Textured off-white paper, gentle shadows, hand-made editorial feel."},
	{ID: "aurora", Name: "Aurora", PromptSnippet: "Northern lights over a dark horizon, teal and magenta ribbons, calm and wide."},
	{ID: "blueprint", Name: "Blueprint", PromptSnippet: "Technical blueprint grid, cyan linework on deep blue, precise and minimal."},
	{ID: "terracotta", Name: "Terracotta", PromptSnippet: "Earthy terracotta and sand tones, soft organic shapes, matte lighting."},
	{ID: "monochrome", Name: "Monochrome Studio", PromptSnippet: "Neutral grey studio backdrop, single soft key light, high-end product shoot."},
}

// Catalog resolves theme ids to descriptors. Safe for concurrent use.
type Catalog struct {
	mu     sync.RWMutex
	themes map[string]domain.Theme
}

// NewCatalog returns a catalog seeded with the built-in themes.
func NewCatalog() *Catalog {
	c := &Catalog{themes: make(map[string]domain.Theme, len(builtin))}
	for _, t := range builtin {
		c.themes[t.ID] = t
	}
	return c
}

// Get returns the theme with the given id.
func (c *Catalog) Get(id string) (domain.Theme, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.themes[strings.TrimSpace(id)]
	return t, ok
}

// List returns all themes sorted by id.
func (c *Catalog) List() []domain.Theme {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Theme, 0, len(c.themes))
	for _, t := range c.themes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Add registers or replaces a theme.
func (c *Catalog) Add(t domain.Theme) error {
	t.ID = strings.TrimSpace(t.ID)
	if t.ID == "" {
		return fmt.Errorf("theme without id")
	}
	if strings.TrimSpace(t.PromptSnippet) == "" {
		return fmt.Errorf("theme %q: prompt_snippet is required", t.ID)
	}
	if t.Name == "" {
		t.Name = t.ID
	}
	c.mu.Lock()
	c.themes[t.ID] = t
	c.mu.Unlock()
	return nil
}

type catalogFile struct {
	Themes []domain.Theme `yaml:"themes"`
}

// LoadFile merges themes from a YAML file of the form
//
//	themes:
//	  - id: neon
//	    name: Neon
//	    prompt_snippet: ...
//
// Entries replace built-ins with the same id. The catalog is unchanged when
// any entry is invalid.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read theme catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse theme catalog %s: %w", path, err)
	}
	staged := NewCatalog()
	staged.themes = make(map[string]domain.Theme)
	for _, t := range f.Themes {
		if err := staged.Add(t); err != nil {
			return fmt.Errorf("theme catalog %s: %w", path, err)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range staged.themes {
		c.themes[id] = t
	}
	return nil
}
