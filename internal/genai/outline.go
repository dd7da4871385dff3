/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package genai

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	gojsonschema "github.com/xeipuuv/gojsonschema"

	"goslidewriter/internal/domain"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// ErrMalformedOutline is returned when the model output is not a valid
// outline or slide.
var ErrMalformedOutline = errors.New("malformed outline")

var (
	schemaOnce    sync.Once
	outlineSchema *gojsonschema.Schema
	slideSchema   *gojsonschema.Schema
	schemaErr     error
)

func loadSchemas() error {
	schemaOnce.Do(func() {
		compile := func(name string) (*gojsonschema.Schema, error) {
			b, err := schemaFS.ReadFile("schemas/" + name)
			if err != nil {
				return nil, err
			}
			return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(b))
		}
		if outlineSchema, schemaErr = compile("outline.json"); schemaErr != nil {
			return
		}
		slideSchema, schemaErr = compile("slide.json")
	})
	return schemaErr
}

// ParseOutline parses the accumulated outline text. Markdown code fences
// around the JSON are tolerated.
func ParseOutline(text string) ([]domain.SlideDraft, error) {
	raw := []byte(stripFences(text))
	if err := validate(raw, func() *gojsonschema.Schema { return outlineSchema }); err != nil {
		return nil, err
	}
	var drafts []domain.SlideDraft
	if err := json.Unmarshal(raw, &drafts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutline, err)
	}
	return drafts, nil
}

// ParseSlide parses a single slide proposal.
func ParseSlide(raw []byte) (domain.SlideDraft, error) {
	raw = []byte(stripFences(string(raw)))
	if err := validate(raw, func() *gojsonschema.Schema { return slideSchema }); err != nil {
		return domain.SlideDraft{}, err
	}
	var d domain.SlideDraft
	if err := json.Unmarshal(raw, &d); err != nil {
		return domain.SlideDraft{}, fmt.Errorf("%w: %v", ErrMalformedOutline, err)
	}
	return d, nil
}

func validate(raw []byte, schema func() *gojsonschema.Schema) error {
	if err := loadSchemas(); err != nil {
		return fmt.Errorf("load outline schemas: %w", err)
	}
	if !json.Valid(raw) {
		return fmt.Errorf("%w: not JSON", ErrMalformedOutline)
	}
	result, err := schema().Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutline, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrMalformedOutline, strings.Join(msgs, "; "))
	}
	return nil
}

// stripFences removes a surrounding ```json ... ``` block if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
