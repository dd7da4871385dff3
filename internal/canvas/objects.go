/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package canvas maps a slide's structured fields onto a list of freely
// editable drawable objects on a fixed logical canvas, and maps edits of
// those objects back onto the slide.
//
// Until the user edits a slide's canvas, its objects are derived from the
// layout template. The first geometry, style or text edit captures the list
// into Slide.CustomLayoutJSON and from then on that list is authoritative.
//
// EditSession, AddObject, RemoveObject and NewRect serve the UI shell that
// hosts the canvas. The editor session itself only derives, captures and
// moves objects.
package canvas

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"goslidewriter/internal/domain"
	applog "goslidewriter/internal/log"
)

// Logical canvas size (16:9). Renderers scale from these units.
const (
	Width  = 1000.0
	Height = 562.5
)

// Kind discriminates drawable objects.
type Kind string

const (
	KindText Kind = "text"
	KindRect Kind = "rect"
)

// Align is horizontal text alignment.
type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

// Object is one positioned, stylable drawable on a slide canvas.
// Height is nil for text objects that size to their content.
// ScaleX/ScaleY only carry an in-progress resize gesture; committed objects
// always have them unset.
type Object struct {
	ID         string       `json:"id"`
	Kind       Kind         `json:"kind"`
	X          float64      `json:"x"`
	Y          float64      `json:"y"`
	Width      float64      `json:"width"`
	Height     *float64     `json:"height,omitempty"`
	ScaleX     float64      `json:"scaleX,omitempty"`
	ScaleY     float64      `json:"scaleY,omitempty"`
	Text       string       `json:"text,omitempty"`
	Fill       string       `json:"fill,omitempty"`
	FontSize   float64      `json:"fontSize,omitempty"`
	Bold       bool         `json:"bold,omitempty"`
	Italic     bool         `json:"italic,omitempty"`
	Underline  bool         `json:"underline,omitempty"`
	Align      Align        `json:"align,omitempty"`
	BoundField domain.Field `json:"boundField,omitempty"`
}

// Clone copies o including its optional height.
func (o Object) Clone() Object {
	if o.Height != nil {
		h := *o.Height
		o.Height = &h
	}
	return o
}

func cloneAll(objs []Object) []Object {
	out := make([]Object, len(objs))
	for i, o := range objs {
		out[i] = o.Clone()
	}
	return out
}

// Validate checks the per-slide invariants: unique ids and at most one
// object per bound field.
func Validate(objs []Object) error {
	ids := make(map[string]bool, len(objs))
	bound := make(map[domain.Field]string, 2)
	for _, o := range objs {
		if strings.TrimSpace(o.ID) == "" {
			return fmt.Errorf("%w: object without id", domain.ErrInvalidObjectSet)
		}
		if ids[o.ID] {
			return fmt.Errorf("%w: duplicate id %q", domain.ErrInvalidObjectSet, o.ID)
		}
		ids[o.ID] = true
		if o.Kind != KindText && o.Kind != KindRect {
			return fmt.Errorf("%w: object %q has unknown kind %q", domain.ErrInvalidObjectSet, o.ID, o.Kind)
		}
		if o.BoundField == "" {
			continue
		}
		if o.Kind != KindText {
			return fmt.Errorf("%w: %s object %q cannot bind %q", domain.ErrInvalidObjectSet, o.Kind, o.ID, o.BoundField)
		}
		if prev, dup := bound[o.BoundField]; dup {
			return fmt.Errorf("%w: %q bound by both %q and %q", domain.ErrInvalidObjectSet, o.BoundField, prev, o.ID)
		}
		bound[o.BoundField] = o.ID
	}
	return nil
}

// Serialize encodes objects in the form stored in Slide.CustomLayoutJSON.
func Serialize(objs []Object) (string, error) {
	if objs == nil {
		objs = []Object{}
	}
	b, err := json.Marshal(objs)
	if err != nil {
		return "", fmt.Errorf("marshal canvas objects: %w", err)
	}
	return string(b), nil
}

// LoadObjects parses a captured object list. Parse or validation failures
// are logged and recovered by deriving from the template; callers never see
// an error.
func LoadObjects(customLayoutJSON string, layout domain.Layout, title, body string) []Object {
	raw := strings.TrimSpace(customLayoutJSON)
	if raw == "" {
		return DeriveObjects(layout, title, body)
	}
	var objs []Object
	err := json.Unmarshal([]byte(raw), &objs)
	if err == nil && objs == nil {
		err = fmt.Errorf("%w: null object list", domain.ErrInvalidObjectSet)
	}
	if err == nil {
		err = Validate(objs)
	}
	if err != nil {
		applog.WithOperation(applog.WithComponent("canvas"), "load").Warn("custom layout unreadable, deriving from template",
			slog.String("layout", string(layout)), slog.Any("err", err))
		return DeriveObjects(layout, title, body)
	}
	return objs
}

// ObjectsForSlide returns the current object list of s.
func ObjectsForSlide(s domain.Slide) []Object {
	return LoadObjects(s.CustomLayoutJSON, s.Layout, s.Title, s.Body)
}

// ApplyFieldEdit sets the text of the object bound to field. Without such an
// object the list is returned unchanged.
func ApplyFieldEdit(objs []Object, field domain.Field, text string) []Object {
	out := cloneAll(objs)
	for i := range out {
		if out[i].BoundField == field {
			out[i].Text = text
			break
		}
	}
	return out
}

// UpdateObjectText sets the text of the object with the given id.
func UpdateObjectText(objs []Object, id, text string) []Object {
	out := cloneAll(objs)
	for i := range out {
		if out[i].ID == id && out[i].Kind == KindText {
			out[i].Text = text
			break
		}
	}
	return out
}

// BoundFieldEdits returns the text of every bound object keyed by field.
func BoundFieldEdits(objs []Object) map[domain.Field]string {
	out := make(map[domain.Field]string, 2)
	for _, o := range objs {
		if o.BoundField != "" {
			out[o.BoundField] = o.Text
		}
	}
	return out
}

// Geometry is a committed position/size change for one object.
// A drag carries only X/Y (Width 0 keeps the width). A transform additionally
// carries the gesture's scale factors, which are folded into Width/Height.
type Geometry struct {
	X, Y   float64
	Width  float64
	Height *float64
	ScaleX float64
	ScaleY float64
}

// IsTransform reports whether g carries a resize gesture.
func (g Geometry) IsTransform() bool {
	return (g.ScaleX != 0 && g.ScaleX != 1) || (g.ScaleY != 0 && g.ScaleY != 1)
}

// CommitGeometryChange applies g to the object with the given id. Scale
// factors are multiplied into the base size and reset, so repeated resizes
// never compound a stale scale.
func CommitGeometryChange(objs []Object, id string, g Geometry) []Object {
	out := cloneAll(objs)
	for i := range out {
		o := &out[i]
		if o.ID != id {
			continue
		}
		o.X = round2(g.X)
		o.Y = round2(g.Y)
		w := o.Width
		if g.Width > 0 {
			w = g.Width
		}
		h := o.Height
		if g.Height != nil {
			hv := *g.Height
			h = &hv
		}
		if sx := g.ScaleX; sx != 0 {
			w *= math.Abs(sx)
		}
		if sy := g.ScaleY; sy != 0 && h != nil {
			hv := *h * math.Abs(sy)
			h = &hv
		}
		o.Width = round2(math.Max(w, 1))
		if h != nil {
			hv := round2(math.Max(*h, 1))
			h = &hv
		}
		o.Height = h
		o.ScaleX, o.ScaleY = 0, 0
		break
	}
	return out
}

// AddObject appends obj if it keeps the list valid.
func AddObject(objs []Object, obj Object) ([]Object, error) {
	out := append(cloneAll(objs), obj.Clone())
	if err := Validate(out); err != nil {
		return objs, err
	}
	return out, nil
}

// RemoveObject drops the object with the given id. Bound objects cannot be
// removed because the slide field they mirror would lose its projection.
func RemoveObject(objs []Object, id string) ([]Object, bool) {
	out := make([]Object, 0, len(objs))
	removed := false
	for _, o := range objs {
		if o.ID == id && o.BoundField == "" {
			removed = true
			continue
		}
		out = append(out, o.Clone())
	}
	return out, removed
}

// NewRect builds a filled rectangle annotation.
func NewRect(id string, x, y, w, h float64, fill string) Object {
	hv := h
	return Object{ID: id, Kind: KindRect, X: x, Y: y, Width: w, Height: &hv, Fill: fill}
}

// Capture records objs as the slide's authoritative canvas and writes bound
// texts back into the structured fields.
func Capture(s domain.Slide, objs []Object) (domain.Slide, error) {
	if err := Validate(objs); err != nil {
		return s, err
	}
	raw, err := Serialize(objs)
	if err != nil {
		return s, err
	}
	s.CustomLayoutJSON = raw
	for f, text := range BoundFieldEdits(objs) {
		s.SetField(f, text)
	}
	return s, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
