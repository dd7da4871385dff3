/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package canvas

import "math"

// Snapping aligns a dragged object with the other objects on the slide and
// with the canvas frame. It is deterministic and independent of any renderer.

// SnapOptions controls which alignments are considered.
type SnapOptions struct {
	// Threshold is the maximum distance in canvas units at which a drag snaps.
	Threshold float64
	Edges     bool
	Centers   bool
	// Frame adds the canvas borders and centre lines as anchors.
	Frame bool
}

// DefaultSnapOptions snaps edges and centres within 6 units, frame included.
func DefaultSnapOptions() SnapOptions {
	return SnapOptions{Threshold: 6, Edges: true, Centers: true, Frame: true}
}

// Guide is an alignment line to draw while dragging. Vertical guides sit at
// x = Pos and span From..To in y; horizontal guides the other way round.
type Guide struct {
	Vertical bool    `json:"vertical"`
	Kind     string  `json:"kind"` // "edge" or "center"
	Pos      float64 `json:"pos"`
	From     float64 `json:"from"`
	To       float64 `json:"to"`
}

type rect struct{ x, y, w, h float64 }

const (
	defaultFontSize = 24.0
	lineHeight      = 1.2
)

// bounds returns the box an object occupies. Auto-height text is measured
// after wrapping to the object width.
func bounds(o Object) rect {
	if o.Height != nil {
		return rect{x: o.X, y: o.Y, w: o.Width, h: *o.Height}
	}
	return rect{x: o.X, y: o.Y, w: o.Width, h: TextHeight(o)}
}

// axisMatch is the best alignment found on one axis so far.
type axisMatch struct {
	delta float64
	dist  float64
	guide Guide
	ok    bool
}

func (m *axisMatch) consider(delta, threshold float64, g Guide) {
	d := math.Abs(delta)
	if d > threshold || (m.ok && d >= m.dist) {
		return
	}
	*m = axisMatch{delta: delta, dist: d, guide: g, ok: true}
}

// Snap proposes the position (x, y) for object id and returns the position
// after alignment plus the guides that caused it. X and Y snap
// independently. An unknown id returns the position unchanged.
func Snap(objs []Object, id string, x, y float64, opts SnapOptions) (float64, float64, []Guide) {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultSnapOptions().Threshold
	}
	var moving rect
	found := false
	anchors := make([]rect, 0, len(objs)+1)
	for _, o := range objs {
		if o.ID == id {
			moving = bounds(o)
			found = true
			continue
		}
		anchors = append(anchors, bounds(o))
	}
	if !found {
		return x, y, nil
	}
	moving.x, moving.y = x, y
	if opts.Frame {
		anchors = append(anchors, rect{w: Width, h: Height})
	}

	var mx, my axisMatch
	for _, a := range anchors {
		if opts.Edges {
			for _, p := range [][2]float64{
				{moving.x, a.x}, {moving.x + moving.w, a.x + a.w},
				{moving.x, a.x + a.w}, {moving.x + moving.w, a.x},
			} {
				mx.consider(p[0]-p[1], opts.Threshold, verticalGuide(p[1], moving, a, "edge"))
			}
			for _, p := range [][2]float64{
				{moving.y, a.y}, {moving.y + moving.h, a.y + a.h},
				{moving.y, a.y + a.h}, {moving.y + moving.h, a.y},
			} {
				my.consider(p[0]-p[1], opts.Threshold, horizontalGuide(p[1], moving, a, "edge"))
			}
		}
		if opts.Centers {
			acx, acy := a.x+a.w/2, a.y+a.h/2
			mx.consider(moving.x+moving.w/2-acx, opts.Threshold, verticalGuide(acx, moving, a, "center"))
			my.consider(moving.y+moving.h/2-acy, opts.Threshold, horizontalGuide(acy, moving, a, "center"))
		}
	}

	var guides []Guide
	if mx.ok {
		x = round2(x - mx.delta)
		guides = append(guides, mx.guide)
	}
	if my.ok {
		y = round2(y - my.delta)
		guides = append(guides, my.guide)
	}
	return x, y, guides
}

func verticalGuide(x float64, a, b rect, kind string) Guide {
	return Guide{
		Vertical: true,
		Kind:     kind,
		Pos:      round2(x),
		From:     math.Min(a.y, b.y),
		To:       math.Max(a.y+a.h, b.y+b.h),
	}
}

func horizontalGuide(y float64, a, b rect, kind string) Guide {
	return Guide{
		Kind: kind,
		Pos:  round2(y),
		From: math.Min(a.x, b.x),
		To:   math.Max(a.x+a.w, b.x+b.w),
	}
}
