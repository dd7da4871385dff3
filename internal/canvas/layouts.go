/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package canvas

import "goslidewriter/internal/domain"

// Object ids of the two template-derived text objects.
const (
	TitleID = "title"
	BodyID  = "body"
)

const defaultTextFill = "#ffffff"

// box is the template placement of one text object.
type box struct {
	x, y, w  float64
	fontSize float64
	align    Align
}

type template struct {
	title, body box
}

var templates = map[domain.Layout]template{
	domain.LayoutCenter: {
		title: box{x: 100, y: 170, w: 800, fontSize: 54, align: AlignCenter},
		body:  box{x: 150, y: 290, w: 700, fontSize: 24, align: AlignCenter},
	},
	domain.LayoutLeft: {
		title: box{x: 60, y: 120, w: 520, fontSize: 48, align: AlignLeft},
		body:  box{x: 60, y: 230, w: 520, fontSize: 22, align: AlignLeft},
	},
	domain.LayoutRight: {
		title: box{x: 420, y: 120, w: 520, fontSize: 48, align: AlignRight},
		body:  box{x: 420, y: 230, w: 520, fontSize: 22, align: AlignRight},
	},
	domain.LayoutTop: {
		title: box{x: 80, y: 40, w: 840, fontSize: 48, align: AlignCenter},
		body:  box{x: 120, y: 140, w: 760, fontSize: 22, align: AlignCenter},
	},
	domain.LayoutBottom: {
		title: box{x: 80, y: 330, w: 840, fontSize: 44, align: AlignLeft},
		body:  box{x: 80, y: 420, w: 840, fontSize: 20, align: AlignLeft},
	},
	domain.LayoutSplitLeft: {
		title: box{x: 50, y: 60, w: 430, fontSize: 44, align: AlignLeft},
		body:  box{x: 50, y: 180, w: 430, fontSize: 22, align: AlignLeft},
	},
	domain.LayoutSplitRight: {
		title: box{x: 520, y: 60, w: 430, fontSize: 44, align: AlignLeft},
		body:  box{x: 520, y: 180, w: 430, fontSize: 22, align: AlignLeft},
	},
	domain.LayoutDiagonal: {
		title: box{x: 60, y: 60, w: 560, fontSize: 52, align: AlignLeft},
		body:  box{x: 400, y: 320, w: 540, fontSize: 22, align: AlignRight},
	},
	domain.LayoutScattered: {
		title: box{x: 80, y: 80, w: 480, fontSize: 50, align: AlignLeft},
		body:  box{x: 520, y: 300, w: 420, fontSize: 22, align: AlignLeft},
	},
}

// DeriveObjects returns the template objects for a layout: exactly one title
// and one body text object, in that order. Unknown layouts use center.
func DeriveObjects(layout domain.Layout, title, body string) []Object {
	t, ok := templates[layout]
	if !ok {
		t = templates[domain.LayoutCenter]
	}
	return []Object{
		textObject(TitleID, domain.FieldTitle, title, t.title, true),
		textObject(BodyID, domain.FieldBody, body, t.body, false),
	}
}

func textObject(id string, f domain.Field, text string, b box, bold bool) Object {
	return Object{
		ID:         id,
		Kind:       KindText,
		X:          b.x,
		Y:          b.y,
		Width:      b.w,
		Text:       text,
		Fill:       defaultTextFill,
		FontSize:   b.fontSize,
		Bold:       bold,
		Align:      b.align,
		BoundField: f,
	}
}
