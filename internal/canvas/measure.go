/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package canvas

import (
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// Text measurement uses the fixed 7x13 face scaled to the object's font
// size. It is deterministic and close enough for guides and hit boxes;
// renderers do their own shaping.

var measureFace = basicfont.Face7x13

const measureFaceHeight = 13.0

// textWidth returns the advance of s at fontSize in canvas units.
func textWidth(s string, fontSize float64) float64 {
	d := font.Drawer{Face: measureFace}
	return float64(d.MeasureString(s)) / 64 * fontSize / measureFaceHeight
}

// WrapLines breaks text into lines no wider than maxWidth, on spaces and
// explicit newlines. A word wider than maxWidth gets a line of its own.
// maxWidth <= 0 disables wrapping.
func WrapLines(text string, fontSize, maxWidth float64) []string {
	if fontSize <= 0 {
		fontSize = defaultFontSize
	}
	var out []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		cur := words[0]
		for _, w := range words[1:] {
			next := cur + " " + w
			if maxWidth > 0 && textWidth(next, fontSize) > maxWidth {
				out = append(out, cur)
				cur = w
				continue
			}
			cur = next
		}
		out = append(out, cur)
	}
	return out
}

// TextHeight is the laid out height of an auto-height text object.
func TextHeight(o Object) float64 {
	fs := o.FontSize
	if fs <= 0 {
		fs = defaultFontSize
	}
	return fs * lineHeight * float64(len(WrapLines(o.Text, fs, o.Width)))
}
