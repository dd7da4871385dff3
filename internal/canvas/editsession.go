/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package canvas

// EditPolicy decides what happens to a pending text edit when another object
// enters edit mode.
type EditPolicy int

const (
	CommitOnSwitch EditPolicy = iota
	DiscardOnSwitch
)

// FinishedEdit describes an edit that left text-edit mode.
type FinishedEdit struct {
	ID        string
	Text      string
	Committed bool
}

// EditSession tracks the single object in text-edit mode on a canvas.
// Not safe for concurrent use; the owning editor serializes access.
type EditSession struct {
	policy  EditPolicy
	active  string
	draft   string
	editing bool
}

func NewEditSession(p EditPolicy) *EditSession { return &EditSession{policy: p} }

// Active returns the id of the object being edited.
func (e *EditSession) Active() (string, bool) { return e.active, e.editing }

// Draft returns the uncommitted text of the active edit.
func (e *EditSession) Draft() string { return e.draft }

// Begin puts the text object id into edit mode. Any previous edit is first
// committed into objs or discarded according to the policy, and returned.
// Non-text or unknown ids leave the session idle.
func (e *EditSession) Begin(objs []Object, id string) ([]Object, *FinishedEdit) {
	var prev *FinishedEdit
	if e.editing {
		if e.active == id {
			return objs, nil
		}
		if e.policy == CommitOnSwitch {
			objs, prev = e.End(objs)
		} else {
			prev = e.Cancel()
		}
	}
	for _, o := range objs {
		if o.ID == id && o.Kind == KindText {
			e.active, e.draft, e.editing = id, o.Text, true
			break
		}
	}
	return objs, prev
}

// SetDraft replaces the pending text of the active edit.
func (e *EditSession) SetDraft(text string) {
	if e.editing {
		e.draft = text
	}
}

// End commits the active edit into objs.
func (e *EditSession) End(objs []Object) ([]Object, *FinishedEdit) {
	if !e.editing {
		return objs, nil
	}
	fin := &FinishedEdit{ID: e.active, Text: e.draft, Committed: true}
	objs = UpdateObjectText(objs, e.active, e.draft)
	e.reset()
	return objs, fin
}

// Cancel drops the active edit.
func (e *EditSession) Cancel() *FinishedEdit {
	if !e.editing {
		return nil
	}
	fin := &FinishedEdit{ID: e.active, Text: e.draft}
	e.reset()
	return fin
}

func (e *EditSession) reset() {
	e.active, e.draft, e.editing = "", "", false
}
