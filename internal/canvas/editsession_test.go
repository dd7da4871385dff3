/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package canvas

import (
	"testing"

	"goslidewriter/internal/domain"
)

func TestEditSession_CommitOnSwitch(t *testing.T) {
	objs := DeriveObjects(domain.LayoutCenter, "T", "B")
	e := NewEditSession(CommitOnSwitch)

	objs, prev := e.Begin(objs, TitleID)
	if prev != nil {
		t.Fatalf("unexpected previous edit: %+v", prev)
	}
	e.SetDraft("T2")
	objs, prev = e.Begin(objs, BodyID)
	if prev == nil || !prev.Committed || prev.ID != TitleID || prev.Text != "T2" {
		t.Fatalf("expected committed title edit, got %+v", prev)
	}
	if objs[0].Text != "T2" {
		t.Fatalf("title not committed: %q", objs[0].Text)
	}
	if id, ok := e.Active(); !ok || id != BodyID {
		t.Fatalf("expected body active, got %q %v", id, ok)
	}
	if e.Draft() != "B" {
		t.Fatalf("draft should start from object text, got %q", e.Draft())
	}
}

func TestEditSession_DiscardOnSwitch(t *testing.T) {
	objs := DeriveObjects(domain.LayoutCenter, "T", "B")
	e := NewEditSession(DiscardOnSwitch)
	objs, _ = e.Begin(objs, TitleID)
	e.SetDraft("lost")
	objs, prev := e.Begin(objs, BodyID)
	if prev == nil || prev.Committed {
		t.Fatalf("expected discarded edit, got %+v", prev)
	}
	if objs[0].Text != "T" {
		t.Fatalf("discarded edit leaked into objects: %q", objs[0].Text)
	}
}

func TestEditSession_IgnoresRectsAndEndWithoutEdit(t *testing.T) {
	objs, _ := AddObject(DeriveObjects(domain.LayoutCenter, "T", "B"), NewRect("r", 0, 0, 5, 5, ""))
	e := NewEditSession(CommitOnSwitch)
	objs, _ = e.Begin(objs, "r")
	if _, ok := e.Active(); ok {
		t.Fatalf("rect must not enter text edit mode")
	}
	e.SetDraft("ignored")
	if _, fin := e.End(objs); fin != nil {
		t.Fatalf("End without active edit returned %+v", fin)
	}
	if e.Cancel() != nil {
		t.Fatalf("Cancel without active edit returned non-nil")
	}
}

func TestEditSession_BeginSameObjectKeepsDraft(t *testing.T) {
	objs := DeriveObjects(domain.LayoutCenter, "T", "B")
	e := NewEditSession(CommitOnSwitch)
	objs, _ = e.Begin(objs, TitleID)
	e.SetDraft("typing")
	_, prev := e.Begin(objs, TitleID)
	if prev != nil || e.Draft() != "typing" {
		t.Fatalf("re-entering same object should keep draft, prev=%+v draft=%q", prev, e.Draft())
	}
}
