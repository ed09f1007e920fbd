/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package undo

import (
	"testing"
	"time"
)

func TestUndoRedoBasic(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1024 * 1024, MaxPerDocument: 10, MinInterval: 10 * time.Millisecond})
	doc := "Guide"
	t0 := time.Now()
	m.PushSnapshot(Snapshot{Doc: doc, Content: "a", TS: t0})
	m.PushSnapshot(Snapshot{Doc: doc, Content: "ab", TS: t0.Add(20 * time.Millisecond)})
	if _, docs, total := m.Stats(); docs != 1 || total != 2 {
		t.Fatalf("expected 1 doc and 2 snapshots, got docs=%d total=%d", docs, total)
	}
	got, ok := m.Undo(doc, "abc")
	if !ok || got != "ab" {
		t.Fatalf("undo expected 'ab', got ok=%v content=%q", ok, got)
	}
	got, ok = m.Undo(doc, "ab")
	if !ok || got != "a" {
		t.Fatalf("second undo expected 'a', got ok=%v content=%q", ok, got)
	}
	if _, ok := m.Undo(doc, "a"); ok {
		t.Fatalf("undo past the first snapshot must fail")
	}
	got, ok = m.Redo(doc, "a")
	if !ok || got != "ab" {
		t.Fatalf("redo expected 'ab', got ok=%v content=%q", ok, got)
	}
	got, ok = m.Redo(doc, "ab")
	if !ok || got != "abc" {
		t.Fatalf("redo expected 'abc', got ok=%v content=%q", ok, got)
	}
	if m.CanRedo(doc) {
		t.Fatalf("redo stack should be empty")
	}
}

func TestCoalesceKeepsStateBeforeBurst(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1024 * 1024, MaxPerDocument: 10, MinInterval: 50 * time.Millisecond})
	doc := "Notes"
	t0 := time.Now()
	m.PushSnapshot(Snapshot{Doc: doc, Content: "", TS: t0})
	m.PushSnapshot(Snapshot{Doc: doc, Content: "h", TS: t0.Add(30 * time.Millisecond)})  // coalesce
	m.PushSnapshot(Snapshot{Doc: doc, Content: "hi", TS: t0.Add(60 * time.Millisecond)}) // still within the burst
	_, _, total := m.Stats()
	if total != 1 {
		t.Fatalf("expected coalesced to 1 snapshot, got %d", total)
	}
	got, ok := m.Undo(doc, "hi!")
	if !ok || got != "" {
		t.Fatalf("expected state before the burst, got ok=%v content=%q", ok, got)
	}
}

func TestPushClearsRedo(t *testing.T) {
	m := NewManager(Config{MinInterval: time.Millisecond})
	t0 := time.Now()
	m.PushSnapshot(Snapshot{Doc: "a", Content: "1", TS: t0})
	_, _ = m.Undo("a", "2")
	if !m.CanRedo("a") {
		t.Fatalf("expected a redo step")
	}
	m.PushSnapshot(Snapshot{Doc: "a", Content: "1", TS: t0.Add(time.Second)})
	if m.CanRedo("a") {
		t.Fatalf("a new edit must clear redo")
	}
}

func TestCaps(t *testing.T) {
	m := NewManager(Config{MaxBytes: 20, MaxPerDocument: 2, MinInterval: 1 * time.Millisecond})
	doc := "Long"
	t0 := time.Now()
	for i := 0; i < 10; i++ {
		m.PushSnapshot(Snapshot{Doc: doc, Content: "xxxxx", TS: t0.Add(time.Duration(i) * time.Second)})
	}
	_, _, total := m.Stats()
	if total > 2 {
		t.Fatalf("expected MaxPerDocument cap to limit to 2, got %d", total)
	}
}
