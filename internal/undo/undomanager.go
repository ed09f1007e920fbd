/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package undo keeps per-document content history for the editor session.
package undo

import (
	"sync"
	"time"

	"docuweave/internal/docpath"
)

// Snapshot is the content a document had before an edit.
// Size is estimated as len(Content). TS is when the edit happened.
type Snapshot struct {
	Doc     string
	Content string
	TS      time.Time
}

// Config controls memory and depth caps and coalescing behavior.
type Config struct {
	// MaxBytes is a soft cap; older entries are pruned when exceeded.
	MaxBytes int
	// MaxPerDocument limits number of snapshots per document (0 means unlimited).
	MaxPerDocument int
	// MinInterval merges edits made within the interval of the previous one on
	// the same document into a single undo step.
	MinInterval time.Duration
}

// Manager provides in-memory undo/redo stacks per document path with
// performance safeguards. It is safe for concurrent use.
type Manager struct {
	cfg Config
	mu  sync.Mutex
	// per-document stacks
	undo map[string][]Snapshot
	redo map[string][]Snapshot
	// accounting of the undo stacks
	totalBytes int
}

func NewManager(cfg Config) *Manager {
	// Set conservative defaults if not provided
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 16 * 1024 * 1024 // 16 MiB
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 250 * time.Millisecond
	}
	return &Manager{cfg: cfg, undo: make(map[string][]Snapshot), redo: make(map[string][]Snapshot)}
}

// PushSnapshot records the content a document had before an edit. Within
// MinInterval of the last edit on the same document the earlier snapshot is
// kept and only its time advances, so a burst of typing undoes as one step.
// Any push clears the redo stack of the document.
func (m *Manager) PushSnapshot(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redo[s.Doc] = nil
	stack := m.undo[s.Doc]
	if n := len(stack); n > 0 && s.TS.Sub(stack[n-1].TS) < m.cfg.MinInterval {
		stack[n-1].TS = s.TS
		return
	}
	m.undo[s.Doc] = append(stack, s)
	m.totalBytes += len(s.Content)
	m.enforceCapsLocked(s.Doc)
}

// Undo pops the last snapshot of doc and returns its content. current is kept
// on the redo stack.
func (m *Manager) Undo(doc, current string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.undo[doc]
	if len(stack) == 0 {
		return "", false
	}
	s := stack[len(stack)-1]
	m.undo[doc] = stack[:len(stack)-1]
	m.totalBytes -= len(s.Content)
	m.redo[doc] = append(m.redo[doc], Snapshot{Doc: doc, Content: current})
	return s.Content, true
}

// Redo reverts the last Undo of doc. current goes back on the undo stack.
func (m *Manager) Redo(doc, current string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.redo[doc]
	if len(r) == 0 {
		return "", false
	}
	s := r[len(r)-1]
	m.redo[doc] = r[:len(r)-1]
	// zero TS: the next edit never merges into a redone step
	m.undo[doc] = append(m.undo[doc], Snapshot{Doc: doc, Content: current})
	m.totalBytes += len(current)
	m.enforceCapsLocked(doc)
	return s.Content, true
}

// CanUndo reports whether doc has an undo step.
func (m *Manager) CanUndo(doc string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo[doc]) > 0
}

// CanRedo reports whether doc has a redo step.
func (m *Manager) CanRedo(doc string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo[doc]) > 0
}

// Drop clears the stacks of path and every document below it.
func (m *Manager) Drop(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := docpath.Parse(path)
	for doc, stack := range m.undo {
		if docpath.Parse(doc).HasPrefix(prefix) {
			for _, s := range stack {
				m.totalBytes -= len(s.Content)
			}
			delete(m.undo, doc)
		}
	}
	for doc := range m.redo {
		if docpath.Parse(doc).HasPrefix(prefix) {
			delete(m.redo, doc)
		}
	}
	if m.totalBytes < 0 {
		m.totalBytes = 0
	}
}

// Reset forgets all history.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.undo = make(map[string][]Snapshot)
	m.redo = make(map[string][]Snapshot)
	m.totalBytes = 0
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (totalBytes int, docs int, totalSnapshots int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs = len(m.undo)
	for _, v := range m.undo {
		totalSnapshots += len(v)
	}
	return m.totalBytes, docs, totalSnapshots
}

func (m *Manager) enforceCapsLocked(doc string) {
	// Per-document depth cap
	if m.cfg.MaxPerDocument > 0 {
		stack := m.undo[doc]
		if len(stack) > m.cfg.MaxPerDocument {
			// drop the oldest extras
			toDrop := len(stack) - m.cfg.MaxPerDocument
			for i := 0; i < toDrop; i++ {
				m.totalBytes -= len(stack[i].Content)
			}
			m.undo[doc] = append([]Snapshot{}, stack[toDrop:]...)
		}
	}
	// Global memory cap: prune the oldest bottom entry across all documents
	for m.cfg.MaxBytes > 0 && m.totalBytes > m.cfg.MaxBytes {
		oldestDoc := ""
		found := false
		var oldestTS time.Time
		for d, stack := range m.undo {
			if len(stack) == 0 {
				continue
			}
			if !found || stack[0].TS.Before(oldestTS) {
				oldestDoc, oldestTS, found = d, stack[0].TS, true
			}
		}
		if !found {
			break
		}
		stack := m.undo[oldestDoc]
		m.totalBytes -= len(stack[0].Content)
		m.undo[oldestDoc] = stack[1:]
		if len(m.undo[oldestDoc]) == 0 {
			delete(m.undo, oldestDoc)
		}
	}
}
