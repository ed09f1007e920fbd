/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package editor binds an editing surface to a project: it shows the current
// document on the surface and writes edits reported by the surface back into
// the tree.
package editor

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docuweave/internal/document"
	applog "docuweave/internal/log"
	"docuweave/internal/storage"
	"docuweave/internal/telemetry"
	"docuweave/internal/undo"
)

// History limits of a session.
var historyConfig = undo.Config{
	MaxBytes:       16 * 1024 * 1024,
	MaxPerDocument: 200,
	MinInterval:    time.Second,
}

// Renderer turns stored content into what the surface displays. Render must be
// free of side effects and idempotent.
type Renderer interface {
	Render(content string) (string, error)
}

// Surface is the widget that shows and edits a document. It receives the raw
// source for editing and its rendered form for display, and reports every
// edit through the callback registered with OnContentChanged.
type Surface interface {
	Display(source, rendered string)
	OnContentChanged(fn func(content string))
}

// ErrNoDocument is returned when there is no current document to edit.
var ErrNoDocument = errors.New("no current document")

// Session owns the open project and keeps the surface in sync with its current
// document. It must only be used from the UI goroutine.
type Session struct {
	project  *document.Project
	surface  Surface
	renderer Renderer
	dirty    bool
	history  *undo.Manager
	now      func() time.Time
	log      *slog.Logger
}

// NewSession binds s to p. A nil renderer displays content unchanged.
func NewSession(p *document.Project, s Surface, r Renderer) *Session {
	if p == nil {
		p = document.NewProject()
	}
	ss := &Session{
		project:  p,
		surface:  s,
		renderer: r,
		history:  undo.NewManager(historyConfig),
		now:      time.Now,
		log:      applog.WithComponent("editor"),
	}
	if s != nil {
		s.OnContentChanged(ss.contentChanged)
	}
	return ss
}

// Project returns the open project.
func (s *Session) Project() *document.Project { return s.project }

// Dirty reports whether edits were made since the last save or load.
func (s *Session) Dirty() bool { return s.dirty }

// Current returns the path of the document on the surface.
func (s *Session) Current() string { return s.project.CurrentDocument() }

// Open makes path the current document and shows it.
func (s *Session) Open(path string) error {
	if err := s.project.SetCurrentDocument(path); err != nil {
		return err
	}
	return s.Refresh()
}

// Refresh renders the current document again and shows it. With no current
// document the surface is cleared.
func (s *Session) Refresh() error {
	cur := s.project.CurrentDocument()
	content := ""
	if cur != "" {
		content, _ = s.project.Content(cur)
	}
	rendered := content
	if s.renderer != nil {
		out, err := s.renderer.Render(content)
		if err != nil {
			return fmt.Errorf("render %q: %w", cur, err)
		}
		rendered = out
	}
	if s.surface != nil {
		s.surface.Display(content, rendered)
	}
	return nil
}

// Edit replaces the content of the current document and records the previous
// content for Undo. Unchanged content does not mark the session dirty.
func (s *Session) Edit(content string) error {
	cur := s.project.CurrentDocument()
	if cur == "" {
		return ErrNoDocument
	}
	old, _ := s.project.Content(cur)
	if old == content {
		return nil
	}
	if err := s.project.UpdateContent(cur, content); err != nil {
		return err
	}
	s.history.PushSnapshot(undo.Snapshot{Doc: cur, Content: old, TS: s.now()})
	s.dirty = true
	return nil
}

// CanUndo reports whether the current document has an edit to undo.
func (s *Session) CanUndo() bool { return s.history.CanUndo(s.Current()) }

// CanRedo reports whether the current document has an undone edit to redo.
func (s *Session) CanRedo() bool { return s.history.CanRedo(s.Current()) }

// Undo restores the current document to its content before the last edit and
// shows it. It reports false when there is nothing to undo.
func (s *Session) Undo() (bool, error) {
	return s.step(s.history.Undo)
}

// Redo reapplies the last undone edit of the current document.
func (s *Session) Redo() (bool, error) {
	return s.step(s.history.Redo)
}

func (s *Session) step(pop func(doc, current string) (string, bool)) (bool, error) {
	cur := s.project.CurrentDocument()
	if cur == "" {
		return false, nil
	}
	content, _ := s.project.Content(cur)
	prev, ok := pop(cur, content)
	if !ok {
		return false, nil
	}
	if err := s.project.UpdateContent(cur, prev); err != nil {
		return false, err
	}
	s.dirty = true
	return true, s.Refresh()
}

func (s *Session) contentChanged(content string) {
	if err := s.Edit(content); err != nil {
		s.log.Warn("edit dropped", slog.String("doc", s.project.CurrentDocument()), slog.Any("err", err))
	}
}

// Create adds a document below parent and opens it. An empty name creates the
// next untitled document.
func (s *Session) Create(name, parent string) (string, error) {
	var (
		path string
		err  error
	)
	if name == "" {
		path, err = s.project.CreateUntitledDocument(parent)
	} else {
		path, err = s.project.CreateDocument(name, "", parent)
	}
	if err != nil {
		return "", err
	}
	s.dirty = true
	return path, s.Open(path)
}

// Rename renames or moves a document and refreshes the surface, whose content
// may have changed through link rewriting.
func (s *Session) Rename(oldPath, newPath string) error {
	if err := s.project.RenameDocument(oldPath, newPath); err != nil {
		return err
	}
	s.dirty = true
	// link rewriting touched other documents; their snapshots are stale
	s.history.Reset()
	telemetry.Event(telemetry.EventDocumentMoved, nil)
	return s.Refresh()
}

// Remove deletes a document with its subtree and shows the new current document.
func (s *Session) Remove(path string) error {
	if err := s.project.RemoveDocument(path); err != nil {
		return err
	}
	s.history.Drop(path)
	s.dirty = true
	return s.Refresh()
}

// ResolveAsset copies a local file into the project and returns the reference
// to embed in content. The project must have been saved once.
func (s *Session) ResolveAsset(localPath string) (string, error) {
	return storage.StageAsset(s.project, localPath)
}

// Save writes the project to manifestPath, or to its current location when
// manifestPath is empty.
func (s *Session) Save(manifestPath string) error {
	if manifestPath == "" {
		manifestPath = s.project.ProjectPath
	}
	if manifestPath == "" {
		return storage.ErrUnsaved
	}
	if err := storage.Save(s.project, manifestPath); err != nil {
		return err
	}
	s.dirty = false
	telemetry.ProjectSaved(s.project.Len())
	return nil
}

// Load replaces the open project with the one at manifestPath and shows its
// current document.
func (s *Session) Load(manifestPath string) error {
	p, err := storage.Load(manifestPath)
	if err != nil {
		return err
	}
	s.project = p
	s.dirty = false
	s.history.Reset()
	telemetry.ProjectOpened(p.Len())
	return s.Refresh()
}

// Replace swaps in p, such as a new project or one restored from a backup,
// and shows its current document. Restored projects are marked dirty until
// they are saved over the broken manifest.
func (s *Session) Replace(p *document.Project, dirty bool) error {
	if p == nil {
		p = document.NewProject()
	}
	s.project = p
	s.dirty = dirty
	s.history.Reset()
	return s.Refresh()
}

// Reload discards unsaved edits by loading the project from disk again.
func (s *Session) Reload() error {
	if s.project.ProjectPath == "" {
		return storage.ErrUnsaved
	}
	return s.Load(s.project.ProjectPath)
}
