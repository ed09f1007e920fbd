/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package document holds the in-memory project model: a tree of named documents
// addressed by slash-separated paths.
package document

import (
	"fmt"
	"slices"
	"strings"

	"docuweave/internal/docpath"
)

// RootName is the name of the invisible node that owns the top-level documents.
const RootName = "root"

// Document is a single node of the project tree. A document owns its children
// exclusively; the parent link is a back-reference only.
//
// The parent path is never stored. It is derived from the parent chain, so it
// always matches the node's position after renames and moves.
type Document struct {
	name     string
	content  string
	parent   *Document
	children map[string]*Document
	root     bool
}

// New creates a detached document. The name is normalized but not validated;
// validation happens when the document is attached.
func New(name, content string) *Document {
	return &Document{
		name:     docpath.NormalizeName(name),
		content:  content,
		children: make(map[string]*Document),
	}
}

func newRoot() *Document {
	d := New(RootName, "")
	d.root = true
	return d
}

func (d *Document) Name() string    { return d.name }
func (d *Document) Content() string { return d.content }

// SetContent replaces the document's content.
func (d *Document) SetContent(content string) { d.content = content }

// Parent returns the owning document, or nil for the root and detached documents.
func (d *Document) Parent() *Document { return d.parent }

// IsRoot reports whether d is a project root.
func (d *Document) IsRoot() bool { return d.root }

// Path returns the full path of d. The root has the empty path.
func (d *Document) Path() docpath.Path {
	var names []string
	for n := d; n != nil && !n.root; n = n.parent {
		names = append(names, n.name)
	}
	slices.Reverse(names)
	return docpath.New(names...)
}

// FullPath is the string form of Path.
func (d *Document) FullPath() string { return d.Path().String() }

// ParentPath returns the full path of the parent, or "" at top level.
func (d *Document) ParentPath() string {
	if d.parent == nil {
		return ""
	}
	return d.parent.FullPath()
}

// Child looks up a direct child by name.
func (d *Document) Child(name string) (*Document, bool) {
	c, ok := d.children[docpath.NormalizeName(name)]
	return c, ok
}

// HasChildren reports whether d is a container document.
func (d *Document) HasChildren() bool { return len(d.children) > 0 }

// Children returns the direct children sorted by name.
func (d *Document) Children() []*Document {
	out := make([]*Document, 0, len(d.children))
	for _, c := range d.children {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *Document) int { return strings.Compare(a.name, b.name) })
	return out
}

// AddChild attaches child under its own name. An occupied name is rejected
// with ErrNameTaken; use ReplaceChild to overwrite deliberately.
func (d *Document) AddChild(child *Document) error {
	if err := d.checkAttachable(child); err != nil {
		return err
	}
	if _, exists := d.children[child.name]; exists {
		return fmt.Errorf("%w: %q", ErrNameTaken, child.name)
	}
	d.attach(child)
	return nil
}

// ReplaceChild attaches child, dropping any existing child of the same name
// together with its subtree. The replaced document is returned, if any.
func (d *Document) ReplaceChild(child *Document) (*Document, error) {
	if err := d.checkAttachable(child); err != nil {
		return nil, err
	}
	old := d.children[child.name]
	if old != nil {
		old.parent = nil
	}
	d.attach(child)
	return old, nil
}

func (d *Document) checkAttachable(child *Document) error {
	if child == nil || child.root {
		return ErrInvalidName
	}
	if err := docpath.ValidateName(child.name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	if child.parent != nil {
		return ErrAttached
	}
	for n := d; n != nil; n = n.parent {
		if n == child {
			return ErrInvalidMove
		}
	}
	return nil
}

func (d *Document) attach(child *Document) {
	child.parent = d
	d.children[child.name] = child
}

// RemoveChild detaches the named child and reports whether it existed.
func (d *Document) RemoveChild(name string) bool {
	name = docpath.NormalizeName(name)
	c, ok := d.children[name]
	if !ok {
		return false
	}
	delete(d.children, name)
	c.parent = nil
	return true
}

// RenameChild renames a direct child. It returns false when oldName is absent,
// newName is occupied (including newName == oldName) or newName is invalid.
func (d *Document) RenameChild(oldName, newName string) bool {
	oldName = docpath.NormalizeName(oldName)
	newName = docpath.NormalizeName(newName)
	c, ok := d.children[oldName]
	if !ok {
		return false
	}
	if _, taken := d.children[newName]; taken {
		return false
	}
	if docpath.ValidateName(newName) != nil {
		return false
	}
	delete(d.children, oldName)
	c.name = newName
	d.children[newName] = c
	return true
}

// walk visits d's descendants depth-first in name order.
func (d *Document) walk(fn func(*Document) error) error {
	for _, c := range d.Children() {
		if err := fn(c); err != nil {
			return err
		}
		if err := c.walk(fn); err != nil {
			return err
		}
	}
	return nil
}
