/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package document

import (
	"errors"
	"fmt"

	"docuweave/internal/docpath"
)

// DefaultProjectName is used for projects that were never named.
const DefaultProjectName = "Untitled Project"

// UntitledPrefix is the name stem of documents created by CreateUntitledDocument.
const UntitledPrefix = "Untitled"

// Project owns a document tree and the editing metadata around it.
// It is not safe for concurrent use; the shell drives it from a single thread.
type Project struct {
	// Name is the display name.
	Name string
	// ProjectPath is the manifest location; empty until the first save.
	ProjectPath string

	root    *Document
	current docpath.Path
}

// NewProject returns an empty project.
func NewProject() *Project {
	return &Project{Name: DefaultProjectName, root: newRoot()}
}

// Root returns the invisible root document.
func (p *Project) Root() *Document { return p.root }

// CurrentDocument returns the path of the document open for editing, or "".
func (p *Project) CurrentDocument() string { return p.current.String() }

// SetCurrentDocument selects the document open for editing. An empty path clears
// the selection.
func (p *Project) SetCurrentDocument(path string) error {
	target := docpath.Parse(path)
	if target.IsRoot() {
		p.current = docpath.Root
		return nil
	}
	if _, ok := p.lookup(target); !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, target)
	}
	p.current = target
	return nil
}

// DocumentByPath resolves path from the root. The empty path resolves to the root.
func (p *Project) DocumentByPath(path string) (*Document, bool) {
	return p.lookup(docpath.Parse(path))
}

func (p *Project) lookup(path docpath.Path) (*Document, bool) {
	cur := p.root
	for _, seg := range path.Segments() {
		next, ok := cur.children[seg]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Content returns the content stored at path.
func (p *Project) Content(path string) (string, bool) {
	d, ok := p.DocumentByPath(path)
	if !ok || d.root {
		return "", false
	}
	return d.content, true
}

// UpdateContent replaces the content at path.
func (p *Project) UpdateContent(path, content string) error {
	d, ok := p.DocumentByPath(path)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, path)
	}
	if d.root {
		return ErrRootPath
	}
	d.content = content
	return nil
}

// HasChildren reports whether the document at path is a container document.
func (p *Project) HasChildren(path string) bool {
	d, ok := p.DocumentByPath(path)
	return ok && d.HasChildren()
}

// EnsureDocumentPath returns the document at path, creating every missing
// document along the way with empty content.
func (p *Project) EnsureDocumentPath(path string) (*Document, error) {
	return p.ensure(docpath.Parse(path))
}

func (p *Project) ensure(path docpath.Path) (*Document, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	cur := p.root
	for _, seg := range path.Segments() {
		next, ok := cur.children[seg]
		if !ok {
			next = New(seg, "")
			cur.attach(next)
		}
		cur = next
	}
	return cur, nil
}

func validatePath(path docpath.Path) error {
	for _, seg := range path.Segments() {
		if err := docpath.ValidateName(seg); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidName, seg, err)
		}
	}
	return nil
}

// CreateDocument adds a document called name under parentPath, creating the
// parent chain if needed, and returns the new document's full path. The first
// document created in a project without a current document becomes current.
func (p *Project) CreateDocument(name, content, parentPath string) (string, error) {
	if err := docpath.ValidateName(name); err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidName, name, err)
	}
	parent, err := p.EnsureDocumentPath(parentPath)
	if err != nil {
		return "", err
	}
	d := New(name, content)
	if err := parent.AddChild(d); err != nil {
		return "", err
	}
	if p.current.IsRoot() {
		p.current = d.Path()
	}
	return d.FullPath(), nil
}

// CreateUntitledDocument creates an empty document named "Untitled n" under
// parentPath, using the lowest n >= 1 not taken by a direct child.
func (p *Project) CreateUntitledDocument(parentPath string) (string, error) {
	parent, err := p.EnsureDocumentPath(parentPath)
	if err != nil {
		return "", err
	}
	n := 1
	for {
		if _, taken := parent.children[untitledName(n)]; !taken {
			break
		}
		n++
	}
	return p.CreateDocument(untitledName(n), "", parent.FullPath())
}

func untitledName(n int) string { return fmt.Sprintf("%s %d", UntitledPrefix, n) }

// RemoveDocument deletes the document at path and its whole subtree. When the
// current document was inside the removed subtree, a replacement is chosen: a
// remaining sibling, else the parent, else the first document of the tree.
func (p *Project) RemoveDocument(path string) error {
	target := docpath.Parse(path)
	if target.IsRoot() {
		return ErrRootPath
	}
	parent, ok := p.lookup(target.Parent())
	if !ok || !parent.RemoveChild(target.Base()) {
		return fmt.Errorf("%w: %q", ErrNotFound, target)
	}
	if p.current.IsRoot() || !p.current.HasPrefix(target) {
		return nil
	}
	switch {
	case parent.HasChildren():
		p.current = parent.Children()[0].Path()
	case !target.Parent().IsRoot():
		p.current = target.Parent()
	default:
		p.current = docpath.Root
		if first := p.FirstDocument(); first != nil {
			p.current = first.Path()
		}
	}
	return nil
}

// FirstDocument returns the first document in depth-first name order, or nil
// for an empty project.
func (p *Project) FirstDocument() *Document {
	var first *Document
	_ = p.root.walk(func(d *Document) error {
		first = d
		return errStopWalk
	})
	return first
}

var errStopWalk = errors.New("stop walk")

// RenameDocument renames or moves the document at oldPath to newPath, keeping
// its content and subtree. The current document and every internal link that
// points into the moved subtree are rewritten to the new location.
//
// Nothing is mutated when an error is returned. newPath equal to oldPath is
// reported as ErrNameTaken since the target is occupied by the document itself.
func (p *Project) RenameDocument(oldPath, newPath string) error {
	from, to := docpath.Parse(oldPath), docpath.Parse(newPath)
	if from.IsRoot() || to.IsRoot() {
		return ErrRootPath
	}
	node, ok := p.lookup(from)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, from)
	}
	if err := validatePath(to); err != nil {
		return err
	}
	if to.HasPrefix(from) {
		if to.Equal(from) {
			return fmt.Errorf("%w: %q", ErrNameTaken, to)
		}
		return fmt.Errorf("%w: %q into %q", ErrInvalidMove, from, to)
	}

	if from.Parent().Equal(to.Parent()) {
		if !node.parent.RenameChild(from.Base(), to.Base()) {
			return fmt.Errorf("%w: %q", ErrNameTaken, to)
		}
	} else {
		oldParent := node.parent
		if oldParent == nil || oldParent.children[from.Base()] != node {
			return fmt.Errorf("%w: %q missing from its parent", ErrNotFound, from)
		}
		if existing, ok := p.lookup(to); ok && existing != nil {
			return fmt.Errorf("%w: %q", ErrNameTaken, to)
		}
		newParent, err := p.ensure(to.Parent())
		if err != nil {
			return err
		}
		oldParent.RemoveChild(from.Base())
		node.name = to.Base()
		newParent.attach(node)
	}

	if moved, ok := p.current.Rebase(from, to); ok {
		p.current = moved
	}
	p.UpdateDocumentLinks(from.String(), to.String())
	return nil
}

// UpdateDocumentLinks rewrites internal links to oldPath (or anything below it)
// in every document of the project.
func (p *Project) UpdateDocumentLinks(oldPath, newPath string) {
	_ = p.root.walk(func(d *Document) error {
		d.content = RewriteLinks(d.content, oldPath, newPath)
		return nil
	})
}

// Walk calls fn for every document except the root, depth-first with siblings
// in name order. Returning an error from fn stops the walk.
func (p *Project) Walk(fn func(path string, d *Document) error) error {
	return p.root.walk(func(d *Document) error { return fn(d.FullPath(), d) })
}

// AllDocuments flattens the tree into path -> content.
func (p *Project) AllDocuments() map[string]string {
	out := make(map[string]string)
	_ = p.Walk(func(path string, d *Document) error {
		out[path] = d.content
		return nil
	})
	return out
}

// Len returns the number of documents, excluding the root.
func (p *Project) Len() int {
	n := 0
	_ = p.root.walk(func(*Document) error { n++; return nil })
	return n
}

// Structure serializes the whole tree starting at the root.
func (p *Project) Structure() *Record { return p.root.Record() }

// Restore replaces the tree with the one described by rec, which must be a
// root record. The current document is kept if it still resolves.
func (p *Project) Restore(rec *Record) error {
	if rec == nil {
		return errors.New("nil structure record")
	}
	root := newRoot()
	root.content = rec.Content
	if err := fillChildren(root, rec); err != nil {
		return err
	}
	p.root = root
	if _, ok := p.lookup(p.current); !ok {
		p.current = docpath.Root
	}
	return nil
}

// Clone returns a deep copy of p for work that runs off the UI goroutine.
func (p *Project) Clone() *Project {
	c := &Project{Name: p.Name, ProjectPath: p.ProjectPath, root: newRoot(), current: p.current}
	if err := c.Restore(p.Structure()); err != nil {
		// a tree built through Project always round-trips
		panic(err)
	}
	return c
}

// EnsureCurrentDocument picks the first document as current when none is set or
// the stored one no longer resolves.
func (p *Project) EnsureCurrentDocument() {
	if !p.current.IsRoot() {
		if _, ok := p.lookup(p.current); ok {
			return
		}
	}
	p.current = docpath.Root
	if first := p.FirstDocument(); first != nil {
		p.current = first.Path()
	}
}
