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

// Record is the serialized, tree-shaped form of a document and its subtree.
// ParentPath is written for readers of the manifest but ignored on load; the
// position in the tree is the only source of truth.
type Record struct {
	Name       string             `json:"name"`
	Content    string             `json:"content"`
	ParentPath string             `json:"parent_path"`
	Children   map[string]*Record `json:"children"`
}

// Record serializes d and all of its descendants.
func (d *Document) Record() *Record {
	rec := &Record{
		Name:       d.name,
		Content:    d.content,
		ParentPath: d.ParentPath(),
		Children:   make(map[string]*Record, len(d.children)),
	}
	for name, c := range d.children {
		rec.Children[name] = c.Record()
	}
	return rec
}

// FromRecord rebuilds a detached document tree from rec. Children are keyed by
// their map key, which is what addresses them; the stored parent path is not used.
func FromRecord(rec *Record) (*Document, error) {
	if rec == nil {
		return nil, errors.New("nil document record")
	}
	d := New(rec.Name, rec.Content)
	if err := fillChildren(d, rec); err != nil {
		return nil, err
	}
	return d, nil
}

func fillChildren(d *Document, rec *Record) error {
	for key, crec := range rec.Children {
		if crec == nil {
			continue
		}
		if err := docpath.ValidateName(key); err != nil {
			return fmt.Errorf("%w: child %q of %q: %v", ErrInvalidName, key, d.FullPath(), err)
		}
		child := New(key, crec.Content)
		if err := d.AddChild(child); err != nil {
			return fmt.Errorf("restore %q: %w", key, err)
		}
		if err := fillChildren(child, crec); err != nil {
			return err
		}
	}
	return nil
}
