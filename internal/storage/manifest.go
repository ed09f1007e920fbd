/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gojsonschema "github.com/xeipuuv/gojsonschema"

	"docuweave/internal/document"
)

//go:embed manifest.schema.json
var manifestSchema []byte

// ErrCorruptManifest wraps every failure to parse or validate a manifest.
var ErrCorruptManifest = errors.New("corrupt project manifest")

// Manifest is the on-disk JSON description of a project.
//
// Current manifests carry DocumentStructure. Legacy manifests instead list
// Folders and Documents as flat path -> content file maps; the oldest ones
// name the open document in CurrentFile.
type Manifest struct {
	Name              string            `json:"name"`
	Documents         map[string]string `json:"documents"`
	CurrentDocument   *string           `json:"currentDocument"`
	DocumentStructure *document.Record  `json:"documentStructure,omitempty"`

	Folders     map[string]string `json:"folders,omitempty"`
	CurrentFile *string           `json:"current_file,omitempty"`
}

// IsLegacy reports whether the manifest predates the document tree format.
func (m *Manifest) IsLegacy() bool { return m.DocumentStructure == nil }

func (m *Manifest) current() string {
	if m.CurrentDocument != nil {
		return *m.CurrentDocument
	}
	if m.CurrentFile != nil {
		return *m.CurrentFile
	}
	return ""
}

// DecodeManifest validates data against the manifest schema and decodes it.
func DecodeManifest(data []byte) (*Manifest, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(manifestSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptManifest, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrCorruptManifest, strings.Join(msgs, "; "))
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptManifest, err)
	}
	return &m, nil
}

func encodeManifest(m *Manifest) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return append(data, '\n'), nil
}
