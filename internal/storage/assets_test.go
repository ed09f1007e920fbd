/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"docuweave/internal/document"
)

func TestStageAsset(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(src, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := document.NewProject()
	if _, err := StageAsset(p, src); !errors.Is(err, ErrUnsaved) {
		t.Fatalf("unsaved project: err = %v", err)
	}
	manifest := filepath.Join(dir, "book.dwproj")
	if err := Save(p, manifest); err != nil {
		t.Fatalf("Save: %v", err)
	}
	ref, err := StageAsset(p, src)
	if err != nil {
		t.Fatalf("StageAsset: %v", err)
	}
	if ref != "images/photo.png" {
		t.Fatalf("ref = %q", ref)
	}
	ref2, err := StageAsset(p, src)
	if err != nil {
		t.Fatalf("StageAsset again: %v", err)
	}
	if ref2 != "images/photo-1.png" {
		t.Fatalf("second ref = %q", ref2)
	}
	full, err := ResolveAsset(p, ref2)
	if err != nil {
		t.Fatalf("ResolveAsset: %v", err)
	}
	if b, err := os.ReadFile(full); err != nil || string(b) != "png" {
		t.Fatalf("staged file = %q, %v", b, err)
	}

	// staged assets survive a save
	if err := Save(p, manifest); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(full); err != nil {
		t.Fatalf("asset removed by save: %v", err)
	}
}

func TestResolveAsset(t *testing.T) {
	p := document.NewProject()
	p.ProjectPath = filepath.Join(t.TempDir(), "book.dwproj")
	if got, _ := ResolveAsset(p, "https://example.com/a.png"); got != "https://example.com/a.png" {
		t.Fatalf("URL changed: %q", got)
	}
	if _, err := ResolveAsset(p, "../../etc/passwd"); err == nil {
		t.Fatalf("expected escaping reference to be rejected")
	}
	got, err := ResolveAsset(p, "images/a.png")
	if err != nil {
		t.Fatalf("ResolveAsset: %v", err)
	}
	if want := filepath.Join(ProjectDir(p.ProjectPath), "images", "a.png"); got != want {
		t.Fatalf("ResolveAsset = %q, want %q", got, want)
	}
}
