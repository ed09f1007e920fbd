/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package crash

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docuweave/internal/document"
	"docuweave/internal/storage"
)

// TestRecover_PanickingGoroutine ensures Recover handles a panic, writes a report,
// autosaves the project, and does not terminate the test process due to injected exitFn.
func TestRecover_PanickingGoroutine(t *testing.T) {
	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w
	defer func() {
		_ = w.Close()
		os.Stderr = oldStderr
		_, _ = io.Copy(io.Discard, r)
	}()

	called := 0
	oldExit := exitFn
	exitFn = func(code int) { called = code }
	defer func() { exitFn = oldExit }()

	root := t.TempDir()
	p := document.NewProject()
	p.ProjectPath = filepath.Join(root, "book.dwproj")
	if _, err := p.CreateDocument("Draft", "unsaved words", ""); err != nil {
		t.Fatal(err)
	}

	func() {
		defer Recover(p)
		panic("boom")
	}()

	state := storage.StateDir(storage.ProjectDir(p.ProjectPath))
	files, _ := os.ReadDir(state)
	var report, snapshot string
	for _, f := range files {
		switch {
		case strings.HasPrefix(f.Name(), "crash-") && strings.HasSuffix(f.Name(), ".log"):
			report = filepath.Join(state, f.Name())
		case strings.HasPrefix(f.Name(), "crash-") && strings.HasSuffix(f.Name(), storage.ManifestExt):
			snapshot = filepath.Join(state, f.Name())
		}
	}
	if report == "" {
		t.Fatalf("expected crash report file under %s", state)
	}
	b, err := os.ReadFile(report)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !bytes.Contains(b, []byte("Panic: boom")) {
		t.Fatalf("report does not contain panic: %s", string(b))
	}
	if snapshot == "" {
		t.Fatalf("expected crash snapshot under %s", state)
	}
	restored, err := storage.Load(snapshot)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if c, _ := restored.Content("Draft"); c != "unsaved words" {
		t.Fatalf("snapshot content = %q", c)
	}
	if called != 2 {
		t.Fatalf("expected exit code 2, got %d", called)
	}
}

func TestRecoverWithoutPanicIsNoop(t *testing.T) {
	called := false
	oldExit := exitFn
	exitFn = func(int) { called = true }
	defer func() { exitFn = oldExit }()
	func() {
		defer Recover(nil)
	}()
	if called {
		t.Fatalf("exit must not be called without a panic")
	}
}

func TestRecoverFunc_UsesProjectAtPanicTime(t *testing.T) {
	oldStderr := os.Stderr
	_, w, _ := os.Pipe()
	os.Stderr = w
	defer func() {
		_ = w.Close()
		os.Stderr = oldStderr
	}()

	code := 0
	oldExit := exitFn
	exitFn = func(c int) { code = c }
	defer func() { exitFn = oldExit }()

	root := t.TempDir()
	var current *document.Project
	lookups := 0
	get := func() *document.Project {
		lookups++
		return current
	}

	func() {
		defer RecoverFunc(get)
		current = document.NewProject()
		current.ProjectPath = filepath.Join(root, "later.dwproj")
		panic("late")
	}()

	if lookups != 1 || code != 2 {
		t.Fatalf("lookups=%d code=%d", lookups, code)
	}
	files, _ := os.ReadDir(storage.StateDir(storage.ProjectDir(current.ProjectPath)))
	if len(files) == 0 {
		t.Fatalf("expected crash files in the project state dir")
	}
}
