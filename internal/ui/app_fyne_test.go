//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// These tests validate the Fyne-based editing surface. They are gated behind the
// "fyne" build tag so CI (which is headless) does not need Fyne or a display.
// To run locally:
//
//	go test -tags fyne ./internal/ui
package ui

import (
	"testing"

	"fyne.io/fyne/v2/test"

	"docuweave/internal/document"
	"docuweave/internal/editor"
	"docuweave/internal/render"
)

func TestFyneSurface_DisplayDoesNotEcho(t *testing.T) {
	test.NewTempApp(t)
	s := newFyneSurface()
	calls := 0
	s.OnContentChanged(func(string) { calls++ })

	s.Display("<p>Hello <b>there</b></p>", "<p>Hello <b>there</b></p>")
	if calls != 0 {
		t.Fatalf("Display must not report an edit, got %d calls", calls)
	}
	if s.source.Text != "<p>Hello <b>there</b></p>" {
		t.Fatalf("source = %q", s.source.Text)
	}
	if s.preview.Text != "Hello there" {
		t.Fatalf("preview = %q", s.preview.Text)
	}
}

func TestFyneSurface_TypingReachesSession(t *testing.T) {
	test.NewTempApp(t)
	p := document.NewProject()
	if _, err := p.CreateDocument("Intro", "", ""); err != nil {
		t.Fatal(err)
	}
	s := newFyneSurface()
	edited := ""
	s.afterEdit = func(text string) { edited = text }
	sess := editor.NewSession(p, s, render.HTML{})
	if err := sess.Refresh(); err != nil {
		t.Fatal(err)
	}

	test.Type(s.source, "abc")
	if got, _ := p.Content("Intro"); got != "abc" {
		t.Fatalf("content = %q", got)
	}
	if !sess.Dirty() || edited != "abc" {
		t.Fatalf("dirty=%v edited=%q", sess.Dirty(), edited)
	}
}
