/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"reflect"
	"testing"

	"docuweave/internal/document"
)

func searchProject(t *testing.T) *document.Project {
	t.Helper()
	p := document.NewProject()
	docs := []struct{ name, content, parent string }{
		{"Beach", "<p>Scene with waves and sand</p>", ""},
		{"Guide", "<p>See " + `<a href="` + document.LinkTo("Beach") + `">beach</a></p>`, ""},
		{"Setup", "<p>waves again, link " + `<a href="` + document.LinkTo("Beach") + `#top">here</a></p>`, "Guide"},
		{"Other", "<p>nothing relevant</p>", ""},
	}
	for _, d := range docs {
		if _, err := p.CreateDocument(d.name, d.content, d.parent); err != nil {
			t.Fatalf("create %s: %v", d.name, err)
		}
	}
	return p
}

func TestSearchAndBacklinks(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	if err := UpdateIndex(ctx, root, searchProject(t)); err != nil {
		t.Fatalf("UpdateIndex: %v", err)
	}

	res, err := Search(ctx, root, SearchQuery{Text: "waves"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 results for 'waves', got %+v", res)
	}
	for _, r := range res {
		if r.Snippet == "" {
			t.Errorf("expected snippet for %s", r.Path)
		}
	}

	res, err = Search(ctx, root, SearchQuery{Text: "waves", Under: "Guide"})
	if err != nil {
		t.Fatalf("search under: %v", err)
	}
	if len(res) != 1 || res[0].Path != "Guide/Setup" || res[0].Title != "Setup" {
		t.Fatalf("search under Guide = %+v", res)
	}

	res, err = Search(ctx, root, SearchQuery{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(res) != 2 || res[0].Path != "Guide" || res[1].Path != "Guide/Setup" {
		t.Fatalf("paged listing = %+v", res)
	}

	back, err := Backlinks(ctx, root, "Beach")
	if err != nil {
		t.Fatalf("Backlinks: %v", err)
	}
	if want := []string{"Guide", "Guide/Setup"}; !reflect.DeepEqual(back, want) {
		t.Fatalf("Backlinks = %v, want %v", back, want)
	}
	back, err = Backlinks(ctx, root, "Other")
	if err != nil {
		t.Fatalf("Backlinks: %v", err)
	}
	if len(back) != 0 {
		t.Fatalf("Backlinks(Other) = %v", back)
	}
}

func TestBacklinksRequirePath(t *testing.T) {
	if _, err := Backlinks(context.Background(), t.TempDir(), ""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
