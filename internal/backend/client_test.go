/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"docuweave/internal/storage"
)

func TestClient_SearchEncodesQuery(t *testing.T) {
	var gotURL, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, []SearchHit{{Path: "Guide/Setup", Title: "Setup", Snippet: "[install] the tools"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	res, err := c.Search(context.Background(), 7, storage.SearchQuery{Text: "install tools", Under: "Guide", Limit: 5})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotURL != "/api/projects/7/search?limit=5&q=install+tools&under=Guide" {
		t.Fatalf("url = %q", gotURL)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if len(res) != 1 || res[0].Path != "Guide/Setup" || res[0].Snippet != "[install] the tools" {
		t.Fatalf("results = %+v", res)
	}
}

func TestClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(NewHandler(nil, "s3cret"))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	if _, err := c.ListProjects(context.Background()); err == nil {
		t.Fatalf("expected 401 error")
	}
	if _, err := c.Backlinks(context.Background(), 1, "Intro"); err == nil {
		t.Fatalf("expected 401 error")
	}
}
