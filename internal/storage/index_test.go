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
	"testing"
	"time"
)

func TestIndexInitCreatesWALAndMetaVersion(t *testing.T) {
	root := t.TempDir()
	db, err := InitOrOpenIndex(root)
	if err != nil {
		t.Fatalf("InitOrOpenIndex: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var mode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode;").Scan(&mode); err != nil {
		t.Fatalf("read journal_mode: %v", err)
	}
	if mode != "wal" && mode != "WAL" {
		t.Fatalf("expected WAL mode, got %s", mode)
	}
	var cnt int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('meta','version')").Scan(&cnt); err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if cnt != 2 {
		t.Fatalf("expected 2 meta tables, got %d", cnt)
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('documents','fts_documents','links')").Scan(&cnt); err != nil {
		t.Fatalf("query core tables: %v", err)
	}
	if cnt != 3 {
		t.Fatalf("expected 3 core tables, got %d", cnt)
	}
	var schema int
	if err := db.QueryRowContext(ctx, "SELECT schema FROM version WHERE id=1").Scan(&schema); err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if schema != schemaVersion {
		t.Fatalf("schema = %d, want %d", schema, schemaVersion)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO documents(path, title, text) VALUES('A','A','hello world')`); err != nil {
		t.Fatalf("insert document: %v", err)
	}
	var ftsCount int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM fts_documents WHERE fts_documents MATCH 'hello'").Scan(&ftsCount); err != nil {
		t.Fatalf("fts query: %v", err)
	}
	if ftsCount == 0 {
		t.Fatalf("expected FTS to find inserted document")
	}
}

func TestIndexMigratesFromSchemaOne(t *testing.T) {
	root := t.TempDir()
	db, err := InitOrOpenIndex(root)
	if err != nil {
		t.Fatalf("InitOrOpenIndex: %v", err)
	}
	ctx := context.Background()
	for _, q := range []string{`DROP INDEX idx_links_to;`, `UPDATE version SET schema=1 WHERE id=1;`} {
		if _, err := db.ExecContext(ctx, q); err != nil {
			t.Fatalf("downgrade: %v", err)
		}
	}
	_ = db.Close()

	db, err = InitOrOpenIndex(root)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	var schema int
	if err := db.QueryRowContext(ctx, "SELECT schema FROM version WHERE id=1").Scan(&schema); err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if schema != 2 {
		t.Fatalf("schema = %d after migration, want 2", schema)
	}
}

func TestUpdateIndexReplacesRows(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	p := sampleProject(t)
	if err := UpdateIndex(ctx, root, p); err != nil {
		t.Fatalf("UpdateIndex: %v", err)
	}
	if err := p.RemoveDocument("Intro"); err != nil {
		t.Fatal(err)
	}
	if err := UpdateIndex(ctx, root, p); err != nil {
		t.Fatalf("UpdateIndex: %v", err)
	}
	res, err := Search(ctx, root, SearchQuery{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	var paths []string
	for _, r := range res {
		paths = append(paths, r.Path)
	}
	if len(paths) != 2 || paths[0] != "Guide" || paths[1] != "Guide/Setup" {
		t.Fatalf("indexed paths = %v", paths)
	}
}

func TestPlainText(t *testing.T) {
	cases := []struct{ in, want string }{
		{"<p>Hello <b>World</b></p>", "Hello World"},
		{"<style>p{color:red}</style><p>shown</p>", "shown"},
		{"plain   text\nacross lines", "plain text across lines"},
		{"<script>alert(1)</script>after", "after"},
		{"", ""},
		{"<p>caf&eacute; &amp; tea</p>", "caf\u00e9 & tea"},
	}
	for _, c := range cases {
		if got := PlainText(c.in); got != c.want {
			t.Errorf("PlainText(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
