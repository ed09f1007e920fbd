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
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"docuweave/internal/docpath"
)

// SearchQuery describes a search over the project index.
// Text uses SQLite FTS5 syntax (simple terms, phrases in quotes, AND/OR/NOT).
// Under restricts results to a document and its descendants.
// Limit/Offset implement pagination; reasonable defaults applied if zero.
type SearchQuery struct {
	Text   string
	Under  string
	Limit  int
	Offset int
}

// SearchResult is a single matching document.
// Snippet is a highlighted excerpt using [ ] markers when Text is set.
type SearchResult struct {
	Path    string
	Title   string
	Snippet string
}

// Search performs full-text search over the project index. With empty Text it
// lists indexed documents in path order.
func Search(ctx context.Context, projectDir string, q SearchQuery) ([]SearchResult, error) {
	if strings.TrimSpace(projectDir) == "" {
		return nil, errors.New("project dir is required")
	}
	db, err := InitOrOpenIndex(projectDir)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return searchDB(ctx, db, q)
}

func searchDB(ctx context.Context, db *sql.DB, q SearchQuery) ([]SearchResult, error) {
	var args []any
	var sb strings.Builder
	useFTS := strings.TrimSpace(q.Text) != ""
	if useFTS {
		sb.WriteString("SELECT d.path, d.title, snippet(fts_documents, 1, '[', ']', '…', 10)\n")
		sb.WriteString("FROM fts_documents JOIN documents d ON fts_documents.rowid = d.doc_id\n")
		sb.WriteString("WHERE fts_documents MATCH ?\n")
		args = append(args, q.Text)
	} else {
		sb.WriteString("SELECT d.path, d.title, ''\n")
		sb.WriteString("FROM documents d\nWHERE 1=1\n")
	}
	if under := docpath.Parse(q.Under); !under.IsRoot() {
		sb.WriteString(" AND (d.path = ? OR substr(d.path, 1, length(?)) = ?)\n")
		prefix := under.String() + docpath.Separator
		args = append(args, under.String(), prefix, prefix)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if useFTS {
		sb.WriteString("ORDER BY rank, d.path\n")
	} else {
		sb.WriteString("ORDER BY d.path\n")
	}
	sb.WriteString("LIMIT ? OFFSET ?")
	args = append(args, limit, offset)

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var sn sql.NullString
		if err := rows.Scan(&r.Path, &r.Title, &sn); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.Snippet = sn.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Backlinks returns the paths of documents whose content links to path, in
// path order.
func Backlinks(ctx context.Context, projectDir, path string) ([]string, error) {
	target := docpath.Parse(path)
	if target.IsRoot() {
		return nil, errors.New("path is required")
	}
	db, err := InitOrOpenIndex(projectDir)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	rows, err := db.QueryContext(ctx, `SELECT from_path FROM links WHERE to_path = ? ORDER BY from_path`, target.String())
	if err != nil {
		return nil, fmt.Errorf("backlinks query: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var from string
		if err := rows.Scan(&from); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, from)
	}
	return out, rows.Err()
}
