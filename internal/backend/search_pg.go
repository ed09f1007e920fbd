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
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"docuweave/internal/docpath"
	"docuweave/internal/storage"
)

// ProjectInfo is a published project as listed by the server.
type ProjectInfo struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`
}

// ListProjects returns published projects, most recently updated first.
func ListProjects(ctx context.Context, db *sql.DB) ([]ProjectInfo, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, updated_at, version FROM projects ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []ProjectInfo
	for rows.Next() {
		var p ProjectInfo
		if err := rows.Scan(&p.ID, &p.Name, &p.UpdatedAt, &p.Version); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// SearchPG executes a search over the published documents of a project using
// tsvector matching. Results mirror storage.Search so local and shared search
// read the same way: snippets use [ ] markers, Under keeps a subtree and an
// empty Text lists documents in path order.
func SearchPG(ctx context.Context, db *sql.DB, projectID int64, q storage.SearchQuery) ([]storage.SearchResult, error) {
	var (
		args []any
		b    strings.Builder
	)
	// Helper to add parameter and return placeholder like $n
	place := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	useFTS := strings.TrimSpace(q.Text) != ""
	if useFTS {
		text := place(q.Text)
		b.WriteString("SELECT d.path, d.title, ")
		b.WriteString("COALESCE(ts_headline('simple', d.raw_text, plainto_tsquery('simple', " + text + "), 'StartSel=[, StopSel=], MaxFragments=1, MaxWords=12'), '') ")
		b.WriteString("FROM documents d WHERE d.project_id = " + place(projectID) + " ")
		b.WriteString("AND d.search_vector @@ plainto_tsquery('simple', " + text + ") ")
	} else {
		b.WriteString("SELECT d.path, d.title, '' FROM documents d WHERE d.project_id = " + place(projectID) + " ")
	}
	if under := docpath.Parse(q.Under); !under.IsRoot() {
		b.WriteString("AND (d.path = " + place(under.String()) + " OR starts_with(d.path, " + place(under.String()+docpath.Separator) + ")) ")
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
		b.WriteString("ORDER BY ts_rank(d.search_vector, plainto_tsquery('simple', $1)) DESC, d.path ")
	} else {
		b.WriteString("ORDER BY d.path ")
	}
	b.WriteString("LIMIT " + place(limit) + " OFFSET " + place(offset))

	rows, err := db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search pg query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []storage.SearchResult
	for rows.Next() {
		var r storage.SearchResult
		if err := rows.Scan(&r.Path, &r.Title, &r.Snippet); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// BacklinksPG returns the published documents linking to path, in path order.
func BacklinksPG(ctx context.Context, db *sql.DB, projectID int64, path string) ([]string, error) {
	target := docpath.Parse(path)
	if target.IsRoot() {
		return nil, errors.New("path is required")
	}
	rows, err := db.QueryContext(ctx, `SELECT from_path FROM links WHERE project_id = $1 AND to_path = $2 ORDER BY from_path`, projectID, target.String())
	if err != nil {
		return nil, fmt.Errorf("backlinks query: %w", err)
	}
	defer func() { _ = rows.Close() }()
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
