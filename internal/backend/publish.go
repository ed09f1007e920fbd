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

	"docuweave/internal/document"
	"docuweave/internal/storage"
)

// Published describes a project row after Publish.
type Published struct {
	ProjectID int64
	Version   int64
	Documents int
}

// Publish replaces the published snapshot of p, keyed by project name. The
// project's version is bumped on every publish.
func Publish(ctx context.Context, db *sql.DB, p *document.Project) (Published, error) {
	if p == nil {
		return Published{}, errors.New("nil project")
	}
	name := p.Name
	if name == "" {
		name = document.DefaultProjectName
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Published{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var out Published
	err = tx.QueryRowContext(ctx, `INSERT INTO projects(name) VALUES($1)
		ON CONFLICT (name) DO UPDATE SET version = projects.version + 1, updated_at = now()
		RETURNING id, version`, name).Scan(&out.ProjectID, &out.Version)
	if err != nil {
		return Published{}, fmt.Errorf("upsert project: %w", err)
	}
	for _, q := range []string{`DELETE FROM documents WHERE project_id = $1`, `DELETE FROM links WHERE project_id = $1`} {
		if _, err := tx.ExecContext(ctx, q, out.ProjectID); err != nil {
			return Published{}, fmt.Errorf("clear project: %w", err)
		}
	}
	insDoc, err := tx.PrepareContext(ctx, `INSERT INTO documents(project_id, path, title, raw_text) VALUES($1, $2, $3, $4)`)
	if err != nil {
		return Published{}, fmt.Errorf("prepare insert: %w", err)
	}
	defer insDoc.Close()
	insLink, err := tx.PrepareContext(ctx, `INSERT INTO links(project_id, from_path, to_path) VALUES($1, $2, $3) ON CONFLICT DO NOTHING`)
	if err != nil {
		return Published{}, fmt.Errorf("prepare link insert: %w", err)
	}
	defer insLink.Close()

	err = p.Walk(func(path string, d *document.Document) error {
		if _, err := insDoc.ExecContext(ctx, out.ProjectID, path, d.Name(), storage.PlainText(d.Content())); err != nil {
			return fmt.Errorf("insert document %q: %w", path, err)
		}
		for _, target := range document.ExtractLinks(d.Content()) {
			if _, err := insLink.ExecContext(ctx, out.ProjectID, path, target); err != nil {
				return fmt.Errorf("insert link %q -> %q: %w", path, target, err)
			}
		}
		out.Documents++
		return nil
	})
	if err != nil {
		return Published{}, err
	}
	if err := tx.Commit(); err != nil {
		return Published{}, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}
