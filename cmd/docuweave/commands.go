/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"docuweave/internal/config"
	"docuweave/internal/document"
	"docuweave/internal/export"
	applog "docuweave/internal/log"
	"docuweave/internal/render"
	"docuweave/internal/storage"
	"docuweave/internal/ui"
	"docuweave/internal/version"
)

const indexTimeout = 2 * time.Minute

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(version.String())
		},
	}
}

func newOutlineCmd() *cobra.Command {
	var headings bool
	cmd := &cobra.Command{
		Use:   "outline <manifest>",
		Short: "Print the document tree of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := storage.Load(args[0])
			if err != nil {
				return err
			}
			if !headings {
				return ui.WriteOutline(cmd.OutOrStdout(), p)
			}
			md, err := render.NewMarkdown(0)
			if err != nil {
				return err
			}
			return ui.WriteOutlineHeadings(cmd.OutOrStdout(), p, md)
		},
	}
	cmd.Flags().BoolVar(&headings, "headings", false, "also list the Markdown headings of each document")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var q storage.SearchQuery
	cmd := &cobra.Command{
		Use:   "search <manifest> [terms...]",
		Short: "Full-text search over a project",
		Long: `Search the project index with SQLite FTS5 syntax: plain terms, "quoted phrases",
AND, OR and NOT. Without terms every document is listed in path order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, _, dir, err := openIndexed(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			q.Text = strings.Join(args[1:], " ")
			res, err := storage.Search(ctx, dir, q)
			if err != nil {
				return err
			}
			for _, r := range res {
				if r.Snippet != "" {
					cmd.Printf("%s\t%s\n", r.Path, r.Snippet)
				} else {
					cmd.Println(r.Path)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&q.Under, "under", "", "only search this document and its descendants")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "maximum number of results (default 100)")
	cmd.Flags().IntVar(&q.Offset, "offset", 0, "number of results to skip")
	return cmd
}

func newBacklinksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backlinks <manifest> <document>",
		Short: "List documents that link to a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, p, dir, err := openIndexed(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if _, ok := p.DocumentByPath(args[1]); !ok {
				return fmt.Errorf("%w: %q", document.ErrNotFound, args[1])
			}
			refs, err := storage.Backlinks(ctx, dir, args[1])
			if err != nil {
				return err
			}
			for _, r := range refs {
				cmd.Println(r)
			}
			return nil
		},
	}
}

func newReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex <manifest>",
		Short: "Rebuild the search index of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := storage.Load(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), indexTimeout)
			defer cancel()
			if err := storage.RebuildIndex(ctx, storage.ProjectDir(args[0]), p); err != nil {
				return err
			}
			cmd.Printf("indexed %d documents\n", p.Len())
			return nil
		},
	}
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <manifest>",
		Short: "Replace a damaged manifest with its latest backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := storage.RestoreLatestBackup(args[0])
			if err != nil {
				return err
			}
			if err := storage.Save(p, args[0]); err != nil {
				return err
			}
			cmd.Printf("restored %d documents\n", p.Len())
			return nil
		},
	}
}

func newExportCmd(cfg *config.AppConfig) *cobra.Command {
	var opt export.EPUBOptions
	cmd := &cobra.Command{
		Use:   "export <manifest> <out.epub>",
		Short: "Export a project as an EPUB book",
		Long: `Export writes one chapter per document in tree order with a nested table of
contents. A relative output path is placed in the project's exports folder.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := storage.Load(args[0])
			if err != nil {
				return err
			}
			r, err := ui.NewRenderer(*cfg)
			if err != nil {
				return err
			}
			out, err := export.ExportEPUB(p, args[1], r, opt)
			if err != nil {
				return err
			}
			cmd.Println(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&opt.Title, "title", "", "book title (default: project name)")
	cmd.Flags().StringVar(&opt.Author, "author", "", "book author")
	cmd.Flags().StringVar(&opt.Language, "lang", "en", "book language")
	cmd.Flags().BoolVar(&opt.Headings, "headings", false, "prefix chapters with the document name")
	return cmd
}

// openIndexed loads a project and makes sure its index is usable, rebuilding
// it when it is missing or damaged.
func openIndexed(ctx context.Context, manifest string) (context.Context, *document.Project, string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	p, err := storage.Load(manifest)
	if err != nil {
		return ctx, nil, "", err
	}
	dir := storage.ProjectDir(manifest)
	ctx = applog.WithProject(ctx, manifest)
	ictx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()
	rebuilt, err := storage.DetectAndRebuildIndex(ictx, dir, p)
	if err != nil {
		return ctx, nil, "", err
	}
	if rebuilt {
		applog.WithComponent("main").InfoContext(ctx, "index rebuilt", slog.Int("documents", p.Len()))
	}
	return ctx, p, dir, nil
}
