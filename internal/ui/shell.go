/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"errors"
	"fmt"
	"io"
	"html"
	"log/slog"
	"strings"

	"docuweave/internal/config"
	"docuweave/internal/docpath"
	"docuweave/internal/document"
	"docuweave/internal/editor"
	applog "docuweave/internal/log"
	"docuweave/internal/render"
	"docuweave/internal/storage"
)

// Options configures Run.
type Options struct {
	// ProjectPath is a manifest to open at startup; empty starts a new project.
	ProjectPath string
	// Debug is set when the process logs at debug level.
	Debug  bool
	Config config.AppConfig
}

// NewRenderer returns the renderer selected by the editor config.
func NewRenderer(cfg config.AppConfig) (editor.Renderer, error) {
	if !cfg.Editor.Markdown {
		return render.HTML{}, nil
	}
	return render.NewMarkdown(cfg.Editor.RenderCacheSize)
}

// openProject loads the manifest at path, or returns a new project for an
// empty path.
func openProject(path string) (*document.Project, error) {
	if strings.TrimSpace(path) == "" {
		return document.NewProject(), nil
	}
	p, err := storage.Load(path)
	if err != nil {
		applog.WithComponent("ui").Error("open project failed", slog.String("manifest", path), slog.Any("err", err))
		return nil, err
	}
	return p, nil
}

// canRestore reports whether a failed open could be retried from a backup.
func canRestore(err error) bool { return errors.Is(err, storage.ErrCorruptManifest) }

// WriteOutline prints the document tree of p, one document per line,
// indented by depth. The current document is marked with "*".
func WriteOutline(w io.Writer, p *document.Project) error {
	return writeOutline(w, p, nil)
}

// WriteOutlineHeadings is WriteOutline with the Markdown headings of every
// document listed below it.
func WriteOutlineHeadings(w io.Writer, p *document.Project, md *render.Markdown) error {
	return writeOutline(w, p, md)
}

func writeOutline(w io.Writer, p *document.Project, md *render.Markdown) error {
	if _, err := fmt.Fprintf(w, "%s (%d documents)\n", p.Name, p.Len()); err != nil {
		return err
	}
	cur := p.CurrentDocument()
	return p.Walk(func(path string, d *document.Document) error {
		mark := " "
		if path == cur {
			mark = "*"
		}
		depth := d.Path().Len() - 1
		if _, err := fmt.Fprintf(w, "%s %s%s\n", mark, strings.Repeat("  ", depth), d.Name()); err != nil {
			return err
		}
		if md == nil {
			return nil
		}
		for _, h := range md.Outline(d.Content()) {
			if _, err := fmt.Fprintf(w, "  %s%s %s\n", strings.Repeat("  ", depth+1), strings.Repeat("#", h.Level), h.Text); err != nil {
				return err
			}
		}
		return nil
	})
}

// childIDs lists the full paths of the children of the document with the given
// path, in display order. The empty id is the root.
func childIDs(p *document.Project, id string) []string {
	d, ok := p.DocumentByPath(id)
	if !ok {
		return nil
	}
	kids := d.Children()
	out := make([]string, len(kids))
	for i, c := range kids {
		out[i] = c.FullPath()
	}
	return out
}

// isBranch reports whether the tree widget should show id as expandable.
func isBranch(p *document.Project, id string) bool {
	return id == "" || p.HasChildren(id)
}

// displayName is the label shown for a tree node.
func displayName(id string) string {
	return docpath.Parse(id).Base()
}

// renameTarget builds the new path for a rename dialog: a bare name keeps the
// document under its parent, a value containing "/" is a full destination path.
func renameTarget(oldPath, input string) string {
	input = strings.TrimSpace(input)
	if strings.Contains(input, docpath.Separator) {
		return docpath.Parse(input).String()
	}
	return docpath.Parse(oldPath).Parent().Join(input).String()
}

// internalLink returns markup linking to the document at path, labelled with
// its name.
func internalLink(path string, markdown bool) string {
	name, href := displayName(path), document.LinkTo(path)
	if markdown {
		return fmt.Sprintf("[%s](%s)", name, href)
	}
	return fmt.Sprintf("<a href=\"%s\">%s</a>", href, html.EscapeString(name))
}

// externalURL adds "http://" to addresses typed without a web scheme.
func externalURL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return s
	}
	return "http://" + s
}

// externalLink returns markup linking to url; an empty text shows the url.
func externalLink(url, text string, markdown bool) string {
	url = externalURL(url)
	if strings.TrimSpace(text) == "" {
		text = url
	}
	if markdown {
		return fmt.Sprintf("[%s](%s)", text, url)
	}
	return fmt.Sprintf("<a href=\"%s\">%s</a>", html.EscapeString(url), html.EscapeString(text))
}

// imageMarkup embeds the staged asset ref.
func imageMarkup(ref string, markdown bool) string {
	if markdown {
		return fmt.Sprintf("![](%s)", ref)
	}
	return fmt.Sprintf("<img src=\"%s\">", html.EscapeString(ref))
}
