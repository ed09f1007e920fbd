/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package render turns document content into displayable HTML.
package render

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"

	applog "docuweave/internal/log"
)

// DefaultCacheSize is used when a non-positive size is requested.
const DefaultCacheSize = 128

// HTML displays stored content as is. Documents are HTML already.
type HTML struct{}

// Render returns content unchanged.
func (HTML) Render(content string) (string, error) { return content, nil }

// Markdown renders Markdown source to HTML with GitHub flavoured extensions.
// Raw HTML in the source is passed through. Results are cached by content
// hash; Markdown is not safe for concurrent use.
type Markdown struct {
	md    goldmark.Markdown
	cache *lru.Cache[[sha256.Size]byte, string]
	log   *slog.Logger
}

// NewMarkdown creates a renderer caching up to cacheSize results.
func NewMarkdown(cacheSize int) (*Markdown, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[[sha256.Size]byte, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create render cache: %w", err)
	}
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
	return &Markdown{md: md, cache: cache, log: applog.WithComponent("render")}, nil
}

// Render converts content to HTML.
func (m *Markdown) Render(content string) (string, error) {
	key := sha256.Sum256([]byte(content))
	if out, ok := m.cache.Get(key); ok {
		return out, nil
	}
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(content), &buf); err != nil {
		m.log.Warn("markdown conversion failed", slog.Any("err", err))
		return "", fmt.Errorf("render markdown: %w", err)
	}
	out := buf.String()
	m.cache.Add(key, out)
	return out, nil
}

// Cached reports how many rendered results are held.
func (m *Markdown) Cached() int { return m.cache.Len() }

// Heading is an entry of a document outline.
type Heading struct {
	Level int
	Text  string
	ID    string
}

// Outline lists the headings of Markdown content in document order.
func (m *Markdown) Outline(content string) []Heading {
	src := []byte(content)
	doc := m.md.Parser().Parse(text.NewReader(src))
	var out []Heading
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		h, ok := n.(*ast.Heading)
		if !ok || !entering {
			return ast.WalkContinue, nil
		}
		item := Heading{Level: h.Level, Text: string(h.Text(src))}
		if id, ok := h.AttributeString("id"); ok {
			if b, ok := id.([]byte); ok {
				item.ID = string(b)
			}
		}
		out = append(out, item)
		return ast.WalkSkipChildren, nil
	})
	return out
}
