/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuweave/internal/config"
	"docuweave/internal/document"
	"docuweave/internal/render"
)

func outlineProject(t *testing.T) *document.Project {
	t.Helper()
	p := document.NewProject()
	p.Name = "Handbook"
	for _, c := range []struct{ name, parent string }{
		{"Guide", ""},
		{"Setup", "Guide"},
		{"Usage", "Guide"},
		{"About", ""},
	} {
		_, err := p.CreateDocument(c.name, "", c.parent)
		require.NoError(t, err)
	}
	require.NoError(t, p.SetCurrentDocument("Guide/Usage"))
	return p
}

func TestWriteOutline(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteOutline(&buf, outlineProject(t)))
	want := "Handbook (4 documents)\n" +
		"  About\n" +
		"  Guide\n" +
		"    Setup\n" +
		"*   Usage\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteOutlineHeadings(t *testing.T) {
	p := document.NewProject()
	p.Name = "Notes"
	_, err := p.CreateDocument("Guide", "# Install\n\ntext\n\n## Linux\n", "")
	require.NoError(t, err)
	_, err = p.CreateDocument("Plain", "no headings", "Guide")
	require.NoError(t, err)
	md, err := render.NewMarkdown(0)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteOutlineHeadings(&buf, p, md))
	want := "Notes (2 documents)\n" +
		"* Guide\n" +
		"    # Install\n" +
		"    ## Linux\n" +
		"    Plain\n"
	assert.Equal(t, want, buf.String())
}

func TestTreeModel(t *testing.T) {
	p := outlineProject(t)
	assert.Equal(t, []string{"About", "Guide"}, childIDs(p, ""))
	assert.Equal(t, []string{"Guide/Setup", "Guide/Usage"}, childIDs(p, "Guide"))
	assert.Empty(t, childIDs(p, "Guide/Setup"))
	assert.Nil(t, childIDs(p, "Missing"))

	assert.True(t, isBranch(p, ""))
	assert.True(t, isBranch(p, "Guide"))
	assert.False(t, isBranch(p, "About"))
	assert.Equal(t, "Usage", displayName("Guide/Usage"))
}

func TestRenameTarget(t *testing.T) {
	assert.Equal(t, "Guide/Install", renameTarget("Guide/Setup", " Install "))
	assert.Equal(t, "Install", renameTarget("Setup", "Install"))
	assert.Equal(t, "About/Setup", renameTarget("Guide/Setup", "About/Setup"))
	assert.Equal(t, "About/Setup", renameTarget("Guide/Setup", "/About//Setup"))
}

func TestNewRendererFollowsConfig(t *testing.T) {
	cfg := config.Defaults()
	r, err := NewRenderer(cfg)
	require.NoError(t, err)
	assert.IsType(t, render.HTML{}, r)

	cfg.Editor.Markdown = true
	r, err = NewRenderer(cfg)
	require.NoError(t, err)
	assert.IsType(t, &render.Markdown{}, r)
}

func TestOpenProject(t *testing.T) {
	p, err := openProject("  ")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Len())

	manifest := filepath.Join(t.TempDir(), "broken.dwproj")
	require.NoError(t, os.WriteFile(manifest, []byte("{not json"), 0o644))
	_, err = openProject(manifest)
	require.Error(t, err)
	assert.True(t, canRestore(err))

	_, err = openProject(filepath.Join(t.TempDir(), "missing.dwproj"))
	require.Error(t, err)
	assert.False(t, canRestore(err))
}

func TestLinkMarkup(t *testing.T) {
	assert.Equal(t, `<a href="docuweave://document/Guide/Set%20up">Set up</a>`, internalLink("Guide/Set up", false))
	assert.Equal(t, "[Set up](docuweave://document/Guide/Set%20up)", internalLink("Guide/Set up", true))

	assert.Equal(t, "http://example.com", externalURL(" example.com "))
	assert.Equal(t, "https://example.com", externalURL("https://example.com"))
	assert.Equal(t, "", externalURL("  "))
	assert.Equal(t, `<a href="http://go.dev">Go &amp; more</a>`, externalLink("go.dev", "Go & more", false))
	assert.Equal(t, "[http://go.dev](http://go.dev)", externalLink("go.dev", "", true))

	assert.Equal(t, `<img src="images/a.png">`, imageMarkup("images/a.png", false))
	assert.Equal(t, "![](images/a.png)", imageMarkup("images/a.png", true))
}
