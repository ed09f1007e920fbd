/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuweave/internal/document"
	"docuweave/internal/storage"
	"docuweave/internal/version"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("DW_CONFIG_DIR", t.TempDir())
	t.Setenv("DW_LOG_FILE", "")
	t.Setenv("DW_TELEMETRY_OPT_IN", "")
}

func savedProject(t *testing.T) string {
	t.Helper()
	p := document.NewProject()
	p.Name = "Handbook"
	_, err := p.CreateDocument("Guide", "<p>start with "+document.LinkTo("Intro")+"</p>", "")
	require.NoError(t, err)
	_, err = p.CreateDocument("Setup", "<p>install the tools</p>", "Guide")
	require.NoError(t, err)
	_, err = p.CreateDocument("Intro", "<p>hello world</p>", "")
	require.NoError(t, err)
	manifest := filepath.Join(t.TempDir(), "handbook.dwproj")
	require.NoError(t, storage.Save(p, manifest))
	return manifest
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestVersion(t *testing.T) {
	isolate(t)
	code, out, _ := execute(t, "version")
	assert.Equal(t, 0, code)
	assert.Equal(t, version.String()+"\n", out)
}

func TestOutline(t *testing.T) {
	isolate(t)
	code, out, _ := execute(t, "outline", savedProject(t))
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Handbook (3 documents)")
	assert.Contains(t, out, "    Setup\n")
}

func TestSearchRebuildsMissingIndex(t *testing.T) {
	isolate(t)
	manifest := savedProject(t)
	require.NoError(t, os.Remove(storage.IndexPath(storage.ProjectDir(manifest))))

	code, out, _ := execute(t, "search", manifest, "install")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Guide/Setup\t")
	assert.Contains(t, out, "[install]")

	code, out, _ = execute(t, "search", "--under", "Guide", manifest)
	require.Equal(t, 0, code)
	assert.Equal(t, "Guide\nGuide/Setup\n", out)
}

func TestBacklinks(t *testing.T) {
	isolate(t)
	manifest := savedProject(t)
	code, out, _ := execute(t, "backlinks", manifest, "Intro")
	require.Equal(t, 0, code)
	assert.Equal(t, "Guide\n", out)

	code, _, errOut := execute(t, "backlinks", manifest, "Nope")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Nope")
}

func TestReindex(t *testing.T) {
	isolate(t)
	code, out, _ := execute(t, "reindex", savedProject(t))
	require.Equal(t, 0, code)
	assert.Equal(t, "indexed 3 documents\n", out)
}

func TestRestore(t *testing.T) {
	isolate(t)
	manifest := savedProject(t)

	code, _, errOut := execute(t, "restore", manifest)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, storage.ErrNoBackup.Error())

	// a second save leaves a backup of the first manifest behind
	p, err := storage.Load(manifest)
	require.NoError(t, err)
	require.NoError(t, storage.Save(p, manifest))
	require.NoError(t, os.WriteFile(manifest, []byte("{broken"), 0o644))

	code, out, _ := execute(t, "restore", manifest)
	require.Equal(t, 0, code)
	assert.Equal(t, "restored 3 documents\n", out)
	restored, err := storage.Load(manifest)
	require.NoError(t, err)
	assert.Equal(t, 3, restored.Len())
}

func TestBadArgs(t *testing.T) {
	isolate(t)
	code, _, errOut := execute(t, "outline")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "accepts 1 arg")
}

func TestExport(t *testing.T) {
	isolate(t)
	manifest := savedProject(t)
	out := filepath.Join(t.TempDir(), "handbook.epub")
	code, stdout, _ := execute(t, "export", "--headings", manifest, out)
	require.Equal(t, 0, code)
	assert.Equal(t, out+"\n", stdout)
	zr, err := zip.OpenReader(out)
	require.NoError(t, err)
	defer zr.Close()
	assert.Equal(t, "mimetype", zr.File[0].Name)
}

func TestPublishNeedsDSN(t *testing.T) {
	isolate(t)
	t.Setenv("DW_PG_DSN", "")
	t.Setenv("DATABASE_URL", "")
	manifest := savedProject(t)
	code, _, stderr := execute(t, "publish", manifest)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "DSN is required")
}
