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
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"docuweave/internal/docpath"
	"docuweave/internal/document"
	applog "docuweave/internal/log"
	"docuweave/internal/telemetry"
)

const (
	// ManifestExt is the conventional manifest file extension.
	ManifestExt = ".dwproj"
	// ContentFileName holds a document's content inside its own directory.
	ContentFileName = docpath.ContentFileName
	// ReservedHTMLName is never treated as an orphaned content file.
	ReservedHTMLName = "index.html"
	// ImagesDirName receives staged assets.
	ImagesDirName = "images"
	// StateDirName keeps backups and the derived index out of the document tree.
	StateDirName   = docpath.StateDirName
	BackupsDirName = "backups"

	maxBackups = 20
)

// ProjectDir returns the content directory that belongs to manifestPath: the
// manifest path without its extension.
func ProjectDir(manifestPath string) string {
	ext := filepath.Ext(manifestPath)
	if ext == "" {
		return manifestPath + ".files"
	}
	return strings.TrimSuffix(manifestPath, ext)
}

// StateDir returns the directory holding backups and the index for a project directory.
func StateDir(projectDir string) string { return filepath.Join(projectDir, StateDirName) }

func backupsDir(projectDir string) string {
	return filepath.Join(StateDir(projectDir), BackupsDirName)
}

func contentRelPath(p docpath.Path) string {
	parts := append(p.Segments(), ContentFileName)
	return filepath.Join(parts...)
}

// Save writes every document of p to its content file under the project
// directory, removes content files no longer backed by a document and writes
// the manifest. p.ProjectPath is set to manifestPath on success.
//
// Content files are written in place; a failure halfway leaves the directory
// partially updated. Only the manifest itself is replaced atomically.
func Save(p *document.Project, manifestPath string) error {
	if p == nil {
		return errors.New("nil project")
	}
	if strings.TrimSpace(manifestPath) == "" {
		return errors.New("manifest path is required")
	}
	l := applog.WithOperation(applog.WithComponent("storage"), "save").With(
		slog.String("manifest", manifestPath),
	)
	dir := ProjectDir(manifestPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}

	written := make(map[string]struct{})
	docs := make(map[string]string)
	err := p.Walk(func(path string, d *document.Document) error {
		rel := contentRelPath(d.Path())
		full := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("create dir for %q: %w", path, err)
		}
		if err := writeFileSync(full, []byte(d.Content())); err != nil {
			return fmt.Errorf("write %q: %w", path, err)
		}
		written[filepath.Clean(full)] = struct{}{}
		docs[path] = filepath.ToSlash(filepath.Join(filepath.Base(dir), rel))
		return nil
	})
	if err != nil {
		l.Error("write documents failed", slog.Any("err", err))
		return err
	}

	removed := removeOrphans(dir, written, l)
	pruneEmptyDirs(dir, l)

	m := &Manifest{
		Name:              p.Name,
		Documents:         docs,
		DocumentStructure: p.Structure(),
	}
	if cur := p.CurrentDocument(); cur != "" {
		m.CurrentDocument = &cur
	}
	data, err := encodeManifest(m)
	if err != nil {
		return err
	}
	if err := backupManifest(manifestPath, dir); err != nil {
		l.Warn("manifest backup failed", slog.Any("err", err))
	}
	if err := writeManifest(manifestPath, data); err != nil {
		l.Error("write manifest failed", slog.Any("err", err))
		return err
	}
	p.ProjectPath = manifestPath
	l.Info("project saved", slog.Int("documents", len(docs)), slog.Int("orphans_removed", removed))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := UpdateIndex(ctx, dir, p); err != nil {
		l.Warn("index update failed", slog.Any("err", err))
	}
	return nil
}

// removeOrphans deletes .html files under dir that are not in keep. Failures are
// logged and skipped. It returns the number of removed files.
func removeOrphans(dir string, keep map[string]struct{}, l *slog.Logger) int {
	removed := 0
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			l.Warn("scan for orphaned files", slog.String("path", path), slog.Any("err", err))
			return nil
		}
		if d.IsDir() {
			if d.Name() == StateDirName && filepath.Dir(path) == dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(d.Name()), ".html") || strings.EqualFold(d.Name(), ReservedHTMLName) {
			return nil
		}
		// staged assets share images/ with the subtree of a document named "images"
		if inImagesDir(dir, path) && d.Name() != ContentFileName {
			return nil
		}
		if _, ok := keep[filepath.Clean(path)]; ok {
			return nil
		}
		if err := os.Remove(path); err != nil {
			l.Warn("remove orphaned file failed", slog.String("path", path), slog.Any("err", err))
			return nil
		}
		l.Debug("removed orphaned file", slog.String("path", path))
		removed++
		return nil
	})
	return removed
}

func inImagesDir(dir, path string) bool {
	rel, err := filepath.Rel(filepath.Join(dir, ImagesDirName), path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// pruneEmptyDirs removes directories left empty by orphan removal, deepest first.
func pruneEmptyDirs(dir string, l *slog.Logger) {
	var dirs []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() || path == dir {
			return nil
		}
		if d.Name() == StateDirName && filepath.Dir(path) == dir {
			return filepath.SkipDir
		}
		if path == filepath.Join(dir, ImagesDirName) {
			return nil
		}
		dirs = append(dirs, path)
		return nil
	})
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, d := range dirs {
		ents, err := os.ReadDir(d)
		if err != nil || len(ents) > 0 {
			continue
		}
		if err := os.Remove(d); err != nil {
			l.Warn("remove empty dir failed", slog.String("path", d), slog.Any("err", err))
		}
	}
}

// Load reads the manifest at manifestPath and rebuilds the project. Malformed
// manifests fail with an error wrapping ErrCorruptManifest; missing content
// files only produce warnings and empty documents.
func Load(manifestPath string) (*document.Project, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	m, err := DecodeManifest(data)
	if err != nil {
		return nil, err
	}
	return projectFromManifest(m, manifestPath)
}

func projectFromManifest(m *Manifest, manifestPath string) (*document.Project, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "load").With(
		slog.String("manifest", manifestPath),
	)
	p := document.NewProject()
	if strings.TrimSpace(m.Name) != "" {
		p.Name = m.Name
	}
	p.ProjectPath = manifestPath
	base := filepath.Dir(manifestPath)

	if m.IsLegacy() {
		l.Info("migrating legacy manifest", slog.Int("folders", len(m.Folders)), slog.Int("documents", len(m.Documents)))
		migrateEntries(p, m.Folders, base, l)
		migrateEntries(p, m.Documents, base, l)
		telemetry.LegacyMigrated()
	} else {
		if err := p.Restore(m.DocumentStructure); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptManifest, err)
		}
		for _, path := range sortedKeys(m.Documents) {
			d, ok := p.DocumentByPath(path)
			if !ok || d.IsRoot() {
				l.Warn("manifest lists document missing from structure", slog.String("doc", path))
				if d, ok = ensureDocument(p, path, l); !ok {
					continue
				}
			}
			d.SetContent(readContent(base, m.Documents[path], l))
		}
	}

	if cur := m.current(); cur != "" {
		if err := p.SetCurrentDocument(cur); err != nil {
			l.Warn("current document not found", slog.String("doc", cur))
		}
	}
	p.EnsureCurrentDocument()
	l.Info("project loaded", slog.Int("documents", p.Len()), slog.String("current", p.CurrentDocument()))
	return p, nil
}

// migrateEntries materializes a flat path -> file map into the tree. Every
// entry's file becomes the content of the document at its path.
func migrateEntries(p *document.Project, entries map[string]string, base string, l *slog.Logger) {
	for _, path := range sortedKeys(entries) {
		d, ok := ensureDocument(p, path, l)
		if !ok {
			continue
		}
		d.SetContent(readContent(base, entries[path], l))
	}
}

func ensureDocument(p *document.Project, path string, l *slog.Logger) (*document.Document, bool) {
	d, err := p.EnsureDocumentPath(path)
	if err != nil || d.IsRoot() {
		l.Warn("skipping invalid document path", slog.String("doc", path), slog.Any("err", err))
		return nil, false
	}
	return d, true
}

func readContent(base, file string, l *slog.Logger) string {
	if file == "" {
		return ""
	}
	path := filepath.FromSlash(file)
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		l.Warn("document file not found", slog.String("file", path), slog.Any("err", err))
		return ""
	}
	return string(b)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// backupManifest copies an existing manifest into the project's backups folder
// and prunes old copies.
func backupManifest(manifestPath, projectDir string) error {
	if _, err := os.Stat(manifestPath); err != nil {
		return nil
	}
	bdir := backupsDir(projectDir)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}
	stamp := time.Now().Format("20060102-150405")
	bpath := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(manifestPath), stamp))
	if err := copyFile(manifestPath, bpath); err != nil {
		return fmt.Errorf("backup current manifest: %w", err)
	}
	backups, err := listBackups(manifestPath)
	if err != nil {
		return nil
	}
	for len(backups) > maxBackups {
		_ = os.Remove(backups[0])
		backups = backups[1:]
	}
	return nil
}

// listBackups returns the manifest's backups, oldest first.
func listBackups(manifestPath string) ([]string, error) {
	bdir := backupsDir(ProjectDir(manifestPath))
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	prefix := filepath.Base(manifestPath) + "."
	var out []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(bdir, name))
		}
	}
	sort.Strings(out) // timestamp in name yields lexicographic order
	return out, nil
}

// ErrNoBackup is returned by RestoreLatestBackup when no backup exists.
var ErrNoBackup = errors.New("no manifest backup found")

// RestoreLatestBackup loads the project from the newest manifest backup. The
// shell offers this after Load failed; it never happens implicitly.
// The returned project keeps manifestPath as its ProjectPath.
func RestoreLatestBackup(manifestPath string) (*document.Project, error) {
	backups, err := listBackups(manifestPath)
	if err != nil || len(backups) == 0 {
		return nil, ErrNoBackup
	}
	latest := backups[len(backups)-1]
	data, err := os.ReadFile(latest)
	if err != nil {
		return nil, fmt.Errorf("read latest backup: %w", err)
	}
	m, err := DecodeManifest(data)
	if err != nil {
		return nil, fmt.Errorf("parse latest backup: %w", err)
	}
	return projectFromManifest(m, manifestPath)
}

// AutosaveCrashSnapshot writes the whole project, contents inline, to a
// timestamped file. Saved projects keep snapshots in their state folder,
// unsaved ones in the temp dir. The snapshot is a valid manifest.
func AutosaveCrashSnapshot(p *document.Project) (string, error) {
	if p == nil {
		return "", errors.New("nil project")
	}
	dir := os.TempDir()
	if p.ProjectPath != "" {
		dir = StateDir(ProjectDir(p.ProjectPath))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure snapshot dir: %w", err)
	}
	m := &Manifest{Name: p.Name, Documents: map[string]string{}, DocumentStructure: p.Structure()}
	if cur := p.CurrentDocument(); cur != "" {
		m.CurrentDocument = &cur
	}
	data, err := encodeManifest(m)
	if err != nil {
		return "", err
	}
	stamp := time.Now().Format("20060102-150405")
	path := filepath.Join(dir, fmt.Sprintf("crash-%s%s", stamp, ManifestExt))
	if err := writeFileSync(path, data); err != nil {
		return "", fmt.Errorf("write crash snapshot: %w", err)
	}
	return path, nil
}

// writeManifest replaces the manifest through a temp file in the same directory.
func writeManifest(manifestPath string, data []byte) error {
	dir := filepath.Dir(manifestPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", filepath.Base(manifestPath), os.Getpid(), rand.Int()))
	if err := writeFileSync(temp, data); err != nil {
		return fmt.Errorf("write temp manifest: %w", err)
	}
	// On Windows, replace by removing destination first if needed
	if _, err := os.Stat(manifestPath); err == nil {
		_ = os.Remove(manifestPath)
	}
	if err := os.Rename(temp, manifestPath); err != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace manifest: %w", err)
	}
	return nil
}

// writeFileSync writes data to a file, ensures it is flushed to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies a file from src to dst (overwrites dst if exists).
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}
