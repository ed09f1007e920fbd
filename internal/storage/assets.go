/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"docuweave/internal/document"
	applog "docuweave/internal/log"
)

// ErrUnsaved is returned by operations that need the project directory of a
// project that has never been saved.
var ErrUnsaved = errors.New("project has not been saved")

// StageAsset copies the file at localPath into the project's images folder and
// returns the path to reference it by, relative to the project directory
// (e.g. "images/photo.png"). Name collisions get a numeric suffix.
func StageAsset(p *document.Project, localPath string) (string, error) {
	if p == nil || p.ProjectPath == "" {
		return "", ErrUnsaved
	}
	l := applog.WithOperation(applog.WithComponent("storage"), "stage_asset").With(
		slog.String("src", localPath),
	)
	fi, err := os.Stat(localPath)
	if err != nil {
		return "", fmt.Errorf("stat asset: %w", err)
	}
	if fi.IsDir() {
		return "", fmt.Errorf("asset %q is a directory", localPath)
	}
	dir := filepath.Join(ProjectDir(p.ProjectPath), ImagesDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create images dir: %w", err)
	}
	base := filepath.Base(localPath)
	if strings.EqualFold(base, ContentFileName) {
		base = "asset" + base
	}
	name := uniqueName(dir, base)
	if err := copyFile(localPath, filepath.Join(dir, name)); err != nil {
		l.Error("copy asset failed", slog.Any("err", err))
		return "", fmt.Errorf("copy asset: %w", err)
	}
	rel := ImagesDirName + "/" + name
	l.Info("asset staged", slog.String("ref", rel))
	return rel, nil
}

// ResolveAsset maps a reference relative to the project directory to an
// absolute file path. Absolute references and URLs with a scheme are returned
// unchanged; references escaping the project directory are rejected.
func ResolveAsset(p *document.Project, ref string) (string, error) {
	if strings.Contains(ref, "://") || filepath.IsAbs(ref) {
		return ref, nil
	}
	if p == nil || p.ProjectPath == "" {
		return "", ErrUnsaved
	}
	root := ProjectDir(p.ProjectPath)
	full := filepath.Join(root, filepath.FromSlash(ref))
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("asset reference %q escapes the project directory", ref)
	}
	return full, nil
}

func uniqueName(dir, name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for i := 1; ; i++ {
		if _, err := os.Stat(filepath.Join(dir, candidate)); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
}
