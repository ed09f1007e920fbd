/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a top-level panic into a crash report and an autosave
// snapshot of the open project before the process exits.
package crash

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"docuweave/internal/document"
	applog "docuweave/internal/log"
	"docuweave/internal/storage"
	"docuweave/internal/telemetry"
	"docuweave/internal/version"
)

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// Recover captures a panic, logs it with its stack, writes a crash report and
// snapshots p (if non-nil) so unsaved edits survive.
//
// Usage: defer crash.Recover(p)
func Recover(p *document.Project) {
	if r := recover(); r != nil {
		handle(r, p)
	}
}

// RecoverFunc is Recover for callers whose open project changes over time.
// current is only called after a panic.
//
// Usage: defer crash.RecoverFunc(session.Project)
func RecoverFunc(current func() *document.Project) {
	if r := recover(); r != nil {
		var p *document.Project
		if current != nil {
			p = current()
		}
		handle(r, p)
	}
}

func handle(r any, p *document.Project) {
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	reportPath, err := writeReport(p, r, stack)
	if err != nil {
		l.Error("write crash report failed", slog.Any("err", err))
	}
	if p != nil {
		if path, err := storage.AutosaveCrashSnapshot(p); err != nil {
			l.Error("autosave crash snapshot failed", slog.Any("err", err))
		} else {
			l.Info("autosave crash snapshot written", slog.String("path", path))
			_, _ = fmt.Fprintf(os.Stderr, "Unsaved documents were written to: %s\n", path)
		}
	}
	_, _ = fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath)
	_, _ = fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	telemetry.Shutdown(ctx)
	cancel()
	_ = applog.Close()
	exitFn(2)
}

// reportDir is the state folder of a saved project, the temp dir otherwise.
func reportDir(p *document.Project) string {
	if p != nil && p.ProjectPath != "" {
		dir := storage.StateDir(storage.ProjectDir(p.ProjectPath))
		if err := os.MkdirAll(dir, 0o755); err == nil {
			return dir
		}
	}
	return os.TempDir()
}

func writeReport(p *document.Project, panicVal any, stack []byte) (string, error) {
	stamp := time.Now().Format("20060102-150405")
	path := filepath.Join(reportDir(p), fmt.Sprintf("crash-%s.log", stamp))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "DocuWeave Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if p != nil {
		_, _ = fmt.Fprintf(&buf, "Project: %s\n", p.Name)
		_, _ = fmt.Fprintf(&buf, "Manifest: %s\n", p.ProjectPath)
		_, _ = fmt.Fprintf(&buf, "Documents: %d\n", p.Len())
		_, _ = fmt.Fprintf(&buf, "CurrentDocument: %s\n", p.CurrentDocument())
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return path, err
	}
	// optionally upload the report (opt-in via env)
	telemetry.UploadCrash(buf.Bytes())
	return path, nil
}
