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
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"docuweave/internal/config"
	applog "docuweave/internal/log"
	"docuweave/internal/telemetry"
	"docuweave/internal/ui"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	defer shutdown()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var (
		debug bool
		cfg   config.AppConfig
	)
	root := &cobra.Command{
		Use:   "docuweave [manifest]",
		Short: "Edit hierarchical document projects",
		Long: `DocuWeave edits projects made of nested documents that link to each other.

Without a subcommand the desktop editor starts, opening the given project
manifest (*.dwproj) if one is passed. Desktop builds need -tags fyne.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			cfg = setup(debug, cmd.ErrOrStderr())
		},
		RunE: func(_ *cobra.Command, args []string) error {
			telemetry.AppStarted(cfg.Editor.Markdown)
			opts := ui.Options{Debug: debug, Config: cfg}
			if len(args) == 1 {
				opts.ProjectPath = args[0]
			}
			return ui.Run(opts)
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "log at debug level to the console")
	root.AddCommand(
		newVersionCmd(),
		newOutlineCmd(),
		newSearchCmd(),
		newBacklinksCmd(),
		newReindexCmd(),
		newRestoreCmd(),
		newExportCmd(&cfg),
		newPublishCmd(),
		newServeCmd(),
	)
	return root
}

// setup loads .env files and the user config, then initializes logging and
// telemetry from them. Config problems are logged, never fatal.
func setup(debug bool, console io.Writer) config.AppConfig {
	envErr := config.LoadDotEnv()
	cfg, cfgErr := config.Load()

	opts := applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
		Console:   console,
	}
	if debug {
		opts.Level = "debug"
		opts.Format = "console"
	}
	applog.Init(opts)
	l := applog.WithComponent("main")
	if envErr != nil {
		l.Warn("load .env failed", slog.Any("err", envErr))
	}
	if cfgErr != nil {
		l.Warn("config unreadable; using defaults", slog.Any("err", cfgErr))
	}
	telemetry.NewDefault(telemetry.FromEnv().WithOptIn(cfg.General.TelemetryOptIn))
	return cfg
}

func shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	telemetry.Shutdown(ctx)
	_ = applog.Close()
}
