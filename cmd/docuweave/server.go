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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"docuweave/internal/backend"
	applog "docuweave/internal/log"
	"docuweave/internal/storage"
)

// serverFlags binds the flags shared by publish and serve. Unset flags keep
// the values from the environment.
func serverFlags(cmd *cobra.Command, cfg *backend.Config) {
	cmd.Flags().StringVar(&cfg.DSN, "dsn", "", "Postgres connection string (default $"+backend.EnvDSN+")")
}

func withEnv(cfg backend.Config) backend.Config {
	env := backend.ConfigFromEnv()
	if cfg.DSN == "" {
		cfg.DSN = env.DSN
	}
	if cfg.Addr == "" {
		cfg.Addr = env.Addr
	}
	if cfg.Secret == "" {
		cfg.Secret = env.Secret
	}
	return cfg
}

func newPublishCmd() *cobra.Command {
	var cfg backend.Config
	cmd := &cobra.Command{
		Use:   "publish <manifest>",
		Short: "Publish a project to the shared search server's database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg = withEnv(cfg)
			p, err := storage.Load(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), indexTimeout)
			defer cancel()
			db, err := backend.Open(ctx, cfg.DSN)
			if err != nil {
				return err
			}
			defer db.Close()
			pub, err := backend.Publish(applog.WithProject(ctx, p.ProjectPath), db, p)
			if err != nil {
				return err
			}
			cmd.Printf("published %d documents as project %d (version %d)\n", pub.Documents, pub.ProjectID, pub.Version)
			return nil
		},
	}
	serverFlags(cmd, &cfg)
	return cmd
}

func newServeCmd() *cobra.Command {
	var cfg backend.Config
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve read-only search over published projects",
		Long: `Serve answers search and backlink queries for projects pushed with
"docuweave publish". Clients obtain a bearer token from POST /api/auth/token,
signed with $` + backend.EnvSecret + `.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return backend.Serve(ctx, withEnv(cfg))
		},
	}
	serverFlags(cmd, &cfg)
	cmd.Flags().StringVar(&cfg.Addr, "addr", "", "listen address (default $"+backend.EnvAddr+" or "+backend.DefaultAddr+")")
	return cmd
}
