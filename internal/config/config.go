/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Editor        EditorConfig  `yaml:"editor"`
	Logging       LoggingConfig `yaml:"logging"`
}

type GeneralConfig struct {
	TelemetryOptIn bool     `yaml:"telemetry_opt_in"`
	Theme          string   `yaml:"theme"` // "system" | "light" | "dark"
	RecentProjects []string `yaml:"recent_projects,omitempty"`
}

type EditorConfig struct {
	// RenderCacheSize bounds the number of rendered documents kept in memory.
	RenderCacheSize int `yaml:"render_cache_size"`
	// Markdown makes the editor treat document content as Markdown source.
	Markdown bool `yaml:"markdown"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// MaxRecentProjects bounds GeneralConfig.RecentProjects.
const MaxRecentProjects = 10

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{Theme: "system"},
		Editor:        EditorConfig{RenderCacheSize: 128},
		Logging:       LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigDir       = "DW_CONFIG_DIR"
	EnvTelemetryOptIn  = "DW_TELEMETRY_OPT_IN"
	EnvRenderCacheSize = "DW_RENDER_CACHE_SIZE"
	EnvMarkdown        = "DW_MARKDOWN"
	EnvLogLevel        = "DW_LOG_LEVEL"
	EnvLogFormat       = "DW_LOG_FORMAT"
	EnvLogSource       = "DW_LOG_SOURCE"
	EnvLogFile         = "DW_LOG_FILE"
)

// ConfigPath returns the per-user config file path. DW_CONFIG_DIR replaces the
// per-OS directory.
func ConfigPath() (string, error) {
	base := strings.TrimSpace(os.Getenv(EnvConfigDir))
	if base == "" {
		switch runtime.GOOS {
		case "windows":
			base = os.Getenv("AppData")
			if base == "" {
				base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
			}
			base = filepath.Join(base, "DocuWeave")
		case "darwin":
			base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "DocuWeave")
		default:
			if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
				base = filepath.Join(xdg, "docuweave")
			} else if home := os.Getenv("HOME"); home != "" {
				base = filepath.Join(home, ".config", "docuweave")
			}
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none are
// given) into the environment. Variables already set win; missing files are
// ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the user config file (if present), applies defaults and merges
// environment overrides. A malformed file is reported together with the
// defaults-plus-env config so callers can continue.
func Load() (AppConfig, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		applyEnvOverrides(&cfg)
		return cfg, err
	}
	var fileErr error
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			fileErr = fmt.Errorf("parse %s: %w", path, err)
		} else {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, fileErr
}

// Save writes the user config YAML.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// AddRecentProject moves path to the front of the recent projects list.
func (c *AppConfig) AddRecentProject(path string) {
	path = strings.TrimSpace(path)
	if path == "" {
		return
	}
	list := []string{path}
	for _, p := range c.General.RecentProjects {
		if p != path && len(list) < MaxRecentProjects {
			list = append(list, p)
		}
	}
	c.General.RecentProjects = list
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if src.General.Theme != "" {
		dst.General.Theme = src.General.Theme
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	dst.General.RecentProjects = append([]string(nil), src.General.RecentProjects...)
	if src.Editor.RenderCacheSize > 0 {
		dst.Editor.RenderCacheSize = src.Editor.RenderCacheSize
	}
	dst.Editor.Markdown = src.Editor.Markdown
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func parseBool(v string) bool {
	lv := strings.ToLower(strings.TrimSpace(v))
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.General.TelemetryOptIn = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvRenderCacheSize)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Editor.RenderCacheSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvMarkdown)); v != "" {
		cfg.Editor.Markdown = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	env := map[string]string{
		"general.telemetry_opt_in": EnvTelemetryOptIn,
		"editor.render_cache_size": EnvRenderCacheSize,
		"editor.markdown":          EnvMarkdown,
		"logging.level":            EnvLogLevel,
		"logging.format":           EnvLogFormat,
		"logging.source":           EnvLogSource,
		"logging.file":             EnvLogFile,
	}[key]
	if env != "" && os.Getenv(env) != "" {
		return env, true
	}
	return "", false
}
