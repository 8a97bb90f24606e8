// Copyright 2025-2026 Docker, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the keystore CLI configuration from a YAML file,
// a .env file and KEYSTORE_* environment variables, in increasing order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/allisson/go-env"
	"github.com/joho/godotenv"
	"sigs.k8s.io/yaml"

	"github.com/docker/keystore/store"
)

const (
	BackendKeychain = "keychain"
	BackendPosixage = "posixage"
	BackendMemory   = "memory"

	defaultSyncTimeoutSeconds = 10
)

var backends = []string{BackendKeychain, BackendPosixage, BackendMemory}

type Config struct {
	// Backend is one of keychain, posixage or memory.
	Backend string `json:"backend"`
	Group   string `json:"group"`
	Service string `json:"service"`
	// Dir holds the posixage secrets and the settings file.
	Dir      string `json:"dir"`
	LogLevel string `json:"logLevel"`
	// OTelEndpoint enables telemetry export when set.
	OTelEndpoint       string `json:"otelEndpoint"`
	SyncTimeoutSeconds int    `json:"syncTimeoutSeconds"`

	// SyncTimeout is resolved from SyncTimeoutSeconds and the environment.
	SyncTimeout time.Duration `json:"-"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	dir := ".keystore"
	if configDir, err := os.UserConfigDir(); err == nil {
		dir = filepath.Join(configDir, "keystore")
	}
	return &Config{
		Backend:            BackendKeychain,
		Group:              "com.docker",
		Service:            "keystore",
		Dir:                dir,
		LogLevel:           "info",
		SyncTimeoutSeconds: defaultSyncTimeoutSeconds,
		SyncTimeout:        defaultSyncTimeoutSeconds * time.Second,
	}
}

// Load reads path on top of the defaults, then applies the environment. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.UnmarshalStrict(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}

	loadDotEnv()

	cfg.Backend = env.GetString("KEYSTORE_BACKEND", cfg.Backend)
	cfg.Group = env.GetString("KEYSTORE_GROUP", cfg.Group)
	cfg.Service = env.GetString("KEYSTORE_SERVICE", cfg.Service)
	cfg.Dir = env.GetString("KEYSTORE_DIR", cfg.Dir)
	cfg.LogLevel = env.GetString("KEYSTORE_LOG_LEVEL", cfg.LogLevel)
	cfg.OTelEndpoint = env.GetString("KEYSTORE_OTEL_ENDPOINT", cfg.OTelEndpoint)
	cfg.SyncTimeout = env.GetDuration("KEYSTORE_SYNC_TIMEOUT_SECONDS", int64(cfg.SyncTimeoutSeconds), time.Second)

	return cfg, nil
}

// loadDotEnv loads .env from the working directory. Variables already set
// in the environment win.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err != nil {
		return
	}
	_ = godotenv.Load(".env")
}

func (c *Config) Namespace() store.Namespace {
	return store.Namespace{Group: c.Group, Service: c.Service}
}

func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains(backends, c.Backend) {
		errs = append(errs, fmt.Errorf("unknown backend %q, must be one of %v", c.Backend, backends))
	}
	if err := c.Namespace().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Backend == BackendPosixage && c.Dir == "" {
		errs = append(errs, errors.New("posixage backend requires a directory"))
	}
	if c.SyncTimeout <= 0 {
		errs = append(errs, errors.New("sync timeout must be positive"))
	}
	return errors.Join(errs...)
}
