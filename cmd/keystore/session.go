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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/docker/keystore/internal/config"
	"github.com/docker/keystore/manager"
	"github.com/docker/keystore/settings"
	"github.com/docker/keystore/store"
	"github.com/docker/keystore/store/keychain"
	"github.com/docker/keystore/store/memory"
	"github.com/docker/keystore/store/posixage"
	"github.com/docker/keystore/x/logging"
	"github.com/docker/keystore/x/telemetry"
)

const passphraseEnv = "KEYSTORE_PASSPHRASE"

// session holds what a single CLI invocation opens. The embedded pointers
// are nil until open runs, so the commands resolve them lazily.
type session struct {
	*manager.Manager
	*settings.Store

	logger   logging.Logger
	closers  []func(ctx context.Context)
	prepared bool
}

type flags struct {
	configPath   string
	backend      string
	otelEndpoint string
	logLevel     string
}

func (s *session) open(ctx context.Context, f flags, stderr io.Writer) error {
	if s.prepared {
		return nil
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if f.backend != "" {
		cfg.Backend = f.backend
	}
	if f.otelEndpoint != "" {
		cfg.OTelEndpoint = f.otelEndpoint
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	s.logger = logging.NewDefaultLogger("keystore", logging.WithOut(stderr), logging.WithLevel(cfg.LogLevel))

	if cfg.OTelEndpoint != "" {
		shutdown, err := telemetry.Initialize(ctx, telemetry.Config{Endpoint: cfg.OTelEndpoint}, s.logger)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, func(ctx context.Context) { shutdown(ctx) })
	}

	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return err
	}
	root, err := os.OpenRoot(cfg.Dir)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, func(context.Context) { _ = root.Close() })

	backend, err := s.newBackend(cfg, root)
	if err != nil {
		return err
	}
	ks, err := store.New(backend, store.WithLogger(s.logger))
	if err != nil {
		return err
	}
	m, err := manager.New(ks,
		manager.WithLogger(s.logger),
		manager.WithSyncTimeout(cfg.SyncTimeout),
	)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, func(context.Context) { m.Close() })

	prefs, err := settings.New(root, settings.WithLogger(s.logger))
	if err != nil {
		return err
	}

	s.Manager = m
	s.Store = prefs
	s.prepared = true
	return nil
}

func (s *session) newBackend(cfg *config.Config, root *os.Root) (store.Backend, error) {
	ns := cfg.Namespace()
	switch cfg.Backend {
	case config.BackendKeychain:
		return keychain.New(ns, keychain.WithLogger(s.logger))
	case config.BackendPosixage:
		b, err := posixage.New(root, ns,
			posixage.WithLogger(s.logger),
			posixage.WithEncryptionCallbackFunc(posixage.EncryptionPassword(passphrase)),
			posixage.WithDecryptionCallbackFunc(posixage.DecryptionPassword(passphrase)),
		)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func(context.Context) { _ = b.Close() })
		return b, nil
	case config.BackendMemory:
		return memory.New(ns), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// close releases resources in reverse order of acquisition.
func (s *session) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i](ctx)
	}
	s.closers = nil
}

// passphrase reads the posixage passphrase from the environment or, on a
// terminal, from the user.
func passphrase(_ context.Context) ([]byte, error) {
	if v, ok := os.LookupEnv(passphraseEnv); ok {
		return []byte(v), nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("no passphrase: set " + passphraseEnv + " or run on a terminal")
	}
	fmt.Fprint(os.Stderr, "Passphrase: ")
	defer fmt.Fprintln(os.Stderr)
	return term.ReadPassword(fd)
}
