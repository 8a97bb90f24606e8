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

// Package settings persists non-secret preferences in a YAML file.
//
// Reading a key that was never set reports that there is no value; getters
// never fall back to a default. Several processes may share the file.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"sigs.k8s.io/yaml"

	"github.com/docker/keystore/internal/flock"
	"github.com/docker/keystore/x/logging"
)

const (
	DefaultFileName = "settings.yaml"
	lockFileName    = ".settings.lock"
)

type Store struct {
	root     *os.Root
	fileName string
	locker   *flock.Locker
	logger   logging.Logger
	mu       sync.RWMutex
}

type Option func(s *Store)

func WithLogger(logger logging.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithFileName(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.fileName = name
		}
	}
}

// New returns a Store keeping its file inside root.
func New(root *os.Root, opts ...Option) (*Store, error) {
	if root == nil {
		return nil, errors.New("root is required")
	}
	s := &Store{
		root:     root,
		fileName: DefaultFileName,
		logger:   logging.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.locker = flock.New(root, lockFileName, flock.WithLogger(s.logger))
	return s, nil
}

// Set stores value under key. value must be encodable as JSON.
func (s *Store) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %q: %w", key, err)
	}
	return s.update(func(values map[string]json.RawMessage) bool {
		values[key] = raw
		return true
	})
}

// RemoveValue deletes key. Removing a missing key is not an error.
func (s *Store) RemoveValue(key string) error {
	return s.update(func(values map[string]json.RawMessage) bool {
		if _, ok := values[key]; !ok {
			return false
		}
		delete(values, key)
		return true
	})
}

func (s *Store) Bool(key string) (bool, bool) {
	return get[bool](s, key)
}

func (s *Store) Integer(key string) (int64, bool) {
	return get[int64](s, key)
}

func (s *Store) Double(key string) (float64, bool) {
	return get[float64](s, key)
}

func (s *Store) Data(key string) ([]byte, bool) {
	return get[[]byte](s, key)
}

func (s *Store) String(key string) (string, bool) {
	return get[string](s, key)
}

// Value decodes the value of key into out, which must be a pointer. It
// reports false without touching out when key is not set.
func (s *Store) Value(key string, out any) (bool, error) {
	raw, ok, err := s.raw(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decoding %q: %w", key, err)
	}
	return true, nil
}

// Keys returns every key that has a value.
func (s *Store) Keys() ([]string, error) {
	values, err := s.read()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	return keys, nil
}

// get reports false both for a missing key and for a value of another
// type.
func get[T any](s *Store, key string) (T, bool) {
	var v T
	raw, ok, err := s.raw(key)
	if err != nil {
		s.logger.Errorf("reading %q: %s", key, err)
		return v, false
	}
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		s.logger.Warnf("%q does not hold a %T: %s", key, v, err)
		return v, false
	}
	return v, true
}

func (s *Store) raw(key string) (json.RawMessage, bool, error) {
	values, err := s.read()
	if err != nil {
		return nil, false, err
	}
	raw, ok := values[key]
	if !ok || string(raw) == "null" {
		return nil, false, nil
	}
	return raw, true, nil
}

func (s *Store) read() (map[string]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	unlock, err := s.locker.RLock(context.Background())
	if err != nil {
		return nil, err
	}
	defer s.unlock(unlock)

	return s.load()
}

// update runs fn on the current values and writes them back if fn reports
// a change.
func (s *Store) update(fn func(values map[string]json.RawMessage) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.locker.Lock(context.Background())
	if err != nil {
		return err
	}
	defer s.unlock(unlock)

	values, err := s.load()
	if err != nil {
		return err
	}
	if !fn(values) {
		return nil
	}

	data, err := yaml.Marshal(values)
	if err != nil {
		return err
	}
	return atomicWrite(s.root, s.fileName, data)
}

func (s *Store) unlock(unlock flock.UnlockFunc) {
	if err := unlock(); err != nil {
		s.logger.Errorf("%s", err)
	}
}

func (s *Store) load() (map[string]json.RawMessage, error) {
	values := map[string]json.RawMessage{}
	data, err := s.root.ReadFile(s.fileName)
	if errors.Is(err, fs.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.fileName, err)
	}
	if values == nil {
		values = map[string]json.RawMessage{}
	}
	return values, nil
}

func atomicWrite(root *os.Root, fileName string, data []byte) error {
	tmpFileName := fileName + ".tmp"
	f, err := root.OpenFile(tmpFileName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return root.Rename(tmpFileName, fileName)
}
