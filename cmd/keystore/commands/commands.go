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

// Package commands holds the keystore CLI subcommands.
package commands

import (
	"context"
	"io"

	"github.com/docker/keystore/manager"
)

// Secrets is the part of [manager.Manager] the secret commands use.
type Secrets interface {
	SaveSecret(value, id string, exec manager.Executor, completion func(bool))
	LoadSecret(id string, exec manager.Executor, completion func(*string))
	CheckSecretSync(id string) bool
	RemoveSecret(id string, exec manager.Executor, completion func(bool))
}

// Preferences is the part of [settings.Store] the pref commands use.
type Preferences interface {
	Set(key string, value any) error
	Value(key string, out any) (bool, error)
	RemoveValue(key string) error
	Keys() ([]string, error)
}

// await blocks until submit delivers its completion or ctx is done.
func await[T any](ctx context.Context, submit func(completion func(T))) (T, error) {
	ch := make(chan T, 1)
	submit(func(v T) { ch <- v })
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func readAllWithContext(ctx context.Context, r io.Reader) ([]byte, error) {
	var buf []byte
	done := make(chan error, 1)

	go func() {
		data, err := io.ReadAll(r)
		buf = data
		done <- err
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			return nil, err
		}
		return buf, nil
	}
}
