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

// Package memory is an in-process [store.Backend]. Each Backend is its own
// namespace; nothing is persisted.
package memory

import (
	"bytes"
	"context"
	"sync"

	"github.com/docker/keystore/store"
)

type Backend struct {
	ns      store.Namespace
	lock    sync.RWMutex
	entries map[string][]byte
}

var _ store.Backend = &Backend{}

func New(ns store.Namespace) *Backend {
	return &Backend{ns: ns, entries: map[string][]byte{}}
}

func (b *Backend) Namespace() store.Namespace {
	return b.ns
}

func (b *Backend) Insert(_ context.Context, id string, payload []byte) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if _, exists := b.entries[id]; exists {
		return store.ErrDuplicatedItem
	}
	b.entries[id] = bytes.Clone(payload)
	return nil
}

func (b *Backend) Update(_ context.Context, id string, payload []byte) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if _, exists := b.entries[id]; !exists {
		return store.ErrNoKeyFound
	}
	b.entries[id] = bytes.Clone(payload)
	return nil
}

func (b *Backend) Fetch(_ context.Context, id string) ([]byte, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	payload, exists := b.entries[id]
	if !exists {
		return nil, store.ErrNoKeyFound
	}
	return bytes.Clone(payload), nil
}

func (b *Backend) Delete(_ context.Context, id string) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if _, exists := b.entries[id]; !exists {
		return store.ErrNoKeyFound
	}
	delete(b.entries, id)
	return nil
}

// Len returns the number of stored entries.
func (b *Backend) Len() int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return len(b.entries)
}
