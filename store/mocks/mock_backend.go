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

// Package mocks provides a [store.Backend] for tests: errors can be
// injected per verb and every call is checked for overlap with another.
package mocks

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docker/keystore/store"
	"github.com/docker/keystore/store/memory"
)

type Option func(m *MockBackend)

var _ store.Backend = &MockBackend{}

type MockBackend struct {
	mem *memory.Backend

	errInsert error
	errUpdate error
	errFetch  error
	errDelete error
	ambiguous []string
	delay     time.Duration
	block     <-chan struct{}

	inFlight atomic.Int32
	overlaps atomic.Int32

	lock  sync.Mutex
	calls []Call
}

// Call records one primitive invocation.
type Call struct {
	Verb string
	ID   string
}

func NewMockBackend(options ...Option) *MockBackend {
	m := &MockBackend{
		mem: memory.New(store.Namespace{Group: "com.test.test", Service: "test"}),
	}
	for _, option := range options {
		option(m)
	}
	return m
}

func WithNamespace(ns store.Namespace) Option {
	return func(m *MockBackend) {
		m.mem = memory.New(ns)
	}
}

func WithInsertErr(err error) Option {
	return func(m *MockBackend) {
		m.errInsert = err
	}
}

func WithUpdateErr(err error) Option {
	return func(m *MockBackend) {
		m.errUpdate = err
	}
}

func WithFetchErr(err error) Option {
	return func(m *MockBackend) {
		m.errFetch = err
	}
}

func WithDeleteErr(err error) Option {
	return func(m *MockBackend) {
		m.errDelete = err
	}
}

// WithAmbiguous makes Fetch report more than one entry for each id.
func WithAmbiguous(ids ...string) Option {
	return func(m *MockBackend) {
		m.ambiguous = append(m.ambiguous, ids...)
	}
}

// WithDelay holds every call for d, widening the window in which
// overlapping calls would be detected.
func WithDelay(d time.Duration) Option {
	return func(m *MockBackend) {
		m.delay = d
	}
}

// WithBlock holds every call until ch is closed.
func WithBlock(ch <-chan struct{}) Option {
	return func(m *MockBackend) {
		m.block = ch
	}
}

func (m *MockBackend) Namespace() store.Namespace {
	return m.mem.Namespace()
}

func (m *MockBackend) Insert(ctx context.Context, id string, payload []byte) error {
	defer m.enter("insert", id)()
	if m.errInsert != nil {
		return m.errInsert
	}
	return m.mem.Insert(ctx, id, payload)
}

func (m *MockBackend) Update(ctx context.Context, id string, payload []byte) error {
	defer m.enter("update", id)()
	if m.errUpdate != nil {
		return m.errUpdate
	}
	return m.mem.Update(ctx, id, payload)
}

func (m *MockBackend) Fetch(ctx context.Context, id string) ([]byte, error) {
	defer m.enter("fetch", id)()
	if m.errFetch != nil {
		return nil, m.errFetch
	}
	if slices.Contains(m.ambiguous, id) {
		return nil, store.ErrAmbiguousMatch
	}
	return m.mem.Fetch(ctx, id)
}

func (m *MockBackend) Delete(ctx context.Context, id string) error {
	defer m.enter("delete", id)()
	if m.errDelete != nil {
		return m.errDelete
	}
	return m.mem.Delete(ctx, id)
}

// Calls returns the primitives invoked so far, in order.
func (m *MockBackend) Calls() []Call {
	m.lock.Lock()
	defer m.lock.Unlock()
	return slices.Clone(m.calls)
}

// Verbs returns the verbs of [MockBackend.Calls].
func (m *MockBackend) Verbs() []string {
	calls := m.Calls()
	verbs := make([]string, 0, len(calls))
	for _, c := range calls {
		verbs = append(verbs, c.Verb)
	}
	return verbs
}

// Overlaps counts calls that started while another call was running.
func (m *MockBackend) Overlaps() int {
	return int(m.overlaps.Load())
}

// Len returns the number of stored entries.
func (m *MockBackend) Len() int {
	return m.mem.Len()
}

func (m *MockBackend) enter(verb, id string) func() {
	if m.inFlight.Add(1) > 1 {
		m.overlaps.Add(1)
	}

	m.lock.Lock()
	m.calls = append(m.calls, Call{Verb: verb, ID: id})
	m.lock.Unlock()

	if m.block != nil {
		<-m.block
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	return func() {
		m.inFlight.Add(-1)
	}
}
