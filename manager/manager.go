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

// Package manager serializes access to a [store.Keystore] and reports
// results asynchronously.
//
// All operations submitted to a [Manager] run one at a time, in submission
// order, on a single worker goroutine. Submitting never blocks: the queue
// is unbounded and the result is handed to the [Executor] passed along with
// the operation. Failures are flattened to false or nil, use the
// [store.Keystore] directly when the kind of failure matters.
package manager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/docker/keystore/store"
	"github.com/docker/keystore/x/logging"
)

const DefaultSyncTimeout = 10 * time.Second

var ErrClosed = errors.New("manager is closed")

type opKind string

const (
	opSave   opKind = "save"
	opLoad   opKind = "load"
	opCheck  opKind = "check"
	opRemove opKind = "remove"
)

type result struct {
	ok    bool
	value []byte
}

// pendingOperation lives from submission until its completion is handed
// to the executor. A nil complete means nobody asked for the result.
type pendingOperation struct {
	opID     string
	kind     opKind
	id       string
	payload  []byte
	exec     Executor
	complete func(result)
}

// Manager is meant to be created once per namespace and shared.
type Manager struct {
	ks          *store.Keystore
	logger      logging.Logger
	syncTimeout time.Duration
	ctx         context.Context

	lock    sync.Mutex
	pending []*pendingOperation
	closed  bool
	wake    chan struct{}
	done    chan struct{}

	// storage is held while an operation touches the keystore
	storage sync.Mutex
	// delivering is set while the worker hands a result to an executor,
	// which is when an Inline completion runs on the worker itself.
	delivering atomic.Bool
}

type config struct {
	logger      logging.Logger
	syncTimeout time.Duration
}

type Option func(c *config)

func WithLogger(logger logging.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSyncTimeout bounds [Manager.CheckSecretSync].
func WithSyncTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.syncTimeout = d
		}
	}
}

func New(ks *store.Keystore, opts ...Option) (*Manager, error) {
	if ks == nil {
		return nil, errors.New("keystore is required")
	}
	cfg := &config{
		logger:      logging.Noop(),
		syncTimeout: DefaultSyncTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	m := &Manager{
		ks:          ks,
		logger:      cfg.logger,
		syncTimeout: cfg.syncTimeout,
		ctx:         logging.WithLogger(context.Background(), cfg.logger),
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	go m.run()
	return m, nil
}

func (m *Manager) Namespace() store.Namespace {
	return m.ks.Namespace()
}

// SaveSecret stores value under id, replacing any previous value.
// completion receives true on success.
func (m *Manager) SaveSecret(value, id string, exec Executor, completion func(bool)) {
	m.submit(&pendingOperation{
		kind:     opSave,
		id:       id,
		payload:  []byte(value),
		exec:     exec,
		complete: report(completion, func(r result) bool { return r.ok }),
	})
}

// LoadSecret hands the value stored under id to completion, or nil if
// there is none or it could not be read.
func (m *Manager) LoadSecret(id string, exec Executor, completion func(*string)) {
	m.submit(&pendingOperation{
		kind: opLoad,
		id:   id,
		exec: exec,
		complete: report(completion, func(r result) *string {
			if !r.ok {
				return nil
			}
			value := string(r.value)
			return &value
		}),
	})
}

// CheckSecret reports whether id has a value. Faults are reported as false.
func (m *Manager) CheckSecret(id string, exec Executor, completion func(bool)) {
	m.submit(&pendingOperation{
		kind:     opCheck,
		id:       id,
		exec:     exec,
		complete: report(completion, func(r result) bool { return r.ok }),
	})
}

// CheckSecretSync is [Manager.CheckSecret] for callers that can block. It
// gives up with false after the configured sync timeout.
//
// Called from a completion running on [Inline], it runs the check right
// away instead of queueing behind the worker it is blocking.
func (m *Manager) CheckSecretSync(id string) bool {
	if m.delivering.Load() {
		return m.executeNow(&pendingOperation{kind: opCheck, id: id, opID: uuid.NewString()}).ok
	}

	ch := make(chan bool, 1)
	m.CheckSecret(id, Inline, func(found bool) {
		ch <- found
	})

	timer := time.NewTimer(m.syncTimeout)
	defer timer.Stop()
	select {
	case found := <-ch:
		return found
	case <-timer.C:
		m.logger.Warnf("check %q did not complete within %s", id, m.syncTimeout)
		return false
	}
}

// RemoveSecret deletes the value stored under id. completion receives
// true only if there was a value and it was removed.
func (m *Manager) RemoveSecret(id string, exec Executor, completion func(bool)) {
	m.submit(&pendingOperation{
		kind:     opRemove,
		id:       id,
		exec:     exec,
		complete: report(completion, func(r result) bool { return r.ok }),
	})
}

// Close runs every operation already submitted and stops the worker.
// Operations submitted afterwards fail straight away. Close must not be
// called from a completion running on [Inline].
func (m *Manager) Close() {
	m.lock.Lock()
	m.closed = true
	m.signal()
	m.lock.Unlock()
	<-m.done
}

// signal wakes the worker. The caller holds m.lock.
func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) submit(op *pendingOperation) {
	if op.exec == nil {
		op.exec = Inline
	}
	op.opID = uuid.NewString()

	m.lock.Lock()
	if !m.closed {
		m.pending = append(m.pending, op)
		m.signal()
		m.lock.Unlock()
		return
	}
	m.lock.Unlock()

	m.logger.Warnf("%s %q (op %s): %s", op.kind, op.id, op.opID, ErrClosed)
	m.deliver(op, result{})
}

// next blocks until there is an operation to run. It returns nil once the
// manager is closed and the queue is drained.
func (m *Manager) next() *pendingOperation {
	m.lock.Lock()
	defer m.lock.Unlock()
	for len(m.pending) == 0 {
		if m.closed {
			return nil
		}
		m.lock.Unlock()
		<-m.wake
		m.lock.Lock()
	}
	op := m.pending[0]
	m.pending[0] = nil
	m.pending = m.pending[1:]
	return op
}

func (m *Manager) run() {
	defer close(m.done)
	for op := m.next(); op != nil; op = m.next() {
		r := m.executeNow(op)

		m.delivering.Store(true)
		m.deliver(op, r)
		m.delivering.Store(false)
	}
}

func (m *Manager) deliver(op *pendingOperation, r result) {
	if op.complete == nil {
		return
	}
	op.exec.Execute(func() {
		op.complete(r)
	})
}

func (m *Manager) executeNow(op *pendingOperation) result {
	m.storage.Lock()
	defer m.storage.Unlock()
	return m.execute(op)
}

func (m *Manager) execute(op *pendingOperation) result {
	var (
		r   result
		err error
	)
	switch op.kind {
	case opSave:
		err = m.ks.SaveKey(m.ctx, op.id, op.payload)
		r.ok = err == nil
	case opLoad:
		r.value, err = m.ks.FetchKey(m.ctx, op.id)
		r.ok = err == nil
		if errors.Is(err, store.ErrNoKeyFound) && !store.IsUnhandled(err) {
			err = nil
		}
	case opCheck:
		r.ok, err = m.ks.CheckKey(m.ctx, op.id)
	case opRemove:
		r.ok, err = m.remove(op.id)
	}
	if err != nil {
		m.logger.Warnf("%s %q (op %s) failed: %s", op.kind, op.id, op.opID, err)
		return result{}
	}
	return r
}

// remove reports whether an entry existed and was deleted by this call.
func (m *Manager) remove(id string) (bool, error) {
	err := m.ks.DeleteKey(m.ctx, id)
	if errors.Is(err, store.ErrNoKeyFound) && !store.IsUnhandled(err) {
		return false, nil
	}
	return err == nil, err
}

// report adapts a typed completion. A nil completion yields nil.
func report[T any](completion func(T), convert func(result) T) func(result) {
	if completion == nil {
		return nil
	}
	return func(r result) {
		completion(convert(r))
	}
}
