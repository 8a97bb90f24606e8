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

package manager

import (
	"sync"
)

// Executor is the context a completion is delivered on.
type Executor interface {
	Execute(fn func())
}

// ExecutorFunc adapts a function to an [Executor].
type ExecutorFunc func(fn func())

func (f ExecutorFunc) Execute(fn func()) {
	f(fn)
}

var (
	// Inline runs completions on the manager's worker goroutine. A
	// completion running inline blocks the queue until it returns and must
	// not call [Manager.Close].
	Inline Executor = ExecutorFunc(func(fn func()) { fn() })
	// Async runs every completion on its own goroutine.
	Async Executor = ExecutorFunc(func(fn func()) { go fn() })
)

// SerialExecutor runs completions one at a time, in the order they were
// handed over, on a dedicated goroutine. Execute never blocks.
type SerialExecutor struct {
	lock    sync.Mutex
	pending []func()
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

var _ Executor = &SerialExecutor{}

func NewSerialExecutor() *SerialExecutor {
	e := &SerialExecutor{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go e.loop()
	return e
}

// Execute queues fn. Once the executor is closed fn runs on the caller's
// goroutine instead.
func (e *SerialExecutor) Execute(fn func()) {
	e.lock.Lock()
	if e.closed {
		e.lock.Unlock()
		fn()
		return
	}
	e.pending = append(e.pending, fn)
	// wake is closed under the same lock
	select {
	case e.wake <- struct{}{}:
	default:
	}
	e.lock.Unlock()
}

// Close runs everything already queued and stops the goroutine.
func (e *SerialExecutor) Close() {
	e.lock.Lock()
	if !e.closed {
		e.closed = true
		close(e.wake)
	}
	e.lock.Unlock()
	<-e.done
}

func (e *SerialExecutor) loop() {
	defer close(e.done)
	for {
		_, ok := <-e.wake
		for {
			e.lock.Lock()
			batch := e.pending
			e.pending = nil
			e.lock.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, fn := range batch {
				fn()
			}
		}
		if !ok {
			return
		}
	}
}
