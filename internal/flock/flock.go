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

// Package flock coordinates processes sharing a directory through an
// advisory lock file inside an [os.Root].
package flock

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/docker/keystore/x/logging"
)

var (
	ErrLockUnsuccessful   = errors.New("store is locked")
	ErrUnlockUnsuccessful = errors.New("could not unlock store")

	// errContended is a lock held by someone else, worth retrying
	errContended = errors.New("lock is held by another process")
)

const (
	defaultLockTimeout = 100 * time.Millisecond
	defaultStaleAfter  = 30 * time.Second
)

// UnlockFunc releases a lock. It is safe to call more than once.
type UnlockFunc func() error

// Locker hands out shared and exclusive locks on a single lock file.
type Locker struct {
	root       *os.Root
	name       string
	timeout    time.Duration
	staleAfter time.Duration
	logger     logging.Logger
}

type Option func(l *Locker)

// WithTimeout bounds how long a single acquisition retries before giving up
// and attempting stale lock recovery.
func WithTimeout(d time.Duration) Option {
	return func(l *Locker) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithStaleAfter sets the age after which a lock file that cannot be locked
// is considered abandoned by a crashed process.
func WithStaleAfter(d time.Duration) Option {
	return func(l *Locker) {
		if d > 0 {
			l.staleAfter = d
		}
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(l *Locker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func New(root *os.Root, name string, opts ...Option) *Locker {
	l := &Locker{
		root:       root,
		name:       name,
		timeout:    defaultLockTimeout,
		staleAfter: defaultStaleAfter,
		logger:     logging.Noop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock acquires an exclusive lock.
func (l *Locker) Lock(ctx context.Context) (UnlockFunc, error) {
	return l.tryLock(ctx, true)
}

// RLock acquires a shared lock.
func (l *Locker) RLock(ctx context.Context) (UnlockFunc, error) {
	return l.tryLock(ctx, false)
}

func (l *Locker) openFile() (*os.File, error) {
	// read-write so that Truncate can bump the modtime once we hold the lock
	return l.root.OpenFile(l.name, os.O_RDWR|os.O_CREATE, 0o600)
}

func (l *Locker) tryLock(ctx context.Context, exclusive bool) (UnlockFunc, error) {
	fl, err := l.openFile()
	if err != nil {
		return nil, err
	}

	contended, lockErr := l.retryLock(ctx, fl, exclusive)
	if lockErr == nil {
		return unlocker(fl), nil
	}
	if !contended {
		_ = fl.Close()
		return nil, lockErr
	}

	// recoverStaleLock always closes fl
	if recoverErr := l.recoverStaleLock(fl); recoverErr != nil {
		return nil, errors.Join(lockErr, recoverErr)
	}

	fl, err = l.openFile()
	if err != nil {
		return nil, err
	}
	if _, err := l.retryLock(ctx, fl, exclusive); err != nil {
		_ = fl.Close()
		return nil, err
	}
	return unlocker(fl), nil
}

func unlocker(fl *os.File) UnlockFunc {
	return sync.OnceValue(func() error {
		return unlockFile(fl)
	})
}

// retryLock retries while the lock is contended. contended tells whether
// the last attempt failed because another process holds the lock.
func (l *Locker) retryLock(ctx context.Context, f *os.File, exclusive bool) (contended bool, err error) {
	lockCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	ep := backoff.NewExponentialBackOff()
	ep.InitialInterval = 10 * time.Millisecond
	ep.MaxInterval = l.timeout
	var last error
	_, err = backoff.Retry(lockCtx, func() (bool, error) {
		last = lockFile(f, exclusive)
		switch {
		case last == nil:
			return true, nil
		case errors.Is(last, errContended):
			return false, last
		}
		return false, backoff.Permanent(last)
	}, backoff.WithBackOff(ep))
	if err != nil {
		return errors.Is(last, errContended), errors.Join(ErrLockUnsuccessful, err)
	}

	// a fresh modtime tells other processes this lock is alive
	_ = f.Truncate(0)
	return false, nil
}
