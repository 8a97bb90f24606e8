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

// Package oshelper ties process signals to contexts.
package oshelper

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
)

// SignalError is the cancellation cause of a context returned by
// [NotifyContext] when one of its signals arrives.
type SignalError struct {
	Signal os.Signal
}

func (e SignalError) Error() string {
	return "received " + e.Signal.String()
}

// ExitCode follows the shell convention of 128 plus the signal number.
func (e SignalError) ExitCode() int {
	if s, ok := e.Signal.(syscall.Signal); ok {
		return 128 + int(s)
	}
	return 1
}

// NotifyContext is like [signal.NotifyContext] but records which signal
// cancelled the context. Retrieve it with [TerminatedBy].
func NotifyContext(ctx context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)

	ctxCause, cancel := context.WithCancelCause(ctx)

	go func() {
		defer signal.Stop(ch)
		select {
		case <-ctxCause.Done():
		case sig := <-ch:
			cancel(SignalError{Signal: sig})
		}
	}()

	return ctxCause, func() {
		signal.Stop(ch)
		cancel(nil)
	}
}

// TerminatedBy reports the signal that cancelled ctx, if any.
func TerminatedBy(ctx context.Context) (SignalError, bool) {
	var sig SignalError
	ok := errors.As(context.Cause(ctx), &sig)
	return sig, ok
}
