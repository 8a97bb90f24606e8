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

package testhelper

import (
	"errors"
	"testing"
	"time"

	"github.com/docker/keystore/x/logging"
)

// DefaultTimeout bounds how long tests wait for an async completion.
const DefaultTimeout = 10 * time.Second

func WaitForClosedWithTimeout(in <-chan struct{}) error {
	select {
	case <-in:
		return nil
	case <-time.After(DefaultTimeout):
		return errors.New("timeout")
	}
}

func WaitForWithTimeoutV[T any](ch <-chan T) (T, error) {
	return WaitForWithExplicitTimeoutV(ch, DefaultTimeout)
}

func WaitForWithExplicitTimeoutV[T any](ch <-chan T, timeout time.Duration) (T, error) {
	var zero T
	select {
	case val, ok := <-ch:
		if !ok {
			return zero, errors.New("channel closed")
		}
		return val, nil
	case <-time.After(timeout):
		return zero, errors.New("timeout")
	}
}

// TestLogger returns a [logging.Logger] that writes through t.Logf.
func TestLogger(t testing.TB) logging.Logger {
	return &testLogger{t: t}
}

type testLogger struct {
	t testing.TB
}

func (l *testLogger) Printf(format string, v ...any) {
	l.t.Helper()
	l.t.Logf(format, v...)
}

func (l *testLogger) Warnf(format string, v ...any) {
	l.t.Helper()
	l.t.Logf("[WARN] "+format, v...)
}

func (l *testLogger) Errorf(format string, v ...any) {
	l.t.Helper()
	l.t.Logf("[ERR] "+format, v...)
}
