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

package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

type Logger interface {
	Printf(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
}

type Option func(l *defaultLogger)

func WithOut(out io.Writer) Option {
	return func(l *defaultLogger) {
		if out == nil {
			return
		}
		l.logger.SetOutput(out)
	}
}

// WithLevel sets the minimum level that gets written. Unknown level names
// leave the logger at info.
func WithLevel(level string) Option {
	return func(l *defaultLogger) {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return
		}
		l.logger.SetLevel(lvl)
	}
}

type defaultLogger struct {
	logger *logrus.Logger
	prefix string
}

func newLogrusLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006/01/02 15:04:05",
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

func NewDefaultLogger(prefix string, options ...Option) Logger {
	if prefix != "" && !strings.HasSuffix(prefix, ": ") {
		prefix += ": "
	}
	logger := &defaultLogger{prefix: prefix, logger: newLogrusLogger(os.Stderr)}
	for _, option := range options {
		option(logger)
	}
	return logger
}

func (d *defaultLogger) Printf(format string, v ...any) {
	d.logger.WithField("caller", caller()).Infof(d.prefix+format, v...)
}

func (d *defaultLogger) Warnf(format string, v ...any) {
	d.logger.WithField("caller", caller()).Warnf(d.prefix+format, v...)
}

func (d *defaultLogger) Errorf(format string, v ...any) {
	d.logger.WithFields(logrus.Fields{
		"caller": caller(),
		"stack":  stackTrace(),
	}).Errorf(d.prefix+format, v...)
}

func caller() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%d", file, line) // Note: Additionally set -trimpath when building to not leak anything from the file path
}

// Similar to debug.Stack() except it skips the top 3 frames which include the logger itself
// to keep the logs focused on the actual relevant stack traces.
func stackTrace() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var trace strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&trace, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return trace.String()
}

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

func (noopLogger) Warnf(string, ...any) {}

func (noopLogger) Errorf(string, ...any) {}

// Noop returns a logger that discards everything. Libraries in this module
// use it when the caller did not configure one.
func Noop() Logger {
	return noopLogger{}
}

type loggerKey struct{}

// WithLogger returns a new context with the provided logger.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext retrieves the current logger from the context.
func FromContext(ctx context.Context) (Logger, error) {
	if logger, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return logger, nil
	}
	return nil, errors.New("no logger found in context")
}
