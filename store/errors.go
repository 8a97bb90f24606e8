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

package store

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicatedItem is returned when adding an identifier that already
	// has an entry.
	ErrDuplicatedItem = errors.New("duplicated item")
	// ErrNoKeyFound is returned when an operation requires an entry that
	// does not exist.
	ErrNoKeyFound = errors.New("no key found")
	// ErrAmbiguousMatch is reported by backends whose facility holds more
	// than one entry for an identifier. It only reaches callers wrapped in
	// an [*UnhandledError].
	ErrAmbiguousMatch = errors.New("ambiguous match: more than one entry for identifier")
	// ErrInvalidID only reaches callers wrapped in an [*UnhandledError].
	ErrInvalidID = errors.New("invalid identifier")
)

// UnhandledError is any storage fault other than a duplicate or a missing
// entry. Err keeps the native diagnostic.
type UnhandledError struct {
	Op  string
	ID  string
	Err error
}

func (e *UnhandledError) Error() string {
	return fmt.Sprintf("keystore %s %q: %s", e.Op, e.ID, e.Err)
}

func (e *UnhandledError) Unwrap() error {
	return e.Err
}

// IsUnhandled reports whether err is, or wraps, an [*UnhandledError].
func IsUnhandled(err error) bool {
	var ue *UnhandledError
	return errors.As(err, &ue)
}

// classify reduces a backend error to one of the three kinds.
func classify(op, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case IsUnhandled(err):
		return err
	case errors.Is(err, ErrAmbiguousMatch):
		// a backend may wrap both, the fault wins
		return &UnhandledError{Op: op, ID: id, Err: err}
	case errors.Is(err, ErrDuplicatedItem), errors.Is(err, ErrNoKeyFound):
		return err
	}
	return &UnhandledError{Op: op, ID: id, Err: err}
}
