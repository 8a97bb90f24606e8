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

// Package store is a synchronous key-value abstraction over platform
// protected secret storage.
//
// A [Keystore] fronts a [Backend] and reduces every outcome to three kinds
// of failure: [ErrDuplicatedItem], [ErrNoKeyFound] and [*UnhandledError].
package store

import (
	"context"
	"errors"
	"strings"
)

// Namespace scopes a set of entries. Two namespaces never observe each
// other's entries.
//
// On macOS the Group should match one of the application's Keychain Access
// Groups. On Linux and Windows both fields only tag the stored items.
type Namespace struct {
	// Group is shared by many applications, e.g. com.docker.
	Group string
	// Service names the application storing the secrets. Changing it
	// orphans everything stored under the previous name.
	Service string
}

func (n Namespace) Validate() error {
	if n.Group == "" || n.Service == "" {
		return errors.New("namespace group and service are required")
	}
	if strings.ContainsRune(n.Group, ':') || strings.ContainsRune(n.Service, ':') {
		return errors.New("namespace group and service must not contain ':'")
	}
	return nil
}

// String returns group:service.
func (n Namespace) String() string {
	return n.Group + ":" + n.Service
}

// Backend is the narrow interface to a secure storage facility.
//
// Implementations map their native status codes onto [ErrDuplicatedItem],
// [ErrNoKeyFound] and [ErrAmbiguousMatch]; anything else is returned as is
// and reported by the [Keystore] as an [*UnhandledError].
type Backend interface {
	Namespace() Namespace
	// Insert stores a new entry. It returns ErrDuplicatedItem if id is
	// already present.
	Insert(ctx context.Context, id string, payload []byte) error
	// Update replaces the payload of an existing entry. It returns
	// ErrNoKeyFound if id is absent and never creates an entry.
	Update(ctx context.Context, id string, payload []byte) error
	// Fetch returns ErrNoKeyFound if id is absent and ErrAmbiguousMatch if
	// the facility holds more than one entry for it.
	Fetch(ctx context.Context, id string) ([]byte, error)
	// Delete returns ErrNoKeyFound if id is absent.
	Delete(ctx context.Context, id string) error
}
