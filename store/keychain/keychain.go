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

// Package keychain stores secrets in the operating system's credential
// store: the macOS Keychain, the Secret Service on Linux and the Windows
// Credential Manager.
package keychain

import (
	"errors"

	"github.com/docker/keystore/store"
	"github.com/docker/keystore/x/logging"
)

// ErrUnsupportedPlatform is returned by [New] on platforms without a
// supported credential store.
var ErrUnsupportedPlatform = errors.New("no keychain available on this platform")

type Backend struct {
	ns     store.Namespace
	logger logging.Logger
}

var _ store.Backend = &Backend{}

type Option func(b *Backend)

func WithLogger(logger logging.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates a keychain backed [store.Backend] for ns.
//
// On macOS ns.Group must match one of the application's Keychain Access
// Groups. This prevents access from applications outside the group.
// https://developer.apple.com/documentation/security/sharing-access-to-keychain-items-among-a-collection-of-apps#Set-your-apps-access-groups
//
// On Linux the group and service are added to the attributes of a secret to
// tag the item. The Secret Service API has no concept of a scoped item per
// application inside a collection, so other applications can still read it.
//
// On Windows they prefix the credential's target name.
func New(ns store.Namespace, opts ...Option) (*Backend, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	if !supported {
		return nil, ErrUnsupportedPlatform
	}
	b := &Backend{ns: ns, logger: logging.Noop()}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *Backend) Namespace() store.Namespace {
	return b.ns
}

// itemLabel prefixes a secret id with the namespace, e.g. group:service:id
func (b *Backend) itemLabel(id string) string {
	return b.ns.String() + ":" + id
}

const (
	serviceGroupKey = "service:group"
	serviceNameKey  = "service:name"
	secretIDKey     = "id"
)

func (b *Backend) itemAttributes(id string) map[string]string {
	return map[string]string{
		serviceGroupKey: b.ns.Group,
		serviceNameKey:  b.ns.Service,
		secretIDKey:     id,
	}
}
