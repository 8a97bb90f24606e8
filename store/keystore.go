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
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/docker/keystore/x/logging"
)

// Keystore exposes add/update/fetch/check/delete over a [Backend].
//
// Every call is atomic at the storage level but a Keystore does not
// serialize calls against each other. Use the manager package when several
// goroutines share a namespace.
type Keystore struct {
	backend Backend
	ns      Namespace
	logger  logging.Logger
	inst    *instruments
}

type config struct {
	logger         logging.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

type Option func(c *config)

func WithLogger(logger logging.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		c.tracerProvider = tp
	}
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProvider = mp
	}
}

func New(backend Backend, opts ...Option) (*Keystore, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	ns := backend.Namespace()
	if err := ns.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backend: %w", err)
	}

	cfg := &config{logger: logging.Noop()}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Keystore{
		backend: backend,
		ns:      ns,
		logger:  cfg.logger,
		inst:    newInstruments(cfg.tracerProvider, cfg.meterProvider),
	}, nil
}

func (k *Keystore) Namespace() Namespace {
	return k.ns
}

// AddKey stores payload under a new id. It fails with [ErrDuplicatedItem]
// if id already has an entry.
func (k *Keystore) AddKey(ctx context.Context, id string, payload []byte) error {
	return k.inst.observe(ctx, k.ns, "add", func(ctx context.Context) error {
		return k.add(ctx, id, payload)
	})
}

// UpdateKey overwrites the payload of an existing entry. It fails with
// [ErrNoKeyFound] if id is absent and never creates an entry.
func (k *Keystore) UpdateKey(ctx context.Context, id string, payload []byte) error {
	return k.inst.observe(ctx, k.ns, "update", func(ctx context.Context) error {
		return k.update(ctx, id, payload)
	})
}

// FetchKey returns the payload stored under id, or [ErrNoKeyFound]. An
// existing empty payload is returned as an empty, non-nil slice.
func (k *Keystore) FetchKey(ctx context.Context, id string) ([]byte, error) {
	var payload []byte
	err := k.inst.observe(ctx, k.ns, "fetch", func(ctx context.Context) error {
		var err error
		payload, err = k.fetch(ctx, "fetch", id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// CheckKey reports whether id has an entry. A missing entry is not an error.
func (k *Keystore) CheckKey(ctx context.Context, id string) (bool, error) {
	var found bool
	err := k.inst.observe(ctx, k.ns, "check", func(ctx context.Context) error {
		_, err := k.fetch(ctx, "check", id)
		switch {
		case err == nil:
			found = true
			return nil
		case errors.Is(err, ErrNoKeyFound) && !IsUnhandled(err):
			return nil
		}
		return err
	})
	return found, err
}

// DeleteKey removes the entry for id. It fails with [ErrNoKeyFound] if id
// is absent.
func (k *Keystore) DeleteKey(ctx context.Context, id string) error {
	return k.inst.observe(ctx, k.ns, "delete", func(ctx context.Context) error {
		return k.delete(ctx, "delete", id)
	})
}

// DeleteKeyIfExists removes the entry for id if there is one.
func (k *Keystore) DeleteKeyIfExists(ctx context.Context, id string) error {
	return k.inst.observe(ctx, k.ns, "delete_if_exists", func(ctx context.Context) error {
		err := k.delete(ctx, "delete_if_exists", id)
		if errors.Is(err, ErrNoKeyFound) && !IsUnhandled(err) {
			return nil
		}
		return err
	})
}

// DeleteKeysIfExist calls [Keystore.DeleteKeyIfExists] for each id in
// order and stops at the first failure. Deletions that already happened are
// not rolled back.
func (k *Keystore) DeleteKeysIfExist(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := k.DeleteKeyIfExists(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// SaveKey adds payload under id, or updates the existing entry when the add
// fails with [ErrDuplicatedItem]. Any other failure is returned unchanged.
func (k *Keystore) SaveKey(ctx context.Context, id string, payload []byte) error {
	return k.inst.observe(ctx, k.ns, "save", func(ctx context.Context) error {
		err := k.add(ctx, id, payload)
		if !errors.Is(err, ErrDuplicatedItem) || IsUnhandled(err) {
			return err
		}
		return k.update(ctx, id, payload)
	})
}

func (k *Keystore) add(ctx context.Context, id string, payload []byte) error {
	if err := ValidateID(id); err != nil {
		return &UnhandledError{Op: "add", ID: id, Err: err}
	}
	err := classify("add", id, k.backend.Insert(ctx, id, bytes.Clone(nonNil(payload))))
	k.logUnhandled(err)
	return err
}

func (k *Keystore) update(ctx context.Context, id string, payload []byte) error {
	if err := ValidateID(id); err != nil {
		return &UnhandledError{Op: "update", ID: id, Err: err}
	}
	err := classify("update", id, k.backend.Update(ctx, id, bytes.Clone(nonNil(payload))))
	k.logUnhandled(err)
	return err
}

func (k *Keystore) fetch(ctx context.Context, op, id string) ([]byte, error) {
	if err := ValidateID(id); err != nil {
		return nil, &UnhandledError{Op: op, ID: id, Err: err}
	}
	payload, err := k.backend.Fetch(ctx, id)
	if err = classify(op, id, err); err != nil {
		k.logUnhandled(err)
		return nil, err
	}
	return bytes.Clone(nonNil(payload)), nil
}

func (k *Keystore) delete(ctx context.Context, op, id string) error {
	if err := ValidateID(id); err != nil {
		return &UnhandledError{Op: op, ID: id, Err: err}
	}
	err := classify(op, id, k.backend.Delete(ctx, id))
	k.logUnhandled(err)
	return err
}

func (k *Keystore) logUnhandled(err error) {
	var ue *UnhandledError
	if errors.As(err, &ue) {
		k.logger.Errorf("%s: %s", k.ns, ue)
	}
}

// nonNil keeps an empty payload distinguishable from a missing one.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
