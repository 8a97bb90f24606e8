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

// Package posixage is a file based [store.Backend] encrypted with
// [age](https://github.com/FiloSottile/age).
//
// Every namespace gets its own directory below the root, and every secret
// its own directory below that, holding one encrypted file per configured
// key type. Any one of the matching decryption keys unlocks the secret.
//
// Several processes may share a root: writes take an exclusive file lock on
// the namespace directory and reads a shared one.
package posixage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"filippo.io/age"

	"github.com/docker/keystore/internal/flock"
	"github.com/docker/keystore/store"
	"github.com/docker/keystore/store/posixage/internal/secretfile"
	"github.com/docker/keystore/x/logging"
)

const lockFileName = ".keystore.lock"

type Backend struct {
	ns     store.Namespace
	root   *os.Root
	locker *flock.Locker
	l      sync.RWMutex
	*config
}

var _ store.Backend = &Backend{}

// tryLock takes the in-process lock before the file lock, acquiring a file
// lock can take a while when a stale lock has to be recovered.
//
// It returns an unlock function that must be called to release the lock.
func (b *Backend) tryLock(ctx context.Context) (func(), error) {
	b.l.Lock()

	unlock, err := b.locker.Lock(ctx)
	if err != nil {
		b.l.Unlock()
		return nil, err
	}

	return sync.OnceFunc(func() {
		defer b.l.Unlock()
		if err := unlock(); err != nil {
			b.logger.Errorf("%s", err)
		}
	}), nil
}

// tryRLock is the shared counterpart of tryLock.
func (b *Backend) tryRLock(ctx context.Context) (func(), error) {
	b.l.RLock()

	unlock, err := b.locker.RLock(ctx)
	if err != nil {
		b.l.RUnlock()
		return nil, err
	}

	return sync.OnceFunc(func() {
		defer b.l.RUnlock()
		if err := unlock(); err != nil {
			b.logger.Errorf("%s", err)
		}
	}), nil
}

func (b *Backend) Namespace() store.Namespace {
	return b.ns
}

func (b *Backend) Insert(ctx context.Context, id string, payload []byte) error {
	unlock, err := b.tryLock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	exists, err := secretfile.Exists(b.root, id)
	if err != nil {
		return err
	}
	if exists {
		return store.ErrDuplicatedItem
	}
	return b.persist(ctx, id, payload)
}

func (b *Backend) Update(ctx context.Context, id string, payload []byte) error {
	unlock, err := b.tryLock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	exists, err := secretfile.Exists(b.root, id)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrNoKeyFound
	}
	return b.persist(ctx, id, payload)
}

func (b *Backend) Fetch(ctx context.Context, id string) ([]byte, error) {
	unlock, err := b.tryRLock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	encryptedSecrets, err := secretfile.Restore(b.root, id)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, store.ErrNoKeyFound
	}
	if err != nil {
		return nil, err
	}
	return b.decryptSecret(ctx, encryptedSecrets)
}

func (b *Backend) Delete(ctx context.Context, id string) error {
	unlock, err := b.tryLock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	exists, err := secretfile.Exists(b.root, id)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrNoKeyFound
	}
	return secretfile.Remove(b.root, id)
}

// persist encrypts payload once per key type and replaces whatever is
// stored for id.
func (b *Backend) persist(ctx context.Context, id string, payload []byte) error {
	// prompting is a blocking call, we wait for the caller to cancel the ctx
	// or for the user to complete the interaction.
	keyGroups, err := promptForEncryptionKeys(ctx, b.registeredEncryptionFuncs)
	if err != nil {
		return err
	}

	secrets := make([]secretfile.EncryptedSecret, 0, len(keyGroups))
	// age cannot mix recipient types (e.g. X25519 + password) in one file,
	// so every key type gets its own file
	for k, encryptionKeys := range keyGroups {
		recipients, err := secretfile.GetRecipients(k, encryptionKeys)
		if err != nil {
			return err
		}

		var encrypted bytes.Buffer
		w, err := age.Encrypt(&encrypted, recipients...)
		if err != nil {
			return err
		}
		if _, err := w.Write(payload); err != nil {
			return err
		}
		// flushes the last chunk, this must be called.
		if err := w.Close(); err != nil {
			return err
		}

		secrets = append(secrets, secretfile.EncryptedSecret{
			KeyType:       k,
			EncryptedData: encrypted.Bytes(),
		})
	}

	return secretfile.Persist(b.root, id, secrets)
}

// decryptSecret tries the registered decryption callbacks in order. Each
// callback is only prompted when a file of its key type exists, and the
// first successful decryption wins.
func (b *Backend) decryptSecret(ctx context.Context, encryptedSecrets []secretfile.EncryptedSecret) ([]byte, error) {
	for _, prompt := range b.registeredDecryptionFuncs {
		keyType := prompt.keyType()
		index := -1
		for i, v := range encryptedSecrets {
			if v.KeyType == keyType {
				index = i
				break
			}
		}
		if index == -1 {
			b.logger.Warnf("secret was never encrypted with a %s key", keyType)
			continue
		}

		decryptionKey, err := prompt.call(ctx)
		if err != nil {
			return nil, err
		}

		identity, err := secretfile.GetIdentity(keyType, string(bytes.TrimSpace(decryptionKey)))
		if err != nil {
			return nil, err
		}

		r, err := age.Decrypt(bytes.NewReader(encryptedSecrets[index].EncryptedData), identity)
		if err != nil {
			b.logger.Errorf("failed to decrypt secret of type %s", keyType)
			continue
		}

		return io.ReadAll(r)
	}

	return nil, errors.New("could not decrypt secret with provided decryption keys")
}

type config struct {
	logger                    logging.Logger
	registeredDecryptionFuncs []promptCaller
	registeredEncryptionFuncs []promptCaller
	lockOptions               []flock.Option
}

type Options func(c *config) error

// WithLogger adds a custom logger to the store.
// If no logger has been specified, a noop logger is used instead.
func WithLogger(l logging.Logger) Options {
	return func(c *config) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		c.logger = l
		return nil
	}
}

// WithLockOptions tunes the file lock shared with other processes.
func WithLockOptions(opts ...flock.Option) Options {
	return func(c *config) error {
		c.lockOptions = append(c.lockOptions, opts...)
		return nil
	}
}

type encryptionFuncs interface {
	EncryptionPassword | EncryptionSSH | EncryptionAgeX25519
}

// WithEncryptionCallbackFunc registers a callback used to prompt the user
// for input when encrypting credentials.
//
// Multiple callbacks may be registered. They are invoked in the same order
// they were added.
func WithEncryptionCallbackFunc[K encryptionFuncs](callback K) Options {
	return func(c *config) error {
		c.registeredEncryptionFuncs = append(c.registeredEncryptionFuncs, promptCaller(callback))
		return nil
	}
}

type decryptionFuncs interface {
	DecryptionPassword | DecryptionSSH | DecryptionAgeX25519
}

// WithDecryptionCallbackFunc registers a callback used to prompt the user
// for input when decrypting credentials.
//
// Multiple callbacks may be registered. They are invoked in the same order
// they were added.
func WithDecryptionCallbackFunc[K decryptionFuncs](callback K) Options {
	return func(c *config) error {
		c.registeredDecryptionFuncs = append(c.registeredDecryptionFuncs, promptCaller(callback))
		return nil
	}
}

// New returns a [Backend] keeping the secrets of ns below root.
func New(root *os.Root, ns store.Namespace, opts ...Options) (*Backend, error) {
	if root == nil {
		return nil, errors.New("root is required")
	}
	if err := ns.Validate(); err != nil {
		return nil, err
	}

	cfg := &config{
		logger: logging.Noop(),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if len(cfg.registeredEncryptionFuncs) == 0 {
		return nil, errors.New("requires at least one encryption callback function to be registered")
	}
	if len(cfg.registeredDecryptionFuncs) == 0 {
		return nil, errors.New("requires at least one decryption callback function to be registered")
	}

	nsDirName := secretfile.DirName(ns.String())
	if err := root.Mkdir(nsDirName, 0o700); err != nil && !errors.Is(err, fs.ErrExist) {
		return nil, fmt.Errorf("creating namespace directory: %w", err)
	}
	nsRoot, err := root.OpenRoot(nsDirName)
	if err != nil {
		return nil, err
	}

	return &Backend{
		ns:     ns,
		root:   nsRoot,
		locker: flock.New(nsRoot, lockFileName, append([]flock.Option{flock.WithLogger(cfg.logger)}, cfg.lockOptions...)...),
		config: cfg,
	}, nil
}

// Close releases the namespace directory. The root passed to [New] stays
// open.
func (b *Backend) Close() error {
	return b.root.Close()
}
