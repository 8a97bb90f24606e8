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

package keychain

import (
	"context"
	"errors"

	"github.com/danieljoos/wincred"
	"golang.org/x/sys/windows"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/docker/keystore/store"
)

const supported = true

var (
	ErrCredentialBadUsername      = errors.New("credential username is invalid")
	ErrInvalidCredentialFlags     = errors.New("an invalid flag was specified for the flags parameter")
	ErrInvalidCredentialParameter = errors.New("protected field does not match provided value for an existing credential")
	ErrNoLogonSession             = errors.New("logon session does not exist or there is no credential set associated with this logon session")
	sysErrInvalidCredentialFlags  = windows.Errno(windows.ERROR_INVALID_FLAGS)
	sysErrNoSuchLogonSession      = windows.Errno(windows.ERROR_NO_SUCH_LOGON_SESSION)
)

// lookup returns the credential for id, or nil if there is none.
func (b *Backend) lookup(id string) (*wincred.GenericCredential, error) {
	gc, err := wincred.GetGenericCredential(b.itemLabel(id))
	if errors.Is(err, wincred.ErrElementNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, mapWindowsCredentialError(err)
	}
	return gc, nil
}

func (b *Backend) write(id string, payload []byte) error {
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	blob, _, err := transform.Bytes(encoder, payload)
	if err != nil {
		return err
	}

	g := wincred.NewGenericCredential(b.itemLabel(id))
	g.UserName = id
	g.CredentialBlob = blob
	g.Persist = wincred.PersistLocalMachine
	g.Attributes = []wincred.CredentialAttribute{
		{Keyword: secretIDKey, Value: []byte(id)},
		{Keyword: serviceGroupKey, Value: []byte(b.ns.Group)},
		{Keyword: serviceNameKey, Value: []byte(b.ns.Service)},
	}
	return mapWindowsCredentialError(g.Write())
}

// Insert is not atomic: CredWrite always overwrites, so the existence check
// and the write are two calls.
func (b *Backend) Insert(_ context.Context, id string, payload []byte) error {
	gc, err := b.lookup(id)
	if err != nil {
		return err
	}
	if gc != nil {
		return store.ErrDuplicatedItem
	}
	return b.write(id, payload)
}

func (b *Backend) Update(_ context.Context, id string, payload []byte) error {
	gc, err := b.lookup(id)
	if err != nil {
		return err
	}
	if gc == nil {
		return store.ErrNoKeyFound
	}
	return b.write(id, payload)
}

func (b *Backend) Fetch(_ context.Context, id string) ([]byte, error) {
	gc, err := b.lookup(id)
	if err != nil {
		return nil, err
	}
	if gc == nil {
		return nil, store.ErrNoKeyFound
	}

	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	blob, _, err := transform.Bytes(decoder, gc.CredentialBlob)
	if err != nil {
		return nil, err
	}
	return blob, nil
}

func (b *Backend) Delete(_ context.Context, id string) error {
	gc, err := b.lookup(id)
	if err != nil {
		return err
	}
	if gc == nil {
		return store.ErrNoKeyFound
	}
	return mapWindowsCredentialError(gc.Delete())
}

func mapWindowsCredentialError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, wincred.ErrElementNotFound):
		return store.ErrNoKeyFound
	case errors.Is(err, wincred.ErrBadUsername):
		return errors.Join(ErrCredentialBadUsername, err)
	case errors.Is(err, wincred.ErrInvalidParameter):
		return errors.Join(ErrInvalidCredentialParameter, err)
	case errors.Is(err, sysErrInvalidCredentialFlags):
		return errors.Join(ErrInvalidCredentialFlags, err)
	case errors.Is(err, sysErrNoSuchLogonSession):
		return errors.Join(ErrNoLogonSession, err)
	}
	return err
}
