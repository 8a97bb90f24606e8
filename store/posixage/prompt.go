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

package posixage

import (
	"bytes"
	"context"
	"errors"

	"github.com/docker/keystore/store/posixage/internal/secretfile"
)

type (
	EncryptionPassword  secretfile.PromptFunc
	EncryptionAgeX25519 secretfile.PromptFunc
	// EncryptionSSH supports ssh-rsa and ssh-ed25519
	EncryptionSSH secretfile.PromptFunc

	// DecryptionAgeX25519 is the age private key
	DecryptionAgeX25519 secretfile.PromptFunc
	// DecryptionSSH is the ssh private key
	DecryptionSSH      secretfile.PromptFunc
	DecryptionPassword secretfile.PromptFunc
)

type promptCaller interface {
	call(context.Context) ([]byte, error)
	keyType() secretfile.KeyType
}

func (f EncryptionPassword) call(ctx context.Context) ([]byte, error)  { return f(ctx) }
func (f EncryptionAgeX25519) call(ctx context.Context) ([]byte, error) { return f(ctx) }
func (f EncryptionSSH) call(ctx context.Context) ([]byte, error)       { return f(ctx) }
func (f DecryptionPassword) call(ctx context.Context) ([]byte, error)  { return f(ctx) }
func (f DecryptionAgeX25519) call(ctx context.Context) ([]byte, error) { return f(ctx) }
func (f DecryptionSSH) call(ctx context.Context) ([]byte, error)       { return f(ctx) }

func (EncryptionPassword) keyType() secretfile.KeyType  { return secretfile.PasswordKeyType }
func (EncryptionAgeX25519) keyType() secretfile.KeyType { return secretfile.AgeKeyType }
func (EncryptionSSH) keyType() secretfile.KeyType       { return secretfile.SSHKeyType }
func (DecryptionPassword) keyType() secretfile.KeyType  { return secretfile.PasswordKeyType }
func (DecryptionAgeX25519) keyType() secretfile.KeyType { return secretfile.AgeKeyType }
func (DecryptionSSH) keyType() secretfile.KeyType       { return secretfile.SSHKeyType }

// promptForEncryptionKeys calls every encryption callback in order and
// groups the trimmed keys by key type. An empty key is an error.
func promptForEncryptionKeys(ctx context.Context, funcs []promptCaller) (map[secretfile.KeyType][]string, error) {
	m := map[secretfile.KeyType][]string{}
	for _, f := range funcs {
		raw, err := f.call(ctx)
		if err != nil {
			return nil, err
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			return nil, errors.New("empty key provided on registered callback function")
		}
		m[f.keyType()] = append(m[f.keyType()], string(raw))
	}
	return m, nil
}
