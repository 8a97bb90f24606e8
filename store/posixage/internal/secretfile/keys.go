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

package secretfile

import (
	"context"
	"fmt"

	"filippo.io/age"
	"filippo.io/age/agessh"
)

type (
	// PromptFunc is a callback invoked by the store when encrypting or
	// decrypting a file. It returns the key material or an error if the key
	// cannot be obtained.
	PromptFunc func(context.Context) ([]byte, error)

	// KeyType identifies the kind of key a secret file is encrypted with.
	KeyType string
)

const (
	PasswordKeyType KeyType = "pass"
	AgeKeyType      KeyType = "age"
	SSHKeyType      KeyType = "ssh"
)

type keyParsers struct {
	recipient func(string) (age.Recipient, error)
	identity  func(string) (age.Identity, error)
}

var parsers = map[KeyType]keyParsers{
	PasswordKeyType: {
		recipient: func(s string) (age.Recipient, error) { return age.NewScryptRecipient(s) },
		identity:  func(s string) (age.Identity, error) { return age.NewScryptIdentity(s) },
	},
	AgeKeyType: {
		recipient: func(s string) (age.Recipient, error) { return age.ParseX25519Recipient(s) },
		identity:  func(s string) (age.Identity, error) { return age.ParseX25519Identity(s) },
	},
	SSHKeyType: {
		recipient: agessh.ParseRecipient,
		identity:  func(s string) (age.Identity, error) { return agessh.ParseIdentity([]byte(s)) },
	},
}

// GetRecipients parses every encryption key of type k:
//   - PasswordKeyType → [age.NewScryptRecipient]
//   - AgeKeyType      → [age.ParseX25519Recipient]
//   - SSHKeyType      → [agessh.ParseRecipient]
func GetRecipients(k KeyType, encryptionKeys []string) ([]age.Recipient, error) {
	p, ok := parsers[k]
	if !ok {
		return nil, fmt.Errorf("unsupported encryption type %q", k)
	}
	recipients := make([]age.Recipient, 0, len(encryptionKeys))
	for _, encryptionKey := range encryptionKeys {
		recipient, err := p.recipient(encryptionKey)
		if err != nil {
			return nil, fmt.Errorf("parsing %s recipient: %w", k, err)
		}
		recipients = append(recipients, recipient)
	}
	return recipients, nil
}

// GetIdentity parses a decryption key of type k:
//   - PasswordKeyType → [age.NewScryptIdentity]
//   - AgeKeyType      → [age.ParseX25519Identity]
//   - SSHKeyType      → [agessh.ParseIdentity]
func GetIdentity(k KeyType, decryptionKey string) (age.Identity, error) {
	p, ok := parsers[k]
	if !ok {
		return nil, fmt.Errorf("unsupported decryption type %q", k)
	}
	identity, err := p.identity(decryptionKey)
	if err != nil {
		return nil, fmt.Errorf("parsing %s identity: %w", k, err)
	}
	return identity, nil
}
