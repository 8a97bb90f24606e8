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
	"fmt"

	"github.com/keybase/dbus"
	ss "github.com/keybase/go-keychain/secretservice"

	"github.com/docker/keystore/store"
)

const supported = true

const (
	// the default collection would be 'login'
	// gnome-keyring does not support creating collections
	keychainObjectPath = dbus.ObjectPath("/org/freedesktop/secrets/collection/login")
)

// session is an open Secret Service session bound to one call.
type session struct {
	service *ss.SecretService
	session *ss.Session
}

func openSession(unlock bool) (*session, error) {
	service, err := ss.NewService()
	if err != nil {
		return nil, fmt.Errorf("connecting to secret service: %w", err)
	}
	sess, err := service.OpenSession(ss.AuthenticationDHAES)
	if err != nil {
		return nil, fmt.Errorf("opening secret service session: %w", err)
	}
	if unlock {
		if err := service.Unlock([]dbus.ObjectPath{keychainObjectPath}); err != nil {
			service.CloseSession(sess)
			return nil, fmt.Errorf("unlocking collection: %w", err)
		}
	}
	return &session{service: service, session: sess}, nil
}

func (s *session) Close() {
	s.service.CloseSession(s.session)
}

func (s *session) search(attributes map[string]string) ([]dbus.ObjectPath, error) {
	return s.service.SearchCollection(keychainObjectPath, attributes)
}

func (s *session) write(label string, attributes map[string]string, payload []byte, replace ss.ReplaceBehavior) error {
	secret, err := s.session.NewSecret(payload)
	if err != nil {
		return err
	}
	properties := ss.NewSecretProperties(label, attributes)
	_, err = s.service.CreateItem(keychainObjectPath, properties, secret, replace)
	return err
}

func (b *Backend) Insert(_ context.Context, id string, payload []byte) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.Close()

	attributes := b.itemAttributes(id)
	items, err := s.search(attributes)
	if err != nil {
		return err
	}
	if len(items) > 0 {
		return store.ErrDuplicatedItem
	}
	return s.write(b.itemLabel(id), attributes, payload, ss.ReplaceBehaviorDoNotReplace)
}

func (b *Backend) Update(_ context.Context, id string, payload []byte) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.Close()

	attributes := b.itemAttributes(id)
	items, err := s.search(attributes)
	if err != nil {
		return err
	}
	switch len(items) {
	case 0:
		return store.ErrNoKeyFound
	case 1:
	default:
		return store.ErrAmbiguousMatch
	}
	// items with identical attributes are replaced in place
	return s.write(b.itemLabel(id), attributes, payload, ss.ReplaceBehaviorReplace)
}

func (b *Backend) Fetch(_ context.Context, id string) ([]byte, error) {
	s, err := openSession(true)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	items, err := s.search(b.itemAttributes(id))
	if err != nil {
		return nil, err
	}
	switch len(items) {
	case 0:
		return nil, store.ErrNoKeyFound
	case 1:
	default:
		return nil, store.ErrAmbiguousMatch
	}
	return s.service.GetSecret(items[0], *s.session)
}

// Delete removes every item tagged with id so that a conflicting
// duplicate can always be cleaned up.
func (b *Backend) Delete(_ context.Context, id string) error {
	s, err := openSession(false)
	if err != nil {
		return err
	}
	defer s.Close()

	items, err := s.search(b.itemAttributes(id))
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return store.ErrNoKeyFound
	}
	for _, item := range items {
		if err := s.service.DeleteItem(item); err != nil {
			return err
		}
	}
	b.logger.Printf("deleted %d item(s) for %s", len(items), b.itemLabel(id))
	return nil
}
