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

	kc "github.com/keybase/go-keychain"

	"github.com/docker/keystore/store"
)

const supported = true

var (
	ErrInteractionNotAllowed = errors.New("cannot prompt the user for password")
	ErrAuthFailed            = errors.New("user incorrectly entered their credentials")
)

// newQuery selects the generic password item for id.
func (b *Backend) newQuery(id string) kc.Item {
	item := kc.NewItem()
	// generic password is used as we don't know what we are storing, an
	// internet password only adds a server URL
	item.SetSecClass(kc.SecClassGenericPassword)
	item.SetService(b.ns.Service)
	item.SetAccessGroup(b.ns.Group)
	item.SetAccount(id)
	return item
}

func (b *Backend) Insert(_ context.Context, id string, payload []byte) error {
	item := b.newQuery(id)
	item.SetLabel(b.itemLabel(id))
	item.SetSynchronizable(kc.SynchronizableNo)
	item.SetAccessible(kc.AccessibleAfterFirstUnlock)
	item.SetData(payload)
	return mapKeychainError(kc.AddItem(item))
}

func (b *Backend) Update(_ context.Context, id string, payload []byte) error {
	update := kc.NewItem()
	update.SetData(payload)
	return mapKeychainError(kc.UpdateItem(b.newQuery(id), update))
}

func (b *Backend) Fetch(_ context.Context, id string) ([]byte, error) {
	// count matches on attributes only, macOS rejects returning data for
	// more than one item
	query := b.newQuery(id)
	query.SetMatchLimit(kc.MatchLimitAll)
	query.SetReturnAttributes(true)
	matches, err := kc.QueryItem(query)
	if err != nil {
		return nil, mapKeychainError(err)
	}
	switch len(matches) {
	case 0:
		return nil, store.ErrNoKeyFound
	case 1:
	default:
		return nil, store.ErrAmbiguousMatch
	}

	query = b.newQuery(id)
	query.SetMatchLimit(kc.MatchLimitOne)
	query.SetReturnData(true)
	results, err := kc.QueryItem(query)
	if err != nil {
		return nil, mapKeychainError(err)
	}
	if len(results) == 0 {
		// removed in between the two queries
		return nil, store.ErrNoKeyFound
	}
	return results[0].Data, nil
}

func (b *Backend) Delete(_ context.Context, id string) error {
	return mapKeychainError(kc.DeleteItem(b.newQuery(id)))
}

func mapKeychainError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, kc.ErrorDuplicateItem):
		return store.ErrDuplicatedItem
	case errors.Is(err, kc.ErrorItemNotFound):
		return store.ErrNoKeyFound
	case errors.Is(err, kc.ErrorInteractionNotAllowed):
		return errors.Join(ErrInteractionNotAllowed, err)
	case errors.Is(err, kc.ErrorAuthFailed):
		return errors.Join(ErrAuthFailed, err)
	}
	return err
}
