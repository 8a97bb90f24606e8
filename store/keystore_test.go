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

package store_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/keystore/store"
	"github.com/docker/keystore/store/memory"
	"github.com/docker/keystore/store/mocks"
	"github.com/docker/keystore/x/testhelper"
)

var testNamespace = store.Namespace{Group: "com.test.test", Service: "test"}

func setupKeystore(t *testing.T, backend store.Backend) *store.Keystore {
	t.Helper()
	if backend == nil {
		backend = memory.New(testNamespace)
	}
	ks, err := store.New(backend, store.WithLogger(testhelper.TestLogger(t)))
	require.NoError(t, err)
	return ks
}

func newID() string {
	return "com.test.test/" + uuid.NewString()
}

func TestNew(t *testing.T) {
	t.Run("backend is required", func(t *testing.T) {
		_, err := store.New(nil)
		require.Error(t, err)
	})
	t.Run("namespace must be complete", func(t *testing.T) {
		_, err := store.New(memory.New(store.Namespace{Group: "com.test.test"}))
		require.Error(t, err)
	})
	t.Run("reports the backend namespace", func(t *testing.T) {
		ks := setupKeystore(t, nil)
		assert.Equal(t, testNamespace, ks.Namespace())
	})
}

func TestKeystore(t *testing.T) {
	t.Run("fetch on a never written id fails with no key found", func(t *testing.T) {
		ks := setupKeystore(t, nil)
		id := newID()

		_, err := ks.FetchKey(t.Context(), id)
		require.ErrorIs(t, err, store.ErrNoKeyFound)
		assert.False(t, store.IsUnhandled(err))

		found, err := ks.CheckKey(t.Context(), id)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("add then fetch returns the exact payload", func(t *testing.T) {
		ks := setupKeystore(t, nil)
		id := newID()
		payload := []byte{0x00, 0xff, 's', 'e', 'c', 'r', 'e', 't', 0x7f}

		require.NoError(t, ks.AddKey(t.Context(), id, payload))
		got, err := ks.FetchKey(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, payload, got)

		found, err := ks.CheckKey(t.Context(), id)
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("add twice fails with duplicated item and keeps the first payload", func(t *testing.T) {
		ks := setupKeystore(t, nil)
		id := newID()

		require.NoError(t, ks.AddKey(t.Context(), id, []byte("first")))
		err := ks.AddKey(t.Context(), id, []byte("second"))
		require.ErrorIs(t, err, store.ErrDuplicatedItem)

		got, err := ks.FetchKey(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, []byte("first"), got)
	})

	t.Run("update on an absent id fails and creates nothing", func(t *testing.T) {
		ks := setupKeystore(t, nil)
		id := newID()

		require.ErrorIs(t, ks.UpdateKey(t.Context(), id, []byte("secret")), store.ErrNoKeyFound)
		found, err := ks.CheckKey(t.Context(), id)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("update replaces the payload", func(t *testing.T) {
		ks := setupKeystore(t, nil)
		id := newID()

		require.NoError(t, ks.AddKey(t.Context(), id, []byte("k1")))
		require.NoError(t, ks.UpdateKey(t.Context(), id, []byte("k2")))
		got, err := ks.FetchKey(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, []byte("k2"), got)
	})

	t.Run("save twice with the same payload is idempotent", func(t *testing.T) {
		ks := setupKeystore(t, nil)
		id := newID()

		require.NoError(t, ks.SaveKey(t.Context(), id, []byte("secret")))
		require.NoError(t, ks.SaveKey(t.Context(), id, []byte("secret")))
		got, err := ks.FetchKey(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, []byte("secret"), got)
	})

	t.Run("save overwrites an existing entry", func(t *testing.T) {
		ks := setupKeystore(t, nil)
		id := newID()

		require.NoError(t, ks.SaveKey(t.Context(), id, []byte("secret")))
		require.NoError(t, ks.SaveKey(t.Context(), id, []byte("newSecret")))
		got, err := ks.FetchKey(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, []byte("newSecret"), got)
	})

	t.Run("delete is strict", func(t *testing.T) {
		ks := setupKeystore(t, nil)
		id := newID()

		require.ErrorIs(t, ks.DeleteKey(t.Context(), id), store.ErrNoKeyFound)
		require.NoError(t, ks.AddKey(t.Context(), id, []byte("secret")))
		require.NoError(t, ks.DeleteKey(t.Context(), id))
		_, err := ks.FetchKey(t.Context(), id)
		require.ErrorIs(t, err, store.ErrNoKeyFound)
	})

	t.Run("delete if exists on an absent id succeeds", func(t *testing.T) {
		ks := setupKeystore(t, nil)
		require.NoError(t, ks.DeleteKeyIfExists(t.Context(), newID()))
	})

	t.Run("delete if exists removes a present entry", func(t *testing.T) {
		ks := setupKeystore(t, nil)
		id := newID()
		require.NoError(t, ks.AddKey(t.Context(), id, []byte("secret")))
		require.NoError(t, ks.DeleteKeyIfExists(t.Context(), id))
		found, err := ks.CheckKey(t.Context(), id)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("delete keys if exist removes every entry", func(t *testing.T) {
		ks := setupKeystore(t, nil)
		id1, id2 := newID(), newID()
		require.NoError(t, ks.SaveKey(t.Context(), id1, []byte("one")))
		require.NoError(t, ks.SaveKey(t.Context(), id2, []byte("two")))

		require.NoError(t, ks.DeleteKeysIfExist(t.Context(), []string{id1, newID(), id2}))
		for _, id := range []string{id1, id2} {
			found, err := ks.CheckKey(t.Context(), id)
			require.NoError(t, err)
			assert.False(t, found)
		}
	})

	t.Run("an empty payload is not a missing entry", func(t *testing.T) {
		ks := setupKeystore(t, nil)
		id := newID()
		require.NoError(t, ks.AddKey(t.Context(), id, nil))

		got, err := ks.FetchKey(t.Context(), id)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("payloads are copied in and out", func(t *testing.T) {
		ks := setupKeystore(t, nil)
		id := newID()
		payload := []byte("secret")
		require.NoError(t, ks.AddKey(t.Context(), id, payload))
		payload[0] = 'X'

		got, err := ks.FetchKey(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, []byte("secret"), got)
	})

	t.Run("namespaces are isolated", func(t *testing.T) {
		a := setupKeystore(t, nil)
		b := setupKeystore(t, memory.New(store.Namespace{Group: "com.test.test", Service: "other"}))
		id := newID()
		require.NoError(t, a.AddKey(t.Context(), id, []byte("secret")))

		found, err := b.CheckKey(t.Context(), id)
		require.NoError(t, err)
		assert.False(t, found)
		require.NoError(t, b.AddKey(t.Context(), id, []byte("other")))
	})
}

func TestKeystoreFaults(t *testing.T) {
	errBackend := errors.New("permission denied")

	t.Run("invalid identifiers are unhandled errors", func(t *testing.T) {
		ks := setupKeystore(t, nil)
		for _, id := range []string{"", "bad\x00id", "line\nbreak"} {
			err := ks.AddKey(t.Context(), id, []byte("secret"))
			require.ErrorIs(t, err, store.ErrInvalidID)
			assert.True(t, store.IsUnhandled(err))

			_, err = ks.CheckKey(t.Context(), id)
			require.ErrorIs(t, err, store.ErrInvalidID)
		}
	})

	t.Run("ambiguous match is an unhandled error", func(t *testing.T) {
		id := newID()
		ks := setupKeystore(t, mocks.NewMockBackend(mocks.WithAmbiguous(id)))

		_, err := ks.FetchKey(t.Context(), id)
		require.ErrorIs(t, err, store.ErrAmbiguousMatch)
		var ue *store.UnhandledError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, "fetch", ue.Op)
		assert.Equal(t, id, ue.ID)

		_, err = ks.CheckKey(t.Context(), id)
		require.ErrorIs(t, err, store.ErrAmbiguousMatch)
	})

	t.Run("native errors keep their diagnostic", func(t *testing.T) {
		ks := setupKeystore(t, mocks.NewMockBackend(mocks.WithFetchErr(errBackend)))

		_, err := ks.FetchKey(t.Context(), newID())
		require.ErrorIs(t, err, errBackend)
		assert.True(t, store.IsUnhandled(err))

		found, err := ks.CheckKey(t.Context(), newID())
		require.ErrorIs(t, err, errBackend)
		assert.False(t, found)
	})

	t.Run("save only falls back to update on a duplicate", func(t *testing.T) {
		mock := mocks.NewMockBackend(mocks.WithInsertErr(errBackend))
		ks := setupKeystore(t, mock)

		err := ks.SaveKey(t.Context(), newID(), []byte("secret"))
		require.ErrorIs(t, err, errBackend)
		assert.Equal(t, []string{"insert"}, mock.Verbs())
	})

	t.Run("save updates after a duplicate", func(t *testing.T) {
		mock := mocks.NewMockBackend()
		ks := setupKeystore(t, mock)
		id := newID()

		require.NoError(t, ks.SaveKey(t.Context(), id, []byte("one")))
		require.NoError(t, ks.SaveKey(t.Context(), id, []byte("two")))
		assert.Equal(t, []string{"insert", "insert", "update"}, mock.Verbs())
	})

	t.Run("save propagates an update failure", func(t *testing.T) {
		mock := mocks.NewMockBackend(mocks.WithInsertErr(store.ErrDuplicatedItem), mocks.WithUpdateErr(store.ErrNoKeyFound))
		ks := setupKeystore(t, mock)

		err := ks.SaveKey(t.Context(), newID(), []byte("secret"))
		require.ErrorIs(t, err, store.ErrNoKeyFound)
		assert.Equal(t, []string{"insert", "update"}, mock.Verbs())
	})

	t.Run("delete if exists propagates other faults", func(t *testing.T) {
		ks := setupKeystore(t, mocks.NewMockBackend(mocks.WithDeleteErr(errBackend)))
		err := ks.DeleteKeyIfExists(t.Context(), newID())
		require.ErrorIs(t, err, errBackend)
		assert.True(t, store.IsUnhandled(err))
	})

	t.Run("delete keys if exist stops at the first fault", func(t *testing.T) {
		mock := mocks.NewMockBackend()
		ks := setupKeystore(t, mock)
		id1, id3 := newID(), newID()
		require.NoError(t, ks.AddKey(t.Context(), id1, []byte("one")))
		require.NoError(t, ks.AddKey(t.Context(), id3, []byte("three")))

		err := ks.DeleteKeysIfExist(t.Context(), []string{id1, "", id3})
		require.ErrorIs(t, err, store.ErrInvalidID)

		found, err := ks.CheckKey(t.Context(), id1)
		require.NoError(t, err)
		assert.False(t, found, "earlier deletions stay applied")

		found, err = ks.CheckKey(t.Context(), id3)
		require.NoError(t, err)
		assert.True(t, found, "later ids are not touched")
	})
}
