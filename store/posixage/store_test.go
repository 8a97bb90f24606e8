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
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"io/fs"
	"os"
	"strings"
	"testing"

	"filippo.io/age"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/docker/keystore/store"
	"github.com/docker/keystore/store/posixage/internal/secretfile"
	"github.com/docker/keystore/x/testhelper"
)

var testNamespace = store.Namespace{Group: "com.test.test", Service: "test"}

func openRoot(t *testing.T) *os.Root {
	t.Helper()
	root, err := os.OpenRoot(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, root.Close())
	})
	return root
}

// newAgeBackend uses X25519 keys, scrypt makes every write slow.
func newAgeBackend(t *testing.T, root *os.Root, ns store.Namespace, identity *age.X25519Identity) *Backend {
	t.Helper()
	b, err := New(root, ns,
		WithLogger(testhelper.TestLogger(t)),
		WithEncryptionCallbackFunc[EncryptionAgeX25519](func(_ context.Context) ([]byte, error) {
			return []byte(identity.Recipient().String()), nil
		}),
		WithDecryptionCallbackFunc[DecryptionAgeX25519](func(_ context.Context) ([]byte, error) {
			return []byte(identity.String()), nil
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, b.Close())
	})
	return b
}

func newIdentity(t *testing.T) *age.X25519Identity {
	t.Helper()
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	return identity
}

func onlyDirs(f fs.FS) ([]fs.DirEntry, error) {
	var dirs []fs.DirEntry
	return dirs, fs.WalkDir(f, ".", func(_ string, d fs.DirEntry, err error) error {
		if d.Name() == "." {
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, d)
		}
		return err
	})
}

func TestNew(t *testing.T) {
	root := openRoot(t)
	identity := newIdentity(t)
	enc := WithEncryptionCallbackFunc[EncryptionAgeX25519](func(_ context.Context) ([]byte, error) {
		return []byte(identity.Recipient().String()), nil
	})
	dec := WithDecryptionCallbackFunc[DecryptionAgeX25519](func(_ context.Context) ([]byte, error) {
		return []byte(identity.String()), nil
	})

	_, err := New(nil, testNamespace, enc, dec)
	require.Error(t, err)
	_, err = New(root, store.Namespace{}, enc, dec)
	require.Error(t, err)
	_, err = New(root, testNamespace, dec)
	require.ErrorContains(t, err, "encryption callback")
	_, err = New(root, testNamespace, enc)
	require.ErrorContains(t, err, "decryption callback")
	_, err = New(root, testNamespace, enc, dec, WithLogger(nil))
	require.Error(t, err)
}

func TestPOSIXAge(t *testing.T) {
	t.Run("can insert an encrypted secret", func(t *testing.T) {
		root := openRoot(t)
		b := newAgeBackend(t, root, testNamespace, newIdentity(t))

		id := "test/something/" + uuid.NewString()
		payload := []byte(uuid.NewString())
		require.NoError(t, b.Insert(t.Context(), id, payload))

		nsDir := base64.RawURLEncoding.EncodeToString([]byte(testNamespace.String()))
		nsRoot, err := root.OpenRoot(nsDir)
		require.NoError(t, err)
		t.Cleanup(func() {
			assert.NoError(t, nsRoot.Close())
		})

		dirs, err := onlyDirs(nsRoot.FS())
		require.NoError(t, err)
		require.Len(t, dirs, 1)
		encodedID := base64.RawURLEncoding.EncodeToString([]byte(id))
		assert.Equal(t, encodedID, dirs[0].Name())

		encryptedFile, err := nsRoot.ReadFile(encodedID + "/" + secretfile.SecretFileName + "age")
		require.NoError(t, err)
		assert.NotContains(t, string(encryptedFile), string(payload))

		got, err := b.Fetch(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("insert is strict", func(t *testing.T) {
		b := newAgeBackend(t, openRoot(t), testNamespace, newIdentity(t))
		id := uuid.NewString()

		require.NoError(t, b.Insert(t.Context(), id, []byte("first")))
		require.ErrorIs(t, b.Insert(t.Context(), id, []byte("second")), store.ErrDuplicatedItem)

		got, err := b.Fetch(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, []byte("first"), got)
	})

	t.Run("update does not create", func(t *testing.T) {
		b := newAgeBackend(t, openRoot(t), testNamespace, newIdentity(t))
		id := uuid.NewString()

		require.ErrorIs(t, b.Update(t.Context(), id, []byte("secret")), store.ErrNoKeyFound)
		_, err := b.Fetch(t.Context(), id)
		require.ErrorIs(t, err, store.ErrNoKeyFound)
	})

	t.Run("update replaces the secret", func(t *testing.T) {
		b := newAgeBackend(t, openRoot(t), testNamespace, newIdentity(t))
		id := uuid.NewString()

		require.NoError(t, b.Insert(t.Context(), id, []byte("k1")))
		require.NoError(t, b.Update(t.Context(), id, []byte("k2")))
		got, err := b.Fetch(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, []byte("k2"), got)
	})

	t.Run("delete is strict", func(t *testing.T) {
		b := newAgeBackend(t, openRoot(t), testNamespace, newIdentity(t))
		id := uuid.NewString()

		require.ErrorIs(t, b.Delete(t.Context(), id), store.ErrNoKeyFound)
		require.NoError(t, b.Insert(t.Context(), id, []byte("secret")))
		require.NoError(t, b.Delete(t.Context(), id))
		_, err := b.Fetch(t.Context(), id)
		require.ErrorIs(t, err, store.ErrNoKeyFound)
	})

	t.Run("empty payloads round trip", func(t *testing.T) {
		b := newAgeBackend(t, openRoot(t), testNamespace, newIdentity(t))
		require.NoError(t, b.Insert(t.Context(), "empty", []byte{}))
		got, err := b.Fetch(t.Context(), "empty")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("long identifiers are hashed", func(t *testing.T) {
		b := newAgeBackend(t, openRoot(t), testNamespace, newIdentity(t))
		id := strings.Repeat("x", store.MaxIDLength)
		require.NoError(t, b.Insert(t.Context(), id, []byte("secret")))
		assert.True(t, strings.HasPrefix(secretfile.DirName(id), "="))

		got, err := b.Fetch(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, []byte("secret"), got)
	})

	t.Run("namespaces sharing a root are isolated", func(t *testing.T) {
		root := openRoot(t)
		identity := newIdentity(t)
		a := newAgeBackend(t, root, testNamespace, identity)
		b := newAgeBackend(t, root, store.Namespace{Group: "com.test.test", Service: "other"}, identity)

		require.NoError(t, a.Insert(t.Context(), "bob", []byte("a")))
		_, err := b.Fetch(t.Context(), "bob")
		require.ErrorIs(t, err, store.ErrNoKeyFound)
		require.NoError(t, b.Insert(t.Context(), "bob", []byte("b")))
	})

	t.Run("backends on the same namespace share entries", func(t *testing.T) {
		root := openRoot(t)
		identity := newIdentity(t)
		a := newAgeBackend(t, root, testNamespace, identity)
		b := newAgeBackend(t, root, testNamespace, identity)

		require.NoError(t, a.Insert(t.Context(), "bob", []byte("secret")))
		require.ErrorIs(t, b.Insert(t.Context(), "bob", []byte("again")), store.ErrDuplicatedItem)
		got, err := b.Fetch(t.Context(), "bob")
		require.NoError(t, err)
		assert.Equal(t, []byte("secret"), got)
	})

	t.Run("works behind a keystore", func(t *testing.T) {
		ks, err := store.New(newAgeBackend(t, openRoot(t), testNamespace, newIdentity(t)))
		require.NoError(t, err)
		id := uuid.NewString()

		require.NoError(t, ks.SaveKey(t.Context(), id, []byte("secret")))
		require.NoError(t, ks.SaveKey(t.Context(), id, []byte("newSecret")))
		got, err := ks.FetchKey(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, []byte("newSecret"), got)

		require.NoError(t, ks.DeleteKeysIfExist(t.Context(), []string{id, uuid.NewString()}))
		found, err := ks.CheckKey(t.Context(), id)
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestPOSIXAgeKeys(t *testing.T) {
	t.Run("can use multiple keys to encrypt and decrypt", func(t *testing.T) {
		root := openRoot(t)
		masterKey := uuid.NewString()
		identity := newIdentity(t)

		b, err := New(root, testNamespace,
			WithLogger(testhelper.TestLogger(t)),
			WithEncryptionCallbackFunc[EncryptionPassword](func(_ context.Context) ([]byte, error) {
				return []byte(masterKey), nil
			}),
			WithEncryptionCallbackFunc[EncryptionAgeX25519](func(_ context.Context) ([]byte, error) {
				return []byte(identity.Recipient().String()), nil
			}),
			WithDecryptionCallbackFunc[DecryptionPassword](func(_ context.Context) ([]byte, error) {
				return []byte(masterKey), nil
			}),
		)
		require.NoError(t, err)
		require.NoError(t, b.Insert(t.Context(), "bob", []byte("secret")))

		encrypted, err := secretfile.Restore(b.root, "bob")
		require.NoError(t, err)
		require.Len(t, encrypted, 2)

		got, err := b.Fetch(t.Context(), "bob")
		require.NoError(t, err)
		assert.Equal(t, []byte("secret"), got)

		// the age file alone is enough
		b.registeredDecryptionFuncs = []promptCaller{
			DecryptionAgeX25519(func(_ context.Context) ([]byte, error) {
				return []byte(identity.String()), nil
			}),
		}
		got, err = b.Fetch(t.Context(), "bob")
		require.NoError(t, err)
		assert.Equal(t, []byte("secret"), got)
	})

	t.Run("failure to decrypt will try next decryption key", func(t *testing.T) {
		root := openRoot(t)
		identity := newIdentity(t)

		prv, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		pub, err := ssh.NewPublicKey(&prv.PublicKey)
		require.NoError(t, err)

		b, err := New(root, testNamespace,
			WithLogger(testhelper.TestLogger(t)),
			WithEncryptionCallbackFunc[EncryptionAgeX25519](func(_ context.Context) ([]byte, error) {
				return []byte(identity.Recipient().String()), nil
			}),
			WithEncryptionCallbackFunc[EncryptionSSH](func(_ context.Context) ([]byte, error) {
				return ssh.MarshalAuthorizedKey(pub), nil
			}),
			WithDecryptionCallbackFunc[DecryptionPassword](func(_ context.Context) ([]byte, error) {
				return []byte("never-used"), nil
			}),
			WithDecryptionCallbackFunc[DecryptionSSH](func(_ context.Context) ([]byte, error) {
				p, err := rsa.GenerateKey(rand.Reader, 2048)
				if err != nil {
					return nil, err
				}
				return pem.EncodeToMemory(&pem.Block{
					Type:  "RSA PRIVATE KEY",
					Bytes: x509.MarshalPKCS1PrivateKey(p),
				}), nil
			}),
			WithDecryptionCallbackFunc[DecryptionAgeX25519](func(_ context.Context) ([]byte, error) {
				return []byte(identity.String()), nil
			}),
		)
		require.NoError(t, err)
		require.NoError(t, b.Insert(t.Context(), "bob", []byte("secret")))

		got, err := b.Fetch(t.Context(), "bob")
		require.NoError(t, err)
		assert.Equal(t, []byte("secret"), got)
	})

	t.Run("decryption happens in order specified", func(t *testing.T) {
		root := openRoot(t)
		identity := newIdentity(t)

		prv, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		pub, err := ssh.NewPublicKey(&prv.PublicKey)
		require.NoError(t, err)
		privatePem := pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(prv),
		})

		var called []string
		b, err := New(root, testNamespace,
			WithLogger(testhelper.TestLogger(t)),
			WithEncryptionCallbackFunc[EncryptionAgeX25519](func(_ context.Context) ([]byte, error) {
				return []byte(identity.Recipient().String()), nil
			}),
			WithEncryptionCallbackFunc[EncryptionSSH](func(_ context.Context) ([]byte, error) {
				return ssh.MarshalAuthorizedKey(pub), nil
			}),
			WithDecryptionCallbackFunc[DecryptionSSH](func(_ context.Context) ([]byte, error) {
				called = append(called, "ssh")
				return privatePem, nil
			}),
			WithDecryptionCallbackFunc[DecryptionAgeX25519](func(_ context.Context) ([]byte, error) {
				called = append(called, "age")
				return []byte(identity.String()), nil
			}),
		)
		require.NoError(t, err)
		require.NoError(t, b.Insert(t.Context(), "bob", []byte("secret")))

		got, err := b.Fetch(t.Context(), "bob")
		require.NoError(t, err)
		assert.Equal(t, []byte("secret"), got)
		assert.Equal(t, []string{"ssh"}, called)
	})

	t.Run("wrong keys fail to decrypt", func(t *testing.T) {
		root := openRoot(t)
		a := newAgeBackend(t, root, testNamespace, newIdentity(t))
		b := newAgeBackend(t, root, testNamespace, newIdentity(t))

		require.NoError(t, a.Insert(t.Context(), "bob", []byte("secret")))
		_, err := b.Fetch(t.Context(), "bob")
		require.ErrorContains(t, err, "could not decrypt")
		assert.NotErrorIs(t, err, store.ErrNoKeyFound)
	})

	t.Run("an error on encryption callbackFunc is propagated on insert", func(t *testing.T) {
		root := openRoot(t)
		encryptError := errors.New("something went wrong inside the encryption callbackFunc")
		b, err := New(root, testNamespace,
			WithLogger(testhelper.TestLogger(t)),
			WithEncryptionCallbackFunc[EncryptionPassword](func(_ context.Context) ([]byte, error) {
				return nil, encryptError
			}),
			WithDecryptionCallbackFunc[DecryptionPassword](func(_ context.Context) ([]byte, error) {
				return []byte("not-the-password"), nil
			}),
		)
		require.NoError(t, err)
		require.ErrorIs(t, b.Insert(t.Context(), "bob", []byte("secret")), encryptError)

		exists, err := secretfile.Exists(b.root, "bob")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("an empty encryption key is rejected", func(t *testing.T) {
		b, err := New(openRoot(t), testNamespace,
			WithEncryptionCallbackFunc[EncryptionPassword](func(_ context.Context) ([]byte, error) {
				return []byte("  \n"), nil
			}),
			WithDecryptionCallbackFunc[DecryptionPassword](func(_ context.Context) ([]byte, error) {
				return []byte("pass"), nil
			}),
		)
		require.NoError(t, err)
		require.ErrorContains(t, b.Insert(t.Context(), "bob", []byte("secret")), "empty key")
	})

	t.Run("an error on decryption callbackFunc is propagated on fetch", func(t *testing.T) {
		identity := newIdentity(t)
		decryptError := errors.New("something went wrong inside the decryption callbackFunc")
		b, err := New(openRoot(t), testNamespace,
			WithLogger(testhelper.TestLogger(t)),
			WithEncryptionCallbackFunc[EncryptionAgeX25519](func(_ context.Context) ([]byte, error) {
				return []byte(identity.Recipient().String()), nil
			}),
			WithDecryptionCallbackFunc[DecryptionAgeX25519](func(_ context.Context) ([]byte, error) {
				return nil, decryptError
			}),
		)
		require.NoError(t, err)
		require.NoError(t, b.Insert(t.Context(), "bob", []byte("secret")))

		_, err = b.Fetch(t.Context(), "bob")
		require.ErrorIs(t, err, decryptError)
	})
}
