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

// Package secretfile lays out encrypted secrets on disk.
//
// Each secret lives in its own directory holding one encrypted file per
// key type, e.g. secretpass and secretage.
package secretfile

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"strings"
)

type EncryptedSecret struct {
	KeyType       KeyType
	EncryptedData []byte
}

const (
	SecretFileName = "secret"

	maxDirNameLength = 255
	// hashedPrefix is outside the unpadded base64url alphabet so hashed
	// names never collide with encoded ones
	hashedPrefix = "="
)

// DirName maps a name to a directory name that is safe on every platform.
// Short names are base64url encoded and stay reversible, longer ones are
// replaced by their SHA-256.
func DirName(name string) string {
	encoded := base64.RawURLEncoding.EncodeToString([]byte(name))
	if len(encoded) <= maxDirNameLength {
		return encoded
	}
	sum := sha256.Sum256([]byte(name))
	return hashedPrefix + hex.EncodeToString(sum[:])
}

// Exists reports whether a secret directory exists for id.
func Exists(root *os.Root, id string) (bool, error) {
	info, err := root.Stat(DirName(id))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// atomicWrite writes the file to a temporary file first and upon successful write
// renames the file.
// This function does not guarantee concurrent writes and does not clean temporary
// files upon failure.
func atomicWrite(root *os.Root, fileName string, data []byte) error {
	tmpFileName := fileName + ".tmp"
	tmpFile, err := root.OpenFile(tmpFileName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer func() {
		_ = tmpFile.Close()
	}()

	if _, err = tmpFile.Write(data); err != nil {
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		return err
	}
	return root.Rename(tmpFileName, fileName)
}

// Persist writes the encrypted secrets for id to a fresh directory.
//
// An existing directory is removed first so that files encrypted with
// different keys cannot get out of sync. If any write fails, the directory
// is removed again.
func Persist(root *os.Root, id string, secrets []EncryptedSecret) (err error) {
	secretDirName := DirName(id)

	if err := root.RemoveAll(secretDirName); err != nil {
		return err
	}
	if err := root.Mkdir(secretDirName, 0o700); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = root.RemoveAll(secretDirName)
		}
	}()

	secretDir, err := root.OpenRoot(secretDirName)
	if err != nil {
		return err
	}
	defer func() {
		_ = secretDir.Close()
	}()

	for _, s := range secrets {
		if err := atomicWrite(secretDir, SecretFileName+string(s.KeyType), s.EncryptedData); err != nil {
			return err
		}
	}
	return nil
}

// Restore reads every encrypted file of id. It returns an error matching
// [fs.ErrNotExist] when there is no directory for id.
func Restore(root *os.Root, id string) ([]EncryptedSecret, error) {
	secretDir, err := root.OpenRoot(DirName(id))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = secretDir.Close()
	}()

	files, err := fs.ReadDir(secretDir.FS(), ".")
	if err != nil {
		return nil, err
	}

	var secrets []EncryptedSecret
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), SecretFileName) || strings.HasSuffix(file.Name(), ".tmp") {
			continue
		}
		encryptedData, err := secretDir.ReadFile(file.Name())
		if err != nil {
			return nil, err
		}
		secrets = append(secrets, EncryptedSecret{
			KeyType:       KeyType(strings.TrimPrefix(file.Name(), SecretFileName)),
			EncryptedData: encryptedData,
		})
	}
	return secrets, nil
}

// Remove deletes the directory of id.
func Remove(root *os.Root, id string) error {
	return root.RemoveAll(DirName(id))
}
