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

//go:build windows

package flock

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// the whole file, whatever its size
const maxBytes = ^uint32(0)

func lockFile(f *os.File, exclusive bool) error {
	var flags uint32 = windows.LOCKFILE_FAIL_IMMEDIATELY
	if exclusive {
		flags |= windows.LOCKFILE_EXCLUSIVE_LOCK
	}
	var ov windows.Overlapped
	err := windows.LockFileEx(windows.Handle(f.Fd()), flags, 0, maxBytes, maxBytes, &ov)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, windows.ERROR_LOCK_VIOLATION):
		return errContended
	}
	return fmt.Errorf("LockFileEx %s: %w", f.Name(), err)
}

func unlockFile(f *os.File) error {
	defer func() { _ = f.Close() }()

	var ov windows.Overlapped
	if err := windows.UnlockFileEx(windows.Handle(f.Fd()), 0, maxBytes, maxBytes, &ov); err != nil {
		return fmt.Errorf("%w %s: %w", ErrUnlockUnsuccessful, f.Name(), err)
	}
	return nil
}
