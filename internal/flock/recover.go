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

package flock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

var errRecoverLock = errors.New("lock is still fresh")

// recoverStaleLock deletes the lock file when nobody has refreshed it for
// staleAfter, which is what a holder that crashed leaves behind. Windows
// refuses to delete a file another process still has locked.
//
// fl is closed in every case.
func (l *Locker) recoverStaleLock(fl *os.File) error {
	defer func() { _ = fl.Close() }()

	info, err := fl.Stat()
	if err != nil {
		return fmt.Errorf("inspecting lock %s: %w", l.name, err)
	}

	idle := time.Since(info.ModTime())
	if idle < l.staleAfter {
		return fmt.Errorf("%w: %s refreshed %s ago", errRecoverLock, l.name, idle.Round(time.Millisecond))
	}

	l.logger.Warnf("removing lock %s, untouched for %s", l.name, idle.Round(time.Second))
	if err := l.root.Remove(l.name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing stale lock %s: %w", l.name, err)
	}
	return nil
}
