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

package store

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// MaxIDLength is the longest identifier, in bytes, every backend can store.
const MaxIDLength = 255

// ValidateID returns nil if id can be used as an entry identifier.
// Rules:
// - non-empty and at most MaxIDLength bytes
// - valid UTF-8
// - no control characters
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: identifier is empty", ErrInvalidID)
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("%w: identifier is longer than %d bytes", ErrInvalidID, MaxIDLength)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidID, id)
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains control characters", ErrInvalidID, id)
		}
	}
	return nil
}
