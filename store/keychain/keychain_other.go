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

//go:build !darwin && !linux && !windows

package keychain

import (
	"context"
)

const supported = false

func (b *Backend) Insert(context.Context, string, []byte) error {
	return ErrUnsupportedPlatform
}

func (b *Backend) Update(context.Context, string, []byte) error {
	return ErrUnsupportedPlatform
}

func (b *Backend) Fetch(context.Context, string) ([]byte, error) {
	return nil, ErrUnsupportedPlatform
}

func (b *Backend) Delete(context.Context, string) error {
	return ErrUnsupportedPlatform
}
