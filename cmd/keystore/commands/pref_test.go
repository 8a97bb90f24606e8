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

package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		raw  bool
		want any
	}{
		{in: "true", want: true},
		{in: "42", want: float64(42)},
		{in: "1.5", want: 1.5},
		{in: "hello", want: "hello"},
		{in: "[1, 2]", want: "[1, 2]"},
		{in: "", want: ""},
		{in: "true", raw: true, want: "true"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, parseValue(tc.in, tc.raw))
		})
	}
}
