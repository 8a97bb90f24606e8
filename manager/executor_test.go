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

package manager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/keystore/x/testhelper"
)

func TestSerialExecutor(t *testing.T) {
	t.Run("runs functions in order", func(t *testing.T) {
		exec := NewSerialExecutor()
		var got []int
		done := make(chan struct{})
		for i := range 100 {
			exec.Execute(func() {
				got = append(got, i)
				if i == 99 {
					close(done)
				}
			})
		}
		require.NoError(t, testhelper.WaitForClosedWithTimeout(done))
		exec.Close()

		require.Len(t, got, 100)
		for i, v := range got {
			assert.Equal(t, i, v)
		}
	})

	t.Run("close runs what is pending", func(t *testing.T) {
		exec := NewSerialExecutor()
		ran := 0
		for range 10 {
			exec.Execute(func() { ran++ })
		}
		exec.Close()
		assert.Equal(t, 10, ran)
	})

	t.Run("execute after close runs on the caller", func(t *testing.T) {
		exec := NewSerialExecutor()
		exec.Close()
		exec.Close()

		ran := false
		exec.Execute(func() { ran = true })
		assert.True(t, ran)
	})
}

func TestAsyncExecutor(t *testing.T) {
	done := make(chan struct{})
	Async.Execute(func() { close(done) })
	require.NoError(t, testhelper.WaitForClosedWithTimeout(done))
}
