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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docker/keystore/manager"
)

func RmCommand(s Secrets) *cobra.Command {
	return &cobra.Command{
		Use:     "rm id...",
		Aliases: []string{"remove", "delete"},
		Short:   "Remove secrets",
		Long:    "Remove secrets. Removing a secret that does not exist succeeds.",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var errs []error
			for _, id := range args {
				ok, err := await(cmd.Context(), func(done func(bool)) {
					s.RemoveSecret(id, manager.Inline, done)
				})
				if err != nil {
					return err
				}
				if !ok {
					errs = append(errs, fmt.Errorf("could not remove secret %q", id))
				}
			}
			return errors.Join(errs...)
		},
	}
}
