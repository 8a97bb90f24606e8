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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docker/keystore/manager"
)

func GetCommand(s Secrets) *cobra.Command {
	return &cobra.Command{
		Use:   "get id",
		Short: "Print the value of a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := await(cmd.Context(), func(done func(*string)) {
				s.LoadSecret(args[0], manager.Inline, done)
			})
			if err != nil {
				return err
			}
			if value == nil {
				return fmt.Errorf("secret %q not found", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), *value)
			return nil
		},
	}
}

func CheckCommand(s Secrets) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "check id",
		Short: "Report whether a secret exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			found := s.CheckSecretSync(args[0])
			if quiet {
				if !found {
					return fmt.Errorf("secret %q not found", args[0])
				}
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), found)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print nothing, fail when the secret is missing")
	return cmd
}
