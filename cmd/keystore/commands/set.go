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
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/docker/keystore/manager"
)

const setExample = `
# Set a secret:
keystore set db-password my-secret-password

# Or pass the secret via STDIN:
cat pwd.txt | keystore set db-password
`

func SetCommand(s Secrets) *cobra.Command {
	return &cobra.Command{
		Use:     "set id [value]",
		Aliases: []string{"save"},
		Short:   "Create or replace a secret",
		Example: strings.Trim(setExample, "\n"),
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			var value string
			if len(args) == 2 {
				value = args[1]
			} else {
				v, err := readValue(cmd)
				if err != nil {
					return err
				}
				value = v
			}

			ok, err := await(cmd.Context(), func(done func(bool)) {
				s.SaveSecret(value, id, manager.Inline, done)
			})
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("could not save secret %q", id)
			}
			return nil
		},
	}
}

// readValue prompts for the value on a terminal and otherwise reads all of
// stdin, dropping one trailing newline.
func readValue(cmd *cobra.Command) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		cmd.PrintErr("Secret: ")
		data, err := term.ReadPassword(int(f.Fd()))
		cmd.PrintErrln()
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	data, err := readAllWithContext(cmd.Context(), cmd.InOrStdin())
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errors.New("no value given on the command line or STDIN")
	}
	value := strings.TrimSuffix(string(data), "\n")
	return strings.TrimSuffix(value, "\r"), nil
}
