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
	"encoding/json"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

func PrefCommand(p Preferences) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pref",
		Short: "Manage non-secret preferences",
	}
	cmd.AddCommand(prefSetCommand(p), prefGetCommand(p), prefRmCommand(p), prefLsCommand(p))
	return cmd
}

func prefSetCommand(p Preferences) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "set key value",
		Short: "Set a preference",
		Long:  "Set a preference. The value is parsed as YAML, so true, 42 and 1.5 are stored typed.",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return p.Set(args[0], parseValue(args[1], raw))
		},
	}
	cmd.Flags().BoolVar(&raw, "string", false, "store the value as a string")
	return cmd
}

func prefGetCommand(p Preferences) *cobra.Command {
	return &cobra.Command{
		Use:   "get key",
		Short: "Print a preference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value any
			ok, err := p.Value(args[0], &value)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("preference %q is not set", args[0])
			}
			if s, isString := value.(string); isString {
				fmt.Fprintln(cmd.OutOrStdout(), s)
				return nil
			}
			out, err := json.Marshal(value)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func prefRmCommand(p Preferences) *cobra.Command {
	return &cobra.Command{
		Use:   "rm key...",
		Short: "Remove preferences",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			for _, key := range args {
				if err := p.RemoveValue(key); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func prefLsCommand(p Preferences) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List preference keys",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keys, err := p.Keys()
			if err != nil {
				return err
			}
			slices.Sort(keys)
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
}

func parseValue(s string, raw bool) any {
	if raw {
		return s
	}
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return s
	}
	switch v.(type) {
	case bool, float64:
		return v
	default:
		return s
	}
}
