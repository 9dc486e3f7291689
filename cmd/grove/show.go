// Copyright 2025 Blink Labs Software
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

package main

import (
	"os"

	"github.com/blinklabs-io/grove/governance"
	"github.com/blinklabs-io/grove/internal/node"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func printYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func queryCommand(
	use, short string,
	args cobra.PositionalArgs,
	fn func(*governance.Governance, []string) (any, error),
) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, node.ExecOptions{}, func(gov *governance.Governance) error {
				ret, err := fn(gov, args)
				if err != nil {
					return err
				}
				return printYAML(ret)
			})
		},
	}
}

func showCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show governance state",
	}
	cmd.AddCommand(
		queryCommand("participant <account>", "Show a participant", cobra.ExactArgs(1),
			func(gov *governance.Governance, args []string) (any, error) {
				return gov.Participant(args[0])
			},
		),
		queryCommand("voice <account>", "Show the voice of an account per fund", cobra.ExactArgs(1),
			func(gov *governance.Governance, args []string) (any, error) {
				return gov.VoiceBalances(args[0])
			},
		),
		queryCommand("proposal <id>", "Show a proposal", cobra.ExactArgs(1),
			func(gov *governance.Governance, args []string) (any, error) {
				id, err := parseID(args[0])
				if err != nil {
					return nil, err
				}
				return gov.Proposal(id)
			},
		),
		queryCommand("proposals", "List proposals", cobra.NoArgs,
			func(gov *governance.Governance, _ []string) (any, error) {
				return gov.Proposals()
			},
		),
		queryCommand("checkstake <id>", "Report whether a proposal is fully staked", cobra.ExactArgs(1),
			func(gov *governance.Governance, args []string) (any, error) {
				id, err := parseID(args[0])
				if err != nil {
					return nil, err
				}
				staked, err := gov.CheckStake(id)
				if err != nil {
					return nil, err
				}
				return map[string]any{"id": id, "staked": staked}, nil
			},
		),
		queryCommand("cycle", "Show the current cycle", cobra.NoArgs,
			func(gov *governance.Governance, _ []string) (any, error) {
				return gov.Cycle()
			},
		),
	)
	return cmd
}
