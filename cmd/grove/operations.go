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
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/blinklabs-io/grove/governance"
	"github.com/blinklabs-io/grove/internal/config"
	"github.com/blinklabs-io/grove/internal/node"
	"github.com/blinklabs-io/grove/proposal"
	"github.com/spf13/cobra"
)

const callerSystem = "system"

type opFunc func(
	ctx context.Context,
	gov *governance.Governance,
	caller governance.Caller,
	args []string,
) error

func parseCaller(as string) (governance.Caller, error) {
	switch as {
	case "":
		return governance.Caller{}, errors.New("--as is required")
	case callerSystem:
		return governance.SystemCaller, nil
	}
	return governance.Caller{Account: as}, nil
}

func parseAmount(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

func parseID(s string) (uint, error) {
	v, err := strconv.ParseUint(s, 10, 0)
	if err != nil {
		return 0, fmt.Errorf("invalid proposal id %q: %w", s, err)
	}
	return uint(v), nil
}

// withStore runs fn against the governance boundary of the configured store
func withStore(
	cmd *cobra.Command,
	execOpts node.ExecOptions,
	fn func(*governance.Governance) error,
) error {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return errors.New("no config found in context")
	}
	return node.Exec(cmd.Context(), cfg, newLogger(), execOpts, fn)
}

// opCommand builds a subcommand that runs one governance operation on behalf
// of the --as caller
func opCommand(
	use string,
	short string,
	args cobra.PositionalArgs,
	fn opFunc,
) *cobra.Command {
	var as string
	var execOpts node.ExecOptions
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := parseCaller(as)
			if err != nil {
				return err
			}
			return withStore(cmd, execOpts, func(gov *governance.Governance) error {
				return fn(cmd.Context(), gov, caller, args)
			})
		},
	}
	cmd.Flags().
		StringVar(&as, "as", "", "account authorizing the operation, or 'system'")
	cmd.Flags().
		BoolVar(&execOpts.Drain, "drain", false, "run queued follow-up tasks before exiting")
	cmd.Flags().
		IntVar(&execOpts.MaxSteps, "max-steps", 0, "limit the task steps run by --drain (0 = no limit)")
	return cmd
}

// pairCommand covers the operations taking two accounts
func pairCommand(
	use, short string,
	fn func(*governance.Governance, governance.Caller, string, string) error,
) *cobra.Command {
	return opCommand(use, short, cobra.ExactArgs(2),
		func(_ context.Context, gov *governance.Governance, caller governance.Caller, args []string) error {
			return fn(gov, caller, args[0], args[1])
		},
	)
}

// accountCommand covers the operations taking a single account
func accountCommand(
	use, short string,
	fn func(*governance.Governance, governance.Caller, string) error,
) *cobra.Command {
	return opCommand(use, short, cobra.ExactArgs(1),
		func(_ context.Context, gov *governance.Governance, caller governance.Caller, args []string) error {
			return fn(gov, caller, args[0])
		},
	)
}

// amountCommand covers the operations taking an account and an amount
func amountCommand(
	use, short string,
	fn func(*governance.Governance, governance.Caller, string, uint64) error,
) *cobra.Command {
	return opCommand(use, short, cobra.ExactArgs(2),
		func(_ context.Context, gov *governance.Governance, caller governance.Caller, args []string) error {
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			return fn(gov, caller, args[0], amount)
		},
	)
}

// passCommand covers the batch passes that take no arguments
func passCommand(
	use, short string,
	fn func(*governance.Governance, governance.Caller) error,
) *cobra.Command {
	return opCommand(use, short, cobra.NoArgs,
		func(_ context.Context, gov *governance.Governance, caller governance.Caller, _ []string) error {
			return fn(gov, caller)
		},
	)
}

// voteCommand covers favour and against with their optional amount
func voteCommand(
	use, short string,
	fn func(*governance.Governance, governance.Caller, string, uint, uint64) error,
) *cobra.Command {
	return opCommand(use+" <voter> <id> [amount]", short, cobra.RangeArgs(2, 3),
		func(_ context.Context, gov *governance.Governance, caller governance.Caller, args []string) error {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			var amount uint64
			if len(args) == 3 {
				if amount, err = parseAmount(args[2]); err != nil {
					return err
				}
			}
			return fn(gov, caller, args[0], id, amount)
		},
	)
}

func addDetailsFlags(cmd *cobra.Command, details *proposal.Details, pcts *[]uint) {
	cmd.Flags().StringVar(&details.Title, "title", "", "proposal title")
	cmd.Flags().StringVar(&details.Summary, "summary", "", "proposal summary")
	cmd.Flags().StringVar(&details.Description, "description", "", "proposal description")
	cmd.Flags().StringVar(&details.Image, "image", "", "proposal image")
	cmd.Flags().StringVar(&details.URL, "url", "", "proposal url")
	cmd.Flags().
		UintSliceVar(pcts, "pcts", nil, "stepped payout percentages per cycle, e.g. 10,30,60")
}

func toUint64s(in []uint) []uint64 {
	ret := make([]uint64, len(in))
	for i, v := range in {
		ret[i] = uint64(v)
	}
	return ret
}

func createCommand() *cobra.Command {
	var details proposal.Details
	var pcts []uint
	cmd := opCommand(
		"create <creator> <recipient> <quantity> <fund>",
		"Create a staged proposal",
		cobra.ExactArgs(4),
		func(_ context.Context, gov *governance.Governance, caller governance.Caller, args []string) error {
			quantity, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			var id uint
			if len(pcts) > 0 {
				id, err = gov.CreateX(caller, args[0], args[1], quantity, args[3], details, toUint64s(pcts))
			} else {
				id, err = gov.Create(caller, args[0], args[1], quantity, args[3], details)
			}
			if err != nil {
				return err
			}
			fmt.Printf("proposal %d created\n", id)
			return nil
		},
	)
	addDetailsFlags(cmd, &details, &pcts)
	return cmd
}

func updateCommand() *cobra.Command {
	var details proposal.Details
	var pcts []uint
	cmd := opCommand(
		"update <id>",
		"Update a staged proposal",
		cobra.ExactArgs(1),
		func(_ context.Context, gov *governance.Governance, caller governance.Caller, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if len(pcts) > 0 {
				return gov.UpdateX(caller, id, details, toUint64s(pcts))
			}
			return gov.Update(caller, id, details)
		},
	)
	addDetailsFlags(cmd, &details, &pcts)
	return cmd
}

func operationCommands() []*cobra.Command {
	return []*cobra.Command{
		// Reputation
		pairCommand("vouch <sponsor> <account>", "Vouch for an account", (*governance.Governance).Vouch),
		pairCommand("flag <from> <to>", "Flag an account", (*governance.Governance).Flag),
		pairCommand("removeflag <from> <to>", "Remove a flag", (*governance.Governance).RemoveFlag),
		pairCommand("delegateflag <delegator> <delegatee>", "Delegate flagging", (*governance.Governance).DelegateFlag),
		accountCommand("undelegateflag <delegator>", "Remove a flag delegation", (*governance.Governance).UndelegateFlag),
		opCommand(
			"register <account> <kind> [referrer]",
			"Register a visitor",
			cobra.RangeArgs(2, 3),
			func(_ context.Context, gov *governance.Governance, caller governance.Caller, args []string) error {
				referrer := ""
				if len(args) == 3 {
					referrer = args[2]
				}
				return gov.Register(caller, args[0], args[1], referrer)
			},
		),
		opCommand(
			"promote <account> <status>",
			"Promote a participant",
			cobra.ExactArgs(2),
			func(ctx context.Context, gov *governance.Governance, caller governance.Caller, args []string) error {
				return gov.Promote(ctx, caller, args[0], args[1])
			},
		),
		amountCommand("addrep <account> <amount>", "Add reputation", (*governance.Governance).AddRep),
		amountCommand("subrep <account> <amount>", "Subtract reputation", (*governance.Governance).SubRep),
		amountCommand("addcbs <account> <amount>", "Add community building score", (*governance.Governance).AddCBS),
		accountCommand("ban <account>", "Ban a participant", (*governance.Governance).Ban),
		accountCommand("bantree <account>", "Ban a participant and its referrals", (*governance.Governance).BanTree),
		opCommand(
			"rankreps <kind>",
			"Rank reputation of a participant kind",
			cobra.ExactArgs(1),
			func(_ context.Context, gov *governance.Governance, caller governance.Caller, args []string) error {
				return gov.RankReps(caller, args[0])
			},
		),
		opCommand(
			"rankcbs <kind>",
			"Rank community building score of a participant kind",
			cobra.ExactArgs(1),
			func(_ context.Context, gov *governance.Governance, caller governance.Caller, args []string) error {
				return gov.RankCBS(caller, args[0])
			},
		),

		// Voice
		amountCommand("addvoice <account> <amount>", "Grant voice", (*governance.Governance).AddVoice),
		opCommand(
			"changetrust <account> <true|false>",
			"Change the trust of an account",
			cobra.ExactArgs(2),
			func(_ context.Context, gov *governance.Governance, caller governance.Caller, args []string) error {
				trusted, err := strconv.ParseBool(args[1])
				if err != nil {
					return fmt.Errorf("invalid trust %q: %w", args[1], err)
				}
				return gov.ChangeTrust(caller, args[0], trusted)
			},
		),
		accountCommand("addactive <account>", "Mark an account active", (*governance.Governance).AddActive),
		accountCommand("removeactive <account>", "Mark an account inactive", (*governance.Governance).RemoveActive),
		passCommand("decayvoices", "Queue a voice decay pass", (*governance.Governance).DecayVoices),
		passCommand("updatevoices", "Queue a participation pass", (*governance.Governance).UpdateVoices),
		passCommand("updateactives", "Queue an actives pass", (*governance.Governance).UpdateActives),
		opCommand(
			"onperiod",
			"Advance the governance clock to now",
			cobra.NoArgs,
			func(_ context.Context, gov *governance.Governance, caller governance.Caller, _ []string) error {
				res, err := gov.OnPeriod(caller, time.Now())
				if err != nil {
					return err
				}
				fmt.Printf(
					"cycle %d rolled_over=%t decayed=%t\n",
					res.Cycle,
					res.RolledOver,
					res.Decayed,
				)
				return nil
			},
		),

		// Proposals
		createCommand(),
		updateCommand(),
		opCommand(
			"cancel <id>",
			"Cancel a staged proposal",
			cobra.ExactArgs(1),
			func(_ context.Context, gov *governance.Governance, caller governance.Caller, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return gov.Cancel(caller, id)
			},
		),
		opCommand(
			"stake <from> <id> <amount>",
			"Stake tokens on a staged proposal",
			cobra.ExactArgs(3),
			func(ctx context.Context, gov *governance.Governance, caller governance.Caller, args []string) error {
				id, err := parseID(args[1])
				if err != nil {
					return err
				}
				amount, err := parseAmount(args[2])
				if err != nil {
					return err
				}
				return gov.Stake(ctx, caller, args[0], id, amount)
			},
		),
		voteCommand("favour", "Vote in favour of a proposal", (*governance.Governance).Favour),
		voteCommand("against", "Vote against a proposal", (*governance.Governance).Against),
		opCommand(
			"neutral <voter> <id>",
			"Withdraw a vote",
			cobra.ExactArgs(2),
			func(_ context.Context, gov *governance.Governance, caller governance.Caller, args []string) error {
				id, err := parseID(args[1])
				if err != nil {
					return err
				}
				return gov.Neutral(caller, args[0], id)
			},
		),
	}
}
