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

package reputation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/blinklabs-io/grove/database"
	"github.com/blinklabs-io/grove/database/models"
	"github.com/blinklabs-io/grove/event"
	"github.com/blinklabs-io/grove/scheduler"
)

// taskScope builds a task scope that starts with an account
func taskScope(account string, suffix ...string) string {
	return strings.Join(append([]string{account}, suffix...), "/")
}

// splitScope undoes taskScope for scopes with a single suffix
func splitScope(scope string) (string, string) {
	idx := strings.LastIndex(scope, "/")
	if idx < 0 {
		return scope, ""
	}
	return scope[:idx], scope[idx+1:]
}

// Flag raises a flag from one account against another. When the flags
// against an account cross the threshold the account is punished once for
// the points not yet punished.
func (e *Engine) Flag(from, to string, txn *database.Txn) error {
	if err := e.flag(from, to, txn); err != nil {
		return err
	}
	if from == to {
		return nil
	}
	return e.startMimic(from, to, false, txn)
}

func (e *Engine) flag(from, to string, txn *database.Txn) error {
	flagger, err := e.participant(from, txn)
	if err != nil {
		return err
	}
	if flagger.Banned {
		return ErrBanned
	}
	if from == to {
		return nil
	}
	target, err := e.participant(to, txn)
	if err != nil {
		return err
	}
	if _, err := e.db.GetFlag(from, to, txn); err == nil {
		return ErrAlreadyFlagged
	} else if !errors.Is(err, models.ErrFlagNotFound) {
		return err
	}
	var base uint64
	switch flagger.Status {
	case models.StatusResident:
		base = e.params.FlagResidentPoints
	case models.StatusCitizen:
		base = e.params.FlagCitizenPoints
	default:
		return fmt.Errorf("%w: %s is a %s", ErrNotEligible, from, flagger.Status)
	}
	if flagger.Reputation == 0 {
		return fmt.Errorf("%w: %s", ErrNoReputation, from)
	}
	points := scaled(
		base,
		Multiplier(e.params.FlagMultiplierMin, e.params.FlagMultiplierMax, flagger.Rank),
	)
	if err := e.db.CreateFlag(&models.Flag{
		Flagger: from,
		Target:  to,
		Points:  points,
	}, txn); err != nil {
		return err
	}
	e.metrics.flags.Inc()
	total, err := e.db.GetFlagTotal(to, txn)
	if err != nil {
		return err
	}
	total.Total += points
	if total.Total >= e.params.FlagThreshold &&
		total.Removed < total.Total &&
		target.Reputation > 0 {
		penalty := total.Total - total.Removed
		if err := e.punish(target, penalty, txn); err != nil {
			return err
		}
		if err := e.scheduler.Ensure(KindEvalDemote, to, nil, txn); err != nil {
			return err
		}
		if _, err := e.scheduler.Enqueue(
			KindPunishVouchers,
			taskScope(to, fmt.Sprintf("%d", total.Total)),
			punishArgs{Points: penalty},
			txn,
		); err != nil {
			return err
		}
		total.Removed = total.Total
		e.logger.Info(
			"account punished by flags",
			"account", to,
			"points", penalty,
			"flag_total", total.Total,
		)
		e.publish(
			event.ReputationPunishedEventType,
			event.ReputationPunishedEvent{
				Account:   to,
				Points:    penalty,
				FlagTotal: total.Total,
			},
		)
	}
	return e.db.SetFlagTotal(total, txn)
}

// RemoveFlag withdraws a flag. Punishment already applied stays.
func (e *Engine) RemoveFlag(from, to string, txn *database.Txn) error {
	if err := e.removeFlag(from, to, txn); err != nil {
		return err
	}
	return e.startMimic(from, to, true, txn)
}

func (e *Engine) removeFlag(from, to string, txn *database.Txn) error {
	flag, err := e.db.GetFlag(from, to, txn)
	if err != nil {
		return err
	}
	total, err := e.db.GetFlagTotal(to, txn)
	if err != nil {
		return err
	}
	if total.Total > flag.Points {
		total.Total -= flag.Points
	} else {
		total.Total = 0
	}
	if err := e.db.DeleteFlag(from, to, txn); err != nil {
		return err
	}
	return e.db.SetFlagTotal(total, txn)
}

// DelegateFlag makes delegator follow the flags of delegatee
func (e *Engine) DelegateFlag(delegator, delegatee string, txn *database.Txn) error {
	if delegator == delegatee {
		return ErrSelfDelegation
	}
	for _, account := range []string{delegator, delegatee} {
		if _, err := e.participant(account, txn); err != nil {
			return err
		}
	}
	// Walk the existing chain from the delegatee
	current := delegatee
	var depth uint64
	for ; depth < e.params.DelegationMaxDepth; depth++ {
		next, err := e.db.GetDelegatee(current, txn)
		if err != nil {
			return err
		}
		if next == "" {
			break
		}
		if next == delegator {
			return ErrDelegationCycle
		}
		current = next
	}
	if depth >= e.params.DelegationMaxDepth {
		return fmt.Errorf(
			"%w: limit is %d",
			ErrDelegationDepth,
			e.params.DelegationMaxDepth,
		)
	}
	return e.db.SetDelegation(delegator, delegatee, txn)
}

// UndelegateFlag ends a delegation. Either party may end it.
func (e *Engine) UndelegateFlag(actor, delegator string, txn *database.Txn) error {
	delegatee, err := e.db.GetDelegatee(delegator, txn)
	if err != nil {
		return err
	}
	if delegatee == "" {
		return models.ErrDelegationNotFound
	}
	if actor != delegator && actor != delegatee {
		return ErrNotDelegationParty
	}
	return e.db.DeleteDelegation(delegator, txn)
}

type mimicArgs struct {
	Actor  string `cbor:"0,keyasint"`
	Target string `cbor:"1,keyasint"`
	Remove bool   `cbor:"2,keyasint"`
}

func (e *Engine) startMimic(actor, target string, remove bool, txn *database.Txn) error {
	delegators, err := e.db.DelegatorsPage(actor, "", 1, txn)
	if err != nil || len(delegators) == 0 {
		return err
	}
	op := "flag"
	if remove {
		op = "removeflag"
	}
	return e.scheduler.Ensure(
		KindMimic,
		taskScope(actor, target, op),
		mimicArgs{Actor: actor, Target: target, Remove: remove},
		txn,
	)
}

// skippable reports errors that make a delegator sit out a replay
func skippable(err error) bool {
	return errors.Is(err, ErrAlreadyFlagged) ||
		errors.Is(err, ErrNotEligible) ||
		errors.Is(err, ErrNoReputation) ||
		errors.Is(err, ErrBanned) ||
		errors.Is(err, models.ErrFlagNotFound) ||
		errors.Is(err, models.ErrParticipantNotFound)
}

// mimicStep replays a flag or flag removal as each delegator of the actor.
// Replays start their own mimic tasks, so chains of delegation follow.
func (e *Engine) mimicStep(
	_ context.Context,
	txn *database.Txn,
	task *models.Task,
) (scheduler.Result, error) {
	var args mimicArgs
	if err := scheduler.DecodeArgs(task, &args); err != nil {
		return scheduler.Result{}, err
	}
	var after string
	if _, err := scheduler.DecodeCursor(task, &after); err != nil {
		return scheduler.Result{}, err
	}
	delegators, err := e.db.DelegatorsPage(args.Actor, after, e.batchSize(), txn)
	if err != nil {
		return scheduler.Result{}, err
	}
	for _, delegator := range delegators {
		if args.Remove {
			err = e.RemoveFlag(delegator, args.Target, txn)
		} else {
			err = e.Flag(delegator, args.Target, txn)
		}
		if err != nil {
			if !skippable(err) {
				return scheduler.Result{}, err
			}
			e.logger.Debug(
				"delegator skipped",
				"delegator", delegator,
				"target", args.Target,
				"remove", args.Remove,
				"reason", err,
			)
			continue
		}
		e.metrics.mimicked.Inc()
	}
	if len(delegators) < e.batchSize() {
		return scheduler.Done(), nil
	}
	return scheduler.Continue(delegators[len(delegators)-1]), nil
}
