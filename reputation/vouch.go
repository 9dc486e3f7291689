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

	"github.com/blinklabs-io/grove/database"
	"github.com/blinklabs-io/grove/database/models"
	"github.com/blinklabs-io/grove/scheduler"
)

// Vouch adds a trust edge from sponsor to account and credits the account
func (e *Engine) Vouch(sponsor, account string, txn *database.Txn) error {
	if sponsor == account {
		return ErrSelfVouch
	}
	s, err := e.participant(sponsor, txn)
	if err != nil {
		return err
	}
	a, err := e.participant(account, txn)
	if err != nil {
		return err
	}
	if s.Banned || a.Banned {
		return ErrBanned
	}
	if !s.IsIndividual() {
		return fmt.Errorf("%w: organizations cannot vouch", ErrNotEligible)
	}
	var base uint64
	switch s.Status {
	case models.StatusResident:
		base = e.params.VouchResidentPoints
	case models.StatusCitizen:
		base = e.params.VouchCitizenPoints
	default:
		return fmt.Errorf("%w: %s is a %s", ErrNotEligible, sponsor, s.Status)
	}
	if _, err := e.db.GetVouch(sponsor, account, txn); err == nil {
		return ErrAlreadyVouched
	} else if !errors.Is(err, models.ErrVouchNotFound) {
		return err
	}
	points := scaled(
		base,
		Multiplier(e.params.RepMultiplierMin, e.params.RepMultiplierMax, s.Rank),
	)
	if points == 0 {
		return nil
	}
	if err := e.db.CreateVouch(&models.Vouch{
		Sponsor: sponsor,
		Account: account,
		Points:  points,
	}, txn); err != nil {
		return err
	}
	e.metrics.vouches.Inc()
	return e.recompute(a, txn)
}

// Recompute brings the reputation an account earns from vouches in line with
// its current edges
func (e *Engine) Recompute(account string, txn *database.Txn) error {
	p, err := e.participant(account, txn)
	if err != nil {
		return err
	}
	return e.recompute(p, txn)
}

func (e *Engine) recompute(p *models.Participant, txn *database.Txn) error {
	sum, err := e.db.SumVouchPoints(p.Account, txn)
	if err != nil {
		return err
	}
	capped := min(sum, e.params.VouchCap)
	total, err := e.db.GetVouchTotal(p.Account, txn)
	if err != nil {
		return err
	}
	switch {
	case capped > total.RepPoints:
		err = e.addRep(p, capped-total.RepPoints, txn)
	case capped < total.RepPoints:
		err = e.subRep(p, total.RepPoints-capped, txn)
	}
	if err != nil {
		return err
	}
	total.VouchPoints = sum
	total.RepPoints = capped
	return e.db.SetVouchTotal(total, txn)
}

// Punish takes reputation from an account and voids the vouches it gave
func (e *Engine) Punish(account string, points uint64, txn *database.Txn) error {
	p, err := e.participant(account, txn)
	if err != nil {
		return err
	}
	return e.punish(p, points, txn)
}

func (e *Engine) punish(p *models.Participant, points uint64, txn *database.Txn) error {
	if err := e.subRep(p, points, txn); err != nil {
		return err
	}
	e.metrics.punished.Inc()
	return e.scheduler.Ensure(KindPunishVouched, p.Account, nil, txn)
}

// punishVouchedStep zeroes the outgoing edges of a punished sponsor
func (e *Engine) punishVouchedStep(
	_ context.Context,
	txn *database.Txn,
	task *models.Task,
) (scheduler.Result, error) {
	var after string
	if _, err := scheduler.DecodeCursor(task, &after); err != nil {
		return scheduler.Result{}, err
	}
	edges, err := e.db.VouchesBySponsor(task.Scope, after, e.batchSize(), txn)
	if err != nil {
		return scheduler.Result{}, err
	}
	for _, edge := range edges {
		if edge.Points == 0 {
			continue
		}
		if err := e.db.SetVouchPoints(edge.Sponsor, edge.Account, 0, txn); err != nil {
			return scheduler.Result{}, err
		}
		if err := e.Recompute(edge.Account, txn); err != nil {
			return scheduler.Result{}, err
		}
	}
	if len(edges) < e.batchSize() {
		return scheduler.Done(), nil
	}
	return scheduler.Continue(edges[len(edges)-1].Account), nil
}

type punishArgs struct {
	Points uint64 `cbor:"0,keyasint"`
}

// punishVouchersStep takes a share of a punishment from everyone who vouched
// for the punished account
func (e *Engine) punishVouchersStep(
	_ context.Context,
	txn *database.Txn,
	task *models.Task,
) (scheduler.Result, error) {
	var args punishArgs
	if err := scheduler.DecodeArgs(task, &args); err != nil {
		return scheduler.Result{}, err
	}
	var after string
	if _, err := scheduler.DecodeCursor(task, &after); err != nil {
		return scheduler.Result{}, err
	}
	account, _ := splitScope(task.Scope)
	edges, err := e.db.VouchesByAccount(account, after, e.batchSize(), txn)
	if err != nil {
		return scheduler.Result{}, err
	}
	loss := args.Points * e.params.FlagVouchPenaltyPct / 100
	for _, edge := range edges {
		if err := e.SubRep(edge.Sponsor, loss, txn); err != nil {
			return scheduler.Result{}, err
		}
	}
	if len(edges) < e.batchSize() {
		return scheduler.Done(), nil
	}
	return scheduler.Continue(edges[len(edges)-1].Sponsor), nil
}

type rewardArgs struct {
	Status string `cbor:"0,keyasint"`
}

// vouchRewardStep credits the sponsors of a newly promoted account
func (e *Engine) vouchRewardStep(
	_ context.Context,
	txn *database.Txn,
	task *models.Task,
) (scheduler.Result, error) {
	var args rewardArgs
	if err := scheduler.DecodeArgs(task, &args); err != nil {
		return scheduler.Result{}, err
	}
	var after string
	if _, err := scheduler.DecodeCursor(task, &after); err != nil {
		return scheduler.Result{}, err
	}
	var reward uint64
	switch args.Status {
	case models.StatusResident:
		reward = e.params.VouchRewardResident
	case models.StatusCitizen:
		reward = e.params.VouchRewardCitizen
	}
	if reward == 0 {
		return scheduler.Done(), nil
	}
	account, _ := splitScope(task.Scope)
	edges, err := e.db.VouchesByAccount(account, after, e.batchSize(), txn)
	if err != nil {
		return scheduler.Result{}, err
	}
	for _, edge := range edges {
		if err := e.AddRep(edge.Sponsor, reward, txn); err != nil {
			return scheduler.Result{}, err
		}
	}
	if len(edges) < e.batchSize() {
		return scheduler.Done(), nil
	}
	return scheduler.Continue(edges[len(edges)-1].Sponsor), nil
}
