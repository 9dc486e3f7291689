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

package proposal

import (
	"context"
	"fmt"
	"strconv"

	"github.com/blinklabs-io/grove/database"
	"github.com/blinklabs-io/grove/database/models"
	"github.com/blinklabs-io/grove/event"
	"github.com/blinklabs-io/grove/scheduler"
)

var stageLevels = map[string]int{
	models.StageStaged: 0,
	models.StageActive: 1,
	models.StageDone:   2,
}

var statusLevels = map[string]int{
	models.StatusOpen:     0,
	models.StatusEvaluate: 1,
	models.StatusPassed:   2,
	models.StatusRejected: 2,
}

// Transition moves a proposal to a new stage and status. Both only move
// forward, a proposal is done exactly when its status is final, and nothing
// changes once it is done.
func Transition(p *models.Proposal, stage, status string) error {
	newStage, ok := stageLevels[stage]
	if !ok {
		return fmt.Errorf("%w: unknown stage %q", ErrInvalidTransition, stage)
	}
	newStatus, ok := statusLevels[status]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}
	invalid := fmt.Errorf(
		"%w: proposal %d %s/%s to %s/%s",
		ErrInvalidTransition,
		p.ID,
		p.Stage,
		p.Status,
		stage,
		status,
	)
	if p.Stage == models.StageDone {
		return invalid
	}
	if newStage < stageLevels[p.Stage] || newStatus < statusLevels[p.Status] {
		return invalid
	}
	if (stage == models.StageDone) != (newStatus == 2) {
		return invalid
	}
	p.Stage = stage
	p.Status = status
	return nil
}

// Tranche returns the amount due to a proposal at its current age
func Tranche(p *models.Proposal, linearCycles uint64) uint64 {
	remaining := p.Quantity - min(p.Paid, p.Quantity)
	if remaining == 0 {
		return 0
	}
	if p.IsLinear() {
		if p.Age+1 >= linearCycles {
			return remaining
		}
		return remaining / (linearCycles - p.Age)
	}
	if p.Age+1 >= uint64(len(p.PayPercentages)) {
		return remaining
	}
	return min(p.PayPercentages[p.Age]*p.Quantity/100, remaining)
}

// Snapshot is the quorum state frozen when a cycle closes
type Snapshot struct {
	Cycle uint64            `cbor:"0,keyasint"`
	Pct   uint64            `cbor:"1,keyasint"`
	Voice map[string]uint64 `cbor:"2,keyasint"` // total voice per fund
}

// Phases of the close pass
const (
	phaseEvaluate uint8 = iota
	phaseActivate
)

type closeCursor struct {
	Phase uint8 `cbor:"0,keyasint"`
	After uint  `cbor:"1,keyasint"`
}

// StartClose queues the pass that evaluates active proposals and activates
// staked ones for the cycle in the snapshot
func (e *Engine) StartClose(snap Snapshot, txn *database.Txn) error {
	_, err := e.scheduler.Enqueue(
		KindCloseCycle,
		strconv.FormatUint(snap.Cycle, 10),
		snap,
		txn,
	)
	return err
}

// closeStep evaluates active proposals first and activates staged ones
// after, so a proposal activated this cycle is not evaluated in it
func (e *Engine) closeStep(
	ctx context.Context,
	txn *database.Txn,
	task *models.Task,
) (scheduler.Result, error) {
	var snap Snapshot
	if err := scheduler.DecodeArgs(task, &snap); err != nil {
		return scheduler.Result{}, err
	}
	var cursor closeCursor
	if _, err := scheduler.DecodeCursor(task, &cursor); err != nil {
		return scheduler.Result{}, err
	}
	stage := models.StageActive
	if cursor.Phase == phaseActivate {
		stage = models.StageStaged
	}
	batch := int(e.params.BatchSize) //nolint:gosec
	page, err := e.db.ProposalsPage(stage, cursor.After, batch, txn)
	if err != nil {
		return scheduler.Result{}, err
	}
	for i := range page {
		p := &page[i]
		if cursor.Phase == phaseEvaluate {
			err = e.evaluate(ctx, p, snap, txn)
		} else {
			err = e.activate(p, snap, txn)
		}
		if err != nil {
			return scheduler.Result{}, fmt.Errorf("proposal %d: %w", p.ID, err)
		}
	}
	if len(page) == batch {
		return scheduler.Continue(closeCursor{
			Phase: cursor.Phase,
			After: page[len(page)-1].ID,
		}), nil
	}
	if cursor.Phase == phaseEvaluate {
		return scheduler.Continue(closeCursor{Phase: phaseActivate}), nil
	}
	e.logger.Info("cycle closed", "cycle", snap.Cycle)
	return scheduler.Done(), nil
}

func (e *Engine) evaluate(
	ctx context.Context,
	p *models.Proposal,
	snap Snapshot,
	txn *database.Txn,
) error {
	passing := p.Favour > p.Against
	switch p.Status {
	case models.StatusOpen:
		required := QuorumRequired(snap.Voice[p.Fund], snap.Pct)
		if !passing || p.Total < required {
			e.logger.Debug(
				"proposal rejected",
				"id", p.ID,
				"favour", p.Favour,
				"against", p.Against,
				"total", p.Total,
				"required", required,
			)
			if err := e.reject(p, txn); err != nil {
				return err
			}
			return e.finish(p, snap, txn)
		}
		if err := Transition(p, models.StageActive, models.StatusEvaluate); err != nil {
			return err
		}
		p.PassedCycle = snap.Cycle
		if err := e.pay(ctx, p, txn); err != nil {
			return err
		}
		if err := e.startRefund(p, txn); err != nil {
			return err
		}
	case models.StatusEvaluate:
		if !passing {
			if err := Transition(p, models.StageDone, models.StatusRejected); err != nil {
				return err
			}
			return e.finish(p, snap, txn)
		}
		if err := e.pay(ctx, p, txn); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: active proposal with status %s", ErrInvalidTransition, p.Status)
	}
	if p.Paid >= p.Quantity {
		if err := Transition(p, models.StageDone, models.StatusPassed); err != nil {
			return err
		}
	}
	return e.finish(p, snap, txn)
}

// reject ends an open proposal and retires its stake
func (e *Engine) reject(p *models.Proposal, txn *database.Txn) error {
	if err := Transition(p, models.StageDone, models.StatusRejected); err != nil {
		return err
	}
	if p.Staked > 0 {
		if err := e.outbox.Retire(
			e.params.Funds[p.Fund].Account,
			p.Staked,
			fmt.Sprintf("rejected proposal %d", p.ID),
			txn,
		); err != nil {
			return err
		}
	}
	return e.db.DeleteStakeContributions(p.ID, txn)
}

// pay sends the tranche due at the current age and ages the proposal
func (e *Engine) pay(ctx context.Context, p *models.Proposal, txn *database.Txn) error {
	amount := Tranche(p, e.params.LinearPayoutCycles)
	if amount > 0 {
		account := e.params.Funds[p.Fund].Account
		payable, err := e.payable(ctx, account, txn)
		if err != nil {
			return err
		}
		if payable < amount {
			return fmt.Errorf(
				"%w: %s can pay %d, tranche is %d",
				ErrFundShort,
				account,
				payable,
				amount,
			)
		}
		if err := e.outbox.Send(
			account,
			p.Recipient,
			amount,
			fmt.Sprintf("proposal %d tranche %d", p.ID, p.Age),
			txn,
		); err != nil {
			return err
		}
		p.Paid += amount
		e.metrics.paid.Add(float64(amount))
		e.publish(event.ProposalPayoutEventType, event.ProposalPayoutEvent{
			Recipient:  p.Recipient,
			ProposalID: p.ID,
			Amount:     amount,
			Age:        p.Age,
		})
	}
	p.Age++
	return nil
}

// payable is what a fund account can pay out. Stake it holds for proposals
// belongs to the stakers and is not counted.
func (e *Engine) payable(ctx context.Context, account string, txn *database.Txn) (uint64, error) {
	available, err := e.outbox.Available(ctx, account, txn)
	if err != nil {
		return 0, err
	}
	escrowed, err := e.db.EscrowedStake(account, txn)
	if err != nil {
		return 0, err
	}
	return available - min(escrowed, available), nil
}

// finish saves an evaluated proposal
func (e *Engine) finish(p *models.Proposal, snap Snapshot, txn *database.Txn) error {
	if p.Stage == models.StageDone {
		if err := e.db.ChangeSize(models.SizeActiveProposals, -1, txn); err != nil {
			return err
		}
		e.metrics.closed.WithLabelValues(p.Status).Inc()
		e.logger.Info(
			"proposal done",
			"id", p.ID,
			"status", p.Status,
			"paid", p.Paid,
			"age", p.Age,
		)
	}
	if err := e.db.SetProposal(p, txn); err != nil {
		return err
	}
	e.publishStage(p, snap.Cycle)
	return nil
}

// activate opens a staged proposal for voting once it holds enough stake
func (e *Engine) activate(p *models.Proposal, snap Snapshot, txn *database.Txn) error {
	if p.Staked < e.MinStake(p) {
		return nil
	}
	if err := Transition(p, models.StageActive, models.StatusOpen); err != nil {
		return err
	}
	if err := e.db.ChangeSize(models.SizeActiveProposals, 1, txn); err != nil {
		return err
	}
	if err := e.db.SetProposal(p, txn); err != nil {
		return err
	}
	e.logger.Info("proposal activated", "id", p.ID, "cycle", snap.Cycle)
	e.publishStage(p, snap.Cycle)
	return nil
}

func (e *Engine) publishStage(p *models.Proposal, cycle uint64) {
	e.publish(event.ProposalStageEventType, event.ProposalStageEvent{
		Stage:      p.Stage,
		Status:     p.Status,
		ProposalID: p.ID,
		Cycle:      cycle,
	})
}
