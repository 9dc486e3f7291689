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
	"math"
	"time"

	"github.com/blinklabs-io/grove/database"
	"github.com/blinklabs-io/grove/database/models"
	"github.com/blinklabs-io/grove/event"
	"github.com/blinklabs-io/grove/rank"
	"github.com/blinklabs-io/grove/scheduler"
	"github.com/shopspring/decimal"
)

// Register adds a visitor, optionally linked to the account that invited it
func (e *Engine) Register(account, kind, referrer string, txn *database.Txn) error {
	if kind != models.KindIndividual && kind != models.KindOrganization {
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if referrer != "" {
		if referrer == account {
			return fmt.Errorf("%w: %s cannot refer itself", ErrNotEligible, account)
		}
		r, err := e.participant(referrer, txn)
		if err != nil {
			return err
		}
		if r.Banned {
			return ErrBanned
		}
	}
	if err := e.db.CreateParticipant(&models.Participant{
		Account:  account,
		Status:   models.StatusVisitor,
		Kind:     kind,
		Referrer: referrer,
	}, txn); err != nil {
		return err
	}
	if referrer == "" {
		return nil
	}
	return e.db.AddReferral(referrer, account, txn)
}

// Promote raises the status of an account and pays the rewards that come
// with it
func (e *Engine) Promote(
	ctx context.Context,
	account string,
	status string,
	txn *database.Txn,
) error {
	p, err := e.participant(account, txn)
	if err != nil {
		return err
	}
	if p.Banned {
		return ErrBanned
	}
	level := models.StatusLevel(status)
	if level < 0 || level <= models.StatusLevel(p.Status) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidStatus, p.Status, status)
	}
	if err := e.setStatus(p, status, txn); err != nil {
		return err
	}
	if status == models.StatusCitizen {
		if err := e.voice.SetCitizen(account, txn); err != nil {
			return err
		}
		if err := e.voice.AddActive(account, txn); err != nil {
			return err
		}
	}
	if err := e.scheduler.Ensure(
		KindVouchReward,
		taskScope(account, status),
		rewardArgs{Status: status},
		txn,
	); err != nil {
		return err
	}
	return e.refReward(ctx, p, status, txn)
}

func (e *Engine) setStatus(p *models.Participant, status string, txn *database.Txn) error {
	if err := e.db.UpdateParticipant(
		p.Account,
		map[string]any{"status": status},
		txn,
	); err != nil {
		return err
	}
	old := p.Status
	p.Status = status
	e.metrics.status.WithLabelValues(status).Inc()
	e.logger.Info(
		"status changed",
		"account", p.Account,
		"old_status", old,
		"new_status", status,
	)
	e.publish(
		event.ParticipantStatusEventType,
		event.ParticipantStatusEvent{
			Account:   p.Account,
			OldStatus: old,
			NewStatus: status,
		},
	)
	return nil
}

// ReferralReward is the token reward for the n-th promotion, decaying from
// hi towards lo
func ReferralReward(n, lo, hi uint64, decay decimal.Decimal) uint64 {
	if hi <= lo || !decay.IsPositive() {
		return lo
	}
	curve := math.Exp(-float64(n+1) / decay.InexactFloat64())
	amount := decimal.NewFromInt(int64(hi - lo)). //nolint:gosec
		Mul(decimal.NewFromFloat(curve)).
		Add(decimal.NewFromInt(int64(lo))). //nolint:gosec
		Round(0)
	return uint64(amount.IntPart()) //nolint:gosec
}

func (e *Engine) refReward(
	ctx context.Context,
	p *models.Participant,
	status string,
	txn *database.Txn,
) error {
	referrer, err := e.db.GetReferrer(p.Account, txn)
	if err != nil || referrer == "" {
		return err
	}
	r, err := e.db.GetParticipant(referrer, txn)
	if err != nil {
		if errors.Is(err, models.ErrParticipantNotFound) {
			return nil
		}
		return err
	}
	count, err := e.db.NextRewardCount("promoted."+status, "", txn)
	if err != nil {
		return err
	}
	if r.IsIndividual() {
		if err := e.addRep(r, e.params.RefRepReward, txn); err != nil {
			return err
		}
		amount := ReferralReward(
			count,
			e.params.RefRewardMin,
			e.params.RefRewardMax,
			e.params.RefRewardDecay,
		)
		if err := e.sendReward(ctx, "individual", r.Account, p.Account, amount, txn); err != nil {
			return err
		}
	} else {
		if err := e.sendReward(ctx, "organization", r.Account, p.Account, e.params.OrgRefReward, txn); err != nil {
			return err
		}
		// The ambassador is whoever brought in the organization's owner
		owner, err := e.db.GetReferrer(r.Account, txn)
		if err != nil {
			return err
		}
		if owner != "" {
			ambassador, err := e.db.GetReferrer(owner, txn)
			if err != nil {
				return err
			}
			if ambassador != "" {
				if err := e.sendReward(ctx, "ambassador", ambassador, p.Account, e.params.AmbassadorReward, txn); err != nil {
					return err
				}
			}
		}
	}
	return e.addCBS(r, e.params.RefCBSReward, txn)
}

// sendReward pays a reward from the treasury. A reward the treasury cannot
// cover is skipped.
func (e *Engine) sendReward(
	ctx context.Context,
	kind string,
	recipient string,
	invited string,
	amount uint64,
	txn *database.Txn,
) error {
	if amount == 0 {
		return nil
	}
	available, err := e.outbox.Available(ctx, e.params.TreasuryAccount, txn)
	if err != nil {
		return err
	}
	if available < amount {
		e.logger.Debug(
			"treasury cannot cover reward, skipping",
			"kind", kind,
			"recipient", recipient,
			"amount", amount,
			"available", available,
		)
		return nil
	}
	if err := e.outbox.Send(
		e.params.TreasuryAccount,
		recipient,
		amount,
		"referral reward",
		txn,
	); err != nil {
		return err
	}
	e.metrics.rewards.WithLabelValues(kind).Inc()
	e.publish(event.ReferralRewardEventType, event.ReferralRewardEvent{
		Referrer: recipient,
		Invited:  invited,
		Kind:     kind,
		Amount:   amount,
	})
	return nil
}

// statusForRank maps a reputation rank to the status it supports
func (e *Engine) statusForRank(r uint64) string {
	switch {
	case r < e.params.ResidentRankMin:
		return models.StatusVisitor
	case r < e.params.CitizenRankMin:
		return models.StatusResident
	default:
		return models.StatusCitizen
	}
}

// evalDemoteStep finds the rank of a flagged account and demotes it when the
// rank no longer supports its status
func (e *Engine) evalDemoteStep(
	_ context.Context,
	txn *database.Txn,
	task *models.Task,
) (scheduler.Result, error) {
	p, err := e.db.GetParticipant(task.Scope, txn)
	if err != nil {
		if errors.Is(err, models.ErrParticipantNotFound) {
			return scheduler.Done(), nil
		}
		return scheduler.Result{}, err
	}
	entry, err := e.db.GetScore(database.ScoreTableReputation, p.Kind, p.Account, txn)
	if err != nil {
		return scheduler.Result{}, err
	}
	if entry == nil {
		if p.Status != models.StatusVisitor {
			return scheduler.Done(), e.setStatus(p, models.StatusVisitor, txn)
		}
		return scheduler.Done(), nil
	}
	var cursor rank.Cursor
	started, err := scheduler.DecodeCursor(task, &cursor)
	if err != nil {
		return scheduler.Result{}, err
	}
	var after *rank.Entry
	if started {
		after = &rank.Entry{Account: cursor.Account, Score: cursor.Score}
	}
	chunk := int(e.params.RankChunkSize) //nolint:gosec
	pop := e.populations(p.Kind)
	offset, page, err := rank.Locate(txn, pop, p.Account, after, chunk)
	if err != nil {
		return scheduler.Result{}, err
	}
	if offset < 0 {
		if len(page) < chunk {
			return scheduler.Done(), nil
		}
		last := page[len(page)-1]
		return scheduler.Continue(rank.Cursor{
			Account: last.Account,
			Score:   last.Score,
			Chunk:   cursor.Chunk + 1,
		}), nil
	}
	size, err := pop.Size(txn)
	if err != nil {
		return scheduler.Result{}, err
	}
	position := cursor.Chunk*e.params.RankChunkSize + uint64(offset) //nolint:gosec
	r := rank.Percentile(position, size)
	if err := pop.SetRank(txn, p.Account, r); err != nil {
		return scheduler.Result{}, err
	}
	computed := e.statusForRank(r)
	if models.StatusLevel(computed) < models.StatusLevel(p.Status) {
		if err := e.setStatus(p, computed, txn); err != nil {
			return scheduler.Result{}, err
		}
	}
	return scheduler.Done(), nil
}

// Ban blocks an account from every reputation operation
func (e *Engine) Ban(account string, txn *database.Txn) error {
	if _, err := e.participant(account, txn); err != nil {
		return err
	}
	return e.db.AddBan(account, time.Now(), txn)
}

// BanTree bans an account and everyone it referred, recursively
func (e *Engine) BanTree(account string, txn *database.Txn) error {
	if err := e.Ban(account, txn); err != nil {
		return err
	}
	return e.scheduler.Ensure(KindBanTree, account, nil, txn)
}

func (e *Engine) banTreeStep(
	_ context.Context,
	txn *database.Txn,
	task *models.Task,
) (scheduler.Result, error) {
	var after string
	if _, err := scheduler.DecodeCursor(task, &after); err != nil {
		return scheduler.Result{}, err
	}
	invited, err := e.db.ReferralsPage(task.Scope, after, e.batchSize(), txn)
	if err != nil {
		return scheduler.Result{}, err
	}
	for _, account := range invited {
		if err := e.db.AddBan(account, time.Now(), txn); err != nil {
			return scheduler.Result{}, err
		}
		if err := e.scheduler.Ensure(KindBanTree, account, nil, txn); err != nil {
			return scheduler.Result{}, err
		}
	}
	if len(invited) < e.batchSize() {
		return scheduler.Done(), nil
	}
	return scheduler.Continue(invited[len(invited)-1]), nil
}
