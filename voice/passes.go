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

package voice

import (
	"context"
	"errors"

	"github.com/blinklabs-io/grove/database"
	"github.com/blinklabs-io/grove/database/models"
	"github.com/blinklabs-io/grove/scheduler"
	"github.com/shopspring/decimal"
)

func (l *Ledger) batchSize() int {
	return int(l.params.BatchSize) //nolint:gosec
}

// Decayed returns floor(balance * factor), zero below floor. A zero floor
// disables the cut-off.
func Decayed(balance uint64, factor decimal.Decimal, floor uint64) uint64 {
	next := decimal.NewFromInt(int64(balance)).Mul(factor).Floor() //nolint:gosec
	if next.IsNegative() {
		return 0
	}
	ret := min(uint64(next.IntPart()), balance) //nolint:gosec
	if floor > 0 && ret < floor {
		return 0
	}
	return ret
}

func (l *Ledger) decayStep(
	_ context.Context,
	txn *database.Txn,
	task *models.Task,
) (scheduler.Result, error) {
	var after uint
	if _, err := scheduler.DecodeCursor(task, &after); err != nil {
		return scheduler.Result{}, err
	}
	rows, err := l.db.VoicePage(after, l.batchSize(), txn)
	if err != nil {
		return scheduler.Result{}, err
	}
	for _, row := range rows {
		next := Decayed(row.Balance, l.params.DecayFactor, l.params.DecayFloor)
		if next == row.Balance {
			continue
		}
		if err := l.set(row.Scope, row.Account, next, txn); err != nil {
			return scheduler.Result{}, err
		}
		l.decayed.Inc()
	}
	if len(rows) < l.batchSize() {
		l.logger.Debug("voice decay finished", "steps", task.Steps+1)
		return scheduler.Done(), nil
	}
	return scheduler.Continue(rows[len(rows)-1].ID), nil
}

func (l *Ledger) activesStep(
	_ context.Context,
	txn *database.Txn,
	task *models.Task,
) (scheduler.Result, error) {
	var after string
	if _, err := scheduler.DecodeCursor(task, &after); err != nil {
		return scheduler.Result{}, err
	}
	actives, err := l.db.ActivesPage(after, l.batchSize(), txn)
	if err != nil {
		return scheduler.Result{}, err
	}
	for _, active := range actives {
		keep, err := l.stillCitizen(active.Account, txn)
		if err != nil {
			return scheduler.Result{}, err
		}
		if keep {
			continue
		}
		if err := l.db.RemoveActive(active.Account, txn); err != nil {
			return scheduler.Result{}, err
		}
		l.dropped.Inc()
		l.logger.Debug("dropped active", "account", active.Account)
	}
	if len(actives) < l.batchSize() {
		return scheduler.Done(), l.refreshActives(txn)
	}
	return scheduler.Continue(actives[len(actives)-1].Account), nil
}

func (l *Ledger) stillCitizen(account string, txn *database.Txn) (bool, error) {
	participant, err := l.db.GetParticipant(account, txn)
	if err != nil {
		if errors.Is(err, models.ErrParticipantNotFound) {
			return false, nil
		}
		return false, err
	}
	return participant.Status == models.StatusCitizen && !participant.Banned, nil
}

func (l *Ledger) participationStep(
	_ context.Context,
	txn *database.Txn,
	task *models.Task,
) (scheduler.Result, error) {
	var after string
	if _, err := scheduler.DecodeCursor(task, &after); err != nil {
		return scheduler.Result{}, err
	}
	rows, err := l.db.ParticipationPage(after, l.batchSize(), txn)
	if err != nil {
		return scheduler.Result{}, err
	}
	for _, row := range rows {
		if row.Count > 0 {
			active, err := l.db.IsActive(row.Account, txn)
			if err != nil {
				return scheduler.Result{}, err
			}
			if active {
				if err := l.Grant(row.Account, l.params.VoiceParticipation, txn); err != nil {
					return scheduler.Result{}, err
				}
				l.rewarded.Inc()
			}
		}
		if err := l.db.ClearParticipation(row.Account, txn); err != nil {
			return scheduler.Result{}, err
		}
	}
	if len(rows) < l.batchSize() {
		return scheduler.Done(), nil
	}
	return scheduler.Continue(rows[len(rows)-1].Account), nil
}
