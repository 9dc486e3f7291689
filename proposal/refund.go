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
	"github.com/blinklabs-io/grove/scheduler"
)

type refundArgs struct {
	ProposalID uint   `cbor:"0,keyasint"`
	Account    string `cbor:"1,keyasint"`
}

// startRefund queues the return of every stake contribution of a proposal
// from its fund account
func (e *Engine) startRefund(p *models.Proposal, txn *database.Txn) error {
	return e.scheduler.Ensure(
		KindRefund,
		strconv.FormatUint(uint64(p.ID), 10),
		refundArgs{
			ProposalID: p.ID,
			Account:    e.params.Funds[p.Fund].Account,
		},
		txn,
	)
}

// refundStep sends back one batch of contributions ordered by contributor.
// A contribution leaves the escrow in the same step its refund is queued.
func (e *Engine) refundStep(
	_ context.Context,
	txn *database.Txn,
	task *models.Task,
) (scheduler.Result, error) {
	var args refundArgs
	if err := scheduler.DecodeArgs(task, &args); err != nil {
		return scheduler.Result{}, err
	}
	var after string
	if _, err := scheduler.DecodeCursor(task, &after); err != nil {
		return scheduler.Result{}, err
	}
	batch := int(e.params.BatchSize) //nolint:gosec
	page, err := e.db.StakeContributionsPage(args.ProposalID, after, batch, txn)
	if err != nil {
		return scheduler.Result{}, err
	}
	for _, c := range page {
		if c.Amount > 0 {
			if err := e.outbox.Send(
				args.Account,
				c.Contributor,
				c.Amount,
				fmt.Sprintf("refund stake %d", args.ProposalID),
				txn,
			); err != nil {
				return scheduler.Result{}, err
			}
		}
		if err := e.db.DeleteStakeContribution(c.ID, txn); err != nil {
			return scheduler.Result{}, err
		}
	}
	if batch > 0 && len(page) == batch {
		return scheduler.Continue(page[len(page)-1].Contributor), nil
	}
	e.logger.Debug("stake refunded", "id", args.ProposalID)
	return scheduler.Done(), nil
}
