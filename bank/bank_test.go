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

package bank_test

import (
	"context"
	"testing"
	"time"

	"github.com/blinklabs-io/grove/bank"
	"github.com/blinklabs-io/grove/database"
	"github.com/blinklabs-io/grove/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOutbox(
	t *testing.T,
	batchSize int,
) (*bank.Outbox, *bank.MemoryLedger, *scheduler.Scheduler, *database.Database) {
	t.Helper()
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	// Failed steps are ready again on the next drain
	sched := scheduler.New(scheduler.Config{DB: db, RetryBackoff: time.Nanosecond})
	ledger := bank.NewMemoryLedger()
	outbox := bank.NewOutbox(bank.OutboxConfig{
		DB:        db,
		Ledger:    ledger,
		Scheduler: sched,
		BatchSize: batchSize,
	})
	return outbox, ledger, sched, db
}

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()
	ledger := bank.NewMemoryLedger()
	ledger.Mint("treasury", 100)
	require.NoError(t, ledger.Transfer(ctx, "treasury", "alice", 60, "reward"))
	err := ledger.Transfer(ctx, "treasury", "alice", 60, "reward")
	require.ErrorIs(t, err, bank.ErrInsufficientFunds)
	require.ErrorIs(t, ledger.Retire(ctx, "alice", 0, ""), bank.ErrInvalidAmount)
	require.NoError(t, ledger.Retire(ctx, "alice", 10, "burn"))
	balance, err := ledger.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(50), balance)
	assert.Equal(t, uint64(10), ledger.Retired())
}

func TestOutboxRelaysAfterCommit(t *testing.T) {
	ctx := context.Background()
	outbox, ledger, sched, db := newTestOutbox(t, 2)
	ledger.Mint("fund", 1000)
	err := db.Transaction(true).Do(func(txn *database.Txn) error {
		for _, to := range []string{"alice", "bob", "carol"} {
			if err := outbox.Send("fund", to, 100, "payout", txn); err != nil {
				return err
			}
		}
		return outbox.Retire("fund", 50, "stake", txn)
	})
	require.NoError(t, err)
	// Nothing moves until the relay runs
	balance, err := ledger.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, balance)
	available, err := outbox.Available(ctx, "fund", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(650), available)
	tasks, err := sched.Pending()
	require.NoError(t, err)
	require.Len(t, tasks, 1, "one relay task for the whole outbox")

	steps, err := sched.Drain(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, steps)
	for _, account := range []string{"alice", "bob", "carol"} {
		balance, err := ledger.Balance(ctx, account)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), balance, account)
	}
	assert.Equal(t, uint64(50), ledger.Retired())
	pending, err := db.PendingTransfers(10, nil)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxRolledBackTransferIsNeverSent(t *testing.T) {
	ctx := context.Background()
	outbox, ledger, sched, db := newTestOutbox(t, 10)
	ledger.Mint("fund", 1000)
	txn := db.Transaction(true)
	require.NoError(t, outbox.Send("fund", "alice", 100, "payout", txn))
	require.NoError(t, txn.Rollback())
	steps, err := sched.Drain(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, steps)
	balance, err := ledger.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestOutboxRejectedTransferStaysQueued(t *testing.T) {
	ctx := context.Background()
	outbox, ledger, sched, db := newTestOutbox(t, 10)
	ledger.Mint("fund", 150)
	err := db.Transaction(true).Do(func(txn *database.Txn) error {
		if err := outbox.Send("fund", "alice", 100, "first", txn); err != nil {
			return err
		}
		return outbox.Send("fund", "bob", 100, "second", txn)
	})
	require.NoError(t, err)
	// The first delivery commits, the second is retried on the next step
	ran, err := sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, ran)
	_, err = sched.RunOnce(ctx)
	require.ErrorIs(t, err, bank.ErrInsufficientFunds)
	pending, err := db.PendingTransfers(10, nil)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "bob", pending[0].Recipient)

	ledger.Mint("fund", 50)
	_, err = sched.Drain(ctx, 0)
	require.NoError(t, err)
	balance, err := ledger.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), balance)
}

func TestOutboxRejectsZeroAmount(t *testing.T) {
	outbox, _, _, _ := newTestOutbox(t, 10)
	require.ErrorIs(t, outbox.Send("fund", "alice", 0, "", nil), bank.ErrInvalidAmount)
}
