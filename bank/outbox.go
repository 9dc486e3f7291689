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

package bank

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/grove/database"
	"github.com/blinklabs-io/grove/database/models"
	"github.com/blinklabs-io/grove/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// KindRelay is the scheduler task kind that delivers the outbox
const KindRelay = "relaytransfers"

const relayScope = "outbox"

type OutboxConfig struct {
	DB           *database.Database
	Ledger       Ledger
	Scheduler    *scheduler.Scheduler
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	BatchSize    int
}

// Outbox records value transfers inside governance transactions and relays
// them to the ledger once committed. Delivery is at least once: a relay step
// whose commit is lost delivers its transfers again.
type Outbox struct {
	db        *database.Database
	ledger    Ledger
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
	batchSize int
	relayed   *prometheus.CounterVec
	failed    prometheus.Counter
}

func NewOutbox(cfg OutboxConfig) *Outbox {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	promautoFactory := promauto.With(cfg.PromRegistry)
	o := &Outbox{
		db:        cfg.DB,
		ledger:    cfg.Ledger,
		scheduler: cfg.Scheduler,
		logger:    cfg.Logger.With("component", "bank"),
		batchSize: cfg.BatchSize,
		relayed: promautoFactory.NewCounterVec(prometheus.CounterOpts{
			Name: "grove_bank_transfers_relayed_total",
			Help: "outbox transfers delivered to the ledger, by kind",
		}, []string{"kind"}),
		failed: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "grove_bank_transfers_failed_total",
			Help: "outbox deliveries rejected by the ledger",
		}),
	}
	o.scheduler.Register(KindRelay, o.relay)
	return o
}

// Ledger returns the ledger the outbox relays to
func (o *Outbox) Ledger() Ledger {
	return o.ledger
}

// Send queues a transfer between two accounts
func (o *Outbox) Send(
	from, to string,
	amount uint64,
	memo string,
	txn *database.Txn,
) error {
	return o.queue(&models.Transfer{
		Kind:      models.TransferKindSend,
		Sender:    from,
		Recipient: to,
		Amount:    amount,
		Memo:      memo,
	}, txn)
}

// Retire queues the removal of an amount from circulation
func (o *Outbox) Retire(
	from string,
	amount uint64,
	memo string,
	txn *database.Txn,
) error {
	return o.queue(&models.Transfer{
		Kind:   models.TransferKindRetire,
		Sender: from,
		Amount: amount,
		Memo:   memo,
	}, txn)
}

func (o *Outbox) queue(transfer *models.Transfer, txn *database.Txn) error {
	if transfer.Amount == 0 {
		return ErrInvalidAmount
	}
	if err := o.db.AddTransfer(transfer, txn); err != nil {
		return fmt.Errorf("queue transfer: %w", err)
	}
	return o.scheduler.Ensure(KindRelay, relayScope, nil, txn)
}

// Available returns the ledger balance of an account less the transfers it
// still owes through the outbox
func (o *Outbox) Available(
	ctx context.Context,
	account string,
	txn *database.Txn,
) (uint64, error) {
	balance, err := o.ledger.Balance(ctx, account)
	if err != nil {
		return 0, err
	}
	pending, err := o.db.PendingOutgoing(account, txn)
	if err != nil {
		return 0, err
	}
	if pending >= balance {
		return 0, nil
	}
	return balance - pending, nil
}

// relay delivers one batch of pending transfers. A rejected transfer stops the
// batch; deliveries before it are committed and the rejected one is retried
// on the next step.
func (o *Outbox) relay(
	ctx context.Context,
	txn *database.Txn,
	_ *models.Task,
) (scheduler.Result, error) {
	pending, err := o.db.PendingTransfers(o.batchSize, txn)
	if err != nil {
		return scheduler.Result{}, err
	}
	for i := range pending {
		transfer := &pending[i]
		if err := o.deliver(ctx, transfer); err != nil {
			o.failed.Inc()
			o.logger.Error(
				"transfer rejected by ledger",
				"transfer_id", transfer.ID,
				"kind", transfer.Kind,
				"from", transfer.Sender,
				"amount", transfer.Amount,
				"error", err,
			)
			if i == 0 {
				return scheduler.Result{}, fmt.Errorf(
					"relay transfer %s: %w",
					transfer.ID,
					err,
				)
			}
			return scheduler.Continue(pending[i-1].ID), nil
		}
		if err := o.db.MarkTransferSent(transfer.ID, time.Now(), txn); err != nil {
			return scheduler.Result{}, err
		}
		o.relayed.WithLabelValues(transfer.Kind).Inc()
	}
	if len(pending) < o.batchSize {
		return scheduler.Done(), nil
	}
	return scheduler.Continue(pending[len(pending)-1].ID), nil
}

func (o *Outbox) deliver(ctx context.Context, transfer *models.Transfer) error {
	switch transfer.Kind {
	case models.TransferKindRetire:
		return o.ledger.Retire(ctx, transfer.Sender, transfer.Amount, transfer.Memo)
	default:
		return o.ledger.Transfer(
			ctx,
			transfer.Sender,
			transfer.Recipient,
			transfer.Amount,
			transfer.Memo,
		)
	}
}
