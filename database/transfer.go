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

package database

import (
	"time"

	"github.com/blinklabs-io/grove/database/models"
	"github.com/google/uuid"
)

// AddTransfer writes a value transfer to the outbox
func (d *Database) AddTransfer(
	transfer *models.Transfer,
	txn *Txn,
) error {
	if transfer.ID == "" {
		transfer.ID = uuid.NewString()
	}
	if transfer.CreatedAt.IsZero() {
		transfer.CreatedAt = time.Now()
	}
	return d.withTxn(txn, true, func(txn *Txn) error {
		return txn.Metadata().Create(transfer).Error
	})
}

// PendingTransfers returns up to limit unsent transfers, oldest first
func (d *Database) PendingTransfers(
	limit int,
	txn *Txn,
) ([]models.Transfer, error) {
	var ret []models.Transfer
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().
			Where("sent_at IS NULL").
			Order("created_at").
			Order("id").
			Limit(limit).
			Find(&ret).Error
	})
	return ret, err
}

// MarkTransferSent records that a transfer reached the value ledger
func (d *Database) MarkTransferSent(id string, at time.Time, txn *Txn) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		return txn.Metadata().
			Model(&models.Transfer{}).
			Where("id = ?", id).
			Update("sent_at", at).Error
	})
}

// ListTransfers returns all outbox entries, oldest first
func (d *Database) ListTransfers(txn *Txn) ([]models.Transfer, error) {
	var ret []models.Transfer
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().
			Order("created_at").
			Order("id").
			Find(&ret).Error
	})
	return ret, err
}

// PendingOutgoing sums the unsent transfers drawn from sender
func (d *Database) PendingOutgoing(sender string, txn *Txn) (uint64, error) {
	var total uint64
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().
			Model(&models.Transfer{}).
			Where("sender = ? AND sent_at IS NULL", sender).
			Select("COALESCE(SUM(amount), 0)").
			Scan(&total).Error
	})
	return total, err
}
