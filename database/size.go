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
	"errors"

	"github.com/blinklabs-io/grove/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetSize returns a named counter, 0 when unset
func (d *Database) GetSize(id string, txn *Txn) (uint64, error) {
	var size models.Size
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().Where("id = ?", id).First(&size).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if size.Value < 0 {
		return 0, nil
	}
	return uint64(size.Value), nil
}

// SetSize overwrites a named counter
func (d *Database) SetSize(id string, value uint64, txn *Txn) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		return txn.Metadata().Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).Create(&models.Size{ID: id, Value: int64(value)}).Error //nolint:gosec
	})
}

// ChangeSize adds delta to a named counter, never going below zero
func (d *Database) ChangeSize(id string, delta int64, txn *Txn) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		current, err := d.GetSize(id, txn)
		if err != nil {
			return err
		}
		next := int64(current) + delta //nolint:gosec
		if next < 0 {
			next = 0
		}
		return d.SetSize(id, uint64(next), txn)
	})
}
