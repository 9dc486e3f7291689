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
)

// GetCycle returns the cycle singleton. A fresh database starts at index 0
// with zero timestamps.
func (d *Database) GetCycle(txn *Txn) (*models.Cycle, error) {
	ret := &models.Cycle{}
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().First(ret, models.CycleID).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.Cycle{ID: models.CycleID}, nil
		}
		return nil, err
	}
	return ret, nil
}

// SetCycle saves the cycle singleton
func (d *Database) SetCycle(cycle *models.Cycle, txn *Txn) error {
	cycle.ID = models.CycleID
	return d.withTxn(txn, true, func(txn *Txn) error {
		return txn.Metadata().Save(cycle).Error
	})
}
