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

// GetFlag returns the flag raised by flagger against target
func (d *Database) GetFlag(
	flagger string,
	target string,
	txn *Txn,
) (*models.Flag, error) {
	ret := &models.Flag{}
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().
			Where("flagger = ? AND target = ?", flagger, target).
			First(ret).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrFlagNotFound
		}
		return nil, err
	}
	return ret, nil
}

// CreateFlag stores a new flag
func (d *Database) CreateFlag(flag *models.Flag, txn *Txn) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		return txn.Metadata().Create(flag).Error
	})
}

// DeleteFlag removes the flag raised by flagger against target
func (d *Database) DeleteFlag(flagger string, target string, txn *Txn) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		result := txn.Metadata().
			Where("flagger = ? AND target = ?", flagger, target).
			Delete(&models.Flag{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.ErrFlagNotFound
		}
		return nil
	})
}

// GetFlagTotal returns the flag totals of an account, zero when never flagged
func (d *Database) GetFlagTotal(
	account string,
	txn *Txn,
) (*models.FlagTotal, error) {
	ret := &models.FlagTotal{Account: account}
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().Where("account = ?", account).First(ret).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.FlagTotal{Account: account}, nil
		}
		return nil, err
	}
	return ret, nil
}

// SetFlagTotal upserts the flag totals of an account
func (d *Database) SetFlagTotal(total *models.FlagTotal, txn *Txn) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		return txn.Metadata().Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account"}},
			DoUpdates: clause.AssignmentColumns([]string{"total", "removed"}),
		}).Create(total).Error
	})
}

// GetDelegatee returns the account that delegator forwards to, or "" if none
func (d *Database) GetDelegatee(delegator string, txn *Txn) (string, error) {
	var ret models.Delegation
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().Where("delegator = ?", delegator).First(&ret).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return ret.Delegatee, nil
}

// SetDelegation creates or replaces the delegation of delegator
func (d *Database) SetDelegation(delegator, delegatee string, txn *Txn) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		return txn.Metadata().Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "delegator"}},
			DoUpdates: clause.AssignmentColumns([]string{"delegatee"}),
		}).Create(&models.Delegation{
			Delegator: delegator,
			Delegatee: delegatee,
		}).Error
	})
}

// DeleteDelegation removes the delegation of delegator
func (d *Database) DeleteDelegation(delegator string, txn *Txn) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		result := txn.Metadata().
			Where("delegator = ?", delegator).
			Delete(&models.Delegation{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.ErrDelegationNotFound
		}
		return nil
	})
}

// DelegatorsPage returns up to limit delegators of delegatee, ordered by
// delegator and strictly after the given delegator
func (d *Database) DelegatorsPage(
	delegatee string,
	after string,
	limit int,
	txn *Txn,
) ([]string, error) {
	var ret []string
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().
			Model(&models.Delegation{}).
			Where("delegatee = ? AND delegator > ?", delegatee, after).
			Order("delegator").
			Limit(limit).
			Pluck("delegator", &ret).Error
	})
	return ret, err
}
