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

// GetVouch returns the edge from sponsor to account
func (d *Database) GetVouch(
	sponsor string,
	account string,
	txn *Txn,
) (*models.Vouch, error) {
	ret := &models.Vouch{}
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().
			Where("sponsor = ? AND account = ?", sponsor, account).
			First(ret).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrVouchNotFound
		}
		return nil, err
	}
	return ret, nil
}

// CreateVouch stores a new edge
func (d *Database) CreateVouch(vouch *models.Vouch, txn *Txn) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		return txn.Metadata().Create(vouch).Error
	})
}

// SetVouchPoints updates the points of an existing edge
func (d *Database) SetVouchPoints(
	sponsor string,
	account string,
	points uint64,
	txn *Txn,
) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		return txn.Metadata().
			Model(&models.Vouch{}).
			Where("sponsor = ? AND account = ?", sponsor, account).
			Update("points", points).Error
	})
}

// SumVouchPoints sums the points of all edges into account
func (d *Database) SumVouchPoints(account string, txn *Txn) (uint64, error) {
	var total uint64
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().
			Model(&models.Vouch{}).
			Where("account = ?", account).
			Select("COALESCE(SUM(points), 0)").
			Scan(&total).Error
	})
	return total, err
}

// VouchesBySponsor returns up to limit edges from sponsor, ordered by account
// and strictly after the given account
func (d *Database) VouchesBySponsor(
	sponsor string,
	after string,
	limit int,
	txn *Txn,
) ([]models.Vouch, error) {
	var ret []models.Vouch
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().
			Where("sponsor = ? AND account > ?", sponsor, after).
			Order("account").
			Limit(limit).
			Find(&ret).Error
	})
	return ret, err
}

// VouchesByAccount returns up to limit edges into account, ordered by sponsor
// and strictly after the given sponsor
func (d *Database) VouchesByAccount(
	account string,
	after string,
	limit int,
	txn *Txn,
) ([]models.Vouch, error) {
	var ret []models.Vouch
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().
			Where("account = ? AND sponsor > ?", account, after).
			Order("sponsor").
			Limit(limit).
			Find(&ret).Error
	})
	return ret, err
}

// GetVouchTotal returns the cached vouch totals of an account. Accounts that
// were never recomputed have zero totals.
func (d *Database) GetVouchTotal(
	account string,
	txn *Txn,
) (*models.VouchTotal, error) {
	ret := &models.VouchTotal{Account: account}
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().Where("account = ?", account).First(ret).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.VouchTotal{Account: account}, nil
		}
		return nil, err
	}
	return ret, nil
}

// SetVouchTotal upserts the cached vouch totals of an account
func (d *Database) SetVouchTotal(total *models.VouchTotal, txn *Txn) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		return txn.Metadata().Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "account"}},
			DoUpdates: clause.AssignmentColumns(
				[]string{"vouch_points", "rep_points"},
			),
		}).Create(total).Error
	})
}
