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
	"time"

	"github.com/blinklabs-io/grove/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetVoice returns the voice balance of an account in a scope, 0 when unset
func (d *Database) GetVoice(scope, account string, txn *Txn) (uint64, error) {
	var voice models.Voice
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().
			Where("scope = ? AND account = ?", scope, account).
			First(&voice).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return voice.Balance, nil
}

// SetVoice upserts the voice balance of an account in a scope
func (d *Database) SetVoice(
	scope string,
	account string,
	balance uint64,
	txn *Txn,
) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		return txn.Metadata().Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "scope"},
				{Name: "account"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"balance"}),
		}).Create(&models.Voice{
			Scope:   scope,
			Account: account,
			Balance: balance,
		}).Error
	})
}

// VoicesByAccount returns every voice row of an account
func (d *Database) VoicesByAccount(
	account string,
	txn *Txn,
) ([]models.Voice, error) {
	var ret []models.Voice
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().
			Where("account = ?", account).
			Order("scope").
			Find(&ret).Error
	})
	return ret, err
}

// VoicePage returns up to limit voice rows of all scopes ordered by row id,
// strictly after the given id
func (d *Database) VoicePage(
	afterID uint,
	limit int,
	txn *Txn,
) ([]models.Voice, error) {
	var ret []models.Voice
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().
			Where("id > ?", afterID).
			Order("id").
			Limit(limit).
			Find(&ret).Error
	})
	return ret, err
}

// TotalVoice sums the balances of a voice scope
func (d *Database) TotalVoice(scope string, txn *Txn) (uint64, error) {
	var total uint64
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().
			Model(&models.Voice{}).
			Where("scope = ?", scope).
			Select("COALESCE(SUM(balance), 0)").
			Scan(&total).Error
	})
	return total, err
}

// AddActive marks an account as eligible for voice. Adding twice is a no-op.
func (d *Database) AddActive(account string, since time.Time, txn *Txn) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		return txn.Metadata().Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account"}},
			DoNothing: true,
		}).Create(&models.Active{Account: account, Since: since}).Error
	})
}

// RemoveActive drops an account from the active set
func (d *Database) RemoveActive(account string, txn *Txn) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		return txn.Metadata().
			Where("account = ?", account).
			Delete(&models.Active{}).Error
	})
}

// IsActive reports whether an account is in the active set
func (d *Database) IsActive(account string, txn *Txn) (bool, error) {
	var count int64
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().
			Model(&models.Active{}).
			Where("account = ?", account).
			Count(&count).Error
	})
	return count > 0, err
}

// CountActives returns the size of the active set
func (d *Database) CountActives(txn *Txn) (uint64, error) {
	var count int64
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().Model(&models.Active{}).Count(&count).Error
	})
	return uint64(count), err //nolint:gosec
}

// ActivesPage returns up to limit actives ordered by account, strictly after
// the given account
func (d *Database) ActivesPage(
	after string,
	limit int,
	txn *Txn,
) ([]models.Active, error) {
	var ret []models.Active
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().
			Where("account > ?", after).
			Order("account").
			Limit(limit).
			Find(&ret).Error
	})
	return ret, err
}

// AddParticipation bumps the vote counter of an account for the current cycle
func (d *Database) AddParticipation(account string, txn *Txn) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		return txn.Metadata().Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "account"}},
			DoUpdates: clause.Assignments(map[string]any{
				"count": gorm.Expr("participation.count + 1"),
			}),
		}).Create(&models.Participation{Account: account, Count: 1}).Error
	})
}

// GetParticipation returns the vote counter of an account, 0 when unset
func (d *Database) GetParticipation(account string, txn *Txn) (uint64, error) {
	var ret models.Participation
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().Where("account = ?", account).First(&ret).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return ret.Count, nil
}

// ClearParticipation removes the vote counter of an account
func (d *Database) ClearParticipation(account string, txn *Txn) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		return txn.Metadata().
			Where("account = ?", account).
			Delete(&models.Participation{}).Error
	})
}

// ParticipationPage returns up to limit vote counters ordered by account,
// strictly after the given account
func (d *Database) ParticipationPage(
	after string,
	limit int,
	txn *Txn,
) ([]models.Participation, error) {
	var ret []models.Participation
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().
			Where("account > ?", after).
			Order("account").
			Limit(limit).
			Find(&ret).Error
	})
	return ret, err
}
