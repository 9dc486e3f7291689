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

// GetParticipant returns a registered participant
func (d *Database) GetParticipant(
	account string,
	txn *Txn,
) (*models.Participant, error) {
	ret := &models.Participant{}
	err := d.withTxn(txn, false, func(txn *Txn) error {
		result := txn.Metadata().Where("account = ?", account).First(ret)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return models.ErrParticipantNotFound
			}
			return result.Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// CreateParticipant registers a new participant
func (d *Database) CreateParticipant(
	participant *models.Participant,
	txn *Txn,
) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		var count int64
		if result := txn.Metadata().
			Model(&models.Participant{}).
			Where("account = ?", participant.Account).
			Count(&count); result.Error != nil {
			return result.Error
		}
		if count > 0 {
			return models.ErrParticipantExists
		}
		return txn.Metadata().Create(participant).Error
	})
}

// SetParticipant saves all fields of an existing participant
func (d *Database) SetParticipant(
	participant *models.Participant,
	txn *Txn,
) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		return txn.Metadata().Save(participant).Error
	})
}

// ListParticipants returns all participants ordered by account
func (d *Database) ListParticipants(txn *Txn) ([]models.Participant, error) {
	var ret []models.Participant
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().Order("account").Find(&ret).Error
	})
	return ret, err
}

// IsBanned reports whether an account has been banned
func (d *Database) IsBanned(account string, txn *Txn) (bool, error) {
	var count int64
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().
			Model(&models.Ban{}).
			Where("account = ?", account).
			Count(&count).Error
	})
	return count > 0, err
}

// AddBan records a ban and flags the participant row. Banning twice is a no-op.
func (d *Database) AddBan(account string, at time.Time, txn *Txn) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		ban := models.Ban{Account: account, BannedAt: at}
		if result := txn.Metadata().Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account"}},
			DoNothing: true,
		}).Create(&ban); result.Error != nil {
			return result.Error
		}
		return txn.Metadata().
			Model(&models.Participant{}).
			Where("account = ?", account).
			Update("banned", true).Error
	})
}

// RemoveBan lifts a ban
func (d *Database) RemoveBan(account string, txn *Txn) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		result := txn.Metadata().
			Where("account = ?", account).
			Delete(&models.Ban{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.ErrParticipantNotFound
		}
		return txn.Metadata().
			Model(&models.Participant{}).
			Where("account = ?", account).
			Update("banned", false).Error
	})
}

// AddReferral links an invited account to its referrer
func (d *Database) AddReferral(referrer, invited string, txn *Txn) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		return txn.Metadata().Create(&models.Referral{
			Referrer: referrer,
			Invited:  invited,
		}).Error
	})
}

// GetReferrer returns the referrer of an account, or "" if it has none
func (d *Database) GetReferrer(invited string, txn *Txn) (string, error) {
	var ret models.Referral
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().Where("invited = ?", invited).First(&ret).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return ret.Referrer, nil
}

// ReferralsPage returns up to limit accounts invited by referrer, ordered by
// account and strictly after the given account
func (d *Database) ReferralsPage(
	referrer string,
	after string,
	limit int,
	txn *Txn,
) ([]string, error) {
	var ret []string
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().
			Model(&models.Referral{}).
			Where("referrer = ? AND invited > ?", referrer, after).
			Order("invited").
			Limit(limit).
			Pluck("invited", &ret).Error
	})
	return ret, err
}

// NextRewardCount increments the reward counter for a referrer and returns
// the number of rewards counted before this one
func (d *Database) NextRewardCount(
	kind string,
	referrer string,
	txn *Txn,
) (uint64, error) {
	var count uint64
	err := d.withTxn(txn, true, func(txn *Txn) error {
		var counter models.RewardCounter
		result := txn.Metadata().
			Where("kind = ? AND referrer = ?", kind, referrer).
			First(&counter)
		if result.Error != nil {
			if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return result.Error
			}
			counter = models.RewardCounter{Kind: kind, Referrer: referrer}
		}
		count = counter.Count
		counter.Count++
		return txn.Metadata().Save(&counter).Error
	})
	return count, err
}

// UpdateParticipant writes selected columns of a participant without touching
// the others
func (d *Database) UpdateParticipant(
	account string,
	columns map[string]any,
	txn *Txn,
) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		return txn.Metadata().
			Model(&models.Participant{}).
			Where("account = ?", account).
			Updates(columns).Error
	})
}
