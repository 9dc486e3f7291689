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

// GetProposal returns a proposal by id
func (d *Database) GetProposal(id uint, txn *Txn) (*models.Proposal, error) {
	ret := &models.Proposal{}
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().First(ret, id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrProposalNotFound
		}
		return nil, err
	}
	return ret, nil
}

// CreateProposal stores a new proposal and assigns its id
func (d *Database) CreateProposal(proposal *models.Proposal, txn *Txn) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		return txn.Metadata().Create(proposal).Error
	})
}

// SetProposal saves all fields of an existing proposal
func (d *Database) SetProposal(proposal *models.Proposal, txn *Txn) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		return txn.Metadata().Save(proposal).Error
	})
}

// DeleteProposal removes a proposal with its votes. Stake contributions are
// left for the refund that drains them.
func (d *Database) DeleteProposal(id uint, txn *Txn) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		if err := txn.Metadata().
			Where("proposal_id = ?", id).
			Delete(&models.Vote{}).Error; err != nil {
			return err
		}
		result := txn.Metadata().Delete(&models.Proposal{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.ErrProposalNotFound
		}
		return nil
	})
}

// ListProposals returns all proposals ordered by id
func (d *Database) ListProposals(txn *Txn) ([]models.Proposal, error) {
	var ret []models.Proposal
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().Order("id").Find(&ret).Error
	})
	return ret, err
}

// ProposalsPage returns up to limit proposals in a stage ordered by id,
// strictly after the given id
func (d *Database) ProposalsPage(
	stage string,
	afterID uint,
	limit int,
	txn *Txn,
) ([]models.Proposal, error) {
	var ret []models.Proposal
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().
			Where("stage = ? AND id > ?", stage, afterID).
			Order("id").
			Limit(limit).
			Find(&ret).Error
	})
	return ret, err
}

// CountProposals returns the number of proposals in a stage
func (d *Database) CountProposals(stage string, txn *Txn) (uint64, error) {
	var count int64
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().
			Model(&models.Proposal{}).
			Where("stage = ?", stage).
			Count(&count).Error
	})
	return uint64(count), err //nolint:gosec
}

// AddStakeContribution adds amount to the stake recorded for a contributor.
// account is the fund account holding the stake.
func (d *Database) AddStakeContribution(
	proposalID uint,
	account string,
	contributor string,
	amount uint64,
	txn *Txn,
) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		return txn.Metadata().Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "proposal_id"},
				{Name: "contributor"},
			},
			DoUpdates: clause.Assignments(map[string]any{
				"amount": gorm.Expr("stake_contribution.amount + ?", amount),
			}),
		}).Create(&models.StakeContribution{
			ProposalID:  proposalID,
			Account:     account,
			Contributor: contributor,
			Amount:      amount,
		}).Error
	})
}

// StakeContributions returns the stake contributions of a proposal
func (d *Database) StakeContributions(
	proposalID uint,
	txn *Txn,
) ([]models.StakeContribution, error) {
	return d.StakeContributionsPage(proposalID, "", 0, txn)
}

// StakeContributionsPage returns up to limit stake contributions of a
// proposal ordered by contributor, strictly after the given contributor. A
// limit of 0 means no limit.
func (d *Database) StakeContributionsPage(
	proposalID uint,
	after string,
	limit int,
	txn *Txn,
) ([]models.StakeContribution, error) {
	var ret []models.StakeContribution
	err := d.withTxn(txn, false, func(txn *Txn) error {
		query := txn.Metadata().
			Where("proposal_id = ? AND contributor > ?", proposalID, after).
			Order("contributor")
		if limit > 0 {
			query = query.Limit(limit)
		}
		return query.Find(&ret).Error
	})
	return ret, err
}

// EscrowedStake sums the stake held in an account for proposals that have not
// refunded or retired it yet
func (d *Database) EscrowedStake(account string, txn *Txn) (uint64, error) {
	var total uint64
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().
			Model(&models.StakeContribution{}).
			Where("account = ?", account).
			Select("COALESCE(SUM(amount), 0)").
			Scan(&total).Error
	})
	return total, err
}

// DeleteStakeContribution drops a single stake contribution
func (d *Database) DeleteStakeContribution(id uint, txn *Txn) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		return txn.Metadata().Delete(&models.StakeContribution{}, id).Error
	})
}

// DeleteStakeContributions drops the stake contributions of a proposal
func (d *Database) DeleteStakeContributions(proposalID uint, txn *Txn) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		return txn.Metadata().
			Where("proposal_id = ?", proposalID).
			Delete(&models.StakeContribution{}).Error
	})
}

// GetVote returns the vote of voter on a proposal, or nil if none exists
func (d *Database) GetVote(
	proposalID uint,
	voter string,
	txn *Txn,
) (*models.Vote, error) {
	ret := &models.Vote{}
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().
			Where("proposal_id = ? AND voter = ?", proposalID, voter).
			First(ret).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return ret, nil
}

// SetVote upserts the vote of voter on a proposal
func (d *Database) SetVote(vote *models.Vote, txn *Txn) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		return txn.Metadata().Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "proposal_id"},
				{Name: "voter"},
			},
			DoUpdates: clause.AssignmentColumns(
				[]string{"direction", "weight"},
			),
		}).Create(vote).Error
	})
}

// DeleteVote removes the vote of voter on a proposal
func (d *Database) DeleteVote(proposalID uint, voter string, txn *Txn) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		return txn.Metadata().
			Where("proposal_id = ? AND voter = ?", proposalID, voter).
			Delete(&models.Vote{}).Error
	})
}
