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
	"fmt"

	"github.com/blinklabs-io/grove/database/models"
	"gorm.io/gorm"
)

// ScoreTable selects one of the ranked score populations
type ScoreTable string

const (
	ScoreTableReputation ScoreTable = "reputation_score"
	ScoreTableCommunity  ScoreTable = "community_score"
)

var ErrUnknownScoreTable = errors.New("unknown score table")

// SizeID returns the population counter name for a scope of the table
func (s ScoreTable) SizeID(scope string) string {
	if s == ScoreTableCommunity {
		return models.CBSSizeID(scope)
	}
	return models.RepSizeID(scope)
}

func (s ScoreTable) newRow(scope, account string, score uint64) (any, error) {
	switch s {
	case ScoreTableReputation:
		return &models.ReputationScore{
			Scope:   scope,
			Account: account,
			Score:   score,
		}, nil
	case ScoreTableCommunity:
		return &models.CommunityScore{
			Scope:   scope,
			Account: account,
			Score:   score,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownScoreTable, s)
	}
}

// ScoreEntry is a member of a ranked population
type ScoreEntry struct {
	Scope   string
	Account string
	Score   uint64
	Rank    uint64
}

// GetScore returns the population entry of an account, or nil if the account
// holds no score
func (d *Database) GetScore(
	table ScoreTable,
	scope string,
	account string,
	txn *Txn,
) (*ScoreEntry, error) {
	var ret ScoreEntry
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().
			Table(string(table)).
			Where("scope = ? AND account = ?", scope, account).
			Take(&ret).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ret, nil
}

// PutScore sets the score of an account. A zero score removes the entry from
// the population and clears the participant's mirrored rank. The population
// size counter follows membership.
func (d *Database) PutScore(
	table ScoreTable,
	scope string,
	account string,
	score uint64,
	txn *Txn,
) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		existing, err := d.GetScore(table, scope, account, txn)
		if err != nil {
			return err
		}
		switch {
		case existing == nil && score == 0:
			return nil
		case existing == nil:
			row, err := table.newRow(scope, account, score)
			if err != nil {
				return err
			}
			if err := txn.Metadata().Create(row).Error; err != nil {
				return err
			}
			return d.ChangeSize(table.SizeID(scope), 1, txn)
		case score == 0:
			if err := txn.Metadata().
				Exec(
					"DELETE FROM "+string(table)+" WHERE scope = ? AND account = ?",
					scope,
					account,
				).Error; err != nil {
				return err
			}
			// A participant outside the population holds no rank
			if err := txn.Metadata().
				Model(&models.Participant{}).
				Where("account = ?", account).
				Update(table.participantRankColumn(), 0).Error; err != nil {
				return err
			}
			return d.ChangeSize(table.SizeID(scope), -1, txn)
		default:
			return txn.Metadata().
				Table(string(table)).
				Where("scope = ? AND account = ?", scope, account).
				Update("score", score).Error
		}
	})
}

// ScorePage returns up to limit entries ordered by (score, account), strictly
// after the given entry. A nil after starts from the lowest score.
func (d *Database) ScorePage(
	table ScoreTable,
	scope string,
	after *ScoreEntry,
	limit int,
	txn *Txn,
) ([]ScoreEntry, error) {
	var ret []ScoreEntry
	err := d.withTxn(txn, false, func(txn *Txn) error {
		query := txn.Metadata().
			Table(string(table)).
			Where("scope = ?", scope)
		if after != nil {
			query = query.Where(
				"(score > ? OR (score = ? AND account > ?))",
				after.Score,
				after.Score,
				after.Account,
			)
		}
		return query.
			Order("score").
			Order("account").
			Limit(limit).
			Find(&ret).Error
	})
	return ret, err
}

// SetScoreRank stores the percentile rank of an entry and mirrors it on the
// participant
func (d *Database) SetScoreRank(
	table ScoreTable,
	scope string,
	account string,
	rank uint64,
	txn *Txn,
) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		if err := txn.Metadata().
			Table(string(table)).
			Where("scope = ? AND account = ?", scope, account).
			Update("rank", rank).Error; err != nil {
			return err
		}
		return txn.Metadata().
			Model(&models.Participant{}).
			Where("account = ?", account).
			Update(table.participantRankColumn(), rank).Error
	})
}

func (s ScoreTable) participantRankColumn() string {
	if s == ScoreTableCommunity {
		return "cbs_rank"
	}
	return "rank"
}
