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

package models

import (
	"errors"

	"github.com/blinklabs-io/grove/database/types"
)

var ErrProposalNotFound = errors.New("proposal not found")

// Proposal stages
const (
	StageStaged = "staged" // can be edited or cancelled
	StageActive = "active" // can be voted on
	StageDone   = "done"   // final
)

// Proposal statuses
const (
	StatusOpen     = "open"
	StatusEvaluate = "evaluate"
	StatusPassed   = "passed"
	StatusRejected = "rejected"
)

// Vote directions
const (
	VoteFavour  = "favour"
	VoteAgainst = "against"
)

// Proposal is a funding request moving through staging, voting and payout
type Proposal struct {
	Creator        string            `gorm:"index;size:64;not null"`
	Recipient      string            `gorm:"size:64;not null"`
	Fund           string            `gorm:"size:32;not null"`
	Stage          string            `gorm:"index:idx_proposal_stage,priority:1;size:16;not null"`
	Status         string            `gorm:"size:16;not null"`
	Title          string            `gorm:"size:256"`
	Summary        string            `gorm:"size:1024"`
	Description    string
	Image          string `gorm:"size:512"`
	URL            string `gorm:"column:url;size:512"`
	PayPercentages types.Percentages // empty means linear payout
	ID             uint              `gorm:"primarykey;index:idx_proposal_stage,priority:2"`
	Quantity       uint64
	Staked         uint64
	Favour         uint64
	Against        uint64
	Total          uint64
	Age            uint64
	Paid           uint64
	CreatedCycle   uint64
	PassedCycle    uint64
}

func (Proposal) TableName() string {
	return "proposal"
}

// IsLinear reports whether the proposal pays out in equal shares of the remainder
func (p *Proposal) IsLinear() bool {
	return len(p.PayPercentages) == 0
}

// StakeContribution records stake sent to a proposal by one account. The
// stake sits in Account, the fund account of the proposal, until it is
// refunded or retired.
type StakeContribution struct {
	Contributor string `gorm:"uniqueIndex:idx_stake_member,priority:2;size:64;not null"`
	Account     string `gorm:"index;size:64;not null"`
	ID          uint   `gorm:"primarykey"`
	ProposalID  uint   `gorm:"uniqueIndex:idx_stake_member,priority:1;not null"`
	Amount      uint64
}

func (StakeContribution) TableName() string {
	return "stake_contribution"
}

// Vote is the current vote of an account on a proposal
type Vote struct {
	Voter      string `gorm:"uniqueIndex:idx_vote_unique,priority:2;index;size:64;not null"`
	Direction  string `gorm:"size:16;not null"`
	ID         uint   `gorm:"primarykey"`
	ProposalID uint   `gorm:"uniqueIndex:idx_vote_unique,priority:1;not null"`
	Weight     uint64
}

func (Vote) TableName() string {
	return "vote"
}
