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
	"time"
)

var (
	ErrParticipantNotFound = errors.New("participant not found")
	ErrParticipantExists   = errors.New("participant already registered")
)

// Membership status values, in promotion order
const (
	StatusVisitor  = "visitor"
	StatusResident = "resident"
	StatusCitizen  = "citizen"
)

// Participant kinds. Kinds also act as the scope of ranked populations.
const (
	KindIndividual   = "individual"
	KindOrganization = "organization"
)

// StatusLevel returns the promotion order of a status, or -1 if unknown
func StatusLevel(status string) int {
	switch status {
	case StatusVisitor:
		return 0
	case StatusResident:
		return 1
	case StatusCitizen:
		return 2
	default:
		return -1
	}
}

// Participant is a registered account
type Participant struct {
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Account    string `gorm:"uniqueIndex;size:64;not null"`
	Status     string `gorm:"size:16;not null"`
	Kind       string `gorm:"size:16;not null"`
	Referrer   string `gorm:"index;size:64"`
	ID         uint   `gorm:"primarykey"`
	Reputation uint64
	Rank       uint64
	CBS        uint64 `gorm:"column:cbs"`
	CBSRank    uint64 `gorm:"column:cbs_rank"`
	Banned     bool   `gorm:"index"`
}

func (Participant) TableName() string {
	return "participant"
}

// IsIndividual reports whether the participant is a person rather than an organization
func (p *Participant) IsIndividual() bool {
	return p.Kind == KindIndividual
}

// Referral links an invited account to its referrer
type Referral struct {
	Referrer string `gorm:"index;size:64;not null"`
	Invited  string `gorm:"uniqueIndex;size:64;not null"`
	ID       uint   `gorm:"primarykey"`
}

func (Referral) TableName() string {
	return "referral"
}

// RewardCounter counts rewards already paid to a referrer for a reward kind
type RewardCounter struct {
	Kind     string `gorm:"uniqueIndex:idx_reward_counter,priority:1;size:32;not null"`
	Referrer string `gorm:"uniqueIndex:idx_reward_counter,priority:2;size:64;not null"`
	ID       uint   `gorm:"primarykey"`
	Count    uint64
}

func (RewardCounter) TableName() string {
	return "reward_counter"
}

// Ban records an administrative ban
type Ban struct {
	BannedAt time.Time
	Account  string `gorm:"uniqueIndex;size:64;not null"`
	ID       uint   `gorm:"primarykey"`
}

func (Ban) TableName() string {
	return "ban"
}

// Size is a named population counter
type Size struct {
	ID    string `gorm:"primarykey;size:64"`
	Value int64
}

func (Size) TableName() string {
	return "size_counter"
}

// Size counter names
const (
	SizeActiveProposals = "prop.active"
	SizeActiveUsers     = "user.active"
)

// VoiceSizeID returns the counter name for the total voice of a scope
func VoiceSizeID(scope string) string {
	return "voice." + scope
}

// RepSizeID returns the counter name for a reputation population scope
func RepSizeID(scope string) string {
	return "rep." + scope
}

// CBSSizeID returns the counter name for a community building score population scope
func CBSSizeID(scope string) string {
	return "cbs." + scope
}
