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

// ReputationScore is a member of a ranked reputation population. The row only
// exists while the score is positive.
type ReputationScore struct {
	Scope   string `gorm:"uniqueIndex:idx_rep_member,priority:1;index:idx_rep_order,priority:1;size:16;not null"`
	Account string `gorm:"uniqueIndex:idx_rep_member,priority:2;index:idx_rep_order,priority:3;size:64;not null"`
	ID      uint   `gorm:"primarykey"`
	Score   uint64 `gorm:"index:idx_rep_order,priority:2"`
	Rank    uint64
}

func (ReputationScore) TableName() string {
	return "reputation_score"
}

// CommunityScore is a member of a ranked community building score population
type CommunityScore struct {
	Scope   string `gorm:"uniqueIndex:idx_cbs_member,priority:1;index:idx_cbs_order,priority:1;size:16;not null"`
	Account string `gorm:"uniqueIndex:idx_cbs_member,priority:2;index:idx_cbs_order,priority:3;size:64;not null"`
	ID      uint   `gorm:"primarykey"`
	Score   uint64 `gorm:"index:idx_cbs_order,priority:2"`
	Rank    uint64
}

func (CommunityScore) TableName() string {
	return "community_score"
}
