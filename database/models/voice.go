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

import "time"

// Voice is the decaying voting weight of an account within one fund scope
type Voice struct {
	Scope   string `gorm:"uniqueIndex:idx_voice_member,priority:1;size:32;not null"`
	Account string `gorm:"uniqueIndex:idx_voice_member,priority:2;size:64;not null"`
	ID      uint   `gorm:"primarykey"`
	Balance uint64
}

func (Voice) TableName() string {
	return "voice"
}

// Active is a citizen eligible for voice
type Active struct {
	Since   time.Time
	Account string `gorm:"uniqueIndex;size:64;not null"`
	ID      uint   `gorm:"primarykey"`
}

func (Active) TableName() string {
	return "active"
}

// Participation counts non-neutral votes cast during the current cycle
type Participation struct {
	Account string `gorm:"uniqueIndex;size:64;not null"`
	ID      uint   `gorm:"primarykey"`
	Count   uint64
}

func (Participation) TableName() string {
	return "participation"
}
