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

// CycleID is the primary key of the singleton cycle row
const CycleID = 1

// Cycle is the singleton governance clock
type Cycle struct {
	LastRollover    time.Time
	LastDecay       time.Time
	ID              uint `gorm:"primarykey"`
	Index           uint64
	QuorumVoice     uint64 // total voice over all funds at rollover
	QuorumPct       uint64 // quorum percentage for the closing cycle
	ActiveProposals uint64
}

func (Cycle) TableName() string {
	return "cycle"
}
