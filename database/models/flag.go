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

import "errors"

var (
	ErrFlagNotFound       = errors.New("flag not found")
	ErrDelegationNotFound = errors.New("delegation not found")
)

// Flag is a single flag raised by one account against another
type Flag struct {
	Flagger string `gorm:"uniqueIndex:idx_flag_pair,priority:1;size:64;not null"`
	Target  string `gorm:"uniqueIndex:idx_flag_pair,priority:2;index;size:64;not null"`
	ID      uint   `gorm:"primarykey"`
	Points  uint64
}

func (Flag) TableName() string {
	return "flag"
}

// FlagTotal accumulates flag points against an account. Removed holds the
// points already punished so the same total never punishes twice.
type FlagTotal struct {
	Account string `gorm:"uniqueIndex;size:64;not null"`
	ID      uint   `gorm:"primarykey"`
	Total   uint64
	Removed uint64
}

func (FlagTotal) TableName() string {
	return "flag_total"
}

// Delegation forwards flag actions of the delegatee to the delegator
type Delegation struct {
	Delegator string `gorm:"uniqueIndex;index:idx_delegation_delegatee,priority:2;size:64;not null"`
	Delegatee string `gorm:"index:idx_delegation_delegatee,priority:1;size:64;not null"`
	ID        uint   `gorm:"primarykey"`
}

func (Delegation) TableName() string {
	return "delegation"
}
