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

var ErrVouchNotFound = errors.New("vouch not found")

// Vouch is a sponsor -> account trust edge. The pair is indexed in both
// directions so sponsors and vouchees can each be scanned in key order.
type Vouch struct {
	Sponsor string `gorm:"uniqueIndex:idx_vouch_pair,priority:1;index:idx_vouch_reverse,priority:2;size:64;not null"`
	Account string `gorm:"uniqueIndex:idx_vouch_pair,priority:2;index:idx_vouch_reverse,priority:1;size:64;not null"`
	ID      uint   `gorm:"primarykey"`
	Points  uint64
}

func (Vouch) TableName() string {
	return "vouch"
}

// VouchTotal caches the summed incoming vouch points and the capped amount
// already credited as reputation
type VouchTotal struct {
	Account     string `gorm:"uniqueIndex;size:64;not null"`
	ID          uint   `gorm:"primarykey"`
	VouchPoints uint64
	RepPoints   uint64
}

func (VouchTotal) TableName() string {
	return "vouch_total"
}
