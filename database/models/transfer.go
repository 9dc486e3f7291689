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

// Transfer kinds
const (
	TransferKindSend   = "send"
	TransferKindRetire = "retire"
)

// Transfer is an outbox entry for a value transfer that is committed together
// with the state change that caused it and relayed to the value ledger later
type Transfer struct {
	CreatedAt time.Time  `gorm:"index"`
	SentAt    *time.Time `gorm:"index"`
	ID        string     `gorm:"primarykey;size:36"`
	Kind      string     `gorm:"size:16;not null"`
	Sender    string     `gorm:"size:64;not null"`
	Recipient string     `gorm:"size:64"`
	Memo      string     `gorm:"size:256"`
	Amount    uint64
}

func (Transfer) TableName() string {
	return "transfer_outbox"
}
