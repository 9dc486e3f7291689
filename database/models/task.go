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

// Task is a queued batch job. Tasks live in the blob store only while the
// batch is in flight. A task whose step failed is not picked again before
// RetryAt.
type Task struct {
	EnqueuedAt time.Time `cbor:"5,keyasint"`
	RetryAt    time.Time `cbor:"9,keyasint"`
	ID         string    `cbor:"0,keyasint"`
	Kind       string    `cbor:"1,keyasint"`
	Scope      string    `cbor:"2,keyasint"`
	Cursor     []byte    `cbor:"3,keyasint"`
	Args       []byte    `cbor:"4,keyasint"`
	Seq        uint64    `cbor:"6,keyasint"`
	Steps      uint64    `cbor:"7,keyasint"`
	Attempts   uint32    `cbor:"8,keyasint"`
}

// TaskCheckpoint mirrors the progress of a queued batch task in the metadata
// store. It is written in the same transaction as the work of each step, so
// it stays authoritative when the blob half of a commit is lost.
type TaskCheckpoint struct {
	UpdatedAt time.Time `gorm:"index"`
	TaskID    string    `gorm:"primarykey;size:36"`
	Kind      string    `gorm:"size:32;not null"`
	Scope     string    `gorm:"size:64"`
	Cursor    []byte    `gorm:"column:resume_cursor"`
	Steps     uint64
	Completed bool `gorm:"index"`
}

func (TaskCheckpoint) TableName() string {
	return "task_checkpoint"
}
