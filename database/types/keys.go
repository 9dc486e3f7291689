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

package types

import (
	"encoding/binary"
	"slices"
)

const (
	TaskBlobKeyPrefix      = "tq"
	TaskBlobLockKeyPrefix  = "tl"
	TaskBlobLockKeySep     = "|"
	TaskSeqBlobKey         = "ts"
	CommitTimestampBlobKey = "metadata_commit_timestamp"
)

func BlobKeyUint64ToBytes(input uint64) []byte {
	ret := make([]byte, 8)
	binary.BigEndian.PutUint64(ret, input)
	return ret
}

// TaskBlobKey orders queued tasks by enqueue sequence
func TaskBlobKey(seq uint64, id []byte) []byte {
	return slices.Concat(
		[]byte(TaskBlobKeyPrefix),
		BlobKeyUint64ToBytes(seq),
		id,
	)
}

// TaskBlobLockKey marks a (kind, scope) pair as having a task in flight
func TaskBlobLockKey(kind string, scope string) []byte {
	return slices.Concat(
		[]byte(TaskBlobLockKeyPrefix),
		[]byte(kind),
		[]byte(TaskBlobLockKeySep),
		[]byte(scope),
	)
}
