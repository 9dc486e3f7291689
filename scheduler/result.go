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

package scheduler

import (
	"github.com/blinklabs-io/grove/database/models"
	"github.com/fxamacker/cbor/v2"
)

// Result is the outcome of a step
type Result struct {
	cursor any
	done   bool
}

// Done finishes the task
func Done() Result {
	return Result{done: true}
}

// Continue re-queues the task with a new cursor. The cursor is CBOR encoded
// and handed back to the next step through DecodeCursor.
func Continue(cursor any) Result {
	return Result{cursor: cursor}
}

func (r Result) IsDone() bool {
	return r.done
}

func encode(v any) ([]byte, error) {
	return cbor.Marshal(v)
}

// DecodeCursor decodes the cursor of a task into v. It reports false, leaving
// v untouched, when the task has not run a step yet.
func DecodeCursor(task *models.Task, v any) (bool, error) {
	if len(task.Cursor) == 0 {
		return false, nil
	}
	if err := cbor.Unmarshal(task.Cursor, v); err != nil {
		return false, err
	}
	return true, nil
}

// DecodeArgs decodes the arguments a task was enqueued with into v
func DecodeArgs(task *models.Task, v any) error {
	if len(task.Args) == 0 {
		return nil
	}
	return cbor.Unmarshal(task.Args, v)
}
