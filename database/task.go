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

package database

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/blinklabs-io/grove/database/models"
	"github.com/blinklabs-io/grove/database/types"
	"github.com/fxamacker/cbor/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrTaskExists is returned when a task of the same kind and scope is queued
var ErrTaskExists = errors.New("task already queued")

func taskKey(task *models.Task) []byte {
	return types.TaskBlobKey(task.Seq, []byte(task.ID))
}

// EnqueueTask appends a task to the queue, assigning its sequence number
func (d *Database) EnqueueTask(task *models.Task, txn *Txn) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		lockKey := types.TaskBlobLockKey(task.Kind, task.Scope)
		_, err := d.blob.Get(txn.Blob(), lockKey)
		if err == nil {
			return fmt.Errorf("%s/%s: %w", task.Kind, task.Scope, ErrTaskExists)
		}
		if !errors.Is(err, types.ErrBlobKeyNotFound) {
			return err
		}
		seq, err := d.nextTaskSeq(txn)
		if err != nil {
			return err
		}
		task.Seq = seq
		if task.EnqueuedAt.IsZero() {
			task.EnqueuedAt = time.Now()
		}
		if err := d.blob.Set(txn.Blob(), lockKey, []byte(task.ID)); err != nil {
			return err
		}
		return d.UpdateTask(task, txn)
	})
}

func (d *Database) nextTaskSeq(txn *Txn) (uint64, error) {
	var seq uint64
	val, err := d.blob.Get(txn.Blob(), []byte(types.TaskSeqBlobKey))
	switch {
	case err == nil:
		if len(val) != 8 {
			return 0, fmt.Errorf("invalid task sequence length %d", len(val))
		}
		seq = binary.BigEndian.Uint64(val)
	case errors.Is(err, types.ErrBlobKeyNotFound):
	default:
		return 0, err
	}
	seq++
	if err := d.blob.Set(
		txn.Blob(),
		[]byte(types.TaskSeqBlobKey),
		types.BlobKeyUint64ToBytes(seq),
	); err != nil {
		return 0, err
	}
	return seq, nil
}

// UpdateTask stores the task under its queue key
func (d *Database) UpdateTask(task *models.Task, txn *Txn) error {
	data, err := cbor.Marshal(task)
	if err != nil {
		return err
	}
	return d.blob.Set(txn.Blob(), taskKey(task), data)
}

// DeleteTask removes a task and its (kind, scope) lock
func (d *Database) DeleteTask(task *models.Task, txn *Txn) error {
	if err := d.blob.Delete(txn.Blob(), taskKey(task)); err != nil {
		return err
	}
	return d.blob.Delete(
		txn.Blob(),
		types.TaskBlobLockKey(task.Kind, task.Scope),
	)
}

// RequeueTask moves a task to the tail of the queue under a new sequence
// number. Its (kind, scope) lock is kept.
func (d *Database) RequeueTask(task *models.Task, txn *Txn) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		if err := d.blob.Delete(txn.Blob(), taskKey(task)); err != nil {
			return err
		}
		seq, err := d.nextTaskSeq(txn)
		if err != nil {
			return err
		}
		task.Seq = seq
		return d.UpdateTask(task, txn)
	})
}

// NextTask returns the oldest queued task accepted by ready, or nil when
// there is none. A nil ready accepts every task.
func (d *Database) NextTask(
	txn *Txn,
	ready func(*models.Task) bool,
) (*models.Task, error) {
	tasks, err := d.listTasks(txn, 1, ready)
	if err != nil || len(tasks) == 0 {
		return nil, err
	}
	return tasks[0], nil
}

// Tasks returns all queued tasks in queue order
func (d *Database) Tasks(txn *Txn) ([]*models.Task, error) {
	var ret []*models.Task
	err := d.withTxn(txn, false, func(txn *Txn) error {
		var err error
		ret, err = d.listTasks(txn, 0, nil)
		return err
	})
	return ret, err
}

// listTasks walks the queue prefix; limit 0 means no limit
func (d *Database) listTasks(
	txn *Txn,
	limit int,
	ready func(*models.Task) bool,
) ([]*models.Task, error) {
	prefix := []byte(types.TaskBlobKeyPrefix)
	iter := d.blob.NewIterator(
		txn.Blob(),
		types.BlobIteratorOptions{Prefix: prefix},
	)
	defer iter.Close()
	var ret []*models.Task
	for iter.Rewind(); iter.ValidForPrefix(prefix); iter.Next() {
		val, err := iter.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		task := &models.Task{}
		if err := cbor.Unmarshal(val, task); err != nil {
			return nil, fmt.Errorf(
				"decode task %x: %w",
				iter.Item().Key(),
				err,
			)
		}
		if ready != nil && !ready(task) {
			continue
		}
		ret = append(ret, task)
		if limit > 0 && len(ret) >= limit {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// GetTaskCheckpoint returns the checkpoint for a task, or nil if none exists
func (d *Database) GetTaskCheckpoint(
	taskID string,
	txn *Txn,
) (*models.TaskCheckpoint, error) {
	var ret models.TaskCheckpoint
	result := txn.Metadata().Where("task_id = ?", taskID).First(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &ret, nil
}

// SetTaskCheckpoint records the progress of a task
func (d *Database) SetTaskCheckpoint(
	checkpoint *models.TaskCheckpoint,
	txn *Txn,
) error {
	checkpoint.UpdatedAt = time.Now()
	return txn.Metadata().Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "task_id"}},
		DoUpdates: clause.AssignmentColumns(
			[]string{"resume_cursor", "steps", "completed", "updated_at"},
		),
	}).Create(checkpoint).Error
}

// PruneTaskCheckpoints removes completed checkpoints last updated before cutoff
func (d *Database) PruneTaskCheckpoints(cutoff time.Time, txn *Txn) (int64, error) {
	result := txn.Metadata().
		Where("completed = ? AND updated_at < ?", true, cutoff).
		Delete(&models.TaskCheckpoint{})
	return result.RowsAffected, result.Error
}
