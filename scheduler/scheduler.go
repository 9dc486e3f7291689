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

// Package scheduler runs unbounded operations as a series of bounded steps.
// Each queued task carries a cursor. A step processes the keys strictly after
// the cursor and either finishes the task or hands back the next cursor. The
// queue lives in the blob store and every step is committed together with the
// work it did, so a task resumes exactly where the last committed step ended.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/grove/database"
	"github.com/blinklabs-io/grove/database/models"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultInterval            = 1 * time.Second
	DefaultMaxStepsPerTick     = 100
	DefaultCheckpointRetention = 24 * time.Hour
	DefaultRetryBackoff        = 1 * time.Second
	DefaultMaxRetryBackoff     = 10 * time.Minute
)

var (
	ErrAlreadyRunning = errors.New("task already running for this scope")
	ErrUnknownKind    = errors.New("no step registered for task kind")
)

// StepFunc performs a bounded amount of work for a task inside txn. It must
// only touch keys strictly after the task cursor so a repeated delivery never
// counts anything twice.
type StepFunc func(ctx context.Context, txn *database.Txn, task *models.Task) (Result, error)

type Config struct {
	DB                  *database.Database
	Logger              *slog.Logger
	PromRegistry        prometheus.Registerer
	Interval            time.Duration
	MaxStepsPerTick     int
	CheckpointRetention time.Duration
	// RetryBackoff is the delay before a failed task is retried. It doubles
	// with every consecutive failure up to MaxRetryBackoff.
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
}

type Scheduler struct {
	config    Config
	logger    *slog.Logger
	db        *database.Database
	mutex     sync.Mutex
	steps     map[string]StepFunc
	metrics   schedulerMetrics
	ticker    *time.Ticker
	cancel    context.CancelFunc
	quit      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxStepsPerTick <= 0 {
		cfg.MaxStepsPerTick = DefaultMaxStepsPerTick
	}
	if cfg.CheckpointRetention <= 0 {
		cfg.CheckpointRetention = DefaultCheckpointRetention
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.MaxRetryBackoff < cfg.RetryBackoff {
		cfg.MaxRetryBackoff = max(DefaultMaxRetryBackoff, cfg.RetryBackoff)
	}
	s := &Scheduler{
		config: cfg,
		logger: cfg.Logger.With("component", "scheduler"),
		db:     cfg.DB,
		steps:  make(map[string]StepFunc),
		quit:   make(chan struct{}),
	}
	s.metrics.init(cfg.PromRegistry)
	return s
}

// Register binds a step function to a task kind. Registering a kind twice is
// a wiring bug and panics.
func (s *Scheduler) Register(kind string, fn StepFunc) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.steps[kind]; ok {
		panic(fmt.Sprintf("scheduler: step already registered for kind %q", kind))
	}
	s.steps[kind] = fn
}

func (s *Scheduler) step(kind string) (StepFunc, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	fn, ok := s.steps[kind]
	return fn, ok
}

// Enqueue queues a new task. Only one task per (kind, scope) may be in flight.
// Passing a txn makes the task part of that transaction.
func (s *Scheduler) Enqueue(
	kind string,
	scope string,
	args any,
	txn *database.Txn,
) (string, error) {
	if _, ok := s.step(kind); !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	task := &models.Task{
		ID:    uuid.NewString(),
		Kind:  kind,
		Scope: scope,
	}
	if args != nil {
		data, err := encode(args)
		if err != nil {
			return "", fmt.Errorf("encode task args: %w", err)
		}
		task.Args = data
	}
	if err := s.db.EnqueueTask(task, txn); err != nil {
		if errors.Is(err, database.ErrTaskExists) {
			return "", fmt.Errorf("%s/%s: %w", kind, scope, ErrAlreadyRunning)
		}
		return "", err
	}
	s.metrics.enqueued.WithLabelValues(kind).Inc()
	s.logger.Debug(
		"task enqueued",
		"kind", kind,
		"scope", scope,
		"task_id", task.ID,
	)
	return task.ID, nil
}

// Ensure queues a task unless one of the same kind and scope is already in
// flight. Use it for tasks that re-read their whole input on every step.
func (s *Scheduler) Ensure(
	kind string,
	scope string,
	args any,
	txn *database.Txn,
) error {
	_, err := s.Enqueue(kind, scope, args, txn)
	if errors.Is(err, ErrAlreadyRunning) {
		return nil
	}
	return err
}

// Pending returns the queued tasks in queue order
func (s *Scheduler) Pending() ([]*models.Task, error) {
	return s.db.Tasks(nil)
}

// RunOnce runs a single step of the oldest queued task that is not backing
// off. It reports whether a task was found.
func (s *Scheduler) RunOnce(ctx context.Context) (bool, error) {
	_, ran, err := s.runOnce(ctx, nil)
	return ran, err
}

// runOnce runs one step of the oldest ready task not in skip and returns the
// id of the task when its step failed
func (s *Scheduler) runOnce(
	ctx context.Context,
	skip map[string]struct{},
) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	var ran bool
	var failed *models.Task
	start := time.Now()
	ready := func(task *models.Task) bool {
		if _, ok := skip[task.ID]; ok {
			return false
		}
		return !task.RetryAt.After(start)
	}
	err := s.db.Transaction(true).Do(func(txn *database.Txn) error {
		task, err := s.db.NextTask(txn, ready)
		if err != nil || task == nil {
			return err
		}
		ran = true
		attempt := *task
		failed = &attempt
		fn, ok := s.step(task.Kind)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownKind, task.Kind)
		}
		checkpoint, err := s.db.GetTaskCheckpoint(task.ID, txn)
		if err != nil {
			return err
		}
		if checkpoint != nil && checkpoint.Steps > task.Steps {
			failed = nil
			return s.restore(task, checkpoint, txn)
		}
		result, err := fn(ctx, txn, task)
		if err != nil {
			return fmt.Errorf(
				"task %s %s/%s step %d: %w",
				task.ID,
				task.Kind,
				task.Scope,
				task.Steps,
				err,
			)
		}
		failed = nil
		return s.advance(task, result, txn)
	})
	if err != nil {
		if failed == nil {
			return "", ran, err
		}
		s.metrics.failed.WithLabelValues(failed.Kind).Inc()
		s.recordAttempt(failed)
		return failed.ID, ran, err
	}
	if ran {
		s.metrics.stepDuration.Observe(time.Since(start).Seconds())
	}
	return "", ran, nil
}

// advance persists the outcome of a step in the same transaction as its work
func (s *Scheduler) advance(
	task *models.Task,
	result Result,
	txn *database.Txn,
) error {
	task.Steps++
	checkpoint := &models.TaskCheckpoint{
		TaskID: task.ID,
		Kind:   task.Kind,
		Scope:  task.Scope,
		Steps:  task.Steps,
	}
	if result.done {
		if err := s.db.DeleteTask(task, txn); err != nil {
			return err
		}
		checkpoint.Completed = true
	} else {
		cursor, err := encode(result.cursor)
		if err != nil {
			return fmt.Errorf("encode cursor: %w", err)
		}
		task.Cursor = cursor
		task.Attempts = 0
		if err := s.db.UpdateTask(task, txn); err != nil {
			return err
		}
		checkpoint.Cursor = cursor
	}
	if err := s.db.SetTaskCheckpoint(checkpoint, txn); err != nil {
		return err
	}
	s.metrics.steps.WithLabelValues(task.Kind).Inc()
	if result.done {
		s.metrics.completed.WithLabelValues(task.Kind).Inc()
		s.logger.Debug(
			"task completed",
			"kind", task.Kind,
			"scope", task.Scope,
			"task_id", task.ID,
			"steps", task.Steps,
		)
	}
	return nil
}

// restore brings a task forward to its checkpoint. This happens when the
// metadata half of an earlier step committed but the blob half did not.
func (s *Scheduler) restore(
	task *models.Task,
	checkpoint *models.TaskCheckpoint,
	txn *database.Txn,
) error {
	s.logger.Warn(
		"restoring task from checkpoint",
		"kind", task.Kind,
		"scope", task.Scope,
		"task_id", task.ID,
		"task_steps", task.Steps,
		"checkpoint_steps", checkpoint.Steps,
		"completed", checkpoint.Completed,
	)
	if checkpoint.Completed {
		return s.db.DeleteTask(task, txn)
	}
	task.Cursor = checkpoint.Cursor
	task.Steps = checkpoint.Steps
	return s.db.UpdateTask(task, txn)
}

// recordAttempt bumps the attempt counter of a task whose step failed and
// moves it behind the other queued tasks until its backoff expires
func (s *Scheduler) recordAttempt(task *models.Task) {
	task.Attempts++
	delay := s.backoff(task.Attempts)
	task.RetryAt = time.Now().Add(delay)
	err := s.db.Transaction(true).Do(func(txn *database.Txn) error {
		return s.db.RequeueTask(task, txn)
	})
	if err != nil {
		s.logger.Error(
			"failed to record task attempt",
			"kind", task.Kind,
			"task_id", task.ID,
			"error", err,
		)
		return
	}
	s.logger.Warn(
		"task step failed, retrying later",
		"kind", task.Kind,
		"scope", task.Scope,
		"task_id", task.ID,
		"attempts", task.Attempts,
		"retry_in", delay,
	)
}

func (s *Scheduler) backoff(attempts uint32) time.Duration {
	delay := s.config.RetryBackoff
	for i := uint32(1); i < attempts && delay < s.config.MaxRetryBackoff; i++ {
		delay *= 2
	}
	return min(delay, s.config.MaxRetryBackoff)
}

// Drain runs steps until no task is ready or maxSteps steps were run. A
// maxSteps of 0 means no limit. A task whose step fails is not retried within
// the same call and does not hold up the tasks queued behind it. Drain returns
// the number of steps run and the joined step errors.
func (s *Scheduler) Drain(ctx context.Context, maxSteps int) (int, error) {
	s.prune()
	count := 0
	skip := make(map[string]struct{})
	var errs []error
	for maxSteps <= 0 || count < maxSteps {
		failedID, ran, err := s.runOnce(ctx, skip)
		if err != nil {
			errs = append(errs, err)
			if failedID == "" {
				break
			}
			skip[failedID] = struct{}{}
		}
		if !ran {
			break
		}
		count++
	}
	s.updatePending()
	return count, errors.Join(errs...)
}

func (s *Scheduler) prune() {
	cutoff := time.Now().Add(-s.config.CheckpointRetention)
	err := s.db.Transaction(true).Do(func(txn *database.Txn) error {
		count, err := s.db.PruneTaskCheckpoints(cutoff, txn)
		if err == nil && count > 0 {
			s.logger.Debug("pruned task checkpoints", "count", count)
		}
		return err
	})
	if err != nil {
		s.logger.Warn("failed to prune task checkpoints", "error", err)
	}
}

func (s *Scheduler) updatePending() {
	tasks, err := s.Pending()
	if err != nil {
		return
	}
	s.metrics.pending.Set(float64(len(tasks)))
}

// Start runs Drain on every tick until Stop is called
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		var ctx context.Context
		ctx, s.cancel = context.WithCancel(context.Background())
		s.ticker = time.NewTicker(s.config.Interval)
		s.wg.Add(1)
		go s.run(ctx)
	})
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ticker.C:
			if _, err := s.Drain(ctx, s.config.MaxStepsPerTick); err != nil {
				if errors.Is(err, context.Canceled) {
					continue
				}
				s.logger.Error("task step failed", "error", err)
			}
		case <-s.quit:
			s.ticker.Stop()
			return
		}
	}
}

// Stop terminates the runner loop and waits for the current step to finish
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		close(s.quit)
	})
	s.wg.Wait()
}
