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

// Package rank assigns percentile ranks to ordered populations. A population
// is walked in (score, account) order in chunks, one scheduler step per chunk.
package rank

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/blinklabs-io/grove/database"
	"github.com/blinklabs-io/grove/database/models"
	"github.com/blinklabs-io/grove/scheduler"
)

// Scheduler task kinds
const (
	KindReputation = "rankreps"
	KindCommunity  = "rankcbs"
)

// Entry is a member of a population
type Entry struct {
	Account string
	Score   uint64
}

// Cursor is the last member ranked by the previous step and the index of the
// next chunk
type Cursor struct {
	Account string `cbor:"0,keyasint"`
	Score   uint64 `cbor:"1,keyasint"`
	Chunk   uint64 `cbor:"2,keyasint"`
}

// Population is an ordered set of scored accounts
type Population interface {
	Size(txn *database.Txn) (uint64, error)
	// Page returns up to limit members ordered by (score, account) strictly
	// after the given member, or from the start when after is nil
	Page(txn *database.Txn, after *Entry, limit int) ([]Entry, error)
	SetRank(txn *database.Txn, account string, rank uint64) error
}

// Percentile maps a 0-based position in a population of size members to [0,100]
func Percentile(position, size uint64) uint64 {
	if size <= 1 {
		return 100
	}
	if position >= size-1 {
		return 100
	}
	return position * 100 / (size - 1)
}

// Engine registers one ranking task kind per population family
type Engine struct {
	scheduler   *scheduler.Scheduler
	logger      *slog.Logger
	chunkSize   int
	populations map[string]func(scope string) Population
}

func New(
	sched *scheduler.Scheduler,
	chunkSize int,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Engine{
		scheduler:   sched,
		logger:      logger.With("component", "rank"),
		chunkSize:   chunkSize,
		populations: make(map[string]func(string) Population),
	}
}

// Register adds a population family under a task kind. The scope of each task
// selects the population.
func (e *Engine) Register(kind string, population func(scope string) Population) {
	e.populations[kind] = population
	e.scheduler.Register(kind, e.step(kind, population))
}

// Start queues a ranking pass over one population
func (e *Engine) Start(kind, scope string, txn *database.Txn) error {
	if _, ok := e.populations[kind]; !ok {
		return fmt.Errorf("%w: %s", scheduler.ErrUnknownKind, kind)
	}
	_, err := e.scheduler.Enqueue(kind, scope, nil, txn)
	return err
}

func (e *Engine) step(
	kind string,
	population func(string) Population,
) scheduler.StepFunc {
	return func(_ context.Context, txn *database.Txn, task *models.Task) (scheduler.Result, error) {
		pop := population(task.Scope)
		var cursor Cursor
		started, err := scheduler.DecodeCursor(task, &cursor)
		if err != nil {
			return scheduler.Result{}, err
		}
		var after *Entry
		if started {
			after = &Entry{Account: cursor.Account, Score: cursor.Score}
		}
		size, err := pop.Size(txn)
		if err != nil {
			return scheduler.Result{}, err
		}
		page, err := pop.Page(txn, after, e.chunkSize)
		if err != nil {
			return scheduler.Result{}, err
		}
		base := cursor.Chunk * uint64(e.chunkSize) //nolint:gosec
		for i, entry := range page {
			rank := Percentile(base+uint64(i), size) //nolint:gosec
			if err := pop.SetRank(txn, entry.Account, rank); err != nil {
				return scheduler.Result{}, err
			}
		}
		if len(page) < e.chunkSize {
			e.logger.Debug(
				"ranking finished",
				"kind", kind,
				"scope", task.Scope,
				"size", size,
				"chunks", cursor.Chunk+1,
			)
			return scheduler.Done(), nil
		}
		last := page[len(page)-1]
		return scheduler.Continue(Cursor{
			Account: last.Account,
			Score:   last.Score,
			Chunk:   cursor.Chunk + 1,
		}), nil
	}
}
