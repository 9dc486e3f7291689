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

// Package grove wires the governance engines into a long running node: the
// database, event bus, task scheduler, value outbox and the cycle clock.
package grove

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blinklabs-io/grove/bank"
	"github.com/blinklabs-io/grove/database"
	"github.com/blinklabs-io/grove/event"
	"github.com/blinklabs-io/grove/governance"
	"github.com/blinklabs-io/grove/scheduler"
)

type Node struct {
	db            *database.Database
	eventBus      *event.EventBus
	scheduler     *scheduler.Scheduler
	outbox        *bank.Outbox
	governance    *governance.Governance
	cancel        context.CancelFunc
	shutdownFuncs []func(context.Context) error
	config        Config
	done          chan struct{}
	wg            sync.WaitGroup
	openMutex     sync.Mutex
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Node, error) {
	n := &Node{
		config: cfg,
		done:   make(chan struct{}),
	}
	if err := n.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return n, nil
}

// Open loads the database and builds the governance engines without starting
// any background work. It is safe to call more than once.
func (n *Node) Open() error {
	n.openMutex.Lock()
	defer n.openMutex.Unlock()
	if n.governance != nil {
		return nil
	}
	logger := n.config.logger
	db, err := database.New(&database.Config{
		DataDir:        n.config.dataDir,
		BlobPlugin:     n.config.blobPlugin,
		MetadataPlugin: n.config.metadataPlugin,
		Logger:         logger,
		PromRegistry:   n.config.promRegistry,
	})
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		var tsErr database.CommitTimestampError
		if errors.As(err, &tsErr) {
			return fmt.Errorf("database needs manual recovery: %w", err)
		}
		return fmt.Errorf("failed to open database: %w", err)
	}
	n.db = db
	n.eventBus = event.NewEventBus(n.config.promRegistry, logger)
	n.scheduler = scheduler.New(scheduler.Config{
		DB:              n.db,
		Logger:          logger,
		PromRegistry:    n.config.promRegistry,
		Interval:        n.config.schedulerInterval,
		MaxStepsPerTick: n.config.schedulerMaxSteps,
	})
	ledger := n.config.ledger
	if ledger == nil {
		logger.Warn(
			"no value ledger configured, transfers go to an in-memory ledger",
			"component", "node",
		)
		ledger = bank.NewMemoryLedger()
	}
	n.outbox = bank.NewOutbox(bank.OutboxConfig{
		DB:           n.db,
		Ledger:       bank.NewLoggingLedger(ledger, logger),
		Scheduler:    n.scheduler,
		Logger:       logger,
		PromRegistry: n.config.promRegistry,
		BatchSize:    int(n.config.params.BatchSize), // #nosec G115
	})
	n.governance = governance.New(governance.Config{
		DB:           n.db,
		Scheduler:    n.scheduler,
		Outbox:       n.outbox,
		EventBus:     n.eventBus,
		Params:       n.config.params,
		Logger:       logger,
		PromRegistry: n.config.promRegistry,
	})
	n.eventBus.SubscribeFunc(
		event.CycleRolloverEventType,
		n.handleCycleRollover,
	)
	history := n.config.history
	if history == nil {
		history = event.NewLoggingNotifier(logger)
	}
	event.SubscribeHistory(n.eventBus, history)
	orgs := n.config.organizations
	if orgs == nil {
		orgs = event.NewLoggingNotifier(logger)
	}
	event.SubscribeOrganizations(n.eventBus, orgs)
	return nil
}

// Run opens the node and runs the task scheduler and cycle clock until ctx is
// done or Stop is called
func (n *Node) Run(ctx context.Context) error {
	// Configure tracing
	if n.config.tracing {
		if err := n.setupTracing(); err != nil {
			return err
		}
	}
	if err := n.Open(); err != nil {
		return err
	}
	pending, err := n.scheduler.Pending()
	if err != nil {
		return fmt.Errorf("failed to read task queue: %w", err)
	}
	n.config.logger.Info(
		"node started",
		"component", "node",
		"pending_tasks", len(pending),
	)
	if !n.config.manualTasks {
		n.scheduler.Start()
		if n.config.cycleTickInterval > 0 {
			loopCtx, cancel := context.WithCancel(ctx)
			n.openMutex.Lock()
			n.cancel = cancel
			n.openMutex.Unlock()
			n.wg.Add(1)
			go n.cycleLoop(loopCtx)
		}
	}

	// Wait for shutdown
	select {
	case <-ctx.Done():
	case <-n.done:
	}
	return nil
}

func (n *Node) cycleLoop(ctx context.Context) {
	defer n.wg.Done()
	ticker := time.NewTicker(n.config.cycleTickInterval)
	defer ticker.Stop()
	n.tick(time.Now())
	for {
		select {
		case now := <-ticker.C:
			n.tick(now)
		case <-ctx.Done():
			return
		}
	}
}

func (n *Node) tick(now time.Time) {
	if _, err := n.Tick(now); err != nil {
		n.config.logger.Error(
			"cycle tick failed",
			"component", "node",
			"error", err,
		)
	}
}

// Tick advances the governance clock to now
func (n *Node) Tick(now time.Time) (governance.PeriodResult, error) {
	if err := n.Open(); err != nil {
		return governance.PeriodResult{}, err
	}
	ret, err := n.governance.OnPeriod(governance.SystemCaller, now)
	if err != nil {
		return ret, err
	}
	if ret.Decayed {
		n.config.logger.Debug(
			"voice decay queued",
			"component", "node",
			"cycle", ret.Cycle,
		)
	}
	return ret, nil
}

func (n *Node) handleCycleRollover(evt event.Event) {
	data, ok := evt.Data.(event.CycleRolloverEvent)
	if !ok {
		return
	}
	n.config.logger.Info(
		fmt.Sprintf("cycle %d started", data.Index),
		"component", "node",
		"quorum_pct", data.QuorumPct,
		"active_proposals", data.Active,
	)
}

// Drain runs queued task steps in the calling goroutine until the queue is
// empty or maxSteps steps were run
func (n *Node) Drain(ctx context.Context, maxSteps int) (int, error) {
	if err := n.Open(); err != nil {
		return 0, err
	}
	return n.scheduler.Drain(ctx, maxSteps)
}

// Governance returns the governance boundary. Open must have been called.
func (n *Node) Governance() *governance.Governance {
	n.openMutex.Lock()
	defer n.openMutex.Unlock()
	return n.governance
}

func (n *Node) Scheduler() *scheduler.Scheduler {
	n.openMutex.Lock()
	defer n.openMutex.Unlock()
	return n.scheduler
}

func (n *Node) EventBus() *event.EventBus {
	n.openMutex.Lock()
	defer n.openMutex.Unlock()
	return n.eventBus
}

func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	ctx, cancel := context.WithTimeout(
		context.Background(),
		n.config.shutdownTimeout,
	)
	defer cancel()

	var err error

	n.config.logger.Debug("starting graceful shutdown", "component", "node")

	// Phase 1: Stop accepting new work
	n.openMutex.Lock()
	if n.cancel != nil {
		n.cancel()
	}
	n.openMutex.Unlock()
	n.wg.Wait()

	// Phase 2: Let the current task step commit
	if n.scheduler != nil {
		n.scheduler.Stop()
	}

	// Phase 3: Close database
	if n.db != nil {
		if closeErr := n.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	// Phase 4: Cleanup resources
	for _, fn := range n.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	n.shutdownFuncs = nil

	if n.eventBus != nil {
		n.eventBus.Stop()
	}

	n.config.logger.Debug("graceful shutdown complete", "component", "node")
	close(n.done)
	return err
}
