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

// Package governance is the command surface of the system. Every operation
// checks once that its caller may act as the account it names, then runs in a
// single read-write transaction.
package governance

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/blinklabs-io/grove/bank"
	"github.com/blinklabs-io/grove/database"
	"github.com/blinklabs-io/grove/database/models"
	"github.com/blinklabs-io/grove/event"
	"github.com/blinklabs-io/grove/internal/config"
	"github.com/blinklabs-io/grove/proposal"
	"github.com/blinklabs-io/grove/rank"
	"github.com/blinklabs-io/grove/reputation"
	"github.com/blinklabs-io/grove/scheduler"
	"github.com/blinklabs-io/grove/voice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ErrUnauthorized = errors.New("caller is not authorized for this operation")

// Caller identifies who invokes an operation. System callers are the
// scheduler, the cycle ticker and operators.
type Caller struct {
	Account string
	System  bool
}

// SystemCaller is the caller used for scheduled operations
var SystemCaller = Caller{System: true}

func (c Caller) String() string {
	if c.System {
		return "system"
	}
	return c.Account
}

type Config struct {
	DB           *database.Database
	Scheduler    *scheduler.Scheduler
	Outbox       *bank.Outbox
	EventBus     *event.EventBus
	Params       *config.Params
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
}

// Governance wires the engines together and exposes the operations
type Governance struct {
	db         *database.Database
	scheduler  *scheduler.Scheduler
	outbox     *bank.Outbox
	eventBus   *event.EventBus
	params     *config.Params
	logger     *slog.Logger
	voice      *voice.Ledger
	reputation *reputation.Engine
	proposals  *proposal.Engine
	ranks      *rank.Engine
	operations *prometheus.CounterVec
}

// New builds every engine on top of the shared scheduler. The outbox must use
// the same scheduler.
func New(cfg Config) *Governance {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	g := &Governance{
		db:        cfg.DB,
		scheduler: cfg.Scheduler,
		outbox:    cfg.Outbox,
		eventBus:  cfg.EventBus,
		params:    cfg.Params,
		logger:    cfg.Logger.With("component", "governance"),
	}
	g.voice = voice.New(voice.Config{
		DB:           cfg.DB,
		Scheduler:    cfg.Scheduler,
		Params:       cfg.Params,
		Logger:       cfg.Logger,
		PromRegistry: cfg.PromRegistry,
	})
	g.reputation = reputation.New(reputation.Config{
		DB:           cfg.DB,
		Scheduler:    cfg.Scheduler,
		Voice:        g.voice,
		Outbox:       cfg.Outbox,
		EventBus:     cfg.EventBus,
		Params:       cfg.Params,
		Logger:       cfg.Logger,
		PromRegistry: cfg.PromRegistry,
	})
	g.proposals = proposal.New(proposal.Config{
		DB:           cfg.DB,
		Scheduler:    cfg.Scheduler,
		Voice:        g.voice,
		Outbox:       cfg.Outbox,
		EventBus:     cfg.EventBus,
		Params:       cfg.Params,
		Logger:       cfg.Logger,
		PromRegistry: cfg.PromRegistry,
	})
	g.ranks = rank.New(cfg.Scheduler, int(cfg.Params.RankChunkSize), cfg.Logger) //nolint:gosec
	g.ranks.Register(
		rank.KindReputation,
		rank.Populations(cfg.DB, database.ScoreTableReputation),
	)
	g.ranks.Register(
		rank.KindCommunity,
		rank.Populations(cfg.DB, database.ScoreTableCommunity),
	)
	g.operations = promauto.With(cfg.PromRegistry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "grove_governance_operations_total",
			Help: "operations handled, by name and result",
		},
		[]string{"operation", "result"},
	)
	return g
}

func (g *Governance) VoiceLedger() *voice.Ledger {
	return g.voice
}

func (g *Governance) ReputationEngine() *reputation.Engine {
	return g.reputation
}

func (g *Governance) ProposalEngine() *proposal.Engine {
	return g.proposals
}

// actAs checks that the caller may act as account
func actAs(caller Caller, account string) error {
	if caller.System || (caller.Account != "" && caller.Account == account) {
		return nil
	}
	return fmt.Errorf("%w: %s cannot act as %s", ErrUnauthorized, caller, account)
}

func systemOnly(caller Caller) error {
	if caller.System {
		return nil
	}
	return fmt.Errorf("%w: %s is not a system caller", ErrUnauthorized, caller)
}

// run executes an authorized operation in one read-write transaction
func (g *Governance) run(op string, auth error, fn func(txn *database.Txn) error) error {
	if auth != nil {
		g.operations.WithLabelValues(op, "unauthorized").Inc()
		return auth
	}
	if err := g.db.Transaction(true).Do(fn); err != nil {
		g.operations.WithLabelValues(op, "failed").Inc()
		g.logger.Debug("operation failed", "operation", op, "error", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	g.operations.WithLabelValues(op, "ok").Inc()
	return nil
}

// Participant returns a registered participant
func (g *Governance) Participant(account string) (*models.Participant, error) {
	return g.db.GetParticipant(account, nil)
}

// Proposal returns a proposal
func (g *Governance) Proposal(id uint) (*models.Proposal, error) {
	return g.proposals.Get(id, nil)
}

// Proposals returns every proposal
func (g *Governance) Proposals() ([]models.Proposal, error) {
	return g.db.ListProposals(nil)
}

// VoiceBalances returns the voice of an account per fund
func (g *Governance) VoiceBalances(account string) (map[string]uint64, error) {
	return g.voice.Balances(account, nil)
}

// Cycle returns the current cycle state
func (g *Governance) Cycle() (*models.Cycle, error) {
	return g.db.GetCycle(nil)
}
