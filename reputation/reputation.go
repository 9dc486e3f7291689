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

// Package reputation maintains the trust graph between participants: vouches
// that build reputation, flags that tear it down, and the status changes and
// rewards that follow from both.
package reputation

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
	"github.com/blinklabs-io/grove/rank"
	"github.com/blinklabs-io/grove/scheduler"
	"github.com/blinklabs-io/grove/voice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Scheduler task kinds
const (
	KindPunishVouchers = "punishvouchers"
	KindPunishVouched  = "punishvouched"
	KindEvalDemote     = "evaldemote"
	KindMimic          = "mimic"
	KindVouchReward    = "vouchreward"
	KindBanTree        = "bantree"
)

var (
	ErrBanned             = errors.New("account is banned")
	ErrNotEligible        = errors.New("account status does not allow this")
	ErrSelfVouch          = errors.New("cannot vouch for yourself")
	ErrAlreadyVouched     = errors.New("already vouched for this account")
	ErrAlreadyFlagged     = errors.New("already flagged this account")
	ErrNoReputation       = errors.New("account holds no reputation")
	ErrSelfDelegation     = errors.New("cannot delegate to yourself")
	ErrDelegationCycle    = errors.New("delegation would create a cycle")
	ErrDelegationDepth    = errors.New("delegation chain too deep")
	ErrNotDelegationParty = errors.New("not a party to this delegation")
	ErrInvalidStatus      = errors.New("invalid status change")
	ErrInvalidKind        = errors.New("invalid participant kind")
)

type Config struct {
	DB           *database.Database
	Scheduler    *scheduler.Scheduler
	Voice        *voice.Ledger
	Outbox       *bank.Outbox
	EventBus     *event.EventBus
	Params       *config.Params
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
}

// Engine applies reputation operations. Every method expects an open
// read-write transaction.
type Engine struct {
	db          *database.Database
	scheduler   *scheduler.Scheduler
	voice       *voice.Ledger
	outbox      *bank.Outbox
	eventBus    *event.EventBus
	params      *config.Params
	logger      *slog.Logger
	metrics     engineMetrics
	populations func(string) rank.Population
}

func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	e := &Engine{
		db:          cfg.DB,
		scheduler:   cfg.Scheduler,
		voice:       cfg.Voice,
		outbox:      cfg.Outbox,
		eventBus:    cfg.EventBus,
		params:      cfg.Params,
		logger:      cfg.Logger.With("component", "reputation"),
		populations: rank.Populations(cfg.DB, database.ScoreTableReputation),
	}
	e.metrics.init(cfg.PromRegistry)
	e.scheduler.Register(KindPunishVouchers, e.punishVouchersStep)
	e.scheduler.Register(KindPunishVouched, e.punishVouchedStep)
	e.scheduler.Register(KindEvalDemote, e.evalDemoteStep)
	e.scheduler.Register(KindMimic, e.mimicStep)
	e.scheduler.Register(KindVouchReward, e.vouchRewardStep)
	e.scheduler.Register(KindBanTree, e.banTreeStep)
	return e
}

func (e *Engine) batchSize() int {
	return int(e.params.BatchSize) //nolint:gosec
}

func (e *Engine) participant(account string, txn *database.Txn) (*models.Participant, error) {
	p, err := e.db.GetParticipant(account, txn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", account, err)
	}
	return p, nil
}

func (e *Engine) publish(eventType event.EventType, data any) {
	if e.eventBus == nil {
		return
	}
	e.eventBus.Publish(eventType, event.NewEvent(eventType, data))
}

// Multiplier scales linearly from lo at rank 0 to hi at rank 100
func Multiplier(lo, hi decimal.Decimal, rank uint64) decimal.Decimal {
	return lo.Add(
		hi.Sub(lo).
			Mul(decimal.NewFromInt(int64(min(rank, 100)))). //nolint:gosec
			Div(decimal.NewFromInt(100)),
	)
}

// scaled returns floor(base * multiplier)
func scaled(base uint64, multiplier decimal.Decimal) uint64 {
	ret := decimal.NewFromInt(int64(base)).Mul(multiplier).Floor() //nolint:gosec
	if !ret.IsPositive() {
		return 0
	}
	return uint64(ret.IntPart()) //nolint:gosec
}

// AddRep raises the reputation of an account
func (e *Engine) AddRep(account string, amount uint64, txn *database.Txn) error {
	p, err := e.participant(account, txn)
	if err != nil {
		return err
	}
	return e.addRep(p, amount, txn)
}

// SubRep lowers the reputation of an account, never below zero. An account at
// zero leaves the ranked population.
func (e *Engine) SubRep(account string, amount uint64, txn *database.Txn) error {
	p, err := e.participant(account, txn)
	if err != nil {
		return err
	}
	return e.subRep(p, amount, txn)
}

// AddCBS raises the community building score of an account
func (e *Engine) AddCBS(account string, amount uint64, txn *database.Txn) error {
	p, err := e.participant(account, txn)
	if err != nil {
		return err
	}
	return e.addCBS(p, amount, txn)
}

func (e *Engine) addRep(p *models.Participant, amount uint64, txn *database.Txn) error {
	if amount == 0 {
		return nil
	}
	return e.setRep(p, p.Reputation+amount, txn)
}

func (e *Engine) subRep(p *models.Participant, amount uint64, txn *database.Txn) error {
	if amount == 0 {
		return nil
	}
	next := uint64(0)
	if p.Reputation > amount {
		next = p.Reputation - amount
	}
	return e.setRep(p, next, txn)
}

func (e *Engine) setRep(p *models.Participant, value uint64, txn *database.Txn) error {
	if err := e.db.UpdateParticipant(
		p.Account,
		map[string]any{"reputation": value},
		txn,
	); err != nil {
		return err
	}
	p.Reputation = value
	return e.db.PutScore(database.ScoreTableReputation, p.Kind, p.Account, value, txn)
}

func (e *Engine) addCBS(p *models.Participant, amount uint64, txn *database.Txn) error {
	if amount == 0 {
		return nil
	}
	p.CBS += amount
	if err := e.db.UpdateParticipant(
		p.Account,
		map[string]any{"cbs": p.CBS},
		txn,
	); err != nil {
		return err
	}
	if err := e.db.PutScore(database.ScoreTableCommunity, p.Kind, p.Account, p.CBS, txn); err != nil {
		return err
	}
	e.publish(event.CommunityPointsEventType, event.CommunityPointsEvent{
		Account:      p.Account,
		Points:       amount,
		Total:        p.CBS,
		Organization: p.Kind == models.KindOrganization,
	})
	return nil
}
