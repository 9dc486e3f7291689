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

// Package proposal implements the funding proposal lifecycle. A proposal is
// staged while it collects stake, active while it is voted on and paid out
// across cycles, and done once it is rejected or fully paid.
package proposal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/blinklabs-io/grove/bank"
	"github.com/blinklabs-io/grove/database"
	"github.com/blinklabs-io/grove/database/models"
	"github.com/blinklabs-io/grove/database/types"
	"github.com/blinklabs-io/grove/event"
	"github.com/blinklabs-io/grove/internal/config"
	"github.com/blinklabs-io/grove/scheduler"
	"github.com/blinklabs-io/grove/voice"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	KindCloseCycle = "closecycle"
	KindRefund     = "refundstake"
)

var (
	ErrInvalidTransition  = errors.New("invalid proposal transition")
	ErrNotStaged          = errors.New("proposal is no longer staged")
	ErrNotActive          = errors.New("proposal is not open for voting")
	ErrNotCreator         = errors.New("only the creator may change a proposal")
	ErrInvalidQuantity    = errors.New("proposal quantity must be positive")
	ErrUnknownFund        = errors.New("unknown fund")
	ErrInvalidPercentages = errors.New("invalid payout percentages")
	ErrInvalidDetails     = errors.New("invalid proposal details")
	ErrNoVoice            = errors.New("voter holds no voice")
	ErrInsufficientVoice  = errors.New("vote exceeds voice balance")
	ErrFundShort          = errors.New("fund cannot cover payout")
)

// Column limits of the proposal text fields
const (
	maxTitleLen   = 256
	maxSummaryLen = 1024
	maxImageLen   = 512
	maxURLLen     = 512
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

type Engine struct {
	db        *database.Database
	scheduler *scheduler.Scheduler
	voice     *voice.Ledger
	outbox    *bank.Outbox
	eventBus  *event.EventBus
	params    *config.Params
	logger    *slog.Logger
	metrics   engineMetrics
}

func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	e := &Engine{
		db:        cfg.DB,
		scheduler: cfg.Scheduler,
		voice:     cfg.Voice,
		outbox:    cfg.Outbox,
		eventBus:  cfg.EventBus,
		params:    cfg.Params,
		logger:    cfg.Logger.With("component", "proposal"),
	}
	e.metrics.init(cfg.PromRegistry)
	e.scheduler.Register(KindCloseCycle, e.closeStep)
	e.scheduler.Register(KindRefund, e.refundStep)
	return e
}

// Details holds the descriptive fields of a proposal
type Details struct {
	Title       string
	Summary     string
	Description string
	Image       string
	URL         string
}

func (d Details) validate() error {
	switch {
	case d.Title == "":
		return fmt.Errorf("%w: title is required", ErrInvalidDetails)
	case len(d.Title) > maxTitleLen:
		return fmt.Errorf("%w: title too long", ErrInvalidDetails)
	case len(d.Summary) > maxSummaryLen:
		return fmt.Errorf("%w: summary too long", ErrInvalidDetails)
	case len(d.Image) > maxImageLen:
		return fmt.Errorf("%w: image too long", ErrInvalidDetails)
	case len(d.URL) > maxURLLen:
		return fmt.Errorf("%w: url too long", ErrInvalidDetails)
	}
	return nil
}

func (d Details) apply(p *models.Proposal) {
	p.Title = d.Title
	p.Summary = d.Summary
	p.Description = d.Description
	p.Image = d.Image
	p.URL = d.URL
}

// CheckPercentages validates an explicit payout schedule. It must be
// non-empty, sum to 100 and never decrease.
func CheckPercentages(pcts []uint64) error {
	if len(pcts) == 0 {
		return fmt.Errorf("%w: empty schedule", ErrInvalidPercentages)
	}
	var sum uint64
	for i, pct := range pcts {
		if i > 0 && pct < pcts[i-1] {
			return fmt.Errorf(
				"%w: tranche %d (%d%%) below tranche %d (%d%%)",
				ErrInvalidPercentages,
				i,
				pct,
				i-1,
				pcts[i-1],
			)
		}
		sum += pct
	}
	if sum != 100 {
		return fmt.Errorf("%w: schedule sums to %d", ErrInvalidPercentages, sum)
	}
	return nil
}

// Get returns a proposal
func (e *Engine) Get(id uint, txn *database.Txn) (*models.Proposal, error) {
	p, err := e.db.GetProposal(id, txn)
	if err != nil {
		return nil, fmt.Errorf("proposal %d: %w", id, err)
	}
	return p, nil
}

// Create stages a proposal paid out linearly
func (e *Engine) Create(
	creator string,
	recipient string,
	quantity uint64,
	fund string,
	details Details,
	txn *database.Txn,
) (uint, error) {
	return e.create(creator, recipient, quantity, fund, details, nil, txn)
}

// CreateX stages a proposal paid out in explicit percentage tranches
func (e *Engine) CreateX(
	creator string,
	recipient string,
	quantity uint64,
	fund string,
	details Details,
	pcts []uint64,
	txn *database.Txn,
) (uint, error) {
	if err := CheckPercentages(pcts); err != nil {
		return 0, err
	}
	return e.create(creator, recipient, quantity, fund, details, pcts, txn)
}

func (e *Engine) create(
	creator string,
	recipient string,
	quantity uint64,
	fund string,
	details Details,
	pcts []uint64,
	txn *database.Txn,
) (uint, error) {
	if quantity == 0 {
		return 0, ErrInvalidQuantity
	}
	if _, ok := e.params.Funds[fund]; !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownFund, fund)
	}
	if err := details.validate(); err != nil {
		return 0, err
	}
	for _, account := range []string{creator, recipient} {
		if _, err := e.db.GetParticipant(account, txn); err != nil {
			return 0, fmt.Errorf("%s: %w", account, err)
		}
	}
	cycle, err := e.db.GetCycle(txn)
	if err != nil {
		return 0, err
	}
	p := &models.Proposal{
		Creator:        creator,
		Recipient:      recipient,
		Fund:           fund,
		Quantity:       quantity,
		Stage:          models.StageStaged,
		Status:         models.StatusOpen,
		PayPercentages: types.Percentages(pcts),
		CreatedCycle:   cycle.Index,
	}
	details.apply(p)
	if err := e.db.CreateProposal(p, txn); err != nil {
		return 0, err
	}
	e.metrics.created.Inc()
	e.logger.Info(
		"proposal created",
		"id", p.ID,
		"creator", creator,
		"fund", fund,
		"quantity", quantity,
		"linear", p.IsLinear(),
	)
	return p.ID, nil
}

// editable loads a staged proposal owned by actor
func (e *Engine) editable(actor string, id uint, txn *database.Txn) (*models.Proposal, error) {
	p, err := e.Get(id, txn)
	if err != nil {
		return nil, err
	}
	if p.Creator != actor {
		return nil, ErrNotCreator
	}
	if p.Stage != models.StageStaged {
		return nil, fmt.Errorf("proposal %d is %s: %w", id, p.Stage, ErrNotStaged)
	}
	return p, nil
}

// Update replaces the details of a staged proposal
func (e *Engine) Update(actor string, id uint, details Details, txn *database.Txn) error {
	if err := details.validate(); err != nil {
		return err
	}
	p, err := e.editable(actor, id, txn)
	if err != nil {
		return err
	}
	details.apply(p)
	return e.db.SetProposal(p, txn)
}

// UpdateX replaces the details and the payout schedule of a staged proposal
func (e *Engine) UpdateX(
	actor string,
	id uint,
	details Details,
	pcts []uint64,
	txn *database.Txn,
) error {
	if err := details.validate(); err != nil {
		return err
	}
	if err := CheckPercentages(pcts); err != nil {
		return err
	}
	p, err := e.editable(actor, id, txn)
	if err != nil {
		return err
	}
	details.apply(p)
	p.PayPercentages = types.Percentages(pcts)
	return e.db.SetProposal(p, txn)
}

// Cancel removes a staged proposal and refunds its stake
func (e *Engine) Cancel(actor string, id uint, txn *database.Txn) error {
	p, err := e.editable(actor, id, txn)
	if err != nil {
		return err
	}
	if err := e.startRefund(p, txn); err != nil {
		return err
	}
	if err := e.db.DeleteProposal(id, txn); err != nil {
		return err
	}
	e.logger.Info("proposal cancelled", "id", id, "staked", p.Staked)
	return nil
}

// MinStake returns the stake a proposal needs before it can be activated
func (e *Engine) MinStake(p *models.Proposal) uint64 {
	ret := max(p.Quantity*e.params.StakePct/100, e.params.StakeMin)
	if limit := e.params.Funds[p.Fund].StakeCap; limit > 0 {
		ret = min(ret, limit)
	}
	return ret
}

// Stake moves tokens from an account into the proposal's fund and records the
// contribution
func (e *Engine) Stake(
	ctx context.Context,
	from string,
	id uint,
	amount uint64,
	txn *database.Txn,
) error {
	if amount == 0 {
		return bank.ErrInvalidAmount
	}
	p, err := e.Get(id, txn)
	if err != nil {
		return err
	}
	if p.Stage != models.StageStaged {
		return fmt.Errorf("proposal %d is %s: %w", id, p.Stage, ErrNotStaged)
	}
	available, err := e.outbox.Available(ctx, from, txn)
	if err != nil {
		return err
	}
	if available < amount {
		return fmt.Errorf(
			"%w: %s has %d, stake is %d",
			bank.ErrInsufficientFunds,
			from,
			available,
			amount,
		)
	}
	if err := e.outbox.Send(
		from,
		e.params.Funds[p.Fund].Account,
		amount,
		fmt.Sprintf("stake %d", id),
		txn,
	); err != nil {
		return err
	}
	if err := e.db.AddStakeContribution(
		id,
		e.params.Funds[p.Fund].Account,
		from,
		amount,
		txn,
	); err != nil {
		return err
	}
	p.Staked += amount
	e.logger.Debug("stake added", "id", id, "from", from, "amount", amount, "staked", p.Staked)
	return e.db.SetProposal(p, txn)
}

// CheckStake reports whether a proposal holds enough stake to be activated
func (e *Engine) CheckStake(id uint, txn *database.Txn) (bool, error) {
	p, err := e.Get(id, txn)
	if err != nil {
		return false, err
	}
	return p.Staked >= e.MinStake(p), nil
}

func (e *Engine) publish(eventType event.EventType, data any) {
	if e.eventBus == nil {
		return
	}
	e.eventBus.Publish(eventType, event.NewEvent(eventType, data))
}
