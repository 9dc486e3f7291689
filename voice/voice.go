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

// Package voice keeps the per-fund voting power of accounts. Voice only grows
// through grants and only shrinks through the periodic decay pass.
package voice

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/blinklabs-io/grove/database"
	"github.com/blinklabs-io/grove/database/models"
	"github.com/blinklabs-io/grove/internal/config"
	"github.com/blinklabs-io/grove/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scheduler task kinds
const (
	KindDecay         = "decayvoices"
	KindActives       = "updateactivs"
	KindParticipation = "updatevoices"
)

// Passes cover every scope at once
const passScope = "all"

var ErrUnknownScope = errors.New("unknown voice scope")

type Config struct {
	DB           *database.Database
	Scheduler    *scheduler.Scheduler
	Params       *config.Params
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
}

type Ledger struct {
	db        *database.Database
	scheduler *scheduler.Scheduler
	params    *config.Params
	logger    *slog.Logger
	decayed   prometheus.Counter
	rewarded  prometheus.Counter
	dropped   prometheus.Counter
}

func New(cfg Config) *Ledger {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	promautoFactory := promauto.With(cfg.PromRegistry)
	l := &Ledger{
		db:        cfg.DB,
		scheduler: cfg.Scheduler,
		params:    cfg.Params,
		logger:    cfg.Logger.With("component", "voice"),
		decayed: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "grove_voice_decayed_total",
			Help: "voice rows reduced by the decay pass",
		}),
		rewarded: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "grove_voice_participation_rewards_total",
			Help: "participation rewards granted",
		}),
		dropped: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "grove_voice_actives_dropped_total",
			Help: "accounts removed from the active set",
		}),
	}
	l.scheduler.Register(KindDecay, l.decayStep)
	l.scheduler.Register(KindActives, l.activesStep)
	l.scheduler.Register(KindParticipation, l.participationStep)
	return l
}

// Scopes returns the voice scopes, one per fund
func (l *Ledger) Scopes() []string {
	return l.params.FundNames()
}

func (l *Ledger) checkScope(scope string) error {
	if !slices.Contains(l.Scopes(), scope) {
		return fmt.Errorf("%w: %s", ErrUnknownScope, scope)
	}
	return nil
}

// Balance returns the voice of an account in one scope
func (l *Ledger) Balance(scope, account string, txn *database.Txn) (uint64, error) {
	if err := l.checkScope(scope); err != nil {
		return 0, err
	}
	return l.db.GetVoice(scope, account, txn)
}

// Balances returns the voice of an account in every scope
func (l *Ledger) Balances(account string, txn *database.Txn) (map[string]uint64, error) {
	ret := make(map[string]uint64)
	for _, scope := range l.Scopes() {
		balance, err := l.db.GetVoice(scope, account, txn)
		if err != nil {
			return nil, err
		}
		ret[scope] = balance
	}
	return ret, nil
}

// Total returns the sum of all balances in a scope
func (l *Ledger) Total(scope string, txn *database.Txn) (uint64, error) {
	if err := l.checkScope(scope); err != nil {
		return 0, err
	}
	return l.db.GetSize(models.VoiceSizeID(scope), txn)
}

// set writes a balance and keeps the scope total in step
func (l *Ledger) set(scope, account string, balance uint64, txn *database.Txn) error {
	old, err := l.db.GetVoice(scope, account, txn)
	if err != nil {
		return err
	}
	if old == balance {
		return nil
	}
	if err := l.db.SetVoice(scope, account, balance, txn); err != nil {
		return err
	}
	delta := int64(balance) - int64(old) //nolint:gosec
	return l.db.ChangeSize(models.VoiceSizeID(scope), delta, txn)
}

// Grant adds voice in every scope, capped at the voice maximum
func (l *Ledger) Grant(account string, amount uint64, txn *database.Txn) error {
	for _, scope := range l.Scopes() {
		old, err := l.db.GetVoice(scope, account, txn)
		if err != nil {
			return err
		}
		if err := l.set(scope, account, min(old+amount, l.params.VoiceMax), txn); err != nil {
			return err
		}
	}
	return nil
}

// SetCitizen resets the voice of a new citizen in every scope
func (l *Ledger) SetCitizen(account string, txn *database.Txn) error {
	balance := min(l.params.VoiceCitizen, l.params.VoiceMax)
	for _, scope := range l.Scopes() {
		if err := l.set(scope, account, balance, txn); err != nil {
			return err
		}
	}
	return nil
}

// Zero removes all voice of an account
func (l *Ledger) Zero(account string, txn *database.Txn) error {
	for _, scope := range l.Scopes() {
		if err := l.set(scope, account, 0, txn); err != nil {
			return err
		}
	}
	return nil
}

// ChangeTrust gives a trusted account citizen voice and zeroes the voice of
// an untrusted one
func (l *Ledger) ChangeTrust(account string, trusted bool, txn *database.Txn) error {
	if trusted {
		return l.SetCitizen(account, txn)
	}
	return l.Zero(account, txn)
}

// AddActive makes an account eligible for participation rewards
func (l *Ledger) AddActive(account string, txn *database.Txn) error {
	if err := l.db.AddActive(account, time.Now(), txn); err != nil {
		return err
	}
	return l.refreshActives(txn)
}

func (l *Ledger) RemoveActive(account string, txn *database.Txn) error {
	if err := l.db.RemoveActive(account, txn); err != nil {
		return err
	}
	return l.refreshActives(txn)
}

func (l *Ledger) refreshActives(txn *database.Txn) error {
	count, err := l.db.CountActives(txn)
	if err != nil {
		return err
	}
	return l.db.SetSize(models.SizeActiveUsers, count, txn)
}

// StartDecay queues a decay pass over every voice row
func (l *Ledger) StartDecay(txn *database.Txn) error {
	_, err := l.scheduler.Enqueue(KindDecay, passScope, nil, txn)
	return err
}

// StartActives queues a pass dropping actives that are no longer citizens
func (l *Ledger) StartActives(txn *database.Txn) error {
	_, err := l.scheduler.Enqueue(KindActives, passScope, nil, txn)
	return err
}

// StartParticipation queues the participation reward pass for the cycle that
// just closed
func (l *Ledger) StartParticipation(txn *database.Txn) error {
	_, err := l.scheduler.Enqueue(KindParticipation, passScope, nil, txn)
	return err
}
