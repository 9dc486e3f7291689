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

// Package bank connects governance to the value ledger. State changes never
// move value directly: they write transfers to an outbox in the same
// transaction, and a relay task delivers them to a Ledger afterwards.
package bank

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// Ledger is the value ledger collaborator
type Ledger interface {
	Transfer(ctx context.Context, from, to string, amount uint64, memo string) error
	Retire(ctx context.Context, from string, amount uint64, memo string) error
	Balance(ctx context.Context, account string) (uint64, error)
}

// MemoryLedger is an in-process Ledger used for development and tests
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]uint64
	retired  uint64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[string]uint64),
	}
}

// Mint credits an account out of thin air
func (m *MemoryLedger) Mint(account string, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] += amount
}

func (m *MemoryLedger) Transfer(
	_ context.Context,
	from, to string,
	amount uint64,
	_ string,
) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[from] < amount {
		return fmt.Errorf(
			"%w: %s holds %d, needs %d",
			ErrInsufficientFunds,
			from,
			m.balances[from],
			amount,
		)
	}
	m.balances[from] -= amount
	m.balances[to] += amount
	return nil
}

func (m *MemoryLedger) Retire(
	_ context.Context,
	from string,
	amount uint64,
	_ string,
) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[from] < amount {
		return fmt.Errorf("%w: %s", ErrInsufficientFunds, from)
	}
	m.balances[from] -= amount
	m.retired += amount
	return nil
}

func (m *MemoryLedger) Balance(_ context.Context, account string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account], nil
}

// Retired returns the total amount taken out of circulation
func (m *MemoryLedger) Retired() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retired
}

// LoggingLedger logs every call before handing it to the wrapped ledger
type LoggingLedger struct {
	next   Ledger
	logger *slog.Logger
}

func NewLoggingLedger(next Ledger, logger *slog.Logger) *LoggingLedger {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &LoggingLedger{
		next:   next,
		logger: logger.With("component", "bank"),
	}
}

func (l *LoggingLedger) Transfer(
	ctx context.Context,
	from, to string,
	amount uint64,
	memo string,
) error {
	err := l.next.Transfer(ctx, from, to, amount, memo)
	l.logger.Info(
		"transfer",
		"from", from,
		"to", to,
		"amount", amount,
		"memo", memo,
		"error", err,
	)
	return err
}

func (l *LoggingLedger) Retire(
	ctx context.Context,
	from string,
	amount uint64,
	memo string,
) error {
	err := l.next.Retire(ctx, from, amount, memo)
	l.logger.Info(
		"retire",
		"from", from,
		"amount", amount,
		"memo", memo,
		"error", err,
	)
	return err
}

func (l *LoggingLedger) Balance(ctx context.Context, account string) (uint64, error) {
	return l.next.Balance(ctx, account)
}
