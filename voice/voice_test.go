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

package voice_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/blinklabs-io/grove/database"
	"github.com/blinklabs-io/grove/database/models"
	"github.com/blinklabs-io/grove/internal/config"
	"github.com/blinklabs-io/grove/scheduler"
	"github.com/blinklabs-io/grove/voice"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) (*voice.Ledger, *scheduler.Scheduler, *database.Database, *config.Params) {
	t.Helper()
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	params := config.DefaultParams()
	params.BatchSize = 3
	sched := scheduler.New(scheduler.Config{DB: db})
	ledger := voice.New(voice.Config{
		DB:        db,
		Scheduler: sched,
		Params:    &params,
	})
	return ledger, sched, db, &params
}

func TestDecayed(t *testing.T) {
	factor := decimal.RequireFromString("0.9")
	testDefs := []struct {
		balance  uint64
		floor    uint64
		expected uint64
	}{
		{balance: 1000, expected: 900},
		{balance: 15, expected: 13},
		{balance: 1, expected: 0},
		{balance: 0, expected: 0},
		{balance: 1000, floor: 901, expected: 0},
		{balance: 1000, floor: 900, expected: 900},
	}
	for _, testDef := range testDefs {
		assert.Equal(
			t,
			testDef.expected,
			voice.Decayed(testDef.balance, factor, testDef.floor),
			fmt.Sprintf("balance %d floor %d", testDef.balance, testDef.floor),
		)
	}
	assert.Equal(
		t,
		uint64(1000),
		voice.Decayed(1000, decimal.NewFromInt(1), 0),
		"factor one never changes a balance",
	)
}

func TestGrantCapsAndTotals(t *testing.T) {
	ledger, _, _, params := newTestLedger(t)
	require.NoError(t, ledger.Grant("alice", 600, nil))
	require.NoError(t, ledger.Grant("alice", 600, nil))
	require.NoError(t, ledger.Grant("bob", 50, nil))
	for _, scope := range ledger.Scopes() {
		balance, err := ledger.Balance(scope, "alice", nil)
		require.NoError(t, err)
		assert.Equal(t, params.VoiceMax, balance)
		total, err := ledger.Total(scope, nil)
		require.NoError(t, err)
		assert.Equal(t, params.VoiceMax+50, total)
	}
	_, err := ledger.Balance("nosuchfund", "alice", nil)
	require.ErrorIs(t, err, voice.ErrUnknownScope)
}

func TestSetCitizenAndChangeTrust(t *testing.T) {
	ledger, _, _, params := newTestLedger(t)
	require.NoError(t, ledger.Grant("alice", 500, nil))
	require.NoError(t, ledger.SetCitizen("alice", nil))
	balances, err := ledger.Balances("alice", nil)
	require.NoError(t, err)
	for _, scope := range ledger.Scopes() {
		assert.Equal(t, params.VoiceCitizen, balances[scope])
	}
	require.NoError(t, ledger.ChangeTrust("alice", false, nil))
	balances, err = ledger.Balances("alice", nil)
	require.NoError(t, err)
	for _, scope := range ledger.Scopes() {
		assert.Zero(t, balances[scope])
		total, err := ledger.Total(scope, nil)
		require.NoError(t, err)
		assert.Zero(t, total)
	}
}

func TestDecayPass(t *testing.T) {
	ctx := context.Background()
	ledger, sched, _, _ := newTestLedger(t)
	require.NoError(t, ledger.Grant("alice", 1000, nil))
	require.NoError(t, ledger.Grant("bob", 100, nil))
	require.NoError(t, ledger.Grant("carol", 1, nil))
	require.NoError(t, ledger.StartDecay(nil))
	require.ErrorIs(t, ledger.StartDecay(nil), scheduler.ErrAlreadyRunning)
	// 6 rows in chunks of 3
	steps, err := sched.Drain(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, steps)
	for _, scope := range ledger.Scopes() {
		balance, err := ledger.Balance(scope, "alice", nil)
		require.NoError(t, err)
		assert.Equal(t, uint64(900), balance)
		balance, err = ledger.Balance(scope, "bob", nil)
		require.NoError(t, err)
		assert.Equal(t, uint64(90), balance)
		balance, err = ledger.Balance(scope, "carol", nil)
		require.NoError(t, err)
		assert.Zero(t, balance)
		total, err := ledger.Total(scope, nil)
		require.NoError(t, err)
		assert.Equal(t, uint64(990), total)
	}
}

func TestActivesPassDropsNonCitizens(t *testing.T) {
	ctx := context.Background()
	ledger, sched, db, _ := newTestLedger(t)
	for i, status := range []string{
		models.StatusCitizen,
		models.StatusResident,
		models.StatusCitizen,
		models.StatusVisitor,
	} {
		account := fmt.Sprintf("user%d", i)
		require.NoError(t, db.CreateParticipant(&models.Participant{
			Account: account,
			Status:  status,
			Kind:    models.KindIndividual,
		}, nil))
		require.NoError(t, ledger.AddActive(account, nil))
	}
	require.NoError(t, ledger.AddActive("ghost", nil))
	require.NoError(t, db.AddBan("user2", time.Now(), nil))
	count, err := db.GetSize(models.SizeActiveUsers, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), count)

	require.NoError(t, ledger.StartActives(nil))
	_, err = sched.Drain(ctx, 0)
	require.NoError(t, err)
	count, err = db.GetSize(models.SizeActiveUsers, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
	active, err := db.IsActive("user0", nil)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestParticipationPass(t *testing.T) {
	ctx := context.Background()
	ledger, sched, db, params := newTestLedger(t)
	require.NoError(t, ledger.SetCitizen("alice", nil))
	require.NoError(t, ledger.AddActive("alice", nil))
	require.NoError(t, ledger.SetCitizen("bob", nil))
	require.NoError(t, ledger.AddActive("bob", nil))
	require.NoError(t, ledger.Grant("visitor", 10, nil))
	require.NoError(t, db.AddParticipation("alice", nil))
	require.NoError(t, db.AddParticipation("alice", nil))
	require.NoError(t, db.AddParticipation("visitor", nil))

	require.NoError(t, ledger.StartParticipation(nil))
	_, err := sched.Drain(ctx, 0)
	require.NoError(t, err)
	for _, scope := range ledger.Scopes() {
		balance, err := ledger.Balance(scope, "alice", nil)
		require.NoError(t, err)
		assert.Equal(t, params.VoiceCitizen+params.VoiceParticipation, balance)
		balance, err = ledger.Balance(scope, "bob", nil)
		require.NoError(t, err)
		assert.Equal(t, params.VoiceCitizen, balance)
		balance, err = ledger.Balance(scope, "visitor", nil)
		require.NoError(t, err)
		assert.Equal(t, uint64(10), balance, "only actives are rewarded")
	}
	for _, account := range []string{"alice", "visitor"} {
		count, err := db.GetParticipation(account, nil)
		require.NoError(t, err)
		assert.Zero(t, count)
	}
}
