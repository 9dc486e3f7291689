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

package reputation_test

import (
	"context"
	"testing"
	"time"

	"github.com/blinklabs-io/grove/bank"
	"github.com/blinklabs-io/grove/database"
	"github.com/blinklabs-io/grove/database/models"
	"github.com/blinklabs-io/grove/event"
	"github.com/blinklabs-io/grove/internal/config"
	"github.com/blinklabs-io/grove/reputation"
	"github.com/blinklabs-io/grove/scheduler"
	"github.com/blinklabs-io/grove/voice"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	db     *database.Database
	sched  *scheduler.Scheduler
	ledger *bank.MemoryLedger
	voice  *voice.Ledger
	engine *reputation.Engine
	bus    *event.EventBus
	params *config.Params
}

func newTestEnv(t *testing.T, mutate func(p *config.Params)) *testEnv {
	t.Helper()
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	params := config.DefaultParams()
	if mutate != nil {
		mutate(&params)
	}
	require.NoError(t, params.Validate())
	sched := scheduler.New(scheduler.Config{DB: db})
	ledger := bank.NewMemoryLedger()
	outbox := bank.NewOutbox(bank.OutboxConfig{
		DB:        db,
		Ledger:    ledger,
		Scheduler: sched,
	})
	voiceLedger := voice.New(voice.Config{
		DB:        db,
		Scheduler: sched,
		Params:    &params,
	})
	bus := event.NewEventBus(nil, nil)
	t.Cleanup(bus.Stop)
	engine := reputation.New(reputation.Config{
		DB:        db,
		Scheduler: sched,
		Voice:     voiceLedger,
		Outbox:    outbox,
		EventBus:  bus,
		Params:    &params,
	})
	return &testEnv{
		db:     db,
		sched:  sched,
		ledger: ledger,
		voice:  voiceLedger,
		engine: engine,
		bus:    bus,
		params: &params,
	}
}

// do runs fn in a committed transaction
func (e *testEnv) do(t *testing.T, fn func(txn *database.Txn) error) error {
	t.Helper()
	return e.db.Transaction(true).Do(fn)
}

// seed registers an individual with a status and some reputation
func (e *testEnv) seed(t *testing.T, account, status string, rep uint64) {
	t.Helper()
	require.NoError(t, e.do(t, func(txn *database.Txn) error {
		if err := e.engine.Register(account, models.KindIndividual, "", txn); err != nil {
			return err
		}
		if err := e.db.UpdateParticipant(
			account,
			map[string]any{"status": status},
			txn,
		); err != nil {
			return err
		}
		return e.engine.AddRep(account, rep, txn)
	}))
}

func (e *testEnv) drain(t *testing.T) {
	t.Helper()
	_, err := e.sched.Drain(context.Background(), 0)
	require.NoError(t, err)
}

func (e *testEnv) participant(t *testing.T, account string) *models.Participant {
	t.Helper()
	p, err := e.db.GetParticipant(account, nil)
	require.NoError(t, err)
	return p
}

func TestMultiplier(t *testing.T) {
	lo := decimal.RequireFromString("0.5")
	hi := decimal.RequireFromString("1.5")
	assert.True(t, reputation.Multiplier(lo, hi, 0).Equal(lo))
	assert.True(t, reputation.Multiplier(lo, hi, 100).Equal(hi))
	assert.True(t, reputation.Multiplier(lo, hi, 50).Equal(decimal.NewFromInt(1)))
	assert.True(t, reputation.Multiplier(lo, hi, 250).Equal(hi), "rank is clamped")
}

func TestReferralReward(t *testing.T) {
	decay := decimal.NewFromInt(10)
	// 100 + 900 * e^-0.1 = 914.35
	assert.Equal(t, uint64(914), reputation.ReferralReward(0, 100, 1000, decay))
	// 100 + 900 * e^-1 = 431.09
	assert.Equal(t, uint64(431), reputation.ReferralReward(9, 100, 1000, decay))
	assert.Equal(t, uint64(100), reputation.ReferralReward(10000, 100, 1000, decay))
	assert.Equal(t, uint64(100), reputation.ReferralReward(0, 100, 100, decay))
}

func TestRepFloorsAtZeroAndLeavesPopulation(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed(t, "alice", models.StatusVisitor, 30)
	size, err := env.db.GetSize(models.RepSizeID(models.KindIndividual), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), size)
	require.NoError(t, env.do(t, func(txn *database.Txn) error {
		return env.engine.SubRep("alice", 50, txn)
	}))
	assert.Zero(t, env.participant(t, "alice").Reputation)
	entry, err := env.db.GetScore(database.ScoreTableReputation, models.KindIndividual, "alice", nil)
	require.NoError(t, err)
	assert.Nil(t, entry)
	size, err = env.db.GetSize(models.RepSizeID(models.KindIndividual), nil)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestVouchIsCapped(t *testing.T) {
	env := newTestEnv(t, func(p *config.Params) {
		p.VouchCap = 30
		p.VouchResidentPoints = 10
		p.VouchCitizenPoints = 40
	})
	env.seed(t, "res", models.StatusResident, 0)
	env.seed(t, "cit1", models.StatusCitizen, 0)
	env.seed(t, "cit2", models.StatusCitizen, 0)
	env.seed(t, "target", models.StatusVisitor, 0)
	for _, sponsor := range []string{"res", "cit1", "cit2"} {
		require.NoError(t, env.do(t, func(txn *database.Txn) error {
			return env.engine.Vouch(sponsor, "target", txn)
		}))
	}
	total, err := env.db.GetVouchTotal("target", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(90), total.VouchPoints)
	assert.Equal(t, uint64(30), total.RepPoints)
	assert.Equal(t, uint64(30), env.participant(t, "target").Reputation)

	err = env.do(t, func(txn *database.Txn) error {
		return env.engine.Vouch("cit1", "target", txn)
	})
	require.ErrorIs(t, err, reputation.ErrAlreadyVouched)
}

func TestVouchRejections(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed(t, "visitor", models.StatusVisitor, 0)
	env.seed(t, "citizen", models.StatusCitizen, 0)
	env.seed(t, "target", models.StatusVisitor, 0)
	require.NoError(t, env.do(t, func(txn *database.Txn) error {
		if err := env.engine.Register("org", models.KindOrganization, "", txn); err != nil {
			return err
		}
		return env.db.UpdateParticipant("org", map[string]any{"status": models.StatusCitizen}, txn)
	}))
	testDefs := []struct {
		sponsor string
		account string
		wantErr error
	}{
		{"citizen", "citizen", reputation.ErrSelfVouch},
		{"visitor", "target", reputation.ErrNotEligible},
		{"org", "target", reputation.ErrNotEligible},
		{"citizen", "nobody", models.ErrParticipantNotFound},
	}
	for _, testDef := range testDefs {
		err := env.do(t, func(txn *database.Txn) error {
			return env.engine.Vouch(testDef.sponsor, testDef.account, txn)
		})
		require.ErrorIs(t, err, testDef.wantErr, "%s -> %s", testDef.sponsor, testDef.account)
	}
	require.NoError(t, env.do(t, func(txn *database.Txn) error {
		return env.engine.Ban("target", txn)
	}))
	err := env.do(t, func(txn *database.Txn) error {
		return env.engine.Vouch("citizen", "target", txn)
	})
	require.ErrorIs(t, err, reputation.ErrBanned)
}

func TestFlagThresholdPunishesOnce(t *testing.T) {
	env := newTestEnv(t, func(p *config.Params) {
		p.FlagThreshold = 100
		p.FlagCitizenPoints = 60
	})
	env.seed(t, "sponsor", models.StatusCitizen, 50)
	env.seed(t, "target", models.StatusCitizen, 200)
	env.seed(t, "vouchee", models.StatusVisitor, 0)
	env.seed(t, "flagger1", models.StatusCitizen, 50)
	env.seed(t, "flagger2", models.StatusCitizen, 50)
	env.seed(t, "flagger3", models.StatusVisitor, 50)
	require.NoError(t, env.do(t, func(txn *database.Txn) error {
		if err := env.engine.Vouch("sponsor", "target", txn); err != nil {
			return err
		}
		return env.engine.Vouch("target", "vouchee", txn)
	}))
	require.Equal(t, uint64(220), env.participant(t, "target").Reputation)
	require.Equal(t, uint64(20), env.participant(t, "vouchee").Reputation)

	flag := func(from string) error {
		return env.do(t, func(txn *database.Txn) error {
			return env.engine.Flag(from, "target", txn)
		})
	}
	require.NoError(t, flag("flagger1"))
	assert.Equal(t, uint64(220), env.participant(t, "target").Reputation)
	require.ErrorIs(t, flag("flagger1"), reputation.ErrAlreadyFlagged)
	require.ErrorIs(t, flag("flagger3"), reputation.ErrNotEligible)
	require.NoError(t, flag("flagger2"))
	assert.Equal(t, uint64(100), env.participant(t, "target").Reputation)
	total, err := env.db.GetFlagTotal("target", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(120), total.Total)
	assert.Equal(t, uint64(120), total.Removed)

	// Withdrawing and re-raising a flag does not punish again
	require.NoError(t, env.do(t, func(txn *database.Txn) error {
		return env.engine.RemoveFlag("flagger1", "target", txn)
	}))
	require.NoError(t, flag("flagger1"))
	assert.Equal(t, uint64(100), env.participant(t, "target").Reputation)

	env.drain(t)
	// The sponsor lost 10% of the punishment
	assert.Equal(t, uint64(38), env.participant(t, "sponsor").Reputation)
	// The punished account's vouch no longer counts
	assert.Zero(t, env.participant(t, "vouchee").Reputation)
	edge, err := env.db.GetVouch("target", "vouchee", nil)
	require.NoError(t, err)
	assert.Zero(t, edge.Points)
	// Still the highest ranked account
	assert.Equal(t, models.StatusCitizen, env.participant(t, "target").Status)
}

func TestPunishmentFansOutInBatches(t *testing.T) {
	env := newTestEnv(t, func(p *config.Params) {
		p.BatchSize = 2
		p.FlagThreshold = 100
		p.FlagCitizenPoints = 60
	})
	sponsors := []string{"s1", "s2", "s3", "s4", "s5"}
	vouchees := []string{"v1", "v2", "v3", "v4", "v5"}
	env.seed(t, "target", models.StatusCitizen, 200)
	for _, account := range sponsors {
		env.seed(t, account, models.StatusCitizen, 50)
	}
	for _, account := range vouchees {
		env.seed(t, account, models.StatusVisitor, 0)
	}
	env.seed(t, "flagger1", models.StatusCitizen, 50)
	env.seed(t, "flagger2", models.StatusCitizen, 50)
	require.NoError(t, env.do(t, func(txn *database.Txn) error {
		for _, sponsor := range sponsors {
			if err := env.engine.Vouch(sponsor, "target", txn); err != nil {
				return err
			}
		}
		for _, vouchee := range vouchees {
			if err := env.engine.Vouch("target", vouchee, txn); err != nil {
				return err
			}
		}
		return nil
	}))
	env.drain(t)
	// Incoming vouches are capped
	require.Equal(t, uint64(250), env.participant(t, "target").Reputation)

	for _, flagger := range []string{"flagger1", "flagger2"} {
		require.NoError(t, env.do(t, func(txn *database.Txn) error {
			return env.engine.Flag(flagger, "target", txn)
		}))
	}
	assert.Equal(t, uint64(130), env.participant(t, "target").Reputation)
	pending, err := env.sched.Pending()
	require.NoError(t, err)
	fanOut := make(map[string]string)
	for _, task := range pending {
		if task.Kind == reputation.KindPunishVouchers || task.Kind == reputation.KindPunishVouched {
			fanOut[task.Kind] = task.ID
		}
	}
	require.Len(t, fanOut, 2)

	env.drain(t)
	for _, sponsor := range sponsors {
		assert.Equal(t, uint64(38), env.participant(t, sponsor).Reputation, sponsor)
	}
	for _, vouchee := range vouchees {
		assert.Zero(t, env.participant(t, vouchee).Reputation, vouchee)
		edge, err := env.db.GetVouch("target", vouchee, nil)
		require.NoError(t, err)
		assert.Zero(t, edge.Points, vouchee)
	}
	// Five edges in batches of two take three steps each
	txn := env.db.Transaction(false)
	defer txn.Rollback() //nolint:errcheck
	for kind, id := range fanOut {
		checkpoint, err := env.db.GetTaskCheckpoint(id, txn)
		require.NoError(t, err)
		require.NotNil(t, checkpoint, kind)
		assert.True(t, checkpoint.Completed, kind)
		assert.Equal(t, uint64(3), checkpoint.Steps, kind)
	}
}

func TestSelfFlagIsNoop(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed(t, "alice", models.StatusCitizen, 10)
	require.NoError(t, env.do(t, func(txn *database.Txn) error {
		return env.engine.Flag("alice", "alice", txn)
	}))
	_, err := env.db.GetFlag("alice", "alice", nil)
	require.ErrorIs(t, err, models.ErrFlagNotFound)
}

func TestEvalDemote(t *testing.T) {
	env := newTestEnv(t, func(p *config.Params) {
		p.RankChunkSize = 2
	})
	for i, account := range []string{"m1", "m2", "m3", "m4", "m5"} {
		env.seed(t, account, models.StatusCitizen, uint64(10*(i+1))) //nolint:gosec
	}
	// Sorted position 2 of 6 is rank 40
	env.seed(t, "target", models.StatusCitizen, 25)
	env.seed(t, "norep", models.StatusResident, 0)
	for _, account := range []string{"target", "norep"} {
		_, err := env.sched.Enqueue(reputation.KindEvalDemote, account, nil, nil)
		require.NoError(t, err)
	}
	statusCh := make(chan event.ParticipantStatusEvent, 10)
	env.bus.SubscribeFunc(event.ParticipantStatusEventType, func(evt event.Event) {
		statusCh <- evt.Data.(event.ParticipantStatusEvent)
	})
	env.drain(t)
	target := env.participant(t, "target")
	assert.Equal(t, uint64(40), target.Rank)
	assert.Equal(t, models.StatusResident, target.Status)
	assert.Equal(t, models.StatusVisitor, env.participant(t, "norep").Status)
	for range 2 {
		select {
		case evt := <-statusCh:
			assert.Contains(t, []string{"target", "norep"}, evt.Account)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for status event")
		}
	}
}

func TestDelegation(t *testing.T) {
	env := newTestEnv(t, func(p *config.Params) {
		p.DelegationMaxDepth = 2
	})
	for _, account := range []string{"a", "b", "c", "d", "e"} {
		env.seed(t, account, models.StatusCitizen, 10)
	}
	delegate := func(delegator, delegatee string) error {
		return env.do(t, func(txn *database.Txn) error {
			return env.engine.DelegateFlag(delegator, delegatee, txn)
		})
	}
	require.ErrorIs(t, delegate("a", "a"), reputation.ErrSelfDelegation)
	require.NoError(t, delegate("a", "b"))
	require.NoError(t, delegate("b", "c"))
	require.ErrorIs(t, delegate("c", "a"), reputation.ErrDelegationCycle)
	require.ErrorIs(t, delegate("d", "a"), reputation.ErrDelegationDepth)
	require.NoError(t, delegate("e", "b"))

	undelegate := func(actor, delegator string) error {
		return env.do(t, func(txn *database.Txn) error {
			return env.engine.UndelegateFlag(actor, delegator, txn)
		})
	}
	require.ErrorIs(t, undelegate("d", "a"), reputation.ErrNotDelegationParty)
	require.NoError(t, undelegate("b", "a"))
	require.ErrorIs(t, undelegate("a", "a"), models.ErrDelegationNotFound)
	require.NoError(t, undelegate("e", "e"))
}

func TestMimicReplaysFlags(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed(t, "lead", models.StatusCitizen, 10)
	env.seed(t, "follower", models.StatusCitizen, 10)
	env.seed(t, "visitor", models.StatusVisitor, 10)
	env.seed(t, "early", models.StatusResident, 10)
	env.seed(t, "second", models.StatusResident, 10)
	env.seed(t, "target", models.StatusCitizen, 10)
	require.NoError(t, env.do(t, func(txn *database.Txn) error {
		for _, delegator := range []string{"follower", "visitor", "early"} {
			if err := env.engine.DelegateFlag(delegator, "lead", txn); err != nil {
				return err
			}
		}
		if err := env.engine.DelegateFlag("second", "follower", txn); err != nil {
			return err
		}
		return env.engine.Flag("early", "target", txn)
	}))
	env.drain(t)

	require.NoError(t, env.do(t, func(txn *database.Txn) error {
		return env.engine.Flag("lead", "target", txn)
	}))
	env.drain(t)
	for _, account := range []string{"lead", "follower", "early", "second"} {
		_, err := env.db.GetFlag(account, "target", nil)
		require.NoError(t, err, account)
	}
	_, err := env.db.GetFlag("visitor", "target", nil)
	require.ErrorIs(t, err, models.ErrFlagNotFound)
	total, err := env.db.GetFlagTotal("target", nil)
	require.NoError(t, err)
	p := env.params
	assert.Equal(t, 2*p.FlagCitizenPoints+2*p.FlagResidentPoints, total.Total)

	require.NoError(t, env.do(t, func(txn *database.Txn) error {
		return env.engine.RemoveFlag("lead", "target", txn)
	}))
	env.drain(t)
	for _, account := range []string{"lead", "follower", "early", "second"} {
		_, err := env.db.GetFlag(account, "target", nil)
		require.ErrorIs(t, err, models.ErrFlagNotFound, account)
	}
	total, err = env.db.GetFlagTotal("target", nil)
	require.NoError(t, err)
	assert.Zero(t, total.Total)
}

func TestPromoteRewards(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.ledger.Mint(env.params.TreasuryAccount, 10000)
	env.seed(t, "referrer", models.StatusCitizen, 5)
	env.seed(t, "sponsor", models.StatusCitizen, 5)
	require.NoError(t, env.do(t, func(txn *database.Txn) error {
		if err := env.engine.Register("invited", models.KindIndividual, "referrer", txn); err != nil {
			return err
		}
		return env.engine.Vouch("sponsor", "invited", txn)
	}))
	require.NoError(t, env.do(t, func(txn *database.Txn) error {
		return env.engine.Promote(ctx, "invited", models.StatusResident, txn)
	}))
	err := env.do(t, func(txn *database.Txn) error {
		return env.engine.Promote(ctx, "invited", models.StatusResident, txn)
	})
	require.ErrorIs(t, err, reputation.ErrInvalidStatus)
	env.drain(t)

	referrer := env.participant(t, "referrer")
	assert.Equal(t, uint64(5)+env.params.RefRepReward, referrer.Reputation)
	assert.Equal(t, env.params.RefCBSReward, referrer.CBS)
	balance, err := env.ledger.Balance(ctx, "referrer")
	require.NoError(t, err)
	assert.Equal(t, uint64(914), balance)
	assert.Equal(
		t,
		uint64(5)+env.params.VouchRewardResident,
		env.participant(t, "sponsor").Reputation,
	)

	require.NoError(t, env.do(t, func(txn *database.Txn) error {
		return env.engine.Promote(ctx, "invited", models.StatusCitizen, txn)
	}))
	env.drain(t)
	balances, err := env.voice.Balances("invited", nil)
	require.NoError(t, err)
	for _, scope := range env.voice.Scopes() {
		assert.Equal(t, env.params.VoiceCitizen, balances[scope])
	}
	active, err := env.db.IsActive("invited", nil)
	require.NoError(t, err)
	assert.True(t, active)
	// The first citizen promotion pays the full curve again
	balance, err = env.ledger.Balance(ctx, "referrer")
	require.NoError(t, err)
	assert.Equal(t, uint64(914*2), balance)
}

func TestOrganizationReferralPaysAmbassador(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.ledger.Mint(env.params.TreasuryAccount, 10000)
	require.NoError(t, env.do(t, func(txn *database.Txn) error {
		steps := []struct{ account, kind, referrer string }{
			{"ambassador", models.KindIndividual, ""},
			{"owner", models.KindIndividual, "ambassador"},
			{"org", models.KindOrganization, "owner"},
			{"member", models.KindIndividual, "org"},
		}
		for _, step := range steps {
			if err := env.engine.Register(step.account, step.kind, step.referrer, txn); err != nil {
				return err
			}
		}
		return env.engine.Promote(ctx, "member", models.StatusResident, txn)
	}))
	env.drain(t)
	for account, expected := range map[string]uint64{
		"org":        env.params.OrgRefReward,
		"ambassador": env.params.AmbassadorReward,
		"owner":      0,
	} {
		balance, err := env.ledger.Balance(ctx, account)
		require.NoError(t, err)
		assert.Equal(t, expected, balance, account)
	}
	assert.Equal(t, env.params.RefCBSReward, env.participant(t, "org").CBS)
	assert.Zero(t, env.participant(t, "org").Reputation)
}

func TestRewardSkippedWhenTreasuryShort(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.ledger.Mint(env.params.TreasuryAccount, 10)
	require.NoError(t, env.do(t, func(txn *database.Txn) error {
		if err := env.engine.Register("referrer", models.KindIndividual, "", txn); err != nil {
			return err
		}
		if err := env.engine.Register("invited", models.KindIndividual, "referrer", txn); err != nil {
			return err
		}
		return env.engine.Promote(ctx, "invited", models.StatusResident, txn)
	}))
	pending, err := env.db.PendingTransfers(10, nil)
	require.NoError(t, err)
	assert.Empty(t, pending)
	// Reputation and community score are still credited
	assert.Equal(t, env.params.RefRepReward, env.participant(t, "referrer").Reputation)
}

func TestBanTree(t *testing.T) {
	env := newTestEnv(t, func(p *config.Params) {
		p.BatchSize = 1
	})
	require.NoError(t, env.do(t, func(txn *database.Txn) error {
		steps := []struct{ account, referrer string }{
			{"root", ""},
			{"a", "root"},
			{"b", "a"},
			{"c", "b"},
			{"b2", "a"},
			{"d", "root"},
		}
		for _, step := range steps {
			if err := env.engine.Register(step.account, models.KindIndividual, step.referrer, txn); err != nil {
				return err
			}
		}
		return env.engine.BanTree("a", txn)
	}))
	env.drain(t)
	for account, banned := range map[string]bool{
		"root": false,
		"a":    true,
		"b":    true,
		"b2":   true,
		"c":    true,
		"d":    false,
	} {
		isBanned, err := env.db.IsBanned(account, nil)
		require.NoError(t, err)
		assert.Equal(t, banned, isBanned, account)
		assert.Equal(t, banned, env.participant(t, account).Banned, account)
	}
}
