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

package database_test

import (
	"errors"
	"testing"
	"time"

	"github.com/blinklabs-io/grove/database"
	"github.com/blinklabs-io/grove/database/models"
	"github.com/blinklabs-io/grove/database/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func TestTxnRollbackDiscardsWrites(t *testing.T) {
	db := newTestDB(t)
	txn := db.Transaction(true)
	require.NoError(t, db.CreateParticipant(&models.Participant{
		Account: "alice",
		Kind:    models.KindIndividual,
		Status:  models.StatusVisitor,
	}, txn))
	require.NoError(t, txn.Rollback())

	_, err := db.GetParticipant("alice", nil)
	require.ErrorIs(t, err, models.ErrParticipantNotFound)
}

func TestTxnDoCommitsOnSuccess(t *testing.T) {
	db := newTestDB(t)
	err := db.Transaction(true).Do(func(txn *database.Txn) error {
		if err := db.CreateParticipant(&models.Participant{
			Account: "alice",
			Kind:    models.KindIndividual,
			Status:  models.StatusVisitor,
		}, txn); err != nil {
			return err
		}
		return db.AddBan("alice", time.Now(), txn)
	})
	require.NoError(t, err)

	p, err := db.GetParticipant("alice", nil)
	require.NoError(t, err)
	assert.True(t, p.Banned)
	banned, err := db.IsBanned("alice", nil)
	require.NoError(t, err)
	assert.True(t, banned)

	metadataTs, err := db.Metadata().GetCommitTimestamp()
	require.NoError(t, err)
	blobTs, err := db.Blob().GetCommitTimestamp()
	require.NoError(t, err)
	assert.NotZero(t, metadataTs)
	assert.Equal(t, metadataTs, blobTs)
}

func TestTxnDoRollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	boom := errors.New("boom")
	err := db.Transaction(true).Do(func(txn *database.Txn) error {
		if err := db.SetSize("test", 5, txn); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	size, err := db.GetSize("test", nil)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestCreateParticipantDuplicate(t *testing.T) {
	db := newTestDB(t)
	p := &models.Participant{Account: "bob", Kind: models.KindOrganization}
	require.NoError(t, db.CreateParticipant(p, nil))
	err := db.CreateParticipant(
		&models.Participant{Account: "bob", Kind: models.KindOrganization},
		nil,
	)
	require.ErrorIs(t, err, models.ErrParticipantExists)
}

func TestCommitTimestampBlobBehindIsRepaired(t *testing.T) {
	dataDir := t.TempDir()
	db, err := database.New(&database.Config{DataDir: dataDir})
	require.NoError(t, err)
	require.NoError(t, db.SetSize("test", 1, nil))
	metadataTs, err := db.Metadata().GetCommitTimestamp()
	require.NoError(t, err)

	// Simulate a lost blob commit
	blobTxn := db.Blob().NewTransaction(true)
	require.NoError(t, db.Blob().SetCommitTimestamp(metadataTs-1000, blobTxn))
	require.NoError(t, blobTxn.Commit())
	require.NoError(t, db.Close())

	db, err = database.New(&database.Config{DataDir: dataDir})
	require.NoError(t, err)
	defer db.Close()
	blobTs, err := db.Blob().GetCommitTimestamp()
	require.NoError(t, err)
	assert.Equal(t, metadataTs, blobTs)
}

func TestCommitTimestampBlobAheadFails(t *testing.T) {
	dataDir := t.TempDir()
	db, err := database.New(&database.Config{DataDir: dataDir})
	require.NoError(t, err)
	require.NoError(t, db.SetSize("test", 1, nil))
	metadataTs, err := db.Metadata().GetCommitTimestamp()
	require.NoError(t, err)

	blobTxn := db.Blob().NewTransaction(true)
	require.NoError(t, db.Blob().SetCommitTimestamp(metadataTs+1000, blobTxn))
	require.NoError(t, blobTxn.Commit())
	require.NoError(t, db.Close())

	db, err = database.New(&database.Config{DataDir: dataDir})
	require.Error(t, err)
	require.NotNil(t, db)
	defer db.Close()
	var tsErr database.CommitTimestampError
	require.ErrorAs(t, err, &tsErr)
	assert.Equal(t, metadataTs, tsErr.MetadataTimestamp)
	assert.Equal(t, metadataTs+1000, tsErr.BlobTimestamp)
}

func TestTaskQueueOrderAndLock(t *testing.T) {
	db := newTestDB(t)
	first := &models.Task{ID: "t1", Kind: "rankreps", Scope: "individual"}
	second := &models.Task{ID: "t2", Kind: "decay", Scope: "voice"}
	require.NoError(t, db.EnqueueTask(first, nil))
	require.NoError(t, db.EnqueueTask(second, nil))
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)

	err := db.EnqueueTask(
		&models.Task{ID: "t3", Kind: "rankreps", Scope: "individual"},
		nil,
	)
	require.ErrorIs(t, err, database.ErrTaskExists)

	// A different scope of the same kind is independent
	require.NoError(t, db.EnqueueTask(
		&models.Task{ID: "t4", Kind: "rankreps", Scope: "organization"},
		nil,
	))

	tasks, err := db.Tasks(nil)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "t1", tasks[0].ID)
	assert.Equal(t, "t2", tasks[1].ID)
	assert.Equal(t, "t4", tasks[2].ID)

	txn := db.Transaction(true)
	next, err := db.NextTask(txn, nil)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "t1", next.ID)
	next.Cursor = []byte("alice")
	next.Steps++
	require.NoError(t, db.UpdateTask(next, txn))
	require.NoError(t, txn.Commit())

	tasks, err = db.Tasks(nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("alice"), tasks[0].Cursor)
	assert.Equal(t, uint64(1), tasks[0].Steps)

	txn = db.Transaction(true)
	require.NoError(t, db.DeleteTask(tasks[0], txn))
	require.NoError(t, txn.Commit())
	// Lock is released with the task
	require.NoError(t, db.EnqueueTask(
		&models.Task{ID: "t5", Kind: "rankreps", Scope: "individual"},
		nil,
	))
	tasks, err = db.Tasks(nil)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "t5", tasks[2].ID)
}

func TestRequeueTaskMovesToTail(t *testing.T) {
	db := newTestDB(t)
	first := &models.Task{ID: "t1", Kind: "relaytransfers", Scope: "outbox"}
	second := &models.Task{ID: "t2", Kind: "decayvoices", Scope: "campaign"}
	require.NoError(t, db.EnqueueTask(first, nil))
	require.NoError(t, db.EnqueueTask(second, nil))

	first.RetryAt = time.Now().Add(time.Hour)
	require.NoError(t, db.RequeueTask(first, nil))
	assert.Equal(t, uint64(3), first.Seq)
	tasks, err := db.Tasks(nil)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "t2", tasks[0].ID)
	assert.Equal(t, "t1", tasks[1].ID)

	// The lock survives the move
	err = db.EnqueueTask(
		&models.Task{ID: "t3", Kind: "relaytransfers", Scope: "outbox"},
		nil,
	)
	require.ErrorIs(t, err, database.ErrTaskExists)

	txn := db.Transaction(false)
	defer txn.Rollback() //nolint:errcheck
	next, err := db.NextTask(txn, func(task *models.Task) bool {
		return task.ID != "t2"
	})
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "t1", next.ID)
	next, err = db.NextTask(txn, func(*models.Task) bool { return false })
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestTaskCheckpoints(t *testing.T) {
	db := newTestDB(t)
	txn := db.Transaction(true)
	cp, err := db.GetTaskCheckpoint("t1", txn)
	require.NoError(t, err)
	assert.Nil(t, cp)
	require.NoError(t, db.SetTaskCheckpoint(&models.TaskCheckpoint{
		TaskID: "t1",
		Kind:   "decay",
		Scope:  "voice",
		Cursor: []byte{0x01},
		Steps:  1,
	}, txn))
	require.NoError(t, db.SetTaskCheckpoint(&models.TaskCheckpoint{
		TaskID:    "t1",
		Kind:      "decay",
		Scope:     "voice",
		Cursor:    []byte{0x02},
		Steps:     2,
		Completed: true,
	}, txn))
	cp, err = db.GetTaskCheckpoint("t1", txn)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, uint64(2), cp.Steps)
	assert.Equal(t, []byte{0x02}, cp.Cursor)
	assert.True(t, cp.Completed)

	pruned, err := db.PruneTaskCheckpoints(time.Now().Add(-time.Hour), txn)
	require.NoError(t, err)
	assert.Zero(t, pruned)
	pruned, err = db.PruneTaskCheckpoints(time.Now().Add(time.Hour), txn)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
	require.NoError(t, txn.Commit())
}

func TestScorePopulation(t *testing.T) {
	db := newTestDB(t)
	table := database.ScoreTableReputation
	scope := models.KindIndividual
	scores := map[string]uint64{
		"carol": 10,
		"alice": 10,
		"dave":  5,
		"bob":   30,
	}
	for account, score := range scores {
		require.NoError(t, db.PutScore(table, scope, account, score, nil))
	}
	size, err := db.GetSize(table.SizeID(scope), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), size)

	var order []string
	var after *database.ScoreEntry
	for {
		page, err := db.ScorePage(table, scope, after, 2, nil)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, entry := range page {
			order = append(order, entry.Account)
		}
		after = &page[len(page)-1]
	}
	assert.Equal(t, []string{"dave", "alice", "carol", "bob"}, order)

	// Zero leaves the population
	require.NoError(t, db.PutScore(table, scope, "dave", 0, nil))
	entry, err := db.GetScore(table, scope, "dave", nil)
	require.NoError(t, err)
	assert.Nil(t, entry)
	size, err = db.GetSize(table.SizeID(scope), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), size)

	require.NoError(t, db.SetScoreRank(table, scope, "bob", 100, nil))
	entry, err = db.GetScore(table, scope, "bob", nil)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, uint64(100), entry.Rank)

	// The community population is counted separately
	cbsSize, err := db.GetSize(
		database.ScoreTableCommunity.SizeID(scope),
		nil,
	)
	require.NoError(t, err)
	assert.Zero(t, cbsSize)
}

func TestZeroScoreClearsParticipantRank(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CreateParticipant(&models.Participant{
		Account: "erin",
		Status:  models.StatusResident,
		Kind:    models.KindIndividual,
	}, nil))
	scope := models.KindIndividual

	for _, table := range []database.ScoreTable{
		database.ScoreTableReputation,
		database.ScoreTableCommunity,
	} {
		require.NoError(t, db.PutScore(table, scope, "erin", 40, nil))
		require.NoError(t, db.SetScoreRank(table, scope, "erin", 75, nil))
	}
	p, err := db.GetParticipant("erin", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(75), p.Rank)
	assert.Equal(t, uint64(75), p.CBSRank)

	require.NoError(t, db.PutScore(database.ScoreTableReputation, scope, "erin", 0, nil))
	p, err = db.GetParticipant("erin", nil)
	require.NoError(t, err)
	assert.Zero(t, p.Rank)
	assert.Equal(t, uint64(75), p.CBSRank)

	require.NoError(t, db.PutScore(database.ScoreTableCommunity, scope, "erin", 0, nil))
	p, err = db.GetParticipant("erin", nil)
	require.NoError(t, err)
	assert.Zero(t, p.CBSRank)
}

func TestChangeSizeClampsAtZero(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.ChangeSize("test", 2, nil))
	require.NoError(t, db.ChangeSize("test", -5, nil))
	size, err := db.GetSize("test", nil)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestVouchEdges(t *testing.T) {
	db := newTestDB(t)
	for _, v := range []models.Vouch{
		{Sponsor: "s1", Account: "alice", Points: 10},
		{Sponsor: "s2", Account: "alice", Points: 40},
		{Sponsor: "s1", Account: "bob", Points: 5},
	} {
		require.NoError(t, db.CreateVouch(&v, nil))
	}
	sum, err := db.SumVouchPoints("alice", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), sum)
	sum, err = db.SumVouchPoints("nobody", nil)
	require.NoError(t, err)
	assert.Zero(t, sum)

	out, err := db.VouchesBySponsor("s1", "", 10, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "alice", out[0].Account)
	assert.Equal(t, "bob", out[1].Account)

	in, err := db.VouchesByAccount("alice", "s1", 10, nil)
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "s2", in[0].Sponsor)

	require.NoError(t, db.SetVouchPoints("s2", "alice", 0, nil))
	sum, err = db.SumVouchPoints("alice", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), sum)

	_, err = db.GetVouch("s2", "bob", nil)
	require.ErrorIs(t, err, models.ErrVouchNotFound)

	total, err := db.GetVouchTotal("alice", nil)
	require.NoError(t, err)
	assert.Zero(t, total.VouchPoints)
	total.VouchPoints = 10
	total.RepPoints = 10
	require.NoError(t, db.SetVouchTotal(total, nil))
	total.RepPoints = 20
	require.NoError(t, db.SetVouchTotal(total, nil))
	total, err = db.GetVouchTotal("alice", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), total.RepPoints)
}

func TestFlagsAndDelegations(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CreateFlag(
		&models.Flag{Flagger: "alice", Target: "mallory", Points: 60},
		nil,
	))
	flag, err := db.GetFlag("alice", "mallory", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), flag.Points)
	require.NoError(t, db.DeleteFlag("alice", "mallory", nil))
	require.ErrorIs(
		t,
		db.DeleteFlag("alice", "mallory", nil),
		models.ErrFlagNotFound,
	)

	require.NoError(t, db.SetFlagTotal(
		&models.FlagTotal{Account: "mallory", Total: 120, Removed: 0},
		nil,
	))
	require.NoError(t, db.SetFlagTotal(
		&models.FlagTotal{Account: "mallory", Total: 120, Removed: 120},
		nil,
	))
	total, err := db.GetFlagTotal("mallory", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(120), total.Removed)

	require.NoError(t, db.SetDelegation("bob", "alice", nil))
	require.NoError(t, db.SetDelegation("carol", "alice", nil))
	require.NoError(t, db.SetDelegation("carol", "dave", nil))
	delegatee, err := db.GetDelegatee("carol", nil)
	require.NoError(t, err)
	assert.Equal(t, "dave", delegatee)
	delegators, err := db.DelegatorsPage("alice", "", 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, delegators)
	require.NoError(t, db.DeleteDelegation("bob", nil))
	require.ErrorIs(
		t,
		db.DeleteDelegation("bob", nil),
		models.ErrDelegationNotFound,
	)
}

func TestVoiceAndParticipation(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.SetVoice("main", "alice", 1000, nil))
	require.NoError(t, db.SetVoice("main", "bob", 500, nil))
	require.NoError(t, db.SetVoice("main", "alice", 900, nil))
	voice, err := db.GetVoice("main", "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(900), voice)
	total, err := db.TotalVoice("main", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1400), total)

	page, err := db.VoicePage(0, 1, nil)
	require.NoError(t, err)
	require.Len(t, page, 1)
	page, err = db.VoicePage(page[0].ID, 10, nil)
	require.NoError(t, err)
	require.Len(t, page, 1)

	now := time.Now()
	require.NoError(t, db.AddActive("alice", now, nil))
	require.NoError(t, db.AddActive("alice", now, nil))
	count, err := db.CountActives(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	require.NoError(t, db.AddParticipation("alice", nil))
	require.NoError(t, db.AddParticipation("alice", nil))
	n, err := db.GetParticipation("alice", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)
	require.NoError(t, db.ClearParticipation("alice", nil))
	n, err = db.GetParticipation("alice", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProposalStakeAndVotes(t *testing.T) {
	db := newTestDB(t)
	prop := &models.Proposal{
		Creator:        "alice",
		Recipient:      "alice",
		Fund:           "milestone",
		Stage:          models.StageStaged,
		Status:         models.StatusOpen,
		Quantity:       1000,
		PayPercentages: types.Percentages{25, 75},
	}
	require.NoError(t, db.CreateProposal(prop, nil))
	require.NotZero(t, prop.ID)

	require.NoError(t, db.AddStakeContribution(prop.ID, "milestone.fund", "bob", 100, nil))
	require.NoError(t, db.AddStakeContribution(prop.ID, "milestone.fund", "bob", 50, nil))
	require.NoError(t, db.AddStakeContribution(prop.ID, "milestone.fund", "carol", 10, nil))
	require.NoError(t, db.AddStakeContribution(prop.ID, "milestone.fund", "dave", 5, nil))
	stakes, err := db.StakeContributions(prop.ID, nil)
	require.NoError(t, err)
	require.Len(t, stakes, 3)
	assert.Equal(t, uint64(150), stakes[0].Amount)
	escrowed, err := db.EscrowedStake("milestone.fund", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(165), escrowed)

	page, err := db.StakeContributionsPage(prop.ID, "bob", 1, nil)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "carol", page[0].Contributor)
	require.NoError(t, db.DeleteStakeContribution(page[0].ID, nil))
	escrowed, err = db.EscrowedStake("milestone.fund", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(155), escrowed)

	require.NoError(t, db.SetVote(&models.Vote{
		ProposalID: prop.ID,
		Voter:      "bob",
		Direction:  models.VoteFavour,
		Weight:     30,
	}, nil))
	require.NoError(t, db.SetVote(&models.Vote{
		ProposalID: prop.ID,
		Voter:      "bob",
		Direction:  models.VoteAgainst,
		Weight:     20,
	}, nil))
	vote, err := db.GetVote(prop.ID, "bob", nil)
	require.NoError(t, err)
	require.NotNil(t, vote)
	assert.Equal(t, models.VoteAgainst, vote.Direction)
	assert.Equal(t, uint64(20), vote.Weight)

	got, err := db.GetProposal(prop.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, types.Percentages{25, 75}, got.PayPercentages)
	assert.False(t, got.IsLinear())

	count, err := db.CountProposals(models.StageStaged, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	require.NoError(t, db.DeleteProposal(prop.ID, nil))
	_, err = db.GetProposal(prop.ID, nil)
	require.ErrorIs(t, err, models.ErrProposalNotFound)
	vote, err = db.GetVote(prop.ID, "bob", nil)
	require.NoError(t, err)
	assert.Nil(t, vote)
	// Stake outlives the proposal until it is refunded
	stakes, err = db.StakeContributions(prop.ID, nil)
	require.NoError(t, err)
	assert.Len(t, stakes, 2)
}

func TestCycleSingleton(t *testing.T) {
	db := newTestDB(t)
	cycle, err := db.GetCycle(nil)
	require.NoError(t, err)
	assert.Zero(t, cycle.Index)
	cycle.Index = 3
	cycle.QuorumPct = 42
	require.NoError(t, db.SetCycle(cycle, nil))
	cycle, err = db.GetCycle(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), cycle.Index)
	assert.Equal(t, uint64(42), cycle.QuorumPct)
}

func TestTransferOutbox(t *testing.T) {
	db := newTestDB(t)
	first := &models.Transfer{
		Kind:      models.TransferKindSend,
		Sender:    "treasury",
		Recipient: "alice",
		Amount:    100,
		CreatedAt: time.Now().Add(-time.Minute),
	}
	second := &models.Transfer{
		Kind:   models.TransferKindRetire,
		Sender: "treasury",
		Amount: 5,
	}
	require.NoError(t, db.AddTransfer(first, nil))
	require.NoError(t, db.AddTransfer(second, nil))
	assert.NotEmpty(t, first.ID)

	pending, err := db.PendingTransfers(10, nil)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)

	require.NoError(t, db.MarkTransferSent(first.ID, time.Now(), nil))
	pending, err = db.PendingTransfers(10, nil)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)
}
