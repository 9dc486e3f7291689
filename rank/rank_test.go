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

package rank_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/blinklabs-io/grove/database"
	"github.com/blinklabs-io/grove/database/models"
	"github.com/blinklabs-io/grove/rank"
	"github.com/blinklabs-io/grove/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	testDefs := []struct {
		position uint64
		size     uint64
		expected uint64
	}{
		{0, 1, 100},
		{0, 2, 0},
		{1, 2, 100},
		{0, 450, 0},
		{449, 450, 100},
		{224, 450, 49},
		{5, 3, 100},
	}
	for _, testDef := range testDefs {
		assert.Equal(
			t,
			testDef.expected,
			rank.Percentile(testDef.position, testDef.size),
			fmt.Sprintf("position %d of %d", testDef.position, testDef.size),
		)
	}
}

func setup(t *testing.T, chunkSize int) (*database.Database, *scheduler.Scheduler, *rank.Engine) {
	t.Helper()
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	sched := scheduler.New(scheduler.Config{DB: db})
	engine := rank.New(sched, chunkSize, nil)
	engine.Register(
		rank.KindReputation,
		rank.Populations(db, database.ScoreTableReputation),
	)
	return db, sched, engine
}

func TestRankPopulationInChunks(t *testing.T) {
	db, sched, engine := setup(t, 200)
	const size = 450
	err := db.Transaction(true).Do(func(txn *database.Txn) error {
		for i := range size {
			// Every score appears twice so ties are broken by account
			if err := db.PutScore(
				database.ScoreTableReputation,
				models.KindIndividual,
				fmt.Sprintf("acct%03d", i),
				uint64(1+(size-i)/2),
				txn,
			); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, engine.Start(rank.KindReputation, models.KindIndividual, nil))
	// Other scopes are independent but the same scope is not
	require.ErrorIs(
		t,
		engine.Start(rank.KindReputation, models.KindIndividual, nil),
		scheduler.ErrAlreadyRunning,
	)
	steps, err := sched.Drain(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, steps)

	var ranks []uint64
	var after *database.ScoreEntry
	for {
		page, err := db.ScorePage(
			database.ScoreTableReputation,
			models.KindIndividual,
			after,
			100,
			nil,
		)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, entry := range page {
			ranks = append(ranks, entry.Rank)
		}
		after = &page[len(page)-1]
	}
	require.Len(t, ranks, size)
	assert.Equal(t, uint64(0), ranks[0])
	assert.Equal(t, uint64(100), ranks[size-1])
	for i := 1; i < size; i++ {
		require.GreaterOrEqual(t, ranks[i], ranks[i-1])
		require.Equal(t, rank.Percentile(uint64(i), size), ranks[i])
	}
}

func TestRankSingleMember(t *testing.T) {
	db, sched, engine := setup(t, 200)
	require.NoError(t, db.CreateParticipant(&models.Participant{
		Account: "alice",
		Kind:    models.KindIndividual,
		Status:  models.StatusCitizen,
	}, nil))
	require.NoError(t, db.PutScore(
		database.ScoreTableReputation,
		models.KindIndividual,
		"alice",
		7,
		nil,
	))
	require.NoError(t, engine.Start(rank.KindReputation, models.KindIndividual, nil))
	steps, err := sched.Drain(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, steps)
	p, err := db.GetParticipant("alice", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), p.Rank)
}

func TestRankEmptyPopulation(t *testing.T) {
	_, sched, engine := setup(t, 200)
	require.NoError(t, engine.Start(rank.KindReputation, models.KindOrganization, nil))
	steps, err := sched.Drain(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, steps)
}

func TestLocate(t *testing.T) {
	db, _, _ := setup(t, 200)
	for i, account := range []string{"a", "b", "c"} {
		require.NoError(t, db.PutScore(
			database.ScoreTableReputation,
			models.KindIndividual,
			account,
			uint64(10*(i+1)),
			nil,
		))
	}
	pop := rank.Populations(db, database.ScoreTableReputation)(models.KindIndividual)
	txn := db.Transaction(false)
	defer txn.Release()
	offset, page, err := rank.Locate(txn, pop, "c", nil, 2)
	require.NoError(t, err)
	assert.Equal(t, -1, offset)
	require.Len(t, page, 2)
	offset, _, err = rank.Locate(txn, pop, "c", &page[1], 2)
	require.NoError(t, err)
	assert.Equal(t, 0, offset)
}
