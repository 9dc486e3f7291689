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

package grove_test

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/grove"
	"github.com/blinklabs-io/grove/bank"
	"github.com/blinklabs-io/grove/database/models"
	"github.com/blinklabs-io/grove/event"
	"github.com/blinklabs-io/grove/governance"
	"github.com/blinklabs-io/grove/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNode(t *testing.T, opts ...grove.ConfigOptionFunc) *grove.Node {
	t.Helper()
	opts = append(
		[]grove.ConfigOptionFunc{grove.WithParams(config.DefaultParams())},
		opts...,
	)
	n, err := grove.New(grove.NewConfig(opts...))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = n.Stop()
	})
	return n
}

func TestNodeTickRollsOverCycle(t *testing.T) {
	ledger := bank.NewMemoryLedger()
	n := newTestNode(
		t,
		grove.WithManualTasks(true),
		grove.WithLedger(ledger),
	)
	require.NoError(t, n.Open())
	gov := n.Governance()
	require.NotNil(t, gov)
	require.NoError(
		t,
		gov.Register(governance.SystemCaller, "alice", models.KindIndividual, ""),
	)

	params := config.DefaultParams()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	res, err := n.Tick(t0)
	require.NoError(t, err)
	assert.False(t, res.RolledOver)
	assert.False(t, res.Decayed)

	res, err = n.Tick(t0.Add(params.CyclePeriod))
	require.NoError(t, err)
	assert.True(t, res.RolledOver)
	assert.True(t, res.Decayed)
	assert.Equal(t, uint64(1), res.Cycle)

	pending, err := n.Scheduler().Pending()
	require.NoError(t, err)
	assert.NotEmpty(t, pending)
	_, err = n.Drain(context.Background(), 0)
	require.NoError(t, err)
	pending, err = n.Scheduler().Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)

	cycle, err := gov.Cycle()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cycle.Index)
}

func TestNodeRunStartsCycleClock(t *testing.T) {
	n := newTestNode(
		t,
		grove.WithCycleTickInterval(10*time.Millisecond),
		grove.WithSchedulerInterval(10*time.Millisecond),
	)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- n.Run(ctx)
	}()
	require.Eventually(t, func() bool {
		gov := n.Governance()
		if gov == nil {
			return false
		}
		cycle, err := gov.Cycle()
		return err == nil && !cycle.LastRollover.IsZero()
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("node did not stop")
	}
	require.NoError(t, n.Stop())
}

type recordingNotifier struct {
	mu      sync.Mutex
	entries []event.HistoryEntry
	points  map[string]uint64
}

func (r *recordingNotifier) AddEntry(entry event.HistoryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recordingNotifier) AddCommunityPoints(organization string, points uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.points == nil {
		r.points = make(map[string]uint64)
	}
	r.points[organization] += points
}

func (r *recordingNotifier) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := make([]string, 0, len(r.entries))
	for _, entry := range r.entries {
		ret = append(ret, entry.Account+" "+entry.Action)
	}
	return ret
}

func (r *recordingNotifier) orgPoints(organization string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.points[organization]
}

func TestNodeNotifiesCollaborators(t *testing.T) {
	ledger := bank.NewMemoryLedger()
	ledger.Mint("treasury", 100000)
	notifier := &recordingNotifier{}
	n := newTestNode(
		t,
		grove.WithManualTasks(true),
		grove.WithLedger(ledger),
		grove.WithHistory(notifier),
		grove.WithOrganizations(notifier),
	)
	require.NoError(t, n.Open())
	gov := n.Governance()
	system := governance.SystemCaller
	require.NoError(t, gov.Register(system, "alice", models.KindIndividual, ""))
	require.NoError(t, gov.Register(system, "bob", models.KindIndividual, "alice"))
	require.NoError(t, gov.Register(system, "acme", models.KindOrganization, ""))
	require.NoError(t, gov.Promote(context.Background(), system, "bob", models.StatusResident))
	require.NoError(t, gov.AddCBS(system, "acme", 7))
	require.NoError(t, gov.AddCBS(system, "alice", 3))

	require.Eventually(t, func() bool {
		actions := notifier.actions()
		return slices.Contains(actions, "bob status."+models.StatusResident) &&
			slices.Contains(actions, "alice referral.individual")
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return notifier.orgPoints("acme") == 7
	}, 2*time.Second, 10*time.Millisecond)
	// Individuals are not reported to the organization store
	assert.Zero(t, notifier.orgPoints("alice"))
}
