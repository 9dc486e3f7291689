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

package governance

import (
	"errors"
	"time"

	"github.com/blinklabs-io/grove/database"
	"github.com/blinklabs-io/grove/database/models"
	"github.com/blinklabs-io/grove/event"
	"github.com/blinklabs-io/grove/proposal"
	"github.com/blinklabs-io/grove/rank"
	"github.com/blinklabs-io/grove/scheduler"
)

// PeriodResult reports which gates of OnPeriod fired
type PeriodResult struct {
	Cycle      uint64
	RolledOver bool
	Decayed    bool
}

// OnPeriod advances the governance clock to now. The rollover gate opens once
// a cycle period has passed since the last rollover and the decay gate once a
// decay period has passed since the last decay. The first call only starts
// both clocks.
func (g *Governance) OnPeriod(caller Caller, now time.Time) (PeriodResult, error) {
	var ret PeriodResult
	err := g.run("onperiod", systemOnly(caller), func(txn *database.Txn) error {
		ret = PeriodResult{}
		cycle, err := g.db.GetCycle(txn)
		if err != nil {
			return err
		}
		switch {
		case cycle.LastRollover.IsZero():
			cycle.LastRollover = now
		case now.Sub(cycle.LastRollover) >= g.params.CyclePeriod:
			if err := g.rollover(cycle, now, txn); err != nil {
				return err
			}
			ret.RolledOver = true
		}
		switch {
		case cycle.LastDecay.IsZero():
			cycle.LastDecay = now
		case now.Sub(cycle.LastDecay) >= g.params.DecayPeriod:
			if err := g.start("decayvoices", g.voice.StartDecay(txn)); err != nil {
				return err
			}
			cycle.LastDecay = now
			ret.Decayed = true
			g.publish(event.VoiceDecayEventType, event.VoiceDecayEvent{Cycle: cycle.Index})
		}
		ret.Cycle = cycle.Index
		return g.db.SetCycle(cycle, txn)
	})
	return ret, err
}

// rollover closes the current cycle: it freezes the quorum and queues the
// close, participation, actives and ranking passes
func (g *Governance) rollover(cycle *models.Cycle, now time.Time, txn *database.Txn) error {
	active, err := g.db.GetSize(models.SizeActiveProposals, txn)
	if err != nil {
		return err
	}
	snap := proposal.Snapshot{
		Cycle: cycle.Index + 1,
		Pct:   proposal.QuorumPct(active, g.params),
		Voice: make(map[string]uint64),
	}
	var totalVoice uint64
	for _, fund := range g.voice.Scopes() {
		total, err := g.voice.Total(fund, txn)
		if err != nil {
			return err
		}
		snap.Voice[fund] = total
		totalVoice += total
	}
	cycle.Index = snap.Cycle
	cycle.LastRollover = now
	cycle.QuorumVoice = totalVoice
	cycle.QuorumPct = snap.Pct
	cycle.ActiveProposals = active
	if err := g.proposals.StartClose(snap, txn); err != nil {
		return err
	}
	if err := g.start("updatevoices", g.voice.StartParticipation(txn)); err != nil {
		return err
	}
	if err := g.start("updateactivs", g.voice.StartActives(txn)); err != nil {
		return err
	}
	for _, kind := range []string{models.KindIndividual, models.KindOrganization} {
		if err := g.start("rankreps", g.ranks.Start(rank.KindReputation, kind, txn)); err != nil {
			return err
		}
		if err := g.start("rankcbs", g.ranks.Start(rank.KindCommunity, kind, txn)); err != nil {
			return err
		}
	}
	g.logger.Info(
		"cycle rolled over",
		"cycle", cycle.Index,
		"active_proposals", active,
		"quorum_pct", snap.Pct,
		"quorum_voice", totalVoice,
	)
	g.publish(event.CycleRolloverEventType, event.CycleRolloverEvent{
		Index:       cycle.Index,
		QuorumVoice: totalVoice,
		QuorumPct:   snap.Pct,
		Active:      active,
	})
	return nil
}

// start tolerates a pass that is still running from an earlier period. The
// running pass covers the work of the new one.
func (g *Governance) start(pass string, err error) error {
	if errors.Is(err, scheduler.ErrAlreadyRunning) {
		g.logger.Warn("pass still running, not queued again", "pass", pass)
		return nil
	}
	return err
}

func (g *Governance) publish(eventType event.EventType, data any) {
	if g.eventBus == nil {
		return
	}
	g.eventBus.Publish(eventType, event.NewEvent(eventType, data))
}
