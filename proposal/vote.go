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

package proposal

import (
	"fmt"

	"github.com/blinklabs-io/grove/database"
	"github.com/blinklabs-io/grove/database/models"
	"github.com/blinklabs-io/grove/internal/config"
)

// Favour votes for a proposal. An amount of 0 votes with the full balance.
func (e *Engine) Favour(voter string, id uint, amount uint64, txn *database.Txn) error {
	return e.vote(voter, id, models.VoteFavour, amount, txn)
}

// Against votes against a proposal. An amount of 0 votes with the full
// balance.
func (e *Engine) Against(voter string, id uint, amount uint64, txn *database.Txn) error {
	return e.vote(voter, id, models.VoteAgainst, amount, txn)
}

// Neutral withdraws a vote
func (e *Engine) Neutral(voter string, id uint, txn *database.Txn) error {
	p, err := e.votable(id, txn)
	if err != nil {
		return err
	}
	old, err := e.db.GetVote(id, voter, txn)
	if err != nil || old == nil {
		return err
	}
	revert(p, old)
	if err := e.db.DeleteVote(id, voter, txn); err != nil {
		return err
	}
	e.metrics.votes.WithLabelValues("neutral").Inc()
	return e.db.SetProposal(p, txn)
}

func (e *Engine) votable(id uint, txn *database.Txn) (*models.Proposal, error) {
	p, err := e.Get(id, txn)
	if err != nil {
		return nil, err
	}
	if p.Stage != models.StageActive {
		return nil, fmt.Errorf("proposal %d is %s: %w", id, p.Stage, ErrNotActive)
	}
	return p, nil
}

func (e *Engine) vote(
	voter string,
	id uint,
	direction string,
	amount uint64,
	txn *database.Txn,
) error {
	p, err := e.votable(id, txn)
	if err != nil {
		return err
	}
	balance, err := e.voice.Balance(p.Fund, voter, txn)
	if err != nil {
		return err
	}
	if balance == 0 {
		return fmt.Errorf("%w: %s in %s", ErrNoVoice, voter, p.Fund)
	}
	if amount == 0 {
		amount = balance
	}
	if amount > balance {
		return fmt.Errorf("%w: %d of %d", ErrInsufficientVoice, amount, balance)
	}
	old, err := e.db.GetVote(id, voter, txn)
	if err != nil {
		return err
	}
	if old != nil {
		revert(p, old)
	}
	switch direction {
	case models.VoteFavour:
		p.Favour += amount
	case models.VoteAgainst:
		p.Against += amount
	}
	p.Total += amount
	if err := e.db.SetVote(&models.Vote{
		ProposalID: id,
		Voter:      voter,
		Direction:  direction,
		Weight:     amount,
	}, txn); err != nil {
		return err
	}
	if old == nil {
		if err := e.db.AddParticipation(voter, txn); err != nil {
			return err
		}
	}
	e.metrics.votes.WithLabelValues(direction).Inc()
	return e.db.SetProposal(p, txn)
}

// revert takes a recorded vote back out of the tallies
func revert(p *models.Proposal, v *models.Vote) {
	switch v.Direction {
	case models.VoteFavour:
		p.Favour -= min(p.Favour, v.Weight)
	case models.VoteAgainst:
		p.Against -= min(p.Against, v.Weight)
	}
	p.Total -= min(p.Total, v.Weight)
}

// QuorumPct returns the share of the voice each proposal needs for the given
// number of active proposals. More proposals lower the bar.
func QuorumPct(active uint64, params *config.Params) uint64 {
	if active == 0 {
		return params.QuorumMax
	}
	return min(max(params.QuorumBase/active, params.QuorumMin), params.QuorumMax)
}

// QuorumRequired returns the votes a proposal needs given the voice of its
// fund, rounding up
func QuorumRequired(totalVoice, pct uint64) uint64 {
	return (totalVoice*pct + 99) / 100
}
