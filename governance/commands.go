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
	"context"
	"fmt"

	"github.com/blinklabs-io/grove/database"
	"github.com/blinklabs-io/grove/database/models"
	"github.com/blinklabs-io/grove/proposal"
	"github.com/blinklabs-io/grove/rank"
	"github.com/blinklabs-io/grove/reputation"
)

func (g *Governance) Vouch(caller Caller, sponsor, account string) error {
	return g.run("vouch", actAs(caller, sponsor), func(txn *database.Txn) error {
		return g.reputation.Vouch(sponsor, account, txn)
	})
}

func (g *Governance) Flag(caller Caller, from, to string) error {
	return g.run("flag", actAs(caller, from), func(txn *database.Txn) error {
		return g.reputation.Flag(from, to, txn)
	})
}

func (g *Governance) RemoveFlag(caller Caller, from, to string) error {
	return g.run("removeflag", actAs(caller, from), func(txn *database.Txn) error {
		return g.reputation.RemoveFlag(from, to, txn)
	})
}

func (g *Governance) DelegateFlag(caller Caller, delegator, delegatee string) error {
	return g.run("delegateflag", actAs(caller, delegator), func(txn *database.Txn) error {
		return g.reputation.DelegateFlag(delegator, delegatee, txn)
	})
}

// UndelegateFlag ends the delegation of delegator. The caller must be one of
// its two parties; system callers act as the delegator.
func (g *Governance) UndelegateFlag(caller Caller, delegator string) error {
	actor := caller.Account
	if caller.System {
		actor = delegator
	}
	var auth error
	if actor == "" {
		auth = actAs(caller, delegator)
	}
	return g.run("undelegateflag", auth, func(txn *database.Txn) error {
		return g.reputation.UndelegateFlag(actor, delegator, txn)
	})
}

func (g *Governance) Create(
	caller Caller,
	creator, recipient string,
	quantity uint64,
	fund string,
	details proposal.Details,
) (uint, error) {
	var id uint
	err := g.run("create", actAs(caller, creator), func(txn *database.Txn) error {
		var err error
		id, err = g.proposals.Create(creator, recipient, quantity, fund, details, txn)
		return err
	})
	return id, err
}

func (g *Governance) CreateX(
	caller Caller,
	creator, recipient string,
	quantity uint64,
	fund string,
	details proposal.Details,
	pcts []uint64,
) (uint, error) {
	var id uint
	err := g.run("createx", actAs(caller, creator), func(txn *database.Txn) error {
		var err error
		id, err = g.proposals.CreateX(creator, recipient, quantity, fund, details, pcts, txn)
		return err
	})
	return id, err
}

// Update, UpdateX and Cancel are only open to the creator acting for itself
func (g *Governance) Update(caller Caller, id uint, details proposal.Details) error {
	return g.run("update", accountOnly(caller), func(txn *database.Txn) error {
		return g.proposals.Update(caller.Account, id, details, txn)
	})
}

func (g *Governance) UpdateX(
	caller Caller,
	id uint,
	details proposal.Details,
	pcts []uint64,
) error {
	return g.run("updatex", accountOnly(caller), func(txn *database.Txn) error {
		return g.proposals.UpdateX(caller.Account, id, details, pcts, txn)
	})
}

func (g *Governance) Cancel(caller Caller, id uint) error {
	return g.run("cancel", accountOnly(caller), func(txn *database.Txn) error {
		return g.proposals.Cancel(caller.Account, id, txn)
	})
}

func accountOnly(caller Caller) error {
	if caller.Account == "" {
		return fmt.Errorf("%w: %s cannot act as a proposal creator", ErrUnauthorized, caller)
	}
	return nil
}

// Stake moves tokens from an account onto a staged proposal
func (g *Governance) Stake(
	ctx context.Context,
	caller Caller,
	from string,
	id uint,
	amount uint64,
) error {
	return g.run("stake", actAs(caller, from), func(txn *database.Txn) error {
		return g.proposals.Stake(ctx, from, id, amount, txn)
	})
}

func (g *Governance) CheckStake(id uint) (bool, error) {
	return g.proposals.CheckStake(id, nil)
}

func (g *Governance) Favour(caller Caller, voter string, id uint, amount uint64) error {
	return g.run("favour", actAs(caller, voter), func(txn *database.Txn) error {
		return g.proposals.Favour(voter, id, amount, txn)
	})
}

func (g *Governance) Against(caller Caller, voter string, id uint, amount uint64) error {
	return g.run("against", actAs(caller, voter), func(txn *database.Txn) error {
		return g.proposals.Against(voter, id, amount, txn)
	})
}

func (g *Governance) Neutral(caller Caller, voter string, id uint) error {
	return g.run("neutral", actAs(caller, voter), func(txn *database.Txn) error {
		return g.proposals.Neutral(voter, id, txn)
	})
}

// Administrative operations

func (g *Governance) Register(caller Caller, account, kind, referrer string) error {
	return g.run("register", systemOnly(caller), func(txn *database.Txn) error {
		return g.reputation.Register(account, kind, referrer, txn)
	})
}

func (g *Governance) Promote(ctx context.Context, caller Caller, account, status string) error {
	return g.run("promote", systemOnly(caller), func(txn *database.Txn) error {
		return g.reputation.Promote(ctx, account, status, txn)
	})
}

func (g *Governance) AddRep(caller Caller, account string, amount uint64) error {
	return g.run("addrep", systemOnly(caller), func(txn *database.Txn) error {
		return g.reputation.AddRep(account, amount, txn)
	})
}

func (g *Governance) SubRep(caller Caller, account string, amount uint64) error {
	return g.run("subrep", systemOnly(caller), func(txn *database.Txn) error {
		return g.reputation.SubRep(account, amount, txn)
	})
}

func (g *Governance) AddCBS(caller Caller, account string, amount uint64) error {
	return g.run("addcbs", systemOnly(caller), func(txn *database.Txn) error {
		return g.reputation.AddCBS(account, amount, txn)
	})
}

func (g *Governance) Ban(caller Caller, account string) error {
	return g.run("ban", systemOnly(caller), func(txn *database.Txn) error {
		return g.reputation.Ban(account, txn)
	})
}

func (g *Governance) BanTree(caller Caller, account string) error {
	return g.run("bantree", systemOnly(caller), func(txn *database.Txn) error {
		return g.reputation.BanTree(account, txn)
	})
}

func (g *Governance) AddVoice(caller Caller, account string, amount uint64) error {
	return g.run("addvoice", systemOnly(caller), func(txn *database.Txn) error {
		return g.voice.Grant(account, amount, txn)
	})
}

func (g *Governance) ChangeTrust(caller Caller, account string, trusted bool) error {
	return g.run("changetrust", systemOnly(caller), func(txn *database.Txn) error {
		return g.voice.ChangeTrust(account, trusted, txn)
	})
}

func (g *Governance) AddActive(caller Caller, account string) error {
	return g.run("addactive", systemOnly(caller), func(txn *database.Txn) error {
		return g.voice.AddActive(account, txn)
	})
}

func (g *Governance) RemoveActive(caller Caller, account string) error {
	return g.run("removeactive", systemOnly(caller), func(txn *database.Txn) error {
		return g.voice.RemoveActive(account, txn)
	})
}

// Batch passes. Each fails with scheduler.ErrAlreadyRunning while the same
// pass is still in flight.

func (g *Governance) DecayVoices(caller Caller) error {
	return g.run("decayvoices", systemOnly(caller), g.voice.StartDecay)
}

func (g *Governance) UpdateVoices(caller Caller) error {
	return g.run("updatevoices", systemOnly(caller), g.voice.StartParticipation)
}

func (g *Governance) UpdateActives(caller Caller) error {
	return g.run("updateactivs", systemOnly(caller), g.voice.StartActives)
}

// RankReps ranks the reputation population of one participant kind
func (g *Governance) RankReps(caller Caller, kind string) error {
	return g.run("rankreps", systemOnly(caller), func(txn *database.Txn) error {
		if err := checkRankKind(kind); err != nil {
			return err
		}
		return g.ranks.Start(rank.KindReputation, kind, txn)
	})
}

// RankCBS ranks the community building population of one participant kind
func (g *Governance) RankCBS(caller Caller, kind string) error {
	return g.run("rankcbs", systemOnly(caller), func(txn *database.Txn) error {
		if err := checkRankKind(kind); err != nil {
			return err
		}
		return g.ranks.Start(rank.KindCommunity, kind, txn)
	})
}

// checkRankKind accepts the participant kinds that have a ranked population
func checkRankKind(kind string) error {
	if kind != models.KindIndividual && kind != models.KindOrganization {
		return fmt.Errorf("%w: %q", reputation.ErrInvalidKind, kind)
	}
	return nil
}
