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

package event

// Governance event types. Subscribers are notification collaborators such as
// the history log and organization membership and never affect state.
const (
	ParticipantStatusEventType  = EventType("participant.status")
	ReputationPunishedEventType = EventType("reputation.punished")
	ProposalStageEventType      = EventType("proposal.stage")
	ProposalPayoutEventType     = EventType("proposal.payout")
	CycleRolloverEventType      = EventType("cycle.rollover")
	VoiceDecayEventType         = EventType("voice.decay")
	ReferralRewardEventType     = EventType("referral.reward")
	CommunityPointsEventType    = EventType("reputation.cbs")
)

// ParticipantStatusEvent is emitted when an account is promoted or demoted
type ParticipantStatusEvent struct {
	Account   string
	OldStatus string
	NewStatus string
}

// ReputationPunishedEvent is emitted when flags push an account over the
// punishment threshold
type ReputationPunishedEvent struct {
	Account   string
	Points    uint64
	FlagTotal uint64
}

// ProposalStageEvent is emitted on every proposal stage or status change
type ProposalStageEvent struct {
	Stage      string
	Status     string
	ProposalID uint
	Cycle      uint64
}

// ProposalPayoutEvent is emitted when a proposal tranche is paid
type ProposalPayoutEvent struct {
	Recipient  string
	ProposalID uint
	Amount     uint64
	Age        uint64
}

// CycleRolloverEvent is emitted when a new governance cycle begins
type CycleRolloverEvent struct {
	Index       uint64
	QuorumVoice uint64
	QuorumPct   uint64
	Active      uint64
}

// VoiceDecayEvent is emitted when a decay pass is scheduled
type VoiceDecayEvent struct {
	Cycle uint64
}

// ReferralRewardEvent is emitted when a referrer is rewarded for a promotion
type ReferralRewardEvent struct {
	Referrer string
	Invited  string
	Kind     string
	Amount   uint64
}

// CommunityPointsEvent is emitted when an account earns community building
// points
type CommunityPointsEvent struct {
	Account      string
	Points       uint64
	Total        uint64
	Organization bool
}
