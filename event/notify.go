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

import (
	"fmt"
	"io"
	"log/slog"
)

// HistoryEntry is one line of an account's governance history
type HistoryEntry struct {
	Account string
	Action  string
	Detail  string
	Amount  uint64
}

// History is the audit history collaborator
type History interface {
	AddEntry(entry HistoryEntry)
}

// Organizations is the organization membership collaborator
type Organizations interface {
	AddCommunityPoints(organization string, points uint64)
}

// SubscribeHistory forwards status changes, punishments, payouts and
// referral rewards to history
func SubscribeHistory(bus *EventBus, history History) []EventSubscriberId {
	forward := func(eventType EventType, entry func(any) (HistoryEntry, bool)) EventSubscriberId {
		return bus.SubscribeFunc(eventType, func(evt Event) {
			if e, ok := entry(evt.Data); ok {
				history.AddEntry(e)
			}
		})
	}
	return []EventSubscriberId{
		forward(ParticipantStatusEventType, func(data any) (HistoryEntry, bool) {
			d, ok := data.(ParticipantStatusEvent)
			return HistoryEntry{
				Account: d.Account,
				Action:  "status." + d.NewStatus,
				Detail:  "from " + d.OldStatus,
			}, ok
		}),
		forward(ReputationPunishedEventType, func(data any) (HistoryEntry, bool) {
			d, ok := data.(ReputationPunishedEvent)
			return HistoryEntry{
				Account: d.Account,
				Action:  "punished",
				Detail:  fmt.Sprintf("flags %d", d.FlagTotal),
				Amount:  d.Points,
			}, ok
		}),
		forward(ProposalPayoutEventType, func(data any) (HistoryEntry, bool) {
			d, ok := data.(ProposalPayoutEvent)
			return HistoryEntry{
				Account: d.Recipient,
				Action:  "payout",
				Detail:  fmt.Sprintf("proposal %d tranche %d", d.ProposalID, d.Age),
				Amount:  d.Amount,
			}, ok
		}),
		forward(ReferralRewardEventType, func(data any) (HistoryEntry, bool) {
			d, ok := data.(ReferralRewardEvent)
			return HistoryEntry{
				Account: d.Referrer,
				Action:  "referral." + d.Kind,
				Detail:  "invited " + d.Invited,
				Amount:  d.Amount,
			}, ok
		}),
	}
}

// SubscribeOrganizations forwards community points earned by organizations
func SubscribeOrganizations(bus *EventBus, orgs Organizations) EventSubscriberId {
	return bus.SubscribeFunc(CommunityPointsEventType, func(evt Event) {
		d, ok := evt.Data.(CommunityPointsEvent)
		if !ok || !d.Organization {
			return
		}
		orgs.AddCommunityPoints(d.Account, d.Points)
	})
}

// LoggingNotifier is a development stand-in for the history and organization
// collaborators that writes every call to a logger
type LoggingNotifier struct {
	logger *slog.Logger
}

func NewLoggingNotifier(logger *slog.Logger) *LoggingNotifier {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &LoggingNotifier{
		logger: logger.With("component", "notify"),
	}
}

func (n *LoggingNotifier) AddEntry(entry HistoryEntry) {
	n.logger.Info(
		"history",
		"account", entry.Account,
		"action", entry.Action,
		"detail", entry.Detail,
		"amount", entry.Amount,
	)
}

func (n *LoggingNotifier) AddCommunityPoints(organization string, points uint64) {
	n.logger.Info(
		"organization points",
		"organization", organization,
		"points", points,
	)
}
