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

package reputation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type engineMetrics struct {
	vouches  prometheus.Counter
	flags    prometheus.Counter
	punished prometheus.Counter
	mimicked prometheus.Counter
	status   *prometheus.CounterVec
	rewards  *prometheus.CounterVec
}

func (m *engineMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.vouches = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "grove_reputation_vouches_total",
		Help: "vouch edges created",
	})
	m.flags = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "grove_reputation_flags_total",
		Help: "flags raised, including delegated replays",
	})
	m.punished = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "grove_reputation_punishments_total",
		Help: "punishments applied",
	})
	m.mimicked = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "grove_reputation_mimic_replays_total",
		Help: "flag operations replayed for delegators",
	})
	m.status = promautoFactory.NewCounterVec(prometheus.CounterOpts{
		Name: "grove_reputation_status_changes_total",
		Help: "status changes, by new status",
	}, []string{"status"})
	m.rewards = promautoFactory.NewCounterVec(prometheus.CounterOpts{
		Name: "grove_reputation_referral_rewards_total",
		Help: "referral token rewards queued, by kind",
	}, []string{"kind"})
}
