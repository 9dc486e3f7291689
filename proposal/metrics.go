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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type engineMetrics struct {
	created prometheus.Counter
	paid    prometheus.Counter
	votes   *prometheus.CounterVec
	closed  *prometheus.CounterVec
}

func (m *engineMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.created = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "grove_proposal_created_total",
		Help: "proposals created",
	})
	m.paid = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "grove_proposal_paid_amount_total",
		Help: "amount queued for payout to proposal recipients",
	})
	m.votes = promautoFactory.NewCounterVec(prometheus.CounterOpts{
		Name: "grove_proposal_votes_total",
		Help: "votes cast, by direction",
	}, []string{"direction"})
	m.closed = promautoFactory.NewCounterVec(prometheus.CounterOpts{
		Name: "grove_proposal_closed_total",
		Help: "proposals that reached the done stage, by status",
	}, []string{"status"})
}
