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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type eventMetrics struct {
	eventsTotal *prometheus.CounterVec
	subscribers *prometheus.GaugeVec
	dropped     *prometheus.CounterVec
}

func newEventMetrics(promRegistry prometheus.Registerer) *eventMetrics {
	promautoFactory := promauto.With(promRegistry)
	return &eventMetrics{
		eventsTotal: promautoFactory.NewCounterVec(prometheus.CounterOpts{
			Name: "grove_event_published_total",
			Help: "events published, by type",
		}, []string{"type"}),
		subscribers: promautoFactory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "grove_event_subscribers",
			Help: "active subscribers, by type",
		}, []string{"type"}),
		dropped: promautoFactory.NewCounterVec(prometheus.CounterOpts{
			Name: "grove_event_dropped_total",
			Help: "events dropped on a full queue, by type",
		}, []string{"type"}),
	}
}
