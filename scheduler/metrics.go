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

package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type schedulerMetrics struct {
	enqueued     *prometheus.CounterVec
	steps        *prometheus.CounterVec
	failed       *prometheus.CounterVec
	completed    *prometheus.CounterVec
	pending      prometheus.Gauge
	stepDuration prometheus.Histogram
}

func (m *schedulerMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.enqueued = promautoFactory.NewCounterVec(prometheus.CounterOpts{
		Name: "grove_scheduler_tasks_enqueued_total",
		Help: "tasks enqueued, by kind",
	}, []string{"kind"})
	m.steps = promautoFactory.NewCounterVec(prometheus.CounterOpts{
		Name: "grove_scheduler_steps_total",
		Help: "task steps committed, by kind",
	}, []string{"kind"})
	m.failed = promautoFactory.NewCounterVec(prometheus.CounterOpts{
		Name: "grove_scheduler_steps_failed_total",
		Help: "task steps that returned an error, by kind",
	}, []string{"kind"})
	m.completed = promautoFactory.NewCounterVec(prometheus.CounterOpts{
		Name: "grove_scheduler_tasks_completed_total",
		Help: "tasks run to completion, by kind",
	}, []string{"kind"})
	m.pending = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "grove_scheduler_tasks_pending",
		Help: "tasks waiting in the queue",
	})
	m.stepDuration = promautoFactory.NewHistogram(prometheus.HistogramOpts{
		Name:    "grove_scheduler_step_duration_seconds",
		Help:    "time spent running one step including its commit",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})
}
