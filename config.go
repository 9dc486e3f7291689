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

package grove

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/grove/bank"
	"github.com/blinklabs-io/grove/event"
	"github.com/blinklabs-io/grove/internal/config"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultCycleTickInterval = 1 * time.Minute
	DefaultShutdownTimeout   = 30 * time.Second
)

type Config struct {
	promRegistry      prometheus.Registerer
	logger            *slog.Logger
	ledger            bank.Ledger
	history           event.History
	organizations     event.Organizations
	params            *config.Params
	dataDir           string
	blobPlugin        string
	metadataPlugin    string
	schedulerInterval time.Duration
	schedulerMaxSteps int
	cycleTickInterval time.Duration
	shutdownTimeout   time.Duration
	tracing           bool
	tracingStdout     bool
	// Disables the scheduler runner and cycle ticker. Tasks stay queued
	// until drained explicitly.
	manualTasks bool
}

func (n *Node) configValidate() error {
	if n.config.params == nil {
		return fmt.Errorf("%w: no governance parameters defined", config.ErrParamMissing)
	}
	if err := n.config.params.Validate(); err != nil {
		return err
	}
	if n.config.cycleTickInterval < 0 {
		return fmt.Errorf(
			"invalid cycle tick interval: %s",
			n.config.cycleTickInterval,
		)
	}
	if n.config.schedulerMaxSteps < 0 {
		return fmt.Errorf(
			"invalid scheduler max steps: %d",
			n.config.schedulerMaxSteps,
		)
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the node config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new grove config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
		cycleTickInterval: DefaultCycleTickInterval,
		shutdownTimeout:   DefaultShutdownTimeout,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithDatabasePath specifies the persistent data directory to use. The default is to store everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithBlobPlugin specifies the blob storage plugin to use.
func WithBlobPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.blobPlugin = plugin
	}
}

// WithMetadataPlugin specifies the metadata storage plugin to use.
func WithMetadataPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.metadataPlugin = plugin
	}
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. In most cases, prometheus.DefaultRegistry would be
// a good choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithParams specifies the governance parameters. They are required, config.DefaultParams gives a set suitable
// for development
func WithParams(params config.Params) ConfigOptionFunc {
	return func(c *Config) {
		c.params = &params
	}
}

// WithLedger specifies the value ledger that outbox transfers are delivered to. An in-memory ledger is used
// when none is given
func WithLedger(ledger bank.Ledger) ConfigOptionFunc {
	return func(c *Config) {
		c.ledger = ledger
	}
}

// WithHistory specifies the audit history collaborator notified of status changes, punishments, payouts and
// referral rewards. Entries are logged when none is given
func WithHistory(history event.History) ConfigOptionFunc {
	return func(c *Config) {
		c.history = history
	}
}

// WithOrganizations specifies the organization membership collaborator notified of community points earned by
// organizations. Calls are logged when none is given
func WithOrganizations(orgs event.Organizations) ConfigOptionFunc {
	return func(c *Config) {
		c.organizations = orgs
	}
}

// WithSchedulerInterval specifies how often the task runner wakes up
func WithSchedulerInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.schedulerInterval = interval
	}
}

// WithSchedulerMaxSteps limits the task steps run on each scheduler tick
func WithSchedulerMaxSteps(steps int) ConfigOptionFunc {
	return func(c *Config) {
		c.schedulerMaxSteps = steps
	}
}

// WithCycleTickInterval specifies how often the node checks whether a decay or cycle rollover is due. A value of 0
// disables the ticker
func WithCycleTickInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.cycleTickInterval = interval
	}
}

// WithManualTasks leaves queued tasks alone until the caller drains them with Node.Drain. This is used by one-shot
// CLI commands and tests
func WithManualTasks(manual bool) ConfigOptionFunc {
	return func(c *Config) {
		c.manualTasks = manual
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
