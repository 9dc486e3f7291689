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

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/blinklabs-io/grove"
	"github.com/blinklabs-io/grove/governance"
	"github.com/blinklabs-io/grove/internal/config"
)

// ExecOptions controls a one-shot command
type ExecOptions struct {
	// Drain runs the tasks queued by the command before returning
	Drain bool
	// MaxSteps bounds the drain. 0 means until the queue is empty.
	MaxSteps int
}

// Exec opens the node store, runs fn against the governance boundary and
// closes the store again. The node must not be serving at the same time.
func Exec(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	execOpts ExecOptions,
	fn func(*governance.Governance) error,
) error {
	opts, err := nodeOptions(cfg, logger)
	if err != nil {
		return err
	}
	g, err := grove.New(
		grove.NewConfig(append(opts, grove.WithManualTasks(true))...),
	)
	if err != nil {
		return err
	}
	if err := g.Open(); err != nil {
		return errors.Join(err, g.Stop())
	}
	err = fn(g.Governance())
	if err == nil && execOpts.Drain {
		var steps int
		steps, err = g.Drain(ctx, execOpts.MaxSteps)
		logger.Debug(
			fmt.Sprintf("ran %d task steps", steps),
			"component", "node",
		)
	}
	if err == nil {
		pending, pendingErr := g.Scheduler().Pending()
		if pendingErr == nil && len(pending) > 0 {
			logger.Info(
				fmt.Sprintf("%d tasks queued for the next serve", len(pending)),
				"component", "node",
			)
		}
	}
	return errors.Join(err, g.Stop())
}
