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
	"testing"
	"time"

	"github.com/blinklabs-io/grove/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg.logger)
	assert.Nil(t, cfg.params, "governance parameters are never defaulted")
	assert.Equal(t, DefaultCycleTickInterval, cfg.cycleTickInterval)
	assert.Equal(t, DefaultShutdownTimeout, cfg.shutdownTimeout)
}

func TestConfigOptions(t *testing.T) {
	params := config.DefaultParams()
	params.VouchCap = 7
	cfg := NewConfig(
		WithDatabasePath("/tmp/grove"),
		WithBlobPlugin("badger"),
		WithMetadataPlugin("postgres"),
		WithParams(params),
		WithCycleTickInterval(0),
		WithSchedulerInterval(50*time.Millisecond),
		WithManualTasks(true),
	)
	assert.Equal(t, "/tmp/grove", cfg.dataDir)
	assert.Equal(t, "postgres", cfg.metadataPlugin)
	assert.Equal(t, uint64(7), cfg.params.VouchCap)
	assert.Equal(t, time.Duration(0), cfg.cycleTickInterval)
	assert.Equal(t, 50*time.Millisecond, cfg.schedulerInterval)
	assert.True(t, cfg.manualTasks)
	// Mutating the caller's copy must not leak into the node config
	params.VouchCap = 9
	assert.Equal(t, uint64(7), cfg.params.VouchCap)
}

func TestNewRejectsInvalidParams(t *testing.T) {
	params := config.DefaultParams()
	params.FlagThreshold = 0
	_, err := New(NewConfig(WithParams(params)))
	require.ErrorIs(t, err, config.ErrParamMissing)

	_, err = New(NewConfig())
	require.ErrorIs(t, err, config.ErrParamMissing)

	_, err = New(NewConfig(
		WithParams(config.DefaultParams()),
		WithCycleTickInterval(-time.Second),
	))
	require.Error(t, err)
}
