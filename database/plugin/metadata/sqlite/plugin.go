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

package sqlite

import (
	"sync"
	"time"

	"github.com/blinklabs-io/grove/database/plugin"
)

// stateStoreOptions are filled from flags, the plugin config section or
// GROVE_METADATA_SQLITE_* variables before the store is built.
type stateStoreOptions struct {
	dataDir        string
	busyTimeoutMs  uint64
	vacuumInterval uint64 // hours
}

var (
	stateOpts      stateStoreOptions
	stateOptsMutex sync.RWMutex
)

func resetStateOptions() {
	stateOptsMutex.Lock()
	defer stateOptsMutex.Unlock()
	stateOpts = stateStoreOptions{
		dataDir:        ".grove",
		busyTimeoutMs:  uint64(DefaultBusyTimeout.Milliseconds()),
		vacuumInterval: uint64(DefaultVacuumInterval / time.Hour),
	}
}

func (o stateStoreOptions) funcs() []SqliteOptionFunc {
	return []SqliteOptionFunc{
		WithDataDir(o.dataDir),
		WithBusyTimeout(time.Duration(o.busyTimeoutMs) * time.Millisecond),
		WithVacuumInterval(time.Duration(o.vacuumInterval) * time.Hour),
	}
}

func init() {
	resetStateOptions()
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeMetadata,
			Name:               "sqlite",
			Description:        "SQLite store for participants, scores and proposals",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: []plugin.PluginOption{
				{
					Name:         "data-dir",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Directory for metadata.sqlite (empty keeps state in memory)",
					DefaultValue: ".grove",
					Dest:         &(stateOpts.dataDir),
				},
				{
					Name:         "busy-timeout",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "Milliseconds to wait on a locked database",
					DefaultValue: uint64(DefaultBusyTimeout.Milliseconds()),
					Dest:         &(stateOpts.busyTimeoutMs),
				},
				{
					Name:         "vacuum-interval",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "Hours between VACUUM runs (0 disables)",
					DefaultValue: uint64(DefaultVacuumInterval / time.Hour),
					Dest:         &(stateOpts.vacuumInterval),
				},
			},
		},
	)
}

// NewFromCmdlineOptions builds a state store from the registered options
func NewFromCmdlineOptions() plugin.Plugin {
	stateOptsMutex.RLock()
	opts := stateOpts.funcs()
	stateOptsMutex.RUnlock()
	p, err := NewWithOptions(opts...)
	if err != nil {
		return plugin.NewErrorPlugin(err)
	}
	return p
}
