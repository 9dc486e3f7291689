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

package badger

import (
	"sync"
	"time"

	"github.com/blinklabs-io/grove/database/plugin"
)

// Cache sizes in bytes. The store only holds scheduler tasks and their
// locks, so these sit well below badger's own defaults.
const (
	DefaultBlockCacheSize = 67108864 // 64MB
	DefaultIndexCacheSize = 33554432 // 32MB

	// DefaultGcIntervalSeconds matches the GcInterval used by NewWithOptions
	DefaultGcIntervalSeconds = 300
)

// queueStoreOptions are filled from flags, the plugin config section or
// GROVE_BLOB_BADGER_* variables before the store is built.
type queueStoreOptions struct {
	dataDir        string
	blockCacheSize uint64
	indexCacheSize uint64
	gcIntervalSec  uint64
	gcEnabled      bool
}

var (
	queueOpts      queueStoreOptions
	queueOptsMutex sync.RWMutex
)

func resetQueueOptions() {
	queueOptsMutex.Lock()
	defer queueOptsMutex.Unlock()
	queueOpts = queueStoreOptions{
		dataDir:        ".grove",
		blockCacheSize: DefaultBlockCacheSize,
		indexCacheSize: DefaultIndexCacheSize,
		gcIntervalSec:  DefaultGcIntervalSeconds,
		gcEnabled:      true,
	}
}

func (o queueStoreOptions) funcs() []BlobStoreBadgerOptionFunc {
	ret := []BlobStoreBadgerOptionFunc{
		WithDataDir(o.dataDir),
		WithBlockCacheSize(o.blockCacheSize),
		WithIndexCacheSize(o.indexCacheSize),
		WithGc(o.gcEnabled),
	}
	// Zero keeps the store default
	if o.gcIntervalSec > 0 {
		ret = append(
			ret,
			WithGcInterval(time.Duration(o.gcIntervalSec)*time.Second),
		)
	}
	return ret
}

func init() {
	resetQueueOptions()
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeBlob,
			Name:               "badger",
			Description:        "Badger key-value store for the scheduler task queue",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: []plugin.PluginOption{
				{
					Name:         "data-dir",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Directory for the task queue (empty keeps it in memory)",
					DefaultValue: ".grove",
					Dest:         &(queueOpts.dataDir),
				},
				{
					Name:         "block-cache-size",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "Block cache size in bytes",
					DefaultValue: uint64(DefaultBlockCacheSize),
					Dest:         &(queueOpts.blockCacheSize),
				},
				{
					Name:         "index-cache-size",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "Index cache size in bytes",
					DefaultValue: uint64(DefaultIndexCacheSize),
					Dest:         &(queueOpts.indexCacheSize),
				},
				{
					Name:         "gc",
					Type:         plugin.PluginOptionTypeBool,
					Description:  "Reclaim value log space left by finished tasks",
					DefaultValue: true,
					Dest:         &(queueOpts.gcEnabled),
				},
				{
					Name:         "gc-interval",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "Seconds between value log GC runs",
					DefaultValue: uint64(DefaultGcIntervalSeconds),
					Dest:         &(queueOpts.gcIntervalSec),
				},
			},
		},
	)
}

// NewFromCmdlineOptions builds a task queue store from the registered options
func NewFromCmdlineOptions() plugin.Plugin {
	queueOptsMutex.RLock()
	opts := queueOpts.funcs()
	queueOptsMutex.RUnlock()
	p, err := NewWithOptions(opts...)
	if err != nil {
		return plugin.NewErrorPlugin(err)
	}
	return p
}
