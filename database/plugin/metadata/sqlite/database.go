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
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blinklabs-io/grove/database/plugin/metadata/internal/gormstore"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// MetadataStoreSqlite is a SQLite-based implementation of the metadata store
type MetadataStoreSqlite struct {
	gormstore.Store
	timerVacuum *time.Timer
	dataDir     string
	timerMutex  sync.Mutex
	vacuumWG    sync.WaitGroup
	// BusyTimeout is how long a connection waits on a locked database
	BusyTimeout time.Duration
	// VacuumInterval spaces VACUUM runs on an on-disk store. Zero disables them.
	VacuumInterval time.Duration
	closed         bool
}

const (
	DefaultBusyTimeout    = 5 * time.Second
	DefaultVacuumInterval = 24 * time.Hour
)

// New creates a SQLite metadata store. Uses a private in-memory database if dataDir is empty.
func New(
	dataDir string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*MetadataStoreSqlite, error) {
	d, err := NewWithOptions(
		WithDataDir(dataDir),
		WithLogger(logger),
		WithPromRegistry(promRegistry),
	)
	if err != nil {
		return nil, err
	}
	if err := d.Start(); err != nil {
		return d, err
	}
	return d, nil
}

// NewWithOptions creates a SQLite metadata store without opening it
func NewWithOptions(opts ...SqliteOptionFunc) (*MetadataStoreSqlite, error) {
	d := &MetadataStoreSqlite{
		BusyTimeout:    DefaultBusyTimeout,
		VacuumInterval: DefaultVacuumInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *MetadataStoreSqlite) dsn() (string, error) {
	busy := fmt.Sprintf("_pragma=busy_timeout(%d)", d.BusyTimeout.Milliseconds())
	if d.dataDir == "" {
		// Each in-memory store gets its own name so that stores opened in the
		// same process (tests) never share tables. cache=shared lets the
		// connections of one pool see the same database.
		return fmt.Sprintf(
			"file:%s?mode=memory&cache=shared&%s",
			uuid.NewString(),
			busy,
		), nil
	}
	// Make sure that we can read data dir, and create if it doesn't exist
	if _, err := os.Stat(d.dataDir); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to read data dir: %w", err)
		}
		if err := os.MkdirAll(d.dataDir, fs.ModePerm); err != nil {
			return "", fmt.Errorf("failed to create data dir: %w", err)
		}
	}
	metadataDbPath := filepath.Join(d.dataDir, "metadata.sqlite")
	// WAL journal mode, increase cache size to 50MB (from 2MB)
	connOpts := "_pragma=journal_mode(WAL)&_pragma=cache_size(-50000)"
	return fmt.Sprintf("file:%s?%s&%s", metadataDbPath, connOpts, busy), nil
}

// Start implements the plugin.Plugin interface
func (d *MetadataStoreSqlite) Start() error {
	dsn, err := d.dsn()
	if err != nil {
		return err
	}
	metadataDb, err := gorm.Open(sqlite.Open(dsn), gormstore.Config())
	if err != nil {
		return err
	}
	if d.dataDir == "" {
		// The in-memory database lives only as long as one connection does
		sqlDB, err := metadataDb.DB()
		if err != nil {
			return err
		}
		sqlDB.SetMaxIdleConns(4)
		sqlDB.SetConnMaxLifetime(0)
		sqlDB.SetConnMaxIdleTime(0)
	}
	if err := d.Init(metadataDb); err != nil {
		return err
	}
	d.scheduleVacuum()
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStoreSqlite) Stop() error {
	return d.Close()
}

// Close stops background maintenance and closes the connection pool
func (d *MetadataStoreSqlite) Close() error {
	d.timerMutex.Lock()
	d.closed = true
	if d.timerVacuum != nil {
		d.timerVacuum.Stop()
		d.timerVacuum = nil
	}
	d.timerMutex.Unlock()
	// Wait for any in-flight vacuum operations to complete
	d.vacuumWG.Wait()
	return d.Store.Close()
}

func (d *MetadataStoreSqlite) runVacuum() error {
	d.timerMutex.Lock()
	if d.dataDir == "" || d.closed {
		d.timerMutex.Unlock()
		return nil
	}
	d.vacuumWG.Add(1)
	d.timerMutex.Unlock()
	defer d.vacuumWG.Done()
	return d.DB().Exec("VACUUM").Error
}

// scheduleVacuum arms the next vacuum run
func (d *MetadataStoreSqlite) scheduleVacuum() {
	d.timerMutex.Lock()
	defer d.timerMutex.Unlock()
	if d.closed || d.dataDir == "" || d.VacuumInterval <= 0 {
		return
	}
	if d.timerVacuum != nil {
		d.timerVacuum.Stop()
	}
	f := func() {
		d.Logger.Debug(
			"running vacuum on sqlite metadata database",
			"component", "database",
		)
		// schedule next run
		defer d.scheduleVacuum()
		if err := d.runVacuum(); err != nil {
			d.Logger.Error(
				"failed to free unused space in metadata store",
				"component", "database",
				"error", err,
			)
		}
	}
	d.timerVacuum = time.AfterFunc(d.VacuumInterval, f)
}
