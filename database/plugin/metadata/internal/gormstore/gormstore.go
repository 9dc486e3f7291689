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

// Package gormstore holds the metadata store behavior shared by every gorm
// dialect plugin: schema migration, tracing, transactions and the commit
// timestamp row.
package gormstore

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/blinklabs-io/grove/database/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

const commitTimestampRowId = 1

// ErrNotStarted is returned when the store is used before Start()
var ErrNotStarted = errors.New("metadata store not started")

// CommitTimestamp represents the table used to track the current commit timestamp
type CommitTimestamp struct {
	ID        uint `gorm:"primarykey"`
	Timestamp int64
}

func (CommitTimestamp) TableName() string {
	return "commit_timestamp"
}

// Config returns the gorm config used by all dialects
func Config() *gorm.Config {
	return &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	}
}

// Store is embedded by each dialect plugin
type Store struct {
	PromRegistry prometheus.Registerer
	db           *gorm.DB
	Logger       *slog.Logger
}

// SetLogger sets the logger before Start()
func (s *Store) SetLogger(logger *slog.Logger) {
	s.Logger = logger
}

// SetPromRegistry sets the metrics registry before Start()
func (s *Store) SetPromRegistry(registry prometheus.Registerer) {
	s.PromRegistry = registry
}

// Init installs tracing and migrates all models on an opened connection
func (s *Store) Init(db *gorm.DB) error {
	if s.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		s.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	s.db = db
	if err := s.db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return err
	}
	if s.PromRegistry != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			return err
		}
		if err := s.PromRegistry.Register(
			collectors.NewDBStatsCollector(sqlDB, "metadata"),
		); err != nil {
			return fmt.Errorf("failed to register metadata metrics: %w", err)
		}
	}
	s.Logger.Debug(
		fmt.Sprintf("creating table: %#v", &CommitTimestamp{}),
		"component", "database",
	)
	if err := s.db.AutoMigrate(&CommitTimestamp{}); err != nil {
		return err
	}
	for _, model := range models.MigrateModels {
		s.Logger.Debug(
			fmt.Sprintf("creating table: %#v", model),
			"component", "database",
		)
		if err := s.db.AutoMigrate(model); err != nil {
			return err
		}
	}
	return nil
}

// DB returns the database handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction begins a new metadata transaction
func (s *Store) Transaction() *gorm.DB {
	if s.db == nil {
		return nil
	}
	return s.db.Begin()
}

// AutoMigrate wraps the gorm AutoMigrate
func (s *Store) AutoMigrate(dst ...any) error {
	if s.db == nil {
		return ErrNotStarted
	}
	return s.db.AutoMigrate(dst...)
}

func (s *Store) GetCommitTimestamp() (int64, error) {
	if s.db == nil {
		return 0, ErrNotStarted
	}
	var tmpCommitTimestamp CommitTimestamp
	result := s.db.First(&tmpCommitTimestamp)
	if result.Error != nil {
		// It's not an error if there's no records found
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, result.Error
	}
	return tmpCommitTimestamp.Timestamp, nil
}

func (s *Store) SetCommitTimestamp(timestamp int64, txn *gorm.DB) error {
	db := txn
	if db == nil {
		db = s.db
	}
	if db == nil {
		return ErrNotStarted
	}
	tmpCommitTimestamp := CommitTimestamp{
		ID:        commitTimestampRowId,
		Timestamp: timestamp,
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"timestamp"}),
	}).Create(&tmpCommitTimestamp)
	return result.Error
}

// Close closes the underlying connection pool
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
