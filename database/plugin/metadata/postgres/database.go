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

package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blinklabs-io/grove/database/plugin/metadata/internal/gormstore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// MetadataStorePostgres stores metadata in Postgres
type MetadataStorePostgres struct {
	gormstore.Store
	host     string
	user     string
	password string
	database string
	sslMode  string
	timeZone string
	dsn      string // Data source name (postgres connection string)
	port     uint
}

// NewWithOptions creates a new postgres metadata store. The connection is
// opened by Start().
func NewWithOptions(opts ...PostgresOptionFunc) (*MetadataStorePostgres, error) {
	d := &MetadataStorePostgres{}
	for _, opt := range opts {
		opt(d)
	}
	if d.host == "" {
		d.host = "localhost"
	}
	if d.port == 0 {
		d.port = 5432
	}
	if d.user == "" {
		d.user = "postgres"
	}
	if d.database == "" {
		d.database = "grove"
	}
	if d.sslMode == "" {
		d.sslMode = "disable"
	}
	if d.timeZone == "" {
		d.timeZone = "UTC"
	}
	return d, nil
}

// DSN returns the connection string built from the configured options
func (d *MetadataStorePostgres) DSN() string {
	if dsn := strings.TrimSpace(d.dsn); dsn != "" {
		return dsn
	}
	parts := []string{
		"host=" + d.host,
		fmt.Sprintf("port=%d", d.port),
		"user=" + d.user,
		"dbname=" + d.database,
		"sslmode=" + d.sslMode,
		"TimeZone=" + d.timeZone,
	}
	if d.password != "" {
		parts = append(parts, "password="+d.password)
	}
	return strings.Join(parts, " ")
}

// Start implements the plugin.Plugin interface
func (d *MetadataStorePostgres) Start() error {
	metadataDb, err := gorm.Open(postgres.Open(d.DSN()), gormstore.Config())
	if err != nil {
		return err
	}
	sqlDB, err := metadataDb.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping postgres: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)
	if err := d.Init(metadataDb); err != nil {
		return err
	}
	d.Logger.Info(
		"connected to postgres metadata store",
		"component", "database",
		"host", d.host,
		"port", d.port,
		"database", d.database,
	)
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStorePostgres) Stop() error {
	return d.Close()
}
