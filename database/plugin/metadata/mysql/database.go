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

package mysql

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/blinklabs-io/grove/database/plugin/metadata/internal/gormstore"
	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// Unknown database
const errUnknownDatabase = 1049

// MetadataStoreMysql stores metadata in MySQL
type MetadataStoreMysql struct {
	gormstore.Store
	host     string
	user     string
	password string
	database string
	tlsMode  string
	timeZone string
	dsn      string
	port     uint
}

// NewWithOptions creates a new mysql metadata store. The connection is
// opened by Start().
func NewWithOptions(opts ...MysqlOptionFunc) (*MetadataStoreMysql, error) {
	d := &MetadataStoreMysql{}
	for _, opt := range opts {
		opt(d)
	}
	if d.host == "" {
		d.host = "localhost"
	}
	if d.port == 0 {
		d.port = 3306
	}
	if d.user == "" {
		d.user = "root"
	}
	if d.database == "" {
		d.database = "grove"
	}
	if d.timeZone == "" {
		d.timeZone = "UTC"
	}
	return d, nil
}

// DSN returns the connection string built from the configured options
func (d *MetadataStoreMysql) DSN() string {
	if dsn := strings.TrimSpace(d.dsn); dsn != "" {
		return dsn
	}
	cfg := mysql.NewConfig()
	cfg.User = d.user
	cfg.Passwd = d.password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(d.host, strconv.FormatUint(uint64(d.port), 10))
	cfg.DBName = d.database
	cfg.ParseTime = true
	cfg.AllowNativePasswords = true
	loc, err := time.LoadLocation(d.timeZone)
	if err != nil {
		loc = time.UTC
	}
	cfg.Loc = loc
	if d.tlsMode != "" {
		cfg.Params = map[string]string{"tls": d.tlsMode}
	}
	return cfg.FormatDSN()
}

func (d *MetadataStoreMysql) open(dsn string) (*gorm.DB, error) {
	conf := gormstore.Config()
	conf.PrepareStmt = true
	return gorm.Open(gormmysql.Open(dsn), conf)
}

// Start implements the plugin.Plugin interface
func (d *MetadataStoreMysql) Start() error {
	dsn := d.DSN()
	metadataDb, err := d.open(dsn)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if !errors.As(err, &mysqlErr) || mysqlErr.Number != errUnknownDatabase {
			return err
		}
		if createErr := d.createDatabase(dsn); createErr != nil {
			return errors.Join(err, createErr)
		}
		metadataDb, err = d.open(dsn)
		if err != nil {
			return err
		}
	}
	sqlDB, err := metadataDb.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)
	if err := d.Init(metadataDb); err != nil {
		return err
	}
	d.Logger.Info(
		"connected to mysql metadata store",
		"component", "database",
		"host", d.host,
		"port", d.port,
		"database", d.database,
	)
	return nil
}

// createDatabase connects without a schema and creates the one named in dsn
func (d *MetadataStoreMysql) createDatabase(dsn string) error {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return err
	}
	dbName := cfg.DBName
	if dbName == "" {
		return errors.New("no database name in DSN")
	}
	cfg.DBName = ""
	adminDb, err := d.open(cfg.FormatDSN())
	if err != nil {
		return err
	}
	sqlAdminDb, err := adminDb.DB()
	if err != nil {
		return err
	}
	defer sqlAdminDb.Close()
	result := adminDb.Exec(
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", dbName),
	)
	return result.Error
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStoreMysql) Stop() error {
	return d.Close()
}
