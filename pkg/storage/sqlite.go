/*
 * Copyright (c) 2026, The Covault Authors.
 *
 * The Covault Authors license this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package storage

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

//go:embed covault-sqlite.sql
var sqliteSchemaSQL string

const sqliteSchemaVersion = 1

type sqliteDialect struct{}

func (sqliteDialect) name() string { return "sqlite" }

// SQLite transactions are serializable by default; _txlock=immediate in
// the DSN takes the write lock at BEGIN instead of on first write.
func (sqliteDialect) txOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: sql.LevelSerializable}
}

func (sqliteDialect) isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
				sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
	}
	return false
}

func (sqliteDialect) isTransient(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// NewSQLiteStore opens (or creates) a SQLite-backed store at dbPath.
func NewSQLiteStore(dbPath string, busyTimeout, txTimeout time.Duration, logger *zap.Logger) (Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL&_foreign_keys=ON&_txlock=immediate&_loc=UTC",
		dbPath, busyTimeout.Milliseconds())

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection sidesteps SQLITE_BUSY between pooled writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := initSQLiteSchema(db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite store ready", zap.String("path", dbPath))
	return &sqlStore{
		db:        db,
		dialect:   sqliteDialect{},
		logger:    logger,
		txTimeout: txTimeout,
	}, nil
}

func initSQLiteSchema(db *sqlx.DB, logger *zap.Logger) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to query schema version: %w", err)
	}

	if version == 0 {
		if _, err := db.Exec(sqliteSchemaSQL); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", sqliteSchemaVersion)); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
		logger.Info("Database schema initialized successfully")
		return nil
	}

	if version > sqliteSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, sqliteSchemaVersion)
	}
	return nil
}
