package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps sql.DB for the booking store.
type DB struct {
	*sql.DB
	path string
}

// NewDB opens the database at path and runs migrations.
// Transactions start with BEGIN IMMEDIATE so a check-then-insert holds the write lock.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if logger != nil {
		logger.Info().Str("path", path).Msg("database initialized")
	}
	return &DB{DB: db, path: path}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			chef_id TEXT NOT NULL,
			user_id TEXT,
			date TEXT NOT NULL,
			start_time TEXT NOT NULL,
			duration_hours INTEGER NOT NULL,
			guest_count INTEGER NOT NULL,
			service_type TEXT NOT NULL,
			base_price INTEGER NOT NULL,
			service_multiplier REAL NOT NULL DEFAULT 1,
			guest_multiplier REAL NOT NULL DEFAULT 1,
			surge_multiplier REAL NOT NULL DEFAULT 1,
			surge_reason TEXT NOT NULL DEFAULT '',
			add_ons TEXT NOT NULL DEFAULT '[]',
			add_on_total INTEGER NOT NULL DEFAULT 0,
			total_price INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			payment_status TEXT NOT NULL DEFAULT 'pending',
			payment_reference TEXT NOT NULL DEFAULT '',
			refund_reference TEXT NOT NULL DEFAULT '',
			refund_amount INTEGER NOT NULL DEFAULT 0,
			note TEXT NOT NULL DEFAULT '',
			completed_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			version INTEGER NOT NULL DEFAULT 1
		)`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_chef_date ON bookings(chef_id, date, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status_date ON bookings(status, date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_payment_reference ON bookings(payment_reference)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// Ready pings the database with a short deadline.
func (db *DB) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return db.PingContext(ctx)
}
