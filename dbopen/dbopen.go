// Package dbopen opens the SQLite database that holds product catalogs,
// applying the pragmas optsync expects via EXEC so any driver works.
//
// Default pragmas:
//
//	foreign_keys = ON
//	journal_mode = WAL
//	busy_timeout = 10000
//
// Usage:
//
//	import _ "modernc.org/sqlite"
//	db, err := dbopen.Open("catalog.db", dbopen.WithSchema(catalog.Schema))
//
// In tests:
//
//	db := dbopen.OpenMemory(t, dbopen.WithSchema(catalog.Schema))
package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type config struct {
	driver      string
	busyTimeout int
	mkdirAll    bool
	readOnly    bool
	schemas     []string
}

// Option customises Open behaviour.
type Option func(*config)

// WithDriver sets the database/sql driver name. Default: "sqlite".
func WithDriver(name string) Option { return func(c *config) { c.driver = name } }

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 10000.
func WithBusyTimeout(ms int) Option { return func(c *config) { c.busyTimeout = ms } }

// WithMkdirAll creates parent directories of the database path before opening.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// WithReadOnly sets PRAGMA query_only so a running engine can never write
// to a catalog it shares with the editing tool.
func WithReadOnly() Option { return func(c *config) { c.readOnly = true } }

// WithSchema queues inline SQL to execute after pragmas are applied.
func WithSchema(s string) Option { return func(c *config) { c.schemas = append(c.schemas, s) } }

// Open opens an SQLite database at path. The caller blank-imports the driver.
func Open(path string, opts ...Option) (*sql.DB, error) {
	cfg := config{driver: "sqlite", busyTimeout: 10_000}
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	db, err := sql.Open(cfg.driver, path)
	if err != nil {
		return nil, fmt.Errorf("dbopen: open: %w", err)
	}
	if cfg.readOnly {
		// query_only is per connection.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout),
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: %s: %w", p, err)
		}
	}

	// Schema runs before query_only so a read-only open can still create an
	// empty catalog on first start.
	for _, s := range cfg.schemas {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: exec schema: %w", err)
		}
	}

	if cfg.readOnly {
		if _, err := db.Exec("PRAGMA query_only = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: query_only: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbopen: ping: %w", err)
	}
	return db, nil
}

// OpenMemory opens an in-memory database for tests, pinned to one
// connection (each ":memory:" connection is a separate database) and closed
// on cleanup.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// IsBusy reports whether err indicates an SQLite BUSY condition.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// RunTx executes fn in a transaction, retrying up to three times with
// 100/200/300 ms backoff while the database is busy.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	const attempts = 3
	var err error
	for i := 0; i < attempts; i++ {
		if err = runOnce(ctx, db, fn); err == nil || !IsBusy(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("dbopen: context cancelled during retry: %w", ctx.Err())
		case <-time.After(time.Duration(100*(i+1)) * time.Millisecond):
		}
	}
	return err
}

func runOnce(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbopen: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: commit: %w", err)
	}
	return nil
}
