// Package postgres is the SQL storage driver: orders, push subscriptions and
// the insert trigger that feeds LISTEN/NOTIFY change detection.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// schemaLockID serializes concurrent schema application across replicas.
const schemaLockID = 7_311_004

// DB is an open connection pool with the schema applied.
type DB struct {
	db  *sql.DB
	url string
}

// Open connects, verifies the connection and applies the embedded schema.
func Open(ctx context.Context, url string) (*DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{db: db, url: url}, nil
}

func applySchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return err
	}
	return tx.Commit()
}

// URL is the connection string, reused by the LISTEN connection.
func (d *DB) URL() string { return d.url }

// SQL exposes the pool for publishing notifications and tests.
func (d *DB) SQL() *sql.DB { return d.db }

// Ping checks connectivity.
func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

// Close closes the pool.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Orders returns the orders.Store view.
func (d *DB) Orders() *OrderStore { return &OrderStore{db: d.db, now: time.Now} }

// Subscriptions returns the subscriptions.Registry view.
func (d *DB) Subscriptions() *Registry { return &Registry{db: d.db} }
