// Copyright 2025 Certen Protocol
//
// Package store implements the PersistentStore: connection pooling,
// migrations and repositories for positions, transactions,
// pending_signatures, audit_log and system_config (§6).
//
// Grounded on pkg/database/client.go: database/sql + lib/pq,
// functional-options Client, //go:embed migrations, a schema_migrations
// table and a Tx wrapper around BeginTx/Commit/Rollback.

package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Client is the shared connection pool every repository and step writes
// through. Each step uses at most one short transaction per §5.
type Client struct {
	db     *sql.DB
	logger *log.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger overrides the client's logger.
func WithLogger(logger *log.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// Options bundles the pool-sizing knobs read from internal/config.Config.
type Options struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	MaxIdleTime  time.Duration
	MaxLifetime  time.Duration
}

// NewClient opens the pool and verifies connectivity. A failed ping is
// fatal at startup per §6's exit-code-1 contract.
func NewClient(opts Options, clientOpts ...ClientOption) (*Client, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("store: database URL cannot be empty")
	}

	c := &Client{logger: log.New(log.Writer(), "[Store] ", log.LstdFlags)}
	for _, o := range clientOpts {
		o(c)
	}

	db, err := sql.Open("postgres", opts.URL)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxIdleTime(opts.MaxIdleTime)
	db.SetConnMaxLifetime(opts.MaxLifetime)
	c.db = db

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	c.logger.Printf("connected to database (max_open=%d, max_idle=%d)", opts.MaxOpenConns, opts.MaxIdleConns)
	return c, nil
}

// DB returns the underlying *sql.DB for repositories in this package.
func (c *Client) DB() *sql.DB { return c.db }

// NewClientFromDB wraps an already-open *sql.DB, skipping NewClient's
// DSN-dial-and-ping path. Used to point a repository at a sqlmock-backed
// db in tests outside this package; production callers use NewClient.
func NewClientFromDB(db *sql.DB, clientOpts ...ClientOption) *Client {
	c := &Client{db: db, logger: log.New(log.Writer(), "[Store] ", log.LstdFlags)}
	for _, o := range clientOpts {
		o(c)
	}
	return c
}

// Close releases the pool.
func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	c.logger.Println("closing database connection")
	return c.db.Close()
}

// Ping verifies the connection is alive.
func (c *Client) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }

// migration is one embedded *.sql file.
type migration struct {
	Version string
	SQL     string
}

// MigrateUp applies every pending embedded migration in order, recording
// each in schema_migrations.
func (c *Client) MigrateUp(ctx context.Context) error {
	c.logger.Println("running database migrations")

	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("store: load migrations: %w", err)
	}

	applied, err := c.appliedMigrations(ctx)
	if err != nil {
		if !strings.Contains(err.Error(), "does not exist") {
			return fmt.Errorf("store: query applied migrations: %w", err)
		}
		applied = make(map[string]bool)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			c.logger.Printf("  skipping %s (already applied)", m.Version)
			continue
		}
		c.logger.Printf("  applying %s", m.Version)
		if err := c.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("store: apply migration %s: %w", m.Version, err)
		}
	}

	c.logger.Println("migrations complete")
	return nil
}

func loadMigrations() ([]migration, error) {
	var out []migration
	err := fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}
		content, err := migrationsFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		out = append(out, migration{Version: strings.TrimSuffix(d.Name(), ".sql"), SQL: string(content)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (c *Client) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (c *Client) applyMigration(ctx context.Context, m migration) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("execute migration sql: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING`, m.Version); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}

// Tx wraps a single *sql.Tx for the "write TxRecord + audit row
// atomically" pattern every step uses (§5).
type Tx struct{ tx *sql.Tx }

// BeginTx starts a new transaction.
func (c *Client) BeginTx(ctx context.Context) (*Tx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }
func (t *Tx) Raw() *sql.Tx    { return t.tx }
