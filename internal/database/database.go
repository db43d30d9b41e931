package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"studyroom/internal/migrations"
	"studyroom/internal/retry"
	"studyroom/internal/security"

	"github.com/benbjohnson/clock"
	_ "github.com/mattn/go-sqlite3"
)

const dsnParams = "?_foreign_keys=on&_busy_timeout=5000"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Database struct {
	db        *sql.DB
	encryptor *encryptor
	clock     clock.Clock
	backoff   *retry.Backoff
}

type options struct {
	secret  string
	clock   clock.Clock
	backoff retry.BackoffConfig
}

// Option configures a Database.
type Option func(*options)

// WithEncryptionSecret enables encryption of message text at rest.
func WithEncryptionSecret(secret string) Option {
	return func(o *options) { o.secret = secret }
}

// WithClock sets the clock used for server-assigned timestamps.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRetryPolicy overrides the backoff used for busy or locked databases.
func WithRetryPolicy(cfg retry.BackoffConfig) Option {
	return func(o *options) { o.backoff = cfg }
}

func New(dbPath string, opts ...Option) (*Database, error) {
	o := options{
		clock:   clock.New(),
		backoff: retry.DefaultBackoffConfig(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	enc, err := newEncryptor(o.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers; one connection keeps transactions simple.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := migrations.Run(context.Background(), db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Database{
		db:        db,
		encryptor: enc,
		clock:     o.clock,
		backoff:   retry.NewBackoff(o.backoff),
	}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Ping checks the connection for health reporting.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// EncryptionEnabled reports whether message text is encrypted at rest.
func (d *Database) EncryptionEnabled() bool {
	return d.encryptor.Enabled()
}

func (d *Database) now() time.Time {
	return d.clock.Now().UTC()
}

func (d *Database) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func fromNanos(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}
