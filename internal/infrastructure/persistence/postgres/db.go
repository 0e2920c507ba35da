// Package postgres implements the publish repositories on PostgreSQL through
// the pgx database/sql driver. Aggregates carry a revision column checked on
// every update.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed schema.sql
var schema string

// Config configures the connection pool.
type Config struct {
	URL             string
	PingTimeout     time.Duration
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("postgres dsn is required")
	}
	if c.MaxOpenConns < 1 {
		return errors.New("max open connections must be >= 1")
	}
	return nil
}

// Open opens and pings a connection pool.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	lifetime := cfg.ConnMaxLifetime
	if lifetime == 0 {
		lifetime = 30 * time.Minute
	}
	db.SetConnMaxLifetime(lifetime)

	timeout := cfg.PingTimeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return db, nil
}

// Migrate creates missing tables and indexes. It is safe to run repeatedly.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// Repositories groups every repository over one pool.
type Repositories struct {
	Tasks          *TaskRepository
	Iterations     *IterationRepository
	Processes      *ProcessRepository
	Projects       *ProjectRepository
	Configurations *ConfigurationRepository
	Domains        *DomainRepository
	ThirdParty     *ThirdPartyRepository
	History        *HistoryRepository
	Operations     *OperationRepository
}

// NewRepositories creates the repositories.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Tasks:          &TaskRepository{db: db},
		Iterations:     &IterationRepository{db: db},
		Processes:      &ProcessRepository{db: db},
		Projects:       &ProjectRepository{db: db},
		Configurations: &ConfigurationRepository{db: db},
		Domains:        &DomainRepository{db: db},
		ThirdParty:     &ThirdPartyRepository{db: db},
		History:        &HistoryRepository{db: db},
		Operations:     &OperationRepository{db: db},
	}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// jsonParam encodes v for a JSONB column. A nil pointer or map is stored as
// SQL NULL when nullable is set.
func jsonParam(v any, nullable bool) (any, error) {
	if nullable && isNil(v) {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding json column: %w", err)
	}
	return string(data), nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	data, err := json.Marshal(v)
	return err == nil && string(data) == "null"
}

// decodeJSON decodes a JSONB column; NULL leaves dst untouched.
func decodeJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decoding json column: %w", err)
	}
	return nil
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}
	return n, nil
}
