// Package mariadb reads student records from the school-management database.
// The connection is read-only in practice: nothing here writes to the school's tables.
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

const (
	dialTimeout  = 5 * time.Second
	readTimeout  = 15 * time.Second
	pingTimeout  = 10 * time.Second
	maxOpenConns = 3
)

// Pool is a small connection pool to the school database. Lookups happen once per
// recorded attendance and during `students sync`, so a few connections are plenty.
type Pool struct {
	db *sql.DB
}

// schoolConfig parses the DSN and fills in the settings the directory relies on.
// Explicit values in the DSN win over the defaults.
func schoolConfig(dsn string) (*mysql.Config, error) {
	if dsn == "" {
		return nil, errors.New("school database DSN is required")
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing school database DSN: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Timeout == 0 {
		cfg.Timeout = dialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = readTimeout
	}
	return cfg, nil
}

// NewPool connects to the school database and checks it is reachable.
func NewPool(dsn string) (*Pool, error) {
	cfg, err := schoolConfig(dsn)
	if err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("configuring school database: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach school database at %s: %w", cfg.Addr, err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing school database: %w", err)
		}
	}
	return nil
}
