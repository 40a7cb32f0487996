// Package repository provides PostgreSQL persistence for workflows,
// schedules, runs, and integration credentials.
package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/config"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/logger"
)

// Postgres wraps the pooled database handle the repositories share.
type Postgres struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewPostgres connects to the database and configures the pool.
func NewPostgres(cfg config.DatabaseConfig, log *logger.Logger) (*Postgres, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	log.Info("database connected",
		"host", cfg.Host,
		"database", cfg.Database,
		"max_open_conns", cfg.MaxOpenConns,
	)

	return &Postgres{
		db:     db,
		logger: log.WithComponent("repository"),
	}, nil
}

// DB returns the underlying handle.
func (p *Postgres) DB() *sqlx.DB {
	return p.db
}

// Close closes the pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Ping checks connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// WithTransaction executes fn inside a transaction, rolling back on error
// or panic.
func (p *Postgres) WithTransaction(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			p.logger.Error("transaction rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
