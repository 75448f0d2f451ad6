// Package postgres is the PostgreSQL record store, used in production deployments.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Store implements the record store on a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *zerolog.Logger
}

// Open connects to databaseURL and creates the schema if needed.
func Open(ctx context.Context, databaseURL string, maxConns int32, logger *zerolog.Logger) (*Store, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s := &Store{pool: pool, logger: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info().Msg("Postgres store initialized")
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS btree_gist`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS schedules (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL UNIQUE,
			timezone TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS availabilities (
			id BIGSERIAL PRIMARY KEY,
			schedule_id TEXT NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
			day_of_week SMALLINT NOT NULL CHECK (day_of_week BETWEEN 0 AND 6),
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			event_id TEXT NOT NULL DEFAULT '',
			guest_name TEXT NOT NULL DEFAULT '',
			guest_email TEXT NOT NULL DEFAULT '',
			start_utc TIMESTAMPTZ NOT NULL,
			end_utc TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CHECK (start_utc < end_utc),
			EXCLUDE USING gist (owner_id WITH =, tstzrange(start_utc, end_utc, '[)') WITH &&)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_owner ON events(owner_id, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_availabilities_schedule ON availabilities(schedule_id, day_of_week)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks the pool.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
