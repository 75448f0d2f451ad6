package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"calendly/internal/model"
)

const eventColumns = `id, owner_id, name, description, duration_minutes, is_active, created_at, updated_at`

// CreateEvent inserts a new event. An empty ID is filled with a UUID.
func (db *DB) CreateEvent(ctx context.Context, ev *model.Event) error {
	if ev == nil {
		return fmt.Errorf("event is nil")
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.OwnerID, ev.Name, ev.Description, ev.DurationMinutes, ev.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	ev.CreatedAt, ev.UpdatedAt = now, now
	return nil
}

// UpdateEvent replaces the editable fields of an owner's event.
func (db *DB) UpdateEvent(ctx context.Context, ev *model.Event) error {
	if ev == nil {
		return fmt.Errorf("event is nil")
	}
	if err := ev.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	res, err := db.ExecContext(ctx, `
		UPDATE events
		SET name = ?, description = ?, duration_minutes = ?, is_active = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		ev.Name, ev.Description, ev.DurationMinutes, ev.IsActive, now, ev.ID, ev.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	ev.UpdatedAt = now
	return nil
}

// DeleteEvent removes an owner's event.
func (db *DB) DeleteEvent(ctx context.Context, ownerID, eventID string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM events WHERE id = ? AND owner_id = ?`, eventID, ownerID)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// GetEvent returns an event of the owner, or model.ErrNotFound.
func (db *DB) GetEvent(ctx context.Context, ownerID, eventID string) (*model.Event, error) {
	row := db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ? AND owner_id = ?`, eventID, ownerID)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

// ListEvents returns the owner's events ordered by name.
func (db *DB) ListEvents(ctx context.Context, ownerID string, activeOnly bool) ([]model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE owner_id = ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY name, id`

	rows, err := db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (*model.Event, error) {
	var ev model.Event
	if err := s.Scan(&ev.ID, &ev.OwnerID, &ev.Name, &ev.Description, &ev.DurationMinutes, &ev.IsActive, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
		return nil, err
	}
	ev.CreatedAt = ev.CreatedAt.UTC()
	ev.UpdatedAt = ev.UpdatedAt.UTC()
	return &ev, nil
}
