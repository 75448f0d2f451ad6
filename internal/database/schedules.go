package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"calendly/internal/model"
	"calendly/internal/schedule"
)

// CreateSchedule stores the owner's first schedule. An owner has at most one.
func (db *DB) CreateSchedule(ctx context.Context, s *schedule.Schedule) error {
	if s == nil {
		return fmt.Errorf("schedule is nil")
	}
	if err := s.Validate(); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT id FROM schedules WHERE owner_id = ?`, s.OwnerID).Scan(&existing)
	if err == nil {
		return model.ErrScheduleExists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check existing: %w", err)
	}

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO schedules (id, owner_id, timezone, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.OwnerID, s.Timezone, now, now,
	); err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	if err := insertWindows(ctx, tx, s.ID, s.Availabilities); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.CreatedAt, s.UpdatedAt = now, now
	return nil
}

// SaveSchedule creates or replaces the owner's schedule. All windows are swapped
// in one transaction so readers never see a half-written week.
func (db *DB) SaveSchedule(ctx context.Context, s *schedule.Schedule) error {
	if s == nil {
		return fmt.Errorf("schedule is nil")
	}
	if err := s.Validate(); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	var id string
	var createdAt time.Time
	err = tx.QueryRowContext(ctx, `SELECT id, created_at FROM schedules WHERE owner_id = ?`, s.OwnerID).Scan(&id, &createdAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = s.ID
		if id == "" {
			id = uuid.NewString()
		}
		createdAt = now
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO schedules (id, owner_id, timezone, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			id, s.OwnerID, s.Timezone, now, now,
		); err != nil {
			return fmt.Errorf("insert schedule: %w", err)
		}
	case err != nil:
		return fmt.Errorf("load schedule: %w", err)
	default:
		if _, err := tx.ExecContext(ctx, `UPDATE schedules SET timezone = ?, updated_at = ? WHERE id = ?`, s.Timezone, now, id); err != nil {
			return fmt.Errorf("update schedule: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM availabilities WHERE schedule_id = ?`, id); err != nil {
			return fmt.Errorf("clear windows: %w", err)
		}
	}

	if err := insertWindows(ctx, tx, id, s.Availabilities); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.ID = id
	s.CreatedAt = createdAt.UTC()
	s.UpdatedAt = now
	return nil
}

func insertWindows(ctx context.Context, tx *sql.Tx, scheduleID string, windows []schedule.Window) error {
	for _, w := range windows {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO availabilities (schedule_id, day_of_week, start_time, end_time)
			VALUES (?, ?, ?, ?)`,
			scheduleID, int(w.Day), w.Start.String(), w.End.String(),
		); err != nil {
			return fmt.Errorf("insert window %s %s-%s: %w", schedule.WeekdayName(w.Day), w.Start, w.End, err)
		}
	}
	return nil
}

// GetSchedule returns the owner's schedule, or model.ErrNotFound.
func (db *DB) GetSchedule(ctx context.Context, ownerID string) (*schedule.Schedule, error) {
	var s schedule.Schedule
	err := db.QueryRowContext(ctx, `
		SELECT id, owner_id, timezone, created_at, updated_at
		FROM schedules WHERE owner_id = ?`,
		ownerID,
	).Scan(&s.ID, &s.OwnerID, &s.Timezone, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()

	rows, err := db.QueryContext(ctx, `
		SELECT day_of_week, start_time, end_time
		FROM availabilities WHERE schedule_id = ?
		ORDER BY day_of_week, start_time`,
		s.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var day int
		var start, end string
		if err := rows.Scan(&day, &start, &end); err != nil {
			return nil, err
		}
		w, err := parseStoredWindow(day, start, end)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", s.ID, err)
		}
		s.Availabilities = append(s.Availabilities, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &s, nil
}

func parseStoredWindow(day int, start, end string) (schedule.Window, error) {
	s, err := schedule.ParseClock(start)
	if err != nil {
		return schedule.Window{}, err
	}
	e, err := schedule.ParseClock(end)
	if err != nil {
		return schedule.Window{}, err
	}
	w := schedule.Window{Day: time.Weekday(day), Start: s, End: e}
	return w, w.Validate()
}
