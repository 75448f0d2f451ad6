package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"calendly/internal/interval"
	"calendly/internal/model"
	"calendly/internal/schedule"
)

const eventColumns = `id, owner_id, name, description, duration_minutes, is_active, created_at, updated_at`

func (s *Store) CreateEvent(ctx context.Context, ev *model.Event) error {
	if ev == nil {
		return fmt.Errorf("event is nil")
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	return s.pool.QueryRow(ctx, `
		INSERT INTO events (id, owner_id, name, description, duration_minutes, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, ev.ID, ev.OwnerID, ev.Name, ev.Description, ev.DurationMinutes, ev.IsActive).Scan(&ev.CreatedAt, &ev.UpdatedAt)
}

func (s *Store) UpdateEvent(ctx context.Context, ev *model.Event) error {
	if ev == nil {
		return fmt.Errorf("event is nil")
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	err := s.pool.QueryRow(ctx, `
		UPDATE events
		SET name = $3, description = $4, duration_minutes = $5, is_active = $6, updated_at = now()
		WHERE id = $1 AND owner_id = $2
		RETURNING updated_at
	`, ev.ID, ev.OwnerID, ev.Name, ev.Description, ev.DurationMinutes, ev.IsActive).Scan(&ev.UpdatedAt)
	if isNotFound(err) {
		return model.ErrNotFound
	}
	return err
}

func (s *Store) DeleteEvent(ctx context.Context, ownerID, eventID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM events WHERE id = $1 AND owner_id = $2`, eventID, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, ownerID, eventID string) (*model.Event, error) {
	var ev model.Event
	err := s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 AND owner_id = $2`, eventID, ownerID).
		Scan(&ev.ID, &ev.OwnerID, &ev.Name, &ev.Description, &ev.DurationMinutes, &ev.IsActive, &ev.CreatedAt, &ev.UpdatedAt)
	if isNotFound(err) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (s *Store) ListEvents(ctx context.Context, ownerID string, activeOnly bool) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE owner_id = $1 AND (NOT $2 OR is_active)
		ORDER BY name, id
	`, ownerID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var ev model.Event
		if err := rows.Scan(&ev.ID, &ev.OwnerID, &ev.Name, &ev.Description, &ev.DurationMinutes, &ev.IsActive, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// CreateSchedule stores the owner's first schedule; the unique owner_id column
// rejects a second one.
func (s *Store) CreateSchedule(ctx context.Context, sc *schedule.Schedule) error {
	if sc == nil {
		return fmt.Errorf("schedule is nil")
	}
	if err := sc.Validate(); err != nil {
		return err
	}
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO schedules (id, owner_id, timezone)
			VALUES ($1, $2, $3)
			RETURNING created_at, updated_at
		`, sc.ID, sc.OwnerID, sc.Timezone).Scan(&sc.CreatedAt, &sc.UpdatedAt)
		if isUniqueViolation(err) {
			return model.ErrScheduleExists
		}
		if err != nil {
			return err
		}
		return insertWindows(ctx, tx, sc.ID, sc.Availabilities)
	})
}

// SaveSchedule creates or replaces the owner's schedule in one transaction.
func (s *Store) SaveSchedule(ctx context.Context, sc *schedule.Schedule) error {
	if sc == nil {
		return fmt.Errorf("schedule is nil")
	}
	if err := sc.Validate(); err != nil {
		return err
	}
	id := sc.ID
	if id == "" {
		id = uuid.NewString()
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO schedules (id, owner_id, timezone)
			VALUES ($1, $2, $3)
			ON CONFLICT (owner_id) DO UPDATE SET timezone = EXCLUDED.timezone, updated_at = now()
			RETURNING id, created_at, updated_at
		`, id, sc.OwnerID, sc.Timezone).Scan(&sc.ID, &sc.CreatedAt, &sc.UpdatedAt)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM availabilities WHERE schedule_id = $1`, sc.ID); err != nil {
			return err
		}
		return insertWindows(ctx, tx, sc.ID, sc.Availabilities)
	})
}

func insertWindows(ctx context.Context, tx pgx.Tx, scheduleID string, windows []schedule.Window) error {
	if len(windows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, w := range windows {
		batch.Queue(`
			INSERT INTO availabilities (schedule_id, day_of_week, start_time, end_time)
			VALUES ($1, $2, $3, $4)
		`, scheduleID, int16(w.Day), w.Start.String(), w.End.String())
	}
	return tx.SendBatch(ctx, batch).Close()
}

func (s *Store) GetSchedule(ctx context.Context, ownerID string) (*schedule.Schedule, error) {
	var sc schedule.Schedule
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, timezone, created_at, updated_at
		FROM schedules WHERE owner_id = $1
	`, ownerID).Scan(&sc.ID, &sc.OwnerID, &sc.Timezone, &sc.CreatedAt, &sc.UpdatedAt)
	if isNotFound(err) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT day_of_week, start_time, end_time
		FROM availabilities WHERE schedule_id = $1
		ORDER BY day_of_week, start_time
	`, sc.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var day int16
		var start, end string
		if err := rows.Scan(&day, &start, &end); err != nil {
			return nil, err
		}
		w, err := schedule.ParseWindow(schedule.WeekdayName(time.Weekday(day)), start, end)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", sc.ID, err)
		}
		sc.Availabilities = append(sc.Availabilities, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// CreateBooking relies on the bookings exclusion constraint to reject overlaps.
func (s *Store) CreateBooking(ctx context.Context, b *model.Booking) error {
	if b == nil {
		return fmt.Errorf("booking is nil")
	}
	if err := b.Validate(); err != nil {
		return err
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO bookings (id, owner_id, event_id, guest_name, guest_email, start_utc, end_utc)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, b.ID, b.OwnerID, b.EventID, b.GuestName, b.GuestEmail, b.StartUTC.UTC(), b.EndUTC.UTC()).Scan(&b.CreatedAt)
	if isConflict(err) {
		return model.ErrSlotTaken
	}
	return err
}

func (s *Store) ListBookings(ctx context.Context, ownerID string, window interval.Range[time.Time]) ([]model.Booking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, event_id, guest_name, guest_email, start_utc, end_utc, created_at
		FROM bookings
		WHERE owner_id = $1 AND start_utc < $3 AND end_utc > $2
		ORDER BY start_utc ASC
	`, ownerID, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(&b.ID, &b.OwnerID, &b.EventID, &b.GuestName, &b.GuestEmail, &b.StartUTC, &b.EndUTC, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.StartUTC = b.StartUTC.UTC()
		b.EndUTC = b.EndUTC.UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}
