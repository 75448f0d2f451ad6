package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"calendly/internal/interval"
	"calendly/internal/model"
)

// CreateBooking stores a booking unless it overlaps an existing booking of the owner.
func (db *DB) CreateBooking(ctx context.Context, b *model.Booking) error {
	if b == nil {
		return fmt.Errorf("booking is nil")
	}
	if err := b.Validate(); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var overlapping int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bookings
		WHERE owner_id = ? AND start_utc < ? AND end_utc > ?`,
		b.OwnerID, b.EndUTC.Unix(), b.StartUTC.Unix(),
	).Scan(&overlapping)
	if err != nil {
		return fmt.Errorf("check overlap: %w", err)
	}
	if overlapping > 0 {
		return model.ErrSlotTaken
	}

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO bookings (id, owner_id, event_id, guest_name, guest_email, start_utc, end_utc, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.OwnerID, b.EventID, b.GuestName, b.GuestEmail, b.StartUTC.Unix(), b.EndUTC.Unix(), now,
	); err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	b.CreatedAt = now
	return nil
}

// ListBookings returns the owner's bookings whose span intersects window.
func (db *DB) ListBookings(ctx context.Context, ownerID string, window interval.Range[time.Time]) ([]model.Booking, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, owner_id, COALESCE(event_id, ''), guest_name, guest_email, start_utc, end_utc, created_at
		FROM bookings
		WHERE owner_id = ? AND start_utc < ? AND end_utc > ?
		ORDER BY start_utc`,
		ownerID, window.End.Unix(), window.Start.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		var b model.Booking
		var start, end int64
		if err := rows.Scan(&b.ID, &b.OwnerID, &b.EventID, &b.GuestName, &b.GuestEmail, &start, &end, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.StartUTC = time.Unix(start, 0).UTC()
		b.EndUTC = time.Unix(end, 0).UTC()
		b.CreatedAt = b.CreatedAt.UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}
