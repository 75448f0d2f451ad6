package database

import (
	"context"
	"fmt"
	"time"

	"calendly/internal/config"
)

// SyncSchedulesFromConfig applies schedules.yaml to the database. It upserts the
// declared events, replaces each owner's schedule, and deactivates events of those
// owners that disappeared from the file. It returns the ids of the synced owners.
func (db *DB) SyncSchedulesFromConfig(ctx context.Context, cfg *config.SchedulesConfig) ([]string, error) {
	if cfg == nil {
		return nil, fmt.Errorf("schedules config is nil")
	}

	var synced []string
	for _, o := range cfg.Owners {
		sched, err := o.Schedule()
		if err != nil {
			return synced, fmt.Errorf("owner %s: %w", o.ID, err)
		}
		if err := db.SaveSchedule(ctx, sched); err != nil {
			return synced, fmt.Errorf("sync owner %s schedule: %w", o.ID, err)
		}

		seen := make(map[string]struct{}, len(o.Events))
		for _, e := range o.Events {
			ev := e.Event(o.ID)
			if err := db.upsertEvent(ctx, ev.ID, ev.OwnerID, ev.Name, ev.Description, ev.DurationMinutes, ev.IsActive); err != nil {
				return synced, fmt.Errorf("sync event %s: %w", ev.ID, err)
			}
			seen[ev.ID] = struct{}{}
		}

		if err := db.deactivateMissing(ctx, o.ID, seen); err != nil {
			return synced, err
		}
		synced = append(synced, o.ID)
	}

	db.logger.Info().Int("owners", len(synced)).Msg("Schedules synced from config")
	return synced, nil
}

func (db *DB) upsertEvent(ctx context.Context, id, ownerID, name, description string, duration int, active bool) error {
	now := time.Now().UTC()
	// Preserve created_at if the event already exists.
	_, err := db.ExecContext(ctx, `
		INSERT INTO events (id, owner_id, name, description, duration_minutes, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			name = excluded.name,
			description = excluded.description,
			duration_minutes = excluded.duration_minutes,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		id, ownerID, name, description, duration, active, now, now,
	)
	return err
}

func (db *DB) deactivateMissing(ctx context.Context, ownerID string, seen map[string]struct{}) error {
	rows, err := db.QueryContext(ctx, `SELECT id FROM events WHERE owner_id = ? AND is_active = 1`, ownerID)
	if err != nil {
		return err
	}

	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if _, ok := seen[id]; !ok {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, id := range stale {
		if _, err := db.ExecContext(ctx, `UPDATE events SET is_active = 0, updated_at = ? WHERE id = ?`, now, id); err != nil {
			return fmt.Errorf("deactivate event %s: %w", id, err)
		}
	}
	return nil
}
