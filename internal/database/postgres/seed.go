package postgres

import (
	"context"
	"fmt"

	"calendly/internal/config"
)

// SyncSchedulesFromConfig applies schedules.yaml the same way the sqlite store does:
// events are upserted, each owner's schedule replaced, and events missing from the
// file deactivated. Owners are synced one transaction each.
func (s *Store) SyncSchedulesFromConfig(ctx context.Context, cfg *config.SchedulesConfig) ([]string, error) {
	if cfg == nil {
		return nil, fmt.Errorf("schedules config is nil")
	}

	var synced []string
	for _, o := range cfg.Owners {
		sched, err := o.Schedule()
		if err != nil {
			return synced, fmt.Errorf("owner %s: %w", o.ID, err)
		}
		if err := s.SaveSchedule(ctx, sched); err != nil {
			return synced, fmt.Errorf("sync owner %s schedule: %w", o.ID, err)
		}

		ids := make([]string, 0, len(o.Events))
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return synced, err
		}
		for _, e := range o.Events {
			ev := e.Event(o.ID)
			_, err := tx.Exec(ctx, `
				INSERT INTO events (id, owner_id, name, description, duration_minutes, is_active)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (id) DO UPDATE SET
					owner_id = EXCLUDED.owner_id,
					name = EXCLUDED.name,
					description = EXCLUDED.description,
					duration_minutes = EXCLUDED.duration_minutes,
					is_active = EXCLUDED.is_active,
					updated_at = now()
			`, ev.ID, ev.OwnerID, ev.Name, ev.Description, ev.DurationMinutes, ev.IsActive)
			if err != nil {
				_ = tx.Rollback(ctx)
				return synced, fmt.Errorf("sync event %s: %w", ev.ID, err)
			}
			ids = append(ids, ev.ID)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE events SET is_active = FALSE, updated_at = now()
			WHERE owner_id = $1 AND is_active AND NOT (id = ANY($2))
		`, o.ID, ids); err != nil {
			_ = tx.Rollback(ctx)
			return synced, fmt.Errorf("deactivate stale events of %s: %w", o.ID, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return synced, err
		}
		synced = append(synced, o.ID)
	}

	s.logger.Info().Int("owners", len(synced)).Msg("Schedules synced from config")
	return synced, nil
}
