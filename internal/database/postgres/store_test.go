package postgres

import (
	"context"
	"io"
	"os"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calendly/internal/config"
	"calendly/internal/interval"
	"calendly/internal/model"
	"calendly/internal/schedule"
)

// Set CALENDLY_TEST_POSTGRES_URL to run against a disposable database.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("CALENDLY_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("CALENDLY_TEST_POSTGRES_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger := zerolog.New(io.Discard)
	s, err := Open(ctx, url, 4, &logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.pool.Exec(context.Background(), `TRUNCATE events, availabilities, schedules, bookings`)
		s.Close()
	})
	_, err = s.pool.Exec(ctx, `TRUNCATE events, availabilities, schedules, bookings`)
	require.NoError(t, err)
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))

	ev := &model.Event{OwnerID: "owner-1", Name: "Intro call", DurationMinutes: 30, IsActive: true}
	require.NoError(t, s.CreateEvent(ctx, ev))
	got, err := s.GetEvent(ctx, "owner-1", ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.Name, got.Name)

	_, err = s.GetEvent(ctx, "owner-2", ev.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	ev.IsActive = false
	require.NoError(t, s.UpdateEvent(ctx, ev))
	active, err := s.ListEvents(ctx, "owner-1", true)
	require.NoError(t, err)
	assert.Empty(t, active)

	sc := &schedule.Schedule{
		OwnerID:  "owner-1",
		Timezone: "America/New_York",
		Availabilities: []schedule.Window{
			{Day: time.Monday, Start: schedule.MustClock("09:00"), End: schedule.MustClock("17:00")},
			{Day: time.Friday, Start: schedule.MustClock("20:00"), End: schedule.EndOfDay},
		},
	}
	require.NoError(t, s.CreateSchedule(ctx, sc))
	assert.ErrorIs(t, s.CreateSchedule(ctx, &schedule.Schedule{OwnerID: "owner-1", Timezone: "UTC"}), model.ErrScheduleExists)

	loaded, err := s.GetSchedule(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, sc.Availabilities, loaded.Availabilities)

	loaded.Availabilities = loaded.Availabilities[:1]
	require.NoError(t, s.SaveSchedule(ctx, loaded))
	again, err := s.GetSchedule(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, sc.ID, again.ID)
	assert.Len(t, again.Availabilities, 1)

	start := time.Date(2026, 1, 12, 17, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateBooking(ctx, &model.Booking{OwnerID: "owner-1", StartUTC: start, EndUTC: start.Add(time.Hour)}))
	require.NoError(t, s.CreateBooking(ctx, &model.Booking{OwnerID: "owner-1", StartUTC: start.Add(time.Hour), EndUTC: start.Add(2 * time.Hour)}))
	assert.ErrorIs(t, s.CreateBooking(ctx, &model.Booking{OwnerID: "owner-1", StartUTC: start.Add(30 * time.Minute), EndUTC: start.Add(90 * time.Minute)}), model.ErrSlotTaken)

	list, err := s.ListBookings(ctx, "owner-1", interval.New(start, start.Add(time.Hour)))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, start, list[0].StartUTC)

	require.NoError(t, s.DeleteEvent(ctx, "owner-1", ev.ID))
	assert.ErrorIs(t, s.DeleteEvent(ctx, "owner-1", ev.ID), model.ErrNotFound)
}

func TestSyncSchedulesFromConfig(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stale := &model.Event{OwnerID: "owner-1", Name: "Old", DurationMinutes: 15, IsActive: true}
	require.NoError(t, s.CreateEvent(ctx, stale))

	cfg := &config.SchedulesConfig{Owners: []config.OwnerConfig{{
		ID:       "owner-1",
		Timezone: "Europe/Berlin",
		Windows:  []config.WindowConfig{{Day: "tue", Start: "10:00", End: "12:00"}},
		Events: []config.EventConfig{
			{ID: "3b9a2c44-7e0d-4f5a-9c1b-2d3e4f5a6b7c", Name: "Review", DurationMinutes: 60},
		},
	}}}

	owners, err := s.SyncSchedulesFromConfig(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"owner-1"}, owners)

	sched, err := s.GetSchedule(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", sched.Timezone)

	old, err := s.GetEvent(ctx, "owner-1", stale.ID)
	require.NoError(t, err)
	assert.False(t, old.IsActive)

	ev, err := s.GetEvent(ctx, "owner-1", "3b9a2c44-7e0d-4f5a-9c1b-2d3e4f5a6b7c")
	require.NoError(t, err)
	assert.True(t, ev.IsActive)
	assert.Equal(t, 60, ev.DurationMinutes)
}
