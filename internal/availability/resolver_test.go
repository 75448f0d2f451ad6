package availability

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calendly/internal/conflicts"
	"calendly/internal/interval"
	"calendly/internal/model"
	"calendly/internal/schedule"
)

const (
	owner   = "owner-1"
	eventID = "event-1"
)

type fakeStore struct {
	mu        sync.Mutex
	events    map[string]*model.Event
	schedules map[string]*schedule.Schedule
	bookings  []model.Booking
	err       error
	calls     atomic.Int32
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:    map[string]*model.Event{},
		schedules: map[string]*schedule.Schedule{},
	}
}

func (s *fakeStore) GetEvent(_ context.Context, ownerID, id string) (*model.Event, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	ev, ok := s.events[id]
	if !ok || ev.OwnerID != ownerID {
		return nil, model.ErrNotFound
	}
	cp := *ev
	return &cp, nil
}

func (s *fakeStore) GetSchedule(_ context.Context, ownerID string) (*schedule.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schedules[ownerID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return sc, nil
}

func (s *fakeStore) ListBookings(_ context.Context, ownerID string, window interval.Range[time.Time]) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.OwnerID == ownerID && interval.Intersects(window, interval.New(b.StartUTC, b.EndUTC)) {
			out = append(out, b)
		}
	}
	return out, nil
}

type stubSource struct {
	busy  []conflicts.Busy
	err   error
	block bool
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) ListBusyIntervals(ctx context.Context, _ string, _ conflicts.Busy) ([]conflicts.Busy, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.busy, s.err
}

func utc(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func day(y int, m time.Month, d int) DateRange {
	return DateRange{Start: utc(y, m, d, 0, 0), End: utc(y, m, d, 0, 0)}
}

// nyStore is an owner in New York working Mondays 09:00-17:00 with a 30 minute event.
func nyStore(windows ...schedule.Window) *fakeStore {
	if len(windows) == 0 {
		windows = []schedule.Window{{Day: time.Monday, Start: schedule.MustClock("09:00"), End: schedule.MustClock("17:00")}}
	}
	st := newFakeStore()
	st.events[eventID] = &model.Event{ID: eventID, OwnerID: owner, Name: "Intro call", DurationMinutes: 30, IsActive: true}
	st.schedules[owner] = &schedule.Schedule{OwnerID: owner, Timezone: "America/New_York", Availabilities: windows}
	return st
}

func newTestResolver(st Store, cfg Config, opts ...Option) *Resolver {
	logger := zerolog.New(io.Discard)
	opts = append([]Option{WithClock(func() time.Time { return utc(2026, 1, 1, 0, 0) })}, opts...)
	return NewResolver(st, cfg, &logger, opts...)
}

func localClocks(t *testing.T, slots []Slot) []string {
	t.Helper()
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Local.Format("15:04")
	}
	return out
}

func TestResolveNewYorkMonday(t *testing.T) {
	r := newTestResolver(nyStore(), Config{})

	res, err := r.Resolve(context.Background(), Request{OwnerID: owner, EventID: eventID, Dates: day(2026, 1, 12), Timezone: "America/New_York"})
	require.NoError(t, err)
	assert.Equal(t, ReasonNone, res.Reason)
	require.Len(t, res.Slots, 16)

	assert.Equal(t, utc(2026, 1, 12, 14, 0), res.Slots[0].Start)
	assert.Equal(t, utc(2026, 1, 12, 21, 30), res.Slots[15].Start)
	assert.Equal(t, "09:00", res.Slots[0].Local.Format("15:04"))
	assert.Equal(t, "16:30", res.Slots[15].Local.Format("15:04"))
	assert.NotContains(t, localClocks(t, res.Slots), "17:00")
}

func TestResolveBookingRemovesSlots(t *testing.T) {
	st := nyStore()
	st.bookings = []model.Booking{
		{ID: "b1", OwnerID: owner, StartUTC: utc(2026, 1, 12, 17, 0), EndUTC: utc(2026, 1, 12, 18, 0)},
		{ID: "b2", OwnerID: "someone-else", StartUTC: utc(2026, 1, 12, 14, 0), EndUTC: utc(2026, 1, 12, 22, 0)},
	}
	r := newTestResolver(st, Config{})

	res, err := r.Resolve(context.Background(), Request{OwnerID: owner, EventID: eventID, Dates: day(2026, 1, 12), Timezone: "America/New_York"})
	require.NoError(t, err)

	clocks := localClocks(t, res.Slots)
	assert.Len(t, clocks, 14)
	assert.NotContains(t, clocks, "12:00")
	assert.NotContains(t, clocks, "12:30")
	assert.Contains(t, clocks, "11:30")
	assert.Contains(t, clocks, "13:00")
}

func TestResolveWindowShorterThanDuration(t *testing.T) {
	st := nyStore(schedule.Window{Day: time.Monday, Start: schedule.MustClock("09:00"), End: schedule.MustClock("09:20")})
	r := newTestResolver(st, Config{})

	res, err := r.Resolve(context.Background(), Request{OwnerID: owner, EventID: eventID, Dates: day(2026, 1, 12), Timezone: "America/New_York"})
	require.NoError(t, err)
	assert.Empty(t, res.Slots)
	assert.NotNil(t, res.Slots)
	assert.Equal(t, ReasonNone, res.Reason)
}

func TestResolveSpringForward(t *testing.T) {
	// 2026-03-08 is a Sunday; New York skips 02:00-03:00.
	st := nyStore(schedule.Window{Day: time.Sunday, Start: schedule.MustClock("01:00"), End: schedule.MustClock("04:00")})
	r := newTestResolver(st, Config{})

	res, err := r.Resolve(context.Background(), Request{OwnerID: owner, EventID: eventID, Dates: day(2026, 3, 8), Timezone: "America/New_York"})
	require.NoError(t, err)

	assert.Equal(t, []time.Time{
		utc(2026, 3, 8, 6, 0),
		utc(2026, 3, 8, 6, 30),
		utc(2026, 3, 8, 7, 0),
		utc(2026, 3, 8, 7, 30),
	}, res.Starts())
	assert.Equal(t, []string{"01:00", "01:30", "03:00", "03:30"}, localClocks(t, res.Slots))
}

func TestResolveFallBack(t *testing.T) {
	// 2026-11-01: 01:00-02:00 happens twice in New York.
	st := nyStore(schedule.Window{Day: time.Sunday, Start: schedule.MustClock("00:00"), End: schedule.MustClock("03:00")})
	st.events[eventID].DurationMinutes = 60
	r := newTestResolver(st, Config{})

	res, err := r.Resolve(context.Background(), Request{OwnerID: owner, EventID: eventID, Dates: day(2026, 11, 1), Timezone: "America/New_York"})
	require.NoError(t, err)

	starts := res.Starts()
	assert.Equal(t, []time.Time{
		utc(2026, 11, 1, 4, 0),
		utc(2026, 11, 1, 5, 0),
		utc(2026, 11, 1, 6, 0),
		utc(2026, 11, 1, 7, 0),
	}, starts)
}

func TestResolveVisitorAheadOfOwner(t *testing.T) {
	r := newTestResolver(nyStore(), Config{})

	// Tokyo Tuesday 13 Jan overlaps the New York Monday afternoon.
	res, err := r.Resolve(context.Background(), Request{OwnerID: owner, EventID: eventID, Dates: day(2026, 1, 13), Timezone: "Asia/Tokyo"})
	require.NoError(t, err)
	require.Len(t, res.Slots, 14)

	assert.Equal(t, utc(2026, 1, 12, 15, 0), res.Slots[0].Start)
	assert.Equal(t, "2026-01-13T00:00:00+09:00", res.Slots[0].Local.Format(time.RFC3339))
	assert.Equal(t, utc(2026, 1, 12, 21, 30), res.Slots[13].Start)
	assert.Equal(t, "Asia/Tokyo", res.Timezone)
}

func TestResolveLeadTime(t *testing.T) {
	r := newTestResolver(nyStore(), Config{MinLead: 30 * time.Minute},
		WithClock(func() time.Time { return utc(2026, 1, 12, 15, 10) }))

	res, err := r.Resolve(context.Background(), Request{OwnerID: owner, EventID: eventID, Dates: day(2026, 1, 12), Timezone: "America/New_York"})
	require.NoError(t, err)
	require.Len(t, res.Slots, 12)
	assert.Equal(t, utc(2026, 1, 12, 16, 0), res.Slots[0].Start)
	for _, s := range res.Slots {
		assert.False(t, s.Start.Before(utc(2026, 1, 12, 15, 40)))
	}
}

func TestResolveReasons(t *testing.T) {
	inactive := nyStore()
	inactive.events[eventID].IsActive = false

	noSchedule := nyStore()
	delete(noSchedule.schedules, owner)

	tests := []struct {
		name     string
		store    *fakeStore
		req      Request
		reason   Reason
		sentinel error
	}{
		{"event not found", nyStore(), Request{OwnerID: owner, EventID: "nope", Dates: day(2026, 1, 12), Timezone: "UTC"}, ReasonEventNotFound, ErrEventNotFound},
		{"other owner's event", nyStore(), Request{OwnerID: "owner-2", EventID: eventID, Dates: day(2026, 1, 12), Timezone: "UTC"}, ReasonEventNotFound, ErrEventNotFound},
		{"event inactive", inactive, Request{OwnerID: owner, EventID: eventID, Dates: day(2026, 1, 12), Timezone: "UTC"}, ReasonEventInactive, ErrEventInactive},
		{"no schedule", noSchedule, Request{OwnerID: owner, EventID: eventID, Dates: day(2026, 1, 12), Timezone: "UTC"}, ReasonNoScheduleConfigured, ErrNoScheduleConfigured},
		{"inverted range", nyStore(), Request{OwnerID: owner, EventID: eventID, Dates: DateRange{Start: utc(2026, 1, 13, 0, 0), End: utc(2026, 1, 12, 0, 0)}, Timezone: "UTC"}, ReasonInvalidRange, ErrInvalidRange},
		{"empty range", nyStore(), Request{OwnerID: owner, EventID: eventID, Timezone: "UTC"}, ReasonInvalidRange, ErrInvalidRange},
		{"range too long", nyStore(), Request{OwnerID: owner, EventID: eventID, Dates: DateRange{Start: utc(2026, 1, 1, 0, 0), End: utc(2026, 2, 1, 0, 0)}, Timezone: "UTC"}, ReasonInvalidRange, ErrInvalidRange},
		{"bad timezone", nyStore(), Request{OwnerID: owner, EventID: eventID, Dates: day(2026, 1, 12), Timezone: "Mars/Olympus"}, ReasonInvalidTimezone, ErrInvalidTimezone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(tt.store, Config{})
			res, err := r.Resolve(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.reason, ReasonOf(err))
		})
	}
}

func TestResolveMaxRangeBoundary(t *testing.T) {
	r := newTestResolver(nyStore(), Config{MaxRangeDays: 7})

	_, err := r.Resolve(context.Background(), Request{OwnerID: owner, EventID: eventID, Dates: DateRange{Start: utc(2026, 1, 12, 0, 0), End: utc(2026, 1, 18, 0, 0)}, Timezone: "UTC"})
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), Request{OwnerID: owner, EventID: eventID, Dates: DateRange{Start: utc(2026, 1, 12, 0, 0), End: utc(2026, 1, 19, 0, 0)}, Timezone: "UTC"})
	assert.Equal(t, ReasonInvalidRange, ReasonOf(err))
}

func TestResolveStoreFailure(t *testing.T) {
	st := nyStore()
	st.err = errors.New("disk on fire")
	r := newTestResolver(st, Config{})

	res, err := r.Resolve(context.Background(), Request{OwnerID: owner, EventID: eventID, Dates: day(2026, 1, 12), Timezone: "UTC"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, ReasonNone, ReasonOf(err))
}

func TestResolveConflictSource(t *testing.T) {
	req := Request{OwnerID: owner, EventID: eventID, Dates: day(2026, 1, 12), Timezone: "America/New_York"}

	t.Run("external busy time is removed", func(t *testing.T) {
		src := &stubSource{busy: []conflicts.Busy{interval.New(utc(2026, 1, 12, 15, 0), utc(2026, 1, 12, 16, 0))}}
		r := newTestResolver(nyStore(), Config{}, WithConflictSource(src))

		res, err := r.Resolve(context.Background(), req)
		require.NoError(t, err)
		clocks := localClocks(t, res.Slots)
		assert.Len(t, clocks, 14)
		assert.NotContains(t, clocks, "10:00")
		assert.NotContains(t, clocks, "10:30")
	})

	t.Run("fail closed by default", func(t *testing.T) {
		src := &stubSource{err: errors.New("connection refused")}
		r := newTestResolver(nyStore(), Config{}, WithConflictSource(src))

		res, err := r.Resolve(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, ReasonConflictSourceUnavailable, res.Reason)
		assert.Empty(t, res.Slots)
	})

	t.Run("fail open ignores the source", func(t *testing.T) {
		src := &stubSource{err: errors.New("connection refused")}
		r := newTestResolver(nyStore(), Config{FailOpen: true}, WithConflictSource(src))

		res, err := r.Resolve(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, ReasonNone, res.Reason)
		assert.Len(t, res.Slots, 16)
	})

	t.Run("slow source times out", func(t *testing.T) {
		src := &stubSource{block: true}
		r := newTestResolver(nyStore(), Config{ConflictTimeout: 20 * time.Millisecond}, WithConflictSource(src))

		res, err := r.Resolve(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, ReasonConflictSourceUnavailable, res.Reason)
		assert.Empty(t, res.Slots)
	})
}

func TestIsBookable(t *testing.T) {
	r := newTestResolver(nyStore(), Config{})
	req := Request{OwnerID: owner, EventID: eventID, Dates: day(2026, 1, 12), Timezone: "America/New_York"}

	ok, err := r.IsBookable(context.Background(), req, utc(2026, 1, 12, 14, 0))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.IsBookable(context.Background(), req, utc(2026, 1, 12, 14, 10))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.IsBookable(context.Background(), req, utc(2026, 1, 12, 22, 0))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveSameSlotsForAnyRange(t *testing.T) {
	var windows []schedule.Window
	for _, d := range schedule.DaysOfWeekInOrder {
		windows = append(windows, schedule.Window{Day: d, Start: 0, End: schedule.EndOfDay})
	}
	st := nyStore(windows...)
	st.schedules[owner].Timezone = "UTC"
	st.events[eventID].DurationMinutes = 50
	r := newTestResolver(st, Config{})
	ctx := context.Background()

	single, err := r.Resolve(ctx, Request{OwnerID: owner, EventID: eventID, Dates: day(2026, 3, 2), Timezone: "UTC"})
	require.NoError(t, err)
	wide, err := r.Resolve(ctx, Request{OwnerID: owner, EventID: eventID, Dates: DateRange{Start: utc(2026, 2, 27, 0, 0), End: utc(2026, 3, 2, 0, 0)}, Timezone: "UTC"})
	require.NoError(t, err)

	var monday []time.Time
	for _, s := range wide.Slots {
		if !s.Start.Before(utc(2026, 3, 2, 0, 0)) {
			monday = append(monday, s.Start)
		}
		end := s.Start.Add(50 * time.Minute)
		assert.Equal(t, dateOf(s.Start), dateOf(end.Add(-time.Nanosecond)), "slot %s crosses midnight", s.Start)
	}
	require.NotEmpty(t, monday)
	assert.Equal(t, single.Starts(), monday)
	assert.Equal(t, utc(2026, 3, 2, 0, 0), monday[0])
	assert.Equal(t, utc(2026, 3, 2, 0, 50), monday[1])
	// 28 slots of 50 minutes fit in a day, the 40 minute remainder is dropped.
	assert.Len(t, monday, 28)

	for _, start := range monday {
		ok, err := r.IsBookable(ctx, Request{OwnerID: owner, EventID: eventID, Dates: day(2026, 3, 2), Timezone: "UTC"}, start)
		require.NoError(t, err)
		assert.True(t, ok, "listed slot %s must stay bookable", start)
	}
}

// TestResolveProperties checks, over random schedules and bookings spanning a DST
// change, that every slot lies inside an anchored window, avoids every busy interval,
// honours the lead time and survives a projection round trip.
func TestResolveProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	zones := []string{"America/New_York", "Europe/London", "Asia/Kolkata", "Pacific/Auckland", "UTC"}

	for i := 0; i < 50; i++ {
		var windows []schedule.Window
		for j := 0; j < 1+rng.Intn(8); j++ {
			start := schedule.Clock(rng.Intn(23*4) * 15)
			end := start + schedule.Clock(15*(1+rng.Intn(16)))
			if end > schedule.EndOfDay {
				end = schedule.EndOfDay
			}
			windows = append(windows, schedule.Window{Day: time.Weekday(rng.Intn(7)), Start: start, End: end})
		}
		st := nyStore(windows...)
		st.events[eventID].DurationMinutes = []int{15, 20, 30, 45, 60}[rng.Intn(5)]

		for j := 0; j < rng.Intn(6); j++ {
			s := utc(2026, 3, 1+rng.Intn(14), rng.Intn(24), 0)
			st.bookings = append(st.bookings, model.Booking{OwnerID: owner, StartUTC: s, EndUTC: s.Add(time.Duration(15*(1+rng.Intn(8))) * time.Minute)})
		}

		now := utc(2026, 3, 1+rng.Intn(5), rng.Intn(24), 0)
		lead := time.Duration(rng.Intn(3)) * time.Hour
		r := newTestResolver(st, Config{MinLead: lead}, WithClock(func() time.Time { return now }))

		tz := zones[rng.Intn(len(zones))]
		visitorLoc, err := time.LoadLocation(tz)
		require.NoError(t, err)
		dates := DateRange{Start: utc(2026, 3, 2, 0, 0), End: utc(2026, 3, 12, 0, 0)}

		res, err := r.Resolve(context.Background(), Request{OwnerID: owner, EventID: eventID, Dates: dates, Timezone: tz})
		require.NoError(t, err)

		sched := st.schedules[owner]
		duration := st.events[eventID].Duration()
		var anchored []conflicts.Busy
		for d := utc(2026, 2, 25, 0, 0); !d.After(utc(2026, 3, 16, 0, 0)); d = d.AddDate(0, 0, 1) {
			anchored = append(anchored, anchorDay(sched.Weekly(), ny, d)...)
		}
		busy := conflicts.Aggregate(st.bookings, nil)
		visitorWindow := dates.Window(visitorLoc)

		for k, s := range res.Slots {
			span := interval.New(s.Start, s.Start.Add(duration))

			inside := false
			for _, w := range anchored {
				if w.Contains(span) {
					inside = true
					break
				}
			}
			assert.True(t, inside, "slot %s escapes the schedule", s.Start)

			for _, b := range busy {
				assert.False(t, interval.Intersects(span, b), "slot %s hits booking %v", s.Start, b)
			}
			assert.False(t, s.Start.Before(now.Add(lead)))
			assert.True(t, visitorWindow.ContainsPoint(s.Local))
			assert.True(t, s.Local.UTC().Equal(s.Start))
			assert.Equal(t, visitorLoc.String(), s.Local.Location().String())
			if k > 0 {
				assert.True(t, res.Slots[k-1].Start.Before(s.Start))
			}
		}
	}
}
