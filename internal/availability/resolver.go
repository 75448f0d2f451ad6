// Package availability turns an owner's weekly schedule, bookings and external
// calendars into the bookable slot starts a visitor can choose from.
package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"calendly/internal/conflicts"
	"calendly/internal/interval"
	"calendly/internal/metrics"
	"calendly/internal/model"
	"calendly/internal/schedule"
)

const (
	DefaultMaxRangeDays    = 31
	DefaultConflictTimeout = 5 * time.Second
)

// Store is the read side of the record store the resolver needs.
type Store interface {
	GetEvent(ctx context.Context, ownerID, eventID string) (*model.Event, error)
	GetSchedule(ctx context.Context, ownerID string) (*schedule.Schedule, error)
	ListBookings(ctx context.Context, ownerID string, window interval.Range[time.Time]) ([]model.Booking, error)
}

// Config tunes a Resolver.
type Config struct {
	MinLead         time.Duration
	MaxRangeDays    int
	FailOpen        bool
	ConflictTimeout time.Duration
}

// Request asks for the slots of one event over a range of visitor dates.
type Request struct {
	OwnerID  string
	EventID  string
	Dates    DateRange
	Timezone string
}

// Result is a resolution. Slots is empty whenever Reason is set.
type Result struct {
	OwnerID  string    `json:"owner_id"`
	EventID  string    `json:"event_id"`
	Timezone string    `json:"timezone"`
	Duration int       `json:"duration_in_minutes"`
	Slots    []Slot    `json:"slots"`
	Reason   Reason    `json:"reason,omitempty"`
	Resolved time.Time `json:"resolved_at"`
}

// Starts returns the UTC slot starts.
func (r *Result) Starts() []time.Time {
	out := make([]time.Time, len(r.Slots))
	for i, s := range r.Slots {
		out[i] = s.Start
	}
	return out
}

type Option func(*Resolver)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithConflictSource sets the external calendar consulted for busy time.
func WithConflictSource(src conflicts.Source) Option {
	return func(r *Resolver) { r.source = src }
}

// Resolver computes availability. It holds no per-request state and is safe for
// concurrent use.
type Resolver struct {
	store  Store
	source conflicts.Source
	cfg    Config
	now    func() time.Time
	logger zerolog.Logger
	tracer trace.Tracer
}

func NewResolver(store Store, cfg Config, logger *zerolog.Logger, opts ...Option) *Resolver {
	if cfg.MaxRangeDays <= 0 {
		cfg.MaxRangeDays = DefaultMaxRangeDays
	}
	if cfg.ConflictTimeout <= 0 {
		cfg.ConflictTimeout = DefaultConflictTimeout
	}
	if cfg.MinLead < 0 {
		cfg.MinLead = 0
	}

	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "availability").Logger()
	}

	r := &Resolver{
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		logger: l,
		tracer: otel.Tracer("calendly/internal/availability"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// snapshot is everything fetched once at the start of a resolution.
type snapshot struct {
	event     *model.Event
	sched     *schedule.Schedule
	bookings  []model.Booking
	busy      []conflicts.Busy
	sourceErr error
}

// Resolve returns the bookable slots of the event for the visitor's dates.
//
// Owner-configuration and validation failures come back as *ReasonError. A failing
// conflict source is not an error: with fail-closed (the default) the result has no
// slots and Reason is conflict_source_unavailable.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	began := time.Now()
	ctx, span := r.tracer.Start(ctx, "availability.Resolve", trace.WithAttributes(
		attribute.String("owner.id", req.OwnerID),
		attribute.String("event.id", req.EventID),
		attribute.String("visitor.timezone", req.Timezone),
		attribute.String("dates", req.Dates.String()),
	))
	defer span.End()

	res, err := r.resolve(ctx, req)
	metrics.ObserveResolveDuration(time.Since(began).Seconds())

	switch {
	case err != nil && ReasonOf(err) != ReasonNone:
		metrics.IncResolution(string(ReasonOf(err)))
		span.SetAttributes(attribute.String("reason", string(ReasonOf(err))))
	case err != nil:
		metrics.IncResolution("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case res.Reason != ReasonNone:
		metrics.IncResolution(string(res.Reason))
		span.SetAttributes(attribute.String("reason", string(res.Reason)))
	default:
		metrics.IncResolution("ok")
		metrics.ObserveSlots(len(res.Slots))
		span.SetAttributes(attribute.Int("slots", len(res.Slots)))
	}
	return res, err
}

func (r *Resolver) resolve(ctx context.Context, req Request) (*Result, error) {
	visitorLoc, err := LoadVisitorLocation(req.Timezone)
	if err != nil {
		return nil, err
	}
	if err := req.Dates.Validate(r.cfg.MaxRangeDays); err != nil {
		return nil, err
	}

	visitor := req.Dates.Window(visitorLoc)
	fetchWindow := interval.New(visitor.Start.Add(-24*time.Hour).UTC(), visitor.End.Add(24*time.Hour).UTC())

	snap, err := r.fetch(ctx, req, fetchWindow)
	if err != nil {
		return nil, err
	}

	switch {
	case snap.event == nil:
		return nil, reasonErr(ReasonEventNotFound, ErrEventNotFound, "owner %s event %s", req.OwnerID, req.EventID)
	case !snap.event.IsActive:
		return nil, reasonErr(ReasonEventInactive, ErrEventInactive, "event %s", req.EventID)
	case snap.sched == nil:
		return nil, reasonErr(ReasonNoScheduleConfigured, ErrNoScheduleConfigured, "owner %s", req.OwnerID)
	}

	ownerLoc, err := snap.sched.Location()
	if err != nil {
		return nil, fmt.Errorf("schedule of owner %s: %w", req.OwnerID, err)
	}

	res := &Result{
		OwnerID:  req.OwnerID,
		EventID:  req.EventID,
		Timezone: visitorLoc.String(),
		Duration: snap.event.DurationMinutes,
		Slots:    []Slot{},
		Resolved: r.now().UTC(),
	}

	if snap.sourceErr != nil {
		if !r.cfg.FailOpen {
			metrics.IncConflictSourceFailure(r.source.Name(), "fail_closed")
			r.logger.Warn().Err(snap.sourceErr).Str("owner_id", req.OwnerID).Msg("conflict source unavailable, failing closed")
			res.Reason = ReasonConflictSourceUnavailable
			return res, nil
		}
		metrics.IncConflictSourceFailure(r.source.Name(), "fail_open")
		r.logger.Warn().Err(snap.sourceErr).Str("owner_id", req.OwnerID).Msg("conflict source unavailable, ignoring external conflicts")
		snap.busy = nil
	}

	// A visitor's date may straddle two owner dates, so widen by one day each side.
	from := visitor.Start.In(ownerLoc).AddDate(0, 0, -1)
	to := visitor.End.Add(-time.Nanosecond).In(ownerLoc).AddDate(0, 0, 1)

	starts := Compute(Input{
		Weekly:    snap.sched.Weekly(),
		Location:  ownerLoc,
		From:      from,
		To:        to,
		Busy:      conflicts.Aggregate(snap.bookings, snap.busy),
		Duration:  snap.event.Duration(),
		NotBefore: r.notBefore(),
	})
	res.Slots = Project(starts, visitorLoc, req.Dates)

	r.logger.Debug().
		Str("owner_id", req.OwnerID).
		Str("event_id", req.EventID).
		Str("dates", req.Dates.String()).
		Int("candidates", len(starts)).
		Int("slots", len(res.Slots)).
		Msg("availability resolved")

	return res, nil
}

// fetch loads the event, schedule, bookings and external busy time concurrently.
// Missing records leave their field nil; only real store failures are returned.
func (r *Resolver) fetch(ctx context.Context, req Request, window interval.Range[time.Time]) (*snapshot, error) {
	snap := &snapshot{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ev, err := r.store.GetEvent(gctx, req.OwnerID, req.EventID)
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get event: %w", err)
		}
		snap.event = ev
		return nil
	})

	g.Go(func() error {
		s, err := r.store.GetSchedule(gctx, req.OwnerID)
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get schedule: %w", err)
		}
		snap.sched = s
		return nil
	})

	g.Go(func() error {
		b, err := r.store.ListBookings(gctx, req.OwnerID, window)
		if err != nil {
			return fmt.Errorf("list bookings: %w", err)
		}
		snap.bookings = b
		return nil
	})

	if r.source != nil {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, r.cfg.ConflictTimeout)
			defer cancel()
			busy, err := r.source.ListBusyIntervals(sctx, req.OwnerID, window)
			if err != nil {
				snap.sourceErr = conflicts.Unavailable(r.source.Name(), err)
				return nil
			}
			snap.busy = busy
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

// IsBookable re-runs a fresh resolution and reports whether start is one of its slots.
// Booking creation calls it right before committing.
func (r *Resolver) IsBookable(ctx context.Context, req Request, start time.Time) (bool, error) {
	res, err := r.Resolve(ctx, req)
	if err != nil {
		return false, err
	}
	for _, s := range res.Slots {
		if s.Start.Equal(start) {
			return true, nil
		}
	}
	return false, nil
}

func (r *Resolver) notBefore() time.Time {
	return r.now().Add(r.cfg.MinLead)
}
