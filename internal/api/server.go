// Package api exposes availability and owner-side editing over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"calendly/internal/availability"
	"calendly/internal/events"
	"calendly/internal/identity"
	"calendly/internal/model"
	"calendly/internal/schedule"
)

// Availability answers slot queries.
type Availability interface {
	Resolve(ctx context.Context, req availability.Request) (*availability.Result, error)
	IsBookable(ctx context.Context, req availability.Request, start time.Time) (bool, error)
}

// Store is the record store used by the owner endpoints.
type Store interface {
	GetEvent(ctx context.Context, ownerID, eventID string) (*model.Event, error)
	ListEvents(ctx context.Context, ownerID string, activeOnly bool) ([]model.Event, error)
	CreateEvent(ctx context.Context, ev *model.Event) error
	UpdateEvent(ctx context.Context, ev *model.Event) error
	DeleteEvent(ctx context.Context, ownerID, eventID string) error
	GetSchedule(ctx context.Context, ownerID string) (*schedule.Schedule, error)
	SaveSchedule(ctx context.Context, s *schedule.Schedule) error
	CreateBooking(ctx context.Context, b *model.Booking) error
}

type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// HTTPServer serves the public booking API and the owner API.
type HTTPServer struct {
	server   *http.Server
	avail    Availability
	store    Store
	identity identity.Provider
	bus      *events.EventBus
	limiter  *RateLimiter
	logger   zerolog.Logger
}

type Option func(*HTTPServer)

// WithRateLimiter throttles the public endpoints per client.
func WithRateLimiter(l *RateLimiter) Option {
	return func(s *HTTPServer) { s.limiter = l }
}

// WithEventBus publishes owner edits and bookings to bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(s *HTTPServer) { s.bus = bus }
}

func NewHTTPServer(cfg Config, avail Availability, store Store, idp identity.Provider, logger zerolog.Logger, opts ...Option) *HTTPServer {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}

	s := &HTTPServer{
		avail:    avail,
		store:    store,
		identity: idp,
		logger:   logger.With().Str("component", "api").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *HTTPServer) routes() http.Handler {
	mux := http.NewServeMux()

	public := func(h http.HandlerFunc) http.Handler { return s.withRateLimit(h) }
	owner := func(h http.HandlerFunc) http.Handler { return s.requireOwner(h) }

	mux.Handle("GET /api/v1/availability/{ownerID}/{eventID}", public(s.handleAvailability))
	mux.Handle("POST /api/v1/availability/{ownerID}/{eventID}/check", public(s.handleCheck))
	mux.Handle("POST /api/v1/bookings/{ownerID}/{eventID}", public(s.handleCreateBooking))
	mux.Handle("GET /api/v1/events/{ownerID}", public(s.handlePublicEvents))

	mux.Handle("GET /api/v1/schedule", owner(s.handleGetSchedule))
	mux.Handle("PUT /api/v1/schedule", owner(s.handlePutSchedule))
	mux.Handle("GET /api/v1/events", owner(s.handleListEvents))
	mux.Handle("POST /api/v1/events", owner(s.handleCreateEvent))
	mux.Handle("PUT /api/v1/events/{eventID}", owner(s.handleUpdateEvent))
	mux.Handle("DELETE /api/v1/events/{eventID}", owner(s.handleDeleteEvent))

	var h http.Handler = mux
	h = withRecover(s.logger)(h)
	h = withAccessLog(s.logger)(h)
	h = withRequestID(h)
	return otelhttp.NewHandler(h, "calendly.api")
}

// Handler returns the fully wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("http api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) publish(e events.Event) {
	if err := s.bus.Publish(e); err != nil {
		s.logger.Warn().Err(err).Str("type", e.Type).Str("owner_id", e.OwnerID).Msg("event handlers failed")
	}
}
