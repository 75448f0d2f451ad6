// Package google reads busy time from Google Calendar through the FreeBusy API.
package google

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"calendly/internal/conflicts"
	"calendly/internal/interval"
)

const sourceName = "google_calendar"

// Config selects the calendars consulted per owner.
type Config struct {
	CredentialsFile   string
	RequestsPerSecond float64
	Calendars         map[string][]string // owner id -> calendar ids
}

// Source is a conflicts.Source backed by Calendar FreeBusy queries.
type Source struct {
	svc       *calendar.Service
	calendars map[string][]string
	limiter   *rate.Limiter
	logger    zerolog.Logger
}

// NewSource builds the calendar client. Extra client options are applied last.
func NewSource(ctx context.Context, cfg Config, logger *zerolog.Logger, opts ...option.ClientOption) (*Source, error) {
	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read google credentials: %w", err)
		}
		creds, err := googleoauth.CredentialsFromJSON(ctx, data, calendar.CalendarReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("parse google credentials: %w", err)
		}
		clientOpts = append(clientOpts, option.WithTokenSource(oauth2.ReuseTokenSource(nil, creds.TokenSource)))
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := calendar.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "google_calendar").Logger()
	}

	return &Source{
		svc:       svc,
		calendars: cfg.Calendars,
		limiter:   rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		logger:    l,
	}, nil
}

func (s *Source) Name() string { return sourceName }

// ListBusyIntervals asks FreeBusy for every calendar of the owner. Owners without
// configured calendars have no external busy time.
func (s *Source) ListBusyIntervals(ctx context.Context, ownerID string, window conflicts.Busy) ([]conflicts.Busy, error) {
	ids := s.calendars[ownerID]
	if len(ids) == 0 {
		return nil, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, conflicts.Unavailable(sourceName, err)
	}

	req := &calendar.FreeBusyRequest{
		TimeMin: window.Start.UTC().Format(time.RFC3339),
		TimeMax: window.End.UTC().Format(time.RFC3339),
		Items:   make([]*calendar.FreeBusyRequestItem, 0, len(ids)),
	}
	for _, id := range ids {
		req.Items = append(req.Items, &calendar.FreeBusyRequestItem{Id: id})
	}

	resp, err := s.svc.Freebusy.Query(req).Context(ctx).Do()
	if err != nil {
		return nil, conflicts.Unavailable(sourceName, err)
	}

	var out []conflicts.Busy
	for _, id := range ids {
		cal, ok := resp.Calendars[id]
		if !ok {
			return nil, conflicts.Unavailable(sourceName, fmt.Errorf("calendar %s missing from response", id))
		}
		if len(cal.Errors) > 0 {
			reasons := make([]string, 0, len(cal.Errors))
			for _, e := range cal.Errors {
				reasons = append(reasons, e.Reason)
			}
			return nil, conflicts.Unavailable(sourceName, fmt.Errorf("calendar %s: %s", id, strings.Join(reasons, ", ")))
		}
		for _, p := range cal.Busy {
			b, err := parsePeriod(p)
			if err != nil {
				return nil, conflicts.Unavailable(sourceName, fmt.Errorf("calendar %s: %w", id, err))
			}
			out = append(out, b)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	s.logger.Debug().Str("owner_id", ownerID).Int("calendars", len(ids)).Int("busy", len(out)).Msg("freebusy fetched")
	return out, nil
}

func parsePeriod(p *calendar.TimePeriod) (conflicts.Busy, error) {
	start, err := time.Parse(time.RFC3339, p.Start)
	if err != nil {
		return conflicts.Busy{}, fmt.Errorf("busy start %q: %w", p.Start, err)
	}
	end, err := time.Parse(time.RFC3339, p.End)
	if err != nil {
		return conflicts.Busy{}, fmt.Errorf("busy end %q: %w", p.End, err)
	}
	return interval.New(start.UTC(), end.UTC()), nil
}
