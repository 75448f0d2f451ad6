// Package ics reads busy time from subscribed iCalendar feeds.
package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"calendly/internal/conflicts"
)

const (
	sourceName       = "ics"
	defaultTimeout   = 15 * time.Second
	defaultCacheSize = 256
	maxFeedBytes     = 10 << 20
)

// Config lists feed URLs per owner.
type Config struct {
	Timeout   time.Duration
	Feeds     map[string][]string // owner id -> feed URLs
	Location  *time.Location      // for floating and date-only values; UTC when nil
	CacheSize int
}

// feedEntry keeps the parsed feed with the validators needed for conditional GETs.
type feedEntry struct {
	etag         string
	lastModified string
	events       []vevent
}

// Source is a conflicts.Source over ICS feeds.
type Source struct {
	client *http.Client
	feeds  map[string][]string
	loc    *time.Location
	feedsC *lru.Cache[string, feedEntry]
	logger zerolog.Logger
}

func NewSource(cfg Config, logger *zerolog.Logger) (*Source, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	cache, err := lru.New[string, feedEntry](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create feed cache: %w", err)
	}

	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "ics").Logger()
	}

	return &Source{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		feeds:  cfg.Feeds,
		loc:    cfg.Location,
		feedsC: cache,
		logger: l,
	}, nil
}

func (s *Source) Name() string { return sourceName }

// ListBusyIntervals fetches every feed of the owner and expands its events into window.
func (s *Source) ListBusyIntervals(ctx context.Context, ownerID string, window conflicts.Busy) ([]conflicts.Busy, error) {
	var out []conflicts.Busy
	for _, feed := range s.feeds[ownerID] {
		events, err := s.fetch(ctx, feed)
		if err != nil {
			return nil, conflicts.Unavailable(sourceName, err)
		}
		out = append(out, expand(events, window, s.logger)...)
	}
	return out, nil
}

func (s *Source) fetch(ctx context.Context, feed string) ([]vevent, error) {
	cached, hasCached := s.feedsC.Get(feed)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/calendar")
	if hasCached {
		if cached.etag != "" {
			req.Header.Set("If-None-Match", cached.etag)
		}
		if cached.lastModified != "" {
			req.Header.Set("If-Modified-Since", cached.lastModified)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", redactURL(feed), err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified:
		if !hasCached {
			return nil, fmt.Errorf("fetch %s: 304 without cached copy", redactURL(feed))
		}
		return cached.events, nil
	default:
		return nil, fmt.Errorf("fetch %s: %s", redactURL(feed), resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", redactURL(feed), err)
	}

	events, skipped, err := parse(body, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", redactURL(feed), err)
	}
	if len(skipped) > 0 {
		s.logger.Warn().Err(errors.Join(skipped...)).Str("feed", redactURL(feed)).Int("skipped", len(skipped)).Msg("skipped unparsable events")
	}

	s.feedsC.Add(feed, feedEntry{
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
		events:       events,
	})
	s.logger.Debug().Str("feed", redactURL(feed)).Int("events", len(events)).Msg("feed refreshed")
	return events, nil
}

// redactURL keeps scheme and host; feed paths usually carry a secret token.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://redacted"
	}
	return u.Scheme + "://" + u.Host + "/..."
}
