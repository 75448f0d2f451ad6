package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"calendly/internal/conflicts"
	"calendly/internal/interval"
)

var window = interval.New(
	time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC),
	time.Date(2026, 1, 13, 0, 0, 0, 0, time.UTC),
)

func newTestSource(t *testing.T, handler http.HandlerFunc) *Source {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	src, err := NewSource(context.Background(), Config{
		RequestsPerSecond: 100,
		Calendars: map[string][]string{
			"owner-1": {"primary", "team@example.com"},
		},
	}, nil,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return src
}

func writeFreeBusy(t *testing.T, w http.ResponseWriter, resp calendar.FreeBusyResponse) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(resp))
}

func TestListBusyIntervals(t *testing.T) {
	var got calendar.FreeBusyRequest
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/freeBusy", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		writeFreeBusy(t, w, calendar.FreeBusyResponse{
			Calendars: map[string]calendar.FreeBusyCalendar{
				"primary": {Busy: []*calendar.TimePeriod{
					{Start: "2026-01-12T12:00:00-05:00", End: "2026-01-12T13:00:00-05:00"},
				}},
				"team@example.com": {Busy: []*calendar.TimePeriod{
					{Start: "2026-01-12T15:00:00Z", End: "2026-01-12T15:30:00Z"},
				}},
			},
		})
	})

	busy, err := src.ListBusyIntervals(context.Background(), "owner-1", window)
	require.NoError(t, err)

	assert.Equal(t, "2026-01-12T00:00:00Z", got.TimeMin)
	assert.Equal(t, "2026-01-13T00:00:00Z", got.TimeMax)
	require.Len(t, got.Items, 2)

	require.Len(t, busy, 2)
	assert.Equal(t, time.Date(2026, 1, 12, 15, 0, 0, 0, time.UTC), busy[0].Start)
	assert.Equal(t, time.Date(2026, 1, 12, 17, 0, 0, 0, time.UTC), busy[1].Start)
	assert.Equal(t, time.Date(2026, 1, 12, 18, 0, 0, 0, time.UTC), busy[1].End)
}

func TestListBusyIntervalsUnknownOwner(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an owner without calendars")
	})

	busy, err := src.ListBusyIntervals(context.Background(), "owner-2", window)
	require.NoError(t, err)
	assert.Empty(t, busy)
}

func TestListBusyIntervalsFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"forbidden", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":{"code":403,"message":"denied"}}`, http.StatusForbidden)
		}},
		{"calendar error", func(w http.ResponseWriter, r *http.Request) {
			writeFreeBusy(t, w, calendar.FreeBusyResponse{
				Calendars: map[string]calendar.FreeBusyCalendar{
					"primary":          {Errors: []*calendar.Error{{Domain: "global", Reason: "notFound"}}},
					"team@example.com": {},
				},
			})
		}},
		{"missing calendar", func(w http.ResponseWriter, r *http.Request) {
			writeFreeBusy(t, w, calendar.FreeBusyResponse{
				Calendars: map[string]calendar.FreeBusyCalendar{"primary": {}},
			})
		}},
		{"bad period", func(w http.ResponseWriter, r *http.Request) {
			writeFreeBusy(t, w, calendar.FreeBusyResponse{
				Calendars: map[string]calendar.FreeBusyCalendar{
					"primary":          {Busy: []*calendar.TimePeriod{{Start: "yesterday", End: "today"}}},
					"team@example.com": {},
				},
			})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newTestSource(t, tt.handler)
			_, err := src.ListBusyIntervals(context.Background(), "owner-1", window)
			assert.ErrorIs(t, err, conflicts.ErrSourceUnavailable)
		})
	}
}

func TestListBusyIntervalsCancelled(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		writeFreeBusy(t, w, calendar.FreeBusyResponse{})
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.ListBusyIntervals(ctx, "owner-1", window)
	assert.ErrorIs(t, err, conflicts.ErrSourceUnavailable)
}

func TestNewSourceBadCredentials(t *testing.T) {
	_, err := NewSource(context.Background(), Config{CredentialsFile: "/nonexistent/creds.json"}, nil)
	assert.Error(t, err)
}
