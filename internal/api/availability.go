package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"calendly/internal/availability"
	"calendly/internal/events"
	"calendly/internal/export"
	"calendly/internal/metrics"
	"calendly/internal/model"
)

// AvailabilityResponse is the body of GET /api/v1/availability/{ownerID}/{eventID}.
type AvailabilityResponse struct {
	OwnerID  string   `json:"owner_id"`
	EventID  string   `json:"event_id"`
	Timezone string   `json:"timezone"`
	Duration int      `json:"duration_in_minutes,omitempty"`
	Slots    []string `json:"slots"` // UTC, RFC 3339
	Local    []string `json:"local"` // visitor clock, RFC 3339 with offset
	Reason   string   `json:"reason"`
}

func newAvailabilityResponse(res *availability.Result) AvailabilityResponse {
	out := AvailabilityResponse{
		OwnerID:  res.OwnerID,
		EventID:  res.EventID,
		Timezone: res.Timezone,
		Duration: res.Duration,
		Slots:    make([]string, len(res.Slots)),
		Local:    make([]string, len(res.Slots)),
		Reason:   string(res.Reason),
	}
	for i, s := range res.Slots {
		out.Slots[i] = s.Start.UTC().Format(time.RFC3339)
		out.Local[i] = s.Local.Format(time.RFC3339)
	}
	return out
}

// handleAvailability lists bookable slots.
// GET /api/v1/availability/{ownerID}/{eventID}?start=YYYY-MM-DD&end=YYYY-MM-DD&tz=Area/City[&format=xlsx]
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability")

	q := r.URL.Query()
	dates, err := availability.ParseDateRange(q.Get("start"), q.Get("end"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Reason: string(availability.ReasonOf(err))})
		return
	}

	req := availability.Request{
		OwnerID:  r.PathValue("ownerID"),
		EventID:  r.PathValue("eventID"),
		Dates:    dates,
		Timezone: strings.TrimSpace(q.Get("tz")),
	}

	res, ok := s.resolve(w, r, req)
	if !ok {
		return
	}

	if q.Get("format") == "xlsx" {
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(res, dates)+`"`)
		if err := export.WriteSlots(w, res); err != nil {
			s.logger.Error().Err(err).Msg("write xlsx export")
		}
		return
	}

	writeJSON(w, http.StatusOK, newAvailabilityResponse(res))
}

// resolve runs the resolver and writes the response for every outcome but success.
// Owner-configuration reasons become an empty 200 answer.
func (s *HTTPServer) resolve(w http.ResponseWriter, r *http.Request, req availability.Request) (*availability.Result, bool) {
	res, err := s.avail.Resolve(r.Context(), req)
	if err == nil {
		return res, true
	}

	switch reason := availability.ReasonOf(err); reason {
	case availability.ReasonInvalidRange, availability.ReasonInvalidTimezone:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Reason: string(reason)})
	case availability.ReasonNone:
		s.logger.Error().Err(err).
			Str("request_id", requestIDFrom(r.Context())).
			Str("owner_id", req.OwnerID).
			Str("event_id", req.EventID).
			Msg("resolve availability")
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeJSON(w, http.StatusOK, AvailabilityResponse{
			OwnerID:  req.OwnerID,
			EventID:  req.EventID,
			Timezone: req.Timezone,
			Slots:    []string{},
			Local:    []string{},
			Reason:   string(reason),
		})
	}
	return nil, false
}

// CheckRequest asks whether a single start instant can still be booked.
type CheckRequest struct {
	Start    string `json:"start"`    // RFC 3339
	Timezone string `json:"timezone"` // visitor timezone, defaults to UTC
}

type CheckResponse struct {
	Bookable bool   `json:"bookable"`
	Reason   string `json:"reason,omitempty"`
}

// parseStart reads a start instant and builds the one-day request around it.
func parseStart(ownerID, eventID, startRaw, tz string) (availability.Request, time.Time, error) {
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(startRaw))
	if err != nil {
		return availability.Request{}, time.Time{}, errors.New("start must be an RFC 3339 timestamp")
	}
	if tz == "" {
		tz = "UTC"
	}
	loc, err := availability.LoadVisitorLocation(tz)
	if err != nil {
		return availability.Request{}, time.Time{}, err
	}
	local := start.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	return availability.Request{
		OwnerID:  ownerID,
		EventID:  eventID,
		Dates:    availability.DateRange{Start: day, End: day},
		Timezone: tz,
	}, start.UTC(), nil
}

// handleCheck re-validates one slot against a fresh resolution.
// POST /api/v1/availability/{ownerID}/{eventID}/check
func (s *HTTPServer) handleCheck(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability_check")

	var body CheckRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req, start, err := parseStart(r.PathValue("ownerID"), r.PathValue("eventID"), body.Start, body.Timezone)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Reason: string(availability.ReasonOf(err))})
		return
	}

	ok, err := s.avail.IsBookable(r.Context(), req, start)
	if err != nil {
		if reason := availability.ReasonOf(err); reason != availability.ReasonNone {
			writeJSON(w, http.StatusOK, CheckResponse{Bookable: false, Reason: string(reason)})
			return
		}
		s.logger.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Msg("check slot")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, CheckResponse{Bookable: ok})
}

// BookingRequest is the body of POST /api/v1/bookings/{ownerID}/{eventID}.
type BookingRequest struct {
	Start      string `json:"start"`
	Timezone   string `json:"timezone"`
	GuestName  string `json:"guest_name"`
	GuestEmail string `json:"guest_email"`
}

// handleCreateBooking books a slot after re-checking it against live availability.
// POST /api/v1/bookings/{ownerID}/{eventID}
func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("booking_create")

	var body BookingRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(body.GuestName) == "" || !strings.Contains(body.GuestEmail, "@") {
		writeError(w, http.StatusBadRequest, "guest_name and a valid guest_email are required")
		return
	}

	req, start, err := parseStart(r.PathValue("ownerID"), r.PathValue("eventID"), body.Start, body.Timezone)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Reason: string(availability.ReasonOf(err))})
		return
	}

	ok, err := s.avail.IsBookable(r.Context(), req, start)
	switch {
	case availability.ReasonOf(err) != availability.ReasonNone:
		writeJSON(w, http.StatusConflict, errorResponse{Error: "slot is not available", Reason: string(availability.ReasonOf(err))})
		return
	case err != nil:
		s.logger.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Msg("check slot before booking")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	case !ok:
		writeError(w, http.StatusConflict, "slot is not available")
		return
	}

	ev, err := s.store.GetEvent(r.Context(), req.OwnerID, req.EventID)
	if err != nil {
		s.logger.Error().Err(err).Msg("load event for booking")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	b := &model.Booking{
		OwnerID:    req.OwnerID,
		EventID:    req.EventID,
		GuestName:  strings.TrimSpace(body.GuestName),
		GuestEmail: strings.TrimSpace(body.GuestEmail),
		StartUTC:   start,
		EndUTC:     start.Add(ev.Duration()),
	}
	if err := s.store.CreateBooking(r.Context(), b); err != nil {
		switch {
		case errors.Is(err, model.ErrSlotTaken):
			writeError(w, http.StatusConflict, "slot is not available")
		case errors.Is(err, model.ErrInvalidBooking):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error().Err(err).Msg("create booking")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	s.publish(events.Event{Type: events.TypeBookingCreated, OwnerID: b.OwnerID, EntityID: b.ID})
	s.logger.Info().Str("owner_id", b.OwnerID).Str("event_id", b.EventID).Time("start", b.StartUTC).Msg("booking created")
	writeJSON(w, http.StatusCreated, b)
}
