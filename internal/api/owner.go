package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"calendly/internal/events"
	"calendly/internal/identity"
	"calendly/internal/metrics"
	"calendly/internal/model"
	"calendly/internal/schedule"
)

// WindowDTO is one availability window on the wire.
type WindowDTO struct {
	Day   string `json:"day_of_week"`
	Start string `json:"start_time"`
	End   string `json:"end_time"`
}

// ScheduleDTO is the owner's weekly schedule on the wire.
type ScheduleDTO struct {
	Timezone       string      `json:"timezone"`
	Availabilities []WindowDTO `json:"availabilities"`
}

func scheduleDTO(sc *schedule.Schedule) ScheduleDTO {
	out := ScheduleDTO{Timezone: sc.Timezone, Availabilities: make([]WindowDTO, 0, len(sc.Availabilities))}
	for _, w := range sc.Availabilities {
		out.Availabilities = append(out.Availabilities, WindowDTO{
			Day:   schedule.WeekdayName(w.Day),
			Start: w.Start.String(),
			End:   w.End.String(),
		})
	}
	return out
}

// EventDTO is the editable part of an event.
type EventDTO struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_in_minutes"`
	IsActive        *bool  `json:"is_active,omitempty"`
}

func ownerOf(r *http.Request) string {
	id, _ := identity.OwnerFrom(r.Context())
	return id
}

// handlePublicEvents lists the active events of an owner for the booking page.
// GET /api/v1/events/{ownerID}
func (s *HTTPServer) handlePublicEvents(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("events_public")
	list, err := s.store.ListEvents(r.Context(), r.PathValue("ownerID"), true)
	if err != nil {
		s.logger.Error().Err(err).Msg("list public events")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": nonNil(list)})
}

// GET /api/v1/schedule
func (s *HTTPServer) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("schedule_get")
	sc, err := s.store.GetSchedule(r.Context(), ownerOf(r))
	if errors.Is(err, model.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no schedule configured")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("get schedule")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, scheduleDTO(sc))
}

// handlePutSchedule replaces the owner's weekly schedule.
// PUT /api/v1/schedule
func (s *HTTPServer) handlePutSchedule(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("schedule_put")

	var body ScheduleDTO
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sc := &schedule.Schedule{OwnerID: ownerOf(r), Timezone: strings.TrimSpace(body.Timezone)}
	for i, wd := range body.Availabilities {
		win, err := schedule.ParseWindow(wd.Day, wd.Start, wd.End)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("availabilities[%d]: %v", i, err))
			return
		}
		sc.Availabilities = append(sc.Availabilities, win)
	}
	if err := sc.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.SaveSchedule(r.Context(), sc); err != nil {
		s.logger.Error().Err(err).Msg("save schedule")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.publish(events.Event{Type: events.TypeScheduleUpdated, OwnerID: sc.OwnerID, EntityID: sc.ID})
	writeJSON(w, http.StatusOK, scheduleDTO(sc))
}

// GET /api/v1/events
func (s *HTTPServer) handleListEvents(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("events_list")
	list, err := s.store.ListEvents(r.Context(), ownerOf(r), false)
	if err != nil {
		s.logger.Error().Err(err).Msg("list events")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": nonNil(list)})
}

// POST /api/v1/events
func (s *HTTPServer) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("events_create")

	var body EventDTO
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ev := &model.Event{
		OwnerID:         ownerOf(r),
		Name:            strings.TrimSpace(body.Name),
		Description:     body.Description,
		DurationMinutes: body.DurationMinutes,
		IsActive:        body.IsActive == nil || *body.IsActive,
	}
	if err := s.store.CreateEvent(r.Context(), ev); err != nil {
		s.writeEventError(w, err)
		return
	}

	s.publish(events.Event{Type: events.TypeEventUpdated, OwnerID: ev.OwnerID, EntityID: ev.ID})
	writeJSON(w, http.StatusCreated, ev)
}

// PUT /api/v1/events/{eventID}
func (s *HTTPServer) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("events_update")

	var body EventDTO
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	current, err := s.store.GetEvent(r.Context(), ownerOf(r), r.PathValue("eventID"))
	if err != nil {
		s.writeEventError(w, err)
		return
	}

	current.Name = strings.TrimSpace(body.Name)
	current.Description = body.Description
	current.DurationMinutes = body.DurationMinutes
	if body.IsActive != nil {
		current.IsActive = *body.IsActive
	}
	if err := s.store.UpdateEvent(r.Context(), current); err != nil {
		s.writeEventError(w, err)
		return
	}

	s.publish(events.Event{Type: events.TypeEventUpdated, OwnerID: current.OwnerID, EntityID: current.ID})
	writeJSON(w, http.StatusOK, current)
}

// DELETE /api/v1/events/{eventID}
func (s *HTTPServer) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("events_delete")

	owner, id := ownerOf(r), r.PathValue("eventID")
	if err := s.store.DeleteEvent(r.Context(), owner, id); err != nil {
		s.writeEventError(w, err)
		return
	}
	s.publish(events.Event{Type: events.TypeEventUpdated, OwnerID: owner, EntityID: id})
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) writeEventError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	case errors.Is(err, model.ErrInvalidEvent):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Msg("event store")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
