// Package model holds the records shared by the store, the engine and the API.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrScheduleExists = errors.New("schedule already exists for owner")
	ErrInvalidEvent   = errors.New("invalid event")
	ErrInvalidBooking = errors.New("invalid booking")
	ErrSlotTaken      = errors.New("slot is already booked")
)

// MaxDurationMinutes caps an event length at twelve hours.
const MaxDurationMinutes = 12 * 60

// Event is a bookable event type of an owner.
type Event struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"owner_id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	DurationMinutes int       `json:"duration_in_minutes"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Duration returns the slot length of the event.
func (e *Event) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// Validate checks the fields an owner may edit.
func (e *Event) Validate() error {
	if strings.TrimSpace(e.OwnerID) == "" {
		return fmt.Errorf("%w: owner id is required", ErrInvalidEvent)
	}
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidEvent)
	}
	if e.DurationMinutes <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidEvent)
	}
	if e.DurationMinutes > MaxDurationMinutes {
		return fmt.Errorf("%w: duration must be at most %d minutes", ErrInvalidEvent, MaxDurationMinutes)
	}
	return nil
}

// Booking is a reserved slot. Only OwnerID, StartUTC and EndUTC matter to availability.
type Booking struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	EventID    string    `json:"event_id,omitempty"`
	GuestName  string    `json:"guest_name,omitempty"`
	GuestEmail string    `json:"guest_email,omitempty"`
	StartUTC   time.Time `json:"start_utc"`
	EndUTC     time.Time `json:"end_utc"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks the booking covers a non-empty span for an owner.
func (b *Booking) Validate() error {
	if strings.TrimSpace(b.OwnerID) == "" {
		return fmt.Errorf("%w: owner id is required", ErrInvalidBooking)
	}
	if !b.StartUTC.Before(b.EndUTC) {
		return fmt.Errorf("%w: start must be before end", ErrInvalidBooking)
	}
	return nil
}
