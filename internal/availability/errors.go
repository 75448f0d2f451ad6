package availability

import (
	"errors"
	"fmt"
)

// Reason is the machine-readable explanation returned with an empty answer.
type Reason string

const (
	ReasonNone                      Reason = ""
	ReasonNoScheduleConfigured      Reason = "no_schedule_configured"
	ReasonEventInactive             Reason = "event_inactive"
	ReasonEventNotFound             Reason = "event_not_found"
	ReasonInvalidRange              Reason = "invalid_range"
	ReasonInvalidTimezone           Reason = "invalid_timezone"
	ReasonConflictSourceUnavailable Reason = "conflict_source_unavailable"
)

var (
	ErrNoScheduleConfigured = errors.New("owner has no schedule configured")
	ErrEventInactive        = errors.New("event is not active")
	ErrEventNotFound        = errors.New("event not found")
	ErrInvalidRange         = errors.New("invalid date range")
	ErrInvalidTimezone      = errors.New("invalid timezone")
)

// ReasonError is an owner-configuration or validation failure. Callers render it
// as "no slots" with Reason attached rather than as a server error.
type ReasonError struct {
	Reason Reason
	Err    error
}

func (e *ReasonError) Error() string {
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *ReasonError) Unwrap() error { return e.Err }

func reasonErr(reason Reason, sentinel error, format string, args ...any) error {
	err := sentinel
	if format != "" {
		err = fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)
	}
	return &ReasonError{Reason: reason, Err: err}
}

// ReasonOf extracts the Reason of err, or ReasonNone when err is not a ReasonError.
func ReasonOf(err error) Reason {
	var re *ReasonError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ReasonNone
}
