package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every RejectionError unwraps to exactly one of these.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrValidation    = errors.New("validation error")
	ErrPolicy        = errors.New("policy rejection")
	ErrProvider      = errors.New("provider error")
	ErrNotification  = errors.New("notification error")
	ErrStorage       = errors.New("storage error")
)

var (
	ErrBookingNotFound        = errors.New("booking not found")
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// Rejection reasons.
const (
	ReasonPastTime           = "past_time"
	ReasonLeadTime           = "lead_time"
	ReasonAdvanceWindow      = "advance_window"
	ReasonOutsideHours       = "outside_hours"
	ReasonAtCapacity         = "at_capacity"
	ReasonCalendarFull       = "calendar_full"
	ReasonServiceMissing     = "service_missing"
	ReasonServiceAmbiguous   = "service_ambiguous"
	ReasonServiceNotFound    = "service_not_found"
	ReasonInvalidEmail       = "invalid_email"
	ReasonInvalidDatetime    = "invalid_datetime"
	ReasonMissingField       = "missing_field"
	ReasonUnknownCustomField = "unknown_custom_field"
	ReasonCalendarChange     = "calendar_change"
	ReasonBookingNotFound    = "booking_not_found"
	ReasonBotNotFound        = "bot_not_found"
	ReasonBookingDisabled    = "booking_disabled"
	ReasonInvalidConfig      = "invalid_configuration"
	ReasonCalendarError      = "calendar_error"
	ReasonStorageError       = "storage_error"
)

// RejectionError is a booking operation that stopped before completing.
type RejectionError struct {
	Kind              error
	Reason            string
	Message           string
	SuggestedSlots    []string
	SuggestedServices []string
	Err               error
}

func (e *RejectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Kind, e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Reason, e.Message)
}

func (e *RejectionError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// Soft reports whether the caller may retry with a different time.
func (e *RejectionError) Soft() bool {
	return errors.Is(e.Kind, ErrPolicy)
}

func Reject(kind error, reason, message string) *RejectionError {
	return &RejectionError{Kind: kind, Reason: reason, Message: message}
}

// AsRejection extracts a RejectionError from err.
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
