package models

import "time"

// Booking is one reservation in the ledger. End is always Start plus the
// service duration.
type Booking struct {
	ID            string            `json:"id"`
	BotID         string            `json:"bot_id"`
	CustomerName  string            `json:"customer_name"`
	CustomerEmail string            `json:"customer_email"`
	CustomerPhone string            `json:"customer_phone,omitempty"`
	ServiceKey    string            `json:"service_key"`
	ServiceName   string            `json:"service_name"`
	CalendarID    string            `json:"calendar_id"`
	Start         time.Time         `json:"start"`
	End           time.Time         `json:"end"`
	Timezone      string            `json:"timezone"`
	EventID       string            `json:"event_id,omitempty"`
	EventLink     string            `json:"event_link,omitempty"`
	Status        string            `json:"status"`
	CustomFields  map[string]string `json:"custom_fields,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	Version       int64             `json:"version"`
}

// IsActive reports whether the booking still holds capacity.
func (b *Booking) IsActive() bool {
	return b.Status == StatusActive
}

// Overlaps reports whether the booking intersects [start, end). Touching
// intervals do not overlap.
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.Start.Before(end) && b.End.After(start)
}

// Location returns the booking's timezone, falling back to UTC.
func (b *Booking) Location() *time.Location {
	if b.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CalendarEventInput is the payload for creating or patching an external
// calendar event.
type CalendarEventInput struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Timezone    string
}

// CalendarEvent is what the calendar provider returns after a mutation.
type CalendarEvent struct {
	ID       string
	HTMLLink string
	Start    time.Time
	End      time.Time
}
