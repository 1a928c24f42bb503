package models

import "time"

// Tenant is one bot's booking configuration, loaded fresh for every operation.
type Tenant struct {
	ID             string              `yaml:"id" json:"id"`
	Name           string              `yaml:"name" json:"name"`
	BookingEnabled *bool               `yaml:"booking_enabled" json:"booking_enabled"`
	Brand          Brand               `yaml:"brand" json:"brand"`
	Policy         BookingPolicy       `yaml:"policy" json:"policy"`
	Services       []ServiceDefinition `yaml:"services" json:"services"`
}

// Enabled defaults to true when booking_enabled is omitted.
func (t *Tenant) Enabled() bool {
	return t.BookingEnabled == nil || *t.BookingEnabled
}

// Service returns the service with the given key.
func (t *Tenant) Service(key string) (*ServiceDefinition, bool) {
	for i := range t.Services {
		if t.Services[i].Key == key {
			return &t.Services[i], true
		}
	}
	return nil, false
}

type Brand struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

type BookingPolicy struct {
	Timezone              string          `yaml:"timezone" json:"timezone"`
	MinLeadHours          *float64        `yaml:"min_lead_hours" json:"min_lead_hours,omitempty"`
	MaxAdvanceDays        *int            `yaml:"max_advance_days" json:"max_advance_days,omitempty"`
	SendConfirmation      bool            `yaml:"send_confirmation" json:"send_confirmation"`
	RequireName           *bool           `yaml:"require_name" json:"require_name,omitempty"`
	RequirePhone          bool            `yaml:"require_phone" json:"require_phone"`
	ExternalCalendarCheck *bool           `yaml:"external_calendar_check" json:"external_calendar_check,omitempty"`
	CustomFields          []string        `yaml:"custom_fields" json:"custom_fields,omitempty"`
	Templates             PolicyTemplates `yaml:"templates" json:"templates"`

	Location *time.Location `yaml:"-" json:"-"`
}

// NameRequired defaults to true.
func (p *BookingPolicy) NameRequired() bool {
	return p.RequireName == nil || *p.RequireName
}

// ProbeCalendar reports whether suggestion candidates are checked against
// the external calendar. Defaults to true.
func (p *BookingPolicy) ProbeCalendar() bool {
	return p.ExternalCalendarCheck == nil || *p.ExternalCalendarCheck
}

// MinLead returns the configured lead time, zero when unset.
func (p *BookingPolicy) MinLead() time.Duration {
	if p.MinLeadHours == nil || *p.MinLeadHours <= 0 {
		return 0
	}
	return time.Duration(*p.MinLeadHours * float64(time.Hour))
}

// AllowsCustomField reports whether key is on the tenant allow-list.
func (p *BookingPolicy) AllowsCustomField(key string) bool {
	for _, f := range p.CustomFields {
		if f == key {
			return true
		}
	}
	return false
}

func (p *BookingPolicy) Loc() *time.Location {
	if p.Location != nil {
		return p.Location
	}
	return time.UTC
}

type PolicyTemplates struct {
	Confirmation EmailTemplate `yaml:"confirmation" json:"confirmation"`
	Cancellation EmailTemplate `yaml:"cancellation" json:"cancellation"`
}

type EmailTemplate struct {
	Subject string `yaml:"subject" json:"subject"`
	Text    string `yaml:"text" json:"text"`
	HTML    string `yaml:"html" json:"html"`
}

// ServiceDefinition is a bookable service. Several services may share one
// calendar; capacity is counted per calendar.
type ServiceDefinition struct {
	Key             string                  `yaml:"key" json:"key"`
	Name            string                  `yaml:"name" json:"name"`
	Aliases         []string                `yaml:"aliases" json:"aliases,omitempty"`
	CalendarID      string                  `yaml:"calendar_id" json:"calendar_id"`
	DurationMinutes int                     `yaml:"duration_minutes" json:"duration_minutes"`
	Capacity        int                     `yaml:"capacity" json:"capacity"`
	Schedule        map[string][]WindowSpec `yaml:"schedule" json:"schedule,omitempty"`

	Hours *WeeklySchedule `yaml:"-" json:"-"`
}

// Duration returns the service length.
func (s *ServiceDefinition) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// MaxConcurrent returns capacity, treating unset as 1.
func (s *ServiceDefinition) MaxConcurrent() int {
	if s.Capacity <= 0 {
		return 1
	}
	return s.Capacity
}

// WindowSpec is an "HH:MM"-"HH:MM" window as written in configuration.
type WindowSpec struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// TimeWindow is a compiled window in minutes since local midnight.
type TimeWindow struct {
	StartMinute int
	EndMinute   int
}

// WeeklySchedule maps a weekday to its open windows. A missing day is closed.
type WeeklySchedule struct {
	Days map[time.Weekday][]TimeWindow
}
