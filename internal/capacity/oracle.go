// Package capacity bounds every external calendar call with a client-side
// timeout and records its outcome. There is no retry at this layer.
package capacity

import (
	"context"
	"errors"
	"time"

	"chatbook/internal/domain"
	"chatbook/internal/metrics"
	"chatbook/internal/models"

	"github.com/rs/zerolog"
)

const DefaultTimeout = 10 * time.Second

type Oracle struct {
	provider domain.CalendarProvider
	timeout  time.Duration
	logger   *zerolog.Logger
}

var _ domain.CapacityOracle = (*Oracle)(nil)

func NewOracle(provider domain.CalendarProvider, timeout time.Duration, logger *zerolog.Logger) *Oracle {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Oracle{provider: provider, timeout: timeout, logger: logger}
}

func (o *Oracle) CreateEvent(ctx context.Context, calendarID string, input models.CalendarEventInput) (*models.CalendarEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	started := time.Now()
	ev, err := o.provider.CreateEvent(ctx, calendarID, input)
	metrics.ObserveCalendarCall("create", started, err)
	if err != nil {
		o.logger.Error().Err(err).Str("calendar_id", calendarID).Msg("calendar create failed")
		return nil, err
	}
	o.logger.Debug().Str("calendar_id", calendarID).Str("event_id", ev.ID).Msg("calendar event created")
	return ev, nil
}

func (o *Oracle) UpdateEvent(ctx context.Context, calendarID, eventID string, input models.CalendarEventInput) (*models.CalendarEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	started := time.Now()
	ev, err := o.provider.UpdateEvent(ctx, calendarID, eventID, input)
	metrics.ObserveCalendarCall("update", started, err)
	if err != nil {
		o.logger.Error().Err(err).Str("calendar_id", calendarID).Str("event_id", eventID).Msg("calendar update failed")
		return nil, err
	}
	return ev, nil
}

// DeleteEvent treats an event that is already gone as deleted.
func (o *Oracle) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	started := time.Now()
	err := o.provider.DeleteEvent(ctx, calendarID, eventID)
	if errors.Is(err, domain.ErrNotFound) {
		o.logger.Info().Str("calendar_id", calendarID).Str("event_id", eventID).Msg("calendar event already gone")
		err = nil
	}
	metrics.ObserveCalendarCall("delete", started, err)
	if err != nil {
		o.logger.Error().Err(err).Str("calendar_id", calendarID).Str("event_id", eventID).Msg("calendar delete failed")
	}
	return err
}

func (o *Oracle) CountEventsInRange(ctx context.Context, calendarID string, timeMin, timeMax time.Time, maxResults int, excludeEventID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	started := time.Now()
	n, err := o.provider.CountEventsInRange(ctx, calendarID, timeMin, timeMax, maxResults, excludeEventID)
	metrics.ObserveCalendarCall("count", started, err)
	if err != nil {
		o.logger.Warn().Err(err).Str("calendar_id", calendarID).Msg("calendar count failed")
		return 0, err
	}
	return n, nil
}

// HasCapacity asks for at most capacity+1 events, which is enough to decide.
func (o *Oracle) HasCapacity(ctx context.Context, calendarID string, start, end time.Time, capacity int, excludeEventID string) (bool, error) {
	if capacity < 1 {
		capacity = 1
	}
	n, err := o.CountEventsInRange(ctx, calendarID, start, end, capacity+1, excludeEventID)
	if err != nil {
		return false, err
	}
	return n < capacity, nil
}
