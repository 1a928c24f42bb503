package capacity

import (
	"context"
	"time"

	"chatbook/internal/models"

	"github.com/google/uuid"
)

// NopProvider stands in for the calendar when no credentials are configured.
// It reports an empty calendar and hands out synthetic event ids.
type NopProvider struct{}

func (NopProvider) CreateEvent(_ context.Context, _ string, input models.CalendarEventInput) (*models.CalendarEvent, error) {
	return &models.CalendarEvent{ID: "local-" + uuid.NewString(), Start: input.Start, End: input.End}, nil
}

func (NopProvider) UpdateEvent(_ context.Context, _ string, eventID string, input models.CalendarEventInput) (*models.CalendarEvent, error) {
	return &models.CalendarEvent{ID: eventID, Start: input.Start, End: input.End}, nil
}

func (NopProvider) DeleteEvent(context.Context, string, string) error {
	return nil
}

func (NopProvider) CountEventsInRange(context.Context, string, time.Time, time.Time, int, string) (int, error) {
	return 0, nil
}
