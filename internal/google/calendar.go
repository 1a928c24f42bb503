package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"chatbook/internal/domain"
	"chatbook/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const defaultListPage = 250

// CalendarService talks to Google Calendar. Every method is a single attempt;
// timeouts and metrics live in the capacity oracle wrapping it.
type CalendarService struct {
	service *calendar.Service
}

func NewCalendarService(ctx context.Context, credentialsFile string) (*CalendarService, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := calendar.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar service: %w", err)
	}
	return NewCalendarServiceFromAPI(srv), nil
}

// NewCalendarServiceFromAPI wraps an already configured API client.
func NewCalendarServiceFromAPI(srv *calendar.Service) *CalendarService {
	return &CalendarService{service: srv}
}

func (c *CalendarService) CreateEvent(ctx context.Context, calendarID string, input models.CalendarEventInput) (*models.CalendarEvent, error) {
	ev, err := c.service.Events.Insert(calendarID, toAPIEvent(input)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", mapAPIError(err))
	}
	return fromAPIEvent(ev, input), nil
}

// UpdateEvent patches summary, description and times of an existing event.
func (c *CalendarService) UpdateEvent(ctx context.Context, calendarID, eventID string, input models.CalendarEventInput) (*models.CalendarEvent, error) {
	ev, err := c.service.Events.Patch(calendarID, eventID, toAPIEvent(input)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("patch event %s: %w", eventID, mapAPIError(err))
	}
	return fromAPIEvent(ev, input), nil
}

func (c *CalendarService) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	if err := c.service.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete event %s: %w", eventID, mapAPIError(err))
	}
	return nil
}

// CountEventsInRange counts busy events intersecting [timeMin, timeMax).
// Counting stops once maxResults is reached. Cancelled and transparent
// ("free") events are ignored, as is excludeEventID.
func (c *CalendarService) CountEventsInRange(ctx context.Context, calendarID string, timeMin, timeMax time.Time, maxResults int, excludeEventID string) (int, error) {
	pageSize := int64(defaultListPage)
	if maxResults > 0 && int64(maxResults) < pageSize {
		pageSize = int64(maxResults)
	}

	count := 0
	pageToken := ""
	for {
		call := c.service.Events.List(calendarID).
			TimeMin(timeMin.Format(time.RFC3339)).
			TimeMax(timeMax.Format(time.RFC3339)).
			SingleEvents(true).
			ShowDeleted(false).
			MaxResults(pageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return 0, fmt.Errorf("list events: %w", mapAPIError(err))
		}

		for _, ev := range resp.Items {
			if ev.Status == "cancelled" || ev.Transparency == "transparent" {
				continue
			}
			if excludeEventID != "" && ev.Id == excludeEventID {
				continue
			}
			count++
			if maxResults > 0 && count >= maxResults {
				return count, nil
			}
		}

		if resp.NextPageToken == "" {
			return count, nil
		}
		pageToken = resp.NextPageToken
	}
}

func toAPIEvent(input models.CalendarEventInput) *calendar.Event {
	return &calendar.Event{
		Summary:     input.Summary,
		Description: input.Description,
		Start: &calendar.EventDateTime{
			DateTime: input.Start.Format(time.RFC3339),
			TimeZone: input.Timezone,
		},
		End: &calendar.EventDateTime{
			DateTime: input.End.Format(time.RFC3339),
			TimeZone: input.Timezone,
		},
	}
}

// fromAPIEvent falls back to the requested times when the response omits them.
func fromAPIEvent(ev *calendar.Event, input models.CalendarEventInput) *models.CalendarEvent {
	out := &models.CalendarEvent{
		ID:       ev.Id,
		HTMLLink: ev.HtmlLink,
		Start:    input.Start,
		End:      input.End,
	}
	if ev.Start != nil {
		if t, err := time.Parse(time.RFC3339, ev.Start.DateTime); err == nil {
			out.Start = t
		}
	}
	if ev.End != nil {
		if t, err := time.Parse(time.RFC3339, ev.End.DateTime); err == nil {
			out.End = t
		}
	}
	return out
}

// mapAPIError turns "gone" responses into domain.ErrNotFound.
func mapAPIError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, apiErr.Message)
	}
	return err
}
