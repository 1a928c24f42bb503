package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatbook/internal/domain"
	"chatbook/internal/models"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

func setupCalendarServer(ctx context.Context, t *testing.T) (*http.ServeMux, *CalendarService) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	srv, err := calendar.NewService(ctx, option.WithEndpoint(server.URL+"/"), option.WithoutAuthentication())
	if err != nil {
		t.Fatalf("calendar.NewService: %v", err)
	}
	return mux, NewCalendarServiceFromAPI(srv)
}

func eventInput() models.CalendarEventInput {
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	return models.CalendarEventInput{
		Summary:     "Hair Cut - Ada",
		Description: "ada@example.com",
		Start:       start,
		End:         start.Add(time.Hour),
		Timezone:    "UTC",
	}
}

func TestCalendarService_CreateEvent(t *testing.T) {
	ctx := context.Background()
	mux, c := setupCalendarServer(ctx, t)

	var got calendar.Event
	mux.HandleFunc("/calendars/cal-1/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(calendar.Event{
			Id:       "evt-1",
			HtmlLink: "https://calendar.google.com/event?eid=evt-1",
			Start:    got.Start,
			End:      got.End,
		})
	})

	ev, err := c.CreateEvent(ctx, "cal-1", eventInput())
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	if ev.ID != "evt-1" || ev.HTMLLink == "" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if got.Summary != "Hair Cut - Ada" || got.Start.TimeZone != "UTC" {
		t.Errorf("unexpected request body: %+v", got)
	}
	if !ev.Start.Equal(eventInput().Start) {
		t.Errorf("expected start %v, got %v", eventInput().Start, ev.Start)
	}
}

func TestCalendarService_UpdateEvent(t *testing.T) {
	ctx := context.Background()
	mux, c := setupCalendarServer(ctx, t)

	mux.HandleFunc("/calendars/cal-1/events/evt-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		_ = json.NewEncoder(w).Encode(calendar.Event{Id: "evt-1"})
	})

	ev, err := c.UpdateEvent(ctx, "cal-1", "evt-1", eventInput())
	if err != nil {
		t.Fatalf("UpdateEvent failed: %v", err)
	}
	// response without times falls back to the input
	if !ev.End.Equal(eventInput().End) {
		t.Errorf("expected end %v, got %v", eventInput().End, ev.End)
	}
}

func TestCalendarService_DeleteEvent(t *testing.T) {
	ctx := context.Background()
	mux, c := setupCalendarServer(ctx, t)

	mux.HandleFunc("/calendars/cal-1/events/evt-1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/calendars/cal-1/events/gone", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusGone)
		_, _ = w.Write([]byte(`{"error":{"code":410,"message":"Resource has been deleted"}}`))
	})
	mux.HandleFunc("/calendars/cal-1/events/boom", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":500,"message":"backend"}}`))
	})

	if err := c.DeleteEvent(ctx, "cal-1", "evt-1"); err != nil {
		t.Errorf("DeleteEvent failed: %v", err)
	}
	if err := c.DeleteEvent(ctx, "cal-1", "gone"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	err := c.DeleteEvent(ctx, "cal-1", "boom")
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected plain provider error, got %v", err)
	}
}

func TestCalendarService_CountEventsInRange(t *testing.T) {
	ctx := context.Background()
	mux, c := setupCalendarServer(ctx, t)

	mux.HandleFunc("/calendars/cal-1/events", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("singleEvents") != "true" || q.Get("timeMin") == "" || q.Get("timeMax") == "" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		if q.Get("pageToken") == "" {
			_ = json.NewEncoder(w).Encode(calendar.Events{
				Items: []*calendar.Event{
					{Id: "a"},
					{Id: "free", Transparency: "transparent"},
					{Id: "dead", Status: "cancelled"},
					{Id: "self"},
				},
				NextPageToken: "p2",
			})
			return
		}
		_ = json.NewEncoder(w).Encode(calendar.Events{Items: []*calendar.Event{{Id: "b"}, {Id: "c"}}})
	})

	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

	t.Run("AllPages", func(t *testing.T) {
		n, err := c.CountEventsInRange(ctx, "cal-1", start, start.Add(time.Hour), 0, "self")
		if err != nil {
			t.Fatalf("CountEventsInRange failed: %v", err)
		}
		if n != 3 {
			t.Errorf("expected 3 busy events, got %d", n)
		}
	})

	t.Run("StopsAtMax", func(t *testing.T) {
		n, err := c.CountEventsInRange(ctx, "cal-1", start, start.Add(time.Hour), 2, "")
		if err != nil {
			t.Fatalf("CountEventsInRange failed: %v", err)
		}
		if n != 2 {
			t.Errorf("expected count capped at 2, got %d", n)
		}
	})
}
