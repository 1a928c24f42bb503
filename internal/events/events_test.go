package events

import (
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	handler := func(event *Event) error {
		received = event
		callCount++
		return nil
	}

	bus.Subscribe("test_event", handler)

	payload := map[string]string{"foo": "bar"}
	err := bus.PublishJSON("test_event", payload)
	if err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}

	if received.Type != "test_event" {
		t.Errorf("expected type test_event, got %s", received.Type)
	}
	if received.ID == "" {
		t.Errorf("expected event id to be set")
	}

	var decoded map[string]string
	if err := json.Unmarshal(received.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}

	if decoded["foo"] != "bar" {
		t.Errorf("expected foo=bar, got %s", decoded["foo"])
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count1, count2 int

	bus.Subscribe("event", func(_ *Event) error { count1++; return errors.New("first failed") })
	bus.Subscribe("event", func(_ *Event) error { count2++; return nil })

	err := bus.Publish(&Event{Type: "event"})

	if count1 != 1 || count2 != 1 {
		t.Errorf("expected both handlers to be called once, got %d and %d", count1, count2)
	}
	if err == nil || err.Error() != "first failed" {
		t.Errorf("expected first handler error, got %v", err)
	}
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	// Should not panic
	if err := bus.Publish(&Event{Type: "unknown"}); err != nil {
		t.Errorf("Publish failed: %v", err)
	}
	err := bus.PublishJSON("unknown", nil)
	if err != nil {
		t.Errorf("PublishJSON failed: %v", err)
	}

	var nilBus *EventBus
	if err := nilBus.PublishJSON("unknown", nil); err != nil {
		t.Errorf("nil bus PublishJSON failed: %v", err)
	}
}

func TestNewJSONEvent(t *testing.T) {
	payload := BookingEventPayload{BookingID: "b-123", Status: "ACTIVE"}
	event, err := NewJSONEvent(EventBookingCreated, payload)
	if err != nil {
		t.Fatalf("NewJSONEvent failed: %v", err)
	}

	if event.Type != "booking.created" {
		t.Errorf("expected booking.created, got %s", event.Type)
	}

	if event.CreatedAt.IsZero() {
		t.Errorf("expected CreatedAt to be set")
	}

	var decoded BookingEventPayload
	if err := json.Unmarshal(event.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}

	if decoded.BookingID != "b-123" {
		t.Errorf("expected BookingID b-123, got %s", decoded.BookingID)
	}
}

type fakePublisher struct {
	subjects []string
	data     [][]byte
	err      error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.data = append(f.data, data)
	return nil
}

func TestNATSForwarder(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("forwards booking events", func(t *testing.T) {
		pub := &fakePublisher{}
		bus := NewEventBus()
		NewNATSForwarder(pub, "chatbook", &logger).SubscribeTo(bus)

		if err := bus.PublishJSON(EventBookingCreated, BookingEventPayload{BookingID: "b1"}); err != nil {
			t.Fatalf("PublishJSON: %v", err)
		}
		if err := bus.PublishJSON(EventBookingCancelled, BookingEventPayload{BookingID: "b1"}); err != nil {
			t.Fatalf("PublishJSON: %v", err)
		}
		if err := bus.PublishJSON("other", nil); err != nil {
			t.Fatalf("PublishJSON: %v", err)
		}

		if len(pub.subjects) != 2 {
			t.Fatalf("expected 2 publishes, got %d", len(pub.subjects))
		}
		if pub.subjects[0] != "chatbook.booking.created" || pub.subjects[1] != "chatbook.booking.cancelled" {
			t.Errorf("unexpected subjects %v", pub.subjects)
		}
		var decoded BookingEventPayload
		if err := json.Unmarshal(pub.data[0], &decoded); err != nil || decoded.BookingID != "b1" {
			t.Errorf("unexpected payload %s (%v)", pub.data[0], err)
		}
	})

	t.Run("empty prefix", func(t *testing.T) {
		f := NewNATSForwarder(&fakePublisher{}, "", &logger)
		if got := f.Subject(EventBookingUpdated); got != "booking.updated" {
			t.Errorf("expected booking.updated, got %s", got)
		}
	})

	t.Run("publish error", func(t *testing.T) {
		pub := &fakePublisher{err: errors.New("connection closed")}
		f := NewNATSForwarder(pub, "chatbook", &logger)
		if err := f.Handle(&Event{Type: EventBookingCreated}); err == nil {
			t.Errorf("expected error")
		}
	})
}

func TestNATSForwarderLive(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}
	logger := zerolog.Nop()

	nc, err := ConnectNATS(url, "chatbook-test", &logger)
	if err != nil {
		t.Fatalf("ConnectNATS: %v", err)
	}
	defer nc.Close()

	sub, err := nc.SubscribeSync("chatbook-test.booking.created")
	if err != nil {
		t.Fatalf("SubscribeSync: %v", err)
	}

	bus := NewEventBus()
	NewNATSForwarder(nc, "chatbook-test", &logger).SubscribeTo(bus)
	if err := bus.PublishJSON(EventBookingCreated, BookingEventPayload{BookingID: "live"}); err != nil {
		t.Fatalf("PublishJSON: %v", err)
	}

	var msg *nats.Msg
	msg, err = sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("NextMsg: %v", err)
	}
	var decoded BookingEventPayload
	if err := json.Unmarshal(msg.Data, &decoded); err != nil || decoded.BookingID != "live" {
		t.Errorf("unexpected message %s (%v)", msg.Data, err)
	}
}
