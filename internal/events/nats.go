package events

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Publisher is the subset of *nats.Conn used by the forwarder.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSForwarder republishes bus events to NATS under <prefix>.<event type>.
type NATSForwarder struct {
	pub    Publisher
	prefix string
	logger *zerolog.Logger
}

// ConnectNATS dials the server with reconnects enabled.
func ConnectNATS(url, name string, logger *zerolog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	logger.Info().Str("url", url).Msg("nats connected")
	return nc, nil
}

func NewNATSForwarder(pub Publisher, prefix string, logger *zerolog.Logger) *NATSForwarder {
	return &NATSForwarder{pub: pub, prefix: prefix, logger: logger}
}

// Subject returns the NATS subject for an event type.
func (f *NATSForwarder) Subject(eventType string) string {
	if f.prefix == "" {
		return eventType
	}
	return f.prefix + "." + eventType
}

// SubscribeTo attaches the forwarder to every booking event on the bus.
func (f *NATSForwarder) SubscribeTo(bus *EventBus) {
	for _, eventType := range []string{EventBookingCreated, EventBookingUpdated, EventBookingCancelled} {
		bus.Subscribe(eventType, f.Handle)
	}
}

// Handle publishes one event. Failures are logged and returned to the bus.
func (f *NATSForwarder) Handle(event *Event) error {
	subject := f.Subject(event.Type)
	if err := f.pub.Publish(subject, event.Payload); err != nil {
		f.logger.Error().Err(err).Str("subject", subject).Str("event_id", event.ID).Msg("nats publish failed")
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}
