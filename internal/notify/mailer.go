package notify

import (
	"context"
	"errors"
	"time"

	"chatbook/internal/domain"
	"chatbook/internal/models"

	"github.com/rs/zerolog"
)

var ErrMailDisabled = errors.New("mail disabled")

type Message struct {
	To          string
	ToName      string
	Subject     string
	Text        string
	HTML        string
	Attachments []models.Attachment
}

// Mailer is an email transport.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NopMailer is used when no provider is configured.
type NopMailer struct{}

func (NopMailer) Send(context.Context, Message) error {
	return ErrMailDisabled
}

// Notifier adapts a Mailer to the booking flow: failures are logged and
// reported in the outcome, never returned.
type Notifier struct {
	mailer  Mailer
	timeout time.Duration
	logger  *zerolog.Logger
}

var _ domain.Notifier = (*Notifier)(nil)

func NewNotifier(mailer Mailer, timeout time.Duration, logger *zerolog.Logger) *Notifier {
	if mailer == nil {
		mailer = NopMailer{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Notifier{mailer: mailer, timeout: timeout, logger: logger}
}

func (n *Notifier) Send(ctx context.Context, kind, to, subject, text, html string, attachments ...models.Attachment) models.NotificationOutcome {
	if to == "" {
		return models.NotificationOutcome{Reason: "no recipient"}
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	err := n.mailer.Send(ctx, Message{
		To:          to,
		Subject:     subject,
		Text:        text,
		HTML:        html,
		Attachments: attachments,
	})
	if err != nil {
		n.logger.Warn().Err(err).Str("kind", kind).Str("to", to).Msg("email not sent")
		return models.NotificationOutcome{Reason: err.Error()}
	}

	n.logger.Info().Str("kind", kind).Str("to", to).Msg("email sent")
	return models.NotificationOutcome{Sent: true}
}
