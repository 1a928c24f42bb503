package notify

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"chatbook/internal/config"
	"chatbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, msg Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func TestNotifier_Send(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("Sent", func(t *testing.T) {
		mailer := new(MockMailer)
		mailer.On("Send", mock.Anything, mock.MatchedBy(func(msg Message) bool {
			return msg.To == "ada@example.com" && msg.Subject == "Hi" && len(msg.Attachments) == 1
		})).Return(nil)

		n := NewNotifier(mailer, time.Second, &logger)
		out := n.Send(context.Background(), KindConfirmation, "ada@example.com", "Hi", "text", "<p>html</p>",
			models.Attachment{Filename: "booking.ics"})

		assert.True(t, out.Sent)
		assert.Empty(t, out.Reason)
		mailer.AssertExpectations(t)
	})

	t.Run("FailureReported", func(t *testing.T) {
		mailer := new(MockMailer)
		mailer.On("Send", mock.Anything, mock.Anything).Return(errors.New("relay down"))

		out := NewNotifier(mailer, time.Second, &logger).Send(context.Background(), KindConfirmation, "ada@example.com", "Hi", "", "")
		assert.False(t, out.Sent)
		assert.Equal(t, "relay down", out.Reason)
	})

	t.Run("Disabled", func(t *testing.T) {
		out := NewNotifier(nil, 0, nil).Send(context.Background(), KindCancellation, "ada@example.com", "Hi", "", "")
		assert.False(t, out.Sent)
		assert.Equal(t, ErrMailDisabled.Error(), out.Reason)
	})

	t.Run("NoRecipient", func(t *testing.T) {
		mailer := new(MockMailer)
		out := NewNotifier(mailer, time.Second, &logger).Send(context.Background(), KindConfirmation, "", "Hi", "", "")
		assert.False(t, out.Sent)
		mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})
}

func TestSMTPMailer_Send(t *testing.T) {
	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotBody []byte
	)
	m := NewSMTPMailer(config.SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p"}, "Salon", "noreply@salon.example")
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotBody = addr, from, to, msg
		if a == nil {
			t.Error("expected auth")
		}
		return nil
	}

	err := m.Send(context.Background(), Message{
		To:          "ada@example.com",
		Subject:     "Booking confirmed",
		Text:        "plain body",
		HTML:        "<p>html body</p>",
		Attachments: []models.Attachment{{Filename: "booking.ics", ContentType: "text/calendar", Data: []byte("BEGIN:VCALENDAR")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "noreply@salon.example", gotFrom)
	assert.Equal(t, []string{"ada@example.com"}, gotTo)

	parsed, err := mail.ReadMessage(strings.NewReader(string(gotBody)))
	require.NoError(t, err)
	subject, err := new(mime.WordDecoder).DecodeHeader(parsed.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Booking confirmed", subject)

	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", mediaType)

	reader := multipart.NewReader(parsed.Body, params["boundary"])
	var types []string
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		mt, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		types = append(types, mt)
	}
	assert.Equal(t, []string{"multipart/alternative", "text/calendar"}, types)
}

func TestSMTPMailer_ContextCancelled(t *testing.T) {
	m := NewSMTPMailer(config.SMTPConfig{Host: "localhost", Port: 25}, "", "noreply@salon.example")
	release := make(chan struct{})
	defer close(release)
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		<-release
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := m.Send(ctx, Message{To: "ada@example.com"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSMTPMailer_EmptyRecipient(t *testing.T) {
	m := NewSMTPMailer(config.SMTPConfig{Host: "localhost", Port: 25}, "", "noreply@salon.example")
	assert.Error(t, m.Send(context.Background(), Message{To: " "}))
}

func TestMailerSendMailer_Disabled(t *testing.T) {
	m := NewMailerSendMailer("", "Salon", "noreply@salon.example")
	assert.ErrorIs(t, m.Send(context.Background(), Message{To: "ada@example.com"}), ErrMailDisabled)
}

func TestNewMailer(t *testing.T) {
	assert.IsType(t, NopMailer{}, NewMailer(config.MailConfig{Provider: config.MailProviderNone}))
	assert.IsType(t, &SMTPMailer{}, NewMailer(config.MailConfig{Provider: config.MailProviderSMTP}))
	assert.IsType(t, &MailerSendMailer{}, NewMailer(config.MailConfig{Provider: config.MailProviderMailerSend}))
}
