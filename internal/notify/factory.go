package notify

import (
	"chatbook/internal/config"
)

// NewMailer picks the transport named by cfg.Provider.
func NewMailer(cfg config.MailConfig) Mailer {
	switch cfg.Provider {
	case config.MailProviderSMTP:
		return NewSMTPMailer(cfg.SMTP, cfg.FromName, cfg.FromEmail)
	case config.MailProviderMailerSend:
		return NewMailerSendMailer(cfg.MailerSend.APIKey, cfg.FromName, cfg.FromEmail)
	default:
		return NopMailer{}
	}
}
