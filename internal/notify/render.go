// Package notify renders and delivers customer emails.
package notify

import (
	"html"
	"regexp"
	"time"

	"chatbook/internal/models"
)

// Notification kinds.
const (
	KindConfirmation = "confirmation"
	KindCancellation = "cancellation"
)

var tokenRe = regexp.MustCompile(`\{\{\s*([a-z_]+)\s*\}\}`)

// TemplateContext is the closed set of values a template may reference.
type TemplateContext struct {
	Name         string
	Email        string
	Phone        string
	Service      string
	Date         string
	Time         string
	Timezone     string
	BrandName    string
	BrandURL     string
	CalendarLink string
	CancelReason string
}

// NewTemplateContext formats a booking for display in its own timezone.
func NewTemplateContext(b *models.Booking, brand models.Brand, calendarLink, cancelReason string) TemplateContext {
	start := b.Start.In(b.Location())
	return TemplateContext{
		Name:         b.CustomerName,
		Email:        b.CustomerEmail,
		Phone:        b.CustomerPhone,
		Service:      b.ServiceName,
		Date:         start.Format("Monday, January 2, 2006"),
		Time:         start.Format("15:04"),
		Timezone:     b.Timezone,
		BrandName:    brand.Name,
		BrandURL:     brand.URL,
		CalendarLink: calendarLink,
		CancelReason: cancelReason,
	}
}

func (c TemplateContext) values() map[string]string {
	return map[string]string{
		"name":          c.Name,
		"email":         c.Email,
		"phone":         c.Phone,
		"service":       c.Service,
		"date":          c.Date,
		"time":          c.Time,
		"timezone":      c.Timezone,
		"brand_name":    c.BrandName,
		"brand_url":     c.BrandURL,
		"calendar_link": c.CalendarLink,
		"cancel_reason": c.CancelReason,
	}
}

// Render substitutes {{token}} placeholders. Unknown tokens are left as they
// are. With escape set every substituted value is HTML-escaped.
func Render(tmpl string, data TemplateContext, escape bool) string {
	values := data.values()
	return tokenRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := tokenRe.FindStringSubmatch(match)[1]
		v, ok := values[key]
		if !ok {
			return match
		}
		if escape {
			return html.EscapeString(v)
		}
		return v
	})
}

var defaultTemplates = map[string]models.EmailTemplate{
	KindConfirmation: {
		Subject: "Your {{service}} booking on {{date}} at {{time}}",
		Text: "Hi {{name}},\n\n" +
			"Your {{service}} booking is confirmed for {{date}} at {{time}} ({{timezone}}).\n\n" +
			"Add it to your calendar: {{calendar_link}}\n\n" +
			"{{brand_name}}\n{{brand_url}}\n",
		HTML: "<p>Hi {{name}},</p>" +
			"<p>Your <strong>{{service}}</strong> booking is confirmed for {{date}} at {{time}} ({{timezone}}).</p>" +
			`<p><a href="{{calendar_link}}">Add to calendar</a></p>` +
			`<p><a href="{{brand_url}}">{{brand_name}}</a></p>`,
	},
	KindCancellation: {
		Subject: "Your {{service}} booking on {{date}} was cancelled",
		Text: "Hi {{name}},\n\n" +
			"Your {{service}} booking for {{date}} at {{time}} ({{timezone}}) has been cancelled.\n" +
			"Reason: {{cancel_reason}}\n\n" +
			"{{brand_name}}\n{{brand_url}}\n",
		HTML: "<p>Hi {{name}},</p>" +
			"<p>Your <strong>{{service}}</strong> booking for {{date}} at {{time}} ({{timezone}}) has been cancelled.</p>" +
			"<p>Reason: {{cancel_reason}}</p>" +
			`<p><a href="{{brand_url}}">{{brand_name}}</a></p>`,
	},
}

// Compose renders subject, text and html for kind, filling blank parts of
// the tenant template from the defaults.
func Compose(kind string, tmpl models.EmailTemplate, data TemplateContext) (subject, text, htmlBody string) {
	def := defaultTemplates[kind]
	if tmpl.Subject == "" {
		tmpl.Subject = def.Subject
	}
	if tmpl.Text == "" {
		tmpl.Text = def.Text
	}
	if tmpl.HTML == "" {
		tmpl.HTML = def.HTML
	}
	return Render(tmpl.Subject, data, false), Render(tmpl.Text, data, false), Render(tmpl.HTML, data, true)
}

// formatUTC is the compact form used in calendar links.
func formatUTC(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}
