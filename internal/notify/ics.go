package notify

import (
	"time"

	"chatbook/internal/models"

	ical "github.com/arran4/golang-ical"
)

const icsProductID = "-//chatbook//booking//EN"

// BuildICS returns a single-event calendar for the booking. A cancelled
// booking produces a CANCEL method so clients drop the event.
func BuildICS(b *models.Booking, brand models.Brand) []byte {
	cal := ical.NewCalendar()
	cal.SetProductId(icsProductID)
	cal.SetMethod(ical.MethodPublish)

	ev := cal.AddEvent(b.ID + "@chatbook")
	stamp := b.UpdatedAt
	if stamp.IsZero() {
		stamp = time.Now()
	}
	ev.SetDtStampTime(stamp)
	if !b.CreatedAt.IsZero() {
		ev.SetCreatedTime(b.CreatedAt)
	}
	ev.SetStartAt(b.Start)
	ev.SetEndAt(b.End)
	ev.SetSequence(int(b.Version))

	summary := b.ServiceName
	if brand.Name != "" {
		summary += " - " + brand.Name
	}
	ev.SetSummary(summary)
	ev.SetDescription("Booked for " + b.CustomerName + " (" + b.CustomerEmail + ")")
	if brand.URL != "" {
		ev.SetURL(brand.URL)
	}

	if b.Status == models.StatusCancelled {
		cal.SetMethod(ical.MethodCancel)
		ev.SetStatus(ical.ObjectStatusCancelled)
	}

	return []byte(cal.Serialize())
}

// ICSAttachment wraps BuildICS for an email.
func ICSAttachment(b *models.Booking, brand models.Brand) models.Attachment {
	return models.Attachment{
		Filename:    "booking.ics",
		ContentType: "text/calendar; charset=utf-8",
		Data:        BuildICS(b, brand),
	}
}
