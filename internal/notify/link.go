package notify

import (
	"net/url"
	"time"
)

const googleRenderURL = "https://calendar.google.com/calendar/render"

// AddToCalendarURL builds a Google Calendar "create event" link.
func AddToCalendarURL(summary, details string, start, end time.Time) string {
	q := url.Values{}
	q.Set("action", "TEMPLATE")
	q.Set("text", summary)
	q.Set("dates", formatUTC(start)+"/"+formatUTC(end))
	if details != "" {
		q.Set("details", details)
	}
	return googleRenderURL + "?" + q.Encode()
}
