package notify

import (
	"bytes"
	"testing"

	"chatbook/internal/models"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildICS(t *testing.T) {
	b := sampleBooking()
	raw := BuildICS(b, models.Brand{Name: "Salon", URL: "https://salon.example"})

	cal, err := ical.ParseCalendar(bytes.NewReader(raw))
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "b-1@chatbook", ev.Id())
	assert.Equal(t, "Hair Cut - Salon", ev.GetProperty(ical.ComponentPropertySummary).Value)

	start, err := ev.GetStartAt()
	require.NoError(t, err)
	assert.True(t, start.Equal(b.Start))
	end, err := ev.GetEndAt()
	require.NoError(t, err)
	assert.True(t, end.Equal(b.End))
	assert.Contains(t, string(raw), "METHOD:PUBLISH")
}

func TestBuildICS_Cancelled(t *testing.T) {
	b := sampleBooking()
	b.Status = models.StatusCancelled

	raw := string(BuildICS(b, models.Brand{}))
	assert.Contains(t, raw, "METHOD:CANCEL")
	assert.Contains(t, raw, "STATUS:CANCELLED")
}

func TestICSAttachment(t *testing.T) {
	a := ICSAttachment(sampleBooking(), models.Brand{})
	assert.Equal(t, "booking.ics", a.Filename)
	assert.Contains(t, a.ContentType, "text/calendar")
	assert.NotEmpty(t, a.Data)
}
