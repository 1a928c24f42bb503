package schedule

import (
	"testing"
	"time"

	"chatbook/internal/domain"
	"chatbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViolation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	lead := 2.0
	days := 7
	policy := &models.BookingPolicy{Location: ny, MinLeadHours: &lead, MaxAdvanceDays: &days}
	svc := &models.ServiceDefinition{DurationMinutes: 60, Hours: weekdayHours(t)}

	// Monday 2025-03-10 08:00 local
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, ny)

	tests := []struct {
		name  string
		start time.Time
		want  string
	}{
		{"Past", now.Add(-time.Minute), domain.ReasonPastTime},
		{"Now", now, domain.ReasonPastTime},
		{"InsideLead", time.Date(2025, 3, 10, 9, 30, 0, 0, ny), domain.ReasonLeadTime},
		{"LeadBoundary", time.Date(2025, 3, 10, 10, 0, 0, 0, ny), ""},
		{"LunchGap", time.Date(2025, 3, 10, 11, 30, 0, 0, ny), domain.ReasonOutsideHours},
		{"TooFar", now.AddDate(0, 0, 8), domain.ReasonAdvanceWindow},
		{"Wednesday", time.Date(2025, 3, 12, 10, 0, 0, 0, ny), domain.ReasonOutsideHours},
		{"Tuesday", time.Date(2025, 3, 11, 16, 0, 0, 0, ny), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Violation(tt.start, now, policy, svc))
		})
	}
}

func TestViolation_UTCInputUsesTenantZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	policy := &models.BookingPolicy{Location: ny}
	svc := &models.ServiceDefinition{DurationMinutes: 60, Hours: weekdayHours(t)}
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	// 13:00 UTC is 09:00 in New York
	assert.Empty(t, Violation(time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC), now, policy, svc))
	// 12:00 UTC is 08:00 in New York, before opening
	assert.Equal(t, domain.ReasonOutsideHours, Violation(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC), now, policy, svc))
}
