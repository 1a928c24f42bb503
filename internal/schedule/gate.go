package schedule

import (
	"time"

	"chatbook/internal/domain"
	"chatbook/internal/models"
)

// Violation returns the first temporal rule a start time breaks, checked in
// order: past, lead time, advance window, business hours. It returns "" when
// the start is acceptable.
func Violation(start, now time.Time, policy *models.BookingPolicy, svc *models.ServiceDefinition) string {
	if !start.After(now) {
		return domain.ReasonPastTime
	}
	if lead := policy.MinLead(); lead > 0 && start.Before(now.Add(lead)) {
		return domain.ReasonLeadTime
	}
	if policy.MaxAdvanceDays != nil && start.After(now.Add(time.Duration(*policy.MaxAdvanceDays)*24*time.Hour)) {
		return domain.ReasonAdvanceWindow
	}
	if !IsWithinSchedule(start.In(policy.Loc()), svc.DurationMinutes, svc.Hours) {
		return domain.ReasonOutsideHours
	}
	return ""
}
