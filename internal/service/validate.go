package service

import (
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"chatbook/internal/domain"
	"chatbook/internal/matcher"
	"chatbook/internal/models"
)

// Local layouts are interpreted in the tenant timezone.
var localLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) *domain.RejectionError {
	if email == "" {
		return domain.Reject(domain.ErrValidation, domain.ReasonMissingField, "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return domain.Reject(domain.ErrValidation, domain.ReasonInvalidEmail, fmt.Sprintf("%q is not a valid email address", email))
	}
	at := strings.LastIndex(email, "@")
	host := email[at+1:]
	if !strings.Contains(host, ".") || strings.HasPrefix(host, ".") || strings.HasSuffix(host, ".") {
		return domain.Reject(domain.ErrValidation, domain.ReasonInvalidEmail, fmt.Sprintf("%q is not a valid email address", email))
	}
	return nil
}

// parseDateTime accepts RFC 3339 with its own offset, or a local layout in loc.
func parseDateTime(value string, loc *time.Location) (time.Time, *domain.RejectionError) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, domain.Reject(domain.ErrValidation, domain.ReasonMissingField, "date and time are required")
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, domain.Reject(domain.ErrValidation, domain.ReasonInvalidDatetime,
		fmt.Sprintf("could not understand %q as a date and time", value))
}

func missingField(name string) *domain.RejectionError {
	return domain.Reject(domain.ErrValidation, domain.ReasonMissingField, name+" is required")
}

func validateCustomFields(policy *models.BookingPolicy, fields map[string]string) *domain.RejectionError {
	var unknown []string
	for key := range fields {
		if !policy.AllowsCustomField(key) {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return domain.Reject(domain.ErrValidation, domain.ReasonUnknownCustomField,
		"unsupported fields: "+strings.Join(unknown, ", "))
}

// resolveService picks the requested service. A blank input is accepted when
// the tenant offers exactly one service.
func resolveService(tenant *models.Tenant, input string) (*models.ServiceDefinition, *domain.RejectionError) {
	if len(tenant.Services) == 0 {
		return nil, domain.Reject(domain.ErrConfiguration, domain.ReasonServiceNotFound, "no services are configured for booking")
	}
	if strings.TrimSpace(input) == "" && len(tenant.Services) == 1 {
		return &tenant.Services[0], nil
	}
	if svc, ok := tenant.Service(strings.TrimSpace(input)); ok {
		return svc, nil
	}

	res := matcher.Resolve(input, tenant.Services)
	if res.Service != nil {
		return res.Service, nil
	}

	var rej *domain.RejectionError
	switch res.Reason {
	case matcher.ReasonMissing:
		rej = domain.Reject(domain.ErrValidation, domain.ReasonServiceMissing, "please choose a service")
		for _, s := range tenant.Services {
			rej.SuggestedServices = append(rej.SuggestedServices, s.Name)
		}
		return nil, rej
	case matcher.ReasonAmbiguous:
		rej = domain.Reject(domain.ErrValidation, domain.ReasonServiceAmbiguous,
			fmt.Sprintf("%q matches more than one service", input))
	default:
		rej = domain.Reject(domain.ErrValidation, domain.ReasonServiceNotFound,
			fmt.Sprintf("no service matches %q", input))
	}
	rej.SuggestedServices = res.Suggestions
	return nil, rej
}

func temporalMessage(reason string, policy *models.BookingPolicy) string {
	switch reason {
	case domain.ReasonPastTime:
		return "the requested time is in the past"
	case domain.ReasonLeadTime:
		return fmt.Sprintf("bookings must be made at least %s in advance", policy.MinLead())
	case domain.ReasonAdvanceWindow:
		return fmt.Sprintf("bookings can be made at most %d days ahead", *policy.MaxAdvanceDays)
	case domain.ReasonOutsideHours:
		return "the requested time is outside business hours"
	case domain.ReasonAtCapacity, domain.ReasonCalendarFull:
		return "the requested time is fully booked"
	}
	return "the requested time is not available"
}
