// Package tenant serves per-bot booking configuration.
package tenant

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"chatbook/internal/domain"
	"chatbook/internal/models"
	"chatbook/internal/schedule"
)

// Registry holds tenant configuration. Get hands out a private copy so a
// request never observes a concurrent Replace.
type Registry struct {
	mu      sync.RWMutex
	tenants map[string]models.Tenant
}

var _ domain.TenantProvider = (*Registry)(nil)

func NewRegistry(bots []models.Tenant) *Registry {
	r := &Registry{}
	r.Replace(bots)
	return r
}

// Replace swaps the whole configuration, e.g. after a reload.
func (r *Registry) Replace(bots []models.Tenant) {
	tenants := make(map[string]models.Tenant, len(bots))
	for _, b := range bots {
		tenants[b.ID] = b
	}
	r.mu.Lock()
	r.tenants = tenants
	r.mu.Unlock()
}

// Get returns the tenant with its location and schedules compiled.
func (r *Registry) Get(_ context.Context, botID string) (*models.Tenant, error) {
	r.mu.RLock()
	raw, ok := r.tenants[botID]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.Reject(domain.ErrConfiguration, domain.ReasonBotNotFound, fmt.Sprintf("bot %q is not configured", botID))
	}

	t := clone(raw)
	if !t.Enabled() {
		return nil, domain.Reject(domain.ErrConfiguration, domain.ReasonBookingDisabled, "booking is disabled for this assistant")
	}

	tz := t.Policy.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		rej := domain.Reject(domain.ErrConfiguration, domain.ReasonInvalidConfig, fmt.Sprintf("bot %q has an invalid timezone %q", botID, tz))
		rej.Err = err
		return nil, rej
	}
	t.Policy.Timezone = tz
	t.Policy.Location = loc

	for i := range t.Services {
		hours, err := schedule.Compile(t.Services[i].Schedule)
		if err != nil {
			rej := domain.Reject(domain.ErrConfiguration, domain.ReasonInvalidConfig, fmt.Sprintf("service %s has an invalid schedule", t.Services[i].Key))
			rej.Err = err
			return nil, rej
		}
		t.Services[i].Hours = hours
	}
	return &t, nil
}

// IDs lists the configured bot ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.tenants))
	for id := range r.tenants {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func clone(t models.Tenant) models.Tenant {
	out := t
	if t.BookingEnabled != nil {
		v := *t.BookingEnabled
		out.BookingEnabled = &v
	}
	out.Policy = clonePolicy(t.Policy)
	out.Services = make([]models.ServiceDefinition, len(t.Services))
	for i, s := range t.Services {
		c := s
		c.Aliases = append([]string(nil), s.Aliases...)
		if s.Schedule != nil {
			c.Schedule = make(map[string][]models.WindowSpec, len(s.Schedule))
			for day, windows := range s.Schedule {
				c.Schedule[day] = append([]models.WindowSpec(nil), windows...)
			}
		}
		c.Hours = nil
		out.Services[i] = c
	}
	return out
}

func clonePolicy(p models.BookingPolicy) models.BookingPolicy {
	out := p
	if p.MinLeadHours != nil {
		v := *p.MinLeadHours
		out.MinLeadHours = &v
	}
	if p.MaxAdvanceDays != nil {
		v := *p.MaxAdvanceDays
		out.MaxAdvanceDays = &v
	}
	if p.RequireName != nil {
		v := *p.RequireName
		out.RequireName = &v
	}
	if p.ExternalCalendarCheck != nil {
		v := *p.ExternalCalendarCheck
		out.ExternalCalendarCheck = &v
	}
	out.CustomFields = append([]string(nil), p.CustomFields...)
	return out
}
