// Package suggest proposes free slots near a rejected booking request.
package suggest

import (
	"context"
	"sort"
	"time"

	"chatbook/internal/domain"
	"chatbook/internal/metrics"
	"chatbook/internal/models"
	"chatbook/internal/schedule"

	"github.com/rs/zerolog"
)

// BookingLister is the part of the ledger the engine reads.
type BookingLister interface {
	ListActiveInRange(ctx context.Context, botID, calendarID string, from, to time.Time) ([]*models.Booking, error)
}

// CapacityProber checks a single slot against the external calendar.
type CapacityProber interface {
	HasCapacity(ctx context.Context, calendarID string, start, end time.Time, capacity int, excludeEventID string) (bool, error)
}

type Engine struct {
	bookings  BookingLister
	prober    CapacityProber
	logger    *zerolog.Logger
	window    time.Duration
	maxProbes int
}

var _ domain.SlotSuggester = (*Engine)(nil)

func NewEngine(bookings BookingLister, prober CapacityProber, logger *zerolog.Logger) *Engine {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Engine{
		bookings:  bookings,
		prober:    prober,
		logger:    logger,
		window:    models.SuggestionWindowHours * time.Hour,
		maxProbes: models.MaxSuggestionProbes,
	}
}

// Suggest returns up to two RFC 3339 start times in the tenant timezone,
// ascending. It never returns the requested time and every result passes the
// same temporal and internal capacity rules as a booking would.
func (e *Engine) Suggest(ctx context.Context, req domain.SuggestRequest) []string {
	svc := req.Service
	dur := svc.Duration()
	if dur <= 0 {
		return nil
	}

	from := req.RequestedStart.Add(-e.window)
	to := req.RequestedStart.Add(e.window)

	existing, err := e.bookings.ListActiveInRange(ctx, req.BotID, svc.CalendarID, from, to.Add(dur))
	if err != nil {
		e.logger.Warn().Err(err).Str("bot_id", req.BotID).Msg("suggestions skipped: ledger unavailable")
		metrics.ObserveSuggestions(0)
		return nil
	}

	var before, after []time.Time
	for t := from; !t.After(to); t = t.Add(dur) {
		if t.Equal(req.RequestedStart) {
			continue
		}
		if schedule.Violation(t, req.Now, &req.Policy, &svc) != "" {
			continue
		}
		if overlapping(existing, t, t.Add(dur), req.ExcludeBookingID) >= svc.MaxConcurrent() {
			continue
		}
		if t.Before(req.RequestedStart) {
			before = append(before, t)
		} else {
			after = append(after, t)
		}
	}
	// nearest first
	for i, j := 0, len(before)-1; i < j; i, j = i+1, j-1 {
		before[i], before[j] = before[j], before[i]
	}

	p := &probe{engine: e, ctx: ctx, req: req}
	picked := p.pick(before, after)
	if len(picked) > models.MaxSuggestions {
		picked = picked[:models.MaxSuggestions]
	}

	sort.Slice(picked, func(i, j int) bool { return picked[i].Before(picked[j]) })
	loc := req.Policy.Loc()
	out := make([]string, 0, len(picked))
	for _, t := range picked {
		out = append(out, t.In(loc).Format(time.RFC3339))
	}
	metrics.ObserveSuggestions(len(out))
	return out
}

func overlapping(bookings []*models.Booking, start, end time.Time, excludeID string) int {
	n := 0
	for _, b := range bookings {
		if b.ID != excludeID && b.Overlaps(start, end) {
			n++
		}
	}
	return n
}

// probe walks candidate lists against the external calendar within a shared
// budget. A failed probe counts as busy.
type probe struct {
	engine *Engine
	ctx    context.Context
	req    domain.SuggestRequest
	used   int
}

func (p *probe) free(t time.Time) (bool, bool) {
	if !p.req.Policy.ProbeCalendar() || p.engine.prober == nil {
		return true, true
	}
	if p.used >= p.engine.maxProbes {
		return false, false
	}
	p.used++

	svc := p.req.Service
	ok, err := p.engine.prober.HasCapacity(p.ctx, svc.CalendarID, t, t.Add(svc.Duration()), svc.MaxConcurrent(), p.req.ExcludeEventID)
	if err != nil {
		p.engine.logger.Debug().Err(err).Time("candidate", t).Msg("suggestion probe failed")
		return false, true
	}
	return ok, true
}

// cursor is a position in one side's candidate list.
type cursor struct {
	list []time.Time
	next int
}

func (c *cursor) more() bool {
	return c.next < len(c.list)
}

// advance probes until a free slot is found, the list runs out, or the
// budget is spent.
func (p *probe) advance(c *cursor) (time.Time, bool) {
	for c.more() {
		if t, ok := p.stepOne(c); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// pick prefers one slot on each side, alternating probes so neither side can
// starve the other, then backfills from the side that found one.
func (p *probe) pick(before, after []time.Time) []time.Time {
	b := &cursor{list: before}
	a := &cursor{list: after}

	var out []time.Time
	var hitB, hitA bool
	for !p.exhausted() && ((!hitB && b.more()) || (!hitA && a.more())) {
		if !hitB && b.more() {
			if t, ok := p.stepOne(b); ok {
				out = append(out, t)
				hitB = true
			}
		}
		if !hitA && a.more() {
			if t, ok := p.stepOne(a); ok {
				out = append(out, t)
				hitA = true
			}
		}
	}

	switch {
	case hitB && !hitA:
		if t, ok := p.advance(b); ok {
			out = append(out, t)
		}
	case hitA && !hitB:
		if t, ok := p.advance(a); ok {
			out = append(out, t)
		}
	}
	return out
}

// stepOne probes exactly one candidate of c.
func (p *probe) stepOne(c *cursor) (time.Time, bool) {
	t := c.list[c.next]
	c.next++
	ok, budget := p.free(t)
	if !budget {
		c.next = len(c.list)
		return time.Time{}, false
	}
	return t, ok
}

func (p *probe) exhausted() bool {
	return p.req.Policy.ProbeCalendar() && p.engine.prober != nil && p.used >= p.engine.maxProbes
}
