// Package schedule evaluates bookings against weekly business hours.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"chatbook/internal/models"
)

var dayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// Compile turns configured windows into a WeeklySchedule. An empty map yields
// nil, meaning the service is always open.
func Compile(raw map[string][]models.WindowSpec) (*models.WeeklySchedule, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	ws := &models.WeeklySchedule{Days: make(map[time.Weekday][]models.TimeWindow)}
	for name, windows := range raw {
		day, ok := dayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
		for _, w := range windows {
			start, err := ParseClock(w.Start)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			end, err := ParseClock(w.End)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			if start >= end {
				return nil, fmt.Errorf("%s: window %s-%s must start before it ends", name, w.Start, w.End)
			}
			ws.Days[day] = append(ws.Days[day], models.TimeWindow{StartMinute: start, EndMinute: end})
		}
	}
	return ws, nil
}

// ParseClock parses "HH:MM" into minutes since midnight. "24:00" is accepted
// as the end of the day.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if h == 24 && m == 0 {
		return 24 * 60, nil
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return h*60 + m, nil
}

// IsWithinSchedule reports whether [start, start+duration] fits entirely in
// one window of the start's weekday. startLocal must already be in the
// tenant's timezone.
func IsWithinSchedule(startLocal time.Time, durationMinutes int, ws *models.WeeklySchedule) bool {
	if ws == nil {
		return true
	}
	windows := ws.Days[startLocal.Weekday()]
	if len(windows) == 0 {
		return false
	}

	begin := startLocal.Hour()*60 + startLocal.Minute()
	end := begin + durationMinutes
	for _, w := range windows {
		if begin >= w.StartMinute && end <= w.EndMinute {
			return true
		}
	}
	return false
}
