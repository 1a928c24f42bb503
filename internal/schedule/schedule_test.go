package schedule

import (
	"testing"
	"time"

	"chatbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weekdayHours(t *testing.T) *models.WeeklySchedule {
	t.Helper()
	ws, err := Compile(map[string][]models.WindowSpec{
		"mon":     {{Start: "09:00", End: "12:00"}, {Start: "13:00", End: "17:00"}},
		"Tuesday": {{Start: "09:00", End: "17:00"}},
	})
	require.NoError(t, err)
	return ws
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"09:00", 540, false},
		{"9:30", 570, false},
		{"23:59", 1439, false},
		{"24:00", 1440, false},
		{"24:01", 0, true},
		{"12:60", 0, true},
		{"1200", 0, true},
		{"ab:cd", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestCompile(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		ws, err := Compile(nil)
		assert.NoError(t, err)
		assert.Nil(t, ws)
	})

	t.Run("UnknownDay", func(t *testing.T) {
		_, err := Compile(map[string][]models.WindowSpec{"funday": {{Start: "09:00", End: "10:00"}}})
		assert.Error(t, err)
	})

	t.Run("InvertedWindow", func(t *testing.T) {
		_, err := Compile(map[string][]models.WindowSpec{"mon": {{Start: "17:00", End: "09:00"}}})
		assert.Error(t, err)
	})

	t.Run("Valid", func(t *testing.T) {
		ws := weekdayHours(t)
		assert.Len(t, ws.Days[time.Monday], 2)
		assert.Len(t, ws.Days[time.Tuesday], 1)
		assert.Empty(t, ws.Days[time.Sunday])
	})
}

func TestIsWithinSchedule(t *testing.T) {
	ws := weekdayHours(t)
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 2025-03-10 is a Monday
	at := func(day, hour, min int) time.Time {
		return time.Date(2025, 3, day, hour, min, 0, 0, loc)
	}

	tests := []struct {
		name     string
		start    time.Time
		duration int
		want     bool
	}{
		{"ExactWindowBounds", at(10, 9, 0), 180, true},
		{"OneMinuteEarly", at(10, 8, 59), 60, false},
		{"OneMinuteOverEnd", at(10, 11, 1), 60, false},
		{"EndsAtWindowEnd", at(10, 16, 0), 60, true},
		{"SpansLunchGap", at(10, 11, 30), 60, false},
		{"AfternoonWindow", at(10, 13, 0), 30, true},
		{"Tuesday", at(11, 16, 30), 30, true},
		{"ClosedSunday", at(9, 10, 0), 30, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsWithinSchedule(tt.start, tt.duration, ws))
		})
	}

	t.Run("NilScheduleAlwaysOpen", func(t *testing.T) {
		assert.True(t, IsWithinSchedule(at(9, 3, 0), 600, nil))
	})

	t.Run("DayWithoutWindows", func(t *testing.T) {
		empty := &models.WeeklySchedule{Days: map[time.Weekday][]models.TimeWindow{time.Monday: nil}}
		assert.False(t, IsWithinSchedule(at(10, 10, 0), 30, empty))
	})
}
