package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseTimeConfig() TimeConfig {
	return TimeConfig{
		StartTime:     "09:00",
		EndTime:       "17:00",
		ClassDuration: 60,
		LunchBreak:    &TimeRange{Start: "13:00", End: "14:00"},
		WorkingDays:   []string{"Monday", "Wednesday"},
	}
}

func TestGenerateTimeSlots(t *testing.T) {
	t.Run("skips lunch and orders day-major", func(t *testing.T) {
		slots, err := GenerateTimeSlots(baseTimeConfig())
		require.NoError(t, err)

		// 09-13 gives four hourly slots, 13-14 is lunch, 14-17 gives three.
		require.Len(t, slots, 14)
		assert.Equal(t, "monday_09:00", slots[0].ID)
		assert.Equal(t, "monday", slots[0].Day)
		assert.Equal(t, 9*60, slots[0].StartMinute)
		assert.Equal(t, 10*60, slots[0].EndMinute)

		for _, slot := range slots {
			assert.False(t, rangesOverlap(slot.StartMinute, slot.EndMinute, 13*60, 14*60),
				"slot %s overlaps lunch", slot.ID)
		}
		assert.Equal(t, "monday", slots[6].Day)
		assert.Equal(t, "wednesday", slots[7].Day)
	})

	t.Run("drops trailing partial increment", func(t *testing.T) {
		cfg := baseTimeConfig()
		cfg.EndTime = "17:30"
		slots, err := GenerateTimeSlots(cfg)
		require.NoError(t, err)
		for _, slot := range slots {
			assert.LessOrEqual(t, slot.EndMinute, 17*60+30)
		}
		// The 17:00-18:00 increment does not fit and must not appear.
		require.Len(t, slots, 14)
	})

	t.Run("dedupes and sorts working days", func(t *testing.T) {
		cfg := baseTimeConfig()
		cfg.WorkingDays = []string{"wednesday", "MONDAY", "Monday"}
		slots, err := GenerateTimeSlots(cfg)
		require.NoError(t, err)
		require.Len(t, slots, 14)
		assert.Equal(t, "monday", slots[0].Day)
	})

	t.Run("works without a lunch break", func(t *testing.T) {
		cfg := baseTimeConfig()
		cfg.LunchBreak = nil
		slots, err := GenerateTimeSlots(cfg)
		require.NoError(t, err)
		require.Len(t, slots, 16)
	})

	t.Run("rejects bad configuration", func(t *testing.T) {
		cases := []struct {
			name   string
			mutate func(*TimeConfig)
		}{
			{"end before start", func(c *TimeConfig) { c.EndTime = "08:00" }},
			{"zero duration", func(c *TimeConfig) { c.ClassDuration = 0 }},
			{"no working days", func(c *TimeConfig) { c.WorkingDays = nil }},
			{"unknown day", func(c *TimeConfig) { c.WorkingDays = []string{"Funday"} }},
			{"bad clock", func(c *TimeConfig) { c.StartTime = "25:99" }},
			{"inverted lunch", func(c *TimeConfig) { c.LunchBreak = &TimeRange{Start: "14:00", End: "13:00"} }},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				cfg := baseTimeConfig()
				tc.mutate(&cfg)
				_, err := GenerateTimeSlots(cfg)
				require.Error(t, err)
			})
		}
	})
}

func TestClockHelpers(t *testing.T) {
	minute, err := parseClock("08:05")
	require.NoError(t, err)
	assert.Equal(t, 8*60+5, minute)
	assert.Equal(t, "08:05", formatClock(minute))

	_, err = parseClock("nonsense")
	require.Error(t, err)
}
