// Package engine implements the constraint-satisfaction timetable generator:
// time-slot and session expansion, the hard/soft constraint model, a
// backtracking CSP solver with optional propagation, and the multi-solution
// orchestrator that builds a ranked portfolio of timetables.
package engine

import (
	"fmt"
	"sort"
	"strings"
)

// TimeSlot is a fixed-duration interval on a working day. Slots are immutable
// once generated and shared by reference across all variable domains.
type TimeSlot struct {
	ID          string `json:"id"`
	Day         string `json:"day"`
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
	Duration    int    `json:"duration"`
}

// StartClock renders the slot start as HH:MM.
func (s *TimeSlot) StartClock() string {
	return formatClock(s.StartMinute)
}

// EndClock renders the slot end as HH:MM.
func (s *TimeSlot) EndClock() string {
	return formatClock(s.EndMinute)
}

// TimeRange is a clock interval expressed as HH:MM strings.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// TimeConfig describes the schedulable week.
type TimeConfig struct {
	StartTime     string     `json:"start_time"`
	EndTime       string     `json:"end_time"`
	ClassDuration int        `json:"class_duration"`
	LunchBreak    *TimeRange `json:"lunch_break,omitempty"`
	WorkingDays   []string   `json:"working_days"`
	MorningEnd    string     `json:"morning_end,omitempty"`
}

var dayOrder = map[string]int{
	"monday":    1,
	"tuesday":   2,
	"wednesday": 3,
	"thursday":  4,
	"friday":    5,
	"saturday":  6,
	"sunday":    7,
}

func canonicalDay(raw string) (string, bool) {
	day := strings.ToLower(strings.TrimSpace(raw))
	_, ok := dayOrder[day]
	return day, ok
}

func parseClock(raw string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(raw), "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", raw, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock value %q out of range", raw)
	}
	return h*60 + m, nil
}

func formatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

func rangesOverlap(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}

// GenerateTimeSlots materializes every schedulable slot for the configured
// week, ordered day-major then time-minor. Increments overlapping the lunch
// break are never emitted, and a trailing increment that does not fit inside
// the working window is dropped.
func GenerateTimeSlots(cfg TimeConfig) ([]*TimeSlot, error) {
	start, err := parseClock(cfg.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := parseClock(cfg.EndTime)
	if err != nil {
		return nil, err
	}
	if end <= start {
		return nil, fmt.Errorf("end time %s must be after start time %s", cfg.EndTime, cfg.StartTime)
	}
	if cfg.ClassDuration <= 0 {
		return nil, fmt.Errorf("class duration must be positive, got %d", cfg.ClassDuration)
	}
	if len(cfg.WorkingDays) == 0 {
		return nil, fmt.Errorf("at least one working day is required")
	}

	var lunchStart, lunchEnd int
	hasLunch := false
	if cfg.LunchBreak != nil && cfg.LunchBreak.Start != "" && cfg.LunchBreak.End != "" {
		lunchStart, err = parseClock(cfg.LunchBreak.Start)
		if err != nil {
			return nil, err
		}
		lunchEnd, err = parseClock(cfg.LunchBreak.End)
		if err != nil {
			return nil, err
		}
		if lunchEnd <= lunchStart {
			return nil, fmt.Errorf("lunch break end %s must be after start %s", cfg.LunchBreak.End, cfg.LunchBreak.Start)
		}
		hasLunch = true
	}

	days := make([]string, 0, len(cfg.WorkingDays))
	seen := make(map[string]bool, len(cfg.WorkingDays))
	for _, raw := range cfg.WorkingDays {
		day, ok := canonicalDay(raw)
		if !ok {
			return nil, fmt.Errorf("unknown working day %q", raw)
		}
		if seen[day] {
			continue
		}
		seen[day] = true
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return dayOrder[days[i]] < dayOrder[days[j]] })

	var slots []*TimeSlot
	for _, day := range days {
		for cursor := start; cursor+cfg.ClassDuration <= end; cursor += cfg.ClassDuration {
			slotEnd := cursor + cfg.ClassDuration
			if hasLunch && rangesOverlap(cursor, slotEnd, lunchStart, lunchEnd) {
				continue
			}
			slots = append(slots, &TimeSlot{
				ID:          fmt.Sprintf("%s_%s", day, formatClock(cursor)),
				Day:         day,
				StartMinute: cursor,
				EndMinute:   slotEnd,
				Duration:    cfg.ClassDuration,
			})
		}
	}
	return slots, nil
}
