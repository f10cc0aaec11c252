package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestModel builds a two-day model with two courses, two teachers and two
// sections, used across the constraint and solver tests.
func newTestModel(t *testing.T) (*Model, []*TimeSlot, []*CourseSession) {
	t.Helper()
	cfg := TimeConfig{
		StartTime:     "09:00",
		EndTime:       "16:00",
		ClassDuration: 60,
		LunchBreak:    &TimeRange{Start: "12:00", End: "13:00"},
		WorkingDays:   []string{"Monday", "Tuesday"},
	}
	slots, err := GenerateTimeSlots(cfg)
	require.NoError(t, err)

	courses := []CourseAssignment{
		sampleCourse("CS101", "T1", 2, 1),
		sampleCourse("CS102", "T2", 2, 1),
	}
	sessions := BuildSessions(courses, []string{"A", "B"})
	model, err := NewModel(cfg, slots, sessions)
	require.NoError(t, err)
	return model, slots, sessions
}

func TestClashConstraints(t *testing.T) {
	model, slots, sessions := newTestModel(t)

	t.Run("teacher clash detects overlap", func(t *testing.T) {
		c := NewTeacherClashConstraint(model, 10)
		a := NewAssignment()
		a.Assign("CS101-theory-A-1", slots[0])
		a.Assign("CS101-theory-B-1", slots[0]) // same teacher, same slot

		assert.Len(t, c.Violations(a), 1)
		assert.True(t, c.Violated(a, nil, nil))
		assert.Equal(t, 10.0, c.Cost(a))

		a.Assign("CS101-theory-B-1", slots[1])
		assert.Empty(t, c.Violations(a))
		assert.Zero(t, c.Cost(a))
	})

	t.Run("teacher clash tentative check", func(t *testing.T) {
		c := NewTeacherClashConstraint(model, 10)
		a := NewAssignment()
		a.Assign("CS101-theory-A-1", slots[0])

		clashing := model.Session("CS101-theory-B-1")
		require.NotNil(t, clashing)
		assert.True(t, c.Violated(a, clashing, slots[0]))
		assert.False(t, c.Violated(a, clashing, slots[1]))

		other := model.Session("CS102-theory-A-2")
		require.NotNil(t, other)
		// Different teacher but same section as CS101-theory-A-1.
		assert.False(t, c.Violated(a, other, slots[0]))
	})

	t.Run("section clash", func(t *testing.T) {
		c := NewSectionClashConstraint(model, 10)
		a := NewAssignment()
		a.Assign("CS101-theory-A-1", slots[0])
		a.Assign("CS102-theory-A-1", slots[0]) // same section, different teachers
		assert.Len(t, c.Violations(a), 1)

		a.Assign("CS102-theory-A-1", slots[1])
		assert.Empty(t, c.Violations(a))
	})

	t.Run("lab sessions never overlap", func(t *testing.T) {
		c := NewRoomClashConstraint(model, 6)
		a := NewAssignment()
		a.Assign("CS101-lab-A-1", slots[0])
		a.Assign("CS102-lab-B-1", slots[0]) // different teacher and section, both labs
		assert.Len(t, c.Violations(a), 1)
	})

	t.Run("affected sessions cover related pairs only", func(t *testing.T) {
		c := NewTeacherClashConstraint(model, 10)
		session := model.Session("CS101-theory-A-1")
		require.NotNil(t, session)
		affected := c.AffectedSessions(session)
		// Every other T1 session: CS101 theory x3 + lab x2 remaining.
		assert.Len(t, affected, 5)
		for _, id := range affected {
			assert.Equal(t, "T1", model.Session(id).TeacherID)
		}
	})

	_ = sessions
}

func TestSlotConstraints(t *testing.T) {
	model, slots, _ := newTestModel(t)

	t.Run("working hours rejects out-of-window slots", func(t *testing.T) {
		c := NewWorkingHoursConstraint(model, 8)
		session := model.Session("CS101-theory-A-1")

		assert.False(t, c.Violated(NewAssignment(), session, slots[0]))

		early := &TimeSlot{ID: "monday_07:00", Day: "monday", StartMinute: 7 * 60, EndMinute: 8 * 60, Duration: 60}
		assert.True(t, c.Violated(NewAssignment(), session, early))

		offDay := &TimeSlot{ID: "sunday_10:00", Day: "sunday", StartMinute: 10 * 60, EndMinute: 11 * 60, Duration: 60}
		assert.True(t, c.Violated(NewAssignment(), session, offDay))
	})

	t.Run("lunch break rejects overlapping slots", func(t *testing.T) {
		c := NewLunchBreakConstraint(model, 8)
		session := model.Session("CS101-theory-A-1")

		lunch := &TimeSlot{ID: "monday_12:30", Day: "monday", StartMinute: 12*60 + 30, EndMinute: 13*60 + 30, Duration: 60}
		assert.True(t, c.Violated(NewAssignment(), session, lunch))
		assert.False(t, c.Violated(NewAssignment(), session, slots[0]))
	})
}

func TestSoftConstraintCosts(t *testing.T) {
	model, slots, _ := newTestModel(t)

	slotAt := func(day string, hour int) *TimeSlot {
		id := day + "_" + formatClock(hour*60)
		for _, s := range slots {
			if s.ID == id {
				return s
			}
		}
		t.Fatalf("no slot %s", id)
		return nil
	}

	t.Run("student gaps grow super-linearly", func(t *testing.T) {
		c := NewStudentGapsConstraint(model, 1)

		oneGap := NewAssignment()
		oneGap.Assign("CS101-theory-A-1", slotAt("monday", 9))
		oneGap.Assign("CS102-theory-A-1", slotAt("monday", 11)) // one-hour gap
		shortCost := c.Cost(oneGap)
		assert.InDelta(t, 1.0, shortCost, 1e-9)

		longGap := NewAssignment()
		longGap.Assign("CS101-theory-A-1", slotAt("monday", 9))
		longGap.Assign("CS102-theory-A-1", slotAt("monday", 14)) // four-hour gap
		assert.Greater(t, c.Cost(longGap), 4*shortCost,
			"a long gap must cost more than proportionally")
	})

	t.Run("adjacent sessions cost nothing", func(t *testing.T) {
		c := NewStudentGapsConstraint(model, 1)
		a := NewAssignment()
		a.Assign("CS101-theory-A-1", slotAt("monday", 9))
		a.Assign("CS102-theory-A-1", slotAt("monday", 10))
		assert.Zero(t, c.Cost(a))
	})

	t.Run("morning theory penalizes afternoon starts", func(t *testing.T) {
		c := NewMorningTheoryConstraint(model, 1)

		morning := NewAssignment()
		morning.Assign("CS101-theory-A-1", slotAt("monday", 9))
		assert.Zero(t, c.Cost(morning))

		afternoon := NewAssignment()
		afternoon.Assign("CS101-theory-A-1", slotAt("monday", 14))
		assert.Greater(t, c.Cost(afternoon), 0.0)

		later := NewAssignment()
		later.Assign("CS101-theory-A-1", slotAt("monday", 15))
		assert.Greater(t, c.Cost(later), c.Cost(afternoon))
	})

	t.Run("morning theory ignores labs", func(t *testing.T) {
		c := NewMorningTheoryConstraint(model, 1)
		a := NewAssignment()
		a.Assign("CS101-lab-A-1", slotAt("monday", 14))
		assert.Zero(t, c.Cost(a))
	})

	t.Run("back-to-back labs for one teacher", func(t *testing.T) {
		c := NewBackToBackLabsConstraint(model, 3)
		a := NewAssignment()
		a.Assign("CS101-lab-A-1", slotAt("monday", 9))
		a.Assign("CS101-lab-B-1", slotAt("monday", 10)) // same teacher, zero gap
		assert.InDelta(t, 3.0, c.Cost(a), 1e-9)
		assert.Len(t, c.Violations(a), 1)

		spread := NewAssignment()
		spread.Assign("CS101-lab-A-1", slotAt("monday", 9))
		spread.Assign("CS101-lab-B-1", slotAt("monday", 14))
		assert.Zero(t, c.Cost(spread))
	})

	t.Run("daily transitions weight the theory-lab-theory sandwich", func(t *testing.T) {
		c := NewDailyTransitionsConstraint(model, 1)
		a := NewAssignment()
		a.Assign("CS101-theory-A-1", slotAt("monday", 9))
		a.Assign("CS101-lab-A-1", slotAt("monday", 10))
		a.Assign("CS102-theory-A-1", slotAt("monday", 11))

		// CS101 theory -> CS101 lab: type change only (0.3).
		// CS101 lab -> CS102 theory: course change (0.5) + type change (0.3).
		// Plus the theory-lab-theory sandwich (2.0).
		assert.InDelta(t, 0.3+0.5+0.3+2.0, c.Cost(a), 1e-9)
		assert.Len(t, c.Violations(a), 1)
	})

	t.Run("teacher workload flags uneven loads", func(t *testing.T) {
		c := NewTeacherWorkloadConstraint(model, 1)
		a := NewAssignment()
		// All of T1's sessions on the schedule, none of T2's: nonzero variance.
		a.Assign("CS101-theory-A-1", slotAt("monday", 9))
		a.Assign("CS101-theory-A-2", slotAt("monday", 10))
		a.Assign("CS102-theory-A-1", slotAt("tuesday", 9))
		assert.Greater(t, c.Cost(a), 0.0)

		// Soft constraints never block a placement.
		assert.False(t, c.Violated(a, model.Session("CS101-theory-B-1"), slotAt("monday", 9)))
	})
}
