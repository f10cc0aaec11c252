package engine

import "fmt"

// clashRule is the shared body of the three pairwise clash constraints. The
// related predicate decides whether two distinct sessions may never overlap.
type clashRule struct {
	name    string
	weight  float64
	model   *Model
	related func(a, b *CourseSession) bool
}

func (c *clashRule) Name() string    { return c.name }
func (c *clashRule) Kind() Kind      { return KindHard }
func (c *clashRule) Weight() float64 { return c.weight }

func (c *clashRule) Violated(a *Assignment, session *CourseSession, slot *TimeSlot) bool {
	if session == nil {
		return len(c.Violations(a)) > 0
	}
	for otherID, otherSlot := range a.Items() {
		if otherID == session.ID {
			continue
		}
		other := c.model.Session(otherID)
		if other == nil {
			continue
		}
		if c.related(session, other) && overlap(slot, otherSlot) {
			return true
		}
	}
	return false
}

func (c *clashRule) Cost(a *Assignment) float64 {
	if len(c.Violations(a)) > 0 {
		return c.weight
	}
	return 0
}

func (c *clashRule) Violations(a *Assignment) []string {
	ids := a.SessionIDs()
	var out []string
	for i := 0; i < len(ids); i++ {
		first := c.model.Session(ids[i])
		firstSlot, _ := a.Slot(ids[i])
		if first == nil {
			continue
		}
		for j := i + 1; j < len(ids); j++ {
			second := c.model.Session(ids[j])
			secondSlot, _ := a.Slot(ids[j])
			if second == nil {
				continue
			}
			if c.related(first, second) && overlap(firstSlot, secondSlot) {
				out = append(out, fmt.Sprintf("%s: %s and %s overlap on %s at %s",
					c.name, first.ID, second.ID, firstSlot.Day, firstSlot.StartClock()))
			}
		}
	}
	return out
}

func (c *clashRule) AffectedSessions(session *CourseSession) []string {
	var out []string
	for id, other := range c.model.Sessions {
		if id == session.ID {
			continue
		}
		if c.related(session, other) {
			out = append(out, id)
		}
	}
	return out
}

// NewTeacherClashConstraint forbids one teacher in two places at once.
func NewTeacherClashConstraint(model *Model, weight float64) Constraint {
	return &clashRule{
		name:   NameTeacherClash,
		weight: weight,
		model:  model,
		related: func(a, b *CourseSession) bool {
			return a.TeacherID != "" && a.TeacherID == b.TeacherID
		},
	}
}

// NewSectionClashConstraint forbids one section attending two sessions at once.
func NewSectionClashConstraint(model *Model, weight float64) Constraint {
	return &clashRule{
		name:   NameSectionClash,
		weight: weight,
		model:  model,
		related: func(a, b *CourseSession) bool {
			return a.Section != "" && a.Section == b.Section
		},
	}
}

// NewRoomClashConstraint is a partial stand-in for room allocation: two lab
// sessions may not overlap because lab space is assumed scarce. Room identity
// itself is not modeled.
func NewRoomClashConstraint(model *Model, weight float64) Constraint {
	return &clashRule{
		name:   NameRoomClash,
		weight: weight,
		model:  model,
		related: func(a, b *CourseSession) bool {
			return a.Type == SessionLab && b.Type == SessionLab
		},
	}
}

// slotRule covers the unary slot-validity constraints (working hours, lunch
// break). They are global: no per-session interaction set.
type slotRule struct {
	name   string
	weight float64
	model  *Model
	bad    func(m *Model, slot *TimeSlot) bool
}

func (c *slotRule) Name() string    { return c.name }
func (c *slotRule) Kind() Kind      { return KindHard }
func (c *slotRule) Weight() float64 { return c.weight }

func (c *slotRule) Violated(a *Assignment, session *CourseSession, slot *TimeSlot) bool {
	if session == nil {
		return len(c.Violations(a)) > 0
	}
	return c.bad(c.model, slot)
}

func (c *slotRule) Cost(a *Assignment) float64 {
	if len(c.Violations(a)) > 0 {
		return c.weight
	}
	return 0
}

func (c *slotRule) Violations(a *Assignment) []string {
	var out []string
	for _, id := range a.SessionIDs() {
		slot, _ := a.Slot(id)
		if c.bad(c.model, slot) {
			out = append(out, fmt.Sprintf("%s: session %s sits at %s %s-%s",
				c.name, id, slot.Day, slot.StartClock(), slot.EndClock()))
		}
	}
	return out
}

func (c *slotRule) AffectedSessions(session *CourseSession) []string { return nil }

// NewWorkingHoursConstraint keeps slots inside the configured window and on
// configured working days.
func NewWorkingHoursConstraint(model *Model, weight float64) Constraint {
	return &slotRule{
		name:   NameWorkingHours,
		weight: weight,
		model:  model,
		bad: func(m *Model, slot *TimeSlot) bool {
			if slot == nil {
				return true
			}
			if !m.workingDays[slot.Day] {
				return true
			}
			return slot.StartMinute < m.startMinute || slot.EndMinute > m.endMinute
		},
	}
}

// NewLunchBreakConstraint rejects slots overlapping the lunch interval.
// Generated slots already avoid it; this guards externally-supplied slots.
func NewLunchBreakConstraint(model *Model, weight float64) Constraint {
	return &slotRule{
		name:   NameLunchBreak,
		weight: weight,
		model:  model,
		bad: func(m *Model, slot *TimeSlot) bool {
			if slot == nil {
				return true
			}
			if !m.hasLunch {
				return false
			}
			return rangesOverlap(slot.StartMinute, slot.EndMinute, m.lunchStart, m.lunchEnd)
		},
	}
}
