package engine

import (
	"fmt"
	"math"
	"sort"
)

// placement pairs a session with its assigned slot for cost walks.
type placement struct {
	session *CourseSession
	slot    *TimeSlot
}

// groupPlacements buckets assigned sessions by an arbitrary key (for example
// section+day or teacher+day), each bucket sorted by start time.
func groupPlacements(a *Assignment, m *Model, key func(p placement) string) map[string][]placement {
	groups := make(map[string][]placement)
	for id, slot := range a.Items() {
		session := m.Session(id)
		if session == nil || slot == nil {
			continue
		}
		p := placement{session: session, slot: slot}
		k := key(p)
		if k == "" {
			continue
		}
		groups[k] = append(groups[k], p)
	}
	for k := range groups {
		sort.Slice(groups[k], func(i, j int) bool {
			return groups[k][i].slot.StartMinute < groups[k][j].slot.StartMinute
		})
	}
	return groups
}

type softBase struct {
	name   string
	weight float64
	model  *Model
}

func (c *softBase) Name() string    { return c.name }
func (c *softBase) Kind() Kind      { return KindSoft }
func (c *softBase) Weight() float64 { return c.weight }

// Soft constraints never invalidate an assignment.
func (c *softBase) Violated(a *Assignment, session *CourseSession, slot *TimeSlot) bool {
	return false
}

func (c *softBase) AffectedSessions(session *CourseSession) []string { return nil }

// StudentGapsConstraint penalizes idle minutes between consecutive sessions
// of a section within a day. Cost grows super-linearly so a single long gap
// hurts more than several short ones.
type StudentGapsConstraint struct {
	softBase
}

// NewStudentGapsConstraint builds the gap-minimization rule.
func NewStudentGapsConstraint(model *Model, weight float64) *StudentGapsConstraint {
	return &StudentGapsConstraint{softBase{name: NameStudentGaps, weight: weight, model: model}}
}

func (c *StudentGapsConstraint) Cost(a *Assignment) float64 {
	var cost float64
	groups := groupPlacements(a, c.model, func(p placement) string {
		return p.session.Section + "|" + p.slot.Day
	})
	for _, day := range groups {
		for i := 1; i < len(day); i++ {
			gap := day[i].slot.StartMinute - day[i-1].slot.EndMinute
			if gap > 0 {
				cost += c.weight * math.Pow(float64(gap)/60.0, 1.5)
			}
		}
	}
	return cost
}

func (c *StudentGapsConstraint) Violations(a *Assignment) []string {
	var out []string
	groups := groupPlacements(a, c.model, func(p placement) string {
		return p.session.Section + "|" + p.slot.Day
	})
	for _, day := range groups {
		for i := 1; i < len(day); i++ {
			gap := day[i].slot.StartMinute - day[i-1].slot.EndMinute
			if gap > 0 {
				out = append(out, fmt.Sprintf("%s: section %s idles %d minutes on %s before %s",
					c.name, day[i].session.Section, gap, day[i].slot.Day, day[i].slot.StartClock()))
			}
		}
	}
	return out
}

// TeacherWorkloadConstraint balances weekly hours across teachers and
// discourages spreading a light load over too many days or cramming a heavy
// load into too few.
type TeacherWorkloadConstraint struct {
	softBase
}

// NewTeacherWorkloadConstraint builds the workload-balance rule.
func NewTeacherWorkloadConstraint(model *Model, weight float64) *TeacherWorkloadConstraint {
	return &TeacherWorkloadConstraint{softBase{name: NameTeacherWorkload, weight: weight, model: model}}
}

func (c *TeacherWorkloadConstraint) teacherLoads(a *Assignment) (map[string]float64, map[string]map[string]bool) {
	hours := make(map[string]float64)
	days := make(map[string]map[string]bool)
	for id, slot := range a.Items() {
		session := c.model.Session(id)
		if session == nil || slot == nil || session.TeacherID == "" {
			continue
		}
		hours[session.TeacherID] += float64(slot.Duration) / 60.0
		if days[session.TeacherID] == nil {
			days[session.TeacherID] = make(map[string]bool)
		}
		days[session.TeacherID][slot.Day] = true
	}
	return hours, days
}

func (c *TeacherWorkloadConstraint) Cost(a *Assignment) float64 {
	hours, days := c.teacherLoads(a)
	if len(hours) == 0 {
		return 0
	}

	var sum float64
	for _, h := range hours {
		sum += h
	}
	mean := sum / float64(len(hours))
	var variance float64
	for _, h := range hours {
		variance += (h - mean) * (h - mean)
	}
	variance /= float64(len(hours))

	penalty := math.Sqrt(variance)
	for teacher, h := range hours {
		active := len(days[teacher])
		if active > 5 {
			penalty++
		}
		if active < 3 && h > 6 {
			penalty++
		}
	}
	return c.weight * penalty
}

func (c *TeacherWorkloadConstraint) Violations(a *Assignment) []string {
	hours, days := c.teacherLoads(a)
	var out []string
	for teacher, h := range hours {
		active := len(days[teacher])
		if active > 5 {
			out = append(out, fmt.Sprintf("%s: teacher %s teaches on %d days", c.name, teacher, active))
		}
		if active < 3 && h > 6 {
			out = append(out, fmt.Sprintf("%s: teacher %s carries %.1f hours across only %d days", c.name, teacher, h, active))
		}
	}
	return out
}

// MorningTheoryConstraint nudges theory sessions toward the morning. Cost
// accrues for each theory session starting at or after the morning cutoff.
type MorningTheoryConstraint struct {
	softBase
}

// NewMorningTheoryConstraint builds the morning-preference rule.
func NewMorningTheoryConstraint(model *Model, weight float64) *MorningTheoryConstraint {
	return &MorningTheoryConstraint{softBase{name: NameMorningTheory, weight: weight, model: model}}
}

func (c *MorningTheoryConstraint) Cost(a *Assignment) float64 {
	var cost float64
	for id, slot := range a.Items() {
		session := c.model.Session(id)
		if session == nil || slot == nil || session.Type != SessionTheory {
			continue
		}
		if slot.StartMinute >= c.model.morningEnd {
			past := float64(slot.StartMinute-c.model.morningEnd) / 60.0
			cost += c.weight * math.Pow(past, 1.2)
		}
	}
	return cost
}

func (c *MorningTheoryConstraint) Violations(a *Assignment) []string {
	var out []string
	for _, id := range a.SessionIDs() {
		session := c.model.Session(id)
		slot, _ := a.Slot(id)
		if session == nil || slot == nil || session.Type != SessionTheory {
			continue
		}
		if slot.StartMinute >= c.model.morningEnd {
			out = append(out, fmt.Sprintf("%s: theory session %s starts at %s on %s",
				c.name, id, slot.StartClock(), slot.Day))
		}
	}
	return out
}

// BackToBackLabsConstraint discourages a teacher running consecutive labs
// with little or no break in between.
type BackToBackLabsConstraint struct {
	softBase
}

// NewBackToBackLabsConstraint builds the consecutive-labs rule.
func NewBackToBackLabsConstraint(model *Model, weight float64) *BackToBackLabsConstraint {
	return &BackToBackLabsConstraint{softBase{name: NameBackToBackLabs, weight: weight, model: model}}
}

func (c *BackToBackLabsConstraint) labRuns(a *Assignment) [][2]placement {
	var runs [][2]placement
	groups := groupPlacements(a, c.model, func(p placement) string {
		if p.session.Type != SessionLab || p.session.TeacherID == "" {
			return ""
		}
		return p.session.TeacherID + "|" + p.slot.Day
	})
	for _, day := range groups {
		for i := 1; i < len(day); i++ {
			gap := day[i].slot.StartMinute - day[i-1].slot.EndMinute
			if gap >= 0 && gap <= 15 {
				runs = append(runs, [2]placement{day[i-1], day[i]})
			}
		}
	}
	return runs
}

func (c *BackToBackLabsConstraint) Cost(a *Assignment) float64 {
	return c.weight * float64(len(c.labRuns(a)))
}

func (c *BackToBackLabsConstraint) Violations(a *Assignment) []string {
	var out []string
	for _, run := range c.labRuns(a) {
		out = append(out, fmt.Sprintf("%s: teacher %s has back-to-back labs on %s at %s and %s",
			c.name, run[0].session.TeacherID, run[0].slot.Day,
			run[0].slot.StartClock(), run[1].slot.StartClock()))
	}
	return out
}

// DailyTransitionsConstraint penalizes context switching within a section's
// day: course changes, session-type changes, and the theory-lab-theory
// sandwich that forces two mental gear shifts around one lab.
type DailyTransitionsConstraint struct {
	softBase
}

// NewDailyTransitionsConstraint builds the transition-minimization rule.
func NewDailyTransitionsConstraint(model *Model, weight float64) *DailyTransitionsConstraint {
	return &DailyTransitionsConstraint{softBase{name: NameDailyTransitions, weight: weight, model: model}}
}

func (c *DailyTransitionsConstraint) Cost(a *Assignment) float64 {
	var cost float64
	groups := groupPlacements(a, c.model, func(p placement) string {
		return p.session.Section + "|" + p.slot.Day
	})
	for _, day := range groups {
		for i := 1; i < len(day); i++ {
			if day[i].session.CourseID != day[i-1].session.CourseID {
				cost += c.weight * 0.5
			}
			if day[i].session.Type != day[i-1].session.Type {
				cost += c.weight * 0.3
			}
		}
		for i := 2; i < len(day); i++ {
			if day[i-2].session.Type == SessionTheory &&
				day[i-1].session.Type == SessionLab &&
				day[i].session.Type == SessionTheory {
				cost += c.weight * 2
			}
		}
	}
	return cost
}

func (c *DailyTransitionsConstraint) Violations(a *Assignment) []string {
	var out []string
	groups := groupPlacements(a, c.model, func(p placement) string {
		return p.session.Section + "|" + p.slot.Day
	})
	for _, day := range groups {
		for i := 2; i < len(day); i++ {
			if day[i-2].session.Type == SessionTheory &&
				day[i-1].session.Type == SessionLab &&
				day[i].session.Type == SessionTheory {
				out = append(out, fmt.Sprintf("%s: section %s alternates theory-lab-theory on %s",
					c.name, day[i].session.Section, day[i].slot.Day))
			}
		}
	}
	return out
}
