package engine

import (
	"fmt"
	"strings"
)

// SessionType distinguishes the three kinds of weekly class meetings.
type SessionType string

const (
	SessionTheory   SessionType = "theory"
	SessionLab      SessionType = "lab"
	SessionTutorial SessionType = "tutorial"
)

// SessionSpec carries the per-type teaching load of a course.
type SessionSpec struct {
	TeacherID   string `json:"teacher_id"`
	WeeklyCount int    `json:"weekly_count"`
	Duration    int    `json:"duration"`
}

// CourseAssignment is one course with its per-session-type loads.
type CourseAssignment struct {
	CourseID   string      `json:"course_id"`
	CourseName string      `json:"course_name"`
	Department string      `json:"department"`
	Semester   int         `json:"semester"`
	Theory     SessionSpec `json:"theory"`
	Lab        SessionSpec `json:"lab"`
	Tutorial   SessionSpec `json:"tutorial"`
}

// CourseSession is one weekly occurrence of a course meeting for one section.
// Exactly one CSP variable is created per session.
type CourseSession struct {
	ID          string      `json:"id"`
	CourseID    string      `json:"course_id"`
	CourseName  string      `json:"course_name"`
	Type        SessionType `json:"type"`
	Section     string      `json:"section"`
	TeacherID   string      `json:"teacher_id"`
	Department  string      `json:"department"`
	Semester    int         `json:"semester"`
	Duration    int         `json:"duration"`
	WeeklyCount int         `json:"weekly_count"`
	Occurrence  int         `json:"occurrence"`
}

// BuildSessions expands course assignments into atomic sessions: one per
// course x section x session type x weekly occurrence. A session type with a
// zero weekly count or no assigned teacher is skipped entirely.
func BuildSessions(courses []CourseAssignment, sections []string) []*CourseSession {
	var sessions []*CourseSession
	for _, course := range courses {
		for _, section := range sections {
			for _, entry := range []struct {
				kind SessionType
				spec SessionSpec
			}{
				{SessionTheory, course.Theory},
				{SessionLab, course.Lab},
				{SessionTutorial, course.Tutorial},
			} {
				if entry.spec.WeeklyCount <= 0 || entry.spec.TeacherID == "" {
					continue
				}
				for occ := 1; occ <= entry.spec.WeeklyCount; occ++ {
					sessions = append(sessions, &CourseSession{
						ID:          fmt.Sprintf("%s-%s-%s-%d", course.CourseID, entry.kind, section, occ),
						CourseID:    course.CourseID,
						CourseName:  course.CourseName,
						Type:        entry.kind,
						Section:     section,
						TeacherID:   entry.spec.TeacherID,
						Department:  course.Department,
						Semester:    course.Semester,
						Duration:    entry.spec.Duration,
						WeeklyCount: entry.spec.WeeklyCount,
						Occurrence:  occ,
					})
				}
			}
		}
	}
	return sessions
}

// OverconstrainedError reports a problem that cannot fit the available slots.
// It is raised before the solver runs so an unsatisfiable request fails fast
// instead of burning the whole search budget.
type OverconstrainedError struct {
	RequiredPerSection int
	AvailableSlots     int
	TotalSessions      int
	SectionCount       int
}

func (e *OverconstrainedError) Error() string {
	return fmt.Sprintf(
		"overconstrained problem: each section needs %d slots per week but only %d are available (%d sessions across %d sections); increase working hours or days, or reduce weekly classes",
		e.RequiredPerSection, e.AvailableSlots, e.TotalSessions, e.SectionCount,
	)
}

// Preflight verifies that the generated sessions can possibly fit into the
// available slots. It returns an *OverconstrainedError when the per-section
// requirement exceeds the slot count.
func Preflight(sessions []*CourseSession, slots []*TimeSlot) error {
	if len(sessions) == 0 {
		return fmt.Errorf("no schedulable sessions: every session type has a zero weekly count or no assigned teacher")
	}

	unique := make(map[string]bool)
	for _, session := range sessions {
		unique[strings.ToUpper(session.Section)] = true
	}
	sectionCount := len(unique)
	if sectionCount == 0 {
		sectionCount = 1
	}

	// Ceiling division so an odd split still reserves enough room.
	required := (len(sessions) + sectionCount - 1) / sectionCount
	if required > len(slots) {
		return &OverconstrainedError{
			RequiredPerSection: required,
			AvailableSlots:     len(slots),
			TotalSessions:      len(sessions),
			SectionCount:       sectionCount,
		}
	}
	return nil
}
