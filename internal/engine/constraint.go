package engine

import "sort"

// Kind separates rules that must hold from rules that only shape quality.
type Kind string

const (
	KindHard Kind = "hard"
	KindSoft Kind = "soft"
)

// Constraint names, used for weight emphasis tables and issue reporting.
const (
	NameTeacherClash     = "no_teacher_clash"
	NameSectionClash     = "no_section_clash"
	NameWorkingHours     = "working_hours"
	NameLunchBreak       = "lunch_break"
	NameRoomClash        = "no_room_clash"
	NameStudentGaps      = "student_gaps"
	NameTeacherWorkload  = "teacher_workload"
	NameMorningTheory    = "morning_theory"
	NameBackToBackLabs   = "back_to_back_labs"
	NameDailyTransitions = "daily_transitions"
)

// Constraint is the closed rule interface. Hard constraints answer Violated
// for search pruning; soft constraints contribute Cost for ranking. Both
// report Violations for diagnostics.
type Constraint interface {
	Name() string
	Kind() Kind
	Weight() float64

	// Violated reports whether tentatively placing session on slot (on top of
	// the current assignment) breaks the rule. A nil session checks the
	// assignment as-is. Soft constraints always return false.
	Violated(a *Assignment, session *CourseSession, slot *TimeSlot) bool

	// Cost is the weighted penalty over the full assignment. Hard constraints
	// report their weight when any violation exists, for diagnostics only.
	Cost(a *Assignment) float64

	// Violations describes every detected violation.
	Violations(a *Assignment) []string

	// AffectedSessions lists ids of sessions whose placement interacts with
	// the given session under this rule. Empty for globally-scoped rules.
	AffectedSessions(session *CourseSession) []string
}

// Model is the immutable per-run context shared by every constraint: the
// generated slots, the session-by-id lookup table, and the parsed time
// configuration.
type Model struct {
	Config   TimeConfig
	Slots    []*TimeSlot
	Sessions map[string]*CourseSession

	startMinute int
	endMinute   int
	lunchStart  int
	lunchEnd    int
	hasLunch    bool
	morningEnd  int
	workingDays map[string]bool
}

// NewModel builds the constraint context. The session lookup is materialized
// once here and handed to every constraint, so clash rules always resolve
// session ids to full session data.
func NewModel(cfg TimeConfig, slots []*TimeSlot, sessions []*CourseSession) (*Model, error) {
	start, err := parseClock(cfg.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := parseClock(cfg.EndTime)
	if err != nil {
		return nil, err
	}

	m := &Model{
		Config:      cfg,
		Slots:       slots,
		Sessions:    make(map[string]*CourseSession, len(sessions)),
		startMinute: start,
		endMinute:   end,
		morningEnd:  12 * 60,
		workingDays: make(map[string]bool, len(cfg.WorkingDays)),
	}
	for _, session := range sessions {
		m.Sessions[session.ID] = session
	}
	for _, raw := range cfg.WorkingDays {
		if day, ok := canonicalDay(raw); ok {
			m.workingDays[day] = true
		}
	}
	if cfg.LunchBreak != nil && cfg.LunchBreak.Start != "" && cfg.LunchBreak.End != "" {
		if m.lunchStart, err = parseClock(cfg.LunchBreak.Start); err != nil {
			return nil, err
		}
		if m.lunchEnd, err = parseClock(cfg.LunchBreak.End); err != nil {
			return nil, err
		}
		m.hasLunch = true
	}
	if cfg.MorningEnd != "" {
		if m.morningEnd, err = parseClock(cfg.MorningEnd); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Session resolves a session id. Returns nil for unknown ids.
func (m *Model) Session(id string) *CourseSession {
	return m.Sessions[id]
}

// overlap is the single day/time overlap check shared by every clash rule.
func overlap(a, b *TimeSlot) bool {
	if a == nil || b == nil || a.Day != b.Day {
		return false
	}
	return rangesOverlap(a.StartMinute, a.EndMinute, b.StartMinute, b.EndMinute)
}

// Assignment maps session ids to their chosen slots. It is built
// incrementally during search and mutated only through Assign and Unassign;
// the in-flight search call stack is its sole owner.
type Assignment struct {
	slots map[string]*TimeSlot
}

// NewAssignment returns an empty assignment.
func NewAssignment() *Assignment {
	return &Assignment{slots: make(map[string]*TimeSlot)}
}

// Assign places a session on a slot.
func (a *Assignment) Assign(sessionID string, slot *TimeSlot) {
	a.slots[sessionID] = slot
}

// Unassign removes a session's placement.
func (a *Assignment) Unassign(sessionID string) {
	delete(a.slots, sessionID)
}

// Slot returns the slot assigned to a session, if any.
func (a *Assignment) Slot(sessionID string) (*TimeSlot, bool) {
	slot, ok := a.slots[sessionID]
	return slot, ok
}

// Len is the number of assigned sessions.
func (a *Assignment) Len() int {
	return len(a.slots)
}

// Items exposes the underlying placement map for read-only iteration.
func (a *Assignment) Items() map[string]*TimeSlot {
	return a.slots
}

// SessionIDs returns the assigned session ids in deterministic order.
func (a *Assignment) SessionIDs() []string {
	ids := make([]string, 0, len(a.slots))
	for id := range a.slots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
