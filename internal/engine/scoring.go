package engine

import (
	"fmt"
	"math"
)

// QualityScores grades one complete assignment on a 0-100 scale per axis.
type QualityScores struct {
	Feasibility         float64 `json:"feasibility"`
	Optimization        float64 `json:"optimization"`
	TeacherSatisfaction float64 `json:"teacher_satisfaction"`
	StudentConvenience  float64 `json:"student_convenience"`
	ResourceUtilization float64 `json:"resource_utilization"`
	Overall             float64 `json:"overall"`
}

// SolutionIssues lists detected problems for display alongside a solution.
type SolutionIssues struct {
	HardViolations []string `json:"hard_violations"`
	SoftViolations []string `json:"soft_violations"`
	Warnings       []string `json:"warnings"`
}

// SolutionStats carries derived schedule statistics.
type SolutionStats struct {
	TotalSessions   int                `json:"total_sessions"`
	SessionsPerDay  map[string]int     `json:"sessions_per_day"`
	TeacherHours    map[string]float64 `json:"teacher_hours"`
	SlotUtilization float64            `json:"slot_utilization"`
}

// ScheduleEntry is one session-to-slot placement in the flat output schedule.
type ScheduleEntry struct {
	SessionID  string `json:"session_id"`
	TimeSlotID string `json:"time_slot_id"`
}

// Scorer computes quality metrics for completed assignments. Scoring is
// separate from search: the solver only finds assignments, the scorer and
// orchestrator rank them.
type Scorer struct {
	model *Model
	hard  []Constraint
	soft  []Constraint
}

// NewScorer builds a scorer over the run's constraint sets.
func NewScorer(model *Model, hard, soft []Constraint) *Scorer {
	return &Scorer{model: model, hard: hard, soft: soft}
}

const (
	weightFeasibility  = 0.4
	weightOptimization = 0.3
	weightTeacher      = 0.15
	weightStudent      = 0.15
)

// Score grades the assignment and collects its issues.
func (s *Scorer) Score(a *Assignment) (QualityScores, SolutionIssues) {
	issues := SolutionIssues{
		HardViolations: []string{},
		SoftViolations: []string{},
		Warnings:       []string{},
	}

	hardCount := 0
	for _, c := range s.hard {
		violations := c.Violations(a)
		hardCount += len(violations)
		issues.HardViolations = append(issues.HardViolations, violations...)
	}
	feasibility := math.Max(0, 100-10*float64(hardCount))

	var softCost float64
	for _, c := range s.soft {
		cost := c.Cost(a)
		softCost += cost
		if cost > 0 {
			issues.SoftViolations = append(issues.SoftViolations, c.Violations(a)...)
		}
	}
	optimization := normalizedScore(softCost, s.softBudget(s.soft))

	teacher := normalizedScore(s.costOf(a, NameTeacherWorkload, NameBackToBackLabs),
		s.budgetOf(NameTeacherWorkload, NameBackToBackLabs))
	student := normalizedScore(s.costOf(a, NameStudentGaps, NameDailyTransitions, NameMorningTheory),
		s.budgetOf(NameStudentGaps, NameDailyTransitions, NameMorningTheory))
	utilization := s.utilization(a)

	overall := weightFeasibility*feasibility +
		weightOptimization*optimization +
		weightTeacher*teacher +
		weightStudent*student

	if feasibility < 100 {
		issues.Warnings = append(issues.Warnings,
			fmt.Sprintf("%d hard constraint violations detected", hardCount))
	}
	if utilization > 90 {
		issues.Warnings = append(issues.Warnings,
			fmt.Sprintf("slot utilization at %.0f%%, little room for adjustments", utilization))
	}

	return QualityScores{
		Feasibility:         round2(feasibility),
		Optimization:        round2(optimization),
		TeacherSatisfaction: round2(teacher),
		StudentConvenience:  round2(student),
		ResourceUtilization: round2(utilization),
		Overall:             round2(overall),
	}, issues
}

// Stats derives display statistics from the assignment.
func (s *Scorer) Stats(a *Assignment) SolutionStats {
	stats := SolutionStats{
		TotalSessions:  a.Len(),
		SessionsPerDay: make(map[string]int),
		TeacherHours:   make(map[string]float64),
	}
	for id, slot := range a.Items() {
		session := s.model.Session(id)
		if session == nil || slot == nil {
			continue
		}
		stats.SessionsPerDay[slot.Day]++
		if session.TeacherID != "" {
			stats.TeacherHours[session.TeacherID] += float64(slot.Duration) / 60.0
		}
	}
	stats.SlotUtilization = round2(s.utilization(a))
	return stats
}

// Schedule flattens the assignment into deterministic output entries.
func (s *Scorer) Schedule(a *Assignment) []ScheduleEntry {
	entries := make([]ScheduleEntry, 0, a.Len())
	for _, id := range a.SessionIDs() {
		slot, _ := a.Slot(id)
		entries = append(entries, ScheduleEntry{SessionID: id, TimeSlotID: slot.ID})
	}
	return entries
}

func (s *Scorer) utilization(a *Assignment) float64 {
	if len(s.model.Slots) == 0 {
		return 0
	}
	used := make(map[string]bool)
	for _, slot := range a.Items() {
		if slot != nil {
			used[slot.ID] = true
		}
	}
	return 100 * float64(len(used)) / float64(len(s.model.Slots))
}

func (s *Scorer) costOf(a *Assignment, names ...string) float64 {
	var total float64
	for _, c := range s.soft {
		for _, name := range names {
			if c.Name() == name {
				total += c.Cost(a)
			}
		}
	}
	return total
}

func (s *Scorer) budgetOf(names ...string) float64 {
	var subset []Constraint
	for _, c := range s.soft {
		for _, name := range names {
			if c.Name() == name {
				subset = append(subset, c)
			}
		}
	}
	return s.softBudget(subset)
}

// softBudget estimates the penalty ceiling used to normalize costs onto the
// 0-100 scale: each constraint is allowed its weight once per session.
func (s *Scorer) softBudget(constraints []Constraint) float64 {
	sessions := float64(len(s.model.Sessions))
	if sessions == 0 {
		sessions = 1
	}
	var budget float64
	for _, c := range constraints {
		budget += c.Weight() * sessions
	}
	return budget
}

func normalizedScore(cost, budget float64) float64 {
	if budget <= 0 {
		return 100
	}
	score := 100 * (budget - cost) / budget
	if score < 0 {
		return 0
	}
	return score
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
