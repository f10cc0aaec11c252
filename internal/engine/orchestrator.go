package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// HardPreferences toggles individual hard constraints for a request.
type HardPreferences struct {
	TeacherClash bool `json:"teacher_clash"`
	SectionClash bool `json:"section_clash"`
	WorkingHours bool `json:"working_hours"`
	LunchBreak   bool `json:"lunch_break"`
	RoomClash    bool `json:"room_clash"`
}

// SoftPreference enables one soft constraint with a base weight.
type SoftPreference struct {
	Enabled bool    `json:"enabled"`
	Weight  float64 `json:"weight"`
}

// SoftPreferences carries the tunable soft-constraint set.
type SoftPreferences struct {
	StudentGaps      SoftPreference `json:"student_gaps"`
	TeacherWorkload  SoftPreference `json:"teacher_workload"`
	MorningTheory    SoftPreference `json:"morning_theory"`
	BackToBackLabs   SoftPreference `json:"back_to_back_labs"`
	DailyTransitions SoftPreference `json:"daily_transitions"`
}

// DefaultHardPreferences enables every hard constraint.
func DefaultHardPreferences() HardPreferences {
	return HardPreferences{
		TeacherClash: true,
		SectionClash: true,
		WorkingHours: true,
		LunchBreak:   true,
		RoomClash:    true,
	}
}

// DefaultSoftPreferences enables every soft constraint at moderate weights.
func DefaultSoftPreferences() SoftPreferences {
	return SoftPreferences{
		StudentGaps:      SoftPreference{Enabled: true, Weight: 5},
		TeacherWorkload:  SoftPreference{Enabled: true, Weight: 4},
		MorningTheory:    SoftPreference{Enabled: true, Weight: 3},
		BackToBackLabs:   SoftPreference{Enabled: true, Weight: 3},
		DailyTransitions: SoftPreference{Enabled: true, Weight: 2},
	}
}

// Request is the validated engine input. Metadata fields are carried through
// untouched for bookkeeping.
type Request struct {
	Courses  []CourseAssignment `json:"courses"`
	Sections []string           `json:"sections"`
	Time     TimeConfig         `json:"time"`
	Hard     HardPreferences    `json:"hard"`
	Soft     SoftPreferences    `json:"soft"`

	Department   string `json:"department"`
	Semester     int    `json:"semester"`
	AcademicYear string `json:"academic_year"`
	RequestedBy  string `json:"requested_by"`
}

// Goal is a named soft-constraint weight profile biasing one attempt toward
// a particular stakeholder.
type Goal struct {
	Key         string             `json:"key"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Emphasis    map[string]float64 `json:"emphasis"`
}

// DefaultGoals returns the standard portfolio of optimization goals.
func DefaultGoals() []Goal {
	return []Goal{
		{
			Key:         "teacher_workload",
			Name:        "Teacher-Optimized",
			Description: "Balances weekly hours across teachers and spaces out lab blocks",
			Emphasis: map[string]float64{
				NameTeacherWorkload: 2.0,
				NameBackToBackLabs:  1.5,
			},
		},
		{
			Key:         "student_convenience",
			Name:        "Student-Optimized",
			Description: "Minimizes idle gaps and context switches for sections",
			Emphasis: map[string]float64{
				NameStudentGaps:      2.0,
				NameDailyTransitions: 1.5,
			},
		},
		{
			Key:         "balanced",
			Name:        "Balanced",
			Description: "Standard weights across all preferences",
			Emphasis:    map[string]float64{},
		},
		{
			Key:         "morning_focused",
			Name:        "Morning-Focused",
			Description: "Pushes theory sessions into the morning block",
			Emphasis: map[string]float64{
				NameMorningTheory: 2.5,
			},
		},
		{
			Key:         "compact",
			Name:        "Compact Schedule",
			Description: "Packs each section's day tightly together",
			Emphasis: map[string]float64{
				NameStudentGaps:      1.8,
				NameDailyTransitions: 2.0,
			},
		},
	}
}

// TimetableSolution is one complete, scored timetable.
type TimetableSolution struct {
	ID          string          `json:"id"`
	GoalKey     string          `json:"goal_key"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schedule    []ScheduleEntry `json:"schedule"`
	Scores      QualityScores   `json:"scores"`
	Stats       SolutionStats   `json:"stats"`
	Issues      SolutionIssues  `json:"issues"`
}

// AttemptReport summarizes one solver attempt for diagnostics and metrics.
type AttemptReport struct {
	Goal        string `json:"goal"`
	Success     bool   `json:"success"`
	Assignments int    `json:"assignments"`
	Backtracks  int    `json:"backtracks"`
	TimedOut    bool   `json:"timed_out"`
	ElapsedMS   int64  `json:"elapsed_ms"`
}

// GenerationSummary describes the run as a whole.
type GenerationSummary struct {
	Attempted    int             `json:"attempted"`
	Successful   int             `json:"successful"`
	SlotCount    int             `json:"slot_count"`
	SessionCount int             `json:"session_count"`
	ElapsedMS    int64           `json:"elapsed_ms"`
	Attempts     []AttemptReport `json:"attempts"`
}

// Recommendation names the best solution per audience.
type Recommendation struct {
	BestOverall     string `json:"best_overall"`
	BestForTeachers string `json:"best_for_teachers"`
	BestForStudents string `json:"best_for_students"`
	Rationale       string `json:"rationale"`
}

// MultiSolutionResult is the full engine output: a ranked portfolio plus
// summary and recommendation. It is always well-formed, even when every
// attempt failed.
type MultiSolutionResult struct {
	Success        bool                `json:"success"`
	Solutions      []TimetableSolution `json:"solutions"`
	Summary        GenerationSummary   `json:"summary"`
	Recommendation *Recommendation     `json:"recommendation,omitempty"`
	Reasoning      string              `json:"reasoning"`

	Department   string `json:"department,omitempty"`
	Semester     int    `json:"semester,omitempty"`
	AcademicYear string `json:"academic_year,omitempty"`
	RequestedBy  string `json:"requested_by,omitempty"`
}

// Orchestrator runs the solver once per optimization goal and assembles the
// ranked portfolio. Attempts are independent: each gets fresh full domains
// and its own constraint set, so nothing leaks between goals.
type Orchestrator struct {
	opts   SolverOptions
	goals  []Goal
	keep   int
	logger *zap.Logger
}

// NewOrchestrator builds an orchestrator with the default goal portfolio.
func NewOrchestrator(opts SolverOptions, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		opts:   opts,
		goals:  DefaultGoals(),
		keep:   3,
		logger: logger,
	}
}

// SetGoals overrides the goal portfolio.
func (o *Orchestrator) SetGoals(goals []Goal) {
	if len(goals) > 0 {
		o.goals = goals
	}
}

// SetKeep overrides how many top solutions are returned.
func (o *Orchestrator) SetKeep(n int) {
	if n > 0 {
		o.keep = n
	}
}

// Generate runs the full pipeline. Configuration errors (bad time config,
// overconstrained problem, nothing to schedule) return a non-nil error before
// any search; search failures never do — they only shape the result.
func (o *Orchestrator) Generate(req Request) (*MultiSolutionResult, error) {
	start := time.Now()

	slots, err := GenerateTimeSlots(req.Time)
	if err != nil {
		return nil, err
	}
	sessions := BuildSessions(req.Courses, req.Sections)
	if err := Preflight(sessions, slots); err != nil {
		return nil, err
	}
	model, err := NewModel(req.Time, slots, sessions)
	if err != nil {
		return nil, err
	}

	o.logger.Info("generation started",
		zap.Int("slots", len(slots)),
		zap.Int("sessions", len(sessions)),
		zap.Int("goals", len(o.goals)),
	)

	result := &MultiSolutionResult{
		Solutions: []TimetableSolution{},
		Summary: GenerationSummary{
			SlotCount:    len(slots),
			SessionCount: len(sessions),
			Attempts:     []AttemptReport{},
		},
		Department:   req.Department,
		Semester:     req.Semester,
		AcademicYear: req.AcademicYear,
		RequestedBy:  req.RequestedBy,
	}

	for _, goal := range o.goals {
		result.Summary.Attempted++

		hard := buildHardConstraints(model, req.Hard)
		soft := buildSoftConstraints(model, req.Soft, goal.Emphasis)
		vars := NewVariables(sessions, slots)
		solver := NewSolver(model, hard, o.opts, o.logger)

		assignment, trace, ok := solver.Solve(vars)
		report := AttemptReport{
			Goal:        goal.Key,
			Success:     ok,
			Assignments: trace.Assignments,
			Backtracks:  trace.Backtracks,
			TimedOut:    trace.TimedOut,
			ElapsedMS:   trace.Elapsed.Milliseconds(),
		}
		result.Summary.Attempts = append(result.Summary.Attempts, report)

		if !ok {
			// A failed goal is skipped, not fatal: remaining goals may
			// still produce solutions.
			o.logger.Warn("goal produced no solution",
				zap.String("goal", goal.Key),
				zap.Bool("timed_out", trace.TimedOut),
				zap.Int("backtracks", trace.Backtracks),
			)
			continue
		}
		result.Summary.Successful++

		scorer := NewScorer(model, hard, soft)
		scores, issues := scorer.Score(assignment)
		result.Solutions = append(result.Solutions, TimetableSolution{
			ID:          uuid.NewString(),
			GoalKey:     goal.Key,
			Name:        goal.Name,
			Description: goal.Description,
			Schedule:    scorer.Schedule(assignment),
			Scores:      scores,
			Stats:       scorer.Stats(assignment),
			Issues:      issues,
		})
	}

	sort.SliceStable(result.Solutions, func(i, j int) bool {
		return result.Solutions[i].Scores.Overall > result.Solutions[j].Scores.Overall
	})
	if len(result.Solutions) > o.keep {
		result.Solutions = result.Solutions[:o.keep]
	}

	result.Summary.ElapsedMS = time.Since(start).Milliseconds()
	result.Success = len(result.Solutions) > 0

	if result.Success {
		result.Recommendation = recommend(result.Solutions)
		result.Reasoning = fmt.Sprintf("%d of %d optimization goals produced a feasible timetable; top %d kept by overall score",
			result.Summary.Successful, result.Summary.Attempted, len(result.Solutions))
	} else {
		result.Reasoning = failureReasoning(result.Summary.Attempts)
	}

	o.logger.Info("generation finished",
		zap.Bool("success", result.Success),
		zap.Int("solutions", len(result.Solutions)),
		zap.Int64("elapsed_ms", result.Summary.ElapsedMS),
	)
	return result, nil
}

func buildHardConstraints(model *Model, prefs HardPreferences) []Constraint {
	var out []Constraint
	if prefs.TeacherClash {
		out = append(out, NewTeacherClashConstraint(model, 10))
	}
	if prefs.SectionClash {
		out = append(out, NewSectionClashConstraint(model, 10))
	}
	if prefs.WorkingHours {
		out = append(out, NewWorkingHoursConstraint(model, 8))
	}
	if prefs.LunchBreak {
		out = append(out, NewLunchBreakConstraint(model, 8))
	}
	if prefs.RoomClash {
		out = append(out, NewRoomClashConstraint(model, 6))
	}
	return out
}

func buildSoftConstraints(model *Model, prefs SoftPreferences, emphasis map[string]float64) []Constraint {
	factor := func(name string) float64 {
		if f, ok := emphasis[name]; ok {
			return f
		}
		return 1
	}
	var out []Constraint
	if prefs.StudentGaps.Enabled {
		out = append(out, NewStudentGapsConstraint(model, prefs.StudentGaps.Weight*factor(NameStudentGaps)))
	}
	if prefs.TeacherWorkload.Enabled {
		out = append(out, NewTeacherWorkloadConstraint(model, prefs.TeacherWorkload.Weight*factor(NameTeacherWorkload)))
	}
	if prefs.MorningTheory.Enabled {
		out = append(out, NewMorningTheoryConstraint(model, prefs.MorningTheory.Weight*factor(NameMorningTheory)))
	}
	if prefs.BackToBackLabs.Enabled {
		out = append(out, NewBackToBackLabsConstraint(model, prefs.BackToBackLabs.Weight*factor(NameBackToBackLabs)))
	}
	if prefs.DailyTransitions.Enabled {
		out = append(out, NewDailyTransitionsConstraint(model, prefs.DailyTransitions.Weight*factor(NameDailyTransitions)))
	}
	return out
}

func recommend(solutions []TimetableSolution) *Recommendation {
	best := lo.MaxBy(solutions, func(a, b TimetableSolution) bool {
		return a.Scores.Overall > b.Scores.Overall
	})
	forTeachers := lo.MaxBy(solutions, func(a, b TimetableSolution) bool {
		return a.Scores.TeacherSatisfaction > b.Scores.TeacherSatisfaction
	})
	forStudents := lo.MaxBy(solutions, func(a, b TimetableSolution) bool {
		return a.Scores.StudentConvenience > b.Scores.StudentConvenience
	})

	return &Recommendation{
		BestOverall:     best.ID,
		BestForTeachers: forTeachers.ID,
		BestForStudents: forStudents.ID,
		Rationale: fmt.Sprintf("%s scores highest overall (%.1f); %s favors teachers (%.1f), %s favors students (%.1f)",
			best.Name, best.Scores.Overall,
			forTeachers.Name, forTeachers.Scores.TeacherSatisfaction,
			forStudents.Name, forStudents.Scores.StudentConvenience),
	}
}

func failureReasoning(attempts []AttemptReport) string {
	timedOut := 0
	for _, a := range attempts {
		if a.TimedOut {
			timedOut++
		}
	}
	if timedOut == len(attempts) && len(attempts) > 0 {
		return "no optimization goal produced a timetable: every attempt exhausted its time budget; relax constraints or extend the solver time limit"
	}
	return "no optimization goal produced a timetable: the search space appears unsatisfiable under the enabled hard constraints; relax constraints, add working hours, or reduce weekly classes"
}
