package dto

import "github.com/smartcampus/timetable-engine/internal/engine"

// SessionSpecRequest captures one session type's weekly load for a course.
type SessionSpecRequest struct {
	TeacherID   string `json:"teacherId" validate:"omitempty"`
	WeeklyCount int    `json:"weeklyCount" validate:"omitempty,min=0,max=16"`
	Duration    int    `json:"duration" validate:"omitempty,min=30,max=240"`
}

// CourseRequest describes one course with its per-type teaching loads.
type CourseRequest struct {
	CourseID   string             `json:"courseId" validate:"required"`
	CourseName string             `json:"courseName"`
	Theory     SessionSpecRequest `json:"theory"`
	Lab        SessionSpecRequest `json:"lab"`
	Tutorial   SessionSpecRequest `json:"tutorial"`
}

// TimeRangeRequest is a clock interval expressed as HH:MM strings.
type TimeRangeRequest struct {
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

// TimeConfigRequest describes the schedulable week.
type TimeConfigRequest struct {
	StartTime     string            `json:"startTime" validate:"required"`
	EndTime       string            `json:"endTime" validate:"required"`
	ClassDuration int               `json:"classDuration" validate:"required,min=30,max=240"`
	LunchBreak    *TimeRangeRequest `json:"lunchBreak,omitempty"`
	WorkingDays   []string          `json:"workingDays" validate:"required,min=1,max=7"`
	MorningEnd    string            `json:"morningEnd,omitempty"`
}

// ConstraintPreferences toggles hard constraints and tunes soft weights.
type ConstraintPreferences struct {
	Hard *engine.HardPreferences `json:"hard,omitempty"`
	Soft *engine.SoftPreferences `json:"soft,omitempty"`
}

// GenerateTimetableRequest instructs the engine to build a solution portfolio.
type GenerateTimetableRequest struct {
	Department   string                 `json:"department" validate:"required"`
	Semester     int                    `json:"semester" validate:"required,min=1,max=12"`
	AcademicYear string                 `json:"academicYear" validate:"required"`
	Sections     []string               `json:"sections" validate:"required,min=1,dive,required"`
	Courses      []CourseRequest        `json:"courses" validate:"required,min=1,dive"`
	Time         TimeConfigRequest      `json:"time" validate:"required"`
	Constraints  *ConstraintPreferences `json:"constraints,omitempty"`
	Async        bool                   `json:"async"`
	RequestedBy  string                 `json:"requestedBy"`
}

// GenerateTimetableResponse returns the built solution portfolio under a
// proposal id that a later save call redeems.
type GenerateTimetableResponse struct {
	ProposalID string                     `json:"proposalId"`
	Result     *engine.MultiSolutionResult `json:"result"`
}

// AsyncGenerateResponse acknowledges a queued generation run.
type AsyncGenerateResponse struct {
	JobID string `json:"jobId"`
}

// SaveTimetableRequest persists one solution out of a generated proposal.
type SaveTimetableRequest struct {
	ProposalID string `json:"proposalId" validate:"required"`
	SolutionID string `json:"solutionId" validate:"required"`
	Publish    bool   `json:"publish"`
}

// TimetableQuery filters stored timetables.
type TimetableQuery struct {
	Department   string `form:"department" json:"department"`
	Semester     int    `form:"semester" json:"semester"`
	AcademicYear string `form:"academicYear" json:"academicYear"`
}
