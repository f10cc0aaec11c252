package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// TimetableStatus represents lifecycle phases for generated timetables.
type TimetableStatus string

const (
	TimetableStatusDraft     TimetableStatus = "DRAFT"
	TimetableStatusPublished TimetableStatus = "PUBLISHED"
	TimetableStatusArchived  TimetableStatus = "ARCHIVED"
)

// Timetable captures a versioned generated timetable for a
// department/semester/academic-year tuple.
type Timetable struct {
	ID           string          `db:"id" json:"id"`
	Department   string          `db:"department" json:"department"`
	Semester     int             `db:"semester" json:"semester"`
	AcademicYear string          `db:"academic_year" json:"academic_year"`
	Version      int             `db:"version" json:"version"`
	Status       TimetableStatus `db:"status" json:"status"`
	GoalKey      string          `db:"goal_key" json:"goal_key"`
	Score        float64         `db:"score" json:"score"`
	Meta         types.JSONText  `db:"meta" json:"meta"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// TimetableSlot is one scheduled session inside a saved timetable.
type TimetableSlot struct {
	ID          string    `db:"id" json:"id"`
	TimetableID string    `db:"timetable_id" json:"timetable_id"`
	SessionID   string    `db:"session_id" json:"session_id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	CourseName  string    `db:"course_name" json:"course_name"`
	SessionType string    `db:"session_type" json:"session_type"`
	Section     string    `db:"section" json:"section"`
	TeacherID   string    `db:"teacher_id" json:"teacher_id"`
	Day         string    `db:"day" json:"day"`
	StartMinute int       `db:"start_minute" json:"start_minute"`
	EndMinute   int       `db:"end_minute" json:"end_minute"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
