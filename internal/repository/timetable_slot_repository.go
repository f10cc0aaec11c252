package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/smartcampus/timetable-engine/internal/models"
)

// TimetableSlotRepository manages scheduled sessions for saved timetables.
type TimetableSlotRepository struct {
	db *sqlx.DB
}

// NewTimetableSlotRepository builds repository.
func NewTimetableSlotRepository(db *sqlx.DB) *TimetableSlotRepository {
	return &TimetableSlotRepository{db: db}
}

func (r *TimetableSlotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// InsertBatch inserts or updates slots for a timetable. One session id maps
// to exactly one placement per timetable.
func (r *TimetableSlotRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.TimetableSlot) error {
	if len(slots) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `
INSERT INTO timetable_slots (id, timetable_id, session_id, course_id, course_name, session_type, section, teacher_id, day, start_minute, end_minute, created_at)
VALUES (:id, :timetable_id, :session_id, :course_id, :course_name, :session_type, :section, :teacher_id, :day, :start_minute, :end_minute, :created_at)
ON CONFLICT (timetable_id, session_id) DO UPDATE
SET day = EXCLUDED.day,
    start_minute = EXCLUDED.start_minute,
    end_minute = EXCLUDED.end_minute`

	for i := range slots {
		slot := &slots[i]
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		if slot.CreatedAt.IsZero() {
			slot.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, slot); err != nil {
			return fmt.Errorf("insert timetable slot: %w", err)
		}
	}
	return nil
}

// ListByTimetable returns slots ordered by day and start time.
func (r *TimetableSlotRepository) ListByTimetable(ctx context.Context, timetableID string) ([]models.TimetableSlot, error) {
	const query = `SELECT id, timetable_id, session_id, course_id, course_name, session_type, section, teacher_id, day, start_minute, end_minute, created_at
FROM timetable_slots WHERE timetable_id = $1 ORDER BY day ASC, start_minute ASC, section ASC`
	var slots []models.TimetableSlot
	if err := r.db.SelectContext(ctx, &slots, query, timetableID); err != nil {
		return nil, fmt.Errorf("list timetable slots: %w", err)
	}
	return slots, nil
}
