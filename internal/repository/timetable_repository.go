package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-validator/internal/models"
)

// TimetableRepository reads persisted timetables and the entities they reference.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs the repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

// DB exposes the read handle handed to validators.
func (r *TimetableRepository) DB() sqlx.QueryerContext {
	return r.db
}

// GetByID fetches a timetable header. A missing row yields sql.ErrNoRows.
func (r *TimetableRepository) GetByID(ctx context.Context, id string) (*models.Timetable, error) {
	const query = `SELECT id, school_id, school_type, name, saturday_hours, status, created_at, updated_at
FROM timetables WHERE id = $1`
	var timetable models.Timetable
	if err := r.db.GetContext(ctx, &timetable, query, id); err != nil {
		return nil, fmt.Errorf("get timetable %s: %w", id, err)
	}
	return &timetable, nil
}

// ListEntries returns the timetable assignments ordered by slot.
func (r *TimetableRepository) ListEntries(ctx context.Context, timetableID string) ([]models.TimetableEntry, error) {
	const query = `SELECT id, timetable_id, class_id, subject_id, teacher_id, classroom_id, day_of_week, period
FROM timetable_entries WHERE timetable_id = $1
ORDER BY day_of_week ASC, period ASC, class_id ASC`
	var entries []models.TimetableEntry
	if err := r.db.SelectContext(ctx, &entries, query, timetableID); err != nil {
		return nil, fmt.Errorf("list timetable entries: %w", err)
	}
	return entries, nil
}

// LoadReferences resolves the classes, teachers, subjects and classrooms used
// by the timetable's entries.
func (r *TimetableRepository) LoadReferences(ctx context.Context, timetableID string) (*models.TimetableReferences, error) {
	refs := &models.TimetableReferences{}

	const classes = `SELECT DISTINCT c.id, c.name, c.student_count
FROM classes c JOIN timetable_entries e ON e.class_id = c.id
WHERE e.timetable_id = $1 ORDER BY c.id`
	if err := r.db.SelectContext(ctx, &refs.Classes, classes, timetableID); err != nil {
		return nil, fmt.Errorf("load timetable classes: %w", err)
	}

	const teachers = `SELECT DISTINCT t.id, t.full_name
FROM teachers t JOIN timetable_entries e ON e.teacher_id = t.id
WHERE e.timetable_id = $1 ORDER BY t.id`
	if err := r.db.SelectContext(ctx, &refs.Teachers, teachers, timetableID); err != nil {
		return nil, fmt.Errorf("load timetable teachers: %w", err)
	}

	const subjects = `SELECT DISTINCT s.id, s.code, s.name
FROM subjects s JOIN timetable_entries e ON e.subject_id = s.id
WHERE e.timetable_id = $1 ORDER BY s.id`
	if err := r.db.SelectContext(ctx, &refs.Subjects, subjects, timetableID); err != nil {
		return nil, fmt.Errorf("load timetable subjects: %w", err)
	}

	const classrooms = `SELECT DISTINCT r.id, r.name, r.capacity
FROM classrooms r JOIN timetable_entries e ON e.classroom_id = r.id
WHERE e.timetable_id = $1 ORDER BY r.id`
	if err := r.db.SelectContext(ctx, &refs.Classrooms, classrooms, timetableID); err != nil {
		return nil, fmt.Errorf("load timetable classrooms: %w", err)
	}

	return refs, nil
}
