package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-validator/internal/models"
)

func TestTimetableRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "school_id", "school_type", "name", "saturday_hours", "status", "created_at", "updated_at"}).
		AddRow("tt-1", "school-1", "SMA", "Semester 1", 4, "DRAFT", now, now)
	mock.ExpectQuery("SELECT id, school_id").WithArgs("tt-1").WillReturnRows(rows)

	timetable, err := NewTimetableRepository(db).GetByID(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.Equal(t, "SMA", timetable.SchoolType)
	assert.Equal(t, 4, timetable.SaturdayHours)
	assert.Equal(t, models.TimetableStatusDraft, timetable.Status)
}

func TestTimetableRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, school_id").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := NewTimetableRepository(db).GetByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestTimetableRepositoryListEntries(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "timetable_id", "class_id", "subject_id", "teacher_id", "classroom_id", "day_of_week", "period"}).
		AddRow("e-1", "tt-1", "c-1", "s-1", "t-1", "r-1", 1, 1).
		AddRow("e-2", "tt-1", "c-2", "s-2", "t-2", nil, 1, 2)
	mock.ExpectQuery("SELECT id, timetable_id").WithArgs("tt-1").WillReturnRows(rows)

	entries, err := NewTimetableRepository(db).ListEntries(context.Background(), "tt-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, strPtr("r-1"), entries[0].ClassroomID)
	assert.Nil(t, entries[1].ClassroomID)
}

func TestTimetableRepositoryLoadReferences(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery("FROM classes c").WithArgs("tt-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "student_count"}).AddRow("c-1", "X IPA 1", 32))
	mock.ExpectQuery("FROM teachers t").WithArgs("tt-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name"}).AddRow("t-1", "Budi"))
	mock.ExpectQuery("FROM subjects s").WithArgs("tt-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name"}).AddRow("s-1", "MTK", "Matematika"))
	mock.ExpectQuery("FROM classrooms r").WithArgs("tt-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "capacity"}).AddRow("r-1", "Lab", 30))

	refs, err := NewTimetableRepository(db).LoadReferences(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 32, refs.Classes[0].StudentCount)
	assert.Equal(t, "Budi", refs.Teachers[0].FullName)
	assert.Equal(t, "MTK", refs.Subjects[0].Code)
	assert.Equal(t, 30, refs.Classrooms[0].Capacity)
}

func TestTimetableRepositoryLoadReferencesError(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery("FROM classes c").WithArgs("tt-1").WillReturnError(errors.New("boom"))

	_, err := NewTimetableRepository(db).LoadReferences(context.Background(), "tt-1")
	assert.ErrorContains(t, err, "load timetable classes")
}
