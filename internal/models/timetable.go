package models

import "time"

// TimetableStatus tracks the lifecycle of a persisted timetable.
type TimetableStatus string

const (
	TimetableStatusDraft     TimetableStatus = "DRAFT"
	TimetableStatusPublished TimetableStatus = "PUBLISHED"
	TimetableStatusArchived  TimetableStatus = "ARCHIVED"
)

// Timetable is a weekly schedule owned by a school.
type Timetable struct {
	ID            string          `db:"id" json:"id"`
	SchoolID      string          `db:"school_id" json:"school_id"`
	SchoolType    string          `db:"school_type" json:"school_type"`
	Name          string          `db:"name" json:"name"`
	SaturdayHours int             `db:"saturday_hours" json:"saturday_hours"`
	Status        TimetableStatus `db:"status" json:"status"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// TimetableEntry is one class/subject/teacher assignment at a weekly slot.
type TimetableEntry struct {
	ID          string  `db:"id" json:"id"`
	TimetableID string  `db:"timetable_id" json:"timetable_id"`
	ClassID     string  `db:"class_id" json:"class_id"`
	SubjectID   string  `db:"subject_id" json:"subject_id"`
	TeacherID   string  `db:"teacher_id" json:"teacher_id"`
	ClassroomID *string `db:"classroom_id" json:"classroom_id,omitempty"`
	DayOfWeek   int     `db:"day_of_week" json:"day_of_week"`
	Period      int     `db:"period" json:"period"`
}

// TimetableReferences holds the entities referenced by a timetable's entries.
type TimetableReferences struct {
	Classes    []Class
	Teachers   []Teacher
	Subjects   []Subject
	Classrooms []Classroom
}
