package dto

import (
	"time"

	"github.com/noah-isme/sma-timetable-validator/internal/constraint"
)

// ScheduleInput is one candidate assignment in a validation request.
type ScheduleInput struct {
	ClassID     string `json:"classId" validate:"required"`
	SubjectID   string `json:"subjectId" validate:"required"`
	TeacherID   string `json:"teacherId" validate:"required"`
	ClassroomID string `json:"classroomId"`
	DayOfWeek   int    `json:"dayOfWeek" validate:"required,min=1,max=6"`
	Period      int    `json:"period" validate:"required,min=1,max=6"`
}

// ValidateTimetableRequest captures POST /validation payloads.
type ValidateTimetableRequest struct {
	TimetableID   string              `json:"timetableId"`
	SchoolID      string              `json:"schoolId"`
	SchoolType    string              `json:"schoolType"`
	SaturdayHours int                 `json:"saturdayHours" validate:"min=0,max=6"`
	Schedules     []ScheduleInput     `json:"schedules" validate:"dive"`
	Metadata      constraint.Metadata `json:"metadata"`
}

// Assignments converts the request schedules into engine assignments.
func (r ValidateTimetableRequest) Assignments() []constraint.ScheduleAssignment {
	out := make([]constraint.ScheduleAssignment, len(r.Schedules))
	for i, s := range r.Schedules {
		out[i] = constraint.ScheduleAssignment{
			ClassID:     s.ClassID,
			SubjectID:   s.SubjectID,
			TeacherID:   s.TeacherID,
			ClassroomID: s.ClassroomID,
			DayOfWeek:   s.DayOfWeek,
			Period:      s.Period,
		}
	}
	return out
}

// ValidationReport is the response of a full sweep.
type ValidationReport struct {
	ReportID    string                 `json:"reportId"`
	TimetableID string                 `json:"timetableId,omitempty"`
	IsValid     bool                   `json:"isValid"`
	Violations  []constraint.Violation `json:"violations"`
	Summary     constraint.Summary     `json:"summary"`
	GeneratedAt time.Time              `json:"generatedAt"`
}

// CategoryValidationResponse is the response of a category-scoped check.
type CategoryValidationResponse struct {
	Category    constraint.Category     `json:"category"`
	IsValid     bool                    `json:"isValid"`
	Violations  []constraint.Violation  `json:"violations"`
	Performance *constraint.Performance `json:"performance,omitempty"`
}
