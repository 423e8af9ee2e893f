package constraint

import (
	"strings"

	"github.com/jmoiron/sqlx"
)

// Severity ranks how serious a violation is.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Severities lists every severity, most serious first.
var Severities = []Severity{SeverityError, SeverityWarning, SeverityInfo}

// Category groups constraints for scoped validation.
type Category string

const (
	CategoryTeacher   Category = "teacher"
	CategoryClassroom Category = "classroom"
	CategoryTime      Category = "time"
	CategorySubject   Category = "subject"
	CategoryCustom    Category = "custom"
)

// ParseCategory resolves a category name, returning false when unknown.
func ParseCategory(raw string) (Category, bool) {
	switch c := Category(strings.ToLower(strings.TrimSpace(raw))); c {
	case CategoryTeacher, CategoryClassroom, CategoryTime, CategorySubject, CategoryCustom:
		return c, true
	default:
		return "", false
	}
}

// ScheduleAssignment is one candidate timetable entry under evaluation.
type ScheduleAssignment struct {
	ClassID     string `json:"classId"`
	SubjectID   string `json:"subjectId"`
	TeacherID   string `json:"teacherId"`
	ClassroomID string `json:"classroomId"`
	DayOfWeek   int    `json:"dayOfWeek"`
	Period      int    `json:"period"`
}

// AffectedSchedule identifies an assignment implicated by a violation.
type AffectedSchedule struct {
	ClassID     string `json:"classId"`
	DayOfWeek   int    `json:"dayOfWeek"`
	Period      int    `json:"period"`
	TeacherID   string `json:"teacherId,omitempty"`
	ClassroomID string `json:"classroomId,omitempty"`
	SubjectID   string `json:"subjectId,omitempty"`
}

// AffectedFrom copies the identifying fields of an assignment.
func AffectedFrom(a ScheduleAssignment) AffectedSchedule {
	return AffectedSchedule{
		ClassID:     a.ClassID,
		DayOfWeek:   a.DayOfWeek,
		Period:      a.Period,
		TeacherID:   a.TeacherID,
		ClassroomID: a.ClassroomID,
		SubjectID:   a.SubjectID,
	}
}

func affectedFromAll(items []ScheduleAssignment) []AffectedSchedule {
	out := make([]AffectedSchedule, 0, len(items))
	for _, item := range items {
		out = append(out, AffectedFrom(item))
	}
	return out
}

// ClassInfo describes a class referenced by the candidate schedules.
type ClassInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	StudentCount int    `json:"studentCount,omitempty"`
}

// TeacherInfo describes a teacher referenced by the candidate schedules.
type TeacherInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SubjectInfo describes a subject referenced by the candidate schedules.
type SubjectInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ClassroomInfo describes a classroom referenced by the candidate schedules.
type ClassroomInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity,omitempty"`
}

// Metadata holds entities resolved by the host for human-readable messages.
type Metadata struct {
	Classes    []ClassInfo     `json:"classes"`
	Teachers   []TeacherInfo   `json:"teachers"`
	Subjects   []SubjectInfo   `json:"subjects"`
	Classrooms []ClassroomInfo `json:"classrooms"`
}

// Class returns the class with the given id.
func (m Metadata) Class(id string) (ClassInfo, bool) {
	for _, c := range m.Classes {
		if c.ID == id {
			return c, true
		}
	}
	return ClassInfo{}, false
}

// Classroom returns the classroom with the given id.
func (m Metadata) Classroom(id string) (ClassroomInfo, bool) {
	for _, c := range m.Classrooms {
		if c.ID == id {
			return c, true
		}
	}
	return ClassroomInfo{}, false
}

// ClassName falls back to the id when the class is unknown.
func (m Metadata) ClassName(id string) string {
	if c, ok := m.Class(id); ok && c.Name != "" {
		return c.Name
	}
	return id
}

// TeacherName falls back to the id when the teacher is unknown.
func (m Metadata) TeacherName(id string) string {
	for _, t := range m.Teachers {
		if t.ID == id && t.Name != "" {
			return t.Name
		}
	}
	return id
}

// SubjectName falls back to the id when the subject is unknown.
func (m Metadata) SubjectName(id string) string {
	for _, s := range m.Subjects {
		if s.ID == id && s.Name != "" {
			return s.Name
		}
	}
	return id
}

// ClassroomName falls back to the id when the classroom is unknown.
func (m Metadata) ClassroomName(id string) string {
	if c, ok := m.Classroom(id); ok && c.Name != "" {
		return c.Name
	}
	return id
}

// ValidationContext is the input of a single validation run.
type ValidationContext struct {
	// DB is read-only during validation. None of the shipped validators use it.
	DB            sqlx.QueryerContext
	TimetableID   string
	SchoolID      string
	SchoolType    string
	SaturdayHours int
	Schedules     []ScheduleAssignment
	Metadata      Metadata
}

// LastPeriod is the final period of a school day for the configured week shape.
func (v *ValidationContext) LastPeriod() int {
	if v.SaturdayHours > 0 {
		return 6
	}
	return 5
}

// Violation is one finding produced by exactly one validator.
type Violation struct {
	Code              string             `json:"code"`
	Message           string             `json:"message"`
	Severity          Severity           `json:"severity"`
	AffectedSchedules []AffectedSchedule `json:"affectedSchedules"`
	Metadata          map[string]any     `json:"metadata,omitempty"`
}

// Performance reports how long a validator took.
type Performance struct {
	ExecutionTimeMs float64 `json:"executionTimeMs"`
	ConstraintType  string  `json:"constraintType"`
}

// ValidationResult is the output of a single validator or a category sweep.
type ValidationResult struct {
	IsValid     bool         `json:"isValid"`
	Violations  []Violation  `json:"violations"`
	Performance *Performance `json:"performance,omitempty"`
}

// NewResult derives validity from the violations.
func NewResult(violations []Violation, perf *Performance) ValidationResult {
	if violations == nil {
		violations = []Violation{}
	}
	return ValidationResult{IsValid: !HasErrors(violations), Violations: violations, Performance: perf}
}

// HasErrors reports whether any violation is blocking.
func HasErrors(violations []Violation) bool {
	for _, v := range violations {
		if v.Severity == SeverityError {
			return true
		}
	}
	return false
}

// CountBySeverity builds a histogram that always carries every severity.
func CountBySeverity(violations []Violation) map[Severity]int {
	counts := make(map[Severity]int, len(Severities))
	for _, s := range Severities {
		counts[s] = 0
	}
	for _, v := range violations {
		counts[v.Severity]++
	}
	return counts
}
