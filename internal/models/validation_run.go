package models

import "time"

// ReportFormat enumerates supported export formats.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ValidationRunStatus captures background sweep lifecycle states.
type ValidationRunStatus string

const (
	ValidationRunQueued    ValidationRunStatus = "queued"
	ValidationRunRunning   ValidationRunStatus = "running"
	ValidationRunCompleted ValidationRunStatus = "completed"
	ValidationRunFailed    ValidationRunStatus = "failed"
)

// Terminal reports whether no further transitions happen.
func (s ValidationRunStatus) Terminal() bool {
	return s == ValidationRunCompleted || s == ValidationRunFailed
}

// ValidationRun tracks an asynchronous sweep of a persisted timetable.
type ValidationRun struct {
	ID           string              `json:"id"`
	TimetableID  string              `json:"timetable_id"`
	Status       ValidationRunStatus `json:"status"`
	Format       ReportFormat        `json:"format,omitempty"`
	RequestedBy  string              `json:"requested_by,omitempty"`
	Attempts     int                 `json:"attempts"`
	CreatedAt    time.Time           `json:"created_at"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	FinishedAt   *time.Time          `json:"finished_at,omitempty"`
	ErrorMessage *string             `json:"error_message,omitempty"`
	ExportName   string              `json:"-"`
}
