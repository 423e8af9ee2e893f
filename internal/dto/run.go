package dto

import (
	"time"

	"github.com/noah-isme/sma-timetable-validator/internal/models"
)

// CreateValidationRunRequest captures POST /timetables/:id/validation/runs payloads.
type CreateValidationRunRequest struct {
	Format models.ReportFormat `json:"format" validate:"omitempty,oneof=csv pdf"`
}

// ValidationRunResponse exposes asynchronous sweep progress.
type ValidationRunResponse struct {
	ID          string                     `json:"id"`
	TimetableID string                     `json:"timetableId"`
	Status      models.ValidationRunStatus `json:"status"`
	Attempts    int                        `json:"attempts"`
	CreatedAt   time.Time                  `json:"createdAt"`
	FinishedAt  *time.Time                 `json:"finishedAt,omitempty"`
	Error       *string                    `json:"error,omitempty"`
	Report      *ValidationReport          `json:"report,omitempty"`
	DownloadURL *string                    `json:"downloadUrl,omitempty"`
	ExpiresAt   *time.Time                 `json:"expiresAt,omitempty"`
}
