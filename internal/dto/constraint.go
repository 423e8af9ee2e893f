package dto

import "github.com/noah-isme/sma-timetable-validator/internal/constraint"

// UpdateConstraintRequest captures PATCH /constraints/:id payloads.
type UpdateConstraintRequest struct {
	Enabled    *bool                 `json:"enabled"`
	Parameters constraint.Parameters `json:"parameters"`
}

// Patch converts the request into an engine settings patch.
func (r UpdateConstraintRequest) Patch() constraint.SettingsPatch {
	return constraint.SettingsPatch{Enabled: r.Enabled, Parameters: r.Parameters}
}

// ConstraintListResponse wraps the registry snapshot.
type ConstraintListResponse struct {
	Constraints []constraint.Definition `json:"constraints"`
	Total       int                     `json:"total"`
}
