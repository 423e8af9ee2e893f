package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ConstraintSetting is the persisted override of a constraint's enable flag
// and parameters.
type ConstraintSetting struct {
	ConstraintID string         `db:"constraint_id" json:"constraint_id"`
	Enabled      bool           `db:"enabled" json:"enabled"`
	Parameters   types.JSONText `db:"parameters" json:"parameters"`
	UpdatedBy    *string        `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}
