package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-validator/internal/models"
)

// ConstraintSettingRepository persists constraint overrides.
type ConstraintSettingRepository struct {
	db *sqlx.DB
}

// NewConstraintSettingRepository constructs the repository.
func NewConstraintSettingRepository(db *sqlx.DB) *ConstraintSettingRepository {
	return &ConstraintSettingRepository{db: db}
}

// List returns every stored override ordered by constraint id.
func (r *ConstraintSettingRepository) List(ctx context.Context) ([]models.ConstraintSetting, error) {
	const query = `SELECT constraint_id, enabled, parameters, updated_by, updated_at
FROM constraint_settings ORDER BY constraint_id ASC`
	var settings []models.ConstraintSetting
	if err := r.db.SelectContext(ctx, &settings, query); err != nil {
		return nil, fmt.Errorf("list constraint settings: %w", err)
	}
	return settings, nil
}

// Upsert inserts or replaces the override of one constraint.
func (r *ConstraintSettingRepository) Upsert(ctx context.Context, setting *models.ConstraintSetting) error {
	const query = `INSERT INTO constraint_settings (constraint_id, enabled, parameters, updated_by, updated_at)
VALUES (:constraint_id, :enabled, :parameters, :updated_by, :updated_at)
ON CONFLICT (constraint_id)
DO UPDATE SET enabled = EXCLUDED.enabled, parameters = EXCLUDED.parameters,
              updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`
	setting.UpdatedAt = time.Now().UTC()
	if len(setting.Parameters) == 0 {
		setting.Parameters = []byte("{}")
	}
	if _, err := r.db.NamedExecContext(ctx, query, setting); err != nil {
		return fmt.Errorf("upsert constraint setting: %w", err)
	}
	return nil
}
