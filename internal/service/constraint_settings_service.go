package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-validator/internal/constraint"
	"github.com/noah-isme/sma-timetable-validator/internal/dto"
	"github.com/noah-isme/sma-timetable-validator/internal/models"
	"github.com/noah-isme/sma-timetable-validator/pkg/config"
	appErrors "github.com/noah-isme/sma-timetable-validator/pkg/errors"
)

type constraintRegistry interface {
	GetAvailableConstraints() []constraint.Definition
	Definition(id string) (constraint.Definition, bool)
	UpdateConstraintSettings(id string, patch constraint.SettingsPatch) (constraint.SettingsUpdate, error)
}

type constraintSettingStore interface {
	List(ctx context.Context) ([]models.ConstraintSetting, error)
	Upsert(ctx context.Context, setting *models.ConstraintSetting) error
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// ConstraintSettingsService exposes and persists constraint configuration.
type ConstraintSettingsService struct {
	registry constraintRegistry
	repo     constraintSettingStore
	cache    cacheInvalidator
	logger   *zap.Logger
}

// NewConstraintSettingsService constructs the service.
func NewConstraintSettingsService(registry constraintRegistry, repo constraintSettingStore, cache cacheInvalidator, logger *zap.Logger) *ConstraintSettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConstraintSettingsService{registry: registry, repo: repo, cache: cache, logger: logger}
}

// List returns every registered constraint by descending priority.
func (s *ConstraintSettingsService) List(ctx context.Context) []constraint.Definition {
	return s.registry.GetAvailableConstraints()
}

// Get returns a single constraint definition.
func (s *ConstraintSettingsService) Get(ctx context.Context, id string) (*constraint.Definition, error) {
	def, ok := s.registry.Definition(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("constraint %q not found", id))
	}
	return &def, nil
}

// Update applies a settings patch, persists the result and drops cached reports.
// The engine keeps its previous settings when persistence fails.
func (s *ConstraintSettingsService) Update(ctx context.Context, id string, req dto.UpdateConstraintRequest, actorID string) (*constraint.Definition, error) {
	if req.Enabled == nil && len(req.Parameters) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "enabled or parameters is required")
	}
	previous, ok := s.registry.Definition(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("constraint %q not found", id))
	}

	update, err := s.apply(id, req.Patch())
	if err != nil {
		return nil, err
	}

	if s.repo != nil {
		setting, err := settingFromDefinition(update.Definition, actorID)
		if err == nil {
			err = s.repo.Upsert(ctx, setting)
		}
		if err != nil {
			s.restore(previous)
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist constraint settings")
		}
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, ReportCachePattern()); err != nil {
			s.logger.Warn("failed to invalidate cached reports", zap.String("constraint_id", id), zap.Error(err))
		}
	}

	s.logger.Info("constraint settings updated",
		zap.String("constraint_id", id),
		zap.Bool("enabled", update.Definition.Enabled),
		zap.String("actor_id", actorID),
	)
	return &update.Definition, nil
}

// Bootstrap applies seed settings and then persisted overrides, which win.
// Invalid seeds are fatal; invalid persisted rows are skipped with a warning.
func (s *ConstraintSettingsService) Bootstrap(ctx context.Context, seeds []config.ConstraintSeed) error {
	for _, seed := range seeds {
		patch := constraint.SettingsPatch{Enabled: seed.Enabled, Parameters: constraint.Parameters(seed.Parameters)}
		if _, err := s.apply(seed.ID, patch); err != nil {
			return fmt.Errorf("apply constraint seed %s: %w", seed.ID, err)
		}
	}
	if s.repo == nil {
		return nil
	}

	persisted, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("load persisted constraint settings: %w", err)
	}
	for _, row := range persisted {
		params := constraint.Parameters{}
		if len(row.Parameters) > 0 {
			if err := row.Parameters.Unmarshal(&params); err != nil {
				s.logger.Warn("skip unreadable constraint setting", zap.String("constraint_id", row.ConstraintID), zap.Error(err))
				continue
			}
		}
		enabled := row.Enabled
		if _, err := s.apply(row.ConstraintID, constraint.SettingsPatch{Enabled: &enabled, Parameters: params}); err != nil {
			s.logger.Warn("skip persisted constraint setting", zap.String("constraint_id", row.ConstraintID), zap.Error(err))
		}
	}
	return nil
}

func (s *ConstraintSettingsService) apply(id string, patch constraint.SettingsPatch) (*constraint.SettingsUpdate, error) {
	update, err := s.registry.UpdateConstraintSettings(id, patch)
	if err != nil {
		if errors.Is(err, constraint.ErrConstraintNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("constraint %q not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update constraint settings")
	}
	if !update.Success {
		return nil, appErrors.WithDetails(appErrors.ErrInvalidParameters, update.Errors)
	}
	return &update, nil
}

func (s *ConstraintSettingsService) restore(previous constraint.Definition) {
	enabled := previous.Enabled
	patch := constraint.SettingsPatch{Enabled: &enabled, Parameters: previous.Parameters}
	if _, err := s.registry.UpdateConstraintSettings(previous.ID, patch); err != nil {
		s.logger.Error("failed to restore constraint settings", zap.String("constraint_id", previous.ID), zap.Error(err))
	}
}

func settingFromDefinition(def constraint.Definition, actorID string) (*models.ConstraintSetting, error) {
	raw, err := json.Marshal(def.Parameters)
	if err != nil {
		return nil, fmt.Errorf("marshal constraint parameters: %w", err)
	}
	setting := &models.ConstraintSetting{
		ConstraintID: def.ID,
		Enabled:      def.Enabled,
		Parameters:   types.JSONText(raw),
	}
	if actorID != "" {
		setting.UpdatedBy = &actorID
	}
	return setting, nil
}
