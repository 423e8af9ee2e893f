package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-validator/internal/constraint"
	"github.com/noah-isme/sma-timetable-validator/internal/dto"
	"github.com/noah-isme/sma-timetable-validator/internal/models"
	"github.com/noah-isme/sma-timetable-validator/pkg/config"
	appErrors "github.com/noah-isme/sma-timetable-validator/pkg/errors"
)

type settingRepoStub struct {
	rows      []models.ConstraintSetting
	upserted  []models.ConstraintSetting
	upsertErr error
	listErr   error
}

func (s *settingRepoStub) List(ctx context.Context) ([]models.ConstraintSetting, error) {
	return s.rows, s.listErr
}

func (s *settingRepoStub) Upsert(ctx context.Context, setting *models.ConstraintSetting) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	setting.UpdatedAt = time.Now()
	s.upserted = append(s.upserted, *setting)
	return nil
}

func boolPtr(v bool) *bool {
	return &v
}

func TestConstraintSettingsUpdatePersistsAndInvalidates(t *testing.T) {
	engine := newEngine()
	repo := &settingRepoStub{}
	cacheRepo := newStubCacheRepo()
	cache := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	svc := NewConstraintSettingsService(engine, repo, cache, zap.NewNop())

	def, err := svc.Update(context.Background(), constraint.SubjectDistributionID, dto.UpdateConstraintRequest{
		Parameters: constraint.Parameters{"maxConsecutiveHours": 3},
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 3, def.Parameters["maxConsecutiveHours"])

	require.Len(t, repo.upserted, 1)
	saved := repo.upserted[0]
	assert.Equal(t, constraint.SubjectDistributionID, saved.ConstraintID)
	assert.True(t, saved.Enabled)
	assert.Equal(t, "admin-1", *saved.UpdatedBy)
	var params map[string]any
	require.NoError(t, json.Unmarshal(saved.Parameters, &params))
	assert.EqualValues(t, 3, params["maxConsecutiveHours"])
	assert.Equal(t, []string{ReportCachePattern()}, cacheRepo.patterns)
}

func TestConstraintSettingsUpdateRejectsInvalidParameters(t *testing.T) {
	engine := newEngine()
	repo := &settingRepoStub{}
	svc := NewConstraintSettingsService(engine, repo, nil, zap.NewNop())

	_, err := svc.Update(context.Background(), constraint.SubjectDistributionID, dto.UpdateConstraintRequest{
		Parameters: constraint.Parameters{"maxConsecutiveHours": 0},
	}, "admin-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidParameters.Code, appErr.Code)
	assert.NotEmpty(t, appErr.Details)
	assert.Empty(t, repo.upserted)

	def, _ := engine.Definition(constraint.SubjectDistributionID)
	assert.Equal(t, 2, def.Parameters["maxConsecutiveHours"])
}

func TestConstraintSettingsUpdateUnknownAndEmpty(t *testing.T) {
	svc := NewConstraintSettingsService(newEngine(), nil, nil, zap.NewNop())

	_, err := svc.Update(context.Background(), "missing", dto.UpdateConstraintRequest{Enabled: boolPtr(false)}, "")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = svc.Update(context.Background(), constraint.TeacherConflictID, dto.UpdateConstraintRequest{}, "")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestConstraintSettingsUpdateRestoresOnPersistFailure(t *testing.T) {
	engine := newEngine()
	repo := &settingRepoStub{upsertErr: errors.New("db down")}
	svc := NewConstraintSettingsService(engine, repo, nil, zap.NewNop())

	_, err := svc.Update(context.Background(), constraint.TeacherConflictID, dto.UpdateConstraintRequest{Enabled: boolPtr(false)}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)

	def, _ := engine.Definition(constraint.TeacherConflictID)
	assert.True(t, def.Enabled)
}

func TestConstraintSettingsBootstrapPersistedWins(t *testing.T) {
	engine := newEngine()
	repo := &settingRepoStub{rows: []models.ConstraintSetting{
		{ConstraintID: constraint.SubjectDistributionID, Enabled: true, Parameters: types.JSONText(`{"maxConsecutiveHours":4}`)},
		{ConstraintID: "retired_rule", Enabled: true, Parameters: types.JSONText(`{}`)},
		{ConstraintID: constraint.TimeSlotPreferenceID, Enabled: true, Parameters: types.JSONText(`{"bogus":1}`)},
	}}
	svc := NewConstraintSettingsService(engine, repo, nil, zap.NewNop())

	seeds := []config.ConstraintSeed{
		{ID: constraint.SubjectDistributionID, Parameters: map[string]any{"maxConsecutiveHours": 3}},
		{ID: constraint.ClassroomConflictID, Enabled: boolPtr(false)},
	}
	require.NoError(t, svc.Bootstrap(context.Background(), seeds))

	subject, _ := engine.Definition(constraint.SubjectDistributionID)
	assert.EqualValues(t, 4, subject.Parameters["maxConsecutiveHours"])
	classroom, _ := engine.Definition(constraint.ClassroomConflictID)
	assert.False(t, classroom.Enabled)
	timeSlot, _ := engine.Definition(constraint.TimeSlotPreferenceID)
	_, polluted := timeSlot.Parameters["bogus"]
	assert.False(t, polluted)
}

func TestConstraintSettingsBootstrapRejectsBadSeed(t *testing.T) {
	svc := NewConstraintSettingsService(newEngine(), nil, nil, zap.NewNop())

	err := svc.Bootstrap(context.Background(), []config.ConstraintSeed{{ID: "nope"}})
	assert.ErrorContains(t, err, "nope")

	err = svc.Bootstrap(context.Background(), []config.ConstraintSeed{
		{ID: constraint.SubjectDistributionID, Parameters: map[string]any{"minDaySpread": 9}},
	})
	assert.Error(t, err)
}
