package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-validator/internal/constraint"
	"github.com/noah-isme/sma-timetable-validator/internal/dto"
	appErrors "github.com/noah-isme/sma-timetable-validator/pkg/errors"
)

type constraintServiceStub struct {
	defs      []constraint.Definition
	updateErr error
	lastReq   dto.UpdateConstraintRequest
	lastActor string
}

func (s *constraintServiceStub) List(ctx context.Context) []constraint.Definition {
	return s.defs
}

func (s *constraintServiceStub) Get(ctx context.Context, id string) (*constraint.Definition, error) {
	for _, d := range s.defs {
		if d.ID == id {
			def := d
			return &def, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "constraint not found")
}

func (s *constraintServiceStub) Update(ctx context.Context, id string, req dto.UpdateConstraintRequest, actorID string) (*constraint.Definition, error) {
	s.lastReq, s.lastActor = req, actorID
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	def, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Enabled != nil {
		def.Enabled = *req.Enabled
	}
	return def, nil
}

func constraintStub() *constraintServiceStub {
	return &constraintServiceStub{defs: []constraint.Definition{
		{ID: constraint.TeacherConflictID, Category: constraint.CategoryTeacher, Priority: 10, Enabled: true},
		{ID: constraint.TimeSlotPreferenceID, Category: constraint.CategoryTime, Priority: 5, Enabled: true},
	}}
}

func TestConstraintHandlerList(t *testing.T) {
	h := NewConstraintHandler(constraintStub())
	c, w := newTestContext(http.MethodGet, "/constraints", nil)

	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)

	var body dto.ConstraintListResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &body))
	assert.Equal(t, 2, body.Total)
	assert.Equal(t, constraint.TeacherConflictID, body.Constraints[0].ID)
}

func TestConstraintHandlerGetUnknown(t *testing.T) {
	h := NewConstraintHandler(constraintStub())
	c, w := newTestContext(http.MethodGet, "/constraints/nope", nil)
	c.Params = gin.Params{{Key: "id", Value: "nope"}}

	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, appErrors.ErrNotFound.Code, decode(t, w).Error.Code)
}

func TestConstraintHandlerUpdate(t *testing.T) {
	stub := constraintStub()
	h := NewConstraintHandler(stub)
	c, w := newTestContext(http.MethodPatch, "/constraints/time_slot_preference", []byte(`{"enabled":false,"parameters":{"morningPeriods":[1,2]}}`))
	c.Params = gin.Params{{Key: "id", Value: constraint.TimeSlotPreferenceID}}
	withAdmin(c)

	h.Update(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin-1", stub.lastActor)
	require.NotNil(t, stub.lastReq.Enabled)
	assert.False(t, *stub.lastReq.Enabled)
	assert.Equal(t, []interface{}{float64(1), float64(2)}, stub.lastReq.Parameters["morningPeriods"])

	var def constraint.Definition
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &def))
	assert.False(t, def.Enabled)
}

func TestConstraintHandlerUpdateRejectsParameters(t *testing.T) {
	stub := constraintStub()
	stub.updateErr = appErrors.WithDetails(appErrors.ErrInvalidParameters, []string{"morningPeriods[0] must be in 1..6"})
	h := NewConstraintHandler(stub)
	c, w := newTestContext(http.MethodPatch, "/constraints/time_slot_preference", []byte(`{"parameters":{"morningPeriods":[9]}}`))
	c.Params = gin.Params{{Key: "id", Value: constraint.TimeSlotPreferenceID}}

	h.Update(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w)
	assert.Equal(t, appErrors.ErrInvalidParameters.Code, env.Error.Code)
	assert.Equal(t, []string{"morningPeriods[0] must be in 1..6"}, env.Error.Details)
}

func TestConstraintHandlerUpdateInvalidBody(t *testing.T) {
	h := NewConstraintHandler(constraintStub())
	c, w := newTestContext(http.MethodPatch, "/constraints/teacher_conflict", []byte(`invalid`))
	c.Params = gin.Params{{Key: "id", Value: constraint.TeacherConflictID}}

	h.Update(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decode(t, w).Error.Code)
}
