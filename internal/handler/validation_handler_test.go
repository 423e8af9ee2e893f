package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-validator/internal/constraint"
	"github.com/noah-isme/sma-timetable-validator/internal/dto"
	"github.com/noah-isme/sma-timetable-validator/internal/middleware"
	"github.com/noah-isme/sma-timetable-validator/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-validator/pkg/errors"
)

type validationServiceStub struct {
	report      *dto.ValidationReport
	cacheHit    bool
	err         error
	lastRequest dto.ValidateTimetableRequest
	category    string
}

func (s *validationServiceStub) ValidatePayload(ctx context.Context, req dto.ValidateTimetableRequest) (*dto.ValidationReport, error) {
	s.lastRequest = req
	return s.report, s.err
}

func (s *validationServiceStub) ValidateCategory(ctx context.Context, rawCategory string, req dto.ValidateTimetableRequest) (*dto.CategoryValidationResponse, error) {
	s.lastRequest, s.category = req, rawCategory
	if s.err != nil {
		return nil, s.err
	}
	return &dto.CategoryValidationResponse{Category: constraint.Category(rawCategory), IsValid: true, Violations: []constraint.Violation{}}, nil
}

func (s *validationServiceStub) ValidateTimetable(ctx context.Context, timetableID string) (*dto.ValidationReport, bool, error) {
	if s.err != nil {
		return nil, false, s.err
	}
	return s.report, s.cacheHit, nil
}

func invalidReport() *dto.ValidationReport {
	return &dto.ValidationReport{
		ReportID:    "r-1",
		TimetableID: "tt-1",
		IsValid:     false,
		Violations: []constraint.Violation{{
			Code:     "teacher_conflict_DOUBLE_BOOKING",
			Message:  "Teacher t-1 is double-booked",
			Severity: constraint.SeverityError,
		}},
	}
}

func TestValidationHandlerValidate(t *testing.T) {
	stub := &validationServiceStub{report: invalidReport()}
	h := NewValidationHandler(stub, service.NewReportExportService(nil, nil))
	body := mustJSON(t, dto.ValidateTimetableRequest{
		SchoolType: "SMA",
		Schedules:  []dto.ScheduleInput{{ClassID: "c-1", SubjectID: "s-1", TeacherID: "t-1", DayOfWeek: 1, Period: 1}},
	})
	c, w := newTestContext(http.MethodPost, "/validation", body)

	h.Validate(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, stub.lastRequest.Schedules, 1)
	assert.Contains(t, string(decode(t, w).Data), "teacher_conflict_DOUBLE_BOOKING")
}

func TestValidationHandlerValidateInvalidBody(t *testing.T) {
	h := NewValidationHandler(&validationServiceStub{}, nil)
	c, w := newTestContext(http.MethodPost, "/validation", []byte(`{"schedules":"nope"}`))

	h.Validate(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decode(t, w).Error.Code)
}

func TestValidationHandlerCategory(t *testing.T) {
	stub := &validationServiceStub{}
	h := NewValidationHandler(stub, nil)
	c, w := newTestContext(http.MethodPost, "/validation/teacher", []byte(`{"schedules":[]}`))
	c.Params = gin.Params{{Key: "category", Value: "teacher"}}

	h.ValidateCategory(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "teacher", stub.category)
}

func TestValidationHandlerCategoryFailure(t *testing.T) {
	stub := &validationServiceStub{err: appErrors.Wrap(errors.New("boom"), appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "category validation failed")}
	h := NewValidationHandler(stub, nil)
	c, w := newTestContext(http.MethodPost, "/validation/time", []byte(`{}`))
	c.Params = gin.Params{{Key: "category", Value: "time"}}

	h.ValidateCategory(c)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestValidationHandlerTimetableReportsCacheHit(t *testing.T) {
	stub := &validationServiceStub{report: invalidReport(), cacheHit: true}
	h := NewValidationHandler(stub, nil)
	c, w := newTestContext(http.MethodGet, "/timetables/tt-1/validation", nil)
	c.Params = gin.Params{{Key: "id", Value: "tt-1"}}
	middleware.WithResponseMeta()(c)

	h.Timetable(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w).Meta["cache_hit"])
}

func TestValidationHandlerTimetableNotFound(t *testing.T) {
	stub := &validationServiceStub{err: appErrors.Clone(appErrors.ErrNotFound, "timetable not found")}
	h := NewValidationHandler(stub, nil)
	c, w := newTestContext(http.MethodGet, "/timetables/missing/validation", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	h.Timetable(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestValidationHandlerExportCSV(t *testing.T) {
	h := NewValidationHandler(&validationServiceStub{report: invalidReport()}, service.NewReportExportService(nil, nil))
	c, w := newTestContext(http.MethodGet, "/timetables/tt-1/validation/export?format=csv", nil)
	c.Params = gin.Params{{Key: "id", Value: "tt-1"}}

	h.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "validation-tt-1.csv")
	assert.Contains(t, w.Body.String(), "teacher_conflict_DOUBLE_BOOKING")
}

func TestValidationHandlerExportRejectsFormat(t *testing.T) {
	h := NewValidationHandler(&validationServiceStub{report: invalidReport()}, service.NewReportExportService(nil, nil))
	c, w := newTestContext(http.MethodGet, "/timetables/tt-1/validation/export?format=xlsx", nil)
	c.Params = gin.Params{{Key: "id", Value: "tt-1"}}

	h.Export(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
