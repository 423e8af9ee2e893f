package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-validator/internal/dto"
	"github.com/noah-isme/sma-timetable-validator/internal/middleware"
	"github.com/noah-isme/sma-timetable-validator/internal/models"
	"github.com/noah-isme/sma-timetable-validator/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-validator/pkg/errors"
	"github.com/noah-isme/sma-timetable-validator/pkg/response"
)

type validationService interface {
	ValidatePayload(ctx context.Context, req dto.ValidateTimetableRequest) (*dto.ValidationReport, error)
	ValidateCategory(ctx context.Context, rawCategory string, req dto.ValidateTimetableRequest) (*dto.CategoryValidationResponse, error)
	ValidateTimetable(ctx context.Context, timetableID string) (*dto.ValidationReport, bool, error)
}

type reportExporter interface {
	Render(report *dto.ValidationReport, format models.ReportFormat) (*service.RenderedReport, error)
}

// ValidationHandler exposes synchronous sweeps and report exports.
type ValidationHandler struct {
	validation validationService
	exporter   reportExporter
}

// NewValidationHandler builds a new handler.
func NewValidationHandler(validation validationService, exporter reportExporter) *ValidationHandler {
	return &ValidationHandler{validation: validation, exporter: exporter}
}

// Validate godoc
// @Summary Validate a candidate timetable
// @Tags Validation
// @Accept json
// @Produce json
// @Param payload body dto.ValidateTimetableRequest true "Timetable payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /validation [post]
func (h *ValidationHandler) Validate(c *gin.Context) {
	req, ok := bindValidationRequest(c)
	if !ok {
		return
	}
	report, err := h.validation.ValidatePayload(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report)
}

// ValidateCategory godoc
// @Summary Validate a candidate timetable against one category
// @Tags Validation
// @Accept json
// @Produce json
// @Param category path string true "Category" Enums(teacher, classroom, subject, time, custom)
// @Param payload body dto.ValidateTimetableRequest true "Timetable payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /validation/{category} [post]
func (h *ValidationHandler) ValidateCategory(c *gin.Context) {
	req, ok := bindValidationRequest(c)
	if !ok {
		return
	}
	result, err := h.validation.ValidateCategory(c.Request.Context(), c.Param("category"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Timetable godoc
// @Summary Validate a persisted timetable
// @Tags Validation
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/{id}/validation [get]
func (h *ValidationHandler) Timetable(c *gin.Context) {
	report, hit, err := h.validation.ValidateTimetable(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, report, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Export the violation report of a persisted timetable
// @Tags Validation
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Timetable ID"
// @Param format query string false "Export format" Enums(csv, pdf)
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/{id}/validation/export [get]
func (h *ValidationHandler) Export(c *gin.Context) {
	format, err := service.ParseReportFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	report, _, err := h.validation.ValidateTimetable(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	rendered, err := h.exporter.Render(report, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, rendered.Filename, rendered.ContentType, rendered.Payload)
}

func bindValidationRequest(c *gin.Context) (dto.ValidateTimetableRequest, bool) {
	var req dto.ValidateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid timetable payload"))
		return req, false
	}
	return req, true
}
