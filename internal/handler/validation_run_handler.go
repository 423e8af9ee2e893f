package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-validator/internal/dto"
	"github.com/noah-isme/sma-timetable-validator/internal/models"
	"github.com/noah-isme/sma-timetable-validator/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-validator/pkg/errors"
	"github.com/noah-isme/sma-timetable-validator/pkg/response"
)

type validationRunService interface {
	Create(ctx context.Context, timetableID string, req dto.CreateValidationRunRequest, actorID string) (*dto.ValidationRunResponse, error)
	Get(ctx context.Context, id string) (*dto.ValidationRunResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.ReportDownload, error)
}

// ValidationRunHandler exposes asynchronous sweeps.
type ValidationRunHandler struct {
	runs validationRunService
}

// NewValidationRunHandler builds a new handler.
func NewValidationRunHandler(runs validationRunService) *ValidationRunHandler {
	return &ValidationRunHandler{runs: runs}
}

// Create godoc
// @Summary Queue a background sweep of a persisted timetable
// @Tags Validation
// @Accept json
// @Produce json
// @Param id path string true "Timetable ID"
// @Param payload body dto.CreateValidationRunRequest false "Optional report format"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/{id}/validation/runs [post]
func (h *ValidationRunHandler) Create(c *gin.Context) {
	var req dto.CreateValidationRunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid run payload"))
			return
		}
	}
	if req.Format == "" {
		req.Format = models.ReportFormat(c.Query("format"))
	}
	run, err := h.runs.Create(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, run)
}

// Get godoc
// @Summary Get validation run status
// @Tags Validation
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /validation/runs/{id} [get]
func (h *ValidationRunHandler) Get(c *gin.Context) {
	run, err := h.runs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run)
}

// Download godoc
// @Summary Download a rendered run report via signed token
// @Tags Validation
// @Produce text/csv
// @Produce application/pdf
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /validation/downloads/{token} [get]
func (h *ValidationRunHandler) Download(c *gin.Context) {
	download, err := h.runs.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, download.Filename, download.ContentType, download.Payload)
}
