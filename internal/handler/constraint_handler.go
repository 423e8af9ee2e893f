package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-validator/internal/constraint"
	"github.com/noah-isme/sma-timetable-validator/internal/dto"
	appErrors "github.com/noah-isme/sma-timetable-validator/pkg/errors"
	"github.com/noah-isme/sma-timetable-validator/pkg/response"
)

type constraintSettingsService interface {
	List(ctx context.Context) []constraint.Definition
	Get(ctx context.Context, id string) (*constraint.Definition, error)
	Update(ctx context.Context, id string, req dto.UpdateConstraintRequest, actorID string) (*constraint.Definition, error)
}

// ConstraintHandler exposes the constraint registry.
type ConstraintHandler struct {
	service constraintSettingsService
}

// NewConstraintHandler builds a new handler.
func NewConstraintHandler(service constraintSettingsService) *ConstraintHandler {
	return &ConstraintHandler{service: service}
}

// List godoc
// @Summary List registered constraints
// @Tags Constraints
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /constraints [get]
func (h *ConstraintHandler) List(c *gin.Context) {
	defs := h.service.List(c.Request.Context())
	response.JSON(c, http.StatusOK, dto.ConstraintListResponse{Constraints: defs, Total: len(defs)})
}

// Get godoc
// @Summary Get constraint by id
// @Tags Constraints
// @Produce json
// @Param id path string true "Constraint ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /constraints/{id} [get]
func (h *ConstraintHandler) Get(c *gin.Context) {
	def, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, def)
}

// Update godoc
// @Summary Update constraint settings
// @Tags Constraints
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Constraint ID"
// @Param payload body dto.UpdateConstraintRequest true "Settings patch"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /constraints/{id} [patch]
func (h *ConstraintHandler) Update(c *gin.Context) {
	var req dto.UpdateConstraintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid constraint payload"))
		return
	}
	def, err := h.service.Update(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, def)
}
