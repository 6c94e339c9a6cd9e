package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/pkg/response"
)

type constraintService interface {
	Create(ctx context.Context, userID string, req dto.CreateConstraintRequest) (*dto.ConstraintResponse, error)
	Delete(ctx context.Context, userID, id string) error
	List(ctx context.Context, userID, week string) (*dto.ConstraintListResponse, error)
}

// ConstraintHandler manages the caller's busy windows.
type ConstraintHandler struct {
	service constraintService
}

// NewConstraintHandler constructs the handler.
func NewConstraintHandler(service constraintService) *ConstraintHandler {
	return &ConstraintHandler{service: service}
}

// List godoc
// @Summary List constraints
// @Tags Constraints
// @Produce json
// @Param week query string false "Week start (defaults to the current week)"
// @Success 200 {object} response.Envelope
// @Router /constraints [get]
func (h *ConstraintHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	list, err := h.service.List(c.Request.Context(), actor.UserID, c.Query("week"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list)
}

// Create godoc
// @Summary Create a constraint
// @Description Soft constraints overlapping planned blocks are stored and reported as warnings.
// @Tags Constraints
// @Accept json
// @Produce json
// @Param payload body dto.CreateConstraintRequest true "Constraint payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /constraints [post]
func (h *ConstraintHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateConstraintRequest
	if !bindJSON(c, &req, "invalid constraint payload") {
		return
	}
	resp, err := h.service.Create(c.Request.Context(), actor.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.WithWarnings(c, http.StatusCreated, resp.Constraint, resp.Warnings)
}

// Delete godoc
// @Summary Delete a constraint
// @Tags Constraints
// @Param id path string true "Constraint ID"
// @Success 204
// @Router /constraints/{id} [delete]
func (h *ConstraintHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), actor.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
