package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/pkg/response"
)

type changeRequestService interface {
	ListPending(ctx context.Context, userID string) ([]dto.ChangeRequestView, error)
	Get(ctx context.Context, requestID, userID string) (*dto.ChangeRequestView, error)
	RecordApproval(ctx context.Context, requestID, memberID string) (*dto.ChangeRequestView, error)
	RecordRejection(ctx context.Context, requestID, memberID string) (*dto.ChangeRequestView, error)
}

// ChangeRequestHandler exposes group consensus endpoints.
type ChangeRequestHandler struct {
	service changeRequestService
}

// NewChangeRequestHandler constructs the handler.
func NewChangeRequestHandler(service changeRequestService) *ChangeRequestHandler {
	return &ChangeRequestHandler{service: service}
}

// Pending godoc
// @Summary List pending change requests of the caller's groups
// @Tags Change Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /change-requests/pending [get]
func (h *ChangeRequestHandler) Pending(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	views, err := h.service.ListPending(c.Request.Context(), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, views, map[string]interface{}{"count": len(views)})
}

// Get godoc
// @Summary Get a change request
// @Tags Change Requests
// @Produce json
// @Param id path string true "Change request ID"
// @Success 200 {object} response.Envelope
// @Router /change-requests/{id} [get]
func (h *ChangeRequestHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	view, err := h.service.Get(c.Request.Context(), c.Param("id"), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// Approve godoc
// @Summary Approve a change request
// @Tags Change Requests
// @Produce json
// @Param id path string true "Change request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /change-requests/{id}/approve [post]
func (h *ChangeRequestHandler) Approve(c *gin.Context) {
	h.vote(c, true)
}

// Reject godoc
// @Summary Reject a change request
// @Tags Change Requests
// @Produce json
// @Param id path string true "Change request ID"
// @Success 200 {object} response.Envelope
// @Router /change-requests/{id}/reject [post]
func (h *ChangeRequestHandler) Reject(c *gin.Context) {
	h.vote(c, false)
}

func (h *ChangeRequestHandler) vote(c *gin.Context, approve bool) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var (
		view *dto.ChangeRequestView
		err  error
	)
	if approve {
		view, err = h.service.RecordApproval(c.Request.Context(), c.Param("id"), actor.UserID)
	} else {
		view, err = h.service.RecordRejection(c.Request.Context(), c.Param("id"), actor.UserID)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}
