package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/pkg/response"
)

type blockService interface {
	Create(ctx context.Context, actorID string, req dto.CreateBlockRequest) (*dto.BlockMutationResponse, error)
	Move(ctx context.Context, actorID string, req dto.MoveBlockRequest) (*dto.BlockMutationResponse, error)
	Resize(ctx context.Context, actorID string, req dto.ResizeBlockRequest) (*dto.BlockMutationResponse, error)
}

// BlockHandler exposes block mutation endpoints.
type BlockHandler struct {
	service blockService
}

// NewBlockHandler constructs the handler.
func NewBlockHandler(service blockService) *BlockHandler {
	return &BlockHandler{service: service}
}

// Create godoc
// @Summary Create a study block
// @Description Group blocks are not written directly; a change request is opened instead and 202 is returned.
// @Tags Blocks
// @Accept json
// @Produce json
// @Param payload body dto.CreateBlockRequest true "Block payload"
// @Success 201 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /blocks [post]
func (h *BlockHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateBlockRequest
	if !bindJSON(c, &req, "invalid block payload") {
		return
	}
	resp, err := h.service.Create(c.Request.Context(), actor.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeMutation(c, http.StatusCreated, resp)
}

// Move godoc
// @Summary Move a study block run
// @Tags Blocks
// @Accept json
// @Produce json
// @Param payload body dto.MoveBlockRequest true "Move payload"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /blocks/move [post]
func (h *BlockHandler) Move(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.MoveBlockRequest
	if !bindJSON(c, &req, "invalid move payload") {
		return
	}
	resp, err := h.service.Move(c.Request.Context(), actor.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeMutation(c, http.StatusOK, resp)
}

// Resize godoc
// @Summary Resize a study block run
// @Tags Blocks
// @Accept json
// @Produce json
// @Param payload body dto.ResizeBlockRequest true "Resize payload"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /blocks/resize [post]
func (h *BlockHandler) Resize(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.ResizeBlockRequest
	if !bindJSON(c, &req, "invalid resize payload") {
		return
	}
	resp, err := h.service.Resize(c.Request.Context(), actor.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeMutation(c, http.StatusOK, resp)
}

func writeMutation(c *gin.Context, status int, resp *dto.BlockMutationResponse) {
	if resp != nil && resp.Status == dto.MutationPendingApproval {
		response.Accepted(c, resp)
		return
	}
	response.JSON(c, status, resp)
}
