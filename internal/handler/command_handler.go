package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/internal/service"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
	"github.com/noah-isme/study-planner-api/pkg/response"
)

// Operation names accepted by POST /commands.
const (
	OpCreateBlock             = "createBlock"
	OpMoveBlock               = "moveBlock"
	OpResizeBlock             = "resizeBlock"
	OpCreateConstraint        = "createConstraint"
	OpVoteOnChangeRequest     = "voteOnChangeRequest"
	OpTriggerWeeklyGeneration = "triggerWeeklyGeneration"
)

type commandExecutor interface {
	Execute(ctx context.Context, cmd service.Command) (interface{}, error)
}

// CommandHandler turns operation envelopes into typed commands.
type CommandHandler struct {
	executor  commandExecutor
	validator *validator.Validate
}

// NewCommandHandler constructs the handler.
func NewCommandHandler(executor commandExecutor, validate *validator.Validate) *CommandHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &CommandHandler{executor: executor, validator: validate}
}

// Execute godoc
// @Summary Execute a planner command
// @Tags Commands
// @Accept json
// @Produce json
// @Param payload body dto.CommandRequest true "Operation envelope"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /commands [post]
func (h *CommandHandler) Execute(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CommandRequest
	if !bindJSON(c, &req, "invalid command envelope") {
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid command envelope"))
		return
	}
	cmd, err := h.decode(actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	out, err := h.executor.Execute(c.Request.Context(), cmd)
	if err != nil {
		response.Error(c, err)
		return
	}
	if mutation, ok := out.(*dto.BlockMutationResponse); ok {
		writeMutation(c, http.StatusOK, mutation)
		return
	}
	response.JSON(c, http.StatusOK, out)
}

func (h *CommandHandler) decode(actor service.Actor, req dto.CommandRequest) (service.Command, error) {
	switch req.Operation {
	case OpCreateBlock:
		var payload dto.CreateBlockRequest
		if err := decodePayload(req.Payload, &payload); err != nil {
			return nil, err
		}
		return service.CreateBlockCommand{Actor: actor, Request: payload}, nil
	case OpMoveBlock:
		var payload dto.MoveBlockRequest
		if err := decodePayload(req.Payload, &payload); err != nil {
			return nil, err
		}
		return service.MoveBlockCommand{Actor: actor, Request: payload}, nil
	case OpResizeBlock:
		var payload dto.ResizeBlockRequest
		if err := decodePayload(req.Payload, &payload); err != nil {
			return nil, err
		}
		return service.ResizeBlockCommand{Actor: actor, Request: payload}, nil
	case OpCreateConstraint:
		var payload dto.CreateConstraintRequest
		if err := decodePayload(req.Payload, &payload); err != nil {
			return nil, err
		}
		return service.CreateConstraintCommand{Actor: actor, Request: payload}, nil
	case OpVoteOnChangeRequest:
		var payload dto.CommandVoteRequest
		if err := decodePayload(req.Payload, &payload); err != nil {
			return nil, err
		}
		if err := h.validator.Struct(payload); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid vote payload")
		}
		return service.VoteCommand{Actor: actor, RequestID: payload.RequestID, Approve: payload.Decision == dto.VoteApprove}, nil
	case OpTriggerWeeklyGeneration:
		var payload dto.GenerateWeekRequest
		if err := decodePayload(req.Payload, &payload); err != nil {
			return nil, err
		}
		return service.TriggerWeeklyGenerationCommand{Actor: actor, WeekStart: payload.WeekStart}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown operation "+req.Operation)
	}
}

func decodePayload(raw json.RawMessage, dst interface{}) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid command payload")
	}
	return nil
}
