package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/internal/models"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
	applogger "github.com/noah-isme/study-planner-api/pkg/logger"
)

// Actor identifies who issued a command.
type Actor struct {
	UserID string
	Role   models.UserRole
}

// Command is one of the closed set of engine operations.
type Command interface {
	Accept(ctx context.Context, v CommandVisitor) (interface{}, error)
}

// CommandVisitor handles every command type. Adding a command breaks every implementation
// until it handles the new type.
type CommandVisitor interface {
	VisitCreateBlock(ctx context.Context, cmd CreateBlockCommand) (interface{}, error)
	VisitMoveBlock(ctx context.Context, cmd MoveBlockCommand) (interface{}, error)
	VisitResizeBlock(ctx context.Context, cmd ResizeBlockCommand) (interface{}, error)
	VisitCreateConstraint(ctx context.Context, cmd CreateConstraintCommand) (interface{}, error)
	VisitVote(ctx context.Context, cmd VoteCommand) (interface{}, error)
	VisitTriggerWeeklyGeneration(ctx context.Context, cmd TriggerWeeklyGenerationCommand) (interface{}, error)
}

type CreateBlockCommand struct {
	Actor   Actor
	Request dto.CreateBlockRequest
}

type MoveBlockCommand struct {
	Actor   Actor
	Request dto.MoveBlockRequest
}

type ResizeBlockCommand struct {
	Actor   Actor
	Request dto.ResizeBlockRequest
}

type CreateConstraintCommand struct {
	Actor   Actor
	Request dto.CreateConstraintRequest
}

type VoteCommand struct {
	Actor     Actor
	RequestID string
	Approve   bool
}

type TriggerWeeklyGenerationCommand struct {
	Actor     Actor
	WeekStart string
}

func (c CreateBlockCommand) Accept(ctx context.Context, v CommandVisitor) (interface{}, error) {
	return v.VisitCreateBlock(ctx, c)
}

func (c MoveBlockCommand) Accept(ctx context.Context, v CommandVisitor) (interface{}, error) {
	return v.VisitMoveBlock(ctx, c)
}

func (c ResizeBlockCommand) Accept(ctx context.Context, v CommandVisitor) (interface{}, error) {
	return v.VisitResizeBlock(ctx, c)
}

func (c CreateConstraintCommand) Accept(ctx context.Context, v CommandVisitor) (interface{}, error) {
	return v.VisitCreateConstraint(ctx, c)
}

func (c VoteCommand) Accept(ctx context.Context, v CommandVisitor) (interface{}, error) {
	return v.VisitVote(ctx, c)
}

func (c TriggerWeeklyGenerationCommand) Accept(ctx context.Context, v CommandVisitor) (interface{}, error) {
	return v.VisitTriggerWeeklyGeneration(ctx, c)
}

type blockMutator interface {
	Create(ctx context.Context, actorID string, req dto.CreateBlockRequest) (*dto.BlockMutationResponse, error)
	Move(ctx context.Context, actorID string, req dto.MoveBlockRequest) (*dto.BlockMutationResponse, error)
	Resize(ctx context.Context, actorID string, req dto.ResizeBlockRequest) (*dto.BlockMutationResponse, error)
}

type constraintCreator interface {
	Create(ctx context.Context, userID string, req dto.CreateConstraintRequest) (*dto.ConstraintResponse, error)
}

type voteRecorder interface {
	RecordApproval(ctx context.Context, requestID, memberID string) (*dto.ChangeRequestView, error)
	RecordRejection(ctx context.Context, requestID, memberID string) (*dto.ChangeRequestView, error)
}

type weeklyGenerator interface {
	Generate(ctx context.Context, rawWeek string) (*dto.WeeklyRunReport, error)
}

// CommandService executes commands against the engine services.
type CommandService struct {
	blocks      blockMutator
	constraints constraintCreator
	votes       voteRecorder
	weekly      weeklyGenerator
	logger      *zap.Logger
}

var _ CommandVisitor = (*CommandService)(nil)

// NewCommandService wires the dispatcher.
func NewCommandService(blocks blockMutator, constraints constraintCreator, votes voteRecorder, weekly weeklyGenerator, logger *zap.Logger) *CommandService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandService{blocks: blocks, constraints: constraints, votes: votes, weekly: weekly, logger: logger}
}

// Execute dispatches cmd.
func (s *CommandService) Execute(ctx context.Context, cmd Command) (interface{}, error) {
	if cmd == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "command is required")
	}
	return cmd.Accept(ctx, s)
}

func (s *CommandService) VisitCreateBlock(ctx context.Context, cmd CreateBlockCommand) (interface{}, error) {
	return s.blocks.Create(ctx, cmd.Actor.UserID, cmd.Request)
}

func (s *CommandService) VisitMoveBlock(ctx context.Context, cmd MoveBlockCommand) (interface{}, error) {
	return s.blocks.Move(ctx, cmd.Actor.UserID, cmd.Request)
}

func (s *CommandService) VisitResizeBlock(ctx context.Context, cmd ResizeBlockCommand) (interface{}, error) {
	return s.blocks.Resize(ctx, cmd.Actor.UserID, cmd.Request)
}

func (s *CommandService) VisitCreateConstraint(ctx context.Context, cmd CreateConstraintCommand) (interface{}, error) {
	return s.constraints.Create(ctx, cmd.Actor.UserID, cmd.Request)
}

func (s *CommandService) VisitVote(ctx context.Context, cmd VoteCommand) (interface{}, error) {
	if cmd.RequestID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "requestId is required")
	}
	if cmd.Approve {
		return s.votes.RecordApproval(ctx, cmd.RequestID, cmd.Actor.UserID)
	}
	return s.votes.RecordRejection(ctx, cmd.RequestID, cmd.Actor.UserID)
}

func (s *CommandService) VisitTriggerWeeklyGeneration(ctx context.Context, cmd TriggerWeeklyGenerationCommand) (interface{}, error) {
	if cmd.Actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "weekly generation requires the ADMIN role")
	}
	applogger.FromContext(ctx, s.logger).Info("weekly generation requested", zap.String("user_id", cmd.Actor.UserID), zap.String("week_start", cmd.WeekStart))
	return s.weekly.Generate(ctx, cmd.WeekStart)
}
