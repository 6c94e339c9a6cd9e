package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/internal/models"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
)

type recordingEngine struct {
	calls []string
}

func (r *recordingEngine) Create(_ context.Context, actorID string, _ dto.CreateBlockRequest) (*dto.BlockMutationResponse, error) {
	r.calls = append(r.calls, "create:"+actorID)
	return &dto.BlockMutationResponse{Status: dto.MutationApplied}, nil
}

func (r *recordingEngine) Move(_ context.Context, actorID string, _ dto.MoveBlockRequest) (*dto.BlockMutationResponse, error) {
	r.calls = append(r.calls, "move:"+actorID)
	return &dto.BlockMutationResponse{Status: dto.MutationApplied}, nil
}

func (r *recordingEngine) Resize(_ context.Context, actorID string, _ dto.ResizeBlockRequest) (*dto.BlockMutationResponse, error) {
	r.calls = append(r.calls, "resize:"+actorID)
	return &dto.BlockMutationResponse{Status: dto.MutationApplied}, nil
}

func (r *recordingEngine) RecordApproval(_ context.Context, requestID, memberID string) (*dto.ChangeRequestView, error) {
	r.calls = append(r.calls, "approve:"+requestID+":"+memberID)
	return &dto.ChangeRequestView{}, nil
}

func (r *recordingEngine) RecordRejection(_ context.Context, requestID, memberID string) (*dto.ChangeRequestView, error) {
	r.calls = append(r.calls, "reject:"+requestID+":"+memberID)
	return &dto.ChangeRequestView{}, nil
}

func (r *recordingEngine) Generate(_ context.Context, rawWeek string) (*dto.WeeklyRunReport, error) {
	r.calls = append(r.calls, "generate:"+rawWeek)
	return &dto.WeeklyRunReport{WeekStart: rawWeek}, nil
}

type recordingConstraints struct {
	recordingEngine
}

func (r *recordingConstraints) Create(_ context.Context, userID string, _ dto.CreateConstraintRequest) (*dto.ConstraintResponse, error) {
	r.calls = append(r.calls, "constraint:"+userID)
	return &dto.ConstraintResponse{}, nil
}

func TestCommandServiceDispatchesEveryCommand(t *testing.T) {
	engine := &recordingEngine{}
	constraints := &recordingConstraints{}
	svc := NewCommandService(engine, constraints, engine, engine, zap.NewNop())
	student := Actor{UserID: "u1", Role: models.RoleStudent}
	admin := Actor{UserID: "root", Role: models.RoleAdmin}
	ctx := context.Background()

	commands := []Command{
		CreateBlockCommand{Actor: student},
		MoveBlockCommand{Actor: student},
		ResizeBlockCommand{Actor: student},
		VoteCommand{Actor: student, RequestID: "r1", Approve: true},
		VoteCommand{Actor: student, RequestID: "r2"},
		TriggerWeeklyGenerationCommand{Actor: admin, WeekStart: "2026-05-03"},
	}
	for _, cmd := range commands {
		out, err := svc.Execute(ctx, cmd)
		require.NoError(t, err)
		assert.NotNil(t, out)
	}
	_, err := svc.Execute(ctx, CreateConstraintCommand{Actor: student})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"create:u1", "move:u1", "resize:u1", "approve:r1:u1", "reject:r2:u1", "generate:2026-05-03",
	}, engine.calls)
	assert.Equal(t, []string{"constraint:u1"}, constraints.calls)
}

func TestCommandServiceGuards(t *testing.T) {
	engine := &recordingEngine{}
	svc := NewCommandService(engine, &recordingConstraints{}, engine, engine, nil)
	ctx := context.Background()

	_, err := svc.Execute(ctx, nil)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = svc.Execute(ctx, TriggerWeeklyGenerationCommand{Actor: Actor{UserID: "u1", Role: models.RoleStudent}, WeekStart: "2026-05-03"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))

	_, err = svc.Execute(ctx, VoteCommand{Actor: Actor{UserID: "u1"}})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
	assert.Empty(t, engine.calls)
}
