package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/internal/models"
	"github.com/noah-isme/study-planner-api/internal/timegrid"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
	applogger "github.com/noah-isme/study-planner-api/pkg/logger"
)

type groupReader interface {
	GetByID(ctx context.Context, id string) (*models.StudyGroup, error)
	GetMembership(ctx context.Context, groupID, userID string) (*models.GroupMember, error)
	ListApprovedMembers(ctx context.Context, groupID string) ([]models.GroupMember, error)
	ListForUser(ctx context.Context, userID string) ([]models.StudyGroup, error)
}

type changeRequestStore interface {
	Create(ctx context.Context, req *models.ChangeRequest) error
	GetByID(ctx context.Context, id string) (*models.ChangeRequest, error)
	ListPendingByGroups(ctx context.Context, groupIDs []string) ([]models.ChangeRequest, error)
	RecordVote(ctx context.Context, vote *models.ChangeRequestVote) (bool, error)
	ListVotes(ctx context.Context, requestID string) ([]models.ChangeRequestVote, error)
	Resolve(ctx context.Context, id string, status models.ChangeRequestStatus, at time.Time) error
	MarkApplied(ctx context.Context, id string, at time.Time) error
}

type planStore interface {
	blockReader
	EnsurePlan(ctx context.Context, userID string, weekStart time.Time) (*models.WeeklyPlan, error)
	GetBlock(ctx context.Context, id string) (*models.ScheduleBlock, error)
	GetBlockWeek(ctx context.Context, blockID string) (time.Time, error)
	ListGroupMemberBlocks(ctx context.Context, groupID string, weekStart time.Time) ([]models.ScheduleBlock, error)
	ListGroupBlocks(ctx context.Context, groupID string, weekStart time.Time) ([]models.GroupPlanBlock, error)
	Apply(ctx context.Context, changes models.BlockChangeSet) error
}

type conflictChecker interface {
	Check(ctx context.Context, q ConflictQuery) ([]models.Conflict, error)
	CheckMembers(ctx context.Context, userIDs []string, q ConflictQuery) ([]models.Conflict, error)
}

type preferenceReinforcer interface {
	Reinforce(ctx context.Context, userID string, weekStart time.Time, courseNumber string, workType models.WorkType)
}

type notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

// ProposeChangeInput describes a mutation of a group session awaiting consensus.
type ProposeChangeInput struct {
	GroupID     string
	RequesterID string
	WeekStart   time.Time
	Type        models.ChangeRequestType
	// Original is nil when a new session is proposed.
	Original *timegrid.Window
	Proposed timegrid.Window
	Reason   string
}

// ConsensusService runs the approval workflow for group session changes. A change is applied
// to every approved member once all of them except the requester approve; one rejection
// closes it.
type ConsensusService struct {
	groups    groupReader
	requests  changeRequestStore
	plans     planStore
	conflicts conflictChecker
	prefs     preferenceReinforcer
	notifier  notifier
	metrics   *MetricsService
	grid      timegrid.Grid
	logger    *zap.Logger
	now       func() time.Time
}

// ConsensusServiceParams groups constructor dependencies.
type ConsensusServiceParams struct {
	Groups    groupReader
	Requests  changeRequestStore
	Plans     planStore
	Conflicts conflictChecker
	Prefs     preferenceReinforcer
	Notifier  notifier
	Metrics   *MetricsService
	Grid      timegrid.Grid
	Logger    *zap.Logger
}

// NewConsensusService constructs the service.
func NewConsensusService(params ConsensusServiceParams) *ConsensusService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	grid := params.Grid
	if grid.Validate() != nil {
		grid = timegrid.DefaultGrid
	}
	return &ConsensusService{
		groups:    params.Groups,
		requests:  params.Requests,
		plans:     params.Plans,
		conflicts: params.Conflicts,
		prefs:     params.Prefs,
		notifier:  params.Notifier,
		metrics:   params.Metrics,
		grid:      grid,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Propose records a change request after checking the proposed window against every approved
// member. When the requester is the only approved member the change is applied at once.
func (s *ConsensusService) Propose(ctx context.Context, in ProposeChangeInput) (*models.ChangeRequest, error) {
	if !s.grid.Fits(in.Proposed) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("proposed window %s is outside the planning grid", in.Proposed))
	}
	group, err := s.loadGroup(ctx, in.GroupID)
	if err != nil {
		return nil, err
	}
	if err := s.requireApprovedMember(ctx, group.ID, in.RequesterID); err != nil {
		return nil, err
	}
	members, err := s.memberIDs(ctx, group.ID)
	if err != nil {
		return nil, err
	}

	conflicts, err := s.conflicts.CheckMembers(ctx, members, s.memberQuery(group.ID, in.WeekStart, in.Proposed, in.Original))
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, conflictError(conflicts)
	}

	req := &models.ChangeRequest{
		GroupID:          group.ID,
		WeekStart:        in.WeekStart,
		Type:             in.Type,
		ProposedDay:      in.Proposed.Day,
		ProposedStart:    in.Proposed.Start,
		ProposedEnd:      in.Proposed.End,
		ProposedDuration: in.Proposed.Hours(),
		RequestedBy:      in.RequesterID,
		Reason:           in.Reason,
		Status:           models.ChangeRequestPending,
		CreatedAt:        s.now(),
	}
	if in.Original != nil {
		req.SetOriginal(*in.Original)
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, appErrors.Internal(err, "failed to create change request")
	}
	s.metrics.RecordChangeRequest(string(models.ChangeRequestPending))
	applogger.FromContext(ctx, s.logger).Info("group change requested",
		zap.String("request_id", req.ID),
		zap.String("group_id", group.ID),
		zap.String("requested_by", in.RequesterID),
		zap.String("proposed", in.Proposed.String()),
	)

	others := without(members, in.RequesterID)
	if len(others) == 0 {
		if _, err := s.finalizeApproved(ctx, req, group, members); err != nil {
			return nil, err
		}
		return req, nil
	}
	for _, member := range others {
		s.notify(ctx, models.Notification{
			UserID:  member,
			Type:    models.NotificationGroupChangeRequest,
			Title:   "Group meeting change request",
			Message: describeChange(req, group) + " Approval from all members required.",
			Link:    "/change-requests/" + req.ID,
		})
	}
	return req, nil
}

// RecordApproval registers memberID's approval and applies the change once every other
// approved member has approved. Approving twice is a no-op.
func (s *ConsensusService) RecordApproval(ctx context.Context, requestID, memberID string) (*dto.ChangeRequestView, error) {
	req, group, err := s.loadForVote(ctx, requestID, memberID)
	if err != nil {
		return nil, err
	}
	switch req.Status {
	case models.ChangeRequestApproved:
		return s.view(ctx, req, group)
	case models.ChangeRequestRejected:
		return nil, appErrors.Clone(appErrors.ErrFinalized, "change request was already rejected")
	}
	if req.RequestedBy == memberID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "requester cannot approve their own change request")
	}

	if _, err := s.requests.RecordVote(ctx, &models.ChangeRequestVote{
		RequestID: req.ID,
		UserID:    memberID,
		Decision:  models.VoteApprove,
		CreatedAt: s.now(),
	}); err != nil {
		return nil, appErrors.Internal(err, "failed to record vote")
	}

	members, err := s.memberIDs(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	votes, err := s.requests.ListVotes(ctx, req.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load votes")
	}
	if len(approvers(votes, members, req.RequestedBy)) >= len(members)-1 {
		if _, err := s.finalizeApproved(ctx, req, group, members); err != nil {
			return nil, err
		}
	}
	return s.view(ctx, req, group)
}

// RecordRejection closes the request as rejected. The requester may reject to withdraw.
func (s *ConsensusService) RecordRejection(ctx context.Context, requestID, memberID string) (*dto.ChangeRequestView, error) {
	req, group, err := s.loadForVote(ctx, requestID, memberID)
	if err != nil {
		return nil, err
	}
	switch req.Status {
	case models.ChangeRequestRejected:
		return s.view(ctx, req, group)
	case models.ChangeRequestApproved:
		return nil, appErrors.Clone(appErrors.ErrFinalized, "change request was already approved")
	}

	if _, err := s.requests.RecordVote(ctx, &models.ChangeRequestVote{
		RequestID: req.ID,
		UserID:    memberID,
		Decision:  models.VoteReject,
		CreatedAt: s.now(),
	}); err != nil {
		return nil, appErrors.Internal(err, "failed to record vote")
	}

	resolvedAt := s.now()
	if err := s.requests.Resolve(ctx, req.ID, models.ChangeRequestRejected, resolvedAt); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Internal(err, "failed to reject change request")
		}
		// Finalized concurrently; report whatever won.
		current, loadErr := s.requests.GetByID(ctx, req.ID)
		if loadErr != nil {
			return nil, appErrors.Internal(loadErr, "failed to reload change request")
		}
		if current.Status == models.ChangeRequestApproved {
			return nil, appErrors.Clone(appErrors.ErrFinalized, "change request was already approved")
		}
		return s.view(ctx, current, group)
	}
	req.Status = models.ChangeRequestRejected
	req.ResolvedAt = &resolvedAt
	s.metrics.RecordChangeRequest(string(models.ChangeRequestRejected))
	applogger.FromContext(ctx, s.logger).Info("group change rejected", zap.String("request_id", req.ID), zap.String("rejected_by", memberID))

	if memberID != req.RequestedBy {
		s.notify(ctx, models.Notification{
			UserID:  req.RequestedBy,
			Type:    models.NotificationGroupChangeRejected,
			Title:   "Group change rejected",
			Message: fmt.Sprintf("Your change request for %s was rejected.", group.Name),
			Link:    "/change-requests/" + req.ID,
		})
	}
	return s.view(ctx, req, group)
}

// ListPending returns pending requests across the user's groups.
func (s *ConsensusService) ListPending(ctx context.Context, userID string) ([]dto.ChangeRequestView, error) {
	groups, err := s.groups.ListForUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load study groups")
	}
	byID := make(map[string]*models.StudyGroup, len(groups))
	ids := make([]string, 0, len(groups))
	for i := range groups {
		byID[groups[i].ID] = &groups[i]
		ids = append(ids, groups[i].ID)
	}
	pending, err := s.requests.ListPendingByGroups(ctx, ids)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load change requests")
	}
	views := make([]dto.ChangeRequestView, 0, len(pending))
	for i := range pending {
		v, err := s.view(ctx, &pending[i], byID[pending[i].GroupID])
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, nil
}

// Get returns a single request visible to an approved member of its group.
func (s *ConsensusService) Get(ctx context.Context, requestID, userID string) (*dto.ChangeRequestView, error) {
	req, group, err := s.loadForVote(ctx, requestID, userID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, req, group)
}

// --- finalization ---

// finalizeApproved flips the request to approved and applies it. A conflict found on the
// re-check leaves the request approved but unapplied and tells the requester.
func (s *ConsensusService) finalizeApproved(ctx context.Context, req *models.ChangeRequest, group *models.StudyGroup, members []string) (bool, error) {
	resolvedAt := s.now()
	if err := s.requests.Resolve(ctx, req.ID, models.ChangeRequestApproved, resolvedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			applogger.FromContext(ctx, s.logger).Info("change request already finalized", zap.String("request_id", req.ID))
			return false, nil
		}
		return false, appErrors.Internal(err, "failed to approve change request")
	}
	req.Status = models.ChangeRequestApproved
	req.ResolvedAt = &resolvedAt
	s.metrics.RecordChangeRequest(string(models.ChangeRequestApproved))

	if err := s.apply(ctx, req, group, members); err != nil {
		applogger.FromContext(ctx, s.logger).Warn("approved change could not be applied", zap.String("request_id", req.ID), zap.Error(err))
		s.notify(ctx, models.Notification{
			UserID:  req.RequestedBy,
			Type:    models.NotificationGroupChangeApproved,
			Title:   "Group change approved but not applied",
			Message: fmt.Sprintf("Your change for %s was approved but could not be applied: %s", group.Name, appErrors.FromError(err).Message),
			Link:    "/change-requests/" + req.ID,
		})
		return false, nil
	}

	applogger.FromContext(ctx, s.logger).Info("group change applied", zap.String("request_id", req.ID), zap.Int("members", len(members)))
	s.notify(ctx, models.Notification{
		UserID:  req.RequestedBy,
		Type:    models.NotificationGroupChangeApproved,
		Title:   "Group change approved",
		Message: fmt.Sprintf("Your change for %s was approved by all members and applied.", group.Name),
		Link:    "/change-requests/" + req.ID,
	})
	return true, nil
}

func (s *ConsensusService) apply(ctx context.Context, req *models.ChangeRequest, group *models.StudyGroup, members []string) error {
	proposed := req.ProposedWindow()
	original := req.OriginalWindow()

	conflicts, err := s.conflicts.CheckMembers(ctx, members, s.memberQuery(group.ID, req.WeekStart, proposed, original))
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return conflictError(conflicts)
	}

	var changes models.BlockChangeSet
	if original != nil {
		memberBlocks, err := s.plans.ListGroupMemberBlocks(ctx, group.ID, req.WeekStart)
		if err != nil {
			return appErrors.Internal(err, "failed to load group member blocks")
		}
		for _, b := range memberBlocks {
			if original.Contains(b.Window()) {
				changes.RemoveBlockIDs = append(changes.RemoveBlockIDs, b.ID)
			}
		}
		groupBlocks, err := s.plans.ListGroupBlocks(ctx, group.ID, req.WeekStart)
		if err != nil {
			return appErrors.Internal(err, "failed to load group blocks")
		}
		for _, b := range groupBlocks {
			if original.Contains(b.Window()) {
				changes.RemoveGroupBlockIDs = append(changes.RemoveGroupBlockIDs, b.ID)
			}
		}
	}

	course := courseRef{Number: group.CourseNumber, Name: group.CourseName}
	groupID := group.ID
	for _, member := range members {
		plan, err := s.plans.EnsurePlan(ctx, member, req.WeekStart)
		if err != nil {
			return appErrors.Internal(err, "failed to prepare member plan")
		}
		changes.AddBlocks = append(changes.AddBlocks, hourlyBlocks(plan, course, models.WorkTypeGroup, &groupID, proposed, models.BlockSourceManual)...)
	}
	for _, slot := range timegrid.SlotsOf(proposed) {
		w := slot.Window()
		changes.AddGroupBlocks = append(changes.AddGroupBlocks, models.GroupPlanBlock{
			GroupID:      group.ID,
			WeekStart:    req.WeekStart,
			CourseNumber: group.CourseNumber,
			Day:          w.Day,
			StartTime:    w.Start,
			EndTime:      w.End,
			CreatedBy:    req.RequestedBy,
		})
	}

	if err := s.plans.Apply(ctx, changes); err != nil {
		if errors.Is(err, models.ErrStaleWrite) {
			return appErrors.Clone(appErrors.ErrConflict, "group session changed concurrently")
		}
		return appErrors.Internal(err, "failed to apply group change")
	}
	s.metrics.RecordBlocksWritten(string(models.BlockSourceManual), len(changes.AddBlocks))

	appliedAt := s.now()
	if err := s.requests.MarkApplied(ctx, req.ID, appliedAt); err != nil {
		applogger.FromContext(ctx, s.logger).Warn("failed to mark change request applied", zap.String("request_id", req.ID), zap.Error(err))
	} else {
		req.AppliedAt = &appliedAt
	}
	for _, member := range members {
		s.prefs.Reinforce(ctx, member, req.WeekStart, group.CourseNumber, models.WorkTypeGroup)
	}
	return nil
}

// --- helpers ---

func (s *ConsensusService) memberQuery(groupID string, weekStart time.Time, proposed timegrid.Window, original *timegrid.Window) ConflictQuery {
	q := ConflictQuery{WeekStart: weekStart, Window: proposed}
	if original != nil {
		q.Exclusions = []timegrid.Window{*original}
		q.ExclusionGroupID = groupID
	}
	return q
}

func (s *ConsensusService) loadGroup(ctx context.Context, groupID string) (*models.StudyGroup, error) {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "study group not found")
		}
		return nil, appErrors.Internal(err, "failed to load study group")
	}
	return group, nil
}

func (s *ConsensusService) loadForVote(ctx context.Context, requestID, memberID string) (*models.ChangeRequest, *models.StudyGroup, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "change request not found")
		}
		return nil, nil, appErrors.Internal(err, "failed to load change request")
	}
	group, err := s.loadGroup(ctx, req.GroupID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.requireApprovedMember(ctx, group.ID, memberID); err != nil {
		return nil, nil, err
	}
	return req, group, nil
}

func (s *ConsensusService) requireApprovedMember(ctx context.Context, groupID, userID string) error {
	member, err := s.groups.GetMembership(ctx, groupID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrForbidden, "not a member of this study group")
		}
		return appErrors.Internal(err, "failed to load group membership")
	}
	if !member.Approved() {
		return appErrors.Clone(appErrors.ErrForbidden, "group membership is pending approval")
	}
	return nil
}

func (s *ConsensusService) memberIDs(ctx context.Context, groupID string) ([]string, error) {
	members, err := s.groups.ListApprovedMembers(ctx, groupID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load group members")
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return ids, nil
}

func (s *ConsensusService) view(ctx context.Context, req *models.ChangeRequest, group *models.StudyGroup) (*dto.ChangeRequestView, error) {
	if group == nil {
		loaded, err := s.loadGroup(ctx, req.GroupID)
		if err != nil {
			return nil, err
		}
		group = loaded
	}
	votes, err := s.requests.ListVotes(ctx, req.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load votes")
	}
	members, err := s.memberIDs(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	approved := approvers(votes, members, req.RequestedBy)
	awaiting := make([]string, 0)
	if req.Status == models.ChangeRequestPending {
		for _, m := range without(members, req.RequestedBy) {
			if _, ok := approved[m]; !ok {
				awaiting = append(awaiting, m)
			}
		}
	}
	approvedBy := make([]string, 0, len(approved))
	for id := range approved {
		approvedBy = append(approvedBy, id)
	}
	sort.Strings(approvedBy)
	return &dto.ChangeRequestView{
		ChangeRequest:    *req,
		GroupName:        group.Name,
		ApprovedBy:       approvedBy,
		AwaitingApproval: awaiting,
		Applied:          req.AppliedAt != nil,
	}, nil
}

func (s *ConsensusService) notify(ctx context.Context, n models.Notification) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, n)
}

// approvers returns current approved members, other than the requester, who voted approve.
func approvers(votes []models.ChangeRequestVote, members []string, requester string) map[string]struct{} {
	isMember := make(map[string]struct{}, len(members))
	for _, m := range members {
		isMember[m] = struct{}{}
	}
	out := make(map[string]struct{})
	for _, v := range votes {
		if v.Decision != models.VoteApprove || v.UserID == requester {
			continue
		}
		if _, ok := isMember[v.UserID]; ok {
			out[v.UserID] = struct{}{}
		}
	}
	return out
}

func without(ids []string, drop string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

func describeChange(req *models.ChangeRequest, group *models.StudyGroup) string {
	proposed := req.ProposedWindow()
	original := req.OriginalWindow()
	switch {
	case original == nil:
		return fmt.Sprintf("A member of %s requested a new %s meeting on %s (%d hours).", group.Name, group.CourseName, proposed, req.ProposedDuration)
	case req.Type == models.ChangeRequestResize:
		return fmt.Sprintf("A member of %s requested to change the %s meeting on %s to %d hours.", group.Name, group.CourseName, original, req.ProposedDuration)
	default:
		return fmt.Sprintf("A member of %s requested to move the %s meeting from %s to %s.", group.Name, group.CourseName, original, proposed)
	}
}
