package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/internal/models"
	"github.com/noah-isme/study-planner-api/internal/timegrid"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
	applogger "github.com/noah-isme/study-planner-api/pkg/logger"
)

type courseReader interface {
	GetCourse(ctx context.Context, courseNumber string) (*models.Course, error)
	FindEnrollmentByName(ctx context.Context, userID, name string) (*models.Enrollment, error)
	FindCourseByName(ctx context.Context, name string) (*models.Course, error)
}

type changeProposer interface {
	Propose(ctx context.Context, in ProposeChangeInput) (*models.ChangeRequest, error)
}

type membershipReader interface {
	ListForUser(ctx context.Context, userID string) ([]models.StudyGroup, error)
}

// BlockServiceConfig tunes the block mutator.
type BlockServiceConfig struct {
	Grid timegrid.Grid
}

// BlockService creates, moves and resizes study blocks. Personal changes are written
// immediately; changes to group sessions become change requests.
type BlockService struct {
	plans     planStore
	courses   courseReader
	groups    membershipReader
	conflicts conflictChecker
	consensus changeProposer
	prefs     preferenceReinforcer
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       BlockServiceConfig
	now       func() time.Time
}

// BlockServiceParams groups constructor dependencies.
type BlockServiceParams struct {
	Plans     planStore
	Courses   courseReader
	Groups    membershipReader
	Conflicts conflictChecker
	Consensus changeProposer
	Prefs     preferenceReinforcer
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
	Config    BlockServiceConfig
}

// NewBlockService constructs the mutator.
func NewBlockService(params BlockServiceParams) *BlockService {
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := params.Config
	if cfg.Grid.Validate() != nil {
		cfg.Grid = timegrid.DefaultGrid
	}
	return &BlockService{
		plans:     params.Plans,
		courses:   params.Courses,
		groups:    params.Groups,
		conflicts: params.Conflicts,
		consensus: params.Consensus,
		prefs:     params.Prefs,
		metrics:   params.Metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create books a new run of one-hour blocks. The duration is clipped at the end of the day.
func (s *BlockService) Create(ctx context.Context, actorID string, req dto.CreateBlockRequest) (*dto.BlockMutationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid block payload")
	}
	weekStart, err := s.resolveWeek(req.WeekStart)
	if err != nil {
		return nil, err
	}
	start, err := s.parseStart(req.StartTime)
	if err != nil {
		return nil, err
	}
	window := s.cfg.Grid.Span(timegrid.Day(*req.Day), start, req.DurationHours)

	course, err := s.resolveCourse(ctx, actorID, req.CourseNumber, req.CourseName)
	if err != nil {
		return nil, err
	}

	workType := models.WorkType(req.WorkType)
	if workType == "" {
		workType = models.WorkTypePersonal
		if req.GroupID != "" {
			workType = models.WorkTypeGroup
		}
	}
	if workType == models.WorkTypeGroup {
		groupID, err := s.resolveGroupID(ctx, actorID, req.GroupID, course.Number)
		if err != nil {
			return nil, err
		}
		return s.propose(ctx, ProposeChangeInput{
			GroupID:     groupID,
			RequesterID: actorID,
			WeekStart:   weekStart,
			Type:        models.ChangeRequestMove,
			Proposed:    window,
			Reason:      req.Reason,
		})
	}

	conflicts, err := s.conflicts.Check(ctx, ConflictQuery{UserID: actorID, WeekStart: weekStart, Window: window})
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, conflictError(conflicts)
	}

	plan, err := s.plans.EnsurePlan(ctx, actorID, weekStart)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to prepare weekly plan")
	}
	blocks := hourlyBlocks(plan, course, models.WorkTypePersonal, nil, window, models.BlockSourceManual)
	if err := s.commit(ctx, models.BlockChangeSet{AddBlocks: blocks}); err != nil {
		return nil, err
	}
	s.prefs.Reinforce(ctx, actorID, weekStart, course.Number, models.WorkTypePersonal)
	applogger.FromContext(ctx, s.logger).Info("study block created", zap.String("user_id", actorID), zap.String("course_number", course.Number), zap.String("window", window.String()))

	return &dto.BlockMutationResponse{
		Status:    dto.MutationApplied,
		WeekStart: timegrid.FormatWeek(weekStart),
		Window:    window,
		Blocks:    blocks,
	}, nil
}

// Move relocates the consecutive run starting at the selected block, or the part of it
// overlapping the requested sub-range, keeping its duration.
func (s *BlockService) Move(ctx context.Context, actorID string, req dto.MoveBlockRequest) (*dto.BlockMutationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid move payload")
	}
	located, weekStart, err := s.locate(ctx, actorID, req.BlockSelector)
	if err != nil {
		return nil, err
	}
	run, err := s.runFrom(ctx, actorID, weekStart, *located)
	if err != nil {
		return nil, err
	}

	moving := run
	if req.SubRangeStart != "" {
		sub, err := parseRange(located.Day, req.SubRangeStart, req.SubRangeEnd)
		if err != nil {
			return nil, err
		}
		moving = make([]models.ScheduleBlock, 0, len(run))
		for _, b := range run {
			if b.Window().Overlaps(sub) {
				moving = append(moving, b)
			}
		}
		if len(moving) == 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("sub-range %s does not overlap the block", sub.Label()))
		}
	}
	origin := spanOf(moving)

	newStart, err := s.parseStart(req.NewStartTime)
	if err != nil {
		return nil, err
	}
	hours := 0
	for _, b := range moving {
		hours += b.Window().Hours()
	}
	dest := timegrid.Window{Day: timegrid.Day(*req.NewDay), Start: newStart, End: newStart.Add(hours)}
	if !s.cfg.Grid.Fits(dest) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("moved block would end after %s", s.cfg.Grid.Close()))
	}

	if err := requireGroup(*located); err != nil {
		return nil, err
	}
	if located.WorkType == models.WorkTypeGroup {
		return s.propose(ctx, ProposeChangeInput{
			GroupID:     *located.GroupID,
			RequesterID: actorID,
			WeekStart:   weekStart,
			Type:        models.ChangeRequestMove,
			Original:    &origin,
			Proposed:    dest,
			Reason:      req.Reason,
		})
	}

	conflicts, err := s.conflicts.Check(ctx, ConflictQuery{
		UserID:     actorID,
		WeekStart:  weekStart,
		Window:     dest,
		Exclusions: []timegrid.Window{origin},
	})
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, conflictError(conflicts)
	}

	plan := &models.WeeklyPlan{ID: located.PlanID, UserID: actorID, WeekStart: weekStart}
	course := courseRef{Number: located.CourseNumber, Name: located.CourseName}
	blocks := hourlyBlocks(plan, course, located.WorkType, nil, dest, models.BlockSourceManual)
	removed := blockIDs(moving)
	if err := s.commit(ctx, models.BlockChangeSet{RemoveBlockIDs: removed, AddBlocks: blocks}); err != nil {
		return nil, err
	}
	s.prefs.Reinforce(ctx, actorID, weekStart, course.Number, located.WorkType)
	applogger.FromContext(ctx, s.logger).Info("study block moved", zap.String("user_id", actorID), zap.String("from", origin.String()), zap.String("to", dest.String()))

	return &dto.BlockMutationResponse{
		Status:     dto.MutationApplied,
		WeekStart:  timegrid.FormatWeek(weekStart),
		Window:     dest,
		Blocks:     blocks,
		RemovedIDs: removed,
	}, nil
}

// Resize changes the length of the consecutive run starting at the selected block. Only the
// added span is checked for conflicts; blocks of the same course and work type inside it merge
// into the resized run. Resizing to the current length writes nothing.
func (s *BlockService) Resize(ctx context.Context, actorID string, req dto.ResizeBlockRequest) (*dto.BlockMutationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resize payload")
	}
	located, weekStart, err := s.locate(ctx, actorID, req.BlockSelector)
	if err != nil {
		return nil, err
	}
	if err := requireGroup(*located); err != nil {
		return nil, err
	}
	dayBlocks, err := s.plans.ListBlocksByDay(ctx, actorID, weekStart, located.Day)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load blocks")
	}
	run := consecutiveRun(dayBlocks, *located)
	origin := spanOf(run)
	target := timegrid.Window{Day: origin.Day, Start: origin.Start, End: origin.Start.Add(req.NewDurationHours)}
	if !s.cfg.Grid.Fits(target) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("resized block would end after %s", s.cfg.Grid.Close()))
	}

	if target == origin {
		return &dto.BlockMutationResponse{
			Status:    dto.MutationApplied,
			WeekStart: timegrid.FormatWeek(weekStart),
			Window:    origin,
			Blocks:    run,
		}, nil
	}

	if located.WorkType == models.WorkTypeGroup {
		return s.propose(ctx, ProposeChangeInput{
			GroupID:     *located.GroupID,
			RequesterID: actorID,
			WeekStart:   weekStart,
			Type:        models.ChangeRequestResize,
			Original:    &origin,
			Proposed:    target,
			Reason:      req.Reason,
		})
	}

	removed := blockIDs(run)
	if target.End > origin.End {
		added := timegrid.Window{Day: origin.Day, Start: origin.End, End: target.End}
		conflicts, err := s.conflicts.Check(ctx, ConflictQuery{
			UserID:           actorID,
			WeekStart:        weekStart,
			Window:           added,
			CourseNumber:     located.CourseNumber,
			WorkType:         located.WorkType,
			IgnoreSameCourse: true,
		})
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 {
			return nil, conflictError(conflicts)
		}
		for _, b := range absorbed(dayBlocks, run, added) {
			removed = append(removed, b.ID)
			if b.EndTime > target.End {
				target.End = b.EndTime
			}
		}
	}

	plan := &models.WeeklyPlan{ID: located.PlanID, UserID: actorID, WeekStart: weekStart}
	course := courseRef{Number: located.CourseNumber, Name: located.CourseName}
	blocks := hourlyBlocks(plan, course, located.WorkType, nil, target, models.BlockSourceManual)
	if err := s.commit(ctx, models.BlockChangeSet{RemoveBlockIDs: removed, AddBlocks: blocks}); err != nil {
		return nil, err
	}
	s.prefs.Reinforce(ctx, actorID, weekStart, course.Number, located.WorkType)
	applogger.FromContext(ctx, s.logger).Info("study block resized", zap.String("user_id", actorID), zap.String("from", origin.String()), zap.String("to", target.String()))

	return &dto.BlockMutationResponse{
		Status:     dto.MutationApplied,
		WeekStart:  timegrid.FormatWeek(weekStart),
		Window:     target,
		Blocks:     blocks,
		RemovedIDs: removed,
	}, nil
}

// --- helpers ---

func (s *BlockService) propose(ctx context.Context, in ProposeChangeInput) (*dto.BlockMutationResponse, error) {
	if s.consensus == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "group changes are not available")
	}
	req, err := s.consensus.Propose(ctx, in)
	if err != nil {
		return nil, err
	}
	status := dto.MutationPendingApproval
	if req.Status == models.ChangeRequestApproved {
		status = dto.MutationApplied
	}
	return &dto.BlockMutationResponse{
		Status:        status,
		WeekStart:     timegrid.FormatWeek(in.WeekStart),
		Window:        in.Proposed,
		ChangeRequest: req,
	}, nil
}

func (s *BlockService) commit(ctx context.Context, changes models.BlockChangeSet) error {
	if err := s.plans.Apply(ctx, changes); err != nil {
		if errors.Is(err, models.ErrStaleWrite) {
			return appErrors.Clone(appErrors.ErrConflict, "schedule changed concurrently, reload and retry")
		}
		return appErrors.Internal(err, "failed to save blocks")
	}
	s.metrics.RecordBlocksWritten(string(models.BlockSourceManual), len(changes.AddBlocks))
	return nil
}

func (s *BlockService) resolveWeek(raw string) (time.Time, error) {
	week := timegrid.WeekStart(s.now())
	if raw != "" {
		parsed, err := timegrid.ParseWeek(raw)
		if err != nil {
			return time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid week start")
		}
		week = parsed
	}
	return week, nil
}

func (s *BlockService) parseStart(raw string) (timegrid.Clock, error) {
	start, err := s.cfg.Grid.ParseStart(raw)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status,
			fmt.Sprintf("start time must fall between %s and %s", s.cfg.Grid.Open(), s.cfg.Grid.Close()))
	}
	return start, nil
}

// resolveCourse prefers the user's enrollments and falls back to the catalog.
func (s *BlockService) resolveCourse(ctx context.Context, userID, number, name string) (courseRef, error) {
	query := strings.TrimSpace(number)
	if query == "" {
		query = strings.TrimSpace(name)
	}
	if enrollment, err := s.courses.FindEnrollmentByName(ctx, userID, query); err == nil {
		return courseRef{Number: enrollment.CourseNumber, Name: enrollment.CourseName}, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return courseRef{}, appErrors.Internal(err, "failed to look up enrollment")
	}

	var (
		course *models.Course
		err    error
	)
	if number != "" {
		course, err = s.courses.GetCourse(ctx, query)
	} else {
		course, err = s.courses.FindCourseByName(ctx, query)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return courseRef{}, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("course %q not found", query))
		}
		return courseRef{}, appErrors.Internal(err, "failed to look up course")
	}
	return courseRef{Number: course.CourseNumber, Name: course.CourseName}, nil
}

func (s *BlockService) resolveGroupID(ctx context.Context, userID, groupID, courseNumber string) (string, error) {
	if groupID != "" {
		return groupID, nil
	}
	groups, err := s.groups.ListForUser(ctx, userID)
	if err != nil {
		return "", appErrors.Internal(err, "failed to load study groups")
	}
	for _, g := range groups {
		if g.CourseNumber == courseNumber {
			return g.ID, nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no study group for course %s", courseNumber))
}

// locate finds the selected block by id, or by course, day and start time. A start time
// inside a block matches when no block starts exactly there.
func (s *BlockService) locate(ctx context.Context, actorID string, sel dto.BlockSelector) (*models.ScheduleBlock, time.Time, error) {
	if sel.BlockID != "" {
		block, err := s.plans.GetBlock(ctx, sel.BlockID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "block not found")
			}
			return nil, time.Time{}, appErrors.Internal(err, "failed to load block")
		}
		if block.UserID != actorID {
			return nil, time.Time{}, appErrors.Clone(appErrors.ErrForbidden, "block belongs to another user")
		}
		week, err := s.plans.GetBlockWeek(ctx, block.ID)
		if err != nil {
			return nil, time.Time{}, appErrors.Internal(err, "failed to load block week")
		}
		return block, timegrid.WeekStart(week), nil
	}

	course := strings.TrimSpace(sel.CourseNumber)
	if course == "" {
		course = strings.TrimSpace(sel.CourseName)
	}
	if course == "" || sel.Day == nil || sel.StartTime == "" {
		return nil, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "select a block by id or by course, day and start time")
	}
	weekStart, err := s.resolveWeek(sel.WeekStart)
	if err != nil {
		return nil, time.Time{}, err
	}
	at, err := timegrid.ParseClock(sel.StartTime)
	if err != nil {
		return nil, time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid start time")
	}
	day := timegrid.Day(*sel.Day)
	blocks, err := s.plans.ListBlocksByDay(ctx, actorID, weekStart, day)
	if err != nil {
		return nil, time.Time{}, appErrors.Internal(err, "failed to load blocks")
	}

	var inside *models.ScheduleBlock
	for i := range blocks {
		b := &blocks[i]
		if !matchesCourse(*b, course) {
			continue
		}
		if b.StartTime == at {
			return b, weekStart, nil
		}
		if inside == nil && b.StartTime <= at && at < b.EndTime {
			inside = b
		}
	}
	if inside != nil {
		return inside, weekStart, nil
	}
	return nil, time.Time{}, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no %s block on %s at %s", course, day, at))
}

// runFrom returns the block and every following block of the same course, work type and
// group that starts exactly where the previous one ends.
func (s *BlockService) runFrom(ctx context.Context, userID string, weekStart time.Time, first models.ScheduleBlock) ([]models.ScheduleBlock, error) {
	blocks, err := s.plans.ListBlocksByDay(ctx, userID, weekStart, first.Day)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load blocks")
	}
	return consecutiveRun(blocks, first), nil
}

func consecutiveRun(dayBlocks []models.ScheduleBlock, first models.ScheduleBlock) []models.ScheduleBlock {
	byStart := make(map[timegrid.Clock]models.ScheduleBlock, len(dayBlocks))
	for _, b := range dayBlocks {
		if b.ID != first.ID && b.SameKind(first) && sameGroup(b, first) {
			byStart[b.StartTime] = b
		}
	}
	run := []models.ScheduleBlock{first}
	for end := first.EndTime; ; {
		next, ok := byStart[end]
		if !ok {
			break
		}
		run = append(run, next)
		end = next.EndTime
	}
	return run
}

// absorbed returns the blocks outside run that share its kind and group and overlap span.
func absorbed(dayBlocks, run []models.ScheduleBlock, span timegrid.Window) []models.ScheduleBlock {
	inRun := make(map[string]struct{}, len(run))
	for _, b := range run {
		inRun[b.ID] = struct{}{}
	}
	var out []models.ScheduleBlock
	for _, b := range dayBlocks {
		if _, ok := inRun[b.ID]; ok {
			continue
		}
		if b.SameKind(run[0]) && sameGroup(b, run[0]) && b.Window().Overlaps(span) {
			out = append(out, b)
		}
	}
	return out
}

// requireGroup rejects group blocks that lost their study group; they cannot go through
// consensus and must not be edited as personal time.
func requireGroup(b models.ScheduleBlock) error {
	if b.WorkType == models.WorkTypeGroup && b.GroupID == nil {
		return appErrors.Clone(appErrors.ErrValidation, "group block has no study group")
	}
	return nil
}

func sameGroup(a, b models.ScheduleBlock) bool {
	if a.GroupID == nil || b.GroupID == nil {
		return a.GroupID == nil && b.GroupID == nil
	}
	return *a.GroupID == *b.GroupID
}

func matchesCourse(b models.ScheduleBlock, query string) bool {
	if strings.EqualFold(b.CourseNumber, query) {
		return true
	}
	return b.CourseName != "" && strings.Contains(strings.ToLower(b.CourseName), strings.ToLower(query))
}

func parseRange(day timegrid.Day, rawStart, rawEnd string) (timegrid.Window, error) {
	start, err := timegrid.ParseClock(rawStart)
	if err != nil {
		return timegrid.Window{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid sub-range start")
	}
	end, err := timegrid.ParseClock(rawEnd)
	if err != nil {
		return timegrid.Window{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid sub-range end")
	}
	w := timegrid.Window{Day: day, Start: start, End: end}
	if err := w.Validate(); err != nil {
		return timegrid.Window{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid sub-range")
	}
	return w, nil
}

// spanOf returns the window from the earliest start to the latest end of blocks on one day.
func spanOf(blocks []models.ScheduleBlock) timegrid.Window {
	sorted := append([]models.ScheduleBlock(nil), blocks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartTime < sorted[j].StartTime })
	w := sorted[0].Window()
	for _, b := range sorted[1:] {
		if b.EndTime > w.End {
			w.End = b.EndTime
		}
	}
	return w
}

func blockIDs(blocks []models.ScheduleBlock) []string {
	ids := make([]string, 0, len(blocks))
	for _, b := range blocks {
		ids = append(ids, b.ID)
	}
	return ids
}

// courseRef names the course a block is booked for.
type courseRef struct {
	Number string
	Name   string
}

// hourlyBlocks splits w into one-hour blocks of plan.
func hourlyBlocks(plan *models.WeeklyPlan, course courseRef, workType models.WorkType, groupID *string, w timegrid.Window, source models.BlockSource) []models.ScheduleBlock {
	slots := timegrid.SlotsOf(w)
	blocks := make([]models.ScheduleBlock, 0, len(slots))
	for _, slot := range slots {
		sw := slot.Window()
		blocks = append(blocks, models.ScheduleBlock{
			ID:           uuid.NewString(),
			PlanID:       plan.ID,
			UserID:       plan.UserID,
			CourseNumber: course.Number,
			CourseName:   course.Name,
			WorkType:     workType,
			GroupID:      groupID,
			Day:          sw.Day,
			StartTime:    sw.Start,
			EndTime:      sw.End,
			Source:       source,
		})
	}
	return blocks
}
