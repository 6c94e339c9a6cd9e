package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/internal/models"
	"github.com/noah-isme/study-planner-api/internal/timegrid"
	"github.com/noah-isme/study-planner-api/pkg/cache"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
)

const weeklyRunLockKey = "weekly-generation"

type weeklyPlanStore interface {
	EnsurePlan(ctx context.Context, userID string, weekStart time.Time) (*models.WeeklyPlan, error)
	Apply(ctx context.Context, changes models.BlockChangeSet) error
	DeleteWeek(ctx context.Context, weekStart time.Time) (models.WeekCleanupResult, error)
}

type occupancyReader interface {
	Occupied(ctx context.Context, userID string, weekStart time.Time, grid timegrid.Grid) (slotSet, error)
}

type enrollmentReader interface {
	GetCourse(ctx context.Context, courseNumber string) (*models.Course, error)
	ListActiveEnrollments(ctx context.Context, userID, term string) ([]models.Enrollment, error)
	ListActiveUsers(ctx context.Context, term string) ([]string, error)
}

type eligibleGroupReader interface {
	ListEligible(ctx context.Context, term string) ([]models.StudyGroup, error)
	ListEligibleMembers(ctx context.Context, groupID, term string) ([]string, error)
}

type preferenceReader interface {
	Get(ctx context.Context, userID, courseNumber string) (*models.CoursePreference, error)
	ListByUser(ctx context.Context, userID string) ([]models.CoursePreference, error)
	GetStudyPreference(ctx context.Context, userID string) (*models.StudyPreference, error)
}

type quotaSeeder interface {
	DefaultQuota(creditPoints float64) (personal, group int)
	SeedDefaults(ctx context.Context, enrollments []models.Enrollment) (int, error)
}

// WeeklyPlannerConfig tunes weekly generation.
type WeeklyPlannerConfig struct {
	Grid       timegrid.Grid
	MinWeek    time.Time
	ActiveTerm string
	Workers    int
	LockTTL    time.Duration
	RunTimeout time.Duration
}

// WeeklyPlannerService regenerates every plan of a week: it wipes the week, schedules
// synchronised group sessions, then fills each user's personal study hours.
type WeeklyPlannerService struct {
	plans     weeklyPlanStore
	occupancy occupancyReader
	courses   enrollmentReader
	groups    eligibleGroupReader
	prefs     preferenceReader
	seeder    quotaSeeder
	optimizer SlotOptimizer
	fallback  SlotOptimizer
	locker    cache.Locker
	notifier  notifier
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       WeeklyPlannerConfig
	now       func() time.Time
}

// WeeklyPlannerParams groups constructor dependencies. Optimizer may be nil, in which case
// only the deterministic fallback is used.
type WeeklyPlannerParams struct {
	Plans     weeklyPlanStore
	Occupancy occupancyReader
	Courses   enrollmentReader
	Groups    eligibleGroupReader
	Prefs     preferenceReader
	Seeder    quotaSeeder
	Optimizer SlotOptimizer
	Locker    cache.Locker
	Notifier  notifier
	Metrics   *MetricsService
	Logger    *zap.Logger
	Config    WeeklyPlannerConfig
}

// NewWeeklyPlannerService constructs the planner.
func NewWeeklyPlannerService(params WeeklyPlannerParams) *WeeklyPlannerService {
	cfg := params.Config
	if cfg.Grid.Validate() != nil {
		cfg.Grid = timegrid.DefaultGrid
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 25 * time.Minute
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	locker := params.Locker
	if locker == nil {
		locker = cache.NewLocalLocker()
	}
	return &WeeklyPlannerService{
		plans:     params.Plans,
		occupancy: params.Occupancy,
		courses:   params.Courses,
		groups:    params.Groups,
		prefs:     params.Prefs,
		seeder:    params.Seeder,
		optimizer: params.Optimizer,
		fallback:  GreedyOptimizer{},
		locker:    locker,
		notifier:  params.Notifier,
		metrics:   params.Metrics,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Generate parses a week reference and runs generation for it.
func (s *WeeklyPlannerService) Generate(ctx context.Context, rawWeek string) (*dto.WeeklyRunReport, error) {
	week, err := timegrid.ParseWeek(rawWeek)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid week start")
	}
	return s.Run(ctx, week)
}

// NextWeek returns the Sunday after the week containing now; the scheduled job plans it.
func (s *WeeklyPlannerService) NextWeek() time.Time {
	return timegrid.WeekStart(s.now()).AddDate(0, 0, 7)
}

// Run regenerates the week containing weekStart. Only one run may execute at a time; a
// concurrent call fails with ErrBusy. Failures of single groups or users are recorded in the
// report and do not stop the run.
func (s *WeeklyPlannerService) Run(ctx context.Context, weekStart time.Time) (*dto.WeeklyRunReport, error) {
	week := timegrid.WeekStart(weekStart)
	if !s.cfg.MinWeek.IsZero() && week.Before(s.cfg.MinWeek) {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("week %s is before the planning cutoff %s", timegrid.FormatWeek(week), s.cfg.MinWeek.Format(timegrid.DateLayout)))
	}

	release, err := s.locker.TryLock(ctx, weeklyRunLockKey, s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			return nil, appErrors.Clone(appErrors.ErrBusy, "weekly generation is already running")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrExternalService.Code, appErrors.ErrExternalService.Status, "failed to acquire weekly generation lock")
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			s.logger.Warn("failed to release weekly generation lock", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	run := &runState{report: &dto.WeeklyRunReport{
		RunID:     uuid.NewString(),
		WeekStart: timegrid.FormatWeek(week),
		StartedAt: s.now(),
	}}
	log := s.logger.With(zap.String("run_id", run.report.RunID), zap.String("week_start", run.report.WeekStart))
	log.Info("weekly generation started")

	report, err := s.run(ctx, log, week, run)
	status := "success"
	switch {
	case err != nil:
		status = "failed"
	case len(report.Failures) > 0:
		status = "partial"
	}
	report.FinishedAt = s.now()
	s.metrics.ObserveWeeklyRun(status, report.FinishedAt.Sub(report.StartedAt))
	if err != nil {
		log.Error("weekly generation failed", zap.Error(err))
		return nil, err
	}
	log.Info("weekly generation finished",
		zap.String("status", status),
		zap.Int("groups_scheduled", report.GroupsScheduled),
		zap.Int("users_planned", report.UsersPlanned),
		zap.Int("blocks_created", report.BlocksCreated),
		zap.Int("failures", len(report.Failures)),
	)
	return report, nil
}

func (s *WeeklyPlannerService) run(ctx context.Context, log *zap.Logger, week time.Time, run *runState) (*dto.WeeklyRunReport, error) {
	// --- phase A: cleanup and quota seeding ---
	cleanup, err := s.plans.DeleteWeek(ctx, week)
	if err != nil {
		return run.report, appErrors.Internal(err, "failed to clear week")
	}
	run.report.Cleanup = cleanup
	log.Info("week cleared",
		zap.Int("plans", cleanup.Deleted.Plans),
		zap.Int("blocks", cleanup.Deleted.Blocks),
		zap.Int("group_blocks", cleanup.Deleted.GroupBlocks),
	)

	users, err := s.courses.ListActiveUsers(ctx, s.cfg.ActiveTerm)
	if err != nil {
		return run.report, appErrors.Internal(err, "failed to list active users")
	}
	enrollments := make(map[string][]models.Enrollment, len(users))
	for _, user := range users {
		list, err := s.courses.ListActiveEnrollments(ctx, user, s.cfg.ActiveTerm)
		if err != nil {
			run.fail("user", user, err)
			continue
		}
		enrollments[user] = list
		if _, err := s.seeder.SeedDefaults(ctx, list); err != nil {
			log.Warn("preference seeding failed", zap.String("user_id", user), zap.Error(err))
		}
	}

	// --- phase B: group sessions, sequential because groups share members ---
	busy := make(map[string]slotSet)
	groups, err := s.groups.ListEligible(ctx, s.cfg.ActiveTerm)
	if err != nil {
		run.fail("groups", "*", err)
	}
	for i := range groups {
		if ctx.Err() != nil {
			return run.report, appErrors.Internal(ctx.Err(), "weekly generation interrupted")
		}
		group := &groups[i]
		scheduled, err := s.scheduleGroup(ctx, log, week, group, busy, run)
		switch {
		case err != nil:
			run.fail("group", group.ID, err)
		case scheduled:
			run.report.GroupsScheduled++
		default:
			run.report.GroupsSkipped++
		}
	}

	// --- phase C: personal plans, in parallel; busy is read-only from here ---
	work := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for user := range work {
				list, ok := enrollments[user]
				if !ok {
					continue
				}
				created, err := s.planUser(ctx, log, week, user, list, busy[user], run)
				if err != nil {
					run.fail("user", user, err)
					continue
				}
				run.planned(created)
			}
		}()
	}
feed:
	for _, user := range users {
		select {
		case work <- user:
		case <-ctx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()
	if ctx.Err() != nil {
		return run.report, appErrors.Internal(ctx.Err(), "weekly generation interrupted")
	}
	return run.report, nil
}

// scheduleGroup places the group's sessions into slots free for every eligible member.
func (s *WeeklyPlannerService) scheduleGroup(ctx context.Context, log *zap.Logger, week time.Time, group *models.StudyGroup, busy map[string]slotSet, run *runState) (bool, error) {
	members, err := s.groups.ListEligibleMembers(ctx, group.ID, s.cfg.ActiveTerm)
	if err != nil {
		return false, err
	}
	if len(members) < 2 {
		return false, nil
	}
	sets := make([]slotSet, 0, len(members))
	for _, member := range members {
		set, ok := busy[member]
		if !ok {
			set, err = s.occupancy.Occupied(ctx, member, week, s.cfg.Grid)
			if err != nil {
				return false, fmt.Errorf("occupancy of %s: %w", member, err)
			}
			busy[member] = set
		}
		sets = append(sets, set)
	}

	free := freeSlots(s.cfg.Grid, sets...)
	quota, err := s.groupQuota(ctx, group, members)
	if err != nil {
		return false, err
	}
	if quota <= 0 || len(free) == 0 {
		log.Info("group skipped", zap.String("group_id", group.ID), zap.Int("quota", quota), zap.Int("free_slots", len(free)))
		return false, nil
	}

	req := OptimizationRequest{
		Mode:         OptimizeGroup,
		Quotas:       []CourseQuota{{CourseNumber: group.CourseNumber, CourseName: group.CourseName, Hours: quota}},
		OfferedSlots: offerSlots(free),
	}
	assignments := s.optimize(ctx, log, req, run)
	if len(assignments) == 0 {
		return false, nil
	}

	course := courseRef{Number: group.CourseNumber, Name: group.CourseName}
	groupID := group.ID
	var changes models.BlockChangeSet
	for _, member := range members {
		plan, err := s.plans.EnsurePlan(ctx, member, week)
		if err != nil {
			return false, fmt.Errorf("plan of %s: %w", member, err)
		}
		for _, a := range assignments {
			changes.AddBlocks = append(changes.AddBlocks, hourlyBlocks(plan, course, models.WorkTypeGroup, &groupID, a.Slot().Window(), models.BlockSourceAuto)...)
		}
	}
	for _, a := range assignments {
		w := a.Slot().Window()
		changes.AddGroupBlocks = append(changes.AddGroupBlocks, models.GroupPlanBlock{
			GroupID:      group.ID,
			WeekStart:    week,
			CourseNumber: group.CourseNumber,
			Day:          w.Day,
			StartTime:    w.Start,
			EndTime:      w.End,
			CreatedBy:    "system",
		})
	}
	if err := s.plans.Apply(ctx, changes); err != nil {
		return false, err
	}
	s.metrics.RecordBlocksWritten(string(models.BlockSourceAuto), len(changes.AddBlocks))
	run.addBlocks(len(changes.AddBlocks))

	for _, member := range members {
		for _, a := range assignments {
			busy[member][a.Slot()] = struct{}{}
		}
	}
	summary := describeSessions(assignments)
	for _, member := range members {
		s.notify(ctx, models.Notification{
			UserID:  member,
			Type:    models.NotificationGroupSessions,
			Title:   "Group sessions scheduled",
			Message: fmt.Sprintf("%s meets %s in the week of %s.", group.Name, summary, timegrid.FormatWeek(week)),
			Link:    "/weekly-plans/" + timegrid.FormatWeek(week),
		})
	}
	log.Info("group scheduled", zap.String("group_id", group.ID), zap.Int("members", len(members)), zap.Int("hours", len(assignments)))
	return true, nil
}

// groupQuota averages the members' group hours for the course, defaulting from credit points.
func (s *WeeklyPlannerService) groupQuota(ctx context.Context, group *models.StudyGroup, members []string) (int, error) {
	credit := 0.0
	if course, err := s.courses.GetCourse(ctx, group.CourseNumber); err == nil {
		credit = course.CreditPoints
	}
	_, fallback := s.seeder.DefaultQuota(credit)

	total := 0.0
	for _, member := range members {
		pref, err := s.prefs.Get(ctx, member, group.CourseNumber)
		switch {
		case err == nil:
			total += pref.GroupHoursPerWeek
		case errors.Is(err, sql.ErrNoRows):
			total += float64(fallback)
		default:
			return 0, fmt.Errorf("preference of %s: %w", member, err)
		}
	}
	return int(math.Round(total / float64(len(members)))), nil
}

// planUser fills the user's remaining free slots with personal study hours.
func (s *WeeklyPlannerService) planUser(ctx context.Context, log *zap.Logger, week time.Time, userID string, enrollments []models.Enrollment, busy slotSet, run *runState) (int, error) {
	if len(enrollments) == 0 {
		return 0, nil
	}
	prefs, err := s.prefs.ListByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("preferences: %w", err)
	}
	byCourse := make(map[string]models.CoursePreference, len(prefs))
	for _, p := range prefs {
		byCourse[p.CourseNumber] = p
	}

	quotas := make([]CourseQuota, 0, len(enrollments))
	names := make(map[string]string, len(enrollments))
	for _, e := range enrollments {
		hours := 0
		if p, ok := byCourse[e.CourseNumber]; ok {
			hours = int(math.Round(p.PersonalHoursPerWeek))
		} else {
			hours, _ = s.seeder.DefaultQuota(e.CreditPoints)
		}
		if hours <= 0 {
			continue
		}
		quotas = append(quotas, CourseQuota{CourseNumber: e.CourseNumber, CourseName: e.CourseName, Hours: hours})
		names[e.CourseNumber] = e.CourseName
	}
	if len(quotas) == 0 {
		return 0, nil
	}

	if busy == nil {
		busy, err = s.occupancy.Occupied(ctx, userID, week, s.cfg.Grid)
		if err != nil {
			return 0, fmt.Errorf("occupancy: %w", err)
		}
	}
	free := freeSlots(s.cfg.Grid, busy)
	if len(free) == 0 {
		return 0, nil
	}

	req := OptimizationRequest{Mode: OptimizePersonal, Quotas: quotas, OfferedSlots: offerSlots(free)}
	if study, err := s.prefs.GetStudyPreference(ctx, userID); err == nil {
		req.PreferenceText = study.Raw
		if len(study.Structured) > 0 && string(study.Structured) != "{}" {
			req.PreferenceStruct = []byte(study.Structured)
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		log.Warn("study preference unavailable", zap.String("user_id", userID), zap.Error(err))
	}

	assignments := s.optimize(ctx, log, req, run)
	if len(assignments) == 0 {
		return 0, nil
	}
	plan, err := s.plans.EnsurePlan(ctx, userID, week)
	if err != nil {
		return 0, fmt.Errorf("plan: %w", err)
	}
	var changes models.BlockChangeSet
	courses := make(map[string]struct{})
	for _, a := range assignments {
		course := courseRef{Number: a.CourseNumber, Name: names[a.CourseNumber]}
		changes.AddBlocks = append(changes.AddBlocks, hourlyBlocks(plan, course, models.WorkTypePersonal, nil, a.Slot().Window(), models.BlockSourceAuto)...)
		courses[a.CourseNumber] = struct{}{}
	}
	if err := s.plans.Apply(ctx, changes); err != nil {
		return 0, err
	}
	s.metrics.RecordBlocksWritten(string(models.BlockSourceAuto), len(changes.AddBlocks))

	s.notify(ctx, models.Notification{
		UserID:  userID,
		Type:    models.NotificationWeeklyPlanReady,
		Title:   "Your weekly plan is ready",
		Message: fmt.Sprintf("%d study hours across %d courses are planned for the week of %s.", len(changes.AddBlocks), len(courses), timegrid.FormatWeek(week)),
		Link:    "/weekly-plans/" + timegrid.FormatWeek(week),
	})
	return len(changes.AddBlocks), nil
}

// optimize asks the configured optimizer and falls back to the greedy placement when it fails
// or returns assignments that break the request's bounds.
func (s *WeeklyPlannerService) optimize(ctx context.Context, log *zap.Logger, req OptimizationRequest, run *runState) []SlotAssignment {
	mode := string(req.Mode)
	if s.optimizer != nil {
		res, err := s.optimizer.Optimize(ctx, req)
		if err == nil {
			err = ValidateAssignments(req, res)
		}
		if err == nil {
			s.metrics.RecordOptimizerOutcome(mode, "accepted")
			run.oracle(true)
			return res.Assignments
		}
		outcome := "error"
		if errors.Is(err, ErrInvalidAssignment) {
			outcome = "invalid"
		}
		s.metrics.RecordOptimizerOutcome(mode, outcome)
		run.oracle(false)
		log.Warn("slot optimizer rejected, using fallback", zap.String("mode", mode), zap.String("outcome", outcome), zap.Error(err))
	}
	res, err := s.fallback.Optimize(ctx, req)
	if err != nil {
		log.Error("fallback optimizer failed", zap.Error(err))
		return nil
	}
	s.metrics.RecordOptimizerOutcome(mode, "fallback")
	return res.Assignments
}

func (s *WeeklyPlannerService) notify(ctx context.Context, n models.Notification) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, n)
	}
}

// runState collects report counters from concurrent workers.
type runState struct {
	mu     sync.Mutex
	report *dto.WeeklyRunReport
}

func (r *runState) fail(kind, id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Failures = append(r.report.Failures, dto.EntityFailure{Kind: kind, ID: id, Error: err.Error()})
}

func (r *runState) planned(blocks int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if blocks > 0 {
		r.report.UsersPlanned++
	}
	r.report.BlocksCreated += blocks
}

func (r *runState) addBlocks(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.BlocksCreated += n
}

func (r *runState) oracle(accepted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if accepted {
		r.report.OracleAccepted++
	} else {
		r.report.OracleFallbacks++
	}
}

// describeSessions renders assignments as merged day/time ranges, e.g. "Monday 10:00-12:00".
func describeSessions(assignments []SlotAssignment) string {
	slots := make([]timegrid.Slot, 0, len(assignments))
	for _, a := range assignments {
		slots = append(slots, a.Slot())
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Day != slots[j].Day {
			return slots[i].Day < slots[j].Day
		}
		return slots[i].Hour < slots[j].Hour
	})
	var parts []string
	for i := 0; i < len(slots); {
		j := i
		for j+1 < len(slots) && slots[j+1].Day == slots[i].Day && slots[j+1].Hour == slots[j].Hour+1 {
			j++
		}
		w := timegrid.Window{Day: slots[i].Day, Start: slots[i].Start(), End: timegrid.Hour(slots[j].Hour + 1)}
		parts = append(parts, w.String())
		i = j + 1
	}
	return strings.Join(parts, ", ")
}
