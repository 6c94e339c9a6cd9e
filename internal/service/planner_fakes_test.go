package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/study-planner-api/internal/models"
	"github.com/noah-isme/study-planner-api/internal/timegrid"
)

var testWeek = time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC)

// memPlans keeps constraints, fixed items, plans and blocks in memory.
type memPlans struct {
	mu          sync.Mutex
	constraints []models.Constraint
	fixed       []models.FixedScheduleItem
	plans       map[string]*models.WeeklyPlan
	blocks      map[string]models.ScheduleBlock
	groupBlocks map[string]models.GroupPlanBlock
	applyCalls  int
	applyErr    error
}

func newMemPlans() *memPlans {
	return &memPlans{
		plans:       make(map[string]*models.WeeklyPlan),
		blocks:      make(map[string]models.ScheduleBlock),
		groupBlocks: make(map[string]models.GroupPlanBlock),
	}
}

func planKey(userID string, week time.Time) string {
	return userID + "|" + timegrid.FormatWeek(week)
}

func (m *memPlans) ListPermanent(_ context.Context, userID string) ([]models.Constraint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Constraint
	for _, c := range m.constraints {
		if c.UserID == userID && c.Permanent() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memPlans) ListWeekly(_ context.Context, userID string, week time.Time) ([]models.Constraint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Constraint
	for _, c := range m.constraints {
		if c.UserID == userID && !c.Permanent() && c.WeekStart != nil && c.WeekStart.Equal(week) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memPlans) Create(_ context.Context, c *models.Constraint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = uuid.NewString()
	m.constraints = append(m.constraints, *c)
	return nil
}

func (m *memPlans) GetByID(_ context.Context, id string) (*models.Constraint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.constraints {
		if c.ID == id {
			found := c
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memPlans) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.constraints {
		if c.ID == id {
			m.constraints = append(m.constraints[:i], m.constraints[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memPlans) ListByUser(_ context.Context, userID string) ([]models.FixedScheduleItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.FixedScheduleItem
	for _, f := range m.fixed {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memPlans) planByID(id string) *models.WeeklyPlan {
	for _, p := range m.plans {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (m *memPlans) ListBlocks(_ context.Context, userID string, week time.Time) ([]models.ScheduleBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filterBlocks(func(b models.ScheduleBlock, p *models.WeeklyPlan) bool {
		return p.UserID == userID && p.WeekStart.Equal(week)
	}), nil
}

func (m *memPlans) ListBlocksByDay(_ context.Context, userID string, week time.Time, day timegrid.Day) ([]models.ScheduleBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filterBlocks(func(b models.ScheduleBlock, p *models.WeeklyPlan) bool {
		return p.UserID == userID && p.WeekStart.Equal(week) && b.Day == day
	}), nil
}

func (m *memPlans) ListGroupMemberBlocks(_ context.Context, groupID string, week time.Time) ([]models.ScheduleBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filterBlocks(func(b models.ScheduleBlock, p *models.WeeklyPlan) bool {
		return b.GroupID != nil && *b.GroupID == groupID && p.WeekStart.Equal(week)
	}), nil
}

func (m *memPlans) filterBlocks(keep func(models.ScheduleBlock, *models.WeeklyPlan) bool) []models.ScheduleBlock {
	var out []models.ScheduleBlock
	for _, b := range m.blocks {
		if p := m.planByID(b.PlanID); p != nil && keep(b, p) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day < out[j].Day
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func (m *memPlans) ListGroupBlocks(_ context.Context, groupID string, week time.Time) ([]models.GroupPlanBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.GroupPlanBlock
	for _, g := range m.groupBlocks {
		if g.GroupID == groupID && g.WeekStart.Equal(week) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (m *memPlans) EnsurePlan(_ context.Context, userID string, week time.Time) (*models.WeeklyPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensurePlan(userID, week), nil
}

func (m *memPlans) ensurePlan(userID string, week time.Time) *models.WeeklyPlan {
	key := planKey(userID, week)
	if p, ok := m.plans[key]; ok {
		return p
	}
	p := &models.WeeklyPlan{ID: uuid.NewString(), UserID: userID, WeekStart: week}
	m.plans[key] = p
	return p
}

func (m *memPlans) GetBlock(_ context.Context, id string) (*models.ScheduleBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blocks[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &b, nil
}

func (m *memPlans) GetBlockWeek(_ context.Context, id string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blocks[id]
	if !ok {
		return time.Time{}, sql.ErrNoRows
	}
	return m.planByID(b.PlanID).WeekStart, nil
}

func (m *memPlans) Apply(_ context.Context, changes models.BlockChangeSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyCalls++
	if m.applyErr != nil {
		return m.applyErr
	}
	for _, id := range changes.RemoveBlockIDs {
		if _, ok := m.blocks[id]; !ok {
			return models.ErrStaleWrite
		}
	}
	for _, id := range changes.RemoveGroupBlockIDs {
		if _, ok := m.groupBlocks[id]; !ok {
			return models.ErrStaleWrite
		}
	}
	next := make(map[string]models.ScheduleBlock, len(m.blocks))
	for id, b := range m.blocks {
		next[id] = b
	}
	for _, id := range changes.RemoveBlockIDs {
		delete(next, id)
	}
	taken := make(map[string]struct{}, len(next))
	for _, b := range next {
		taken[fmt.Sprintf("%s|%d|%d", b.PlanID, b.Day, b.StartTime)] = struct{}{}
	}
	for _, b := range changes.AddBlocks {
		key := fmt.Sprintf("%s|%d|%d", b.PlanID, b.Day, b.StartTime)
		if _, dup := taken[key]; dup {
			return fmt.Errorf("duplicate block %s", key)
		}
		taken[key] = struct{}{}
		next[b.ID] = b
	}
	m.blocks = next
	for _, id := range changes.RemoveGroupBlockIDs {
		delete(m.groupBlocks, id)
	}
	for _, g := range changes.AddGroupBlocks {
		if g.ID == "" {
			g.ID = uuid.NewString()
		}
		m.groupBlocks[g.ID] = g
	}
	return nil
}

func (m *memPlans) counts(match func(time.Time) bool) models.WeekCounts {
	var c models.WeekCounts
	for _, p := range m.plans {
		if match(p.WeekStart) {
			c.Plans++
		}
	}
	for _, b := range m.blocks {
		if match(m.planByID(b.PlanID).WeekStart) {
			c.Blocks++
		}
	}
	for _, g := range m.groupBlocks {
		if match(g.WeekStart) {
			c.GroupBlocks++
		}
	}
	return c
}

func (m *memPlans) DeleteWeek(_ context.Context, week time.Time) (models.WeekCleanupResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inWeek := func(t time.Time) bool { return t.Equal(week) }
	others := func(t time.Time) bool { return !t.Equal(week) }
	result := models.WeekCleanupResult{Deleted: m.counts(inWeek), Others: m.counts(others)}
	for id, b := range m.blocks {
		if m.planByID(b.PlanID).WeekStart.Equal(week) {
			delete(m.blocks, id)
		}
	}
	for key, p := range m.plans {
		if p.WeekStart.Equal(week) {
			delete(m.plans, key)
		}
	}
	for id, g := range m.groupBlocks {
		if g.WeekStart.Equal(week) {
			delete(m.groupBlocks, id)
		}
	}
	return result, nil
}

func (m *memPlans) addConstraint(userID, title string, permanent, hard bool, week time.Time, start, end string, days ...timegrid.Day) {
	c := models.Constraint{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Scope:     models.ConstraintScopePermanent,
		Days:      timegrid.NewDaySet(days...),
		StartTime: timegrid.MustClock(start),
		EndTime:   timegrid.MustClock(end),
		IsHard:    hard,
	}
	if !permanent {
		c.Scope = models.ConstraintScopeWeekly
		w := week
		c.WeekStart = &w
	}
	m.mu.Lock()
	m.constraints = append(m.constraints, c)
	m.mu.Unlock()
}

// addRun books hourly blocks from start to end and returns them in order.
func (m *memPlans) addRun(userID string, week time.Time, course string, workType models.WorkType, groupID *string, day timegrid.Day, start, end string) []models.ScheduleBlock {
	m.mu.Lock()
	defer m.mu.Unlock()
	plan := m.ensurePlan(userID, week)
	w := timegrid.Window{Day: day, Start: timegrid.MustClock(start), End: timegrid.MustClock(end)}
	blocks := hourlyBlocks(plan, courseRef{Number: course, Name: strings.ToUpper(course)}, workType, groupID, w, models.BlockSourceManual)
	for _, b := range blocks {
		m.blocks[b.ID] = b
	}
	return blocks
}

func windowsOf(blocks []models.ScheduleBlock) []string {
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, b.Window().String())
	}
	return out
}

// memGroups holds study groups and memberships.
type memGroups struct {
	groups  map[string]models.StudyGroup
	members map[string][]models.GroupMember
	// eligible lists group members counted as enrolled for the active term.
	eligible map[string][]string
}

func newMemGroups() *memGroups {
	return &memGroups{
		groups:   make(map[string]models.StudyGroup),
		members:  make(map[string][]models.GroupMember),
		eligible: make(map[string][]string),
	}
}

func (g *memGroups) add(id, course string, approved ...string) models.StudyGroup {
	group := models.StudyGroup{ID: id, CourseNumber: course, CourseName: strings.ToUpper(course), Name: "Group " + id}
	g.groups[id] = group
	for _, u := range approved {
		g.members[id] = append(g.members[id], models.GroupMember{ID: uuid.NewString(), GroupID: id, UserID: u, Status: models.MembershipApproved})
	}
	g.eligible[id] = append([]string(nil), approved...)
	return group
}

func (g *memGroups) GetByID(_ context.Context, id string) (*models.StudyGroup, error) {
	group, ok := g.groups[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &group, nil
}

func (g *memGroups) GetMembership(_ context.Context, groupID, userID string) (*models.GroupMember, error) {
	for _, m := range g.members[groupID] {
		if m.UserID == userID {
			found := m
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (g *memGroups) ListApprovedMembers(_ context.Context, groupID string) ([]models.GroupMember, error) {
	var out []models.GroupMember
	for _, m := range g.members[groupID] {
		if m.Approved() {
			out = append(out, m)
		}
	}
	return out, nil
}

func (g *memGroups) ListForUser(_ context.Context, userID string) ([]models.StudyGroup, error) {
	var out []models.StudyGroup
	for id, members := range g.members {
		for _, m := range members {
			if m.UserID == userID && m.Approved() {
				out = append(out, g.groups[id])
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *memGroups) ListEligible(_ context.Context, _ string) ([]models.StudyGroup, error) {
	var out []models.StudyGroup
	for id, users := range g.eligible {
		if len(users) >= 2 {
			out = append(out, g.groups[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *memGroups) ListEligibleMembers(_ context.Context, groupID, _ string) ([]string, error) {
	return append([]string(nil), g.eligible[groupID]...), nil
}

// memRequests stores change requests and votes.
type memRequests struct {
	requests map[string]*models.ChangeRequest
	votes    []models.ChangeRequestVote
}

func newMemRequests() *memRequests {
	return &memRequests{requests: make(map[string]*models.ChangeRequest)}
}

func (r *memRequests) Create(_ context.Context, req *models.ChangeRequest) error {
	req.ID = uuid.NewString()
	stored := *req
	r.requests[req.ID] = &stored
	return nil
}

func (r *memRequests) GetByID(_ context.Context, id string) (*models.ChangeRequest, error) {
	req, ok := r.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *req
	return &copied, nil
}

func (r *memRequests) ListPendingByGroups(_ context.Context, groupIDs []string) ([]models.ChangeRequest, error) {
	wanted := make(map[string]struct{}, len(groupIDs))
	for _, id := range groupIDs {
		wanted[id] = struct{}{}
	}
	var out []models.ChangeRequest
	for _, req := range r.requests {
		if _, ok := wanted[req.GroupID]; ok && req.Status == models.ChangeRequestPending {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (r *memRequests) RecordVote(_ context.Context, vote *models.ChangeRequestVote) (bool, error) {
	for i, v := range r.votes {
		if v.RequestID == vote.RequestID && v.UserID == vote.UserID {
			r.votes[i].Decision = vote.Decision
			return false, nil
		}
	}
	vote.ID = uuid.NewString()
	r.votes = append(r.votes, *vote)
	return true, nil
}

func (r *memRequests) ListVotes(_ context.Context, requestID string) ([]models.ChangeRequestVote, error) {
	var out []models.ChangeRequestVote
	for _, v := range r.votes {
		if v.RequestID == requestID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *memRequests) Resolve(_ context.Context, id string, status models.ChangeRequestStatus, at time.Time) error {
	req, ok := r.requests[id]
	if !ok || req.Status != models.ChangeRequestPending {
		return sql.ErrNoRows
	}
	req.Status = status
	req.ResolvedAt = &at
	return nil
}

func (r *memRequests) MarkApplied(_ context.Context, id string, at time.Time) error {
	req, ok := r.requests[id]
	if !ok {
		return sql.ErrNoRows
	}
	req.AppliedAt = &at
	return nil
}

// memPrefs stores quotas and study preferences.
type memPrefs struct {
	mu    sync.Mutex
	prefs map[string]models.CoursePreference
	study map[string]models.StudyPreference
}

func newMemPrefs() *memPrefs {
	return &memPrefs{prefs: make(map[string]models.CoursePreference), study: make(map[string]models.StudyPreference)}
}

func (p *memPrefs) Get(_ context.Context, userID, course string) (*models.CoursePreference, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pref, ok := p.prefs[userID+"|"+course]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &pref, nil
}

func (p *memPrefs) ListByUser(_ context.Context, userID string) ([]models.CoursePreference, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.CoursePreference
	for _, pref := range p.prefs {
		if pref.UserID == userID {
			out = append(out, pref)
		}
	}
	return out, nil
}

func (p *memPrefs) Upsert(_ context.Context, pref *models.CoursePreference) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prefs[pref.UserID+"|"+pref.CourseNumber] = *pref
	return nil
}

func (p *memPrefs) InsertMissing(_ context.Context, prefs []models.CoursePreference) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	added := 0
	for _, pref := range prefs {
		key := pref.UserID + "|" + pref.CourseNumber
		if _, ok := p.prefs[key]; !ok {
			p.prefs[key] = pref
			added++
		}
	}
	return added, nil
}

func (p *memPrefs) GetStudyPreference(_ context.Context, userID string) (*models.StudyPreference, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.study[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

// memCourses is the course catalog plus enrollments.
type memCourses struct {
	courses     map[string]models.Course
	enrollments map[string][]models.Enrollment
}

func newMemCourses() *memCourses {
	return &memCourses{courses: make(map[string]models.Course), enrollments: make(map[string][]models.Enrollment)}
}

func (c *memCourses) addCourse(number, name string, credit float64) {
	c.courses[number] = models.Course{CourseNumber: number, CourseName: name, CreditPoints: credit}
}

func (c *memCourses) enroll(userID string, numbers ...string) {
	for _, n := range numbers {
		course := c.courses[n]
		c.enrollments[userID] = append(c.enrollments[userID], models.Enrollment{
			UserID:       userID,
			CourseNumber: n,
			CourseName:   course.CourseName,
			CreditPoints: course.CreditPoints,
			Active:       true,
		})
	}
}

func (c *memCourses) GetCourse(_ context.Context, number string) (*models.Course, error) {
	course, ok := c.courses[number]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &course, nil
}

func (c *memCourses) FindEnrollmentByName(_ context.Context, userID, name string) (*models.Enrollment, error) {
	for _, e := range c.enrollments[userID] {
		if strings.EqualFold(e.CourseNumber, name) || strings.Contains(strings.ToLower(e.CourseName), strings.ToLower(name)) {
			found := e
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (c *memCourses) FindCourseByName(_ context.Context, name string) (*models.Course, error) {
	for _, course := range c.courses {
		if strings.Contains(strings.ToLower(course.CourseName), strings.ToLower(name)) {
			found := course
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (c *memCourses) AddEnrollment(_ context.Context, e *models.Enrollment) (bool, error) {
	for i, existing := range c.enrollments[e.UserID] {
		if existing.CourseNumber == e.CourseNumber && existing.Term == e.Term {
			if existing.Active {
				return false, nil
			}
			c.enrollments[e.UserID][i].Active = true
			e.Active = true
			return true, nil
		}
	}
	e.Active = true
	c.enrollments[e.UserID] = append(c.enrollments[e.UserID], *e)
	return true, nil
}

func (c *memCourses) ListActiveEnrollments(_ context.Context, userID, _ string) ([]models.Enrollment, error) {
	return append([]models.Enrollment(nil), c.enrollments[userID]...), nil
}

func (c *memCourses) ListActiveUsers(_ context.Context, _ string) ([]string, error) {
	users := make([]string, 0, len(c.enrollments))
	for u := range c.enrollments {
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}

// recordingNotifier captures notifications.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, msg models.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
}

func (n *recordingNotifier) to(userID, kind string) []models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.Notification
	for _, msg := range n.sent {
		if msg.UserID == userID && msg.Type == kind {
			out = append(out, msg)
		}
	}
	return out
}

// plannerFixture wires the engine services over the in-memory stores.
type plannerFixture struct {
	plans     *memPlans
	groups    *memGroups
	requests  *memRequests
	prefs     *memPrefs
	courses   *memCourses
	notifier  *recordingNotifier
	conflicts *ConflictService
	prefSvc   *PreferenceService
	consensus *ConsensusService
	blocks    *BlockService
}

func newPlannerFixture(t *testing.T) *plannerFixture {
	t.Helper()
	f := &plannerFixture{
		plans:    newMemPlans(),
		groups:   newMemGroups(),
		requests: newMemRequests(),
		prefs:    newMemPrefs(),
		courses:  newMemCourses(),
		notifier: &recordingNotifier{},
	}
	f.conflicts = NewConflictService(f.plans, f.plans, f.plans)
	f.prefSvc = NewPreferenceService(f.prefs, f.plans, f.courses, zap.NewNop(), PreferenceServiceConfig{})
	f.consensus = NewConsensusService(ConsensusServiceParams{
		Groups:    f.groups,
		Requests:  f.requests,
		Plans:     f.plans,
		Conflicts: f.conflicts,
		Prefs:     f.prefSvc,
		Notifier:  f.notifier,
		Grid:      timegrid.DefaultGrid,
	})
	f.blocks = NewBlockService(BlockServiceParams{
		Plans:     f.plans,
		Courses:   f.courses,
		Groups:    f.groups,
		Conflicts: f.conflicts,
		Consensus: f.consensus,
		Prefs:     f.prefSvc,
		Config:    BlockServiceConfig{Grid: timegrid.DefaultGrid},
	})
	f.blocks.now = func() time.Time { return testWeek.Add(36 * time.Hour) }
	return f
}

func dayRef(v int) *int { return &v }

func groupRef(v string) *string { return &v }
