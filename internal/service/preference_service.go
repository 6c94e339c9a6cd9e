package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/study-planner-api/internal/models"
)

type preferenceStore interface {
	Get(ctx context.Context, userID, courseNumber string) (*models.CoursePreference, error)
	ListByUser(ctx context.Context, userID string) ([]models.CoursePreference, error)
	Upsert(ctx context.Context, pref *models.CoursePreference) error
	InsertMissing(ctx context.Context, prefs []models.CoursePreference) (int, error)
	GetStudyPreference(ctx context.Context, userID string) (*models.StudyPreference, error)
}

type creditSource interface {
	GetCourse(ctx context.Context, courseNumber string) (*models.Course, error)
}

// PreferenceServiceConfig tunes quota learning.
type PreferenceServiceConfig struct {
	// Weight is the share kept from the previous quota, 0.8 by default.
	Weight              float64
	DefaultCreditPoints float64
}

// PreferenceService learns weekly hour quotas from observed plans.
type PreferenceService struct {
	prefs   preferenceStore
	blocks  blockReader
	courses creditSource
	logger  *zap.Logger
	cfg     PreferenceServiceConfig
}

// NewPreferenceService constructs the service. courses may be nil, in which case first-time
// quotas use the default credit points.
func NewPreferenceService(prefs preferenceStore, blocks blockReader, courses creditSource, logger *zap.Logger, cfg PreferenceServiceConfig) *PreferenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Weight <= 0 || cfg.Weight >= 1 {
		cfg.Weight = 0.8
	}
	if cfg.DefaultCreditPoints <= 0 {
		cfg.DefaultCreditPoints = 3
	}
	return &PreferenceService{prefs: prefs, blocks: blocks, courses: courses, logger: logger, cfg: cfg}
}

// Reinforce blends the hours of courseNumber/workType now in the user's plan into the stored
// quota. Only the field matching workType moves; a first-time quota seeds the other field from
// the course's credit points. Failures are logged and swallowed.
func (s *PreferenceService) Reinforce(ctx context.Context, userID string, weekStart time.Time, courseNumber string, workType models.WorkType) {
	log := s.logger.With(zap.String("user_id", userID), zap.String("course_number", courseNumber), zap.String("work_type", string(workType)))

	blocks, err := s.blocks.ListBlocks(ctx, userID, weekStart)
	if err != nil {
		log.Warn("preference update skipped: list blocks failed", zap.Error(err))
		return
	}
	observed := 0.0
	for _, b := range blocks {
		if b.CourseNumber == courseNumber && b.WorkType == workType {
			observed += float64(b.EndTime-b.StartTime) / 60
		}
	}

	current, err := s.prefs.Get(ctx, userID, courseNumber)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		log.Warn("preference update skipped: load failed", zap.Error(err))
		return
	}

	var next models.CoursePreference
	if current == nil {
		personal, group := s.DefaultQuota(s.creditPoints(ctx, log, courseNumber))
		next = models.CoursePreference{
			UserID:               userID,
			CourseNumber:         courseNumber,
			PersonalHoursPerWeek: float64(personal),
			GroupHoursPerWeek:    float64(group),
		}
		setQuota(&next, workType, round2(observed))
	} else {
		next = *current
		setQuota(&next, workType, round2(s.cfg.Weight*current.HoursFor(workType)+(1-s.cfg.Weight)*observed))
	}

	if err := s.prefs.Upsert(ctx, &next); err != nil {
		log.Warn("preference update failed", zap.Error(err))
	}
}

// creditPoints looks up the catalog credit of courseNumber. Zero means unknown.
func (s *PreferenceService) creditPoints(ctx context.Context, log *zap.Logger, courseNumber string) float64 {
	if s.courses == nil {
		return 0
	}
	course, err := s.courses.GetCourse(ctx, courseNumber)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Warn("course lookup failed, using default credit points", zap.Error(err))
		}
		return 0
	}
	return course.CreditPoints
}

// DefaultQuota derives personal and group hours from credit points: three study hours per
// credit point, half of them personal and at least one hour each.
func (s *PreferenceService) DefaultQuota(creditPoints float64) (personal, group int) {
	if creditPoints <= 0 {
		creditPoints = s.cfg.DefaultCreditPoints
	}
	total := int(math.Round(creditPoints * 3))
	personal = int(float64(total) * 0.5)
	if personal < 1 {
		personal = 1
	}
	group = total - personal
	if group < 1 {
		group = 1
	}
	return personal, group
}

// SeedDefaults stores credit-based quotas for enrollments that have none and reports how many
// were added. Existing quotas are left untouched.
func (s *PreferenceService) SeedDefaults(ctx context.Context, enrollments []models.Enrollment) (int, error) {
	if len(enrollments) == 0 {
		return 0, nil
	}
	seeds := make([]models.CoursePreference, 0, len(enrollments))
	for _, e := range enrollments {
		personal, group := s.DefaultQuota(e.CreditPoints)
		seeds = append(seeds, models.CoursePreference{
			UserID:               e.UserID,
			CourseNumber:         e.CourseNumber,
			PersonalHoursPerWeek: float64(personal),
			GroupHoursPerWeek:    float64(group),
		})
	}
	return s.prefs.InsertMissing(ctx, seeds)
}

func setQuota(p *models.CoursePreference, workType models.WorkType, hours float64) {
	if workType == models.WorkTypeGroup {
		p.GroupHoursPerWeek = hours
		return
	}
	p.PersonalHoursPerWeek = hours
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
