// Package app wires repositories, services and background workers from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/study-planner-api/internal/handler"
	"github.com/noah-isme/study-planner-api/internal/repository"
	"github.com/noah-isme/study-planner-api/internal/service"
	"github.com/noah-isme/study-planner-api/internal/timegrid"
	"github.com/noah-isme/study-planner-api/pkg/cache"
	"github.com/noah-isme/study-planner-api/pkg/config"
	"github.com/noah-isme/study-planner-api/pkg/database"
	"github.com/noah-isme/study-planner-api/pkg/jobs"
	"github.com/noah-isme/study-planner-api/pkg/storage"
)

const lockPrefix = "study-planner:lock:"

// App holds the wired engine.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB    *sqlx.DB
	Redis *redis.Client

	Metrics       *service.MetricsService
	Auth          *service.AuthService
	Notifications *service.NotificationService
	Courses       *service.CourseService
	Blocks        *service.BlockService
	Constraints   *service.ConstraintService
	Consensus     *service.ConsensusService
	Views         *service.ScheduleViewService
	Exports       *service.ExportService
	Planner       *service.WeeklyPlannerService
	Commands      *service.CommandService

	queue *jobs.Queue
}

// New connects to the stores named in cfg and builds every service. Call Start before
// serving and Close on shutdown.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	grid := timegrid.Grid{StartHour: cfg.Planner.DayStartHour, EndHour: cfg.Planner.DayEndHour}
	if err := grid.Validate(); err != nil {
		return nil, fmt.Errorf("planner grid: %w", err)
	}
	var minWeek time.Time
	if cfg.Planner.MinWeek != "" {
		week, err := timegrid.ParseWeek(cfg.Planner.MinWeek)
		if err != nil {
			return nil, fmt.Errorf("planner min week: %w", err)
		}
		minWeek = week
	}
	location := time.UTC
	if cfg.Export.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Export.Timezone)
		if err != nil {
			return nil, fmt.Errorf("export timezone: %w", err)
		}
		location = loc
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, logger); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	a := &App{Config: cfg, Logger: logger, DB: db}

	var locker cache.Locker = cache.NewLocalLocker()
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, using in-process locks", zap.Error(err))
		} else {
			a.Redis = client
			locker = cache.NewRedisLocker(client, lockPrefix)
		}
	}

	plans := repository.NewPlanRepository(db)
	constraints := repository.NewConstraintRepository(db)
	fixed := repository.NewFixedScheduleRepository(db)
	courses := repository.NewCourseRepository(db)
	groups := repository.NewGroupRepository(db)
	prefs := repository.NewPreferenceRepository(db)
	requests := repository.NewChangeRequestRepository(db)
	notifications := repository.NewNotificationRepository(db)

	validate := validator.New()
	a.Metrics = service.NewMetricsService()
	a.Auth = service.NewAuthService(service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	a.Notifications = service.NewNotificationService(notifications, a.Metrics, logger)
	a.queue = jobs.NewQueue("notifications", a.Notifications.Deliver, jobs.QueueConfig{
		Workers:    cfg.Notify.Workers,
		BufferSize: cfg.Notify.BufferSize,
		MaxRetries: cfg.Notify.MaxRetries,
		RetryDelay: cfg.Notify.RetryDelay,
		OnDone:     a.Notifications.OnDone,
		Logger:     logger.Named("notifications"),
	})
	a.Notifications.AttachQueue(a.queue)

	conflicts := service.NewConflictService(constraints, fixed, plans)
	learner := service.NewPreferenceService(prefs, plans, courses, logger, service.PreferenceServiceConfig{
		Weight:              cfg.Planner.PreferenceWeight,
		DefaultCreditPoints: float64(cfg.Planner.DefaultCreditPoints),
	})

	a.Consensus = service.NewConsensusService(service.ConsensusServiceParams{
		Groups:    groups,
		Requests:  requests,
		Plans:     plans,
		Conflicts: conflicts,
		Prefs:     learner,
		Notifier:  a.Notifications,
		Metrics:   a.Metrics,
		Grid:      grid,
		Logger:    logger,
	})
	a.Blocks = service.NewBlockService(service.BlockServiceParams{
		Plans:     plans,
		Courses:   courses,
		Groups:    groups,
		Conflicts: conflicts,
		Consensus: a.Consensus,
		Prefs:     learner,
		Metrics:   a.Metrics,
		Validator: validate,
		Logger:    logger,
		Config:    service.BlockServiceConfig{Grid: grid},
	})
	a.Courses = service.NewCourseService(courses, learner, validate, logger, cfg.Planner.ActiveTerm)
	a.Constraints = service.NewConstraintService(constraints, plans, validate, logger)
	a.Views = service.NewScheduleViewService(plans, constraints, fixed)

	var store *storage.LocalStorage
	var signer *storage.SignedURLSigner
	if cfg.Export.Dir != "" {
		store, err = storage.NewLocalStorage(cfg.Export.Dir)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("export storage: %w", err)
		}
		signer = storage.NewSignedURLSigner(cfg.Export.Secret, cfg.Export.LinkTTL)
	}
	exportCfg := service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Export.LinkTTL, Location: location}
	if store != nil {
		a.Exports = service.NewExportService(a.Views, store, signer, exportCfg, logger)
	} else {
		a.Exports = service.NewExportService(a.Views, nil, nil, exportCfg, logger)
	}

	var optimizer service.SlotOptimizer
	if cfg.Oracle.Enabled {
		optimizer = service.NewHTTPSlotOptimizer(service.OracleConfig{
			BaseURL: cfg.Oracle.BaseURL,
			APIKey:  cfg.Oracle.APIKey,
			Model:   cfg.Oracle.Model,
			Timeout: cfg.Oracle.Timeout,
		}, nil, logger)
	}
	a.Planner = service.NewWeeklyPlannerService(service.WeeklyPlannerParams{
		Plans:     plans,
		Occupancy: conflicts,
		Courses:   courses,
		Groups:    groups,
		Prefs:     prefs,
		Seeder:    learner,
		Optimizer: optimizer,
		Locker:    locker,
		Notifier:  a.Notifications,
		Metrics:   a.Metrics,
		Logger:    logger,
		Config: service.WeeklyPlannerConfig{
			Grid:       grid,
			MinWeek:    minWeek,
			ActiveTerm: cfg.Planner.ActiveTerm,
			Workers:    cfg.Scheduler.Workers,
			LockTTL:    cfg.Scheduler.LockTTL,
			RunTimeout: cfg.Scheduler.Timeout,
		},
	})
	a.Commands = service.NewCommandService(a.Blocks, a.Constraints, a.Consensus, a.Planner, logger)

	return a, nil
}

// Start launches the notification workers.
func (a *App) Start(ctx context.Context) {
	a.queue.Start(ctx)
}

// Routes builds the HTTP handlers over the wired services.
func (a *App) Routes() handler.Routes {
	checks := map[string]handler.Pinger{"postgres": a.DB}
	if a.Redis != nil {
		client := a.Redis
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}
	return handler.Routes{
		Auth:           a.Auth,
		Logger:         a.Logger,
		Blocks:         handler.NewBlockHandler(a.Blocks),
		Constraints:    handler.NewConstraintHandler(a.Constraints),
		ChangeRequests: handler.NewChangeRequestHandler(a.Consensus),
		WeeklyPlans:    handler.NewWeeklyPlanHandler(a.Views, a.Exports, a.Planner),
		Commands:       handler.NewCommandHandler(a.Commands, nil),
		Notifications:  handler.NewNotificationHandler(a.Notifications),
		Courses:        handler.NewCourseHandler(a.Courses),
		Metrics:        handler.NewMetricsHandler(a.Metrics, checks),
	}
}

// Close drains the notification queue and releases connections.
func (a *App) Close() {
	if a.queue != nil {
		a.queue.Stop()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn("close postgres", zap.Error(err))
		}
	}
}
