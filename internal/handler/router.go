package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/study-planner-api/internal/middleware"
	"github.com/noah-isme/study-planner-api/internal/models"
)

// Routes bundles the handlers mounted under the API prefix.
type Routes struct {
	Auth           middleware.TokenValidator
	Logger         *zap.Logger
	Blocks         *BlockHandler
	Constraints    *ConstraintHandler
	ChangeRequests *ChangeRequestHandler
	WeeklyPlans    *WeeklyPlanHandler
	Commands       *CommandHandler
	Notifications  *NotificationHandler
	Courses        *CourseHandler
	Metrics        *MetricsHandler
}

// Register mounts operational endpoints at the root and the planner API under prefix.
func (rt Routes) Register(r *gin.Engine, prefix string) {
	if rt.Metrics != nil {
		r.GET("/health", rt.Metrics.Health)
		r.GET("/ready", rt.Metrics.Ready)
		r.GET("/metrics", rt.Metrics.Prometheus)
	}

	api := r.Group(prefix)
	if rt.WeeklyPlans != nil {
		api.GET("/exports/:token", rt.WeeklyPlans.Download)
	}

	secured := api.Group("")
	secured.Use(middleware.JWT(rt.Auth))

	if rt.Blocks != nil {
		blocks := secured.Group("/blocks")
		blocks.POST("", middleware.Audit(rt.Logger, "create", "block"), rt.Blocks.Create)
		blocks.POST("/move", middleware.Audit(rt.Logger, "move", "block"), rt.Blocks.Move)
		blocks.POST("/resize", middleware.Audit(rt.Logger, "resize", "block"), rt.Blocks.Resize)
	}

	if rt.Constraints != nil {
		constraints := secured.Group("/constraints")
		constraints.GET("", rt.Constraints.List)
		constraints.POST("", middleware.Audit(rt.Logger, "create", "constraint"), rt.Constraints.Create)
		constraints.DELETE("/:id", middleware.Audit(rt.Logger, "delete", "constraint"), rt.Constraints.Delete)
	}

	if rt.ChangeRequests != nil {
		requests := secured.Group("/change-requests")
		requests.GET("/pending", rt.ChangeRequests.Pending)
		requests.GET("/:id", rt.ChangeRequests.Get)
		requests.POST("/:id/approve", middleware.Audit(rt.Logger, "approve", "change_request"), rt.ChangeRequests.Approve)
		requests.POST("/:id/reject", middleware.Audit(rt.Logger, "reject", "change_request"), rt.ChangeRequests.Reject)
	}

	if rt.WeeklyPlans != nil {
		plans := secured.Group("/weekly-plans")
		plans.POST("/generate", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(rt.Logger, "generate", "weekly_plan"), rt.WeeklyPlans.Generate)
		plans.GET("/:week", rt.WeeklyPlans.Get)
		plans.GET("/:week/export", rt.WeeklyPlans.Export)
		plans.POST("/:week/exports", rt.WeeklyPlans.Publish)
	}

	if rt.Notifications != nil {
		notifications := secured.Group("/notifications")
		notifications.GET("", rt.Notifications.List)
		notifications.POST("/read-all", middleware.Audit(rt.Logger, "read_all", "notification"), rt.Notifications.MarkAllRead)
		notifications.POST("/:id/read", middleware.Audit(rt.Logger, "read", "notification"), rt.Notifications.MarkRead)
	}

	if rt.Courses != nil {
		enrollments := secured.Group("/enrollments")
		enrollments.GET("", rt.Courses.List)
		enrollments.POST("", middleware.Audit(rt.Logger, "create", "enrollment"), rt.Courses.Enroll)
	}

	if rt.Commands != nil {
		secured.POST("/commands", middleware.Audit(rt.Logger, "execute", "command"), rt.Commands.Execute)
	}
}
