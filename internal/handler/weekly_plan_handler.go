package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/internal/service"
	"github.com/noah-isme/study-planner-api/internal/timegrid"
	"github.com/noah-isme/study-planner-api/pkg/export"
	"github.com/noah-isme/study-planner-api/pkg/response"
)

type weekViewService interface {
	GetWeek(ctx context.Context, userID, rawWeek string) (*dto.WeekView, error)
}

type planExportService interface {
	Render(ctx context.Context, userID, rawWeek, rawFormat string) (*service.ExportFile, error)
	Publish(ctx context.Context, userID, rawWeek, rawFormat string) (*service.ExportLink, error)
	Open(token string) (*os.File, export.Format, error)
}

type weeklyRunService interface {
	Generate(ctx context.Context, rawWeek string) (*dto.WeeklyRunReport, error)
	NextWeek() time.Time
}

// WeeklyPlanHandler serves plan views, exports and generation runs.
type WeeklyPlanHandler struct {
	views   weekViewService
	exports planExportService
	runs    weeklyRunService
}

// NewWeeklyPlanHandler constructs the handler.
func NewWeeklyPlanHandler(views weekViewService, exports planExportService, runs weeklyRunService) *WeeklyPlanHandler {
	return &WeeklyPlanHandler{views: views, exports: exports, runs: runs}
}

// Get godoc
// @Summary Get the caller's weekly plan
// @Tags Weekly Plans
// @Produce json
// @Param week path string true "Week start (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /weekly-plans/{week} [get]
func (h *WeeklyPlanHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	view, err := h.views.GetWeek(c.Request.Context(), actor.UserID, c.Param("week"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// Export godoc
// @Summary Download the caller's weekly plan
// @Tags Weekly Plans
// @Produce octet-stream
// @Param week path string true "Week start (YYYY-MM-DD)"
// @Param format query string false "csv, pdf, xlsx or ics" default(csv)
// @Success 200 {file} file
// @Router /weekly-plans/{week}/export [get]
func (h *WeeklyPlanHandler) Export(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	file, err := h.exports.Render(c.Request.Context(), actor.UserID, c.Param("week"), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// Publish godoc
// @Summary Store the caller's weekly plan behind a signed download link
// @Tags Weekly Plans
// @Produce json
// @Param week path string true "Week start (YYYY-MM-DD)"
// @Param format query string false "csv, pdf, xlsx or ics" default(csv)
// @Success 201 {object} response.Envelope
// @Router /weekly-plans/{week}/exports [post]
func (h *WeeklyPlanHandler) Publish(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	link, err := h.exports.Publish(c.Request.Context(), actor.UserID, c.Param("week"), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, link)
}

// Download godoc
// @Summary Download a stored export by signed token
// @Tags Weekly Plans
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *WeeklyPlanHandler) Download(c *gin.Context) {
	file, format, err := h.exports.Open(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, err)
		return
	}
	headers := map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", filepath.Base(file.Name())),
	}
	c.DataFromReader(http.StatusOK, info.Size(), format.ContentType(), file, headers)
}

// Generate godoc
// @Summary Regenerate plans for a week
// @Description Without a week the run targets the week after the current one.
// @Tags Weekly Plans
// @Accept json
// @Produce json
// @Param payload body dto.GenerateWeekRequest false "Target week"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /weekly-plans/generate [post]
func (h *WeeklyPlanHandler) Generate(c *gin.Context) {
	var req dto.GenerateWeekRequest
	if c.Request.ContentLength != 0 {
		if !bindJSON(c, &req, "invalid generation payload") {
			return
		}
	}
	week := req.WeekStart
	if week == "" {
		week = timegrid.FormatWeek(h.runs.NextWeek())
	}
	report, err := h.runs.Generate(c.Request.Context(), week)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report)
}
