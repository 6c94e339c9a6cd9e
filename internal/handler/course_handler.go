package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/internal/models"
	"github.com/noah-isme/study-planner-api/pkg/response"
)

type courseService interface {
	Enroll(ctx context.Context, userID string, req dto.EnrollRequest) (*dto.EnrollResponse, error)
	List(ctx context.Context, userID string) ([]models.Enrollment, error)
}

// CourseHandler manages the caller's enrollments.
type CourseHandler struct {
	service courseService
}

// NewCourseHandler constructs the handler.
func NewCourseHandler(service courseService) *CourseHandler {
	return &CourseHandler{service: service}
}

// List godoc
// @Summary List the caller's active enrollments
// @Tags Courses
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *CourseHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	items, err := h.service.List(c.Request.Context(), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, map[string]interface{}{"count": len(items)})
}

// Enroll godoc
// @Summary Enroll in a catalog course
// @Description Returns 201 for a new enrollment and 200 when the caller is already enrolled.
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body dto.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments [post]
func (h *CourseHandler) Enroll(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.EnrollRequest
	if !bindJSON(c, &req, "invalid enrollment payload") {
		return
	}
	resp, err := h.service.Enroll(c.Request.Context(), actor.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if resp.Status == dto.EnrollmentAlreadyExists {
		response.JSON(c, http.StatusOK, resp)
		return
	}
	response.Created(c, resp)
}
