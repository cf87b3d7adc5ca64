package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/invigilation-api/internal/dto"
	"github.com/noah-isme/invigilation-api/internal/models"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
	"github.com/noah-isme/invigilation-api/pkg/response"
)

type schedulerService interface {
	Plan(ctx context.Context, req dto.PlanRequest) (*dto.PlanResponse, error)
	Requirements(studentCount int) (*dto.RequirementResponse, error)
	Validate(ctx context.Context, req dto.ValidateBookingRequest) (*models.ValidationResult, error)
}

// SchedulerHandler exposes the planner and the conflict checker.
type SchedulerHandler struct {
	service schedulerService
}

// NewSchedulerHandler constructs the handler.
func NewSchedulerHandler(service schedulerService) *SchedulerHandler {
	return &SchedulerHandler{service: service}
}

// Plan godoc
// @Summary Plan exam placements
// @Description Greedily assigns a room and invigilators to each request; commit=true persists the plan atomically
// @Tags Scheduler
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.PlanRequest true "Plan payload"
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /scheduler/plan [post]
func (h *SchedulerHandler) Plan(c *gin.Context) {
	var req dto.PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid plan payload"))
		return
	}
	plan, err := h.service.Plan(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if plan.Committed && len(plan.Scheduled) > 0 {
		status = http.StatusCreated
	}
	response.JSON(c, status, plan, nil)
}

// Requirements godoc
// @Summary Required invigilators for a cohort
// @Tags Scheduler
// @Produce json
// @Security BearerAuth
// @Param student_count query int true "Student count"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /scheduler/requirements [get]
func (h *SchedulerHandler) Requirements(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("student_count"))
	count, err := strconv.Atoi(raw)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "student_count must be an integer"))
		return
	}
	res, err := h.service.Requirements(count)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Validate godoc
// @Summary Preview booking conflicts
// @Description Runs every conflict check without persisting; invalid bookings still return 200
// @Tags Scheduler
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.ValidateBookingRequest true "Booking payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /scheduler/validate [post]
func (h *SchedulerHandler) Validate(c *gin.Context) {
	var req dto.ValidateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid booking payload"))
		return
	}
	result, err := h.service.Validate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
