package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/invigilation-api/internal/dto"
	"github.com/noah-isme/invigilation-api/internal/middleware"
	"github.com/noah-isme/invigilation-api/internal/models"
	"github.com/noah-isme/invigilation-api/pkg/response"
)

type invigilatorService interface {
	List(ctx context.Context, query dto.InvigilatorQuery) ([]models.Invigilator, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Invigilator, error)
	Create(ctx context.Context, req dto.CreateInvigilatorRequest) (*models.Invigilator, error)
	Update(ctx context.Context, id string, req dto.UpdateInvigilatorRequest) (*models.Invigilator, error)
	SetStatus(ctx context.Context, id string, req dto.InvigilatorStatusRequest) (*models.Invigilator, error)
	Delete(ctx context.Context, id string) error
	Schedule(ctx context.Context, id string, query dto.ScheduleQuery) ([]models.Exam, error)
	Availability(ctx context.Context, query dto.AvailabilityQuery) ([]models.InvigilatorAvailability, error)
	Workload(ctx context.Context) ([]models.InvigilatorWorkload, bool, error)
	Preferences(ctx context.Context, id string) (*models.InvigilatorPreference, error)
	UpdatePreferences(ctx context.Context, id string, req dto.PreferenceRequest) (*models.InvigilatorPreference, error)
}

// InvigilatorHandler exposes invigilator records, their duties and preferences.
type InvigilatorHandler struct {
	service invigilatorService
}

// NewInvigilatorHandler constructs the handler.
func NewInvigilatorHandler(service invigilatorService) *InvigilatorHandler {
	return &InvigilatorHandler{service: service}
}

// List godoc
// @Summary List invigilators
// @Tags Invigilators
// @Produce json
// @Security BearerAuth
// @Param department_id query string false "Department ID"
// @Param status query string false "active or inactive"
// @Param search query string false "Name or email"
// @Success 200 {object} response.Envelope
// @Router /invigilators [get]
func (h *InvigilatorHandler) List(c *gin.Context) {
	var query dto.InvigilatorQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, invalidPayload(err, "invalid query parameters"))
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get invigilator
// @Tags Invigilators
// @Produce json
// @Security BearerAuth
// @Param id path string true "Invigilator ID"
// @Success 200 {object} response.Envelope
// @Router /invigilators/{id} [get]
func (h *InvigilatorHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Register invigilator
// @Description A password also provisions an INVIGILATOR sign-in account
// @Tags Invigilators
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateInvigilatorRequest true "Invigilator payload"
// @Success 201 {object} response.Envelope
// @Router /invigilators [post]
func (h *InvigilatorHandler) Create(c *gin.Context) {
	var req dto.CreateInvigilatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid invigilator payload"))
		return
	}
	item, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Update invigilator
// @Tags Invigilators
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Invigilator ID"
// @Param payload body dto.UpdateInvigilatorRequest true "Invigilator payload"
// @Success 200 {object} response.Envelope
// @Router /invigilators/{id} [put]
func (h *InvigilatorHandler) Update(c *gin.Context) {
	var req dto.UpdateInvigilatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid invigilator payload"))
		return
	}
	item, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// SetStatus godoc
// @Summary Activate or deactivate invigilator
// @Tags Invigilators
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Invigilator ID"
// @Param payload body dto.InvigilatorStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /invigilators/{id}/status [patch]
func (h *InvigilatorHandler) SetStatus(c *gin.Context) {
	var req dto.InvigilatorStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid status payload"))
		return
	}
	item, err := h.service.SetStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Delete invigilator
// @Tags Invigilators
// @Security BearerAuth
// @Param id path string true "Invigilator ID"
// @Success 204
// @Router /invigilators/{id} [delete]
func (h *InvigilatorHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Schedule godoc
// @Summary Duties assigned to an invigilator
// @Tags Invigilators
// @Produce json
// @Security BearerAuth
// @Param id path string true "Invigilator ID"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /invigilators/{id}/schedule [get]
func (h *InvigilatorHandler) Schedule(c *gin.Context) {
	var query dto.ScheduleQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, invalidPayload(err, "invalid query parameters"))
		return
	}
	exams, err := h.service.Schedule(c.Request.Context(), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exams, nil)
}

// Availability godoc
// @Summary Invigilator availability for a slot
// @Tags Invigilators
// @Produce json
// @Security BearerAuth
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param start_time query string true "Start (HH:MM)"
// @Param end_time query string true "End (HH:MM)"
// @Success 200 {object} response.Envelope
// @Router /invigilators/availability [get]
func (h *InvigilatorHandler) Availability(c *gin.Context) {
	var query dto.AvailabilityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, invalidPayload(err, "invalid query parameters"))
		return
	}
	items, err := h.service.Availability(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Workload godoc
// @Summary Upcoming duty counts per invigilator
// @Tags Invigilators
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /invigilators/workload [get]
func (h *InvigilatorHandler) Workload(c *gin.Context) {
	items, hit, err := h.service.Workload(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, items, nil, middleware.ExtractMeta(c))
}

// Preferences godoc
// @Summary Duty preferences
// @Description Returns configured defaults with is_default=true when none were saved
// @Tags Invigilators
// @Produce json
// @Security BearerAuth
// @Param id path string true "Invigilator ID"
// @Success 200 {object} response.Envelope
// @Router /invigilators/{id}/preferences [get]
func (h *InvigilatorHandler) Preferences(c *gin.Context) {
	pref, err := h.service.Preferences(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pref, nil)
}

// UpdatePreferences godoc
// @Summary Replace duty preferences
// @Tags Invigilators
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Invigilator ID"
// @Param payload body dto.PreferenceRequest true "Preference payload"
// @Success 200 {object} response.Envelope
// @Router /invigilators/{id}/preferences [put]
func (h *InvigilatorHandler) UpdatePreferences(c *gin.Context) {
	var req dto.PreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid preference payload"))
		return
	}
	pref, err := h.service.UpdatePreferences(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pref, nil)
}
