package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/invigilation-api/internal/dto"
	"github.com/noah-isme/invigilation-api/internal/models"
	"github.com/noah-isme/invigilation-api/pkg/response"
)

type examService interface {
	List(ctx context.Context, query dto.ExamQuery) ([]models.Exam, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Exam, error)
	Create(ctx context.Context, req dto.ExamRequest) (*models.Exam, error)
	Update(ctx context.Context, id string, req dto.ExamRequest) (*models.Exam, error)
	Delete(ctx context.Context, id string) error
	AddInvigilator(ctx context.Context, examID string, req dto.AssignInvigilatorRequest) (*models.Exam, error)
	RemoveInvigilator(ctx context.Context, examID, invigilatorID string) error
}

// ExamHandler exposes exam bookings and their invigilator assignments.
type ExamHandler struct {
	service examService
}

// NewExamHandler constructs the handler.
func NewExamHandler(service examService) *ExamHandler {
	return &ExamHandler{service: service}
}

// List godoc
// @Summary List exams
// @Tags Exams
// @Produce json
// @Security BearerAuth
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param room_id query string false "Room ID"
// @Param department_id query string false "Department ID"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /exams [get]
func (h *ExamHandler) List(c *gin.Context) {
	var query dto.ExamQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, invalidPayload(err, "invalid query parameters"))
		return
	}
	exams, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exams, pagination)
}

// Get godoc
// @Summary Get exam
// @Tags Exams
// @Produce json
// @Security BearerAuth
// @Param id path string true "Exam ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exams/{id} [get]
func (h *ExamHandler) Get(c *gin.Context) {
	exam, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exam, nil)
}

// Create godoc
// @Summary Book an exam
// @Description Validates room, invigilator and workload conflicts before persisting
// @Tags Exams
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.ExamRequest true "Exam payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /exams [post]
func (h *ExamHandler) Create(c *gin.Context) {
	var req dto.ExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid exam payload"))
		return
	}
	exam, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, exam)
}

// Update godoc
// @Summary Update an exam booking
// @Description Revalidates the booking excluding itself; the invigilator set is replaced
// @Tags Exams
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Exam ID"
// @Param payload body dto.ExamRequest true "Exam payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exams/{id} [put]
func (h *ExamHandler) Update(c *gin.Context) {
	var req dto.ExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid exam payload"))
		return
	}
	exam, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exam, nil)
}

// Delete godoc
// @Summary Delete exam
// @Tags Exams
// @Security BearerAuth
// @Param id path string true "Exam ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /exams/{id} [delete]
func (h *ExamHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AddInvigilator godoc
// @Summary Assign an invigilator to an exam
// @Tags Exams
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Exam ID"
// @Param payload body dto.AssignInvigilatorRequest true "Assignment payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /exams/{id}/invigilators [post]
func (h *ExamHandler) AddInvigilator(c *gin.Context) {
	var req dto.AssignInvigilatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid assignment payload"))
		return
	}
	exam, err := h.service.AddInvigilator(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exam, nil)
}

// RemoveInvigilator godoc
// @Summary Remove an invigilator from an exam
// @Tags Exams
// @Security BearerAuth
// @Param id path string true "Exam ID"
// @Param invigilatorId path string true "Invigilator ID"
// @Success 204
// @Failure 400 {object} response.Envelope "exam would fall below its required invigilators"
// @Failure 404 {object} response.Envelope
// @Router /exams/{id}/invigilators/{invigilatorId} [delete]
func (h *ExamHandler) RemoveInvigilator(c *gin.Context) {
	if err := h.service.RemoveInvigilator(c.Request.Context(), c.Param("id"), c.Param("invigilatorId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
