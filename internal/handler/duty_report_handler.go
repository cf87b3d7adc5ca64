package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/invigilation-api/internal/dto"
	"github.com/noah-isme/invigilation-api/internal/models"
	"github.com/noah-isme/invigilation-api/pkg/response"
)

type dutyReportService interface {
	Submit(ctx context.Context, actor *models.JWTClaims, req dto.DutyReportRequest) (*models.DutyReport, error)
	List(ctx context.Context, actor *models.JWTClaims, query dto.DutyReportQuery) ([]models.DutyReport, error)
	Update(ctx context.Context, actor *models.JWTClaims, id string, req dto.DutyReportUpdateRequest) (*models.DutyReport, error)
	Delete(ctx context.Context, id string) error
}

// DutyReportHandler accepts and lists post-exam duty reports.
type DutyReportHandler struct {
	service dutyReportService
}

// NewDutyReportHandler constructs the handler.
func NewDutyReportHandler(service dutyReportService) *DutyReportHandler {
	return &DutyReportHandler{service: service}
}

// Submit godoc
// @Summary File a duty report
// @Description Invigilators file for themselves; the invigilator must be assigned to the exam
// @Tags DutyReports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.DutyReportRequest true "Duty report payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /duty-reports [post]
func (h *DutyReportHandler) Submit(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.DutyReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid duty report payload"))
		return
	}
	report, err := h.service.Submit(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, report)
}

// List godoc
// @Summary List duty reports
// @Tags DutyReports
// @Produce json
// @Security BearerAuth
// @Param exam_id query string false "Exam ID"
// @Param invigilator_id query string false "Invigilator ID"
// @Success 200 {object} response.Envelope
// @Router /duty-reports [get]
func (h *DutyReportHandler) List(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var query dto.DutyReportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, invalidPayload(err, "invalid query parameters"))
		return
	}
	reports, err := h.service.List(c.Request.Context(), claims, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reports, nil)
}

// Update godoc
// @Summary Correct a duty report
// @Tags DutyReports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report ID"
// @Param payload body dto.DutyReportUpdateRequest true "Correction"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /duty-reports/{id} [put]
func (h *DutyReportHandler) Update(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.DutyReportUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid payload"))
		return
	}
	report, err := h.service.Update(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Delete godoc
// @Summary Delete a duty report
// @Tags DutyReports
// @Security BearerAuth
// @Param id path string true "Report ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /duty-reports/{id} [delete]
func (h *DutyReportHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
