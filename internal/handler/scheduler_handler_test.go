package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/invigilation-api/internal/dto"
	"github.com/noah-isme/invigilation-api/internal/models"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
)

type fakeSchedulerSrv struct {
	plan     dto.PlanRequest
	planResp *dto.PlanResponse
	count    int
	result   *models.ValidationResult
	err      error
}

func (f *fakeSchedulerSrv) Plan(_ context.Context, req dto.PlanRequest) (*dto.PlanResponse, error) {
	f.plan = req
	return f.planResp, f.err
}

func (f *fakeSchedulerSrv) Requirements(studentCount int) (*dto.RequirementResponse, error) {
	f.count = studentCount
	if studentCount <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_count must be positive")
	}
	return &dto.RequirementResponse{StudentCount: studentCount, Required: 2, Rule: "tiered"}, nil
}

func (f *fakeSchedulerSrv) Validate(context.Context, dto.ValidateBookingRequest) (*models.ValidationResult, error) {
	return f.result, f.err
}

func TestSchedulerHandlerPlanPreview(t *testing.T) {
	srv := &fakeSchedulerSrv{planResp: &dto.PlanResponse{Scheduled: []dto.ScheduledExam{{}}, Unscheduled: []string{}}}
	handler := NewSchedulerHandler(srv)
	c, rec := newTestContext(http.MethodPost, "/scheduler/plan", `{"commit":false,"requests":[{"id":"math","subject_name":"Math","subject_code":"M1","exam_date":"2024-01-10","start_time":"09:00","end_time":"11:00","student_count":25}]}`)

	handler.Plan(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, srv.plan.Commit)
	assert.Len(t, srv.plan.Requests, 1)
	assert.Equal(t, "math", srv.plan.Requests[0].ID)
}

func TestSchedulerHandlerPlanCommitReturnsCreated(t *testing.T) {
	srv := &fakeSchedulerSrv{planResp: &dto.PlanResponse{Scheduled: []dto.ScheduledExam{{ExamID: "exam-1"}}, Committed: true}}
	handler := NewSchedulerHandler(srv)
	c, rec := newTestContext(http.MethodPost, "/scheduler/plan", `{"commit":true,"requests":[{"id":"math","subject_name":"Math","subject_code":"M1","exam_date":"2024-01-10","start_time":"09:00","end_time":"11:00","student_count":25}]}`)

	handler.Plan(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, srv.plan.Commit)
}

func TestSchedulerHandlerPlanConcurrentCommit(t *testing.T) {
	srv := &fakeSchedulerSrv{err: appErrors.Clone(appErrors.ErrConflict, "concurrent booking detected, retry")}
	handler := NewSchedulerHandler(srv)
	c, rec := newTestContext(http.MethodPost, "/scheduler/plan", `{"commit":true,"requests":[]}`)

	handler.Plan(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSchedulerHandlerRequirements(t *testing.T) {
	srv := &fakeSchedulerSrv{}
	handler := NewSchedulerHandler(srv)

	c, rec := newTestContext(http.MethodGet, "/scheduler/requirements?student_count=45", "")
	handler.Requirements(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 45, srv.count)
	assert.Equal(t, float64(2), decodeEnvelope(t, rec).Data["required_invigilators"])

	c, rec = newTestContext(http.MethodGet, "/scheduler/requirements?student_count=many", "")
	handler.Requirements(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newTestContext(http.MethodGet, "/scheduler/requirements?student_count=0", "")
	handler.Requirements(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSchedulerHandlerValidateReturnsInvalidResultWith200(t *testing.T) {
	srv := &fakeSchedulerSrv{result: &models.ValidationResult{
		Valid:     false,
		Conflicts: models.BookingConflicts{Overloaded: []string{"inv-1"}},
		Required:  2,
		Supplied:  1,
	}}
	handler := NewSchedulerHandler(srv)
	c, rec := newTestContext(http.MethodPost, "/scheduler/validate", `{"room_id":"room-1","exam_date":"2024-01-10","start_time":"09:00","end_time":"11:00","student_count":45,"invigilator_ids":["inv-1"]}`)

	handler.Validate(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, false, envelope.Data["valid"])
	assert.Equal(t, float64(1), envelope.Data["supplied_invigilators"])
}
