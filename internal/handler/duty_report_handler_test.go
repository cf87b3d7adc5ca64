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

type fakeDutyReportSrv struct {
	actor   *models.JWTClaims
	req     dto.DutyReportRequest
	query   dto.DutyReportQuery
	update  dto.DutyReportUpdateRequest
	deleted string
	err     error
}

func (f *fakeDutyReportSrv) Submit(_ context.Context, actor *models.JWTClaims, req dto.DutyReportRequest) (*models.DutyReport, error) {
	f.actor = actor
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.DutyReport{ID: "report-1", ExamID: req.ExamID, InvigilatorID: actor.InvigilatorID}, nil
}

func (f *fakeDutyReportSrv) List(_ context.Context, actor *models.JWTClaims, query dto.DutyReportQuery) ([]models.DutyReport, error) {
	f.actor = actor
	f.query = query
	return []models.DutyReport{}, f.err
}

func (f *fakeDutyReportSrv) Update(_ context.Context, actor *models.JWTClaims, id string, req dto.DutyReportUpdateRequest) (*models.DutyReport, error) {
	f.actor = actor
	f.update = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.DutyReport{ID: id, AttendanceStatus: req.AttendanceStatus}, nil
}

func (f *fakeDutyReportSrv) Delete(_ context.Context, id string) error {
	f.deleted = id
	return f.err
}

func TestDutyReportHandlerSubmit(t *testing.T) {
	srv := &fakeDutyReportSrv{}
	handler := NewDutyReportHandler(srv)
	c, rec := newTestContext(http.MethodPost, "/duty-reports", `{"exam_id":"exam-1","attendance_status":"PRESENT"}`)
	withClaims(c, &models.JWTClaims{UserID: "user-1", Role: models.RoleInvigilator, InvigilatorID: "inv-1"})

	handler.Submit(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "exam-1", srv.req.ExamID)
	assert.Equal(t, models.AttendanceStatus("PRESENT"), srv.req.AttendanceStatus)
	assert.Equal(t, "inv-1", srv.actor.InvigilatorID)
}

func TestDutyReportHandlerSubmitForOtherInvigilator(t *testing.T) {
	handler := NewDutyReportHandler(&fakeDutyReportSrv{err: appErrors.ErrForbidden})
	c, rec := newTestContext(http.MethodPost, "/duty-reports", `{"exam_id":"exam-1","invigilator_id":"inv-2","attendance_status":"LATE"}`)
	withClaims(c, &models.JWTClaims{UserID: "user-1", Role: models.RoleInvigilator, InvigilatorID: "inv-1"})

	handler.Submit(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDutyReportHandlerListBindsFilters(t *testing.T) {
	srv := &fakeDutyReportSrv{}
	handler := NewDutyReportHandler(srv)
	c, rec := newTestContext(http.MethodGet, "/duty-reports?exam_id=exam-1&invigilator_id=inv-3", "")
	withClaims(c, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.DutyReportQuery{ExamID: "exam-1", InvigilatorID: "inv-3"}, srv.query)
}

func TestDutyReportHandlerRequiresClaims(t *testing.T) {
	handler := NewDutyReportHandler(&fakeDutyReportSrv{})
	c, rec := newTestContext(http.MethodGet, "/duty-reports", "")

	handler.List(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDutyReportHandlerUpdate(t *testing.T) {
	srv := &fakeDutyReportSrv{}
	c, rec := newTestContext(http.MethodPut, "/duty-reports/rep-1", `{"attendance_status":"LATE","report_text":"bus"}`)
	c.AddParam("id", "rep-1")
	withClaims(c, &models.JWTClaims{UserID: "u-inv", Role: models.RoleInvigilator, InvigilatorID: "inv-1"})

	NewDutyReportHandler(srv).Update(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.AttendanceLate, srv.update.AttendanceStatus)
	assert.Equal(t, "inv-1", srv.actor.InvigilatorID)
}

func TestDutyReportHandlerDeleteMissing(t *testing.T) {
	srv := &fakeDutyReportSrv{err: appErrors.Clone(appErrors.ErrNotFound, "duty report not found")}
	c, rec := newTestContext(http.MethodDelete, "/duty-reports/rep-9", "")
	c.AddParam("id", "rep-9")

	NewDutyReportHandler(srv).Delete(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "rep-9", srv.deleted)
}
