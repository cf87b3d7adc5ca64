package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/invigilation-api/internal/dto"
	"github.com/noah-isme/invigilation-api/internal/models"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
)

type fakeExamSrv struct {
	created   dto.ExamRequest
	updatedID string
	query     dto.ExamQuery
	assigned  dto.AssignInvigilatorRequest
	removed   [2]string
	err       error
}

func (f *fakeExamSrv) List(_ context.Context, query dto.ExamQuery) ([]models.Exam, *models.Pagination, error) {
	f.query = query
	return []models.Exam{{ID: "exam-1"}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, f.err
}

func (f *fakeExamSrv) Get(_ context.Context, id string) (*models.Exam, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Exam{ID: id}, nil
}

func (f *fakeExamSrv) Create(_ context.Context, req dto.ExamRequest) (*models.Exam, error) {
	f.created = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.Exam{ID: "exam-new", InvigilatorIDs: req.InvigilatorIDs}, nil
}

func (f *fakeExamSrv) Update(_ context.Context, id string, req dto.ExamRequest) (*models.Exam, error) {
	f.updatedID = id
	return &models.Exam{ID: id}, f.err
}

func (f *fakeExamSrv) Delete(context.Context, string) error { return f.err }

func (f *fakeExamSrv) AddInvigilator(_ context.Context, examID string, req dto.AssignInvigilatorRequest) (*models.Exam, error) {
	f.assigned = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.Exam{ID: examID, InvigilatorIDs: []string{req.InvigilatorID}}, nil
}

func (f *fakeExamSrv) RemoveInvigilator(_ context.Context, examID, invigilatorID string) error {
	f.removed = [2]string{examID, invigilatorID}
	return f.err
}

const examPayload = `{"subject_name":"Math","subject_code":"M1","exam_date":"2024-01-10","start_time":"09:00","end_time":"11:00","room_id":"room-1","student_count":45,"invigilator_ids":["inv-1","inv-2"]}`

func TestExamHandlerCreate(t *testing.T) {
	srv := &fakeExamSrv{}
	handler := NewExamHandler(srv)
	c, rec := newTestContext(http.MethodPost, "/exams", examPayload)

	handler.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "room-1", srv.created.RoomID)
	assert.Equal(t, []string{"inv-1", "inv-2"}, srv.created.InvigilatorIDs)
	assert.Equal(t, "exam-new", decodeEnvelope(t, rec).Data["id"])
}

func TestExamHandlerCreateSurfacesConflictDetails(t *testing.T) {
	details := map[string]interface{}{"room": []string{"exam-9"}, "required": 2, "supplied": 2}
	handler := NewExamHandler(&fakeExamSrv{err: appErrors.WithDetails(appErrors.ErrRoomConflict, "", details)})
	c, rec := newTestContext(http.MethodPost, "/exams", examPayload)

	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	envelope := decodeEnvelope(t, rec)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, appErrors.ErrRoomConflict.Code, envelope.Error.Code)
	assert.Equal(t, float64(2), envelope.Error.Details["required"])
}

func TestExamHandlerUpdateUsesPathID(t *testing.T) {
	srv := &fakeExamSrv{}
	handler := NewExamHandler(srv)
	c, rec := newTestContext(http.MethodPut, "/exams/exam-3", examPayload)
	c.AddParam("id", "exam-3")

	handler.Update(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "exam-3", srv.updatedID)
}

func TestExamHandlerListBindsFilters(t *testing.T) {
	srv := &fakeExamSrv{}
	handler := NewExamHandler(srv)
	c, rec := newTestContext(http.MethodGet, "/exams?from=2024-01-01&to=2024-01-31&room_id=room-1&page=2", "")

	handler.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-01-01", srv.query.From)
	assert.Equal(t, "room-1", srv.query.RoomID)
	assert.Equal(t, 2, srv.query.Page)
	assert.Contains(t, rec.Body.String(), `"pagination"`)
}

func TestExamHandlerGetNotFound(t *testing.T) {
	handler := NewExamHandler(&fakeExamSrv{err: appErrors.Clone(appErrors.ErrNotFound, "exam not found")})
	c, rec := newTestContext(http.MethodGet, "/exams/missing", "")
	c.AddParam("id", "missing")

	handler.Get(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExamHandlerAssignmentRoutes(t *testing.T) {
	srv := &fakeExamSrv{}
	handler := NewExamHandler(srv)

	c, rec := newTestContext(http.MethodPost, "/exams/exam-1/invigilators", `{"invigilator_id":"inv-4"}`)
	c.AddParam("id", "exam-1")
	handler.AddInvigilator(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "inv-4", srv.assigned.InvigilatorID)

	c, rec = newTestContext(http.MethodDelete, "/exams/exam-1/invigilators/inv-4", "")
	c.AddParam("id", "exam-1")
	c.AddParam("invigilatorId", "inv-4")
	handler.RemoveInvigilator(c)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, [2]string{"exam-1", "inv-4"}, srv.removed)
}

func TestExamHandlerAddInvigilatorDuplicate(t *testing.T) {
	handler := NewExamHandler(&fakeExamSrv{err: appErrors.ErrDuplicateAssignment})
	c, rec := newTestContext(http.MethodPost, "/exams/exam-1/invigilators", `{"invigilator_id":"inv-1"}`)
	c.AddParam("id", "exam-1")

	handler.AddInvigilator(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "already assigned")
}
