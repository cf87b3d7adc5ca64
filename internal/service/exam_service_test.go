package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/invigilation-api/internal/dto"
	"github.com/noah-isme/invigilation-api/internal/models"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
)

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

type stubExamStore struct {
	exams     map[string]*models.Exam
	assigned  map[string]bool
	created   []*models.Exam
	updated   []*models.Exam
	added     []string
	removed   []string
	createErr error
	removeErr error
	deleteErr error
}

func (s *stubExamStore) List(context.Context, models.ExamFilter) ([]models.Exam, int, error) {
	out := make([]models.Exam, 0, len(s.exams))
	for _, exam := range s.exams {
		out = append(out, *exam)
	}
	return out, len(out), nil
}

func (s *stubExamStore) FindByID(_ context.Context, id string) (*models.Exam, error) {
	if exam, ok := s.exams[id]; ok {
		clone := *exam
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubExamStore) FindByIDWithTx(ctx context.Context, _ sqlx.ExtContext, id string) (*models.Exam, error) {
	return s.FindByID(ctx, id)
}

func (s *stubExamStore) CreateWithTx(_ context.Context, _ sqlx.ExtContext, exam *models.Exam) error {
	if s.createErr != nil {
		return s.createErr
	}
	if exam.ID == "" {
		exam.ID = "exam-new"
	}
	s.created = append(s.created, exam)
	return nil
}

func (s *stubExamStore) UpdateWithTx(_ context.Context, _ sqlx.ExtContext, exam *models.Exam) error {
	if _, ok := s.exams[exam.ID]; !ok {
		return sql.ErrNoRows
	}
	s.updated = append(s.updated, exam)
	return nil
}

func (s *stubExamStore) AddInvigilatorWithTx(_ context.Context, _ sqlx.ExtContext, examID, invigilatorID string) error {
	s.added = append(s.added, examID+"|"+invigilatorID)
	return nil
}

func (s *stubExamStore) RemoveInvigilatorWithTx(_ context.Context, _ sqlx.ExtContext, examID, invigilatorID string) error {
	if s.removeErr != nil {
		return s.removeErr
	}
	s.removed = append(s.removed, examID+"|"+invigilatorID)
	return nil
}

func (s *stubExamStore) IsAssigned(_ context.Context, _ sqlx.ExtContext, examID, invigilatorID string) (bool, error) {
	return s.assigned[examID+"|"+invigilatorID], nil
}

func (s *stubExamStore) Delete(context.Context, string) error {
	return s.deleteErr
}

type stubRoomReader struct {
	rooms map[string]models.Room
}

func (s *stubRoomReader) FindByIDWithTx(_ context.Context, _ sqlx.ExtContext, id string) (*models.Room, error) {
	room, ok := s.rooms[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &room, nil
}

type stubInvigilatorLookup struct {
	invigilators map[string]models.Invigilator
}

func (s *stubInvigilatorLookup) FindByIDs(_ context.Context, _ sqlx.ExtContext, ids []string) ([]models.Invigilator, error) {
	out := make([]models.Invigilator, 0, len(ids))
	for _, id := range ids {
		if inv, ok := s.invigilators[id]; ok {
			out = append(out, inv)
		}
	}
	return out, nil
}

type examFixture struct {
	svc     *ExamService
	mock    sqlmock.Sqlmock
	exams   *stubExamStore
	store   *fakeSchedulingStore
	cache   *stubCacheRepo
	metrics *MetricsService
}

func newExamFixture(t *testing.T) *examFixture {
	t.Helper()
	tx, mock := newTxProviderMock(t)
	store := &fakeSchedulingStore{}
	exams := &stubExamStore{exams: map[string]*models.Exam{}, assigned: map[string]bool{}}
	cacheRepo := &stubCacheRepo{}
	metrics := NewMetricsService()
	inactive := activeInvigilator("inv-off", "dept-a")
	inactive.Status = models.InvigilatorInactive

	svc := NewExamService(ExamServiceParams{
		Exams: exams,
		Rooms: &stubRoomReader{rooms: map[string]models.Room{
			"room-a": {ID: "room-a", RoomNumber: "A-101", Capacity: 40},
		}},
		Invigilators: &stubInvigilatorLookup{invigilators: map[string]models.Invigilator{
			"inv-1":   activeInvigilator("inv-1", "dept-a"),
			"inv-2":   activeInvigilator("inv-2", "dept-a"),
			"inv-off": inactive,
		}},
		Tx:      tx,
		Stores:  func(sqlx.ExtContext) SchedulingStore { return store },
		Checker: newTestChecker(store),
		Cache:   NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true),
		Metrics: metrics,
		Logger:  zap.NewNop(),
	})
	return &examFixture{svc: svc, mock: mock, exams: exams, store: store, cache: cacheRepo, metrics: metrics}
}

func examRequest(invigilators ...string) dto.ExamRequest {
	return dto.ExamRequest{
		SubjectName:    "Calculus",
		SubjectCode:    "MTH101",
		ExamDate:       "2024-01-03",
		StartTime:      "09:00",
		EndTime:        "11:00",
		RoomID:         "room-a",
		StudentCount:   30,
		InvigilatorIDs: invigilators,
	}
}

func TestExamServiceCreateCommitsValidBooking(t *testing.T) {
	f := newExamFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	exam, err := f.svc.Create(context.Background(), examRequest("inv-1"))
	require.NoError(t, err)
	assert.Equal(t, "exam-new", exam.ID)
	assert.Equal(t, "2024-01-03", exam.ExamDate.String())
	assert.Equal(t, []string{"inv-1"}, exam.InvigilatorIDs)
	require.Len(t, f.exams.created, 1)
	assert.ElementsMatch(t, []string{"dash:*", "workload:*"}, f.cache.deleted)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestExamServiceCreateRejectsRoomConflictAndRollsBack(t *testing.T) {
	f := newExamFixture(t)
	f.store.exams = []models.Exam{examAt(t, "exam-1", "room-a", "2024-01-03", "10:00", "12:00")}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Create(context.Background(), examRequest("inv-1"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrRoomConflict.Code, appErr.Code)
	result, ok := appErr.Details.(*models.ValidationResult)
	require.True(t, ok)
	require.Len(t, result.Conflicts.Room, 1)
	assert.Equal(t, "exam-1", result.Conflicts.Room[0].ID)
	assert.Empty(t, f.exams.created)
	assert.Empty(t, f.cache.deleted)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestExamServiceCreateAllowsBackToBackBooking(t *testing.T) {
	f := newExamFixture(t)
	f.store.exams = []models.Exam{examAt(t, "exam-1", "room-a", "2024-01-03", "07:00", "09:00", "inv-1")}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	_, err := f.svc.Create(context.Background(), examRequest("inv-1"))
	require.NoError(t, err)
}

func TestExamServiceCreateRejectsInvalidInputBeforeTransaction(t *testing.T) {
	f := newExamFixture(t)

	req := examRequest("inv-1")
	req.StartTime, req.EndTime = "11:00", "09:00"
	_, err := f.svc.Create(context.Background(), req)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidInterval))

	req = examRequest("inv-1", "inv-1")
	_, err = f.svc.Create(context.Background(), req)
	assert.True(t, errors.Is(err, appErrors.ErrDuplicateAssignment))

	req = examRequest("inv-1")
	req.ExamDate = "03/01/2024"
	_, err = f.svc.Create(context.Background(), req)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestExamServiceCreateChecksRoomCapacity(t *testing.T) {
	f := newExamFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	req := examRequest("inv-1", "inv-2")
	req.StudentCount = 55
	_, err := f.svc.Create(context.Background(), req)
	assert.True(t, errors.Is(err, appErrors.ErrRoomCapacityExceeded))
}

func TestExamServiceCreateRejectsInactiveInvigilator(t *testing.T) {
	f := newExamFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Create(context.Background(), examRequest("inv-off"))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestExamServiceCreateInsufficientInvigilators(t *testing.T) {
	f := newExamFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Create(context.Background(), examRequest())
	assert.True(t, errors.Is(err, appErrors.ErrInsufficientInvigilators))
}

func TestExamServiceMapsSerializationFailure(t *testing.T) {
	f := newExamFixture(t)
	f.exams.createErr = &pq.Error{Code: "40001"}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Create(context.Background(), examRequest("inv-1"))
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "concurrent booking detected, retry", appErr.Message)
}

func TestExamServiceMapsExclusionViolation(t *testing.T) {
	f := newExamFixture(t)
	f.exams.createErr = &pq.Error{Code: "23P01"}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Create(context.Background(), examRequest("inv-1"))
	assert.True(t, errors.Is(err, appErrors.ErrRoomConflict))
}

func TestExamServiceStorageFailureIsUnavailable(t *testing.T) {
	f := newExamFixture(t)
	f.store.err = errors.New("connection reset")
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Create(context.Background(), examRequest("inv-1"))
	assert.True(t, errors.Is(err, appErrors.ErrStorageUnavailable))
}

func TestExamServiceUpdateExcludesItself(t *testing.T) {
	f := newExamFixture(t)
	existing := examAt(t, "exam-1", "room-a", "2024-01-03", "09:00", "11:00", "inv-1")
	f.exams.exams["exam-1"] = &existing
	f.store.exams = []models.Exam{existing}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	req := examRequest("inv-1", "inv-2")
	req.EndTime = "11:30"
	exam, err := f.svc.Update(context.Background(), "exam-1", req)
	require.NoError(t, err)
	assert.Equal(t, "exam-1", exam.ID)
	assert.Equal(t, "11:30", exam.EndTime.String())
	require.Len(t, f.exams.updated, 1)
}

func TestExamServiceUpdateMissingExam(t *testing.T) {
	f := newExamFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Update(context.Background(), "missing", examRequest("inv-1"))
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestExamServiceAddInvigilator(t *testing.T) {
	f := newExamFixture(t)
	existing := examAt(t, "exam-1", "room-a", "2024-01-03", "09:00", "11:00", "inv-1")
	f.exams.exams["exam-1"] = &existing
	f.store.exams = []models.Exam{existing}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	exam, err := f.svc.AddInvigilator(context.Background(), "exam-1", dto.AssignInvigilatorRequest{InvigilatorID: "inv-2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"inv-1", "inv-2"}, exam.InvigilatorIDs)
	assert.Equal(t, []string{"exam-1|inv-2"}, f.exams.added)
}

func TestExamServiceAddInvigilatorRejectsDuplicate(t *testing.T) {
	f := newExamFixture(t)
	existing := examAt(t, "exam-1", "room-a", "2024-01-03", "09:00", "11:00", "inv-1")
	f.exams.exams["exam-1"] = &existing
	f.exams.assigned["exam-1|inv-1"] = true
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.AddInvigilator(context.Background(), "exam-1", dto.AssignInvigilatorRequest{InvigilatorID: "inv-1"})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrDuplicateAssignment.Code, appErr.Code)
	assert.Equal(t, "This invigilator is already assigned to this exam", appErr.Message)
}

func TestExamServiceAddInvigilatorRejectsTimeConflict(t *testing.T) {
	f := newExamFixture(t)
	existing := examAt(t, "exam-1", "room-a", "2024-01-03", "09:00", "11:00")
	other := examAt(t, "exam-2", "room-b", "2024-01-03", "10:30", "12:00", "inv-2")
	f.exams.exams["exam-1"] = &existing
	f.store.exams = []models.Exam{existing, other}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.AddInvigilator(context.Background(), "exam-1", dto.AssignInvigilatorRequest{InvigilatorID: "inv-2"})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvigilatorConflict.Code, appErr.Code)
	assert.Equal(t, "Time conflict with another assigned duty", appErr.Message)
}

func TestExamServiceAddInvigilatorRejectsOverload(t *testing.T) {
	f := newExamFixture(t)
	existing := examAt(t, "exam-1", "room-a", "2024-01-05", "09:00", "11:00")
	f.exams.exams["exam-1"] = &existing
	f.store.exams = []models.Exam{
		existing,
		examAt(t, "exam-2", "room-b", "2024-01-02", "09:00", "11:00", "inv-2"),
		examAt(t, "exam-3", "room-b", "2024-01-03", "09:00", "11:00", "inv-2"),
		examAt(t, "exam-4", "room-b", "2024-01-04", "09:00", "11:00", "inv-2"),
	}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.AddInvigilator(context.Background(), "exam-1", dto.AssignInvigilatorRequest{InvigilatorID: "inv-2"})
	assert.True(t, errors.Is(err, appErrors.ErrWorkloadExceeded))
}

func TestExamServiceRemoveAndDeleteNotFound(t *testing.T) {
	f := newExamFixture(t)
	f.exams.deleteErr = sql.ErrNoRows
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	err := f.svc.RemoveInvigilator(context.Background(), "exam-1", "inv-1")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	err = f.svc.Delete(context.Background(), "exam-1")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestExamServiceRemoveInvigilatorKeepsRequiredCount(t *testing.T) {
	f := newExamFixture(t)
	exam := examAt(t, "exam-1", "room-a", "2024-01-05", "09:00", "11:00", "inv-1", "inv-2")
	exam.StudentCount = 40
	f.exams.exams["exam-1"] = &exam

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	err := f.svc.RemoveInvigilator(context.Background(), "exam-1", "inv-2")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInsufficientInvigilators.Code, appErr.Code)
	assert.Equal(t, map[string]interface{}{"required": 2, "supplied": 1}, appErr.Details)
	assert.Empty(t, f.exams.removed)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	err = f.svc.RemoveInvigilator(context.Background(), "exam-1", "inv-9")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	exam.StudentCount = 20
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.svc.RemoveInvigilator(context.Background(), "exam-1", "inv-2"))
	assert.Equal(t, []string{"exam-1|inv-2"}, f.exams.removed)
	assert.NotEmpty(t, f.cache.deleted)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestExamServiceListRejectsInvertedRange(t *testing.T) {
	f := newExamFixture(t)

	_, _, err := f.svc.List(context.Background(), dto.ExamQuery{From: "2024-02-01", To: "2024-01-01"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	exams, pagination, err := f.svc.List(context.Background(), dto.ExamQuery{From: "2024-01-01"})
	require.NoError(t, err)
	assert.Empty(t, exams)
	assert.Equal(t, 1, pagination.Page)
}
