package service

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/invigilation-api/internal/dto"
	"github.com/noah-isme/invigilation-api/internal/models"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
	"github.com/noah-isme/invigilation-api/pkg/jobs"
	"github.com/noah-isme/invigilation-api/pkg/storage"
)

type stubRosterSource struct {
	entries []models.RosterEntry
	err     error
	span    models.DateRange
}

func (s *stubRosterSource) Roster(ctx context.Context, span models.DateRange) ([]models.RosterEntry, error) {
	s.span = span
	return s.entries, s.err
}

type recordingDispatcher struct {
	jobs []jobs.Job
	err  error
}

func (d *recordingDispatcher) Enqueue(job jobs.Job) error {
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

func newExportFixture(t *testing.T) (*ExportService, *stubRosterSource, *recordingDispatcher) {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	roster := &stubRosterSource{entries: []models.RosterEntry{{
		ExamID:       "exam-1",
		SubjectCode:  "M1",
		SubjectName:  "Mathematics",
		ExamDate:     mustDate(t, "2024-01-10"),
		StartTime:    models.NewTimeOfDay(9, 0),
		EndTime:      models.NewTimeOfDay(11, 0),
		RoomNumber:   "A-101",
		Building:     "Main",
		StudentCount: 45,
		Invigilators: "Ada Lovelace, Grace Hopper",
	}}}
	svc := NewExportService(ExportServiceParams{
		Roster:  roster,
		Storage: files,
		Signer:  storage.NewSignedURLSigner("secret", time.Hour),
		Config:  ExportConfig{APIPrefix: "/api/v1/", MaxRetries: 1},
		Logger:  zap.NewNop(),
	})
	dispatcher := &recordingDispatcher{}
	svc.AttachQueue(dispatcher)
	return svc, roster, dispatcher
}

var exportAdmin = &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}

func TestExportServiceCSVLifecycle(t *testing.T) {
	svc, roster, dispatcher := newExportFixture(t)
	ctx := context.Background()

	queued, err := svc.Request(ctx, exportAdmin, dto.RosterExportRequest{From: "2024-01-01", To: "2024-01-31", Format: models.ExportFormatCSV})
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, queued.Status)
	require.Len(t, dispatcher.jobs, 1)

	require.NoError(t, svc.Handle(ctx, dispatcher.jobs[0]))
	assert.Equal(t, mustDate(t, "2024-01-01"), roster.span.From)

	status, err := svc.Status(ctx, exportAdmin, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFinished, status.Status)
	require.NotNil(t, status.ResultURL)
	assert.True(t, strings.HasPrefix(*status.ResultURL, "/api/v1/exports/download/"))

	token := strings.TrimPrefix(*status.ResultURL, "/api/v1/exports/download/")
	download, err := svc.ResolveDownload(ctx, token)
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, "roster_2024-01-01_2024-01-31.csv", download.Filename)
	assert.Equal(t, "text/csv", download.ContentType())

	body, err := io.ReadAll(download.File)
	require.NoError(t, err)
	records, err := csv.NewReader(strings.NewReader(string(body))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"2024-01-10", "09:00", "11:00", "M1", "Mathematics", "A-101", "Main", "45", "Ada Lovelace, Grace Hopper"}, records[1])
}

func TestExportServicePDFRenders(t *testing.T) {
	svc, _, dispatcher := newExportFixture(t)
	ctx := context.Background()

	queued, err := svc.Request(ctx, exportAdmin, dto.RosterExportRequest{From: "2024-01-01", To: "2024-01-31", Format: models.ExportFormatPDF})
	require.NoError(t, err)
	require.NoError(t, svc.Handle(ctx, dispatcher.jobs[0]))

	status, err := svc.Status(ctx, exportAdmin, queued.ID)
	require.NoError(t, err)
	token := (*status.ResultURL)[strings.LastIndex(*status.ResultURL, "/")+1:]
	download, err := svc.ResolveDownload(ctx, token)
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, "application/pdf", download.ContentType())
}

func TestExportServiceRetriesThenFails(t *testing.T) {
	svc, roster, dispatcher := newExportFixture(t)
	ctx := context.Background()
	roster.err = errors.New("db down")

	queued, err := svc.Request(ctx, exportAdmin, dto.RosterExportRequest{From: "2024-01-01", To: "2024-01-31", Format: models.ExportFormatCSV})
	require.NoError(t, err)

	job := dispatcher.jobs[0]
	assert.Error(t, svc.Handle(ctx, job))
	status, err := svc.Status(ctx, exportAdmin, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, status.Status)

	job.Attempt = 1
	assert.Error(t, svc.Handle(ctx, job))
	status, err = svc.Status(ctx, exportAdmin, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFailed, status.Status)
	require.NotNil(t, status.Error)
	assert.Contains(t, *status.Error, "db down")
	assert.Nil(t, status.ResultURL)
}

func TestExportServiceRequestValidation(t *testing.T) {
	svc, _, dispatcher := newExportFixture(t)
	ctx := context.Background()

	_, err := svc.Request(ctx, exportAdmin, dto.RosterExportRequest{From: "2024-01-31", To: "2024-01-01", Format: models.ExportFormatCSV})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Request(ctx, exportAdmin, dto.RosterExportRequest{From: "2024-01-01", To: "2024-01-31", Format: "xlsx"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	dispatcher.err = errors.New("queue full")
	_, err = svc.Request(ctx, exportAdmin, dto.RosterExportRequest{From: "2024-01-01", To: "2024-01-31", Format: models.ExportFormatCSV})
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}

func TestExportServiceDownloadGuards(t *testing.T) {
	svc, _, _ := newExportFixture(t)
	ctx := context.Background()

	_, err := svc.ResolveDownload(ctx, "garbage")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	queued, err := svc.Request(ctx, exportAdmin, dto.RosterExportRequest{From: "2024-01-01", To: "2024-01-31", Format: models.ExportFormatCSV})
	require.NoError(t, err)
	token, _, err := svc.signer.Sign(queued.ID, "roster/"+queued.ID+".csv")
	require.NoError(t, err)
	_, err = svc.ResolveDownload(ctx, token)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = svc.Status(ctx, &models.JWTClaims{UserID: "someone", Role: models.RoleInvigilator}, queued.ID)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	_, err = svc.Status(ctx, exportAdmin, "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestExportServiceCleanupDropsExpiredJobs(t *testing.T) {
	svc, _, dispatcher := newExportFixture(t)
	ctx := context.Background()

	queued, err := svc.Request(ctx, exportAdmin, dto.RosterExportRequest{From: "2024-01-01", To: "2024-01-31", Format: models.ExportFormatCSV})
	require.NoError(t, err)
	require.NoError(t, svc.Handle(ctx, dispatcher.jobs[0]))

	svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	svc.cleanupExpired()

	_, err = svc.Status(ctx, exportAdmin, queued.ID)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
