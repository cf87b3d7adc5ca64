package handler

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/invigilation-api/internal/dto"
	"github.com/noah-isme/invigilation-api/internal/models"
	"github.com/noah-isme/invigilation-api/internal/service"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
)

type fakeExportSrv struct {
	actor    *models.JWTClaims
	request  dto.RosterExportRequest
	download *service.ExportDownload
	err      error
}

func (f *fakeExportSrv) Request(_ context.Context, actor *models.JWTClaims, req dto.RosterExportRequest) (*dto.ExportJobResponse, error) {
	f.actor = actor
	f.request = req
	if f.err != nil {
		return nil, f.err
	}
	return &dto.ExportJobResponse{ID: "job-1", Status: models.ExportStatusQueued}, nil
}

func (f *fakeExportSrv) Status(_ context.Context, _ *models.JWTClaims, id string) (*dto.ExportStatusResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dto.ExportStatusResponse{ID: id, Status: models.ExportStatusFinished}, nil
}

func (f *fakeExportSrv) ResolveDownload(context.Context, string) (*service.ExportDownload, error) {
	return f.download, f.err
}

func TestExportHandlerRequestRosterAccepted(t *testing.T) {
	srv := &fakeExportSrv{}
	handler := NewExportHandler(srv)
	c, rec := newTestContext(http.MethodPost, "/exports/roster", `{"from":"2024-01-01","to":"2024-01-31","format":"pdf"}`)
	withClaims(c, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.RequestRoster(c)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, models.ExportFormatPDF, srv.request.Format)
	assert.Equal(t, "admin-1", srv.actor.UserID)
	assert.Equal(t, "QUEUED", decodeEnvelope(t, rec).Data["status"])
}

func TestExportHandlerStatusForbidden(t *testing.T) {
	handler := NewExportHandler(&fakeExportSrv{err: appErrors.ErrForbidden})
	c, rec := newTestContext(http.MethodGet, "/exports/job-1", "")
	c.AddParam("id", "job-1")
	withClaims(c, &models.JWTClaims{UserID: "user-2", Role: models.RoleInvigilator})

	handler.Status(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestExportHandlerDownloadStreamsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.csv")
	require.NoError(t, os.WriteFile(path, []byte("Date,Start\n2024-01-10,09:00\n"), 0o600))
	file, err := os.Open(path)
	require.NoError(t, err)

	handler := NewExportHandler(&fakeExportSrv{download: &service.ExportDownload{
		File:      file,
		Filename:  "roster_2024-01-01_2024-01-31.csv",
		Format:    models.ExportFormatCSV,
		ExpiresAt: time.Now().Add(time.Hour),
	}})
	c, rec := newTestContext(http.MethodGet, "/exports/download/token", "")
	c.AddParam("token", "token")

	handler.Download(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="roster_2024-01-01_2024-01-31.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "Date,Start\n2024-01-10,09:00\n", rec.Body.String())
}

func TestExportHandlerDownloadRejectsBadToken(t *testing.T) {
	handler := NewExportHandler(&fakeExportSrv{err: appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")})
	c, rec := newTestContext(http.MethodGet, "/exports/download/forged", "")
	c.AddParam("token", "forged")

	handler.Download(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
