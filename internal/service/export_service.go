package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/invigilation-api/internal/dto"
	"github.com/noah-isme/invigilation-api/internal/models"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
	"github.com/noah-isme/invigilation-api/pkg/export"
	"github.com/noah-isme/invigilation-api/pkg/jobs"
	"github.com/noah-isme/invigilation-api/pkg/storage"
)

const rosterJobType = "roster"

type rosterSource interface {
	Roster(ctx context.Context, span models.DateRange) ([]models.RosterEntry, error)
}

type exportFileStore interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	Delete(name string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type exportDispatcher interface {
	Enqueue(job jobs.Job) error
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes roster export behaviour.
type ExportConfig struct {
	APIPrefix       string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	MaxRetries      int
}

// ExportServiceParams wires dependencies for the export service.
type ExportServiceParams struct {
	Roster    rosterSource
	Storage   exportFileStore
	Signer    *storage.SignedURLSigner
	CSV       csvRenderer
	PDF       pdfRenderer
	Config    ExportConfig
	Validator *validator.Validate
	Logger    *zap.Logger
}

// ExportDownload is a resolved, readable export file.
type ExportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ExportFormat
	ExpiresAt time.Time
}

// ContentType returns the MIME type for the download.
func (d *ExportDownload) ContentType() string {
	if d.Format == models.ExportFormatPDF {
		return "application/pdf"
	}
	return "text/csv"
}

// ExportService renders roster exports asynchronously. Job state lives in
// memory and does not survive a restart.
type ExportService struct {
	roster    rosterSource
	storage   exportFileStore
	signer    *storage.SignedURLSigner
	csv       csvRenderer
	pdf       pdfRenderer
	queue     exportDispatcher
	registry  *exportRegistry
	cfg       ExportConfig
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService. Jobs are rejected until a queue is attached.
func NewExportService(params ExportServiceParams) *ExportService {
	cfg := params.Config
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	csv := params.CSV
	if csv == nil {
		csv = export.NewCSVRenderer()
	}
	pdf := params.PDF
	if pdf == nil {
		pdf = export.NewPDFRenderer()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		roster:    params.Roster,
		storage:   params.Storage,
		signer:    params.Signer,
		csv:       csv,
		pdf:       pdf,
		registry:  newExportRegistry(),
		cfg:       cfg,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// AttachQueue sets the dispatcher that runs Handle in the background.
func (s *ExportService) AttachQueue(queue exportDispatcher) {
	s.queue = queue
}

// Request validates the range and queues a roster export.
func (s *ExportService) Request(ctx context.Context, actor *models.JWTClaims, req dto.RosterExportRequest) (*dto.ExportJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}
	span, err := parseSpan(req.From, req.To)
	if err != nil {
		return nil, err
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "export queue unavailable")
	}

	job := &models.ExportJob{
		ID:        uuid.NewString(),
		Format:    req.Format,
		From:      span.From,
		To:        span.To,
		Status:    models.ExportStatusQueued,
		CreatedAt: s.now().UTC(),
	}
	if actor != nil {
		job.CreatedBy = actor.UserID
	}
	s.registry.put(job)

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: rosterJobType}); err != nil {
		s.finish(job.ID, models.ExportStatusFailed, "failed to enqueue job", nil)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	s.logger.Info("roster export queued", zap.String("job_id", job.ID), zap.String("format", string(job.Format)))
	return &dto.ExportJobResponse{ID: job.ID, Status: job.Status}, nil
}

// Status reports job progress. Invigilator accounts only see their own jobs.
func (s *ExportService) Status(ctx context.Context, actor *models.JWTClaims, id string) (*dto.ExportStatusResponse, error) {
	job, ok := s.registry.get(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	if actor != nil && actor.Role != models.RoleAdmin && job.CreatedBy != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export belongs to another user")
	}
	return &dto.ExportStatusResponse{
		ID:        job.ID,
		Status:    job.Status,
		ResultURL: job.ResultURL,
		Error:     job.ErrorMessage,
	}, nil
}

// Handle renders one queued job. It is the queue handler.
func (s *ExportService) Handle(ctx context.Context, job jobs.Job) error {
	record, ok := s.registry.update(job.ID, func(j *models.ExportJob) {
		j.Status = models.ExportStatusRunning
	})
	if !ok {
		s.logger.Warn("export job vanished", zap.String("job_id", job.ID))
		return nil
	}

	url, relPath, err := s.render(ctx, record)
	if err != nil {
		if job.Attempt >= s.cfg.MaxRetries {
			s.finish(job.ID, models.ExportStatusFailed, err.Error(), nil)
		} else {
			msg := err.Error()
			s.registry.update(job.ID, func(j *models.ExportJob) {
				j.Status = models.ExportStatusQueued
				j.ErrorMessage = &msg
			})
		}
		return err
	}

	s.registry.update(job.ID, func(j *models.ExportJob) {
		j.RelativePath = relPath
	})
	s.finish(job.ID, models.ExportStatusFinished, "", &url)
	s.logger.Info("roster export finished", zap.String("job_id", job.ID), zap.String("path", relPath))
	return nil
}

// ResolveDownload verifies token and opens the export it grants.
func (s *ExportService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	grant, err := s.signer.Verify(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, ok := s.registry.get(grant.JobID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	if job.Status != models.ExportStatusFinished || job.RelativePath != grant.Path {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not available")
	}
	file, err := s.storage.Open(grant.Path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ExportDownload{
		File:      file,
		Filename:  fmt.Sprintf("roster_%s_%s.%s", job.From, job.To, job.Format),
		Format:    job.Format,
		ExpiresAt: grant.ExpiresAt,
	}, nil
}

// StartCleanup purges expired exports every CleanupInterval until ctx ends.
func (s *ExportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired()
			}
		}
	}()
}

func (s *ExportService) cleanupExpired() {
	cutoff := s.now().Add(-s.cfg.ResultTTL)
	for _, job := range s.registry.finishedBefore(cutoff) {
		if job.RelativePath != "" {
			if err := s.storage.Delete(job.RelativePath); err != nil {
				s.logger.Warn("export cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
				continue
			}
		}
		s.registry.remove(job.ID)
	}
	if _, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL); err != nil {
		s.logger.Warn("export filesystem cleanup failed", zap.Error(err))
	}
}

func (s *ExportService) render(ctx context.Context, job models.ExportJob) (string, string, error) {
	entries, err := s.roster.Roster(ctx, models.DateRange{From: job.From, To: job.To})
	if err != nil {
		return "", "", fmt.Errorf("load roster: %w", err)
	}
	dataset := rosterDataset(entries)

	var payload []byte
	switch job.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, fmt.Sprintf("Invigilation Roster %s to %s", job.From, job.To))
	default:
		err = fmt.Errorf("unsupported format %s", job.Format)
	}
	if err != nil {
		return "", "", err
	}

	relPath, err := s.storage.Save(fmt.Sprintf("roster/%s.%s", job.ID, job.Format), payload)
	if err != nil {
		return "", "", err
	}
	token, _, err := s.signer.Sign(job.ID, relPath)
	if err != nil {
		return "", "", err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return fmt.Sprintf("%s/exports/download/%s", prefix, token), relPath, nil
}

func (s *ExportService) finish(id string, status models.ExportStatus, message string, url *string) {
	now := s.now().UTC()
	s.registry.update(id, func(j *models.ExportJob) {
		j.Status = status
		j.FinishedAt = &now
		j.ResultURL = url
		if message != "" {
			j.ErrorMessage = &message
		} else {
			j.ErrorMessage = nil
		}
	})
}

func rosterDataset(entries []models.RosterEntry) export.Dataset {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.ExamDate.String(),
			e.StartTime.String(),
			e.EndTime.String(),
			e.SubjectCode,
			e.SubjectName,
			e.RoomNumber,
			e.Building,
			strconv.Itoa(e.StudentCount),
			e.Invigilators,
		})
	}
	return export.Dataset{
		Columns: []export.Column{
			{Title: "Date", Width: 1.2},
			{Title: "Start", Width: 0.7},
			{Title: "End", Width: 0.7},
			{Title: "Code", Width: 0.9},
			{Title: "Subject", Width: 2.2},
			{Title: "Room", Width: 0.9},
			{Title: "Building", Width: 1.2},
			{Title: "Students", Width: 0.8},
			{Title: "Invigilators", Width: 3},
		},
		Rows: rows,
	}
}

// exportRegistry holds export jobs for the lifetime of the process.
type exportRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*models.ExportJob
}

func newExportRegistry() *exportRegistry {
	return &exportRegistry{jobs: make(map[string]*models.ExportJob)}
}

func (r *exportRegistry) put(job *models.ExportJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
}

func (r *exportRegistry) get(id string) (models.ExportJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return models.ExportJob{}, false
	}
	return *job, true
}

func (r *exportRegistry) update(id string, fn func(*models.ExportJob)) (models.ExportJob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return models.ExportJob{}, false
	}
	fn(job)
	return *job, true
}

func (r *exportRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
}

func (r *exportRegistry) finishedBefore(cutoff time.Time) []models.ExportJob {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.ExportJob
	for _, job := range r.jobs {
		if job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			out = append(out, *job)
		}
	}
	return out
}
