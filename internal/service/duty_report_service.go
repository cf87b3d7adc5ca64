package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/invigilation-api/internal/dto"
	"github.com/noah-isme/invigilation-api/internal/models"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
)

type dutyReportRepository interface {
	List(ctx context.Context, filter models.DutyReportFilter) ([]models.DutyReport, error)
	FindByID(ctx context.Context, id string) (*models.DutyReport, error)
	Create(ctx context.Context, report *models.DutyReport) error
	Update(ctx context.Context, report *models.DutyReport) error
	Delete(ctx context.Context, id string) error
}

type dutyAssignmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Exam, error)
	IsAssigned(ctx context.Context, exec sqlx.ExtContext, examID, invigilatorID string) (bool, error)
}

// DutyReportService records attendance reports for exam duties.
type DutyReportService struct {
	repo      dutyReportRepository
	exams     dutyAssignmentReader
	db        sqlx.ExtContext
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDutyReportService constructs a DutyReportService.
func NewDutyReportService(repo dutyReportRepository, exams dutyAssignmentReader, db sqlx.ExtContext, validate *validator.Validate, logger *zap.Logger) *DutyReportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DutyReportService{repo: repo, exams: exams, db: db, validator: validate, logger: logger}
}

// Submit files a report. Only an invigilator assigned to the exam can be reported
// on, and invigilator accounts may only report on themselves.
func (s *DutyReportService) Submit(ctx context.Context, actor *models.JWTClaims, req dto.DutyReportRequest) (*models.DutyReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid duty report payload")
	}
	invigilatorID, err := reportSubject(actor, strings.TrimSpace(req.InvigilatorID))
	if err != nil {
		return nil, err
	}
	examID := strings.TrimSpace(req.ExamID)
	if _, err := s.exams.FindByID(ctx, examID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, storageUnavailable(err, "load exam")
	}
	assigned, err := s.exams.IsAssigned(ctx, s.db, examID, invigilatorID)
	if err != nil {
		return nil, storageUnavailable(err, "check assignment")
	}
	if !assigned {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invigilator is not assigned to this exam")
	}

	report := &models.DutyReport{
		ExamID:           examID,
		InvigilatorID:    invigilatorID,
		AttendanceStatus: req.AttendanceStatus,
		ReportText:       normalizeOptional(req.ReportText),
	}
	if err := s.repo.Create(ctx, report); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save duty report")
	}
	s.logger.Info("duty report filed",
		zap.String("exam_id", examID),
		zap.String("invigilator_id", invigilatorID),
		zap.String("status", string(report.AttendanceStatus)),
	)
	return report, nil
}

// List returns reports. Invigilator accounts only see their own.
func (s *DutyReportService) List(ctx context.Context, actor *models.JWTClaims, query dto.DutyReportQuery) ([]models.DutyReport, error) {
	filter := models.DutyReportFilter{
		ExamID:        strings.TrimSpace(query.ExamID),
		InvigilatorID: strings.TrimSpace(query.InvigilatorID),
	}
	if actor != nil && actor.Role == models.RoleInvigilator {
		id, err := reportSubject(actor, filter.InvigilatorID)
		if err != nil {
			return nil, err
		}
		filter.InvigilatorID = id
	}
	reports, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list duty reports")
	}
	if reports == nil {
		reports = []models.DutyReport{}
	}
	return reports, nil
}

// Update corrects the attendance status and text of a filed report. Invigilator
// accounts may only correct their own reports.
func (s *DutyReportService) Update(ctx context.Context, actor *models.JWTClaims, id string, req dto.DutyReportUpdateRequest) (*models.DutyReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid duty report payload")
	}
	report, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "duty report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load duty report")
	}
	if _, err := reportSubject(actor, report.InvigilatorID); err != nil {
		return nil, err
	}

	report.AttendanceStatus = req.AttendanceStatus
	report.ReportText = normalizeOptional(req.ReportText)
	if err := s.repo.Update(ctx, report); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "duty report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update duty report")
	}
	return report, nil
}

// Delete removes a report.
func (s *DutyReportService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "duty report not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete duty report")
	}
	s.logger.Info("duty report deleted", zap.String("report_id", id))
	return nil
}

func reportSubject(actor *models.JWTClaims, requested string) (string, error) {
	if actor == nil {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if actor.Role != models.RoleInvigilator {
		if requested == "" {
			return "", appErrors.Clone(appErrors.ErrValidation, "invigilator_id is required")
		}
		return requested, nil
	}
	if actor.InvigilatorID == "" {
		return "", appErrors.Clone(appErrors.ErrForbidden, "account is not linked to an invigilator")
	}
	if requested != "" && requested != actor.InvigilatorID {
		return "", appErrors.Clone(appErrors.ErrForbidden, "invigilators may only report on their own duties")
	}
	return actor.InvigilatorID, nil
}
