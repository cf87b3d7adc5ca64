package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/invigilation-api/internal/models"
)

// DutyReportRepository persists post-exam duty reports.
type DutyReportRepository struct {
	db *sqlx.DB
}

// NewDutyReportRepository constructs a DutyReportRepository.
func NewDutyReportRepository(db *sqlx.DB) *DutyReportRepository {
	return &DutyReportRepository{db: db}
}

const dutyReportColumns = "id, exam_id, invigilator_id, attendance_status, report_text, created_at"

// List returns reports filtered by exam and/or invigilator, newest first.
func (r *DutyReportRepository) List(ctx context.Context, filter models.DutyReportFilter) ([]models.DutyReport, error) {
	query := "SELECT " + dutyReportColumns + " FROM duty_reports WHERE 1=1"
	var conditions []string
	var args []interface{}
	if filter.ExamID != "" {
		args = append(args, filter.ExamID)
		conditions = append(conditions, fmt.Sprintf("exam_id = $%d", len(args)))
	}
	if filter.InvigilatorID != "" {
		args = append(args, filter.InvigilatorID)
		conditions = append(conditions, fmt.Sprintf("invigilator_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	var reports []models.DutyReport
	if err := r.db.SelectContext(ctx, &reports, query, args...); err != nil {
		return nil, fmt.Errorf("list duty reports: %w", err)
	}
	return reports, nil
}

// Create inserts a report.
func (r *DutyReportRepository) Create(ctx context.Context, report *models.DutyReport) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO duty_reports (id, exam_id, invigilator_id, attendance_status, report_text, created_at)
		VALUES (:id, :exam_id, :invigilator_id, :attendance_status, :report_text, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, report); err != nil {
		return fmt.Errorf("create duty report: %w", err)
	}
	return nil
}

// FindByID returns a single report or sql.ErrNoRows.
func (r *DutyReportRepository) FindByID(ctx context.Context, id string) (*models.DutyReport, error) {
	var report models.DutyReport
	if err := r.db.GetContext(ctx, &report, "SELECT "+dutyReportColumns+" FROM duty_reports WHERE id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get duty report: %w", err)
	}
	return &report, nil
}

// Update rewrites the attendance status and text of a report.
func (r *DutyReportRepository) Update(ctx context.Context, report *models.DutyReport) error {
	res, err := r.db.ExecContext(ctx, "UPDATE duty_reports SET attendance_status = $1, report_text = $2 WHERE id = $3",
		report.AttendanceStatus, report.ReportText, report.ID)
	if err != nil {
		return fmt.Errorf("update duty report: %w", err)
	}
	return expectAffected(res)
}

// Delete removes a report.
func (r *DutyReportRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM duty_reports WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete duty report: %w", err)
	}
	return expectAffected(res)
}
