package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/invigilation-api/internal/models"
)

func TestDutyReportRepositoryListByInvigilator(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewDutyReportRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM duty_reports WHERE 1=1 AND invigilator_id = $1 ORDER BY created_at DESC")).
		WithArgs("inv-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "exam_id", "invigilator_id", "attendance_status", "report_text", "created_at"}).
			AddRow("rep-1", "exam-1", "inv-1", "LATE", "traffic", time.Now()))

	reports, err := repo.List(context.Background(), models.DutyReportFilter{InvigilatorID: "inv-1"})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, models.AttendanceLate, reports[0].AttendanceStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDutyReportRepositoryCreate(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewDutyReportRepository(db)

	mock.ExpectExec("INSERT INTO duty_reports").
		WithArgs(sqlmock.AnyArg(), "exam-1", "inv-1", "PRESENT", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	report := &models.DutyReport{ExamID: "exam-1", InvigilatorID: "inv-1", AttendanceStatus: models.AttendancePresent}
	require.NoError(t, repo.Create(context.Background(), report))
	assert.NotEmpty(t, report.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDutyReportRepositoryUpdateAndDelete(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewDutyReportRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE duty_reports SET attendance_status = $1, report_text = $2 WHERE id = $3")).
		WithArgs("ABSENT", "sick", "rep-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM duty_reports WHERE id = $1")).
		WithArgs("rep-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	text := "sick"
	require.NoError(t, repo.Update(context.Background(), &models.DutyReport{ID: "rep-1", AttendanceStatus: models.AttendanceAbsent, ReportText: &text}))
	assert.ErrorIs(t, repo.Delete(context.Background(), "rep-2"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDutyReportRepositoryFindByIDMissing(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewDutyReportRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM duty_reports WHERE id = $1")).
		WithArgs("rep-9").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "rep-9")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
