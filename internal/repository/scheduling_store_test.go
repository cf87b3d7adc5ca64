package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/invigilation-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

var examRowColumns = []string{"id", "subject_name", "subject_code", "exam_date", "start_time", "end_time", "room_id", "department_id", "student_count", "created_at", "updated_at"}

type observerStub struct {
	labels []string
}

func (o *observerStub) ObserveDBQuery(label string, _ time.Duration) {
	o.labels = append(o.labels, label)
}

func TestSchedulingStoreFindBookingsByRoom(t *testing.T) {
	db, mock := newRepoMock(t)
	observer := &observerStub{}
	store := NewSchedulingStore(db).WithObserver(observer)
	date := models.NewDate(2024, time.January, 10)

	rows := sqlmock.NewRows(examRowColumns).
		AddRow("exam-1", "Physics", "PHY101", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), "09:00:00", "11:00:00", "room-1", nil, 40, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM exams e WHERE e.room_id = $1 AND e.exam_date = $2")).
		WithArgs("room-1", "2024-01-10").
		WillReturnRows(rows)

	exams, err := store.FindBookingsByRoom(context.Background(), "room-1", date)
	require.NoError(t, err)
	require.Len(t, exams, 1)
	assert.Equal(t, "09:00", exams[0].StartTime.String())
	assert.Equal(t, "2024-01-10", exams[0].ExamDate.String())
	assert.Nil(t, exams[0].DepartmentID)
	assert.Equal(t, []string{"scheduling.bookings_by_room"}, observer.labels)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulingStoreFindBookingsByInvigilatorBoundsSpan(t *testing.T) {
	db, mock := newRepoMock(t)
	store := NewSchedulingStore(db)
	week := models.WeekOf(models.NewDate(2024, time.January, 10))

	mock.ExpectQuery(regexp.QuoteMeta("WHERE ei.invigilator_id = $1 AND e.exam_date >= $2 AND e.exam_date <= $3")).
		WithArgs("inv-1", "2024-01-07", "2024-01-13").
		WillReturnRows(sqlmock.NewRows(examRowColumns))

	exams, err := store.FindBookingsByInvigilator(context.Background(), "inv-1", week)
	require.NoError(t, err)
	assert.Empty(t, exams)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulingStoreCountAssignmentsOpenSpan(t *testing.T) {
	db, mock := newRepoMock(t)
	store := NewSchedulingStore(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM exam_invigilators ei JOIN exams e ON e.id = ei.exam_id WHERE ei.invigilator_id = $1")).
		WithArgs("inv-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := store.CountAssignments(context.Background(), "inv-1", models.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulingStoreFindPreferenceMissingIsNil(t *testing.T) {
	db, mock := newRepoMock(t)
	store := NewSchedulingStore(db)

	mock.ExpectQuery("FROM invigilator_preferences WHERE invigilator_id = \\$1").
		WithArgs("inv-1").
		WillReturnError(sql.ErrNoRows)

	pref, err := store.FindPreference(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.Nil(t, pref)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulingStoreWrapsDriverErrors(t *testing.T) {
	db, mock := newRepoMock(t)
	store := NewSchedulingStore(db)
	boom := errors.New("connection reset")

	mock.ExpectQuery("FROM rooms WHERE capacity >= \\$1").WithArgs(30).WillReturnError(boom)

	_, err := store.FindRoomsByMinCapacity(context.Background(), 30)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "find rooms by capacity")
}

func TestSchedulingStoreRunsInsideTransaction(t *testing.T) {
	db, mock := newRepoMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM invigilators WHERE status = \\$1").
		WithArgs("active").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "phone", "department_id", "designation", "status", "created_at", "updated_at"}).
			AddRow("inv-1", "Ada", "ada@example.com", nil, "dept-1", nil, "active", time.Now(), time.Now()))
	mock.ExpectRollback()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	list, err := NewSchedulingStore(tx).FindActiveInvigilators(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	require.Len(t, list, 1)
	assert.True(t, list[0].Active())
	assert.NoError(t, mock.ExpectationsWereMet())
}
