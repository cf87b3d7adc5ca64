package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/invigilation-api/internal/models"
)

const (
	examColumns        = "e.id, e.subject_name, e.subject_code, e.exam_date, e.start_time, e.end_time, e.room_id, e.department_id, e.student_count, e.created_at, e.updated_at"
	roomColumns        = "id, room_number, capacity, building, floor, created_at, updated_at"
	invigilatorColumns = "id, name, email, phone, department_id, designation, status, created_at, updated_at"
	preferenceColumns  = "id, invigilator_id, preferred_days, preferred_time_slots, max_duties_per_day, max_duties_per_week, created_at, updated_at"
)

// QueryObserver receives the duration of each store query.
type QueryObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

// SchedulingStore answers the engine's read queries against a database handle or an open transaction.
type SchedulingStore struct {
	exec     sqlx.ExtContext
	observer QueryObserver
}

// NewSchedulingStore binds a store to exec, which may be *sqlx.DB or *sqlx.Tx.
func NewSchedulingStore(exec sqlx.ExtContext) *SchedulingStore {
	return &SchedulingStore{exec: exec}
}

// WithObserver attaches query timing instrumentation.
func (s *SchedulingStore) WithObserver(observer QueryObserver) *SchedulingStore {
	s.observer = observer
	return s
}

func (s *SchedulingStore) observe(label string, start time.Time) {
	if s.observer != nil {
		s.observer.ObserveDBQuery(label, time.Since(start))
	}
}

// FindBookingsByRoom lists exams held in roomID on date.
func (s *SchedulingStore) FindBookingsByRoom(ctx context.Context, roomID string, date models.Date) ([]models.Exam, error) {
	defer s.observe("scheduling.bookings_by_room", time.Now())
	query := "SELECT " + examColumns + " FROM exams e WHERE e.room_id = $1 AND e.exam_date = $2 ORDER BY e.start_time, e.id"
	var exams []models.Exam
	if err := sqlx.SelectContext(ctx, s.exec, &exams, query, roomID, date); err != nil {
		return nil, fmt.Errorf("find room bookings: %w", err)
	}
	return exams, nil
}

// FindBookingsByInvigilator lists exams the invigilator is assigned to within span.
func (s *SchedulingStore) FindBookingsByInvigilator(ctx context.Context, invigilatorID string, span models.DateRange) ([]models.Exam, error) {
	defer s.observe("scheduling.bookings_by_invigilator", time.Now())
	where, args := spanConditions("e.exam_date", span, []interface{}{invigilatorID})
	query := "SELECT " + examColumns + " FROM exams e JOIN exam_invigilators ei ON ei.exam_id = e.id WHERE ei.invigilator_id = $1" + where + " ORDER BY e.exam_date, e.start_time, e.id"
	var exams []models.Exam
	if err := sqlx.SelectContext(ctx, s.exec, &exams, query, args...); err != nil {
		return nil, fmt.Errorf("find invigilator bookings: %w", err)
	}
	return exams, nil
}

// FindRoomsByMinCapacity lists rooms seating at least capacity, smallest first.
func (s *SchedulingStore) FindRoomsByMinCapacity(ctx context.Context, capacity int) ([]models.Room, error) {
	defer s.observe("scheduling.rooms_by_capacity", time.Now())
	query := "SELECT " + roomColumns + " FROM rooms WHERE capacity >= $1 ORDER BY capacity, id"
	var rooms []models.Room
	if err := sqlx.SelectContext(ctx, s.exec, &rooms, query, capacity); err != nil {
		return nil, fmt.Errorf("find rooms by capacity: %w", err)
	}
	return rooms, nil
}

// FindActiveInvigilators lists invigilators eligible for new duties.
func (s *SchedulingStore) FindActiveInvigilators(ctx context.Context) ([]models.Invigilator, error) {
	defer s.observe("scheduling.active_invigilators", time.Now())
	query := "SELECT " + invigilatorColumns + " FROM invigilators WHERE status = $1 ORDER BY id"
	var invigilators []models.Invigilator
	if err := sqlx.SelectContext(ctx, s.exec, &invigilators, query, models.InvigilatorActive); err != nil {
		return nil, fmt.Errorf("find active invigilators: %w", err)
	}
	return invigilators, nil
}

// CountAssignments counts the invigilator's duties within span.
func (s *SchedulingStore) CountAssignments(ctx context.Context, invigilatorID string, span models.DateRange) (int, error) {
	defer s.observe("scheduling.count_assignments", time.Now())
	where, args := spanConditions("e.exam_date", span, []interface{}{invigilatorID})
	query := "SELECT COUNT(*) FROM exam_invigilators ei JOIN exams e ON e.id = ei.exam_id WHERE ei.invigilator_id = $1" + where
	var count int
	if err := sqlx.GetContext(ctx, s.exec, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count assignments: %w", err)
	}
	return count, nil
}

// FindPreference returns nil without error when no preference record exists.
func (s *SchedulingStore) FindPreference(ctx context.Context, invigilatorID string) (*models.InvigilatorPreference, error) {
	defer s.observe("scheduling.preference", time.Now())
	query := "SELECT " + preferenceColumns + " FROM invigilator_preferences WHERE invigilator_id = $1"
	var pref models.InvigilatorPreference
	if err := sqlx.GetContext(ctx, s.exec, &pref, query, invigilatorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find invigilator preference: %w", err)
	}
	return &pref, nil
}

// spanConditions appends inclusive date bounds after the existing positional args.
func spanConditions(column string, span models.DateRange, args []interface{}) (string, []interface{}) {
	var conditions []string
	if !span.From.IsZero() {
		args = append(args, span.From)
		conditions = append(conditions, fmt.Sprintf("%s >= $%d", column, len(args)))
	}
	if !span.To.IsZero() {
		args = append(args, span.To)
		conditions = append(conditions, fmt.Sprintf("%s <= $%d", column, len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " AND " + strings.Join(conditions, " AND "), args
}
