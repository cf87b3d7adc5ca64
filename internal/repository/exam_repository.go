package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/invigilation-api/internal/models"
)

// ExamRepository persists exams and their invigilator assignments.
// Write methods take an explicit executor so callers can run them inside a serializable transaction.
type ExamRepository struct {
	db *sqlx.DB
}

// NewExamRepository constructs an ExamRepository.
func NewExamRepository(db *sqlx.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

// List returns exams matching filters along with total count. Invigilator IDs are attached.
func (r *ExamRepository) List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, int, error) {
	base := "FROM exams e WHERE 1=1"
	var conditions []string
	var args []interface{}

	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conditions = append(conditions, fmt.Sprintf("e.exam_date >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conditions = append(conditions, fmt.Sprintf("e.exam_date <= $%d", len(args)))
	}
	if filter.RoomID != "" {
		args = append(args, filter.RoomID)
		conditions = append(conditions, fmt.Sprintf("e.room_id = $%d", len(args)))
	}
	if filter.DepartmentID != "" {
		args = append(args, filter.DepartmentID)
		conditions = append(conditions, fmt.Sprintf("e.department_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s %s ORDER BY e.exam_date, e.start_time, e.id LIMIT %d OFFSET %d", examColumns, base, size, (page-1)*size)
	var exams []models.Exam
	if err := r.db.SelectContext(ctx, &exams, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list exams: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count exams: %w", err)
	}

	if err := r.attachInvigilators(ctx, r.db, exams); err != nil {
		return nil, 0, err
	}
	return exams, total, nil
}

// FindByID fetches an exam with its invigilator IDs.
func (r *ExamRepository) FindByID(ctx context.Context, id string) (*models.Exam, error) {
	return r.FindByIDWithTx(ctx, r.db, id)
}

// FindByIDWithTx fetches an exam with its invigilator IDs through exec.
func (r *ExamRepository) FindByIDWithTx(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Exam, error) {
	query := "SELECT " + examColumns + " FROM exams e WHERE e.id = $1"
	var exam models.Exam
	if err := sqlx.GetContext(ctx, exec, &exam, query, id); err != nil {
		return nil, err
	}
	exams := []models.Exam{exam}
	if err := r.attachInvigilators(ctx, exec, exams); err != nil {
		return nil, err
	}
	return &exams[0], nil
}

// ListByRoom returns exams held in roomID within span.
func (r *ExamRepository) ListByRoom(ctx context.Context, roomID string, span models.DateRange) ([]models.Exam, error) {
	where, args := spanConditions("e.exam_date", span, []interface{}{roomID})
	query := "SELECT " + examColumns + " FROM exams e WHERE e.room_id = $1" + where + " ORDER BY e.exam_date, e.start_time, e.id"
	var exams []models.Exam
	if err := r.db.SelectContext(ctx, &exams, query, args...); err != nil {
		return nil, fmt.Errorf("list room exams: %w", err)
	}
	if err := r.attachInvigilators(ctx, r.db, exams); err != nil {
		return nil, err
	}
	return exams, nil
}

// ListByInvigilator returns the invigilator's duties within span.
func (r *ExamRepository) ListByInvigilator(ctx context.Context, invigilatorID string, span models.DateRange) ([]models.Exam, error) {
	where, args := spanConditions("e.exam_date", span, []interface{}{invigilatorID})
	query := "SELECT " + examColumns + " FROM exams e JOIN exam_invigilators ei ON ei.exam_id = e.id WHERE ei.invigilator_id = $1" + where + " ORDER BY e.exam_date, e.start_time, e.id"
	var exams []models.Exam
	if err := r.db.SelectContext(ctx, &exams, query, args...); err != nil {
		return nil, fmt.Errorf("list invigilator exams: %w", err)
	}
	if err := r.attachInvigilators(ctx, r.db, exams); err != nil {
		return nil, err
	}
	return exams, nil
}

// ListOnDate returns every exam on date with invigilator IDs attached.
func (r *ExamRepository) ListOnDate(ctx context.Context, date models.Date) ([]models.Exam, error) {
	query := "SELECT " + examColumns + " FROM exams e WHERE e.exam_date = $1 ORDER BY e.start_time, e.id"
	var exams []models.Exam
	if err := r.db.SelectContext(ctx, &exams, query, date); err != nil {
		return nil, fmt.Errorf("list exams on date: %w", err)
	}
	if err := r.attachInvigilators(ctx, r.db, exams); err != nil {
		return nil, err
	}
	return exams, nil
}

// CreateWithTx inserts the exam and its invigilator assignments through exec.
func (r *ExamRepository) CreateWithTx(ctx context.Context, exec sqlx.ExtContext, exam *models.Exam) error {
	if exam.ID == "" {
		exam.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if exam.CreatedAt.IsZero() {
		exam.CreatedAt = now
	}
	exam.UpdatedAt = now

	const query = `INSERT INTO exams (id, subject_name, subject_code, exam_date, start_time, end_time, room_id, department_id, student_count, created_at, updated_at)
		VALUES (:id, :subject_name, :subject_code, :exam_date, :start_time, :end_time, :room_id, :department_id, :student_count, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, exam); err != nil {
		return fmt.Errorf("create exam: %w", err)
	}
	return r.insertAssignments(ctx, exec, exam.ID, exam.InvigilatorIDs, now)
}

// UpdateWithTx rewrites the exam and replaces its invigilator set through exec.
func (r *ExamRepository) UpdateWithTx(ctx context.Context, exec sqlx.ExtContext, exam *models.Exam) error {
	now := time.Now().UTC()
	exam.UpdatedAt = now
	const query = `UPDATE exams SET subject_name = :subject_name, subject_code = :subject_code, exam_date = :exam_date, start_time = :start_time,
		end_time = :end_time, room_id = :room_id, department_id = :department_id, student_count = :student_count, updated_at = :updated_at WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, exec, query, exam)
	if err != nil {
		return fmt.Errorf("update exam: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	if _, err := exec.ExecContext(ctx, `DELETE FROM exam_invigilators WHERE exam_id = $1`, exam.ID); err != nil {
		return fmt.Errorf("clear exam invigilators: %w", err)
	}
	return r.insertAssignments(ctx, exec, exam.ID, exam.InvigilatorIDs, now)
}

// AddInvigilatorWithTx assigns one invigilator to an exam through exec.
func (r *ExamRepository) AddInvigilatorWithTx(ctx context.Context, exec sqlx.ExtContext, examID, invigilatorID string) error {
	return r.insertAssignments(ctx, exec, examID, []string{invigilatorID}, time.Now().UTC())
}

// RemoveInvigilatorWithTx drops one assignment through exec; sql.ErrNoRows when it did not exist.
func (r *ExamRepository) RemoveInvigilatorWithTx(ctx context.Context, exec sqlx.ExtContext, examID, invigilatorID string) error {
	res, err := exec.ExecContext(ctx, `DELETE FROM exam_invigilators WHERE exam_id = $1 AND invigilator_id = $2`, examID, invigilatorID)
	if err != nil {
		return fmt.Errorf("remove exam invigilator: %w", err)
	}
	return expectAffected(res)
}

// IsAssigned reports whether invigilatorID holds a duty on examID.
func (r *ExamRepository) IsAssigned(ctx context.Context, exec sqlx.ExtContext, examID, invigilatorID string) (bool, error) {
	const query = `SELECT COUNT(*) FROM exam_invigilators WHERE exam_id = $1 AND invigilator_id = $2`
	var count int
	if err := sqlx.GetContext(ctx, exec, &count, query, examID, invigilatorID); err != nil {
		return false, fmt.Errorf("check exam invigilator: %w", err)
	}
	return count > 0, nil
}

// Delete removes an exam; assignments and duty reports cascade.
func (r *ExamRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM exams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete exam: %w", err)
	}
	return expectAffected(res)
}

// CountOn returns the number of exams on date.
func (r *ExamRepository) CountOn(ctx context.Context, date models.Date) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM exams WHERE exam_date = $1`, date); err != nil {
		return 0, fmt.Errorf("count exams on date: %w", err)
	}
	return total, nil
}

// CountAfter returns the number of exams dated strictly after date.
func (r *ExamRepository) CountAfter(ctx context.Context, date models.Date) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM exams WHERE exam_date > $1`, date); err != nil {
		return 0, fmt.Errorf("count upcoming exams: %w", err)
	}
	return total, nil
}

// Roster flattens exams within span into export rows with invigilator names joined.
func (r *ExamRepository) Roster(ctx context.Context, span models.DateRange) ([]models.RosterEntry, error) {
	where, args := spanConditions("e.exam_date", span, nil)
	query := `SELECT e.id AS exam_id, e.subject_code, e.subject_name, e.exam_date, e.start_time, e.end_time,
		r.room_number, r.building, e.student_count,
		COALESCE(STRING_AGG(i.name, ', ' ORDER BY i.name), '') AS invigilators
		FROM exams e
		JOIN rooms r ON r.id = e.room_id
		LEFT JOIN exam_invigilators ei ON ei.exam_id = e.id
		LEFT JOIN invigilators i ON i.id = ei.invigilator_id
		WHERE 1=1` + where + `
		GROUP BY e.id, r.room_number, r.building
		ORDER BY e.exam_date, e.start_time, r.room_number`
	var entries []models.RosterEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("roster: %w", err)
	}
	return entries, nil
}

func (r *ExamRepository) insertAssignments(ctx context.Context, exec sqlx.ExtContext, examID string, invigilatorIDs []string, createdAt time.Time) error {
	if len(invigilatorIDs) == 0 {
		return nil
	}
	rows := make([]models.ExamInvigilator, 0, len(invigilatorIDs))
	for _, id := range invigilatorIDs {
		rows = append(rows, models.ExamInvigilator{ExamID: examID, InvigilatorID: id, CreatedAt: createdAt})
	}
	const query = `INSERT INTO exam_invigilators (exam_id, invigilator_id, created_at) VALUES (:exam_id, :invigilator_id, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, rows); err != nil {
		return fmt.Errorf("assign invigilators: %w", err)
	}
	return nil
}

func (r *ExamRepository) attachInvigilators(ctx context.Context, exec sqlx.ExtContext, exams []models.Exam) error {
	if len(exams) == 0 {
		return nil
	}
	ids := make([]string, len(exams))
	for i := range exams {
		ids[i] = exams[i].ID
		exams[i].InvigilatorIDs = []string{}
	}
	const query = `SELECT exam_id, invigilator_id, created_at FROM exam_invigilators WHERE exam_id = ANY($1) ORDER BY created_at, invigilator_id`
	var links []models.ExamInvigilator
	if err := sqlx.SelectContext(ctx, exec, &links, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("load exam invigilators: %w", err)
	}
	index := make(map[string]int, len(exams))
	for i := range exams {
		index[exams[i].ID] = i
	}
	for _, link := range links {
		if i, ok := index[link.ExamID]; ok {
			exams[i].InvigilatorIDs = append(exams[i].InvigilatorIDs, link.InvigilatorID)
		}
	}
	return nil
}
