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

// InvigilatorRepository manages persistence for invigilators.
type InvigilatorRepository struct {
	db *sqlx.DB
}

// NewInvigilatorRepository constructs an InvigilatorRepository.
func NewInvigilatorRepository(db *sqlx.DB) *InvigilatorRepository {
	return &InvigilatorRepository{db: db}
}

// List returns invigilators matching filters along with total count.
func (r *InvigilatorRepository) List(ctx context.Context, filter models.InvigilatorFilter) ([]models.Invigilator, int, error) {
	base := "FROM invigilators WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.DepartmentID != "" {
		conditions = append(conditions, fmt.Sprintf("department_id = $%d", len(args)+1))
		args = append(args, filter.DepartmentID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		search := "%" + strings.ToLower(filter.Search) + "%"
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(email) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, search)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s %s ORDER BY name, id LIMIT %d OFFSET %d", invigilatorColumns, base, size, (page-1)*size)
	var invigilators []models.Invigilator
	if err := r.db.SelectContext(ctx, &invigilators, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list invigilators: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count invigilators: %w", err)
	}
	return invigilators, total, nil
}

// ListActive returns every active invigilator ordered by name.
func (r *InvigilatorRepository) ListActive(ctx context.Context) ([]models.Invigilator, error) {
	query := "SELECT " + invigilatorColumns + " FROM invigilators WHERE status = $1 ORDER BY name, id"
	var invigilators []models.Invigilator
	if err := r.db.SelectContext(ctx, &invigilators, query, models.InvigilatorActive); err != nil {
		return nil, fmt.Errorf("list active invigilators: %w", err)
	}
	return invigilators, nil
}

// FindByID fetches an invigilator by ID.
func (r *InvigilatorRepository) FindByID(ctx context.Context, id string) (*models.Invigilator, error) {
	return r.FindByIDWithTx(ctx, r.db, id)
}

// FindByIDWithTx fetches an invigilator through exec.
func (r *InvigilatorRepository) FindByIDWithTx(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Invigilator, error) {
	query := "SELECT " + invigilatorColumns + " FROM invigilators WHERE id = $1"
	var invigilator models.Invigilator
	if err := sqlx.GetContext(ctx, exec, &invigilator, query, id); err != nil {
		return nil, err
	}
	return &invigilator, nil
}

// FindByIDs fetches the invigilators named in ids. Missing IDs are silently absent.
func (r *InvigilatorRepository) FindByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.Invigilator, error) {
	if len(ids) == 0 {
		return []models.Invigilator{}, nil
	}
	query, args, err := sqlx.In("SELECT "+invigilatorColumns+" FROM invigilators WHERE id IN (?) ORDER BY id", ids)
	if err != nil {
		return nil, fmt.Errorf("build invigilator lookup: %w", err)
	}
	var invigilators []models.Invigilator
	if err := sqlx.SelectContext(ctx, exec, &invigilators, exec.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("find invigilators: %w", err)
	}
	return invigilators, nil
}

// ExistsByEmail checks whether another invigilator already uses email.
func (r *InvigilatorRepository) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	query := "SELECT 1 FROM invigilators WHERE LOWER(email) = LOWER($1)"
	args := []interface{}{email}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check invigilator email: %w", err)
	}
	return true, nil
}

// Create inserts a new invigilator.
func (r *InvigilatorRepository) Create(ctx context.Context, invigilator *models.Invigilator) error {
	return r.CreateWithTx(ctx, r.db, invigilator)
}

// CreateWithTx inserts a new invigilator through exec.
func (r *InvigilatorRepository) CreateWithTx(ctx context.Context, exec sqlx.ExtContext, invigilator *models.Invigilator) error {
	if invigilator.ID == "" {
		invigilator.ID = uuid.NewString()
	}
	if invigilator.Status == "" {
		invigilator.Status = models.InvigilatorActive
	}
	now := time.Now().UTC()
	if invigilator.CreatedAt.IsZero() {
		invigilator.CreatedAt = now
	}
	invigilator.UpdatedAt = now

	const query = `INSERT INTO invigilators (id, name, email, phone, department_id, designation, status, created_at, updated_at)
		VALUES (:id, :name, :email, :phone, :department_id, :designation, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, invigilator); err != nil {
		return fmt.Errorf("create invigilator: %w", err)
	}
	return nil
}

// Update modifies an existing invigilator.
func (r *InvigilatorRepository) Update(ctx context.Context, invigilator *models.Invigilator) error {
	invigilator.UpdatedAt = time.Now().UTC()
	const query = `UPDATE invigilators SET name = :name, email = :email, phone = :phone, department_id = :department_id, designation = :designation, status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, invigilator); err != nil {
		return fmt.Errorf("update invigilator: %w", err)
	}
	return nil
}

// UpdateStatus toggles an invigilator between active and inactive.
func (r *InvigilatorRepository) UpdateStatus(ctx context.Context, id string, status models.InvigilatorStatus) error {
	const query = `UPDATE invigilators SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update invigilator status: %w", err)
	}
	return expectAffected(res)
}

// Delete removes an invigilator.
func (r *InvigilatorRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM invigilators WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete invigilator: %w", err)
	}
	return expectAffected(res)
}

// CountActive returns the number of active invigilators.
func (r *InvigilatorRepository) CountActive(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM invigilators WHERE status = $1`, models.InvigilatorActive); err != nil {
		return 0, fmt.Errorf("count active invigilators: %w", err)
	}
	return total, nil
}

// Workload counts upcoming duties (dated on or after from) per invigilator, busiest first.
// A non-positive limit returns every invigilator.
func (r *InvigilatorRepository) Workload(ctx context.Context, from models.Date, limit int) ([]models.InvigilatorWorkload, error) {
	query := `SELECT i.id AS invigilator_id, i.name, i.department_id, COUNT(e.id) AS total_assignments
		FROM invigilators i
		LEFT JOIN exam_invigilators ei ON ei.invigilator_id = i.id
		LEFT JOIN exams e ON e.id = ei.exam_id AND e.exam_date >= $1
		GROUP BY i.id, i.name, i.department_id
		ORDER BY total_assignments DESC, i.name`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	var workload []models.InvigilatorWorkload
	if err := r.db.SelectContext(ctx, &workload, query, from); err != nil {
		return nil, fmt.Errorf("invigilator workload: %w", err)
	}
	return workload, nil
}
