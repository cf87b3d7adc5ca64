package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/invigilation-api/internal/models"
)

// InvigilatorPreferenceRepository persists duty preferences.
type InvigilatorPreferenceRepository struct {
	db *sqlx.DB
}

// NewInvigilatorPreferenceRepository constructs the repository.
func NewInvigilatorPreferenceRepository(db *sqlx.DB) *InvigilatorPreferenceRepository {
	return &InvigilatorPreferenceRepository{db: db}
}

// GetByInvigilator returns stored preferences; sql.ErrNoRows when none exist.
func (r *InvigilatorPreferenceRepository) GetByInvigilator(ctx context.Context, invigilatorID string) (*models.InvigilatorPreference, error) {
	query := "SELECT " + preferenceColumns + " FROM invigilator_preferences WHERE invigilator_id = $1"
	var pref models.InvigilatorPreference
	if err := r.db.GetContext(ctx, &pref, query, invigilatorID); err != nil {
		return nil, err
	}
	return &pref, nil
}

// Upsert creates or replaces the preference record for one invigilator.
func (r *InvigilatorPreferenceRepository) Upsert(ctx context.Context, pref *models.InvigilatorPreference) error {
	if pref.ID == "" {
		pref.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if pref.CreatedAt.IsZero() {
		pref.CreatedAt = now
	}
	pref.UpdatedAt = now
	if len(pref.PreferredDays) == 0 {
		pref.PreferredDays = []byte("[]")
	}
	if len(pref.PreferredTimeSlots) == 0 {
		pref.PreferredTimeSlots = []byte("[]")
	}

	const query = `INSERT INTO invigilator_preferences (id, invigilator_id, preferred_days, preferred_time_slots, max_duties_per_day, max_duties_per_week, created_at, updated_at)
		VALUES (:id, :invigilator_id, :preferred_days, :preferred_time_slots, :max_duties_per_day, :max_duties_per_week, :created_at, :updated_at)
		ON CONFLICT (invigilator_id) DO UPDATE
		SET preferred_days = EXCLUDED.preferred_days,
		    preferred_time_slots = EXCLUDED.preferred_time_slots,
		    max_duties_per_day = EXCLUDED.max_duties_per_day,
		    max_duties_per_week = EXCLUDED.max_duties_per_week,
		    updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, pref); err != nil {
		return fmt.Errorf("upsert invigilator preference: %w", err)
	}
	return nil
}
