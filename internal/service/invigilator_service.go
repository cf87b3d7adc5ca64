package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/invigilation-api/internal/dto"
	"github.com/noah-isme/invigilation-api/internal/models"
	"github.com/noah-isme/invigilation-api/pkg/database"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
)

type invigilatorRepository interface {
	List(ctx context.Context, filter models.InvigilatorFilter) ([]models.Invigilator, int, error)
	ListActive(ctx context.Context) ([]models.Invigilator, error)
	FindByID(ctx context.Context, id string) (*models.Invigilator, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, invigilator *models.Invigilator) error
	CreateWithTx(ctx context.Context, exec sqlx.ExtContext, invigilator *models.Invigilator) error
	Update(ctx context.Context, invigilator *models.Invigilator) error
	UpdateStatus(ctx context.Context, id string, status models.InvigilatorStatus) error
	Delete(ctx context.Context, id string) error
	Workload(ctx context.Context, from models.Date, limit int) ([]models.InvigilatorWorkload, error)
}

type invigilatorPreferenceStore interface {
	GetByInvigilator(ctx context.Context, invigilatorID string) (*models.InvigilatorPreference, error)
	Upsert(ctx context.Context, pref *models.InvigilatorPreference) error
}

type invigilatorDutyReader interface {
	ListByInvigilator(ctx context.Context, invigilatorID string, span models.DateRange) ([]models.Exam, error)
	ListOnDate(ctx context.Context, date models.Date) ([]models.Exam, error)
}

type invigilatorAccountWriter interface {
	CreateWithTx(ctx context.Context, exec sqlx.ExtContext, user *models.User) error
}

// InvigilatorServiceParams wires dependencies for the invigilator service.
type InvigilatorServiceParams struct {
	Invigilators invigilatorRepository
	Preferences  invigilatorPreferenceStore
	Duties       invigilatorDutyReader
	Accounts     invigilatorAccountWriter
	Tx           txProvider
	Cache        *CacheService
	Policy       WorkloadPolicy
	CacheTTL     time.Duration
	Validator    *validator.Validate
	Logger       *zap.Logger
}

// InvigilatorService manages invigilators, their preferences and their duty views.
type InvigilatorService struct {
	repo        invigilatorRepository
	preferences invigilatorPreferenceStore
	duties      invigilatorDutyReader
	accounts    invigilatorAccountWriter
	tx          txProvider
	cache       *CacheService
	policy      WorkloadPolicy
	cacheTTL    time.Duration
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewInvigilatorService constructs the invigilator service.
func NewInvigilatorService(params InvigilatorServiceParams) *InvigilatorService {
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvigilatorService{
		repo:        params.Invigilators,
		preferences: params.Preferences,
		duties:      params.Duties,
		accounts:    params.Accounts,
		tx:          params.Tx,
		cache:       params.Cache,
		policy:      params.Policy.withDefaults(),
		cacheTTL:    params.CacheTTL,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// List returns paginated invigilators.
func (s *InvigilatorService) List(ctx context.Context, query dto.InvigilatorQuery) ([]models.Invigilator, *models.Pagination, error) {
	status := models.InvigilatorStatus(strings.ToLower(strings.TrimSpace(query.Status)))
	if status != "" && status != models.InvigilatorActive && status != models.InvigilatorInactive {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "status must be active or inactive")
	}
	filter := models.InvigilatorFilter{
		DepartmentID: strings.TrimSpace(query.DepartmentID),
		Status:       status,
		Search:       strings.TrimSpace(query.Search),
		Page:         query.Page,
		PageSize:     query.PageSize,
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list invigilators")
	}
	return items, models.NewPagination(query.Page, query.PageSize, total), nil
}

// Get returns an invigilator by ID.
func (s *InvigilatorService) Get(ctx context.Context, id string) (*models.Invigilator, error) {
	invigilator, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invigilator not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invigilator")
	}
	return invigilator, nil
}

// Create registers an invigilator. When a password is supplied an INVIGILATOR
// account linked to the new record is created in the same transaction.
func (s *InvigilatorService) Create(ctx context.Context, req dto.CreateInvigilatorRequest) (*models.Invigilator, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid invigilator payload")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.ensureUniqueEmail(ctx, email, ""); err != nil {
		return nil, err
	}
	invigilator := &models.Invigilator{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		Phone:        normalizeOptional(req.Phone),
		DepartmentID: strings.TrimSpace(req.DepartmentID),
		Designation:  normalizeOptional(req.Designation),
		Status:       models.InvigilatorActive,
	}

	if req.Password == nil {
		if err := s.repo.Create(ctx, invigilator); err != nil {
			return nil, s.writeError(err, "failed to create invigilator")
		}
	} else {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		err = inSerializableTx(ctx, s.tx, func(tx *sqlx.Tx) error {
			if err := s.repo.CreateWithTx(ctx, tx, invigilator); err != nil {
				return err
			}
			return s.accounts.CreateWithTx(ctx, tx, &models.User{
				Email:         email,
				PasswordHash:  string(hash),
				FullName:      invigilator.Name,
				Role:          models.RoleInvigilator,
				InvigilatorID: lo.ToPtr(invigilator.ID),
				Active:        true,
			})
		})
		if err != nil {
			return nil, s.writeError(err, "failed to create invigilator")
		}
	}

	s.cache.InvalidateSchedule(ctx)
	s.logger.Info("invigilator created", zap.String("invigilator_id", invigilator.ID), zap.Bool("account", req.Password != nil))
	return invigilator, nil
}

// Update replaces the invigilator's profile.
func (s *InvigilatorService) Update(ctx context.Context, id string, req dto.UpdateInvigilatorRequest) (*models.Invigilator, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid invigilator payload")
	}
	invigilator, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.ensureUniqueEmail(ctx, email, id); err != nil {
		return nil, err
	}
	invigilator.Name = strings.TrimSpace(req.Name)
	invigilator.Email = email
	invigilator.Phone = normalizeOptional(req.Phone)
	invigilator.DepartmentID = strings.TrimSpace(req.DepartmentID)
	invigilator.Designation = normalizeOptional(req.Designation)
	if err := s.repo.Update(ctx, invigilator); err != nil {
		return nil, s.writeError(err, "failed to update invigilator")
	}
	s.cache.InvalidateSchedule(ctx)
	return invigilator, nil
}

// SetStatus activates or deactivates an invigilator. Inactive invigilators keep
// their existing duties but are never offered new ones.
func (s *InvigilatorService) SetStatus(ctx context.Context, id string, req dto.InvigilatorStatusRequest) (*models.Invigilator, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	if err := s.repo.UpdateStatus(ctx, id, req.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invigilator not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update invigilator status")
	}
	s.cache.InvalidateSchedule(ctx)
	return s.Get(ctx, id)
}

// Delete removes an invigilator without assigned duties.
func (s *InvigilatorService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.Clone(appErrors.ErrNotFound, "invigilator not found")
		case database.IsForeignKeyViolation(err):
			return appErrors.Clone(appErrors.ErrConflict, "invigilator has assigned duties")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete invigilator")
	}
	s.cache.InvalidateSchedule(ctx)
	return nil
}

// Schedule lists the invigilator's duties within the optional bounds.
func (s *InvigilatorService) Schedule(ctx context.Context, id string, query dto.ScheduleQuery) ([]models.Exam, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	span, err := parseSpan(query.From, query.To)
	if err != nil {
		return nil, err
	}
	exams, err := s.duties.ListByInvigilator(ctx, id, span)
	if err != nil {
		return nil, storageUnavailable(err, "list invigilator duties")
	}
	return exams, nil
}

// Availability reports, for each active invigilator, whether the slot is free.
// Busy invigilators carry the overlapping duties and a reason naming the first one.
func (s *InvigilatorService) Availability(ctx context.Context, query dto.AvailabilityQuery) ([]models.InvigilatorAvailability, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "date, start_time and end_time are required")
	}
	slot, err := parseSlot(query.Date, query.StartTime, query.EndTime)
	if err != nil {
		return nil, err
	}
	invigilators, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, storageUnavailable(err, "list active invigilators")
	}
	exams, err := s.duties.ListOnDate(ctx, slot.Date)
	if err != nil {
		return nil, storageUnavailable(err, "list exams on date")
	}

	out := make([]models.InvigilatorAvailability, 0, len(invigilators))
	for _, inv := range invigilators {
		busy := lo.Filter(exams, func(exam models.Exam, _ int) bool {
			return lo.Contains(exam.InvigilatorIDs, inv.ID) && exam.Slot().Overlaps(slot)
		})
		entry := models.InvigilatorAvailability{Invigilator: inv, IsAvailable: len(busy) == 0}
		if len(busy) > 0 {
			first := busy[0]
			entry.Reason = fmt.Sprintf("Assigned to %s (%s - %s)", first.SubjectName, first.StartTime, first.EndTime)
			entry.Assignments = busy
		}
		out = append(out, entry)
	}
	return out, nil
}

// Workload returns upcoming duty counts for every invigilator, busiest first.
// The boolean reports whether the result came from cache.
func (s *InvigilatorService) Workload(ctx context.Context) ([]models.InvigilatorWorkload, bool, error) {
	var cached []models.InvigilatorWorkload
	if hit, err := s.cache.Get(ctx, workloadCacheKey, &cached); err == nil && hit {
		return cached, true, nil
	}

	workload, err := s.repo.Workload(ctx, models.DateOf(s.now()), 0)
	if err != nil {
		return nil, false, storageUnavailable(err, "load workload")
	}
	if workload == nil {
		workload = []models.InvigilatorWorkload{}
	}
	if err := s.cache.Set(ctx, workloadCacheKey, workload, s.cacheTTL); err != nil {
		s.logger.Debug("workload cache write skipped", zap.Error(err))
	}
	return workload, false, nil
}

// Preferences returns the stored preferences, or the configured defaults flagged
// with IsDefault when none were saved.
func (s *InvigilatorService) Preferences(ctx context.Context, id string) (*models.InvigilatorPreference, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	pref, err := s.preferences.GetByInvigilator(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.defaultPreference(id), nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load preferences")
	}
	return pref, nil
}

// UpdatePreferences replaces the invigilator's preferences.
func (s *InvigilatorService) UpdatePreferences(ctx context.Context, id string, req dto.PreferenceRequest) (*models.InvigilatorPreference, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid preference payload")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	slots := make([]string, 0, len(req.PreferredTimeSlots))
	for i, raw := range req.PreferredTimeSlots {
		tr, err := models.ParseTimeRange(raw)
		if err != nil {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, "preferred_time_slots must be HH:MM-HH:MM", map[string]interface{}{"index": i, "value": raw})
		}
		slots = append(slots, fmt.Sprintf("%s-%s", tr.Start, tr.End))
	}
	days := lo.Uniq(req.PreferredDays)
	if days == nil {
		days = []int{}
	}

	daysJSON, err := json.Marshal(days)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode preferences")
	}
	slotsJSON, err := json.Marshal(slots)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode preferences")
	}

	pref := &models.InvigilatorPreference{
		InvigilatorID:      id,
		PreferredDays:      daysJSON,
		PreferredTimeSlots: slotsJSON,
		MaxDutiesPerDay:    positiveOrDefault(req.MaxDutiesPerDay, s.policy.DefaultMaxPerDay),
		MaxDutiesPerWeek:   positiveOrDefault(req.MaxDutiesPerWeek, s.policy.DefaultMaxPerWeek),
	}
	if pref.MaxDutiesPerDay > pref.MaxDutiesPerWeek {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "max_duties_per_day cannot exceed max_duties_per_week", map[string]interface{}{
			"max_duties_per_day":  pref.MaxDutiesPerDay,
			"max_duties_per_week": pref.MaxDutiesPerWeek,
		})
	}
	if err := s.preferences.Upsert(ctx, pref); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save preferences")
	}
	return pref, nil
}

func (s *InvigilatorService) defaultPreference(id string) *models.InvigilatorPreference {
	return &models.InvigilatorPreference{
		InvigilatorID:      id,
		PreferredDays:      []byte("[]"),
		PreferredTimeSlots: []byte("[]"),
		MaxDutiesPerDay:    s.policy.DefaultMaxPerDay,
		MaxDutiesPerWeek:   s.policy.DefaultMaxPerWeek,
		IsDefault:          true,
	}
}

func (s *InvigilatorService) ensureUniqueEmail(ctx context.Context, email, excludeID string) error {
	exists, err := s.repo.ExistsByEmail(ctx, email, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "email already registered")
	}
	return nil
}

func (s *InvigilatorService) writeError(err error, message string) error {
	switch {
	case database.IsUniqueViolation(err):
		return appErrors.Clone(appErrors.ErrConflict, "email already registered")
	case database.IsForeignKeyViolation(err):
		return appErrors.Clone(appErrors.ErrValidation, "department does not exist")
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "invigilator not found")
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	s.logger.Warn("invigilator write failed", zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func positiveOrDefault(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
