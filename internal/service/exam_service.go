package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/invigilation-api/internal/dto"
	"github.com/noah-isme/invigilation-api/internal/models"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
)

type examStore interface {
	List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, int, error)
	FindByID(ctx context.Context, id string) (*models.Exam, error)
	FindByIDWithTx(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Exam, error)
	CreateWithTx(ctx context.Context, exec sqlx.ExtContext, exam *models.Exam) error
	UpdateWithTx(ctx context.Context, exec sqlx.ExtContext, exam *models.Exam) error
	AddInvigilatorWithTx(ctx context.Context, exec sqlx.ExtContext, examID, invigilatorID string) error
	RemoveInvigilatorWithTx(ctx context.Context, exec sqlx.ExtContext, examID, invigilatorID string) error
	IsAssigned(ctx context.Context, exec sqlx.ExtContext, examID, invigilatorID string) (bool, error)
	Delete(ctx context.Context, id string) error
}

type examRoomReader interface {
	FindByIDWithTx(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Room, error)
}

type examInvigilatorReader interface {
	FindByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.Invigilator, error)
}

// ExamServiceParams wires dependencies for the exam service.
type ExamServiceParams struct {
	Exams        examStore
	Rooms        examRoomReader
	Invigilators examInvigilatorReader
	Tx           txProvider
	Stores       StoreBinder
	Checker      *ConflictChecker
	Cache        *CacheService
	Metrics      *MetricsService
	Validator    *validator.Validate
	Logger       *zap.Logger
}

// ExamService books exams and their invigilators. Every write re-runs the conflict
// checks inside the same SERIALIZABLE transaction that persists it.
type ExamService struct {
	exams        examStore
	rooms        examRoomReader
	invigilators examInvigilatorReader
	tx           txProvider
	stores       StoreBinder
	checker      *ConflictChecker
	cache        *CacheService
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewExamService constructs the exam service.
func NewExamService(params ExamServiceParams) *ExamService {
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExamService{
		exams:        params.Exams,
		rooms:        params.Rooms,
		invigilators: params.Invigilators,
		tx:           params.Tx,
		stores:       params.Stores,
		checker:      params.Checker,
		cache:        params.Cache,
		metrics:      params.Metrics,
		validator:    validate,
		logger:       logger,
	}
}

// List returns exams matching the query.
func (s *ExamService) List(ctx context.Context, query dto.ExamQuery) ([]models.Exam, *models.Pagination, error) {
	span, err := parseSpan(query.From, query.To)
	if err != nil {
		return nil, nil, err
	}
	filter := models.ExamFilter{
		From:         span.From,
		To:           span.To,
		RoomID:       strings.TrimSpace(query.RoomID),
		DepartmentID: strings.TrimSpace(query.DepartmentID),
		Page:         query.Page,
		PageSize:     query.PageSize,
	}
	exams, total, err := s.exams.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list exams")
	}
	return exams, models.NewPagination(query.Page, query.PageSize, total), nil
}

// Get returns one exam with its invigilator IDs.
func (s *ExamService) Get(ctx context.Context, id string) (*models.Exam, error) {
	exam, err := s.exams.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	return exam, nil
}

// Create validates and books a new exam.
func (s *ExamService) Create(ctx context.Context, req dto.ExamRequest) (*models.Exam, error) {
	exam, booking, err := s.prepare(req, "")
	if err != nil {
		return nil, err
	}

	err = inSerializableTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.checkBooking(ctx, tx, booking); err != nil {
			return err
		}
		return s.exams.CreateWithTx(ctx, tx, exam)
	})
	if err != nil {
		return nil, s.writeFailure(err, "create exam")
	}

	s.cache.InvalidateSchedule(ctx)
	s.logger.Info("exam booked",
		zap.String("exam_id", exam.ID),
		zap.String("room_id", exam.RoomID),
		zap.String("date", exam.ExamDate.String()),
		zap.Int("invigilators", len(exam.InvigilatorIDs)),
	)
	return exam, nil
}

// Update re-validates and rewrites an exam, replacing its invigilator set.
// The exam's own current booking never conflicts with the update.
func (s *ExamService) Update(ctx context.Context, id string, req dto.ExamRequest) (*models.Exam, error) {
	exam, booking, err := s.prepare(req, id)
	if err != nil {
		return nil, err
	}

	err = inSerializableTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		existing, err := s.exams.FindByIDWithTx(ctx, tx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "exam not found")
			}
			return err
		}
		if err := s.checkBooking(ctx, tx, booking); err != nil {
			return err
		}
		exam.ID = existing.ID
		exam.CreatedAt = existing.CreatedAt
		if err := s.exams.UpdateWithTx(ctx, tx, exam); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "exam not found")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, s.writeFailure(err, "update exam")
	}

	s.cache.InvalidateSchedule(ctx)
	return exam, nil
}

// Delete removes an exam and, through the cascade, its assignments.
func (s *ExamService) Delete(ctx context.Context, id string) error {
	if err := s.exams.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete exam")
	}
	s.cache.InvalidateSchedule(ctx)
	return nil
}

// AddInvigilator assigns one more invigilator to an existing exam.
func (s *ExamService) AddInvigilator(ctx context.Context, examID string, req dto.AssignInvigilatorRequest) (*models.Exam, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	invigilatorID := strings.TrimSpace(req.InvigilatorID)

	var exam *models.Exam
	err := inSerializableTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		var err error
		exam, err = s.exams.FindByIDWithTx(ctx, tx, examID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "exam not found")
			}
			return err
		}
		if err := s.ensureAssignable(ctx, tx, []string{invigilatorID}); err != nil {
			return err
		}
		assigned, err := s.exams.IsAssigned(ctx, tx, examID, invigilatorID)
		if err != nil {
			return err
		}
		if assigned {
			return appErrors.ErrDuplicateAssignment
		}

		checker := s.checker.WithStore(s.stores(tx))
		conflicts, err := checker.CheckInvigilatorConflicts(ctx, []string{invigilatorID}, exam.Slot(), exam.ID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return appErrors.WithDetails(appErrors.ErrInvigilatorConflict, "Time conflict with another assigned duty", conflicts)
		}
		overloaded, err := checker.CheckWorkloadLimits(ctx, []string{invigilatorID}, exam.ExamDate, exam.ID)
		if err != nil {
			return err
		}
		if len(overloaded) > 0 {
			return appErrors.WithDetails(appErrors.ErrWorkloadExceeded, "", overloaded)
		}
		return s.exams.AddInvigilatorWithTx(ctx, tx, examID, invigilatorID)
	})
	if err != nil {
		return nil, s.writeFailure(err, "assign invigilator")
	}

	exam.InvigilatorIDs = append(exam.InvigilatorIDs, invigilatorID)
	s.cache.InvalidateSchedule(ctx)
	s.logger.Info("invigilator assigned", zap.String("exam_id", examID), zap.String("invigilator_id", invigilatorID))
	return exam, nil
}

// RemoveInvigilator drops one assignment from an exam. The exam must keep at
// least the invigilators its student count requires.
func (s *ExamService) RemoveInvigilator(ctx context.Context, examID, invigilatorID string) error {
	err := inSerializableTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		exam, err := s.exams.FindByIDWithTx(ctx, tx, examID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "exam not found")
			}
			return err
		}
		if !lo.Contains(exam.InvigilatorIDs, invigilatorID) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		required := s.checker.Rule().Required(exam.StudentCount)
		if remaining := len(exam.InvigilatorIDs) - 1; remaining < required {
			return appErrors.WithDetails(appErrors.ErrInsufficientInvigilators, "exam would fall below its required invigilators",
				map[string]interface{}{"required": required, "supplied": remaining})
		}
		if err := s.exams.RemoveInvigilatorWithTx(ctx, tx, examID, invigilatorID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return s.writeFailure(err, "remove invigilator")
	}
	s.cache.InvalidateSchedule(ctx)
	return nil
}

func (s *ExamService) prepare(req dto.ExamRequest, examID string) (*models.Exam, models.Booking, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, models.Booking{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exam payload")
	}
	slot, err := parseSlot(req.ExamDate, req.StartTime, req.EndTime)
	if err != nil {
		return nil, models.Booking{}, err
	}
	ids := lo.Map(req.InvigilatorIDs, func(id string, _ int) string { return strings.TrimSpace(id) })
	booking, err := models.NewBooking(examID, strings.TrimSpace(req.RoomID), slot, req.StudentCount, ids)
	if err != nil {
		return nil, models.Booking{}, bookingInputError(err)
	}
	exam := &models.Exam{
		SubjectName:    strings.TrimSpace(req.SubjectName),
		SubjectCode:    strings.TrimSpace(req.SubjectCode),
		ExamDate:       slot.Date,
		StartTime:      slot.Start,
		EndTime:        slot.End,
		RoomID:         booking.RoomID,
		DepartmentID:   normalizeOptional(req.DepartmentID),
		StudentCount:   booking.StudentCount,
		InvigilatorIDs: booking.InvigilatorIDs,
	}
	return exam, booking, nil
}

// checkBooking verifies room and invigilator records, then runs the conflict checker through tx.
func (s *ExamService) checkBooking(ctx context.Context, tx *sqlx.Tx, booking models.Booking) error {
	room, err := s.rooms.FindByIDWithTx(ctx, tx, booking.RoomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return err
	}
	if room.Capacity < booking.StudentCount {
		return appErrors.WithDetails(appErrors.ErrRoomCapacityExceeded, "", map[string]int{
			"capacity":      room.Capacity,
			"student_count": booking.StudentCount,
		})
	}
	if err := s.ensureAssignable(ctx, tx, booking.InvigilatorIDs); err != nil {
		return err
	}

	result, err := s.checker.WithStore(s.stores(tx)).ValidateBooking(ctx, booking)
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordValidation(result.Valid)
	}
	if failure := validationFailure(result); failure != nil {
		return failure
	}
	return nil
}

// ensureAssignable rejects unknown or inactive invigilators.
func (s *ExamService) ensureAssignable(ctx context.Context, tx *sqlx.Tx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := s.invigilators.FindByIDs(ctx, tx, ids)
	if err != nil {
		return err
	}
	byID := lo.KeyBy(found, func(inv models.Invigilator) string { return inv.ID })
	missing := lo.Filter(ids, func(id string, _ int) bool {
		_, ok := byID[id]
		return !ok
	})
	if len(missing) > 0 {
		return appErrors.WithDetails(appErrors.ErrNotFound, "invigilator not found", missing)
	}
	inactive := lo.FilterMap(found, func(inv models.Invigilator, _ int) (string, bool) {
		return inv.ID, !inv.Active()
	})
	if len(inactive) > 0 {
		return appErrors.WithDetails(appErrors.ErrValidation, "inactive invigilators cannot be assigned", inactive)
	}
	return nil
}

func (s *ExamService) writeFailure(err error, op string) error {
	mapped := bookingWriteError(err, op)
	if errors.Is(mapped, appErrors.ErrStorageUnavailable) || errors.Is(mapped, appErrors.ErrConflict) {
		s.logger.Warn("exam write failed", zap.String("op", op), zap.Error(err))
	}
	return mapped
}

// parseSlot builds a slot from request strings.
func parseSlot(date, start, end string) (models.Slot, error) {
	d, err := models.ParseDate(date)
	if err != nil {
		return models.Slot{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "exam_date must be YYYY-MM-DD")
	}
	startTime, err := models.ParseTimeOfDay(start)
	if err != nil {
		return models.Slot{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "start_time must be HH:MM")
	}
	endTime, err := models.ParseTimeOfDay(end)
	if err != nil {
		return models.Slot{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "end_time must be HH:MM")
	}
	slot, err := models.NewSlot(d, startTime, endTime)
	if err != nil {
		return models.Slot{}, bookingInputError(err)
	}
	return slot, nil
}

// parseSpan parses optional from/to bounds.
func parseSpan(from, to string) (models.DateRange, error) {
	var span models.DateRange
	if raw := strings.TrimSpace(from); raw != "" {
		d, err := models.ParseDate(raw)
		if err != nil {
			return span, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "from must be YYYY-MM-DD")
		}
		span.From = d
	}
	if raw := strings.TrimSpace(to); raw != "" {
		d, err := models.ParseDate(raw)
		if err != nil {
			return span, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "to must be YYYY-MM-DD")
		}
		span.To = d
	}
	if !span.From.IsZero() && !span.To.IsZero() && span.To.Before(span.From) {
		return span, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}
	return span, nil
}
