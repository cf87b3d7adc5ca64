package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/invigilation-api/internal/dto"
	"github.com/noah-isme/invigilation-api/internal/models"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
)

type plannedExamWriter interface {
	CreateWithTx(ctx context.Context, exec sqlx.ExtContext, exam *models.Exam) error
}

// SchedulerServiceParams wires dependencies for the scheduler service.
type SchedulerServiceParams struct {
	Exams     plannedExamWriter
	Tx        txProvider
	Stores    StoreBinder
	Checker   *ConflictChecker
	Cache     *CacheService
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
}

// SchedulerService exposes the planner, the requirement rule and booking validation previews.
type SchedulerService struct {
	exams     plannedExamWriter
	tx        txProvider
	stores    StoreBinder
	checker   *ConflictChecker
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSchedulerService constructs the scheduler service.
func NewSchedulerService(params SchedulerServiceParams) *SchedulerService {
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchedulerService{
		exams:     params.Exams,
		tx:        params.Tx,
		stores:    params.Stores,
		checker:   params.Checker,
		cache:     params.Cache,
		metrics:   params.Metrics,
		validator: validate,
		logger:    logger,
	}
}

// Plan places the requested exams. With Commit set, the plan is computed against
// a SERIALIZABLE transaction and every placement is persisted in it atomically.
func (s *SchedulerService) Plan(ctx context.Context, req dto.PlanRequest) (*dto.PlanResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid plan payload")
	}
	requests, err := buildAssignmentRequests(req.Requests)
	if err != nil {
		return nil, err
	}

	var planned []models.PlannedAssignment
	scheduled := make([]dto.ScheduledExam, 0, len(requests))
	if !req.Commit {
		planned, err = NewAssignmentPlanner(s.checker, s.logger).Plan(ctx, requests)
		if err != nil {
			s.logger.Warn("plan preview failed", zap.Error(err))
			return nil, err
		}
		for _, p := range planned {
			scheduled = append(scheduled, dto.ScheduledExam{PlannedAssignment: p})
		}
	} else {
		err = inSerializableTx(ctx, s.tx, func(tx *sqlx.Tx) error {
			var planErr error
			planned, planErr = NewAssignmentPlanner(s.checker.WithStore(s.stores(tx)), s.logger).Plan(ctx, requests)
			if planErr != nil {
				return planErr
			}
			for _, p := range planned {
				exam := examFromPlan(p)
				if err := s.exams.CreateWithTx(ctx, tx, exam); err != nil {
					return err
				}
				scheduled = append(scheduled, dto.ScheduledExam{PlannedAssignment: p, ExamID: exam.ID})
			}
			return nil
		})
		if err != nil {
			mapped := bookingWriteError(err, "commit plan")
			s.logger.Warn("plan commit failed", zap.Error(err))
			return nil, mapped
		}
		s.cache.InvalidateSchedule(ctx)
	}

	unscheduled := unscheduledRequestIDs(requests, planned)
	if s.metrics != nil {
		s.metrics.RecordPlanOutcome(len(planned), len(unscheduled))
	}
	return &dto.PlanResponse{
		Scheduled:   scheduled,
		Unscheduled: unscheduled,
		Committed:   req.Commit,
	}, nil
}

// Requirements reports the invigilator count studentCount needs under the configured rule.
func (s *SchedulerService) Requirements(studentCount int) (*dto.RequirementResponse, error) {
	if studentCount <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_count must be positive")
	}
	rule := s.checker.Rule()
	return &dto.RequirementResponse{
		StudentCount: studentCount,
		Required:     rule.Required(studentCount),
		Rule:         string(rule),
	}, nil
}

// Validate runs every conflict check for a proposed booking without persisting anything.
func (s *SchedulerService) Validate(ctx context.Context, req dto.ValidateBookingRequest) (*models.ValidationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}
	slot, err := parseSlot(req.ExamDate, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	ids := lo.Map(req.InvigilatorIDs, func(id string, _ int) string { return strings.TrimSpace(id) })
	booking, err := models.NewBooking(strings.TrimSpace(req.ExamID), strings.TrimSpace(req.RoomID), slot, req.StudentCount, ids)
	if err != nil {
		return nil, bookingInputError(err)
	}
	result, err := s.checker.ValidateBooking(ctx, booking)
	if err != nil {
		s.logger.Warn("booking validation failed", zap.Error(err))
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordValidation(result.Valid)
	}
	return result, nil
}

// buildAssignmentRequests converts payload items, naming unnamed items by position.
func buildAssignmentRequests(items []dto.PlanRequestItem) ([]models.AssignmentRequest, error) {
	requests := make([]models.AssignmentRequest, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			id = fmt.Sprintf("req-%d", i+1)
		}
		if _, dup := seen[id]; dup {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, "request ids must be unique", map[string]interface{}{"index": i, "id": id})
		}
		seen[id] = struct{}{}

		slot, err := parseSlot(item.ExamDate, item.StartTime, item.EndTime)
		if err != nil {
			return nil, appErrors.WithDetails(appErrors.FromError(err), "", map[string]interface{}{"index": i, "id": id})
		}
		req, err := models.NewAssignmentRequest(id, strings.TrimSpace(item.SubjectName), strings.TrimSpace(item.SubjectCode),
			strings.TrimSpace(item.DepartmentID), slot, item.StudentCount)
		if err != nil {
			return nil, appErrors.WithDetails(appErrors.FromError(bookingInputError(err)), "", map[string]interface{}{"index": i, "id": id})
		}
		requests = append(requests, req)
	}
	return requests, nil
}

func unscheduledRequestIDs(requests []models.AssignmentRequest, planned []models.PlannedAssignment) []string {
	all := lo.Map(requests, func(req models.AssignmentRequest, _ int) string { return req.ID })
	placed := lo.Map(planned, func(p models.PlannedAssignment, _ int) string { return p.Request.ID })
	return lo.Without(all, placed...)
}

func examFromPlan(p models.PlannedAssignment) *models.Exam {
	var department *string
	if p.Request.DepartmentID != "" {
		department = lo.ToPtr(p.Request.DepartmentID)
	}
	ids := lo.Map(p.Invigilators, func(inv models.Invigilator, _ int) string { return inv.ID })
	return &models.Exam{
		SubjectName:    p.Request.SubjectName,
		SubjectCode:    p.Request.SubjectCode,
		ExamDate:       p.Request.Slot.Date,
		StartTime:      p.Request.Slot.Start,
		EndTime:        p.Request.Slot.End,
		RoomID:         p.Room.ID,
		DepartmentID:   department,
		StudentCount:   p.Request.StudentCount,
		InvigilatorIDs: ids,
	}
}
