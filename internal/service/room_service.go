package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/invigilation-api/internal/dto"
	"github.com/noah-isme/invigilation-api/internal/models"
	"github.com/noah-isme/invigilation-api/pkg/database"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
)

type roomRepository interface {
	List(ctx context.Context, filter models.RoomFilter) ([]models.Room, int, error)
	FindByID(ctx context.Context, id string) (*models.Room, error)
	ExistsByNumber(ctx context.Context, roomNumber, excludeID string) (bool, error)
	Create(ctx context.Context, room *models.Room) error
	Update(ctx context.Context, room *models.Room) error
	Delete(ctx context.Context, id string) error
}

type roomScheduleReader interface {
	ListByRoom(ctx context.Context, roomID string, span models.DateRange) ([]models.Exam, error)
}

// RoomService handles exam room management.
type RoomService struct {
	repo      roomRepository
	exams     roomScheduleReader
	checker   *ConflictChecker
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRoomService constructs a RoomService. checker answers slot availability queries.
func NewRoomService(repo roomRepository, exams roomScheduleReader, checker *ConflictChecker, validate *validator.Validate, logger *zap.Logger) *RoomService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomService{repo: repo, exams: exams, checker: checker, validator: validate, logger: logger}
}

// List returns paginated rooms.
func (s *RoomService) List(ctx context.Context, query dto.RoomQuery) ([]models.Room, *models.Pagination, error) {
	filter := models.RoomFilter{
		Building:    strings.TrimSpace(query.Building),
		MinCapacity: query.MinCapacity,
		Page:        query.Page,
		PageSize:    query.PageSize,
	}
	rooms, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rooms")
	}
	return rooms, models.NewPagination(query.Page, query.PageSize, total), nil
}

// Get returns a room by ID.
func (s *RoomService) Get(ctx context.Context, id string) (*models.Room, error) {
	room, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}
	return room, nil
}

// Create registers a new room.
func (s *RoomService) Create(ctx context.Context, req dto.RoomRequest) (*models.Room, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid room payload")
	}
	if err := s.ensureUniqueNumber(ctx, req.RoomNumber, ""); err != nil {
		return nil, err
	}
	room := &models.Room{
		RoomNumber: strings.TrimSpace(req.RoomNumber),
		Capacity:   req.Capacity,
		Building:   strings.TrimSpace(req.Building),
		Floor:      req.Floor,
	}
	if err := s.repo.Create(ctx, room); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create room")
	}
	return room, nil
}

// Update modifies an existing room.
func (s *RoomService) Update(ctx context.Context, id string, req dto.RoomRequest) (*models.Room, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid room payload")
	}
	room, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUniqueNumber(ctx, req.RoomNumber, id); err != nil {
		return nil, err
	}
	room.RoomNumber = strings.TrimSpace(req.RoomNumber)
	room.Capacity = req.Capacity
	room.Building = strings.TrimSpace(req.Building)
	room.Floor = req.Floor
	if err := s.repo.Update(ctx, room); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update room")
	}
	return room, nil
}

// Delete removes a room that has no exams booked.
func (s *RoomService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.Clone(appErrors.ErrNotFound, "room not found")
		case database.IsForeignKeyViolation(err):
			return appErrors.Clone(appErrors.ErrConflict, "room has booked exams")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete room")
	}
	return nil
}

// Schedule lists the exams booked in a room within the optional bounds.
func (s *RoomService) Schedule(ctx context.Context, id string, query dto.ScheduleQuery) ([]models.Exam, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	span, err := parseSpan(query.From, query.To)
	if err != nil {
		return nil, err
	}
	exams, err := s.exams.ListByRoom(ctx, id, span)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room schedule")
	}
	return exams, nil
}

// Available lists the rooms free for the whole of the requested slot.
func (s *RoomService) Available(ctx context.Context, query dto.RoomAvailabilityQuery) ([]models.Room, error) {
	if s.checker == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "room availability is not configured")
	}
	if query.MinCapacity < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "min_capacity must not be negative")
	}
	slot, err := parseSlot(query.Date, query.StartTime, query.EndTime)
	if err != nil {
		return nil, err
	}
	rooms, err := s.checker.FreeRooms(ctx, slot, query.MinCapacity)
	if err != nil {
		s.logger.Warn("room availability lookup failed", zap.Error(err))
		return nil, err
	}
	return rooms, nil
}

func (s *RoomService) ensureUniqueNumber(ctx context.Context, number, excludeID string) error {
	exists, err := s.repo.ExistsByNumber(ctx, strings.TrimSpace(number), excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check room number")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "room number already exists")
	}
	return nil
}
