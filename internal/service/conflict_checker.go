package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/invigilation-api/internal/models"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
)

// SchedulingStore is the storage collaborator consulted by the scheduling engine.
// FindPreference returns (nil, nil) when an invigilator has no preference record.
type SchedulingStore interface {
	FindBookingsByRoom(ctx context.Context, roomID string, date models.Date) ([]models.Exam, error)
	FindBookingsByInvigilator(ctx context.Context, invigilatorID string, span models.DateRange) ([]models.Exam, error)
	FindRoomsByMinCapacity(ctx context.Context, capacity int) ([]models.Room, error)
	FindActiveInvigilators(ctx context.Context) ([]models.Invigilator, error)
	CountAssignments(ctx context.Context, invigilatorID string, span models.DateRange) (int, error)
	FindPreference(ctx context.Context, invigilatorID string) (*models.InvigilatorPreference, error)
}

// WorkloadPolicy configures duty ceilings.
type WorkloadPolicy struct {
	// Ceiling caps upcoming duties for invigilators without a preference record.
	Ceiling           int
	DefaultMaxPerDay  int
	DefaultMaxPerWeek int
}

func (p WorkloadPolicy) withDefaults() WorkloadPolicy {
	if p.Ceiling <= 0 {
		p.Ceiling = 3
	}
	if p.DefaultMaxPerDay <= 0 {
		p.DefaultMaxPerDay = 2
	}
	if p.DefaultMaxPerWeek <= 0 {
		p.DefaultMaxPerWeek = 10
	}
	return p
}

// ConflictChecker answers whether a proposed booking collides with committed ones.
// It never writes to storage.
type ConflictChecker struct {
	store  SchedulingStore
	rule   RequirementRule
	policy WorkloadPolicy
	logger *zap.Logger
	now    func() time.Time
}

// NewConflictChecker constructs a checker over store.
func NewConflictChecker(store SchedulingStore, rule RequirementRule, policy WorkloadPolicy, logger *zap.Logger) *ConflictChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rule == "" {
		rule = RequirementTiered
	}
	return &ConflictChecker{
		store:  store,
		rule:   rule,
		policy: policy.withDefaults(),
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the clock used to resolve "today".
func (c *ConflictChecker) WithClock(now func() time.Time) *ConflictChecker {
	clone := *c
	clone.now = now
	return &clone
}

// WithStore returns a copy of the checker reading from store, typically a transaction-bound view.
func (c *ConflictChecker) WithStore(store SchedulingStore) *ConflictChecker {
	clone := *c
	clone.store = store
	return &clone
}

// Rule exposes the configured requirement rule.
func (c *ConflictChecker) Rule() RequirementRule { return c.rule }

// Policy exposes the effective workload policy.
func (c *ConflictChecker) Policy() WorkloadPolicy { return c.policy }

func (c *ConflictChecker) today() models.Date { return models.DateOf(c.now()) }

// CheckRoomConflict lists committed bookings in roomID overlapping slot, ignoring excludeID.
func (c *ConflictChecker) CheckRoomConflict(ctx context.Context, roomID string, slot models.Slot, excludeID string) ([]models.Exam, error) {
	bookings, err := c.store.FindBookingsByRoom(ctx, roomID, slot.Date)
	if err != nil {
		return nil, storageUnavailable(err, "find room bookings")
	}
	return overlapping(bookings, slot, excludeID), nil
}

// CheckInvigilatorConflicts maps each busy invigilator to the bookings overlapping slot.
// Free invigilators are absent from the map.
func (c *ConflictChecker) CheckInvigilatorConflicts(ctx context.Context, invigilatorIDs []string, slot models.Slot, excludeID string) (map[string][]models.Exam, error) {
	conflicts := make(map[string][]models.Exam)
	for _, id := range lo.Uniq(invigilatorIDs) {
		bookings, err := c.store.FindBookingsByInvigilator(ctx, id, models.SingleDay(slot.Date))
		if err != nil {
			return nil, storageUnavailable(err, "find invigilator bookings")
		}
		if hits := overlapping(bookings, slot, excludeID); len(hits) > 0 {
			conflicts[id] = hits
		}
	}
	return conflicts, nil
}

// CheckWorkloadLimits returns the invigilators already at or above their duty ceiling for date.
func (c *ConflictChecker) CheckWorkloadLimits(ctx context.Context, invigilatorIDs []string, date models.Date, excludeID string) ([]string, error) {
	overloaded := make([]string, 0)
	for _, id := range lo.Uniq(invigilatorIDs) {
		over, err := c.overloaded(ctx, id, date, excludeID, nil)
		if err != nil {
			return nil, err
		}
		if over {
			overloaded = append(overloaded, id)
		}
	}
	return overloaded, nil
}

// ValidateBooking runs every check and aggregates the outcome.
// Business-rule violations are reported in the result; only storage failures return an error.
func (c *ConflictChecker) ValidateBooking(ctx context.Context, booking models.Booking) (*models.ValidationResult, error) {
	room, err := c.CheckRoomConflict(ctx, booking.RoomID, booking.Slot, booking.ExamID)
	if err != nil {
		return nil, err
	}
	invigilators, err := c.CheckInvigilatorConflicts(ctx, booking.InvigilatorIDs, booking.Slot, booking.ExamID)
	if err != nil {
		return nil, err
	}
	overloaded, err := c.CheckWorkloadLimits(ctx, booking.InvigilatorIDs, booking.Slot.Date, booking.ExamID)
	if err != nil {
		return nil, err
	}

	result := &models.ValidationResult{
		Conflicts: models.BookingConflicts{
			Room:         room,
			Invigilators: invigilators,
			Overloaded:   overloaded,
		},
		Required: c.rule.Required(booking.StudentCount),
		Supplied: len(booking.InvigilatorIDs),
	}
	result.Valid = len(room) == 0 && len(invigilators) == 0 && len(overloaded) == 0 && !result.Insufficient()

	c.logger.Debug("booking validated",
		zap.String("room_id", booking.RoomID),
		zap.String("date", booking.Slot.Date.String()),
		zap.Bool("valid", result.Valid),
		zap.Int("room_conflicts", len(room)),
		zap.Int("invigilator_conflicts", len(invigilators)),
		zap.Int("overloaded", len(overloaded)),
	)
	return result, nil
}

// overloaded counts committed duties plus pending ones from an in-progress planning pass.
func (c *ConflictChecker) overloaded(ctx context.Context, invigilatorID string, date models.Date, excludeID string, pending []models.Slot) (bool, error) {
	pref, err := c.store.FindPreference(ctx, invigilatorID)
	if err != nil {
		return false, storageUnavailable(err, "find invigilator preference")
	}

	if pref == nil {
		span := models.DateRange{From: c.today()}
		bookings, err := c.store.FindBookingsByInvigilator(ctx, invigilatorID, span)
		if err != nil {
			return false, storageUnavailable(err, "find upcoming assignments")
		}
		count := countWithin(bookings, span, excludeID) + countPending(pending, span)
		return count >= c.policy.Ceiling, nil
	}

	maxPerDay := pref.MaxDutiesPerDay
	if maxPerDay <= 0 {
		maxPerDay = c.policy.DefaultMaxPerDay
	}
	maxPerWeek := pref.MaxDutiesPerWeek
	if maxPerWeek <= 0 {
		maxPerWeek = c.policy.DefaultMaxPerWeek
	}

	week := models.WeekOf(date)
	bookings, err := c.store.FindBookingsByInvigilator(ctx, invigilatorID, week)
	if err != nil {
		return false, storageUnavailable(err, "find weekly assignments")
	}
	day := models.SingleDay(date)
	dailyCount := countWithin(bookings, day, excludeID) + countPending(pending, day)
	if dailyCount >= maxPerDay {
		return true, nil
	}
	weeklyCount := countWithin(bookings, week, excludeID) + countPending(pending, week)
	return weeklyCount >= maxPerWeek, nil
}

// FreeRooms lists rooms seating at least minCapacity with no booking overlapping slot,
// ordered by building, floor and room number.
func (c *ConflictChecker) FreeRooms(ctx context.Context, slot models.Slot, minCapacity int) ([]models.Room, error) {
	rooms, err := c.store.FindRoomsByMinCapacity(ctx, minCapacity)
	if err != nil {
		return nil, storageUnavailable(err, "find rooms")
	}
	free := make([]models.Room, 0, len(rooms))
	for _, room := range rooms {
		if room.Capacity < minCapacity {
			continue
		}
		conflicts, err := c.CheckRoomConflict(ctx, room.ID, slot, "")
		if err != nil {
			return nil, err
		}
		if len(conflicts) == 0 {
			free = append(free, room)
		}
	}
	sort.SliceStable(free, func(i, j int) bool {
		a, b := free[i], free[j]
		if a.Building != b.Building {
			return a.Building < b.Building
		}
		if fa, fb := lo.FromPtr(a.Floor), lo.FromPtr(b.Floor); fa != fb {
			return fa < fb
		}
		return a.RoomNumber < b.RoomNumber
	})
	return free, nil
}

func overlapping(bookings []models.Exam, slot models.Slot, excludeID string) []models.Exam {
	return lo.Filter(bookings, func(exam models.Exam, _ int) bool {
		if excludeID != "" && exam.ID == excludeID {
			return false
		}
		return exam.Slot().Overlaps(slot)
	})
}

func countWithin(bookings []models.Exam, span models.DateRange, excludeID string) int {
	return lo.CountBy(bookings, func(exam models.Exam) bool {
		if excludeID != "" && exam.ID == excludeID {
			return false
		}
		return span.Contains(exam.ExamDate)
	})
}

func countPending(pending []models.Slot, span models.DateRange) int {
	return lo.CountBy(pending, func(slot models.Slot) bool {
		return span.Contains(slot.Date)
	})
}

func storageUnavailable(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, appErrors.ErrStorageUnavailable) {
		return err
	}
	return appErrors.Wrap(fmt.Errorf("%s: %w", op, err), appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, appErrors.ErrStorageUnavailable.Message)
}

// validationFailure converts an invalid result into the matching client error.
// The code follows the first failing check; Details carries the whole result.
func validationFailure(result *models.ValidationResult) *appErrors.Error {
	if result == nil || result.Valid {
		return nil
	}
	var base *appErrors.Error
	switch {
	case len(result.Conflicts.Room) > 0:
		base = appErrors.ErrRoomConflict
	case len(result.Conflicts.Invigilators) > 0:
		base = appErrors.ErrInvigilatorConflict
	case len(result.Conflicts.Overloaded) > 0:
		base = appErrors.ErrWorkloadExceeded
	default:
		base = appErrors.ErrInsufficientInvigilators
	}
	return appErrors.WithDetails(base, "", result)
}

// bookingInputError maps value-object construction failures to client errors.
func bookingInputError(err error) error {
	switch {
	case errors.Is(err, models.ErrInvalidInterval):
		return appErrors.Wrap(err, appErrors.ErrInvalidInterval.Code, appErrors.ErrInvalidInterval.Status, appErrors.ErrInvalidInterval.Message)
	case errors.Is(err, models.ErrDuplicateInvigilators):
		return appErrors.Wrap(err, appErrors.ErrDuplicateAssignment.Code, appErrors.ErrDuplicateAssignment.Status, appErrors.ErrDuplicateAssignment.Message)
	default:
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
}
