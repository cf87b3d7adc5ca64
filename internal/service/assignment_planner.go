package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/invigilation-api/internal/models"
)

const (
	skipNoRoom                   = "no_room"
	skipInsufficientInvigilators = "insufficient_invigilators"
)

// AssignmentPlanner greedily places exam requests in input order.
// It is a heuristic: earlier requests win contested rooms and invigilators and nothing is revisited.
type AssignmentPlanner struct {
	checker *ConflictChecker
	logger  *zap.Logger
}

// NewAssignmentPlanner constructs a planner reading through checker's store.
func NewAssignmentPlanner(checker *ConflictChecker, logger *zap.Logger) *AssignmentPlanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentPlanner{checker: checker, logger: logger}
}

// Plan returns the satisfied requests in input order. Unsatisfiable requests are omitted;
// a storage failure aborts the whole batch.
func (p *AssignmentPlanner) Plan(ctx context.Context, requests []models.AssignmentRequest) ([]models.PlannedAssignment, error) {
	pass := newPlanningPass(p.checker)
	planned := make([]models.PlannedAssignment, 0, len(requests))

	for _, req := range requests {
		placed, reason, err := pass.place(ctx, req)
		if err != nil {
			p.logger.Warn("planning pass aborted", zap.String("request_id", req.ID), zap.Error(err))
			return nil, err
		}
		if placed == nil {
			p.logger.Debug("planner skipped request",
				zap.String("request_id", req.ID),
				zap.String("subject_code", req.SubjectCode),
				zap.String("reason", reason),
			)
			continue
		}
		planned = append(planned, *placed)
	}

	p.logger.Info("planning pass finished",
		zap.Int("requested", len(requests)),
		zap.Int("scheduled", len(planned)),
		zap.Int("skipped", len(requests)-len(planned)),
	)
	return planned, nil
}

// planningPass owns the state of one Plan call: a memoizing view of storage
// and the working ledger of placements made earlier in the same call.
type planningPass struct {
	store   *memoStore
	checker *ConflictChecker
	ledger  *workingLedger
}

func newPlanningPass(checker *ConflictChecker) *planningPass {
	store := newMemoStore(checker.store)
	return &planningPass{
		store:   store,
		checker: checker.WithStore(store),
		ledger:  newWorkingLedger(),
	}
}

type invigilatorCandidate struct {
	invigilator    models.Invigilator
	sameDepartment bool
	load           int
}

func (p *planningPass) place(ctx context.Context, req models.AssignmentRequest) (*models.PlannedAssignment, string, error) {
	room, err := p.pickRoom(ctx, req)
	if err != nil {
		return nil, "", err
	}
	if room == nil {
		return nil, skipNoRoom, nil
	}

	required := p.checker.rule.Required(req.StudentCount)
	candidates, err := p.eligibleInvigilators(ctx, req)
	if err != nil {
		return nil, "", err
	}
	if len(candidates) < required {
		return nil, skipInsufficientInvigilators, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.sameDepartment != b.sameDepartment {
			return a.sameDepartment
		}
		if a.load != b.load {
			return a.load < b.load
		}
		return a.invigilator.ID < b.invigilator.ID
	})
	chosen := lo.Map(candidates[:required], func(c invigilatorCandidate, _ int) models.Invigilator {
		return c.invigilator
	})

	p.ledger.commit(room.ID, lo.Map(chosen, func(inv models.Invigilator, _ int) string { return inv.ID }), req.Slot)

	return &models.PlannedAssignment{
		Request:      req,
		Room:         *room,
		Invigilators: chosen,
		Status:       models.PlanStatusScheduled,
	}, "", nil
}

// pickRoom returns the smallest free room that seats the cohort, ties broken by ID.
func (p *planningPass) pickRoom(ctx context.Context, req models.AssignmentRequest) (*models.Room, error) {
	rooms, err := p.store.FindRoomsByMinCapacity(ctx, req.StudentCount)
	if err != nil {
		return nil, storageUnavailable(err, "find rooms")
	}
	rooms = lo.Filter(rooms, func(room models.Room, _ int) bool {
		return room.Capacity >= req.StudentCount
	})
	sort.SliceStable(rooms, func(i, j int) bool {
		if rooms[i].Capacity != rooms[j].Capacity {
			return rooms[i].Capacity < rooms[j].Capacity
		}
		return rooms[i].ID < rooms[j].ID
	})

	for i := range rooms {
		if p.ledger.roomBusy(rooms[i].ID, req.Slot) {
			continue
		}
		conflicts, err := p.checker.CheckRoomConflict(ctx, rooms[i].ID, req.Slot, "")
		if err != nil {
			return nil, err
		}
		if len(conflicts) == 0 {
			room := rooms[i]
			return &room, nil
		}
	}
	return nil, nil
}

func (p *planningPass) eligibleInvigilators(ctx context.Context, req models.AssignmentRequest) ([]invigilatorCandidate, error) {
	roster, err := p.store.FindActiveInvigilators(ctx)
	if err != nil {
		return nil, storageUnavailable(err, "find active invigilators")
	}

	candidates := make([]invigilatorCandidate, 0, len(roster))
	for _, inv := range lo.Filter(roster, func(inv models.Invigilator, _ int) bool { return inv.Active() }) {
		if p.ledger.invigilatorBusy(inv.ID, req.Slot) {
			continue
		}
		conflicts, err := p.checker.CheckInvigilatorConflicts(ctx, []string{inv.ID}, req.Slot, "")
		if err != nil {
			return nil, err
		}
		if len(conflicts[inv.ID]) > 0 {
			continue
		}

		pref, err := p.store.FindPreference(ctx, inv.ID)
		if err != nil {
			return nil, storageUnavailable(err, "find invigilator preference")
		}
		if !pref.Accepts(req.Slot) {
			continue
		}

		pending := p.ledger.pending(inv.ID)
		over, err := p.checker.overloaded(ctx, inv.ID, req.Slot.Date, "", pending)
		if err != nil {
			return nil, err
		}
		if over {
			continue
		}

		total, err := p.store.CountAssignments(ctx, inv.ID, models.DateRange{})
		if err != nil {
			return nil, storageUnavailable(err, "count assignments")
		}
		candidates = append(candidates, invigilatorCandidate{
			invigilator:    inv,
			sameDepartment: req.DepartmentID != "" && inv.DepartmentID == req.DepartmentID,
			load:           total + len(pending),
		})
	}
	return candidates, nil
}

// workingLedger records placements made during one planning pass.
type workingLedger struct {
	rooms        map[string][]models.Slot
	invigilators map[string][]models.Slot
}

func newWorkingLedger() *workingLedger {
	return &workingLedger{
		rooms:        make(map[string][]models.Slot),
		invigilators: make(map[string][]models.Slot),
	}
}

func (l *workingLedger) roomBusy(roomID string, slot models.Slot) bool {
	return lo.SomeBy(l.rooms[roomID], func(s models.Slot) bool { return s.Overlaps(slot) })
}

func (l *workingLedger) invigilatorBusy(invigilatorID string, slot models.Slot) bool {
	return lo.SomeBy(l.invigilators[invigilatorID], func(s models.Slot) bool { return s.Overlaps(slot) })
}

func (l *workingLedger) pending(invigilatorID string) []models.Slot {
	return l.invigilators[invigilatorID]
}

func (l *workingLedger) commit(roomID string, invigilatorIDs []string, slot models.Slot) {
	l.rooms[roomID] = append(l.rooms[roomID], slot)
	for _, id := range invigilatorIDs {
		l.invigilators[id] = append(l.invigilators[id], slot)
	}
}

// memoStore caches reads for the lifetime of one planning pass. It is not safe for concurrent use.
type memoStore struct {
	next         SchedulingStore
	roomBookings map[string][]models.Exam
	invBookings  map[string][]models.Exam
	rooms        map[int][]models.Room
	roster       []models.Invigilator
	rosterLoaded bool
	counts       map[string]int
	prefs        map[string]*models.InvigilatorPreference
}

func newMemoStore(next SchedulingStore) *memoStore {
	return &memoStore{
		next:         next,
		roomBookings: make(map[string][]models.Exam),
		invBookings:  make(map[string][]models.Exam),
		rooms:        make(map[int][]models.Room),
		counts:       make(map[string]int),
		prefs:        make(map[string]*models.InvigilatorPreference),
	}
}

func spanKey(id string, span models.DateRange) string {
	return fmt.Sprintf("%s|%s|%s", id, span.From, span.To)
}

func (m *memoStore) FindBookingsByRoom(ctx context.Context, roomID string, date models.Date) ([]models.Exam, error) {
	key := roomID + "|" + date.String()
	if cached, ok := m.roomBookings[key]; ok {
		return cached, nil
	}
	bookings, err := m.next.FindBookingsByRoom(ctx, roomID, date)
	if err != nil {
		return nil, err
	}
	m.roomBookings[key] = bookings
	return bookings, nil
}

func (m *memoStore) FindBookingsByInvigilator(ctx context.Context, invigilatorID string, span models.DateRange) ([]models.Exam, error) {
	key := spanKey(invigilatorID, span)
	if cached, ok := m.invBookings[key]; ok {
		return cached, nil
	}
	bookings, err := m.next.FindBookingsByInvigilator(ctx, invigilatorID, span)
	if err != nil {
		return nil, err
	}
	m.invBookings[key] = bookings
	return bookings, nil
}

func (m *memoStore) FindRoomsByMinCapacity(ctx context.Context, capacity int) ([]models.Room, error) {
	if cached, ok := m.rooms[capacity]; ok {
		return append([]models.Room(nil), cached...), nil
	}
	rooms, err := m.next.FindRoomsByMinCapacity(ctx, capacity)
	if err != nil {
		return nil, err
	}
	m.rooms[capacity] = rooms
	return append([]models.Room(nil), rooms...), nil
}

func (m *memoStore) FindActiveInvigilators(ctx context.Context) ([]models.Invigilator, error) {
	if m.rosterLoaded {
		return m.roster, nil
	}
	roster, err := m.next.FindActiveInvigilators(ctx)
	if err != nil {
		return nil, err
	}
	m.roster, m.rosterLoaded = roster, true
	return roster, nil
}

func (m *memoStore) CountAssignments(ctx context.Context, invigilatorID string, span models.DateRange) (int, error) {
	key := spanKey(invigilatorID, span)
	if cached, ok := m.counts[key]; ok {
		return cached, nil
	}
	count, err := m.next.CountAssignments(ctx, invigilatorID, span)
	if err != nil {
		return 0, err
	}
	m.counts[key] = count
	return count, nil
}

func (m *memoStore) FindPreference(ctx context.Context, invigilatorID string) (*models.InvigilatorPreference, error) {
	if cached, ok := m.prefs[invigilatorID]; ok {
		return cached, nil
	}
	pref, err := m.next.FindPreference(ctx, invigilatorID)
	if err != nil {
		return nil, err
	}
	m.prefs[invigilatorID] = pref
	return pref, nil
}
