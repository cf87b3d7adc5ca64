package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/invigilation-api/internal/models"
)

// fakeSchedulingStore is an in-memory SchedulingStore.
type fakeSchedulingStore struct {
	rooms        []models.Room
	invigilators []models.Invigilator
	exams        []models.Exam
	prefs        map[string]*models.InvigilatorPreference
	err          error
	calls        map[string]int
}

func (f *fakeSchedulingStore) track(name string) {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

func (f *fakeSchedulingStore) FindBookingsByRoom(ctx context.Context, roomID string, date models.Date) ([]models.Exam, error) {
	f.track("FindBookingsByRoom")
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Exam
	for _, exam := range f.exams {
		if exam.RoomID == roomID && exam.ExamDate.Equal(date) {
			out = append(out, exam)
		}
	}
	return out, nil
}

func (f *fakeSchedulingStore) FindBookingsByInvigilator(ctx context.Context, invigilatorID string, span models.DateRange) ([]models.Exam, error) {
	f.track("FindBookingsByInvigilator")
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Exam
	for _, exam := range f.exams {
		if !span.Contains(exam.ExamDate) {
			continue
		}
		for _, id := range exam.InvigilatorIDs {
			if id == invigilatorID {
				out = append(out, exam)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeSchedulingStore) FindRoomsByMinCapacity(ctx context.Context, capacity int) ([]models.Room, error) {
	f.track("FindRoomsByMinCapacity")
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Room
	for _, room := range f.rooms {
		if room.Capacity >= capacity {
			out = append(out, room)
		}
	}
	return out, nil
}

func (f *fakeSchedulingStore) FindActiveInvigilators(ctx context.Context) ([]models.Invigilator, error) {
	f.track("FindActiveInvigilators")
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Invigilator
	for _, inv := range f.invigilators {
		if inv.Active() {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (f *fakeSchedulingStore) CountAssignments(ctx context.Context, invigilatorID string, span models.DateRange) (int, error) {
	f.track("CountAssignments")
	exams, err := f.FindBookingsByInvigilator(ctx, invigilatorID, span)
	return len(exams), err
}

func (f *fakeSchedulingStore) FindPreference(ctx context.Context, invigilatorID string) (*models.InvigilatorPreference, error) {
	f.track("FindPreference")
	if f.err != nil {
		return nil, f.err
	}
	return f.prefs[invigilatorID], nil
}

func mustDate(t *testing.T, raw string) models.Date {
	t.Helper()
	d, err := models.ParseDate(raw)
	require.NoError(t, err)
	return d
}

func mustSlot(t *testing.T, date, start, end string) models.Slot {
	t.Helper()
	s, err := models.ParseTimeOfDay(start)
	require.NoError(t, err)
	e, err := models.ParseTimeOfDay(end)
	require.NoError(t, err)
	slot, err := models.NewSlot(mustDate(t, date), s, e)
	require.NoError(t, err)
	return slot
}

func examAt(t *testing.T, id, roomID, date, start, end string, invigilators ...string) models.Exam {
	t.Helper()
	slot := mustSlot(t, date, start, end)
	return models.Exam{
		ID:             id,
		SubjectName:    "Subject " + id,
		SubjectCode:    id,
		ExamDate:       slot.Date,
		StartTime:      slot.Start,
		EndTime:        slot.End,
		RoomID:         roomID,
		StudentCount:   20,
		InvigilatorIDs: invigilators,
	}
}

func activeInvigilator(id, department string) models.Invigilator {
	return models.Invigilator{ID: id, Name: "Invigilator " + id, DepartmentID: department, Status: models.InvigilatorActive}
}

// fixedClock pins "today" to 2024-01-01, a Monday.
func fixedClock() time.Time {
	return time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC)
}

func newTestChecker(store SchedulingStore) *ConflictChecker {
	return NewConflictChecker(store, RequirementTiered, WorkloadPolicy{}, nil).WithClock(fixedClock)
}
