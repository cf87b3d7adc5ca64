package models

import (
	"errors"
	"fmt"
)

// PlanStatusScheduled marks a request the planner satisfied.
const PlanStatusScheduled = "scheduled"

var (
	ErrRoomRequired          = errors.New("room is required")
	ErrStudentCountInvalid   = errors.New("student count must be positive")
	ErrDuplicateInvigilators = errors.New("invigilator listed more than once")
)

// Booking is a proposed exam occupying a room slot with a set of invigilators.
// ExamID is empty for new bookings and names the exam being replaced on update.
type Booking struct {
	ExamID         string
	RoomID         string
	Slot           Slot
	StudentCount   int
	InvigilatorIDs []string
}

// NewBooking validates the proposal before any conflict check runs.
func NewBooking(examID, roomID string, slot Slot, studentCount int, invigilatorIDs []string) (Booking, error) {
	if roomID == "" {
		return Booking{}, ErrRoomRequired
	}
	if slot.Start >= slot.End {
		return Booking{}, ErrInvalidInterval
	}
	if studentCount <= 0 {
		return Booking{}, ErrStudentCountInvalid
	}
	seen := make(map[string]struct{}, len(invigilatorIDs))
	for _, id := range invigilatorIDs {
		if _, ok := seen[id]; ok {
			return Booking{}, fmt.Errorf("%w: %s", ErrDuplicateInvigilators, id)
		}
		seen[id] = struct{}{}
	}
	ids := make([]string, len(invigilatorIDs))
	copy(ids, invigilatorIDs)
	return Booking{
		ExamID:         examID,
		RoomID:         roomID,
		Slot:           slot,
		StudentCount:   studentCount,
		InvigilatorIDs: ids,
	}, nil
}

// AssignmentRequest asks the planner to place one exam.
type AssignmentRequest struct {
	ID           string `json:"id"`
	SubjectName  string `json:"subject_name"`
	SubjectCode  string `json:"subject_code"`
	DepartmentID string `json:"department_id,omitempty"`
	Slot         Slot   `json:"slot"`
	StudentCount int    `json:"student_count"`
}

// NewAssignmentRequest validates a planner input.
func NewAssignmentRequest(id, subjectName, subjectCode, departmentID string, slot Slot, studentCount int) (AssignmentRequest, error) {
	if slot.Start >= slot.End {
		return AssignmentRequest{}, ErrInvalidInterval
	}
	if studentCount <= 0 {
		return AssignmentRequest{}, ErrStudentCountInvalid
	}
	return AssignmentRequest{
		ID:           id,
		SubjectName:  subjectName,
		SubjectCode:  subjectCode,
		DepartmentID: departmentID,
		Slot:         slot,
		StudentCount: studentCount,
	}, nil
}

// PlannedAssignment is one satisfied planner request.
type PlannedAssignment struct {
	Request      AssignmentRequest `json:"request"`
	Room         Room              `json:"assigned_room"`
	Invigilators []Invigilator     `json:"assigned_invigilators"`
	Status       string            `json:"status"`
}

// BookingConflicts itemizes everything blocking a booking.
type BookingConflicts struct {
	Room         []Exam            `json:"room"`
	Invigilators map[string][]Exam `json:"invigilators"`
	Overloaded   []string          `json:"overloaded"`
}

// ValidationResult is the outcome of validating a booking.
type ValidationResult struct {
	Valid     bool             `json:"valid"`
	Conflicts BookingConflicts `json:"conflicts"`
	Required  int              `json:"required_invigilators"`
	Supplied  int              `json:"supplied_invigilators"`
}

// Insufficient reports whether fewer invigilators were supplied than required.
func (r *ValidationResult) Insufficient() bool {
	return r.Supplied < r.Required
}
