package dto

import "github.com/noah-isme/invigilation-api/internal/models"

// PlanRequestItem is one exam the planner should place.
type PlanRequestItem struct {
	ID           string `json:"id"`
	SubjectName  string `json:"subject_name" validate:"required,max=200"`
	SubjectCode  string `json:"subject_code" validate:"required,max=50"`
	DepartmentID string `json:"department_id"`
	ExamDate     string `json:"exam_date" validate:"required"`
	StartTime    string `json:"start_time" validate:"required"`
	EndTime      string `json:"end_time" validate:"required"`
	StudentCount int    `json:"student_count" validate:"required,min=1"`
}

// PlanRequest instructs the planner to place a batch of exams, optionally persisting the result.
type PlanRequest struct {
	Requests []PlanRequestItem `json:"requests" validate:"required,min=1,dive"`
	Commit   bool              `json:"commit"`
}

// ScheduledExam is a planned assignment, carrying the created exam ID when committed.
type ScheduledExam struct {
	models.PlannedAssignment
	ExamID string `json:"exam_id,omitempty"`
}

// PlanResponse lists placed requests and the IDs the planner could not satisfy.
type PlanResponse struct {
	Scheduled   []ScheduledExam `json:"scheduled"`
	Unscheduled []string        `json:"unscheduled"`
	Committed   bool            `json:"committed"`
}

// ValidateBookingRequest previews the conflict checks for a proposed exam.
type ValidateBookingRequest struct {
	ExamID         string   `json:"exam_id"`
	RoomID         string   `json:"room_id" validate:"required"`
	ExamDate       string   `json:"exam_date" validate:"required"`
	StartTime      string   `json:"start_time" validate:"required"`
	EndTime        string   `json:"end_time" validate:"required"`
	StudentCount   int      `json:"student_count" validate:"required,min=1"`
	InvigilatorIDs []string `json:"invigilator_ids" validate:"omitempty,dive,required"`
}

// RequirementResponse reports how many invigilators a cohort needs.
type RequirementResponse struct {
	StudentCount int    `json:"student_count"`
	Required     int    `json:"required_invigilators"`
	Rule         string `json:"rule"`
}
