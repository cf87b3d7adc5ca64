package dto

import "github.com/noah-isme/invigilation-api/internal/models"

// CreateInvigilatorRequest registers an invigilator. A password also provisions a sign-in account.
type CreateInvigilatorRequest struct {
	Name         string  `json:"name" validate:"required,max=150"`
	Email        string  `json:"email" validate:"required,email"`
	Phone        *string `json:"phone" validate:"omitempty,max=30"`
	DepartmentID string  `json:"department_id" validate:"required"`
	Designation  *string `json:"designation" validate:"omitempty,max=100"`
	Password     *string `json:"password" validate:"omitempty,min=8"`
}

// UpdateInvigilatorRequest replaces invigilator profile fields.
type UpdateInvigilatorRequest struct {
	Name         string  `json:"name" validate:"required,max=150"`
	Email        string  `json:"email" validate:"required,email"`
	Phone        *string `json:"phone" validate:"omitempty,max=30"`
	DepartmentID string  `json:"department_id" validate:"required"`
	Designation  *string `json:"designation" validate:"omitempty,max=100"`
}

// InvigilatorStatusRequest toggles an invigilator between active and inactive.
type InvigilatorStatusRequest struct {
	Status models.InvigilatorStatus `json:"status" validate:"required,oneof=active inactive"`
}

// PreferenceRequest replaces an invigilator's duty preferences.
// Zero limits fall back to the configured defaults.
type PreferenceRequest struct {
	PreferredDays      []int    `json:"preferred_days" validate:"omitempty,max=7,dive,min=0,max=6"`
	PreferredTimeSlots []string `json:"preferred_time_slots" validate:"omitempty,dive,required"`
	MaxDutiesPerDay    int      `json:"max_duties_per_day" validate:"omitempty,min=1,max=24"`
	MaxDutiesPerWeek   int      `json:"max_duties_per_week" validate:"omitempty,min=1,max=100"`
}

// InvigilatorQuery filters invigilator listings.
type InvigilatorQuery struct {
	DepartmentID string `form:"department_id"`
	Status       string `form:"status"`
	Search       string `form:"search"`
	Page         int    `form:"page"`
	PageSize     int    `form:"page_size"`
}

// AvailabilityQuery asks which invigilators are free for a slot.
type AvailabilityQuery struct {
	Date      string `form:"date" validate:"required"`
	StartTime string `form:"start_time" validate:"required"`
	EndTime   string `form:"end_time" validate:"required"`
}

// ScheduleQuery bounds schedule listings. Empty bounds are open.
type ScheduleQuery struct {
	From string `form:"from"`
	To   string `form:"to"`
}
