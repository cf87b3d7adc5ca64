package dto

import "github.com/noah-isme/invigilation-api/internal/models"

// CreateUserRequest provisions a sign-in account. INVIGILATOR accounts must link to a roster record.
type CreateUserRequest struct {
	Email         string          `json:"email" validate:"required,email"`
	FullName      string          `json:"full_name" validate:"required,max=150"`
	Role          models.UserRole `json:"role" validate:"required,oneof=ADMIN INVIGILATOR"`
	InvigilatorID *string         `json:"invigilator_id"`
	Password      string          `json:"password" validate:"required,min=8"`
}

// UpdateUserRequest changes account attributes. Omitted active leaves the flag unchanged.
type UpdateUserRequest struct {
	FullName      string          `json:"full_name" validate:"required,max=150"`
	Role          models.UserRole `json:"role" validate:"required,oneof=ADMIN INVIGILATOR"`
	InvigilatorID *string         `json:"invigilator_id"`
	Active        *bool           `json:"active"`
}
