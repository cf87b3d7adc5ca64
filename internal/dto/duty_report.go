package dto

import "github.com/noah-isme/invigilation-api/internal/models"

// DutyReportRequest is filed after sitting an exam. Invigilators may omit
// invigilator_id; it defaults to their own record.
type DutyReportRequest struct {
	ExamID           string                  `json:"exam_id" validate:"required"`
	InvigilatorID    string                  `json:"invigilator_id"`
	AttendanceStatus models.AttendanceStatus `json:"attendance_status" validate:"required,oneof=PRESENT ABSENT LATE"`
	ReportText       *string                 `json:"report_text" validate:"omitempty,max=4000"`
}

// DutyReportUpdateRequest corrects a filed report.
type DutyReportUpdateRequest struct {
	AttendanceStatus models.AttendanceStatus `json:"attendance_status" validate:"required,oneof=PRESENT ABSENT LATE"`
	ReportText       *string                 `json:"report_text" validate:"omitempty,max=4000"`
}

// DutyReportQuery filters duty report listings.
type DutyReportQuery struct {
	ExamID        string `form:"exam_id"`
	InvigilatorID string `form:"invigilator_id"`
}
