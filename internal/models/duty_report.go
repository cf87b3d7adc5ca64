package models

import "time"

// AttendanceStatus records whether an invigilator reported for duty.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "PRESENT"
	AttendanceAbsent  AttendanceStatus = "ABSENT"
	AttendanceLate    AttendanceStatus = "LATE"
)

// DutyReport is filed by an invigilator after an exam.
type DutyReport struct {
	ID               string           `db:"id" json:"id"`
	ExamID           string           `db:"exam_id" json:"exam_id"`
	InvigilatorID    string           `db:"invigilator_id" json:"invigilator_id"`
	AttendanceStatus AttendanceStatus `db:"attendance_status" json:"attendance_status"`
	ReportText       *string          `db:"report_text" json:"report_text,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
}

// DutyReportFilter narrows duty report listings.
type DutyReportFilter struct {
	ExamID        string
	InvigilatorID string
}
