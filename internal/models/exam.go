package models

import "time"

// Exam is a committed booking of a room, date and time interval.
type Exam struct {
	ID             string    `db:"id" json:"id"`
	SubjectName    string    `db:"subject_name" json:"subject_name"`
	SubjectCode    string    `db:"subject_code" json:"subject_code"`
	ExamDate       Date      `db:"exam_date" json:"exam_date"`
	StartTime      TimeOfDay `db:"start_time" json:"start_time"`
	EndTime        TimeOfDay `db:"end_time" json:"end_time"`
	RoomID         string    `db:"room_id" json:"room_id"`
	DepartmentID   *string   `db:"department_id" json:"department_id,omitempty"`
	StudentCount   int       `db:"student_count" json:"student_count"`
	InvigilatorIDs []string  `db:"-" json:"invigilator_ids"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Slot returns the occupied interval.
func (e Exam) Slot() Slot {
	return Slot{Date: e.ExamDate, Start: e.StartTime, End: e.EndTime}
}

// ExamFilter captures filtering options for listing exams.
type ExamFilter struct {
	From         Date
	To           Date
	RoomID       string
	DepartmentID string
	Page         int
	PageSize     int
}

// ExamInvigilator links an invigilator to an exam duty.
type ExamInvigilator struct {
	ExamID        string    `db:"exam_id" json:"exam_id"`
	InvigilatorID string    `db:"invigilator_id" json:"invigilator_id"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// RosterEntry is one flattened exam line used for exports.
type RosterEntry struct {
	ExamID       string    `db:"exam_id"`
	SubjectCode  string    `db:"subject_code"`
	SubjectName  string    `db:"subject_name"`
	ExamDate     Date      `db:"exam_date"`
	StartTime    TimeOfDay `db:"start_time"`
	EndTime      TimeOfDay `db:"end_time"`
	RoomNumber   string    `db:"room_number"`
	Building     string    `db:"building"`
	StudentCount int       `db:"student_count"`
	Invigilators string    `db:"invigilators"`
}
