package dto

// ExamRequest captures POST /exams and PUT /exams/:id payloads.
// On update the invigilator set replaces the existing one.
type ExamRequest struct {
	SubjectName    string   `json:"subject_name" validate:"required,max=200"`
	SubjectCode    string   `json:"subject_code" validate:"required,max=50"`
	ExamDate       string   `json:"exam_date" validate:"required"`
	StartTime      string   `json:"start_time" validate:"required"`
	EndTime        string   `json:"end_time" validate:"required"`
	RoomID         string   `json:"room_id" validate:"required"`
	DepartmentID   *string  `json:"department_id"`
	StudentCount   int      `json:"student_count" validate:"required,min=1"`
	InvigilatorIDs []string `json:"invigilator_ids" validate:"omitempty,dive,required"`
}

// AssignInvigilatorRequest adds one invigilator to an existing exam.
type AssignInvigilatorRequest struct {
	InvigilatorID string `json:"invigilator_id" validate:"required"`
}

// ExamQuery filters exam listings.
type ExamQuery struct {
	From         string `form:"from"`
	To           string `form:"to"`
	RoomID       string `form:"room_id"`
	DepartmentID string `form:"department_id"`
	Page         int    `form:"page"`
	PageSize     int    `form:"page_size"`
}
