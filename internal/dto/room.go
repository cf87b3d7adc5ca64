package dto

// RoomRequest captures room create and update payloads.
type RoomRequest struct {
	RoomNumber string `json:"room_number" validate:"required,max=50"`
	Capacity   int    `json:"capacity" validate:"required,min=1"`
	Building   string `json:"building" validate:"required,max=100"`
	Floor      *int   `json:"floor" validate:"omitempty,min=0"`
}

// RoomQuery filters room listings.
type RoomQuery struct {
	Building    string `form:"building"`
	MinCapacity int    `form:"min_capacity"`
	Page        int    `form:"page"`
	PageSize    int    `form:"page_size"`
}

// RoomAvailabilityQuery asks which rooms are free for a slot.
type RoomAvailabilityQuery struct {
	Date        string `form:"date"`
	StartTime   string `form:"start_time"`
	EndTime     string `form:"end_time"`
	MinCapacity int    `form:"min_capacity"`
}

// DepartmentRequest captures department create and update payloads.
type DepartmentRequest struct {
	Name string `json:"name" validate:"required,max=150"`
	Code string `json:"code" validate:"required,max=20"`
}
