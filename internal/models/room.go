package models

import "time"

// Room is an examination venue.
type Room struct {
	ID         string    `db:"id" json:"id"`
	RoomNumber string    `db:"room_number" json:"room_number"`
	Capacity   int       `db:"capacity" json:"capacity"`
	Building   string    `db:"building" json:"building"`
	Floor      *int      `db:"floor" json:"floor,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// RoomFilter captures filtering options for listing rooms.
type RoomFilter struct {
	Building    string
	MinCapacity int
	Page        int
	PageSize    int
}
