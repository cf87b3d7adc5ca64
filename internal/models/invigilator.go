package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// InvigilatorStatus toggles whether an invigilator can be assigned duties.
type InvigilatorStatus string

const (
	InvigilatorActive   InvigilatorStatus = "active"
	InvigilatorInactive InvigilatorStatus = "inactive"
)

// Invigilator is a staff member who proctors exams.
type Invigilator struct {
	ID           string            `db:"id" json:"id"`
	Name         string            `db:"name" json:"name"`
	Email        string            `db:"email" json:"email"`
	Phone        *string           `db:"phone" json:"phone,omitempty"`
	DepartmentID string            `db:"department_id" json:"department_id"`
	Designation  *string           `db:"designation" json:"designation,omitempty"`
	Status       InvigilatorStatus `db:"status" json:"status"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}

// Active reports whether the invigilator may receive new duties.
func (i Invigilator) Active() bool { return i.Status == InvigilatorActive }

// InvigilatorFilter captures filtering options for listing invigilators.
type InvigilatorFilter struct {
	DepartmentID string
	Status       InvigilatorStatus
	Search       string
	Page         int
	PageSize     int
}

// InvigilatorPreference holds optional duty constraints for one invigilator.
type InvigilatorPreference struct {
	ID                 string         `db:"id" json:"id,omitempty"`
	InvigilatorID      string         `db:"invigilator_id" json:"invigilator_id"`
	PreferredDays      types.JSONText `db:"preferred_days" json:"preferred_days"`
	PreferredTimeSlots types.JSONText `db:"preferred_time_slots" json:"preferred_time_slots"`
	MaxDutiesPerDay    int            `db:"max_duties_per_day" json:"max_duties_per_day"`
	MaxDutiesPerWeek   int            `db:"max_duties_per_week" json:"max_duties_per_week"`
	IsDefault          bool           `db:"-" json:"is_default"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// TimeRange is a preferred window such as "09:00-12:00".
type TimeRange struct {
	Start TimeOfDay
	End   TimeOfDay
}

// ParseTimeRange parses "HH:MM-HH:MM".
func ParseTimeRange(raw string) (TimeRange, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), "-", 2)
	if len(parts) != 2 {
		return TimeRange{}, fmt.Errorf("invalid time range %q", raw)
	}
	start, err := ParseTimeOfDay(parts[0])
	if err != nil {
		return TimeRange{}, err
	}
	end, err := ParseTimeOfDay(parts[1])
	if err != nil {
		return TimeRange{}, err
	}
	if start >= end {
		return TimeRange{}, ErrInvalidInterval
	}
	return TimeRange{Start: start, End: end}, nil
}

// Days decodes preferred weekdays (0 = Sunday). Empty means any day.
func (p *InvigilatorPreference) Days() ([]int, error) {
	if p == nil || len(p.PreferredDays) == 0 || string(p.PreferredDays) == "null" {
		return nil, nil
	}
	var days []int
	if err := json.Unmarshal(p.PreferredDays, &days); err != nil {
		return nil, fmt.Errorf("decode preferred days: %w", err)
	}
	return days, nil
}

// TimeSlots decodes preferred windows. Empty means any time.
func (p *InvigilatorPreference) TimeSlots() ([]TimeRange, error) {
	if p == nil || len(p.PreferredTimeSlots) == 0 || string(p.PreferredTimeSlots) == "null" {
		return nil, nil
	}
	var raw []string
	if err := json.Unmarshal(p.PreferredTimeSlots, &raw); err != nil {
		return nil, fmt.Errorf("decode preferred time slots: %w", err)
	}
	ranges := make([]TimeRange, 0, len(raw))
	for _, item := range raw {
		tr, err := ParseTimeRange(item)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, tr)
	}
	return ranges, nil
}

// Accepts reports whether the slot fits the preferred days and time windows.
// Malformed preference payloads are treated as unrestricted.
func (p *InvigilatorPreference) Accepts(slot Slot) bool {
	if p == nil {
		return true
	}
	if days, err := p.Days(); err == nil && len(days) > 0 {
		weekday := int(slot.Date.Weekday())
		found := false
		for _, d := range days {
			if d == weekday {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if ranges, err := p.TimeSlots(); err == nil && len(ranges) > 0 {
		for _, r := range ranges {
			if slot.Within(r.Start, r.End) {
				return true
			}
		}
		return false
	}
	return true
}

// InvigilatorWorkload summarises upcoming duties for one invigilator.
type InvigilatorWorkload struct {
	InvigilatorID    string `db:"invigilator_id" json:"invigilator_id"`
	Name             string `db:"name" json:"name"`
	DepartmentID     string `db:"department_id" json:"department_id"`
	TotalAssignments int    `db:"total_assignments" json:"total_assignments"`
}

// InvigilatorAvailability describes whether an invigilator is free for a slot.
type InvigilatorAvailability struct {
	Invigilator Invigilator `json:"invigilator"`
	IsAvailable bool        `json:"is_available"`
	Reason      string      `json:"reason,omitempty"`
	Assignments []Exam      `json:"assignments,omitempty"`
}
