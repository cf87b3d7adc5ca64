package models

import "time"

// DashboardSummary aggregates scheduling counters for the admin landing page.
type DashboardSummary struct {
	TotalRooms         int                   `json:"total_rooms" db:"total_rooms"`
	ActiveInvigilators int                   `json:"active_invigilators" db:"active_invigilators"`
	TotalDepartments   int                   `json:"total_departments" db:"total_departments"`
	ExamsToday         int                   `json:"exams_today" db:"exams_today"`
	UpcomingExams      int                   `json:"upcoming_exams" db:"upcoming_exams"`
	BusiestInvigilator []InvigilatorWorkload `json:"busiest_invigilators" db:"-"`
	GeneratedAt        time.Time             `json:"generated_at" db:"-"`
}

// SystemMetrics is a lightweight snapshot of process metrics.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	PlannedScheduled         uint64    `json:"planned_scheduled"`
	PlannedSkipped           uint64    `json:"planned_skipped"`
	ValidBookings            uint64    `json:"valid_bookings"`
	RejectedBookings         uint64    `json:"rejected_bookings"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
