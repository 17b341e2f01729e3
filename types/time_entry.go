package types

import "time"

// TimeEntry is a block of hours logged against a project on one day.
type TimeEntry struct {
	ID          int       `json:"id" db:"id"`
	TimesheetID int       `json:"timesheet_id" db:"timesheet_id"`
	Project     string    `json:"project" db:"project"`
	Date        time.Time `json:"date" db:"entry_date"`
	Hours       float64   `json:"hours" db:"hours"`
	Description *string   `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// ProjectStats aggregates a user's entries for one project.
type ProjectStats struct {
	Project          string  `json:"project" db:"project"`
	EntryCount       int     `json:"entry_count" db:"entry_count"`
	TotalHours       float64 `json:"total_hours" db:"total_hours"`
	AvgHoursPerEntry float64 `json:"avg_hours_per_entry" db:"avg_hours_per_entry"`
}

// DailyTotal aggregates a user's entries for one calendar day.
type DailyTotal struct {
	Date       time.Time `json:"date" db:"entry_date"`
	TotalHours float64   `json:"total_hours" db:"total_hours"`
	EntryCount int       `json:"entry_count" db:"entry_count"`
}
