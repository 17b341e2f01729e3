package types

import "time"

// EventType names a workflow transition.
type EventType string

const (
	EventTimesheetSubmitted EventType = "timesheet.submitted"
	EventTimesheetApproved  EventType = "timesheet.approved"
	EventTimesheetRejected  EventType = "timesheet.rejected"
)

// TimesheetEvent is published after a workflow transition commits.
type TimesheetEvent struct {
	ID          string          `json:"id"`
	Type        EventType       `json:"type"`
	TimesheetID int             `json:"timesheet_id"`
	UserID      int             `json:"user_id"`
	ActorID     int             `json:"actor_id"`
	PeriodKey   string          `json:"period_key"`
	Status      TimesheetStatus `json:"status"`
	Reason      string          `json:"reason,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
