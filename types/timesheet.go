package types

import "time"

// TimesheetStatus is a state of the approval workflow.
type TimesheetStatus string

// Workflow states. Draft is initial; Approved and Rejected are terminal.
const (
	StatusDraft     TimesheetStatus = "draft"
	StatusSubmitted TimesheetStatus = "submitted"
	StatusApproved  TimesheetStatus = "approved"
	StatusRejected  TimesheetStatus = "rejected"
)

// ParseStatus maps a raw status string to a known state.
func ParseStatus(raw string) (TimesheetStatus, bool) {
	switch s := TimesheetStatus(raw); s {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusRejected:
		return s, true
	default:
		return "", false
	}
}

// IsTerminal reports whether no transition leaves s.
func (s TimesheetStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Editable reports whether the owner may still change entries.
func (s TimesheetStatus) Editable() bool {
	return s == StatusDraft
}

// CanTransitionTo reports whether the workflow allows moving from s to next.
func (s TimesheetStatus) CanTransitionTo(next TimesheetStatus) bool {
	switch s {
	case StatusDraft:
		return next == StatusSubmitted
	case StatusSubmitted:
		return next == StatusApproved || next == StatusRejected
	default:
		return false
	}
}

// Timesheet groups the time entries of one user for one period.
type Timesheet struct {
	// ID is the unique identifier of the timesheet.
	ID int `json:"id" db:"id"`

	// UserID identifies the owning user.
	UserID int `json:"user_id" db:"user_id"`

	// PeriodKind and PeriodKey identify the covered period; (UserID, PeriodKey)
	// is unique.
	PeriodKind PeriodKind `json:"period_kind" db:"period_kind"`
	PeriodKey  string     `json:"period_key" db:"period_key"`

	// PeriodStart and PeriodEnd are the inclusive calendar bounds.
	PeriodStart time.Time `json:"period_start" db:"period_start"`
	PeriodEnd   time.Time `json:"period_end" db:"period_end"`

	// Status is the current workflow state.
	Status TimesheetStatus `json:"status" db:"status"`

	// TotalHours is the sum of entry hours, recomputed on every entry change.
	TotalHours float64 `json:"total_hours" db:"total_hours"`

	// SubmittedAt is set when the owner submits the timesheet.
	SubmittedAt *time.Time `json:"submitted_at,omitempty" db:"submitted_at"`

	// ApprovedBy and ApprovedAt record the admin decision, for both approval
	// and rejection.
	ApprovedBy *int       `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt *time.Time `json:"approved_at,omitempty" db:"approved_at"`

	// RejectionReason is only meaningful when Status is rejected.
	RejectionReason *string `json:"rejection_reason,omitempty" db:"rejection_reason"`

	// Notes is optional free text from the owner.
	Notes *string `json:"notes,omitempty" db:"notes"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Period returns the period the timesheet covers.
func (t Timesheet) Period() Period {
	return Period{
		Kind:  t.PeriodKind,
		Key:   t.PeriodKey,
		Start: t.PeriodStart,
		End:   t.PeriodEnd,
	}
}

// TimesheetDetail is a timesheet joined with its owner and approver names.
type TimesheetDetail struct {
	Timesheet
	UserName       string  `json:"user_name" db:"user_name"`
	UserEmail      string  `json:"user_email" db:"user_email"`
	ApprovedByName *string `json:"approved_by_name,omitempty" db:"approved_by_name"`
}

// StatusStats aggregates timesheets sharing a status.
type StatusStats struct {
	Status     TimesheetStatus `json:"status" db:"status"`
	Count      int             `json:"count" db:"count"`
	TotalHours float64         `json:"total_hours" db:"total_hours"`
}

// PeriodStats aggregates timesheets sharing a period.
type PeriodStats struct {
	PeriodKey      string    `json:"period_key" db:"period_key"`
	PeriodStart    time.Time `json:"period_start" db:"period_start"`
	TimesheetCount int       `json:"timesheet_count" db:"timesheet_count"`
	TotalHours     float64   `json:"total_hours" db:"total_hours"`
	AvgHours       float64   `json:"avg_hours" db:"avg_hours"`
}
