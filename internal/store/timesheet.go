package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/reverside/timetracker/types"
)

var timesheetColumns = []string{
	"id", "user_id", "period_kind", "period_key", "period_start", "period_end",
	"status", "total_hours", "submitted_at", "approved_by", "approved_at",
	"rejection_reason", "notes", "created_at", "updated_at",
}

// TimesheetRepository handles persistence for timesheets.
type TimesheetRepository struct {
	store *Store
	table *Table[types.Timesheet]
}

func NewTimesheetRepository(s *Store) *TimesheetRepository {
	return &TimesheetRepository{
		store: s,
		table: NewTable[types.Timesheet](s, "timesheets", timesheetColumns,
			[]string{"user_id", "period_kind", "period_key", "period_start", "period_end", "status", "total_hours", "notes"}),
	}
}

func (r *TimesheetRepository) GetByID(ctx context.Context, id int) (types.Timesheet, error) {
	return r.table.FindByID(ctx, id)
}

func (r *TimesheetRepository) FindByUserAndPeriod(ctx context.Context, userID int, periodKey string) (types.Timesheet, error) {
	return r.table.FindOne(ctx, Filter{"user_id": userID, "period_key": periodKey})
}

// ListByUser returns one page of a user's timesheets, newest period first.
func (r *TimesheetRepository) ListByUser(ctx context.Context, userID, offset, limit int) ([]types.Timesheet, error) {
	query := `
		SELECT ` + r.table.Columns("") + `
		FROM timesheets
		WHERE user_id = $1
		ORDER BY period_start DESC, id DESC
		LIMIT $2 OFFSET $3`
	items := []types.Timesheet{}
	if err := sqlx.SelectContext(ctx, r.store.conn(ctx), &items, query, userID, limit, offset); err != nil {
		return nil, classify(err)
	}
	return items, nil
}

func (r *TimesheetRepository) CountByUser(ctx context.Context, userID int) (int, error) {
	return r.table.Count(ctx, Filter{"user_id": userID})
}

func (r *TimesheetRepository) ListByStatus(ctx context.Context, status types.TimesheetStatus) ([]types.Timesheet, error) {
	return r.table.FindAll(ctx, Filter{"status": string(status)}, "period_start DESC, id DESC")
}

func (r *TimesheetRepository) ListByPeriod(ctx context.Context, periodKey string) ([]types.Timesheet, error) {
	return r.table.FindAll(ctx, Filter{"period_key": periodKey}, "user_id ASC")
}

// Create inserts a timesheet. A second timesheet for the same user and period
// fails with ErrConflict.
func (r *TimesheetRepository) Create(ctx context.Context, ts types.Timesheet) (types.Timesheet, error) {
	if ts.Status == "" {
		ts.Status = types.StatusDraft
	}
	return r.table.Create(ctx, ts)
}

// Submit moves a draft timesheet to submitted.
func (r *TimesheetRepository) Submit(ctx context.Context, id int, at time.Time) (types.Timesheet, error) {
	return r.table.UpdateWhere(ctx, id,
		Filter{"status": string(types.StatusDraft)},
		Fields{"status": string(types.StatusSubmitted), "submitted_at": at},
	)
}

// Approve moves a submitted timesheet to approved.
func (r *TimesheetRepository) Approve(ctx context.Context, id, approverID int, at time.Time) (types.Timesheet, error) {
	return r.table.UpdateWhere(ctx, id,
		Filter{"status": string(types.StatusSubmitted)},
		Fields{
			"status":           string(types.StatusApproved),
			"approved_by":      approverID,
			"approved_at":      at,
			"rejection_reason": nil,
		},
	)
}

// Reject moves a submitted timesheet to rejected, recording the reason.
func (r *TimesheetRepository) Reject(ctx context.Context, id, approverID int, reason *string, at time.Time) (types.Timesheet, error) {
	return r.table.UpdateWhere(ctx, id,
		Filter{"status": string(types.StatusSubmitted)},
		Fields{
			"status":           string(types.StatusRejected),
			"approved_by":      approverID,
			"approved_at":      at,
			"rejection_reason": reason,
		},
	)
}

func (r *TimesheetRepository) SetTotalHours(ctx context.Context, id int, hours float64) (types.Timesheet, error) {
	return r.table.Update(ctx, id, Fields{"total_hours": hours})
}

const detailSelect = `
	SELECT %s,
		u.name AS user_name,
		u.email AS user_email,
		a.name AS approved_by_name
	FROM timesheets t
	JOIN users u ON u.id = t.user_id
	LEFT JOIN users a ON a.id = t.approved_by`

func (r *TimesheetRepository) detailQuery() string {
	return fmt.Sprintf(detailSelect, r.table.Columns("t"))
}

// GetDetail returns a timesheet with its owner and approver resolved.
func (r *TimesheetRepository) GetDetail(ctx context.Context, id int) (types.TimesheetDetail, error) {
	var detail types.TimesheetDetail
	query := r.detailQuery() + ` WHERE t.id = $1`
	if err := sqlx.GetContext(ctx, r.store.conn(ctx), &detail, query, id); err != nil {
		return types.TimesheetDetail{}, classify(err)
	}
	return detail, nil
}

// ListDetailsInRange returns every timesheet whose period starts within
// [from, to], joined with owner data, ordered by period then owner.
func (r *TimesheetRepository) ListDetailsInRange(ctx context.Context, from, to time.Time) ([]types.TimesheetDetail, error) {
	query := r.detailQuery() + `
		WHERE t.period_start BETWEEN $1 AND $2
		ORDER BY t.period_start ASC, u.name ASC, t.id ASC`
	items := []types.TimesheetDetail{}
	if err := sqlx.SelectContext(ctx, r.store.conn(ctx), &items, query, from, to); err != nil {
		return nil, classify(err)
	}
	return items, nil
}

// Stats returns the count and total hours of timesheets per status.
func (r *TimesheetRepository) Stats(ctx context.Context) ([]types.StatusStats, error) {
	const query = `
		SELECT status, COUNT(*) AS count, COALESCE(SUM(total_hours), 0) AS total_hours
		FROM timesheets
		GROUP BY status
		ORDER BY status`
	stats := []types.StatusStats{}
	if err := sqlx.SelectContext(ctx, r.store.conn(ctx), &stats, query); err != nil {
		return nil, classify(err)
	}
	return stats, nil
}

// PeriodStats buckets timesheets whose period starts within [from, to] by
// period key, newest first.
func (r *TimesheetRepository) PeriodStats(ctx context.Context, from, to time.Time) ([]types.PeriodStats, error) {
	const query = `
		SELECT period_key,
			MIN(period_start) AS period_start,
			COUNT(*) AS timesheet_count,
			COALESCE(SUM(total_hours), 0) AS total_hours,
			COALESCE(AVG(total_hours), 0) AS avg_hours
		FROM timesheets
		WHERE period_start BETWEEN $1 AND $2
		GROUP BY period_key
		ORDER BY MIN(period_start) DESC, period_key DESC`
	stats := []types.PeriodStats{}
	if err := sqlx.SelectContext(ctx, r.store.conn(ctx), &stats, query, from, to); err != nil {
		return nil, classify(err)
	}
	return stats, nil
}
