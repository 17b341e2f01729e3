package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/reverside/timetracker/types"
)

var timeEntryColumns = []string{
	"id", "timesheet_id", "project", "entry_date", "hours", "description", "created_at",
}

// TimeEntryRepository handles persistence for time entries.
type TimeEntryRepository struct {
	store *Store
	table *Table[types.TimeEntry]
}

func NewTimeEntryRepository(s *Store) *TimeEntryRepository {
	return &TimeEntryRepository{
		store: s,
		table: NewTable[types.TimeEntry](s, "time_entries", timeEntryColumns,
			[]string{"timesheet_id", "project", "entry_date", "hours", "description"}),
	}
}

func (r *TimeEntryRepository) ListByTimesheet(ctx context.Context, timesheetID int) ([]types.TimeEntry, error) {
	return r.table.FindAll(ctx, Filter{"timesheet_id": timesheetID}, "entry_date ASC, id ASC")
}

// ListByUserAndRange returns a user's entries dated within [from, to] across
// all of their timesheets.
func (r *TimeEntryRepository) ListByUserAndRange(ctx context.Context, userID int, from, to time.Time) ([]types.TimeEntry, error) {
	query := `
		SELECT ` + r.table.Columns("te") + `
		FROM time_entries te
		JOIN timesheets t ON t.id = te.timesheet_id
		WHERE t.user_id = $1 AND te.entry_date BETWEEN $2 AND $3
		ORDER BY te.entry_date ASC, te.id ASC`
	entries := []types.TimeEntry{}
	if err := sqlx.SelectContext(ctx, r.store.conn(ctx), &entries, query, userID, from, to); err != nil {
		return nil, classify(err)
	}
	return entries, nil
}

func (r *TimeEntryRepository) TotalHours(ctx context.Context, timesheetID int) (float64, error) {
	const query = `SELECT COALESCE(SUM(hours), 0) FROM time_entries WHERE timesheet_id = $1`
	var total float64
	if err := sqlx.GetContext(ctx, r.store.conn(ctx), &total, query, timesheetID); err != nil {
		return 0, classify(err)
	}
	return total, nil
}

// ProjectStats aggregates a user's entries in [from, to] per project, largest
// total first.
func (r *TimeEntryRepository) ProjectStats(ctx context.Context, userID int, from, to time.Time) ([]types.ProjectStats, error) {
	const query = `
		SELECT te.project,
			COUNT(*) AS entry_count,
			COALESCE(SUM(te.hours), 0) AS total_hours,
			COALESCE(AVG(te.hours), 0) AS avg_hours_per_entry
		FROM time_entries te
		JOIN timesheets t ON t.id = te.timesheet_id
		WHERE t.user_id = $1 AND te.entry_date BETWEEN $2 AND $3
		GROUP BY te.project
		ORDER BY total_hours DESC, te.project ASC`
	stats := []types.ProjectStats{}
	if err := sqlx.SelectContext(ctx, r.store.conn(ctx), &stats, query, userID, from, to); err != nil {
		return nil, classify(err)
	}
	return stats, nil
}

// DailyTotals aggregates a user's entries in [from, to] per calendar day.
func (r *TimeEntryRepository) DailyTotals(ctx context.Context, userID int, from, to time.Time) ([]types.DailyTotal, error) {
	const query = `
		SELECT te.entry_date,
			COALESCE(SUM(te.hours), 0) AS total_hours,
			COUNT(*) AS entry_count
		FROM time_entries te
		JOIN timesheets t ON t.id = te.timesheet_id
		WHERE t.user_id = $1 AND te.entry_date BETWEEN $2 AND $3
		GROUP BY te.entry_date
		ORDER BY te.entry_date ASC`
	totals := []types.DailyTotal{}
	if err := sqlx.SelectContext(ctx, r.store.conn(ctx), &totals, query, userID, from, to); err != nil {
		return nil, classify(err)
	}
	return totals, nil
}

// CreateBatch inserts entries under timesheetID and returns the timesheet's
// full entry list.
func (r *TimeEntryRepository) CreateBatch(ctx context.Context, timesheetID int, entries []types.TimeEntry) ([]types.TimeEntry, error) {
	rows := make([]types.TimeEntry, len(entries))
	for i, e := range entries {
		e.TimesheetID = timesheetID
		rows[i] = e
	}
	if _, err := r.table.CreateMany(ctx, rows); err != nil {
		return nil, err
	}
	return r.ListByTimesheet(ctx, timesheetID)
}

func (r *TimeEntryRepository) DeleteByTimesheet(ctx context.Context, timesheetID int) (int, error) {
	return r.table.DeleteWhere(ctx, Filter{"timesheet_id": timesheetID})
}
