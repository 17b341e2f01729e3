package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/reverside/timetracker/internal/store"
	"github.com/reverside/timetracker/types"
)

// TimesheetRepository defines persistence operations for timesheets.
type TimesheetRepository interface {
	GetByID(ctx context.Context, id int) (types.Timesheet, error)
	FindByUserAndPeriod(ctx context.Context, userID int, periodKey string) (types.Timesheet, error)
	ListByUser(ctx context.Context, userID, offset, limit int) ([]types.Timesheet, error)
	CountByUser(ctx context.Context, userID int) (int, error)
	ListByStatus(ctx context.Context, status types.TimesheetStatus) ([]types.Timesheet, error)
	ListByPeriod(ctx context.Context, periodKey string) ([]types.Timesheet, error)
	Create(ctx context.Context, ts types.Timesheet) (types.Timesheet, error)
	Submit(ctx context.Context, id int, at time.Time) (types.Timesheet, error)
	Approve(ctx context.Context, id, approverID int, at time.Time) (types.Timesheet, error)
	Reject(ctx context.Context, id, approverID int, reason *string, at time.Time) (types.Timesheet, error)
	SetTotalHours(ctx context.Context, id int, hours float64) (types.Timesheet, error)
	GetDetail(ctx context.Context, id int) (types.TimesheetDetail, error)
	Stats(ctx context.Context) ([]types.StatusStats, error)
	PeriodStats(ctx context.Context, from, to time.Time) ([]types.PeriodStats, error)
}

// TimeEntryRepository defines persistence operations for time entries.
type TimeEntryRepository interface {
	ListByTimesheet(ctx context.Context, timesheetID int) ([]types.TimeEntry, error)
	TotalHours(ctx context.Context, timesheetID int) (float64, error)
	ProjectStats(ctx context.Context, userID int, from, to time.Time) ([]types.ProjectStats, error)
	DailyTotals(ctx context.Context, userID int, from, to time.Time) ([]types.DailyTotal, error)
	CreateBatch(ctx context.Context, timesheetID int, entries []types.TimeEntry) ([]types.TimeEntry, error)
	DeleteByTimesheet(ctx context.Context, timesheetID int) (int, error)
}

// Transactor runs fn in a single transaction carried by ctx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher receives workflow events after a transition commits.
type EventPublisher interface {
	Publish(ctx context.Context, event types.TimesheetEvent) error
}

// EntryInput is one time entry as supplied by a caller.
type EntryInput struct {
	Project     string  `json:"project"`
	Date        string  `json:"date"`
	Hours       float64 `json:"hours"`
	Description *string `json:"description,omitempty"`
}

// TimesheetWithEntries is a joined timesheet together with its entries.
type TimesheetWithEntries struct {
	types.TimesheetDetail
	Entries []types.TimeEntry `json:"entries"`
}

// TimesheetPage is one page of a user's timesheets.
type TimesheetPage struct {
	Items []types.Timesheet `json:"items"`
	Total int               `json:"total"`
}

const maxEntryHours = 24

// TimesheetOption configures a TimesheetService.
type TimesheetOption func(*TimesheetService)

// WithClock replaces the time source used to stamp transitions.
func WithClock(now func() time.Time) TimesheetOption {
	return func(s *TimesheetService) { s.now = now }
}

// WithPublisher sets the receiver of workflow events.
func WithPublisher(p EventPublisher) TimesheetOption {
	return func(s *TimesheetService) { s.events = p }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) TimesheetOption {
	return func(s *TimesheetService) { s.logger = l }
}

// TimesheetService runs the timesheet approval workflow. It checks ownership
// and status but never role; callers gate admin operations.
type TimesheetService struct {
	timesheets TimesheetRepository
	entries    TimeEntryRepository
	tx         Transactor
	events     EventPublisher
	logger     *slog.Logger
	now        func() time.Time
}

func NewTimesheetService(timesheets TimesheetRepository, entries TimeEntryRepository, tx Transactor, opts ...TimesheetOption) *TimesheetService {
	s := &TimesheetService{
		timesheets: timesheets,
		entries:    entries,
		tx:         tx,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateEntries checks a batch of entries and converts it to rows. The
// first bad entry fails the whole batch.
func ValidateEntries(entries []EntryInput) ([]types.TimeEntry, error) {
	if len(entries) == 0 {
		return nil, invalid("entries", "at least one time entry is required")
	}

	rows := make([]types.TimeEntry, 0, len(entries))
	for i, e := range entries {
		field := fmt.Sprintf("entries[%d]", i)

		project := strings.TrimSpace(e.Project)
		if project == "" {
			return nil, invalid(field+".project", "project is required")
		}
		date, err := time.Parse(types.DateLayout, strings.TrimSpace(e.Date))
		if err != nil {
			return nil, invalid(field+".date", "date must be YYYY-MM-DD")
		}
		if !(e.Hours > 0 && e.Hours <= maxEntryHours) {
			return nil, invalid(field+".hours", "hours must be greater than 0 and at most %d", maxEntryHours)
		}
		// time_entries.hours is NUMERIC(5,2).
		if math.Round(e.Hours*100)/100 != e.Hours {
			return nil, invalid(field+".hours", "hours must have at most 2 decimal places")
		}

		rows = append(rows, types.TimeEntry{
			Project:     project,
			Date:        date,
			Hours:       e.Hours,
			Description: optionalText(e.Description),
		})
	}
	return rows, nil
}

// CreateTimesheet opens a draft timesheet for userID over period, storing
// entries when any are given.
func (s *TimesheetService) CreateTimesheet(ctx context.Context, userID int, period string, entries []EntryInput, notes *string) (types.Timesheet, error) {
	p, err := types.ParsePeriod(period)
	if err != nil {
		return types.Timesheet{}, invalid("period", "period must be YYYY-MM or YYYY-Www")
	}

	var rows []types.TimeEntry
	if len(entries) > 0 {
		if rows, err = ValidateEntries(entries); err != nil {
			return types.Timesheet{}, err
		}
	}

	duplicate := fmt.Errorf("timesheet already exists for period %s: %w", p.Key, ErrConflict)
	var created types.Timesheet
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		_, err := s.timesheets.FindByUserAndPeriod(ctx, userID, p.Key)
		switch {
		case err == nil:
			return duplicate
		case !errors.Is(err, store.ErrNotFound):
			return translate("find timesheet", err)
		}

		ts, err := s.timesheets.Create(ctx, types.Timesheet{
			UserID:      userID,
			PeriodKind:  p.Kind,
			PeriodKey:   p.Key,
			PeriodStart: p.Start,
			PeriodEnd:   p.End,
			Status:      types.StatusDraft,
			Notes:       optionalText(notes),
		})
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return duplicate
			}
			return translate("create timesheet", err)
		}

		if len(rows) > 0 {
			if _, err := s.entries.CreateBatch(ctx, ts.ID, rows); err != nil {
				return translate("create time entries", err)
			}
			if ts, err = s.syncTotal(ctx, ts.ID); err != nil {
				return err
			}
		}
		created = ts
		return nil
	})
	if err != nil {
		return types.Timesheet{}, err
	}

	s.logger.Info("timesheet created", "timesheet_id", created.ID, "user_id", userID, "period", created.PeriodKey)
	return created, nil
}

// UpdateTimesheet replaces every entry of a draft timesheet owned by userID.
func (s *TimesheetService) UpdateTimesheet(ctx context.Context, id, userID int, entries []EntryInput) (types.Timesheet, error) {
	ts, err := s.ownedTimesheet(ctx, id, userID)
	if err != nil {
		return types.Timesheet{}, err
	}
	if !ts.Status.Editable() {
		return types.Timesheet{}, ErrAlreadyProcessed
	}

	rows, err := ValidateEntries(entries)
	if err != nil {
		return types.Timesheet{}, err
	}

	var updated types.Timesheet
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.timesheets.GetByID(ctx, id)
		if err != nil {
			return translate("get timesheet", err)
		}
		if !current.Status.Editable() {
			return ErrAlreadyProcessed
		}

		if _, err := s.entries.DeleteByTimesheet(ctx, id); err != nil {
			return translate("delete time entries", err)
		}
		if _, err := s.entries.CreateBatch(ctx, id, rows); err != nil {
			return translate("create time entries", err)
		}
		updated, err = s.syncTotal(ctx, id)
		return err
	})
	if err != nil {
		return types.Timesheet{}, err
	}
	return updated, nil
}

// SubmitTimesheet hands a non-empty draft to the approvers.
func (s *TimesheetService) SubmitTimesheet(ctx context.Context, id, userID int) (types.Timesheet, error) {
	ts, err := s.ownedTimesheet(ctx, id, userID)
	if err != nil {
		return types.Timesheet{}, err
	}
	if ts.Status != types.StatusDraft {
		return types.Timesheet{}, ErrAlreadyProcessed
	}

	entries, err := s.entries.ListByTimesheet(ctx, id)
	if err != nil {
		return types.Timesheet{}, translate("list time entries", err)
	}
	if len(entries) == 0 {
		return types.Timesheet{}, ErrEmptyTimesheet
	}

	submitted, err := s.timesheets.Submit(ctx, id, s.now())
	if err != nil {
		return types.Timesheet{}, s.transitionFailed(ctx, id, types.StatusDraft, err)
	}

	s.publish(ctx, types.EventTimesheetSubmitted, submitted, userID)
	return submitted, nil
}

// ApproveTimesheet accepts a submitted timesheet on behalf of approverID.
func (s *TimesheetService) ApproveTimesheet(ctx context.Context, id, approverID int) (types.Timesheet, error) {
	if err := s.checkDecidable(ctx, id); err != nil {
		return types.Timesheet{}, err
	}

	approved, err := s.timesheets.Approve(ctx, id, approverID, s.now())
	if err != nil {
		return types.Timesheet{}, s.transitionFailed(ctx, id, types.StatusSubmitted, err)
	}

	s.publish(ctx, types.EventTimesheetApproved, approved, approverID)
	return approved, nil
}

// RejectTimesheet declines a submitted timesheet. A blank reason is stored as
// no reason.
func (s *TimesheetService) RejectTimesheet(ctx context.Context, id, approverID int, reason *string) (types.Timesheet, error) {
	if err := s.checkDecidable(ctx, id); err != nil {
		return types.Timesheet{}, err
	}

	rejected, err := s.timesheets.Reject(ctx, id, approverID, optionalText(reason), s.now())
	if err != nil {
		return types.Timesheet{}, s.transitionFailed(ctx, id, types.StatusSubmitted, err)
	}

	s.publish(ctx, types.EventTimesheetRejected, rejected, approverID)
	return rejected, nil
}

func (s *TimesheetService) GetTimesheet(ctx context.Context, id int) (types.Timesheet, error) {
	ts, err := s.timesheets.GetByID(ctx, id)
	if err != nil {
		return types.Timesheet{}, translate("get timesheet", err)
	}
	return ts, nil
}

// GetTimesheetDetail returns the joined timesheet with its entries.
func (s *TimesheetService) GetTimesheetDetail(ctx context.Context, id int) (TimesheetWithEntries, error) {
	detail, err := s.timesheets.GetDetail(ctx, id)
	if err != nil {
		return TimesheetWithEntries{}, translate("get timesheet detail", err)
	}
	entries, err := s.entries.ListByTimesheet(ctx, id)
	if err != nil {
		return TimesheetWithEntries{}, translate("list time entries", err)
	}
	return TimesheetWithEntries{TimesheetDetail: detail, Entries: entries}, nil
}

func (s *TimesheetService) ListByUser(ctx context.Context, userID, offset, limit int) (TimesheetPage, error) {
	items, err := s.timesheets.ListByUser(ctx, userID, offset, limit)
	if err != nil {
		return TimesheetPage{}, translate("list timesheets", err)
	}
	total, err := s.timesheets.CountByUser(ctx, userID)
	if err != nil {
		return TimesheetPage{}, translate("count timesheets", err)
	}
	return TimesheetPage{Items: items, Total: total}, nil
}

func (s *TimesheetService) ListByStatus(ctx context.Context, status types.TimesheetStatus) ([]types.Timesheet, error) {
	items, err := s.timesheets.ListByStatus(ctx, status)
	return items, translate("list timesheets by status", err)
}

// ListPending returns the timesheets awaiting a decision.
func (s *TimesheetService) ListPending(ctx context.Context) ([]types.Timesheet, error) {
	return s.ListByStatus(ctx, types.StatusSubmitted)
}

// ListByPeriod returns every user's timesheet for one period identifier.
func (s *TimesheetService) ListByPeriod(ctx context.Context, period string) ([]types.Timesheet, error) {
	p, err := types.ParsePeriod(period)
	if err != nil {
		return nil, invalid("period", "period must be YYYY-MM or YYYY-Www")
	}
	items, err := s.timesheets.ListByPeriod(ctx, p.Key)
	return items, translate("list timesheets by period", err)
}

func (s *TimesheetService) Stats(ctx context.Context) ([]types.StatusStats, error) {
	stats, err := s.timesheets.Stats(ctx)
	return stats, translate("timesheet stats", err)
}

func (s *TimesheetService) PeriodStats(ctx context.Context, from, to time.Time) ([]types.PeriodStats, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	stats, err := s.timesheets.PeriodStats(ctx, from, to)
	return stats, translate("period stats", err)
}

func (s *TimesheetService) ProjectStats(ctx context.Context, userID int, from, to time.Time) ([]types.ProjectStats, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	stats, err := s.entries.ProjectStats(ctx, userID, from, to)
	return stats, translate("project stats", err)
}

func (s *TimesheetService) DailyTotals(ctx context.Context, userID int, from, to time.Time) ([]types.DailyTotal, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	totals, err := s.entries.DailyTotals(ctx, userID, from, to)
	return totals, translate("daily totals", err)
}

func (s *TimesheetService) ownedTimesheet(ctx context.Context, id, userID int) (types.Timesheet, error) {
	ts, err := s.timesheets.GetByID(ctx, id)
	if err != nil {
		return types.Timesheet{}, translate("get timesheet", err)
	}
	if ts.UserID != userID {
		return types.Timesheet{}, ErrForbidden
	}
	return ts, nil
}

// checkDecidable fails unless the timesheet is waiting for a decision.
func (s *TimesheetService) checkDecidable(ctx context.Context, id int) error {
	ts, err := s.timesheets.GetByID(ctx, id)
	if err != nil {
		return translate("get timesheet", err)
	}
	return decisionError(ts.Status)
}

func decisionError(status types.TimesheetStatus) error {
	switch {
	case status == types.StatusSubmitted:
		return nil
	case status.IsTerminal():
		return ErrAlreadyProcessed
	default:
		return fmt.Errorf("timesheet has not been submitted: %w", ErrInvalidState)
	}
}

// transitionFailed classifies a guarded update that reported no row: another
// request moved the timesheet out of from first, or a referenced row is gone.
func (s *TimesheetService) transitionFailed(ctx context.Context, id int, from types.TimesheetStatus, err error) error {
	if !errors.Is(err, store.ErrNotFound) {
		return translate("update timesheet status", err)
	}

	current, gerr := s.timesheets.GetByID(ctx, id)
	if gerr != nil {
		return translate("get timesheet", gerr)
	}
	// Still in from: the guard held, so the update failed on something else,
	// such as an approver reference that no longer exists.
	if current.Status == from {
		return fmt.Errorf("update timesheet status: %w: %w", ErrNotFound, err)
	}
	if from == types.StatusSubmitted {
		if derr := decisionError(current.Status); derr != nil {
			return derr
		}
	}
	return ErrAlreadyProcessed
}

func (s *TimesheetService) syncTotal(ctx context.Context, id int) (types.Timesheet, error) {
	total, err := s.entries.TotalHours(ctx, id)
	if err != nil {
		return types.Timesheet{}, translate("sum time entries", err)
	}
	ts, err := s.timesheets.SetTotalHours(ctx, id, total)
	if err != nil {
		return types.Timesheet{}, translate("set total hours", err)
	}
	return ts, nil
}

func (s *TimesheetService) publish(ctx context.Context, typ types.EventType, ts types.Timesheet, actorID int) {
	if s.events == nil {
		return
	}

	event := types.TimesheetEvent{
		Type:        typ,
		TimesheetID: ts.ID,
		UserID:      ts.UserID,
		ActorID:     actorID,
		PeriodKey:   ts.PeriodKey,
		Status:      ts.Status,
		OccurredAt:  s.now(),
	}
	if ts.RejectionReason != nil {
		event.Reason = *ts.RejectionReason
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("publish timesheet event failed",
			"type", typ, "timesheet_id", ts.ID, "error", err)
	}
}

func checkRange(from, to time.Time) error {
	if to.Before(from) {
		return invalid("end_date", "end date is before start date")
	}
	return nil
}

// optionalText trims s and maps blank text to nil.
func optionalText(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
