package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/reverside/timetracker/internal/services"
	"github.com/reverside/timetracker/types"
)

// TimesheetService is the workflow API used by the timesheet and stats routes.
type TimesheetService interface {
	CreateTimesheet(ctx context.Context, userID int, period string, entries []services.EntryInput, notes *string) (types.Timesheet, error)
	UpdateTimesheet(ctx context.Context, id, userID int, entries []services.EntryInput) (types.Timesheet, error)
	SubmitTimesheet(ctx context.Context, id, userID int) (types.Timesheet, error)
	ApproveTimesheet(ctx context.Context, id, approverID int) (types.Timesheet, error)
	RejectTimesheet(ctx context.Context, id, approverID int, reason *string) (types.Timesheet, error)
	GetTimesheetDetail(ctx context.Context, id int) (services.TimesheetWithEntries, error)
	ListByUser(ctx context.Context, userID, offset, limit int) (services.TimesheetPage, error)
	ListByStatus(ctx context.Context, status types.TimesheetStatus) ([]types.Timesheet, error)
	ListPending(ctx context.Context) ([]types.Timesheet, error)
	ListByPeriod(ctx context.Context, period string) ([]types.Timesheet, error)
	Stats(ctx context.Context) ([]types.StatusStats, error)
	PeriodStats(ctx context.Context, from, to time.Time) ([]types.PeriodStats, error)
	ProjectStats(ctx context.Context, userID int, from, to time.Time) ([]types.ProjectStats, error)
	DailyTotals(ctx context.Context, userID int, from, to time.Time) ([]types.DailyTotal, error)
}

// TimesheetHandler serves timesheet and statistics endpoints.
type TimesheetHandler struct {
	timesheets TimesheetService
	now        func() time.Time
}

// NewTimesheetHandler constructs a TimesheetHandler.
func NewTimesheetHandler(timesheets TimesheetService) *TimesheetHandler {
	return &TimesheetHandler{timesheets: timesheets, now: time.Now}
}

// TimesheetRouter registers timesheet routes. Every route requires
// authentication; decisions and the pending queue require an admin.
func TimesheetRouter(r chi.Router, handler *TimesheetHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Use(authMiddleware)

	r.Get("/", handler.ListTimesheets)
	r.Post("/", handler.CreateTimesheet)
	r.With(RequireAdmin).Get("/pending", handler.ListPending)
	r.Route("/{timesheetID}", func(r chi.Router) {
		r.Get("/", handler.GetTimesheet)
		r.Put("/", handler.UpdateTimesheet)
		r.Post("/submit", handler.SubmitTimesheet)
		r.With(RequireAdmin).Post("/approve", handler.ApproveTimesheet)
		r.With(RequireAdmin).Post("/reject", handler.RejectTimesheet)
	})
}

// ListTimesheets returns the caller's timesheets. Admins may instead filter
// every timesheet by ?status= or ?period=.
func (h *TimesheetHandler) ListTimesheets(w http.ResponseWriter, r *http.Request) {
	id, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	query := r.URL.Query()
	rawStatus := strings.TrimSpace(query.Get("status"))
	period := strings.TrimSpace(query.Get("period"))

	if id.IsAdmin() && (rawStatus != "" || period != "") {
		var items []types.Timesheet
		if rawStatus != "" {
			status, ok := types.ParseStatus(rawStatus)
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid status")
				return
			}
			items, err = h.timesheets.ListByStatus(r.Context(), status)
		} else {
			items, err = h.timesheets.ListByPeriod(r.Context(), period)
		}
		if err != nil {
			writeServiceError(w, err, "failed to list timesheets")
			return
		}
		writeJSON(w, http.StatusOK, TimesheetListResponse{
			Items: window(items, offset, limit),
			Page:  page,
			Limit: limit,
			Total: len(items),
		})
		return
	}

	result, err := h.timesheets.ListByUser(r.Context(), id.UserID, offset, limit)
	if err != nil {
		writeServiceError(w, err, "failed to list timesheets")
		return
	}
	writeJSON(w, http.StatusOK, TimesheetListResponse{
		Items: result.Items,
		Page:  page,
		Limit: limit,
		Total: result.Total,
	})
}

// ListPending returns every submitted timesheet awaiting a decision.
func (h *TimesheetHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := h.timesheets.ListPending(r.Context())
	if err != nil {
		writeServiceError(w, err, "failed to list pending timesheets")
		return
	}
	writeJSON(w, http.StatusOK, TimesheetListResponse{
		Items: window(items, offset, limit),
		Page:  page,
		Limit: limit,
		Total: len(items),
	})
}

// CreateTimesheet opens a draft timesheet for the caller.
func (h *TimesheetHandler) CreateTimesheet(w http.ResponseWriter, r *http.Request) {
	id, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateTimesheetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	period := strings.TrimSpace(req.Period)
	if period == "" {
		period = strings.TrimSpace(req.WeekEnding)
	}
	if period == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "period is required", Field: "period"})
		return
	}

	ts, err := h.timesheets.CreateTimesheet(r.Context(), id.UserID, period, req.Entries, req.Notes)
	if err != nil {
		writeServiceError(w, err, "failed to create timesheet")
		return
	}
	writeJSON(w, http.StatusCreated, ts)
}

// GetTimesheet returns a timesheet with its entries. Employees only see their
// own.
func (h *TimesheetHandler) GetTimesheet(w http.ResponseWriter, r *http.Request) {
	id, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	timesheetID, err := parseIDParam(r, "timesheetID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	detail, err := h.timesheets.GetTimesheetDetail(r.Context(), timesheetID)
	if err != nil {
		writeServiceError(w, err, "failed to fetch timesheet")
		return
	}
	if !id.IsAdmin() && detail.UserID != id.UserID {
		writeError(w, http.StatusForbidden, "access denied")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// UpdateTimesheet replaces the entries of the caller's draft timesheet.
func (h *TimesheetHandler) UpdateTimesheet(w http.ResponseWriter, r *http.Request) {
	id, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	timesheetID, err := parseIDParam(r, "timesheetID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req UpdateTimesheetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Entries == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "entries are required", Field: "entries"})
		return
	}

	ts, err := h.timesheets.UpdateTimesheet(r.Context(), timesheetID, id.UserID, req.Entries)
	if err != nil {
		writeServiceError(w, err, "failed to update timesheet")
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

// SubmitTimesheet sends the caller's draft for approval.
func (h *TimesheetHandler) SubmitTimesheet(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "failed to submit timesheet", func(ctx context.Context, timesheetID int, caller Identity) (types.Timesheet, error) {
		return h.timesheets.SubmitTimesheet(ctx, timesheetID, caller.UserID)
	})
}

// ApproveTimesheet records an approval by the calling admin.
func (h *TimesheetHandler) ApproveTimesheet(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "failed to approve timesheet", func(ctx context.Context, timesheetID int, caller Identity) (types.Timesheet, error) {
		return h.timesheets.ApproveTimesheet(ctx, timesheetID, caller.UserID)
	})
}

// RejectTimesheet records a rejection by the calling admin. The body is
// optional.
func (h *TimesheetHandler) RejectTimesheet(w http.ResponseWriter, r *http.Request) {
	var req RejectTimesheetRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.transition(w, r, "failed to reject timesheet", func(ctx context.Context, timesheetID int, caller Identity) (types.Timesheet, error) {
		return h.timesheets.RejectTimesheet(ctx, timesheetID, caller.UserID, req.RejectionReason)
	})
}

func (h *TimesheetHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	fallback string,
	fn func(ctx context.Context, timesheetID int, caller Identity) (types.Timesheet, error),
) {
	id, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	timesheetID, err := parseIDParam(r, "timesheetID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ts, err := fn(r.Context(), timesheetID, id)
	if err != nil {
		writeServiceError(w, err, fallback)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func window(items []types.Timesheet, offset, limit int) []types.Timesheet {
	if offset < 0 || offset >= len(items) {
		return []types.Timesheet{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// CreateTimesheetRequest opens a timesheet. WeekEnding is a deprecated alias
// of Period.
type CreateTimesheetRequest struct {
	Period     string                `json:"period"`
	WeekEnding string                `json:"week_ending"`
	Notes      *string               `json:"notes"`
	Entries    []services.EntryInput `json:"entries"`
}

type UpdateTimesheetRequest struct {
	Entries []services.EntryInput `json:"entries"`
}

type RejectTimesheetRequest struct {
	RejectionReason *string `json:"rejection_reason"`
}

// TimesheetListResponse is the paginated list response payload.
type TimesheetListResponse struct {
	Items []types.Timesheet `json:"items"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
	Total int               `json:"total"`
}
