package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// StatsRouter registers statistics routes on the given router.
func StatsRouter(r chi.Router, handler *TimesheetHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Use(authMiddleware)

	r.Get("/", handler.StatusStats)
	r.Get("/periods", handler.PeriodStats)
	r.Get("/projects", handler.ProjectStats)
	r.Get("/daily", handler.DailyTotals)
}

func weeksBack(n int) func(time.Time) time.Time {
	return func(t time.Time) time.Time { return t.AddDate(0, 0, -7*n) }
}

func monthsBack(n int) func(time.Time) time.Time {
	return func(t time.Time) time.Time { return t.AddDate(0, -n, 0) }
}

// StatusStats returns timesheet counts and hours per status.
func (h *TimesheetHandler) StatusStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.timesheets.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err, "failed to fetch statistics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

// PeriodStats aggregates timesheets per period; the range defaults to the
// last four weeks.
func (h *TimesheetHandler) PeriodStats(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseDateRange(r, h.now(), weeksBack(4))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stats, err := h.timesheets.PeriodStats(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, err, "failed to fetch period statistics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"period_stats": stats})
}

// ProjectStats aggregates the caller's hours per project over the last month
// unless a range is given.
func (h *TimesheetHandler) ProjectStats(w http.ResponseWriter, r *http.Request) {
	id, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	from, to, err := parseDateRange(r, h.now(), monthsBack(1))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stats, err := h.timesheets.ProjectStats(r.Context(), id.UserID, from, to)
	if err != nil {
		writeServiceError(w, err, "failed to fetch project statistics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"project_stats": stats})
}

// DailyTotals returns the caller's hours per day, two weeks back by default.
func (h *TimesheetHandler) DailyTotals(w http.ResponseWriter, r *http.Request) {
	id, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	from, to, err := parseDateRange(r, h.now(), weeksBack(2))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	totals, err := h.timesheets.DailyTotals(r.Context(), id.UserID, from, to)
	if err != nil {
		writeServiceError(w, err, "failed to fetch daily hours")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"daily_hours": totals})
}
