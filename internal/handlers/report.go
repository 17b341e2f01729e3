package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/reverside/timetracker/internal/services"
)

// ReportService is the export API used by the report routes.
type ReportService interface {
	ExportTimesheets(ctx context.Context, from, to time.Time) (services.ReportExport, error)
	OpenExport(ctx context.Context, name string) (io.ReadCloser, error)
	DeleteExport(ctx context.Context, name string) error
}

type ReportHandler struct {
	reports ReportService
	now     func() time.Time
}

func NewReportHandler(reports ReportService) *ReportHandler {
	return &ReportHandler{reports: reports, now: time.Now}
}

// ReportRouter registers the admin-only report export routes.
func ReportRouter(r chi.Router, handler *ReportHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Use(authMiddleware, RequireAdmin)

	r.Post("/exports", handler.CreateExport)
	r.Get("/exports/{name}", handler.DownloadExport)
	r.Delete("/exports/{name}", handler.DeleteExport)
}

// CreateExport renders timesheets whose period starts in the requested range,
// one month back by default.
func (h *ReportHandler) CreateExport(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseDateRange(r, h.now(), monthsBack(1))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	export, err := h.reports.ExportTimesheets(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, err, "failed to export timesheets")
		return
	}
	writeJSON(w, http.StatusCreated, export)
}

func (h *ReportHandler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rc, err := h.reports.OpenExport(r.Context(), name)
	if err != nil {
		writeServiceError(w, err, "failed to open export")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

func (h *ReportHandler) DeleteExport(w http.ResponseWriter, r *http.Request) {
	if err := h.reports.DeleteExport(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeServiceError(w, err, "failed to delete export")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
