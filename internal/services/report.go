package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/reverside/timetracker/internal/storage"
	"github.com/reverside/timetracker/types"
)

// ReportSource supplies the rows of a timesheet export.
type ReportSource interface {
	ListDetailsInRange(ctx context.Context, from, to time.Time) ([]types.TimesheetDetail, error)
}

// ReportStorage persists rendered reports.
type ReportStorage interface {
	PutBytes(ctx context.Context, name string, data []byte, contentType string) (storage.Object, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, name string) error
}

// ReportExport describes an uploaded export.
type ReportExport struct {
	Name   string `json:"name"`
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Rows   int    `json:"rows"`
	Size   int64  `json:"size"`
}

const reportContentType = "text/csv"

var reportHeader = []string{
	"timesheet_id", "employee", "email", "period", "period_start", "period_end",
	"status", "total_hours", "submitted_at", "approved_by", "approved_at", "rejection_reason",
}

var reportName = regexp.MustCompile(`^timesheets_\d{4}-\d{2}-\d{2}_\d{4}-\d{2}-\d{2}_[0-9a-f-]{36}\.csv$`)

// ReportService renders timesheet exports and keeps them in object storage.
// A nil storage makes every operation fail with ErrUnavailable.
type ReportService struct {
	source  ReportSource
	storage ReportStorage
	logger  *slog.Logger
}

func NewReportService(source ReportSource, store ReportStorage, logger *slog.Logger) *ReportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportService{source: source, storage: store, logger: logger}
}

// ExportTimesheets uploads a CSV of every timesheet whose period starts within
// [from, to].
func (s *ReportService) ExportTimesheets(ctx context.Context, from, to time.Time) (ReportExport, error) {
	if s.storage == nil {
		return ReportExport{}, fmt.Errorf("report storage: %w", ErrUnavailable)
	}
	if err := checkRange(from, to); err != nil {
		return ReportExport{}, err
	}

	rows, err := s.source.ListDetailsInRange(ctx, from, to)
	if err != nil {
		return ReportExport{}, translate("list timesheets for export", err)
	}

	data, err := renderTimesheetCSV(rows)
	if err != nil {
		return ReportExport{}, fmt.Errorf("render report: %w", err)
	}

	name := fmt.Sprintf("timesheets_%s_%s_%s.csv",
		from.Format(types.DateLayout), to.Format(types.DateLayout), uuid.NewString())
	obj, err := s.storage.PutBytes(ctx, name, data, reportContentType)
	if err != nil {
		return ReportExport{}, fmt.Errorf("upload report: %w", err)
	}

	s.logger.Info("timesheet report exported", "key", obj.Key, "rows", len(rows), "bytes", obj.Size)
	return ReportExport{
		Name:   name,
		Bucket: obj.Bucket,
		Key:    obj.Key,
		Rows:   len(rows),
		Size:   obj.Size,
	}, nil
}

// OpenExport returns a reader over a previously exported report.
func (s *ReportService) OpenExport(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := s.checkName(name); err != nil {
		return nil, err
	}
	rc, err := s.storage.Open(ctx, name)
	if err != nil {
		return nil, storageError("open report", err)
	}
	return rc, nil
}

// DeleteExport removes a previously exported report.
func (s *ReportService) DeleteExport(ctx context.Context, name string) error {
	if err := s.checkName(name); err != nil {
		return err
	}
	return storageError("delete report", s.storage.Delete(ctx, name))
}

func (s *ReportService) checkName(name string) error {
	if s.storage == nil {
		return fmt.Errorf("report storage: %w", ErrUnavailable)
	}
	if !reportName.MatchString(name) {
		return ErrNotFound
	}
	return nil
}

func storageError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrObjectNotFound):
		return ErrNotFound
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func renderTimesheetCSV(rows []types.TimesheetDetail) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(reportHeader); err != nil {
		return nil, err
	}

	for _, r := range rows {
		record := []string{
			strconv.Itoa(r.ID),
			r.UserName,
			r.UserEmail,
			r.PeriodKey,
			r.PeriodStart.Format(types.DateLayout),
			r.PeriodEnd.Format(types.DateLayout),
			string(r.Status),
			strconv.FormatFloat(r.TotalHours, 'f', 2, 64),
			formatTime(r.SubmittedAt),
			deref(r.ApprovedByName),
			formatTime(r.ApprovedAt),
			deref(r.RejectionReason),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
