package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/reverside/timetracker/internal/services"
	"github.com/reverside/timetracker/types"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type stubUsers struct {
	users     map[int]types.User
	passwords map[string]string
	created   []services.NewUser
	createErr error
}

func newStubUsers(users ...types.User) *stubUsers {
	s := &stubUsers{users: map[int]types.User{}, passwords: map[string]string{}}
	for _, u := range users {
		s.users[u.ID] = u
		s.passwords[u.Email] = "secret-" + u.Name
	}
	return s
}

func (s *stubUsers) CreateUser(_ context.Context, in services.NewUser) (types.User, error) {
	if s.createErr != nil {
		return types.User{}, s.createErr
	}
	s.created = append(s.created, in)
	u := types.User{ID: 100 + len(s.created), Name: in.Name, Email: in.Email, Role: in.Role, IsActive: true}
	s.users[u.ID] = u
	return u, nil
}

func (s *stubUsers) ValidatePassword(_ context.Context, email, plaintext string) (*types.User, error) {
	for _, u := range s.users {
		if u.Email == email && s.passwords[email] == plaintext {
			return &u, nil
		}
	}
	return nil, nil
}

func (s *stubUsers) GetByID(_ context.Context, id int) (types.User, error) {
	u, ok := s.users[id]
	if !ok {
		return types.User{}, services.ErrNotFound
	}
	return u, nil
}

func (s *stubUsers) ToggleActive(_ context.Context, id int) (types.User, error) {
	u, ok := s.users[id]
	if !ok || u.Role != types.RoleEmployee {
		return types.User{}, services.ErrNotFound
	}
	u.IsActive = !u.IsActive
	s.users[id] = u
	return u, nil
}

func (s *stubUsers) ListEmployees(context.Context) ([]types.User, error) {
	var out []types.User
	for _, u := range s.users {
		if u.Role == types.RoleEmployee {
			out = append(out, u)
		}
	}
	return out, nil
}

// stubTimesheets records the arguments of the last call and answers with
// canned values.
type stubTimesheets struct {
	sheets map[int]types.Timesheet
	err    error

	lastPeriod  string
	lastEntries []services.EntryInput
	lastNotes   *string
	lastReason  *string
	lastUser    int
	lastOffset  int
	lastLimit   int
	lastStatus  types.TimesheetStatus
	lastFrom    time.Time
	lastTo      time.Time
}

func newStubTimesheets(sheets ...types.Timesheet) *stubTimesheets {
	s := &stubTimesheets{sheets: map[int]types.Timesheet{}}
	for _, ts := range sheets {
		s.sheets[ts.ID] = ts
	}
	return s
}

func (s *stubTimesheets) CreateTimesheet(_ context.Context, userID int, period string, entries []services.EntryInput, notes *string) (types.Timesheet, error) {
	s.lastUser, s.lastPeriod, s.lastEntries, s.lastNotes = userID, period, entries, notes
	if s.err != nil {
		return types.Timesheet{}, s.err
	}
	return types.Timesheet{ID: 50, UserID: userID, PeriodKey: period, Status: types.StatusDraft}, nil
}

func (s *stubTimesheets) UpdateTimesheet(_ context.Context, id, userID int, entries []services.EntryInput) (types.Timesheet, error) {
	s.lastUser, s.lastEntries = userID, entries
	if s.err != nil {
		return types.Timesheet{}, s.err
	}
	return s.sheets[id], nil
}

func (s *stubTimesheets) SubmitTimesheet(_ context.Context, id, userID int) (types.Timesheet, error) {
	return s.decide(id, userID, types.StatusSubmitted)
}

func (s *stubTimesheets) ApproveTimesheet(_ context.Context, id, approverID int) (types.Timesheet, error) {
	return s.decide(id, approverID, types.StatusApproved)
}

func (s *stubTimesheets) RejectTimesheet(_ context.Context, id, approverID int, reason *string) (types.Timesheet, error) {
	s.lastReason = reason
	return s.decide(id, approverID, types.StatusRejected)
}

func (s *stubTimesheets) decide(id, actor int, status types.TimesheetStatus) (types.Timesheet, error) {
	s.lastUser = actor
	if s.err != nil {
		return types.Timesheet{}, s.err
	}
	ts, ok := s.sheets[id]
	if !ok {
		return types.Timesheet{}, services.ErrNotFound
	}
	ts.Status = status
	s.sheets[id] = ts
	return ts, nil
}

func (s *stubTimesheets) GetTimesheetDetail(_ context.Context, id int) (services.TimesheetWithEntries, error) {
	ts, ok := s.sheets[id]
	if !ok {
		return services.TimesheetWithEntries{}, services.ErrNotFound
	}
	return services.TimesheetWithEntries{
		TimesheetDetail: types.TimesheetDetail{Timesheet: ts, UserName: "Owner"},
		Entries:         []types.TimeEntry{{ID: 1, TimesheetID: id, Project: "Apollo", Hours: 8}},
	}, nil
}

func (s *stubTimesheets) ListByUser(_ context.Context, userID, offset, limit int) (services.TimesheetPage, error) {
	s.lastUser, s.lastOffset, s.lastLimit = userID, offset, limit
	var items []types.Timesheet
	for _, ts := range s.sheets {
		if ts.UserID == userID {
			items = append(items, ts)
		}
	}
	return services.TimesheetPage{Items: items, Total: len(items)}, s.err
}

func (s *stubTimesheets) ListByStatus(_ context.Context, status types.TimesheetStatus) ([]types.Timesheet, error) {
	s.lastStatus = status
	return s.filter(func(ts types.Timesheet) bool { return ts.Status == status }), s.err
}

func (s *stubTimesheets) ListPending(context.Context) ([]types.Timesheet, error) {
	return s.filter(func(ts types.Timesheet) bool { return ts.Status == types.StatusSubmitted }), s.err
}

func (s *stubTimesheets) ListByPeriod(_ context.Context, period string) ([]types.Timesheet, error) {
	s.lastPeriod = period
	return s.filter(func(ts types.Timesheet) bool { return ts.PeriodKey == period }), s.err
}

func (s *stubTimesheets) filter(keep func(types.Timesheet) bool) []types.Timesheet {
	var out []types.Timesheet
	for id := 1; id <= 100; id++ {
		if ts, ok := s.sheets[id]; ok && keep(ts) {
			out = append(out, ts)
		}
	}
	return out
}

func (s *stubTimesheets) Stats(context.Context) ([]types.StatusStats, error) {
	return []types.StatusStats{{Status: types.StatusDraft, Count: len(s.sheets)}}, s.err
}

func (s *stubTimesheets) PeriodStats(_ context.Context, from, to time.Time) ([]types.PeriodStats, error) {
	s.lastFrom, s.lastTo = from, to
	return []types.PeriodStats{}, s.err
}

func (s *stubTimesheets) ProjectStats(_ context.Context, userID int, from, to time.Time) ([]types.ProjectStats, error) {
	s.lastUser, s.lastFrom, s.lastTo = userID, from, to
	return []types.ProjectStats{{Project: "Apollo", TotalHours: 8}}, s.err
}

func (s *stubTimesheets) DailyTotals(_ context.Context, userID int, from, to time.Time) ([]types.DailyTotal, error) {
	s.lastUser, s.lastFrom, s.lastTo = userID, from, to
	return []types.DailyTotal{}, s.err
}

type stubReports struct {
	objects  map[string]string
	err      error
	lastFrom time.Time
	lastTo   time.Time
}

func (s *stubReports) ExportTimesheets(_ context.Context, from, to time.Time) (services.ReportExport, error) {
	s.lastFrom, s.lastTo = from, to
	if s.err != nil {
		return services.ReportExport{}, s.err
	}
	return services.ReportExport{Name: "timesheets.csv", Bucket: "reports", Key: "reports/timesheets.csv", Rows: 2}, nil
}

func (s *stubReports) OpenExport(_ context.Context, name string) (io.ReadCloser, error) {
	data, ok := s.objects[name]
	if !ok {
		return nil, services.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func (s *stubReports) DeleteExport(_ context.Context, name string) error {
	if _, ok := s.objects[name]; !ok {
		return services.ErrNotFound
	}
	delete(s.objects, name)
	return nil
}

var (
	ada   = types.User{ID: 1, Name: "Ada", Email: "ada@example.com", Role: types.RoleEmployee, IsActive: true}
	linus = types.User{ID: 2, Name: "Linus", Email: "linus@example.com", Role: types.RoleEmployee, IsActive: true}
	grace = types.User{ID: 3, Name: "Grace", Email: "grace@example.com", Role: types.RoleAdmin, IsActive: true}
)

var fixedNow = time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)

type harness struct {
	router     http.Handler
	users      *stubUsers
	timesheets *stubTimesheets
	reports    *stubReports
}

func newHarness(t *testing.T, sheets ...types.Timesheet) *harness {
	t.Helper()
	h := &harness{
		users:      newStubUsers(ada, linus, grace),
		timesheets: newStubTimesheets(sheets...),
		reports:    &stubReports{objects: map[string]string{}},
	}

	auth := NewAuthHandler(h.users, testSecret, time.Hour)
	timesheetHandler := NewTimesheetHandler(h.timesheets)
	timesheetHandler.now = func() time.Time { return fixedNow }
	reportHandler := NewReportHandler(h.reports)
	reportHandler.now = func() time.Time { return fixedNow }

	r := chi.NewRouter()
	r.Get("/healthz", Healthz)
	r.Route("/auth", func(r chi.Router) { AuthRouter(r, auth) })
	r.Route("/timesheets", func(r chi.Router) { TimesheetRouter(r, timesheetHandler, auth.RequireAuth) })
	r.Route("/stats", func(r chi.Router) { StatsRouter(r, timesheetHandler, auth.RequireAuth) })
	r.Route("/employees", func(r chi.Router) { EmployeeRouter(r, NewEmployeeHandler(h.users), auth.RequireAuth) })
	r.Route("/reports", func(r chi.Router) { ReportRouter(r, reportHandler, auth.RequireAuth) })
	h.router = r
	return h
}

func tokenFor(t *testing.T, userID int) string {
	t.Helper()
	token, _, err := issueToken(userID, []byte(testSecret), time.Hour)
	require.NoError(t, err)
	return token
}

// do sends a request as userID; zero sends it unauthenticated.
func (h *harness) do(t *testing.T, method, path string, userID int, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if userID > 0 {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, userID))
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}
