package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/reverside/timetracker/internal/storage"
	"github.com/reverside/timetracker/internal/store"
	"github.com/reverside/timetracker/types"
)

// memoryDB backs the timesheet and entry repositories. WithinTx snapshots
// the data and restores it when fn fails.
type memoryDB struct {
	mu         sync.Mutex
	timesheets map[int]types.Timesheet
	entries    map[int]types.TimeEntry
	users      map[int]types.User
	nextID     int

	failCreateBatch error
}

func newMemoryDB() *memoryDB {
	return &memoryDB{
		timesheets: map[int]types.Timesheet{},
		entries:    map[int]types.TimeEntry{},
		users:      map[int]types.User{},
	}
}

func (m *memoryDB) id() int {
	m.nextID++
	return m.nextID
}

func (m *memoryDB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	sheets := make(map[int]types.Timesheet, len(m.timesheets))
	for k, v := range m.timesheets {
		sheets[k] = v
	}
	entries := make(map[int]types.TimeEntry, len(m.entries))
	for k, v := range m.entries {
		entries[k] = v
	}
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.timesheets = sheets
		m.entries = entries
		m.mu.Unlock()
		return err
	}
	return nil
}

type timesheetRepo struct{ db *memoryDB }

func (r timesheetRepo) GetByID(_ context.Context, id int) (types.Timesheet, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	ts, ok := r.db.timesheets[id]
	if !ok {
		return types.Timesheet{}, store.ErrNotFound
	}
	return ts, nil
}

func (r timesheetRepo) FindByUserAndPeriod(_ context.Context, userID int, key string) (types.Timesheet, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, ts := range r.db.timesheets {
		if ts.UserID == userID && ts.PeriodKey == key {
			return ts, nil
		}
	}
	return types.Timesheet{}, store.ErrNotFound
}

func (r timesheetRepo) filter(keep func(types.Timesheet) bool) []types.Timesheet {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := []types.Timesheet{}
	for _, ts := range r.db.timesheets {
		if keep(ts) {
			out = append(out, ts)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PeriodStart.Equal(out[j].PeriodStart) {
			return out[i].PeriodStart.After(out[j].PeriodStart)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r timesheetRepo) ListByUser(_ context.Context, userID, offset, limit int) ([]types.Timesheet, error) {
	all := r.filter(func(ts types.Timesheet) bool { return ts.UserID == userID })
	if offset >= len(all) {
		return []types.Timesheet{}, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], nil
}

func (r timesheetRepo) CountByUser(_ context.Context, userID int) (int, error) {
	return len(r.filter(func(ts types.Timesheet) bool { return ts.UserID == userID })), nil
}

func (r timesheetRepo) ListByStatus(_ context.Context, status types.TimesheetStatus) ([]types.Timesheet, error) {
	return r.filter(func(ts types.Timesheet) bool { return ts.Status == status }), nil
}

func (r timesheetRepo) ListByPeriod(_ context.Context, key string) ([]types.Timesheet, error) {
	return r.filter(func(ts types.Timesheet) bool { return ts.PeriodKey == key }), nil
}

func (r timesheetRepo) Create(_ context.Context, ts types.Timesheet) (types.Timesheet, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.timesheets {
		if existing.UserID == ts.UserID && existing.PeriodKey == ts.PeriodKey {
			return types.Timesheet{}, store.ErrConflict
		}
	}
	ts.ID = r.db.id()
	ts.CreatedAt = time.Now()
	ts.UpdatedAt = ts.CreatedAt
	r.db.timesheets[ts.ID] = ts
	return ts, nil
}

// guarded applies mutate when the stored status equals from, mirroring the
// conditional UPDATE of the real repository.
func (r timesheetRepo) guarded(id int, from types.TimesheetStatus, mutate func(*types.Timesheet)) (types.Timesheet, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	ts, ok := r.db.timesheets[id]
	if !ok || ts.Status != from {
		return types.Timesheet{}, store.ErrNotFound
	}
	mutate(&ts)
	r.db.timesheets[id] = ts
	return ts, nil
}

func (r timesheetRepo) Submit(_ context.Context, id int, at time.Time) (types.Timesheet, error) {
	return r.guarded(id, types.StatusDraft, func(ts *types.Timesheet) {
		ts.Status = types.StatusSubmitted
		ts.SubmittedAt = &at
	})
}

func (r timesheetRepo) Approve(_ context.Context, id, approverID int, at time.Time) (types.Timesheet, error) {
	return r.guarded(id, types.StatusSubmitted, func(ts *types.Timesheet) {
		ts.Status = types.StatusApproved
		ts.ApprovedBy = &approverID
		ts.ApprovedAt = &at
		ts.RejectionReason = nil
	})
}

func (r timesheetRepo) Reject(_ context.Context, id, approverID int, reason *string, at time.Time) (types.Timesheet, error) {
	return r.guarded(id, types.StatusSubmitted, func(ts *types.Timesheet) {
		ts.Status = types.StatusRejected
		ts.ApprovedBy = &approverID
		ts.ApprovedAt = &at
		ts.RejectionReason = reason
	})
}

func (r timesheetRepo) SetTotalHours(_ context.Context, id int, hours float64) (types.Timesheet, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	ts, ok := r.db.timesheets[id]
	if !ok {
		return types.Timesheet{}, store.ErrNotFound
	}
	ts.TotalHours = hours
	r.db.timesheets[id] = ts
	return ts, nil
}

func (r timesheetRepo) GetDetail(ctx context.Context, id int) (types.TimesheetDetail, error) {
	ts, err := r.GetByID(ctx, id)
	if err != nil {
		return types.TimesheetDetail{}, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	detail := types.TimesheetDetail{Timesheet: ts}
	if u, ok := r.db.users[ts.UserID]; ok {
		detail.UserName, detail.UserEmail = u.Name, u.Email
	}
	if ts.ApprovedBy != nil {
		if u, ok := r.db.users[*ts.ApprovedBy]; ok {
			name := u.Name
			detail.ApprovedByName = &name
		}
	}
	return detail, nil
}

func (r timesheetRepo) ListDetailsInRange(ctx context.Context, from, to time.Time) ([]types.TimesheetDetail, error) {
	sheets := r.filter(func(ts types.Timesheet) bool {
		return !ts.PeriodStart.Before(from) && !ts.PeriodStart.After(to)
	})
	out := make([]types.TimesheetDetail, 0, len(sheets))
	for i := len(sheets) - 1; i >= 0; i-- {
		d, err := r.GetDetail(ctx, sheets[i].ID)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (r timesheetRepo) Stats(context.Context) ([]types.StatusStats, error) {
	byStatus := map[types.TimesheetStatus]*types.StatusStats{}
	for _, ts := range r.filter(func(types.Timesheet) bool { return true }) {
		s, ok := byStatus[ts.Status]
		if !ok {
			s = &types.StatusStats{Status: ts.Status}
			byStatus[ts.Status] = s
		}
		s.Count++
		s.TotalHours += ts.TotalHours
	}
	out := []types.StatusStats{}
	for _, s := range byStatus {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

func (r timesheetRepo) PeriodStats(_ context.Context, from, to time.Time) ([]types.PeriodStats, error) {
	byKey := map[string]*types.PeriodStats{}
	for _, ts := range r.filter(func(ts types.Timesheet) bool {
		return !ts.PeriodStart.Before(from) && !ts.PeriodStart.After(to)
	}) {
		s, ok := byKey[ts.PeriodKey]
		if !ok {
			s = &types.PeriodStats{PeriodKey: ts.PeriodKey, PeriodStart: ts.PeriodStart}
			byKey[ts.PeriodKey] = s
		}
		s.TimesheetCount++
		s.TotalHours += ts.TotalHours
		s.AvgHours = s.TotalHours / float64(s.TimesheetCount)
	}
	out := []types.PeriodStats{}
	for _, s := range byKey {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart.After(out[j].PeriodStart) })
	return out, nil
}

type entryRepo struct{ db *memoryDB }

func (r entryRepo) ListByTimesheet(_ context.Context, timesheetID int) ([]types.TimeEntry, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := []types.TimeEntry{}
	for _, e := range r.db.entries {
		if e.TimesheetID == timesheetID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r entryRepo) TotalHours(ctx context.Context, timesheetID int) (float64, error) {
	entries, _ := r.ListByTimesheet(ctx, timesheetID)
	var total float64
	for _, e := range entries {
		total += e.Hours
	}
	return total, nil
}

func (r entryRepo) userEntries(userID int, from, to time.Time) []types.TimeEntry {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := []types.TimeEntry{}
	for _, e := range r.db.entries {
		ts := r.db.timesheets[e.TimesheetID]
		if ts.UserID == userID && !e.Date.Before(from) && !e.Date.After(to) {
			out = append(out, e)
		}
	}
	return out
}

func (r entryRepo) ProjectStats(_ context.Context, userID int, from, to time.Time) ([]types.ProjectStats, error) {
	byProject := map[string]*types.ProjectStats{}
	for _, e := range r.userEntries(userID, from, to) {
		s, ok := byProject[e.Project]
		if !ok {
			s = &types.ProjectStats{Project: e.Project}
			byProject[e.Project] = s
		}
		s.EntryCount++
		s.TotalHours += e.Hours
		s.AvgHoursPerEntry = s.TotalHours / float64(s.EntryCount)
	}
	out := []types.ProjectStats{}
	for _, s := range byProject {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalHours > out[j].TotalHours })
	return out, nil
}

func (r entryRepo) DailyTotals(_ context.Context, userID int, from, to time.Time) ([]types.DailyTotal, error) {
	byDay := map[time.Time]*types.DailyTotal{}
	for _, e := range r.userEntries(userID, from, to) {
		d, ok := byDay[e.Date]
		if !ok {
			d = &types.DailyTotal{Date: e.Date}
			byDay[e.Date] = d
		}
		d.EntryCount++
		d.TotalHours += e.Hours
	}
	out := []types.DailyTotal{}
	for _, d := range byDay {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r entryRepo) CreateBatch(ctx context.Context, timesheetID int, entries []types.TimeEntry) ([]types.TimeEntry, error) {
	r.db.mu.Lock()
	if r.db.failCreateBatch != nil {
		r.db.mu.Unlock()
		return nil, r.db.failCreateBatch
	}
	for _, e := range entries {
		e.ID = r.db.id()
		e.TimesheetID = timesheetID
		r.db.entries[e.ID] = e
	}
	r.db.mu.Unlock()
	return r.ListByTimesheet(ctx, timesheetID)
}

func (r entryRepo) DeleteByTimesheet(_ context.Context, timesheetID int) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n := 0
	for id, e := range r.db.entries {
		if e.TimesheetID == timesheetID {
			delete(r.db.entries, id)
			n++
		}
	}
	return n, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []types.TimesheetEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event types.TimesheetEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

type userRepo struct{ db *memoryDB }

func (r userRepo) GetByID(_ context.Context, id int) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, u := range r.db.users {
		if u.Email == store.NormalizeEmail(email) {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r userRepo) Create(_ context.Context, user types.User) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, u := range r.db.users {
		if u.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	user.ID = r.db.id()
	r.db.users[user.ID] = user
	return user, nil
}

func (r userRepo) SetActive(_ context.Context, id int, active bool) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	u.IsActive = active
	r.db.users[id] = u
	return u, nil
}

func (r userRepo) list(keep func(types.User) bool) []types.User {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := []types.User{}
	for _, u := range r.db.users {
		if keep(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r userRepo) ListByRole(_ context.Context, role types.Role) ([]types.User, error) {
	return r.list(func(u types.User) bool { return u.Role == role }), nil
}

func (r userRepo) ListActive(context.Context) ([]types.User, error) {
	return r.list(func(u types.User) bool { return u.IsActive }), nil
}

// plainHasher prefixes the plaintext and counts verifications.
type plainHasher struct {
	mu       sync.Mutex
	verifies int
}

func (h *plainHasher) Hash(plaintext string) (string, error) {
	return "digest:" + plaintext, nil
}

func (h *plainHasher) Verify(digest, plaintext string) (bool, error) {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	if len(digest) < len("digest:") || digest[:len("digest:")] != "digest:" {
		return false, errors.New("malformed digest")
	}
	return digest == "digest:"+plaintext, nil
}

type memoryReports struct {
	objects map[string][]byte
	err     error
}

func (m *memoryReports) PutBytes(_ context.Context, name string, data []byte, contentType string) (storage.Object, error) {
	if m.err != nil {
		return storage.Object{}, m.err
	}
	m.objects[name] = append([]byte(nil), data...)
	return storage.Object{Bucket: "bucket", Key: "reports/" + name, Size: int64(len(data)), ContentType: contentType}, nil
}

func (m *memoryReports) Open(_ context.Context, name string) (io.ReadCloser, error) {
	data, ok := m.objects[name]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryReports) Delete(_ context.Context, name string) error {
	if _, ok := m.objects[name]; !ok {
		return storage.ErrObjectNotFound
	}
	delete(m.objects, name)
	return nil
}
