//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/reverside/timetracker/config"
	"github.com/reverside/timetracker/internal/db"
	"github.com/reverside/timetracker/internal/password"
	"github.com/reverside/timetracker/internal/server"
	"github.com/reverside/timetracker/internal/services"
	"github.com/reverside/timetracker/internal/store"
	"github.com/reverside/timetracker/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	serverPort    = 18080
	adminPassword = "admin-pass-123"
)

var (
	baseURL    = fmt.Sprintf("http://localhost:%d", serverPort)
	adminEmail = fmt.Sprintf("admin_%d@example.com", time.Now().UnixNano())
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	cfg := testConfig()
	if err := waitForPostgres(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := db.MigrateUp(db.PostgresURL(cfg.Database)); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := seedAdmin(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed admin: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := server.New(ctx, cfg, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}
	go func() {
		_ = srv.Start()
	}()

	if err := waitForHealth(ctx, baseURL+"/readyz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown(context.Background())
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown(context.Background())
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestTimesheetLifecycle(t *testing.T) {
	adminToken := login(t, adminEmail, adminPassword)

	employeeEmail := fmt.Sprintf("employee_%d@example.com", time.Now().UnixNano())
	status, _ := call(t, http.MethodPost, "/auth/register", adminToken, map[string]any{
		"name":     "E2E Employee",
		"email":    employeeEmail,
		"password": "employee-pass",
		"role":     "employee",
	}, nil)
	require.Equal(t, http.StatusCreated, status)
	employeeToken := login(t, employeeEmail, "employee-pass")

	var created types.Timesheet
	status, body := call(t, http.MethodPost, "/timesheets", employeeToken, map[string]any{
		"period": "2024-03",
		"entries": []map[string]any{
			{"project": "Apollo", "date": "2024-03-04", "hours": 8},
			{"project": "Gemini", "date": "2024-03-05", "hours": 4.5, "description": "design review"},
		},
	}, &created)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, types.StatusDraft, created.Status)
	assert.Equal(t, 12.5, created.TotalHours)

	status, _ = call(t, http.MethodPost, "/timesheets", employeeToken, map[string]any{"period": "2024-03"}, nil)
	assert.Equal(t, http.StatusConflict, status)

	path := fmt.Sprintf("/timesheets/%d", created.ID)
	var updated types.Timesheet
	status, body = call(t, http.MethodPut, path, employeeToken, map[string]any{
		"entries": []map[string]any{{"project": "Apollo", "date": "2024-03-04", "hours": 7}},
	}, &updated)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, 7.0, updated.TotalHours)

	status, _ = call(t, http.MethodPost, path+"/approve", employeeToken, nil, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = call(t, http.MethodPost, path+"/approve", adminToken, nil, nil)
	assert.Equal(t, http.StatusConflict, status, "drafts cannot be decided")

	status, body = call(t, http.MethodPost, path+"/submit", employeeToken, nil, nil)
	require.Equal(t, http.StatusOK, status, body)

	var pending struct {
		Items []types.Timesheet `json:"items"`
	}
	status, _ = call(t, http.MethodGet, "/timesheets/pending?limit=100", adminToken, nil, &pending)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, containsTimesheet(pending.Items, created.ID))

	var approved types.Timesheet
	status, body = call(t, http.MethodPost, path+"/approve", adminToken, nil, &approved)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, types.StatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)

	status, _ = call(t, http.MethodPost, path+"/reject", adminToken, map[string]string{"rejection_reason": "late"}, nil)
	assert.Equal(t, http.StatusConflict, status)

	var detail services.TimesheetWithEntries
	status, _ = call(t, http.MethodGet, path, employeeToken, nil, &detail)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "E2E Employee", detail.UserName)
	require.Len(t, detail.Entries, 1)

	status, _ = call(t, http.MethodGet, "/stats/projects?start_date=2024-03-01&end_date=2024-03-31", employeeToken, nil, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestReportExport(t *testing.T) {
	adminToken := login(t, adminEmail, adminPassword)

	var export services.ReportExport
	status, body := call(t, http.MethodPost, "/reports/exports?start_date=2024-01-01&end_date=2024-12-31", adminToken, nil, &export)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "reports/"+export.Name, export.Key)

	status, body = call(t, http.MethodGet, "/reports/exports/"+export.Name, adminToken, nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "timesheet_id,employee,email")

	status, _ = call(t, http.MethodDelete, "/reports/exports/"+export.Name, adminToken, nil, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = call(t, http.MethodGet, "/reports/exports/../../etc/passwd", adminToken, nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDeactivatedEmployeeIsLockedOut(t *testing.T) {
	adminToken := login(t, adminEmail, adminPassword)

	email := fmt.Sprintf("leaver_%d@example.com", time.Now().UnixNano())
	var user types.User
	status, _ := call(t, http.MethodPost, "/auth/register", adminToken, map[string]any{
		"name": "Leaver", "email": email, "password": "leaver-pass",
	}, &user)
	require.Equal(t, http.StatusCreated, status)
	token := login(t, email, "leaver-pass")

	status, _ = call(t, http.MethodPost, fmt.Sprintf("/employees/%d/toggle-status", user.ID), adminToken, nil, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = call(t, http.MethodGet, "/timesheets", token, nil, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = call(t, http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": "leaver-pass"}, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func testConfig() config.Config {
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "timetracker")
	_ = os.Setenv("DB_PASSWORD", "password")
	_ = os.Setenv("DB_NAME", "timetracker")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("BCRYPT_COST", "4")
	_ = os.Setenv("MQ_BACKEND", "none")
	_ = os.Setenv("STORAGE_BACKEND", "minio")
	_ = os.Setenv("MINIO_ACCESS_KEY", "minioadmin")
	_ = os.Setenv("MINIO_SECRET_KEY", "minioadmin")
	_ = os.Setenv("MINIO_BUCKET", "timetracker")
	return config.LoadConfig()
}

func seedAdmin(ctx context.Context, cfg config.Config) error {
	conn, err := db.Open(ctx, cfg)
	if err != nil {
		return err
	}
	st := store.New(conn)
	defer st.Close()

	users := services.NewUserService(store.NewUserRepository(st), password.NewBcrypt(cfg.Auth.BcryptCost))
	_, err = users.CreateUser(ctx, services.NewUser{
		Name:     "E2E Admin",
		Email:    adminEmail,
		Password: adminPassword,
		Role:     types.RoleAdmin,
	})
	return err
}

func login(t *testing.T, email, pw string) string {
	t.Helper()
	var resp struct {
		Token string `json:"token"`
	}
	status, body := call(t, http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": pw}, &resp)
	require.Equal(t, http.StatusOK, status, body)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

// call sends a JSON request and decodes a 2xx response into out when given.
func call(t *testing.T, method, path, token string, payload, out any) (int, string) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL+path, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.Unmarshal(raw, out), string(raw))
	}
	return resp.StatusCode, string(raw)
}

func containsTimesheet(items []types.Timesheet, id int) bool {
	for _, ts := range items {
		if ts.ID == id {
			return true
		}
	}
	return false
}

func waitForPostgres(ctx context.Context, cfg config.Config) error {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		conn, err := db.Open(ctx, cfg)
		if err == nil {
			return conn.Close()
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status %d", resp.StatusCode)
		case <-ticker.C:
		}
	}
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
