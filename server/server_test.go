package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"staywatch/browser"
	"staywatch/config"
	"staywatch/models"
	"staywatch/processor"
	"staywatch/selectors"
	"staywatch/services"
	"staywatch/storage"
)

type emptyStore struct{}

func (emptyStore) GetDueAccommodations(ctx context.Context, interval time.Duration, limit int) ([]models.Accommodation, error) {
	return nil, nil
}

func (emptyStore) UpdateAccommodationResult(ctx context.Context, id uuid.UUID, status models.CheckStatus, price *string, checkedAt time.Time) error {
	return nil
}

func (emptyStore) CreateCheckLog(ctx context.Context, cl *models.CheckLog) error { return nil }

func (emptyStore) MarkCheckLogNotified(ctx context.Context, id uuid.UUID) error { return nil }

func (emptyStore) GetUserWithCredential(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return nil, nil
}

func (emptyStore) CreateCheckRun(ctx context.Context, run *models.CheckRun) error { return nil }

func (emptyStore) UpdateCheckRun(ctx context.Context, run *models.CheckRun) error { return nil }

func (emptyStore) GetSelectorConfigs(ctx context.Context, p models.Platform) ([]models.SelectorConfig, error) {
	return nil, nil
}

func (emptyStore) GetPatterns(ctx context.Context, p models.Platform) ([]models.Pattern, error) {
	return nil, nil
}

func (emptyStore) GetSettings(ctx context.Context) (map[string]string, error) { return nil, nil }

type noPageInstance struct{}

func (noPageInstance) NewPage() (browser.Page, error) { return nil, nil }
func (noPageInstance) IsConnected() bool              { return true }
func (noPageInstance) Close() error                   { return nil }

func newTestServer(t *testing.T) (*Server, *storage.SQLiteStore) {
	t.Helper()
	store := emptyStore{}
	pool := browser.NewPool(1, func() (browser.Instance, error) { return noPageInstance{}, nil })
	cache := selectors.NewCache(store, nil, time.Minute, nil)
	cfg := &config.Config{
		Checker:   config.CheckerConfig{PoolSize: 1, Concurrency: 1},
		Scheduler: config.SchedulerConfig{Interval: 10 * time.Minute},
	}
	settings := services.NewSettingsService(store, cfg)
	proc := processor.New(store, nil, pool, cache, settings, nil)

	ops, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "ops.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { ops.Close() })

	return New(":0", "test-token", proc, cache, ops), ops
}

func doRequest(t *testing.T, s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("X-Control-Token", token)
	}
	rec := httptest.NewRecorder()
	s.httpSrv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthzIsOpen(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
}

func TestMetricsIsOpen(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/cycle/snapshot", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/cycle/snapshot", "wrong", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/cycle/snapshot", "test-token", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token status = %d, want 200", rec.Code)
	}
}

func TestSnapshotShape(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/cycle/snapshot", "test-token", "")

	var snap models.CycleSnapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Running || snap.Paused {
		t.Fatalf("idle snapshot = %+v", snap)
	}
}

func TestPauseAndResume(t *testing.T) {
	s, _ := newTestServer(t)

	doRequest(t, s, http.MethodPost, "/api/cycle/pause", "test-token", "")
	rec := doRequest(t, s, http.MethodGet, "/api/cycle/snapshot", "test-token", "")
	var snap models.CycleSnapshot
	json.NewDecoder(rec.Body).Decode(&snap)
	if !snap.Paused {
		t.Fatalf("snapshot not paused after pause endpoint")
	}

	doRequest(t, s, http.MethodPost, "/api/cycle/resume", "test-token", "")
	rec = doRequest(t, s, http.MethodGet, "/api/cycle/snapshot", "test-token", "")
	json.NewDecoder(rec.Body).Decode(&snap)
	if snap.Paused {
		t.Fatalf("snapshot still paused after resume endpoint")
	}
}

func TestInvalidateSelectorsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/selectors/invalidate", "test-token", `{"platform":"AIRBNB"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("invalidate status = %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Invalidated []models.Platform `json:"invalidated"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Invalidated) != 1 || resp.Invalidated[0] != models.PlatformAirbnb {
		t.Fatalf("invalidated = %v", resp.Invalidated)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/selectors/invalidate", "test-token", `{"platform":"BOOKING"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown platform status = %d, want 400", rec.Code)
	}
}

func TestEnqueueCommandEndpoint(t *testing.T) {
	s, ops := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/commands", "test-token", `{"command":"check_now"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("enqueue status = %d: %s", rec.Code, rec.Body)
	}

	cmds, err := ops.GetPendingCommands()
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	if len(cmds) != 1 || cmds[0].Command != models.CmdCheckNow {
		t.Fatalf("pending = %+v", cmds)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/commands", "test-token", `{"command":"reboot"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown command status = %d, want 400", rec.Code)
	}
}
