package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
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

// stubStore backs the processor, the selector cache, and the settings
// service in one fake.
type stubStore struct {
	mu   sync.Mutex
	due  []models.Accommodation
	logs []models.CheckLog
}

func (s *stubStore) GetDueAccommodations(ctx context.Context, interval time.Duration, limit int) ([]models.Accommodation, error) {
	return s.due, nil
}

func (s *stubStore) UpdateAccommodationResult(ctx context.Context, id uuid.UUID, status models.CheckStatus, price *string, checkedAt time.Time) error {
	return nil
}

func (s *stubStore) CreateCheckLog(ctx context.Context, cl *models.CheckLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cl.ID == uuid.Nil {
		cl.ID = uuid.New()
	}
	s.logs = append(s.logs, *cl)
	return nil
}

func (s *stubStore) MarkCheckLogNotified(ctx context.Context, id uuid.UUID) error { return nil }

func (s *stubStore) GetUserWithCredential(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return nil, nil
}

func (s *stubStore) CreateCheckRun(ctx context.Context, run *models.CheckRun) error { return nil }
func (s *stubStore) UpdateCheckRun(ctx context.Context, run *models.CheckRun) error { return nil }

func (s *stubStore) GetSelectorConfigs(ctx context.Context, p models.Platform) ([]models.SelectorConfig, error) {
	return []models.SelectorConfig{{
		Platform:  p,
		Category:  models.CategoryAvailability,
		Name:      "reserve-button",
		Selector:  "[data-testid='book-it-default']",
		Extractor: "exists",
		Active:    true,
	}}, nil
}

func (s *stubStore) GetPatterns(ctx context.Context, p models.Platform) ([]models.Pattern, error) {
	return nil, nil
}

func (s *stubStore) GetSettings(ctx context.Context) (map[string]string, error) { return nil, nil }

func (s *stubStore) checkLogs() []models.CheckLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CheckLog, len(s.logs))
	copy(out, s.logs)
	return out
}

// slowInstance makes every page open take a while before failing, so a
// check stays in flight long enough for shutdown to overlap it.
type slowInstance struct{ delay time.Duration }

func (s *slowInstance) NewPage() (browser.Page, error) {
	time.Sleep(s.delay)
	return nil, errors.New("browser went away")
}
func (s *slowInstance) IsConnected() bool { return true }
func (s *slowInstance) Close() error      { return nil }

type stubTrigger struct{ count int }

func (s *stubTrigger) Trigger() { s.count++ }

func testScheduler(t *testing.T, store *stubStore, pageDelay time.Duration) (*Scheduler, *processor.Processor) {
	t.Helper()

	cfg := &config.Config{
		Checker: config.CheckerConfig{
			PoolSize:       1,
			Concurrency:    1,
			NavTimeout:     time.Second,
			ContentTimeout: time.Second,
			MaxRetries:     1,
			RetryDelay:     time.Millisecond,
		},
		Scheduler: config.SchedulerConfig{ShutdownTimeout: 5 * time.Second},
	}

	pool := browser.NewPool(1, func() (browser.Instance, error) {
		return &slowInstance{delay: pageDelay}, nil
	})
	if err := pool.Init(); err != nil {
		t.Fatalf("pool init: %v", err)
	}
	t.Cleanup(pool.Close)

	cache := selectors.NewCache(store, nil, selectors.DefaultTTL, nil)
	settings := services.NewSettingsService(store, cfg)
	proc := processor.New(store, nil, pool, cache, settings, nil)

	ops, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "ops.db"))
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	t.Cleanup(func() { ops.Close() })

	return New(cfg, proc, cache, ops), proc
}

func dueAccommodation() models.Accommodation {
	return models.Accommodation{
		ID:       uuid.New(),
		UserID:   uuid.New(),
		Platform: models.PlatformAirbnb,
		URL:      "https://www.airbnb.com/rooms/123",
		CheckIn:  time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		CheckOut: time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC),
		Guests:   2,
		Active:   true,
	}
}

// A check caught mid-flight by Stop must finish and land in the store
// before Stop returns.
func TestStopDrainsInFlightCheck(t *testing.T) {
	store := &stubStore{}
	store.due = []models.Accommodation{dueAccommodation()}

	sched, proc := testScheduler(t, store, 250*time.Millisecond)
	ctx := context.Background()
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	go sched.TriggerNow(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for !proc.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatalf("cycle never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	start := time.Now()
	sched.Stop()
	waited := time.Since(start)

	if proc.IsRunning() {
		t.Fatalf("Stop returned with the cycle still running")
	}
	logs := store.checkLogs()
	if len(logs) != 1 {
		t.Fatalf("check logs = %d, want the in-flight outcome persisted before exit", len(logs))
	}
	if logs[0].Status != models.StatusError {
		t.Fatalf("drained check status = %s, want %s", logs[0].Status, models.StatusError)
	}
	if waited > 3*time.Second {
		t.Fatalf("Stop took %s draining a 250ms check", waited)
	}
}

func TestHandleCommandDispatch(t *testing.T) {
	store := &stubStore{}
	sched, proc := testScheduler(t, store, time.Millisecond)
	ctx := context.Background()

	if err := sched.handleCommand(ctx, &models.Command{Command: models.CmdPause}); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !proc.Snapshot().Paused {
		t.Fatalf("pause command did not pause the processor")
	}

	if err := sched.handleCommand(ctx, &models.Command{Command: models.CmdResume}); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if proc.Snapshot().Paused {
		t.Fatalf("resume command left the processor paused")
	}

	retention := &stubTrigger{}
	sched.SetWorkers(retention)
	if err := sched.handleCommand(ctx, &models.Command{Command: models.CmdPruneLogs}); err != nil {
		t.Fatalf("prune_logs: %v", err)
	}
	if retention.count != 1 {
		t.Fatalf("retention triggers = %d, want 1", retention.count)
	}

	if err := sched.handleCommand(ctx, &models.Command{Command: "reboot"}); err == nil {
		t.Fatalf("unknown command must return an error")
	}
}

func TestInvalidateCommandClearsSelectorCache(t *testing.T) {
	store := &stubStore{}
	sched, _ := testScheduler(t, store, time.Millisecond)
	ctx := context.Background()

	if _, err := sched.selectors.Load(ctx, models.PlatformAirbnb, true); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sched.selectors.Stale(models.PlatformAirbnb) {
		t.Fatalf("entry stale right after load")
	}

	cmd := &models.Command{
		Command: models.CmdInvalidateSelectors,
		Params:  json.RawMessage(`{"platform":"AIRBNB"}`),
	}
	if err := sched.handleCommand(ctx, cmd); err != nil {
		t.Fatalf("invalidate_selectors: %v", err)
	}
	if !sched.selectors.Stale(models.PlatformAirbnb) {
		t.Fatalf("invalidate command left the cached entry in place")
	}
}
