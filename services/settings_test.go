package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"staywatch/config"
)

type fakeSettingsStore struct {
	values map[string]string
	err    error
	calls  int
}

func (f *fakeSettingsStore) GetSettings(ctx context.Context) (map[string]string, error) {
	f.calls++
	return f.values, f.err
}

func settingsConfig() *config.Config {
	return &config.Config{
		Checker: config.CheckerConfig{
			PoolSize:         3,
			Concurrency:      3,
			NavTimeout:       45 * time.Second,
			ContentTimeout:   15 * time.Second,
			MaxRetries:       3,
			RetryDelay:       5 * time.Second,
			BlockedResources: []string{"image", "font"},
			LogRetention:     30 * 24 * time.Hour,
		},
		Scheduler: config.SchedulerConfig{Interval: 10 * time.Minute},
	}
}

func TestRuntimeOverlaysDatabaseValues(t *testing.T) {
	store := &fakeSettingsStore{values: map[string]string{
		"check_interval":    "5m",
		"max_retries":       "7",
		"blocked_resources": "image, media ,stylesheet",
	}}
	svc := NewSettingsService(store, settingsConfig())

	rt := svc.Runtime(context.Background())
	if rt.CheckInterval != 5*time.Minute {
		t.Fatalf("check interval = %s, want 5m from the database", rt.CheckInterval)
	}
	if rt.MaxRetries != 7 {
		t.Fatalf("max retries = %d, want 7", rt.MaxRetries)
	}
	if len(rt.BlockedResources) != 3 || rt.BlockedResources[1] != "media" {
		t.Fatalf("blocked resources = %v", rt.BlockedResources)
	}
	// Keys the database does not carry keep their env defaults.
	if rt.NavTimeout != 45*time.Second {
		t.Fatalf("nav timeout = %s, want the default", rt.NavTimeout)
	}
}

func TestRuntimeCachesWithinTTL(t *testing.T) {
	store := &fakeSettingsStore{}
	svc := NewSettingsService(store, settingsConfig())

	svc.Runtime(context.Background())
	svc.Runtime(context.Background())
	if store.calls != 1 {
		t.Fatalf("store calls = %d, want 1 within the TTL", store.calls)
	}
}

func TestRuntimeKeepsCurrentOnReloadFailure(t *testing.T) {
	store := &fakeSettingsStore{values: map[string]string{"max_retries": "9"}}
	svc := NewSettingsService(store, settingsConfig())

	first := svc.Runtime(context.Background())
	if first.MaxRetries != 9 {
		t.Fatalf("max retries = %d, want 9", first.MaxRetries)
	}

	store.err = errors.New("database down")
	svc.mu.Lock()
	svc.loadedAt = time.Now().Add(-2 * time.Minute)
	svc.mu.Unlock()

	rt := svc.Runtime(context.Background())
	if rt.MaxRetries != 9 {
		t.Fatalf("max retries = %d, failed reload must keep the last values", rt.MaxRetries)
	}
}

func TestRuntimeIgnoresMalformedValues(t *testing.T) {
	store := &fakeSettingsStore{values: map[string]string{
		"max_retries":    "many",
		"check_interval": "-5m",
	}}
	svc := NewSettingsService(store, settingsConfig())

	rt := svc.Runtime(context.Background())
	if rt.MaxRetries != 3 {
		t.Fatalf("max retries = %d, malformed value must keep the default", rt.MaxRetries)
	}
	if rt.CheckInterval != 10*time.Minute {
		t.Fatalf("check interval = %s, negative value must keep the default", rt.CheckInterval)
	}
}

func TestCheckerSettingsProjection(t *testing.T) {
	svc := NewSettingsService(&fakeSettingsStore{}, settingsConfig())
	st := svc.Runtime(context.Background()).CheckerSettings()
	if st.NavTimeout != 45*time.Second || st.MaxRetries != 3 {
		t.Fatalf("projection = %+v", st)
	}
	if len(st.BlockedResources) != 2 {
		t.Fatalf("blocked resources = %v", st.BlockedResources)
	}
}
