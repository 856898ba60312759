package services

import (
	"context"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"staywatch/checker"
	"staywatch/config"
)

const settingsTTL = 1 * time.Minute

// Runtime is the effective worker configuration: env defaults overlaid
// with whatever operators stored in the settings table. Reloaded on a
// short TTL so changes apply without a restart.
type Runtime struct {
	CheckInterval     time.Duration
	WorkerConcurrency int
	BrowserPoolSize   int
	NavTimeout        time.Duration
	ContentTimeout    time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	BlockedResources  []string
	LogRetention      time.Duration
}

// CheckerSettings projects the runtime config onto what a single check needs.
func (r Runtime) CheckerSettings() checker.Settings {
	return checker.Settings{
		NavTimeout:       r.NavTimeout,
		ContentTimeout:   r.ContentTimeout,
		MaxRetries:       r.MaxRetries,
		RetryDelay:       r.RetryDelay,
		BlockedResources: r.BlockedResources,
	}
}

// SettingsStore is the slice of the database the settings service reads.
type SettingsStore interface {
	GetSettings(ctx context.Context) (map[string]string, error)
}

type SettingsService struct {
	store    SettingsStore
	defaults Runtime

	mu       sync.RWMutex
	current  Runtime
	loadedAt time.Time
}

func NewSettingsService(store SettingsStore, cfg *config.Config) *SettingsService {
	defaults := Runtime{
		CheckInterval:     cfg.Scheduler.Interval,
		WorkerConcurrency: cfg.Checker.Concurrency,
		BrowserPoolSize:   cfg.Checker.PoolSize,
		NavTimeout:        cfg.Checker.NavTimeout,
		ContentTimeout:    cfg.Checker.ContentTimeout,
		MaxRetries:        cfg.Checker.MaxRetries,
		RetryDelay:        cfg.Checker.RetryDelay,
		BlockedResources:  cfg.Checker.BlockedResources,
		LogRetention:      cfg.Checker.LogRetention,
	}
	return &SettingsService{
		store:    store,
		defaults: defaults,
		current:  defaults,
	}
}

// Runtime returns the effective configuration, refreshing from the
// database when the cached copy is older than the TTL. A failed refresh
// keeps serving the last known values.
func (s *SettingsService) Runtime(ctx context.Context) Runtime {
	s.mu.RLock()
	fresh := time.Since(s.loadedAt) < settingsTTL
	current := s.current
	s.mu.RUnlock()

	if fresh {
		return current
	}
	return s.reload(ctx)
}

func (s *SettingsService) reload(ctx context.Context) Runtime {
	values, err := s.store.GetSettings(ctx)
	if err != nil {
		log.Printf("Settings: reload failed, keeping current values: %v", err)
		s.mu.Lock()
		s.loadedAt = time.Now()
		current := s.current
		s.mu.Unlock()
		return current
	}

	rt := s.defaults
	applyDuration(values, "check_interval", &rt.CheckInterval)
	applyInt(values, "worker_concurrency", &rt.WorkerConcurrency)
	applyInt(values, "browser_pool_size", &rt.BrowserPoolSize)
	applyDuration(values, "nav_timeout", &rt.NavTimeout)
	applyDuration(values, "content_timeout", &rt.ContentTimeout)
	applyInt(values, "max_retries", &rt.MaxRetries)
	applyDuration(values, "retry_delay", &rt.RetryDelay)
	applyDuration(values, "checklog_retention", &rt.LogRetention)
	if v, ok := values["blocked_resources"]; ok && v != "" {
		var list []string
		for _, part := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				list = append(list, trimmed)
			}
		}
		rt.BlockedResources = list
	}

	s.mu.Lock()
	s.current = rt
	s.loadedAt = time.Now()
	s.mu.Unlock()
	return rt
}

func applyInt(values map[string]string, key string, dst *int) {
	if v, ok := values[key]; ok {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			*dst = i
		}
	}
}

func applyDuration(values map[string]string, key string, dst *time.Duration) {
	if v, ok := values[key]; ok {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*dst = d
		}
	}
}
