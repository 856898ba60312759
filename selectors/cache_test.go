package selectors

import (
	"context"
	"errors"
	"testing"
	"time"

	"staywatch/models"
)

type fakeSelectorStore struct {
	configs  []models.SelectorConfig
	patterns []models.Pattern
	err      error
	loads    int
}

func (f *fakeSelectorStore) GetSelectorConfigs(ctx context.Context, p models.Platform) ([]models.SelectorConfig, error) {
	f.loads++
	if f.err != nil {
		return nil, f.err
	}
	return f.configs, nil
}

func (f *fakeSelectorStore) GetPatterns(ctx context.Context, p models.Platform) ([]models.Pattern, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.patterns, nil
}

func testStore() *fakeSelectorStore {
	return &fakeSelectorStore{
		configs: []models.SelectorConfig{
			{Platform: models.PlatformAirbnb, Category: models.CategoryPrice, Name: "panel_price", Selector: "._price", Priority: 2, Active: true},
			{Platform: models.PlatformAirbnb, Category: models.CategoryPrice, Name: "header_price", Selector: "span.price", Priority: 1, Active: true},
			{Platform: models.PlatformAirbnb, Category: models.CategoryAvailability, Name: "banner", Selector: "#availability", Priority: 1, Active: true},
		},
		patterns: []models.Pattern{
			{Platform: models.PlatformAirbnb, Bucket: models.BucketUnavailable, Value: "sold out", Priority: 1, Active: true},
			{Platform: models.PlatformAirbnb, Bucket: models.BucketAvailable, Value: "per night", Priority: 1, Active: true},
		},
	}
}

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestCache(store Store, clock *fakeClock) *Cache {
	return NewCache(store, clock.Now, 5*time.Minute, nil)
}

func TestLoadOrdersSelectorsByPriority(t *testing.T) {
	store := testStore()
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	cache := newTestCache(store, clock)

	entry, err := cache.Load(context.Background(), models.PlatformAirbnb, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	prices := entry.Selectors[models.CategoryPrice]
	if len(prices) != 2 {
		t.Fatalf("price selectors = %d, want 2", len(prices))
	}
	if prices[0].Name != "header_price" || prices[1].Name != "panel_price" {
		t.Fatalf("selectors not in priority order: %s, %s", prices[0].Name, prices[1].Name)
	}
	if len(entry.UnavailablePatterns) != 1 || entry.UnavailablePatterns[0] != "sold out" {
		t.Fatalf("unavailable patterns = %v", entry.UnavailablePatterns)
	}
	if entry.ExtractorScript == "" {
		t.Fatalf("entry is missing its extractor script")
	}
}

func TestFreshEntryServedWithoutReload(t *testing.T) {
	store := testStore()
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	cache := newTestCache(store, clock)

	if _, err := cache.Load(context.Background(), models.PlatformAirbnb, false); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := cache.Load(context.Background(), models.PlatformAirbnb, false); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if store.loads != 1 {
		t.Fatalf("store loads = %d, want 1 while entry is fresh", store.loads)
	}

	clock.Advance(6 * time.Minute)
	if _, err := cache.Load(context.Background(), models.PlatformAirbnb, false); err != nil {
		t.Fatalf("Load after TTL: %v", err)
	}
	if store.loads != 2 {
		t.Fatalf("store loads = %d, want 2 after TTL expiry", store.loads)
	}
}

func TestForceLoadBypassesTTL(t *testing.T) {
	store := testStore()
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	cache := newTestCache(store, clock)

	cache.Load(context.Background(), models.PlatformAirbnb, false)
	cache.Load(context.Background(), models.PlatformAirbnb, true)
	if store.loads != 2 {
		t.Fatalf("store loads = %d, want 2 with force", store.loads)
	}
}

func TestStaleEntryServedOnStoreFailure(t *testing.T) {
	store := testStore()
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	cache := newTestCache(store, clock)

	first, err := cache.Load(context.Background(), models.PlatformAirbnb, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	clock.Advance(10 * time.Minute)
	store.err = errors.New("connection reset")

	entry, err := cache.Load(context.Background(), models.PlatformAirbnb, false)
	if err == nil {
		t.Fatalf("expected error from failed reload")
	}
	if entry == nil {
		t.Fatalf("failed reload must still return a usable snapshot")
	}
	if entry != first {
		t.Fatalf("failed reload should keep serving the previous entry")
	}
}

func TestGetNeverReturnsNil(t *testing.T) {
	cache := NewCache(&fakeSelectorStore{}, nil, 0, nil)
	entry := cache.Get(models.PlatformAgoda)
	if entry == nil {
		t.Fatalf("Get returned nil for an unloaded platform")
	}
	if !entry.Fallback {
		t.Fatalf("unloaded platform should be served the fallback snapshot")
	}
}

func TestInvalidateIsIdempotent(t *testing.T) {
	store := testStore()
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	cache := newTestCache(store, clock)
	cache.Load(context.Background(), models.PlatformAirbnb, false)

	first := cache.Invalidate(models.PlatformAirbnb)
	second := cache.Invalidate(models.PlatformAirbnb)

	if len(first) != 1 || first[0] != models.PlatformAirbnb {
		t.Fatalf("first invalidate = %v", first)
	}
	if len(second) != 1 || second[0] != models.PlatformAirbnb {
		t.Fatalf("repeated invalidate = %v, want same answer", second)
	}
	if !cache.Stale(models.PlatformAirbnb) {
		t.Fatalf("entry still fresh after invalidate")
	}
}

func TestInvalidateDefaultsToAllPlatforms(t *testing.T) {
	cache := NewCache(testStore(), nil, 0, nil)
	got := cache.Invalidate()
	if len(got) != 2 {
		t.Fatalf("invalidate with no args = %v, want both platforms", got)
	}
}

func TestInvalidateSkipsUnknownAndDuplicates(t *testing.T) {
	cache := NewCache(testStore(), nil, 0, nil)
	got := cache.Invalidate(models.PlatformAgoda, models.PlatformAgoda, models.Platform("BOOKING"))
	if len(got) != 1 || got[0] != models.PlatformAgoda {
		t.Fatalf("invalidate = %v, want just AGODA once", got)
	}
}
