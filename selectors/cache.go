package selectors

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"staywatch/config"
	"staywatch/models"
)

const DefaultTTL = 5 * time.Minute

// Store is the slice of the database the cache reads from.
type Store interface {
	GetSelectorConfigs(ctx context.Context, platform models.Platform) ([]models.SelectorConfig, error)
	GetPatterns(ctx context.Context, platform models.Platform) ([]models.Pattern, error)
}

// Clock is injected so tests can control TTL expiry.
type Clock func() time.Time

// Cache holds one PlatformSelectors snapshot per platform. Reads never
// block and never fail: a stale entry keeps being served until a reload
// replaces it, and before the first successful load the bundled fallback
// table stands in. Entries are swapped atomically under the lock, so a
// reader sees either the old snapshot or the new one, never a mix.
type Cache struct {
	store Store
	clock Clock
	ttl   time.Duration

	mu        sync.RWMutex
	entries   map[models.Platform]*models.PlatformSelectors
	fallbacks map[models.Platform]*models.PlatformSelectors
}

func NewCache(store Store, clock Clock, ttl time.Duration, platformCfgs map[string]*config.PlatformConfig) *Cache {
	if clock == nil {
		clock = time.Now
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := &Cache{
		store:     store,
		clock:     clock,
		ttl:       ttl,
		entries:   make(map[models.Platform]*models.PlatformSelectors),
		fallbacks: make(map[models.Platform]*models.PlatformSelectors),
	}

	for name, pc := range platformCfgs {
		platform := models.Platform(name)
		if !platform.Valid() {
			log.Printf("Selector cache: skipping fallback config for unknown platform %q", name)
			continue
		}
		c.fallbacks[platform] = entryFromConfig(platform, pc)
	}

	return c
}

// Get returns the current snapshot for a platform synchronously. It never
// blocks and never returns nil: missing entries fall back to the bundled
// table, or an empty snapshot when no fallback is configured either.
func (c *Cache) Get(platform models.Platform) *models.PlatformSelectors {
	c.mu.RLock()
	entry := c.entries[platform]
	c.mu.RUnlock()

	if entry != nil {
		return entry
	}
	if fb := c.fallbacks[platform]; fb != nil {
		return fb
	}
	return &models.PlatformSelectors{
		Platform:  platform,
		Selectors: map[models.SelectorCategory][]models.SelectorConfig{},
		Fallback:  true,
	}
}

// Stale reports whether the cached entry for a platform is missing or
// past its TTL.
func (c *Cache) Stale(platform models.Platform) bool {
	c.mu.RLock()
	entry := c.entries[platform]
	c.mu.RUnlock()

	if entry == nil {
		return true
	}
	return c.clock().Sub(entry.LoadedAt) > c.ttl
}

// Load reads selector configs and patterns from the database and replaces
// the cache entry. Unless force is set, a fresh entry is returned as is.
// On a database failure the previous entry (or the fallback) keeps being
// served; the error comes back for logging but the returned snapshot is
// always usable. Load never panics out of a check cycle.
func (c *Cache) Load(ctx context.Context, platform models.Platform, force bool) (*models.PlatformSelectors, error) {
	if !force && !c.Stale(platform) {
		return c.Get(platform), nil
	}

	configs, err := c.store.GetSelectorConfigs(ctx, platform)
	if err != nil {
		return c.Get(platform), fmt.Errorf("load selectors for %s: %w", platform, err)
	}
	patterns, err := c.store.GetPatterns(ctx, platform)
	if err != nil {
		return c.Get(platform), fmt.Errorf("load patterns for %s: %w", platform, err)
	}

	entry := buildEntry(platform, configs, patterns, c.clock())

	c.mu.Lock()
	c.entries[platform] = entry
	c.mu.Unlock()

	log.Printf("Selector cache: loaded %s (%d selectors, %d patterns)",
		platform, len(configs), len(patterns))
	return entry, nil
}

// Invalidate clears cached entries so the next Load hits the database.
// With no arguments every supported platform is cleared. The returned
// slice lists what was invalidated; calling it twice for the same
// platform is harmless and returns the same answer both times.
func (c *Cache) Invalidate(platforms ...models.Platform) []models.Platform {
	if len(platforms) == 0 {
		platforms = []models.Platform{models.PlatformAirbnb, models.PlatformAgoda}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var invalidated []models.Platform
	seen := make(map[models.Platform]bool)
	for _, p := range platforms {
		if !p.Valid() || seen[p] {
			continue
		}
		seen[p] = true
		delete(c.entries, p)
		invalidated = append(invalidated, p)
	}
	return invalidated
}

// buildEntry assembles one immutable snapshot: selectors grouped per
// category in ascending priority order, patterns split by bucket, and the
// generated in-page extractor script.
func buildEntry(platform models.Platform, configs []models.SelectorConfig, patterns []models.Pattern, now time.Time) *models.PlatformSelectors {
	grouped := make(map[models.SelectorCategory][]models.SelectorConfig)
	for _, sc := range configs {
		grouped[sc.Category] = append(grouped[sc.Category], sc)
	}
	for cat := range grouped {
		rules := grouped[cat]
		sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })
		grouped[cat] = rules
	}

	entry := &models.PlatformSelectors{
		Platform:  platform,
		Selectors: grouped,
		LoadedAt:  now,
	}

	sort.SliceStable(patterns, func(i, j int) bool { return patterns[i].Priority < patterns[j].Priority })
	for _, p := range patterns {
		switch p.Bucket {
		case models.BucketAvailable:
			entry.AvailablePatterns = append(entry.AvailablePatterns, p.Value)
		case models.BucketUnavailable:
			entry.UnavailablePatterns = append(entry.UnavailablePatterns, p.Value)
		}
	}

	entry.ExtractorScript = BuildExtractorScript(grouped)
	return entry
}

func entryFromConfig(platform models.Platform, pc *config.PlatformConfig) *models.PlatformSelectors {
	var configs []models.SelectorConfig
	for cat, rules := range pc.Selectors {
		for _, r := range rules {
			configs = append(configs, models.SelectorConfig{
				Platform:  platform,
				Category:  models.SelectorCategory(cat),
				Name:      r.Name,
				Selector:  r.Selector,
				Extractor: r.Extractor,
				Priority:  r.Priority,
				Active:    true,
			})
		}
	}

	var patterns []models.Pattern
	for i, v := range pc.Patterns.Available {
		patterns = append(patterns, models.Pattern{Platform: platform, Bucket: models.BucketAvailable, Value: v, Priority: i, Active: true})
	}
	for i, v := range pc.Patterns.Unavailable {
		patterns = append(patterns, models.Pattern{Platform: platform, Bucket: models.BucketUnavailable, Value: v, Priority: i, Active: true})
	}

	entry := buildEntry(platform, configs, patterns, time.Time{})
	entry.Fallback = true
	return entry
}
