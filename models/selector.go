package models

import "time"

type SelectorCategory string

const (
	CategoryPrice        SelectorCategory = "price"
	CategoryAvailability SelectorCategory = "availability"
	CategoryMetadata     SelectorCategory = "metadata"
	CategoryPlatformID   SelectorCategory = "platformId"
)

// SelectorConfig is one named extraction rule for a platform/category.
// Rules are tried in ascending Priority order; the first match wins.
type SelectorConfig struct {
	ID        int64            `json:"id" db:"id"`
	Platform  Platform         `json:"platform" db:"platform"`
	Category  SelectorCategory `json:"category" db:"category"`
	Name      string           `json:"name" db:"name"`
	Selector  string           `json:"selector" db:"selector"`
	Extractor string           `json:"extractor" db:"extractor"` // optional JS expression, receives `el`
	Priority  int              `json:"priority" db:"priority"`
	Active    bool             `json:"active" db:"active"`
}

type PatternBucket string

const (
	BucketAvailable   PatternBucket = "available"
	BucketUnavailable PatternBucket = "unavailable"
)

// Pattern classifies extracted availability text. Matching is
// case-insensitive substring unless the value is a valid regex.
type Pattern struct {
	ID       int64         `json:"id" db:"id"`
	Platform Platform      `json:"platform" db:"platform"`
	Bucket   PatternBucket `json:"bucket" db:"bucket"`
	Value    string        `json:"value" db:"value"`
	Priority int           `json:"priority" db:"priority"`
	Active   bool          `json:"active" db:"active"`
}

// PlatformSelectors is one immutable cache entry: everything a checker
// needs to extract and classify a page for a platform. Entries are
// replaced wholesale, never mutated in place.
type PlatformSelectors struct {
	Platform            Platform
	Selectors           map[SelectorCategory][]SelectorConfig
	AvailablePatterns   []string
	UnavailablePatterns []string
	ExtractorScript     string
	LoadedAt            time.Time
	Fallback            bool // true when built from bundled yaml, not the DB
}
