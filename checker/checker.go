package checker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"staywatch/browser"
	"staywatch/models"
	"staywatch/selectors"
)

// Settings are the runtime knobs for one check. They come from the
// settings service so operators can tune them without a restart.
type Settings struct {
	NavTimeout       time.Duration
	ContentTimeout   time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	BlockedResources []string
}

// Deps bundles what a checker needs from the outside world.
type Deps struct {
	Pool      *browser.Pool
	Selectors *selectors.Cache
	Settings  Settings
}

// CheckResult is the outcome of one accommodation check. Error is empty
// on success; when set, the processor records the check as ERROR no
// matter what Available says.
type CheckResult struct {
	Available  bool              `json:"available"`
	Price      *string           `json:"price"`
	CheckURL   string            `json:"check_url"`
	Error      string            `json:"error,omitempty"`
	RetryCount int               `json:"retry_count"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type Checker interface {
	Platform() models.Platform
	Check(ctx context.Context, acc *models.Accommodation, deps *Deps) CheckResult
}

// ForPlatform selects the checker variant for a platform.
func ForPlatform(p models.Platform) (Checker, error) {
	switch p {
	case models.PlatformAirbnb:
		return &AirbnbChecker{}, nil
	case models.PlatformAgoda:
		return &AgodaChecker{}, nil
	default:
		return nil, fmt.Errorf("no checker for platform %q", p)
	}
}

// platformHooks is what differs between platforms; the check flow itself
// is shared.
type platformHooks interface {
	Platform() models.Platform
	ContentSelector(entry *models.PlatformSelectors) string
	NormalizePrice(raw string) string
}

// runCheck drives one check end to end: build the URL, navigate with
// retries, extract, classify. Every error is folded into the returned
// CheckResult; nothing escapes to the caller.
func runCheck(ctx context.Context, hooks platformHooks, acc *models.Accommodation, deps *Deps) CheckResult {
	result := CheckResult{CheckURL: BuildAccommodationURL(acc)}

	entry := deps.Selectors.Get(acc.Platform)
	if len(entry.Selectors[models.CategoryAvailability]) == 0 && len(entry.Selectors[models.CategoryPrice]) == 0 {
		result.Error = "no selectors configured for " + string(acc.Platform)
		return result
	}

	var extraction *selectors.Extraction
	attempts := 0
	err := withRetry(ctx, deps.Settings.MaxRetries, deps.Settings.RetryDelay, func() error {
		attempts++
		ex, err := navigateAndExtract(ctx, deps, entry, result.CheckURL, hooks.ContentSelector(entry))
		if err != nil {
			log.Printf("Check %s attempt %d: %v", acc.ID, attempts, err)
			return err
		}
		extraction = ex
		return nil
	})
	result.RetryCount = attempts
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Metadata = extraction.Metadata

	if extraction.AvailabilityText == nil && extraction.Price == nil {
		// Selectors loaded but nothing on the page matched; retrying
		// will not grow a selector, so this surfaces as an error.
		result.Error = "extraction produced no values"
		return result
	}

	available, note := classify(extraction, entry)
	result.Available = available
	if note != "" {
		if result.Metadata == nil {
			result.Metadata = make(map[string]string)
		}
		result.Metadata["classification"] = note
	}

	if available && extraction.Price != nil {
		price := hooks.NormalizePrice(*extraction.Price)
		if price != "" {
			result.Price = &price
		}
	}

	return result
}

// navigateAndExtract performs one attempt: acquire a browser, open a
// page, navigate, wait, run the generated extractor. The handle is
// released and the page closed on every path out.
func navigateAndExtract(ctx context.Context, deps *Deps, entry *models.PlatformSelectors, checkURL, contentSelector string) (*selectors.Extraction, error) {
	handle, err := deps.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire browser: %w", err)
	}
	defer deps.Pool.Release(handle)

	page, err := handle.NewPage()
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	if err := page.BlockResources(deps.Settings.BlockedResources); err != nil {
		log.Printf("Resource blocking setup failed: %v", err)
	}

	if err := page.Goto(checkURL, deps.Settings.NavTimeout); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}

	if contentSelector != "" {
		if err := page.WaitForContent(contentSelector, deps.Settings.ContentTimeout); err != nil {
			// The page may still be usable; extraction decides.
			log.Printf("Content wait timed out for %s", checkURL)
		}
	}

	raw, evalErr := page.Evaluate(entry.ExtractorScript)
	if evalErr == nil {
		if ex, err := decodeExtraction(raw); err == nil {
			return ex, nil
		}
	}

	// In-page evaluation failed; fall back to static extraction over the
	// captured HTML before declaring the attempt dead.
	html, contentErr := page.Content()
	if contentErr != nil {
		if evalErr != nil {
			return nil, fmt.Errorf("evaluate extractor: %w", evalErr)
		}
		return nil, fmt.Errorf("read page content: %w", contentErr)
	}
	ex, err := selectors.StaticExtract(html, entry)
	if err != nil {
		return nil, fmt.Errorf("static extraction: %w", err)
	}
	return ex, nil
}

func decodeExtraction(raw interface{}) (*selectors.Extraction, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var ex selectors.Extraction
	if err := json.Unmarshal(data, &ex); err != nil {
		return nil, err
	}
	if ex.Metadata == nil {
		ex.Metadata = make(map[string]string)
	}
	return &ex, nil
}
