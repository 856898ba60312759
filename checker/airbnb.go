package checker

import (
	"context"
	"regexp"
	"strings"

	"staywatch/models"
)

// AirbnbChecker checks room listings on airbnb.com.
type AirbnbChecker struct{}

func (c *AirbnbChecker) Platform() models.Platform {
	return models.PlatformAirbnb
}

func (c *AirbnbChecker) Check(ctx context.Context, acc *models.Accommodation, deps *Deps) CheckResult {
	return runCheck(ctx, c, acc, deps)
}

// ContentSelector is the element whose presence signals the booking panel
// has rendered. The first availability selector doubles as that signal.
func (c *AirbnbChecker) ContentSelector(entry *models.PlatformSelectors) string {
	if rules := entry.Selectors[models.CategoryAvailability]; len(rules) > 0 {
		return rules[0].Selector
	}
	return "h1"
}

// Airbnb prices come as "$1,234", "US$120 per night" or "€89.50":
// decimal point, comma thousands.
var airbnbPriceRe = regexp.MustCompile(`([$€£¥])\s*([\d,]+(?:\.\d+)?)`)

func (c *AirbnbChecker) NormalizePrice(raw string) string {
	m := airbnbPriceRe.FindStringSubmatch(raw)
	if m == nil {
		digits := regexp.MustCompile(`[\d,]+(?:\.\d+)?`).FindString(raw)
		if digits == "" {
			return ""
		}
		return strings.ReplaceAll(digits, ",", "")
	}
	return m[1] + strings.ReplaceAll(m[2], ",", "")
}
