package checker

import (
	"context"
	"regexp"
	"strings"

	"staywatch/models"
)

// AgodaChecker checks hotel listings on agoda.com.
type AgodaChecker struct{}

func (c *AgodaChecker) Platform() models.Platform {
	return models.PlatformAgoda
}

func (c *AgodaChecker) Check(ctx context.Context, acc *models.Accommodation, deps *Deps) CheckResult {
	return runCheck(ctx, c, acc, deps)
}

func (c *AgodaChecker) ContentSelector(entry *models.PlatformSelectors) string {
	if rules := entry.Selectors[models.CategoryAvailability]; len(rules) > 0 {
		return rules[0].Selector
	}
	return "h1"
}

var (
	agodaPriceRe = regexp.MustCompile(`(฿|₩|\$|€|THB|USD|KRW)\s*([\d.,]+)`)
	// A dot followed by exactly three digits is a thousands separator in
	// Agoda's Thai/European price rendering ("3.990"), not a decimal.
	agodaThousandsDotRe = regexp.MustCompile(`\.(\d{3})(\D|$)`)
)

// NormalizePrice handles Agoda's mixed locales: "฿ 3,990", "THB 3.990"
// and "$85" all come out as symbol plus a plain number.
func (c *AgodaChecker) NormalizePrice(raw string) string {
	m := agodaPriceRe.FindStringSubmatch(raw)
	if m == nil {
		digits := regexp.MustCompile(`[\d.,]+`).FindString(raw)
		if digits == "" {
			return ""
		}
		return stripAgodaSeparators(digits)
	}

	symbol := m[1]
	switch symbol {
	case "THB":
		symbol = "฿"
	case "USD":
		symbol = "$"
	case "KRW":
		symbol = "₩"
	}
	return symbol + stripAgodaSeparators(m[2])
}

func stripAgodaSeparators(amount string) string {
	amount = strings.ReplaceAll(amount, ",", "")
	for agodaThousandsDotRe.MatchString(amount) {
		amount = agodaThousandsDotRe.ReplaceAllString(amount, "$1$2")
	}
	return amount
}
