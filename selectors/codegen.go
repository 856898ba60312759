package selectors

import (
	"fmt"
	"strings"

	"staywatch/models"
)

// Extraction is the fixed-shape result of running the generated extractor
// inside a page (or of the static goquery fallback). Nil is the "not
// found" sentinel; an empty string is a real, empty match.
type Extraction struct {
	Price            *string           `json:"price"`
	AvailabilityText *string           `json:"availabilityText"`
	Metadata         map[string]string `json:"metadata"`
}

// BuildExtractorScript synthesizes the single JS expression the checkers
// evaluate in-page. Selectors are tried in the order they appear (already
// ascending by priority); the first rule that yields a value wins and the
// rest are skipped. Rules that blow up inside the page are swallowed so a
// bad selector can never break extraction of the other categories.
func BuildExtractorScript(grouped map[models.SelectorCategory][]models.SelectorConfig) string {
	var b strings.Builder

	b.WriteString("(() => {\n")
	b.WriteString("  const result = { price: null, availabilityText: null, metadata: {} };\n")
	b.WriteString("  const tryRule = (sel, fn) => {\n")
	b.WriteString("    try {\n")
	b.WriteString("      const el = document.querySelector(sel);\n")
	b.WriteString("      if (!el) return null;\n")
	b.WriteString("      const v = fn ? fn(el) : (el.innerText || el.textContent || '').trim();\n")
	b.WriteString("      return (v === undefined || v === null) ? null : String(v);\n")
	b.WriteString("    } catch (e) { return null; }\n")
	b.WriteString("  };\n")

	writeRules(&b, grouped[models.CategoryPrice], "result.price")
	writeRules(&b, grouped[models.CategoryAvailability], "result.availabilityText")

	for _, rule := range grouped[models.CategoryMetadata] {
		fmt.Fprintf(&b, "  if (result.metadata[%q] === undefined) {\n", rule.Name)
		fmt.Fprintf(&b, "    const v = tryRule(%q, %s);\n", rule.Selector, extractorFn(rule))
		fmt.Fprintf(&b, "    if (v !== null) result.metadata[%q] = v;\n", rule.Name)
		b.WriteString("  }\n")
	}

	writeRules(&b, grouped[models.CategoryPlatformID], "result.metadata.platformId")

	b.WriteString("  return result;\n")
	b.WriteString("})()")

	return b.String()
}

func writeRules(b *strings.Builder, rules []models.SelectorConfig, target string) {
	for _, rule := range rules {
		fmt.Fprintf(b, "  if (%s === null || %s === undefined) {\n", target, target)
		fmt.Fprintf(b, "    %s = tryRule(%q, %s);\n", target, rule.Selector, extractorFn(rule))
		b.WriteString("  }\n")
	}
}

func extractorFn(rule models.SelectorConfig) string {
	if strings.TrimSpace(rule.Extractor) == "" {
		return "null"
	}
	return fmt.Sprintf("(el) => (%s)", rule.Extractor)
}
