package selectors

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"staywatch/models"
)

var getAttrRe = regexp.MustCompile(`el\.getAttribute\(["']([^"']+)["']\)`)

// StaticExtract applies a platform's selector table to already-rendered
// HTML with goquery, mirroring the generated in-page script. The checkers
// fall back to it when in-page evaluation fails but the page content was
// captured, and tests use it to pin the extraction contract against
// fixture HTML without a browser.
func StaticExtract(html string, entry *models.PlatformSelectors) (*Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	result := &Extraction{Metadata: make(map[string]string)}

	result.Price = firstMatch(doc, entry.Selectors[models.CategoryPrice])
	result.AvailabilityText = firstMatch(doc, entry.Selectors[models.CategoryAvailability])

	for _, rule := range entry.Selectors[models.CategoryMetadata] {
		if _, ok := result.Metadata[rule.Name]; ok {
			continue
		}
		if v := applyRule(doc, rule); v != nil {
			result.Metadata[rule.Name] = *v
		}
	}

	if v := firstMatch(doc, entry.Selectors[models.CategoryPlatformID]); v != nil {
		result.Metadata["platformId"] = *v
	}

	return result, nil
}

func firstMatch(doc *goquery.Document, rules []models.SelectorConfig) *string {
	for _, rule := range rules {
		if v := applyRule(doc, rule); v != nil {
			return v
		}
	}
	return nil
}

// applyRule evaluates one rule against the document. Custom extractor
// code is JS and cannot run here; the common attribute-read form is
// recognized and mapped onto goquery, anything else degrades to text.
func applyRule(doc *goquery.Document, rule models.SelectorConfig) *string {
	sel := doc.Find(rule.Selector).First()
	if sel.Length() == 0 {
		return nil
	}

	if m := getAttrRe.FindStringSubmatch(rule.Extractor); m != nil {
		if attr, ok := sel.Attr(m[1]); ok {
			return &attr
		}
		return nil
	}

	text := strings.TrimSpace(sel.Text())
	return &text
}
