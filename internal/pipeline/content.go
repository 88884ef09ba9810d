package pipeline

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Bounded-buffer caps for stored job artifacts, enforced at write time.
const (
	MaxRawContentChars = 50000
	MaxOCRTextChars    = 30000
	MaxImages          = 20

	// maxExtractChars bounds the content handed to the AI extractor.
	maxExtractChars = 8000
)

const truncationMarker = "\n\n[content truncated]"

// CapRunes truncates s to at most max runes.
func CapRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// TruncateContent shortens content to roughly max runes, preferring to
// cut at a sentence or paragraph boundary when one falls in the last 30%
// of the window.
func TruncateContent(content string, max int) string {
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}

	window := string(runes[:max])
	cut := -1
	for _, sep := range []string{"。", "！", "？", "\n\n", ". "} {
		if idx := strings.LastIndex(window, sep); idx > cut {
			cut = idx + len(sep) - 1
		}
	}

	if cut > 0 && cut > len(window)*7/10 {
		return window[:cut+1] + truncationMarker
	}
	return window + truncationMarker
}

// Hints are cheap regex finds handed to the extractor alongside the
// content, mirroring what a human skims for on a product page.
type Hints struct {
	Prices   []int    `json:"prices"`
	Servings []string `json:"servings"`
	Dates    []string `json:"dates"`
	Phones   []string `json:"phones"`
}

var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)NT\$?\s?(\d{1,3}(?:,\d{3})*|\d+)`),
	regexp.MustCompile(`\$\s?(\d{1,3}(?:,\d{3})*|\d+)`),
	regexp.MustCompile(`(\d{1,3}(?:,\d{3})*|\d+)\s*元`),
	regexp.MustCompile(`售價[：:]\s*(\d{1,3}(?:,\d{3})*|\d+)`),
	regexp.MustCompile(`原價[：:]\s*(\d{1,3}(?:,\d{3})*|\d+)`),
	regexp.MustCompile(`特價[：:]\s*(\d{1,3}(?:,\d{3})*|\d+)`),
}

var servingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d+)\s*[-~至]\s*(\d+)\s*人`),
	regexp.MustCompile(`(\d+)\s*人份`),
	regexp.MustCompile(`適合\s*(\d+)\s*人`),
}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}[/\-.]\d{1,2}[/\-.]\d{1,2}`),
	regexp.MustCompile(`\d{1,2}[/\-.]\d{1,2}`),
}

var phonePattern = regexp.MustCompile(`0\d{1,2}[-\s]?\d{3,4}[-\s]?\d{3,4}`)

// Plausible single-order price band; anything outside is noise (weights,
// quantities, phone fragments).
const (
	hintPriceMin = 500
	hintPriceMax = 50000
)

// ExtractHints scans content for price, serving, date and phone hints.
func ExtractHints(content string) Hints {
	var hints Hints

	seenPrice := make(map[int]struct{})
	for _, re := range pricePatterns {
		for _, match := range re.FindAllStringSubmatch(content, -1) {
			raw := strings.ReplaceAll(match[1], ",", "")
			price, err := strconv.Atoi(raw)
			if err != nil || price < hintPriceMin || price > hintPriceMax {
				continue
			}
			if _, dup := seenPrice[price]; dup {
				continue
			}
			seenPrice[price] = struct{}{}
			hints.Prices = append(hints.Prices, price)
		}
	}
	sort.Ints(hints.Prices)
	if len(hints.Prices) > 5 {
		hints.Prices = hints.Prices[:5]
	}

	hints.Servings = collectMatches(servingPatterns, content, 3)
	hints.Dates = collectMatches(datePatterns, content, 5)

	seen := make(map[string]struct{})
	for _, m := range phonePattern.FindAllString(content, -1) {
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		hints.Phones = append(hints.Phones, m)
		if len(hints.Phones) == 3 {
			break
		}
	}
	return hints
}

func collectMatches(patterns []*regexp.Regexp, content string, max int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, re := range patterns {
		for _, m := range re.FindAllString(content, -1) {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
			if len(out) == max {
				return out
			}
		}
	}
	return out
}
