package pipeline

import (
	"regexp"
	"strings"
)

// Image URL candidates come from three shapes of content: markdown image
// syntax, raw HTML img tags, and bare URLs with an image extension.
var (
	markdownImageRe = regexp.MustCompile(`!\[.*?\]\((https?://[^)\s]+)\)`)
	htmlImageRe     = regexp.MustCompile(`(?i)<img[^>]+src=["'](https?://[^"']+)["']`)
	bareImageRe     = regexp.MustCompile(`(?i)(https?://[^\s<>"']+\.(?:jpg|jpeg|png|gif|webp|bmp)(?:\?[^\s<>"']*)?)`)
)

// skipKeywords marks icons, buttons and tracking pixels that are never
// worth OCR time.
var skipKeywords = []string{
	"icon", "logo", "avatar", "emoji", "btn", "button",
	"arrow", "sprite", "1x1", "pixel", "tracking",
}

// ExtractImages pulls candidate image URLs out of scraped content.
func ExtractImages(content string) []string {
	var images []string
	for _, re := range []*regexp.Regexp{markdownImageRe, htmlImageRe, bareImageRe} {
		for _, match := range re.FindAllStringSubmatch(content, -1) {
			images = append(images, match[1])
		}
	}
	return images
}

// FilterImages de-duplicates candidates and drops URLs matching the skip
// keyword list.
func FilterImages(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	var out []string
	for _, u := range urls {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		lower := strings.ToLower(u)
		skip := false
		for _, kw := range skipKeywords {
			if strings.Contains(lower, kw) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, u)
		}
	}
	return out
}
