// Package dedup finds likely duplicate catalog entries, either by exact
// source URL or by title similarity under the same vendor.
package dedup

import (
	"strings"

	"github.com/mealwatch/plan-scraper/internal/db"
)

// SimilarityThreshold is the Jaccard score at or above which two titles
// from the same vendor count as duplicates.
const SimilarityThreshold = 0.7

// Group reasons, surfaced in the review UI.
const (
	ReasonSameURL      = "相同來源網址"
	ReasonSimilarTitle = "標題高度相似"
)

// Group is a set of plans that look like the same offer.
type Group struct {
	Reason string    `json:"reason"`
	Plans  []db.Plan `json:"plans"`
}

// Jaccard computes set similarity over the runes of two strings.
// Returns 0 when either string is empty.
func Jaccard(a, b string) float64 {
	setA := runeSet(a)
	setB := runeSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for r := range setA {
		if _, ok := setB[r]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func runeSet(s string) map[rune]struct{} {
	set := make(map[rune]struct{}, len(s))
	for _, r := range s {
		set[r] = struct{}{}
	}
	return set
}

// FindGroups partitions plans into duplicate groups. Each plan lands in
// at most one group: the first plan it matches claims it, so the result
// is a single partition rather than a transitive-closure clustering.
// Groups with a single member are dropped.
func FindGroups(plans []db.Plan) []Group {
	assigned := make([]bool, len(plans))
	var groups []Group

	for i := range plans {
		if assigned[i] {
			continue
		}
		group := Group{Plans: []db.Plan{plans[i]}}
		sawURLMatch := false

		for j := i + 1; j < len(plans); j++ {
			if assigned[j] {
				continue
			}
			byURL, dup := duplicate(&plans[i], &plans[j])
			if !dup {
				continue
			}
			if byURL {
				sawURLMatch = true
			}
			group.Plans = append(group.Plans, plans[j])
			assigned[j] = true
		}

		if len(group.Plans) > 1 {
			assigned[i] = true
			group.Reason = ReasonSimilarTitle
			if sawURLMatch {
				group.Reason = ReasonSameURL
			}
			groups = append(groups, group)
		}
	}
	return groups
}

// duplicate reports whether two plans look like the same offer, and
// whether the match was on the source URL.
func duplicate(a, b *db.Plan) (byURL, dup bool) {
	urlA := normalizeURL(a.SourceURL)
	if urlA != "" && urlA == normalizeURL(b.SourceURL) {
		return true, true
	}
	if !strings.EqualFold(strings.TrimSpace(a.VendorName), strings.TrimSpace(b.VendorName)) {
		return false, false
	}
	titleA := strings.ToLower(a.Title)
	titleB := strings.ToLower(b.Title)
	if Jaccard(titleA, titleB) >= SimilarityThreshold {
		return false, true
	}
	return false, false
}

func normalizeURL(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
