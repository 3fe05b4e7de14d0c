// Package dedup collapses near-identical offers that show up under
// slightly different wording, regardless of which platform listed them.
package dedup

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/LAG-4/cafefinder/pkg/offers"
)

const (
	// titleThreshold alone is enough to call two offers duplicates.
	titleThreshold = 0.8
	// When the discount percentage matches, weaker per-field similarity
	// still counts as a duplicate.
	comboTitleThreshold = 0.6
	comboDescThreshold  = 0.7
)

// Similarity is the normalized edit-distance ratio of two strings in [0,1].
// Comparison is case-insensitive; two empty strings are identical.
func Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	dist := matchr.Levenshtein(a, b)
	return 1 - float64(dist)/float64(longest)
}

// isDuplicate reports whether b restates a.
func isDuplicate(a, b offers.Offer) bool {
	titleSim := Similarity(a.Title, b.Title)
	if titleSim > titleThreshold {
		return true
	}
	if a.DiscountPct > 0 && a.DiscountPct == b.DiscountPct &&
		titleSim > comboTitleThreshold &&
		Similarity(a.Description, b.Description) > comboDescThreshold {
		return true
	}
	return false
}

// Dedupe keeps the first occurrence of each offer and drops later ones that
// are near-duplicates. Input order is preserved for survivors.
func Dedupe(in []offers.Offer) []offers.Offer {
	if len(in) < 2 {
		return in
	}
	out := make([]offers.Offer, 0, len(in))
	for _, candidate := range in {
		dup := false
		for _, kept := range out {
			if isDuplicate(kept, candidate) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, candidate)
		}
	}
	return out
}
