// Package ranking scores and orders aggregated offers. The weights and
// sub-score shapes are tuned empirically; treat them as product constants.
package ranking

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/LAG-4/cafefinder/pkg/offers"
)

// platformTrust reflects how reliably each platform's published offers
// match what a customer actually gets.
var platformTrust = map[offers.Platform]float64{
	offers.Zomato:    0.9,
	offers.Swiggy:    0.9,
	offers.Dineout:   0.8,
	offers.EazyDiner: 0.7,
	offers.Magicpin:  0.6,
	offers.Other:     0.5,
}

const (
	weightDiscount     = 0.35
	weightValue        = 0.25
	weightTrust        = 0.20
	weightFreshness    = 0.10
	weightValidity     = 0.05
	weightCompleteness = 0.05

	discountCap = 70  // pct at which discountScore saturates
	valueCap    = 500 // flat currency amount at which valueScore saturates

	tieEpsilon = 0.01
)

var valuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)save\s*₹\s*(\d+)`),
	regexp.MustCompile(`(?i)₹\s*(\d+)\s*off`),
	regexp.MustCompile(`(?i)flat\s*₹\s*(\d+)`),
	regexp.MustCompile(`(?i)upto\s*₹\s*(\d+)`),
	regexp.MustCompile(`(?i)get\s*₹\s*(\d+)`),
	regexp.MustCompile(`(?i)cashback\s*₹\s*(\d+)`),
}

var datePatternRe = regexp.MustCompile(`\d{1,2}[/\-]\d{1,2}`)

// Score is the weighted total plus its breakdown, kept for diagnostics.
type Score struct {
	Total        float64
	Discount     float64
	Value        float64
	Trust        float64
	Freshness    float64
	Validity     float64
	Completeness float64
}

// ScoreOffer computes the multi-factor score for one offer at time now.
func ScoreOffer(o offers.Offer, now time.Time) Score {
	s := Score{
		Discount:     discountScore(o),
		Value:        valueScore(o),
		Trust:        trustScore(o.Platform),
		Freshness:    freshnessScore(o, now),
		Validity:     validityScore(o.ValidityText),
		Completeness: completenessScore(o),
	}
	s.Total = s.Discount*weightDiscount +
		s.Value*weightValue +
		s.Trust*weightTrust +
		s.Freshness*weightFreshness +
		s.Validity*weightValidity +
		s.Completeness*weightCompleteness
	return s
}

func discountScore(o offers.Offer) float64 {
	if o.DiscountPct <= 0 {
		return 0
	}
	if o.DiscountPct >= discountCap {
		return 1
	}
	return o.DiscountPct / discountCap
}

func valueScore(o offers.Offer) float64 {
	amount := extractValueAmount(o)
	if amount <= 0 {
		return 0
	}
	if amount >= valueCap {
		return 1
	}
	return amount / valueCap
}

func extractValueAmount(o offers.Offer) float64 {
	text := strings.ToLower(o.Title + " " + o.Description + " " + o.EffectivePriceText)
	for _, re := range valuePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if amt, err := strconv.ParseFloat(m[1], 64); err == nil && amt > 0 {
				return amt
			}
		}
	}
	return 0
}

func trustScore(p offers.Platform) float64 {
	if t, ok := platformTrust[p]; ok {
		return t
	}
	return 0.5
}

// freshnessScore is 1.0 under an hour old, decays linearly to the 0.1 floor
// at 24 hours.
func freshnessScore(o offers.Offer, now time.Time) float64 {
	if o.FetchedAt.IsZero() {
		return 0.5
	}
	age := now.Sub(o.FetchedAt).Hours()
	switch {
	case age < 1:
		return 1
	case age > 24:
		return 0.1
	default:
		s := 1 - age/24
		if s < 0.1 {
			return 0.1
		}
		return s
	}
}

func validityScore(validityText string) float64 {
	if validityText == "" {
		return 0.3
	}
	text := strings.ToLower(validityText)
	if strings.Contains(text, "expired") || strings.Contains(text, "invalid") {
		return 0
	}
	if strings.Contains(text, "valid") ||
		strings.Contains(text, "expires") ||
		strings.Contains(text, "till") ||
		datePatternRe.MatchString(text) {
		return 1
	}
	return 0.6
}

func completenessScore(o offers.Offer) float64 {
	score := 0.2
	if len(o.Description) > 10 {
		score += 0.3
	}
	if o.ValidityText != "" {
		score += 0.2
	}
	if o.EffectivePriceText != "" {
		score += 0.2
	}
	if len(o.Terms) > 0 {
		score += 0.1
	}
	if score > 1 {
		return 1
	}
	return score
}

// Rank returns the offers sorted by total score descending. Ties within
// 0.01 break toward the more trusted platform. Rank is idempotent and never
// mutates its input.
func Rank(in []offers.Offer) []offers.Offer {
	if len(in) == 0 {
		return nil
	}
	now := time.Now().UTC()

	type scored struct {
		offer offers.Offer
		score Score
	}
	items := make([]scored, len(in))
	for i, o := range in {
		items[i] = scored{offer: o, score: ScoreOffer(o, now)}
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].score, items[j].score
		if diff := a.Total - b.Total; diff > tieEpsilon || diff < -tieEpsilon {
			return a.Total > b.Total
		}
		return a.Trust > b.Trust
	})

	out := make([]offers.Offer, len(items))
	for i, it := range items {
		out[i] = it.offer
	}
	return out
}

// FilterValid drops offers that must never be persisted or ranked: missing
// id/title/platform, titles under 3 chars, and explicitly expired offers.
func FilterValid(in []offers.Offer) []offers.Offer {
	var out []offers.Offer
	for _, o := range in {
		if o.ID == "" || o.Platform == "" || len(o.Title) < 3 {
			continue
		}
		text := strings.ToLower(o.ValidityText)
		if strings.Contains(text, "expired") || strings.Contains(text, "invalid") {
			continue
		}
		out = append(out, o)
	}
	return out
}

// GroupByType buckets offers by keyword inspection of title+description.
func GroupByType(in []offers.Offer) map[string][]offers.Offer {
	groups := map[string][]offers.Offer{}
	for _, o := range in {
		text := strings.ToLower(o.Title + " " + o.Description)
		switch {
		case o.DiscountPct > 0 || strings.Contains(text, "%"):
			groups["percentage"] = append(groups["percentage"], o)
		case strings.Contains(text, "cashback"):
			groups["cashback"] = append(groups["cashback"], o)
		case strings.Contains(text, "flat"), strings.Contains(text, "₹") && strings.Contains(text, "off"):
			groups["flat"] = append(groups["flat"], o)
		case strings.Contains(text, "free"), strings.Contains(text, "complimentary"):
			groups["freebie"] = append(groups["freebie"], o)
		default:
			groups["other"] = append(groups["other"], o)
		}
	}
	return groups
}

// BestByType returns the top-ranked offer per group, when the group is
// non-empty.
func BestByType(in []offers.Offer) map[string]offers.Offer {
	best := map[string]offers.Offer{}
	for typ, group := range GroupByType(in) {
		ranked := Rank(group)
		if len(ranked) > 0 {
			best[typ] = ranked[0]
		}
	}
	return best
}
