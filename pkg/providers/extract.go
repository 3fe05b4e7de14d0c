package providers

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/LAG-4/cafefinder/pkg/offers"
)

// Shared extraction heuristics. Platform pages change markup constantly, so
// every provider works the same way: try known selector lists first, then
// fall back to regex scanning of the page text.

var (
	discountPctRe = regexp.MustCompile(`(?i)(\d+)%\s*(?:off|discount|save)`)
	minSpendRe    = regexp.MustCompile(`(?i)(?:min|above|minimum)\D*?(\d+)`)
	valueAmtRe    = regexp.MustCompile(`(?i)(?:save|flat|upto|get|cashback)?\s*(?:rs\.?|₹)\s*(\d+)`)

	// Patterns that signal an offer inside free-form page text.
	fallbackPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\d+%\s*(?:off|discount|save)[^.\n]{0,80}`),
		regexp.MustCompile(`(?i)flat\s*(?:rs\.?\s*|₹\s*)?\d+\s*off[^.\n]{0,60}`),
		regexp.MustCompile(`(?i)buy\s+\d+\s+get\s+\d+\s+free`),
		regexp.MustCompile(`(?i)free\s+delivery`),
		regexp.MustCompile(`(?i)welcome\s+offer[^.\n]{0,60}`),
		regexp.MustCompile(`(?i)first\s+order\s+(?:discount|offer)[^.\n]{0,60}`),
		regexp.MustCompile(`(?i)(?:get|save|flat)\s*(?:rs\.?\s*|₹\s*)?\d+\s*(?:off|cashback)[^.\n]{0,60}`),
	}

	offerKeywordRe = regexp.MustCompile(`(?i)(?:discount|offer|deal|save|off|promo|coupon|cashback|free)`)
)

const (
	fallbackMinLen = 10
	fallbackMaxLen = 200
)

// NormalizeText collapses whitespace and strips characters outside the
// whitelist (alphanumerics, spaces, %-₹$.,).
func NormalizeText(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '\t', r == '\n', r == '\r':
			b.WriteRune(' ')
		case r == '%', r == '-', r == '₹', r == '$', r == '.', r == ',':
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// ExtractDiscountPct pulls a "<digits>% off/discount/save" percentage out of
// text. Returns 0 when absent.
func ExtractDiscountPct(text string) float64 {
	m := discountPctRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil || pct <= 0 || pct > 100 {
		return 0
	}
	return pct
}

// ExtractMinSpend pulls a "min/above/minimum ... <digits>" amount out of
// text. Returns 0 when absent.
func ExtractMinSpend(text string) float64 {
	m := minSpendRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	amt, err := strconv.ParseFloat(m[1], 64)
	if err != nil || amt < 0 {
		return 0
	}
	return amt
}

// ClassifyOfferType buckets an offer by keyword inspection of its text.
func ClassifyOfferType(title, description string) string {
	text := strings.ToLower(title + " " + description)
	switch {
	case strings.Contains(text, "%"):
		return "percentage"
	case strings.Contains(text, "cashback"):
		return "cashback"
	case strings.Contains(text, "flat"), strings.Contains(text, "₹") && strings.Contains(text, "off"):
		return "flat"
	case strings.Contains(text, "free"), strings.Contains(text, "complimentary"):
		return "freebie"
	default:
		return "other"
	}
}

// LooksLikeOffer gates fallback-extracted spans: bounded length and at least
// one offer keyword.
func LooksLikeOffer(text string) bool {
	if len(text) < fallbackMinLen || len(text) > fallbackMaxLen {
		return false
	}
	return offerKeywordRe.MatchString(text)
}

// SelectorGroup is one structured-extraction rule: a container selector plus
// nested selector lists for each field, first non-empty wins.
type SelectorGroup struct {
	Container string
	Title     []string
	Desc      []string
	Validity  []string
	Price     []string
	Terms     []string
}

// ExtractStructured walks the selector groups over a parsed document and
// builds one offer per matched container that yields a usable title.
func ExtractStructured(doc *goquery.Document, groups []SelectorGroup, platform offers.Platform, placeSlug, sourceURL string, now time.Time) []offers.Offer {
	var out []offers.Offer
	for _, g := range groups {
		doc.Find(g.Container).Each(func(_ int, sel *goquery.Selection) {
			title := firstText(sel, g.Title)
			if title == "" {
				title = strings.TrimSpace(sel.Text())
			}
			title = NormalizeText(title)
			if len(title) < 5 {
				return
			}

			desc := NormalizeText(firstText(sel, g.Desc))
			if desc == title {
				desc = ""
			}
			validity := NormalizeText(firstText(sel, g.Validity))
			price := NormalizeText(firstText(sel, g.Price))
			termsText := NormalizeText(firstText(sel, g.Terms))
			var terms []string
			if termsText != "" {
				terms = []string{termsText}
			}

			out = append(out, offers.Offer{
				ID:                 offers.OfferID(platform, placeSlug, title),
				Platform:           platform,
				Title:              title,
				Description:        desc,
				ValidityText:       validity,
				EffectivePriceText: price,
				DiscountPct:        ExtractDiscountPct(title + " " + desc),
				MinSpend:           ExtractMinSpend(title + " " + desc + " " + termsText),
				Terms:              terms,
				DeepLink:           sourceURL,
				OfferType:          ClassifyOfferType(title, desc),
				FetchedAt:          now,
			})
		})
	}
	return out
}

// ExtractFallback regex-scans raw page text and synthesizes one offer per
// unique matched span, de-duplicated case-insensitively.
func ExtractFallback(pageText string, platform offers.Platform, placeSlug, sourceURL string, now time.Time) []offers.Offer {
	seen := make(map[string]bool)
	var out []offers.Offer
	for _, re := range fallbackPatterns {
		for _, match := range re.FindAllString(pageText, -1) {
			clean := NormalizeText(match)
			if !LooksLikeOffer(clean) {
				continue
			}
			key := strings.ToLower(clean)
			if seen[key] {
				continue
			}
			seen[key] = true

			out = append(out, offers.Offer{
				ID:          offers.OfferID(platform, placeSlug, clean),
				Platform:    platform,
				Title:       clean,
				DiscountPct: ExtractDiscountPct(clean),
				MinSpend:    ExtractMinSpend(clean),
				DeepLink:    sourceURL,
				OfferType:   ClassifyOfferType(clean, ""),
				FetchedAt:   now,
			})
		}
	}
	return out
}

// DedupeByTitle drops offers whose normalized title was already produced
// within the same call.
func DedupeByTitle(in []offers.Offer) []offers.Offer {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, o := range in {
		key := strings.ToLower(NormalizeText(o.Title))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, o)
	}
	return out
}

func firstText(sel *goquery.Selection, selectors []string) string {
	for _, s := range selectors {
		if text := strings.TrimSpace(sel.Find(s).First().Text()); text != "" {
			return text
		}
	}
	return ""
}
