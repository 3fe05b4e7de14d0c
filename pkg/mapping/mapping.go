// Package mapping resolves venue slugs to platform URLs. Resolution runs
// three tiers in priority order: curated manual mappings, fuzzy matching
// against a known-venue catalog, and pattern-generated candidate URLs.
package mapping

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/LAG-4/cafefinder/pkg/offers"
)

const (
	// fuzzyFloor is the minimum similarity for a catalog match to be used.
	fuzzyFloor = 0.75
	// bestURLFloor gates single-URL lookups; generated candidates never pass it.
	bestURLFloor = 0.75

	generatedZomatoConfidence = 0.5
	generatedSwiggyConfidence = 0.3

	// Field weights for fuzzy similarity. Name dominates because area and
	// address text vary wildly between platforms.
	nameWeight    = 0.7
	areaWeight    = 0.2
	addressWeight = 0.1
)

// hyderabadAreas are the slug suffixes Zomato most commonly appends to
// venue pages in Hyderabad, ordered by how often they appear.
var hyderabadAreas = []string{
	"banjara-hills", "jubilee-hills", "hitech-city", "kondapur",
	"madhapur", "gachibowli", "secunderabad", "begumpet",
	"somajiguda", "ameerpet", "kukatpally", "miyapur",
}

var nonSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	return strings.Trim(nonSlugRe.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// CatalogEntry is one known venue listing on a platform, used by the
// fuzzy tier. Catalogs are seeded at startup from storage or fixtures.
type CatalogEntry struct {
	Name     string
	Area     string
	Address  string
	Platform offers.Platform
	URL      string
}

// ManualSource supplies curated mappings, typically backed by storage.
type ManualSource interface {
	ManualMappings(ctx context.Context, placeSlug string) ([]offers.PlacePlatformMapping, error)
}

// ManualSourceFunc adapts a function to the ManualSource interface.
type ManualSourceFunc func(ctx context.Context, placeSlug string) ([]offers.PlacePlatformMapping, error)

func (f ManualSourceFunc) ManualMappings(ctx context.Context, placeSlug string) ([]offers.PlacePlatformMapping, error) {
	return f(ctx, placeSlug)
}

// Resolver owns the three mapping tiers. A nil manual source skips the
// manual tier; an empty catalog skips the fuzzy tier.
type Resolver struct {
	manual  ManualSource
	catalog []CatalogEntry
	now     func() time.Time
}

type Option func(*Resolver)

func WithManualSource(src ManualSource) Option {
	return func(r *Resolver) { r.manual = src }
}

func WithCatalog(entries []CatalogEntry) Option {
	return func(r *Resolver) { r.catalog = entries }
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddCatalogEntries extends the fuzzy-tier catalog.
func (r *Resolver) AddCatalogEntries(entries ...CatalogEntry) {
	r.catalog = append(r.catalog, entries...)
}

// Resolve returns the mappings for a venue across the enabled platforms,
// sorted by confidence descending. Manual mappings win over fuzzy matches;
// both tiers yield at most one mapping per platform. The generated tier
// only runs when the first two produced nothing at all, and it returns
// every candidate URL per platform, most likely first.
func (r *Resolver) Resolve(ctx context.Context, placeSlug string, identity *offers.PlaceIdentity, platforms []offers.Platform) ([]offers.PlacePlatformMapping, error) {
	if len(platforms) == 0 {
		platforms = []offers.Platform{offers.Zomato, offers.Swiggy}
	}

	var all []offers.PlacePlatformMapping

	if r.manual != nil {
		manual, err := r.manual.ManualMappings(ctx, placeSlug)
		if err != nil {
			return nil, err
		}
		for _, m := range manual {
			if platformEnabled(m.Platform, platforms) {
				all = append(all, m)
			}
		}
	}

	if identity != nil {
		covered := map[offers.Platform]bool{}
		for _, m := range all {
			covered[m.Platform] = true
		}
		for _, p := range platforms {
			if covered[p] {
				continue
			}
			all = append(all, r.fuzzyMatch(placeSlug, *identity, p)...)
		}
	}

	if len(all) == 0 {
		// Every candidate is kept so callers can walk a platform's guesses
		// in order until one page responds.
		gen := r.generated(placeSlug, identity, platforms)
		sort.SliceStable(gen, func(i, j int) bool { return gen[i].Confidence > gen[j].Confidence })
		return gen, nil
	}

	// One mapping per platform, highest confidence wins. Iterating the
	// collected slice keeps resolution deterministic for equal confidence.
	best := map[offers.Platform]offers.PlacePlatformMapping{}
	for _, m := range all {
		if cur, ok := best[m.Platform]; !ok || m.Confidence > cur.Confidence {
			best[m.Platform] = m
		}
	}

	out := make([]offers.PlacePlatformMapping, 0, len(best))
	for _, p := range offers.AllPlatforms {
		if m, ok := best[p]; ok {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out, nil
}

// BestURL returns the single URL to use for a venue on a platform, or
// empty when no mapping clears the confidence floor.
func (r *Resolver) BestURL(ctx context.Context, placeSlug string, platform offers.Platform, identity *offers.PlaceIdentity) (string, error) {
	mappings, err := r.Resolve(ctx, placeSlug, identity, []offers.Platform{platform})
	if err != nil {
		return "", err
	}
	for _, m := range mappings {
		if m.Platform == platform && m.Confidence >= bestURLFloor {
			return m.URL, nil
		}
	}
	return "", nil
}

func platformEnabled(p offers.Platform, enabled []offers.Platform) bool {
	for _, e := range enabled {
		if e == p {
			return true
		}
	}
	return false
}

// Similarity is the weighted JaroWinkler similarity between a venue
// identity and a catalog entry, in [0,1].
func Similarity(place offers.PlaceIdentity, entry CatalogEntry) float64 {
	score := nameWeight * jaroWinkler(place.Name, entry.Name)
	weight := nameWeight
	if place.Area != "" && entry.Area != "" {
		score += areaWeight * jaroWinkler(place.Area, entry.Area)
		weight += areaWeight
	}
	if place.Address != "" && entry.Address != "" {
		score += addressWeight * jaroWinkler(place.Address, entry.Address)
		weight += addressWeight
	}
	if weight == 0 {
		return 0
	}
	return score / weight
}

var spaceRe = regexp.MustCompile(`\s+`)
var punctRe = regexp.MustCompile(`[^\w\s]`)

func normalize(s string) string {
	s = punctRe.ReplaceAllString(strings.ToLower(s), " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func jaroWinkler(a, b string) float64 {
	a, b = normalize(a), normalize(b)
	if a == "" || b == "" {
		return 0
	}
	return matchr.JaroWinkler(a, b, false)
}

// verifiedStamp is the LastVerifiedAt value for derived mappings. It is
// truncated to the day so repeated resolutions with unchanged inputs
// produce identical output.
func (r *Resolver) verifiedStamp() time.Time {
	return r.now().UTC().Truncate(24 * time.Hour)
}

func (r *Resolver) fuzzyMatch(placeSlug string, identity offers.PlaceIdentity, platform offers.Platform) []offers.PlacePlatformMapping {
	verified := r.verifiedStamp()
	var out []offers.PlacePlatformMapping
	for _, entry := range r.catalog {
		if entry.Platform != platform {
			continue
		}
		sim := Similarity(identity, entry)
		if sim < fuzzyFloor {
			continue
		}
		out = append(out, offers.PlacePlatformMapping{
			PlaceSlug:      placeSlug,
			Platform:       platform,
			URL:            entry.URL,
			Confidence:     float64(int(sim*100)) / 100,
			Source:         offers.SourceFuzzy,
			LastVerifiedAt: verified,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

func (r *Resolver) generated(placeSlug string, identity *offers.PlaceIdentity, platforms []offers.Platform) []offers.PlacePlatformMapping {
	verified := r.verifiedStamp()
	var out []offers.PlacePlatformMapping
	for _, p := range platforms {
		switch p {
		case offers.Zomato:
			for _, url := range zomatoCandidates(placeSlug, identity) {
				out = append(out, offers.PlacePlatformMapping{
					PlaceSlug:      placeSlug,
					Platform:       offers.Zomato,
					URL:            url,
					Confidence:     generatedZomatoConfidence,
					Source:         offers.SourceGenerated,
					LastVerifiedAt: verified,
				})
			}
		case offers.Swiggy:
			out = append(out, offers.PlacePlatformMapping{
				PlaceSlug:      placeSlug,
				Platform:       offers.Swiggy,
				URL:            "https://www.swiggy.com/restaurants/" + placeSlug + "-hyderabad",
				Confidence:     generatedSwiggyConfidence,
				Source:         offers.SourceGenerated,
				LastVerifiedAt: verified,
			})
		}
	}
	return out
}

// zomatoCandidates lists plausible Zomato page URLs for a venue, most
// likely first. Callers try them in order until one yields offers.
func zomatoCandidates(placeSlug string, identity *offers.PlaceIdentity) []string {
	const base = "https://www.zomato.com/hyderabad"
	urls := []string{base + "/" + placeSlug}
	seen := map[string]bool{urls[0]: true}
	add := func(u string) {
		if !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	for _, area := range hyderabadAreas {
		add(base + "/" + placeSlug + "-" + area)
	}
	if identity != nil {
		if identity.Area != "" {
			add(base + "/" + placeSlug + "-" + slugify(identity.Area))
		}
		if identity.Name != "" {
			if name := slugify(identity.Name); name != "" && name != placeSlug {
				add(base + "/" + name)
				for _, area := range hyderabadAreas[:3] {
					add(base + "/" + name + "-" + area)
				}
			}
		}
	}

	// Chains publish under fixed page names that the slug patterns above
	// never produce.
	brand := strings.ReplaceAll(placeSlug, "-", " ")
	if identity != nil && identity.Name != "" {
		brand = strings.ToLower(identity.Name)
	}
	if strings.Contains(brand, "starbucks") {
		area := hyderabadAreas[0]
		if identity != nil && identity.Area != "" {
			if a := slugify(identity.Area); a != "" {
				area = a
			}
		}
		add(base + "/starbucks-coffee-" + area)
	}
	if strings.Contains(brand, "hard rock") {
		add(base + "/hard-rock-cafe-banjara-hills")
	}
	if strings.Contains(brand, "one8") {
		add(base + "/one8-commune-hitech-city")
	}
	if strings.Contains(brand, "social") {
		add(base + "/social-hitech-city")
		add(base + "/social-jubilee-hills")
	}
	return urls
}

// Stats summarizes the manual-mapping corpus for diagnostics.
type Stats struct {
	TotalMappings int                       `json:"total_mappings"`
	ByPlatform    map[offers.Platform]int   `json:"by_platform"`
	UniquePlaces  int                       `json:"unique_places"`
	CatalogSize   int                       `json:"catalog_size"`
}

// ComputeStats aggregates counts over a full manual-mapping dump.
func (r *Resolver) ComputeStats(mappings []offers.PlacePlatformMapping) Stats {
	st := Stats{ByPlatform: map[offers.Platform]int{}, CatalogSize: len(r.catalog)}
	places := map[string]bool{}
	for _, m := range mappings {
		st.TotalMappings++
		st.ByPlatform[m.Platform]++
		places[m.PlaceSlug] = true
	}
	st.UniquePlaces = len(places)
	return st
}
