package mapping

import (
	"context"
	"strings"
	"testing"

	"github.com/LAG-4/cafefinder/pkg/offers"
)

func manualSource(mappings ...offers.PlacePlatformMapping) ManualSource {
	return ManualSourceFunc(func(ctx context.Context, placeSlug string) ([]offers.PlacePlatformMapping, error) {
		var out []offers.PlacePlatformMapping
		for _, m := range mappings {
			if m.PlaceSlug == placeSlug {
				out = append(out, m)
			}
		}
		return out, nil
	})
}

var testCatalog = []CatalogEntry{
	{Name: "Hard Rock Cafe", Area: "Banjara Hills", Platform: offers.Zomato, URL: "https://www.zomato.com/hyderabad/hard-rock-cafe-banjara-hills"},
	{Name: "One8 Commune", Area: "Hitech City", Platform: offers.Zomato, URL: "https://www.zomato.com/hyderabad/one8-commune-hitech-city"},
	{Name: "Hard Rock Cafe", Area: "Banjara Hills", Platform: offers.Swiggy, URL: "https://www.swiggy.com/restaurants/hard-rock-cafe-banjara-hills-hyderabad"},
}

func TestResolveManualWins(t *testing.T) {
	manual := offers.PlacePlatformMapping{
		PlaceSlug:  "hard-rock-cafe",
		Platform:   offers.Zomato,
		URL:        "https://www.zomato.com/hyderabad/hard-rock-cafe-curated",
		Confidence: 1.0,
		Source:     offers.SourceManual,
	}
	r := NewResolver(WithManualSource(manualSource(manual)), WithCatalog(testCatalog))

	identity := &offers.PlaceIdentity{Name: "Hard Rock Cafe", Area: "Banjara Hills"}
	got, err := r.Resolve(context.Background(), "hard-rock-cafe", identity, []offers.Platform{offers.Zomato, offers.Swiggy})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("resolved %d mappings, want 2: %+v", len(got), got)
	}

	byPlatform := map[offers.Platform]offers.PlacePlatformMapping{}
	for _, m := range got {
		byPlatform[m.Platform] = m
	}
	if byPlatform[offers.Zomato].URL != manual.URL || byPlatform[offers.Zomato].Source != offers.SourceManual {
		t.Fatalf("zomato mapping = %+v, want curated manual", byPlatform[offers.Zomato])
	}
	// Swiggy had no manual entry, so the fuzzy tier fills it in.
	if byPlatform[offers.Swiggy].Source != offers.SourceFuzzy {
		t.Fatalf("swiggy mapping source = %v, want fuzzy", byPlatform[offers.Swiggy].Source)
	}
}

func TestResolveFuzzyNeedsFloor(t *testing.T) {
	r := NewResolver(WithCatalog(testCatalog))

	identity := &offers.PlaceIdentity{Name: "Totally Unrelated Bistro", Area: "Kukatpally"}
	got, err := r.Resolve(context.Background(), "totally-unrelated-bistro", identity, []offers.Platform{offers.Zomato})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	// Nothing in the catalog clears the floor, so the generated tier runs.
	for _, m := range got {
		if m.Source != offers.SourceGenerated {
			t.Fatalf("mapping source = %v, want generated: %+v", m.Source, m)
		}
	}
}

func TestResolveDeterministic(t *testing.T) {
	r := NewResolver(WithCatalog(testCatalog))
	identity := &offers.PlaceIdentity{Name: "Hard Rock Cafe", Area: "Banjara Hills"}

	first, err := r.Resolve(context.Background(), "hard-rock-cafe", identity, []offers.Platform{offers.Zomato, offers.Swiggy})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := r.Resolve(context.Background(), "hard-rock-cafe", identity, []offers.Platform{offers.Zomato, offers.Swiggy})
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
		if len(again) != len(first) {
			t.Fatalf("run %d resolved %d mappings, first run had %d", i, len(again), len(first))
		}
		for j := range again {
			if again[j] != first[j] {
				t.Fatalf("run %d differs at %d: %+v vs %+v", i, j, again[j], first[j])
			}
		}
	}
}

func TestGeneratedTierConfidence(t *testing.T) {
	r := NewResolver()
	got, err := r.Resolve(context.Background(), "new-cafe", nil, []offers.Platform{offers.Zomato, offers.Swiggy})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	platforms := map[offers.Platform]int{}
	for _, m := range got {
		platforms[m.Platform]++
		if m.Source != offers.SourceGenerated {
			t.Errorf("%s source = %v, want generated", m.Platform, m.Source)
		}
		if m.Confidence > 0.5 || m.Confidence < 0.3 {
			t.Errorf("%s confidence = %v, want within [0.3, 0.5]", m.Platform, m.Confidence)
		}
	}
	// The zomato tier guesses several area-suffixed URLs for fallback.
	if platforms[offers.Zomato] < 2 || platforms[offers.Swiggy] != 1 {
		t.Fatalf("generated candidates per platform = %v", platforms)
	}
	// Higher-confidence zomato candidates sort ahead of the swiggy guess.
	if got[0].Platform != offers.Zomato || got[len(got)-1].Platform != offers.Swiggy {
		t.Fatalf("candidates not in confidence order: %+v", got)
	}
}

func TestGeneratedSwiggyPattern(t *testing.T) {
	r := NewResolver()
	got, err := r.Resolve(context.Background(), "blue-tokai", nil, []offers.Platform{offers.Swiggy})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("resolved %d mappings, want 1", len(got))
	}
	if got[0].URL != "https://www.swiggy.com/restaurants/blue-tokai-hyderabad" {
		t.Fatalf("swiggy url = %s", got[0].URL)
	}
}

func TestZomatoCandidatesIncludeIdentityArea(t *testing.T) {
	urls := zomatoCandidates("roast-ccx", &offers.PlaceIdentity{Name: "Roast CCX", Area: "Film Nagar"})
	if urls[0] != "https://www.zomato.com/hyderabad/roast-ccx" {
		t.Fatalf("first candidate = %s, want bare slug", urls[0])
	}
	found := false
	for _, u := range urls {
		if u == "https://www.zomato.com/hyderabad/roast-ccx-film-nagar" {
			found = true
		}
	}
	if !found {
		t.Fatalf("candidates missing identity area variant: %v", urls)
	}
	seen := map[string]bool{}
	for _, u := range urls {
		if seen[u] {
			t.Fatalf("duplicate candidate %s", u)
		}
		seen[u] = true
	}
}

func TestZomatoCandidatesChainPatterns(t *testing.T) {
	cases := []struct {
		slug     string
		identity *offers.PlaceIdentity
		want     []string
	}{
		{
			slug:     "starbucks-banjara",
			identity: &offers.PlaceIdentity{Name: "Starbucks", Area: "Jubilee Hills"},
			want:     []string{"https://www.zomato.com/hyderabad/starbucks-coffee-jubilee-hills"},
		},
		{
			slug: "hard-rock-cafe",
			want: []string{"https://www.zomato.com/hyderabad/hard-rock-cafe-banjara-hills"},
		},
		{
			slug: "one8-commune",
			want: []string{"https://www.zomato.com/hyderabad/one8-commune-hitech-city"},
		},
		{
			slug: "social-offline",
			want: []string{
				"https://www.zomato.com/hyderabad/social-hitech-city",
				"https://www.zomato.com/hyderabad/social-jubilee-hills",
			},
		},
	}
	for _, tc := range cases {
		urls := zomatoCandidates(tc.slug, tc.identity)
		have := map[string]bool{}
		for _, u := range urls {
			have[u] = true
		}
		for _, w := range tc.want {
			if !have[w] {
				t.Errorf("%s: candidates missing chain page %s", tc.slug, w)
			}
		}
	}
}

func TestResolveStampsDateGranularity(t *testing.T) {
	r := NewResolver(WithCatalog(testCatalog))
	identity := &offers.PlaceIdentity{Name: "Hard Rock Cafe", Area: "Banjara Hills"}

	got, err := r.Resolve(context.Background(), "hard-rock-cafe", identity, []offers.Platform{offers.Zomato})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected fuzzy mapping")
	}
	for _, m := range got {
		v := m.LastVerifiedAt
		if v.Hour() != 0 || v.Minute() != 0 || v.Second() != 0 || v.Nanosecond() != 0 {
			t.Fatalf("last verified %v carries sub-day precision", v)
		}
	}
}

func TestBestURLFloor(t *testing.T) {
	// Generated mappings never clear the floor for single-URL lookups.
	r := NewResolver()
	url, err := r.BestURL(context.Background(), "new-cafe", offers.Zomato, nil)
	if err != nil {
		t.Fatalf("besturl failed: %v", err)
	}
	if url != "" {
		t.Fatalf("BestURL = %q, want empty for generated-only mappings", url)
	}

	manual := offers.PlacePlatformMapping{
		PlaceSlug:  "new-cafe",
		Platform:   offers.Zomato,
		URL:        "https://www.zomato.com/hyderabad/new-cafe-kondapur",
		Confidence: 1.0,
		Source:     offers.SourceManual,
	}
	r = NewResolver(WithManualSource(manualSource(manual)))
	url, err = r.BestURL(context.Background(), "new-cafe", offers.Zomato, nil)
	if err != nil {
		t.Fatalf("besturl failed: %v", err)
	}
	if url != manual.URL {
		t.Fatalf("BestURL = %q, want manual url", url)
	}
}

func TestSimilarityPrefersExactName(t *testing.T) {
	identity := offers.PlaceIdentity{Name: "Hard Rock Cafe", Area: "Banjara Hills"}
	exact := Similarity(identity, testCatalog[0])
	other := Similarity(identity, testCatalog[1])
	if exact <= other {
		t.Fatalf("exact match %v not above unrelated %v", exact, other)
	}
	if exact < fuzzyFloor {
		t.Fatalf("exact identity similarity %v under floor %v", exact, fuzzyFloor)
	}
}

func TestComputeStats(t *testing.T) {
	r := NewResolver(WithCatalog(testCatalog))
	st := r.ComputeStats([]offers.PlacePlatformMapping{
		{PlaceSlug: "a", Platform: offers.Zomato},
		{PlaceSlug: "a", Platform: offers.Swiggy},
		{PlaceSlug: "b", Platform: offers.Zomato},
	})
	if st.TotalMappings != 3 || st.UniquePlaces != 2 {
		t.Fatalf("stats = %+v", st)
	}
	if st.ByPlatform[offers.Zomato] != 2 || st.ByPlatform[offers.Swiggy] != 1 {
		t.Fatalf("by platform = %+v", st.ByPlatform)
	}
	if st.CatalogSize != len(testCatalog) {
		t.Fatalf("catalog size = %d", st.CatalogSize)
	}
}

func TestNormalize(t *testing.T) {
	got := normalize("Café-ONE8,  Commune!!")
	if strings.Contains(got, ",") || strings.Contains(got, "!") || strings.Contains(got, "  ") {
		t.Fatalf("normalize left punctuation or double spaces: %q", got)
	}
}
