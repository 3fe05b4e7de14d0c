package aggregate

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LAG-4/cafefinder/pkg/cache"
	"github.com/LAG-4/cafefinder/pkg/fetch"
	"github.com/LAG-4/cafefinder/pkg/governor"
	"github.com/LAG-4/cafefinder/pkg/mapping"
	"github.com/LAG-4/cafefinder/pkg/offers"
	"github.com/LAG-4/cafefinder/pkg/providers"
)

type stubProvider struct {
	platform offers.Platform
	calls    int32
	result   offers.ProviderResult
	err      error
}

func (s *stubProvider) Platform() offers.Platform { return s.platform }

func (s *stubProvider) FetchOffers(_ context.Context, _ providers.Input) (offers.ProviderResult, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.result, s.err
}

func manualMappings(ms ...offers.PlacePlatformMapping) mapping.ManualSourceFunc {
	return func(_ context.Context, placeSlug string) ([]offers.PlacePlatformMapping, error) {
		var out []offers.PlacePlatformMapping
		for _, m := range ms {
			if m.PlaceSlug == placeSlug {
				out = append(out, m)
			}
		}
		return out, nil
	}
}

func freshOffer(platform offers.Platform, title string) offers.Offer {
	return offers.Offer{
		ID:        offers.OfferID(platform, "test-cafe", title),
		Platform:  platform,
		Title:     title,
		DeepLink:  "https://example.com",
		FetchedAt: time.Now().UTC(),
	}
}

func newTestService(t *testing.T, ps ...providers.OfferProvider) *Service {
	t.Helper()
	resolver := mapping.NewResolver(mapping.WithManualSource(manualMappings(
		offers.PlacePlatformMapping{
			PlaceSlug: "test-cafe", Platform: offers.Zomato,
			URL: "https://www.zomato.com/hyderabad/test-cafe/info", Confidence: 1.0,
		},
		offers.PlacePlatformMapping{
			PlaceSlug: "test-cafe", Platform: offers.Swiggy,
			URL: "https://www.swiggy.com/restaurants/test-cafe-hyderabad", Confidence: 1.0,
		},
	)))
	return New(providers.NewRegistry(ps...), resolver, governor.New(governor.Config{MaxParallel: 4}),
		cache.New(), Config{GlobalTimeout: 5 * time.Second})
}

func TestGetOffersAggregatesAndCaches(t *testing.T) {
	zomato := &stubProvider{platform: offers.Zomato, result: offers.ProviderResult{
		Offers: []offers.Offer{freshOffer(offers.Zomato, "20% off total bill")},
	}}
	swiggy := &stubProvider{platform: offers.Swiggy, result: offers.ProviderResult{
		Offers: []offers.Offer{freshOffer(offers.Swiggy, "40% off up to 80")},
	}}
	svc := newTestService(t, zomato, swiggy)

	resp := svc.GetOffers(context.Background(), "test-cafe", nil, false)
	if len(resp.Offers) != 2 {
		t.Fatalf("got %d offers, want 2: %+v", len(resp.Offers), resp)
	}
	if len(resp.ProviderErrors) != 0 {
		t.Fatalf("unexpected diagnostics: %+v", resp.ProviderErrors)
	}
	if resp.LastRefreshedAt == "" {
		t.Fatal("refresh timestamp missing")
	}

	// Second call is served from cache without touching the providers.
	again := svc.GetOffers(context.Background(), "test-cafe", nil, false)
	if atomic.LoadInt32(&zomato.calls) != 1 || atomic.LoadInt32(&swiggy.calls) != 1 {
		t.Fatalf("providers called again on cache hit: zomato=%d swiggy=%d", zomato.calls, swiggy.calls)
	}
	if again.LastRefreshedAt != resp.LastRefreshedAt {
		t.Fatalf("cached timestamp %q != %q", again.LastRefreshedAt, resp.LastRefreshedAt)
	}

	// Force bypasses the cache.
	svc.GetOffers(context.Background(), "test-cafe", nil, true)
	if atomic.LoadInt32(&zomato.calls) != 2 {
		t.Fatalf("force refresh did not re-fetch: %d calls", zomato.calls)
	}
}

func TestGetOffersRanksByScore(t *testing.T) {
	weak := freshOffer(offers.Zomato, "5% off on weekdays")
	weak.DiscountPct = 5
	strong := freshOffer(offers.Zomato, "60% off total bill")
	strong.DiscountPct = 60
	zomato := &stubProvider{platform: offers.Zomato, result: offers.ProviderResult{
		Offers: []offers.Offer{weak, strong},
	}}
	swiggy := &stubProvider{platform: offers.Swiggy}
	svc := newTestService(t, zomato, swiggy)

	resp := svc.GetOffers(context.Background(), "test-cafe", nil, false)
	if len(resp.Offers) != 2 {
		t.Fatalf("got %d offers: %+v", len(resp.Offers), resp.Offers)
	}
	if resp.Offers[0].DiscountPct != 60 {
		t.Fatalf("best offer first = %+v", resp.Offers[0])
	}
}

func TestGetOffersNoMappings(t *testing.T) {
	svc := New(providers.NewRegistry(), mapping.NewResolver(), governor.New(governor.Config{}),
		cache.New(), Config{Platforms: []offers.Platform{offers.Dineout}})

	resp := svc.GetOffers(context.Background(), "unknown-cafe", nil, false)
	if len(resp.Offers) != 0 {
		t.Fatalf("offers = %+v, want none", resp.Offers)
	}
	if resp.Offers == nil {
		t.Fatal("offers must be an empty slice, not nil")
	}
	if len(resp.ProviderErrors) != 1 || resp.ProviderErrors[0].Platform != "all" {
		t.Fatalf("diagnostics = %+v", resp.ProviderErrors)
	}
}

func TestGetOffersPartialFailure(t *testing.T) {
	zomato := &stubProvider{platform: offers.Zomato,
		err: &fetch.HTTPError{StatusCode: http.StatusNotFound, URL: "https://www.zomato.com/x"}}
	swiggy := &stubProvider{platform: offers.Swiggy, result: offers.ProviderResult{
		Offers: []offers.Offer{freshOffer(offers.Swiggy, "40% off up to 80")},
	}}
	svc := newTestService(t, zomato, swiggy)

	resp := svc.GetOffers(context.Background(), "test-cafe", nil, false)
	if len(resp.Offers) != 1 || resp.Offers[0].Platform != offers.Swiggy {
		t.Fatalf("offers = %+v", resp.Offers)
	}
	if len(resp.ProviderErrors) != 1 || resp.ProviderErrors[0].Platform != "zomato" {
		t.Fatalf("diagnostics = %+v", resp.ProviderErrors)
	}
}

func TestRateLimitResponseCoolsPlatformDown(t *testing.T) {
	zomato := &stubProvider{platform: offers.Zomato,
		err: &fetch.HTTPError{StatusCode: http.StatusTooManyRequests, URL: "https://www.zomato.com/x"}}
	swiggy := &stubProvider{platform: offers.Swiggy}
	svc := newTestService(t, zomato, swiggy)

	svc.GetOffers(context.Background(), "test-cafe", nil, false)
	if atomic.LoadInt32(&zomato.calls) != 1 {
		t.Fatalf("zomato called %d times, want 1 before cooldown", zomato.calls)
	}
	if !svc.Governor().IsBlocked(offers.Zomato) {
		t.Fatal("zomato not blocked after 429")
	}
}

func TestOffersByPlatform(t *testing.T) {
	zomato := &stubProvider{platform: offers.Zomato, result: offers.ProviderResult{
		Offers: []offers.Offer{freshOffer(offers.Zomato, "20% off total bill")},
	}}
	svc := newTestService(t, zomato)

	got, err := svc.OffersByPlatform(context.Background(), "test-cafe", offers.Zomato, nil)
	if err != nil {
		t.Fatalf("offers by platform failed: %v", err)
	}
	if len(got) != 1 || got[0].Platform != offers.Zomato {
		t.Fatalf("offers = %+v", got)
	}

	// Generated candidates never clear the confidence floor, so a platform
	// with no curated mapping yields nothing rather than a guess.
	got, err = svc.OffersByPlatform(context.Background(), "test-cafe", offers.Dineout, nil)
	if err != nil || got != nil {
		t.Fatalf("dineout lookup = %+v, %v; want nil, nil", got, err)
	}
}

// slowProvider holds its response past the aggregation deadline.
type slowProvider struct {
	platform offers.Platform
}

func (s *slowProvider) Platform() offers.Platform { return s.platform }

func (s *slowProvider) FetchOffers(ctx context.Context, _ providers.Input) (offers.ProviderResult, error) {
	<-ctx.Done()
	time.Sleep(100 * time.Millisecond)
	return offers.ProviderResult{}, ctx.Err()
}

func TestGetOffersTimeoutKeepsPartialResults(t *testing.T) {
	zomato := &slowProvider{platform: offers.Zomato}
	swiggy := &stubProvider{platform: offers.Swiggy, result: offers.ProviderResult{
		Offers: []offers.Offer{
			freshOffer(offers.Swiggy, "30% off total bill"),
			freshOffer(offers.Swiggy, "Free dessert with mains"),
			freshOffer(offers.Swiggy, "Flat 100 off on 499"),
		},
	}}
	resolver := mapping.NewResolver(mapping.WithManualSource(manualMappings(
		offers.PlacePlatformMapping{
			PlaceSlug: "test-cafe", Platform: offers.Zomato,
			URL: "https://www.zomato.com/hyderabad/test-cafe/info", Confidence: 1.0,
		},
		offers.PlacePlatformMapping{
			PlaceSlug: "test-cafe", Platform: offers.Swiggy,
			URL: "https://www.swiggy.com/restaurants/test-cafe-hyderabad", Confidence: 1.0,
		},
	)))
	svc := New(providers.NewRegistry(zomato, swiggy), resolver,
		governor.New(governor.Config{MaxParallel: 4}), cache.New(),
		Config{GlobalTimeout: 150 * time.Millisecond})

	resp := svc.GetOffers(context.Background(), "test-cafe", nil, false)
	if len(resp.Offers) != 3 {
		t.Fatalf("got %d offers, want the 3 that arrived in time: %+v", len(resp.Offers), resp.Offers)
	}
	found := false
	for _, pe := range resp.ProviderErrors {
		if pe.Platform == string(offers.Zomato) && pe.Reason == "aggregation timeout" {
			found = true
		}
		if pe.Platform == "pending" {
			t.Fatalf("diagnostic lost its platform: %+v", pe)
		}
	}
	if !found {
		t.Fatalf("missing timeout diagnostic for the slow platform: %+v", resp.ProviderErrors)
	}
}

// urlSwitchProvider fails one URL and answers normally for the rest.
type urlSwitchProvider struct {
	platform offers.Platform
	failURL  string
	result   offers.ProviderResult
}

func (p *urlSwitchProvider) Platform() offers.Platform { return p.platform }

func (p *urlSwitchProvider) FetchOffers(_ context.Context, in providers.Input) (offers.ProviderResult, error) {
	if in.URL == p.failURL {
		return offers.ProviderResult{}, &fetch.HTTPError{StatusCode: 404, URL: in.URL}
	}
	return p.result, nil
}

func TestFetchWithFallbackRetainsEarlierErrors(t *testing.T) {
	p := &urlSwitchProvider{
		platform: offers.Zomato,
		failURL:  "https://www.zomato.com/hyderabad/test-cafe",
		result: offers.ProviderResult{
			Offers: []offers.Offer{freshOffer(offers.Zomato, "20% off total bill")},
		},
	}
	svc := New(providers.NewRegistry(p), mapping.NewResolver(),
		governor.New(governor.Config{MaxParallel: 4}), cache.New(), Config{})

	ms := []offers.PlacePlatformMapping{
		{PlaceSlug: "test-cafe", Platform: offers.Zomato, URL: "https://www.zomato.com/hyderabad/test-cafe"},
		{PlaceSlug: "test-cafe", Platform: offers.Zomato, URL: "https://www.zomato.com/hyderabad/test-cafe-banjara-hills"},
	}
	result := svc.fetchWithFallback(context.Background(), offers.Zomato, ms, nil)
	if len(result.Offers) != 1 {
		t.Fatalf("got %d offers, want the fallback URL's offer", len(result.Offers))
	}
	if len(result.Errors) != 1 {
		t.Fatalf("first-attempt error dropped: %+v", result.Errors)
	}
}
