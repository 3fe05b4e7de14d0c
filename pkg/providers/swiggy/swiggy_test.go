package swiggy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/LAG-4/cafefinder/pkg/fetch"
	"github.com/LAG-4/cafefinder/pkg/offers"
	"github.com/LAG-4/cafefinder/pkg/providers"
)

func serve(t *testing.T, html string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(html))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchOffersStructured(t *testing.T) {
	srv := serve(t, `<html><body>
<div class="offer-container">
  <div class="offer-header">60% OFF up to ₹120</div>
  <p class="offer-description">Use code STEALDEAL on orders above ₹199</p>
</div>
</body></html>`)

	p := New(fetch.NewClient(5 * time.Second))
	res, err := p.FetchOffers(context.Background(), providers.Input{URL: srv.URL, PlaceSlug: "test-cafe"})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(res.Offers) != 1 {
		t.Fatalf("got %d offers, want 1: %+v", len(res.Offers), res.Offers)
	}

	o := res.Offers[0]
	if o.Platform != offers.Swiggy {
		t.Fatalf("platform = %v", o.Platform)
	}
	if o.Title != "60% OFF up to ₹120" {
		t.Fatalf("title = %q", o.Title)
	}
	if o.DiscountPct != 60 {
		t.Fatalf("discount = %v, want 60", o.DiscountPct)
	}
	if o.MinSpend != 199 {
		t.Fatalf("min spend = %v, want 199", o.MinSpend)
	}
}

func TestFetchOffersInitialState(t *testing.T) {
	srv := serve(t, `<html><body>
<script>
window.___INITIAL_STATE___ = {"restaurant":{"offers":[
  {"header":"50% off up to ₹100","couponCode":"TRYNEW","description":"New users only"},
  {"header":"hi"}
]}};
</script>
</body></html>`)

	p := New(fetch.NewClient(5 * time.Second))
	res, err := p.FetchOffers(context.Background(), providers.Input{URL: srv.URL, PlaceSlug: "test-cafe"})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(res.Offers) != 1 {
		t.Fatalf("got %d offers, want 1: %+v", len(res.Offers), res.Offers)
	}

	o := res.Offers[0]
	if o.Title != "50% off up to ₹100 TRYNEW" {
		t.Fatalf("title = %q, want header plus coupon code", o.Title)
	}
	if o.Description != "New users only" {
		t.Fatalf("description = %q", o.Description)
	}
	if o.DiscountPct != 50 {
		t.Fatalf("discount = %v", o.DiscountPct)
	}
}

func TestFetchOffersFallback(t *testing.T) {
	srv := serve(t, `<html><body>
<p>Order now and get flat ₹75 off on your first three orders.</p>
</body></html>`)

	p := New(fetch.NewClient(5 * time.Second))
	res, err := p.FetchOffers(context.Background(), providers.Input{URL: srv.URL, PlaceSlug: "test-cafe"})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(res.Offers) == 0 {
		t.Fatal("fallback extraction found nothing")
	}
	if res.Offers[0].Platform != offers.Swiggy {
		t.Fatalf("platform = %v", res.Offers[0].Platform)
	}
}

func TestPlaceSlugFromURL(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://www.swiggy.com/restaurants/roast-ccx-banjara-hills-hyderabad", "roast-ccx-banjara-hills"},
		{"https://www.swiggy.com/restaurants/blue-tokai-coffee/", "blue-tokai-coffee"},
	}
	for _, tc := range cases {
		if got := placeSlugFromURL(tc.url); got != tc.want {
			t.Errorf("placeSlugFromURL(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}
