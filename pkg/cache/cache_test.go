package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/LAG-4/cafefinder/pkg/offers"
)

func testEntry(title string) Entry {
	return NewEntry([]offers.Offer{{ID: "x", Platform: offers.Zomato, Title: title}}, time.Now())
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New()

	if _, ok := c.Get(ctx, "cafe-a"); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	c.Set(ctx, "cafe-a", testEntry("20% off"))
	got, ok := c.Get(ctx, "cafe-a")
	if !ok {
		t.Fatal("expected hit after set")
	}
	if len(got.Offers) != 1 || got.Offers[0].Title != "20% off" {
		t.Fatalf("entry = %+v", got)
	}
	if got.LastRefreshedAt == "" || got.RefreshedAt == 0 {
		t.Fatalf("entry missing timestamps: %+v", got)
	}
}

func TestCacheDelete(t *testing.T) {
	ctx := context.Background()
	c := New()

	c.Set(ctx, "cafe-a", testEntry("20% off"))
	c.Delete(ctx, "cafe-a")
	if _, ok := c.Get(ctx, "cafe-a"); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestCacheClear(t *testing.T) {
	ctx := context.Background()
	c := New()

	c.Set(ctx, "cafe-a", testEntry("a"))
	c.Set(ctx, "cafe-b", testEntry("b"))
	c.Clear(ctx)
	if n := c.Stats(ctx).Size; n != 0 {
		t.Fatalf("size after clear = %d, want 0", n)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := New(WithTTL(20 * time.Millisecond))

	c.Set(ctx, "cafe-a", testEntry("short lived"))
	if _, ok := c.Get(ctx, "cafe-a"); !ok {
		t.Fatal("expected hit before expiry")
	}
	time.Sleep(50 * time.Millisecond)
	if _, ok := c.Get(ctx, "cafe-a"); ok {
		t.Fatal("expected miss after ttl")
	}
}

func TestCacheEviction(t *testing.T) {
	ctx := context.Background()
	c := New(WithMaxEntries(3))

	for i := 0; i < 5; i++ {
		c.Set(ctx, fmt.Sprintf("cafe-%d", i), testEntry("x"))
	}
	if n := c.Stats(ctx).Size; n > 3 {
		t.Fatalf("size = %d, want at most 3", n)
	}
	// The most recent write always survives.
	if _, ok := c.Get(ctx, "cafe-4"); !ok {
		t.Fatal("newest entry evicted")
	}
}

func TestCacheStats(t *testing.T) {
	ctx := context.Background()
	c := New(WithMaxEntries(10))
	c.Set(ctx, "cafe-a", testEntry("a"))

	st := c.Stats(ctx)
	if st.Size != 1 || st.Max != 10 || st.Remote {
		t.Fatalf("stats = %+v", st)
	}
}
