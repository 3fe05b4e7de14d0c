package providers

import (
	"context"

	"github.com/LAG-4/cafefinder/pkg/offers"
)

// Input identifies the page a provider should extract offers from.
type Input struct {
	URL       string
	PlaceSlug string
	Identity  *offers.PlaceIdentity
}

// OfferProvider defines a common interface for platform-specific offer
// extraction, abstracting away the fetch and parse details of each site.
//
// FetchOffers returns a non-nil error only for transport-level failures
// (timeouts, connection errors, upstream HTTP errors) so the governor can
// classify them. A page that parses but contains no offers is not an error.
type OfferProvider interface {
	Platform() offers.Platform
	FetchOffers(ctx context.Context, in Input) (offers.ProviderResult, error)
}

// Registry is the fixed set of provider implementations, keyed by platform
// and registered at startup.
type Registry struct {
	byPlatform map[offers.Platform]OfferProvider
}

func NewRegistry(provs ...OfferProvider) *Registry {
	r := &Registry{byPlatform: make(map[offers.Platform]OfferProvider, len(provs))}
	for _, p := range provs {
		r.byPlatform[p.Platform()] = p
	}
	return r
}

// Get returns the provider for a platform, or nil when none is registered.
func (r *Registry) Get(platform offers.Platform) OfferProvider {
	return r.byPlatform[platform]
}

// Platforms returns the registered platforms in trust order.
func (r *Registry) Platforms() []offers.Platform {
	var out []offers.Platform
	for _, p := range offers.AllPlatforms {
		if _, ok := r.byPlatform[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
