// Package placeholder provides providers for platforms whose extraction
// logic is not built yet. They return a terminal not-implemented diagnostic
// without touching the network, which callers treat as a valid empty result
// rather than a failure to retry.
package placeholder

import (
	"context"

	"github.com/LAG-4/cafefinder/pkg/offers"
	"github.com/LAG-4/cafefinder/pkg/providers"
)

type Provider struct {
	platform offers.Platform
}

func New(platform offers.Platform) *Provider {
	return &Provider{platform: platform}
}

func (p *Provider) Platform() offers.Platform {
	return p.platform
}

func (p *Provider) FetchOffers(_ context.Context, _ providers.Input) (offers.ProviderResult, error) {
	return offers.ProviderResult{
		Errors: []string{string(p.platform) + "_provider_not_implemented"},
	}, nil
}
