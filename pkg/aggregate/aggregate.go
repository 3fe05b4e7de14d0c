// Package aggregate answers "what offers does this venue have right now" by
// fanning out to the platform providers, subject to the cache and the
// request governor.
package aggregate

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/LAG-4/cafefinder/internal/utils"
	"github.com/LAG-4/cafefinder/pkg/cache"
	"github.com/LAG-4/cafefinder/pkg/governor"
	"github.com/LAG-4/cafefinder/pkg/mapping"
	"github.com/LAG-4/cafefinder/pkg/offers"
	"github.com/LAG-4/cafefinder/pkg/providers"
	"github.com/LAG-4/cafefinder/pkg/ranking"
)

// DefaultGlobalTimeout bounds one whole aggregation pass. Platforms that
// miss the deadline are reported as errors, never awaited.
const DefaultGlobalTimeout = 20 * time.Second

type Config struct {
	GlobalTimeout time.Duration
	// Platforms enabled for aggregation, in the order they are tried.
	Platforms []offers.Platform
}

func (c Config) withDefaults() Config {
	if c.GlobalTimeout <= 0 {
		c.GlobalTimeout = DefaultGlobalTimeout
	}
	if len(c.Platforms) == 0 {
		c.Platforms = []offers.Platform{offers.Zomato, offers.Swiggy}
	}
	return c
}

// Service is the on-demand aggregation entry point used by the HTTP server
// and the CLI.
type Service struct {
	registry *providers.Registry
	resolver *mapping.Resolver
	gov      *governor.Governor
	cache    *cache.Cache
	cfg      Config
}

func New(registry *providers.Registry, resolver *mapping.Resolver, gov *governor.Governor, c *cache.Cache, cfg Config) *Service {
	return &Service{
		registry: registry,
		resolver: resolver,
		gov:      gov,
		cache:    c,
		cfg:      cfg.withDefaults(),
	}
}

// GetOffers returns the aggregated offers for a venue. With force set the
// cache entry is dropped first so the platforms are re-fetched. The caller
// always receives a response; per-platform failures turn into diagnostics.
func (s *Service) GetOffers(ctx context.Context, placeSlug string, identity *offers.PlaceIdentity, force bool) offers.Response {
	if force {
		s.cache.Delete(ctx, placeSlug)
	} else if entry, ok := s.cache.Get(ctx, placeSlug); ok {
		utils.Log.WithField("place", placeSlug).Debug("returning cached offers")
		return offers.Response{
			PlaceSlug:       placeSlug,
			LastRefreshedAt: entry.LastRefreshedAt,
			Offers:          entry.Offers,
		}
	}

	utils.Log.WithField("place", placeSlug).Info("fetching fresh offers")
	now := time.Now().UTC()

	mappings, err := s.resolver.Resolve(ctx, placeSlug, identity, s.cfg.Platforms)
	if err != nil {
		utils.Log.WithError(err).WithField("place", placeSlug).Error("mapping resolution failed")
		return offers.Response{
			PlaceSlug:       placeSlug,
			LastRefreshedAt: now.Format(time.RFC3339),
			Offers:          []offers.Offer{},
			ProviderErrors:  []offers.ProviderError{{Platform: "all", Reason: "mapping resolution failed: " + err.Error()}},
		}
	}
	if len(mappings) == 0 {
		utils.Log.WithField("place", placeSlug).Warn("no platform mappings found")
		return offers.Response{
			PlaceSlug:       placeSlug,
			LastRefreshedAt: now.Format(time.RFC3339),
			Offers:          []offers.Offer{},
			ProviderErrors:  []offers.ProviderError{{Platform: "all", Reason: "no platform mappings found"}},
		}
	}

	byPlatform := map[offers.Platform][]offers.PlacePlatformMapping{}
	var order []offers.Platform
	for _, m := range mappings {
		if _, ok := byPlatform[m.Platform]; !ok {
			order = append(order, m.Platform)
		}
		byPlatform[m.Platform] = append(byPlatform[m.Platform], m)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.GlobalTimeout)
	defer cancel()

	type platformResult struct {
		platform offers.Platform
		result   offers.ProviderResult
	}
	// Buffered so late finishers never leak after the deadline fires.
	results := make(chan platformResult, len(order))
	for _, p := range order {
		go func(platform offers.Platform, ms []offers.PlacePlatformMapping) {
			results <- platformResult{platform: platform, result: s.fetchWithFallback(fetchCtx, platform, ms, identity)}
		}(p, byPlatform[p])
	}

	var (
		all      []offers.Offer
		provErrs []offers.ProviderError
	)
	arrived := map[offers.Platform]bool{}
	for len(arrived) < len(order) {
		select {
		case r := <-results:
			arrived[r.platform] = true
			all = append(all, r.result.Offers...)
			for _, reason := range r.result.Errors {
				provErrs = append(provErrs, offers.ProviderError{Platform: string(r.platform), Reason: reason})
			}
		case <-fetchCtx.Done():
			// Keep whatever arrived; each missing platform becomes its own
			// diagnostic.
			for _, p := range order {
				if arrived[p] {
					continue
				}
				arrived[p] = true
				provErrs = append(provErrs, offers.ProviderError{Platform: string(p), Reason: "aggregation timeout"})
			}
		}
	}

	valid := ranking.FilterValid(all)
	ranked := ranking.Rank(valid)

	utils.Log.WithFields(logrus.Fields{
		"place":    placeSlug,
		"fetched":  len(all),
		"valid":    len(valid),
		"mappings": len(mappings),
		"errors":   len(provErrs),
	}).Info("offers aggregation completed")

	resp := offers.Response{
		PlaceSlug:       placeSlug,
		LastRefreshedAt: now.Format(time.RFC3339),
		Offers:          ranked,
		ProviderErrors:  provErrs,
	}
	if resp.Offers == nil {
		resp.Offers = []offers.Offer{}
	}
	s.cache.Set(ctx, placeSlug, cache.NewEntry(ranked, now))
	return resp
}

// fetchWithFallback tries a platform's candidate URLs in confidence order
// and stops at the first one that yields offers. Errors from earlier
// attempts ride along as diagnostics even when a later URL succeeds.
func (s *Service) fetchWithFallback(ctx context.Context, platform offers.Platform, ms []offers.PlacePlatformMapping, identity *offers.PlaceIdentity) offers.ProviderResult {
	provider := s.registry.Get(platform)
	if provider == nil {
		return offers.ProviderResult{Errors: []string{"provider not found for platform: " + string(platform)}}
	}

	var errs []string
	for _, m := range ms {
		if err := ctx.Err(); err != nil {
			errs = append(errs, "aggregation timeout")
			break
		}

		release, err := s.gov.Acquire(platform)
		if err != nil {
			// Blocked or saturated; later URLs would hit the same wall.
			errs = append(errs, err.Error())
			break
		}
		result, err := provider.FetchOffers(ctx, providers.Input{URL: m.URL, PlaceSlug: m.PlaceSlug, Identity: identity})
		release()

		if err != nil {
			cls := s.gov.ReportFailure(platform, err)
			utils.Log.WithFields(logrus.Fields{
				"platform":  platform,
				"url":       truncate(m.URL, 80),
				"retryable": cls.Retryable,
				"blocked":   cls.Block,
			}).Warn("provider fetch failed")
			errs = append(errs, err.Error())
			if cls.Block {
				break
			}
			continue
		}

		utils.Log.WithFields(logrus.Fields{
			"platform": platform,
			"url":      truncate(m.URL, 80),
			"offers":   len(result.Offers),
		}).Info("provider fetch completed")

		errs = append(errs, result.Errors...)
		if len(result.Offers) > 0 {
			return offers.ProviderResult{Offers: result.Offers, Errors: errs}
		}
	}

	return offers.ProviderResult{Errors: errs}
}

// OffersByPlatform fetches a single platform for a venue, using only a
// high-confidence mapping.
func (s *Service) OffersByPlatform(ctx context.Context, placeSlug string, platform offers.Platform, identity *offers.PlaceIdentity) ([]offers.Offer, error) {
	url, err := s.resolver.BestURL(ctx, placeSlug, platform, identity)
	if err != nil {
		return nil, err
	}
	if url == "" {
		return nil, nil
	}
	result := s.fetchWithFallback(ctx, platform, []offers.PlacePlatformMapping{{
		PlaceSlug: placeSlug,
		Platform:  platform,
		URL:       url,
	}}, identity)
	return ranking.FilterValid(result.Offers), nil
}

// Governor exposes the runtime governor for diagnostics endpoints.
func (s *Service) Governor() *governor.Governor { return s.gov }

// Cache exposes the cache for diagnostics endpoints.
func (s *Service) Cache() *cache.Cache { return s.cache }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
