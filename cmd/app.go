package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/LAG-4/cafefinder/internal/utils"
	"github.com/LAG-4/cafefinder/pkg/aggregate"
	"github.com/LAG-4/cafefinder/pkg/cache"
	"github.com/LAG-4/cafefinder/pkg/fetch"
	"github.com/LAG-4/cafefinder/pkg/governor"
	"github.com/LAG-4/cafefinder/pkg/mapping"
	"github.com/LAG-4/cafefinder/pkg/offers"
	"github.com/LAG-4/cafefinder/pkg/providers"
	"github.com/LAG-4/cafefinder/pkg/providers/placeholder"
	"github.com/LAG-4/cafefinder/pkg/providers/swiggy"
	"github.com/LAG-4/cafefinder/pkg/providers/zomato"
	"github.com/LAG-4/cafefinder/pkg/scraping"
	"github.com/LAG-4/cafefinder/pkg/storage"
)

// app bundles the wired-up engine shared by the CLI commands.
type app struct {
	db   *storage.DB
	svc  *aggregate.Service
	orch *scraping.Orchestrator
}

func (a *app) Close() error {
	return a.db.Close()
}

func enabledPlatforms() []offers.Platform {
	var out []offers.Platform
	for _, s := range viper.GetStringSlice("providers.enabled") {
		out = append(out, offers.ParsePlatform(s))
	}
	if len(out) == 0 {
		out = []offers.Platform{offers.Zomato, offers.Swiggy}
	}
	return out
}

// buildApp opens storage and wires providers, mapping, governor, cache, and
// the aggregation service from config.
func buildApp(cmd *cobra.Command) (*app, error) {
	dbPath, _ := cmd.Flags().GetString("dbpath")
	if dbPath == "" {
		dbPath = "cafefinder.sqlite"
	}
	db, err := storage.Open(dbPath)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(viper.GetInt("scraping.timeout_seconds")) * time.Second
	client := fetch.NewClient(timeout)

	registry := providers.NewRegistry(
		zomato.New(client),
		swiggy.New(client),
		placeholder.New(offers.Dineout),
		placeholder.New(offers.EazyDiner),
		placeholder.New(offers.Magicpin),
	)

	resolver := mapping.NewResolver(mapping.WithManualSource(db))

	gov := governor.New(governor.Config{
		MaxParallel: viper.GetInt("scraping.max_parallel"),
		DefaultLimit: governor.RateLimit{
			RequestsPerMinute: viper.GetFloat64("scraping.requests_per_minute"),
			Burst:             viper.GetInt("scraping.burst"),
		},
	})

	cacheOpts := []cache.Option{
		cache.WithTTL(time.Duration(viper.GetInt("cache.ttl_minutes")) * time.Minute),
		cache.WithMaxEntries(viper.GetInt("cache.max_entries")),
	}
	if redisURL := viper.GetString("cache.redis_url"); redisURL != "" {
		remote, err := cache.NewRedisStore(redisURL)
		if err != nil {
			utils.Log.WithError(err).Warn("redis unavailable, using in-process cache only")
		} else {
			cacheOpts = append(cacheOpts, cache.WithRemote(remote))
		}
	}

	svc := aggregate.New(registry, resolver, gov, cache.New(cacheOpts...), aggregate.Config{
		GlobalTimeout: time.Duration(viper.GetInt("scraping.global_timeout_seconds")) * time.Second,
		Platforms:     enabledPlatforms(),
	})

	return &app{
		db:   db,
		svc:  svc,
		orch: scraping.NewOrchestrator(db, svc),
	}, nil
}
