// Package scraping runs batch offer collection across the tracked venues,
// pacing requests so the platforms keep answering.
package scraping

import (
	"context"
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/LAG-4/cafefinder/internal/utils"
	"github.com/LAG-4/cafefinder/pkg/aggregate"
	"github.com/LAG-4/cafefinder/pkg/dedup"
	"github.com/LAG-4/cafefinder/pkg/offers"
	"github.com/LAG-4/cafefinder/pkg/storage"
)

// Strategy selects how aggressively a batch run paces itself.
type Strategy string

const (
	// StrategySmart runs small parallel chunks with adaptive inter-chunk
	// delays keyed off the success rate.
	StrategySmart Strategy = "smart"
	// StrategyConservative runs venues sequentially with long gaps,
	// trading speed for reliability.
	StrategyConservative Strategy = "conservative"
)

// Mode selects which venues a run covers.
type Mode string

const (
	// ModeDue scrapes only venues whose next-scrape time has passed.
	ModeDue Mode = "due"
	// ModeAll scrapes every tracked venue.
	ModeAll Mode = "all"
)

const (
	smartChunkSize  = 3
	smartChunkDelay = 5 * time.Second
	smartMinDelay   = 2 * time.Second

	conservativeChunkSize = 2
	conservativeBaseDelay = 10 * time.Second
)

// Summary is the outcome of one batch run.
type Summary struct {
	Success  int      `json:"success"`
	Failed   int      `json:"failed"`
	Total    int      `json:"total"`
	Strategy Strategy `json:"strategy"`
}

// Orchestrator drives batch scraping: venue selection, pacing, persistence.
type Orchestrator struct {
	db  *storage.DB
	svc *aggregate.Service

	// sleep is swapped out in tests so pacing logic runs instantly.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(db *storage.DB, svc *aggregate.Service) *Orchestrator {
	return &Orchestrator{
		db:    db,
		svc:   svc,
		sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// jitter returns a random duration in [min, max). The package-level rand
// source is used because chunk goroutines call this concurrently.
func jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// Run executes one batch pass and reports the outcome. A canceled context
// stops between venues; work already persisted stays persisted.
func (o *Orchestrator) Run(ctx context.Context, mode Mode, strategy Strategy, limit int) (Summary, error) {
	venues, err := o.selectVenues(ctx, mode, limit)
	if err != nil {
		return Summary{Strategy: strategy}, err
	}
	if len(venues) == 0 {
		utils.Log.Info("no venues need scraping")
		return Summary{Strategy: strategy}, nil
	}

	utils.Log.WithFields(logrus.Fields{
		"venues":   len(venues),
		"mode":     mode,
		"strategy": strategy,
	}).Info("starting batch scrape")

	var sum Summary
	switch strategy {
	case StrategyConservative:
		sum = o.runConservative(ctx, venues)
	default:
		sum = o.runSmart(ctx, venues)
	}
	sum.Strategy = strategy

	utils.Log.WithFields(logrus.Fields{
		"success": sum.Success,
		"failed":  sum.Failed,
		"total":   sum.Total,
	}).Info("batch scrape complete")
	return sum, nil
}

func (o *Orchestrator) selectVenues(ctx context.Context, mode Mode, limit int) ([]storage.VenueStatus, error) {
	if mode == ModeAll {
		venues, err := o.db.ListTracked(ctx)
		if err != nil {
			return nil, err
		}
		if limit > 0 && len(venues) > limit {
			venues = venues[:limit]
		}
		return venues, nil
	}
	return o.db.ListDue(ctx, limit)
}

func (o *Orchestrator) runSmart(ctx context.Context, venues []storage.VenueStatus) Summary {
	sum := Summary{Total: len(venues)}
	totalChunks := (len(venues) + smartChunkSize - 1) / smartChunkSize

	for i := 0; i < len(venues); i += smartChunkSize {
		if ctx.Err() != nil {
			break
		}
		end := i + smartChunkSize
		if end > len(venues) {
			end = len(venues)
		}
		chunk := venues[i:end]
		chunkNum := i/smartChunkSize + 1

		utils.Log.WithFields(logrus.Fields{
			"chunk":  fmt.Sprintf("%d/%d", chunkNum, totalChunks),
			"venues": len(chunk),
		}).Info("processing chunk")

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for idx, v := range chunk {
			wg.Add(1)
			go func(idx int, v storage.VenueStatus) {
				defer wg.Done()
				// Stagger starts so the chunk never lands at once.
				stagger := time.Duration(idx+1) * jitter(time.Second, 3*time.Second)
				if err := o.sleep(ctx, stagger); err != nil {
					return
				}
				if err := o.ScrapeVenue(ctx, v); err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}(idx, v)
		}
		wg.Wait()

		sum.Success += succeeded
		sum.Failed += len(chunk) - succeeded

		if end < len(venues) {
			rate := float64(succeeded) / float64(len(chunk))
			delay := smartChunkDelay
			switch {
			case rate < 0.5:
				delay = smartChunkDelay * 2
				utils.Log.WithField("rate", rate).Warn("low success rate, increasing chunk delay")
			case rate > 0.8:
				delay = time.Duration(float64(smartChunkDelay) * 0.7)
				if delay < smartMinDelay {
					delay = smartMinDelay
				}
			}
			if err := o.sleep(ctx, delay); err != nil {
				break
			}
		}
	}
	return sum
}

func (o *Orchestrator) runConservative(ctx context.Context, venues []storage.VenueStatus) Summary {
	sum := Summary{Total: len(venues)}

	for i := 0; i < len(venues); i += conservativeChunkSize {
		if ctx.Err() != nil {
			break
		}
		end := i + conservativeChunkSize
		if end > len(venues) {
			end = len(venues)
		}
		chunk := venues[i:end]

		failed := 0
		for j, v := range chunk {
			if j > 0 {
				if err := o.sleep(ctx, jitter(3*time.Second, 7*time.Second)); err != nil {
					return sum
				}
			}
			if err := o.ScrapeVenue(ctx, v); err != nil {
				failed++
			}
		}
		sum.Success += len(chunk) - failed
		sum.Failed += failed

		if end < len(venues) {
			failureRate := float64(failed) / float64(len(chunk))
			delay := conservativeBaseDelay
			switch {
			case failureRate > 0.5:
				delay = conservativeBaseDelay * 2
			case failureRate > 0:
				delay = conservativeBaseDelay * 3 / 2
			}
			delay += jitter(0, 5*time.Second)
			if err := o.sleep(ctx, delay); err != nil {
				break
			}
		}
	}
	return sum
}

// ScrapeVenue fetches, dedups, and persists the offer set for one venue,
// updating its scrape schedule either way.
func (o *Orchestrator) ScrapeVenue(ctx context.Context, v storage.VenueStatus) error {
	identity := v.Identity()
	resp := o.svc.GetOffers(ctx, v.PlaceSlug, &identity, true)

	if len(resp.Offers) == 0 && len(resp.ProviderErrors) > 0 {
		reasons := make([]string, 0, len(resp.ProviderErrors))
		for _, pe := range resp.ProviderErrors {
			reasons = append(reasons, pe.Platform+": "+pe.Reason)
		}
		reason := strings.Join(reasons, "; ")
		if err := o.db.RecordScrapeFailure(ctx, v.PlaceSlug, reason); err != nil {
			return err
		}
		utils.Log.WithFields(logrus.Fields{"place": v.PlaceSlug, "reason": reason}).Warn("venue scrape failed")
		return fmt.Errorf("scrape %s: %s", v.PlaceSlug, reason)
	}

	deduped := dedup.Dedupe(resp.Offers)
	if err := o.db.ReplaceOffersForPlace(ctx, v.PlaceSlug, deduped); err != nil {
		_ = o.db.RecordScrapeFailure(ctx, v.PlaceSlug, "persist: "+err.Error())
		return err
	}
	if err := o.db.RecordScrapeSuccess(ctx, v.PlaceSlug, len(deduped)); err != nil {
		return err
	}

	utils.Log.WithFields(logrus.Fields{"place": v.PlaceSlug, "offers": len(deduped)}).Info("venue scraped")
	return nil
}

// RunContinuous scrapes due venues on an interval until the context ends.
// The first pass runs immediately.
func (o *Orchestrator) RunContinuous(ctx context.Context, interval time.Duration, strategy Strategy, batchSize int) error {
	if interval <= 0 {
		interval = time.Hour
	}
	run := func() {
		if _, err := o.Run(ctx, ModeDue, strategy, batchSize); err != nil {
			utils.Log.WithError(err).Error("scheduled scrape failed")
		}
	}
	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			run()
		}
	}
}

// InitializeFromCSV seeds tracked venues and manual Zomato mappings from a
// venue list export. Expected headers include Name, Zomato, and Location;
// rows without a usable Zomato URL are still tracked for other platforms.
func (o *Orchestrator) InitializeFromCSV(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return 0, err
	}
	if len(records) < 2 {
		return 0, nil
	}

	col := map[string]int{}
	for i, h := range records[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	initialized := 0
	for _, row := range records[1:] {
		name := field(row, "name")
		if name == "" {
			continue
		}
		slug := utils.Slugify(name)
		identity := offers.PlaceIdentity{Name: name, Area: field(row, "location")}
		if err := o.db.TrackVenue(ctx, slug, identity); err != nil {
			return initialized, err
		}

		if url := field(row, "zomato"); strings.HasPrefix(url, "https://www.zomato.com/") {
			err := o.db.PutManualMapping(ctx, offers.PlacePlatformMapping{
				PlaceSlug:  slug,
				Platform:   offers.Zomato,
				URL:        url,
				Confidence: 1.0,
				Source:     offers.SourceManual,
			})
			if err != nil {
				return initialized, err
			}
		}
		initialized++
		utils.Log.WithFields(logrus.Fields{"name": name, "slug": slug}).Debug("initialized venue")
	}
	utils.Log.WithField("venues", initialized).Info("initialized venues from csv")
	return initialized, nil
}
