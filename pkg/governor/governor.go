// Package governor gates every upstream call the engine makes: per-platform
// token buckets, a global in-flight ceiling, and a cooldown blocklist for
// platforms that push back. Calls that cannot proceed are skipped, not
// queued; the platform gets another chance on the next invocation.
package governor

import (
	"errors"
	"sync"
	"time"

	"github.com/LAG-4/cafefinder/pkg/fetch"
	"github.com/LAG-4/cafefinder/pkg/offers"
)

var (
	ErrBlocked     = errors.New("platform is cooling down")
	ErrMaxParallel = errors.New("global concurrency limit reached")
	ErrRateLimited = errors.New("rate limit exceeded")
)

// RateLimit configures one platform's token bucket.
type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

// Config holds the governor's tunables. Zero values fall back to defaults.
type Config struct {
	MaxParallel   int
	Limits        map[offers.Platform]RateLimit
	DefaultLimit  RateLimit
	BlockCooldown time.Duration
}

const (
	defaultMaxParallel   = 2
	defaultRPM           = 6
	defaultBurst         = 2
	defaultBlockCooldown = 30 * time.Minute

	rateLimitBlock = 30 * time.Minute
	authBlock      = 60 * time.Minute
)

type bucket struct {
	tokens     int
	capacity   int
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// refill lazily adds whole tokens based on elapsed wall-clock time.
// lastRefill only advances when at least one token accrued, so fractional
// progress is never lost. Tokens never exceed capacity.
func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	add := int(elapsed * b.refillRate)
	if add > 0 {
		b.tokens += add
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.lastRefill = now
	}
}

// Governor is a per-instance runtime guard. All state sits behind one mutex
// so concurrent goroutines never see torn bucket or blocklist updates.
type Governor struct {
	mu       sync.Mutex
	cfg      Config
	buckets  map[offers.Platform]*bucket
	blocked  map[offers.Platform]time.Time
	inFlight int
	now      func() time.Time
}

func New(cfg Config) *Governor {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = defaultMaxParallel
	}
	if cfg.DefaultLimit.RequestsPerMinute <= 0 {
		cfg.DefaultLimit.RequestsPerMinute = defaultRPM
	}
	if cfg.DefaultLimit.Burst <= 0 {
		cfg.DefaultLimit.Burst = defaultBurst
	}
	if cfg.BlockCooldown <= 0 {
		cfg.BlockCooldown = defaultBlockCooldown
	}
	return &Governor{
		cfg:     cfg,
		buckets: make(map[offers.Platform]*bucket),
		blocked: make(map[offers.Platform]time.Time),
		now:     time.Now,
	}
}

func (g *Governor) bucketFor(platform offers.Platform) *bucket {
	b, ok := g.buckets[platform]
	if !ok {
		limit := g.cfg.DefaultLimit
		if l, ok := g.cfg.Limits[platform]; ok {
			if l.RequestsPerMinute > 0 && l.Burst > 0 {
				limit = l
			}
		}
		b = &bucket{
			tokens:     limit.Burst,
			capacity:   limit.Burst,
			refillRate: limit.RequestsPerMinute / 60,
			lastRefill: g.now(),
		}
		g.buckets[platform] = b
	}
	return b
}

// Acquire checks the blocklist, the in-flight ceiling and the platform's
// token bucket, in that order. On success it returns a release func that
// must run in a guaranteed cleanup path (defer), success or failure, so the
// concurrency slot is never leaked.
func (g *Governor) Acquire(platform offers.Platform) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if until, ok := g.blocked[platform]; ok {
		if now.Before(until) {
			return nil, ErrBlocked
		}
		delete(g.blocked, platform)
	}

	if g.inFlight >= g.cfg.MaxParallel {
		return nil, ErrMaxParallel
	}

	b := g.bucketFor(platform)
	b.refill(now)
	if b.tokens < 1 {
		return nil, ErrRateLimited
	}
	b.tokens--
	g.inFlight++

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			if g.inFlight > 0 {
				g.inFlight--
			}
			g.mu.Unlock()
		})
	}, nil
}

// Classification describes how a failure should be handled.
type Classification struct {
	Retryable bool
	Block     bool
	BlockFor  time.Duration
}

// Classify maps a provider failure onto retry/cooldown behavior:
// 429/503 cool the platform down for 30 minutes, 401/403 for an hour,
// other 5xx and connection-level failures are retryable, 404 and anything
// else is terminal.
func Classify(err error) Classification {
	var he *fetch.HTTPError
	if errors.As(err, &he) {
		switch {
		case he.StatusCode == 429 || he.StatusCode == 503:
			return Classification{Block: true, BlockFor: rateLimitBlock}
		case he.StatusCode == 401 || he.StatusCode == 403:
			return Classification{Block: true, BlockFor: authBlock}
		case he.StatusCode >= 500:
			return Classification{Retryable: true}
		default:
			return Classification{}
		}
	}
	if fetch.IsTimeout(err) {
		return Classification{Retryable: true}
	}
	return Classification{}
}

// ReportFailure classifies err and applies any cooldown. Returns the
// classification so callers can log it.
func (g *Governor) ReportFailure(platform offers.Platform, err error) Classification {
	c := Classify(err)
	if c.Block {
		d := c.BlockFor
		if d <= 0 {
			d = g.cfg.BlockCooldown
		}
		g.Block(platform, d)
	}
	return c
}

func (g *Governor) Block(platform offers.Platform, d time.Duration) {
	g.mu.Lock()
	g.blocked[platform] = g.now().Add(d)
	g.mu.Unlock()
}

// Unblock lifts a cooldown early. Operational override only.
func (g *Governor) Unblock(platform offers.Platform) {
	g.mu.Lock()
	delete(g.blocked, platform)
	g.mu.Unlock()
}

func (g *Governor) IsBlocked(platform offers.Platform) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	until, ok := g.blocked[platform]
	if !ok {
		return false
	}
	if !g.now().Before(until) {
		delete(g.blocked, platform)
		return false
	}
	return true
}

// BucketStat is one platform's current token level.
type BucketStat struct {
	Platform        offers.Platform `json:"platform"`
	AvailableTokens int             `json:"availableTokens"`
}

// BlockStat is one blocklist entry with remaining cooldown.
type BlockStat struct {
	Platform  offers.Platform `json:"platform"`
	Until     time.Time       `json:"until"`
	Remaining time.Duration   `json:"remainingMs"`
}

// Stats is a point-in-time snapshot for operational visibility.
type Stats struct {
	InFlight    int          `json:"inFlight"`
	MaxParallel int          `json:"maxParallel"`
	Buckets     []BucketStat `json:"rateLimiters"`
	Blocked     []BlockStat  `json:"blockedPlatforms"`
}

func (g *Governor) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	s := Stats{InFlight: g.inFlight, MaxParallel: g.cfg.MaxParallel}
	for _, p := range offers.AllPlatforms {
		if b, ok := g.buckets[p]; ok {
			b.refill(now)
			s.Buckets = append(s.Buckets, BucketStat{Platform: p, AvailableTokens: b.tokens})
		}
		if until, ok := g.blocked[p]; ok && now.Before(until) {
			s.Blocked = append(s.Blocked, BlockStat{Platform: p, Until: until, Remaining: until.Sub(now)})
		}
	}
	return s
}
