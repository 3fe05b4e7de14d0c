// Package storage persists scraped offers, venue scrape status, and curated
// platform mappings in a local sqlite database.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"

	"github.com/LAG-4/cafefinder/pkg/offers"
)

const (
	// Re-scrape intervals written into next_scrape_after.
	successInterval = time.Hour
	failureInterval = 4 * time.Hour
)

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS offers (
  offer_id        TEXT NOT NULL,
  place_slug      TEXT NOT NULL,
  platform        TEXT NOT NULL,
  title           TEXT NOT NULL,
  description     TEXT,
  validity_text   TEXT,
  price_text      TEXT,
  discount_pct    REAL NOT NULL DEFAULT 0,
  min_spend       REAL NOT NULL DEFAULT 0,
  terms           TEXT,
  deep_link       TEXT NOT NULL,
  offer_type      TEXT,
  active          INTEGER NOT NULL DEFAULT 1 CHECK (active IN (0,1)),
  fetched_at      DATETIME NOT NULL,
  last_checked_at DATETIME NOT NULL,
  PRIMARY KEY (place_slug, offer_id)
);
CREATE INDEX IF NOT EXISTS idx_offers_place ON offers(place_slug, active);
CREATE INDEX IF NOT EXISTS idx_offers_platform ON offers(platform);
CREATE TABLE IF NOT EXISTS scrape_status (
  place_slug           TEXT PRIMARY KEY,
  place_name           TEXT,
  area                 TEXT,
  address              TEXT,
  last_scraped_at      DATETIME,
  last_success_at      DATETIME,
  next_scrape_after    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  offer_count          INTEGER NOT NULL DEFAULT 0,
  consecutive_failures INTEGER NOT NULL DEFAULT 0,
  last_error           TEXT
);
CREATE INDEX IF NOT EXISTS idx_status_due ON scrape_status(next_scrape_after);
CREATE TABLE IF NOT EXISTS manual_mappings (
  place_slug       TEXT NOT NULL,
  platform         TEXT NOT NULL,
  url              TEXT NOT NULL,
  confidence       REAL NOT NULL DEFAULT 1.0,
  last_verified_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (place_slug, platform)
);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// ReplaceOffersForPlace swaps the stored offer set for a venue with the
// latest scrape result in one transaction. Offers that disappeared from the
// platforms are kept but flagged inactive so history survives a flaky scrape.
func (d *DB) ReplaceOffersForPlace(ctx context.Context, placeSlug string, in []offers.Offer) (err error) {
	now := time.Now().UTC()

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `UPDATE offers SET active = 0 WHERE place_slug = ?`, placeSlug); err != nil {
		return err
	}

	for _, o := range in {
		var terms interface{}
		if len(o.Terms) > 0 {
			b, merr := json.Marshal(o.Terms)
			if merr != nil {
				return merr
			}
			terms = string(b)
		}
		fetchedAt := o.FetchedAt
		if fetchedAt.IsZero() {
			fetchedAt = now
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO offers(offer_id, place_slug, platform, title, description, validity_text, price_text, discount_pct, min_spend, terms, deep_link, offer_type, active, fetched_at, last_checked_at)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?,1,?,?)
ON CONFLICT(place_slug, offer_id) DO UPDATE SET
  title = excluded.title,
  description = excluded.description,
  validity_text = excluded.validity_text,
  price_text = excluded.price_text,
  discount_pct = excluded.discount_pct,
  min_spend = excluded.min_spend,
  terms = excluded.terms,
  deep_link = excluded.deep_link,
  offer_type = excluded.offer_type,
  active = 1,
  last_checked_at = excluded.last_checked_at`,
			o.ID, placeSlug, string(o.Platform), o.Title, nullIfEmpty(o.Description),
			nullIfEmpty(o.ValidityText), nullIfEmpty(o.EffectivePriceText),
			o.DiscountPct, o.MinSpend, terms, o.DeepLink, nullIfEmpty(o.OfferType),
			fetchedAt, now)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ActiveOffers returns the currently active offers for a venue.
func (d *DB) ActiveOffers(ctx context.Context, placeSlug string) ([]offers.Offer, error) {
	q := `SELECT offer_id, platform, title, description, validity_text, price_text, discount_pct, min_spend, terms, deep_link, offer_type, fetched_at, last_checked_at
FROM offers WHERE place_slug = ? AND active = 1 ORDER BY platform, title`
	rows, err := d.sql.QueryContext(ctx, q, placeSlug)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []offers.Offer
	for rows.Next() {
		var (
			o                            offers.Offer
			platform                     string
			desc, validity, price, terms sql.NullString
			offerType                    sql.NullString
		)
		if err := rows.Scan(&o.ID, &platform, &o.Title, &desc, &validity, &price,
			&o.DiscountPct, &o.MinSpend, &terms, &o.DeepLink, &offerType,
			&o.FetchedAt, &o.LastCheckedAt); err != nil {
			return nil, err
		}
		o.Platform = offers.Platform(platform)
		o.Description = desc.String
		o.ValidityText = validity.String
		o.EffectivePriceText = price.String
		o.OfferType = offerType.String
		if terms.Valid && terms.String != "" {
			// Terms stored as a JSON array; a malformed row is skipped, not fatal.
			_ = json.Unmarshal([]byte(terms.String), &o.Terms)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// VenueStatus is the scrape bookkeeping row for one tracked venue.
type VenueStatus struct {
	PlaceSlug           string
	Name                string
	Area                string
	Address             string
	LastScrapedAt       time.Time
	LastSuccessAt       time.Time
	NextScrapeAfter     time.Time
	OfferCount          int
	ConsecutiveFailures int
	LastError           string
}

func (v VenueStatus) Identity() offers.PlaceIdentity {
	return offers.PlaceIdentity{Name: v.Name, Area: v.Area, Address: v.Address}
}

// TrackVenue registers a venue for batch scraping. Existing rows keep their
// scrape history; only the identity columns are refreshed.
func (d *DB) TrackVenue(ctx context.Context, placeSlug string, identity offers.PlaceIdentity) error {
	_, err := d.sql.ExecContext(ctx, `
INSERT INTO scrape_status(place_slug, place_name, area, address)
VALUES(?,?,?,?)
ON CONFLICT(place_slug) DO UPDATE SET
  place_name = excluded.place_name,
  area = excluded.area,
  address = excluded.address`,
		placeSlug, nullIfEmpty(identity.Name), nullIfEmpty(identity.Area), nullIfEmpty(identity.Address))
	return err
}

// RecordScrapeSuccess stamps the venue and schedules the next pass an hour out.
func (d *DB) RecordScrapeSuccess(ctx context.Context, placeSlug string, offerCount int) error {
	now := time.Now().UTC()
	_, err := d.sql.ExecContext(ctx, `
INSERT INTO scrape_status(place_slug, last_scraped_at, last_success_at, next_scrape_after, offer_count, consecutive_failures, last_error)
VALUES(?,?,?,?,?,0,NULL)
ON CONFLICT(place_slug) DO UPDATE SET
  last_scraped_at = excluded.last_scraped_at,
  last_success_at = excluded.last_success_at,
  next_scrape_after = excluded.next_scrape_after,
  offer_count = excluded.offer_count,
  consecutive_failures = 0,
  last_error = NULL`,
		placeSlug, now, now, now.Add(successInterval), offerCount)
	return err
}

// RecordScrapeFailure stamps the venue and backs the schedule off four hours.
func (d *DB) RecordScrapeFailure(ctx context.Context, placeSlug, reason string) error {
	now := time.Now().UTC()
	_, err := d.sql.ExecContext(ctx, `
INSERT INTO scrape_status(place_slug, last_scraped_at, next_scrape_after, consecutive_failures, last_error)
VALUES(?,?,?,1,?)
ON CONFLICT(place_slug) DO UPDATE SET
  last_scraped_at = excluded.last_scraped_at,
  next_scrape_after = excluded.next_scrape_after,
  consecutive_failures = scrape_status.consecutive_failures + 1,
  last_error = excluded.last_error`,
		placeSlug, now, now.Add(failureInterval), nullIfEmpty(reason))
	return err
}

// Status returns the bookkeeping row for one venue, or nil when untracked.
func (d *DB) Status(ctx context.Context, placeSlug string) (*VenueStatus, error) {
	row := d.sql.QueryRowContext(ctx, statusSelect+` WHERE place_slug = ?`, placeSlug)
	v, err := scanStatus(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListDue returns up to limit venues whose next scrape time has passed,
// oldest first.
func (d *DB) ListDue(ctx context.Context, limit int) ([]VenueStatus, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.sql.QueryContext(ctx,
		statusSelect+` WHERE next_scrape_after <= CURRENT_TIMESTAMP ORDER BY next_scrape_after ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanStatuses(rows)
}

// ListTracked returns every tracked venue ordered by slug.
func (d *DB) ListTracked(ctx context.Context) ([]VenueStatus, error) {
	rows, err := d.sql.QueryContext(ctx, statusSelect+` ORDER BY place_slug`)
	if err != nil {
		return nil, err
	}
	return scanStatuses(rows)
}

const statusSelect = `SELECT place_slug, place_name, area, address, last_scraped_at, last_success_at, next_scrape_after, offer_count, consecutive_failures, last_error FROM scrape_status`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStatus(row rowScanner) (VenueStatus, error) {
	var (
		v                      VenueStatus
		name, area, addr, lerr sql.NullString
		scraped, success       sql.NullTime
	)
	err := row.Scan(&v.PlaceSlug, &name, &area, &addr, &scraped, &success,
		&v.NextScrapeAfter, &v.OfferCount, &v.ConsecutiveFailures, &lerr)
	if err != nil {
		return VenueStatus{}, err
	}
	v.Name = name.String
	v.Area = area.String
	v.Address = addr.String
	v.LastError = lerr.String
	v.LastScrapedAt = scraped.Time
	v.LastSuccessAt = success.Time
	return v, nil
}

func scanStatuses(rows *sql.Rows) ([]VenueStatus, error) {
	defer rows.Close()
	var out []VenueStatus
	for rows.Next() {
		v, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ManualMappings implements the resolver's manual tier.
func (d *DB) ManualMappings(ctx context.Context, placeSlug string) ([]offers.PlacePlatformMapping, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT place_slug, platform, url, confidence, last_verified_at FROM manual_mappings WHERE place_slug = ? ORDER BY platform`, placeSlug)
	if err != nil {
		return nil, err
	}
	return scanMappings(rows)
}

// AllManualMappings dumps the curated mapping table.
func (d *DB) AllManualMappings(ctx context.Context) ([]offers.PlacePlatformMapping, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT place_slug, platform, url, confidence, last_verified_at FROM manual_mappings ORDER BY place_slug, platform`)
	if err != nil {
		return nil, err
	}
	return scanMappings(rows)
}

func scanMappings(rows *sql.Rows) ([]offers.PlacePlatformMapping, error) {
	defer rows.Close()
	var out []offers.PlacePlatformMapping
	for rows.Next() {
		var (
			m        offers.PlacePlatformMapping
			platform string
		)
		if err := rows.Scan(&m.PlaceSlug, &platform, &m.URL, &m.Confidence, &m.LastVerifiedAt); err != nil {
			return nil, err
		}
		m.Platform = offers.Platform(platform)
		m.Source = offers.SourceManual
		out = append(out, m)
	}
	return out, rows.Err()
}

// PutManualMapping inserts or replaces one curated mapping.
func (d *DB) PutManualMapping(ctx context.Context, m offers.PlacePlatformMapping) error {
	confidence := m.Confidence
	if confidence <= 0 {
		confidence = 1.0
	}
	_, err := d.sql.ExecContext(ctx, `
INSERT INTO manual_mappings(place_slug, platform, url, confidence, last_verified_at)
VALUES(?,?,?,?,CURRENT_TIMESTAMP)
ON CONFLICT(place_slug, platform) DO UPDATE SET
  url = excluded.url,
  confidence = excluded.confidence,
  last_verified_at = CURRENT_TIMESTAMP`,
		m.PlaceSlug, string(m.Platform), m.URL, confidence)
	return err
}

// DeleteManualMapping removes one curated mapping.
func (d *DB) DeleteManualMapping(ctx context.Context, placeSlug string, platform offers.Platform) error {
	_, err := d.sql.ExecContext(ctx,
		`DELETE FROM manual_mappings WHERE place_slug = ? AND platform = ?`, placeSlug, string(platform))
	return err
}

// PlatformStats is one row of the per-platform offer breakdown.
type PlatformStats struct {
	Platform   string
	OfferCount int
	PlaceCount int
}

// Stats summarizes stored data for the stats command and endpoint.
type Stats struct {
	TrackedVenues  int
	ActiveOffers   int
	ManualMappings int
	ByPlatform     []PlatformStats
}

func (d *DB) GetStats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM scrape_status`).Scan(&st.TrackedVenues); err != nil {
		return st, err
	}
	if err := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM offers WHERE active = 1`).Scan(&st.ActiveOffers); err != nil {
		return st, err
	}
	if err := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM manual_mappings`).Scan(&st.ManualMappings); err != nil {
		return st, err
	}

	rows, err := d.sql.QueryContext(ctx, `
		SELECT
			platform,
			COUNT(*),
			COUNT(DISTINCT place_slug)
		FROM
			offers
		WHERE
			active = 1
		GROUP BY
			platform
		ORDER BY
			platform;
	`)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var p PlatformStats
		if err := rows.Scan(&p.Platform, &p.OfferCount, &p.PlaceCount); err != nil {
			return st, err
		}
		st.ByPlatform = append(st.ByPlatform, p)
	}
	return st, rows.Err()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
