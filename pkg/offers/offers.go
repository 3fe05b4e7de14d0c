package offers

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"
)

// Platform identifies one external service that may publish offers for a venue.
type Platform string

const (
	Zomato    Platform = "zomato"
	Swiggy    Platform = "swiggy"
	Dineout   Platform = "dineout"
	EazyDiner Platform = "eazydiner"
	Magicpin  Platform = "magicpin"
	Other     Platform = "other"
)

// AllPlatforms lists every known platform, in trust order.
var AllPlatforms = []Platform{Zomato, Swiggy, Dineout, EazyDiner, Magicpin, Other}

// ParsePlatform maps a string onto a known platform, falling back to Other.
func ParsePlatform(s string) Platform {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case Zomato:
		return Zomato
	case Swiggy:
		return Swiggy
	case Dineout:
		return Dineout
	case EazyDiner:
		return EazyDiner
	case Magicpin:
		return Magicpin
	default:
		return Other
	}
}

// Offer is one normalized promotional record extracted from a platform page.
type Offer struct {
	ID                 string    `json:"id"`
	Platform           Platform  `json:"platform"`
	Title              string    `json:"title"`
	Description        string    `json:"description,omitempty"`
	ValidityText       string    `json:"validityText,omitempty"`
	EffectivePriceText string    `json:"effectivePriceText,omitempty"`
	DiscountPct        float64   `json:"discountPct,omitempty"`
	MinSpend           float64   `json:"minSpend,omitempty"`
	Terms              []string  `json:"terms,omitempty"`
	DeepLink           string    `json:"deepLink"`
	OfferType          string    `json:"offerType,omitempty"`
	FetchedAt          time.Time `json:"fetchedAt"`
	LastCheckedAt      time.Time `json:"lastCheckedAt,omitempty"`
}

// OfferID builds a stable identifier so repeated scrapes of the same real
// offer collapse to the same id. The title is normalized before hashing.
func OfferID(platform Platform, placeSlug, title string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(title)), "-")
	if len(normalized) > 30 {
		normalized = normalized[:30]
	}
	sum := sha1.Sum([]byte(string(platform) + ":" + placeSlug + ":" + normalized))
	return string(platform) + ":" + placeSlug + ":" + hex.EncodeToString(sum[:8])
}

// MappingSource is the tier a mapping was resolved from. Higher tiers win
// confidence ties.
type MappingSource int

const (
	SourceGenerated MappingSource = iota
	SourceFuzzy
	SourceManual
)

func (s MappingSource) String() string {
	switch s {
	case SourceManual:
		return "manual"
	case SourceFuzzy:
		return "fuzzy"
	default:
		return "generated"
	}
}

// PlacePlatformMapping binds a venue to a platform URL with a confidence
// estimate in [0,1].
type PlacePlatformMapping struct {
	PlaceSlug      string        `json:"placeSlug"`
	Platform       Platform      `json:"platform"`
	URL            string        `json:"url"`
	Confidence     float64       `json:"confidence"`
	Source         MappingSource `json:"source"`
	LastVerifiedAt time.Time     `json:"lastVerifiedAt,omitempty"`
}

// PlaceIdentity carries the human-facing identity of a venue, used by the
// fuzzy mapping tier.
type PlaceIdentity struct {
	Name    string
	Area    string
	Address string
}

// ProviderResult is what a provider returns for one URL. Predictable remote
// failures surface in Errors, never as a panic.
type ProviderResult struct {
	Offers []Offer
	Errors []string
}

// ProviderError is a per-platform diagnostic surfaced to callers.
type ProviderError struct {
	Platform string `json:"platform"`
	Reason   string `json:"reason"`
}

// Response is the aggregated answer for one venue. Callers always receive
// one of these, even when every platform failed.
type Response struct {
	PlaceSlug       string          `json:"placeSlug"`
	LastRefreshedAt string          `json:"lastRefreshedAt"`
	Offers          []Offer         `json:"offers"`
	ProviderErrors  []ProviderError `json:"providerErrors,omitempty"`
}
