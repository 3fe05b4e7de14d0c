package zomato

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/LAG-4/cafefinder/pkg/fetch"
	"github.com/LAG-4/cafefinder/pkg/offers"
	"github.com/LAG-4/cafefinder/pkg/providers"
)

// Selector lists that historically held offer blocks on zomato restaurant
// pages. Ordered most-specific first; markup drifts, so the generic
// class-substring selectors at the end catch renamed variants.
var offerGroups = []providers.SelectorGroup{
	{
		Container: ".offer-card, .sc-offer-card, [data-testid=\"offer-card\"], .promo-card, .discount-card, .coupon-card",
		Title:     []string{".offer-title", ".sc-offer-title", "[data-testid=\"offer-title\"]", ".promo-title", ".discount-title", "h3", "h4", ".title"},
		Desc:      []string{".offer-description", ".sc-offer-description", "[data-testid=\"offer-description\"]", ".promo-description", ".offer-details", "p"},
		Validity:  []string{".offer-validity", ".sc-offer-validity", "[data-testid=\"offer-validity\"]", ".promo-validity", ".expiry", ".valid-till"},
		Price:     []string{".effective-price", ".price-text", ".offer-price"},
		Terms:     []string{".terms", ".conditions", ".offer-terms"},
	},
	{
		Container: ".offer-banner, .promo-banner, [class*=\"offer\"], [class*=\"promo\"], [class*=\"discount\"], [class*=\"deal\"]",
		Title:     []string{"h3", "h4", ".title"},
		Desc:      []string{"p"},
		Validity:  []string{".expiry", ".valid-till"},
	},
}

var slugFromURLRe = regexp.MustCompile(`/([^/]+)/(?:info|order|menu)`)

type Provider struct {
	client *fetch.Client
}

func New(client *fetch.Client) *Provider {
	return &Provider{client: client}
}

func (p *Provider) Platform() offers.Platform {
	return offers.Zomato
}

func (p *Provider) FetchOffers(ctx context.Context, in providers.Input) (offers.ProviderResult, error) {
	res, err := p.client.Get(ctx, in.URL)
	if err != nil {
		return offers.ProviderResult{}, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.Body))
	if err != nil {
		return offers.ProviderResult{Errors: []string{"zomato: html parse failed: " + err.Error()}}, nil
	}

	slug := in.PlaceSlug
	if slug == "" {
		slug = placeSlugFromURL(in.URL)
	}
	now := time.Now().UTC()

	found := providers.ExtractStructured(doc, offerGroups, offers.Zomato, slug, in.URL, now)

	// Zomato renders most data through an embedded JSON blob. Pull offer
	// objects out of it when the DOM walk finds nothing.
	if len(found) == 0 {
		found = append(found, extractPreloadedOffers(doc, slug, in.URL, now)...)
	}

	if len(found) == 0 {
		found = providers.ExtractFallback(doc.Find("body").Text(), offers.Zomato, slug, in.URL, now)
	}

	return offers.ProviderResult{Offers: providers.DedupeByTitle(found)}, nil
}

// extractPreloadedOffers scans script tags for JSON state and collects
// anything shaped like an offer (objects carrying an offer/discount title).
func extractPreloadedOffers(doc *goquery.Document, placeSlug, sourceURL string, now time.Time) []offers.Offer {
	var out []offers.Offer
	doc.Find("script#__NEXT_DATA__, script[type=\"application/json\"]").Each(func(_ int, sel *goquery.Selection) {
		raw := sel.Contents().Text()
		if !gjson.Valid(raw) {
			return
		}
		for _, path := range []string{
			"props.pageProps.sections.SECTION_RES_OFFERS.offers",
			"props.pageProps.offers",
			"pages.current.offers",
		} {
			for _, item := range gjson.Get(raw, path).Array() {
				title := providers.NormalizeText(gjson.Get(item.Raw, "title").String())
				if title == "" {
					title = providers.NormalizeText(gjson.Get(item.Raw, "offerTitle").String())
				}
				if len(title) < 5 {
					continue
				}
				desc := providers.NormalizeText(gjson.Get(item.Raw, "description").String())
				out = append(out, offers.Offer{
					ID:           offers.OfferID(offers.Zomato, placeSlug, title),
					Platform:     offers.Zomato,
					Title:        title,
					Description:  desc,
					ValidityText: providers.NormalizeText(gjson.Get(item.Raw, "validity").String()),
					DiscountPct:  providers.ExtractDiscountPct(title + " " + desc),
					MinSpend:     providers.ExtractMinSpend(title + " " + desc),
					DeepLink:     sourceURL,
					OfferType:    providers.ClassifyOfferType(title, desc),
					FetchedAt:    now,
				})
			}
		}
	})
	return out
}

// placeSlugFromURL pulls the venue segment out of a zomato URL, e.g.
// https://www.zomato.com/hyderabad/restaurant-name/info -> restaurant-name.
func placeSlugFromURL(url string) string {
	if m := slugFromURLRe.FindStringSubmatch(url); m != nil {
		return m[1]
	}
	parts := strings.Split(strings.TrimRight(url, "/"), "/")
	if len(parts) > 0 {
		return parts[len(parts)-1]
	}
	return "unknown"
}
