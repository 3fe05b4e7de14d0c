package swiggy

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/LAG-4/cafefinder/pkg/fetch"
	"github.com/LAG-4/cafefinder/pkg/offers"
	"github.com/LAG-4/cafefinder/pkg/providers"
)

var offerGroups = []providers.SelectorGroup{
	{
		Container: ".offer-container, .sc-offer-container, [data-testid=\"offer-container\"], .promo-container, .discount-container, .coupon-container, .offer-card, .promo-card",
		Title:     []string{".offer-header", ".sc-offer-header", "[data-testid=\"offer-header\"]", ".promo-header", ".discount-header", ".offer-title", "h3", "h4", ".title", ".heading"},
		Desc:      []string{".offer-description", ".sc-offer-description", ".offer-details", ".promo-description", "p"},
		Validity:  []string{".offer-validity", ".validity", ".expiry", ".valid-till"},
		Price:     []string{".effective-price", ".price-text"},
		Terms:     []string{".terms", ".conditions", ".offer-terms"},
	},
}

type Provider struct {
	client *fetch.Client
}

func New(client *fetch.Client) *Provider {
	return &Provider{client: client}
}

func (p *Provider) Platform() offers.Platform {
	return offers.Swiggy
}

func (p *Provider) FetchOffers(ctx context.Context, in providers.Input) (offers.ProviderResult, error) {
	res, err := p.client.Get(ctx, in.URL)
	if err != nil {
		return offers.ProviderResult{}, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.Body))
	if err != nil {
		return offers.ProviderResult{Errors: []string{"swiggy: html parse failed: " + err.Error()}}, nil
	}

	slug := in.PlaceSlug
	if slug == "" {
		slug = placeSlugFromURL(in.URL)
	}
	now := time.Now().UTC()

	found := providers.ExtractStructured(doc, offerGroups, offers.Swiggy, slug, in.URL, now)

	// Swiggy ships restaurant state as JSON inside the page; coupon data
	// lives under the offers grid widgets.
	if len(found) == 0 {
		found = append(found, extractWidgetOffers(doc, slug, in.URL, now)...)
	}

	if len(found) == 0 {
		found = providers.ExtractFallback(doc.Find("body").Text(), offers.Swiggy, slug, in.URL, now)
	}

	return offers.ProviderResult{Offers: providers.DedupeByTitle(found)}, nil
}

func extractWidgetOffers(doc *goquery.Document, placeSlug, sourceURL string, now time.Time) []offers.Offer {
	var out []offers.Offer
	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		raw := sel.Contents().Text()
		idx := strings.Index(raw, "window.___INITIAL_STATE___")
		if idx >= 0 {
			if eq := strings.Index(raw[idx:], "="); eq >= 0 {
				raw = strings.TrimSuffix(strings.TrimSpace(raw[idx+eq+1:]), ";")
			}
		}
		if !gjson.Valid(raw) {
			return
		}
		for _, path := range []string{
			"restaurant.offers",
			"menu.offerInfo",
			"props.pageProps.initialData.offers",
		} {
			for _, item := range gjson.Get(raw, path).Array() {
				header := providers.NormalizeText(gjson.Get(item.Raw, "header").String())
				if header == "" {
					header = providers.NormalizeText(gjson.Get(item.Raw, "title").String())
				}
				if len(header) < 5 {
					continue
				}
				title := header
				if tag := providers.NormalizeText(gjson.Get(item.Raw, "couponCode").String()); tag != "" {
					title = header + " " + tag
				}
				desc := providers.NormalizeText(gjson.Get(item.Raw, "description").String())
				out = append(out, offers.Offer{
					ID:          offers.OfferID(offers.Swiggy, placeSlug, title),
					Platform:    offers.Swiggy,
					Title:       title,
					Description: desc,
					DiscountPct: providers.ExtractDiscountPct(title + " " + desc),
					MinSpend:    providers.ExtractMinSpend(title + " " + desc),
					DeepLink:    sourceURL,
					OfferType:   providers.ClassifyOfferType(title, desc),
					FetchedAt:   now,
				})
			}
		}
	})
	return out
}

// placeSlugFromURL pulls the venue segment out of a swiggy restaurants URL.
func placeSlugFromURL(url string) string {
	parts := strings.Split(strings.TrimRight(url, "/"), "/")
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.TrimSuffix(parts[len(parts)-1], "-hyderabad")
}
