package source

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"homematch/models"
)

var priceRegexp = regexp.MustCompile(`[\d,]+(?:\.\d+)?`)
var bedsRegexp = regexp.MustCompile(`(\d+)\s*(?:bed|br)`)
var bathsRegexp = regexp.MustCompile(`(\d+(?:\.\d)?)\s*(?:bath|ba)`)
var sqftRegexp = regexp.MustCompile(`([\d,]+)\s*(?:sq\.?\s?ft|ft²)`)

// Portal scrapes a browser-rendered listing portal. The portal's result
// pages are driven by query parameters, so one Search maps to one page
// load.
type Portal struct {
	baseURL   string
	chromeBin string
	logger    zerolog.Logger
}

// NewPortal creates a Portal scraper against baseURL.
func NewPortal(baseURL, chromeBin string, logger zerolog.Logger) *Portal {
	return &Portal{
		baseURL:   baseURL,
		chromeBin: chromeBin,
		logger:    logger.With().Str("component", "portal").Logger(),
	}
}

// cardData is what the in-page extraction script returns per listing card.
type cardData struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Price   string `json:"price"`
	Address string `json:"address"`
	Details string `json:"details"`
	Desc    string `json:"desc"`
	URL     string `json:"url"`
}

// Search loads one portal results page and extracts listing cards.
func (p *Portal) Search(ctx context.Context, area string, q models.Query) ([]*models.Listing, error) {
	searchURL := p.searchURL(area, q)
	p.logger.Info().Str("url", searchURL).Msg("loading portal results page")

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if bin := p.findChromeBinary(); bin != "" {
		opts = append(opts, chromedp.ExecPath(bin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, 90*time.Second)
	defer cancelTimeout()

	var cards []cardData
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(searchURL),
		chromedp.Sleep(4*time.Second),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(2*time.Second),
		chromedp.Evaluate(extractScript(q.Limit), &cards),
	)
	if err != nil {
		return nil, fmt.Errorf("portal page %s: %w", searchURL, err)
	}

	listings := make([]*models.Listing, 0, len(cards))
	for _, card := range cards {
		l := p.toListing(card, area, q.PriceType)
		if l != nil {
			listings = append(listings, l)
		}
	}

	p.logger.Info().Str("area", area).Int("count", len(listings)).Msg("portal page extracted")
	return listings, nil
}

func (p *Portal) searchURL(area string, q models.Query) string {
	params := url.Values{
		"area":   {area},
		"type":   {string(q.PriceType)},
		"limit":  {strconv.Itoa(q.Limit)},
		"offset": {strconv.Itoa(q.Offset)},
	}
	if q.Beds > 0 {
		params.Set("beds", strconv.Itoa(q.Beds))
	}
	if q.Baths > 0 {
		params.Set("baths", strconv.FormatFloat(q.Baths, 'g', -1, 64))
	}
	return p.baseURL + "/search?" + params.Encode()
}

// extractScript collects up to limit listing cards from the result page.
func extractScript(limit int) string {
	return `
		(function() {
			var results = [];
			var cards = document.querySelectorAll('[data-listing-id], article.listing-card');
			for (var i = 0; i < cards.length && results.length < ` + strconv.Itoa(limit) + `; i++) {
				var card = cards[i];
				var link = card.querySelector('a[href]');
				var pick = function(sel) {
					var el = card.querySelector(sel);
					return el ? el.textContent.trim() : '';
				};
				results.push({
					id: card.getAttribute('data-listing-id') || '',
					title: pick('h2, h3, .listing-title'),
					price: pick('.price, [data-price]'),
					address: pick('.address, .listing-address'),
					details: pick('.details, .listing-details'),
					desc: pick('.description, .listing-desc'),
					url: link ? link.href : ''
				});
			}
			return results;
		})()
	`
}

// toListing converts an extracted card to a raw Listing. Cards without
// a resolvable identity are dropped.
func (p *Portal) toListing(card cardData, area string, priceType models.PriceType) *models.Listing {
	id := card.ID
	if id == "" && card.URL != "" {
		if idx := strings.LastIndex(card.URL, "/"); idx >= 0 && idx < len(card.URL)-1 {
			id = card.URL[idx+1:]
		}
	}
	if id == "" {
		if card.Title == "" {
			return nil
		}
		id = uuid.NewString()
	}

	details := strings.ToLower(card.Details)
	beds, baths, sqft := 0, 0.0, 0
	if m := bedsRegexp.FindStringSubmatch(details); len(m) == 2 {
		beds, _ = strconv.Atoi(m[1])
	}
	if m := bathsRegexp.FindStringSubmatch(details); len(m) == 2 {
		baths, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := sqftRegexp.FindStringSubmatch(details); len(m) == 2 {
		sqft, _ = strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	}

	return &models.Listing{
		ID:                 id,
		Title:              normaliseText(card.Title),
		Price:              parsePrice(card.Price),
		PriceType:          priceType,
		Beds:               beds,
		Baths:              baths,
		Sqft:               sqft,
		Address:            normaliseText(card.Address),
		Area:               area,
		Description:        normaliseText(card.Desc),
		ExternalListingURL: card.URL,
	}
}

func parsePrice(raw string) float64 {
	cleaned := strings.ReplaceAll(strings.ToLower(raw), ",", "")
	match := priceRegexp.FindString(cleaned)
	if match == "" {
		return 0
	}
	price, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0
	}
	return price
}

func normaliseText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// findChromeBinary locates a usable Chrome/Chromium binary, preferring
// the configured path.
func (p *Portal) findChromeBinary() string {
	if p.chromeBin != "" {
		return p.chromeBin
	}
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}
