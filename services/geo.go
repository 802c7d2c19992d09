package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"homematch/metrics"
	"homematch/models"
	"homematch/storage"
)

// CommuteModes are the transport modes a commute can be computed for.
var CommuteModes = []string{"transit", "drive", "bike", "walk"}

// GeoClient talks to the routing provider for geocoding and commute
// durations. Geocode results are cached write-through by normalised
// address. Without an API key the client is disabled and every call
// degrades to an empty result, which downstream treats as "no commute
// data", never as an error.
type GeoClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	kv      storage.Store
	logger  zerolog.Logger
}

// NewGeoClient builds a GeoClient. baseURL or apiKey may be empty, in
// which case the client reports Enabled() == false.
func NewGeoClient(baseURL, apiKey string, kv storage.Store, logger zerolog.Logger) *GeoClient {
	return &GeoClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
		kv:      kv,
		logger:  logger.With().Str("component", "geo").Logger(),
	}
}

// Enabled reports whether the routing provider is configured.
func (g *GeoClient) Enabled() bool {
	return g.baseURL != "" && g.apiKey != ""
}

// Geocode resolves an address to coordinates, consulting the geocode
// cache first. Returns nil without error when the provider is disabled
// or the address cannot be resolved.
func (g *GeoClient) Geocode(ctx context.Context, address string) (*models.Coordinates, error) {
	if address == "" {
		return nil, nil
	}

	key := storage.GeoKey(address)
	var cached models.Coordinates
	if err := storage.GetJSON(ctx, g.kv, key, &cached); err == nil {
		metrics.CacheHits.WithLabelValues("geo").Inc()
		return &cached, nil
	}
	metrics.CacheMisses.WithLabelValues("geo").Inc()

	if !g.Enabled() {
		return nil, nil
	}

	var out models.Coordinates
	params := url.Values{"q": {address}}
	if err := g.get(ctx, "/geocode", params, &out); err != nil {
		return nil, fmt.Errorf("geocode %q: %w", address, err)
	}
	if out.Lat == 0 && out.Lng == 0 {
		return nil, nil
	}

	if err := storage.SetJSON(ctx, g.kv, key, &out); err != nil {
		g.logger.Warn().Err(err).Str("address", address).Msg("geocode cache write failed")
	}
	return &out, nil
}

// Duration returns the commute between two points in minutes for the
// given mode, or 0 when the provider is disabled or has no route.
func (g *GeoClient) Duration(ctx context.Context, origin models.Coordinates, destination string, mode string) (int, error) {
	if !g.Enabled() {
		return 0, nil
	}

	var out struct {
		Minutes int `json:"minutes"`
	}
	params := url.Values{
		"fromLat": {strconv.FormatFloat(origin.Lat, 'f', 6, 64)},
		"fromLng": {strconv.FormatFloat(origin.Lng, 'f', 6, 64)},
		"to":      {destination},
		"mode":    {mode},
	}
	if err := g.get(ctx, "/route", params, &out); err != nil {
		return 0, fmt.Errorf("route %s: %w", mode, err)
	}
	return out.Minutes, nil
}

// get performs one provider request. Routing calls fail fast: there is
// no retry here, a missed commute is filled on a later enrichment pass.
func (g *GeoClient) get(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.New("provider returned " + resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
