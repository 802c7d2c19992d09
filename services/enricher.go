// Package services holds the external collaborator clients and the
// per-listing enrichment that composes them.
package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"homematch/metrics"
	"homematch/models"
	"homematch/scoring"
	"homematch/storage"
)

// Enricher completes one listing at a time: cached tag extraction,
// geocoding, commute times, score and explanation. Every step is
// best-effort; a failed step degrades that listing and never aborts the
// batch. Only context cancellation propagates.
type Enricher struct {
	geo    *GeoClient
	llm    *LLMClient
	engine *scoring.Engine
	kv     storage.Store
	anchor string
	logger zerolog.Logger
}

// NewEnricher wires the enrichment collaborators together. anchor is
// the commute destination used for every listing.
func NewEnricher(geo *GeoClient, llm *LLMClient, engine *scoring.Engine, kv storage.Store, anchor string, logger zerolog.Logger) *Enricher {
	return &Enricher{
		geo:    geo,
		llm:    llm,
		engine: engine,
		kv:     kv,
		anchor: anchor,
		logger: logger.With().Str("component", "enricher").Logger(),
	}
}

// Enrich mutates l in place through the full enrichment sequence.
// Returns an error only when ctx is done; provider failures degrade.
func (e *Enricher) Enrich(ctx context.Context, l *models.Listing) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.enrichURL(ctx, l)
	e.enrichTags(ctx, l)
	if err := ctx.Err(); err != nil {
		return err
	}

	e.enrichCommutes(ctx, l)
	if err := ctx.Err(); err != nil {
		return err
	}

	l.MatchScore = e.engine.Score(l.Tags, l.Price, l.PriceType, l.CommuteTimes)
	e.enrichExplanation(ctx, l)

	l.Enriched = true
	metrics.ListingsEnriched.Inc()
	return ctx.Err()
}

// enrichURL keeps the portal link for a listing across fetch windows.
// A card sometimes arrives without its link; the cache backfills it.
func (e *Enricher) enrichURL(ctx context.Context, l *models.Listing) {
	key := storage.URLKey(l.ID)
	if l.ExternalListingURL != "" {
		if err := e.kv.Set(ctx, key, []byte(l.ExternalListingURL)); err != nil {
			e.logger.Warn().Err(err).Str("listing", l.ID).Msg("url cache write failed")
		}
		return
	}
	if raw, err := e.kv.Get(ctx, key); err == nil && len(raw) > 0 {
		metrics.CacheHits.WithLabelValues("url").Inc()
		l.ExternalListingURL = string(raw)
	}
}

// enrichTags fills l.Tags from the cache or the extraction service,
// falling back to neutral tags so scoring always has a full schema.
func (e *Enricher) enrichTags(ctx context.Context, l *models.Listing) {
	var cached models.Tags
	if err := storage.GetJSON(ctx, e.kv, storage.TagsKey(l.ID), &cached); err == nil {
		metrics.CacheHits.WithLabelValues("tags").Inc()
		cached.Normalize()
		l.Tags = &cached
		return
	}
	metrics.CacheMisses.WithLabelValues("tags").Inc()

	tags, err := e.llm.ExtractTags(ctx, l.Description)
	if err != nil {
		e.logger.Warn().Err(err).Str("listing", l.ID).Msg("tag extraction failed, using neutral tags")
		metrics.EnrichmentFailures.WithLabelValues("tags").Inc()
	}
	if tags == nil {
		if l.Tags != nil {
			return // keep whatever the listing already carried
		}
		tags = models.NeutralTags()
	}
	l.Tags = tags

	if err := storage.SetJSON(ctx, e.kv, storage.TagsKey(l.ID), tags); err != nil {
		e.logger.Warn().Err(err).Str("listing", l.ID).Msg("tag cache write failed")
	}
}

// enrichCommutes geocodes the listing and computes commute durations
// sequentially per mode. No API key means an empty commute list, which
// the scorer treats as absent data.
func (e *Enricher) enrichCommutes(ctx context.Context, l *models.Listing) {
	if l.Coordinates == nil {
		coords, err := e.geo.Geocode(ctx, l.Address)
		if err != nil {
			e.logger.Warn().Err(err).Str("listing", l.ID).Msg("geocode failed")
			metrics.EnrichmentFailures.WithLabelValues("geocode").Inc()
			return
		}
		if coords == nil {
			return
		}
		l.Coordinates = coords
	}

	for _, mode := range CommuteModes {
		if ctx.Err() != nil {
			return
		}
		minutes, err := e.geo.Duration(ctx, *l.Coordinates, e.anchor, mode)
		if err != nil {
			e.logger.Warn().Err(err).Str("listing", l.ID).Str("mode", mode).Msg("commute lookup failed")
			metrics.EnrichmentFailures.WithLabelValues("commute").Inc()
			continue
		}
		if minutes > 0 {
			l.CommuteTimes = append(l.CommuteTimes, models.CommuteTime{
				Destination: e.anchor,
				Mode:        mode,
				Minutes:     minutes,
			})
		}
	}
}

func (e *Enricher) enrichExplanation(ctx context.Context, l *models.Listing) {
	sentence, err := e.llm.Explain(ctx, l, l.Tags)
	if err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Warn().Err(err).Str("listing", l.ID).Msg("explanation service failed, using local explanation")
		metrics.EnrichmentFailures.WithLabelValues("explain").Inc()
	}
	if sentence == "" {
		sentence = e.engine.Explanation(l.Tags, l.Price, l.PriceType, l.CommuteTimes)
	}
	l.MatchExplanation = sentence
	if l.FeatureDescription == "" && l.Tags != nil && l.Tags.AmenityCount() > 0 {
		l.FeatureDescription = sentence
	}
}

// Rescore recomputes a listing's score from already-cached tags only.
// Used by the re-rank controller, which must never trigger network
// calls.
func (e *Enricher) Rescore(l *models.Listing) int {
	return e.engine.Score(l.Tags, l.Price, l.PriceType, l.CommuteTimes)
}

// PriceAffinity exposes the engine's price-affinity range-distance
// ratio for the top-up pre-ranking heuristic. 0 means the price sits
// inside the learned liked range.
func (e *Enricher) PriceAffinity(price float64, priceType models.PriceType) float64 {
	return e.engine.PreRankByPrice(price, priceType)
}
