package pipeline

import (
	"context"
	"fmt"
	"sort"

	"homematch/metrics"
	"homematch/models"
	"homematch/utils"
)

// TopUp fetches new candidates biased toward the learned pattern and
// merges them into the unseen tail. Only one top-up may run at a time;
// re-entrant calls are no-ops.
func (p *Pipeline) TopUp(ctx context.Context) {
	if !p.topUpBusy.CompareAndSwap(false, true) {
		return
	}
	defer p.topUpBusy.Store(false)

	gen := p.generation.Load()
	metrics.PatternTopUps.Inc()

	p.mu.Lock()
	filters := p.filters
	exclude := make([]string, 0, len(p.listings))
	for _, l := range p.listings {
		exclude = append(exclude, l.ID)
	}
	offset := len(p.listings)
	p.message = "Looking for more homes like the ones you liked…"
	p.mu.Unlock()

	matches := p.fetchPatternMatches(ctx, gen, filters, exclude, offset, p.cfg.TopUpTarget)

	p.mu.Lock()
	if p.generation.Load() != gen || len(matches) == 0 {
		if p.generation.Load() == gen {
			p.message = ""
		}
		p.mu.Unlock()
		return
	}

	// New matches join the unseen tail only: nothing at or before the
	// cursor moves, then the whole tail re-sorts by score.
	p.listings = append(p.listings, matches...)
	tail := p.listings[p.cursor:]
	sort.SliceStable(tail, func(i, j int) bool { return tail[i].MatchScore > tail[j].MatchScore })
	p.status.Total = len(p.listings)
	p.status.EnrichedCount += len(matches)
	p.message = fmt.Sprintf("Added %d homes that match your pattern", len(matches))
	p.mu.Unlock()

	p.saveSession(ctx, gen)
	p.logger.Info().Int("added", len(matches)).Msg("pattern top-up merged")
}

// fetchPatternMatches implements the candidate funnel: over-fetch a
// wide pool, dedup, pre-rank by price affinity, enrich a wide seed and
// keep the best targetCount.
func (p *Pipeline) fetchPatternMatches(ctx context.Context, gen int64, filters models.FilterSet, excludeIds []string, offset, targetCount int) []*models.Listing {
	poolSize := targetCount * p.cfg.PoolMultiplier

	pool, err := p.src.Search(ctx, p.cfg.CityScope, models.Query{
		PriceType: filters.PriceType,
		Beds:      filters.Beds,
		Baths:     filters.Baths,
		Limit:     poolSize,
		Offset:    offset,
	})
	if err != nil {
		p.logger.Warn().Err(err).Msg("pattern fetch failed")
		return nil
	}

	seen := utils.NewIDSet(excludeIds...)
	candidates := pool[:0]
	for _, l := range pool {
		if seen.Add(l.ID) {
			candidates = append(candidates, l)
		}
	}

	// Pre-enrichment ranking: provisional attribute score, pulled down
	// by the price-affinity range-distance-ratio, so the seed leans
	// toward the learned price pattern before any provider spend.
	type ranked struct {
		listing *models.Listing
		rank    float64
	}
	prelim := make([]ranked, 0, len(candidates))
	for _, l := range candidates {
		score := float64(p.enricher.Rescore(l))
		rdr := p.enricher.PriceAffinity(l.Price, l.PriceType)
		prelim = append(prelim, ranked{listing: l, rank: score - 20*rdr})
	}
	sort.SliceStable(prelim, func(i, j int) bool { return prelim[i].rank > prelim[j].rank })

	seedSize := targetCount * p.cfg.SeedMultiplier
	if seedSize > len(prelim) {
		seedSize = len(prelim)
	}

	// Seed enrichment goes through Submit/Wait: the pool's semaphore
	// keeps provider calls sequential at size 1, and the final order
	// comes from the re-sort below, not from completion order.
	for _, r := range prelim[:seedSize] {
		if p.generation.Load() != gen || ctx.Err() != nil {
			break
		}
		work := r.listing
		p.pool.Submit(func() {
			if p.generation.Load() != gen {
				return
			}
			if err := p.enricher.Enrich(ctx, work); err != nil {
				return
			}
		})
	}
	p.pool.Wait()
	if p.generation.Load() != gen || ctx.Err() != nil {
		return nil
	}

	var enriched []*models.Listing
	for _, r := range prelim[:seedSize] {
		if r.listing.Enriched {
			enriched = append(enriched, r.listing)
		}
	}

	sort.SliceStable(enriched, func(i, j int) bool { return enriched[i].MatchScore > enriched[j].MatchScore })
	if len(enriched) > targetCount {
		enriched = enriched[:targetCount]
	}
	return enriched
}

// RescoreRemaining recomputes scores for the unseen tail from cached
// tags only and re-sorts it. A monotonically increasing run id makes
// the newest issued rescore the only one allowed to land: a slower,
// older run arriving later is discarded.
func (p *Pipeline) RescoreRemaining(fromIndex int) {
	runID := p.rescoreSeq.Add(1)
	gen := p.generation.Load()

	p.mu.Lock()
	if fromIndex < 0 || fromIndex > len(p.listings) {
		p.mu.Unlock()
		return
	}
	work := make([]*models.Listing, len(p.listings)-fromIndex)
	for i, l := range p.listings[fromIndex:] {
		work[i] = cloneListing(l)
	}
	p.mu.Unlock()

	scores := make(map[string]int, len(work))
	for _, l := range work {
		scores[l.ID] = p.enricher.Rescore(l)
	}

	p.applyRescore(runID, gen, fromIndex, scores)
}

// applyRescore commits a rescore result. It lands only when runID is
// still the newest issued rescore and the generation is unchanged;
// otherwise the result is stale and dropped.
func (p *Pipeline) applyRescore(runID, gen int64, fromIndex int, scores map[string]int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rescoreSeq.Load() != runID || p.generation.Load() != gen {
		return
	}
	if fromIndex > len(p.listings) {
		return
	}
	tail := p.listings[fromIndex:]
	for _, l := range tail {
		if s, ok := scores[l.ID]; ok {
			l.MatchScore = s
		}
	}
	sort.SliceStable(tail, func(i, j int) bool { return tail[i].MatchScore > tail[j].MatchScore })
	p.appliedRescore = runID
}

// AppliedRescore reports the run id of the rescore whose result is
// currently displayed.
func (p *Pipeline) AppliedRescore() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.appliedRescore
}
