package pipeline

import (
	"context"
	"errors"

	"homematch/metrics"
	"homematch/models"
	"homematch/storage"
)

// sessionSnapshot is the cached bundle that lets navigation return to a
// feed without re-fetching: the listings, the enrichment progress and
// how far the user had swiped.
type sessionSnapshot struct {
	Listings []*models.Listing       `json:"listings"`
	Status   models.EnrichmentStatus `json:"status"`
	Cursor   int                     `json:"cursor"`
}

// restoreSession loads a snapshot for the filter tuple and installs it
// verbatim. Returns false on miss or empty snapshot; a corrupt stored
// snapshot counts as a miss.
func (p *Pipeline) restoreSession(ctx context.Context, gen int64, filters models.FilterSet) bool {
	var snap sessionSnapshot
	err := storage.GetJSON(ctx, p.kv, storage.SessionKey(filters.Key()), &snap)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			p.logger.Warn().Err(err).Msg("session snapshot read failed")
		}
		metrics.CacheMisses.WithLabelValues("session").Inc()
		return false
	}
	if len(snap.Listings) == 0 {
		metrics.CacheMisses.WithLabelValues("session").Inc()
		return false
	}
	metrics.CacheHits.WithLabelValues("session").Inc()

	p.mu.Lock()
	if p.generation.Load() != gen {
		p.mu.Unlock()
		return true
	}
	p.listings = snap.Listings
	p.status = snap.Status
	p.cursor = snap.Cursor
	if snap.Status.Done {
		p.state = StateDone
	} else {
		p.state = StateInteractive
	}
	resume := !snap.Status.Done
	p.mu.Unlock()

	p.logger.Info().Int("listings", len(snap.Listings)).Str("filters", filters.Key()).
		Msg("restored session snapshot")

	if resume {
		go p.backgroundEnrich(context.WithoutCancel(ctx), gen)
	}
	return true
}

// saveSession writes the current feed state under the filter key. A
// failed write costs resumption only, never the live session.
func (p *Pipeline) saveSession(ctx context.Context, gen int64) {
	p.mu.Lock()
	if p.generation.Load() != gen || len(p.listings) == 0 {
		p.mu.Unlock()
		return
	}
	snap := sessionSnapshot{
		Listings: make([]*models.Listing, len(p.listings)),
		Status:   p.status,
		Cursor:   p.cursor,
	}
	copy(snap.Listings, p.listings)
	key := storage.SessionKey(p.filters.Key())
	p.mu.Unlock()

	if err := storage.SetJSON(ctx, p.kv, key, &snap); err != nil {
		p.logger.Warn().Err(err).Msg("session snapshot write failed")
	}
}

// ClearSession drops the stored snapshot for the active filter tuple.
func (p *Pipeline) ClearSession(ctx context.Context) {
	p.mu.Lock()
	key := storage.SessionKey(p.filters.Key())
	p.mu.Unlock()

	if err := p.kv.Delete(ctx, key); err != nil {
		p.logger.Warn().Err(err).Msg("session snapshot delete failed")
	}
}
