// Package pipeline drives the listing feed: staged fetch → enrich →
// display, session resumption, swipe handling, pattern top-up and
// race-safe re-ranking.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"homematch/config"
	"homematch/metrics"
	"homematch/models"
	"homematch/services"
	"homematch/signals"
	"homematch/source"
	"homematch/storage"
	"homematch/utils"
)

// State names the pipeline phase for an active filter set.
type State string

const (
	StateIdle        State = "idle"
	StateRawFetching State = "raw_fetching"
	StateInitial     State = "initial_enriching"
	StateInteractive State = "interactive"
	StateDone        State = "done"
)

// ErrFeedExhausted is returned by Swipe when no unseen listing remains.
var ErrFeedExhausted = errors.New("pipeline: feed exhausted")

// maxExhaustionTopUps bounds how often an exhausted feed retriggers a
// pattern top-up before giving up for the session.
const maxExhaustionTopUps = 2

// swipeTopUpVolume is the swipe count at and beyond which every Nth
// swipe triggers a pattern top-up.
const swipeTopUpVolume = 4

// Pipeline owns the feed for one user session. All mutable feed state
// sits behind one mutex; provider work happens outside it and commits
// under a generation check, so a run started for stale filters can
// never award state changes.
type Pipeline struct {
	cfg      *config.Config
	logger   zerolog.Logger
	src      source.Source
	enricher *services.Enricher
	signals  *signals.Store
	kv       storage.Store
	pool     *utils.WorkerPool

	// generation invalidates in-flight async work when filters change
	// or the session is torn down.
	generation atomic.Int64
	rescoreSeq atomic.Int64
	topUpBusy  atomic.Bool

	mu             sync.Mutex
	filters        models.FilterSet
	listings       []*models.Listing
	status         models.EnrichmentStatus
	state          State
	cursor         int
	message        string
	exhaustTopUps  int
	appliedRescore int64
}

// New assembles a Pipeline. Enrichment runs on a worker pool of size 1:
// provider rate limits require strictly sequential calls.
func New(cfg *config.Config, src source.Source, enricher *services.Enricher, sig *signals.Store, kv storage.Store, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		logger:   logger.With().Str("component", "pipeline").Logger(),
		src:      src,
		enricher: enricher,
		signals:  sig,
		kv:       kv,
		pool:     utils.NewWorkerPool(1, cfg.RateLimitMs),
		state:    StateIdle,
	}
}

// Start begins a run for the given filters. A matching non-empty
// session snapshot is restored verbatim instead of re-fetching; any
// prior run is cancelled either way. Only the raw fetch can fail; the
// caller surfaces that as a retryable error.
func (p *Pipeline) Start(ctx context.Context, filters models.FilterSet) error {
	gen := p.generation.Add(1)

	p.mu.Lock()
	p.filters = filters
	p.listings = nil
	p.cursor = 0
	p.status = models.EnrichmentStatus{}
	p.state = StateRawFetching
	p.message = ""
	p.exhaustTopUps = 0
	p.mu.Unlock()

	if p.restoreSession(ctx, gen, filters) {
		return nil
	}

	raw, err := p.src.Search(ctx, p.cfg.CityScope, models.Query{
		PriceType: filters.PriceType,
		Beds:      filters.Beds,
		Baths:     filters.Baths,
		Limit:     p.cfg.RawPoolSize,
	})
	if err != nil {
		p.mu.Lock()
		if p.generation.Load() == gen {
			p.state = StateIdle
		}
		p.mu.Unlock()
		return fmt.Errorf("raw fetch: %w", err)
	}

	for _, l := range raw {
		l.MatchScore = p.enricher.Rescore(l)
	}
	sort.SliceStable(raw, func(i, j int) bool { return raw[i].MatchScore > raw[j].MatchScore })

	p.mu.Lock()
	if p.generation.Load() != gen {
		p.mu.Unlock()
		return nil
	}
	p.listings = raw
	p.status = models.EnrichmentStatus{Total: len(raw)}
	p.state = StateInitial
	p.mu.Unlock()

	p.logger.Info().Int("candidates", len(raw)).Str("filters", filters.Key()).Msg("raw fetch complete")

	head := p.cfg.InitialBatch
	if head > len(raw) {
		head = len(raw)
	}
	for i := 0; i < head; i++ {
		if p.generation.Load() != gen {
			return nil
		}
		p.enrichOne(ctx, gen, raw[i].ID)
	}

	p.mu.Lock()
	if p.generation.Load() != gen {
		p.mu.Unlock()
		return nil
	}
	p.state = StateInteractive
	p.mu.Unlock()
	p.saveSession(ctx, gen)

	// The caller's context may be request-scoped; background work
	// outlives it and is cancelled by generation instead.
	go p.backgroundEnrich(context.WithoutCancel(ctx), gen)
	return nil
}

// Stop tears the session down, cancelling all in-flight async work.
func (p *Pipeline) Stop() {
	p.generation.Add(1)
	p.mu.Lock()
	p.state = StateIdle
	p.mu.Unlock()
}

// backgroundEnrich continues sequential enrichment behind the
// interactive feed until every listing is done.
func (p *Pipeline) backgroundEnrich(ctx context.Context, gen int64) {
	for {
		if p.generation.Load() != gen || ctx.Err() != nil {
			return
		}

		p.mu.Lock()
		var nextID string
		for _, l := range p.listings {
			if !l.Enriched {
				nextID = l.ID
				break
			}
		}
		p.mu.Unlock()

		if nextID == "" {
			p.mu.Lock()
			if p.generation.Load() == gen {
				p.state = StateDone
				p.status.Done = true
				p.status.CurrentItem = ""
			}
			p.mu.Unlock()
			p.saveSession(ctx, gen)
			p.logger.Info().Msg("background enrichment complete")
			return
		}

		p.enrichOne(ctx, gen, nextID)
	}
}

// enrichOne enriches a single listing by id on a private copy, then
// commits it in place under a generation check. The caller-visible
// order never changes here: replacement is strictly by identity.
func (p *Pipeline) enrichOne(ctx context.Context, gen int64, id string) {
	p.mu.Lock()
	var target *models.Listing
	for _, l := range p.listings {
		if l.ID == id {
			target = l
			break
		}
	}
	if target == nil || target.Enriched {
		p.mu.Unlock()
		return
	}
	work := cloneListing(target)
	p.status.CurrentItem = target.Title
	p.mu.Unlock()

	p.pool.Run(func() {
		if p.generation.Load() != gen {
			return
		}
		if err := p.enricher.Enrich(ctx, work); err != nil {
			return
		}
	})

	p.mu.Lock()
	if p.generation.Load() != gen || !work.Enriched {
		p.mu.Unlock()
		return
	}
	for i, l := range p.listings {
		if l.ID == id {
			p.listings[i] = work
			break
		}
	}
	p.status.EnrichedCount++
	p.status.CurrentItem = work.Title
	p.mu.Unlock()

	p.saveSession(ctx, gen)
}

// Swipe records the verdict on the current listing and advances the
// cursor. Swiping can trigger a pattern top-up and always re-ranks the
// unseen tail against the updated signals.
func (p *Pipeline) Swipe(ctx context.Context, direction models.SwipeDirection) (*models.Listing, error) {
	p.mu.Lock()
	if p.cursor >= len(p.listings) {
		retry := p.exhaustTopUps < maxExhaustionTopUps
		if retry {
			p.exhaustTopUps++
		}
		p.mu.Unlock()
		if retry {
			go p.TopUp(context.WithoutCancel(ctx))
		}
		return nil, ErrFeedExhausted
	}
	current := p.listings[p.cursor]
	p.cursor++
	fromIndex := p.cursor
	p.mu.Unlock()

	p.signals.RecordSwipe(ctx, current.Tags, direction, current.Price, current.PriceType, current.BestCommuteMinutes())
	metrics.SwipesRecorded.WithLabelValues(string(direction)).Inc()

	if direction == models.SwipeLike {
		if err := storage.SetJSON(ctx, p.kv, storage.SavedKey(current.ID), current); err != nil {
			p.logger.Warn().Err(err).Str("listing", current.ID).Msg("saved listing write failed")
		}
	}

	gen := p.generation.Load()
	p.saveSession(ctx, gen)

	total := p.signals.TotalSwipes()
	if total >= swipeTopUpVolume && total%swipeTopUpVolume == 0 {
		go p.TopUp(context.WithoutCancel(ctx))
	}

	go p.RescoreRemaining(fromIndex)
	return current, nil
}

// Listings returns the current feed in caller-visible order. Each
// listing is a copy, so callers can serialise without racing the
// background enrichers.
func (p *Pipeline) Listings() []*models.Listing {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*models.Listing, len(p.listings))
	for i, l := range p.listings {
		out[i] = cloneListing(l)
	}
	return out
}

// Status returns the current enrichment progress snapshot.
func (p *Pipeline) Status() models.EnrichmentStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// StateNow returns the pipeline phase.
func (p *Pipeline) StateNow() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Cursor returns the index of the next unseen listing.
func (p *Pipeline) Cursor() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Message returns the latest pattern-discovery status message.
func (p *Pipeline) Message() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.message
}

func cloneListing(l *models.Listing) *models.Listing {
	clone := *l
	if l.Tags != nil {
		tags := *l.Tags
		tags.NearSubwayLines = append([]string(nil), l.Tags.NearSubwayLines...)
		clone.Tags = &tags
	}
	if l.Coordinates != nil {
		coords := *l.Coordinates
		clone.Coordinates = &coords
	}
	clone.CommuteTimes = append([]models.CommuteTime(nil), l.CommuteTimes...)
	return &clone
}
