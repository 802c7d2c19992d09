package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"homematch/config"
	"homematch/models"
	"homematch/scoring"
	"homematch/services"
	"homematch/signals"
	"homematch/source"
	"homematch/storage"
)

func testConfig() *config.Config {
	return &config.Config{
		CityScope:      "new-york",
		CommuteAnchor:  "Midtown Manhattan",
		RawPoolSize:    8,
		InitialBatch:   3,
		RateLimitMs:    0,
		TopUpTarget:    3,
		PoolMultiplier: 2,
		SeedMultiplier: 1,
	}
}

// newTestPipeline wires a pipeline against the fixture source with all
// external providers disabled.
func newTestPipeline(t *testing.T, kv storage.Store, src source.Source) (*Pipeline, *signals.Store) {
	t.Helper()
	cfg := testConfig()
	sig := signals.NewStore(context.Background(), kv, zerolog.Nop())
	engine := scoring.NewEngine(sig)
	geo := services.NewGeoClient("", "", kv, zerolog.Nop())
	llm := services.NewLLMClient("", "", "", 0, zerolog.Nop())
	enricher := services.NewEnricher(geo, llm, engine, kv, cfg.CommuteAnchor, zerolog.Nop())
	return New(cfg, src, enricher, sig, kv, zerolog.Nop()), sig
}

func waitDone(t *testing.T, p *Pipeline) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if p.Status().Done {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("pipeline never finished enriching")
}

var testFilters = models.FilterSet{PriceType: models.PriceRent, Beds: 1, Baths: 1}

func TestStartBuildsInteractiveFeed(t *testing.T) {
	p, _ := newTestPipeline(t, storage.NewMemoryStore(), source.NewStatic())

	if err := p.Start(context.Background(), testFilters); err != nil {
		t.Fatalf("Start: %v", err)
	}

	listings := p.Listings()
	if len(listings) != 8 {
		t.Fatalf("got %d listings; want the full raw pool of 8", len(listings))
	}
	enriched := 0
	for _, l := range listings[:3] {
		if l.Enriched {
			enriched++
		}
	}
	if enriched != 3 {
		t.Errorf("initial batch: %d of 3 head listings enriched before Start returned", enriched)
	}
	if s := p.StateNow(); s != StateInteractive && s != StateDone {
		t.Errorf("state after Start = %q", s)
	}

	waitDone(t, p)
	for _, l := range p.Listings() {
		if !l.Enriched {
			t.Errorf("listing %s never enriched", l.ID)
		}
	}
	if p.StateNow() != StateDone {
		t.Errorf("state after full enrichment = %q; want %q", p.StateNow(), StateDone)
	}
}

func TestBackgroundEnrichOutlivesStartContext(t *testing.T) {
	p, _ := newTestPipeline(t, storage.NewMemoryStore(), source.NewStatic())

	// An HTTP handler's context dies as soon as the response is
	// written; background enrichment must keep going regardless.
	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Start(ctx, testFilters); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	waitDone(t, p)
	if got := p.Status().EnrichedCount; got != 8 {
		t.Errorf("enriched %d listings after caller cancel; want all 8", got)
	}
}

func TestRestoredEnrichOutlivesStartContext(t *testing.T) {
	kv := storage.NewMemoryStore()
	ctx := context.Background()

	// A half-enriched snapshot forces the restore path to resume
	// background work.
	snap := sessionSnapshot{
		Listings: []*models.Listing{
			feedListing("a", 80),
			{ID: "b", Title: "b", Price: 2100, PriceType: models.PriceRent, Tags: models.NeutralTags()},
			{ID: "c", Title: "c", Price: 2200, PriceType: models.PriceRent, Tags: models.NeutralTags()},
		},
		Status: models.EnrichmentStatus{EnrichedCount: 1, Total: 3},
		Cursor: 1,
	}
	if err := storage.SetJSON(ctx, kv, storage.SessionKey(testFilters.Key()), snap); err != nil {
		t.Fatal(err)
	}

	p, _ := newTestPipeline(t, kv, failSource{})
	startCtx, cancel := context.WithCancel(ctx)
	if err := p.Start(startCtx, testFilters); err != nil {
		t.Fatalf("restore Start should not touch the source: %v", err)
	}
	cancel()

	waitDone(t, p)
	for _, l := range p.Listings() {
		if !l.Enriched {
			t.Errorf("listing %s never enriched after caller cancel", l.ID)
		}
	}
}

func TestStartFailsOnRawFetchError(t *testing.T) {
	p, _ := newTestPipeline(t, storage.NewMemoryStore(), failSource{})

	if err := p.Start(context.Background(), testFilters); err == nil {
		t.Fatal("Start should surface a raw fetch failure")
	}
	if p.StateNow() != StateIdle {
		t.Errorf("failed start should return to idle, got %q", p.StateNow())
	}
}

type failSource struct{}

func (failSource) Search(context.Context, string, models.Query) ([]*models.Listing, error) {
	return nil, errors.New("portal unreachable")
}

func TestSwipeAdvancesCursorAndRecords(t *testing.T) {
	kv := storage.NewMemoryStore()
	p, sig := newTestPipeline(t, kv, source.NewStatic())
	ctx := context.Background()

	if err := p.Start(ctx, testFilters); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, p)

	first := p.Listings()[0]
	swiped, err := p.Swipe(ctx, models.SwipeLike)
	if err != nil {
		t.Fatalf("Swipe: %v", err)
	}
	if swiped.ID != first.ID {
		t.Errorf("swiped %s; want the head listing %s", swiped.ID, first.ID)
	}
	if p.Cursor() != 1 {
		t.Errorf("cursor = %d; want 1", p.Cursor())
	}
	if sig.LikedCount() != 1 {
		t.Errorf("liked count = %d; want 1", sig.LikedCount())
	}

	// A like also lands in the saved-listings namespace.
	if _, err := kv.Get(ctx, storage.SavedKey(first.ID)); err != nil {
		t.Errorf("liked listing not saved: %v", err)
	}

	if _, err := p.Swipe(ctx, models.SwipeDislike); err != nil {
		t.Fatalf("second Swipe: %v", err)
	}
	if p.Cursor() != 2 || sig.DislikedCount() != 1 {
		t.Errorf("cursor=%d disliked=%d; want 2 and 1", p.Cursor(), sig.DislikedCount())
	}
}

func TestSwipeExhaustionGivesUpAfterRetries(t *testing.T) {
	p, _ := newTestPipeline(t, storage.NewMemoryStore(), failSource{})
	ctx := context.Background()

	// Empty feed: every swipe reports exhaustion, the first two also
	// kick off a (failing) top-up attempt.
	for i := 0; i < maxExhaustionTopUps+2; i++ {
		if _, err := p.Swipe(ctx, models.SwipeLike); !errors.Is(err, ErrFeedExhausted) {
			t.Fatalf("swipe %d: err = %v; want ErrFeedExhausted", i, err)
		}
	}

	p.mu.Lock()
	attempts := p.exhaustTopUps
	p.mu.Unlock()
	if attempts != maxExhaustionTopUps {
		t.Errorf("exhaustion top-up attempts = %d; want capped at %d", attempts, maxExhaustionTopUps)
	}
}

func TestEnrichOneDropsStaleGeneration(t *testing.T) {
	p, _ := newTestPipeline(t, storage.NewMemoryStore(), source.NewStatic())
	ctx := context.Background()

	p.listings = []*models.Listing{{ID: "x1", Title: "stale test", Price: 2000, PriceType: models.PriceRent}}
	p.state = StateInteractive

	staleGen := p.generation.Load() + 1 // never issued
	p.enrichOne(ctx, staleGen, "x1")

	if p.listings[0].Enriched {
		t.Error("work from a stale generation must not commit")
	}
	if p.Status().EnrichedCount != 0 {
		t.Errorf("enriched count = %d; want 0", p.Status().EnrichedCount)
	}
}

func TestStopInvalidatesBackgroundWork(t *testing.T) {
	p, _ := newTestPipeline(t, storage.NewMemoryStore(), source.NewStatic())
	ctx := context.Background()

	if err := p.Start(ctx, testFilters); err != nil {
		t.Fatalf("Start: %v", err)
	}
	gen := p.generation.Load()
	p.Stop()

	if p.StateNow() != StateIdle {
		t.Errorf("state after Stop = %q; want idle", p.StateNow())
	}

	// Work holding the pre-Stop generation can no longer commit.
	listings := p.Listings()
	countBefore := p.Status().EnrichedCount
	p.enrichOne(ctx, gen, listings[len(listings)-1].ID)
	if got := p.Status().EnrichedCount; got != countBefore {
		t.Errorf("stale enrichment committed: count %d -> %d", countBefore, got)
	}
}

func TestSessionRestoreRoundTrip(t *testing.T) {
	kv := storage.NewMemoryStore()
	ctx := context.Background()

	first, _ := newTestPipeline(t, kv, source.NewStatic())
	if err := first.Start(ctx, testFilters); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, first)
	if _, err := first.Swipe(ctx, models.SwipeLike); err != nil {
		t.Fatal(err)
	}
	if _, err := first.Swipe(ctx, models.SwipeDislike); err != nil {
		t.Fatal(err)
	}
	seen := first.Listings()[:2]

	// A second pipeline over the same store must resume, not re-fetch.
	second, _ := newTestPipeline(t, kv, failSource{})
	if err := second.Start(ctx, testFilters); err != nil {
		t.Fatalf("restore Start should not touch the source: %v", err)
	}
	if second.Cursor() != 2 {
		t.Errorf("restored cursor = %d; want 2", second.Cursor())
	}
	restored := second.Listings()
	if len(restored) != 8 {
		t.Fatalf("restored %d listings; want 8", len(restored))
	}
	for i, l := range seen {
		if restored[i].ID != l.ID {
			t.Errorf("seen prefix position %d: restored %s; want %s", i, restored[i].ID, l.ID)
		}
	}
	if second.StateNow() != StateDone {
		t.Errorf("restored state = %q; want done", second.StateNow())
	}
}

func TestCorruptSnapshotFallsBackToFetch(t *testing.T) {
	kv := storage.NewMemoryStore()
	ctx := context.Background()
	kv.Set(ctx, storage.SessionKey(testFilters.Key()), []byte("{broken"))

	p, _ := newTestPipeline(t, kv, source.NewStatic())
	if err := p.Start(ctx, testFilters); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := len(p.Listings()); got != 8 {
		t.Errorf("got %d listings; a corrupt snapshot should trigger a fresh fetch of 8", got)
	}
}

func TestListingsReturnsCopies(t *testing.T) {
	p, _ := newTestPipeline(t, storage.NewMemoryStore(), source.NewStatic())
	if err := p.Start(context.Background(), testFilters); err != nil {
		t.Fatal(err)
	}
	waitDone(t, p)

	out := p.Listings()
	out[0].Title = "mutated"
	out[0].Tags.Dishwasher = !out[0].Tags.Dishwasher

	again := p.Listings()
	if again[0].Title == "mutated" {
		t.Error("caller mutation leaked into the feed")
	}
}
