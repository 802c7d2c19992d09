package signals

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"homematch/models"
	"homematch/storage"
)

func newStore(t *testing.T) (*Store, *storage.MemoryStore) {
	t.Helper()
	kv := storage.NewMemoryStore()
	return NewStore(context.Background(), kv, zerolog.Nop()), kv
}

func recordLike(s *Store, tags *models.Tags, price float64, commute int) {
	s.RecordSwipe(context.Background(), tags, models.SwipeLike, price, models.PriceRent, commute)
}

func recordDislike(s *Store, tags *models.Tags, price float64, commute int) {
	s.RecordSwipe(context.Background(), tags, models.SwipeDislike, price, models.PriceRent, commute)
}

func TestRecordSwipeCounts(t *testing.T) {
	s, _ := newStore(t)

	recordLike(s, &models.Tags{Gym: true}, 2000, 25)
	recordLike(s, nil, 2200, 0)
	recordDislike(s, &models.Tags{}, 3500, 60)

	if got := s.TotalSwipes(); got != 3 {
		t.Errorf("TotalSwipes = %d; want 3", got)
	}
	if got := s.LikedCount(); got != 2 {
		t.Errorf("LikedCount = %d; want 2", got)
	}
	if got := s.DislikedCount(); got != 1 {
		t.Errorf("DislikedCount = %d; want 1", got)
	}
}

func TestHistorySurvivesRestart(t *testing.T) {
	kv := storage.NewMemoryStore()
	ctx := context.Background()

	first := NewStore(ctx, kv, zerolog.Nop())
	first.RecordSwipe(ctx, &models.Tags{Dishwasher: true}, models.SwipeLike, 1900, models.PriceRent, 20)
	first.RecordSwipe(ctx, &models.Tags{Dishwasher: true}, models.SwipeLike, 2100, models.PriceRent, 30)

	second := NewStore(ctx, kv, zerolog.Nop())
	if got := second.TotalSwipes(); got != 2 {
		t.Fatalf("restarted store sees %d swipes; want 2", got)
	}
	r := second.DerivePriceRange(Liked, models.PriceRent)
	if r == nil || r.Min != 1900 || r.Max != 2100 || r.Avg != 2000 {
		t.Errorf("restarted price range = %+v; want 1900/2100/2000", r)
	}
}

func TestDeriveRangesNeedTwoSamples(t *testing.T) {
	s, _ := newStore(t)

	if r := s.DerivePriceRange(Liked, models.PriceRent); r != nil {
		t.Errorf("empty history price range = %+v; want nil", r)
	}
	recordLike(s, models.NeutralTags(), 2000, 25)
	if r := s.DerivePriceRange(Liked, models.PriceRent); r != nil {
		t.Errorf("single-sample price range = %+v; want nil", r)
	}
	if r := s.DeriveCommuteRange(Liked); r != nil {
		t.Errorf("single-sample commute range = %+v; want nil", r)
	}

	recordLike(s, models.NeutralTags(), 2600, 45)
	r := s.DerivePriceRange(Liked, models.PriceRent)
	if r == nil || r.Min != 2000 || r.Max != 2600 || r.Avg != 2300 {
		t.Errorf("price range = %+v; want 2000/2600/2300", r)
	}
	c := s.DeriveCommuteRange(Liked)
	if c == nil || c.Min != 25 || c.Max != 45 || c.Avg != 35 {
		t.Errorf("commute range = %+v; want 25/45/35", c)
	}
}

func TestDerivePriceRangeFiltersType(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	s.RecordSwipe(ctx, nil, models.SwipeLike, 2000, models.PriceRent, 0)
	s.RecordSwipe(ctx, nil, models.SwipeLike, 2400, models.PriceRent, 0)
	s.RecordSwipe(ctx, nil, models.SwipeLike, 850000, models.PriceBuy, 0)
	s.RecordSwipe(ctx, nil, models.SwipeLike, 0, models.PriceRent, 0) // zero price never counts

	r := s.DerivePriceRange(Liked, models.PriceRent)
	if r == nil || r.Max != 2400 {
		t.Errorf("rent range = %+v; buy-side price leaked in", r)
	}
	if r := s.DerivePriceRange(Liked, models.PriceBuy); r != nil {
		t.Errorf("buy range = %+v; want nil from a single sample", r)
	}
}

func TestFeatureAffinityThresholds(t *testing.T) {
	s, _ := newStore(t)

	// 5 liked entries: gym in 3 (60%, count>=2: qualifies),
	// dishwasher in 1 (20%: fails ratio), doorman in 2 (40%: qualifies).
	recordLike(s, &models.Tags{Gym: true, Dishwasher: true}, 0, 0)
	recordLike(s, &models.Tags{Gym: true, Doorman: true}, 0, 0)
	recordLike(s, &models.Tags{Gym: true, Doorman: true}, 0, 0)
	recordLike(s, &models.Tags{}, 0, 0)
	recordLike(s, &models.Tags{}, 0, 0)

	affine := s.DeriveFeatureAffinity(Liked)
	if !affine["gym"] || !affine["doorman"] {
		t.Errorf("gym and doorman should qualify, got %v", affine)
	}
	if affine["dishwasher"] {
		t.Errorf("dishwasher at 20%% should not qualify, got %v", affine)
	}
}

func TestDislikedAffinityFloorIsOne(t *testing.T) {
	s, _ := newStore(t)

	// 2 disliked entries, outdoor space in exactly 1 (50%): the disliked
	// partition accepts a single occurrence.
	recordDislike(s, &models.Tags{OutdoorSpace: true}, 0, 0)
	recordDislike(s, &models.Tags{}, 0, 0)

	if affine := s.DeriveFeatureAffinity(Disliked); !affine["outdoorSpace"] {
		t.Errorf("single disliked occurrence at 50%% should qualify, got %v", affine)
	}

	// Same shape on the liked side fails the occurrence floor of 2.
	recordLike(s, &models.Tags{OutdoorSpace: true}, 0, 0)
	recordLike(s, &models.Tags{}, 0, 0)
	if affine := s.DeriveFeatureAffinity(Liked); affine["outdoorSpace"] {
		t.Errorf("single liked occurrence should not qualify, got %v", affine)
	}
}

func TestSubwayAffinityDedupesWithinEntry(t *testing.T) {
	s, _ := newStore(t)

	recordLike(s, &models.Tags{NearSubwayLines: []string{"L", "L", "L"}}, 0, 0)
	recordLike(s, &models.Tags{NearSubwayLines: []string{"G"}}, 0, 0)
	recordLike(s, &models.Tags{NearSubwayLines: []string{"L"}}, 0, 0)

	affine := s.DeriveSubwayAffinity(Liked)
	if !affine["L"] {
		t.Errorf("L appears in 2/3 entries and should qualify, got %v", affine)
	}
	if affine["G"] {
		t.Errorf("G appears once in the liked partition and should not qualify, got %v", affine)
	}
}

func TestContextCountsSkipUnknown(t *testing.T) {
	s, _ := newStore(t)

	recordLike(s, &models.Tags{BuildingType: models.BuildingElevator, NoiseLevel: models.NoiseQuiet}, 0, 0)
	recordLike(s, &models.Tags{BuildingType: models.BuildingElevator}, 0, 0)
	recordLike(s, models.NeutralTags(), 0, 0)

	building, noise := s.ContextCounts(Liked)
	if building[models.BuildingElevator] != 2 || len(building) != 1 {
		t.Errorf("building counts = %v; want elevator:2 only", building)
	}
	if noise[models.NoiseQuiet] != 1 || len(noise) != 1 {
		t.Errorf("noise counts = %v; want quiet:1 only", noise)
	}
}

func TestQuizAnswersSetOnce(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	if s.QuizAnswers() != nil {
		t.Fatal("fresh store should have no quiz answers")
	}
	first := models.QuizAnswers{Commute: "short", Budget: "strict", Style: "elevator"}
	if !s.SetQuizAnswers(ctx, first) {
		t.Fatal("first SetQuizAnswers should succeed")
	}
	if s.SetQuizAnswers(ctx, models.QuizAnswers{Commute: "flexible"}) {
		t.Error("second SetQuizAnswers should be rejected")
	}
	if got := s.QuizAnswers(); got == nil || got.Commute != "short" {
		t.Errorf("stored answers = %+v; want the first submission", got)
	}
}

// failingStore rejects all writes so persistence-error handling can be
// exercised.
type failingStore struct {
	storage.Store
}

func (f *failingStore) Set(ctx context.Context, key string, value []byte) error {
	return errors.New("disk full")
}

func TestRecordSwipeSurvivesWriteFailure(t *testing.T) {
	kv := &failingStore{Store: storage.NewMemoryStore()}
	s := NewStore(context.Background(), kv, zerolog.Nop())

	recordLike(s, &models.Tags{Gym: true}, 2000, 20)
	recordLike(s, &models.Tags{Gym: true}, 2200, 25)

	if got := s.TotalSwipes(); got != 2 {
		t.Errorf("in-memory history should survive write failures, got %d swipes", got)
	}
	if affine := s.DeriveFeatureAffinity(Liked); !affine["gym"] {
		t.Errorf("signals should still derive from memory, got %v", affine)
	}
}
