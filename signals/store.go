// Package signals persists the user's swipe feedback and derives
// preference signals from it. Derived signals are recomputed on demand
// from the append-only history, so there is no incremental state to
// keep consistent.
package signals

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"homematch/models"
	"homematch/storage"
)

// Partition selects which side of the swipe history a signal is
// derived from.
type Partition string

const (
	Liked    Partition = "liked"
	Disliked Partition = "disliked"
)

// minSamples is the floor below which derived ranges and affinities are
// considered noise and reported as absent.
const minSamples = 2

// affinityThreshold is the share of a partition a feature must appear
// in to qualify as an affinity.
const affinityThreshold = 0.4

// Store records swipes and answers signal queries. It keeps the full
// history in memory and writes through to the key-value store; a failed
// write costs at most one entry after a restart and never fails a
// swipe.
type Store struct {
	kv     storage.Store
	logger zerolog.Logger

	mu      sync.RWMutex
	history models.SwipeHistory
	quiz    *models.QuizAnswers
}

// NewStore loads any persisted swipe history (upgrading the legacy
// format once if needed) and returns a ready Store.
func NewStore(ctx context.Context, kv storage.Store, logger zerolog.Logger) *Store {
	s := &Store{
		kv:     kv,
		logger: logger.With().Str("component", "signals").Logger(),
	}

	raw, err := kv.Get(ctx, storage.KeySwipeHistory)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// First run.
	case err != nil:
		s.logger.Warn().Err(err).Msg("could not load swipe history, starting empty")
	default:
		history, migrated, err := NormalizeSwipeHistory(raw)
		if err != nil {
			s.logger.Warn().Err(err).Msg("unreadable swipe history, starting empty")
			break
		}
		s.history = *history
		if migrated {
			s.logger.Info().Int("entries", history.Total()).Msg("upgraded legacy swipe history format")
			s.persist(ctx)
		}
	}

	var quiz models.QuizAnswers
	if err := storage.GetJSON(ctx, kv, storage.KeyQuizAnswers, &quiz); err == nil {
		s.quiz = &quiz
	}

	return s
}

// RecordSwipe appends one feedback entry. It never fails: persistence
// errors are logged and swallowed so one lost entry cannot break
// subsequent swipes.
func (s *Store) RecordSwipe(ctx context.Context, tags *models.Tags, direction models.SwipeDirection, price float64, priceType models.PriceType, commuteMinutes int) {
	if tags == nil {
		tags = models.NeutralTags()
	}
	tags.Normalize()

	entry := models.SwipeEntry{
		Tags:           tags,
		Price:          price,
		PriceType:      priceType,
		CommuteMinutes: commuteMinutes,
		At:             time.Now().UTC(),
	}

	s.mu.Lock()
	if direction == models.SwipeLike {
		s.history.Liked = append(s.history.Liked, entry)
	} else {
		s.history.Disliked = append(s.history.Disliked, entry)
	}
	s.mu.Unlock()

	s.persist(ctx)
}

func (s *Store) persist(ctx context.Context) {
	s.mu.RLock()
	snapshot := s.history
	s.mu.RUnlock()

	if err := storage.SetJSON(ctx, s.kv, storage.KeySwipeHistory, &snapshot); err != nil {
		s.logger.Warn().Err(err).Msg("swipe history write failed, entry kept in memory only")
	}
}

// TotalSwipes returns the liked plus disliked count.
func (s *Store) TotalSwipes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Total()
}

// LikedCount returns the size of the liked partition.
func (s *Store) LikedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history.Liked)
}

// DislikedCount returns the size of the disliked partition.
func (s *Store) DislikedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history.Disliked)
}

func (s *Store) partition(p Partition) []models.SwipeEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var src []models.SwipeEntry
	if p == Liked {
		src = s.history.Liked
	} else {
		src = s.history.Disliked
	}
	out := make([]models.SwipeEntry, len(src))
	copy(out, src)
	return out
}

// DerivePriceRange aggregates swiped prices for a partition. When
// priceType is non-empty only matching entries qualify. Returns nil
// below two qualifying samples.
func (s *Store) DerivePriceRange(p Partition, priceType models.PriceType) *models.Range {
	var values []float64
	for _, e := range s.partition(p) {
		if e.Price <= 0 {
			continue
		}
		if priceType != "" && e.PriceType != "" && e.PriceType != priceType {
			continue
		}
		values = append(values, e.Price)
	}
	return rangeOf(values)
}

// DeriveCommuteRange aggregates swiped commute minutes for a partition.
// Returns nil below two qualifying samples.
func (s *Store) DeriveCommuteRange(p Partition) *models.Range {
	var values []float64
	for _, e := range s.partition(p) {
		if e.CommuteMinutes > 0 {
			values = append(values, float64(e.CommuteMinutes))
		}
	}
	return rangeOf(values)
}

func rangeOf(values []float64) *models.Range {
	if len(values) < minSamples {
		return nil
	}
	r := &models.Range{Min: values[0], Max: values[0]}
	sum := 0.0
	for _, v := range values {
		if v < r.Min {
			r.Min = v
		}
		if v > r.Max {
			r.Max = v
		}
		sum += v
	}
	r.Avg = sum / float64(len(values))
	return r
}

// DeriveFeatureAffinity returns the amenity names appearing in at least
// 40% of the partition. The occurrence floor is 2 for liked entries and
// 1 for disliked, where sample counts run small. Empty below two
// partition entries.
func (s *Store) DeriveFeatureAffinity(p Partition) map[string]bool {
	entries := s.partition(p)
	affine := make(map[string]bool)
	if len(entries) < minSamples {
		return affine
	}

	counts := make(map[string]int)
	for _, e := range entries {
		for name, on := range e.Tags.Amenities() {
			if on {
				counts[name]++
			}
		}
	}

	for name, n := range counts {
		if qualifies(n, len(entries), p) {
			affine[name] = true
		}
	}
	return affine
}

// DeriveSubwayAffinity returns the subway lines appearing in at least
// 40% of the partition, with the same occurrence floors as feature
// affinity. Empty below two partition entries.
func (s *Store) DeriveSubwayAffinity(p Partition) map[string]bool {
	entries := s.partition(p)
	affine := make(map[string]bool)
	if len(entries) < minSamples {
		return affine
	}

	counts := make(map[string]int)
	for _, e := range entries {
		seen := map[string]struct{}{}
		for _, line := range e.Tags.NearSubwayLines {
			if _, dup := seen[line]; dup {
				continue
			}
			seen[line] = struct{}{}
			counts[line]++
		}
	}

	for line, n := range counts {
		if qualifies(n, len(entries), p) {
			affine[line] = true
		}
	}
	return affine
}

func qualifies(count, total int, p Partition) bool {
	minCount := 2
	if p == Disliked {
		minCount = 1
	}
	return count >= minCount && float64(count)/float64(total) >= affinityThreshold
}

// ContextCounts tallies building type and noise level occurrences for a
// partition, for the scorer's context-match factor.
func (s *Store) ContextCounts(p Partition) (building, noise map[string]int) {
	building = make(map[string]int)
	noise = make(map[string]int)
	for _, e := range s.partition(p) {
		if e.Tags.BuildingType != models.BuildingUnknown {
			building[e.Tags.BuildingType]++
		}
		if e.Tags.NoiseLevel != models.NoiseUnknown {
			noise[e.Tags.NoiseLevel]++
		}
	}
	return building, noise
}

// SetQuizAnswers stores the explicit preference tuple. It is honoured
// at most once: later calls are ignored.
func (s *Store) SetQuizAnswers(ctx context.Context, answers models.QuizAnswers) bool {
	s.mu.Lock()
	if s.quiz != nil {
		s.mu.Unlock()
		return false
	}
	s.quiz = &answers
	s.mu.Unlock()

	if err := storage.SetJSON(ctx, s.kv, storage.KeyQuizAnswers, &answers); err != nil {
		s.logger.Warn().Err(err).Msg("quiz answers write failed")
	}
	return true
}

// QuizAnswers returns the stored quiz tuple, or nil if never answered.
func (s *Store) QuizAnswers() *models.QuizAnswers {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quiz
}
