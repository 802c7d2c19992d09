// Package scoring turns listing attributes and derived preference
// signals into a 0–100 match score with a human-readable explanation.
// Scoring is pure: no I/O, no mutation, identical inputs always give
// identical scores.
package scoring

import (
	"math"

	"homematch/models"
	"homematch/signals"
)

// warmThreshold is the swipe count at which the scorer switches from
// attribute-only cold scoring to learned-affinity warm scoring.
const warmThreshold = 3

// Score bands. Warm scores can be more decisive than cold ones, so the
// bands overlap but are not identical.
const (
	coldFloor = 58
	coldSpan  = 34 // cold ceiling 92
	warmFloor = 55
	warmSpan  = 43 // warm ceiling 98
)

// Warm factor weights.
const (
	wFeatures = 0.30
	wSubway   = 0.14
	wPrice    = 0.18
	wContext  = 0.13
	wCommute  = 0.25
)

// Disliked-signal penalty weights.
const (
	pFeatures = 0.18
	pSubway   = 0.06
	pPrice    = 0.08
	pContext  = 0.05
	pCommute  = 0.12
)

// SignalSource is the slice of signal-store behaviour the engine reads.
type SignalSource interface {
	TotalSwipes() int
	DerivePriceRange(p signals.Partition, priceType models.PriceType) *models.Range
	DeriveCommuteRange(p signals.Partition) *models.Range
	DeriveFeatureAffinity(p signals.Partition) map[string]bool
	DeriveSubwayAffinity(p signals.Partition) map[string]bool
	ContextCounts(p signals.Partition) (building, noise map[string]int)
	QuizAnswers() *models.QuizAnswers
}

// Engine scores listings against the current signal state.
type Engine struct {
	signals SignalSource
}

// NewEngine creates an Engine reading from src.
func NewEngine(src SignalSource) *Engine {
	return &Engine{signals: src}
}

// Score computes the match score for a listing's attributes. Tags may
// be nil or partially filled; missing booleans count as false and
// missing enums as unknown.
func (e *Engine) Score(tags *models.Tags, price float64, priceType models.PriceType, commutes []models.CommuteTime) int {
	if tags == nil {
		tags = models.NeutralTags()
	}
	tags.Normalize()

	if e.signals.TotalSwipes() < warmThreshold {
		return e.coldScore(tags)
	}
	return e.warmScore(tags, price, priceType, commutes)
}

// coldScore ranks by raw attributes alone: amenity density, subway
// density, building type and noise level, mapped into [58,92].
func (e *Engine) coldScore(tags *models.Tags) int {
	density := float64(tags.AmenityCount()) / float64(len(models.AmenityNames))

	var subway float64
	switch lines := len(tags.NearSubwayLines); {
	case lines >= 3:
		subway = 1.0
	case lines == 2:
		subway = 0.8
	case lines == 1:
		subway = 0.6
	default:
		subway = 0.35
	}

	weighted := 0.50*density +
		0.20*subway +
		0.15*enumScore(tags.BuildingType, models.BuildingElevator, models.BuildingWalkup) +
		0.15*enumScore(tags.NoiseLevel, models.NoiseQuiet, models.NoiseAverage)

	return coldFloor + int(math.Round(weighted*coldSpan))
}

// enumScore ranks a two-valued enum with an unknown fallback:
// best 1.0, second 0.7, unknown 0.5.
func enumScore(value, best, second string) float64 {
	switch value {
	case best:
		return 1.0
	case second:
		return 0.7
	default:
		return 0.5
	}
}

// warmScore combines five learned-affinity factors, subtracts
// disliked-signal penalties, applies quiz nudges and maps the result
// into [55,98].
func (e *Engine) warmScore(tags *models.Tags, price float64, priceType models.PriceType, commutes []models.CommuteTime) int {
	f := e.warmFactors(tags, price, priceType, commutes)

	weighted := wFeatures*f.features + wSubway*f.subway + wPrice*f.price +
		wContext*f.context + wCommute*f.commute

	weighted -= pFeatures*f.featuresPenalty + pSubway*f.subwayPenalty +
		pPrice*f.pricePenalty + pContext*f.contextPenalty + pCommute*f.commutePenalty

	weighted += e.quizNudge(tags, price, priceType, bestCommute(commutes))

	score := warmFloor + int(math.Round(clamp01Floor(weighted)*warmSpan))
	if score > warmFloor+warmSpan {
		score = warmFloor + warmSpan
	}
	return score
}

// warmFactors holds each independently-computed ratio in [0,1].
type warmFactors struct {
	features float64
	subway   float64
	price    float64
	context  float64
	commute  float64

	featuresPenalty float64
	subwayPenalty   float64
	pricePenalty    float64
	contextPenalty  float64
	commutePenalty  float64
}

func (e *Engine) warmFactors(tags *models.Tags, price float64, priceType models.PriceType, commutes []models.CommuteTime) warmFactors {
	f := warmFactors{
		features: overlapRatio(e.signals.DeriveFeatureAffinity(signals.Liked), tags.Amenities()),
		subway:   lineOverlapRatio(e.signals.DeriveSubwayAffinity(signals.Liked), tags.NearSubwayLines),
		price:    0.5,
		context:  e.contextMatch(signals.Liked, tags),
		commute:  0.5,
	}

	if r := e.signals.DerivePriceRange(signals.Liked, priceType); r != nil && price > 0 {
		f.price = proximityToRange(price, r)
	}

	commute := bestCommute(commutes)
	var likedAvg float64
	if r := e.signals.DeriveCommuteRange(signals.Liked); r != nil {
		likedAvg = r.Avg
	}
	f.commute = commuteProximity(commute, likedAvg)

	// Penalties default to zero, not neutral: an empty disliked
	// partition must not drag every listing down.
	if affine := e.signals.DeriveFeatureAffinity(signals.Disliked); len(affine) > 0 {
		f.featuresPenalty = overlapRatio(affine, tags.Amenities())
	}
	if affine := e.signals.DeriveSubwayAffinity(signals.Disliked); len(affine) > 0 {
		f.subwayPenalty = lineOverlapRatio(affine, tags.NearSubwayLines)
	}
	if r := e.signals.DerivePriceRange(signals.Disliked, priceType); r != nil && price > 0 {
		f.pricePenalty = aversionToRange(price, r)
	}
	f.contextPenalty = e.contextAversion(tags)
	if r := e.signals.DeriveCommuteRange(signals.Disliked); r != nil && commute > 0 {
		f.commutePenalty = aversionToRange(float64(commute), r)
	}

	return f
}

// overlapRatio is the share of affine features present on the listing.
// With no affinity learned yet the factor is neutral.
func overlapRatio(affine map[string]bool, present map[string]bool) float64 {
	if len(affine) == 0 {
		return 0.5
	}
	hits := 0
	for name := range affine {
		if present[name] {
			hits++
		}
	}
	return float64(hits) / float64(len(affine))
}

func lineOverlapRatio(affine map[string]bool, lines []string) float64 {
	if len(affine) == 0 {
		return 0.5
	}
	hits := 0
	seen := map[string]struct{}{}
	for _, line := range lines {
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		if affine[line] {
			hits++
		}
	}
	return float64(hits) / float64(len(affine))
}

// contextMatch scores building type and noise level against the
// majority value of the liked partition: match 1.0, contradiction 0.3,
// unknown on either side 0.5.
func (e *Engine) contextMatch(p signals.Partition, tags *models.Tags) float64 {
	building, noise := e.signals.ContextCounts(p)
	return (matchAgainstMajority(tags.BuildingType, building) +
		matchAgainstMajority(tags.NoiseLevel, noise)) / 2
}

func (e *Engine) contextAversion(tags *models.Tags) float64 {
	building, noise := e.signals.ContextCounts(signals.Disliked)
	score := 0.0
	if m := majority(building); m != "" && m == tags.BuildingType {
		score += 0.5
	}
	if m := majority(noise); m != "" && m == tags.NoiseLevel {
		score += 0.5
	}
	return score
}

func matchAgainstMajority(value string, counts map[string]int) float64 {
	m := majority(counts)
	switch {
	case m == "" || value == models.BuildingUnknown || value == models.NoiseUnknown:
		return 0.5
	case value == m:
		return 1.0
	default:
		return 0.3
	}
}

func majority(counts map[string]int) string {
	best, bestN := "", 0
	for v, n := range counts {
		if n > bestN {
			best, bestN = v, n
		}
	}
	return best
}

// quizNudge applies the small explicit-preference adjustments. Each
// component contributes at most ±0.08.
func (e *Engine) quizNudge(tags *models.Tags, price float64, priceType models.PriceType, commute int) float64 {
	quiz := e.signals.QuizAnswers()
	if quiz == nil {
		return 0
	}

	nudge := 0.0

	switch quiz.Commute {
	case "short":
		if commute > 0 && commute <= 30 {
			nudge += 0.06
		} else if commute > 45 {
			nudge -= 0.06
		}
	case "flexible":
		if commute > 45 {
			nudge += 0.02
		}
	}

	if r := e.signals.DerivePriceRange(signals.Liked, priceType); r != nil && price > 0 {
		rdr := RangeDistanceRatio(price, r)
		switch quiz.Budget {
		case "strict":
			if rdr == 0 {
				nudge += 0.04
			} else if rdr > 0.50 {
				nudge -= 0.08
			}
		case "stretch":
			if rdr > 0 && rdr <= 0.25 {
				nudge += 0.02
			}
		}
	}

	switch quiz.Style {
	case models.BuildingElevator, models.BuildingWalkup:
		if tags.BuildingType == quiz.Style {
			nudge += 0.04
		} else if tags.BuildingType != models.BuildingUnknown {
			nudge -= 0.04
		}
	}

	return nudge
}

func bestCommute(commutes []models.CommuteTime) int {
	best := 0
	for _, c := range commutes {
		if c.Minutes > 0 && (best == 0 || c.Minutes < best) {
			best = c.Minutes
		}
	}
	return best
}

// ProvisionalScore gives a raw, pre-enrichment listing a placeholder
// score from static attributes only, so the feed paints before any
// provider call. Stays within the cold band.
func (e *Engine) ProvisionalScore(l *models.Listing) int {
	score := e.coldScore(models.NeutralTags())
	if l.Sqft >= 900 {
		score += 3
	}
	if l.Beds >= 2 {
		score += 2
	}
	if l.Baths >= 2 {
		score += 2
	}
	if ceiling := coldFloor + coldSpan; score > ceiling {
		score = ceiling
	}
	return score
}
