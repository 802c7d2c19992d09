package models

import "time"

// SwipeDirection is the user's verdict on a listing.
type SwipeDirection string

const (
	SwipeLike    SwipeDirection = "like"
	SwipeDislike SwipeDirection = "dislike"
)

// SwipeEntry captures the context of one swipe. Entries are append-only:
// once recorded they are never mutated, only re-aggregated.
type SwipeEntry struct {
	Tags           *Tags     `json:"tags"`
	Price          float64   `json:"price"`
	PriceType      PriceType `json:"priceType"`
	CommuteMinutes int       `json:"commuteMinutes"`
	At             time.Time `json:"at"`
}

// SwipeHistory is the full feedback record, partitioned by direction.
type SwipeHistory struct {
	Liked    []SwipeEntry `json:"liked"`
	Disliked []SwipeEntry `json:"disliked"`
}

// Total returns the number of swipes across both partitions.
func (h *SwipeHistory) Total() int {
	return len(h.Liked) + len(h.Disliked)
}

// Range is a derived numeric signal over a swipe partition. A Range is
// only produced from two or more qualifying samples; callers receive
// nil, never a zeroed Range, when the data is too thin.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// QuizAnswers is the optional explicit preference 3-tuple from the
// one-time onboarding quiz. Its lifecycle is independent of swipe
// history: it is set at most once and only ever nudges warm scores.
type QuizAnswers struct {
	Commute string `json:"commute"` // "short", "flexible"
	Budget  string `json:"budget"`  // "strict", "stretch"
	Style   string `json:"style"`   // "elevator", "walkup", "any"
}

// EnrichmentStatus is the transient progress snapshot surfaced to the
// UI while a pipeline run enriches listings.
type EnrichmentStatus struct {
	EnrichedCount int    `json:"enrichedCount"`
	Total         int    `json:"total"`
	CurrentItem   string `json:"currentItem"`
	Done          bool   `json:"done"`
}
