package models

import "strconv"

// PriceType distinguishes rental listings from sales listings.
type PriceType string

const (
	PriceRent PriceType = "rent"
	PriceBuy  PriceType = "buy"
)

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// CommuteTime is one computed commute for a listing.
type CommuteTime struct {
	Destination string `json:"destination"`
	Mode        string `json:"mode"` // transit, drive, bike, walk
	Minutes     int    `json:"minutes"`
}

// Listing is a single candidate home in the feed. A listing source
// creates it with raw attributes only; the pipeline mutates it in place
// as commute, tag and scoring phases complete.
type Listing struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Price       float64   `json:"price"`
	PriceType   PriceType `json:"priceType"`
	Beds        int       `json:"beds"`
	Baths       float64   `json:"baths"`
	Sqft        int       `json:"sqft"`
	Address     string    `json:"address"`
	Area        string    `json:"area"`
	Description string    `json:"description"`

	Coordinates  *Coordinates  `json:"coordinates,omitempty"`
	CommuteTimes []CommuteTime `json:"commuteTimes,omitempty"`
	Tags         *Tags         `json:"tags,omitempty"`

	MatchScore       int    `json:"matchScore"`
	MatchExplanation string `json:"matchExplanation,omitempty"`

	FeatureDescription string `json:"featureDescription,omitempty"`
	ExternalListingURL string `json:"externalListingUrl,omitempty"`

	// Enriched flips once commute, tags and a real score are in place.
	Enriched bool `json:"enriched"`
}

// BestCommuteMinutes returns the shortest known commute, or 0 when none
// has been computed yet.
func (l *Listing) BestCommuteMinutes() int {
	best := 0
	for _, c := range l.CommuteTimes {
		if c.Minutes > 0 && (best == 0 || c.Minutes < best) {
			best = c.Minutes
		}
	}
	return best
}

// FilterSet is the active search filter tuple. It keys the session
// snapshot cache: changing any field starts a fresh pipeline run.
type FilterSet struct {
	PriceType PriceType `json:"priceType"`
	Beds      int       `json:"beds"`
	Baths     float64   `json:"baths"`
}

// Key returns a stable cache key for the filter tuple.
func (f FilterSet) Key() string {
	return string(f.PriceType) + ":" + strconv.Itoa(f.Beds) + ":" +
		strconv.FormatFloat(f.Baths, 'g', -1, 64)
}

// Query is a single page request against a listing source.
type Query struct {
	PriceType PriceType
	Beds      int
	Baths     float64
	Limit     int
	Offset    int
}
