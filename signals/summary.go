package signals

import (
	"fmt"
	"sort"
	"strings"

	"homematch/models"
)

var amenityLabels = map[string]string{
	"dishwasher":    "a dishwasher",
	"inUnitLaundry": "in-unit laundry",
	"gym":           "a gym",
	"doorman":       "a doorman",
	"outdoorSpace":  "outdoor space",
	"petsAllowed":   "pet-friendly buildings",
	"renovated":     "renovated units",
	"naturalLight":  "natural light",
}

// PatternSummary builds the human-readable "learned pattern" line shown
// to the user, from whichever liked-partition signals exist.
func (s *Store) PatternSummary() string {
	var parts []string

	if features := sortedKeys(s.DeriveFeatureAffinity(Liked)); len(features) > 0 {
		labels := make([]string, 0, len(features))
		for _, f := range features {
			if label, ok := amenityLabels[f]; ok {
				labels = append(labels, label)
			}
		}
		if len(labels) > 0 {
			parts = append(parts, "homes with "+joinNatural(labels))
		}
	}

	if lines := sortedKeys(s.DeriveSubwayAffinity(Liked)); len(lines) > 0 {
		parts = append(parts, "near the "+strings.Join(lines, "/")+" line(s)")
	}

	if pr := s.DerivePriceRange(Liked, ""); pr != nil {
		parts = append(parts, fmt.Sprintf("around $%.0f–$%.0f", pr.Min, pr.Max))
	}

	if cr := s.DeriveCommuteRange(Liked); cr != nil {
		parts = append(parts, fmt.Sprintf("with a ~%.0f min commute", cr.Avg))
	}

	if len(parts) == 0 {
		return "Still learning your taste — keep swiping."
	}
	return "You tend to like " + strings.Join(parts, ", ") + "."
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinNatural(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}

// Snapshot bundles every derived signal for debugging and the API.
type Snapshot struct {
	TotalSwipes     int                 `json:"totalSwipes"`
	LikedFeatures   []string            `json:"likedFeatures"`
	LikedLines      []string            `json:"likedLines"`
	LikedPrice      *models.Range       `json:"likedPrice,omitempty"`
	LikedCommute    *models.Range       `json:"likedCommute,omitempty"`
	DislikedPrice   *models.Range       `json:"dislikedPrice,omitempty"`
	DislikedCommute *models.Range       `json:"dislikedCommute,omitempty"`
	Quiz            *models.QuizAnswers `json:"quiz,omitempty"`
	Summary         string              `json:"summary"`
}

// Describe returns the full derived-signal snapshot.
func (s *Store) Describe() Snapshot {
	return Snapshot{
		TotalSwipes:     s.TotalSwipes(),
		LikedFeatures:   sortedKeys(s.DeriveFeatureAffinity(Liked)),
		LikedLines:      sortedKeys(s.DeriveSubwayAffinity(Liked)),
		LikedPrice:      s.DerivePriceRange(Liked, ""),
		LikedCommute:    s.DeriveCommuteRange(Liked),
		DislikedPrice:   s.DerivePriceRange(Disliked, ""),
		DislikedCommute: s.DeriveCommuteRange(Disliked),
		Quiz:            s.QuizAnswers(),
		Summary:         s.PatternSummary(),
	}
}
