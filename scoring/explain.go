package scoring

import (
	"fmt"
	"strings"

	"homematch/models"
	"homematch/signals"
)

// Explanation builds the short matchExplanation sentence from the
// strongest scoring factors. It doubles as the fallback when the
// explanation service is unavailable.
func (e *Engine) Explanation(tags *models.Tags, price float64, priceType models.PriceType, commutes []models.CommuteTime) string {
	if tags == nil {
		tags = models.NeutralTags()
	}
	tags.Normalize()

	if e.signals.TotalSwipes() < warmThreshold {
		return coldExplanation(tags)
	}

	f := e.warmFactors(tags, price, priceType, commutes)

	type contribution struct {
		weight float64
		phrase string
	}
	contributions := []contribution{
		{wFeatures * f.features, "has features you keep liking"},
		{wSubway * f.subway, "sits near your usual subway lines"},
		{wPrice * f.price, "fits your price pattern"},
		{wContext * f.context, "matches the building style you prefer"},
		{wCommute * f.commute, "keeps your commute in range"},
	}

	best := contributions[0]
	for _, c := range contributions[1:] {
		if c.weight > best.weight {
			best = c
		}
	}

	var caveat string
	switch {
	case f.pricePenalty >= 0.6:
		caveat = "though the price is close to ones you passed on"
	case f.featuresPenalty >= 0.6:
		caveat = "though it shares features with homes you disliked"
	case f.commutePenalty >= 0.6:
		caveat = "though the commute resembles ones you rejected"
	}

	if caveat != "" {
		return fmt.Sprintf("This home %s, %s.", best.phrase, caveat)
	}
	return fmt.Sprintf("This home %s.", best.phrase)
}

func coldExplanation(tags *models.Tags) string {
	var highlights []string
	if n := tags.AmenityCount(); n >= 3 {
		highlights = append(highlights, fmt.Sprintf("%d standout amenities", n))
	}
	if n := len(tags.NearSubwayLines); n >= 2 {
		highlights = append(highlights, "strong subway access")
	}
	if tags.BuildingType == models.BuildingElevator {
		highlights = append(highlights, "an elevator building")
	}
	if tags.NoiseLevel == models.NoiseQuiet {
		highlights = append(highlights, "a quiet block")
	}

	if len(highlights) == 0 {
		return "A solid baseline match — swipe to teach the feed your taste."
	}
	return "Scored on " + strings.Join(highlights, ", ") + "."
}

// PreRankByPrice orders candidate ids for the pattern top-up before any
// enrichment happens: candidates whose asking price sits closest to the
// liked price range float up. Returns the price-affinity rank value
// (lower is better) for sorting.
func (e *Engine) PreRankByPrice(price float64, priceType models.PriceType) float64 {
	r := e.signals.DerivePriceRange(signals.Liked, priceType)
	if r == nil || price <= 0 {
		return 0.5
	}
	return RangeDistanceRatio(price, r)
}
