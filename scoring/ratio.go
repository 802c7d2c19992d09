package scoring

import "homematch/models"

// rangePadding widens a reference range by 5% on both ends before any
// distance is measured, so a value a hair outside the observed span is
// not punished.
const rangePadding = 0.05

// RangeDistanceRatio measures how far value sits outside the padded
// [min,max] interval, normalised by the interval's average. Inside the
// padded range the ratio is 0. Normalising by the average rather than
// the width keeps a single outlier sample from dominating while staying
// sensitive to consistent drift.
func RangeDistanceRatio(value float64, r *models.Range) float64 {
	lo := r.Min * (1 - rangePadding)
	hi := r.Max * (1 + rangePadding)

	var distance float64
	switch {
	case value < lo:
		distance = lo - value
	case value > hi:
		distance = value - hi
	default:
		return 0
	}

	denom := r.Avg
	if denom < 1 {
		denom = 1
	}
	return distance / denom
}

// proximityToRange scores how well value fits a liked range. A value
// inside the padded range scores at least 0.78, rising toward 1.0 at
// the midpoint. Outside, the reward falls off in discrete
// range-distance-ratio bands down to 0.12.
func proximityToRange(value float64, r *models.Range) float64 {
	rdr := RangeDistanceRatio(value, r)
	if rdr == 0 {
		mid := (r.Min + r.Max) / 2
		halfWidth := (r.Max*(1+rangePadding) - r.Min*(1-rangePadding)) / 2
		if halfWidth <= 0 {
			return 1.0
		}
		off := value - mid
		if off < 0 {
			off = -off
		}
		if off > halfWidth {
			off = halfWidth
		}
		return 1.0 - 0.22*(off/halfWidth)
	}

	switch {
	case rdr <= 0.10:
		return 0.60
	case rdr <= 0.25:
		return 0.45
	case rdr <= 0.50:
		return 0.30
	default:
		return 0.12
	}
}

// aversionToRange scores how close value sits to a disliked range:
// 1.0 inside the padded range, fading to 0 as the value moves away.
func aversionToRange(value float64, r *models.Range) float64 {
	rdr := RangeDistanceRatio(value, r)
	switch {
	case rdr == 0:
		return 1.0
	case rdr <= 0.10:
		return 0.60
	case rdr <= 0.25:
		return 0.30
	default:
		return 0
	}
}

// commuteProximity scores a commute against the liked-commute average
// by relative deviation, or by absolute tiers when no baseline exists.
func commuteProximity(minutes int, likedAvg float64) float64 {
	if minutes <= 0 {
		return 0.5
	}

	if likedAvg <= 0 {
		switch {
		case minutes <= 20:
			return 0.9
		case minutes <= 35:
			return 0.7
		case minutes <= 50:
			return 0.5
		default:
			return 0.3
		}
	}

	dev := (float64(minutes) - likedAvg) / likedAvg
	if dev < 0 {
		dev = -dev
	}
	switch {
	case dev <= 0.15:
		return 1.0
	case dev <= 0.25:
		return 0.8
	case dev <= 0.35:
		return 0.6
	case dev <= 0.45:
		return 0.4
	default:
		return 0.25
	}
}

func clamp01Floor(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
