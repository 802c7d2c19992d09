package services

import (
	"fmt"
	"sort"
	"strings"

	"homematch/models"
	"homematch/signals"
)

// FeedReport holds end-of-session statistics over the feed and the
// learned signals.
type FeedReport struct {
	TotalListings int
	Enriched      int
	Liked         int
	Disliked      int
	AveragePrice  float64
	MinPrice      float64
	MaxPrice      float64
	TopMatches    []*models.Listing
	Summary       string
}

// BuildFeedReport computes the session report.
func BuildFeedReport(listings []*models.Listing, snap signals.Snapshot, liked, disliked int) *FeedReport {
	report := &FeedReport{
		TotalListings: len(listings),
		Liked:         liked,
		Disliked:      disliked,
		Summary:       snap.Summary,
	}

	var priced []*models.Listing
	for _, l := range listings {
		if l.Enriched {
			report.Enriched++
		}
		if l.Price > 0 {
			priced = append(priced, l)
		}
	}

	if len(priced) > 0 {
		report.MinPrice = priced[0].Price
		report.MaxPrice = priced[0].Price
		var total float64
		for _, l := range priced {
			total += l.Price
			if l.Price < report.MinPrice {
				report.MinPrice = l.Price
			}
			if l.Price > report.MaxPrice {
				report.MaxPrice = l.Price
			}
		}
		report.AveragePrice = total / float64(len(priced))
	}

	ranked := make([]*models.Listing, len(listings))
	copy(ranked, listings)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].MatchScore > ranked[j].MatchScore })
	if len(ranked) > 5 {
		ranked = ranked[:5]
	}
	report.TopMatches = ranked

	return report
}

// Print writes the report to stdout for demo sessions.
func (r *FeedReport) Print() {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Printf("\n%s\n  FEED SESSION SUMMARY\n%s\n\n", sep, sep)

	fmt.Printf("  Listings in feed : %d (%d enriched)\n", r.TotalListings, r.Enriched)
	fmt.Printf("  Swipes           : %d liked / %d disliked\n", r.Liked, r.Disliked)
	fmt.Println()

	fmt.Printf("  Price range\n  %s\n", thin)
	if r.AveragePrice > 0 {
		fmt.Printf("  Average : $%.0f   Min : $%.0f   Max : $%.0f\n",
			r.AveragePrice, r.MinPrice, r.MaxPrice)
	} else {
		fmt.Printf("  No price data\n")
	}
	fmt.Println()

	fmt.Printf("  Top matches\n  %s\n", thin)
	for i, l := range r.TopMatches {
		title := l.Title
		if len(title) > 38 {
			title = title[:35] + "..."
		}
		fmt.Printf("  %d. %-40s %d\n", i+1, title, l.MatchScore)
	}
	fmt.Println()

	fmt.Printf("  %s\n\n%s\n\n", r.Summary, sep)
}
