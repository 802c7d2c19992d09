package services

import (
	"testing"

	"homematch/models"
	"homematch/signals"
)

func TestBuildFeedReport(t *testing.T) {
	listings := []*models.Listing{
		{ID: "a", Title: "a", Price: 2000, MatchScore: 70, Enriched: true},
		{ID: "b", Title: "b", Price: 2400, MatchScore: 90, Enriched: true},
		{ID: "c", Title: "c", Price: 0, MatchScore: 60},
		{ID: "d", Title: "d", Price: 2200, MatchScore: 85, Enriched: true},
		{ID: "e", Title: "e", Price: 2600, MatchScore: 65, Enriched: true},
		{ID: "f", Title: "f", Price: 1800, MatchScore: 95, Enriched: true},
	}
	snap := signals.Snapshot{Summary: "You lean toward quiet elevator buildings."}

	r := BuildFeedReport(listings, snap, 3, 2)

	if r.TotalListings != 6 || r.Enriched != 5 {
		t.Errorf("counts: total=%d enriched=%d; want 6 and 5", r.TotalListings, r.Enriched)
	}
	if r.Liked != 3 || r.Disliked != 2 {
		t.Errorf("swipes: %d/%d; want 3/2", r.Liked, r.Disliked)
	}
	if r.MinPrice != 1800 || r.MaxPrice != 2600 {
		t.Errorf("price bounds %v-%v; want 1800-2600 (unpriced listing excluded)", r.MinPrice, r.MaxPrice)
	}
	if r.AveragePrice != 2200 {
		t.Errorf("average price = %v; want 2200", r.AveragePrice)
	}
	if len(r.TopMatches) != 5 {
		t.Fatalf("top matches = %d; want capped at 5", len(r.TopMatches))
	}
	if r.TopMatches[0].ID != "f" || r.TopMatches[1].ID != "b" {
		t.Errorf("top matches head = %s, %s; want f, b", r.TopMatches[0].ID, r.TopMatches[1].ID)
	}
	if r.Summary == "" {
		t.Error("summary should carry the pattern sentence")
	}
}

func TestBuildFeedReportEmptyFeed(t *testing.T) {
	r := BuildFeedReport(nil, signals.Snapshot{}, 0, 0)
	if r.TotalListings != 0 || r.AveragePrice != 0 || len(r.TopMatches) != 0 {
		t.Errorf("empty feed report = %+v", r)
	}
}
