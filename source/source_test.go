package source

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"homematch/models"
)

// fakeSource emits scripted listings per area and can be told to fail.
type fakeSource struct {
	byArea map[string][]*models.Listing
	failOn map[string]bool
	calls  []string
}

func (f *fakeSource) Search(_ context.Context, area string, q models.Query) ([]*models.Listing, error) {
	f.calls = append(f.calls, area)
	if f.failOn[area] {
		return nil, errors.New("portal timeout")
	}
	batch := f.byArea[area]
	if q.Limit > 0 && len(batch) > q.Limit {
		batch = batch[:q.Limit]
	}
	return batch, nil
}

func listing(id string) *models.Listing {
	return &models.Listing{ID: id, Title: id}
}

func TestMultiAreaInterleaves(t *testing.T) {
	fake := &fakeSource{byArea: map[string][]*models.Listing{
		"bushwick":   {listing("b1"), listing("b2"), listing("b3")},
		"greenpoint": {listing("g1"), listing("g2"), listing("g3")},
	}}
	m := NewMultiArea(fake, []string{"bushwick", "greenpoint"})

	got, err := m.Search(context.Background(), "", models.Query{Limit: 6})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	want := []string{"b1", "g1", "b2", "g2", "b3", "g3"}
	if len(got) != len(want) {
		t.Fatalf("got %d listings; want %d", len(got), len(want))
	}
	for i, l := range got {
		if l.ID != want[i] {
			t.Errorf("position %d: got %s; want %s", i, l.ID, want[i])
		}
	}
}

func TestMultiAreaDedupesAcrossAreas(t *testing.T) {
	shared := listing("dup")
	fake := &fakeSource{byArea: map[string][]*models.Listing{
		"a": {shared, listing("a2")},
		"b": {listing("dup"), listing("b2")},
	}}
	m := NewMultiArea(fake, []string{"a", "b"})

	got, err := m.Search(context.Background(), "", models.Query{Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	seen := map[string]int{}
	for _, l := range got {
		seen[l.ID]++
	}
	if seen["dup"] != 1 {
		t.Errorf("duplicate id appeared %d times; want 1", seen["dup"])
	}
	if len(got) != 3 {
		t.Errorf("got %d listings; want 3", len(got))
	}
}

func TestMultiAreaSkipsFailedArea(t *testing.T) {
	fake := &fakeSource{
		byArea: map[string][]*models.Listing{
			"healthy": {listing("h1"), listing("h2")},
		},
		failOn: map[string]bool{"broken": true},
	}
	m := NewMultiArea(fake, []string{"broken", "healthy"})

	got, err := m.Search(context.Background(), "", models.Query{Limit: 4})
	if err != nil {
		t.Fatalf("one healthy area should be enough: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d listings; want 2 from the healthy area", len(got))
	}
}

func TestMultiAreaFailsWhenAllAreasFail(t *testing.T) {
	fake := &fakeSource{failOn: map[string]bool{"a": true, "b": true}}
	m := NewMultiArea(fake, []string{"a", "b"})

	if _, err := m.Search(context.Background(), "", models.Query{Limit: 4}); err == nil {
		t.Error("Search should fail when every area fails")
	}
}

func TestMultiAreaSplitsLimit(t *testing.T) {
	fake := &fakeSource{byArea: map[string][]*models.Listing{}}
	for _, area := range []string{"a", "b", "c"} {
		for i := 0; i < 10; i++ {
			fake.byArea[area] = append(fake.byArea[area], listing(fmt.Sprintf("%s%d", area, i)))
		}
	}
	m := NewMultiArea(fake, []string{"a", "b", "c"})

	got, err := m.Search(context.Background(), "", models.Query{Limit: 9})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 9 {
		t.Errorf("got %d listings; want exactly the requested 9", len(got))
	}
}

func TestStaticDeterministic(t *testing.T) {
	s := NewStatic()
	ctx := context.Background()
	q := models.Query{PriceType: models.PriceRent, Limit: 8, Offset: 0}

	first, err := s.Search(ctx, "bushwick", q)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	second, _ := s.Search(ctx, "bushwick", q)

	if len(first) != 8 {
		t.Fatalf("got %d listings; want 8", len(first))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Price != second[i].Price {
			t.Errorf("position %d differs between identical queries", i)
		}
	}
}

func TestStaticOffsetsDoNotOverlap(t *testing.T) {
	s := NewStatic()
	ctx := context.Background()

	page1, _ := s.Search(ctx, "astoria", models.Query{PriceType: models.PriceRent, Limit: 5, Offset: 0})
	page2, _ := s.Search(ctx, "astoria", models.Query{PriceType: models.PriceRent, Limit: 5, Offset: 5})

	ids := map[string]bool{}
	for _, l := range page1 {
		ids[l.ID] = true
	}
	for _, l := range page2 {
		if ids[l.ID] {
			t.Errorf("offset page repeated id %s", l.ID)
		}
	}
}

func TestStaticListingsAreScoreReady(t *testing.T) {
	s := NewStatic()
	got, _ := s.Search(context.Background(), "bushwick", models.Query{PriceType: models.PriceRent, Limit: 10})

	for _, l := range got {
		if l.Tags == nil {
			t.Fatalf("listing %s has no tags", l.ID)
		}
		if l.Price <= 0 {
			t.Errorf("listing %s has price %v", l.ID, l.Price)
		}
		if l.PriceType != models.PriceRent {
			t.Errorf("listing %s has price type %q", l.ID, l.PriceType)
		}
	}
}
