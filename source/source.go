// Package source provides listing candidates to the pipeline. The wire
// format of any particular portal stays behind the Source interface.
package source

import (
	"context"

	"homematch/models"
	"homematch/utils"
)

// Source fetches one page of raw listing candidates for a sub-area.
// Implementations return listings with static attributes only; scoring
// and enrichment happen in the pipeline.
type Source interface {
	Search(ctx context.Context, area string, q models.Query) ([]*models.Listing, error)
}

// MultiArea fans a query out across a scope's sub-areas, interleaves
// the per-area results round-robin and drops duplicate ids, so no
// single area dominates the head of the feed.
type MultiArea struct {
	inner Source
	areas []string
}

// NewMultiArea wraps inner for the given sub-areas.
func NewMultiArea(inner Source, areas []string) *MultiArea {
	return &MultiArea{inner: inner, areas: areas}
}

// Search queries every sub-area and interleaves the results. A failing
// sub-area is skipped; Search fails only when every area fails.
func (m *MultiArea) Search(ctx context.Context, _ string, q models.Query) ([]*models.Listing, error) {
	if len(m.areas) == 0 {
		return nil, nil
	}

	perArea := q
	perArea.Limit = q.Limit / len(m.areas)
	if perArea.Limit < 1 {
		perArea.Limit = 1
	}

	var batches [][]*models.Listing
	var lastErr error
	for _, area := range m.areas {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := m.inner.Search(ctx, area, perArea)
		if err != nil {
			lastErr = err
			continue
		}
		batches = append(batches, batch)
	}
	if len(batches) == 0 {
		return nil, lastErr
	}

	return interleave(batches, q.Limit), nil
}

func interleave(batches [][]*models.Listing, limit int) []*models.Listing {
	seen := utils.NewIDSet()
	var out []*models.Listing
	for round := 0; ; round++ {
		advanced := false
		for _, batch := range batches {
			if round >= len(batch) {
				continue
			}
			advanced = true
			l := batch[round]
			if seen.Add(l.ID) {
				out = append(out, l)
				if limit > 0 && len(out) >= limit {
					return out
				}
			}
		}
		if !advanced {
			return out
		}
	}
}
