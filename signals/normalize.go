package signals

import (
	"fmt"

	"github.com/goccy/go-json"

	"homematch/models"
)

// rawHistory mirrors SwipeHistory with undecoded entries so both the
// current and the legacy on-disk formats can be inspected.
type rawHistory struct {
	Liked    []json.RawMessage `json:"liked"`
	Disliked []json.RawMessage `json:"disliked"`
}

// NormalizeSwipeHistory decodes a stored swipe history, transparently
// upgrading the legacy format in which each entry was a plain tag
// object with no price or commute context. Legacy entries get neutral
// defaults: zero price, empty price type, zero commute. The function is
// pure and idempotent: normalising already-current data is a no-op.
//
// The second return reports whether an upgrade happened, so the caller
// can persist the new format once.
func NormalizeSwipeHistory(raw []byte) (*models.SwipeHistory, bool, error) {
	if len(raw) == 0 {
		return &models.SwipeHistory{}, false, nil
	}

	var rh rawHistory
	if err := json.Unmarshal(raw, &rh); err != nil {
		return nil, false, fmt.Errorf("decode swipe history: %w", err)
	}

	history := &models.SwipeHistory{}
	migrated := false

	for _, partition := range []struct {
		src []json.RawMessage
		dst *[]models.SwipeEntry
	}{
		{rh.Liked, &history.Liked},
		{rh.Disliked, &history.Disliked},
	} {
		for _, rawEntry := range partition.src {
			entry, upgraded, err := normalizeEntry(rawEntry)
			if err != nil {
				return nil, false, err
			}
			migrated = migrated || upgraded
			*partition.dst = append(*partition.dst, entry)
		}
	}

	return history, migrated, nil
}

func normalizeEntry(raw json.RawMessage) (models.SwipeEntry, bool, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return models.SwipeEntry{}, false, fmt.Errorf("decode swipe entry: %w", err)
	}

	// Current format carries a nested "tags" object. Legacy entries
	// were the tag object itself.
	if _, ok := probe["tags"]; ok {
		var entry models.SwipeEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return models.SwipeEntry{}, false, fmt.Errorf("decode swipe entry: %w", err)
		}
		if entry.Tags == nil {
			entry.Tags = models.NeutralTags()
		}
		entry.Tags.Normalize()
		return entry, false, nil
	}

	var tags models.Tags
	if err := json.Unmarshal(raw, &tags); err != nil {
		return models.SwipeEntry{}, false, fmt.Errorf("decode legacy swipe entry: %w", err)
	}
	tags.Normalize()
	return models.SwipeEntry{Tags: &tags}, true, nil
}
