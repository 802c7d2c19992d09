package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"homematch/config"
)

// ErrNotFound is returned by Get when a key has no value.
var ErrNotFound = errors.New("storage: key not found")

// Store is the key-value persistence boundary. Both durable user state
// (swipe history, quiz answers, saved listings) and derived caches
// (tags, geocode, external URLs, session snapshots) live behind it,
// namespaced by key prefix. Values are idempotent derivations of
// immutable inputs, so concurrent writers simply overwrite: last write
// wins.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Scan returns every key-value pair under a namespace prefix.
	Scan(ctx context.Context, prefix string) (map[string][]byte, error)
	Close() error
}

// Key namespaces. Everything a component persists goes under exactly
// one of these prefixes.
const (
	KeySwipeHistory = "swipes:history"
	KeyQuizAnswers  = "quiz:answers"

	prefixTags    = "tags:"
	prefixGeo     = "geo:"
	prefixURL     = "url:"
	prefixSaved   = "saved:"
	prefixSession = "session:"
)

// TagsKey returns the tag-cache key for a listing id.
func TagsKey(listingID string) string { return prefixTags + listingID }

// GeoKey returns the geocode-cache key for an address, normalised so
// trivial formatting differences share one entry.
func GeoKey(address string) string {
	return prefixGeo + strings.ToLower(strings.Join(strings.Fields(address), " "))
}

// URLKey returns the external-listing-URL cache key for a listing id.
func URLKey(listingID string) string { return prefixURL + listingID }

// SavedKey returns the saved-listing key for a listing id.
func SavedKey(listingID string) string { return prefixSaved + listingID }

// SavedPrefix is the namespace scanned to list saved listings.
const SavedPrefix = prefixSaved

// SessionKey returns the session-snapshot key for a filter tuple key.
func SessionKey(filterKey string) string { return prefixSession + filterKey }

// GetJSON reads and unmarshals a stored value. An unparseable stored
// value is treated as a cache miss and reported as ErrNotFound, never
// as a hard failure.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return ErrNotFound
	}
	return nil
}

// SetJSON marshals and stores a value.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}

// Open creates the Store selected by cfg.StoreBackend.
func Open(cfg *config.Config) (Store, error) {
	switch cfg.StoreBackend {
	case "memory":
		return NewMemoryStore(), nil
	case "badger":
		return NewBadgerStore(cfg.BadgerPath)
	case "postgres":
		return NewPostgresStore(cfg.DSN())
	case "redis":
		return NewRedisStore(cfg.RedisAddr)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
