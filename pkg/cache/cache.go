// Package cache stores rendered diagram artifacts and computed layouts.
//
// Entries are opaque byte slices keyed by strings from a [Keyer]. Keys are
// content addressed: the same snapshot, layout configuration and render
// options always yield the same key, so a hit can be served without
// recomputing anything.
//
// Backends:
//
//   - [FileCache]: one file per entry under a directory (CLI)
//   - [RedisCache]: shared cache for several serve instances
//   - [NullCache]: caching disabled
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidKey is returned for empty keys.
var ErrInvalidKey = errors.New("cache key must not be empty")

// Cache is a byte store with optional expiry.
//
// Get reports a miss as (nil, false, nil); errors are reserved for backend
// failures. A ttl of zero means no expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Key types, used as the key prefix and as the label reported to the cache
// hooks.
const (
	KeyTypeLayout   = "layout"
	KeyTypeArtifact = "artifact"
)

// Default entry lifetimes.
const (
	DefaultLayoutTTL   = 24 * time.Hour
	DefaultArtifactTTL = 7 * 24 * time.Hour
)

// LayoutKeyOpts holds everything besides the snapshot that changes a
// computed layout.
type LayoutKeyOpts struct {
	ConfigHash string `json:"config"`
	AutoPlace  bool   `json:"auto_place,omitempty"`
}

// ArtifactKeyOpts holds everything besides the layout that changes a
// rendered artifact.
type ArtifactKeyOpts struct {
	Format   string  `json:"format"`
	Renderer string  `json:"renderer,omitempty"`
	Style    string  `json:"style,omitempty"`
	Scale    float64 `json:"scale,omitempty"`
	Detailed bool    `json:"detailed,omitempty"`
}

// Keyer builds cache keys.
type Keyer interface {
	LayoutKey(snapshotHash string, opts LayoutKeyOpts) string
	ArtifactKey(layoutHash string, opts ArtifactKeyOpts) string
}

// DefaultKeyer produces "<type>:<sha256>" keys.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// LayoutKey generates a key for a computed layout.
func (DefaultKeyer) LayoutKey(snapshotHash string, opts LayoutKeyOpts) string {
	return hashKey(KeyTypeLayout, snapshotHash, opts)
}

// ArtifactKey generates a key for a rendered artifact.
func (DefaultKeyer) ArtifactKey(layoutHash string, opts ArtifactKeyOpts) string {
	return hashKey(KeyTypeArtifact, layoutHash, opts)
}

var _ Keyer = DefaultKeyer{}
