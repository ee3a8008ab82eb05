// Package cache persists computed revision layouts between runs.
//
// Layout computation is the expensive part of loading a series; the results
// only depend on the snapshot content and the layout options. The [Cache]
// interface stores opaque byte blobs under keys built by a [Keyer], so the
// evolution engine can skip layout math for snapshots it has already seen.
//
// Implementations:
//   - [FileCache]: one file per entry below a directory (CLI default)
//   - [RedisCache]: shared cache for servers running several instances
//   - [NullCache]: caching disabled
package cache

import (
	"context"
	"time"
)

// Cache stores byte blobs with an optional time-to-live.
type Cache interface {
	// Get returns the data for key. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the cache.
	Close() error
}

// LayoutKeyOpts are the layout settings a cached revision layout depends on.
type LayoutKeyOpts struct {
	Layout  string  `json:"layout"`
	Spacing float64 `json:"spacing"`
	Edges   bool    `json:"edges"`
	// Sizing fingerprints the leaf sizes (scaler attributes and fitted ranges).
	Sizing string `json:"sizing,omitempty"`
}

// Keyer builds cache keys.
type Keyer interface {
	// LayoutKey returns the key of the layout of the snapshot with the given
	// content hash.
	LayoutKey(snapshotHash string, opts LayoutKeyOpts) string
}

// DefaultKeyer builds unscoped keys of the form "layout:<sha256>".
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// LayoutKey implements [Keyer].
func (DefaultKeyer) LayoutKey(snapshotHash string, opts LayoutKeyOpts) string {
	return hashKey("layout", snapshotHash, opts)
}
