package evolution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/evocity/pkg/cache"
	everrors "github.com/matzehuels/evocity/pkg/errors"
	"github.com/matzehuels/evocity/pkg/graph"
	"github.com/matzehuels/evocity/pkg/layout"
	"github.com/matzehuels/evocity/pkg/observability"
	"github.com/matzehuels/evocity/pkg/scene"
)

// Layouts gives read access to precomputed revision layouts.
type Layouts interface {
	Node(rev int, id string) (layout.Node, bool)
	Edge(rev int, id string) (layout.Edge, bool)
	Nodes(rev int) map[string]layout.Node

	// EdgesDrawn reports whether edges have layouts at all.
	EdgesDrawn() bool
}

// LayoutCacheConfig configures a [LayoutCache].
type LayoutCacheConfig struct {
	// NodeLayout places the nodes of each revision. Required.
	NodeLayout layout.NodeLayout

	// EdgeLayout routes edges. Nil means edges are not drawn.
	EdgeLayout layout.EdgeLayout

	// Objects receives a hidden placeholder for every laid-out element. Required.
	Objects scene.ObjectManager

	// Scaler sizes leaves. Nil gives every leaf the same default size.
	Scaler *layout.Scaler

	// Store persists layouts between runs. Nil disables persistence.
	Store cache.Cache
	Keyer cache.Keyer
	TTL   time.Duration

	// KeyOpts identifies the layout settings in cache keys. Edges and Sizing
	// are filled in by the cache.
	KeyOpts cache.LayoutKeyOpts

	// Concurrency bounds parallel layout computation. Zero or less means one
	// worker per revision.
	Concurrency int

	Logger *log.Logger
}

// LayoutCache holds the layout of every revision of a series. It is filled
// once by [LayoutCache.Precompute] and read-only afterwards, so concurrent
// reads are safe.
type LayoutCache struct {
	cfg   LayoutCacheConfig
	nodes []map[string]layout.Node
	edges []map[string]layout.Edge
}

// cachedLayout is the persisted form of one revision's layout.
type cachedLayout struct {
	Nodes map[string]layout.Node `json:"nodes"`
	Edges map[string]layout.Edge `json:"edges,omitempty"`
}

// NewLayoutCache validates cfg and returns an empty cache.
func NewLayoutCache(cfg LayoutCacheConfig) (*LayoutCache, error) {
	if cfg.NodeLayout == nil {
		return nil, everrors.New(everrors.ErrCodeInvalidConfig, "layout cache: node layout is required")
	}
	if cfg.Objects == nil {
		return nil, everrors.New(everrors.ErrCodeInvalidConfig, "layout cache: object manager is required")
	}
	if cfg.Store == nil {
		cfg.Store = cache.NewNullCache()
	}
	if cfg.Keyer == nil {
		cfg.Keyer = cache.NewDefaultKeyer()
	}
	if cfg.Logger == nil {
		cfg.Logger = discardLogger()
	}
	if cfg.KeyOpts.Layout == "" {
		cfg.KeyOpts.Layout = cfg.NodeLayout.Name()
	}
	cfg.KeyOpts.Edges = cfg.EdgeLayout != nil
	return &LayoutCache{cfg: cfg}, nil
}

// Precompute lays out every revision of series and creates the element
// placeholders. Layouts are computed in parallel; placeholders are created
// sequentially afterwards in revision order. Any previous content is
// replaced.
func (c *LayoutCache) Precompute(ctx context.Context, series *graph.Series) (err error) {
	start := time.Now()
	name := c.cfg.NodeLayout.Name()
	observability.Layout().OnPrecomputeStart(ctx, name, series.Len())
	defer func() {
		observability.Layout().OnPrecomputeComplete(ctx, name, time.Since(start), err)
	}()

	scaler := c.cfg.Scaler
	if scaler == nil {
		scaler = &layout.Scaler{}
	}
	scaler.Fit(series)

	snaps := series.Snapshots()
	nodes := make([]map[string]layout.Node, len(snaps))
	edges := make([]map[string]layout.Edge, len(snaps))

	g, gctx := errgroup.WithContext(ctx)
	if c.cfg.Concurrency > 0 {
		g.SetLimit(c.cfg.Concurrency)
	}
	for i, snap := range snaps {
		g.Go(func() error {
			res, err := c.layoutRevision(gctx, snap, scaler)
			if err != nil {
				return everrors.Wrap(everrors.ErrCodeLayoutFailed, err, "revision %d (%s)", i, snap.Name())
			}
			nodes[i], edges[i] = res.Nodes, res.Edges
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	c.nodes, c.edges = nodes, edges
	c.createPlaceholders()

	c.cfg.Logger.Info("precomputed layouts",
		"layout", name,
		"revisions", len(snaps),
		"edges", c.EdgesDrawn(),
		"duration", time.Since(start).Round(time.Millisecond))
	return nil
}

func (c *LayoutCache) layoutRevision(ctx context.Context, snap *graph.Snapshot, scaler *layout.Scaler) (cachedLayout, error) {
	start := time.Now()
	sizes := scaler.Sizes(snap)

	key, err := c.key(snap, sizes)
	if err != nil {
		return cachedLayout{}, err
	}
	if res, ok := c.load(ctx, key); ok {
		observability.Layout().OnRevisionLaidOut(ctx, c.cfg.NodeLayout.Name(), len(res.Nodes), len(res.Edges), time.Since(start), true)
		return res, nil
	}

	input := snap.Leaves()
	if c.cfg.NodeLayout.Hierarchical() {
		input = snap.Nodes()
	}

	var res cachedLayout
	if ea, ok := c.cfg.NodeLayout.(layout.EdgeAware); ok {
		res.Nodes, err = ea.ApplyWithEdges(ctx, input, snap.Edges(), sizes)
	} else {
		res.Nodes, err = c.cfg.NodeLayout.Apply(ctx, input, sizes)
	}
	if err != nil {
		return cachedLayout{}, fmt.Errorf("node layout: %w", err)
	}
	if res.Nodes == nil {
		res.Nodes = map[string]layout.Node{}
	}

	if c.cfg.EdgeLayout != nil {
		res.Edges, err = c.cfg.EdgeLayout.Apply(ctx, snap.Edges(), res.Nodes)
		if err != nil {
			return cachedLayout{}, fmt.Errorf("edge layout: %w", err)
		}
	}
	if res.Edges == nil {
		res.Edges = map[string]layout.Edge{}
	}

	c.store(ctx, key, res)
	observability.Layout().OnRevisionLaidOut(ctx, c.cfg.NodeLayout.Name(), len(res.Nodes), len(res.Edges), time.Since(start), false)
	return res, nil
}

func (c *LayoutCache) key(snap *graph.Snapshot, sizes map[string]layout.Vector3) (string, error) {
	data, err := graph.MarshalSnapshot(snap)
	if err != nil {
		return "", fmt.Errorf("hash snapshot: %w", err)
	}
	sizeData, err := json.Marshal(sizes)
	if err != nil {
		return "", fmt.Errorf("hash sizes: %w", err)
	}
	opts := c.cfg.KeyOpts
	opts.Sizing = cache.Hash(sizeData)
	return c.cfg.Keyer.LayoutKey(cache.Hash(data), opts), nil
}

// load reads a persisted layout. Read or decode failures count as misses.
func (c *LayoutCache) load(ctx context.Context, key string) (cachedLayout, bool) {
	data, hit, err := c.cfg.Store.Get(ctx, key)
	if err != nil {
		c.cfg.Logger.Warn("layout cache read failed", "error", err)
		return cachedLayout{}, false
	}
	if !hit {
		observability.Cache().OnCacheMiss(ctx, "layout")
		return cachedLayout{}, false
	}
	var res cachedLayout
	if err := json.Unmarshal(data, &res); err != nil || res.Nodes == nil {
		c.cfg.Logger.Debug("discarding corrupt layout cache entry", "key", key)
		observability.Cache().OnCacheMiss(ctx, "layout")
		return cachedLayout{}, false
	}
	if res.Edges == nil {
		res.Edges = map[string]layout.Edge{}
	}
	observability.Cache().OnCacheHit(ctx, "layout")
	return res, true
}

func (c *LayoutCache) store(ctx context.Context, key string, res cachedLayout) {
	data, err := json.Marshal(res)
	if err != nil {
		c.cfg.Logger.Warn("layout cache encode failed", "error", err)
		return
	}
	if err := c.cfg.Store.Set(ctx, key, data, c.cfg.TTL); err != nil {
		if !errors.Is(err, context.Canceled) {
			c.cfg.Logger.Warn("layout cache write failed", "error", err)
		}
		return
	}
	observability.Cache().OnCacheSet(ctx, "layout", len(data))
}

func (c *LayoutCache) createPlaceholders() {
	created := 0
	for rev := range c.nodes {
		for id := range c.nodes[rev] {
			if existed, _ := c.cfg.Objects.GetOrCreate(scene.KindNode, id); !existed {
				created++
			}
		}
		for id := range c.edges[rev] {
			if existed, _ := c.cfg.Objects.GetOrCreate(scene.KindEdge, id); !existed {
				created++
			}
		}
	}
	c.cfg.Logger.Debug("created placeholders", "count", created)
}

// Len returns the number of revisions laid out.
func (c *LayoutCache) Len() int { return len(c.nodes) }

// EdgesDrawn reports whether an edge layout is configured.
func (c *LayoutCache) EdgesDrawn() bool { return c.cfg.EdgeLayout != nil }

// Node returns the layout of node id in revision rev.
func (c *LayoutCache) Node(rev int, id string) (layout.Node, bool) {
	if rev < 0 || rev >= len(c.nodes) {
		return layout.Node{}, false
	}
	n, ok := c.nodes[rev][id]
	return n, ok
}

// Edge returns the layout of edge id in revision rev.
func (c *LayoutCache) Edge(rev int, id string) (layout.Edge, bool) {
	if rev < 0 || rev >= len(c.edges) {
		return layout.Edge{}, false
	}
	e, ok := c.edges[rev][id]
	return e, ok
}

// Nodes returns all node layouts of revision rev. The map must not be
// modified.
func (c *LayoutCache) Nodes(rev int) map[string]layout.Node {
	if rev < 0 || rev >= len(c.nodes) {
		return nil
	}
	return c.nodes[rev]
}

// Edges returns all edge layouts of revision rev. The map must not be
// modified.
func (c *LayoutCache) Edges(rev int) map[string]layout.Edge {
	if rev < 0 || rev >= len(c.edges) {
		return nil
	}
	return c.edges[rev]
}

var _ Layouts = (*LayoutCache)(nil)
