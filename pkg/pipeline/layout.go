package pipeline

import (
	"context"

	"github.com/matzehuels/evocity/pkg/cache"
	everrors "github.com/matzehuels/evocity/pkg/errors"
	"github.com/matzehuels/evocity/pkg/evolution"
	"github.com/matzehuels/evocity/pkg/graph"
	"github.com/matzehuels/evocity/pkg/layout"
	"github.com/matzehuels/evocity/pkg/scene"
)

// Precompute lays out every revision of series into objects, reusing
// layouts the runner's cache already holds.
func (r *Runner) Precompute(ctx context.Context, series *graph.Series, objects scene.ObjectManager, opts Options) (*evolution.LayoutCache, error) {
	r.applyLogger(&opts)
	opts.SetDefaults()

	nodes, err := NodeLayout(opts)
	if err != nil {
		return nil, err
	}
	lc, err := evolution.NewLayoutCache(evolution.LayoutCacheConfig{
		NodeLayout:  nodes,
		EdgeLayout:  EdgeLayout(opts),
		Objects:     objects,
		Scaler:      NewScaler(opts),
		Store:       r.Cache,
		Keyer:       r.Keyer,
		TTL:         opts.CacheTTL,
		KeyOpts:     cache.LayoutKeyOpts{Layout: opts.Layout, Spacing: opts.Spacing},
		Concurrency: opts.Concurrency,
		Logger:      opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	if err := lc.Precompute(ctx, series); err != nil {
		return nil, err
	}
	return lc, nil
}

// NodeLayout returns the node layout named by opts.Layout.
func NodeLayout(opts Options) (layout.NodeLayout, error) {
	l, err := layout.New(opts.Layout, opts.Spacing)
	if err != nil {
		return nil, everrors.Wrap(everrors.ErrCodeInvalidConfig, err, "layout")
	}
	return l, nil
}

// EdgeLayout returns the edge router, or nil when edges are not drawn.
func EdgeLayout(opts Options) layout.EdgeLayout {
	if !opts.Edges {
		return nil
	}
	return layout.NewArcs()
}

// NewScaler returns the leaf scaler configured by opts.
func NewScaler(opts Options) *layout.Scaler {
	return &layout.Scaler{
		WidthAttr:  opts.WidthAttribute,
		HeightAttr: opts.HeightAttribute,
		DepthAttr:  opts.DepthAttribute,
		MinSize:    opts.MinSize,
		MaxSize:    opts.MaxSize,
	}
}
