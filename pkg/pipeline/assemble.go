package pipeline

import (
	"github.com/matzehuels/evocity/pkg/diff"
	"github.com/matzehuels/evocity/pkg/evolution"
	"github.com/matzehuels/evocity/pkg/graph"
	"github.com/matzehuels/evocity/pkg/scene"
)

// Assemble builds the renderer for a precomputed series. It also returns
// the attributes the element diff compares: opts.TrackedAttributes, or
// every numeric node attribute found in the series.
func Assemble(series *graph.Series, layouts *evolution.LayoutCache, objects *scene.Registry, opts Options) (*evolution.Renderer, []string, error) {
	tracked := TrackedAttributes(series, opts)
	r, err := evolution.NewRenderer(evolution.RendererConfig{
		Series:           series,
		Layouts:          layouts,
		Objects:          objects,
		Diff:             diff.NewNumericAttributeDiff(tracked...),
		Duration:         opts.Duration,
		AutoPlayInterval: opts.AutoPlayInterval,
		StallFactor:      opts.StallFactor,
		Logger:           opts.Logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return r, tracked, nil
}

// TrackedAttributes returns the attributes whose changes mark a node as
// changed.
func TrackedAttributes(series *graph.Series, opts Options) []string {
	if len(opts.TrackedAttributes) > 0 {
		return opts.TrackedAttributes
	}
	return series.NumericNodeAttributes()
}
