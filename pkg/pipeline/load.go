package pipeline

import (
	"context"

	"github.com/matzehuels/evocity/pkg/graph"
	"github.com/matzehuels/evocity/pkg/source"
)

// Load reads the series named by opts.Location.
func (r *Runner) Load(ctx context.Context, opts Options) (*graph.Series, error) {
	src, err := OpenSource(opts)
	if err != nil {
		return nil, err
	}
	r.Logger.Debug("loading series", "source", src.Name())
	return src.Load(ctx)
}

// OpenSource returns the series source configured by opts.
func OpenSource(opts Options) (source.Source, error) {
	return source.Open(opts.Location(), source.Options{
		MongoDatabase:   opts.MongoDatabase,
		MongoCollection: opts.MongoCollection,
	})
}
