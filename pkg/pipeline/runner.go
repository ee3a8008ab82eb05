package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/evocity/pkg/cache"
	everrors "github.com/matzehuels/evocity/pkg/errors"
	"github.com/matzehuels/evocity/pkg/scene"
)

// Runner encapsulates pipeline execution with a layout store.
//
// The Runner is stateless except for the cache and logger. Every call to
// [Runner.Execute] builds a fresh renderer, so one Runner can serve several
// series or reload the same one.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (persistence disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// Execute runs the complete load → layout → assemble pipeline.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	result := &Result{}

	// Stage 1: Load
	loadStart := time.Now()
	series, err := r.Load(ctx, opts)
	if err != nil {
		return nil, err
	}
	result.Series = series
	result.Stats.LoadTime = time.Since(loadStart)
	result.Stats.Revisions = series.Len()
	for _, snap := range series.Snapshots() {
		result.Stats.MaxNodes = max(result.Stats.MaxNodes, snap.NodeCount())
		result.Stats.MaxEdges = max(result.Stats.MaxEdges, snap.EdgeCount())
	}

	r.Logger.Info("loaded series",
		"source", opts.Location(),
		"revisions", series.Len(),
		"duration", result.Stats.LoadTime)

	// Stage 2: Layout
	layoutStart := time.Now()
	result.Objects = scene.NewRegistry()
	result.Layouts, err = r.Precompute(ctx, series, result.Objects, opts)
	if err != nil {
		return nil, err
	}
	result.Stats.LayoutTime = time.Since(layoutStart)

	// Stage 3: Assemble
	result.Renderer, result.Tracked, err = Assemble(series, result.Layouts, result.Objects, opts)
	if err != nil {
		return nil, err
	}
	r.Logger.Debug("assembled renderer",
		"tracked", result.Tracked,
		"duration", opts.Duration,
		"autoplay_interval", opts.AutoPlayInterval)

	return result, nil
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}

// OpenCache opens the layout store selected by opts.Cache. The file store
// keeps layouts in a "layouts" directory under opts.CacheDir.
func OpenCache(ctx context.Context, opts Options) (cache.Cache, error) {
	switch opts.Cache {
	case CacheNone:
		return cache.NewNullCache(), nil
	case CacheRedis:
		c, err := cache.NewRedisCache(ctx, cache.RedisOptions{Addr: opts.RedisAddr})
		if err != nil {
			return nil, everrors.Wrap(everrors.ErrCodeNetwork, err, "open redis cache")
		}
		return c, nil
	case CacheFile, "":
		if opts.CacheDir == "" {
			return nil, everrors.New(everrors.ErrCodeInvalidConfig, "cache_dir is required for the file cache")
		}
		return cache.NewFileCache(filepath.Join(opts.CacheDir, "layouts"))
	default:
		return nil, ValidateCache(opts.Cache)
	}
}
