// Package pipeline turns a stored revision series into a ready-to-drive
// [evolution.Renderer].
//
// The CLI commands and the HTTP server share this package so that every
// entry point loads, lays out and assembles a series the same way.
//
// # Architecture
//
// The pipeline consists of three stages:
//
//  1. Load: read the series from a snapshot directory or a MongoDB collection
//  2. Layout: fit the leaf scaler and precompute every revision's layout,
//     reusing layouts persisted in the cache
//  3. Assemble: build the orchestrator, navigator and tweener on top of the
//     precomputed layouts
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	opts := pipeline.Options{Source: "./history", Layout: "nested", Edges: true}
//	result, err := runner.Execute(ctx, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result.Renderer.Navigator().ShowNext()
//
// Options can also be read from a TOML file with [LoadOptionsFile].
package pipeline

import (
	"io"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	everrors "github.com/matzehuels/evocity/pkg/errors"
	"github.com/matzehuels/evocity/pkg/evolution"
	"github.com/matzehuels/evocity/pkg/graph"
	"github.com/matzehuels/evocity/pkg/layout"
	"github.com/matzehuels/evocity/pkg/scene"
)

// =============================================================================
// Default Values
// =============================================================================

const (
	// DefaultLayout is the node layout used when none is configured.
	DefaultLayout = layout.GridName

	// DefaultDuration is the length of one full transition.
	DefaultDuration = 2 * time.Second

	// DefaultAutoPlayInterval is the pause between auto-played transitions.
	DefaultAutoPlayInterval = 500 * time.Millisecond

	// DefaultHeightAttribute drives leaf height when no attribute is configured.
	DefaultHeightAttribute = "loc"

	// DefaultCacheTTL is how long persisted layouts are kept.
	DefaultCacheTTL = 7 * 24 * time.Hour
)

// Layout store backends.
const (
	CacheFile  = "file"
	CacheRedis = "redis"
	CacheNone  = "none"
)

// ValidCaches is the set of supported layout store backends.
var ValidCaches = map[string]bool{
	CacheFile:  true,
	CacheRedis: true,
	CacheNone:  true,
}

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for loading and animating a series.
// Field tags double as the TOML configuration keys and the JSON form served
// by the HTTP API.
type Options struct {
	// Source options
	Source          string `toml:"source" json:"source,omitempty"`
	MongoURI        string `toml:"mongo_uri" json:"-"`
	MongoDatabase   string `toml:"mongo_database" json:"mongo_database,omitempty"`
	MongoCollection string `toml:"mongo_collection" json:"mongo_collection,omitempty"`

	// Layout options
	Layout          string  `toml:"layout" json:"layout"`
	Edges           bool    `toml:"edges" json:"edges"`
	WidthAttribute  string  `toml:"width_attribute" json:"width_attribute,omitempty"`
	HeightAttribute string  `toml:"height_attribute" json:"height_attribute,omitempty"`
	DepthAttribute  string  `toml:"depth_attribute" json:"depth_attribute,omitempty"`
	MinSize         float64 `toml:"min_size" json:"min_size,omitempty"`
	MaxSize         float64 `toml:"max_size" json:"max_size,omitempty"`
	Spacing         float64 `toml:"spacing" json:"spacing,omitempty"`
	Concurrency     int     `toml:"concurrency" json:"concurrency,omitempty"`

	// Animation options
	Duration          time.Duration `toml:"duration" json:"duration"`
	AutoPlayInterval  time.Duration `toml:"autoplay_interval" json:"autoplay_interval"`
	StallFactor       float64       `toml:"stall_factor" json:"stall_factor,omitempty"`
	TrackedAttributes []string      `toml:"tracked_attributes" json:"tracked_attributes,omitempty"`

	// Layout store options
	Cache     string        `toml:"cache" json:"cache,omitempty"`
	CacheDir  string        `toml:"cache_dir" json:"-"`
	RedisAddr string        `toml:"redis_addr" json:"-"`
	CacheTTL  time.Duration `toml:"cache_ttl" json:"cache_ttl,omitempty"`

	// Runtime options (not serialized)
	Logger *log.Logger `toml:"-" json:"-"`
}

// Result contains the outputs of a pipeline run.
type Result struct {
	Series   *graph.Series          `json:"-"`
	Objects  *scene.Registry        `json:"-"`
	Layouts  *evolution.LayoutCache `json:"-"`
	Renderer *evolution.Renderer    `json:"-"`

	// Tracked lists the attributes whose changes mark a node as changed.
	Tracked []string `json:"tracked"`

	Stats Stats `json:"stats"`
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Revisions  int           `json:"revisions"`
	MaxNodes   int           `json:"max_nodes"`
	MaxEdges   int           `json:"max_edges"`
	LoadTime   time.Duration `json:"load_time"`
	LayoutTime time.Duration `json:"layout_time"`
}

// =============================================================================
// Validation Functions
// =============================================================================

// ValidateLayout checks that name is a known node layout.
func ValidateLayout(name string) error {
	if !slices.Contains(layout.Names(), name) {
		return everrors.New(everrors.ErrCodeInvalidConfig, "invalid layout: %q (must be one of: %s)", name, strings.Join(layout.Names(), ", "))
	}
	return nil
}

// ValidateCache checks that backend is a known layout store.
func ValidateCache(backend string) error {
	if !ValidCaches[backend] {
		return everrors.New(everrors.ErrCodeInvalidConfig, "invalid cache: %q (must be one of: file, redis, none)", backend)
	}
	return nil
}

// =============================================================================
// Options Methods
// =============================================================================

// LoadOptionsFile reads options from a TOML file. Keys missing from the file
// keep the values already in base.
func LoadOptionsFile(path string, base Options) (Options, error) {
	if err := everrors.ValidatePath(path); err != nil {
		return base, err
	}
	md, err := toml.DecodeFile(path, &base)
	if err != nil {
		return base, everrors.Wrap(everrors.ErrCodeInvalidConfig, err, "read config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return base, everrors.New(everrors.ErrCodeInvalidConfig, "unknown config key %q in %s", undecoded[0].String(), path)
	}
	return base, nil
}

// Location returns where the series is loaded from. A Mongo URI takes
// precedence over Source.
func (o *Options) Location() string {
	if o.MongoURI != "" {
		return o.MongoURI
	}
	return o.Source
}

// SetDefaults fills unset fields with their defaults. Duration and
// AutoPlayInterval are left alone: zero is a meaningful value for both.
func (o *Options) SetDefaults() {
	if o.Layout == "" {
		o.Layout = DefaultLayout
	}
	if o.HeightAttribute == "" {
		o.HeightAttribute = DefaultHeightAttribute
	}
	if o.MinSize == 0 {
		o.MinSize = layout.DefaultMinSize
	}
	if o.MaxSize == 0 {
		o.MaxSize = layout.DefaultMaxSize
	}
	if o.Spacing == 0 {
		o.Spacing = layout.DefaultSpacing
	}
	if o.Concurrency == 0 {
		o.Concurrency = runtime.NumCPU()
	}
	if o.StallFactor == 0 {
		o.StallFactor = evolution.DefaultStallFactor
	}
	if o.Cache == "" {
		o.Cache = CacheFile
	}
	if o.CacheTTL == 0 {
		o.CacheTTL = DefaultCacheTTL
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
}

// Validate checks the options after defaults have been applied.
func (o *Options) Validate() error {
	if o.Location() == "" {
		return everrors.New(everrors.ErrCodeInvalidConfig, "source is required")
	}
	if err := ValidateLayout(o.Layout); err != nil {
		return err
	}
	if err := ValidateCache(o.Cache); err != nil {
		return err
	}
	if o.Cache == CacheRedis && o.RedisAddr == "" {
		return everrors.New(everrors.ErrCodeInvalidConfig, "redis_addr is required for the redis cache")
	}
	if o.Duration < 0 || o.AutoPlayInterval < 0 || o.CacheTTL < 0 {
		return everrors.New(everrors.ErrCodeInvalidConfig, "durations must not be negative")
	}
	if o.MinSize <= 0 || o.MaxSize < o.MinSize {
		return everrors.New(everrors.ErrCodeInvalidConfig, "invalid size bounds [%g, %g]", o.MinSize, o.MaxSize)
	}
	if o.Spacing < 0 {
		return everrors.New(everrors.ErrCodeInvalidConfig, "spacing must not be negative")
	}
	if o.Concurrency < 0 {
		return everrors.New(everrors.ErrCodeInvalidConfig, "concurrency must not be negative")
	}
	if o.StallFactor < 1 {
		return everrors.New(everrors.ErrCodeInvalidConfig, "stall_factor must be at least 1, got %g", o.StallFactor)
	}
	return nil
}

// ValidateAndSetDefaults applies defaults and validates the result.
func (o *Options) ValidateAndSetDefaults() error {
	o.SetDefaults()
	return o.Validate()
}
