// Package cli implements the evocity command-line interface.
//
// # Commands
//
//   - play: step through a series interactively in the terminal
//   - serve: drive a series from an HTTP control API
//   - diff: print how two revisions differ
//   - layout: precompute and persist the layouts of a series
//   - cache: manage the layout store
//
// All commands support --verbose (-v) for debug-level logging.
package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/matzehuels/evocity/pkg/buildinfo"
	"github.com/matzehuels/evocity/pkg/cache"
	everrors "github.com/matzehuels/evocity/pkg/errors"
	"github.com/matzehuels/evocity/pkg/layout"
	"github.com/matzehuels/evocity/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "evocity"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "evocity animates how a software city evolves between revisions",
		Long: `evocity loads a series of graph snapshots, one per revision, and animates
the change from one revision to the next in three phases: removed elements
fade out, surviving elements move to their new places, added elements rise
into view.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())

	root.AddCommand(c.playCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.diffCommand())
	root.AddCommand(c.layoutCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner creates a pipeline runner on the layout store selected by opts.
// An unavailable store is logged and replaced by no store at all.
func (c *CLI) newRunner(ctx context.Context, opts pipeline.Options) *pipeline.Runner {
	store, err := pipeline.OpenCache(ctx, opts)
	if err != nil {
		c.Logger.Warn("layout store unavailable, continuing without it", "cache", opts.Cache, "error", err)
		store = cache.NewNullCache()
	}
	var keyer cache.Keyer
	if opts.Cache == pipeline.CacheRedis {
		keyer = cache.NewScopedKeyer(nil, appName+":")
	}
	return pipeline.NewRunner(store, keyer, c.Logger)
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/evocity/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// =============================================================================
// Options Helpers
// =============================================================================

// optionFlags binds the pipeline options shared by play, serve and layout.
type optionFlags struct {
	opts    pipeline.Options
	config  string
	tracked string
	noCache bool
}

func (f *optionFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.config, "config", "c", "", "TOML options file (flags override its values)")

	fl.StringVarP(&f.opts.Layout, "layout", "l", pipeline.DefaultLayout, "node layout: grid, nested, graphviz")
	fl.BoolVar(&f.opts.Edges, "edges", false, "draw edges")
	fl.Float64Var(&f.opts.Spacing, "spacing", layout.DefaultSpacing, "gap between boxes")
	fl.StringVar(&f.opts.WidthAttribute, "width-attr", "", "attribute driving leaf width")
	fl.StringVar(&f.opts.HeightAttribute, "height-attr", pipeline.DefaultHeightAttribute, "attribute driving leaf height")
	fl.StringVar(&f.opts.DepthAttribute, "depth-attr", "", "attribute driving leaf depth")
	fl.IntVar(&f.opts.Concurrency, "concurrency", 0, "parallel layout workers (default: one per CPU)")

	fl.DurationVarP(&f.opts.Duration, "duration", "d", pipeline.DefaultDuration, "transition duration (0 disables animation)")
	fl.DurationVar(&f.opts.AutoPlayInterval, "interval", pipeline.DefaultAutoPlayInterval, "pause between auto-played revisions")
	fl.StringVar(&f.tracked, "track", "", "comma-separated attributes whose changes mark a node as changed (default: all numeric)")

	fl.StringVar(&f.opts.MongoDatabase, "mongo-db", "", "MongoDB database for mongodb:// sources")
	fl.StringVar(&f.opts.MongoCollection, "mongo-collection", "", "MongoDB collection for mongodb:// sources")

	fl.StringVar(&f.opts.Cache, "cache", pipeline.CacheFile, "layout store: file, redis, none")
	fl.StringVar(&f.opts.RedisAddr, "redis-addr", "", "Redis address for --cache redis")
	fl.BoolVar(&f.noCache, "no-cache", false, "disable the layout store")
}

// resolve merges the config file, the command line and the series argument
// into validated options. Flags given explicitly win over file values.
func (f *optionFlags) resolve(cmd *cobra.Command, args []string, logger *log.Logger) (pipeline.Options, error) {
	if f.config != "" {
		changed := make(map[string]string)
		cmd.Flags().Visit(func(fl *pflag.Flag) { changed[fl.Name] = fl.Value.String() })

		loaded, err := pipeline.LoadOptionsFile(f.config, f.opts)
		if err != nil {
			return pipeline.Options{}, err
		}
		f.opts = loaded
		for name, value := range changed {
			if err := cmd.Flags().Set(name, value); err != nil {
				return pipeline.Options{}, err
			}
		}
	}

	opts := f.opts
	if len(args) > 0 {
		opts.Source, opts.MongoURI = args[0], ""
	}
	if f.tracked != "" {
		opts.TrackedAttributes = splitList(f.tracked)
	}
	if f.noCache {
		opts.Cache = pipeline.CacheNone
	}
	if opts.CacheDir == "" {
		if dir, err := cacheDir(); err == nil {
			opts.CacheDir = dir
		} else if opts.Cache == pipeline.CacheFile {
			opts.Cache = pipeline.CacheNone
		}
	}
	opts.Logger = logger

	if opts.Location() == "" {
		return opts, everrors.New(everrors.ErrCodeInvalidInput, "no series given: pass a directory or mongodb:// URI, or set source in --config")
	}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return opts, err
	}
	return opts, nil
}

// splitList parses a comma-separated list, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
