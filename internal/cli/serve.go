package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/evocity/internal/server"
	"github.com/matzehuels/evocity/pkg/observability/prom"
	"github.com/matzehuels/evocity/pkg/pipeline"
)

const (
	defaultAddr     = ":8080"
	shutdownTimeout = 5 * time.Second
)

// serveCommand creates the serve command, which drives a series from an HTTP
// control API.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		flags optionFlags
		addr  string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve [series]",
		Short: "Serve a series over an HTTP control API",
		Long: `Serve a series over an HTTP control API.

Routes:
  GET  /health                      liveness and version
  GET  /metrics                     Prometheus metrics
  GET  /api/state                   current revision and animation state
  GET  /api/elements                scene elements (?visible=true)
  GET  /api/revisions               revisions with node and edge counts
  GET  /api/revisions/{i}/diff      classification against ?from (default i-1)
  POST /api/revisions/{i}           show revision i
  POST /api/next, /api/previous     step through the series
  POST /api/autoplay                {"enabled": true, "reverse": false}
  POST /api/duration                {"duration": "1.5s"}

With --watch, changes to a series directory are picked up without a restart.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.resolve(cmd, args, c.Logger)
			if err != nil {
				return err
			}
			return c.runServe(cmd.Context(), opts, addr, watch)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&addr, "addr", defaultAddr, "listen address")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload the series when its directory changes")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, opts pipeline.Options, addr string, watch bool) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom.New(reg).Register()

	runner := c.newRunner(ctx, opts)
	defer runner.Close()

	prog := newProgress(c.Logger)
	s, err := server.New(ctx, server.Config{
		Runner:   runner,
		Options:  opts,
		Watch:    watch,
		Gatherer: reg,
		Logger:   c.Logger,
	})
	if err != nil {
		return err
	}
	prog.done("series ready", "source", opts.Location())

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.Logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return s.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		c.Logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
