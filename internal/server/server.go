// Package server exposes a renderer over an HTTP control API.
//
// A single ticker goroutine advances the renderer; handlers read its state
// and issue navigation commands. Every access goes through one mutex because
// the renderer itself is not safe for concurrent use.
package server

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	everrors "github.com/matzehuels/evocity/pkg/errors"
	"github.com/matzehuels/evocity/pkg/pipeline"
)

// DefaultTickInterval advances the renderer at roughly 60 frames per second.
const DefaultTickInterval = 16 * time.Millisecond

// Config configures a [Server].
type Config struct {
	// Runner builds the renderer from Options, initially and on reload.
	Runner  *pipeline.Runner
	Options pipeline.Options

	TickInterval time.Duration

	// Watch reloads the series when its directory changes.
	Watch bool

	// Gatherer backs /metrics. Nil uses the default Prometheus registry.
	Gatherer prometheus.Gatherer

	Logger *log.Logger
}

// Server owns one renderer and the HTTP routes controlling it.
type Server struct {
	cfg    Config
	logger *log.Logger
	router chi.Router

	mu      sync.Mutex
	result  *pipeline.Result
	pending *pipeline.Result
}

// New runs the pipeline once and returns a server for its renderer.
func New(ctx context.Context, cfg Config) (*Server, error) {
	if cfg.Runner == nil {
		return nil, everrors.New(everrors.ErrCodeInvalidConfig, "server: runner is required")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	if cfg.Options.Logger == nil {
		cfg.Options.Logger = cfg.Logger
	}

	result, err := cfg.Runner.Execute(ctx, cfg.Options)
	if err != nil {
		return nil, err
	}
	s := &Server{cfg: cfg, logger: cfg.Logger, result: result}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.GetState)
		r.Get("/elements", s.GetElements)
		r.Get("/revisions", s.ListRevisions)
		r.Get("/revisions/{index}/diff", s.GetDiff)
		r.Post("/revisions/{index}", s.ShowRevision)
		r.Post("/next", s.ShowNext)
		r.Post("/previous", s.ShowPrevious)
		r.Post("/autoplay", s.SetAutoPlay)
		r.Post("/duration", s.SetDuration)
	})
	return r
}

// requestLogger logs each request through the server's logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start))
	})
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler { return s.router }

// Run advances the renderer every tick and, if configured, watches the
// series directory. It blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.Watch {
		w, err := s.watch(ctx)
		if err != nil {
			return err
		}
		if w != nil {
			defer w.Stop()
		}
	}

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.Tick(now.Sub(last))
			last = now
		}
	}
}

// Tick advances the renderer by dt and swaps in a reloaded series once the
// current one is idle.
func (s *Server) Tick(dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.result.Renderer.Tick(dt)
	if s.pending != nil && !s.result.Renderer.Navigator().IsTransitioning() {
		s.swap()
	}
}

// Reload rebuilds the renderer from the configured source. The new renderer
// replaces the current one at the next idle tick and shows the revision that
// was displayed, or the last one if the series shrank.
func (s *Server) Reload(ctx context.Context) error {
	result, err := s.cfg.Runner.Execute(ctx, s.cfg.Options)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.pending = result
	s.mu.Unlock()
	s.logger.Info("series reloaded", "revisions", result.Stats.Revisions)
	return nil
}

// swap must be called with s.mu held.
func (s *Server) swap() {
	prev := s.result.Renderer.Current()
	s.result, s.pending = s.pending, nil
	if prev < 0 {
		return
	}
	nav := s.result.Renderer.Navigator()
	nav.ShowSpecific(min(prev, nav.Count()-1))
}

// withRenderer runs fn with exclusive access to the current pipeline result.
func (s *Server) withRenderer(fn func(*pipeline.Result)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.result)
}
