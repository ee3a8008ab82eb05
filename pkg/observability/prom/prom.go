// Package prom implements the observability hooks with Prometheus collectors.
//
// A single [Metrics] value implements TransitionHooks, LayoutHooks and
// CacheHooks, so it can be registered for all three:
//
//	m := prom.New(prometheus.DefaultRegisterer)
//	observability.SetTransitionHooks(m)
//	observability.SetLayoutHooks(m)
//	observability.SetCacheHooks(m)
package prom

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/matzehuels/evocity/pkg/observability"
)

const namespace = "evocity"

// Metrics holds the evocity collectors.
type Metrics struct {
	transitions     prometheus.Counter
	transitionTime  prometheus.Histogram
	phaseTime       *prometheus.HistogramVec
	phaseElements   *prometheus.HistogramVec
	rejected        *prometheus.CounterVec
	stalls          *prometheus.CounterVec
	missingLayout   *prometheus.CounterVec
	currentRevision prometheus.Gauge

	revisionsLaidOut *prometheus.CounterVec
	revisionTime     *prometheus.HistogramVec
	precomputeTime   *prometheus.HistogramVec
	precomputeErrors *prometheus.CounterVec

	cacheOps   *prometheus.CounterVec
	cacheBytes *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		transitions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Completed revision transitions",
		}),
		transitionTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transition_duration_seconds",
			Help:      "Wall time of a revision transition",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		phaseTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Wall time of one transition phase",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"phase"}),
		phaseElements: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_elements",
			Help:      "Elements animated per phase",
			Buckets:   []float64{0, 1, 10, 100, 1000, 10000},
		}, []string{"phase"}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "navigation_rejected_total",
			Help:      "Navigation commands rejected by reason",
		}, []string{"reason"}),
		stalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_stalls_total",
			Help:      "Phases that waited longer than expected",
		}, []string{"phase"}),
		missingLayout: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missing_layout_elements_total",
			Help:      "Elements skipped for lack of a target layout",
		}, []string{"phase"}),
		currentRevision: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_revision",
			Help:      "Index of the displayed revision (-1 if none)",
		}),
		revisionsLaidOut: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revisions_laid_out_total",
			Help:      "Revision layouts computed or loaded from cache",
		}, []string{"layout", "cached"}),
		revisionTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "revision_layout_duration_seconds",
			Help:      "Time to lay out one revision",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"layout"}),
		precomputeTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "precompute_duration_seconds",
			Help:      "Time to lay out a whole series",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"layout"}),
		precomputeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "precompute_errors_total",
			Help:      "Failed series layout precomputations",
		}, []string{"layout"}),
		cacheOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Cache operations by key type and result",
		}, []string{"key_type", "result"}),
		cacheBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_written_bytes_total",
			Help:      "Bytes written to the cache",
		}, []string{"key_type"}),
	}
}

// Register installs m as the global transition, layout and cache hooks.
func (m *Metrics) Register() {
	observability.SetTransitionHooks(m)
	observability.SetLayoutHooks(m)
	observability.SetCacheHooks(m)
}

// =============================================================================
// TransitionHooks
// =============================================================================

func (m *Metrics) OnTransitionStart(from, to int) {}

func (m *Metrics) OnPhaseStart(phase string, count int) {
	m.phaseElements.WithLabelValues(phase).Observe(float64(count))
}

func (m *Metrics) OnPhaseComplete(phase string, d time.Duration) {
	m.phaseTime.WithLabelValues(phase).Observe(d.Seconds())
}

func (m *Metrics) OnTransitionComplete(from, to int, d time.Duration) {
	m.transitions.Inc()
	m.transitionTime.Observe(d.Seconds())
	m.currentRevision.Set(float64(to))
}

func (m *Metrics) OnTransitionRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) OnStall(phase string, pending int, waited time.Duration) {
	m.stalls.WithLabelValues(phase).Inc()
}

func (m *Metrics) OnMissingLayout(phase string, count int) {
	m.missingLayout.WithLabelValues(phase).Add(float64(count))
}

// =============================================================================
// LayoutHooks
// =============================================================================

func (m *Metrics) OnPrecomputeStart(ctx context.Context, layout string, revisions int) {}

func (m *Metrics) OnRevisionLaidOut(ctx context.Context, layout string, nodes, edges int, d time.Duration, cached bool) {
	label := "false"
	if cached {
		label = "true"
	}
	m.revisionsLaidOut.WithLabelValues(layout, label).Inc()
	if !cached {
		m.revisionTime.WithLabelValues(layout).Observe(d.Seconds())
	}
}

func (m *Metrics) OnPrecomputeComplete(ctx context.Context, layout string, d time.Duration, err error) {
	if err != nil {
		m.precomputeErrors.WithLabelValues(layout).Inc()
		return
	}
	m.precomputeTime.WithLabelValues(layout).Observe(d.Seconds())
}

// =============================================================================
// CacheHooks
// =============================================================================

func (m *Metrics) OnCacheHit(ctx context.Context, keyType string) {
	m.cacheOps.WithLabelValues(keyType, "hit").Inc()
}

func (m *Metrics) OnCacheMiss(ctx context.Context, keyType string) {
	m.cacheOps.WithLabelValues(keyType, "miss").Inc()
}

func (m *Metrics) OnCacheSet(ctx context.Context, keyType string, size int) {
	m.cacheOps.WithLabelValues(keyType, "set").Inc()
	m.cacheBytes.WithLabelValues(keyType).Add(float64(size))
}

var (
	_ observability.TransitionHooks = (*Metrics)(nil)
	_ observability.LayoutHooks     = (*Metrics)(nil)
	_ observability.CacheHooks      = (*Metrics)(nil)
)
