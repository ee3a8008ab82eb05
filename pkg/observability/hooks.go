// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers can register hooks at startup
// to receive events about revision transitions, layout precomputation and
// cache operations.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// The Prometheus implementation lives in the prom subpackage, so the engine
// itself does not import a metrics client.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    m := prom.New(prometheus.DefaultRegisterer)
//	    observability.SetTransitionHooks(m)
//	    observability.SetLayoutHooks(m)
//	    observability.SetCacheHooks(m)
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Transition().OnTransitionStart(from, to)
//	// ... animate ...
//	observability.Transition().OnTransitionComplete(from, to, duration)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Transition Hooks
// =============================================================================

// TransitionHooks receives events from the phase orchestrator and navigator.
// Revision indices are -1 when nothing was displayed before.
type TransitionHooks interface {
	OnTransitionStart(from, to int)
	OnPhaseStart(phase string, count int)
	OnPhaseComplete(phase string, duration time.Duration)
	OnTransitionComplete(from, to int, duration time.Duration)

	// OnTransitionRejected records a navigation command that was refused
	// (busy, out of range, conflicting auto-play).
	OnTransitionRejected(reason string)

	// OnStall records a phase that has waited longer than expected.
	OnStall(phase string, pending int, waited time.Duration)

	// OnMissingLayout records elements skipped for lack of a target layout.
	OnMissingLayout(phase string, count int)
}

// =============================================================================
// Layout Hooks
// =============================================================================

// LayoutHooks receives events from layout precomputation.
type LayoutHooks interface {
	OnPrecomputeStart(ctx context.Context, layout string, revisions int)
	OnRevisionLaidOut(ctx context.Context, layout string, nodes, edges int, duration time.Duration, cached bool)
	OnPrecomputeComplete(ctx context.Context, layout string, duration time.Duration, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopTransitionHooks is a no-op implementation of TransitionHooks.
type NoopTransitionHooks struct{}

func (NoopTransitionHooks) OnTransitionStart(int, int)                   {}
func (NoopTransitionHooks) OnPhaseStart(string, int)                     {}
func (NoopTransitionHooks) OnPhaseComplete(string, time.Duration)        {}
func (NoopTransitionHooks) OnTransitionComplete(int, int, time.Duration) {}
func (NoopTransitionHooks) OnTransitionRejected(string)                  {}
func (NoopTransitionHooks) OnStall(string, int, time.Duration)           {}
func (NoopTransitionHooks) OnMissingLayout(string, int)                  {}

// NoopLayoutHooks is a no-op implementation of LayoutHooks.
type NoopLayoutHooks struct{}

func (NoopLayoutHooks) OnPrecomputeStart(context.Context, string, int) {}
func (NoopLayoutHooks) OnRevisionLaidOut(context.Context, string, int, int, time.Duration, bool) {
}
func (NoopLayoutHooks) OnPrecomputeComplete(context.Context, string, time.Duration, error) {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	transitionHooks TransitionHooks = NoopTransitionHooks{}
	layoutHooks     LayoutHooks     = NoopLayoutHooks{}
	cacheHooks      CacheHooks      = NoopCacheHooks{}
	hooksMu         sync.RWMutex
)

// SetTransitionHooks registers custom transition hooks.
// This should be called once at application startup before any transition.
func SetTransitionHooks(h TransitionHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		transitionHooks = h
	}
}

// SetLayoutHooks registers custom layout hooks.
// This should be called once at application startup before any precomputation.
func SetLayoutHooks(h LayoutHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		layoutHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
// This should be called once at application startup before any cache operations.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// Transition returns the registered transition hooks.
func Transition() TransitionHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return transitionHooks
}

// Layout returns the registered layout hooks.
func Layout() LayoutHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return layoutHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	transitionHooks = NoopTransitionHooks{}
	layoutHooks = NoopLayoutHooks{}
	cacheHooks = NoopCacheHooks{}
}
