package observability

import (
	"context"
	"testing"
	"time"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	// Transition hooks
	tr := NoopTransitionHooks{}
	tr.OnTransitionStart(-1, 0)
	tr.OnPhaseStart("removing", 3)
	tr.OnPhaseComplete("removing", time.Second)
	tr.OnTransitionComplete(0, 1, time.Second)
	tr.OnTransitionRejected("busy")
	tr.OnStall("moving", 2, time.Minute)
	tr.OnMissingLayout("adding", 1)

	// Layout hooks
	l := NoopLayoutHooks{}
	l.OnPrecomputeStart(ctx, "grid", 10)
	l.OnRevisionLaidOut(ctx, "grid", 100, 20, time.Second, false)
	l.OnPrecomputeComplete(ctx, "grid", time.Second, nil)

	// Cache hooks
	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "layout")
	c.OnCacheMiss(ctx, "layout")
	c.OnCacheSet(ctx, "layout", 1024)
}

func TestGlobalHooksRegistry(t *testing.T) {
	// Reset to known state
	Reset()

	// Verify defaults are noop
	if _, ok := Transition().(NoopTransitionHooks); !ok {
		t.Error("Transition() should return NoopTransitionHooks by default")
	}
	if _, ok := Layout().(NoopLayoutHooks); !ok {
		t.Error("Layout() should return NoopLayoutHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}

	// Set custom hooks
	customTransition := &testTransitionHooks{}
	SetTransitionHooks(customTransition)
	if Transition() != customTransition {
		t.Error("SetTransitionHooks should set custom hooks")
	}

	customLayout := &testLayoutHooks{}
	SetLayoutHooks(customLayout)
	if Layout() != customLayout {
		t.Error("SetLayoutHooks should set custom hooks")
	}

	customCache := &testCacheHooks{}
	SetCacheHooks(customCache)
	if Cache() != customCache {
		t.Error("SetCacheHooks should set custom hooks")
	}

	// Reset and verify
	Reset()
	if _, ok := Transition().(NoopTransitionHooks); !ok {
		t.Error("Reset() should restore NoopTransitionHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()

	custom := &testTransitionHooks{}
	SetTransitionHooks(custom)

	// Setting nil should be ignored
	SetTransitionHooks(nil)

	if Transition() != custom {
		t.Error("SetTransitionHooks(nil) should be ignored")
	}

	Reset()
}

// Test implementations
type testTransitionHooks struct{ NoopTransitionHooks }
type testLayoutHooks struct{ NoopLayoutHooks }
type testCacheHooks struct{ NoopCacheHooks }
