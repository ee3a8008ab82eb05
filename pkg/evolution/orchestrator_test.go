package evolution

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/matzehuels/evocity/pkg/diff"
	everrors "github.com/matzehuels/evocity/pkg/errors"
	"github.com/matzehuels/evocity/pkg/graph"
	"github.com/matzehuels/evocity/pkg/layout"
	"github.com/matzehuels/evocity/pkg/observability"
	"github.com/matzehuels/evocity/pkg/scene"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Idle, "idle"},
		{Phase1Removing, "removing"},
		{Phase2Moving, "moving"},
		{Phase3Adding, "adding"},
		{State(9), "State(9)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}

func TestNewOrchestratorValidation(t *testing.T) {
	reg, lc := precompute(t, threeRevisions(t), &layout.Grid{})
	anim := &heldAnimator{}

	tests := []struct {
		name string
		cfg  OrchestratorConfig
	}{
		{"no layouts", OrchestratorConfig{Objects: reg, Animator: anim}},
		{"no objects", OrchestratorConfig{Layouts: lc, Animator: anim}},
		{"no animator", OrchestratorConfig{Layouts: lc, Objects: reg}},
		{"negative duration", OrchestratorConfig{Layouts: lc, Objects: reg, Animator: anim, Duration: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOrchestrator(tt.cfg)
			if !everrors.Is(err, everrors.ErrCodeInvalidConfig) {
				t.Errorf("NewOrchestrator() error = %v, want INVALID_CONFIG", err)
			}
		})
	}
}

func TestDisplayAsNewSkipsEmptyPhases(t *testing.T) {
	f := newHeldFixture(t, threeRevisions(t), &layout.Grid{})

	if !f.nav.ShowSpecific(0) {
		t.Fatal("ShowSpecific(0) rejected")
	}
	// Phases 1 and 2 have nothing to do and must not wait for a tick.
	if got := f.orch.State(); got != Phase3Adding {
		t.Fatalf("State() = %v, want %v", got, Phase3Adding)
	}
	if f.anim.count("fade") != 0 || f.anim.count("morph") != 0 {
		t.Errorf("fade/morph calls = %d/%d, want 0/0", f.anim.count("fade"), f.anim.count("morph"))
	}
	if got := f.anim.count("move"); got != 2 {
		t.Errorf("move calls = %d, want 2", got)
	}
	// Added edges appear at once.
	if e := f.element(t, scene.KindEdge, "ab"); !e.Visible || len(e.Points) != 3 {
		t.Errorf("edge ab = %+v, want visible with 3 points", e)
	}
	// Added nodes start one height below their target.
	target, _ := f.lc.Node(0, "a")
	if e := f.element(t, scene.KindNode, "a"); !near(e.Position.Y, target.Center.Y-target.Scale.Y) {
		t.Errorf("a starts at y = %v, want %v", e.Position.Y, target.Center.Y-target.Scale.Y)
	}

	f.anim.drain()
	if f.orch.IsTransitioning() || f.orch.Current() != 0 {
		t.Errorf("after drain: transitioning = %v, current = %d", f.orch.IsTransitioning(), f.orch.Current())
	}
}

func TestIdleInvariant(t *testing.T) {
	f := newHeldFixture(t, threeRevisions(t), &layout.Grid{})
	f.nav.ShowSpecific(0)
	calls := len(f.anim.calls)

	snap, _ := f.series.At(1)
	err := f.orch.BeginTransition(nil, Revision{Index: 1, Snapshot: snap}, diff.Compute(nil, snap, nil))
	if !errors.Is(err, ErrAlreadyAnimating) {
		t.Fatalf("BeginTransition() error = %v, want ErrAlreadyAnimating", err)
	}
	var aae *AlreadyAnimatingError
	if !errors.As(err, &aae) || aae.Requested != 1 || aae.State != Phase3Adding {
		t.Errorf("error = %#v", err)
	}
	if !everrors.Is(err, everrors.ErrCodeAlreadyAnimating) {
		t.Error("error should carry ALREADY_ANIMATING")
	}
	if got := len(f.anim.calls); got != calls {
		t.Errorf("rejected transition started %d animations", got-calls)
	}
	if got := f.orch.Current(); got != -1 {
		t.Errorf("Current() = %d, want -1", got)
	}
	if got := f.orch.State(); got != Phase3Adding {
		t.Errorf("State() = %v, want %v", got, Phase3Adding)
	}
}

func TestPhaseOrder(t *testing.T) {
	f := newHeldFixture(t, threeRevisions(t), &layout.Grid{})
	f.nav.ShowSpecific(0)
	f.anim.drain()

	if !f.nav.ShowNext() {
		t.Fatal("ShowNext() rejected")
	}
	// Phase 1: b and edge ab fade out.
	if got := f.orch.State(); got != Phase1Removing {
		t.Fatalf("State() = %v, want %v", got, Phase1Removing)
	}
	if got := f.anim.count("fade"); got != 2 {
		t.Errorf("fade calls = %d, want 2", got)
	}
	oldB, oldAB := f.handle(t, scene.KindNode, "b"), f.handle(t, scene.KindEdge, "ab")
	f.anim.step()
	// Removed elements are destroyed and replaced by hidden placeholders.
	for _, tc := range []struct {
		kind scene.Kind
		id   string
		old  scene.Handle
	}{{scene.KindNode, "b", oldB}, {scene.KindEdge, "ab", oldAB}} {
		if _, ok := f.reg.Element(tc.old); ok {
			t.Errorf("removed %s %s should be destroyed after phase 1", tc.kind, tc.id)
		}
		if e := f.element(t, tc.kind, tc.id); e.Visible || len(e.Points) != 0 {
			t.Errorf("placeholder for %s = %+v, want hidden and empty", tc.id, e)
		}
	}

	// Phase 2: only a survives.
	if got := f.orch.State(); got != Phase2Moving {
		t.Fatalf("State() = %v, want %v", got, Phase2Moving)
	}
	if e := f.element(t, scene.KindNode, "a"); !e.Parent.IsRoot() {
		t.Errorf("moving node parent = %v, want root", e.Parent)
	}
	f.anim.step()

	// Phase 3: c rises, edge ac appears.
	if got := f.orch.State(); got != Phase3Adding {
		t.Fatalf("State() = %v, want %v", got, Phase3Adding)
	}
	if e := f.element(t, scene.KindNode, "c"); !e.Visible {
		t.Error("added node c should be visible")
	}
	f.anim.step()

	if got := f.orch.Current(); got != 1 {
		t.Errorf("Current() = %d, want 1", got)
	}
	sum, ok := f.orch.LastSummary()
	if !ok || sum.From != 0 || sum.To != 1 {
		t.Fatalf("LastSummary() = %+v, %v", sum, ok)
	}
	if !slices.Equal(sum.Nodes.Added, []string{"c"}) || !slices.Equal(sum.Nodes.Removed, []string{"b"}) ||
		!slices.Equal(sum.Nodes.Changed, []string{"a"}) {
		t.Errorf("summary nodes = %+v", sum.Nodes)
	}
}

func TestPhase2WaitsForAllCompletions(t *testing.T) {
	series, err := graph.NewSeries(
		graph.MustSnapshot("r0", []graph.Node{
			{ID: "p", Type: "dir"}, child("x", "p", 1), child("y", "p", 2), node("z", 3),
		}, nil),
		graph.MustSnapshot("r1", []graph.Node{
			{ID: "p", Type: "dir"}, child("x", "p", 5), child("y", "p", 2), node("z", 3),
		}, nil),
	)
	if err != nil {
		t.Fatal(err)
	}
	f := newHeldFixture(t, series, &layout.Nested{})
	f.nav.ShowSpecific(0)
	f.anim.drain()
	p := f.handle(t, scene.KindNode, "p")

	f.nav.ShowNext()
	moves := f.anim.pending()
	if len(moves) != 4 {
		t.Fatalf("phase 2 animations = %d, want 4", len(moves))
	}

	// Complete in reverse order; re-parenting must wait for the last one.
	for i := len(moves) - 1; i > 0; i-- {
		moves[i].finish()
		if got := f.orch.State(); got != Phase2Moving {
			t.Fatalf("State() after %d completions = %v, want %v", len(moves)-i, got, Phase2Moving)
		}
		if e := f.element(t, scene.KindNode, "x"); !e.Parent.IsRoot() {
			t.Fatalf("x re-parented before phase 2 finished")
		}
	}
	moves[0].finish()

	if f.orch.IsTransitioning() {
		t.Fatalf("State() = %v, want idle", f.orch.State())
	}
	if e := f.element(t, scene.KindNode, "x"); e.Parent != p {
		t.Errorf("x parent = %v, want %v", e.Parent, p)
	}
	if e := f.element(t, scene.KindNode, "z"); !e.Parent.IsRoot() {
		t.Errorf("z parent = %v, want root", e.Parent)
	}
}

func TestEdgeMorphStartsWithSourceMove(t *testing.T) {
	series, err := graph.NewSeries(
		graph.MustSnapshot("r0", []graph.Node{node("a", 1), node("b", 2)}, []graph.Edge{edge("a", "b")}),
		graph.MustSnapshot("r1", []graph.Node{node("a", 9), node("b", 2)}, []graph.Edge{edge("a", "b")}),
	)
	if err != nil {
		t.Fatal(err)
	}
	f := newHeldFixture(t, series, &layout.Grid{})
	f.nav.ShowSpecific(0)
	f.anim.drain()
	a := f.handle(t, scene.KindNode, "a")

	f.nav.ShowNext()
	if got := f.anim.count("morph"); got != 0 {
		t.Fatalf("morph started before its source node moved (%d calls)", got)
	}
	for _, c := range f.anim.pending() {
		if c.op == "move" && c.h == a {
			c.onStart()
			c.onStart = nil
		}
	}
	if got := f.anim.count("morph"); got != 1 {
		t.Errorf("morph calls after source move started = %d, want 1", got)
	}
	f.anim.drain()
	if f.orch.IsTransitioning() {
		t.Error("transition did not complete")
	}
}

// An edge that keeps its id while its source moves is re-targeted in phase 2,
// not faded out and re-added.
func TestRetargetedEdgeMorphs(t *testing.T) {
	nodes := []graph.Node{node("a", 1), node("b", 2), node("c", 3)}
	series, err := graph.NewSeries(
		graph.MustSnapshot("r0", nodes, []graph.Edge{{ID: "dep", Type: "calls", Source: "a", Target: "b"}}),
		graph.MustSnapshot("r1", nodes, []graph.Edge{{ID: "dep", Type: "calls", Source: "c", Target: "b"}}),
	)
	if err != nil {
		t.Fatal(err)
	}
	f := newHeldFixture(t, series, &layout.Grid{})
	f.nav.ShowSpecific(0)
	f.anim.drain()
	dep := f.handle(t, scene.KindEdge, "dep")
	before := len(f.anim.calls)

	if !f.nav.ShowNext() {
		t.Fatal("ShowNext() rejected")
	}
	if got := f.orch.State(); got != Phase2Moving {
		t.Fatalf("State() = %v, want %v", got, Phase2Moving)
	}
	f.anim.drain()

	var morphs, fades []*animCall
	for _, c := range f.anim.calls[before:] {
		switch c.op {
		case "morph":
			morphs = append(morphs, c)
		case "fade":
			fades = append(fades, c)
		}
	}
	if len(fades) != 0 {
		t.Errorf("fade calls = %d, want 0", len(fades))
	}
	if len(morphs) != 1 || morphs[0].h != dep {
		t.Fatalf("morph calls = %+v, want one for dep", morphs)
	}
	want, _ := f.lc.Edge(1, "dep")
	if len(morphs[0].points) == 0 || morphs[0].points[0].Sub(want.Points[0]).Len() > 1e-9 {
		t.Errorf("dep morphs to %v, want %v", morphs[0].points, want.Points)
	}
	if h := f.handle(t, scene.KindEdge, "dep"); h != dep {
		t.Errorf("dep handle = %v, want %v (not re-created)", h, dep)
	}

	sum, _ := f.orch.LastSummary()
	if !slices.Equal(sum.Edges.Equal, []string{"dep"}) || len(sum.Edges.Added)+len(sum.Edges.Removed) != 0 {
		t.Errorf("summary edges = %+v, want dep Equal", sum.Edges)
	}
}

type hidingLayouts struct {
	*LayoutCache
	hide string
}

func (h hidingLayouts) Node(rev int, id string) (layout.Node, bool) {
	if id == h.hide {
		return layout.Node{}, false
	}
	return h.LayoutCache.Node(rev, id)
}

func TestMissingLayoutIsSkipped(t *testing.T) {
	series := threeRevisions(t)
	reg, lc := precompute(t, series, &layout.Grid{})

	counter := &countingHooks{}
	observability.SetTransitionHooks(counter)
	defer observability.Reset()

	orch, err := NewOrchestrator(OrchestratorConfig{
		Layouts:  hidingLayouts{LayoutCache: lc, hide: "c"},
		Objects:  reg,
		Animator: scene.NewTweener(reg),
	})
	if err != nil {
		t.Fatal(err)
	}
	snap, _ := series.At(1)
	if err := orch.BeginTransition(nil, Revision{Index: 1, Snapshot: snap}, diff.Compute(nil, snap, nil)); err != nil {
		t.Fatalf("BeginTransition: %v", err)
	}

	if orch.IsTransitioning() || orch.Current() != 1 {
		t.Fatalf("zero-duration transition did not complete: state = %v, current = %d", orch.State(), orch.Current())
	}
	sum, _ := orch.LastSummary()
	if !slices.Equal(sum.Skipped, []string{"c"}) {
		t.Errorf("Skipped = %v, want [c]", sum.Skipped)
	}
	h, _ := reg.Lookup(scene.KindNode, "c")
	if e, _ := reg.Element(h); e.Visible {
		t.Error("node without layout should stay hidden")
	}
	if counter.missing != 1 {
		t.Errorf("OnMissingLayout calls = %d, want 1", counter.missing)
	}
}

func TestZeroDurationCompletesSynchronously(t *testing.T) {
	series := threeRevisions(t)
	reg, lc := precompute(t, series, &layout.Grid{})
	orch, err := NewOrchestrator(OrchestratorConfig{Layouts: lc, Objects: reg, Animator: scene.NewTweener(reg)})
	if err != nil {
		t.Fatal(err)
	}
	var completed []TransitionSummary
	unsubscribe := orch.OnTransitionComplete(func(s TransitionSummary) { completed = append(completed, s) })

	r0, _ := series.At(0)
	r2, _ := series.At(2)
	if err := orch.BeginTransition(nil, Revision{0, r0}, diff.Compute(nil, r0, nil)); err != nil {
		t.Fatal(err)
	}
	if err := orch.BeginTransition(&Revision{0, r0}, Revision{2, r2}, diff.Compute(r0, r2, nil)); err != nil {
		t.Fatal(err)
	}
	if got := orch.Current(); got != 2 {
		t.Errorf("Current() = %d, want 2", got)
	}
	if len(completed) != 2 || completed[1].From != 0 || completed[1].To != 2 {
		t.Errorf("completions = %+v", completed)
	}

	unsubscribe()
	orch.BeginTransition(&Revision{2, r2}, Revision{0, r0}, diff.Compute(r2, r0, nil))
	if len(completed) != 2 {
		t.Errorf("listener ran after unsubscribe")
	}

	plane, ok := reg.Lookup(scene.KindPlane, PlaneID)
	if !ok {
		t.Fatal("no ground plane")
	}
	bounds, _ := layout.Bounds("", lc.Nodes(0))
	if e, _ := reg.Element(plane); !e.Visible || e.Scale.X < bounds.Scale.X {
		t.Errorf("plane = %+v, want visible and at least %v wide", e, bounds.Scale.X)
	}
}

func TestCheckStall(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	series := threeRevisions(t)
	reg, lc := precompute(t, series, &layout.Grid{})

	counter := &countingHooks{}
	observability.SetTransitionHooks(counter)
	defer observability.Reset()

	orch, err := NewOrchestrator(OrchestratorConfig{
		Layouts:  lc,
		Objects:  reg,
		Animator: &heldAnimator{},
		Duration: time.Second,
		Clock:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatal(err)
	}
	if orch.CheckStall(now.Add(time.Hour)) {
		t.Error("idle orchestrator reported a stall")
	}

	snap, _ := series.At(0)
	orch.BeginTransition(nil, Revision{0, snap}, diff.Compute(nil, snap, nil))

	// Phase duration 500ms times the default factor of 4 gives 2s.
	if orch.CheckStall(now.Add(1500 * time.Millisecond)) {
		t.Error("stall reported before the threshold")
	}
	if !orch.CheckStall(now.Add(3 * time.Second)) {
		t.Error("stall not reported after the threshold")
	}
	if orch.CheckStall(now.Add(10 * time.Second)) {
		t.Error("stall reported twice for the same phase")
	}
	if counter.stalls != 1 {
		t.Errorf("OnStall calls = %d, want 1", counter.stalls)
	}
	if got := orch.State(); got != Phase3Adding {
		t.Errorf("stalled phase should keep waiting, State() = %v", got)
	}
}

func TestSetDuration(t *testing.T) {
	reg, lc := precompute(t, threeRevisions(t), &layout.Grid{})
	orch, _ := NewOrchestrator(OrchestratorConfig{Layouts: lc, Objects: reg, Animator: &heldAnimator{}, Duration: time.Second})

	if err := orch.SetDuration(-time.Second); !everrors.Is(err, everrors.ErrCodeInvalidInput) {
		t.Errorf("SetDuration(-1s) error = %v, want INVALID_INPUT", err)
	}
	if got := orch.Duration(); got != time.Second {
		t.Errorf("Duration() = %v after rejected change, want 1s", got)
	}
	if err := orch.SetDuration(3 * time.Second); err != nil {
		t.Fatal(err)
	}
	if got := orch.PhaseDuration(); got != 1500*time.Millisecond {
		t.Errorf("PhaseDuration() = %v, want 1.5s", got)
	}
}

type countingHooks struct {
	observability.NoopTransitionHooks
	stalls   int
	missing  int
	rejected []string
}

func (c *countingHooks) OnStall(string, int, time.Duration) { c.stalls++ }
func (c *countingHooks) OnMissingLayout(string, int)        { c.missing++ }
func (c *countingHooks) OnTransitionRejected(reason string) { c.rejected = append(c.rejected, reason) }

func near(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
