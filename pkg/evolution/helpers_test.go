package evolution

import (
	"context"
	"testing"
	"time"

	"github.com/matzehuels/evocity/pkg/diff"
	"github.com/matzehuels/evocity/pkg/graph"
	"github.com/matzehuels/evocity/pkg/layout"
	"github.com/matzehuels/evocity/pkg/scene"
)

func node(id string, loc float64) graph.Node {
	return graph.Node{ID: id, Type: "file", Attributes: graph.Attributes{"loc": loc}}
}

func child(id, parent string, loc float64) graph.Node {
	n := node(id, loc)
	n.Parent = parent
	return n
}

func edge(src, dst string) graph.Edge {
	return graph.Edge{ID: src + dst, Type: "calls", Source: src, Target: dst}
}

// threeRevisions: a changes and b is replaced by c, then d is added.
func threeRevisions(t *testing.T) *graph.Series {
	t.Helper()
	s, err := graph.NewSeries(
		graph.MustSnapshot("r0", []graph.Node{node("a", 10), node("b", 5)}, []graph.Edge{edge("a", "b")}),
		graph.MustSnapshot("r1", []graph.Node{node("a", 20), node("c", 7)}, []graph.Edge{edge("a", "c")}),
		graph.MustSnapshot("r2", []graph.Node{node("a", 20), node("c", 7), node("d", 1)},
			[]graph.Edge{edge("a", "c"), edge("c", "d")}),
	)
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}
	return s
}

func precompute(t *testing.T, series *graph.Series, nl layout.NodeLayout) (*scene.Registry, *LayoutCache) {
	t.Helper()
	reg := scene.NewRegistry()
	lc, err := NewLayoutCache(LayoutCacheConfig{
		NodeLayout: nl,
		EdgeLayout: layout.NewArcs(),
		Objects:    reg,
		Scaler:     &layout.Scaler{HeightAttr: "loc"},
	})
	if err != nil {
		t.Fatalf("NewLayoutCache: %v", err)
	}
	if err := lc.Precompute(context.Background(), series); err != nil {
		t.Fatalf("Precompute: %v", err)
	}
	return reg, lc
}

func newTestRenderer(t *testing.T, series *graph.Series, d, interval time.Duration) *Renderer {
	t.Helper()
	reg, lc := precompute(t, series, &layout.Grid{})
	r, err := NewRenderer(RendererConfig{
		Series:           series,
		Layouts:          lc,
		Objects:          reg,
		Diff:             diff.NewNumericAttributeDiff("loc"),
		Duration:         d,
		AutoPlayInterval: interval,
	})
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return r
}

// heldAnimator records animations and completes them only when told to.
type heldAnimator struct {
	calls []*animCall
}

type animCall struct {
	op         string
	h          scene.Handle
	onStart    func()
	onComplete func()
	points     []layout.Vector3
	done       bool
}

func (a *heldAnimator) MoveTo(h scene.Handle, _, _ layout.Vector3, _ time.Duration, onStart, onComplete func()) {
	a.calls = append(a.calls, &animCall{op: "move", h: h, onStart: onStart, onComplete: onComplete})
}

func (a *heldAnimator) Morph(h scene.Handle, _, to []layout.Vector3, _ time.Duration, onComplete func()) {
	a.calls = append(a.calls, &animCall{op: "morph", h: h, points: to, onComplete: onComplete})
}

func (a *heldAnimator) FadeOut(h scene.Handle, _ time.Duration, onComplete func()) {
	a.calls = append(a.calls, &animCall{op: "fade", h: h, onComplete: onComplete})
}

func (a *heldAnimator) count(op string) int {
	n := 0
	for _, c := range a.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

func (a *heldAnimator) pending() []*animCall {
	var out []*animCall
	for _, c := range a.calls {
		if !c.done {
			out = append(out, c)
		}
	}
	return out
}

func (c *animCall) finish() {
	if c.done {
		return
	}
	c.done = true
	if c.onStart != nil {
		c.onStart()
	}
	if c.onComplete != nil {
		c.onComplete()
	}
}

// step finishes the animations pending right now, not the ones their
// completions start.
func (a *heldAnimator) step() {
	for _, c := range a.pending() {
		c.finish()
	}
}

// drain finishes animations until none are left.
func (a *heldAnimator) drain() {
	for len(a.pending()) > 0 {
		a.step()
	}
}

type heldFixture struct {
	series *graph.Series
	reg    *scene.Registry
	lc     *LayoutCache
	anim   *heldAnimator
	orch   *Orchestrator
	nav    *Navigator
}

func newHeldFixture(t *testing.T, series *graph.Series, nl layout.NodeLayout) *heldFixture {
	t.Helper()
	reg, lc := precompute(t, series, nl)
	anim := &heldAnimator{}
	orch, err := NewOrchestrator(OrchestratorConfig{
		Layouts:  lc,
		Objects:  reg,
		Animator: anim,
		Duration: time.Second,
	})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	nav, err := NewNavigator(NavigatorConfig{
		Series:       series,
		Orchestrator: orch,
		Diff:         diff.NewNumericAttributeDiff("loc"),
	})
	if err != nil {
		t.Fatalf("NewNavigator: %v", err)
	}
	return &heldFixture{series: series, reg: reg, lc: lc, anim: anim, orch: orch, nav: nav}
}

func (f *heldFixture) handle(t *testing.T, kind scene.Kind, id string) scene.Handle {
	t.Helper()
	h, ok := f.reg.Lookup(kind, id)
	if !ok {
		t.Fatalf("no %s element %q", kind, id)
	}
	return h
}

func (f *heldFixture) element(t *testing.T, kind scene.Kind, id string) scene.Element {
	t.Helper()
	e, _ := f.reg.Element(f.handle(t, kind, id))
	return e
}
