package layout

import (
	"context"
	"math"
	"slices"
	"strings"
	"testing"

	"github.com/matzehuels/evocity/pkg/graph"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestVector3(t *testing.T) {
	a, b := Vec(0, 0, 0), Vec(2, 4, 6)
	if got := a.Lerp(b, 0.5); got != Vec(1, 2, 3) {
		t.Errorf("Lerp() = %v, want (1, 2, 3)", got)
	}
	if got := Vec(3, 4, 0).Len(); got != 5 {
		t.Errorf("Len() = %v, want 5", got)
	}
	n := Node{Center: Vec(0, 2, 0), Scale: Vec(1, 4, 1)}
	if n.Ground().Y != 0 || n.Roof().Y != 4 {
		t.Errorf("Ground/Roof = %v/%v", n.Ground(), n.Roof())
	}
}

func TestBounds(t *testing.T) {
	if _, ok := Bounds("plane", nil); ok {
		t.Error("Bounds(nil) should report !ok")
	}
	got, ok := Bounds("plane", map[string]Node{
		"a": {Center: Vec(0, 0.5, 0), Scale: Vec(2, 1, 2)},
		"b": {Center: Vec(10, 1, 4), Scale: Vec(2, 2, 2)},
	})
	if !ok {
		t.Fatal("Bounds() !ok")
	}
	if got.Scale != Vec(12, 2, 6) {
		t.Errorf("Bounds().Scale = %v, want (12, 2, 6)", got.Scale)
	}
	if got.Center != Vec(5, 1, 2) {
		t.Errorf("Bounds().Center = %v, want (5, 1, 2)", got.Center)
	}
}

func TestNew(t *testing.T) {
	for _, name := range Names() {
		l, err := New(name, 2)
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if l.Name() != name {
			t.Errorf("New(%q).Name() = %q", name, l.Name())
		}
	}
	if _, err := New("treemap", 1); err == nil {
		t.Error("New(treemap) should fail")
	}
}

func TestGrid(t *testing.T) {
	nodes := []graph.Node{{ID: "d"}, {ID: "b"}, {ID: "a"}, {ID: "c"}, {ID: "e"}}
	sizes := map[string]Vector3{"a": Vec(2, 3, 2)}
	g := &Grid{Spacing: 1}

	got, err := g.Apply(context.Background(), nodes, sizes)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	// cell = max footprint (2) + spacing (1); 3 columns for 5 leaves.
	if c := got["a"].Center; c != Vec(0, 1.5, 0) {
		t.Errorf("a.Center = %v", c)
	}
	if c := got["d"].Center; c != Vec(0, 0.5, 3) {
		t.Errorf("d.Center = %v", c)
	}
	if got["a"].Ground().Y != 0 {
		t.Errorf("a should stand on the ground, got %v", got["a"].Ground())
	}

	again, _ := g.Apply(context.Background(), nodes, sizes)
	for id, n := range got {
		if again[id] != n {
			t.Errorf("Apply not deterministic for %s", id)
		}
	}
}

func TestNested(t *testing.T) {
	nodes := []graph.Node{
		{ID: "root"},
		{ID: "root/pkg", Parent: "root"},
		{ID: "root/pkg/a", Parent: "root/pkg"},
		{ID: "root/pkg/b", Parent: "root/pkg"},
		{ID: "root/c", Parent: "root"},
	}
	sizes := map[string]Vector3{
		"root/pkg/a": Vec(1, 2, 1),
		"root/pkg/b": Vec(2, 5, 2),
		"root/c":     Vec(1, 1, 1),
	}
	l := &Nested{Spacing: 0.5, PlatformHeight: 0.2}

	got, err := l.Apply(context.Background(), nodes, sizes)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(got) != len(nodes) {
		t.Fatalf("len = %d, want %d", len(got), len(nodes))
	}

	for _, n := range nodes {
		if n.Parent == "" {
			continue
		}
		child, parent := got[n.ID], got[n.Parent]
		if !near(child.Ground().Y, parent.Roof().Y) {
			t.Errorf("%s ground %v, want on parent roof %v", n.ID, child.Ground().Y, parent.Roof().Y)
		}
		if !inside(child, parent) {
			t.Errorf("%s footprint %v/%v not inside %s %v/%v", n.ID, child.Center, child.Scale, n.Parent, parent.Center, parent.Scale)
		}
	}
	if s := got["root/pkg/b"].Scale; s != sizes["root/pkg/b"] {
		t.Errorf("leaf scale = %v, want %v", s, sizes["root/pkg/b"])
	}
	if overlap(got["root/pkg/a"], got["root/pkg/b"]) {
		t.Error("siblings overlap")
	}
}

func inside(c, p Node) bool {
	return c.Center.X-c.Scale.X/2 >= p.Center.X-p.Scale.X/2-1e-9 &&
		c.Center.X+c.Scale.X/2 <= p.Center.X+p.Scale.X/2+1e-9 &&
		c.Center.Z-c.Scale.Z/2 >= p.Center.Z-p.Scale.Z/2-1e-9 &&
		c.Center.Z+c.Scale.Z/2 <= p.Center.Z+p.Scale.Z/2+1e-9
}

func overlap(a, b Node) bool {
	return math.Abs(a.Center.X-b.Center.X) < (a.Scale.X+b.Scale.X)/2 &&
		math.Abs(a.Center.Z-b.Center.Z) < (a.Scale.Z+b.Scale.Z)/2
}

func TestArcs(t *testing.T) {
	nodes := map[string]Node{
		"a": {ID: "a", Center: Vec(0, 1, 0), Scale: Vec(1, 2, 1)},
		"b": {ID: "b", Center: Vec(10, 0.5, 0), Scale: Vec(1, 1, 1)},
	}
	edges := []graph.Edge{
		{ID: "ab", Source: "a", Target: "b"},
		{ID: "ax", Source: "a", Target: "x"},
	}

	got, err := NewArcs().Apply(context.Background(), edges, nodes)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, ok := got["ax"]; ok {
		t.Error("edge with unplaced endpoint should be skipped")
	}
	ab := got["ab"]
	if len(ab.Points) != 3 {
		t.Fatalf("len(Points) = %d, want 3", len(ab.Points))
	}
	if ab.Points[0] != nodes["a"].Roof() || ab.Points[2] != nodes["b"].Roof() {
		t.Errorf("endpoints = %v, %v", ab.Points[0], ab.Points[2])
	}
	if ab.Points[1].Y <= 2 {
		t.Errorf("midpoint not raised: %v", ab.Points[1])
	}
}

func TestScaler(t *testing.T) {
	s1 := graph.MustSnapshot("1", []graph.Node{
		{ID: "a", Attributes: graph.Attributes{"LOC": 0, "Width": 5}},
		{ID: "b", Attributes: graph.Attributes{"LOC": 100, "Width": 5}},
	}, nil)
	s2 := graph.MustSnapshot("2", []graph.Node{
		{ID: "a", Attributes: graph.Attributes{"LOC": 50}},
	}, nil)
	series, _ := graph.NewSeries(s1, s2)

	sc := &Scaler{WidthAttr: "Width", HeightAttr: "LOC", MinSize: 1, MaxSize: 11}
	sc.Fit(series)

	sizes := sc.Sizes(s1)
	if got := sizes["b"].Y; got != 11 {
		t.Errorf("max LOC height = %v, want 11", got)
	}
	if got := sizes["a"].Y; got != 1 {
		t.Errorf("min LOC height = %v, want 1", got)
	}
	if got := sizes["a"].X; got != 6 {
		t.Errorf("constant width = %v, want midpoint 6", got)
	}
	if got := sizes["a"].Z; got != 1 {
		t.Errorf("unset depth = %v, want MinSize", got)
	}
	if got := sc.Sizes(s2)["a"]; got.Y != 6 || got.X != 1 {
		t.Errorf("s2 size = %v, want height 6 and width 1", got)
	}
}

func TestGraphvizDOT(t *testing.T) {
	l := &Graphviz{Engine: "fdp"}
	dot, ids := l.toDOT(
		[]graph.Node{{ID: "src/b.go"}, {ID: "src/a.go"}},
		[]graph.Edge{
			{ID: "e1", Source: "src/a.go", Target: "src/b.go"},
			{ID: "e2", Source: "src/a.go", Target: "src"},
		},
		map[string]Vector3{"src/a.go": Vec(2, 1, 3)},
	)
	if !slices.Equal(ids, []string{"src/a.go", "src/b.go"}) {
		t.Errorf("ids = %v, want sorted node ids", ids)
	}
	for _, want := range []string{
		`layout="fdp"`,
		`n0 [width=2, height=3]`,
		`n0 -- n1;`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q:\n%s", want, dot)
		}
	}
	if strings.Count(dot, " -- ") != 1 {
		t.Error("edge to node outside the layout should be dropped")
	}
}

func TestDOTQuote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"neato", `"neato"`},
		{`say "hi"`, `"say \"hi\""`},
		{"café", `"café"`},
		{`a\b`, `"a\b"`},
	}
	for _, tt := range tests {
		if got := dotQuote(tt.in); got != tt.want {
			t.Errorf("dotQuote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

// Ids with quotes, backslashes, spaces and non-ASCII characters all come
// back from Graphviz under their own name.
func TestGraphvizUnusualIDs(t *testing.T) {
	nodes := []graph.Node{
		{ID: "café.go"},
		{ID: `say "hi".go`},
		{ID: `dir\file.go`},
		{ID: "two words\tand a tab"},
		{ID: "日本.go"},
	}
	edges := []graph.Edge{
		{ID: "e1", Source: "café.go", Target: `say "hi".go`},
		{ID: "e2", Source: `dir\file.go`, Target: "日本.go"},
	}
	got, err := (&Graphviz{}).ApplyWithEdges(context.Background(), nodes, edges, nil)
	if err != nil {
		t.Fatalf("ApplyWithEdges: %v", err)
	}
	if len(got) != len(nodes) {
		t.Errorf("placed %d nodes, want %d", len(got), len(nodes))
	}
	for _, n := range nodes {
		if p, ok := got[n.ID]; !ok || p.ID != n.ID {
			t.Errorf("node %q missing from layout", n.ID)
		}
	}
}

func TestParsePlain(t *testing.T) {
	plain := []byte(`graph 1 4.5 2
node "src/a.go" 1.25 0.5 2 3 "" solid box black lightgrey
node b 3 1.5 1 1 "" solid box black lightgrey
edge "src/a.go" b 4 1.25 0.5 2 1 2.5 1.2 3 1.5 solid black
stop
`)
	got, err := parsePlain(plain)
	if err != nil {
		t.Fatalf("parsePlain: %v", err)
	}
	if got["src/a.go"] != [2]float64{1.25, 0.5} {
		t.Errorf("src/a.go = %v", got["src/a.go"])
	}
	if got["b"] != [2]float64{3, 1.5} {
		t.Errorf("b = %v", got["b"])
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}

	if _, err := parsePlain([]byte("node x nope 1 1 1\n")); err == nil {
		t.Error("parsePlain should reject bad coordinates")
	}
}
