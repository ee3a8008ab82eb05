package layout

import (
	"bufio"
	"bytes"
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/mattn/go-shellwords"

	"github.com/matzehuels/evocity/pkg/graph"
)

// DefaultEngine is the Graphviz engine used when none is configured.
const DefaultEngine = "neato"

// Graphviz places leaves with a Graphviz layout engine. Boxes are passed to
// Graphviz as fixed-size nodes (one world unit per inch) and edges between
// leaves pull connected boxes together. Graphviz's y axis becomes world z.
type Graphviz struct {
	Engine  string
	Spacing float64
}

func (l *Graphviz) Name() string { return GraphvizName }

func (l *Graphviz) Hierarchical() bool { return false }

func (l *Graphviz) Apply(ctx context.Context, nodes []graph.Node, sizes map[string]Vector3) (map[string]Node, error) {
	return l.ApplyWithEdges(ctx, nodes, nil, sizes)
}

func (l *Graphviz) ApplyWithEdges(ctx context.Context, nodes []graph.Node, edges []graph.Edge, sizes map[string]Vector3) (map[string]Node, error) {
	out := make(map[string]Node, len(nodes))
	if len(nodes) == 0 {
		return out, nil
	}

	dot, ids := l.toDOT(nodes, edges, sizes)
	plain, err := l.render(ctx, dot)
	if err != nil {
		return nil, err
	}
	pos, err := parsePlain(plain)
	if err != nil {
		return nil, err
	}

	for i, id := range ids {
		p, ok := pos[dotName(i)]
		if !ok {
			continue
		}
		s := sizeOf(sizes, id)
		out[id] = Node{ID: id, Center: Vec(p[0], s.Y/2, p[1]), Scale: s}
	}
	return out, nil
}

// dotName is the Graphviz name of the i-th node in id order. Node ids never
// reach DOT, so any character in an id survives the round trip through
// Graphviz's quoting and the plain output.
func dotName(i int) string { return "n" + strconv.Itoa(i) }

// dotQuote quotes s as a DOT string, where \" is the only escape.
func dotQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// toDOT renders the layout input and returns the node ids indexed by their
// DOT name.
func (l *Graphviz) toDOT(nodes []graph.Node, edges []graph.Edge, sizes map[string]Vector3) (string, []string) {
	var buf bytes.Buffer
	engine := l.Engine
	if engine == "" {
		engine = DefaultEngine
	}
	buf.WriteString("graph G {\n")
	fmt.Fprintf(&buf, "  layout=%s;\n", dotQuote(engine))
	fmt.Fprintf(&buf, "  overlap=false;\n  sep=\"+%g\";\n  nodesep=%g;\n", spacing(l.Spacing)*36, spacing(l.Spacing))
	buf.WriteString("  node [shape=box, fixedsize=true, label=\"\"];\n\n")

	sorted := slices.SortedFunc(slices.Values(nodes), func(a, b graph.Node) int { return cmp.Compare(a.ID, b.ID) })
	ids := make([]string, len(sorted))
	names := make(map[string]string, len(sorted))
	for i, n := range sorted {
		s := sizeOf(sizes, n.ID)
		ids[i] = n.ID
		names[n.ID] = dotName(i)
		fmt.Fprintf(&buf, "  %s [width=%g, height=%g];\n", dotName(i), s.X, s.Z)
	}

	buf.WriteString("\n")
	for _, e := range edges {
		src, okS := names[e.Source]
		dst, okT := names[e.Target]
		if !okS || !okT || e.Source == e.Target {
			continue
		}
		fmt.Fprintf(&buf, "  %s -- %s;\n", src, dst)
	}
	buf.WriteString("}\n")
	return buf.String(), ids
}

func (l *Graphviz) render(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.Format("plain"), &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}

// parsePlain reads node centers from Graphviz "plain" output:
//
//	graph scale width height
//	node name x y width height label style shape color fillcolor
//	edge tail head n x1 y1 ... xn yn [label xl yl] style color
//	stop
func parsePlain(plain []byte) (map[string][2]float64, error) {
	pos := make(map[string][2]float64)
	sc := bufio.NewScanner(bytes.NewReader(plain))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "node ") {
			continue
		}
		fields, err := shellwords.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("parse plain line %q: %w", line, err)
		}
		if len(fields) < 4 {
			return nil, fmt.Errorf("short plain node line %q", line)
		}
		x, errX := strconv.ParseFloat(fields[2], 64)
		y, errY := strconv.ParseFloat(fields[3], 64)
		if errX != nil || errY != nil {
			return nil, fmt.Errorf("bad coordinates in %q", line)
		}
		pos[fields[1]] = [2]float64{x, y}
	}
	return pos, sc.Err()
}
