package layout

import (
	"context"
	"math"
	"slices"

	"github.com/matzehuels/evocity/pkg/graph"
)

// DefaultPlatformHeight is the height of an inner node's platform.
const DefaultPlatformHeight = 0.2

// Nested is a hierarchical layout in the style of a code city: inner nodes
// are flat platforms ("districts") and their children stand on top of them.
// Children are packed into rows in id order.
type Nested struct {
	Spacing        float64
	PlatformHeight float64
}

func (l *Nested) Name() string { return NestedName }

func (l *Nested) Hierarchical() bool { return true }

// footprint is the packed XZ extent of a subtree and the offsets of its
// children relative to the subtree's minimum corner.
type footprint struct {
	w, d    float64
	offsets map[string][2]float64
}

func (l *Nested) Apply(ctx context.Context, nodes []graph.Node, sizes map[string]Vector3) (map[string]Node, error) {
	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		known[n.ID] = true
	}
	children := make(map[string][]string)
	var roots []string
	for _, n := range nodes {
		if n.Parent != "" && known[n.Parent] {
			children[n.Parent] = append(children[n.Parent], n.ID)
		} else {
			roots = append(roots, n.ID)
		}
	}
	slices.Sort(roots)
	for _, c := range children {
		slices.Sort(c)
	}

	gap := spacing(l.Spacing)
	height := l.PlatformHeight
	if height <= 0 {
		height = DefaultPlatformHeight
	}

	fps := make(map[string]footprint, len(nodes))
	var measure func(id string) footprint
	measure = func(id string) footprint {
		kids := children[id]
		if len(kids) == 0 {
			s := sizeOf(sizes, id)
			fp := footprint{w: s.X, d: s.Z}
			fps[id] = fp
			return fp
		}
		fp := pack(kids, measure, gap)
		fp.w += gap
		fp.d += gap
		for k, off := range fp.offsets {
			fp.offsets[k] = [2]float64{off[0] + gap/2, off[1] + gap/2}
		}
		fps[id] = fp
		return fp
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	top := pack(roots, measure, gap)

	out := make(map[string]Node, len(nodes))
	var place func(id string, x, z, ground float64)
	place = func(id string, x, z, ground float64) {
		fp := fps[id]
		kids := children[id]
		if len(kids) == 0 {
			s := sizeOf(sizes, id)
			out[id] = Node{ID: id, Center: Vec(x+fp.w/2, ground+s.Y/2, z+fp.d/2), Scale: s}
			return
		}
		out[id] = Node{ID: id, Center: Vec(x+fp.w/2, ground+height/2, z+fp.d/2), Scale: Vec(fp.w, height, fp.d)}
		for _, k := range kids {
			off := fp.offsets[k]
			place(k, x+off[0], z+off[1], ground+height)
		}
	}
	for _, r := range roots {
		off := top.offsets[r]
		place(r, off[0], off[1], 0)
	}
	return out, nil
}

// pack arranges the footprints of ids into rows of roughly square total
// extent. Returned offsets are relative to the packed area's minimum corner.
func pack(ids []string, measure func(string) footprint, gap float64) footprint {
	fp := footprint{offsets: make(map[string][2]float64, len(ids))}
	if len(ids) == 0 {
		return fp
	}

	sub := make([]footprint, len(ids))
	area, widest := 0.0, 0.0
	for i, id := range ids {
		sub[i] = measure(id)
		area += (sub[i].w + gap) * (sub[i].d + gap)
		widest = math.Max(widest, sub[i].w)
	}
	rowLimit := math.Max(math.Sqrt(area), widest)

	x, z, rowDepth := 0.0, 0.0, 0.0
	for i, id := range ids {
		if x > 0 && x+sub[i].w > rowLimit {
			z += rowDepth + gap
			x, rowDepth = 0, 0
		}
		fp.offsets[id] = [2]float64{x, z}
		fp.w = math.Max(fp.w, x+sub[i].w)
		rowDepth = math.Max(rowDepth, sub[i].d)
		x += sub[i].w + gap
	}
	fp.d = z + rowDepth
	return fp
}
