package layout

import (
	"math"

	"github.com/matzehuels/evocity/pkg/graph"
)

// Default leaf size bounds used by [Scaler].
const (
	DefaultMinSize = 0.5
	DefaultMaxSize = 10.0
)

// Scaler maps leaf metrics to box sizes.
//
// Each axis is driven by one numeric attribute. Values are normalised against
// the minimum and maximum seen over the whole series, so sizes are comparable
// across revisions. An empty attribute name or a missing value yields MinSize.
type Scaler struct {
	WidthAttr  string
	HeightAttr string
	DepthAttr  string
	MinSize    float64
	MaxSize    float64

	ranges map[string][2]float64
}

// Fit records the value range of each configured attribute over all leaves
// of the series.
func (s *Scaler) Fit(series *graph.Series) {
	if s.MinSize <= 0 {
		s.MinSize = DefaultMinSize
	}
	if s.MaxSize < s.MinSize {
		s.MaxSize = math.Max(DefaultMaxSize, s.MinSize)
	}
	s.ranges = make(map[string][2]float64)
	for _, snap := range series.Snapshots() {
		for _, n := range snap.Leaves() {
			for _, attr := range []string{s.WidthAttr, s.HeightAttr, s.DepthAttr} {
				if attr == "" {
					continue
				}
				v, ok := n.Float(attr)
				if !ok {
					continue
				}
				r, seen := s.ranges[attr]
				if !seen {
					r = [2]float64{v, v}
				}
				s.ranges[attr] = [2]float64{math.Min(r[0], v), math.Max(r[1], v)}
			}
		}
	}
}

// Size returns the box size of node n.
func (s *Scaler) Size(n graph.Node) Vector3 {
	return Vec(s.axis(n, s.WidthAttr), s.axis(n, s.HeightAttr), s.axis(n, s.DepthAttr))
}

// Sizes returns the size of every leaf of snap.
func (s *Scaler) Sizes(snap *graph.Snapshot) map[string]Vector3 {
	out := make(map[string]Vector3)
	for _, n := range snap.Leaves() {
		out[n.ID] = s.Size(n)
	}
	return out
}

func (s *Scaler) axis(n graph.Node, attr string) float64 {
	if attr == "" {
		return s.MinSize
	}
	v, ok := n.Float(attr)
	r, fitted := s.ranges[attr]
	if !ok || !fitted {
		return s.MinSize
	}
	if r[1] == r[0] {
		return (s.MinSize + s.MaxSize) / 2
	}
	t := (v - r[0]) / (r[1] - r[0])
	t = math.Max(0, math.Min(1, t))
	return s.MinSize + t*(s.MaxSize-s.MinSize)
}
