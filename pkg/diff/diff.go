// Package diff classifies the nodes and edges of two revisions.
//
// [Compute] partitions every element id of two snapshots into Added, Removed,
// Changed and Equal. Whether an element present in both revisions changed is
// decided by a pluggable [ElementDiff]; [NumericAttributeDiff] compares a set
// of tracked numeric attributes, which is what the evolution view uses to
// decide whether a building has to move or grow.
//
// The classification only depends on ids and the element diff: an edge whose
// endpoints changed between revisions keeps the classification of its id.
package diff

import (
	"fmt"
	"slices"

	"github.com/matzehuels/evocity/pkg/graph"
)

// ElementDiff decides whether two versions of the same element differ.
type ElementDiff interface {
	AreDifferent(a, b graph.Element) bool
}

// ElementDiffFunc adapts a function to [ElementDiff].
type ElementDiffFunc func(a, b graph.Element) bool

// AreDifferent calls f(a, b).
func (f ElementDiffFunc) AreDifferent(a, b graph.Element) bool { return f(a, b) }

// NumericAttributeDiff compares the values of a fixed set of attributes.
//
// Two elements differ if any tracked attribute is present on exactly one of
// them, or if its values differ. Numeric values are compared as float64
// regardless of their Go type; other values are compared by their string form.
type NumericAttributeDiff struct {
	attrs []string
}

// NewNumericAttributeDiff returns a diff over the given attribute names.
func NewNumericAttributeDiff(attrs ...string) *NumericAttributeDiff {
	a := slices.Clone(attrs)
	slices.Sort(a)
	return &NumericAttributeDiff{attrs: slices.Compact(a)}
}

// Attributes returns the tracked attribute names, sorted.
func (d *NumericAttributeDiff) Attributes() []string { return slices.Clone(d.attrs) }

// AreDifferent implements [ElementDiff].
func (d *NumericAttributeDiff) AreDifferent(a, b graph.Element) bool {
	for _, name := range d.attrs {
		va, okA := a.Attr(name)
		vb, okB := b.Attr(name)
		if okA != okB {
			return true
		}
		if !okA {
			continue
		}
		if !equalValues(va, vb) {
			return true
		}
	}
	return false
}

func equalValues(a, b any) bool {
	fa, numA := graph.ToFloat(a)
	fb, numB := graph.ToFloat(b)
	if numA && numB {
		return fa == fb
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// Never reports every pair as equal. With it, a diff only yields Added,
// Removed and Equal.
var Never ElementDiff = ElementDiffFunc(func(a, b graph.Element) bool { return false })
