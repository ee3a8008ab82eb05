// Package scene holds the visual proxies of graph elements.
//
// A [Registry] is an arena of [Element] values addressed by opaque [Handle]s.
// It stands in for the host engine's scene graph: the evolution engine asks it
// to get-or-create, re-parent, place, show, hide and destroy elements, and a
// front-end reads the resulting state to draw. A [Tweener] animates element
// state over time and reports completion through callbacks.
//
// Neither type is safe for concurrent use. The evolution engine drives both
// from a single goroutine through its Tick loop.
package scene

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/matzehuels/evocity/pkg/layout"
)

// Handle identifies an element in a [Registry]. The zero Handle is the scene
// root and never refers to an element.
type Handle uuid.UUID

// Root is the handle of the scene root.
var Root Handle

// IsRoot reports whether h is the scene root.
func (h Handle) IsRoot() bool { return h == Root }

func (h Handle) String() string {
	if h.IsRoot() {
		return "root"
	}
	return uuid.UUID(h).String()
}

// MarshalText encodes the handle as its uuid string.
func (h Handle) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

// Kind distinguishes element namespaces. Node and edge ids may collide, so
// elements are keyed by (Kind, ID).
type Kind uint8

const (
	KindNode Kind = iota + 1
	KindEdge
	KindPlane
)

func (k Kind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindEdge:
		return "edge"
	case KindPlane:
		return "plane"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Element is the visual proxy of one node, edge or the ground plane.
type Element struct {
	Handle   Handle           `json:"handle"`
	Kind     Kind             `json:"kind"`
	ID       string           `json:"id"`
	Position layout.Vector3   `json:"position"`
	Scale    layout.Vector3   `json:"scale"`
	Points   []layout.Vector3 `json:"points,omitempty"`
	Parent   Handle           `json:"parent"`
	Visible  bool             `json:"visible"`
	Opacity  float64          `json:"opacity"`
}

// ObjectManager owns the visual elements of a scene.
type ObjectManager interface {
	// GetOrCreate returns the element for (kind, id), creating a hidden one
	// at the origin if needed. existed reports whether it was already there.
	GetOrCreate(kind Kind, id string) (existed bool, h Handle)
	Lookup(kind Kind, id string) (Handle, bool)
	Element(h Handle) (Element, bool)
	Destroy(h Handle)
	Clear()
	SetParent(h, parent Handle)
	SetVisible(h Handle, visible bool)
	Place(h Handle, position, scale layout.Vector3)
	SetPoints(h Handle, points []layout.Vector3)
	SetOpacity(h Handle, opacity float64)
	Elements() []Element
}

type key struct {
	kind Kind
	id   string
}

// Registry is the in-memory [ObjectManager].
type Registry struct {
	byHandle map[Handle]*Element
	byKey    map[key]Handle
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byHandle: make(map[Handle]*Element),
		byKey:    make(map[key]Handle),
	}
}

func (r *Registry) GetOrCreate(kind Kind, id string) (bool, Handle) {
	if h, ok := r.byKey[key{kind, id}]; ok {
		return true, h
	}
	h := Handle(uuid.New())
	r.byHandle[h] = &Element{Handle: h, Kind: kind, ID: id, Opacity: 1}
	r.byKey[key{kind, id}] = h
	return false, h
}

func (r *Registry) Lookup(kind Kind, id string) (Handle, bool) {
	h, ok := r.byKey[key{kind, id}]
	return h, ok
}

// Element returns a copy of the element behind h.
func (r *Registry) Element(h Handle) (Element, bool) {
	e, ok := r.byHandle[h]
	if !ok {
		return Element{}, false
	}
	out := *e
	out.Points = slices.Clone(e.Points)
	return out, true
}

// Destroy removes h. Children of h are re-attached to the scene root.
// Destroying an unknown handle is a no-op.
func (r *Registry) Destroy(h Handle) {
	e, ok := r.byHandle[h]
	if !ok {
		return
	}
	for _, other := range r.byHandle {
		if other.Parent == h {
			other.Parent = Root
		}
	}
	delete(r.byKey, key{e.Kind, e.ID})
	delete(r.byHandle, h)
}

func (r *Registry) Clear() {
	clear(r.byHandle)
	clear(r.byKey)
}

// SetParent attaches h below parent. An unknown parent, or one that would
// create a cycle, attaches h to the scene root instead.
func (r *Registry) SetParent(h, parent Handle) {
	e, ok := r.byHandle[h]
	if !ok {
		return
	}
	if _, known := r.byHandle[parent]; !known || r.isAncestor(h, parent) {
		parent = Root
	}
	e.Parent = parent
}

// isAncestor reports whether a is p or one of p's ancestors.
func (r *Registry) isAncestor(a, p Handle) bool {
	for steps := 0; !p.IsRoot() && steps <= len(r.byHandle); steps++ {
		if p == a {
			return true
		}
		e, ok := r.byHandle[p]
		if !ok {
			return false
		}
		p = e.Parent
	}
	return false
}

func (r *Registry) SetVisible(h Handle, visible bool) {
	if e, ok := r.byHandle[h]; ok {
		e.Visible = visible
	}
}

func (r *Registry) Place(h Handle, position, scale layout.Vector3) {
	if e, ok := r.byHandle[h]; ok {
		e.Position, e.Scale = position, scale
	}
}

func (r *Registry) SetPoints(h Handle, points []layout.Vector3) {
	if e, ok := r.byHandle[h]; ok {
		e.Points = slices.Clone(points)
	}
}

func (r *Registry) SetOpacity(h Handle, opacity float64) {
	if e, ok := r.byHandle[h]; ok {
		e.Opacity = opacity
	}
}

// Elements returns copies of all elements ordered by kind, then id.
func (r *Registry) Elements() []Element {
	out := make([]Element, 0, len(r.byHandle))
	for h := range r.byHandle {
		e, _ := r.Element(h)
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Element) int {
		if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Len returns the number of elements.
func (r *Registry) Len() int { return len(r.byHandle) }

var _ ObjectManager = (*Registry)(nil)
