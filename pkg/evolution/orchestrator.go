package evolution

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/evocity/pkg/diff"
	everrors "github.com/matzehuels/evocity/pkg/errors"
	"github.com/matzehuels/evocity/pkg/graph"
	"github.com/matzehuels/evocity/pkg/layout"
	"github.com/matzehuels/evocity/pkg/observability"
	"github.com/matzehuels/evocity/pkg/scene"
)

// =============================================================================
// State
// =============================================================================

// State is the phase an [Orchestrator] is in.
type State int

const (
	Idle State = iota
	Phase1Removing
	Phase2Moving
	Phase3Adding
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Phase1Removing:
		return "removing"
	case Phase2Moving:
		return "moving"
	case Phase3Adding:
		return "adding"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

const (
	// DefaultStallFactor is the multiple of the phase duration after which a
	// waiting phase is reported as stalled.
	DefaultStallFactor = 4.0

	// PlaneID identifies the ground plane element.
	PlaneID = "plane"

	minStallLimit  = time.Second
	planeThickness = 0.1
	planeMargin    = 1.0
)

// ErrAlreadyAnimating is matched by errors returned when a transition is
// requested while another one is running.
var ErrAlreadyAnimating = errors.New("transition already in progress")

// AlreadyAnimatingError rejects a transition requested while another one is
// running. It matches [ErrAlreadyAnimating] and the ALREADY_ANIMATING code.
type AlreadyAnimatingError struct {
	State     State
	Requested int
}

func (e *AlreadyAnimatingError) Error() string {
	return fmt.Sprintf("cannot show revision %d: transition in progress (%s)", e.Requested, e.State)
}

func (e *AlreadyAnimatingError) Is(target error) bool { return target == ErrAlreadyAnimating }

func (e *AlreadyAnimatingError) Unwrap() error {
	return everrors.New(everrors.ErrCodeAlreadyAnimating, "transition in progress (%s)", e.State)
}

// Revision is one revision of a series together with its index.
type Revision struct {
	Index    int
	Snapshot *graph.Snapshot
}

// TransitionSummary describes a completed transition.
type TransitionSummary struct {
	From     int            `json:"from"`
	To       int            `json:"to"`
	Nodes    diff.Partition `json:"nodes"`
	Edges    diff.Partition `json:"edges"`
	Skipped  []string       `json:"skipped,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// =============================================================================
// Orchestrator
// =============================================================================

// OrchestratorConfig configures an [Orchestrator].
type OrchestratorConfig struct {
	Layouts  Layouts
	Objects  scene.ObjectManager
	Animator scene.Animator

	// Duration is the total transition time. Every phase animates for half
	// of it. Zero disables animation.
	Duration time.Duration

	// StallFactor scales the phase duration into the stall threshold used by
	// CheckStall. Zero means DefaultStallFactor.
	StallFactor float64

	Logger *log.Logger

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Orchestrator runs the three-phase transition between two revisions. Only
// one transition runs at a time; requests made while busy are refused.
type Orchestrator struct {
	layouts     Layouts
	objects     scene.ObjectManager
	animator    scene.Animator
	logger      *log.Logger
	clock       func() time.Time
	stallFactor float64
	barriers    [3]*Barrier

	mu        sync.Mutex
	state     State
	current   int
	duration  time.Duration
	active    *transition
	phaseAt   time.Time
	stalled   bool
	last      *TransitionSummary
	listeners []listener
	nextID    int
}

type listener struct {
	id int
	fn func(TransitionSummary)
}

// transition is the scratch state of the running transition.
type transition struct {
	from    *Revision
	to      Revision
	cls     diff.Classification
	skipped []string
	started time.Time
}

func (t *transition) fromIndex() int {
	if t.from == nil {
		return -1
	}
	return t.from.Index
}

// NewOrchestrator validates cfg and returns an idle orchestrator that shows
// nothing yet.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	switch {
	case cfg.Layouts == nil:
		return nil, everrors.New(everrors.ErrCodeInvalidConfig, "orchestrator: layouts are required")
	case cfg.Objects == nil:
		return nil, everrors.New(everrors.ErrCodeInvalidConfig, "orchestrator: object manager is required")
	case cfg.Animator == nil:
		return nil, everrors.New(everrors.ErrCodeInvalidConfig, "orchestrator: animator is required")
	case cfg.Duration < 0:
		return nil, everrors.New(everrors.ErrCodeInvalidConfig, "orchestrator: negative duration %s", cfg.Duration)
	}
	if cfg.StallFactor <= 0 {
		cfg.StallFactor = DefaultStallFactor
	}
	if cfg.Logger == nil {
		cfg.Logger = discardLogger()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	o := &Orchestrator{
		layouts:     cfg.Layouts,
		objects:     cfg.Objects,
		animator:    cfg.Animator,
		logger:      cfg.Logger,
		clock:       cfg.Clock,
		stallFactor: cfg.StallFactor,
		current:     -1,
		duration:    cfg.Duration,
	}
	for i, s := range []State{Phase1Removing, Phase2Moving, Phase3Adding} {
		b := NewBarrier(s.String(), cfg.Logger)
		b.now = cfg.Clock
		o.barriers[i] = b
	}
	return o, nil
}

// State returns the current phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// IsTransitioning reports whether a transition is running.
func (o *Orchestrator) IsTransitioning() bool { return o.State() != Idle }

// Current returns the index of the displayed revision, or -1 before the
// first transition completes.
func (o *Orchestrator) Current() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Duration returns the total transition time.
func (o *Orchestrator) Duration() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.duration
}

// PhaseDuration returns the animation time of a single phase.
func (o *Orchestrator) PhaseDuration() time.Duration { return o.Duration() / 2 }

// SetDuration changes the total transition time for phases started from now
// on. Zero disables animation.
func (o *Orchestrator) SetDuration(d time.Duration) error {
	if d < 0 {
		return everrors.New(everrors.ErrCodeInvalidInput, "duration must not be negative, got %s", d)
	}
	o.mu.Lock()
	o.duration = d
	o.mu.Unlock()
	o.logger.Debug("transition duration changed", "duration", d)
	return nil
}

// LastSummary returns the summary of the most recent completed transition.
func (o *Orchestrator) LastSummary() (TransitionSummary, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return TransitionSummary{}, false
	}
	return *o.last, true
}

// OnTransitionComplete registers fn to run after every completed transition,
// once the orchestrator is idle again. Listeners run in registration order
// and may start the next transition. The returned function unregisters fn.
func (o *Orchestrator) OnTransitionComplete(fn func(TransitionSummary)) (unsubscribe func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextID++
	id := o.nextID
	o.listeners = append(o.listeners, listener{id: id, fn: fn})
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, l := range o.listeners {
			if l.id == id {
				o.listeners = append(o.listeners[:i:i], o.listeners[i+1:]...)
				return
			}
		}
	}
}

// BeginTransition starts animating from prev to next using the element
// classification cls. A nil prev displays next from scratch.
//
// Phases with nothing to animate complete synchronously, so with a zero
// duration the whole transition has completed when BeginTransition returns.
// While a transition is running it returns an [*AlreadyAnimatingError] and
// changes nothing.
func (o *Orchestrator) BeginTransition(prev *Revision, next Revision, cls diff.Classification) error {
	if next.Snapshot == nil {
		return everrors.New(everrors.ErrCodeInvalidInput, "revision %d has no snapshot", next.Index)
	}

	o.mu.Lock()
	if o.state != Idle {
		err := &AlreadyAnimatingError{State: o.state, Requested: next.Index}
		o.mu.Unlock()
		return err
	}
	t := &transition{from: prev, to: next, cls: cls, started: o.clock()}
	o.state = Phase1Removing
	o.active = t
	o.mu.Unlock()

	o.logger.Debug("transition started",
		"from", t.fromIndex(),
		"to", next.Index,
		"added", len(cls.Nodes.Added),
		"removed", len(cls.Nodes.Removed),
		"changed", len(cls.Nodes.Changed))
	observability.Transition().OnTransitionStart(t.fromIndex(), next.Index)

	o.removePhase(t)
	return nil
}

// =============================================================================
// Phases
// =============================================================================

func (o *Orchestrator) enterPhase(s State, count int) {
	o.mu.Lock()
	o.state = s
	o.phaseAt = o.clock()
	o.stalled = false
	o.mu.Unlock()

	o.logger.Debug("phase started", "phase", s, "elements", count)
	observability.Transition().OnPhaseStart(s.String(), count)
}

func (o *Orchestrator) finishPhase(s State) {
	o.mu.Lock()
	d := o.clock().Sub(o.phaseAt)
	o.mu.Unlock()
	observability.Transition().OnPhaseComplete(s.String(), d)
}

func (o *Orchestrator) removePhase(t *transition) {
	var handles []scene.Handle
	for _, id := range t.cls.Nodes.Removed {
		if h, ok := o.objects.Lookup(scene.KindNode, id); ok {
			handles = append(handles, h)
		}
	}
	for _, id := range t.cls.Edges.Removed {
		if h, ok := o.objects.Lookup(scene.KindEdge, id); ok {
			handles = append(handles, h)
		}
	}

	o.enterPhase(Phase1Removing, len(handles))
	d := o.PhaseDuration()
	b := o.barriers[0]
	b.Await(len(handles), func() {
		for _, h := range handles {
			el, _ := o.objects.Element(h)
			o.objects.Destroy(h)
			// Fresh hidden placeholder, as after Precompute.
			o.objects.GetOrCreate(el.Kind, el.ID)
		}
		o.finishPhase(Phase1Removing)
		o.movePhase(t)
	})
	for _, h := range handles {
		o.animator.FadeOut(h, d, b.Signal())
	}
}

type nodeMove struct {
	id     string
	h      scene.Handle
	target layout.Node
}

type edgeMorph struct {
	h        scene.Handle
	source   string
	from, to []layout.Vector3
}

func (o *Orchestrator) movePhase(t *transition) {
	var (
		moves   []nodeMove
		morphs  []edgeMorph
		missing []string
	)
	for _, id := range t.cls.Nodes.Surviving() {
		target, ok := o.layouts.Node(t.to.Index, id)
		if !ok {
			missing = o.missingNode(t, missing, id)
			continue
		}
		existed, h := o.objects.GetOrCreate(scene.KindNode, id)
		if el, _ := o.objects.Element(h); !existed || !el.Visible {
			o.show(h, target.Center, target.Scale)
		}
		moves = append(moves, nodeMove{id: id, h: h, target: target})
	}
	if o.layouts.EdgesDrawn() {
		for _, id := range t.cls.Edges.Surviving() {
			target, ok := o.layouts.Edge(t.to.Index, id)
			if !ok {
				missing = append(missing, id)
				continue
			}
			existed, h := o.objects.GetOrCreate(scene.KindEdge, id)
			el, _ := o.objects.Element(h)
			from := el.Points
			if !existed || !el.Visible {
				o.objects.SetPoints(h, target.Points)
				o.objects.SetOpacity(h, 1)
				o.objects.SetVisible(h, true)
				from = target.Points
			}
			morphs = append(morphs, edgeMorph{h: h, source: target.Source, from: from, to: target.Points})
		}
	}
	o.reportMissing(t, Phase2Moving, missing)

	o.enterPhase(Phase2Moving, len(moves)+len(morphs))
	d := o.PhaseDuration()
	b := o.barriers[1]
	b.Await(len(moves)+len(morphs), func() {
		o.reparent(t.to.Snapshot)
		o.finishPhase(Phase2Moving)
		o.addPhase(t)
	})

	moving := make(map[string]bool, len(moves))
	for _, mv := range moves {
		moving[mv.id] = true
	}
	bySource := make(map[string][]edgeMorph)
	for _, m := range morphs {
		if moving[m.source] {
			bySource[m.source] = append(bySource[m.source], m)
			continue
		}
		o.animator.Morph(m.h, m.from, m.to, d, b.Signal())
	}
	for _, mv := range moves {
		o.objects.SetParent(mv.h, scene.Root)
		var onStart func()
		if group := bySource[mv.id]; len(group) > 0 {
			signals := make([]func(), len(group))
			for i := range group {
				signals[i] = b.Signal()
			}
			onStart = func() {
				for i, m := range group {
					o.animator.Morph(m.h, m.from, m.to, d, signals[i])
				}
			}
		}
		o.animator.MoveTo(mv.h, mv.target.Center, mv.target.Scale, d, onStart, b.Signal())
	}
}

func (o *Orchestrator) addPhase(t *transition) {
	var (
		rises   []nodeMove
		appears []edgeMorph
		missing []string
	)
	for _, id := range t.cls.Nodes.Added {
		target, ok := o.layouts.Node(t.to.Index, id)
		if !ok {
			missing = o.missingNode(t, missing, id)
			continue
		}
		_, h := o.objects.GetOrCreate(scene.KindNode, id)
		sunken := target.Center
		sunken.Y -= target.Scale.Y
		o.objects.SetParent(h, scene.Root)
		o.show(h, sunken, target.Scale)
		rises = append(rises, nodeMove{id: id, h: h, target: target})
	}
	if o.layouts.EdgesDrawn() {
		for _, id := range t.cls.Edges.Added {
			target, ok := o.layouts.Edge(t.to.Index, id)
			if !ok {
				missing = append(missing, id)
				continue
			}
			_, h := o.objects.GetOrCreate(scene.KindEdge, id)
			appears = append(appears, edgeMorph{h: h, source: target.Source, to: target.Points})
		}
	}
	o.reportMissing(t, Phase3Adding, missing)

	o.enterPhase(Phase3Adding, len(rises)+len(appears))
	d := o.PhaseDuration()
	b := o.barriers[2]
	b.Await(len(rises)+len(appears), func() {
		o.finishPhase(Phase3Adding)
		o.complete(t)
	})
	for _, r := range rises {
		o.animator.MoveTo(r.h, r.target.Center, r.target.Scale, d, nil, b.Signal())
	}
	for _, e := range appears {
		done := b.Signal()
		o.objects.SetPoints(e.h, e.to)
		o.objects.SetOpacity(e.h, 1)
		o.objects.SetVisible(e.h, true)
		done()
	}
}

func (o *Orchestrator) complete(t *transition) {
	o.reparent(t.to.Snapshot)
	o.placePlane(t.to.Index)

	summary := TransitionSummary{
		From:     t.fromIndex(),
		To:       t.to.Index,
		Nodes:    t.cls.Nodes,
		Edges:    t.cls.Edges,
		Skipped:  t.skipped,
		Duration: o.clock().Sub(t.started),
	}

	o.mu.Lock()
	o.state = Idle
	o.current = t.to.Index
	o.active = nil
	o.last = &summary
	listeners := make([]listener, len(o.listeners))
	copy(listeners, o.listeners)
	o.mu.Unlock()

	o.logger.Info("transition complete",
		"from", summary.From,
		"to", summary.To,
		"duration", summary.Duration.Round(time.Millisecond))
	observability.Transition().OnTransitionComplete(summary.From, summary.To, summary.Duration)

	for _, l := range listeners {
		l.fn(summary)
	}
}

// show places h and makes it fully visible.
func (o *Orchestrator) show(h scene.Handle, position, scale layout.Vector3) {
	o.objects.Place(h, position, scale)
	o.objects.SetOpacity(h, 1)
	o.objects.SetVisible(h, true)
}

// reparent mirrors the containment of snap onto the live node elements.
func (o *Orchestrator) reparent(snap *graph.Snapshot) {
	for _, n := range snap.Nodes() {
		h, ok := o.objects.Lookup(scene.KindNode, n.ID)
		if !ok {
			continue
		}
		parent := scene.Root
		if n.Parent != "" {
			if ph, ok := o.objects.Lookup(scene.KindNode, n.Parent); ok {
				parent = ph
			}
		}
		o.objects.SetParent(h, parent)
	}
}

// placePlane fits the ground plane under the nodes of revision rev.
func (o *Orchestrator) placePlane(rev int) {
	existed, h := o.objects.GetOrCreate(scene.KindPlane, PlaneID)
	bounds, ok := layout.Bounds(PlaneID, o.layouts.Nodes(rev))
	if !ok {
		o.objects.SetVisible(h, false)
		return
	}
	ground := bounds.Center.Y - bounds.Scale.Y/2
	pos := layout.Vec(bounds.Center.X, ground-planeThickness/2, bounds.Center.Z)
	scale := layout.Vec(bounds.Scale.X+2*planeMargin, planeThickness, bounds.Scale.Z+2*planeMargin)

	el, _ := o.objects.Element(h)
	d := o.PhaseDuration()
	if !existed || !el.Visible || d == 0 {
		o.show(h, pos, scale)
		return
	}
	o.animator.MoveTo(h, pos, scale, d, nil, nil)
}

// missingNode records a node without target layout. Inner nodes are expected
// to lack one under flat layouts and are dropped without a warning.
func (o *Orchestrator) missingNode(t *transition, missing []string, id string) []string {
	if !t.to.Snapshot.IsLeaf(id) {
		o.logger.Debug("inner node has no layout", "id", id, "revision", t.to.Index)
		return missing
	}
	return append(missing, id)
}

func (o *Orchestrator) reportMissing(t *transition, phase State, ids []string) {
	if len(ids) == 0 {
		return
	}
	t.skipped = append(t.skipped, ids...)
	o.logger.Warn("skipping elements without layout",
		"phase", phase,
		"revision", t.to.Index,
		"count", len(ids),
		"ids", preview(ids, 5))
	observability.Transition().OnMissingLayout(phase.String(), len(ids))
}

func preview(ids []string, n int) string {
	if len(ids) <= n {
		return strings.Join(ids, ",")
	}
	return strings.Join(ids[:n], ",") + fmt.Sprintf(",... (+%d)", len(ids)-n)
}

// =============================================================================
// Stall diagnostics
// =============================================================================

// CheckStall reports whether the running phase has waited for its
// animations longer than the stall threshold at time now. The first time
// that happens in a phase it logs a warning and fires the OnStall hook. The
// phase keeps waiting either way.
func (o *Orchestrator) CheckStall(now time.Time) bool {
	o.mu.Lock()
	state, reported := o.state, o.stalled
	o.mu.Unlock()
	if state == Idle || reported {
		return false
	}

	b := o.barriers[state-1]
	waited := b.Waiting(now)
	limit := o.stallLimit()
	if waited <= limit {
		return false
	}

	o.mu.Lock()
	if o.state != state || o.stalled {
		o.mu.Unlock()
		return false
	}
	o.stalled = true
	o.mu.Unlock()

	pending := b.Pending()
	o.logger.Warn("phase stalled",
		"phase", state,
		"pending", pending,
		"waited", waited.Round(time.Millisecond),
		"limit", limit)
	observability.Transition().OnStall(state.String(), pending, waited)
	return true
}

func (o *Orchestrator) stallLimit() time.Duration {
	limit := time.Duration(o.stallFactor * float64(o.PhaseDuration()))
	return max(limit, minStallLimit)
}
