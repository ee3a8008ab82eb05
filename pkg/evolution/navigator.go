package evolution

import (
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/evocity/pkg/diff"
	everrors "github.com/matzehuels/evocity/pkg/errors"
	"github.com/matzehuels/evocity/pkg/graph"
	"github.com/matzehuels/evocity/pkg/observability"
)

// Rejection reasons passed to the OnTransitionRejected hook.
const (
	RejectBusy             = "busy"
	RejectOutOfRange       = "out_of_range"
	RejectAutoPlayConflict = "autoplay_conflict"
	RejectNothingShown     = "nothing_shown"
)

// RevisionEvent is delivered to [Navigator.OnRevisionChanged] listeners
// after a transition completes or the transition duration changes.
type RevisionEvent struct {
	Previous        int                `json:"previous"`
	Current         int                `json:"current"`
	Count           int                `json:"count"`
	AutoPlay        bool               `json:"autoplay"`
	AutoPlayReverse bool               `json:"autoplay_reverse"`
	Duration        time.Duration      `json:"duration"`
	Summary         *TransitionSummary `json:"summary,omitempty"`
}

// NavigatorConfig configures a [Navigator].
type NavigatorConfig struct {
	Series       *graph.Series
	Orchestrator *Orchestrator

	// Diff decides which surviving elements count as changed. Nil treats
	// all of them as equal.
	Diff diff.ElementDiff

	// AutoPlayInterval is the pause between auto-play steps. Zero steps as
	// soon as the previous transition completes.
	AutoPlayInterval time.Duration

	Logger *log.Logger
}

type direction int

const (
	stopped direction = iota
	forward
	backward
)

// Navigator turns navigation commands into transitions over a series.
// Commands refused because of a running transition, an index out of range
// or a conflicting auto-play return false and change nothing.
type Navigator struct {
	series   *graph.Series
	orch     *Orchestrator
	diff     diff.ElementDiff
	interval time.Duration
	logger   *log.Logger

	mu        sync.Mutex
	autoplay  direction
	wait      time.Duration // remaining pause before the next auto-play step
	waiting   bool
	rejected  string // reason of the last refused command
	listeners []revisionListener
	nextID    int
}

type revisionListener struct {
	id int
	fn func(RevisionEvent)
}

// NewNavigator validates cfg and subscribes the navigator to the
// orchestrator's transition completions.
func NewNavigator(cfg NavigatorConfig) (*Navigator, error) {
	if cfg.Series == nil || cfg.Series.Len() == 0 {
		return nil, everrors.New(everrors.ErrCodeInvalidSeries, "navigator: series is empty")
	}
	if cfg.Orchestrator == nil {
		return nil, everrors.New(everrors.ErrCodeInvalidConfig, "navigator: orchestrator is required")
	}
	if cfg.AutoPlayInterval < 0 {
		return nil, everrors.New(everrors.ErrCodeInvalidConfig, "navigator: negative auto-play interval %s", cfg.AutoPlayInterval)
	}
	if cfg.Diff == nil {
		cfg.Diff = diff.Never
	}
	if cfg.Logger == nil {
		cfg.Logger = discardLogger()
	}
	n := &Navigator{
		series:   cfg.Series,
		orch:     cfg.Orchestrator,
		diff:     cfg.Diff,
		interval: cfg.AutoPlayInterval,
		logger:   cfg.Logger,
	}
	cfg.Orchestrator.OnTransitionComplete(n.transitionComplete)
	return n, nil
}

// Count returns the number of revisions.
func (n *Navigator) Count() int { return n.series.Len() }

// Current returns the displayed revision index, or -1.
func (n *Navigator) Current() int { return n.orch.Current() }

// IsTransitioning reports whether a transition is running.
func (n *Navigator) IsTransitioning() bool { return n.orch.IsTransitioning() }

// IsAutoPlay reports whether forward auto-play is on.
func (n *Navigator) IsAutoPlay() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.autoplay == forward
}

// IsAutoPlayReverse reports whether backward auto-play is on.
func (n *Navigator) IsAutoPlayReverse() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.autoplay == backward
}

// OnRevisionChanged registers fn for revision events. The returned function
// unregisters it.
func (n *Navigator) OnRevisionChanged(fn func(RevisionEvent)) (unsubscribe func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	id := n.nextID
	n.listeners = append(n.listeners, revisionListener{id: id, fn: fn})
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, l := range n.listeners {
			if l.id == id {
				n.listeners = append(n.listeners[:i:i], n.listeners[i+1:]...)
				return
			}
		}
	}
}

// =============================================================================
// Manual navigation
// =============================================================================

// ShowNext transitions to the revision after the displayed one. It is
// refused while backward auto-play runs.
func (n *Navigator) ShowNext() bool { return n.step(forward) }

// ShowPrevious transitions to the revision before the displayed one. It is
// refused while forward auto-play runs.
func (n *Navigator) ShowPrevious() bool { return n.step(backward) }

// ShowSpecific transitions from the displayed revision straight to revision
// index. With nothing displayed yet, index is shown from scratch. A target
// that lies against the running auto-play direction is refused; any other
// accepted command stops auto-play.
func (n *Navigator) ShowSpecific(index int) bool { return n.manual(index) }

// LastRejection returns the Reject* reason of the most recently refused
// command, or "" if none was refused yet.
func (n *Navigator) LastRejection() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rejected
}

// SetDuration changes the total transition time and notifies revision
// listeners.
func (n *Navigator) SetDuration(d time.Duration) error {
	if err := n.orch.SetDuration(d); err != nil {
		return err
	}
	cur := n.orch.Current()
	n.notify(RevisionEvent{Previous: cur, Current: cur})
	return nil
}

func (n *Navigator) step(dir direction) bool {
	cur := n.orch.Current()
	if cur < 0 {
		n.reject(RejectNothingShown, "no revision displayed yet", "direction", dir)
		return false
	}
	target := cur + 1
	if dir == backward {
		target = cur - 1
	}
	return n.manual(target)
}

// manual runs a user command. Rejections leave auto-play as it was.
func (n *Navigator) manual(index int) bool {
	if !n.admit(index) {
		return false
	}
	if dir, h := n.autoPlayDirection(), n.heading(index); dir != stopped && h != stopped && h != dir {
		n.reject(RejectAutoPlayConflict, "auto-play in the opposite direction is active", "index", index, "autoplay", dir)
		return false
	}
	n.stopAutoPlay()
	return n.begin(index)
}

// heading is the direction a move to index takes from the displayed
// revision, or stopped when there is no such direction.
func (n *Navigator) heading(index int) direction {
	cur := n.orch.Current()
	switch {
	case cur < 0 || index == cur:
		return stopped
	case index > cur:
		return forward
	default:
		return backward
	}
}

func (n *Navigator) autoPlayDirection() direction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.autoplay
}

func (n *Navigator) show(index int) bool { return n.admit(index) && n.begin(index) }

// admit reports whether index can be shown now, logging why not.
func (n *Navigator) admit(index int) bool {
	if err := everrors.ValidateRevisionIndex(index, n.series.Len()); err != nil {
		n.reject(RejectOutOfRange, err.Error(), "index", index)
		return false
	}
	if n.orch.IsTransitioning() {
		n.reject(RejectBusy, "transition in progress", "index", index)
		return false
	}
	return true
}

func (n *Navigator) begin(index int) bool {
	next, _ := n.series.At(index)
	var prev *Revision
	var prevSnap *graph.Snapshot
	if cur := n.orch.Current(); cur >= 0 {
		prevSnap, _ = n.series.At(cur)
		prev = &Revision{Index: cur, Snapshot: prevSnap}
	}
	cls := diff.Compute(prevSnap, next, n.diff)

	err := n.orch.BeginTransition(prev, Revision{Index: index, Snapshot: next}, cls)
	if errors.Is(err, ErrAlreadyAnimating) {
		n.reject(RejectBusy, err.Error(), "index", index)
		return false
	}
	if err != nil {
		n.logger.Error("transition failed", "index", index, "error", err)
		return false
	}
	return true
}

func (n *Navigator) reject(reason, msg string, keyvals ...any) {
	n.mu.Lock()
	n.rejected = reason
	n.mu.Unlock()
	n.logger.Warn("navigation rejected", append([]any{"reason", reason, "detail", msg}, keyvals...)...)
	observability.Transition().OnTransitionRejected(reason)
}

// =============================================================================
// Auto-play
// =============================================================================

// SetAutoPlay turns forward auto-play on or off. Turning it on fails while
// backward auto-play is active. When idle, the first step is taken at once.
func (n *Navigator) SetAutoPlay(on bool) bool { return n.setAutoPlay(forward, on) }

// SetAutoPlayReverse turns backward auto-play on or off. Turning it on fails
// while forward auto-play is active.
func (n *Navigator) SetAutoPlayReverse(on bool) bool { return n.setAutoPlay(backward, on) }

// ToggleAutoPlay flips forward auto-play.
func (n *Navigator) ToggleAutoPlay() bool { return n.SetAutoPlay(!n.IsAutoPlay()) }

// ToggleAutoPlayReverse flips backward auto-play.
func (n *Navigator) ToggleAutoPlayReverse() bool { return n.SetAutoPlayReverse(!n.IsAutoPlayReverse()) }

func (n *Navigator) setAutoPlay(dir direction, on bool) bool {
	n.mu.Lock()
	if !on {
		if n.autoplay == dir {
			n.autoplay = stopped
			n.waiting = false
		}
		n.mu.Unlock()
		n.logger.Debug("auto-play off", "direction", dir)
		return true
	}
	if n.autoplay != stopped && n.autoplay != dir {
		n.mu.Unlock()
		n.reject(RejectAutoPlayConflict, "auto-play in the opposite direction is active", "direction", dir)
		return false
	}
	if n.autoplay == dir {
		n.mu.Unlock()
		return true
	}
	n.autoplay = dir
	n.waiting = false
	n.mu.Unlock()
	n.logger.Debug("auto-play on", "direction", dir)

	if !n.orch.IsTransitioning() {
		n.autoStep()
	}
	return true
}

func (n *Navigator) stopAutoPlay() {
	n.mu.Lock()
	was := n.autoplay
	n.autoplay = stopped
	n.waiting = false
	n.mu.Unlock()
	if was != stopped {
		n.logger.Debug("auto-play interrupted by manual navigation")
	}
}

// autoStep takes one auto-play step, switching auto-play off at the end of
// the series.
func (n *Navigator) autoStep() {
	n.mu.Lock()
	dir := n.autoplay
	n.waiting = false
	n.mu.Unlock()
	if dir == stopped {
		return
	}

	cur := n.orch.Current()
	target := 0
	switch {
	case cur < 0 && dir == backward:
		target = n.series.Len() - 1
	case cur >= 0 && dir == forward:
		target = cur + 1
	case cur >= 0:
		target = cur - 1
	}
	if target < 0 || target >= n.series.Len() {
		n.mu.Lock()
		n.autoplay = stopped
		n.mu.Unlock()
		n.logger.Info("auto-play reached the end of the series", "revision", cur)
		n.notify(RevisionEvent{Previous: cur, Current: cur})
		return
	}
	n.show(target)
}

// Tick advances the auto-play pause by dt and takes the pending step once
// it has run down.
func (n *Navigator) Tick(dt time.Duration) {
	n.mu.Lock()
	if !n.waiting {
		n.mu.Unlock()
		return
	}
	n.wait -= dt
	due := n.wait <= 0
	n.mu.Unlock()
	if due {
		n.autoStep()
	}
}

func (n *Navigator) transitionComplete(s TransitionSummary) {
	n.notify(RevisionEvent{Previous: s.From, Current: s.To, Summary: &s})

	n.mu.Lock()
	if n.autoplay == stopped {
		n.mu.Unlock()
		return
	}
	if n.interval > 0 {
		n.waiting = true
		n.wait = n.interval
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()
	n.autoStep()
}

func (n *Navigator) notify(ev RevisionEvent) {
	n.mu.Lock()
	ev.Count = n.series.Len()
	ev.AutoPlay = n.autoplay == forward
	ev.AutoPlayReverse = n.autoplay == backward
	listeners := make([]revisionListener, len(n.listeners))
	copy(listeners, n.listeners)
	n.mu.Unlock()
	ev.Duration = n.orch.Duration()

	for _, l := range listeners {
		l.fn(ev)
	}
}

func (d direction) String() string {
	switch d {
	case forward:
		return "forward"
	case backward:
		return "backward"
	default:
		return "stopped"
	}
}
