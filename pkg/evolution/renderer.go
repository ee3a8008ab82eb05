package evolution

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/evocity/pkg/diff"
	everrors "github.com/matzehuels/evocity/pkg/errors"
	"github.com/matzehuels/evocity/pkg/graph"
	"github.com/matzehuels/evocity/pkg/scene"
)

// RendererConfig configures a [Renderer].
type RendererConfig struct {
	Series  *graph.Series
	Layouts Layouts

	// Objects must be the object manager the layouts were precomputed into.
	Objects *scene.Registry

	Diff             diff.ElementDiff
	Duration         time.Duration
	AutoPlayInterval time.Duration
	StallFactor      float64
	Easing           scene.Easing
	Logger           *log.Logger
	Clock            func() time.Time
}

// Renderer drives a series through an orchestrator and navigator on top of
// a tick-driven tweener. It is not safe for concurrent use; callers on
// several goroutines must serialise access.
type Renderer struct {
	series  *graph.Series
	objects *scene.Registry
	tweener *scene.Tweener
	orch    *Orchestrator
	nav     *Navigator
	clock   func() time.Time

	flush bool
}

// NewRenderer assembles the renderer. Nothing is displayed until the first
// navigation command.
func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	if cfg.Objects == nil {
		return nil, everrors.New(everrors.ErrCodeInvalidConfig, "renderer: object registry is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	tw := scene.NewTweener(cfg.Objects)
	tw.SetEasing(cfg.Easing)

	orch, err := NewOrchestrator(OrchestratorConfig{
		Layouts:     cfg.Layouts,
		Objects:     cfg.Objects,
		Animator:    tw,
		Duration:    cfg.Duration,
		StallFactor: cfg.StallFactor,
		Logger:      cfg.Logger,
		Clock:       cfg.Clock,
	})
	if err != nil {
		return nil, err
	}
	nav, err := NewNavigator(NavigatorConfig{
		Series:           cfg.Series,
		Orchestrator:     orch,
		Diff:             cfg.Diff,
		AutoPlayInterval: cfg.AutoPlayInterval,
		Logger:           cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &Renderer{
		series:  cfg.Series,
		objects: cfg.Objects,
		tweener: tw,
		orch:    orch,
		nav:     nav,
		clock:   cfg.Clock,
	}, nil
}

func (r *Renderer) Series() *graph.Series { return r.series }
func (r *Renderer) Orchestrator() *Orchestrator { return r.orch }
func (r *Renderer) Navigator() *Navigator { return r.nav }
func (r *Renderer) Elements() []scene.Element { return r.objects.Elements() }
func (r *Renderer) Objects() scene.ObjectManager { return r.objects }
func (r *Renderer) PendingAnimations() int { return r.tweener.Pending() }
func (r *Renderer) State() State { return r.orch.State() }
func (r *Renderer) Current() int { return r.orch.Current() }
func (r *Renderer) LastSummary() (TransitionSummary, bool) { return r.orch.LastSummary() }

// SetDuration changes the transition duration. Setting it to zero also
// finishes the running animations on the next tick.
func (r *Renderer) SetDuration(d time.Duration) error {
	if err := r.nav.SetDuration(d); err != nil {
		return err
	}
	if d == 0 {
		r.flush = true
	}
	return nil
}

// Tick advances animations, the auto-play pause and the stall check by dt.
func (r *Renderer) Tick(dt time.Duration) {
	if r.flush {
		r.flush = false
		r.tweener.Finish()
	} else {
		r.tweener.Tick(dt)
	}
	r.nav.Tick(dt)
	r.orch.CheckStall(r.clock())
}

// Settle fast-forwards until no transition runs and no animation is left.
// Auto-play steps started along the way are played out as well.
func (r *Renderer) Settle() {
	for r.orch.IsTransitioning() || r.tweener.Pending() > 0 {
		r.tweener.Finish()
		if r.tweener.Pending() == 0 && r.orch.IsTransitioning() {
			// An animator callback never fired; nothing more to fast-forward.
			return
		}
	}
}
