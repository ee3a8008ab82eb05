package scene

import (
	"slices"
	"time"

	"github.com/matzehuels/evocity/pkg/layout"
)

// Animator animates elements of an [ObjectManager].
//
// Every onComplete passed to an Animator is called exactly once, also when
// the duration is zero or the animation is fast-forwarded. onStart, if not
// nil, is called once right before the first frame.
type Animator interface {
	MoveTo(h Handle, position, scale layout.Vector3, d time.Duration, onStart, onComplete func())
	Morph(h Handle, from, to []layout.Vector3, d time.Duration, onComplete func())
	FadeOut(h Handle, d time.Duration, onComplete func())
}

// Easing maps linear progress in [0, 1] to eased progress.
type Easing func(t float64) float64

// Linear is the identity easing.
func Linear(t float64) float64 { return t }

// SmoothStep eases in and out.
func SmoothStep(t float64) float64 { return t * t * (3 - 2*t) }

type tween struct {
	h          Handle
	d          time.Duration
	elapsed    time.Duration
	started    bool
	apply      func(p float64)
	onStart    func()
	onComplete func()
}

// Tweener is a tick-driven [Animator]. Zero-duration animations apply their
// final state and call their callbacks before returning.
type Tweener struct {
	om     ObjectManager
	easing Easing
	active []*tween
}

// NewTweener returns a tweener that writes element state into om.
func NewTweener(om ObjectManager) *Tweener {
	return &Tweener{om: om, easing: SmoothStep}
}

// SetEasing replaces the easing function. nil restores [SmoothStep].
func (t *Tweener) SetEasing(e Easing) {
	if e == nil {
		e = SmoothStep
	}
	t.easing = e
}

// Pending returns the number of running animations.
func (t *Tweener) Pending() int { return len(t.active) }

func (t *Tweener) MoveTo(h Handle, position, scale layout.Vector3, d time.Duration, onStart, onComplete func()) {
	e, _ := t.om.Element(h)
	fromPos, fromScale := e.Position, e.Scale
	t.start(&tween{
		h: h,
		d: d,
		apply: func(p float64) {
			t.om.Place(h, fromPos.Lerp(position, p), fromScale.Lerp(scale, p))
		},
		onStart:    onStart,
		onComplete: onComplete,
	})
}

func (t *Tweener) Morph(h Handle, from, to []layout.Vector3, d time.Duration, onComplete func()) {
	n := max(len(from), len(to))
	a, b := resample(from, to, n), resample(to, from, n)
	t.start(&tween{
		h: h,
		d: d,
		apply: func(p float64) {
			if p >= 1 {
				t.om.SetPoints(h, to)
				return
			}
			pts := make([]layout.Vector3, n)
			for i := range pts {
				pts[i] = a[i].Lerp(b[i], p)
			}
			t.om.SetPoints(h, pts)
		},
		onComplete: onComplete,
	})
}

func (t *Tweener) FadeOut(h Handle, d time.Duration, onComplete func()) {
	t.start(&tween{
		h: h,
		d: d,
		apply: func(p float64) {
			t.om.SetOpacity(h, 1-p)
			if p >= 1 {
				t.om.SetVisible(h, false)
			}
		},
		onComplete: onComplete,
	})
}

func (t *Tweener) start(tw *tween) {
	if tw.d > 0 {
		t.active = append(t.active, tw)
		return
	}
	tw.started = true
	call(tw.onStart)
	tw.apply(1)
	call(tw.onComplete)
}

// Tick advances every running animation by dt. Finished animations are
// removed before their onComplete runs, so callbacks may start new ones.
// Animations started during Tick first advance on the next Tick.
func (t *Tweener) Tick(dt time.Duration) {
	running := slices.Clone(t.active)
	var done []*tween
	for _, tw := range running {
		if !tw.started {
			tw.started = true
			call(tw.onStart)
		}
		tw.elapsed += dt
		p := 1.0
		if tw.elapsed < tw.d {
			p = t.easing(float64(tw.elapsed) / float64(tw.d))
		}
		tw.apply(p)
		if p >= 1 {
			done = append(done, tw)
		}
	}
	if len(done) == 0 {
		return
	}
	t.active = slices.DeleteFunc(t.active, func(tw *tween) bool { return slices.Contains(done, tw) })
	for _, tw := range done {
		call(tw.onComplete)
	}
}

// Finish fast-forwards every running animation, including animations that
// completion callbacks start along the way.
func (t *Tweener) Finish() {
	for len(t.active) > 0 {
		var longest time.Duration
		for _, tw := range t.active {
			longest = max(longest, tw.d-tw.elapsed)
		}
		t.Tick(longest)
	}
}

func call(f func()) {
	if f != nil {
		f()
	}
}

// resample returns pts stretched to n points by linear interpolation. An
// empty pts borrows the shape of fallback.
func resample(pts, fallback []layout.Vector3, n int) []layout.Vector3 {
	if len(pts) == 0 {
		pts = fallback
	}
	out := make([]layout.Vector3, n)
	if len(pts) == 0 {
		return out
	}
	if len(pts) == n {
		copy(out, pts)
		return out
	}
	for i := range out {
		if n == 1 {
			out[i] = pts[0]
			continue
		}
		f := float64(i) * float64(len(pts)-1) / float64(n-1)
		lo := int(f)
		if lo >= len(pts)-1 {
			out[i] = pts[len(pts)-1]
			continue
		}
		out[i] = pts[lo].Lerp(pts[lo+1], f-float64(lo))
	}
	return out
}
