// Package evolution animates a series of graph revisions as a software city.
//
// Moving from one revision to another is a transition of three phases:
//
//  1. Removing: elements absent from the target revision fade out and are
//     destroyed.
//  2. Moving: surviving nodes move to their new layout and surviving edges
//     morph to their new spline. Each edge starts morphing when the move of
//     its source node starts.
//  3. Adding: new nodes rise from below the ground, new edges appear.
//
// Each phase waits on a [Barrier] for all of its animations before the next
// phase starts. A phase with nothing to animate completes synchronously.
//
// # Components
//
//   - [LayoutCache] lays out every revision up front.
//   - [Orchestrator] runs one transition at a time and refuses to start a
//     second one while busy.
//   - [Navigator] turns next/previous/jump and auto-play commands into
//     transitions.
//   - [Renderer] wires the three together over a scene registry and a
//     tick-driven tweener.
//
// # Usage
//
//	reg := scene.NewRegistry()
//	lc, _ := evolution.NewLayoutCache(evolution.LayoutCacheConfig{
//	    NodeLayout: &layout.Grid{},
//	    Objects:    reg,
//	})
//	if err := lc.Precompute(ctx, series); err != nil {
//	    return err
//	}
//	r, _ := evolution.NewRenderer(evolution.RendererConfig{
//	    Series:   series,
//	    Layouts:  lc,
//	    Objects:  reg,
//	    Duration: time.Second,
//	})
//	r.Navigator().ShowSpecific(0)
//	for r.Orchestrator().IsTransitioning() {
//	    r.Tick(16 * time.Millisecond)
//	}
package evolution

import (
	"io"

	"github.com/charmbracelet/log"
)

func discardLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}
