package evolution_test

import (
	"context"
	"fmt"

	"github.com/matzehuels/evocity/pkg/diff"
	"github.com/matzehuels/evocity/pkg/evolution"
	"github.com/matzehuels/evocity/pkg/graph"
	"github.com/matzehuels/evocity/pkg/layout"
	"github.com/matzehuels/evocity/pkg/scene"
)

func ExampleNavigator() {
	series, _ := graph.NewSeries(
		graph.MustSnapshot("v1", []graph.Node{
			{ID: "main.go", Attributes: graph.Attributes{"loc": 120}},
		}, nil),
		graph.MustSnapshot("v2", []graph.Node{
			{ID: "main.go", Attributes: graph.Attributes{"loc": 180}},
			{ID: "util.go", Attributes: graph.Attributes{"loc": 40}},
		}, nil),
	)

	reg := scene.NewRegistry()
	lc, _ := evolution.NewLayoutCache(evolution.LayoutCacheConfig{
		NodeLayout: &layout.Grid{},
		Objects:    reg,
	})
	if err := lc.Precompute(context.Background(), series); err != nil {
		fmt.Println(err)
		return
	}

	// A zero duration completes every transition inside the call.
	r, _ := evolution.NewRenderer(evolution.RendererConfig{
		Series:  series,
		Layouts: lc,
		Objects: reg,
		Diff:    diff.NewNumericAttributeDiff("loc"),
	})
	nav := r.Navigator()
	nav.OnRevisionChanged(func(ev evolution.RevisionEvent) {
		s := ev.Summary
		fmt.Printf("%d -> %d: added %v, changed %v\n", ev.Previous, ev.Current, s.Nodes.Added, s.Nodes.Changed)
	})

	nav.ShowSpecific(0)
	nav.ShowNext()
	fmt.Println("next accepted:", nav.ShowNext())
	// Output:
	// -1 -> 0: added [main.go], changed []
	// 0 -> 1: added [util.go], changed [main.go]
	// next accepted: false
}
