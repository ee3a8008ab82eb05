package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/evocity/pkg/pipeline"
	"github.com/matzehuels/evocity/pkg/scene"
)

// layoutCommand creates the layout command, which lays out every revision of
// a series and persists the result so later play and serve runs start fast.
func (c *CLI) layoutCommand() *cobra.Command {
	var flags optionFlags

	cmd := &cobra.Command{
		Use:   "layout [series]",
		Short: "Precompute and store the layouts of every revision",
		Long: `Precompute and store the layouts of every revision in a series.

The series is a directory of snapshot files (JSON or YAML, one per revision,
ordered by file name) or a mongodb:// URI. Layouts are written to the layout
store selected by --cache so that 'play' and 'serve' can reuse them.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.resolve(cmd, args, c.Logger)
			if err != nil {
				return err
			}
			return c.runLayout(cmd.Context(), opts)
		},
	}
	flags.register(cmd)

	return cmd
}

func (c *CLI) runLayout(ctx context.Context, opts pipeline.Options) error {
	runner := c.newRunner(ctx, opts)
	defer runner.Close()

	sp := newSpinner(ctx, os.Stderr, fmt.Sprintf("Loading %s...", opts.Location()))
	sp.Start()
	loadStart := time.Now()
	series, err := runner.Load(ctx, opts)
	if err != nil {
		sp.StopWithError(err.Error())
		return err
	}
	loadTime := time.Since(loadStart)
	sp.Stop()

	sp = newSpinner(ctx, os.Stderr, fmt.Sprintf("Laying out %d revisions...", series.Len()))
	sp.Start()
	layoutStart := time.Now()
	lc, err := runner.Precompute(ctx, series, scene.NewRegistry(), opts)
	if err != nil {
		sp.StopWithError(err.Error())
		return err
	}
	layoutTime := time.Since(layoutStart)
	sp.Stop()

	maxNodes, maxEdges := 0, 0
	for _, snap := range series.Snapshots() {
		maxNodes = max(maxNodes, snap.NodeCount())
		maxEdges = max(maxEdges, snap.EdgeCount())
	}

	printSuccess("Laid out %s", StyleHighlight.Render(opts.Location()))
	printKeyValue("revisions", fmt.Sprint(lc.Len()))
	printKeyValue("max nodes", fmt.Sprint(maxNodes))
	if lc.EdgesDrawn() {
		printKeyValue("max edges", fmt.Sprint(maxEdges))
	}
	printKeyValue("layout", opts.Layout)
	printKeyValue("store", opts.Cache)
	printKeyValue("load", loadTime.Round(time.Millisecond).String())
	printKeyValue("layout time", layoutTime.Round(time.Millisecond).String())
	return nil
}
