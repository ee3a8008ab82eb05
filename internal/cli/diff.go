package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/evocity/pkg/diff"
	everrors "github.com/matzehuels/evocity/pkg/errors"
	"github.com/matzehuels/evocity/pkg/pipeline"
)

// diffCommand creates the diff command printing how two revisions differ.
func (c *CLI) diffCommand() *cobra.Command {
	var (
		opts      pipeline.Options
		tracked   string
		showEqual bool
	)

	cmd := &cobra.Command{
		Use:   "diff <series> <from> <to>",
		Short: "Show which elements two revisions add, remove and change",
		Long: `Show which nodes and edges two revisions of a series add, remove and change.

Revisions are addressed by index, starting at 0. A "from" of -1 compares
against an empty revision. Nodes count as changed when one of the tracked
numeric attributes differs.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := strconv.Atoi(args[1])
			if err != nil {
				return everrors.New(everrors.ErrCodeInvalidInput, "invalid revision %q", args[1])
			}
			to, err := strconv.Atoi(args[2])
			if err != nil {
				return everrors.New(everrors.ErrCodeInvalidInput, "invalid revision %q", args[2])
			}
			opts.Source = args[0]
			opts.Logger = c.Logger
			if tracked != "" {
				opts.TrackedAttributes = splitList(tracked)
			}

			series, err := pipeline.NewRunner(nil, nil, c.Logger).Load(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if err := everrors.ValidateRevisionIndex(to, series.Len()); err != nil {
				return err
			}
			if from != -1 {
				if err := everrors.ValidateRevisionIndex(from, series.Len()); err != nil {
					return err
				}
			}

			prev, _ := series.At(from)
			next, _ := series.At(to)
			attrs := pipeline.TrackedAttributes(series, opts)
			cls := diff.Compute(prev, next, diff.NewNumericAttributeDiff(attrs...))

			fromName := "(empty)"
			if prev != nil {
				fromName = prev.Name()
			}
			fmt.Fprintln(cmd.OutOrStdout(), StyleTitle.Render(fmt.Sprintf("%s %s %s", fromName, iconArrow, next.Name())))
			fmt.Fprintln(cmd.OutOrStdout(), renderDiff(cls, showEqual))
			fmt.Fprintln(cmd.OutOrStdout(), summarizeDiff(cls))
			if len(attrs) > 0 {
				printDetail("tracked: %s", strings.Join(attrs, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tracked, "track", "", "comma-separated attributes whose changes mark a node as changed (default: all numeric)")
	cmd.Flags().BoolVar(&showEqual, "all", false, "also list unchanged elements")
	cmd.Flags().StringVar(&opts.MongoDatabase, "mongo-db", "", "MongoDB database for mongodb:// sources")
	cmd.Flags().StringVar(&opts.MongoCollection, "mongo-collection", "", "MongoDB collection for mongodb:// sources")

	return cmd
}

// renderDiff lays the classification out as a table of (kind, class, id).
func renderDiff(cls diff.Classification, showEqual bool) string {
	var rows [][]string
	add := func(kind string, p diff.Partition) {
		sets := []struct {
			class diff.Class
			ids   []string
		}{
			{diff.ClassRemoved, p.Removed},
			{diff.ClassChanged, p.Changed},
			{diff.ClassAdded, p.Added},
			{diff.ClassEqual, p.Equal},
		}
		for _, set := range sets {
			if set.class == diff.ClassEqual && !showEqual {
				continue
			}
			for _, id := range set.ids {
				rows = append(rows, []string{kind, string(set.class), id})
			}
		}
	}
	add("node", cls.Nodes)
	add("edge", cls.Edges)

	if len(rows) == 0 {
		return StyleDim.Render("  no differences")
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Kind", "Class", "ID").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle.Padding(0, 1)
			}
			base := lipgloss.NewStyle().Padding(0, 1)
			if col == 1 {
				return classStyles[diff.Class(rows[row][1])].Padding(0, 1)
			}
			return base
		})
	return t.Render()
}

// summarizeDiff returns a one-line count of each class.
func summarizeDiff(cls diff.Classification) string {
	part := func(kind string, p diff.Partition) string {
		return fmt.Sprintf("%s: %s added · %s removed · %s changed · %d equal",
			kind,
			classStyles[diff.ClassAdded].Render(strconv.Itoa(len(p.Added))),
			classStyles[diff.ClassRemoved].Render(strconv.Itoa(len(p.Removed))),
			classStyles[diff.ClassChanged].Render(strconv.Itoa(len(p.Changed))),
			len(p.Equal))
	}
	return "  " + part("nodes", cls.Nodes) + "\n  " + part("edges", cls.Edges)
}
