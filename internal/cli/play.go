package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/evocity/pkg/diff"
	"github.com/matzehuels/evocity/pkg/evolution"
	"github.com/matzehuels/evocity/pkg/pipeline"
)

const (
	// frameInterval is how often the player advances the animations.
	frameInterval = 16 * time.Millisecond

	// durationStep is how much +/- change the transition duration.
	durationStep = 250 * time.Millisecond
)

// playCommand creates the play command, an interactive terminal player.
func (c *CLI) playCommand() *cobra.Command {
	var flags optionFlags

	cmd := &cobra.Command{
		Use:   "play [series]",
		Short: "Step through a series interactively",
		Long: `Step through the revisions of a series in the terminal.

Keys:
  n, →      next revision
  p, ←      previous revision
  0-9 ⏎     jump to a revision
  a         toggle auto-play
  r         toggle reverse auto-play
  +, -      lengthen or shorten transitions
  q         quit`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.resolve(cmd, args, c.playLogger())
			if err != nil {
				return err
			}
			return c.runPlay(cmd.Context(), opts)
		},
	}
	flags.register(cmd)

	return cmd
}

// playLogger keeps routine logging out of the way of the player's view.
func (c *CLI) playLogger() *log.Logger {
	if c.Logger.GetLevel() <= log.DebugLevel {
		return c.Logger
	}
	return newLogger(io.Discard, log.InfoLevel)
}

func (c *CLI) runPlay(ctx context.Context, opts pipeline.Options) error {
	runner := c.newRunner(ctx, opts)
	defer runner.Close()

	result, err := runner.Execute(ctx, opts)
	if err != nil {
		return err
	}

	p := tea.NewProgram(newPlayModel(result), tea.WithContext(ctx))
	_, err = p.Run()
	return err
}

// =============================================================================
// playModel - Interactive revision player
// =============================================================================

// frameMsg carries the time of an animation frame.
type frameMsg time.Time

func nextFrame() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return frameMsg(t) })
}

var (
	playKeyStyle    = lipgloss.NewStyle().Foreground(colorCyan)
	playStatusStyle = lipgloss.NewStyle().Foreground(colorYellow)
)

type playModel struct {
	result *pipeline.Result
	last   time.Time
	input  string
	status string
}

func newPlayModel(result *pipeline.Result) playModel {
	return playModel{result: result}
}

func (m playModel) Init() tea.Cmd {
	return nextFrame()
}

func (m playModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case frameMsg:
		now := time.Time(msg)
		if !m.last.IsZero() {
			m.result.Renderer.Tick(now.Sub(m.last))
		}
		m.last = now
		return m, nextFrame()

	case tea.KeyMsg:
		return m.handleKey(msg.String())
	}
	return m, nil
}

func (m playModel) handleKey(key string) (tea.Model, tea.Cmd) {
	rd := m.result.Renderer
	nav := rd.Navigator()

	switch key {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "n", "right", "l":
		m.command(nav, nav.ShowNext())
	case "p", "left", "h":
		m.command(nav, nav.ShowPrevious())
	case "a":
		m.command(nav, nav.ToggleAutoPlay())
	case "r":
		m.command(nav, nav.ToggleAutoPlayReverse())
	case "+", "=":
		m.setDuration(rd.Orchestrator().Duration() + durationStep)
	case "-":
		m.setDuration(max(0, rd.Orchestrator().Duration()-durationStep))
	case "backspace":
		if m.input != "" {
			m.input = m.input[:len(m.input)-1]
		}
	case "enter":
		if m.input == "" {
			break
		}
		index, _ := strconv.Atoi(m.input)
		m.input = ""
		m.command(nav, nav.ShowSpecific(index))
	default:
		if len(key) == 1 && key[0] >= '0' && key[0] <= '9' {
			m.input += key
		}
	}
	return m, nil
}

func (m *playModel) command(nav *evolution.Navigator, accepted bool) {
	if accepted {
		m.status = ""
		return
	}
	m.status = rejectReason(nav)
}

func (m *playModel) setDuration(d time.Duration) {
	if err := m.result.Renderer.SetDuration(d); err != nil {
		m.status = err.Error()
		return
	}
	m.status = ""
}

// rejectReason explains why nav refused the last command.
func rejectReason(nav *evolution.Navigator) string {
	switch nav.LastRejection() {
	case evolution.RejectBusy:
		return "transition in progress"
	case evolution.RejectAutoPlayConflict:
		return "auto-play is running the other way"
	case evolution.RejectNothingShown:
		return "no revision shown yet"
	default:
		return "no revision in that direction"
	}
}

func (m playModel) View() string {
	var b strings.Builder
	rd := m.result.Renderer
	nav := rd.Navigator()

	b.WriteString(StyleTitle.Render("evocity"))
	b.WriteString("\n\n")

	revision := StyleDim.Render("nothing shown")
	if snap, ok := m.result.Series.At(rd.Current()); ok {
		revision = fmt.Sprintf("%s %s",
			StyleNumber.Render(fmt.Sprintf("%d/%d", rd.Current()+1, nav.Count())),
			StyleValue.Render(snap.Name()))
	}
	b.WriteString(keyValueLine("revision", revision))
	b.WriteString(keyValueLine("state", rd.State().String()))
	b.WriteString(keyValueLine("auto-play", autoPlayLabel(nav)))
	b.WriteString(keyValueLine("duration", rd.Orchestrator().Duration().String()))

	if s, ok := rd.LastSummary(); ok {
		b.WriteString(keyValueLine("nodes", summaryLine(len(s.Nodes.Added), len(s.Nodes.Removed), len(s.Nodes.Changed))))
		if m.result.Layouts.EdgesDrawn() {
			b.WriteString(keyValueLine("edges", summaryLine(len(s.Edges.Added), len(s.Edges.Removed), len(s.Edges.Changed))))
		}
	}

	b.WriteString("\n")
	if m.input != "" {
		b.WriteString(playKeyStyle.Render("go to " + m.input + "_"))
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(playStatusStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(StyleDim.Render("n/→ next  p/← previous  0-9⏎ jump  a auto  r reverse  +/- duration  q quit"))
	b.WriteString("\n")
	return b.String()
}

func autoPlayLabel(nav *evolution.Navigator) string {
	switch {
	case nav.IsAutoPlay():
		return StyleSuccess.Render("forward")
	case nav.IsAutoPlayReverse():
		return StyleSuccess.Render("reverse")
	default:
		return StyleDim.Render("off")
	}
}

func summaryLine(added, removed, changed int) string {
	return fmt.Sprintf("%s added · %s removed · %s changed",
		classStyles[diff.ClassAdded].Render(strconv.Itoa(added)),
		classStyles[diff.ClassRemoved].Render(strconv.Itoa(removed)),
		classStyles[diff.ClassChanged].Render(strconv.Itoa(changed)))
}
