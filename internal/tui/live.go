// Package tui renders a live dashboard for a run in flight, in place of the
// headless progress line.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"wsramp/internal/runner"
	"wsramp/internal/tui/styles"
)

// doneMsg delivers the finished run into the model.
type doneMsg struct {
	rep *runner.RunReport
	err error
}

type Model struct {
	cfg  runner.Config
	snap runner.Snapshot
	prog progress.Model

	plannedBatches int
	quitting       bool
	cancel         context.CancelFunc

	rep *runner.RunReport
	err error

	width int
}

func NewModel(cfg runner.Config, cancel context.CancelFunc) Model {
	planned := (cfg.MaxConnections-cfg.StartConnections)/cfg.Increment + 1
	return Model{
		cfg:            cfg,
		prog:           progress.New(progress.WithDefaultGradient()),
		plannedBatches: planned,
		cancel:         cancel,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case runner.Snapshot:
		m.snap = msg
		pct := float64(msg.Batches) / float64(m.plannedBatches)
		if pct > 1.0 {
			pct = 1.0
		}
		return m, m.prog.SetPercent(pct)

	case doneMsg:
		m.rep = msg.rep
		m.err = msg.err
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			// Cooperative stop; the final doneMsg still arrives with the
			// partial report.
			m.quitting = true
			m.cancel()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.prog.Width = msg.Width - 8
		return m, nil

	case progress.FrameMsg:
		prog, cmd := m.prog.Update(msg)
		m.prog = prog.(progress.Model)
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	s := strings.Builder{}

	s.WriteString(styles.Title.Render("wsramp — " + m.cfg.URL()))
	s.WriteString("\n\n")

	snap := m.snap
	col1 := fmt.Sprintf("BATCH: %d/%d\nTARGET: %d", snap.Batch, m.plannedBatches, snap.Target)
	col2 := fmt.Sprintf("OK: %d\nFAIL: %d", snap.Successful, snap.Failed)
	col3 := fmt.Sprintf("P90: %.1f ms\nP99: %.1f ms", snap.P90ResponseMs, snap.P99ResponseMs)

	failStyle := styles.Active
	if snap.Failed > 0 {
		failStyle = styles.Error
	}

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(col1),
		styles.Box.Render(failStyle.Render(col2)),
		styles.Box.Render(col3),
	))
	s.WriteString("\n\n")

	phase := string(snap.Phase)
	if m.quitting {
		phase = "stopping..."
	}
	s.WriteString(fmt.Sprintf(" %s  %s elapsed",
		styles.Active.Render(phase),
		snap.Elapsed.Round(time.Second)))
	if snap.LastBatch != nil {
		lb := snap.LastBatch
		mark := styles.Success.Render("stable")
		if !lb.Stable(m.cfg.StabilityThreshold) {
			mark = styles.Error.Render("unstable")
		}
		s.WriteString(fmt.Sprintf("\n last batch: %d conns, %.1f%% success (%s)",
			lb.TotalConnections, lb.SuccessRate, mark))
	}
	s.WriteString("\n\n")

	s.WriteString(" " + m.prog.View())
	s.WriteString("\n\n")
	s.WriteString(styles.Subtle.Render(" press q to stop"))

	return s.String()
}

// Run drives one test run under the live dashboard and returns the report
// for the caller to render after the program exits.
func Run(cfg runner.Config, updates runner.SnapshotChan, run func(context.Context) (*runner.RunReport, error)) (*runner.RunReport, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := tea.NewProgram(NewModel(cfg, cancel), tea.WithAltScreen())

	go func() {
		rep, err := run(ctx)
		p.Send(doneMsg{rep: rep, err: err})
	}()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-updates:
				p.Send(s)
			}
		}
	}()

	out, err := p.Run()
	if err != nil {
		return nil, err
	}
	final := out.(Model)
	return final.rep, final.err
}
