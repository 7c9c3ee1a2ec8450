// Package ui renders pipeline progress: lipgloss styles and summaries
// for plain terminals, and a bubbletea dashboard for live ones.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lepinkainen/datasetpipe/pipeline"
)

const tickInterval = 100 * time.Millisecond

// DashboardModel is the live view of a running pipeline. It owns no
// pipeline state of its own: every tick it polls the snapshot function
// and renders what it sees, so the UI can never wedge the run.
type DashboardModel struct {
	snapshot func() pipeline.Snapshot
	cancel   func()
	version  string

	snap     pipeline.Snapshot
	bar      progress.Model
	spin     spinner.Model
	width    int
	done     bool
	runErr   error
	quitting bool
}

// NewDashboard creates the dashboard for a run. cancel is invoked when
// the user asks to quit; the dashboard then waits for RunDoneMsg rather
// than abandoning a pipeline that is still winding down.
func NewDashboard(snapshot func() pipeline.Snapshot, cancel func(), version string) DashboardModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = ProcessingStyle

	return DashboardModel{
		snapshot: snapshot,
		cancel:   cancel,
		version:  version,
		bar:      progress.New(progress.WithDefaultGradient()),
		spin:     s,
	}
}

// Err reports what the run finished with, for the caller to inspect
// after the program exits.
func (m DashboardModel) Err() error {
	return m.runErr
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Init implements tea.Model
func (m DashboardModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, tick())
}

// Update implements tea.Model
func (m DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			if m.cancel != nil {
				m.cancel()
			}
			// The run shuts down on its own; RunDoneMsg closes the UI.
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = min(msg.Width-24, 60)

	case TickMsg:
		if m.done {
			return m, nil
		}
		m.snap = m.snapshot()
		return m, tick()

	case RunDoneMsg:
		m.snap = m.snapshot()
		m.done = true
		m.runErr = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model
func (m DashboardModel) View() string {
	var b strings.Builder

	b.WriteString(HeaderStyle.Render(fmt.Sprintf("DatasetPipe %s", m.version)))
	b.WriteString("\n\n")

	frac := 0.0
	if m.snap.Scanned > 0 {
		frac = float64(m.snap.Completed) / float64(m.snap.Scanned)
	}
	indicator := m.spin.View()
	if m.done {
		indicator = SuccessStyle.Render("✓")
		if m.runErr != nil {
			indicator = ErrorStyle.Render("✗")
		}
	}
	b.WriteString(fmt.Sprintf("%s %s %d/%d sources\n\n",
		indicator, m.bar.ViewAs(frac), m.snap.Completed, m.snap.Scanned))

	b.WriteString(m.renderStats())
	b.WriteString("\n")

	switch {
	case m.done && m.runErr != nil:
		b.WriteString(ErrorStyle.Render(fmt.Sprintf("Run failed: %v", m.runErr)))
	case m.done:
		b.WriteString(SuccessStyle.Render("Run complete"))
	case m.quitting:
		b.WriteString(WarnStyle.Render("Cancelling, finishing items in flight..."))
	default:
		b.WriteString("Controls: [q] Cancel run")
	}
	b.WriteString("\n")

	return b.String()
}

func (m DashboardModel) renderStats() string {
	s := m.snap
	rows := []struct {
		label string
		value int64
		style *lipgloss.Style
	}{
		{"Frames extracted", s.FramesExtracted, nil},
		{"Duplicates removed", s.DuplicatesRemoved, nil},
		{"Blurry discarded", s.DiscardedBlurry, nil},
		{"No person", s.FilteredNoPerson, nil},
		{"Corrupt", s.Corrupt, &ErrorStyle},
		{"Enhancement failed", s.EnhancementFailed, &ErrorStyle},
		{"Finalized", s.Finalized, &SuccessStyle},
	}

	var b strings.Builder
	b.WriteString(labelStyle.Render("Images / Videos"))
	b.WriteString(fmt.Sprintf("%d / %d\n", s.Images, s.Videos))
	for _, row := range rows {
		b.WriteString(labelStyle.Render(row.label))
		text := fmt.Sprintf("%d", row.value)
		if row.style != nil && row.value > 0 {
			text = row.style.Render(text)
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String()
}
