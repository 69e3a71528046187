package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// itemProgressMsg is sent into the TUI for every finished batch item.
type itemProgressMsg struct {
	completed int
	filename  string
	success   bool
	err       string
}

// batchDoneMsg tells the TUI the whole batch has finished.
type batchDoneMsg struct{}

var (
	spinnerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	failLineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

type batchModel struct {
	spinner   spinner.Model
	progress  progress.Model
	total     int
	completed int
	failures  int
	lastLine  string
	lastFail  bool
	canceled  bool
	done      bool
	start     time.Time
}

func newBatchModel(total int) batchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle
	return batchModel{
		spinner:  s,
		progress: progress.New(progress.WithDefaultGradient()),
		total:    total,
		start:    time.Now(),
	}
}

func (m batchModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m batchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.canceled = true
			return m, tea.Quit
		}
		return m, nil

	case itemProgressMsg:
		m.completed = msg.completed
		m.lastFail = !msg.success
		if msg.success {
			m.lastLine = "✓ " + msg.filename
		} else {
			m.failures++
			m.lastLine = "✗ " + msg.filename
			if msg.err != "" {
				m.lastLine += ": " + msg.err
			}
		}
		if m.total == 0 {
			return m, nil
		}
		return m, m.progress.SetPercent(float64(m.completed) / float64(m.total))

	case batchDoneMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		pm, cmd := m.progress.Update(msg)
		m.progress = pm.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m batchModel) View() string {
	if m.done || m.canceled {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\n  %s Processing documents %d/%d  %s", m.spinner.View(), m.completed, m.total,
		time.Since(m.start).Round(time.Second))
	if m.failures > 0 {
		fmt.Fprintf(&b, "  (%d failed)", m.failures)
	}
	b.WriteString("\n\n  " + m.progress.View() + "\n\n")
	if m.lastLine != "" {
		line := m.lastLine
		if m.lastFail {
			line = failLineStyle.Render(line)
		}
		b.WriteString("  " + line + "\n")
	}
	b.WriteString("\n" + hintStyle.Render("  press q to cancel") + "\n")
	return b.String()
}
