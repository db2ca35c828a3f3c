// Package tui renders a terminal view of one download while it runs on a
// ytdl-web server.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	progressbar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lvcoi/ytdl-web/internal/client"
)

const (
	defaultPollInterval = time.Second
	barWidth            = 48
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#5A189A")).
			Padding(0, 1)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0A0A0"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7FDBFF"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#2ECC71")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4136")).Bold(true)
)

// Poller is satisfied by *client.Client.
type Poller interface {
	Progress(ctx context.Context, id string) (client.Progress, error)
}

type pollMsg struct {
	progress client.Progress
	err      error
}

type tickMsg struct{}

type model struct {
	ctx      context.Context
	poller   Poller
	id       string
	label    string
	interval time.Duration

	spin spinner.Model
	bar  progressbar.Model

	last     client.Progress
	err      error
	started  time.Time
	quitting bool
}

func newModel(ctx context.Context, poller Poller, id, label string, interval time.Duration) model {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	spin := spinner.New()
	spin.Spinner = spinner.MiniDot
	spin.Style = spinnerStyle
	return model{
		ctx:      ctx,
		poller:   poller,
		id:       id,
		label:    label,
		interval: interval,
		spin:     spin,
		bar: progressbar.New(
			progressbar.WithGradient("#FF006E", "#00F5FF"),
			progressbar.WithWidth(barWidth),
		),
		last:    client.Progress{Status: "starting"},
		started: time.Now(),
	}
}

func (m model) poll() tea.Msg {
	p, err := m.poller.Progress(m.ctx, m.id)
	return pollMsg{progress: p, err: err}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.poll)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case pollMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.last = msg.progress
		if m.last.Terminal() {
			return m, tea.Quit
		}
		return m, tea.Tick(m.interval, func(time.Time) tea.Msg { return tickMsg{} })
	case tickMsg:
		return m, m.poll
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(" ytdl-web "))
	b.WriteString(" ")
	b.WriteString(labelStyle.Render(truncate(m.label, 60)))
	b.WriteString("\n\n")

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render("✗ " + m.err.Error()))
	case m.last.Status == "finished":
		b.WriteString(m.bar.ViewAs(1))
		b.WriteString("\n")
		b.WriteString(doneStyle.Render(fmt.Sprintf("✓ finished in %s", time.Since(m.started).Truncate(time.Second))))
	case m.last.Status == "error":
		msg := "download failed"
		if m.last.Error != nil {
			msg = *m.last.Error
		}
		b.WriteString(errorStyle.Render("✗ " + msg))
	default:
		b.WriteString(m.bar.ViewAs(m.last.Progress / 100))
		b.WriteString("\n")
		b.WriteString(m.spin.View())
		b.WriteString(" ")
		b.WriteString(labelStyle.Render(m.last.Status))
		if m.quitting {
			b.WriteString(labelStyle.Render(" (detached, download continues on the server)"))
		}
	}
	b.WriteString("\n")
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Watch polls job id until it is terminal or the user quits, rendering to
// out. It returns the last observed progress.
func Watch(ctx context.Context, poller Poller, id, label string, out io.Writer) (client.Progress, error) {
	program := tea.NewProgram(
		newModel(ctx, poller, id, label, defaultPollInterval),
		tea.WithContext(ctx),
		tea.WithOutput(out),
	)
	final, err := program.Run()
	if err != nil {
		return client.Progress{}, err
	}
	m := final.(model)
	return m.last, m.err
}
