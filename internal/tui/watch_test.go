package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvcoi/ytdl-web/internal/client"
)

type scriptedPoller struct {
	responses []client.Progress
	err       error
	calls     int
}

func (p *scriptedPoller) Progress(context.Context, string) (client.Progress, error) {
	if p.err != nil {
		return client.Progress{}, p.err
	}
	r := p.responses[min(p.calls, len(p.responses)-1)]
	p.calls++
	return r, nil
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(model)
	require.True(t, ok)
	return out, cmd
}

func TestModelPollsUntilTerminal(t *testing.T) {
	errText := "HTTP Error 403"
	poller := &scriptedPoller{responses: []client.Progress{
		{Status: "downloading", Progress: 40},
		{Status: "error", Error: &errText},
	}}
	m := newModel(context.Background(), poller, "job-1", "https://example.com/v", time.Millisecond)

	m, cmd := update(t, m, m.poll())
	assert.Equal(t, "downloading", m.last.Status)
	require.NotNil(t, cmd, "a non-terminal poll schedules the next tick")
	assert.Contains(t, m.View(), "downloading")

	m, cmd = update(t, m, tickMsg{})
	require.NotNil(t, cmd)
	m, cmd = update(t, m, cmd())
	assert.Equal(t, "error", m.last.Status)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Contains(t, m.View(), errText)
}

func TestModelStopsOnPollError(t *testing.T) {
	poller := &scriptedPoller{err: errors.New("connection refused")}
	m := newModel(context.Background(), poller, "job-1", "label", time.Millisecond)

	m, cmd := update(t, m, m.poll())
	require.Error(t, m.err)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Contains(t, m.View(), "connection refused")
}

func TestModelFinishedView(t *testing.T) {
	poller := &scriptedPoller{responses: []client.Progress{{Status: "finished", Progress: 100}}}
	m := newModel(context.Background(), poller, "job-1", "label", time.Millisecond)

	m, _ = update(t, m, m.poll())
	assert.Contains(t, m.View(), "finished in")
}

func TestModelQuitKey(t *testing.T) {
	m := newModel(context.Background(), &scriptedPoller{}, "job-1", "label", 0)
	assert.Equal(t, defaultPollInterval, m.interval)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.True(t, m.quitting)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
