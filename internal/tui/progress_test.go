package tui

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/newsagent/internal/agent"
	"github.com/dotcommander/newsagent/internal/errs"
	"github.com/dotcommander/newsagent/internal/present"
)

func testProgress(t *testing.T, run RunFunc) *Progress {
	t.Helper()
	m := NewProgress(t.Context(), lipgloss.NewRenderer(io.Discard), "rates", run)
	start := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return start }
	m.started = start
	return m
}

func TestProgressEvents(t *testing.T) {
	m := testProgress(t, nil)

	events := []agent.Event{
		{Kind: agent.StepStarted, Agent: "news_researcher", Step: 1},
		{Kind: agent.ToolCalled, Agent: "news_researcher", Tool: "brave_search", Detail: `{"query":"rates"}`},
		{Kind: agent.ToolFailed, Agent: "news_researcher", Tool: "brave_fetch", Err: errors.New("HTTP 404 Not Found")},
		{Kind: agent.Warning, Agent: "news_researcher", Detail: "stopped after 10 steps"},
	}
	for _, e := range events {
		_, cmd := m.Update(eventMsg(e))
		require.NotNil(t, cmd)
	}

	require.Equal(t, 1, m.steps)
	require.Equal(t, "news_researcher is calling brave_search", m.status)
	require.Len(t, m.recent, 3)

	view := m.View()
	require.Contains(t, view, "brave_search")
	require.Contains(t, view, `{"query":"rates"}`)
	require.Contains(t, view, "brave_fetch failed: HTTP 404 Not Found")
	require.Contains(t, view, "stopped after 10 steps")
	require.Contains(t, view, "(0s, step 1)")

	_, _ = m.Update(eventMsg{Kind: agent.Retrying, Agent: "news_publisher", Wait: 2 * time.Second})
	require.Equal(t, "news_publisher is retrying in 2s", m.status)
}

func TestProgressKeepsRecentLines(t *testing.T) {
	m := testProgress(t, nil)
	for range historySize + 3 {
		m.apply(agent.Event{Kind: agent.AgentFinished, Agent: "news_planner"})
	}
	require.Len(t, m.recent, historySize)
}

func TestProgressDone(t *testing.T) {
	m := testProgress(t, nil)
	_, cmd := m.Update(doneMsg{res: agent.Result{Output: "report"}})
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
	require.Equal(t, "report", m.Result.Output)
	require.Nil(t, m.Error)
	require.Empty(t, m.View())
	require.Error(t, m.ctx.Err())
}

func TestProgressError(t *testing.T) {
	m := testProgress(t, nil)
	_, _ = m.Update(doneMsg{err: errs.Wrap(errors.New("boom"), "Search failed.")})
	require.NotNil(t, m.Error)
	require.Equal(t, "Search failed.", m.Error.Reason)
	require.Equal(t, errorState, m.state)

	m = testProgress(t, nil)
	_, _ = m.Update(doneMsg{err: context.Canceled})
	require.Equal(t, "Search cancelled.", m.Error.Reason)
}

func TestProgressCancel(t *testing.T) {
	m := testProgress(t, nil)
	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.Equal(t, "cancelling", m.status)
	require.ErrorIs(t, m.ctx.Err(), context.Canceled)
}

func TestProgressStart(t *testing.T) {
	m := testProgress(t, func(_ context.Context, observe agent.Observer) (agent.Result, error) {
		observe(agent.Event{Kind: agent.StepStarted, Agent: "a", Step: 1})
		return agent.Result{Output: "ok"}, nil
	})
	msg := m.start()
	require.Equal(t, doneMsg{res: agent.Result{Output: "ok"}}, msg)
	require.Equal(t, eventMsg{Kind: agent.StepStarted, Agent: "a", Step: 1}, m.waitForEvent())
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	observe := LogObserver(&buf, present.MakeStyles(lipgloss.NewRenderer(io.Discard)))
	observe(agent.Event{Kind: agent.StepStarted, Agent: "a", Step: 1})
	observe(agent.Event{Kind: agent.ToolCalled, Agent: "a", Tool: "brave_search"})
	observe(agent.Event{Kind: agent.AgentFinished, Agent: "a"})
	require.Equal(t, []string{"a: calling brave_search", "a: done"}, strings.Split(strings.TrimSpace(buf.String()), "\n"))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "a b", truncate(" a \n b ", 10))
	require.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
