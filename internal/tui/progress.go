// Package tui shows the progress of a search while the agents work.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dotcommander/newsagent/internal/agent"
	"github.com/dotcommander/newsagent/internal/errs"
	"github.com/dotcommander/newsagent/internal/present"
)

// RunFunc runs the agents, reporting progress to observe.
type RunFunc func(ctx context.Context, observe agent.Observer) (agent.Result, error)

type state int

const (
	runningState state = iota
	doneState
	errorState
)

const (
	historySize = 5
	eventBuffer = 64
)

type eventMsg agent.Event

type doneMsg struct {
	res agent.Result
	err error
}

// Progress is the Bubble Tea model rendering a spinner, the current agent
// activity and the last tool calls.
type Progress struct {
	Result agent.Result
	Error  *errs.Error

	state   state
	styles  present.Styles
	spinner spinner.Model
	topic   string
	status  string
	recent  []string
	steps   int
	started time.Time
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	run    RunFunc
	events chan agent.Event
}

// NewProgress creates the model. Nothing runs until the program starts it.
func NewProgress(ctx context.Context, r *lipgloss.Renderer, topic string, run RunFunc) *Progress {
	ctx, cancel := context.WithCancel(ctx)
	styles := present.MakeStyles(r)
	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.Tool))
	return &Progress{
		state:   runningState,
		styles:  styles,
		spinner: sp,
		topic:   topic,
		status:  "starting",
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		run:     run,
		events:  make(chan agent.Event, eventBuffer),
	}
}

// observe forwards an event to the UI, dropping it when the UI lags behind.
func (m *Progress) observe(e agent.Event) {
	select {
	case m.events <- e:
	default:
	}
}

// Init implements tea.Model.
func (m *Progress) Init() tea.Cmd {
	m.started = m.now()
	return tea.Batch(m.spinner.Tick, m.start, m.waitForEvent)
}

func (m *Progress) start() tea.Msg {
	res, err := m.run(m.ctx, m.observe)
	return doneMsg{res: res, err: err}
}

func (m *Progress) waitForEvent() tea.Msg {
	select {
	case e := <-m.events:
		return eventMsg(e)
	case <-m.ctx.Done():
		return nil
	}
}

// Update implements tea.Model.
func (m *Progress) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.apply(agent.Event(msg))
		return m, m.waitForEvent

	case doneMsg:
		m.Result = msg.res
		m.cancel()
		if msg.err != nil {
			e := asError(msg.err)
			m.Error = &e
			m.state = errorState
		} else {
			m.state = doneState
		}
		return m, tea.Quit

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.status = "cancelling"
			m.cancel()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Progress) apply(e agent.Event) {
	switch e.Kind {
	case agent.StepStarted:
		m.steps++
		m.status = fmt.Sprintf("%s is thinking", e.Agent)
	case agent.ToolCalled:
		m.status = fmt.Sprintf("%s is calling %s", e.Agent, e.Tool)
		m.push(m.styles.Tool.Render(e.Tool) + " " + m.styles.Comment.Render(truncate(e.Detail, 60)))
	case agent.ToolFailed:
		m.push(m.styles.Warning.Render(e.Tool + " failed: " + truncate(errText(e.Err), 60)))
	case agent.Warning:
		m.push(m.styles.Warning.Render(truncate(e.Detail, 72)))
	case agent.Retrying:
		m.status = fmt.Sprintf("%s is retrying in %s", e.Agent, e.Wait.Round(time.Second))
	case agent.AgentFinished:
		m.push(m.styles.Success.Render("✓ " + e.Agent))
	}
}

func (m *Progress) push(line string) {
	m.recent = append(m.recent, line)
	if len(m.recent) > historySize {
		m.recent = m.recent[len(m.recent)-historySize:]
	}
}

// View implements tea.Model.
func (m *Progress) View() string {
	if m.state != runningState {
		return ""
	}
	var sb strings.Builder
	for _, line := range m.recent {
		sb.WriteString("  " + line + "\n")
	}
	elapsed := m.now().Sub(m.started).Round(time.Second)
	fmt.Fprintf(&sb, "%s %s %s\n",
		m.spinner.View(),
		m.status,
		m.styles.Comment.Render(fmt.Sprintf("(%s, step %d)", elapsed, m.steps)),
	)
	return sb.String()
}

// Run runs the agents behind the progress UI drawn on w.
func Run(ctx context.Context, w io.Writer, r *lipgloss.Renderer, topic string, run RunFunc) (agent.Result, error) {
	m := NewProgress(ctx, r, topic, run)
	opts := []tea.ProgramOption{tea.WithOutput(w), tea.WithContext(ctx)}
	if !present.IsInputTTY() {
		opts = append(opts, tea.WithInput(nil))
	}
	p := tea.NewProgram(m, opts...)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		m.cancel()
		return m.Result, fmt.Errorf("progress ui: %w", err)
	}
	if m.Error != nil {
		return m.Result, *m.Error
	}
	if m.state == runningState {
		return m.Result, ctx.Err()
	}
	return m.Result, nil
}

// LogObserver prints one line per notable event, for terminals where the
// progress UI is not drawn.
func LogObserver(w io.Writer, styles present.Styles) agent.Observer {
	return func(e agent.Event) {
		switch e.Kind {
		case agent.ToolCalled, agent.ToolFailed, agent.Warning, agent.Retrying, agent.AgentFinished:
			fmt.Fprintln(w, styles.Comment.Render(e.String()))
		case agent.StepStarted:
		}
	}
}

func asError(err error) errs.Error {
	var e errs.Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.Canceled) {
		return errs.Error{Err: err, Reason: "Search cancelled."}
	}
	return errs.Error{Err: err}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
