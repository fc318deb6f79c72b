package agent

import (
	"fmt"
	"log/slog"
	"time"
)

// EventKind identifies what happened during a run.
type EventKind int

// Event kinds.
const (
	StepStarted EventKind = iota
	ToolCalled
	ToolFailed
	AgentFinished
	Warning
	Retrying
)

func (k EventKind) String() string {
	switch k {
	case StepStarted:
		return "step"
	case ToolCalled:
		return "tool"
	case ToolFailed:
		return "tool failed"
	case AgentFinished:
		return "finished"
	case Warning:
		return "warning"
	case Retrying:
		return "retrying"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a progress notification.
type Event struct {
	Kind  EventKind
	Agent string
	Step  int
	Tool  string
	// Detail is the tool arguments, warning text or output summary.
	Detail string
	Err    error
	Wait   time.Duration
}

func (e Event) String() string {
	switch e.Kind {
	case StepStarted:
		return fmt.Sprintf("%s: step %d", e.Agent, e.Step)
	case ToolCalled:
		return fmt.Sprintf("%s: calling %s", e.Agent, e.Tool)
	case ToolFailed:
		return fmt.Sprintf("%s: %s failed: %v", e.Agent, e.Tool, e.Err)
	case AgentFinished:
		return fmt.Sprintf("%s: done", e.Agent)
	case Warning:
		return fmt.Sprintf("%s: %s", e.Agent, e.Detail)
	case Retrying:
		return fmt.Sprintf("%s: %v; retrying in %s", e.Agent, e.Err, e.Wait.Round(time.Millisecond))
	default:
		return e.Kind.String()
	}
}

// Observer receives events. It is called from the goroutine running the
// agent and must not block.
type Observer func(Event)

func logEvent(e Event) {
	attrs := []any{"agent", e.Agent}
	if e.Step > 0 {
		attrs = append(attrs, "step", e.Step)
	}
	if e.Tool != "" {
		attrs = append(attrs, "tool", e.Tool)
	}
	if e.Detail != "" {
		attrs = append(attrs, "detail", e.Detail)
	}
	if e.Err != nil {
		attrs = append(attrs, "error", e.Err)
	}
	if e.Wait > 0 {
		attrs = append(attrs, "wait", e.Wait)
	}
	switch e.Kind {
	case ToolFailed, Warning, Retrying:
		slog.Warn(e.Kind.String(), attrs...)
	case StepStarted, ToolCalled:
		slog.Debug(e.Kind.String(), attrs...)
	default:
		slog.Info(e.Kind.String(), attrs...)
	}
}
