// Package stream defines the streaming completion contract implemented by
// the LLM bridge.
package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/dotcommander/newsagent/internal/proto"
)

// ErrNoContent happens when the current part carries no text.
var ErrNoContent = errors.New("no content")

// Client starts completion streams.
type Client interface {
	Request(ctx context.Context, request proto.Request) Stream
}

// Stream is a single model step: text deltas followed by optional tool calls.
//
// Next returns false when the step is over. Callers then check Err, run the
// requested tools with CallTools, and call Next again to start the follow-up
// step. A step that requested no tools ends the exchange.
type Stream interface {
	Next() bool
	Current() (proto.Chunk, error)
	Err() error
	Close() error
	Messages() []proto.Message
	CallTools() []proto.ToolCallStatus
	DrainWarnings() []string
}

// CallTool runs a single tool call and returns the tool message to append to
// the conversation.
func CallTool(id, name string, data []byte, caller proto.ToolCaller) (proto.Message, proto.ToolCallStatus) {
	status := proto.ToolCallStatus{Name: name}
	call := proto.ToolCall{
		ID:       id,
		Function: proto.Function{Name: name, Arguments: data},
	}

	if caller == nil {
		status.Err = fmt.Errorf("no tool caller configured for %q", name)
		call.IsError = true
		return proto.Message{
			Role:      proto.RoleTool,
			Content:   status.Err.Error(),
			ToolCalls: []proto.ToolCall{call},
		}, status
	}

	content, err := caller(name, data)
	if err != nil {
		status.Err = err
		call.IsError = true
		content = err.Error()
	}
	return proto.Message{
		Role:      proto.RoleTool,
		Content:   content,
		ToolCalls: []proto.ToolCall{call},
	}, status
}
