// Package proto holds the provider-neutral message types exchanged between
// agents, the LLM bridge and the tool servers.
package proto

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Role is the author of a message.
type Role string

// Roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Chunk is a piece of streamed text.
type Chunk struct {
	Content string
}

// Function is the name and raw JSON arguments of a tool invocation.
type Function struct {
	Name      string `json:"name"`
	Arguments []byte `json:"arguments,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID       string   `json:"id"`
	Function Function `json:"function"`
	IsError  bool     `json:"is_error,omitempty"`
}

// ToolCallStatus is the outcome of one executed tool call.
type ToolCallStatus struct {
	Name string
	Err  error
}

func (s ToolCallStatus) String() string {
	if s.Err != nil {
		return fmt.Sprintf("%s failed: %s", s.Name, s.Err)
	}
	return s.Name
}

// Message is one entry of a conversation.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCaller executes a tool by its qualified `<toolset>_<tool>` name.
type ToolCaller func(name string, data []byte) (string, error)

// Request is a completion request.
type Request struct {
	Messages            []Message
	API                 string
	Model               string
	User                string
	Temperature         *float64
	TopP                *float64
	TopK                *int64
	Stop                []string
	MaxTokens           *int64
	MaxCompletionTokens *int64
	Tools               map[string][]mcp.Tool
	ToolCaller          ToolCaller
}

// Conversation is a list of messages.
type Conversation []Message

// String renders the conversation as a plain transcript, skipping the system
// prompt.
func (c Conversation) String() string {
	var sb strings.Builder
	for _, msg := range c {
		switch msg.Role {
		case RoleSystem:
			continue
		case RoleUser:
			fmt.Fprintf(&sb, "**Topic**: %s\n\n", msg.Content)
		case RoleAssistant:
			for _, call := range msg.ToolCalls {
				fmt.Fprintf(&sb, "> %s %s\n\n", call.Function.Name, compact(call.Function.Arguments))
			}
			if msg.Content != "" {
				sb.WriteString(msg.Content)
				sb.WriteString("\n\n")
			}
		case RoleTool:
			for _, call := range msg.ToolCalls {
				status := "ok"
				if call.IsError {
					status = "error"
				}
				fmt.Fprintf(&sb, "> tool result (%s): %d bytes\n\n", status, len(msg.Content))
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

// Final returns the closing turn of the model: the last message, when the
// model sent it. A conversation that ends with tool results has none.
func (c Conversation) Final() (Message, bool) {
	if len(c) == 0 || c[len(c)-1].Role != RoleAssistant {
		return Message{}, false
	}
	return c[len(c)-1], true
}

func compact(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) > 120 {
		return string(b[:117]) + "..."
	}
	return string(b)
}
