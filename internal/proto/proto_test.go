package proto

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConversationString(t *testing.T) {
	conv := Conversation{
		{Role: RoleSystem, Content: "be helpful"},
		{Role: RoleUser, Content: "rust 2.0"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{
			ID:       "1",
			Function: Function{Name: "tavily_search", Arguments: []byte(`{"query":"rust"}`)},
		}}},
		{Role: RoleTool, Content: "results", ToolCalls: []ToolCall{{ID: "1"}}},
		{Role: RoleAssistant, Content: "## News"},
	}

	require.Equal(t, "**Topic**: rust 2.0\n\n"+
		"> tavily_search {\"query\":\"rust\"}\n\n"+
		"> tool result (ok): 7 bytes\n\n"+
		"## News", conv.String())
}

func TestConversationFinal(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, ok := Conversation{}.Final()
		require.False(t, ok)
	})

	t.Run("last assistant turn", func(t *testing.T) {
		msg, ok := Conversation{
			{Role: RoleAssistant, Content: "Let me search.", ToolCalls: []ToolCall{{ID: "x"}}},
			{Role: RoleTool, Content: "out"},
			{Role: RoleAssistant, Content: "## News"},
		}.Final()
		require.True(t, ok)
		require.Equal(t, "## News", msg.Content)
	})

	t.Run("empty closing turn", func(t *testing.T) {
		msg, ok := Conversation{
			{Role: RoleAssistant, Content: "Let me search.", ToolCalls: []ToolCall{{ID: "x"}}},
			{Role: RoleTool, Content: "out"},
			{Role: RoleAssistant},
		}.Final()
		require.True(t, ok)
		require.Empty(t, msg.Content)
	})

	t.Run("ends with tool results", func(t *testing.T) {
		_, ok := Conversation{
			{Role: RoleAssistant, Content: "first", ToolCalls: []ToolCall{{ID: "x"}}},
			{Role: RoleTool, Content: "out"},
		}.Final()
		require.False(t, ok)
	})
}

func TestToolCallStatusString(t *testing.T) {
	require.Equal(t, "brave_news", ToolCallStatus{Name: "brave_news"}.String())
	require.Equal(t, "brave_news failed: nope", ToolCallStatus{Name: "brave_news", Err: errors.New("nope")}.String())
}
