package stream

import (
	"errors"
	"testing"

	"github.com/dotcommander/newsagent/internal/proto"
	"github.com/stretchr/testify/require"
)

func TestCallTool(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		msg, status := CallTool("c1", "tavily_search", []byte(`{"query":"go"}`), func(name string, data []byte) (string, error) {
			require.Equal(t, "tavily_search", name)
			require.JSONEq(t, `{"query":"go"}`, string(data))
			return "3 results", nil
		})
		require.NoError(t, status.Err)
		require.Equal(t, proto.RoleTool, msg.Role)
		require.Equal(t, "3 results", msg.Content)
		require.Len(t, msg.ToolCalls, 1)
		require.Equal(t, "c1", msg.ToolCalls[0].ID)
		require.False(t, msg.ToolCalls[0].IsError)
	})

	t.Run("tool error is reported to the model", func(t *testing.T) {
		msg, status := CallTool("c2", "tavily_search", nil, func(string, []byte) (string, error) {
			return "", errors.New("rate limited")
		})
		require.EqualError(t, status.Err, "rate limited")
		require.Equal(t, "rate limited", msg.Content)
		require.True(t, msg.ToolCalls[0].IsError)
	})

	t.Run("nil caller", func(t *testing.T) {
		msg, status := CallTool("c3", "x_y", nil, nil)
		require.Error(t, status.Err)
		require.True(t, msg.ToolCalls[0].IsError)
	})
}
