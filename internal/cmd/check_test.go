package cmd

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/newsagent/internal/config"
	"github.com/dotcommander/newsagent/internal/errs"
	"github.com/dotcommander/newsagent/internal/mcp"
	"github.com/dotcommander/newsagent/internal/newsagent"
	"github.com/dotcommander/newsagent/internal/present"
)

func testStyles() present.Styles {
	return present.MakeStyles(lipgloss.NewRenderer(io.Discard))
}

func checkConfig() *config.Config {
	cfg := config.Default()
	cfg.APIs = config.APIs{
		{
			Name:   "google",
			APIKey: "test-key",
			Models: map[string]config.Model{
				"gemini-2.0-flash": {Aliases: []string{"flash"}},
			},
		},
	}
	cfg.Agent.Toolsets = []string{"brave"}
	cfg.MCPServers = map[string]config.MCPServerConfig{
		"brave": {
			Type:          config.TransportBuiltin,
			Builtin:       "brave",
			CredentialEnv: "BRAVE_API_KEY",
		},
	}
	return &cfg
}

func TestRunCheck(t *testing.T) {
	t.Run("all good", func(t *testing.T) {
		t.Setenv("BRAVE_API_KEY", "brave-key")
		var buf bytes.Buffer
		require.NoError(t, runCheck(t.Context(), &buf, testStyles(), checkConfig()))
		require.Equal(t, []string{
			"✓ settings",
			"✓ model gemini-2.0-flash (google)",
			"✓ instruction of NewsSearch_assistant",
			"✓ toolset brave",
		}, strings.Split(strings.TrimSpace(buf.String()), "\n"))
	})

	t.Run("pipeline", func(t *testing.T) {
		t.Setenv("BRAVE_API_KEY", "brave-key")
		cfg := checkConfig()
		cfg.Agent.Mode = config.ModePipeline
		var buf bytes.Buffer
		require.NoError(t, runCheck(t.Context(), &buf, testStyles(), cfg))
		out := buf.String()
		require.Equal(t, 1, strings.Count(out, "model gemini-2.0-flash"))
		for _, name := range []string{newsagent.PlannerName, newsagent.ResearcherName, newsagent.PublisherName} {
			require.Contains(t, out, "✓ instruction of "+name)
		}
	})

	t.Run("missing credential", func(t *testing.T) {
		t.Setenv("BRAVE_API_KEY", "")
		var buf bytes.Buffer
		err := runCheck(t.Context(), &buf, testStyles(), checkConfig())
		require.Error(t, err)
		reason, ok := errs.Reason(err)
		require.True(t, ok)
		require.Equal(t, "Check failed for toolset brave.", reason)
		require.Contains(t, buf.String(), "✗ toolset brave")
		require.Contains(t, buf.String(), "BRAVE_API_KEY")
	})

	t.Run("unknown model", func(t *testing.T) {
		t.Setenv("BRAVE_API_KEY", "brave-key")
		cfg := checkConfig()
		cfg.Model = "gpt-4o"
		err := runCheck(t.Context(), &bytes.Buffer{}, testStyles(), cfg)
		reason, ok := errs.Reason(err)
		require.True(t, ok)
		require.Equal(t, "Check failed for model gpt-4o.", reason)
	})

	t.Run("instruction without formatting hints", func(t *testing.T) {
		t.Setenv("BRAVE_API_KEY", "brave-key")
		cfg := checkConfig()
		cfg.Instructions = map[string]string{"NewsSearch_assistant": "Find some news."}
		err := runCheck(t.Context(), &bytes.Buffer{}, testStyles(), cfg)
		require.ErrorContains(t, err, "instruction does not mention")
	})

	t.Run("invalid settings", func(t *testing.T) {
		t.Setenv("BRAVE_API_KEY", "brave-key")
		cfg := checkConfig()
		cfg.Agent.Toolsets = []string{"tavily"}
		var buf bytes.Buffer
		err := runCheck(t.Context(), &buf, testStyles(), cfg)
		require.ErrorContains(t, err, `agent toolset "tavily" is not configured`)
		require.Contains(t, buf.String(), "✗ settings")
	})
}

func TestToolsetsOf(t *testing.T) {
	def := newsagent.Definition{
		SubAgents: []newsagent.Definition{
			{Toolsets: []string{"tavily"}},
			{Toolsets: []string{"brave", "tavily"}},
			{},
		},
	}
	require.Equal(t, []string{"brave", "tavily"}, toolsetsOf(def))
	require.Empty(t, toolsetsOf(newsagent.Definition{}))
}

func TestChecksErr(t *testing.T) {
	require.NoError(t, checks{{Name: "settings"}}.Err())

	err := checks{
		{Name: "settings"},
		{Name: "toolset brave", Err: errors.New("BRAVE_API_KEY is empty")},
		{Name: "model gpt-5", Err: errors.New("not configured")},
	}.Err()
	reason, ok := errs.Reason(err)
	require.True(t, ok)
	require.Equal(t, "Check failed for toolset brave and model gpt-5.", reason)
	require.EqualError(t, err, "toolset brave: BRAVE_API_KEY is empty\nmodel gpt-5: not configured")
}

func TestPreflightConnect(t *testing.T) {
	cfg := checkConfig()
	cfg.MCPServers["brave"] = config.MCPServerConfig{Type: config.TransportBuiltin, Builtin: "nope"}
	def, err := newsagent.Build(t.Context(), cfg)
	require.NoError(t, err)

	results := preflight(t.Context(), cfg, mcp.New(cfg), def, true)
	err = results.Err()
	require.Error(t, err)
	reason, _ := errs.Reason(err)
	require.Equal(t, "Check failed for toolset brave.", reason)
}
