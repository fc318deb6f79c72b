package fantasybridge

import (
	"testing"

	"charm.land/fantasy"
	fgoogle "charm.land/fantasy/providers/google"
	fopenai "charm.land/fantasy/providers/openai"
	fopenaicompat "charm.land/fantasy/providers/openaicompat"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/newsagent/internal/proto"
)

func callFor(api string, cfg Config, req proto.Request) fantasy.Call {
	cfg.API = api
	s := &Stream{config: cfg, request: req}
	return s.buildCall()
}

func TestBuildCallThinkingBudget(t *testing.T) {
	call := callFor(APIGoogle, Config{ThinkingBudget: 256}, proto.Request{})
	v, ok := call.ProviderOptions[fgoogle.Name]
	require.True(t, ok)
	opts, ok := v.(*fgoogle.ProviderOptions)
	require.True(t, ok)
	require.NotNil(t, opts.ThinkingConfig)
	require.NotNil(t, opts.ThinkingConfig.ThinkingBudget)
	require.EqualValues(t, 256, *opts.ThinkingConfig.ThinkingBudget)

	call = callFor(APIOpenAI, Config{ThinkingBudget: 512}, proto.Request{})
	require.Empty(t, call.ProviderOptions)
}

func TestBuildCallUser(t *testing.T) {
	for _, api := range []string{APIOpenAI, APIAzure, APIAzureAD} {
		t.Run(api, func(t *testing.T) {
			call := callFor(api, Config{}, proto.Request{User: "alice"})
			opts, ok := call.ProviderOptions[fopenai.Name].(*fopenai.ProviderOptions)
			require.True(t, ok)
			require.Equal(t, "alice", *opts.User)
		})
	}

	t.Run("openai-compatible", func(t *testing.T) {
		call := callFor("ollama", Config{}, proto.Request{User: "bob"})
		opts, ok := call.ProviderOptions[fopenaicompat.Name].(*fopenaicompat.ProviderOptions)
		require.True(t, ok)
		require.Equal(t, "bob", *opts.User)
	})

	for _, api := range []string{APIGoogle, APIAnthropic, APIOpenRouter, APIVercel, APIBedrock} {
		t.Run(api, func(t *testing.T) {
			call := callFor(api, Config{}, proto.Request{User: "carol"})
			require.Empty(t, call.ProviderOptions)
		})
	}
}

func TestBuildCallMaxCompletionTokens(t *testing.T) {
	tokens := int64(321)

	call := callFor(APIOpenAI, Config{}, proto.Request{MaxCompletionTokens: &tokens})
	opts, ok := call.ProviderOptions[fopenai.Name].(*fopenai.ProviderOptions)
	require.True(t, ok)
	require.EqualValues(t, 321, *opts.MaxCompletionTokens)
	require.Nil(t, opts.User)

	call = callFor("ollama", Config{}, proto.Request{MaxCompletionTokens: &tokens})
	require.Empty(t, call.ProviderOptions)
}

func TestNewProviders(t *testing.T) {
	for _, api := range []string{APIOpenAI, APIAnthropic, APIOpenRouter, APIVercel, "ollama"} {
		t.Run(api, func(t *testing.T) {
			client, err := New(Config{API: api, APIKey: "key", BaseURL: "http://localhost:11434/v1"})
			require.NoError(t, err)
			require.NotNil(t, client)
		})
	}

	t.Run("azure-ad alias", func(t *testing.T) {
		client, err := New(Config{
			API:     APIAzureAD,
			APIKey:  "token",
			BaseURL: "https://example.openai.azure.com",
		})
		require.NoError(t, err)
		require.NotNil(t, client)
	})
}

func TestStepSkipsProviderExecutedAndDuplicateCalls(t *testing.T) {
	var st step
	st.addCall(fantasy.StreamPart{
		Type:             fantasy.StreamPartTypeToolCall,
		ID:               "tc_0",
		ToolCallName:     "web_search",
		ProviderExecuted: true,
	})
	for range 2 {
		st.addCall(fantasy.StreamPart{
			Type:          fantasy.StreamPartTypeToolCall,
			ID:            "tc_1",
			ToolCallName:  "brave_search",
			ToolCallInput: `{"query":"rates"}`,
		})
	}

	require.Len(t, st.calls, 1)
	require.Equal(t, "brave_search", st.calls[0].Function.Name)

	msg, ok := st.message()
	require.True(t, ok)
	require.Equal(t, proto.RoleAssistant, msg.Role)
	require.Len(t, msg.ToolCalls, 1)

	_, ok = (&step{}).message()
	require.False(t, ok)
}

func TestConsumeText(t *testing.T) {
	s := &Stream{ctx: t.Context(), warnings: warnings{seen: map[string]struct{}{}}}
	s.consume(fantasy.StreamPart{Type: fantasy.StreamPartTypeTextDelta, Delta: "Hello, "})
	s.consume(fantasy.StreamPart{Type: fantasy.StreamPartTypeTextDelta, Delta: "world"})
	s.finish()

	require.True(t, s.step.done)
	require.Equal(t, []proto.Message{{Role: proto.RoleAssistant, Content: "Hello, world"}}, s.Messages())
}

func TestDrainWarningsDeduplicates(t *testing.T) {
	s := &Stream{warnings: warnings{seen: map[string]struct{}{}}}

	s.consume(fantasy.StreamPart{
		Type: fantasy.StreamPartTypeWarnings,
		Warnings: []fantasy.CallWarning{
			{Type: fantasy.CallWarningTypeUnsupportedSetting, Setting: "top_k", Message: "unsupported setting: top_k"},
			{Type: fantasy.CallWarningTypeUnsupportedSetting, Setting: "top_k", Message: "unsupported setting: top_k"},
			{Type: fantasy.CallWarningTypeUnsupportedSetting, Setting: "top_p"},
		},
	})

	require.Equal(t, []string{"unsupported setting: top_k", "unsupported setting: top_p"}, s.DrainWarnings())
	require.Empty(t, s.DrainWarnings())
}

func TestCallTools(t *testing.T) {
	s := &Stream{request: proto.Request{
		ToolCaller: func(name string, data []byte) (string, error) {
			return name + " " + string(data), nil
		},
	}}
	s.step.calls = []proto.ToolCall{{
		ID:       "tc_1",
		Function: proto.Function{Name: "brave_search", Arguments: []byte(`{"query":"rates"}`)},
	}}

	statuses := s.CallTools()
	require.Len(t, statuses, 1)
	require.NoError(t, statuses[0].Err)
	require.Empty(t, s.step.calls)

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, proto.RoleTool, msgs[0].Role)
	require.Equal(t, `brave_search {"query":"rates"}`, msgs[0].Content)
}
