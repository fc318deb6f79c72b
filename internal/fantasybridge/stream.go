package fantasybridge

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"charm.land/fantasy"

	"github.com/dotcommander/newsagent/internal/proto"
	"github.com/dotcommander/newsagent/internal/stream"
)

var _ stream.Client = &Client{}

// Client is a stream.Client backed by charm.land/fantasy.
type Client struct {
	provider fantasy.Provider
	config   Config
}

// New creates a new fantasy backed stream client.
func New(cfg Config) (*Client, error) {
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{provider: provider, config: cfg}, nil
}

// Request implements stream.Client. The first step starts right away; a
// failure to start it is reported by Err.
func (c *Client) Request(ctx context.Context, request proto.Request) stream.Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		ctx:      ctx,
		cancel:   cancel,
		provider: c.provider,
		config:   c.config,
		request:  request,
		messages: request.Messages,
		warnings: warnings{seen: map[string]struct{}{}},
	}
	s.err = s.begin()
	return s
}

// Stream walks the parts of one model step at a time.
type Stream struct {
	ctx      context.Context
	cancel   context.CancelFunc
	provider fantasy.Provider
	config   Config
	request  proto.Request

	mu       sync.Mutex
	messages []proto.Message
	step     step
	last     fantasy.StreamPart
	err      error
	warnings warnings
}

// step accumulates the assistant turn being streamed.
type step struct {
	parts chan fantasy.StreamPart
	text  strings.Builder
	calls []proto.ToolCall
	seen  map[string]struct{}
	done  bool
}

func (st *step) addCall(part fantasy.StreamPart) {
	if part.ProviderExecuted {
		return
	}
	if st.seen == nil {
		st.seen = map[string]struct{}{}
	}
	if _, ok := st.seen[part.ID]; ok {
		return
	}
	st.seen[part.ID] = struct{}{}
	st.calls = append(st.calls, proto.ToolCall{
		ID: part.ID,
		Function: proto.Function{
			Name:      part.ToolCallName,
			Arguments: []byte(part.ToolCallInput),
		},
	})
}

func (st *step) message() (proto.Message, bool) {
	msg := proto.Message{
		Role:      proto.RoleAssistant,
		Content:   st.text.String(),
		ToolCalls: append([]proto.ToolCall(nil), st.calls...),
	}
	return msg, msg.Content != "" || len(msg.ToolCalls) > 0
}

// warnings collects provider warnings, each reported once per stream.
type warnings struct {
	seen    map[string]struct{}
	pending []string
}

func (w *warnings) add(list []fantasy.CallWarning) {
	for _, warning := range list {
		text := strings.TrimSpace(warning.Message)
		if text == "" {
			text = strings.TrimSpace(warning.Details)
		}
		if text == "" && warning.Setting != "" {
			text = "unsupported setting: " + warning.Setting
		}
		if text == "" {
			text = "provider warning"
		}
		key := string(warning.Type) + ":" + text
		if _, ok := w.seen[key]; ok {
			continue
		}
		w.seen[key] = struct{}{}
		w.pending = append(w.pending, text)
	}
}

// Next implements stream.Stream.
func (s *Stream) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return false
	}
	if s.step.done {
		if s.err = s.begin(); s.err != nil {
			return false
		}
	}

	part, ok := <-s.step.parts
	if !ok {
		s.finish()
		return false
	}
	s.last = part
	s.consume(part)
	return true
}

// Current implements stream.Stream.
func (s *Stream) Current() (proto.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.last.Type {
	case fantasy.StreamPartTypeTextDelta:
		return proto.Chunk{Content: s.last.Delta}, nil
	case fantasy.StreamPartTypeError:
		if s.last.Error != nil {
			return proto.Chunk{}, s.last.Error
		}
	}
	return proto.Chunk{}, stream.ErrNoContent
}

// Close implements stream.Stream.
func (s *Stream) Close() error {
	s.cancel()
	return nil
}

// Err implements stream.Stream.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Messages implements stream.Stream.
func (s *Stream) Messages() []proto.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages
}

// CallTools implements stream.Stream.
func (s *Stream) CallTools() []proto.ToolCallStatus {
	s.mu.Lock()
	calls := s.step.calls
	s.step.calls = nil
	s.mu.Unlock()

	// Tools run unlocked: they may block for a long time.
	statuses := make([]proto.ToolCallStatus, 0, len(calls))
	msgs := make([]proto.Message, 0, len(calls))
	for _, call := range calls {
		msg, status := stream.CallTool(call.ID, call.Function.Name, call.Function.Arguments, s.request.ToolCaller)
		msgs = append(msgs, msg)
		statuses = append(statuses, status)
	}

	s.mu.Lock()
	s.messages = append(s.messages, msgs...)
	s.mu.Unlock()
	return statuses
}

// DrainWarnings implements stream.Stream.
func (s *Stream) DrainWarnings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.warnings.pending
	s.warnings.pending = nil
	return pending
}

func (s *Stream) begin() error {
	model, err := s.provider.LanguageModel(s.ctx, s.request.Model)
	if err != nil {
		return fmt.Errorf("language model: %w", err)
	}
	seq, err := model.Stream(s.ctx, s.buildCall())
	if err != nil {
		return fmt.Errorf("stream: %w", err)
	}

	parts := make(chan fantasy.StreamPart, 64)
	s.step = step{parts: parts}
	go func() {
		defer close(parts)
		for part := range seq {
			select {
			case <-s.ctx.Done():
				return
			case parts <- part:
			}
		}
	}()
	return nil
}

func (s *Stream) buildCall() fantasy.Call {
	call := fantasy.Call{
		Prompt:          toFantasyPrompt(s.messages),
		MaxOutputTokens: s.request.MaxTokens,
		Temperature:     s.request.Temperature,
		TopP:            s.request.TopP,
		TopK:            s.request.TopK,
		Tools:           fromMCPTools(s.request.Tools),
		ToolChoice:      toolChoiceForRequest(s.request),
		ProviderOptions: fantasy.ProviderOptions{},
	}
	applyProviderOptions(&call, s.config, s.request)
	return call
}

func (s *Stream) finish() {
	if msg, ok := s.step.message(); ok {
		s.messages = append(s.messages, msg)
	}
	s.step.done = true
	if s.err == nil && s.ctx.Err() != nil {
		s.err = s.ctx.Err()
	}
}

func (s *Stream) consume(part fantasy.StreamPart) {
	switch part.Type {
	case fantasy.StreamPartTypeTextDelta:
		s.step.text.WriteString(part.Delta)
	case fantasy.StreamPartTypeToolCall:
		s.step.addCall(part)
	case fantasy.StreamPartTypeError:
		s.err = part.Error
	case fantasy.StreamPartTypeWarnings:
		s.warnings.add(part.Warnings)
	}
}
