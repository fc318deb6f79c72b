package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/charmbracelet/x/exp/ordered"
	"github.com/google/uuid"
	mmcp "github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/dotcommander/newsagent/internal/config"
	"github.com/dotcommander/newsagent/internal/errs"
	"github.com/dotcommander/newsagent/internal/mcp"
	"github.com/dotcommander/newsagent/internal/newsagent"
	"github.com/dotcommander/newsagent/internal/proto"
	"github.com/dotcommander/newsagent/internal/stream"
	"github.com/dotcommander/newsagent/internal/trace"
)

// Toolbox lists and calls toolset tools. *mcp.Session implements it.
type Toolbox interface {
	Tools(ctx context.Context) (map[string][]mmcp.Tool, error)
	CallTool(ctx context.Context, name string, data []byte) (string, error)
}

// Result is the outcome of a run.
type Result struct {
	ID       string
	Agent    string
	Topic    string
	Model    string
	Output   string
	State    map[string]string
	Articles []newsagent.Article
	Messages []proto.Message
	Steps    int
	Started  time.Time
	Finished time.Time
}

// Runner executes agent definitions.
type Runner struct {
	cfg       *config.Config
	tools     Toolbox
	newClient ClientFactory
	observe   Observer
	backoff   func() backoff.BackOff
}

// Option configures a Runner.
type Option func(*Runner)

// WithClientFactory replaces how provider clients are created.
func WithClientFactory(f ClientFactory) Option {
	return func(r *Runner) { r.newClient = f }
}

// WithObserver sets the receiver of progress events.
func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observe = o }
}

// WithBackOff sets the delay policy between retries.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(r *Runner) { r.backoff = f }
}

// NewRunner creates a runner. tools may be nil when no agent uses toolsets.
func NewRunner(cfg *config.Config, tools Toolbox, opts ...Option) *Runner {
	r := &Runner{
		cfg:       cfg,
		tools:     tools,
		newClient: NewFantasyClient,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) emit(e Event) {
	logEvent(e)
	if r.observe != nil {
		r.observe(e)
	}
}

// Run executes def on topic. A sequential definition runs its sub-agents in
// order; each agent's final text is stored in the session state under its
// output key, where later instructions can refer to it as {key}.
func (r *Runner) Run(ctx context.Context, def newsagent.Definition, topic string) (Result, error) {
	res := Result{
		ID:      uuid.NewString(),
		Agent:   def.Name,
		Topic:   topic,
		State:   map[string]string{newsagent.KeyTopic: topic},
		Started: time.Now(),
	}
	ctx, span := trace.Tracer().Start(ctx, "agent.run", oteltrace.WithAttributes(
		attribute.String("run.id", res.ID),
		attribute.String("agent.name", def.Name),
		attribute.String("topic", topic),
	))
	defer span.End()
	slog.Info("run started", "id", res.ID, "agent", def.Name, "topic", topic)

	err := r.run(ctx, def, &res)
	res.Finished = time.Now()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("run failed", "id", res.ID, "error", err)
		return res, err
	}
	span.SetAttributes(attribute.Int("steps", res.Steps), attribute.Int("articles", len(res.Articles)))
	slog.Info("run finished", "id", res.ID, "steps", res.Steps, "duration", res.Finished.Sub(res.Started))
	return res, nil
}

func (r *Runner) run(ctx context.Context, def newsagent.Definition, res *Result) error {
	if def.IsSequential() {
		for _, sub := range def.SubAgents {
			if err := r.run(ctx, sub, res); err != nil {
				return err
			}
		}
		r.emit(Event{Kind: AgentFinished, Agent: def.Name})
		return nil
	}

	out, err := r.runAgent(ctx, def, res.State)
	res.Steps += out.steps
	res.Messages = append(res.Messages, out.messages...)
	if out.model != "" {
		res.Model = out.model
	}
	if err != nil {
		return fmt.Errorf("%s: %w", def.Name, err)
	}

	text := r.postProcess(def, out.text, res)
	if def.OutputKey != "" {
		res.State[def.OutputKey] = text
	}
	res.Output = text
	r.emit(Event{Kind: AgentFinished, Agent: def.Name, Step: out.steps, Detail: summarize(text)})
	return nil
}

// postProcess normalizes the output of the well-known pipeline stages before
// the next agent sees it.
func (r *Runner) postProcess(def newsagent.Definition, text string, res *Result) string {
	switch def.OutputKey {
	case newsagent.KeySearchQueries:
		plan, err := newsagent.ParseQueries(text)
		if err != nil {
			r.emit(Event{Kind: Warning, Agent: def.Name, Detail: "output is not a query plan: " + err.Error()})
			return text
		}
		bts, err := json.Marshal(plan)
		if err != nil {
			return text
		}
		return string(bts)

	case newsagent.KeyNewsArticles:
		articles, err := newsagent.ParseArticles(text)
		if err != nil {
			r.emit(Event{Kind: Warning, Agent: def.Name, Detail: "output is not an article list: " + err.Error()})
		}
		res.Articles = newsagent.SortArticles(articles)
		out, err := newsagent.MarshalArticles(res.Articles)
		if err != nil {
			return text
		}
		return out
	}

	if def.OutputKey == newsagent.KeyReport || def.OutputKey == "" {
		if strings.TrimSpace(text) == "" {
			return newsagent.RenderReport(res.Topic, res.Articles)
		}
	}
	return text
}

type agentOutput struct {
	text     string
	model    string
	steps    int
	messages []proto.Message
}

func (r *Runner) runAgent(ctx context.Context, def newsagent.Definition, state map[string]string) (agentOutput, error) {
	ctx, span := trace.Tracer().Start(ctx, "agent "+def.Name)
	defer span.End()

	prompt, err := newsagent.InjectState(def.Instruction, state)
	if err != nil {
		return agentOutput{}, errs.Wrap(err, fmt.Sprintf("Could not prepare the instruction of %s.", def.Name))
	}
	api, mod, err := ResolveModel(r.cfg.APIs, def.API, def.Model)
	if err != nil {
		return agentOutput{}, err
	}
	client, err := r.client(ctx, api, mod)
	if err != nil {
		return agentOutput{}, err
	}
	tools, caller, err := r.toolsFor(ctx, def)
	if err != nil {
		return agentOutput{}, err
	}

	topic := state[newsagent.KeyTopic]
	attempt := func() (agentOutput, error) {
		span.SetAttributes(attribute.String("model", mod.API+"/"+mod.Name))
		req := r.request(api, mod, prompt, topic)
		req.Tools = tools
		req.ToolCaller = caller

		out, err := r.converse(ctx, def.Name, client, req)
		out.model = mod.Name
		if err == nil {
			return out, nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return out, backoff.Permanent(cerr)
		}

		action := ActionForStreamError(err, mod, prompt)
		if !action.Retry {
			return out, backoff.Permanent(action.Err)
		}
		prompt = action.Prompt
		if action.ModelOverride != "" {
			fallbackAPI, fallback, rerr := ResolveModel(r.cfg.APIs, mod.API, action.ModelOverride)
			if rerr != nil {
				return out, backoff.Permanent(rerr)
			}
			if client, rerr = r.client(ctx, fallbackAPI, fallback); rerr != nil {
				return out, backoff.Permanent(rerr)
			}
			api, mod = fallbackAPI, fallback
		}
		return out, action.Err
	}

	out, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(r.backoff()),
		backoff.WithMaxTries(uint(max(r.cfg.MaxRetries, 0))+1), //nolint:gosec
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.emit(Event{Kind: Retrying, Agent: def.Name, Err: err, Wait: wait})
		}),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

func (r *Runner) client(ctx context.Context, api config.API, mod config.Model) (stream.Client, error) {
	pcfg, err := ProviderConfig(ctx, api, mod)
	if err != nil {
		return nil, err
	}
	if err := ApplyProxyConfig(r.cfg.HTTPProxy, &pcfg); err != nil {
		return nil, err
	}
	return r.newClient(pcfg)
}

func (r *Runner) request(api config.API, mod config.Model, prompt, topic string) proto.Request {
	cfg := r.cfg
	if r := []rune(prompt); mod.MaxChars > 0 && int64(len(r)) > mod.MaxChars {
		prompt = string(r[:mod.MaxChars])
	}
	req := proto.Request{
		Messages: []proto.Message{
			{Role: proto.RoleSystem, Content: prompt},
			{Role: proto.RoleUser, Content: topic},
		},
		API:   mod.API,
		Model: mod.Name,
		User:  ordered.First(api.User, cfg.User),
	}
	if cfg.Temperature >= 0 {
		v := cfg.Temperature
		req.Temperature = &v
	}
	if cfg.TopP >= 0 {
		v := cfg.TopP
		req.TopP = &v
	}
	if cfg.TopK >= 0 {
		v := cfg.TopK
		req.TopK = &v
	}
	// o1 models do not accept max_tokens.
	if cfg.MaxTokens > 0 && !strings.HasPrefix(mod.Name, "o1") {
		v := cfg.MaxTokens
		req.MaxTokens = &v
	}
	return req
}

// toolsFor returns the tools of def's toolsets and a caller limited to them.
func (r *Runner) toolsFor(ctx context.Context, def newsagent.Definition) (map[string][]mmcp.Tool, proto.ToolCaller, error) {
	if len(def.Toolsets) == 0 || r.tools == nil {
		return nil, nil, nil
	}
	all, err := r.tools.Tools(ctx)
	if err != nil {
		return nil, nil, err //nolint:wrapcheck
	}
	tools := map[string][]mmcp.Tool{}
	for _, name := range def.Toolsets {
		if list, ok := all[name]; ok {
			tools[name] = list
		}
	}

	caller := func(name string, data []byte) (string, error) {
		toolset, _, _ := strings.Cut(name, "_")
		if !slices.Contains(def.Toolsets, toolset) {
			return "", fmt.Errorf("%w: %s", mcp.ErrNotAllowed, name)
		}
		ctx, span := trace.Tracer().Start(ctx, "tool "+name)
		defer span.End()

		r.emit(Event{Kind: ToolCalled, Agent: def.Name, Tool: name, Detail: string(data)})
		out, err := r.tools.CallTool(ctx, name, data)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", err //nolint:wrapcheck
		}
		span.SetAttributes(attribute.Int("result.bytes", len(out)))
		return out, nil
	}
	return tools, caller, nil
}

// converse streams steps until the model stops asking for tools or the step
// limit is reached.
func (r *Runner) converse(ctx context.Context, agentName string, client stream.Client, req proto.Request) (agentOutput, error) {
	st := client.Request(ctx, req)
	defer st.Close() //nolint:errcheck

	var out agentOutput
	for {
		out.steps++
		r.emit(Event{Kind: StepStarted, Agent: agentName, Step: out.steps})
		for st.Next() {
			if _, err := st.Current(); err != nil && !errors.Is(err, stream.ErrNoContent) {
				break
			}
		}
		for _, w := range st.DrainWarnings() {
			r.emit(Event{Kind: Warning, Agent: agentName, Step: out.steps, Detail: w})
		}
		if err := st.Err(); err != nil {
			out.messages = st.Messages()
			return out, err //nolint:wrapcheck
		}

		statuses := st.CallTools()
		for _, status := range statuses {
			if status.Err != nil {
				r.emit(Event{Kind: ToolFailed, Agent: agentName, Step: out.steps, Tool: status.Name, Err: status.Err})
			}
		}
		if len(statuses) == 0 {
			break
		}
		if out.steps >= r.cfg.MaxSteps {
			r.emit(Event{
				Kind:   Warning,
				Agent:  agentName,
				Step:   out.steps,
				Detail: fmt.Sprintf("stopped after %d steps", out.steps),
			})
			break
		}
	}

	out.messages = st.Messages()
	if final, ok := proto.Conversation(out.messages).Final(); ok {
		out.text = strings.TrimSpace(final.Content)
	}
	return out, nil
}

func summarize(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > 80 {
		return string(r[:77]) + "..."
	}
	return text
}
