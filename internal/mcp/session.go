package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/dotcommander/newsagent/internal/errs"
)

// Session holds the toolset connections of one run. Each toolset is
// connected on first use and kept open until Close. Concurrent callers of a
// toolset that is still connecting wait for it. A failed connection is
// retried by the next caller.
type Session struct {
	svc     *Service
	allowed []string

	// ctx bounds the toolset connections and is canceled by Close.
	ctx    context.Context //nolint:containedctx
	cancel context.CancelFunc

	mu     sync.Mutex
	conns  map[string]*conn
	closed bool
}

type conn struct {
	mu    sync.Mutex
	cli   *client.Client
	tools []mcp.Tool
}

// NewSession opens a session limited to the given toolsets. Disabled
// toolsets are dropped.
func (s *Service) NewSession(allowed []string) *Session {
	names := make([]string, 0, len(allowed))
	for _, name := range allowed {
		if s.IsEnabled(name) && !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{svc: s, allowed: names, ctx: ctx, cancel: cancel, conns: map[string]*conn{}}
}

// Toolsets returns the toolsets the session may use.
func (s *Session) Toolsets() []string {
	return slices.Clone(s.allowed)
}

func (s *Session) conn(name string) (*conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("mcp: session is closed")
	}
	c, ok := s.conns[name]
	if !ok {
		c = &conn{}
		s.conns[name] = c
	}
	return c, nil
}

// connect returns the toolset's client, creating it if needed.
func (s *Session) connect(ctx context.Context, name string) (*conn, error) {
	if !slices.Contains(s.allowed, name) {
		return nil, fmt.Errorf("%w: %q", ErrNotAllowed, name)
	}
	server, ok := s.svc.cfg.MCPServers[name]
	if !ok {
		return nil, fmt.Errorf("mcp: invalid toolset name: %q", name)
	}
	c, err := s.conn(name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cli != nil {
		return c, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.svc.cfg.MCPTimeout)
	defer cancel()

	env, err := s.svc.Env(ctx, server)
	if err != nil {
		return nil, err
	}

	slog.Debug("connecting toolset", "toolset", name, "type", server.Transport())
	cli, err := s.svc.dial(s.ctx, name, server, env)
	if err == nil {
		if err = Initialize(ctx, cli); err != nil {
			_ = cli.Close()
		}
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errs.Wrap(
				fmt.Errorf("timeout while starting %q - make sure the command works on its own and the credential is valid", name),
				"Could not start toolset",
			)
		}
		return nil, fmt.Errorf("could not setup %s: %w", name, err)
	}
	tools, err := cli.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("could not list tools of %s: %w", name, err)
	}
	if s.ctx.Err() != nil {
		_ = cli.Close()
		return nil, errors.New("mcp: session is closed")
	}
	c.cli = cli
	c.tools = tools.Tools
	slog.Debug("toolset connected", "toolset", name, "tools", len(c.tools))
	return c, nil
}

// Tools connects every toolset of the session concurrently and returns their
// tools grouped by toolset name.
func (s *Session) Tools(ctx context.Context) (map[string][]mcp.Tool, error) {
	var mu sync.Mutex
	var wg errgroup.Group
	result := map[string][]mcp.Tool{}
	for _, name := range s.allowed {
		wg.Go(func() error {
			c, err := s.connect(ctx, name)
			if err != nil {
				return errs.Wrap(err, "Could not list tools")
			}
			mu.Lock()
			result[name] = slices.Clone(c.tools)
			mu.Unlock()
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return nil, fmt.Errorf("mcp tools: %w", err)
	}
	return result, nil
}

// CallTool executes a tool. fullName must be of the form <toolset>_<tool>.
func (s *Session) CallTool(ctx context.Context, fullName string, data []byte) (string, error) {
	name, tool, ok := strings.Cut(fullName, "_")
	if !ok {
		return "", fmt.Errorf("mcp: invalid tool name: %q", fullName)
	}
	c, err := s.connect(ctx, name)
	if err != nil {
		return "", fmt.Errorf("mcp: %w", err)
	}

	var args map[string]any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &args); err != nil {
			return "", fmt.Errorf("mcp: %w: %s", err, string(data))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.svc.cfg.MCPTimeout)
	defer cancel()

	request := mcp.CallToolRequest{}
	request.Params.Name = tool
	request.Params.Arguments = args
	result, err := c.cli.CallTool(ctx, request)
	if err != nil {
		return "", fmt.Errorf("mcp: %w", err)
	}

	var sb strings.Builder
	for _, content := range result.Content {
		switch content := content.(type) {
		case mcp.TextContent:
			sb.WriteString(content.Text)
		default:
			sb.WriteString("[Non-text content]")
		}
	}

	if result.IsError {
		return "", errors.New(sb.String())
	}
	return sb.String(), nil
}

// Close disconnects every toolset. The session cannot be used afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.cancel()

	var problems []error
	for name, c := range s.conns {
		c.mu.Lock()
		if c.cli != nil {
			if err := c.cli.Close(); err != nil {
				problems = append(problems, fmt.Errorf("close %s: %w", name, err))
			}
			c.cli = nil
		}
		c.mu.Unlock()
	}
	return errors.Join(problems...)
}
