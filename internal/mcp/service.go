// Package mcp connects the agent to its toolsets: MCP servers launched as
// subprocesses, reached over SSE or HTTP, or served in-process.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dotcommander/newsagent/internal/config"
	"github.com/dotcommander/newsagent/internal/credential"
	"github.com/dotcommander/newsagent/internal/errs"
)

// Service provides access to toolset configuration and opens sessions.
type Service struct {
	cfg  *config.Config
	dial Dialer
}

// New creates a new toolset service.
func New(cfg *config.Config) *Service {
	return &Service{cfg: cfg, dial: dial}
}

// WithDialer replaces how toolset clients are created.
func (s *Service) WithDialer(d Dialer) *Service {
	s.dial = d
	return s
}

// IsEnabled reports whether the named toolset is enabled.
func (s *Service) IsEnabled(name string) bool {
	return !slices.Contains(s.cfg.MCPDisable, "*") &&
		!slices.Contains(s.cfg.MCPDisable, name)
}

// EnabledServers iterates enabled toolsets in stable order.
func (s *Service) EnabledServers() iter.Seq2[string, config.MCPServerConfig] {
	return func(yield func(string, config.MCPServerConfig) bool) {
		names := slices.Sorted(maps.Keys(s.cfg.MCPServers))
		for _, name := range names {
			if !s.IsEnabled(name) {
				continue
			}
			if !yield(name, s.cfg.MCPServers[name]) {
				return
			}
		}
	}
}

var docsURLs = map[string]string{
	"TAVILY_API_KEY": "https://app.tavily.com/home",
	"BRAVE_API_KEY":  "https://api-dashboard.search.brave.com/app/keys",
	"API_TOKEN":      "https://brightdata.com/cp/setting/users",
}

// ResolveCredential returns the toolset's credential. The descriptor's own
// env entry is checked first, then the process environment, then
// credential-cmd. Toolsets without a credential-env or credential-cmd need
// no credential.
func (s *Service) ResolveCredential(ctx context.Context, server config.MCPServerConfig) (string, error) {
	if server.CredentialEnv == "" && server.CredentialCmd == "" {
		return "", nil
	}
	src := credential.Source{Cmd: server.CredentialCmd}
	if server.CredentialEnv != "" {
		src.Value = lookupEnv(expandEnv(server.Env), server.CredentialEnv)
		src.Env = []string{server.CredentialEnv}
	}
	key, err := credential.Resolve(ctx, src)
	if err != nil {
		return "", errs.Wrap(err, "Could not run credential-cmd.")
	}
	if key == "" {
		name := server.CredentialEnv
		if name == "" {
			name = "credential-cmd output"
		}
		return "", errs.MissingCredential(name, docsURLs[server.CredentialEnv])
	}
	return key, nil
}

// Env builds the environment of a stdio toolset: the inherited environment
// (unless disabled), the descriptor's entries with $VARS expanded, and the
// resolved credential.
func (s *Service) Env(ctx context.Context, server config.MCPServerConfig) ([]string, error) {
	var env []string
	if !s.cfg.MCPNoInheritEnv {
		env = os.Environ()
	}
	env = append(env, expandEnv(server.Env)...)
	key, err := s.ResolveCredential(ctx, server)
	if err != nil {
		return nil, err
	}
	if key != "" && server.CredentialEnv != "" {
		env = append(env, server.CredentialEnv+"="+key)
	}
	return env, nil
}

func expandEnv(entries []string) []string {
	out := make([]string, 0, len(entries))
	for _, kv := range entries {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			// A bare name passes the variable through.
			out = append(out, k+"="+os.Getenv(k))
			continue
		}
		out = append(out, k+"="+os.ExpandEnv(v))
	}
	return out
}

func lookupEnv(env []string, name string) string {
	for _, kv := range slices.Backward(env) {
		if k, v, ok := strings.Cut(kv, "="); ok && k == name {
			return v
		}
	}
	return ""
}

// Tools connects to every enabled toolset and returns their tools grouped by
// toolset name.
func (s *Service) Tools(ctx context.Context) (map[string][]mcp.Tool, error) {
	sess := s.NewSession(slices.Collect(keys(s.EnabledServers())))
	defer sess.Close() //nolint:errcheck
	return sess.Tools(ctx)
}

// Check resolves the credential of each named toolset, and connects to it
// when connect is set. It returns one error per failing toolset.
func (s *Service) Check(ctx context.Context, names []string, connect bool) map[string]error {
	problems := map[string]error{}
	for _, name := range names {
		server, ok := s.cfg.MCPServers[name]
		if !ok {
			problems[name] = fmt.Errorf("toolset %q is not configured", name)
			continue
		}
		if _, err := s.ResolveCredential(ctx, server); err != nil {
			problems[name] = err
			continue
		}
		if !connect {
			continue
		}
		sess := s.NewSession([]string{name})
		_, err := sess.Tools(ctx)
		if cerr := sess.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			problems[name] = err
		}
	}
	return problems
}

func keys[K, V any](seq iter.Seq2[K, V]) iter.Seq[K] {
	return func(yield func(K) bool) {
		for k := range seq {
			if !yield(k) {
				return
			}
		}
	}
}

// ErrNotAllowed is returned for tools outside the session's toolsets.
var ErrNotAllowed = errors.New("toolset not available to this agent")
