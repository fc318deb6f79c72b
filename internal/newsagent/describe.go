package newsagent

import (
	"fmt"
	"strings"

	"github.com/dotcommander/newsagent/internal/config"
)

// Describe renders a definition and the launch descriptors of its toolsets
// as indented text. Literal credentials are redacted.
func Describe(def Definition, servers map[string]config.MCPServerConfig) string {
	var sb strings.Builder
	describe(&sb, def, servers, 0)
	return sb.String()
}

func describe(sb *strings.Builder, def Definition, servers map[string]config.MCPServerConfig, depth int) {
	pad := strings.Repeat("  ", depth)
	line := func(format string, a ...any) {
		sb.WriteString(pad)
		fmt.Fprintf(sb, format, a...)
		sb.WriteByte('\n')
	}

	line("%s", def.Name)
	pad += "  "
	if def.Description != "" {
		line("description: %s", def.Description)
	}
	if def.IsSequential() {
		line("runs: sequentially")
	} else {
		line("model: %s/%s", def.API, def.Model)
	}
	if def.OutputKey != "" {
		line("output key: %s", def.OutputKey)
	}
	for _, name := range def.Toolsets {
		srv, ok := servers[name]
		if !ok {
			line("toolset %s: not configured", name)
			continue
		}
		line("toolset %s: %s", name, launchLine(srv))
		for _, kv := range redactedEnv(srv) {
			line("  env: %s", kv)
		}
	}
	if def.Instruction != "" {
		line("instruction:")
		for l := range strings.SplitSeq(def.Instruction, "\n") {
			line("  | %s", l)
		}
	}
	for _, sub := range def.SubAgents {
		describe(sb, sub, servers, depth+1)
	}
}

func launchLine(srv config.MCPServerConfig) string {
	switch srv.Transport() {
	case config.TransportSSE, config.TransportHTTP:
		return fmt.Sprintf("%s %s", srv.Transport(), srv.URL)
	case config.TransportBuiltin:
		return "builtin " + srv.Builtin
	default:
		return strings.TrimSpace(srv.Command + " " + strings.Join(srv.Args, " "))
	}
}

func redactedEnv(srv config.MCPServerConfig) []string {
	out := make([]string, 0, len(srv.Env)+1)
	for _, kv := range srv.Env {
		k, v, _ := strings.Cut(kv, "=")
		out = append(out, k+"="+redact(v))
	}
	switch {
	case srv.CredentialEnv != "" && srv.CredentialCmd != "":
		out = append(out, fmt.Sprintf("%s=<$%s or `%s`>", srv.CredentialEnv, srv.CredentialEnv, srv.CredentialCmd))
	case srv.CredentialEnv != "":
		out = append(out, fmt.Sprintf("%s=<$%s>", srv.CredentialEnv, srv.CredentialEnv))
	}
	return out
}

func redact(v string) string {
	if v == "" || strings.HasPrefix(v, "$") {
		return v
	}
	return "***"
}
