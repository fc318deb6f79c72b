package cmd

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	mmcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/dotcommander/newsagent/internal/config"
	imcp "github.com/dotcommander/newsagent/internal/mcp"
	"github.com/dotcommander/newsagent/internal/present"
)

func newMCPCmd(rt *runtime) *cobra.Command {
	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Toolsets the agent searches with",
	}

	mcpCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured toolsets",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			mcpList(os.Stdout, present.StdoutStyles(), &rt.cfg)
			return nil
		},
	})

	mcpCmd.AddCommand(&cobra.Command{
		Use:   "tools",
		Short: "List tools from enabled toolsets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), rt.cfg.MCPTimeout)
			defer cancel()
			return mcpListTools(ctx, os.Stdout, present.StdoutStyles(), &rt.cfg)
		},
	})

	return mcpCmd
}

func mcpList(w io.Writer, styles present.Styles, cfg *config.Config) {
	svc := imcp.New(cfg)
	names := slices.Sorted(maps.Keys(cfg.MCPServers))
	for _, name := range names {
		s := name
		if svc.IsEnabled(name) {
			s += styles.Timeago.Render(" (enabled)")
		}
		if slices.Contains(cfg.Agent.Toolsets, name) {
			s += styles.Comment.Render(" (used by " + cfg.Agent.Name + ")")
		}
		if desc := cfg.MCPServers[name].Description; desc != "" {
			s += " " + styles.Comment.Render(desc)
		}
		fmt.Fprintln(w, s)
	}
}

func mcpListTools(ctx context.Context, w io.Writer, styles present.Styles, cfg *config.Config) error {
	svc := imcp.New(cfg)
	servers, err := svc.Tools(ctx)
	if err != nil {
		return fmt.Errorf("mcp list tools: %w", err)
	}

	for _, sname := range slices.Sorted(maps.Keys(servers)) {
		tools := servers[sname]
		slices.SortFunc(tools, func(a, b mmcp.Tool) int { return strings.Compare(a.Name, b.Name) })
		for _, tool := range tools {
			_, _ = fmt.Fprint(w, styles.Timeago.Render(sname+" > "))
			_, _ = fmt.Fprintln(w, tool.Name)
		}
	}
	return nil
}
