package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotcommander/newsagent/internal/config"
	"github.com/dotcommander/newsagent/internal/mcp"
	"github.com/dotcommander/newsagent/internal/newsagent"
	"github.com/dotcommander/newsagent/internal/present"
)

func newCheckCmd(rt *runtime) *cobra.Command {
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Check the settings, models, instructions and toolsets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			timeout := rt.cfg.MCPTimeout
			if timeout <= 0 {
				timeout = config.Default().MCPTimeout
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout*2) //nolint:mnd
			defer cancel()
			return runCheck(ctx, os.Stdout, present.StdoutStyles(), &rt.cfg)
		},
	}
	checkCmd.Flags().BoolVar(&rt.cfg.Connect, "connect", false, helpText["connect"])
	return checkCmd
}

// runCheck prints one line per check and fails when any check failed.
func runCheck(ctx context.Context, w io.Writer, styles present.Styles, cfg *config.Config) error {
	results := checks{{Name: "settings", Err: config.Validate(*cfg)}}
	def, err := newsagent.Build(ctx, cfg)
	if err != nil {
		results = append(results, checkResult{Name: "agent definition", Err: err})
	} else {
		results = append(results, preflight(ctx, cfg, mcp.New(cfg), def, cfg.Connect)...)
	}

	for _, r := range results {
		if r.Err == nil {
			fmt.Fprintf(w, "%s %s\n", styles.Success.Render("✓"), r.Name)
			continue
		}
		fmt.Fprintf(w, "%s %s\n", styles.Warning.Render("✗"), r.Name)
		for _, line := range strings.Split(describeErr(r.Err), "\n") {
			fmt.Fprintf(w, "    %s\n", styles.Comment.Render(line))
		}
	}
	return results.Err()
}
