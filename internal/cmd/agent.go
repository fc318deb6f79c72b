package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/newsagent/internal/errs"
	"github.com/dotcommander/newsagent/internal/newsagent"
)

func newAgentCmd(rt *runtime) *cobra.Command {
	agentCmd := &cobra.Command{
		Use:   "agent",
		Short: "Inspect the news agent",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the agent definition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			def, err := newsagent.Build(cmd.Context(), &rt.cfg)
			if err != nil {
				return errs.Wrap(err, "Could not build the agent.")
			}
			_, err = fmt.Fprint(os.Stdout, newsagent.Describe(def, rt.cfg.MCPServers))
			return err //nolint:wrapcheck
		},
	}
	showCmd.Flags().StringVar(&rt.cfg.Agent.Mode, "mode", rt.cfg.Agent.Mode, helpText["mode"])
	agentCmd.AddCommand(showCmd)

	return agentCmd
}
