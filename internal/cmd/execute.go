package cmd

import (
	"os"

	"github.com/dotcommander/newsagent/internal/config"
	"github.com/dotcommander/newsagent/internal/present"
)

// Execute wires commands and runs Cobra.
func Execute(build BuildInfo, cfg config.Config, cfgErr error) {
	root, rt := newRoot(build, cfg, cfgErr)
	err := root.Execute()
	rt.shutdown()
	if err != nil {
		handleError(os.Stderr, present.StderrStyles(), err)
		os.Exit(1)
	}
}
