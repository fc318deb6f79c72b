// Package main provides the newsagent CLI.
package main

import (
	"github.com/dotcommander/newsagent/internal/cmd"
	"github.com/dotcommander/newsagent/internal/config"
)

// Build vars.
var (
	//nolint: gochecknoglobals
	Version = ""
	//nolint: gochecknoglobals
	CommitSHA = ""
)

func main() {
	cfg, cfgErr := config.Ensure()
	cmd.Execute(cmd.BuildInfo{Version: Version, CommitSHA: CommitSHA}, cfg, cfgErr)
}
