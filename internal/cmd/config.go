package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"

	"github.com/dotcommander/newsagent/internal/config"
	"github.com/dotcommander/newsagent/internal/errs"
	"github.com/dotcommander/newsagent/internal/present"
)

func newConfigCmd(rt *runtime) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage settings",
		RunE: func(_ *cobra.Command, _ []string) error {
			// Settings can be opened even when they failed to parse.
			return editSettings(&rt.cfg)
		},
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "edit",
		Short: "Open settings in $EDITOR",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return editSettings(&rt.cfg)
		},
	})
	configCmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Reset settings to defaults",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return resetSettings(os.Stderr, &rt.cfg)
		},
	})
	configCmd.AddCommand(&cobra.Command{
		Use:       "dirs [config|cache|logs]",
		Short:     "Print config, history and log directories",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"config", "cache", "logs"},
		RunE: func(_ *cobra.Command, args []string) error {
			printDirs(os.Stdout, &rt.cfg, args)
			return nil
		},
	})

	return configCmd
}

func editSettings(cfg *config.Config) error {
	if err := config.WriteConfigFile(cfg.SettingsPath); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	c, err := editor.Cmd("newsagent", cfg.SettingsPath)
	if err != nil {
		return errs.Error{Err: err, Reason: "Could not edit your settings file."}
	}
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return errs.Error{Err: err, Reason: fmt.Sprintf(
			"Missing %s.",
			present.StderrStyles().InlineCode.Render("$EDITOR"),
		)}
	}

	if !cfg.Quiet {
		fmt.Fprintln(os.Stderr, "Wrote config file to:", cfg.SettingsPath)
	}
	return nil
}

// resetSettings moves the settings file to a .bak file and writes the
// defaults in its place.
func resetSettings(w io.Writer, cfg *config.Config) error {
	bak := cfg.SettingsPath + ".bak"
	content, err := os.ReadFile(cfg.SettingsPath)
	if err != nil {
		return errs.Error{Err: err, Reason: "Couldn't read config file."}
	}
	if err := os.WriteFile(bak, content, 0o600); err != nil {
		return errs.Error{Err: err, Reason: "Couldn't backup config file."}
	}
	if err := os.Remove(cfg.SettingsPath); err != nil {
		return errs.Error{Err: err, Reason: "Couldn't remove config file."}
	}
	if err := config.WriteConfigFile(cfg.SettingsPath); err != nil {
		return errs.Error{Err: err, Reason: "Couldn't write new config file."}
	}

	if !cfg.Quiet {
		styles := present.StderrStyles()
		fmt.Fprintln(w, "\nSettings restored to defaults!")
		fmt.Fprintf(
			w,
			"\n  %s %s\n\n",
			styles.Comment.Render("Your old settings have been saved to:"),
			styles.Link.Render(bak),
		)
	}
	return nil
}

func printDirs(w io.Writer, cfg *config.Config, args []string) {
	if len(args) > 0 {
		switch args[0] {
		case "config":
			fmt.Fprintln(w, filepath.Dir(cfg.SettingsPath))
			return
		case "cache":
			fmt.Fprintln(w, cfg.CachePath)
			return
		case "logs":
			fmt.Fprintln(w, filepath.Dir(cfg.LogPath()))
			return
		}
	}

	fmt.Fprintf(w, "Configuration: %s\n", filepath.Dir(cfg.SettingsPath))
	//nolint:mnd
	fmt.Fprintf(w, "%*sHistory: %s\n", 6, " ", cfg.CachePath)
	//nolint:mnd
	fmt.Fprintf(w, "%*sLogs: %s\n", 9, " ", filepath.Dir(cfg.LogPath()))
}
