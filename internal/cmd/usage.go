package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"github.com/dotcommander/newsagent/internal/present"
)

func useLine() string {
	appName := filepath.Base(os.Args[0])

	if present.StdoutRenderer().ColorProfile() == termenv.TrueColor {
		appName = present.MakeGradientText(present.StdoutStyles().AppName, appName)
	}

	return fmt.Sprintf(
		"%s %s",
		appName,
		present.StdoutStyles().CliArgs.Render("[OPTIONS] [TOPIC]"),
	)
}

func usageFunc(cmd *cobra.Command) error {
	if cmd.HasParent() {
		return subcommandUsage(cmd)
	}
	styles := present.StdoutStyles()
	fmt.Printf(
		"Usage:\n  %s\n\n",
		useLine(),
	)
	fmt.Println("Options:")
	cmd.Flags().VisitAll(func(f *flag.Flag) {
		if f.Hidden {
			return
		}
		if f.Shorthand == "" {
			fmt.Printf(
				"  %-44s %s\n",
				styles.Flag.Render("--"+f.Name),
				styles.FlagDesc.Render(f.Usage),
			)
		} else {
			fmt.Printf(
				"  %s%s %-40s %s\n",
				styles.Flag.Render("-"+f.Shorthand),
				styles.FlagComma,
				styles.Flag.Render("--"+f.Name),
				styles.FlagDesc.Render(f.Usage),
			)
		}
	})

	fmt.Println("\nCommands:")
	for _, c := range cmd.Commands() {
		if !c.IsAvailableCommand() {
			continue
		}
		fmt.Printf("  %-22s %s\n", styles.Flag.Render(c.Name()), styles.FlagDesc.Render(c.Short))
	}

	if cmd.HasExample() {
		fmt.Printf(
			"\nExample:\n  %s\n  %s\n",
			styles.Comment.Render("# "+cmd.Example),
			cheapHighlighting(styles, examples[cmd.Example]),
		)
	}

	return nil
}

func subcommandUsage(cmd *cobra.Command) error {
	styles := present.StdoutStyles()
	fmt.Printf("Usage:\n  %s\n", styles.CliArgs.Render(cmd.UseLine()))
	if cmd.HasAvailableSubCommands() {
		fmt.Println("\nCommands:")
		for _, c := range cmd.Commands() {
			if c.IsAvailableCommand() {
				fmt.Printf("  %-22s %s\n", styles.Flag.Render(c.Name()), styles.FlagDesc.Render(c.Short))
			}
		}
	}
	if cmd.HasAvailableLocalFlags() {
		fmt.Printf("\nOptions:\n%s", cmd.LocalFlags().FlagUsages())
	}
	return nil
}
