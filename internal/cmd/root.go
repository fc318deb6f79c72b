package cmd

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	glamour "github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"

	"github.com/dotcommander/newsagent/internal/agent"
	"github.com/dotcommander/newsagent/internal/config"
	"github.com/dotcommander/newsagent/internal/errs"
	"github.com/dotcommander/newsagent/internal/logging"
	"github.com/dotcommander/newsagent/internal/mcp"
	"github.com/dotcommander/newsagent/internal/newsagent"
	"github.com/dotcommander/newsagent/internal/present"
	"github.com/dotcommander/newsagent/internal/storage"
	"github.com/dotcommander/newsagent/internal/trace"
	"github.com/dotcommander/newsagent/internal/tui"
)

const traceShutdownTimeout = 5 * time.Second

type runtime struct {
	build   BuildInfo
	cfg     config.Config
	cfgErr  error
	closers []func() error
}

// NewRootCmd constructs the Cobra root command.
func NewRootCmd(build BuildInfo, cfg config.Config, cfgErr error) *cobra.Command {
	root, _ := newRoot(build, cfg, cfgErr)
	return root
}

func newRoot(build BuildInfo, cfg config.Config, cfgErr error) (*cobra.Command, *runtime) {
	// XXX: unset error styles in Glamour dark and light styles.
	glamour.DarkStyleConfig.CodeBlock.Chroma.Error.BackgroundColor = new(string)
	glamour.LightStyleConfig.CodeBlock.Chroma.Error.BackgroundColor = new(string)

	rt := &runtime{build: normalizeBuildInfo(build), cfg: cfg, cfgErr: cfgErr}

	rootCmd := &cobra.Command{
		Use:           "newsagent",
		Short:         "Search the news on a topic and get a dated report.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example:       randomExample(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.setup(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return rt.runSearch(ctx, args)
		},
	}

	rootCmd.SetUsageFunc(usageFunc)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return newFlagParseError(err)
	})

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.Version = rt.build.Version
	rootCmd.SetVersionTemplate(versionTemplate(rt.build))

	initRootFlags(rootCmd, &rt.cfg)

	rootCmd.AddCommand(newCheckCmd(rt))
	rootCmd.AddCommand(newAgentCmd(rt))
	rootCmd.AddCommand(newHistoryCmd(rt))
	rootCmd.AddCommand(newConfigCmd(rt))
	rootCmd.AddCommand(newMCPCmd(rt))
	rootCmd.AddCommand(newManCmd(rootCmd))
	rootCmd.AddCommand(newUpgradeCmd(rt))

	// Enable completion now that we have subcommands.
	rootCmd.InitDefaultCompletionCmd()

	return rootCmd, rt
}

// setup starts logging and tracing once flags are parsed. Without a usable
// configuration nothing is set up, so `config edit` still works.
func (rt *runtime) setup(ctx context.Context) error {
	mcp.Version = rt.build.Version
	if rt.cfgErr != nil || rt.cfg.CachePath == "" {
		return nil
	}
	closeLog, err := logging.Setup(logging.Config{Path: rt.cfg.LogPath(), Debug: rt.cfg.Debug})
	if err != nil {
		return errs.Wrap(err, "Could not open the log file.")
	}
	rt.closers = append(rt.closers, closeLog)

	shutdown, err := trace.Init(ctx, rt.cfg.TraceEndpoint, rt.build.Version)
	if err != nil {
		return errs.Wrap(err, "Could not set up tracing.")
	}
	rt.closers = append(rt.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), traceShutdownTimeout)
		defer cancel()
		return shutdown(ctx)
	})
	return nil
}

func (rt *runtime) shutdown() {
	for _, c := range slices.Backward(rt.closers) {
		_ = c()
	}
	rt.closers = nil
}

func (rt *runtime) runSearch(ctx context.Context, args []string) error {
	cfg := &rt.cfg
	if os.Getenv("VIMRUNTIME") != "" {
		cfg.Quiet = true
	}

	topic, err := readTopic(args)
	if err != nil {
		return errs.Wrap(err, "Could not read the topic from STDIN.")
	}
	cfg.Topic = topic

	if cfg.Topic == "" && present.IsInputTTY() && cfg.OpenEditor {
		topic, err := topicFromEditor(cfg.SettingsPath)
		if err != nil {
			return errs.Wrap(err, "Could not read the topic from your editor.")
		}
		cfg.Topic = strings.TrimSpace(topic)
	}

	if (cfg.Topic == "" || cfg.AskModel) && present.IsInputTTY() {
		if err := askInfo(cfg); err != nil && errors.Is(err, huh.ErrUserAborted) {
			return errs.Error{Err: err, Reason: "User canceled."}
		} else if err != nil {
			return errs.Error{Err: err, Reason: "Prompt failed."}
		}
	}

	cfg.Topic = strings.TrimSpace(cfg.Topic)
	if cfg.Topic == "" {
		return errs.Error{
			Reason: "You haven't provided a topic.",
			Err: errs.UserErrorf(
				"You can give the topic as arguments and/or pipe it from STDIN.\nExample: %s",
				present.StdoutStyles().InlineCode.Render("newsagent [topic]"),
			),
		}
	}
	if err := validateFormat(cfg.FormatAs); err != nil {
		return err
	}
	if err := config.Validate(*cfg); err != nil {
		return err
	}

	def, err := newsagent.Build(ctx, cfg)
	if err != nil {
		return errs.Wrap(err, "Could not build the agent.")
	}

	svc := mcp.New(cfg)
	if err := preflight(ctx, cfg, svc, def, false).Err(); err != nil {
		return err
	}

	sess := svc.NewSession(toolsetsOf(def))
	defer sess.Close() //nolint:errcheck

	res, err := rt.execute(ctx, func(ctx context.Context, observe agent.Observer) (agent.Result, error) {
		return agent.NewRunner(cfg, sess, agent.WithObserver(observe)).Run(ctx, def, cfg.Topic)
	})
	if err != nil {
		return err
	}

	report := newReport(cfg, res)
	if err := printReport(os.Stdout, cfg, report); err != nil {
		return err
	}
	return saveReport(cfg, report)
}

// execute runs the agents behind the progress UI when stderr is a terminal,
// and logs events as plain lines otherwise.
func (rt *runtime) execute(ctx context.Context, run tui.RunFunc) (agent.Result, error) {
	switch {
	case rt.cfg.Quiet:
		return run(ctx, nil)
	case present.IsErrorTTY():
		return tui.Run(ctx, os.Stderr, present.StderrRenderer(), rt.cfg.Topic, run)
	default:
		return run(ctx, tui.LogObserver(os.Stderr, present.StderrStyles()))
	}
}

func saveReport(cfg *config.Config, report storage.Report) error {
	if cfg.NoCache {
		return nil
	}
	h, err := storage.OpenHistory(cfg.CachePath)
	if err != nil {
		return errs.Wrap(err, "Could not open the search history.")
	}
	defer h.Close() //nolint:errcheck
	if err := h.Add(report); err != nil {
		return errs.Wrap(err, "Could not save the search.")
	}
	return nil
}

func topicFromEditor(appName string) (string, error) {
	f, err := os.CreateTemp("", "topic")
	if err != nil {
		return "", fmt.Errorf("could not create temporary file: %w", err)
	}
	_ = f.Close()
	defer func() { _ = os.Remove(f.Name()) }()

	c, err := editor.Cmd(
		appName,
		f.Name(),
	)
	if err != nil {
		return "", fmt.Errorf("could not open editor: %w", err)
	}
	c.Stdin = os.Stdin
	c.Stderr = os.Stderr
	c.Stdout = os.Stdout
	if err := c.Run(); err != nil {
		return "", fmt.Errorf("could not open editor: %w", err)
	}
	topic, err := os.ReadFile(f.Name())
	if err != nil {
		return "", fmt.Errorf("could not read file: %w", err)
	}
	return string(topic), nil
}

// askInfo is the interactive prompt that picks the API and model, and asks
// for the topic when none was given.
func askInfo(cfg *config.Config) error {
	apis := make([]huh.Option[string], 0, len(cfg.APIs))
	opts := map[string][]huh.Option[string]{}
	for _, api := range cfg.APIs {
		apis = append(apis, huh.NewOption(api.Name, api.Name))
		for _, name := range slices.Sorted(maps.Keys(api.Models)) {
			model := api.Models[name]
			opts[api.Name] = append(opts[api.Name], huh.NewOption(name, name))

			if !cfg.AskModel &&
				(cfg.API == "" || cfg.API == api.Name) &&
				(cfg.Model == name || slices.Contains(model.Aliases, cfg.Model)) {
				cfg.API = api.Name
				cfg.Model = name
			}
		}
	}

	if err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Choose the API:").
				Options(apis...).
				Value(&cfg.API),
			huh.NewSelect[string]().
				TitleFunc(func() string {
					return fmt.Sprintf("Choose the model for '%s':", cfg.API)
				}, &cfg.API).
				OptionsFunc(func() []huh.Option[string] {
					return opts[cfg.API]
				}, &cfg.API).
				Value(&cfg.Model),
		).WithHideFunc(func() bool {
			return !cfg.AskModel
		}),
		huh.NewGroup(
			huh.NewInput().
				TitleFunc(func() string {
					return fmt.Sprintf("What news should %s/%s look for?", cfg.API, cfg.Model)
				}, &cfg.Model).
				Placeholder("interest rates").
				Value(&cfg.Topic),
		).WithHideFunc(func() bool {
			return cfg.Topic != ""
		}),
	).
		WithTheme(themeFrom(cfg.Theme)).
		Run(); err != nil {
		return fmt.Errorf("prompt form: %w", err)
	}
	return nil
}

func themeFrom(theme string) *huh.Theme {
	switch theme {
	case "dracula":
		return huh.ThemeDracula()
	case "catppuccin":
		return huh.ThemeCatppuccin()
	case "base16":
		return huh.ThemeBase16()
	default:
		return huh.ThemeCharm()
	}
}
