package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/newsagent/internal/config"
	"github.com/dotcommander/newsagent/internal/present"
)

func initRootFlags(cmd *cobra.Command, cfg *config.Config) {
	desc := func(name string) string {
		return present.StdoutStyles().FlagDesc.Render(helpText[name])
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfg.Model, "model", "m", cfg.Model, desc("model"))
	flags.BoolVarP(&cfg.AskModel, "ask-model", "M", cfg.AskModel, desc("ask-model"))
	flags.StringVarP(&cfg.API, "api", "a", cfg.API, desc("api"))
	flags.StringVar(&cfg.Agent.Mode, "mode", cfg.Agent.Mode, desc("mode"))
	flags.IntVar(&cfg.Agent.Articles, "articles", cfg.Agent.Articles, desc("articles"))
	flags.StringSliceVar(&cfg.Agent.Toolsets, "toolset", cfg.Agent.Toolsets, desc("toolset"))
	flags.StringVarP(&cfg.HTTPProxy, "http-proxy", "x", cfg.HTTPProxy, desc("http-proxy"))
	flags.StringVar(&cfg.FormatAs, "format-as", cfg.FormatAs, desc("format-as"))
	flags.BoolVarP(&cfg.Raw, "raw", "r", cfg.Raw, desc("raw"))
	flags.BoolVarP(&cfg.Quiet, "quiet", "q", cfg.Quiet, desc("quiet"))
	flags.BoolVarP(&cfg.OpenEditor, "editor", "e", false, desc("editor"))
	flags.BoolP("help", "h", false, desc("help"))
	flags.BoolP("version", "v", false, desc("version"))
	flags.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, desc("max-retries"))
	flags.IntVar(&cfg.MaxSteps, "max-steps", cfg.MaxSteps, desc("max-steps"))
	flags.Int64Var(&cfg.MaxTokens, "max-tokens", cfg.MaxTokens, desc("max-tokens"))
	flags.IntVar(&cfg.WordWrap, "word-wrap", cfg.WordWrap, desc("word-wrap"))
	flags.Float64Var(&cfg.Temperature, "temp", cfg.Temperature, desc("temp"))
	flags.Float64Var(&cfg.TopP, "topp", cfg.TopP, desc("topp"))
	flags.Int64Var(&cfg.TopK, "topk", cfg.TopK, desc("topk"))
	flags.BoolVar(&cfg.NoCache, "no-cache", cfg.NoCache, desc("no-cache"))
	flags.StringVar(&cfg.Theme, "theme", cfg.Theme, desc("theme"))
	flags.StringArrayVar(&cfg.MCPDisable, "mcp-disable", cfg.MCPDisable, desc("mcp-disable"))
	flags.BoolVar(&cfg.Debug, "debug", cfg.Debug, desc("debug"))
	flags.SortFlags = false

	_ = cmd.RegisterFlagCompletionFunc("api", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		names := make([]string, 0, len(cfg.APIs))
		for _, api := range cfg.APIs {
			names = append(names, api.Name)
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("model", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		var names []string
		for _, api := range cfg.APIs {
			if cfg.API != "" && api.Name != cfg.API {
				continue
			}
			for name := range api.Models {
				names = append(names, name)
			}
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("mode", cobra.FixedCompletions(
		[]string{config.ModeSingle, config.ModePipeline},
		cobra.ShellCompDirectiveNoFileComp,
	))
	for _, name := range []string{"toolset", "mcp-disable"} {
		_ = cmd.RegisterFlagCompletionFunc(name, func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
			names := make([]string, 0, len(cfg.MCPServers))
			for name := range cfg.MCPServers {
				names = append(names, name)
			}
			return names, cobra.ShellCompDirectiveNoFileComp
		})
	}
}

// completeSearches completes history arguments with saved search ids and
// topics. The index is opened lazily.
func completeSearches(cfg *config.Config) cobra.CompletionFunc {
	return func(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if cfg.CachePath == "" {
			return nil, cobra.ShellCompDirectiveDefault
		}
		h, err := openHistory(cfg)
		if err != nil {
			return nil, cobra.ShellCompDirectiveDefault
		}
		defer h.Close() //nolint:errcheck
		return h.DB.Completions(toComplete), cobra.ShellCompDirectiveNoFileComp
	}
}
