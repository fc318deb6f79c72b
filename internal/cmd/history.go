package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	timeago "github.com/caarlos0/timea.go"
	"github.com/charmbracelet/huh"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/dotcommander/newsagent/internal/config"
	"github.com/dotcommander/newsagent/internal/errs"
	"github.com/dotcommander/newsagent/internal/present"
	"github.com/dotcommander/newsagent/internal/proto"
	"github.com/dotcommander/newsagent/internal/storage"
)

func newHistoryCmd(rt *runtime) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Manage saved searches",
	}

	historyCmd.AddCommand(newHistoryListCmd(rt))
	historyCmd.AddCommand(newHistoryShowCmd(rt))
	historyCmd.AddCommand(newHistoryDeleteCmd(rt))
	historyCmd.AddCommand(newHistoryPruneCmd(rt))

	return historyCmd
}

func newHistoryListCmd(rt *runtime) *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved searches",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			return listSearches(os.Stdout, &rt.cfg)
		},
	}
	listCmd.Flags().BoolVarP(&rt.cfg.Raw, "raw", "r", rt.cfg.Raw, helpText["raw"])
	return listCmd
}

func newHistoryShowCmd(rt *runtime) *cobra.Command {
	var last, messages bool
	showCmd := &cobra.Command{
		Use:               "show [id-or-topic]",
		Short:             "Show a saved report",
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completeSearches(&rt.cfg),
		RunE: func(_ *cobra.Command, args []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			drainStdin()
			if err := validateFormat(rt.cfg.FormatAs); err != nil {
				return err
			}
			in := ""
			if len(args) == 1 {
				in = args[0]
			}
			if in == "" && !last {
				return errs.Wrap(
					errs.UserErrorf("Give an id or a topic, or use --last."),
					"Which search should be shown?",
				)
			}
			return showSearch(os.Stdout, &rt.cfg, in, messages)
		},
	}
	showCmd.Flags().BoolVarP(&last, "last", "S", false, helpText["last"])
	showCmd.Flags().BoolVar(&messages, "messages", false, helpText["messages"])
	showCmd.Flags().StringVar(&rt.cfg.FormatAs, "format-as", rt.cfg.FormatAs, helpText["format-as"])
	showCmd.Flags().BoolVarP(&rt.cfg.Raw, "raw", "r", rt.cfg.Raw, helpText["raw"])
	return showCmd
}

func newHistoryDeleteCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:               "delete <id-or-topic> [more...]",
		Short:             "Delete saved searches",
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: completeSearches(&rt.cfg),
		RunE: func(_ *cobra.Command, args []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			return deleteSearches(os.Stderr, &rt.cfg, args)
		},
	}
}

func newHistoryPruneCmd(rt *runtime) *cobra.Command {
	var olderThan time.Duration
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete searches older than a duration",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			return pruneSearches(os.Stderr, &rt.cfg, olderThan)
		},
	}
	pruneCmd.Flags().Var(newDurationFlag(olderThan, &olderThan), "older-than", helpText["older-than"])
	pruneCmd.Flags().BoolVarP(&rt.cfg.Quiet, "quiet", "q", rt.cfg.Quiet, helpText["quiet"])
	return pruneCmd
}

func openHistory(cfg *config.Config) (*storage.History, error) {
	h, err := storage.OpenHistory(cfg.CachePath)
	if err != nil {
		return nil, errs.Wrap(err, "Could not open the search history.")
	}
	return h, nil
}

func listSearches(w io.Writer, cfg *config.Config) error {
	h, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer h.Close() //nolint:errcheck

	searches := h.DB.List()
	if len(searches) == 0 {
		fmt.Fprintln(os.Stderr, "No searches found.")
		return nil
	}

	if present.IsInputTTY() && present.IsOutputTTY() && !cfg.Raw {
		selectFromList(searches)
		return nil
	}
	printList(w, present.StdoutStyles(), searches)
	return nil
}

// showSearch prints a saved report, or the model transcript of the search
// when messages is set.
func showSearch(w io.Writer, cfg *config.Config, in string, messages bool) error {
	h, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer h.Close() //nolint:errcheck

	if in == "" {
		latest, err := h.DB.Latest()
		if err != nil {
			return errs.Wrap(err, "There are no saved searches yet.")
		}
		in = latest.ID
	}
	report, err := h.Get(in)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return errs.Wrapf(err, "The report of %q is missing; delete it with: newsagent history delete %s",
			report.Search.Topic, storage.ShortID(report.Search.ID))
	case err != nil:
		return errs.Wrap(err, "Could not find the search.")
	}
	if messages {
		_, err := fmt.Fprintln(w, proto.Conversation(report.Messages).String())
		return err //nolint:wrapcheck
	}
	return printReport(w, cfg, report)
}

func deleteSearches(w io.Writer, cfg *config.Config, targets []string) error {
	h, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer h.Close() //nolint:errcheck

	var total int64
	for _, target := range targets {
		s, err := h.DB.Find(target)
		if err != nil {
			return errs.Wrapf(err, "Couldn't find the search %q to delete.", target)
		}
		freed, err := h.Remove(s.ID)
		if err != nil {
			return errs.Wrap(err, "Couldn't delete the search.")
		}
		total += freed
		if !cfg.Quiet {
			fmt.Fprintln(w, "Search deleted:", storage.ShortID(s.ID), s.Topic)
		}
	}
	if !cfg.Quiet && len(targets) > 1 {
		fmt.Fprintln(w, "Freed", humanize.Bytes(uint64(total))) //nolint:gosec
	}
	return nil
}

func pruneSearches(w io.Writer, cfg *config.Config, olderThan time.Duration) error {
	if olderThan <= 0 {
		return errs.Wrap(errs.UserErrorf("missing --older-than"), "Could not delete old searches.")
	}

	h, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer h.Close() //nolint:errcheck

	old := h.DB.OlderThan(olderThan)
	if len(old) == 0 {
		if !cfg.Quiet {
			fmt.Fprintln(w, "No searches found.")
		}
		return nil
	}

	if !cfg.Quiet {
		printList(w, present.StderrStyles(), old)

		if !present.IsOutputTTY() || !present.IsInputTTY() {
			fmt.Fprintln(w)
			//nolint:wrapcheck
			return errs.UserErrorf(
				"To delete the searches above, run: %s",
				strings.Join(append(os.Args, "--quiet"), " "),
			)
		}
		var confirm bool
		if err := huh.Run(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete searches older than %s?", olderThan)).
				Description(fmt.Sprintf("This will delete all the %d searches listed above.", len(old))).
				Value(&confirm),
		); err != nil {
			return errs.Wrap(err, "Couldn't delete old searches.")
		}
		if !confirm {
			//nolint:wrapcheck
			return errs.UserErrorf("Aborted by user")
		}
	}

	removed, freed, err := h.Prune(olderThan)
	if err != nil {
		return errs.Wrap(err, "Couldn't delete old searches.")
	}
	if !cfg.Quiet {
		fmt.Fprintf(w, "Deleted %d searches, freed %s.\n", len(removed), humanize.Bytes(uint64(freed))) //nolint:gosec
	}
	return nil
}

func makeOptions(searches []storage.Search) []huh.Option[string] {
	styles := present.StdoutStyles()
	opts := make([]huh.Option[string], 0, len(searches))
	for _, s := range searches {
		timea := styles.Timeago.Render(timeago.Of(s.CreatedAt))
		left := styles.ID.Render(storage.ShortID(s.ID))
		right := styles.SearchList.Render(s.Topic, timea)
		if s.Model != "" {
			right += styles.Comment.Render(s.Model)
		}
		if s.API != "" {
			right += styles.Comment.Render(" (" + s.API + ")")
		}
		opts = append(opts, huh.NewOption(left+" "+right, s.ID))
	}
	return opts
}

func selectFromList(searches []storage.Search) {
	var selected string
	if err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Searches").
				Value(&selected).
				Options(makeOptions(searches)...),
		),
	).Run(); err != nil {
		if !errors.Is(err, huh.ErrUserAborted) {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		return
	}

	_ = clipboard.WriteAll(selected)
	termenv.Copy(selected)
	present.PrintConfirmation("COPIED", selected)

	fmt.Println(present.StdoutStyles().Comment.Render("You can use this search ID with the following commands:"))
	short := storage.ShortID(selected)
	suggestions := []string{
		"newsagent history show " + short,
		"newsagent history delete " + short,
	}
	for _, s := range suggestions {
		fmt.Printf("  %s\n", present.StdoutStyles().InlineCode.Render(s))
	}
}

func printList(w io.Writer, styles present.Styles, searches []storage.Search) {
	for _, s := range searches {
		_, _ = fmt.Fprintf(
			w,
			"%s\t%s\t%d articles\t%s\n",
			styles.ID.Render(storage.ShortID(s.ID)),
			s.Topic,
			s.Articles,
			styles.Timeago.Render(timeago.Of(s.CreatedAt)),
		)
	}
}
