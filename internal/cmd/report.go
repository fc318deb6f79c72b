package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/x/exp/ordered"

	"github.com/dotcommander/newsagent/internal/agent"
	"github.com/dotcommander/newsagent/internal/config"
	"github.com/dotcommander/newsagent/internal/errs"
	"github.com/dotcommander/newsagent/internal/newsagent"
	"github.com/dotcommander/newsagent/internal/present"
	"github.com/dotcommander/newsagent/internal/storage"
)

const (
	formatMarkdown = "markdown"
	formatJSON     = "json"
)

func validateFormat(format string) error {
	switch format {
	case formatMarkdown, formatJSON, "":
		return nil
	}
	return errs.Error{
		Reason: fmt.Sprintf("Unknown output format %q.", format),
		Err:    errs.UserErrorf("Use %s or %s.", formatMarkdown, formatJSON),
	}
}

func newReport(cfg *config.Config, res agent.Result) storage.Report {
	created := res.Finished
	if created.IsZero() {
		created = time.Now()
	}
	apiName, model := cfg.API, ordered.First(res.Model, cfg.Model)
	if api, mod, err := agent.ResolveModel(cfg.APIs, cfg.API, model); err == nil {
		apiName, model = api.Name, mod.Name
	}
	return storage.Report{
		Search: storage.Search{
			ID:        res.ID,
			Topic:     res.Topic,
			Agent:     res.Agent,
			API:       apiName,
			Model:     model,
			Articles:  len(res.Articles),
			Steps:     res.Steps,
			CreatedAt: created.UTC(),
		},
		Output:   res.Output,
		Articles: res.Articles,
		State:    res.State,
		Messages: res.Messages,
	}
}

type jsonReport struct {
	ID        string              `json:"id"`
	Topic     string              `json:"topic"`
	Agent     string              `json:"agent"`
	Model     string              `json:"model,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	Articles  []newsagent.Article `json:"articles"`
	Report    string              `json:"report"`
}

// printReport writes the report as Markdown, rendered with glamour when
// stdout is a terminal, or as JSON.
func printReport(w io.Writer, cfg *config.Config, r storage.Report) error {
	if cfg.FormatAs == formatJSON {
		articles := r.Articles
		if articles == nil {
			articles = []newsagent.Article{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(jsonReport{
			ID:        r.Search.ID,
			Topic:     r.Search.Topic,
			Agent:     r.Search.Agent,
			Model:     r.Search.Model,
			CreatedAt: r.Search.CreatedAt,
			Articles:  articles,
			Report:    r.Output,
		}); err != nil {
			return errs.Wrap(err, "Could not write the report.")
		}
		return nil
	}

	out := r.Output
	if present.IsOutputTTY() && !cfg.Raw {
		if formatted, err := present.RenderMarkdownForTTY(out, cfg.WordWrap); err == nil {
			out = formatted
		}
	}
	if _, err := fmt.Fprint(w, out); err != nil {
		return errs.Wrap(err, "Could not write the report.")
	}
	return nil
}
