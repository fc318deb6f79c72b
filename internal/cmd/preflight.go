package cmd

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	xstrings "github.com/charmbracelet/x/exp/strings"

	"github.com/dotcommander/newsagent/internal/agent"
	"github.com/dotcommander/newsagent/internal/config"
	"github.com/dotcommander/newsagent/internal/errs"
	"github.com/dotcommander/newsagent/internal/mcp"
	"github.com/dotcommander/newsagent/internal/newsagent"
)

type checkResult struct {
	Name string
	Err  error
}

type checks []checkResult

// Err joins the failed checks into one user-facing error.
func (c checks) Err() error {
	var names []string
	var problems []error
	for _, r := range c {
		if r.Err == nil {
			continue
		}
		names = append(names, r.Name)
		problems = append(problems, fmt.Errorf("%s: %s", r.Name, describeErr(r.Err)))
	}
	if len(problems) == 0 {
		return nil
	}
	return errs.Error{
		Reason: fmt.Sprintf("Check failed for %s.", xstrings.EnglishJoin(names, true)),
		Err:    errors.Join(problems...),
	}
}

// describeErr puts the reason of a user-facing error before its details.
func describeErr(err error) string {
	reason, ok := errs.Reason(err)
	if !ok || reason == "" || reason == err.Error() {
		return err.Error()
	}
	return reason + " " + err.Error()
}

// preflight verifies, without calling any model, that every agent of def
// can run: its model is configured and has credentials, its instruction is
// usable, and its toolsets have credentials. With connect set the toolsets
// are also started and asked for their tools.
func preflight(ctx context.Context, cfg *config.Config, svc *mcp.Service, def newsagent.Definition, connect bool) checks {
	var results checks
	seen := map[string]bool{}
	for d := range def.All() {
		if d.IsSequential() {
			continue
		}
		api, mod, err := agent.ResolveModel(cfg.APIs, d.API, d.Model)
		if err == nil {
			_, err = agent.ProviderConfig(ctx, api, mod)
		}
		name := "model " + d.Model
		if err == nil {
			name = fmt.Sprintf("model %s (%s)", mod.Name, api.Name)
		}
		if !seen[name] {
			seen[name] = true
			results = append(results, checkResult{Name: name, Err: err})
		}

		err = nil
		if strings.TrimSpace(d.Instruction) == "" {
			err = errors.New("instruction is empty")
		}
		results = append(results, checkResult{Name: "instruction of " + d.Name, Err: err})
	}

	params := newsagent.ParamsFrom(cfg)
	for d := range def.Searchers() {
		for i, r := range results {
			if r.Name == "instruction of "+d.Name && r.Err == nil {
				results[i].Err = newsagent.CheckInstruction(d.Instruction, params)
			}
		}
	}

	names := toolsetsOf(def)
	problems := svc.Check(ctx, names, connect)
	for _, name := range names {
		results = append(results, checkResult{Name: "toolset " + name, Err: problems[name]})
	}
	return results
}

// toolsetsOf lists the toolsets used by any agent of def, sorted.
func toolsetsOf(def newsagent.Definition) []string {
	var names []string
	for d := range def.All() {
		for _, name := range d.Toolsets {
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}
	slices.Sort(names)
	return names
}
