package newsagent

import (
	"embed"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"text/template"

	xstrings "github.com/charmbracelet/x/exp/strings"

	"github.com/dotcommander/newsagent/internal/config"
)

//go:embed instructions/*.tmpl
var instructionFS embed.FS

var instructionTemplates = template.Must(template.ParseFS(instructionFS, "instructions/*.tmpl"))

// NoResults is the whole report when no article was found.
const NoResults = "No relevant news articles were found for the specified topic after a thorough search."

// InstructionParams fills the instruction templates.
type InstructionParams struct {
	Articles     int
	SummaryLines string
	Tool         string
}

// ParamsFrom derives instruction parameters from the configuration.
func ParamsFrom(cfg *config.Config) InstructionParams {
	def := config.Default().Agent
	params := InstructionParams{
		Articles:     cfg.Agent.Articles,
		SummaryLines: cfg.Agent.SummaryLines,
		Tool:         xstrings.EnglishJoin(cfg.Agent.Toolsets, true),
	}
	if params.Articles <= 0 {
		params.Articles = def.Articles
	}
	if params.SummaryLines == "" {
		params.SummaryLines = def.SummaryLines
	}
	if params.Tool == "" {
		params.Tool = "search"
	}
	return params
}

// RenderInstruction renders one of the embedded instruction templates.
func RenderInstruction(name string, params InstructionParams) (string, error) {
	var sb strings.Builder
	data := struct {
		InstructionParams
		NoResults string
	}{params, NoResults}
	if err := instructionTemplates.ExecuteTemplate(&sb, name, data); err != nil {
		return "", fmt.Errorf("render instruction %s: %w", name, err)
	}
	return strings.TrimSpace(sb.String()), nil
}

var stateRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)(\?)?\}`)

// MissingStateError lists required state keys an instruction refers to.
type MissingStateError struct {
	Keys []string
}

func (e MissingStateError) Error() string {
	return "missing session state: " + strings.Join(e.Keys, ", ")
}

// InjectState replaces {key} placeholders with session state values.
// Placeholders written as {key?} are optional and become empty when unset.
func InjectState(instruction string, state map[string]string) (string, error) {
	missing := map[string]struct{}{}
	out := stateRe.ReplaceAllStringFunc(instruction, func(m string) string {
		sub := stateRe.FindStringSubmatch(m)
		key, optional := sub[1], sub[2] == "?"
		if v, ok := state[key]; ok {
			return v
		}
		if !optional {
			missing[key] = struct{}{}
		}
		return ""
	})
	if len(missing) > 0 {
		return "", MissingStateError{Keys: slices.Sorted(maps.Keys(missing))}
	}
	return out, nil
}

// CheckInstruction verifies the instruction asks for what the report needs:
// the article count and the title, summary and URL of each article.
func CheckInstruction(text string, params InstructionParams) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("instruction is empty")
	}
	lower := strings.ToLower(text)
	var missing []string
	if params.Articles > 0 && !strings.Contains(lower, strconv.Itoa(params.Articles)) {
		missing = append(missing, fmt.Sprintf("the article count (%d)", params.Articles))
	}
	for _, field := range []string{"title", "summary", "url"} {
		if !strings.Contains(lower, field) {
			missing = append(missing, strconv.Quote(field))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("instruction does not mention %s", xstrings.EnglishJoin(missing, true))
	}
	return nil
}
