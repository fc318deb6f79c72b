package cmd

import (
	"math/rand"
	"regexp"

	"github.com/dotcommander/newsagent/internal/present"
)

var examples = map[string]string{
	"Search the news on a topic":         `newsagent "central bank interest rates"`,
	"Plan, research and publish":         `newsagent --mode pipeline --articles 10 "EU AI act"`,
	"Feed a topic from another program":  `echo "semiconductor export controls" | newsagent -q --format-as json | jq '.articles[].url'`,
	"Save a raw Markdown report to disk": `newsagent -r "heat wave in southern Europe" > heat.md`,
}

var (
	quoteRe = regexp.MustCompile(`"([^"\\]|\\.)*"`)
	pipeRe  = regexp.MustCompile(`\|`)
)

func randomExample() string {
	keys := make([]string, 0, len(examples))
	for k := range examples {
		keys = append(keys, k)
	}
	desc := keys[rand.Intn(len(keys))] //nolint:gosec
	return desc
}

func cheapHighlighting(s present.Styles, code string) string {
	code = quoteRe.ReplaceAllStringFunc(code, func(x string) string {
		return s.Quote.Render(x)
	})
	code = pipeRe.ReplaceAllStringFunc(code, func(x string) string {
		return s.Pipe.Render(x)
	})
	return code
}
