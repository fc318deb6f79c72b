package cmd

import (
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/duration"
)

var helpText = map[string]string{
	"api":         "OpenAI compatible REST API (google, openai, anthropic, ollama, etc.).",
	"articles":    "Approximate number of articles to report.",
	"ask-model":   "Ask which model to use via interactive prompt.",
	"connect":     "Also connect to each toolset and list its tools.",
	"debug":       "Write debug logs, including tool arguments, to the log file.",
	"editor":      "Edit the topic in your $EDITOR.",
	"format-as":   "Output format: markdown or json.",
	"help":        "Show help and exit.",
	"http-proxy":  "HTTP proxy to use for API requests.",
	"last":        "Show the last saved search.",
	"messages":    "Show the messages exchanged with the model instead of the report.",
	"max-retries": "Maximum number of times to retry API calls.",
	"max-steps":   "Maximum number of model steps per agent.",
	"max-tokens":  "Maximum number of tokens in response.",
	"mcp-disable": "Disable specific toolsets.",
	"mode":        "Agent mode: single or pipeline.",
	"model":       "Default model (gemini-2.0-flash, gpt-4o, sonnet, etc.).",
	"no-cache":    "Don't save the search to the history.",
	"older-than":  "Delete searches older than the given duration (10d, 1mo).",
	"quiet":       "Quiet mode (hide the progress UI and warnings).",
	"raw":         "Print the raw report, without Markdown rendering.",
	"temp":        "Temperature (randomness) of results, from 0.0 to 2.0, -1.0 to disable.",
	"theme":       "Theme to use in the forms. Valid units are: 'charm', 'catppuccin', 'dracula', and 'base16'.",
	"toolset":     "Toolsets the searching agent may use.",
	"topk":        "TopK, only sample from the top K options for each subsequent token, -1 to disable.",
	"topp":        "TopP, an alternative to temperature that narrows response, from 0.0 to 1.0, -1.0 to disable.",
	"version":     "Show version and exit.",
	"word-wrap":   "Wrap formatted output at specific width (default is 80).",
}

func newFlagParseError(err error) flagParseError {
	var reason, flag string
	s := err.Error()
	switch {
	case strings.HasPrefix(s, "flag needs an argument:"):
		reason = "Flag %s needs an argument."
		if fields := strings.Fields(s); len(fields) > 0 {
			flag = fields[len(fields)-1]
		}
	case strings.HasPrefix(s, "unknown flag:"):
		reason = "Flag %s is missing."
		flag = strings.TrimPrefix(s, "unknown flag: ")
	case strings.HasPrefix(s, "unknown shorthand flag:"):
		reason = "Short flag %s is missing."
		re := regexp.MustCompile(`unknown shorthand flag: '.*' in (-\w)`)
		parts := re.FindStringSubmatch(s)
		if len(parts) > 1 {
			flag = parts[1]
		}
	case strings.HasPrefix(s, "invalid argument"):
		reason = "Flag %s have an invalid argument."
		re := regexp.MustCompile(`invalid argument ".*" for "(.*)" flag: .*`)
		parts := re.FindStringSubmatch(s)
		if len(parts) > 1 {
			flag = parts[1]
		}
	default:
		reason = s
	}
	return flagParseError{
		err:    err,
		reason: reason,
		flag:   flag,
	}
}

type flagParseError struct {
	err    error
	reason string
	flag   string
}

func (f flagParseError) Error() string {
	return f.err.Error()
}

func (f flagParseError) ReasonFormat() string {
	return f.reason
}

func (f flagParseError) Flag() string {
	return f.flag
}

// durationFlag is a pflag.Value accepting day, week, month and year units
// on top of what time.ParseDuration knows.
type durationFlag time.Duration

func newDurationFlag(val time.Duration, p *time.Duration) *durationFlag {
	*p = val
	return (*durationFlag)(p)
}

func (d *durationFlag) Set(s string) error {
	v, err := duration.Parse(s)
	*d = durationFlag(v)
	//nolint: wrapcheck
	return err
}

func (d *durationFlag) String() string {
	return time.Duration(*d).String()
}

func (*durationFlag) Type() string {
	return "duration"
}
