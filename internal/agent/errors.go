package agent

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"charm.land/fantasy"

	"github.com/dotcommander/newsagent/internal/config"
	"github.com/dotcommander/newsagent/internal/errs"
)

// StreamErrorAction describes how a failed completion should be handled.
type StreamErrorAction struct {
	Retry         bool
	Prompt        string
	ModelOverride string
	Err           errs.Error
}

// ActionForStreamError decides whether a provider error should be retried,
// and if so with which instruction and model.
func ActionForStreamError(err error, mod config.Model, prompt string) StreamErrorAction {
	var providerErr *fantasy.ProviderError
	if errors.As(err, &providerErr) {
		return actionForProviderError(providerErr, mod, prompt)
	}
	return StreamErrorAction{
		Err: errs.Error{Err: err, Reason: fmt.Sprintf("There was a problem with the %s API request.", mod.API)},
	}
}

func actionForProviderError(err *fantasy.ProviderError, mod config.Model, prompt string) StreamErrorAction {
	title := func(fallback string) string {
		if reason := fantasy.ErrorTitleForStatusCode(err.StatusCode); reason != "" {
			return reason
		}
		return fallback
	}

	switch err.StatusCode {
	case http.StatusNotFound:
		if mod.Fallback != "" {
			return StreamErrorAction{
				Retry:         true,
				Prompt:        prompt,
				ModelOverride: mod.Fallback,
				Err:           errs.Error{Err: err, Reason: title(fmt.Sprintf("%s API server error.", mod.API))},
			}
		}
		return StreamErrorAction{
			Err: errs.Error{Err: err, Reason: fmt.Sprintf("Missing model '%s' for API '%s'.", mod.Name, mod.API)},
		}

	case http.StatusBadRequest:
		if isContextLengthExceeded(err) {
			cut, ok := cutPrompt(err.Error(), prompt)
			return StreamErrorAction{
				Retry:  ok,
				Prompt: cut,
				Err:    errs.Error{Err: err, Reason: "Maximum prompt size exceeded."},
			}
		}
		return StreamErrorAction{Err: errs.Error{Err: err, Reason: title(fmt.Sprintf("%s API request error.", mod.API))}}
	}

	if err.IsRetryable() {
		return StreamErrorAction{
			Retry:  true,
			Prompt: prompt,
			Err:    errs.Error{Err: err, Reason: title("Retryable API error.")},
		}
	}
	return StreamErrorAction{Err: errs.Error{Err: err, Reason: title(fmt.Sprintf("%s API request error.", mod.API))}}
}

func isContextLengthExceeded(err *fantasy.ProviderError) bool {
	return strings.Contains(strings.ToLower(err.Message), "context_length_exceeded") ||
		strings.Contains(strings.ToLower(string(err.ResponseBody)), "context_length_exceeded")
}

var tokenErrRe = regexp.MustCompile(`This model's maximum context length is (\d+) tokens. However, your messages resulted in (\d+) tokens`)

// cutPrompt shortens the prompt by the overflow the provider reported, at
// roughly four characters per token. It reports false when nothing could be
// cut.
func cutPrompt(msg, prompt string) (string, bool) {
	found := tokenErrRe.FindStringSubmatch(msg)
	if len(found) != 3 { //nolint:mnd
		return prompt, false
	}

	maxt, _ := strconv.Atoi(found[1])
	current, _ := strconv.Atoi(found[2])
	if maxt > current {
		return prompt, false
	}

	reduceBy := 10 + (current-maxt)*4 //nolint:mnd
	r := []rune(prompt)
	if len(r) <= reduceBy {
		return prompt, false
	}
	return string(r[:len(r)-reduceBy]), true
}
