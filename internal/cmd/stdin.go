package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dotcommander/newsagent/internal/present"
)

// maxStdinBytes caps how much piped input becomes part of the topic.
const maxStdinBytes = 64 << 10

func drainStdin() {
	if present.IsInputTTY() {
		return
	}
	_, _ = io.Copy(io.Discard, os.Stdin)
}

// readTopic joins the arguments and whatever was piped on stdin.
func readTopic(args []string) (string, error) {
	var stdin string
	if !present.IsInputTTY() {
		bts, err := io.ReadAll(io.LimitReader(os.Stdin, maxStdinBytes))
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		drainStdin()
		stdin = string(bts)
	}
	return joinTopic(strings.Join(args, " "), stdin), nil
}

func joinTopic(args, stdin string) string {
	args = strings.TrimSpace(args)
	stdin = strings.TrimSpace(stdin)
	switch {
	case args == "":
		return stdin
	case stdin == "":
		return args
	default:
		return args + "\n\n" + stdin
	}
}
