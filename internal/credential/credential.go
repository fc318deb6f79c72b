// Package credential resolves secrets from settings, the environment or a
// user-configured command.
package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/caarlos0/go-shellwords"
)

// Source lists the places a secret may come from, in lookup order.
type Source struct {
	// Value is a literal secret.
	Value string
	// Env names environment variables to read.
	Env []string
	// Cmd is a command line whose trimmed output is the secret.
	Cmd string
}

// Resolve returns the first non-empty secret of src. An empty string and a
// nil error mean no source had a value.
func Resolve(ctx context.Context, src Source) (string, error) {
	if v := strings.TrimSpace(src.Value); v != "" {
		return v, nil
	}
	for _, name := range src.Env {
		if name == "" {
			continue
		}
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v, nil
		}
	}
	if src.Cmd == "" {
		return "", nil
	}
	return Command(ctx, src.Cmd)
}

// Command runs cmdline without a shell and returns its trimmed output.
func Command(ctx context.Context, cmdline string) (string, error) {
	args, err := shellwords.Parse(cmdline)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", cmdline, err)
	}
	if len(args) == 0 {
		return "", errors.New("empty command")
	}
	// #nosec G204 -- the command is configured by the local user.
	out, err := exec.CommandContext(ctx, args[0], args[1:]...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("run %s: %w: %s", args[0], err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("run %s: %w", args[0], err)
	}
	return strings.TrimSpace(string(out)), nil
}
