package config

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const maxRemoteInstructionBytes = 2 * 1024 * 1024

// LoadInstruction resolves an instruction reference.
//
// Supported inputs:
//   - raw strings
//   - http(s) URLs
//   - file:// paths (a leading ~ expands to the home directory)
//
// For markdown files, YAML frontmatter is stripped.
func LoadInstruction(ctx context.Context, ref string) (string, error) {
	if strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://") {
		return fetchInstruction(ctx, ref)
	}

	path, ok := strings.CutPrefix(ref, "file://")
	if !ok {
		return ref, nil
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand instruction path: %w", err)
		}
		path = filepath.Join(home, rest)
	}
	bts, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read instruction file: %w", err)
	}
	content := string(bts)
	if strings.EqualFold(filepath.Ext(path), ".md") {
		return StripYAMLFrontmatter(content)
	}
	return content, nil
}

func fetchInstruction(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("fetch instruction: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch instruction: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bts, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return "", fmt.Errorf("fetch instruction: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(bts)))
	}
	bts, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteInstructionBytes))
	if err != nil {
		return "", fmt.Errorf("read instruction: %w", err)
	}
	if len(bts) >= maxRemoteInstructionBytes {
		return "", fmt.Errorf("read instruction: response too large (>%d bytes)", maxRemoteInstructionBytes)
	}
	return string(bts), nil
}

// StripYAMLFrontmatter removes YAML frontmatter from markdown content.
func StripYAMLFrontmatter(content string) (string, error) {
	rest, ok := strings.CutPrefix(content, "---")
	if !ok || !strings.HasPrefix(strings.TrimLeft(rest, " \t\r"), "\n") {
		return content, nil
	}

	lines := strings.Split(content, "\n")
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		return "", fmt.Errorf("invalid markdown frontmatter: missing closing delimiter")
	}

	var parsed map[string]any
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:end], "\n")), &parsed); err != nil {
		return "", fmt.Errorf("invalid markdown frontmatter: %w", err)
	}

	return strings.TrimLeft(strings.Join(lines[end+1:], "\n"), "\r\n"), nil
}
