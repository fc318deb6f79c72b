package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadInstruction(t *testing.T) {
	const content = "Find news about the topic."
	ctx := context.Background()

	t.Run("raw text", func(t *testing.T) {
		msg, err := LoadInstruction(ctx, content)
		require.NoError(t, err)
		require.Equal(t, content, msg)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "instruction.txt")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		msg, err := LoadInstruction(ctx, "file://"+path)
		require.NoError(t, err)
		require.Equal(t, content, msg)
	})

	t.Run("home relative file", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)
		require.NoError(t, os.WriteFile(filepath.Join(home, "i.txt"), []byte(content), 0o644))

		msg, err := LoadInstruction(ctx, "file://~/i.txt")
		require.NoError(t, err)
		require.Equal(t, content, msg)
	})

	t.Run("markdown file strips yaml frontmatter", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "news_planner.md")
		md := "---\nagent: news_planner\n---\nPlan three queries.\n"
		require.NoError(t, os.WriteFile(path, []byte(md), 0o644))

		msg, err := LoadInstruction(ctx, "file://"+path)
		require.NoError(t, err)
		require.Equal(t, "Plan three queries.\n", msg)
	})

	t.Run("markdown file with invalid frontmatter errors", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.md")
		require.NoError(t, os.WriteFile(path, []byte("---\nname: [broken\n---\ncontent"), 0o644))

		_, err := LoadInstruction(ctx, "file://"+path)
		require.ErrorContains(t, err, "invalid markdown frontmatter")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadInstruction(ctx, "file://"+filepath.Join(t.TempDir(), "nope.md"))
		require.ErrorContains(t, err, "read instruction file")
	})

	t.Run("http", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(content))
		}))
		t.Cleanup(srv.Close)

		msg, err := LoadInstruction(ctx, srv.URL)
		require.NoError(t, err)
		require.Equal(t, content, msg)
	})

	t.Run("http error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "gone", http.StatusNotFound)
		}))
		t.Cleanup(srv.Close)

		_, err := LoadInstruction(ctx, srv.URL)
		require.ErrorContains(t, err, "HTTP 404")
	})
}

func TestStripYAMLFrontmatter(t *testing.T) {
	for name, tc := range map[string]struct {
		in, out string
	}{
		"no frontmatter":  {"plain\n", "plain\n"},
		"horizontal rule": {"---- \nbody", "---- \nbody"},
		"frontmatter":     {"---\na: 1\n---\n\nbody", "body"},
	} {
		t.Run(name, func(t *testing.T) {
			got, err := StripYAMLFrontmatter(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.out, got)
		})
	}
}
