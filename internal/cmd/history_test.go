package cmd

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/newsagent/internal/config"
	"github.com/dotcommander/newsagent/internal/errs"
	"github.com/dotcommander/newsagent/internal/newsagent"
	"github.com/dotcommander/newsagent/internal/proto"
	"github.com/dotcommander/newsagent/internal/storage"
)

// newTestHistory creates a history in a temp directory, adds reports for
// the given topics, and closes it so the commands can open their own.
func newTestHistory(t *testing.T, topics map[string]time.Duration) (*config.Config, map[string]string) {
	t.Helper()
	dir := t.TempDir()
	h, err := storage.OpenHistory(dir)
	require.NoError(t, err)

	ids := map[string]string{}
	for topic, age := range topics {
		id := storage.NewID()
		ids[topic] = id
		require.NoError(t, h.Add(storage.Report{
			Search: storage.Search{
				ID:        id,
				Topic:     topic,
				Agent:     "NewsSearch_assistant",
				Model:     "gemini-2.0-flash",
				Articles:  1,
				CreatedAt: time.Now().Add(-age),
			},
			Output:   "## News Report on " + topic + "\n",
			Articles: []newsagent.Article{{Title: topic, URL: "https://news.example/" + id}},
			Messages: []proto.Message{
				{Role: proto.RoleSystem, Content: "You are a news assistant."},
				{Role: proto.RoleUser, Content: topic},
				{Role: proto.RoleAssistant, Content: "## News Report on " + topic},
			},
		}))
	}
	require.NoError(t, h.Close())

	cfg := &config.Config{
		Settings: config.Settings{CachePath: dir, Quiet: true, Raw: true, FormatAs: formatMarkdown},
	}
	return cfg, ids
}

func TestListSearches(t *testing.T) {
	t.Run("no searches", func(t *testing.T) {
		cfg, _ := newTestHistory(t, nil)
		var buf bytes.Buffer
		require.NoError(t, listSearches(&buf, cfg))
		require.Empty(t, buf.String())
	})

	t.Run("lists searches", func(t *testing.T) {
		cfg, ids := newTestHistory(t, map[string]time.Duration{"interest rates": 0})
		var buf bytes.Buffer
		require.NoError(t, listSearches(&buf, cfg))
		require.Contains(t, buf.String(), storage.ShortID(ids["interest rates"]))
		require.Contains(t, buf.String(), "interest rates")
		require.Contains(t, buf.String(), "1 articles")
	})
}

func TestShowSearch(t *testing.T) {
	cfg, ids := newTestHistory(t, map[string]time.Duration{
		"interest rates": time.Hour,
		"elections":      0,
	})

	t.Run("by topic", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, showSearch(&buf, cfg, "interest rates", false))
		require.Equal(t, "## News Report on interest rates\n", buf.String())
	})

	t.Run("by id", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, showSearch(&buf, cfg, storage.ShortID(ids["elections"]), false))
		require.Equal(t, "## News Report on elections\n", buf.String())
	})

	t.Run("last", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, showSearch(&buf, cfg, "", false))
		require.Equal(t, "## News Report on elections\n", buf.String())
	})

	t.Run("json", func(t *testing.T) {
		jcfg := *cfg
		jcfg.FormatAs = formatJSON
		var buf bytes.Buffer
		require.NoError(t, showSearch(&buf, &jcfg, "elections", false))
		require.Contains(t, buf.String(), `"topic": "elections"`)
		require.Contains(t, buf.String(), `"url": "https://news.example/`+ids["elections"]+`"`)
	})

	t.Run("messages", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, showSearch(&buf, cfg, "elections", true))
		require.Equal(t, "**Topic**: elections\n\n## News Report on elections\n", buf.String())
	})

	t.Run("unknown", func(t *testing.T) {
		err := showSearch(&bytes.Buffer{}, cfg, "weather", false)
		require.ErrorIs(t, err, storage.ErrNoMatches)
	})

	t.Run("missing report", func(t *testing.T) {
		id := ids["interest rates"]
		require.NoError(t, os.Remove(filepath.Join(cfg.CachePath, "reports", id[:2], id+".json")))
		err := showSearch(&bytes.Buffer{}, cfg, id, false)
		require.ErrorIs(t, err, fs.ErrNotExist)
		reason, ok := errs.Reason(err)
		require.True(t, ok)
		require.Contains(t, reason, "newsagent history delete "+storage.ShortID(id))
	})
}

func TestDeleteSearches(t *testing.T) {
	t.Run("deletes one", func(t *testing.T) {
		cfg, ids := newTestHistory(t, map[string]time.Duration{"interest rates": 0, "elections": 0})
		require.NoError(t, deleteSearches(&bytes.Buffer{}, cfg, []string{ids["elections"]}))

		h, err := storage.OpenHistory(cfg.CachePath)
		require.NoError(t, err)
		defer h.Close() //nolint:errcheck
		require.Len(t, h.DB.List(), 1)
		_, err = h.DB.Find("elections")
		require.ErrorIs(t, err, storage.ErrNoMatches)
	})

	t.Run("deletes many and reports", func(t *testing.T) {
		cfg, _ := newTestHistory(t, map[string]time.Duration{"interest rates": 0, "elections": 0})
		cfg.Quiet = false
		var buf bytes.Buffer
		require.NoError(t, deleteSearches(&buf, cfg, []string{"interest rates", "elections"}))
		require.Contains(t, buf.String(), "Search deleted:")
		require.Contains(t, buf.String(), "Freed")
	})

	t.Run("unknown", func(t *testing.T) {
		cfg, _ := newTestHistory(t, map[string]time.Duration{"elections": 0})
		err := deleteSearches(&bytes.Buffer{}, cfg, []string{"weather"})
		require.ErrorIs(t, err, storage.ErrNoMatches)
	})
}

func TestPruneSearches(t *testing.T) {
	t.Run("requires a duration", func(t *testing.T) {
		cfg, _ := newTestHistory(t, nil)
		require.ErrorContains(t, pruneSearches(&bytes.Buffer{}, cfg, 0), "missing --older-than")
	})

	t.Run("deletes old searches", func(t *testing.T) {
		cfg, _ := newTestHistory(t, map[string]time.Duration{
			"last month": 30 * 24 * time.Hour,
			"today":      0,
		})
		require.NoError(t, pruneSearches(&bytes.Buffer{}, cfg, 7*24*time.Hour))

		h, err := storage.OpenHistory(cfg.CachePath)
		require.NoError(t, err)
		defer h.Close() //nolint:errcheck
		list := h.DB.List()
		require.Len(t, list, 1)
		require.Equal(t, "today", list[0].Topic)
	})

	t.Run("nothing to prune", func(t *testing.T) {
		cfg, _ := newTestHistory(t, map[string]time.Duration{"today": 0})
		cfg.Quiet = false
		var buf bytes.Buffer
		require.NoError(t, pruneSearches(&buf, cfg, time.Hour))
		require.Equal(t, "No searches found.\n", buf.String())
	})
}
