package newsagent

import (
	"testing"

	"github.com/charmbracelet/x/exp/golden"
	"github.com/stretchr/testify/require"
)

func TestParseQueries(t *testing.T) {
	for name, tc := range map[string]struct {
		in  string
		out []string
		err bool
	}{
		"plain object": {
			in:  `{"queries": ["fusion ignition 2025", "latest fusion startup news"]}`,
			out: []string{"fusion ignition 2025", "latest fusion startup news"},
		},
		"fenced with prose": {
			in:  "Here is the plan:\n```json\n{\"queries\": [\"a\", \" \", \"b\"]}\n```\nGood luck!",
			out: []string{"a", "b"},
		},
		"format hint after the plan": {
			in:  `{"queries":["fed rates 2024"]} (format: {"queries": [...]})`,
			out: []string{"fed rates 2024"},
		},
		"bare list": {
			in:  `["one", "two"]`,
			out: []string{"one", "two"},
		},
		"no json": {
			in:  "I could not think of any queries.",
			err: true,
		},
		"empty plan": {
			in:  `{"queries": []}`,
			err: true,
		},
	} {
		t.Run(name, func(t *testing.T) {
			plan, err := ParseQueries(tc.in)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.out, plan.Queries)
		})
	}
}

func TestParseArticles(t *testing.T) {
	t.Run("fenced list", func(t *testing.T) {
		articles, err := ParseArticles("```json\n[\n" +
			`{"title": "A", "url": "https://a.example", "publication_date": "2024-01-02", "summary": "sa"},` +
			`{"title": "", "url": "https://no-title.example"},` +
			`{"title": "B", "url": "https://b.example", "date": "Jan 5, 2024", "summary": "sb"}` +
			"\n]\n```")
		require.NoError(t, err)
		require.Equal(t, []Article{
			{Title: "A", URL: "https://a.example", PublicationDate: "2024-01-02", Summary: "sa"},
			{Title: "B", URL: "https://b.example", PublicationDate: "Jan 5, 2024", Summary: "sb"},
		}, articles)
	})

	t.Run("empty list", func(t *testing.T) {
		articles, err := ParseArticles("No articles found: []")
		require.NoError(t, err)
		require.Empty(t, articles)
		require.NotNil(t, articles)
	})

	t.Run("wrapped object", func(t *testing.T) {
		articles, err := ParseArticles(`{"articles": [{"title": "A", "url": "u"}]}`)
		require.NoError(t, err)
		require.Len(t, articles, 1)
	})

	t.Run("brackets in surrounding prose", func(t *testing.T) {
		articles, err := ParseArticles("Step [1] done, results:\n" +
			`[{"title": "Rates held", "url": "https://a.example", "publication_date": "2024-03-01"}]` +
			"\nNote: fewer than 15 articles were found [see the queries above].")
		require.NoError(t, err)
		require.Equal(t, []Article{
			{Title: "Rates held", URL: "https://a.example", PublicationDate: "2024-03-01"},
		}, articles)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseArticles("the search tool failed")
		require.ErrorIs(t, err, ErrNoJSON)
	})
}

func TestSortArticles(t *testing.T) {
	in := []Article{
		{Title: "undated-1", PublicationDate: "last week"},
		{Title: "old", PublicationDate: "2023-10-25"},
		{Title: "new", PublicationDate: "2024-02-01T10:00:00Z"},
		{Title: "undated-2"},
		{Title: "mid", PublicationDate: "January 3, 2024"},
	}
	out := SortArticles(in)

	var titles []string
	for _, a := range out {
		titles = append(titles, a.Title)
	}
	require.Equal(t, []string{"new", "mid", "old", "undated-1", "undated-2"}, titles)
	require.Equal(t, "undated-1", in[0].Title, "input must not be reordered")
}

func TestMarshalArticles(t *testing.T) {
	out, err := MarshalArticles(nil)
	require.NoError(t, err)
	require.Equal(t, "[]", out)

	out, err = MarshalArticles([]Article{{Title: "T", URL: "u", PublicationDate: "d", Summary: "s"}})
	require.NoError(t, err)
	require.JSONEq(t, `[{"title":"T","url":"u","publication_date":"d","summary":"s"}]`, out)
}

func TestRenderReport(t *testing.T) {
	golden.RequireEqual(t, []byte(RenderReport("fusion energy", []Article{
		{
			Title:           "Startup reaches ignition milestone",
			URL:             "https://news.example.com/ignition",
			PublicationDate: "2025-03-02",
			Summary:         "A private lab reported net energy gain.\n\nThe result still needs peer review.",
		},
		{
			Title:   "Grid operators plan for fusion",
			URL:     "https://news.example.com/grid",
			Summary: "Utilities sketched interconnection rules.",
		},
	})))
}

func TestRenderReportEmpty(t *testing.T) {
	require.Equal(t, NoResults+"\n", RenderReport("anything", nil))
}
