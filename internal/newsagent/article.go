package newsagent

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Article is one researched news article.
type Article struct {
	Title           string `json:"title"`
	URL             string `json:"url"`
	PublicationDate string `json:"publication_date"`
	Summary         string `json:"summary"`
}

// Published parses the publication date. The zero time and false are
// returned for dates in an unknown format.
func (a Article) Published() (time.Time, bool) {
	s := strings.TrimSpace(a.PublicationDate)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var dateLayouts = []string{
	time.DateOnly,
	time.RFC3339,
	time.DateTime,
	"2006-01-02T15:04:05",
	"2006/01/02",
	"2006-01",
	time.RFC1123,
	time.RFC1123Z,
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"Monday, January 2, 2006",
}

// QueryPlan is the planner's output.
type QueryPlan struct {
	Queries []string `json:"queries"`
}

// ErrNoJSON is returned when the text holds no JSON value of the expected kind.
var ErrNoJSON = errors.New("no JSON found")

// ParseQueries extracts a query plan from model output. Both
// {"queries": [...]} and a bare list of strings are accepted.
func ParseQueries(text string) (QueryPlan, error) {
	r, err := extractJSON(text, func(r gjson.Result) bool {
		return r.IsArray() || r.Get("queries").IsArray()
	})
	if err != nil {
		return QueryPlan{}, fmt.Errorf("query plan: %w", err)
	}
	if r.IsObject() {
		r = r.Get("queries")
	}
	var plan QueryPlan
	for _, q := range r.Array() {
		if s := strings.TrimSpace(q.String()); s != "" {
			plan.Queries = append(plan.Queries, s)
		}
	}
	if len(plan.Queries) == 0 {
		return plan, errors.New("query plan has no queries")
	}
	return plan, nil
}

// ParseArticles extracts the researcher's article list from model output.
// Entries without a title and URL are dropped. An empty list is valid.
func ParseArticles(text string) ([]Article, error) {
	r, err := extractJSON(text, func(r gjson.Result) bool {
		return isObjectList(r) || isObjectList(r.Get("articles"))
	})
	if err != nil {
		return nil, fmt.Errorf("articles: %w", err)
	}
	if r.IsObject() {
		r = r.Get("articles")
	}
	articles := []Article{}
	r.ForEach(func(_, v gjson.Result) bool {
		a := Article{
			Title:           strings.TrimSpace(v.Get("title").String()),
			URL:             strings.TrimSpace(v.Get("url").String()),
			PublicationDate: strings.TrimSpace(firstOf(v, "publication_date", "published", "date")),
			Summary:         strings.TrimSpace(v.Get("summary").String()),
		}
		if a.Title != "" && a.URL != "" {
			articles = append(articles, a)
		}
		return true
	})
	return articles, nil
}

func isObjectList(r gjson.Result) bool {
	if !r.IsArray() {
		return false
	}
	for _, v := range r.Array() {
		if !v.IsObject() {
			return false
		}
	}
	return true
}

func firstOf(v gjson.Result, keys ...string) string {
	for _, k := range keys {
		if r := v.Get(k); r.Exists() {
			return r.String()
		}
	}
	return ""
}

// extractJSON returns the first JSON object or array in text that accept
// takes, ignoring code fences and the prose around it. Each candidate is
// decoded up to the end of its own value, so brackets in trailing prose do
// not matter.
func extractJSON(text string, accept func(gjson.Result) bool) (gjson.Result, error) {
	text = stripFences(text)
	for start := 0; start < len(text); start++ {
		if text[start] != '{' && text[start] != '[' {
			continue
		}
		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(text[start:])).Decode(&raw); err != nil {
			continue
		}
		if r := gjson.ParseBytes(raw); accept(r) {
			return r, nil
		}
	}
	return gjson.Result{}, ErrNoJSON
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(text), "```")
}

// SortArticles returns the articles latest first. Articles with dates in an
// unknown format keep their relative order after the dated ones.
func SortArticles(articles []Article) []Article {
	sorted := slices.Clone(articles)
	slices.SortStableFunc(sorted, func(a, b Article) int {
		ta, oka := a.Published()
		tb, okb := b.Published()
		switch {
		case oka && okb:
			return tb.Compare(ta)
		case oka:
			return -1
		case okb:
			return 1
		default:
			return 0
		}
	})
	return sorted
}

// MarshalArticles renders articles the way the publisher expects them.
func MarshalArticles(articles []Article) (string, error) {
	if articles == nil {
		articles = []Article{}
	}
	bts, err := json.MarshalIndent(articles, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal articles: %w", err)
	}
	return string(bts), nil
}

// RenderReport renders the Markdown report for the articles in the order
// given.
func RenderReport(topic string, articles []Article) string {
	if len(articles) == 0 {
		return NoResults + "\n"
	}
	var sb strings.Builder
	if topic = strings.TrimSpace(topic); topic != "" {
		fmt.Fprintf(&sb, "## News Report on %s\n\n", topic)
	} else {
		sb.WriteString("## News Report\n\n")
	}
	for i, a := range articles {
		if i > 0 {
			sb.WriteString("---\n\n")
		}
		fmt.Fprintf(&sb, "### %s\n\n", a.Title)
		if a.PublicationDate != "" {
			fmt.Fprintf(&sb, "**Published:** %s\n\n", a.PublicationDate)
		}
		fmt.Fprintf(&sb, "[%s](%s)\n\n", a.URL, a.URL)
		if s := strings.TrimSpace(a.Summary); s != "" {
			sb.WriteString(s)
			sb.WriteString("\n\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}
