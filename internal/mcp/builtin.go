package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	bravesearch "github.com/cnosuke/go-brave-search"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dotcommander/newsagent/internal/config"
)

// BuiltinBrave is the name of the in-process Brave search toolset.
const BuiltinBrave = "brave"

// SearchResult is one web search hit.
type SearchResult struct {
	Title       string
	URL         string
	Description string
}

// SearchFunc runs a web search.
type SearchFunc func(ctx context.Context, query string, count int) ([]SearchResult, error)

const (
	defaultCount = 5
	maxCount     = 20
	maxFetchBody = 100 * 1024
)

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// braveSearch creates the search backend of the brave builtin.
var braveSearch = BraveSearch

func newBuiltin(desc config.MCPServerConfig, env []string) (*server.MCPServer, error) {
	switch desc.Builtin {
	case BuiltinBrave:
		key := lookupEnv(env, desc.CredentialEnv)
		if desc.CredentialEnv == "" {
			key = lookupEnv(env, "BRAVE_API_KEY")
		}
		search, err := braveSearch(key)
		if err != nil {
			return nil, err
		}
		return NewWebServer(search, &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}), nil
	default:
		return nil, fmt.Errorf("unknown builtin toolset %q", desc.Builtin)
	}
}

// BraveSearch returns a SearchFunc backed by the Brave search API.
func BraveSearch(key string) (SearchFunc, error) {
	brave, err := bravesearch.NewClient(key)
	if err != nil {
		return nil, fmt.Errorf("brave search: %w", err)
	}
	return func(ctx context.Context, query string, count int) ([]SearchResult, error) {
		resp, err := brave.WebSearch(ctx, query, &bravesearch.WebSearchParams{Count: count})
		if err != nil {
			return nil, fmt.Errorf("brave search: %w", err)
		}
		var results []SearchResult
		for _, r := range resp.GetWebResults() {
			results = append(results, SearchResult{Title: r.Title, URL: r.URL, Description: r.Description})
		}
		return results, nil
	}, nil
}

// NewWebServer builds an MCP server exposing a "search" tool backed by
// search and a "fetch" tool that downloads a page as plain text.
func NewWebServer(search SearchFunc, httpClient *http.Client) *server.MCPServer {
	w := &web{search: search, http: httpClient}
	srv := server.NewMCPServer("newsagent-web", Version, server.WithToolCapabilities(false))
	srv.AddTool(mcp.NewTool("search",
		mcp.WithDescription("Search the web. Returns the title, URL and description of each hit."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithNumber("count",
			mcp.Description("Number of results to return"),
			mcp.DefaultNumber(defaultCount),
			mcp.Min(1),
			mcp.Max(maxCount),
		),
	), w.handleSearch)
	srv.AddTool(mcp.NewTool("fetch",
		mcp.WithDescription("Fetch a URL and return its text content."),
		mcp.WithString("url", mcp.Required(), mcp.Description("URL to fetch")),
	), w.handleFetch)
	return srv
}

type web struct {
	search SearchFunc
	http   *http.Client
}

func (w *web) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	count := min(max(req.GetInt("count", defaultCount), 1), maxCount)

	slog.Debug("web: searching", "query", query, "count", count)
	results, err := w.search(ctx, query, count)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("No results found."), nil
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "%s\n%s\n%s", r.Title, r.URL, r.Description)
	}
	slog.Debug("web: search done", "query", query, "results", len(results))
	return mcp.NewToolResultText(b.String()), nil
}

func (w *web) handleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := req.RequireString("url")
	if err != nil || url == "" {
		return mcp.NewToolResultError("url is required"), nil
	}
	text, err := w.fetch(ctx, url)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (w *web) fetch(ctx context.Context, url string) (string, error) {
	slog.Debug("web: fetching", "url", url)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "newsagent/"+Version)

	resp, err := w.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching url: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("HTTP %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	text := htmlTagRe.ReplaceAllString(string(body), " ")
	text = strings.Join(strings.Fields(text), " ")
	slog.Debug("web: fetch done", "url", url, "bytes", len(text))
	return text, nil
}
