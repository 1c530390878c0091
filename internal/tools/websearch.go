package tools

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/localcoworker/engine/internal/config"
)

const (
	defaultSearchCount   = 5
	maxSearchCount       = 10
	searchTimeoutSeconds = 30
	webSearchUserAgent   = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7_2) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// SearchProvider abstracts a web search backend. The webSearch tool tries
// each configured provider in order; the first success wins (§4.2).
type SearchProvider interface {
	Search(ctx context.Context, params searchParams) ([]searchResult, error)
	Name() string
}

type searchParams struct {
	Query      string
	Count      int
	Country    string
	SearchLang string
	UILang     string
	Freshness  string
}

type searchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

var (
	freshnessShortcuts = map[string]bool{"pd": true, "pw": true, "pm": true, "py": true}
	freshnessRangeRe   = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})to(\d{4}-\d{2}-\d{2})$`)
)

func normalizeFreshness(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return ""
	}
	if freshnessShortcuts[v] {
		return v
	}
	if m := freshnessRangeRe.FindStringSubmatch(v); len(m) == 3 {
		start, errS := time.Parse("2006-01-02", m[1])
		end, errE := time.Parse("2006-01-02", m[2])
		if errS == nil && errE == nil && !start.After(end) {
			return v
		}
	}
	return ""
}

// WebSearchTool implements §4.2's webSearch(query, maxResults?). Provider
// order is Brave, then DuckDuckGo (Open Question resolved — see DESIGN.md).
type WebSearchTool struct {
	providers []SearchProvider
	cache     *webCache
}

// NewWebSearchTool returns nil when no provider is configured, matching the
// tool's own "webSearch disabled…" contract at the catalog level.
func NewWebSearchTool(cfg config.WebSearchConfig) *WebSearchTool {
	var providers []SearchProvider
	if cfg.BraveEnabled && cfg.BraveAPIKey != "" {
		providers = append(providers, newBraveSearchProvider(cfg.BraveAPIKey))
	}
	if cfg.DDGEnabled {
		providers = append(providers, newDuckDuckGoSearchProvider())
	}
	if len(providers) == 0 {
		return nil
	}

	ttl := time.Duration(cfg.CacheTTLSec) * time.Second
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &WebSearchTool{providers: providers, cache: newWebCache(defaultCacheMaxEntries, ttl)}
}

func (t *WebSearchTool) Name() string { return "webSearch" }
func (t *WebSearchTool) Description() string {
	return "Search the web for current information. Returns titles, URLs, and snippets."
}
func (t *WebSearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query":       map[string]interface{}{"type": "string"},
			"maxResults":  map[string]interface{}{"type": "integer", "minimum": 1.0, "maximum": float64(maxSearchCount)},
			"country":     map[string]interface{}{"type": "string"},
			"search_lang": map[string]interface{}{"type": "string"},
			"ui_lang":     map[string]interface{}{"type": "string"},
			"freshness":   map[string]interface{}{"type": "string"},
		},
		"required": []string{"query"},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	query, _ := args["query"].(string)
	if query == "" {
		return ErrorResult(ErrValidation, "query is required")
	}

	count := defaultSearchCount
	if n := intArg(args, "maxResults", 0); n >= 1 && n <= maxSearchCount {
		count = n
	}

	params := searchParams{
		Query:      query,
		Count:      count,
		Country:    strArg(args, "country"),
		SearchLang: strArg(args, "search_lang"),
		UILang:     strArg(args, "ui_lang"),
		Freshness:  normalizeFreshness(strArg(args, "freshness")),
	}

	cacheKey := buildSearchCacheKey(params)
	if cached, ok := t.cache.get(cacheKey); ok {
		slog.Debug("webSearch cache hit", "query", query)
		return SilentResult(cached)
	}

	var lastErr error
	for _, provider := range t.providers {
		results, err := provider.Search(ctx, params)
		if err != nil {
			slog.Warn("webSearch provider failed", "provider", provider.Name(), "error", err)
			lastErr = err
			continue
		}
		formatted := formatSearchResults(query, results, provider.Name())
		wrapped := wrapExternalContent(formatted, provider.Name(), false)
		t.cache.set(cacheKey, wrapped)
		return SilentResult(wrapped)
	}

	if lastErr != nil {
		return ErrorResult(ErrUpstream, fmt.Sprintf("all search providers failed: %v", lastErr))
	}
	return ErrorResult(ErrUpstream, "webSearch disabled: no search providers configured")
}

func buildSearchCacheKey(p searchParams) string {
	parts := []string{p.Query, fmt.Sprintf("%d", p.Count),
		orDefault(p.Country, "default"), orDefault(p.SearchLang, "default"),
		orDefault(p.UILang, "default"), orDefault(p.Freshness, "default")}
	return strings.Join(parts, ":")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func strArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}

func formatSearchResults(query string, results []searchResult, provider string) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for: %s", query)
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Search results for: %s (via %s)\n\n", query, provider))
	for i, r := range results {
		sb.WriteString(fmt.Sprintf("%d. %s\n   %s\n", i+1, r.Title, r.URL))
		if r.Description != "" {
			sb.WriteString(fmt.Sprintf("   %s\n", r.Description))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
