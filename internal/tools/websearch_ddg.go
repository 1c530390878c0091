package tools

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const ddgSearchEndpoint = "https://html.duckduckgo.com/html/"

var (
	ddgResultBlockRe = regexp.MustCompile(`(?s)<div class="result results_links[^"]*">(.*?)</div>\s*</div>\s*</div>`)
	ddgLinkRe        = regexp.MustCompile(`(?s)<a[^>]+class="result__a"[^>]+href="([^"]+)"[^>]*>(.*?)</a>`)
	ddgSnippetRe     = regexp.MustCompile(`(?s)<a[^>]+class="result__snippet"[^>]*>(.*?)</a>`)
	htmlTagRe        = regexp.MustCompile(`<[^>]+>`)
)

type duckDuckGoSearchProvider struct {
	client *http.Client
}

func newDuckDuckGoSearchProvider() *duckDuckGoSearchProvider {
	return &duckDuckGoSearchProvider{
		client: &http.Client{Timeout: searchTimeoutSeconds * time.Second},
	}
}

func (p *duckDuckGoSearchProvider) Name() string { return "duckduckgo" }

func (p *duckDuckGoSearchProvider) Search(ctx context.Context, params searchParams) ([]searchResult, error) {
	form := url.Values{}
	form.Set("q", params.Query)
	if params.Freshness != "" {
		form.Set("df", params.Freshness)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ddgSearchEndpoint+"?"+form.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", webSearchUserAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	results := parseDDGResults(string(body), params.Count)
	return results, nil
}

func parseDDGResults(body string, limit int) []searchResult {
	var results []searchResult
	blocks := ddgResultBlockRe.FindAllString(body, -1)
	for _, block := range blocks {
		if len(results) >= limit {
			break
		}
		linkMatch := ddgLinkRe.FindStringSubmatch(block)
		if linkMatch == nil {
			continue
		}
		rawURL := unwrapDDGRedirect(linkMatch[1])
		title := cleanDDGFragment(linkMatch[2])
		if rawURL == "" || title == "" {
			continue
		}
		description := ""
		if snippetMatch := ddgSnippetRe.FindStringSubmatch(block); snippetMatch != nil {
			description = cleanDDGFragment(snippetMatch[1])
		}
		results = append(results, searchResult{Title: title, URL: rawURL, Description: description})
	}
	return results
}

// unwrapDDGRedirect extracts the real target from DuckDuckGo's
// "//duckduckgo.com/l/?uddg=<encoded>&..." redirect wrapper.
func unwrapDDGRedirect(href string) string {
	href = strings.TrimPrefix(href, "//duckduckgo.com/l/?")
	href = strings.TrimPrefix(href, "https://duckduckgo.com/l/?")
	parsed, err := url.ParseQuery(href)
	if err == nil {
		if target := parsed.Get("uddg"); target != "" {
			return target
		}
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return ""
}

func cleanDDGFragment(s string) string {
	s = htmlTagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return strings.TrimSpace(s)
}
