package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sgx-labs/scout/internal/config"
)

// SearXNGProvider queries a SearXNG instance through its JSON API.
type SearXNGProvider struct {
	*client
	baseURL string
}

func newSearXNGProvider(cfg config.SearchConfig, c *client) (*SearXNGProvider, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("searxng search provider requires search.base_url")
	}
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("searxng base_url must be an http(s) URL, got %q", cfg.BaseURL)
	}
	return &SearXNGProvider{client: c, baseURL: baseURL}, nil
}

func (p *SearXNGProvider) Name() string { return "searxng" }

type searxngResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search returns SearXNG results for query. SearXNG has no count parameter,
// so the first page is trimmed.
func (p *SearXNGProvider) Search(ctx context.Context, query string, count int) ([]Result, error) {
	count = ClampCount(count, 5)
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("safesearch", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var resp searxngResponse
	if err := p.getJSON(ctx, req, "searxng", &resp); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return clean(results, count), nil
}
