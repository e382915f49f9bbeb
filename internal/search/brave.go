package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sgx-labs/scout/internal/config"
)

const braveDefaultURL = "https://api.search.brave.com"

// BraveProvider queries the Brave Search web endpoint.
type BraveProvider struct {
	*client
	baseURL string
	apiKey  string
}

func newBraveProvider(cfg config.SearchConfig, c *client) (*BraveProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("brave search provider requires an API key (set SCOUT_SEARCH_API_KEY or search.api_key in config)")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = braveDefaultURL
	}
	return &BraveProvider{client: c, baseURL: baseURL, apiKey: cfg.APIKey}, nil
}

func (p *BraveProvider) Name() string { return "brave" }

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Search returns Brave web results for query.
func (p *BraveProvider) Search(ctx context.Context, query string, count int) ([]Result, error) {
	count = ClampCount(count, 5)
	q := url.Values{}
	q.Set("q", query)
	q.Set("count", strconv.Itoa(count))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/res/v1/web/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Subscription-Token", p.apiKey)

	var resp braveResponse
	if err := p.getJSON(ctx, req, "brave", &resp); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(resp.Web.Results))
	for _, r := range resp.Web.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return clean(results, count), nil
}
