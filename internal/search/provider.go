// Package search provides web search providers for the web_search tool.
//
// Supported providers:
//   - brave: Brave Search API. Requires an API key.
//   - searxng: any SearXNG instance with the JSON output format enabled.
//   - none (default): search is disabled and every call returns ErrDisabled.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/sgx-labs/scout/internal/config"
)

const (
	// MaxCount is the most results a single query may ask for.
	MaxCount = 20

	maxResponseBytes = 2 << 20
	requestTimeout   = 15 * time.Second
)

// ErrDisabled is returned by the provider selected with provider = "none".
var ErrDisabled = errors.New("web search is disabled")

// Result is one web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Provider runs web searches.
type Provider interface {
	// Name returns the provider identifier (e.g., "brave", "searxng").
	Name() string

	// Search returns at most count results for query.
	Search(ctx context.Context, query string, count int) ([]Result, error)
}

// Option customizes an HTTP-backed provider.
type Option func(*client)

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *client) { cl.http = c }
}

// NewProvider creates a search provider from the given config.
// Returns an error if the provider is unknown or misconfigured.
func NewProvider(cfg config.SearchConfig, opts ...Option) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "none":
		return disabled{}, nil
	case "brave":
		return newBraveProvider(cfg, newClient(cfg, opts))
	case "searxng":
		return newSearXNGProvider(cfg, newClient(cfg, opts))
	default:
		return nil, fmt.Errorf("unknown search provider: %q (supported: brave, searxng, none)", cfg.Provider)
	}
}

type disabled struct{}

func (disabled) Name() string { return "none" }

func (disabled) Search(context.Context, string, int) ([]Result, error) {
	return nil, ErrDisabled
}

// ClampCount bounds count to 1..MaxCount, using def when count is not set.
func ClampCount(count, def int) int {
	if count <= 0 {
		count = def
	}
	if count <= 0 {
		count = 5
	}
	if count > MaxCount {
		return MaxCount
	}
	return count
}

// client is the HTTP plumbing shared by the adapters: outbound pacing and a
// capped JSON decode.
type client struct {
	http    *http.Client
	limiter *rate.Limiter
}

func newClient(cfg config.SearchConfig, opts []Option) *client {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	c := &client{
		http:    &http.Client{Timeout: requestTimeout},
		limiter: rate.NewLimiter(limit, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) getJSON(ctx context.Context, req *http.Request, name string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s rate limit: %w", name, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%s request: %w", name, err)
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxResponseBytes)
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(body, 512))
		return fmt.Errorf("%s returned %d: %s", name, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", name, err)
	}
	return nil
}

// plainText strips markup such as <strong> highlights from API snippets.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// clean drops results without a URL, normalizes text and caps the list.
func clean(results []Result, count int) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		out = append(out, Result{
			Title:   plainText(r.Title),
			URL:     strings.TrimSpace(r.URL),
			Snippet: plainText(r.Snippet),
		})
		if len(out) == count {
			break
		}
	}
	return out
}
