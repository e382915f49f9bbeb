package mcp

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sgx-labs/scout/internal/fetch"
	"github.com/sgx-labs/scout/internal/guard"
	"github.com/sgx-labs/scout/internal/ratelimit"
	"github.com/sgx-labs/scout/internal/search"
)

const (
	maxQueryLen = 500
	maxURLLen   = 2048
)

type webSearchInput struct {
	Query string `json:"query" jsonschema:"Search query"`
	Count int    `json:"count,omitempty" jsonschema:"Number of results (default from config, max 20)"`
}

type webSearchOutput struct {
	Query    string          `json:"query"`
	Provider string          `json:"provider"`
	Results  []search.Result `json:"results"`
}

type fetchPageInput struct {
	URL         string `json:"url" jsonschema:"http or https URL to fetch"`
	MaxChars    int    `json:"max_chars,omitempty" jsonschema:"Cap on returned characters"`
	ExtractMode string `json:"extract_mode,omitempty" jsonschema:"text (default) or markdown"`
}

type fetchPageOutput struct {
	*fetch.Result
	Warning string `json:"warning,omitempty"`
}

func (s *Server) handleWebSearch(ctx context.Context, req *mcp.CallToolRequest, input webSearchInput) (*mcp.CallToolResult, any, error) {
	c := s.begin("web_search")
	res := s.webSearch(ctx, c, input)
	c.done(res)
	return res, nil, nil
}

func (s *Server) webSearch(ctx context.Context, c call, input webSearchInput) *mcp.CallToolResult {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return invalidInput("query is required", nil)
	}
	if utf8.RuneCountInString(query) > maxQueryLen {
		return invalidInput("query is too long", map[string]any{"max_length": maxQueryLen})
	}
	if input.Count < 0 {
		return invalidInput("count must not be negative", nil)
	}
	if res := s.allow(ratelimit.Search); res != nil {
		return res
	}

	count := search.ClampCount(input.Count, s.cfg.Search.MaxResults)
	results, err := s.search.Search(ctx, query, count)
	if err != nil {
		return searchErrorResult(c.log, s.search.Name(), err)
	}

	filtered := 0
	for i := range results {
		if sn := s.guard.Sanitize(ctx, results[i].Snippet); sn != results[i].Snippet {
			results[i].Snippet = sn
			filtered++
		}
	}
	if filtered > 0 {
		c.log.Warn().Int("filtered", filtered).Msg("search snippets filtered")
	}
	if results == nil {
		results = []search.Result{}
	}
	return jsonResult(webSearchOutput{Query: query, Provider: s.search.Name(), Results: results})
}

func (s *Server) handleFetchPage(ctx context.Context, req *mcp.CallToolRequest, input fetchPageInput) (*mcp.CallToolResult, any, error) {
	c := s.begin("fetch_page")
	res := s.fetchPage(ctx, c, input)
	c.done(res)
	return res, nil, nil
}

func (s *Server) fetchPage(ctx context.Context, c call, input fetchPageInput) *mcp.CallToolResult {
	raw := strings.TrimSpace(input.URL)
	if raw == "" {
		return errorResult(string(fetch.CodeInvalidURL), "url is required", nil)
	}
	if len(raw) > maxURLLen {
		return errorResult(string(fetch.CodeInvalidURL), "url is too long", map[string]any{"max_length": maxURLLen})
	}
	if input.MaxChars < 0 {
		return invalidInput("max_chars must not be negative", nil)
	}
	mode, ok := fetch.ParseMode(input.ExtractMode)
	if !ok {
		return invalidInput("extract_mode must be \"text\" or \"markdown\"", map[string]any{"extract_mode": input.ExtractMode})
	}
	if res := s.allow(ratelimit.Fetch); res != nil {
		return res
	}

	result, err := s.fetcher.Fetch(ctx, fetch.Request{URL: raw, MaxChars: input.MaxChars, Mode: mode})
	if err != nil {
		return fetchErrorResult(c.log, err)
	}

	out := fetchPageOutput{Result: result}
	if s.guard.ScanPage(ctx, result.Title+"\n"+result.Content) {
		out.Warning = guard.PageWarning
		c.log.Warn().Str("url", result.URL).Msg("page flagged as possible prompt injection")
	}
	return jsonResult(out)
}
