// Package mcp implements the MCP tool server for scout: web search, page
// fetch and note CRUD over JSON-RPC.
package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/sgx-labs/scout/internal/config"
	"github.com/sgx-labs/scout/internal/fetch"
	"github.com/sgx-labs/scout/internal/guard"
	"github.com/sgx-labs/scout/internal/ratelimit"
	"github.com/sgx-labs/scout/internal/search"
	"github.com/sgx-labs/scout/internal/store"
)

// Version is set by the caller (main) before building the server.
var Version = "dev"

// Deps are the collaborators a Server dispatches to. Only DB is required;
// the rest are built from Config when nil.
type Deps struct {
	Config  *config.Config
	DB      *store.DB
	Search  search.Provider
	Fetcher *fetch.Fetcher
	Limiter *ratelimit.Limiter
	Guard   *guard.Guard
	Logger  zerolog.Logger
}

// Server owns the tool handlers and everything they share. Safe for
// concurrent use once built.
type Server struct {
	cfg     *config.Config
	db      *store.DB
	search  search.Provider
	fetcher *fetch.Fetcher
	limiter *ratelimit.Limiter
	guard   *guard.Guard
	log     zerolog.Logger

	mcp *mcp.Server
}

// New builds a Server and registers its tools.
func New(d Deps) *Server {
	s := &Server{
		cfg:     d.Config,
		db:      d.DB,
		search:  d.Search,
		fetcher: d.Fetcher,
		limiter: d.Limiter,
		guard:   d.Guard,
		log:     d.Logger.With().Str("component", "mcp").Logger(),
	}
	if s.cfg == nil {
		s.cfg = config.DefaultConfig()
	}
	if s.search == nil {
		s.search, _ = search.NewProvider(config.SearchConfig{Provider: "none"})
	}
	if s.fetcher == nil {
		s.fetcher = fetch.New(s.cfg.Fetch, fetch.WithLogger(d.Logger))
	}
	if s.limiter == nil {
		s.limiter = ratelimit.New(s.cfg.RateLimit)
	}
	if s.guard == nil {
		s.guard = guard.New()
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "scout",
		Version: Version,
	}, nil)
	s.registerTools()
	return s
}

// MCPServer returns the underlying protocol server, for hosting it on a
// transport other than stdio.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ServeStdio runs the server on stdin/stdout until ctx is done or the client
// disconnects.
func (s *Server) ServeStdio(ctx context.Context) error {
	s.log.Info().Str("version", Version).Str("search_provider", s.search.Name()).Msg("serving on stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	// web_search
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "web_search",
		Description: "Search the web. Use this to find pages relevant to a question before fetching them.\n\nArgs:\n  query: Search query\n  count: Number of results (default from config, max 20)\n\nReturns a list of results with title, url and snippet. Snippets that look like prompt-injection attempts are replaced with a filtered marker.",
	}, s.handleWebSearch)

	// fetch_page
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "fetch_page",
		Description: "Fetch a public web page and return its readable text. Private, loopback and link-local addresses are refused, and redirects are re-checked at every hop.\n\nArgs:\n  url: http or https URL\n  max_chars: Cap on returned characters (default and maximum from config)\n  extract_mode: \"text\" (default) or \"markdown\"\n\nReturns url (after redirects), title, content, content_length and truncated.",
	}, s.handleFetchPage)

	// note_create
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "note_create",
		Description: "Save a note. Use this to keep findings from searches and fetched pages for later.\n\nArgs:\n  title: Note title\n  content: Note body\n  tags: Optional list of tags\n\nReturns the stored note with its id.",
	}, s.handleNoteCreate)

	// note_get
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "note_get",
		Description: "Read a note by id.\n\nArgs:\n  id: Note id\n\nReturns the note.",
	}, s.handleNoteGet)

	// note_update
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "note_update",
		Description: "Update a note. Only the fields you pass are changed.\n\nArgs:\n  id: Note id\n  title: New title (optional)\n  content: New body (optional)\n  tags: Replacement tag list (optional)\n\nReturns the updated note.",
	}, s.handleNoteUpdate)

	// note_delete
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "note_delete",
		Description: "Delete a note by id.\n\nArgs:\n  id: Note id",
	}, s.handleNoteDelete)

	// note_list
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "note_list",
		Description: "List notes, most recently updated first.\n\nArgs:\n  limit: Page size (default 20, max 100)\n  offset: Number of notes to skip\n  tag: Only notes with this tag\n\nReturns notes and the total count.",
	}, s.handleNoteList)

	// note_search
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "note_search",
		Description: "Full-text search over saved notes.\n\nArgs:\n  query: Search terms (all must match)\n  limit: Number of results (default 10, max 50)\n\nReturns ranked results with id, title, snippet and score.",
	}, s.handleNoteSearch)
}

// call tags one tool invocation with a request id and logs its outcome.
type call struct {
	log   zerolog.Logger
	start time.Time
}

func (s *Server) begin(tool string) call {
	return call{
		log:   s.log.With().Str("tool", tool).Str("request_id", uuid.NewString()).Logger(),
		start: time.Now(),
	}
}

func (c call) done(res *mcp.CallToolResult) {
	ev := c.log.Info()
	if res != nil && res.IsError {
		ev = c.log.Warn()
	}
	ev.Dur("elapsed", time.Since(c.start)).Bool("is_error", res != nil && res.IsError).Msg("tool call")
}

// allow applies the rate limit for cat and returns an error result when the
// budget is spent.
func (s *Server) allow(cat ratelimit.Category) *mcp.CallToolResult {
	ok, retry := s.limiter.Allow(cat)
	if ok {
		return nil
	}
	return errorResult(CodeRateLimited, "rate limit exceeded for "+string(cat)+" tools", map[string]any{
		"category":       string(cat),
		"retry_after_ms": retry.Milliseconds(),
	})
}

// Helpers

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(CodeInternal, "could not encode result", nil)
	}
	return textResult(string(data))
}
