// Package fetch retrieves remote HTML pages for agent tools and reduces them to
// bounded, readable text.
//
// Every request goes through the same stages: Validate checks the URL
// without touching the network, each hop resolves its hostname and pins the
// connection to one public address, redirects are followed by hand and
// re-validated, and the terminal HTML is extracted and truncated. Any stage can
// stop the pipeline with an *Error carrying one of the FETCH_* codes.
package fetch

import (
	"context"
	"net"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/sgx-labs/scout/internal/config"
)

// Mode selects how extracted text is shaped.
type Mode string

const (
	ModeText     Mode = "text"
	ModeMarkdown Mode = "markdown"
)

// ParseMode maps a caller-supplied mode to a Mode. Empty means text.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeText:
		return ModeText, true
	case ModeMarkdown:
		return ModeMarkdown, true
	}
	return "", false
}

// Request is one page fetch as issued by the tool dispatcher.
type Request struct {
	URL      string
	MaxChars int // 0 means the configured page size
	Mode     Mode
}

// Result is the success payload returned to the caller.
type Result struct {
	URL           string `json:"url"`
	Title         string `json:"title"`
	Content       string `json:"content"`
	ContentLength int    `json:"content_length"`
	Truncated     bool   `json:"truncated"`
}

// Fetcher runs the fetch pipeline. It holds only read-only settings and is
// safe for concurrent use.
type Fetcher struct {
	userAgent    string
	timeout      time.Duration
	maxPageSize  int
	maxBodyBytes int64

	resolver Resolver
	dial     DialFunc
	log      zerolog.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithResolver replaces the DNS resolver used for every hop.
func WithResolver(r Resolver) Option {
	return func(f *Fetcher) { f.resolver = r }
}

// WithDialer replaces the function that opens pinned connections.
func WithDialer(d DialFunc) Option {
	return func(f *Fetcher) { f.dial = d }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(f *Fetcher) { f.log = l.With().Str("component", "fetch").Logger() }
}

// New creates a Fetcher from the fetch section of the configuration.
func New(cfg config.FetchConfig, opts ...Option) *Fetcher {
	def := config.DefaultConfig().Fetch
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.TimeoutMS <= 0 {
		cfg.TimeoutMS = def.TimeoutMS
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = def.MaxPageSize
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	f := &Fetcher{
		userAgent:    cfg.UserAgent,
		timeout:      cfg.Timeout(),
		maxPageSize:  cfg.MaxPageSize,
		maxBodyBytes: cfg.MaxBodyBytes,
		resolver:     net.DefaultResolver,
		dial:         dialer.DialContext,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch validates, retrieves and extracts one page. All hops share a single
// deadline derived from the configured timeout. Errors are always *Error.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Result, error) {
	u, err := Validate(req.URL)
	if err != nil {
		f.log.Info().Str("url", req.URL).Str("code", string(CodeOf(err))).Msg("url rejected")
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	pg, err := f.get(ctx, u)
	if err != nil {
		f.log.Info().Err(err).Str("url", u.String()).Dur("elapsed", time.Since(start)).Msg("fetch failed")
		return nil, err
	}

	ext := Extract(pg.html, f.limit(req.MaxChars))
	if ext.Content == "" {
		return nil, newError(CodeFailed, "no readable content", map[string]any{"url": pg.url.String()}, nil)
	}

	content := ext.Content
	if req.Mode == ModeMarkdown {
		content = FormatMarkdown(ext.Title, content)
	}

	res := &Result{
		URL:           pg.url.String(),
		Title:         ext.Title,
		Content:       content,
		ContentLength: utf8.RuneCountInString(content),
		Truncated:     ext.Truncated || pg.clipped,
	}
	f.log.Info().
		Str("url", res.URL).
		Int("chars", res.ContentLength).
		Bool("truncated", res.Truncated).
		Dur("elapsed", time.Since(start)).
		Msg("page fetched")
	return res, nil
}

// limit applies the caller's max_chars on top of the configured page size;
// callers can lower the cap, never raise it.
func (f *Fetcher) limit(requested int) int {
	if requested > 0 && requested < f.maxPageSize {
		return requested
	}
	return f.maxPageSize
}
