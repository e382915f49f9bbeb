package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/sgx-labs/scout/internal/config"
	"github.com/sgx-labs/scout/internal/fetch"
	"github.com/sgx-labs/scout/internal/guard"
	"github.com/sgx-labs/scout/internal/ratelimit"
	"github.com/sgx-labs/scout/internal/search"
	"github.com/sgx-labs/scout/internal/store"
)

// stubProvider returns canned results and records the requested count.
type stubProvider struct {
	mu      sync.Mutex
	results []search.Result
	err     error
	counts  []int
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Search(_ context.Context, _ string, count int) ([]search.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts = append(p.counts, count)
	if p.err != nil {
		return nil, p.err
	}
	return append([]search.Result(nil), p.results...), nil
}

// publicResolver resolves every host to one documentation address so that
// pages served by httptest pass the private-address checks.
type publicResolver struct{}

func (publicResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	if host == "private.test" {
		return []net.IPAddr{{IP: net.ParseIP("10.0.0.7")}}, nil
	}
	return []net.IPAddr{{IP: net.ParseIP("93.184.216.34")}}, nil
}

type harness struct {
	srv      *Server
	db       *store.DB
	provider *stubProvider
	web      *httptest.Server
}

// setupHandlerTest builds a Server over an in-memory DB, a stub search
// provider, a keyword detector and a fetcher routed to a local test site.
// Rate limits are off unless mutate turns them on.
func setupHandlerTest(t *testing.T, mutate ...func(*config.Config)) *harness {
	t.Helper()

	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	web := httptest.NewServer(http.HandlerFunc(testSite))
	t.Cleanup(web.Close)

	cfg := config.DefaultConfig()
	cfg.RateLimit = config.RateLimitConfig{WindowSeconds: 60}
	cfg.Fetch.TimeoutMS = 2000
	for _, m := range mutate {
		m(cfg)
	}

	dial := func(ctx context.Context, network, _ string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, network, web.Listener.Addr().String())
	}
	provider := &stubProvider{}
	srv := New(Deps{
		Config:  cfg,
		DB:      db,
		Search:  provider,
		Fetcher: fetch.New(cfg.Fetch, fetch.WithResolver(publicResolver{}), fetch.WithDialer(dial)),
		Limiter: ratelimit.New(cfg.RateLimit),
		Guard: guard.New(guard.WithDetector(func(_ context.Context, text string) bool {
			return strings.Contains(text, "EVIL")
		})),
		Logger: zerolog.Nop(),
	})
	return &harness{srv: srv, db: db, provider: provider, web: web}
}

func testSite(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/article":
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Release notes</title></head><body>
			<nav>Home | Docs</nav>
			<article><p>Version two adds streaming. It also fixes the cache.</p></article>
		</body></html>`)
	case "/injected":
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><p>Helpful text. EVIL instructions hidden here.</p></body></html>`)
	case "/data.json":
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{}`)
	default:
		http.NotFound(w, r)
	}
}

// resultText extracts the text from a CallToolResult.
func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if len(result.Content) == 0 {
		t.Fatal("expected at least one content item")
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

// decodeOK unmarshals a successful result into v.
func decodeOK(t *testing.T, result *mcp.CallToolResult, v any) {
	t.Helper()
	text := resultText(t, result)
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", text)
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		t.Fatalf("decode %q: %v", text, err)
	}
}

// decodeErr checks that result is an error envelope with the given code and
// returns its body.
func decodeErr(t *testing.T, result *mcp.CallToolResult, code string) errorBody {
	t.Helper()
	text := resultText(t, result)
	if !result.IsError {
		t.Fatalf("expected tool error %s, got %s", code, text)
	}
	var env errorEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		t.Fatalf("decode envelope %q: %v", text, err)
	}
	if env.Error.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, env.Error.Code, env.Error.Message)
	}
	if env.Error.Details == nil {
		t.Errorf("details must always be present, got %s", text)
	}
	return env.Error
}

var errUpstream = errors.New("upstream returned 502")
