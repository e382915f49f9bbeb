package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgx-labs/scout/internal/config"
)

const publicIP = "93.184.216.34"

// fakeResolver answers from a table. A host with several entries returns the
// next entry on each lookup, repeating the last one.
type fakeResolver struct {
	mu      sync.Mutex
	answers map[string][][]string
	calls   map[string]int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{answers: map[string][][]string{}, calls: map[string]int{}}
}

func (r *fakeResolver) set(host string, answers ...[]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers[host] = answers
}

func (r *fakeResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seq, ok := r.answers[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	i := r.calls[host]
	r.calls[host]++
	if i >= len(seq) {
		i = len(seq) - 1
	}
	var out []net.IPAddr
	for _, s := range seq[i] {
		out = append(out, net.IPAddr{IP: net.ParseIP(s)})
	}
	return out, nil
}

// testEnv runs an httptest server behind fake DNS. Every pinned dial is sent
// to the test listener and the address the fetcher asked for is recorded.
type testEnv struct {
	srv      *httptest.Server
	resolver *fakeResolver
	fetcher  *Fetcher

	mu    sync.Mutex
	dials []string
}

func newTestEnv(t *testing.T, handler http.Handler, mutate ...func(*config.FetchConfig)) *testEnv {
	t.Helper()
	env := &testEnv{srv: httptest.NewServer(handler), resolver: newFakeResolver()}
	t.Cleanup(env.srv.Close)

	env.resolver.set("site.test", []string{publicIP})

	cfg := config.DefaultConfig().Fetch
	cfg.TimeoutMS = 2000
	for _, m := range mutate {
		m(&cfg)
	}
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		env.mu.Lock()
		env.dials = append(env.dials, addr)
		env.mu.Unlock()
		var d net.Dialer
		return d.DialContext(ctx, network, env.srv.Listener.Addr().String())
	}
	env.fetcher = New(cfg, WithResolver(env.resolver), WithDialer(dial))
	return env
}

func (e *testEnv) dialed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.dials...)
}

func htmlPage(title, body string) string {
	return "<html><head><title>" + title + "</title></head><body>" + body + "</body></html>"
}

func serveHTML(w http.ResponseWriter, s string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, s)
}

func requireCode(t *testing.T, err error, want Code) *Error {
	t.Helper()
	require.Error(t, err)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, want, fe.Code, "message: %s", fe.Message)
	return fe
}

func TestFetch_ExtractsArticle(t *testing.T) {
	var ua string
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		serveHTML(w, htmlPage("T", "<nav>skip</nav><article>Hello world.</article>"))
	}))

	res, err := env.fetcher.Fetch(context.Background(), Request{URL: "http://site.test/page"})
	require.NoError(t, err)
	assert.Equal(t, "http://site.test/page", res.URL)
	assert.Equal(t, "T", res.Title)
	assert.Equal(t, "Hello world.", res.Content)
	assert.Equal(t, 12, res.ContentLength)
	assert.False(t, res.Truncated)
	assert.Equal(t, config.DefaultUserAgent, ua)
	assert.Equal(t, []string{publicIP + ":80"}, env.dialed())
}

func TestFetch_ChromeClassOnBody(t *testing.T) {
	article := strings.Repeat("This is the real article text. ", 10)
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveHTML(w, `<html><head><title>News</title></head><body class="page cookies-accepted ad">`+
			`<article>`+article+`</article></body></html>`)
	}))

	res, err := env.fetcher.Fetch(context.Background(), Request{URL: "http://site.test/"})
	require.NoError(t, err)
	assert.Equal(t, "News", res.Title)
	assert.Equal(t, strings.TrimSpace(article), res.Content)
}

func TestFetch_MarkdownMode(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveHTML(w, htmlPage("Guide", "<p>One. Two. Three. Four.</p>"))
	}))

	res, err := env.fetcher.Fetch(context.Background(), Request{URL: "http://site.test/", Mode: ModeMarkdown})
	require.NoError(t, err)
	assert.Equal(t, "# Guide\n\nOne. Two. Three.\n\nFour.", res.Content)
	assert.Equal(t, len([]rune(res.Content)), res.ContentLength)
}

func TestFetch_MaxCharsWordCut(t *testing.T) {
	body := strings.Repeat("word ", 1000)
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveHTML(w, htmlPage("Long", "<p>"+body+"</p>"))
	}))

	res, err := env.fetcher.Fetch(context.Background(), Request{URL: "http://site.test/", MaxChars: 1000})
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.True(t, strings.HasSuffix(res.Content, "word..."), "got tail %q", res.Content[len(res.Content)-10:])
	assert.LessOrEqual(t, res.ContentLength, 1000+len(ellipsis))
}

func TestFetch_MaxCharsCappedByConfig(t *testing.T) {
	body := strings.Repeat("abcd ", 100)
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveHTML(w, htmlPage("", "<p>"+body+"</p>"))
	}), func(c *config.FetchConfig) { c.MaxPageSize = 50 })

	res, err := env.fetcher.Fetch(context.Background(), Request{URL: "http://site.test/", MaxChars: 10000})
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.LessOrEqual(t, res.ContentLength, 50+len(ellipsis))
}

func TestFetch_BodyByteCap(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveHTML(w, htmlPage("Big", "<p>"+strings.Repeat("x ", 5000)+"</p>"))
	}), func(c *config.FetchConfig) { c.MaxBodyBytes = 1000 })

	res, err := env.fetcher.Fetch(context.Background(), Request{URL: "http://site.test/"})
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Less(t, res.ContentLength, 1000)
}

func TestFetch_Charset(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write([]byte("<html><body><p>caf\xe9 cr\xe8me</p></body></html>"))
	}))

	res, err := env.fetcher.Fetch(context.Background(), Request{URL: "http://site.test/"})
	require.NoError(t, err)
	assert.Equal(t, "café crème", res.Content)
}

func TestFetch_Idempotent(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveHTML(w, htmlPage("Same", "<main>"+strings.Repeat("Stable text here. ", 20)+"</main>"))
	}))

	req := Request{URL: "http://site.test/", MaxChars: 120}
	first, err := env.fetcher.Fetch(context.Background(), req)
	require.NoError(t, err)
	second, err := env.fetcher.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func redirectChain(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/r/"))
	if err != nil || n <= 0 {
		serveHTML(w, htmlPage("End", "<p>End of the chain.</p>"))
		return
	}
	http.Redirect(w, r, "/r/"+strconv.Itoa(n-1), http.StatusFound)
}

func TestFetch_FollowsFiveRedirects(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(redirectChain))

	res, err := env.fetcher.Fetch(context.Background(), Request{URL: "http://site.test/r/5"})
	require.NoError(t, err)
	assert.Equal(t, "http://site.test/r/0", res.URL)
	assert.Equal(t, "End of the chain.", res.Content)
	assert.Len(t, env.dialed(), 6, "each hop dials its own pinned connection")
}

func TestFetch_TooManyRedirects(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(redirectChain))

	_, err := env.fetcher.Fetch(context.Background(), Request{URL: "http://site.test/r/6"})
	fe := requireCode(t, err, CodeFailed)
	assert.Contains(t, fe.Message, "too many redirects")
}

func TestFetch_RedirectToPrivateTarget(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/literal":
			http.Redirect(w, r, "http://169.254.169.254/latest/meta-data/", http.StatusFound)
		case "/named":
			http.Redirect(w, r, "http://internal.test/admin", http.StatusMovedPermanently)
		case "/scheme":
			http.Redirect(w, r, "file:///etc/passwd", http.StatusFound)
		}
	}))
	env.resolver.set("internal.test", []string{"10.0.0.5"})

	_, err := env.fetcher.Fetch(context.Background(), Request{URL: "http://site.test/literal"})
	requireCode(t, err, CodeBlocked)

	_, err = env.fetcher.Fetch(context.Background(), Request{URL: "http://site.test/named"})
	requireCode(t, err, CodeBlocked)

	_, err = env.fetcher.Fetch(context.Background(), Request{URL: "http://site.test/scheme"})
	requireCode(t, err, CodeInvalidURL)

	for _, addr := range env.dialed() {
		assert.Equal(t, publicIP+":80", addr, "private targets must never be dialed")
	}
}

func TestFetch_DNSRebinding(t *testing.T) {
	tests := []struct {
		name    string
		answers []string
	}{
		{"loopback", []string{"127.0.0.1"}},
		{"rfc1918", []string{"10.0.0.7"}},
		{"metadata", []string{"169.254.169.254"}},
		{"ipv6 loopback", []string{"::1"}},
		{"nat64 metadata", []string{"64:ff9b::a9fe:a9fe"}},
		{"6to4 loopback", []string{"2002:7f00:1::1"}},
		{"all private", []string{"192.168.1.1", "fd00::1", "169.254.0.1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				serveHTML(w, htmlPage("x", "<p>should not be reached</p>"))
			}))
			env.resolver.set("rebind.test", tt.answers)

			_, err := env.fetcher.Fetch(context.Background(), Request{URL: "http://rebind.test/"})
			fe := requireCode(t, err, CodeBlocked)
			assert.Equal(t, "rebind.test", fe.Details["hostname"])
			assert.Empty(t, env.dialed())
		})
	}
}

func TestFetch_RebindingBetweenHops(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/next", http.StatusFound)
			return
		}
		serveHTML(w, htmlPage("x", "<p>should not be reached</p>"))
	}))
	// Public on the first lookup, loopback on the second.
	env.resolver.set("flip.test", []string{publicIP}, []string{"127.0.0.1"})

	_, err := env.fetcher.Fetch(context.Background(), Request{URL: "http://flip.test/start"})
	requireCode(t, err, CodeBlocked)
	assert.Len(t, env.dialed(), 1)
}

func TestFetch_PicksPublicAddress(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveHTML(w, htmlPage("Mixed", "<p>Reached the public address.</p>"))
	}))
	env.resolver.set("mixed.test", []string{"10.1.2.3", "192.168.0.1", publicIP})

	_, err := env.fetcher.Fetch(context.Background(), Request{URL: "http://mixed.test:8080/"})
	require.NoError(t, err)
	assert.Equal(t, []string{publicIP + ":8080"}, env.dialed())
}

func TestFetch_Errors(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"a":1}`)
		case "/forbidden":
			http.Error(w, "no", http.StatusForbidden)
		case "/broken":
			http.Error(w, "oops", http.StatusInternalServerError)
		case "/empty":
			serveHTML(w, "<html><body><script>var x = 1;</script></body></html>")
		case "/nolocation":
			w.WriteHeader(http.StatusFound)
		}
	}))

	tests := []struct {
		url  string
		want Code
	}{
		{"ftp://site.test/file", CodeInvalidURL},
		{"not a url", CodeInvalidURL},
		{"", CodeInvalidURL},
		{"http://127.0.0.1/", CodeBlocked},
		{"http://localhost:8080/", CodeBlocked},
		{"http://[::1]/", CodeBlocked},
		{"http://site.test/json", CodeContentType},
		{"http://site.test/forbidden", CodeBlocked},
		{"http://site.test/broken", CodeFailed},
		{"http://site.test/empty", CodeFailed},
		{"http://site.test/nolocation", CodeFailed},
		{"http://unknown.test/", CodeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			_, err := env.fetcher.Fetch(context.Background(), Request{URL: tt.url})
			requireCode(t, err, tt.want)
		})
	}
}

func TestFetch_Timeout(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}), func(c *config.FetchConfig) { c.TimeoutMS = 150 })

	start := time.Now()
	_, err := env.fetcher.Fetch(context.Background(), Request{URL: "http://site.test/slow"})
	fe := requireCode(t, err, CodeTimeout)
	assert.EqualValues(t, 150, fe.Details["timeout_ms"])
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestFetch_CallerCancel(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := env.fetcher.Fetch(ctx, Request{URL: "http://site.test/"})
	requireCode(t, err, CodeTimeout)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeText, "text": ModeText, "Markdown": ModeMarkdown, " markdown ": ModeMarkdown} {
		got, ok := ParseMode(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseMode("html")
	assert.False(t, ok)
}

func TestErrorString(t *testing.T) {
	err := newError(CodeFailed, "request failed", nil, fmt.Errorf("boom"))
	assert.Equal(t, "FETCH_FAILED: request failed: boom", err.Error())
	assert.Equal(t, CodeFailed, CodeOf(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, Code(""), CodeOf(fmt.Errorf("plain")))
}
