package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/html/charset"
)

// maxRedirects bounds the redirect chain. The initial request plus five
// redirects is the longest chain that can succeed.
const maxRedirects = 5

// hop is the state of one request in a redirect chain. A new value is built
// for every hop; nothing from a previous hop's resolution carries over.
type hop struct {
	url *url.URL
	n   int // redirects followed before this hop
}

// page is the decoded body of the terminal response.
type page struct {
	url     *url.URL
	html    string
	clipped bool // body hit the byte ceiling
}

// get runs the redirect loop. Each hop is resolved and pinned on its own, and
// every Location is re-validated before it is followed.
func (f *Fetcher) get(ctx context.Context, u *url.URL) (*page, error) {
	h := hop{url: u}
	for {
		resp, err := f.do(ctx, h)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 300 || resp.StatusCode > 399 {
			return f.readPage(ctx, h, resp)
		}

		loc := resp.Header.Get("Location")
		resp.Body.Close()
		if loc == "" {
			return nil, newError(CodeFailed, "redirect without Location header",
				map[string]any{"url": h.url.String(), "status": resp.StatusCode}, nil)
		}
		if h.n >= maxRedirects {
			return nil, newError(CodeFailed, "too many redirects",
				map[string]any{"max_redirects": maxRedirects}, nil)
		}

		ref, err := h.url.Parse(loc)
		if err != nil {
			return nil, invalidURL("malformed redirect location", err)
		}
		next, err := Validate(ref.String())
		if err != nil {
			return nil, err
		}
		f.log.Debug().
			Str("from", h.url.String()).
			Str("to", next.String()).
			Int("status", resp.StatusCode).
			Int("hop", h.n+1).
			Msg("following redirect")
		h = hop{url: next, n: h.n + 1}
	}
}

// do performs a single hop over a connection pinned to a freshly resolved
// public address.
func (f *Fetcher) do(ctx context.Context, h hop) (*http.Response, error) {
	host := h.url.Hostname()
	target, err := f.resolvePublic(ctx, host)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url.String(), nil)
	if err != nil {
		return nil, invalidURL("malformed url", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	f.log.Debug().Str("hostname", host).Str("ip", target.IP.String()).Int("hop", h.n).Msg("dialing pinned address")

	resp, err := f.pinnedClient(target).Do(req)
	if err != nil {
		return nil, f.classify(ctx, host, err)
	}
	return resp, nil
}

// pinnedClient builds a client for one hop. The transport never pools
// connections, so a later hop cannot reuse a socket opened for another address.
func (f *Fetcher) pinnedClient(t Target) *http.Client {
	transport := &http.Transport{
		Proxy:                 nil,
		DialContext:           f.pinnedDial(t),
		ForceAttemptHTTP2:     true,
		DisableKeepAlives:     true,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: f.timeout,
	}
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// readPage checks status and content type of the terminal response and reads
// at most maxBodyBytes from the wire, whatever Content-Length claims.
func (f *Fetcher) readPage(ctx context.Context, h hop, resp *http.Response) (*page, error) {
	defer resp.Body.Close()

	status := resp.StatusCode
	if status < 200 || status > 299 {
		details := map[string]any{"status": status, "url": h.url.String()}
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return nil, newError(CodeBlocked, fmt.Sprintf("access denied (HTTP %d)", status), details, nil)
		}
		return nil, newError(CodeFailed, fmt.Sprintf("HTTP %d %s", status, http.StatusText(status)), details, nil)
	}

	ct := resp.Header.Get("Content-Type")
	if !isHTML(ct) {
		shown := ct
		if shown == "" {
			shown = "(none)"
		}
		return nil, newError(CodeContentType, "unsupported content type "+shown,
			map[string]any{"content_type": ct, "url": h.url.String()}, nil)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return nil, f.classify(ctx, h.url.Hostname(), err)
	}
	clipped := int64(len(raw)) > f.maxBodyBytes
	if clipped {
		raw = raw[:f.maxBodyBytes]
		f.log.Debug().Str("url", h.url.String()).Int64("max_body_bytes", f.maxBodyBytes).Msg("body clipped")
	}
	return &page{url: h.url, html: decode(raw, ct), clipped: clipped}, nil
}

func isHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// decode converts the raw body to UTF-8 using the declared or sniffed charset.
// A rune split by the byte ceiling is dropped.
func decode(raw []byte, contentType string) string {
	if r, err := charset.NewReader(bytes.NewReader(raw), contentType); err == nil {
		if b, err := io.ReadAll(r); err == nil {
			return strings.ToValidUTF8(string(b), "")
		}
	}
	return strings.ToValidUTF8(string(raw), "")
}

// classify maps transport errors onto fetch codes. The cause stays in Err for
// logging; the message only names the host.
func (f *Fetcher) classify(ctx context.Context, host string, err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	if ctx.Err() != nil {
		return f.timeoutError(host, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return f.timeoutError(host, err)
	}
	details := map[string]any{"hostname": host}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return newError(CodeFailed, "could not resolve host "+host, details, err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return newError(CodeFailed, "connection refused by "+host, details, err)
	}
	return newError(CodeFailed, "request to "+host+" failed", details, err)
}

func (f *Fetcher) timeoutError(host string, cause error) *Error {
	return newError(CodeTimeout, fmt.Sprintf("fetch timed out after %s", f.timeout),
		map[string]any{"hostname": host, "timeout_ms": f.timeout.Milliseconds()}, cause)
}
