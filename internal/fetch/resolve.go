package fetch

import (
	"context"
	"errors"
	"net"
)

// Resolver looks up the addresses for a hostname. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// DialFunc opens a network connection. (*net.Dialer).DialContext satisfies it.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Target is the public address chosen for one hop. It is never reused across
// hops or requests.
type Target struct {
	Host   string
	IP     net.IP
	Family int // 4 or 6
}

// resolvePublic resolves host and picks the first address outside the blocked
// ranges. If every answer is private the host is rejected even though its name
// passed Validate; this is where DNS rebinding gets caught.
func (f *Fetcher) resolvePublic(ctx context.Context, host string) (Target, error) {
	addrs, err := f.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		if ctx.Err() != nil {
			return Target{}, f.timeoutError(host, ctx.Err())
		}
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsTimeout {
			return Target{}, f.timeoutError(host, err)
		}
		return Target{}, newError(CodeFailed, "could not resolve host "+host,
			map[string]any{"hostname": host}, err)
	}
	if len(addrs) == 0 {
		return Target{}, newError(CodeFailed, "could not resolve host "+host,
			map[string]any{"hostname": host}, nil)
	}

	for _, a := range addrs {
		if IsBlockedIP(a.IP) {
			continue
		}
		family := 6
		if a.IP.To4() != nil {
			family = 4
		}
		return Target{Host: host, IP: a.IP, Family: family}, nil
	}

	f.log.Warn().Str("hostname", host).Int("addresses", len(addrs)).
		Msg("host resolves only to private addresses")
	return Target{}, blocked("host "+host+" resolves to a private address", host)
}

// pinnedDial returns a dial function that connects to t.IP no matter which
// host the transport asks for. Only the port from the request is kept, so the
// transport cannot trigger a second, independent lookup.
func (f *Fetcher) pinnedDial(t Target) DialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		_, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		return f.dial(ctx, network, net.JoinHostPort(t.IP.String(), port))
	}
}
