package utilities

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

// TrustedProxies holds the networks whose forwarded client address headers
// are believed. A nil or empty set trusts nobody, so the socket peer is used.
type TrustedProxies struct {
	prefixes []netip.Prefix
}

// ParseTrustedProxies accepts CIDRs or bare addresses.
func ParseTrustedProxies(entries []string) (*TrustedProxies, error) {
	t := &TrustedProxies{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if !strings.Contains(entry, "/") {
			addr, err := netip.ParseAddr(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
			}
			t.prefixes = append(t.prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}

		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		t.prefixes = append(t.prefixes, prefix.Masked())
	}
	return t, nil
}

// Trusts reports whether ip belongs to a trusted proxy network.
func (t *TrustedProxies) Trusts(ip string) bool {
	if t == nil || len(t.prefixes) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range t.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIPFromHTTP returns the originating client address. Forwarded
// headers are only read when the socket peer is a trusted proxy.
func (t *TrustedProxies) ClientIPFromHTTP(r *http.Request) string {
	return t.resolve(hostOnly(r.RemoteAddr), r.Header.Values("X-Forwarded-For"), r.Header.Get("X-Real-IP"))
}

// ClientIPFromGRPC does the same for incoming gRPC calls.
func (t *TrustedProxies) ClientIPFromGRPC(ctx context.Context) string {
	var remote string
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		remote = hostOnly(p.Addr.String())
	}

	var forwarded []string
	var realIP string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		forwarded = md.Get("x-forwarded-for")
		if v := md.Get("x-real-ip"); len(v) > 0 {
			realIP = v[0]
		}
	}

	return t.resolve(remote, forwarded, realIP)
}

// resolve walks the forwarded chain from the nearest hop and returns the
// first address that is not a trusted proxy.
func (t *TrustedProxies) resolve(remote string, forwarded []string, realIP string) string {
	if !t.Trusts(remote) {
		return remote
	}

	var hops []string
	for _, header := range forwarded {
		for _, hop := range strings.Split(header, ",") {
			if hop = strings.TrimSpace(hop); hop != "" {
				hops = append(hops, hop)
			}
		}
	}
	for i := len(hops) - 1; i >= 0; i-- {
		if !t.Trusts(hops[i]) {
			return hops[i]
		}
	}
	if len(hops) > 0 {
		return hops[0]
	}

	if realIP = strings.TrimSpace(realIP); realIP != "" {
		return realIP
	}
	return remote
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
