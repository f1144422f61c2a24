package interceptors

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

type clientIPKey struct{}

// ParseTrustedProxies parses the IPs and CIDRs of reverse proxies whose
// x-forwarded-for and x-real-ip headers are honoured. Empty entries are skipped.
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

// ClientAddressUnary resolves the caller address once per RPC for ClientIP.
// Forwarding headers count only when the direct peer is in trusted; otherwise
// the peer address is used as is.
func ClientAddressUnary(trusted []netip.Prefix) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		return handler(context.WithValue(ctx, clientIPKey{}, resolveClientIP(ctx, trusted)), req)
	}
}

// ClientIP returns the address resolved by ClientAddressUnary, falling back to
// the direct peer, or "unknown".
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok && ip != "" {
		return ip
	}
	return peerIP(ctx)
}

func resolveClientIP(ctx context.Context, trusted []netip.Prefix) string {
	direct := peerIP(ctx)
	if !isTrusted(direct, trusted) {
		return direct
	}
	md, _ := metadata.FromIncomingContext(ctx)
	if hop := forwardedClient(md.Get("x-forwarded-for"), trusted); hop != "" {
		return hop
	}
	if v := strings.TrimSpace(first(md, "x-real-ip")); v != "" {
		return v
	}
	return direct
}

// forwardedClient walks x-forwarded-for from the nearest hop outwards and
// returns the first address not in trusted. Hops left of it were written by
// the client and are ignored.
func forwardedClient(values []string, trusted []netip.Prefix) string {
	var hops []string
	for _, v := range values {
		for _, h := range strings.Split(v, ",") {
			if h = strings.TrimSpace(h); h != "" {
				hops = append(hops, h)
			}
		}
	}
	for i := len(hops) - 1; i >= 0; i-- {
		if !isTrusted(hops[i], trusted) {
			return hops[i]
		}
	}
	if len(hops) > 0 {
		return hops[0]
	}
	return ""
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	a, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	a = a.Unmap()
	for _, p := range trusted {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

func peerIP(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			return host
		}
		return p.Addr.String()
	}
	return "unknown"
}
