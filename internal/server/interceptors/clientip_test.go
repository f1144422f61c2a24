package interceptors

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

func peerContext(ip string, pairs ...string) context.Context {
	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP(ip), Port: 5555}})
	if len(pairs) > 0 {
		ctx = metadata.NewIncomingContext(ctx, metadata.Pairs(pairs...))
	}
	return ctx
}

func resolvedIP(t *testing.T, ctx context.Context, trusted []string) string {
	t.Helper()
	prefixes, err := ParseTrustedProxies(trusted)
	if err != nil {
		t.Fatalf("ParseTrustedProxies: %v", err)
	}
	var got string
	_, err = ClientAddressUnary(prefixes)(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/test/Method"}, func(ctx context.Context, _ interface{}) (interface{}, error) {
		got = ClientIP(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	return got
}

func TestClientAddressUnary(t *testing.T) {
	proxies := []string{"10.0.0.0/8"}
	tests := []struct {
		name    string
		ctx     context.Context
		trusted []string
		want    string
	}{
		{"peer only", peerContext("192.0.2.5"), nil, "192.0.2.5"},
		{"forwarded header from untrusted peer ignored", peerContext("192.0.2.5", "x-forwarded-for", "203.0.113.1"), nil, "192.0.2.5"},
		{"real ip from untrusted peer ignored", peerContext("192.0.2.5", "x-real-ip", "198.51.100.7"), proxies, "192.0.2.5"},
		{"trusted proxy forwards client", peerContext("10.0.0.2", "x-forwarded-for", "203.0.113.1"), proxies, "203.0.113.1"},
		{"spoofed left hops skipped", peerContext("10.0.0.2", "x-forwarded-for", "1.1.1.1, 203.0.113.1, 10.0.0.7"), proxies, "203.0.113.1"},
		{"trusted proxy real ip", peerContext("10.0.0.2", "x-real-ip", "198.51.100.7"), proxies, "198.51.100.7"},
		{"trusted proxy without headers", peerContext("10.0.0.2"), proxies, "10.0.0.2"},
		{"single trusted address", peerContext("192.0.2.5", "x-forwarded-for", "203.0.113.9"), []string{"192.0.2.5"}, "203.0.113.9"},
		{"no peer", context.Background(), proxies, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolvedIP(t, tt.ctx, tt.trusted); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientIP_WithoutInterceptorUsesPeer(t *testing.T) {
	ctx := peerContext("192.0.2.5", "x-forwarded-for", "203.0.113.1")
	if got := ClientIP(ctx); got != "192.0.2.5" {
		t.Errorf("ClientIP = %q, want peer address", got)
	}
	if got := ClientIP(context.Background()); got != "unknown" {
		t.Errorf("ClientIP = %q, want unknown", got)
	}
}

func TestParseTrustedProxies(t *testing.T) {
	got, err := ParseTrustedProxies([]string{" 10.0.0.0/8 ", "", "192.0.2.5", "2001:db8::/32"})
	if err != nil {
		t.Fatalf("ParseTrustedProxies: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("prefixes = %v, want 3", got)
	}
	if got[1].Bits() != 32 {
		t.Errorf("single address bits = %d, want 32", got[1].Bits())
	}
	if _, err := ParseTrustedProxies([]string{"not-an-ip"}); err == nil {
		t.Error("invalid entry should fail")
	}
}
