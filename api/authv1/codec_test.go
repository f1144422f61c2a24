package authv1

import (
	"testing"
	"time"

	"google.golang.org/grpc/encoding"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestCodec_Registered(t *testing.T) {
	if c := encoding.GetCodec(CodecName); c == nil {
		t.Fatal("json codec not registered")
	}
}

func TestCodec_Struct(t *testing.T) {
	c := Codec{}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	in := &LoginResponse{Success: true, SessionToken: "s", DeviceToken: "d", ExpiresAt: at, User: &User{ID: "u1", Username: "alice"}}
	b, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out LoginResponse
	if err := c.Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.SessionToken != "s" || out.DeviceToken != "d" || !out.ExpiresAt.Equal(at) || out.User.Username != "alice" {
		t.Errorf("round trip = %+v", out)
	}
}

func TestCodec_EmptyBody(t *testing.T) {
	var req VerifyRequest
	if err := (Codec{}).Unmarshal(nil, &req); err != nil {
		t.Errorf("Unmarshal(nil): %v", err)
	}
	if err := (Codec{}).Unmarshal([]byte("{not json"), &LoginRequest{}); err == nil {
		t.Error("Unmarshal accepted malformed JSON")
	}
}

func TestCodec_ProtoMessage(t *testing.T) {
	c := Codec{}
	b, err := c.Marshal(&healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out healthpb.HealthCheckResponse
	if err := c.Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v", out.GetStatus())
	}
}
