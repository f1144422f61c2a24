package producer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"devicebound-auth/backend/internal/telemetry/domain"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

var _ Producer = (*KafkaProducer)(nil)

func TestNewKafkaProducer_DisabledWithoutBrokersOrTopic(t *testing.T) {
	if p := NewKafkaProducer(nil, "topic", nil); p != nil {
		t.Error("expected nil producer without brokers")
	}
	if p := NewKafkaProducer([]string{"localhost:9092"}, "", nil); p != nil {
		t.Error("expected nil producer without topic")
	}
	var p *KafkaProducer
	if err := p.Emit(context.Background(), &domain.Event{}); err != nil {
		t.Errorf("nil producer Emit: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("nil producer Close: %v", err)
	}
}

func TestKafkaProducer_EmitKeysByUser(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaProducer(w, "devauth-telemetry", nil)
	ev := &domain.Event{
		UserID:    "u1",
		EventType: domain.EventGRPCRequest,
		Source:    "grpc_interceptor",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := p.Emit(context.Background(), ev); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "u1" {
		t.Errorf("key = %q, want u1", w.msgs[0].Key)
	}
	var got domain.Event
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.EventType != domain.EventGRPCRequest || got.UserID != "u1" {
		t.Errorf("payload = %+v", got)
	}

	if err := p.Emit(context.Background(), &domain.Event{EventType: "anon"}); err != nil {
		t.Fatalf("Emit anonymous: %v", err)
	}
	if w.msgs[1].Key != nil {
		t.Errorf("anonymous key = %q, want nil", w.msgs[1].Key)
	}
}

func TestKafkaProducer_EmitErrorAndClose(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := newKafkaProducer(w, "t", nil)
	if err := p.Emit(context.Background(), &domain.Event{}); err == nil {
		t.Error("Emit should return the writer error")
	}
	if err := p.Close(); err != nil || !w.closed {
		t.Errorf("Close err=%v closed=%v", err, w.closed)
	}
}
