package eventing

import (
	"context"
	"errors"
	"testing"
)

type sampleEvent struct {
	Value int `json:"value"`
}

func TestInMemoryBusDeliversToSubscribers(t *testing.T) {
	bus := NewInMemoryBus()

	var got []int
	bus.Subscribe(EventTypeOf[sampleEvent](), func(_ context.Context, event any) error {
		got = append(got, event.(sampleEvent).Value)
		return nil
	})
	bus.Subscribe(EventTypeOf[sampleEvent](), func(_ context.Context, event any) error {
		got = append(got, event.(sampleEvent).Value*10)
		return nil
	})

	if err := bus.Publish(context.Background(), sampleEvent{Value: 3}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(got) != 2 || got[0] != 3 || got[1] != 30 {
		t.Fatalf("unexpected deliveries: %v", got)
	}
}

func TestInMemoryBusNilEvent(t *testing.T) {
	bus := NewInMemoryBus()
	if err := bus.Publish(context.Background(), nil); !errors.Is(err, ErrNilEvent) {
		t.Fatalf("expected ErrNilEvent, got %v", err)
	}
}

func TestInMemoryBusReportsFirstHandlerError(t *testing.T) {
	bus := NewInMemoryBus()
	wantErr := errors.New("boom")
	calls := 0
	bus.Subscribe(EventTypeOf[sampleEvent](), func(_ context.Context, _ any) error {
		calls++
		return wantErr
	})
	bus.Subscribe(EventTypeOf[sampleEvent](), func(_ context.Context, _ any) error {
		calls++
		return nil
	})

	err := bus.Publish(context.Background(), sampleEvent{Value: 1})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected both handlers to run, got %d calls", calls)
	}
}

func TestEnvelopeRoundTripThroughRegistry(t *testing.T) {
	env, err := BuildEnvelope(sampleEvent{Value: 7})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if env.EventID == "" {
		t.Fatal("expected non-empty event id")
	}
	if env.EventType != EventTypeOf[sampleEvent]() {
		t.Fatalf("unexpected event type %s", env.EventType)
	}

	registry := NewRegistry()
	registry.Register(sampleEvent{})
	if !registry.Known(env.EventType) {
		t.Fatalf("expected %s to be known", env.EventType)
	}

	decoded, err := registry.Decode(env.EventType, env.Payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	event, ok := decoded.(sampleEvent)
	if !ok {
		t.Fatalf("expected sampleEvent, got %T", decoded)
	}
	if event.Value != 7 {
		t.Fatalf("expected value 7, got %d", event.Value)
	}
}

func TestRegistryRejectsUnknownType(t *testing.T) {
	registry := NewRegistry()
	if _, err := registry.Decode("nowhere.Event", nil); err == nil {
		t.Fatal("expected error for unknown type")
	}
}
