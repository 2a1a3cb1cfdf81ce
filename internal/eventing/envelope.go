package eventing

import (
	"encoding/json"
	"errors"
	"reflect"
)

// Envelope wraps an event payload with its type name and identifier. Event
// times are not carried here: the event log resolves wall-clock time at
// segment granularity.
type Envelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// BuildEnvelope constructs an envelope from an event payload.
func BuildEnvelope(event any) (Envelope, error) {
	if event == nil {
		return Envelope{}, ErrNilEvent
	}

	eventType := reflect.TypeOf(event)
	for eventType.Kind() == reflect.Ptr {
		eventType = eventType.Elem()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{
		EventID:   NewEventID(),
		EventType: eventType.String(),
		Payload:   payload,
	}, nil
}

// Registry maps event type names to constructors for decoding payloads. All
// registrations happen during wiring, before concurrent use.
type Registry struct {
	factories map[string]func() any
}

// NewRegistry constructs a registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]func() any)}
}

// Register registers an event type (value or pointer).
func (r *Registry) Register(sample any) {
	if r == nil || sample == nil {
		return
	}
	t := reflect.TypeOf(sample)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.factories[t.String()] = func() any {
		return reflect.New(t).Interface()
	}
}

// Known reports whether an event type name is registered.
func (r *Registry) Known(eventType string) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[eventType]
	return ok
}

// Decode decodes a payload into a concrete event value.
func (r *Registry) Decode(eventType string, payload json.RawMessage) (any, error) {
	if r == nil {
		return nil, errors.New("eventing: nil registry")
	}
	factory := r.factories[eventType]
	if factory == nil {
		return nil, errors.New("eventing: unknown event type " + eventType)
	}
	target := factory()
	if err := json.Unmarshal(payload, target); err != nil {
		return nil, err
	}
	value := reflect.ValueOf(target)
	if value.Kind() == reflect.Ptr && !value.IsNil() {
		return value.Elem().Interface(), nil
	}
	return target, nil
}
