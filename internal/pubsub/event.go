package pubsub

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire form of every event: the name, the routing key it was
// published under and the payload, each JSON encoded.
type Envelope struct {
	Name    Name            `json:"name"`
	Args    json.RawMessage `json:"args"`
	Payload json.RawMessage `json:"payload"`
}

// Event is a decoded envelope for a single topic.
type Event[K RoutingKey, P any] struct {
	Name    Name
	Args    K
	Payload P
}

func encodeEnvelope(name Name, key, payload any) ([]byte, error) {
	args, err := json.Marshal(key)
	if err != nil {
		return nil, fmt.Errorf("marshal args of %s: %w", name, err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload of %s: %w", name, err)
	}
	return json.Marshal(Envelope{Name: name, Args: args, Payload: body})
}

func decodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if _, ok := lookup(env.Name); !ok {
		return Envelope{}, fmt.Errorf("unknown event %q", env.Name)
	}
	return env, nil
}

// Decode converts an envelope into the typed event of topic. It fails when
// the envelope belongs to another event.
func Decode[K RoutingKey, P any](topic Topic[K, P], env Envelope) (Event[K, P], error) {
	var ev Event[K, P]
	if env.Name != topic.name {
		return ev, fmt.Errorf("decode %s: envelope carries %s", topic.name, env.Name)
	}
	ev.Name = env.Name
	if err := unmarshalNullable(env.Args, &ev.Args); err != nil {
		return ev, fmt.Errorf("decode %s args: %w", topic.name, err)
	}
	if err := unmarshalNullable(env.Payload, &ev.Payload); err != nil {
		return ev, fmt.Errorf("decode %s payload: %w", topic.name, err)
	}
	return ev, nil
}

// unmarshalNullable leaves v at its zero value for an absent or null field.
// NoKey and NoPayload marshal as null but have no UnmarshalJSON.
func unmarshalNullable(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
