package registry

import (
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
)

// Decoder turns an envelope's data into a typed payload.
type Decoder func(data json.RawMessage) (any, error)

type schemaKey struct {
	eventType enums.OutboxEventType
	version   int
}

// decodeAs decodes into a fresh *T.
func decodeAs[T any]() Decoder {
	return func(data json.RawMessage) (any, error) {
		out := new(T)
		if err := json.Unmarshal(data, out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// RegisterDecoder adds a decoder for a later schema version of a known event
// type. Rows keep decoding with the version they were written with.
func (r *EventRegistry) RegisterDecoder(eventType enums.OutboxEventType, version int, decode Decoder) error {
	if _, ok := r.entries[eventType]; !ok {
		return fmt.Errorf("event type %s is not routed", eventType)
	}
	if version < 1 || decode == nil {
		return fmt.Errorf("invalid decoder for %s@v%d", eventType, version)
	}
	r.decoders[schemaKey{eventType, version}] = decode
	return nil
}

func (r *EventRegistry) decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	decode, ok := r.decoders[schemaKey{eventType, version}]
	if !ok {
		return nil, fmt.Errorf("no decoder for %s@v%d", eventType, version)
	}
	return decode(data)
}
