package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const currentEnvelopeVersion = 1

var errEmptyEventData = errors.New("envelope carries no data")

// ActorRef names the user or role whose action produced an event. System
// jobs leave UserID zero.
type ActorRef struct {
	UserID uuid.UUID `json:"userId,omitempty"`
	Role   string    `json:"role,omitempty"`
}

// Envelope is the JSON written to outbox_events.payload and published to
// Pub/Sub byte for byte. Data holds the typed event body.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// SchemaVersion is the version decoders are keyed on; rows written before
// versioning count as 1.
func (e Envelope) SchemaVersion() int {
	return max(e.Version, currentEnvelopeVersion)
}

func sealEnvelope(id uuid.UUID, event DomainEvent) ([]byte, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", event.EventType, err)
	}
	return json.Marshal(Envelope{
		Version:    max(event.Version, currentEnvelopeVersion),
		EventID:    id.String(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	})
}

// OpenEnvelope parses a stored payload and rejects envelopes without data.
func OpenEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if d := bytes.TrimSpace(env.Data); len(d) == 0 || bytes.Equal(d, []byte("null")) {
		return Envelope{}, errEmptyEventData
	}
	return env, nil
}
