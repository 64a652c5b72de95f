package outbox

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
)

func TestSealAndOpenEnvelope(t *testing.T) {
	id := uuid.New()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	raw, err := sealEnvelope(id, DomainEvent{
		EventType:  enums.EventOrderCreated,
		Actor:      &ActorRef{Role: "buyer"},
		Data:       map[string]string{"order_number": "PF-9"},
		OccurredAt: at,
	})
	require.NoError(t, err)

	env, err := OpenEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, id.String(), env.EventID)
	assert.Equal(t, 1, env.SchemaVersion())
	assert.True(t, at.Equal(env.OccurredAt))
	assert.Equal(t, "buyer", env.Actor.Role)
	assert.JSONEq(t, `{"order_number":"PF-9"}`, string(env.Data))
}

func TestOpenEnvelopeRejectsMissingData(t *testing.T) {
	for _, raw := range []string{`{"version":1}`, `{"version":1,"data":null}`, `not json`} {
		_, err := OpenEnvelope([]byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestSchemaVersionDefaultsLegacyRows(t *testing.T) {
	assert.Equal(t, 1, Envelope{}.SchemaVersion())
	assert.Equal(t, 3, Envelope{Version: 3}.SchemaVersion())
}
