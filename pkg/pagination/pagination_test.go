package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-4))
	assert.Equal(t, 10, NormalizeLimit(10))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
	assert.Equal(t, 11, LimitWithBuffer(10))
}

func TestCursorRoundTripIsURLSafe(t *testing.T) {
	cursor := Cursor{
		CreatedAt: time.Date(2026, 9, 30, 23, 59, 59, 123456789, time.FixedZone("CST", -6*3600)),
		ID:        uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e"),
	}
	encoded := EncodeCursor(cursor)
	assert.NotContains(t, encoded, "+")
	assert.NotContains(t, encoded, "/")
	assert.NotContains(t, encoded, "=")

	decoded, err := ParseCursor(encoded)
	require.NoError(t, err)
	assert.True(t, decoded.CreatedAt.Equal(cursor.CreatedAt))
	assert.Equal(t, time.UTC, decoded.CreatedAt.Location())
	assert.Equal(t, cursor.ID, decoded.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	decoded, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, decoded)

	for _, value := range []string{"%%%", encodeRaw("no-separator"), encodeRaw("yesterday|" + uuid.NewString()), encodeRaw("2026-01-01T00:00:00Z|nope")} {
		_, err := ParseCursor(value)
		assert.Error(t, err, value)
	}
}

func TestTrim(t *testing.T) {
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	rows := []Cursor{
		{CreatedAt: base.Add(3 * time.Minute), ID: ids[0]},
		{CreatedAt: base.Add(2 * time.Minute), ID: ids[1]},
		{CreatedAt: base.Add(time.Minute), ID: ids[2]},
	}
	identity := func(c Cursor) Cursor { return c }

	page, next := Trim(rows, 2, identity)
	require.Len(t, page, 2)
	next2, err := ParseCursor(next)
	require.NoError(t, err)
	assert.Equal(t, ids[1], next2.ID)

	page, next = Trim(rows, 3, identity)
	assert.Len(t, page, 3)
	assert.Empty(t, next)
}

func encodeRaw(payload string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}
