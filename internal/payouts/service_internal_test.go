package payouts

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", maxErrorRefLen))
	assert.Equal(t, "ab", truncate("abc", 2))

	value := strings.Repeat("a", 254) + "é"
	got := truncate(value, 255)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", 254), got)

	assert.Equal(t, "", truncate("é", 1))
}

func TestErrorRefStaysValidUTF8(t *testing.T) {
	ref := errorRef(uuid.New(), errors.New(strings.Repeat("banco rechazó la transferencia ", 20)))
	assert.LessOrEqual(t, len(ref), maxErrorRefLen)
	assert.True(t, utf8.ValidString(ref))
}
