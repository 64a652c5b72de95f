package migrate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSQLMigrationBumpsPastLatest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20261001120400_create_outbox.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))

	// clock behind the newest migration
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	path, err := createSQLMigration(dir, "payout holds", now)
	require.NoError(t, err)
	assert.Equal(t, "20261001120401_payout_holds.sql", filepath.Base(path))

	path, err = createSQLMigration(dir, "invoice credits", time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "20261016093000_invoice_credits.sql", filepath.Base(path))
}
