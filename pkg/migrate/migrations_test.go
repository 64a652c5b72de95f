package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"

	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/migrate"
)

func readMigrations(t *testing.T) string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	var all strings.Builder
	for _, f := range files {
		data, err := os.ReadFile(f)
		require.NoError(t, err)
		all.Write(data)
		all.WriteString("\n")
	}
	return all.String()
}

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
	require.NoError(t, migrate.ValidateDir(migrate.DefaultDir), "embedded copy")
}

func TestEmbeddedMatchesDisk(t *testing.T) {
	fsys, root := migrate.Source("")
	require.NotNil(t, fsys)
	embedded, err := fs.Glob(fsys, root+"/*.sql")
	require.NoError(t, err)
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	assert.Len(t, embedded, len(onDisk))

	other, dir := migrate.Source("/tmp/elsewhere")
	assert.Nil(t, other)
	assert.Equal(t, "/tmp/elsewhere", dir)
}

func TestEveryModelHasATable(t *testing.T) {
	content := readMigrations(t)
	naming := schema.NamingStrategy{}

	for _, model := range models.All() {
		table := tableName(naming, model)
		assert.Contains(t, content, "CREATE TABLE IF NOT EXISTS "+table+" (", "missing create for %s", table)
		assert.Contains(t, content, "DROP TABLE IF EXISTS "+table+";", "missing drop for %s", table)
	}
}

func TestEscrowConstraints(t *testing.T) {
	content := readMigrations(t)

	for _, sub := range []string{
		"CONSTRAINT ux_orders_payment_reference UNIQUE (payment_reference)",
		"CONSTRAINT ux_escrow_allocations_sub_order UNIQUE (sub_order_id)",
		"CONSTRAINT ux_escrow_ledger_entries_seq UNIQUE (allocation_id, sequence)",
		"CONSTRAINT ux_invoices_seller_period UNIQUE (seller_id, year, month)",
		"CONSTRAINT ux_return_cases_sub_order UNIQUE (sub_order_id)",
		"CHECK (commission_rate >= 0 AND commission_rate <= 1)",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()

	path, err := migrate.CreateSQLMigration(dir, "Add Payout Holds!")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_add_payout_holds.sql"), path)
	require.NoError(t, migrate.ValidateDir(dir))

	_, err = migrate.CreateSQLMigration(dir, "!!!")
	require.Error(t, err)
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1_orders.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))

	require.Error(t, migrate.ValidateDir(dir))
}

func TestValidateFSRequiresDropForEveryCreate(t *testing.T) {
	fsys := fstest.MapFS{
		"m/20261001120000_payout_holds.sql": {Data: []byte(`-- +goose Up
CREATE TABLE IF NOT EXISTS payout_holds (id uuid PRIMARY KEY);
CREATE TABLE IF NOT EXISTS payout_hold_events (id uuid PRIMARY KEY);
-- +goose Down
DROP TABLE IF EXISTS payout_holds;
`)},
	}
	err := migrate.ValidateFS(fsys, "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payout_hold_events")

	fsys["m/20261001120000_payout_holds.sql"] = &fstest.MapFile{Data: []byte("-- +goose Down\n-- +goose Up\n")}
	require.Error(t, migrate.ValidateFS(fsys, "m"))
}

type tabler interface {
	TableName() string
}

func tableName(naming schema.NamingStrategy, model any) string {
	if t, ok := model.(tabler); ok {
		return t.TableName()
	}
	return naming.TableName(reflect.Indirect(reflect.ValueOf(model)).Type().Name())
}
