// Package migrate applies the escrow schema. Postgres databases run the goose
// SQL migrations embedded in every binary; sqlite databases (local mode and
// tests) are migrated from the gorm models.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
)

// DefaultDir is where migrations live in the source tree. Passing it (or "")
// selects the embedded copy.
const DefaultDir = "pkg/migrate/migrations"

const embeddedDir = "migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Source resolves a migrations directory to a filesystem and the path inside
// it. The source-tree directory maps onto the embedded files so binaries do
// not depend on the working directory.
func Source(dir string) (fs.FS, string) {
	if dir == "" || dir == DefaultDir {
		return embedded, embeddedDir
	}
	return nil, dir
}

// Run executes a goose command against a Postgres database.
func Run(ctx context.Context, db *sql.DB, dir string, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if err := prepare(dir); err != nil {
		return err
	}
	_, path := Source(dir)
	if err := goose.RunContext(ctx, command, db, path, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion moves the schema up or down to targetVersion.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir string, targetVersion string) error {
	if targetVersion == "" {
		return fmt.Errorf("targetVersion is required")
	}
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}
	if err := prepare(dir); err != nil {
		return err
	}
	_, path := Source(dir)

	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil
	case current < target:
		if err := goose.UpToContext(ctx, db, path, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
	default:
		if err := goose.DownToContext(ctx, db, path, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
	}
	return nil
}

// AutoMigrate builds the schema from the gorm models. It backs sqlite
// databases, where the Postgres SQL (jsonb, numeric checks) does not apply.
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if err := conn.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("automigrate models: %w", err)
	}
	return nil
}

func prepare(dir string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	fsys, _ := Source(dir)
	goose.SetBaseFS(fsys)
	return nil
}
