package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"
)

var (
	sqlFileRe     = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
	createTableRe = regexp.MustCompile(`(?i)CREATE TABLE IF NOT EXISTS (\w+)`)
	dropTableRe   = regexp.MustCompile(`(?i)DROP TABLE IF EXISTS (\w+)`)
)

// ValidateDir checks the migrations in dir; the source-tree default checks
// the embedded copy.
func ValidateDir(dir string) error {
	fsys, root := Source(dir)
	if fsys == nil {
		if dir == "" {
			return fmt.Errorf("dir is required")
		}
		fsys, root = os.DirFS(dir), "."
	}
	return ValidateFS(fsys, root)
}

// ValidateFS enforces the migration conventions: timestamped unique file
// names, an Up section followed by a Down section, and every table created in
// Up dropped again in Down so rollbacks leave no escrow tables behind.
func ValidateFS(fsys fs.FS, root string) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", root, err)
	}

	seen := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		version := m[1]
		if prev, ok := seen[version]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", version, prev, name)
		}
		seen[version] = name

		b, err := fs.ReadFile(fsys, path.Join(root, name))
		if err != nil {
			return fmt.Errorf("read file %q: %w", name, err)
		}
		if err := validateSections(name, string(b)); err != nil {
			return err
		}
	}
	return nil
}

func validateSections(name, txt string) error {
	upIdx := strings.Index(txt, "-- +goose Up")
	downIdx := strings.Index(txt, "-- +goose Down")
	switch {
	case upIdx < 0:
		return fmt.Errorf("migration %q missing \"-- +goose Up\"", name)
	case downIdx < 0:
		return fmt.Errorf("migration %q missing \"-- +goose Down\"", name)
	case downIdx < upIdx:
		return fmt.Errorf("migration %q has Down before Up", name)
	}

	up, down := txt[upIdx:downIdx], txt[downIdx:]
	dropped := map[string]bool{}
	for _, m := range dropTableRe.FindAllStringSubmatch(down, -1) {
		dropped[strings.ToLower(m[1])] = true
	}
	var missing []string
	for _, m := range createTableRe.FindAllStringSubmatch(up, -1) {
		if !dropped[strings.ToLower(m[1])] {
			missing = append(missing, m[1])
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("migration %q creates tables never dropped in Down: %s", name, strings.Join(missing, ", "))
	}
	return nil
}
