package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var migrationFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir checks that every .sql file in dir is a well-formed goose
// migration: timestamped snake_case filename, unique version, and both
// Up and Down sections present.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	versions := map[string]string{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		if err := validateMigration(dir, entry.Name(), versions); err != nil {
			return err
		}
	}
	return nil
}

func validateMigration(dir, name string, versions map[string]string) error {
	match := migrationFileRe.FindStringSubmatch(name)
	if match == nil {
		return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
	}

	version := match[1]
	if prev, dup := versions[version]; dup {
		return fmt.Errorf("duplicate migration version %s in %q and %q", version, prev, name)
	}
	versions[version] = name

	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("read file %q: %w", name, err)
	}
	for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
		if !strings.Contains(string(raw), marker) {
			return fmt.Errorf("migration %q missing %q", name, marker)
		}
	}
	return nil
}
