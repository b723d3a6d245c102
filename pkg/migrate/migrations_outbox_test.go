package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fabricmgmt/eventing-backend/pkg/migrate"
)

func TestOutboxMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_outbox_records.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS outbox_records",
		"CHECK (retry_count >= 0)",
		"CHECK (status IN ('NEW', 'PUBLISHING', 'PUBLISHED', 'FAILED'))",
		"CREATE INDEX IF NOT EXISTS idx_outbox_status_occurred ON outbox_records (status, occurred_at)",
		"CREATE INDEX IF NOT EXISTS idx_outbox_aggregate ON outbox_records (aggregate_type, aggregate_id)",
		"DROP TABLE IF EXISTS outbox_records",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestProcessedEventsMigrationHasCompositeKey(t *testing.T) {
	content := readMigration(t, "*_create_processed_events.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS processed_events",
		"PRIMARY KEY (event_id, consumer_name)",
		"DROP TABLE IF EXISTS processed_events",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirectoryIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration file matching %q", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
