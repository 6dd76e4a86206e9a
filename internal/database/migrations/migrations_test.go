package migrations

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestRun(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	// Run migrations
	if err := Run(ctx, db); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	// Verify version table exists
	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM _cadence_internal_versions").Scan(&count)
	if err != nil {
		t.Fatalf("version table query failed: %v", err)
	}

	// Should have applied all migrations
	if count == 0 {
		t.Error("expected at least one migration to be applied")
	}
}

func TestRun_Idempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	// Run migrations twice
	if err := Run(ctx, db); err != nil {
		t.Fatalf("first Run() failed: %v", err)
	}

	if err := Run(ctx, db); err != nil {
		t.Fatalf("second Run() failed: %v", err)
	}

	// Verify migrations weren't duplicated
	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM _cadence_internal_versions").Scan(&count)
	if err != nil {
		t.Fatalf("version table query failed: %v", err)
	}

	all, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if count != len(all) {
		t.Errorf("expected %d applied migrations, got %d", len(all), count)
	}
}

func TestList(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	before, err := List(ctx, db)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	for _, s := range before {
		if s.AppliedAt != nil {
			t.Errorf("migration %d reported applied before Run", s.Version)
		}
	}

	if err := Run(ctx, db); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	after, err := List(ctx, db)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(after) != len(before) || len(after) == 0 {
		t.Fatalf("expected %d migrations, got %d", len(before), len(after))
	}
	for i, s := range after {
		if s.AppliedAt == nil {
			t.Errorf("migration %d not applied", s.Version)
		}
		if i > 0 && after[i-1].Version >= s.Version {
			t.Error("migrations not sorted by version")
		}
	}
}

func TestRun_ModifiedMigration(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := Run(ctx, db); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if _, err := db.ExecContext(ctx, `UPDATE _cadence_internal_versions SET checksum = 'stale' WHERE version = 1`); err != nil {
		t.Fatalf("tampering failed: %v", err)
	}

	if err := Run(ctx, db); !errors.Is(err, ErrModified) {
		t.Errorf("expected ErrModified, got %v", err)
	}
}

func TestSchemaTables(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := Run(ctx, db); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	tables := map[string][]string{
		"schedules": {
			"id", "tenant_id", "name", "type", "config", "timezone",
			"enabled", "policy", "created_at", "updated_at",
		},
		"schedule_state": {
			"schedule_id", "last_evaluated_at", "last_triggered_at",
			"next_eligible_at", "last_blocked_by", "trigger_count",
		},
		"schedule_executions": {
			"id", "schedule_id", "tenant_id", "correlation_id", "status", "triggered_at",
		},
		"schedule_decisions": {
			"id", "schedule_id", "should_trigger", "blocked_by", "reason",
			"next_eligible_at", "details", "dry_run", "evaluated_at",
		},
		"events": {
			"id", "type", "source", "action", "payload", "created_at",
			"process_at", "processed", "status",
		},
	}

	for table, required := range tables {
		t.Run(table, func(t *testing.T) {
			columns := tableColumns(t, db, table)
			if len(columns) == 0 {
				t.Fatalf("table %s does not exist", table)
			}
			for _, col := range required {
				if !columns[col] {
					t.Errorf("%s missing required column: %s", table, col)
				}
			}
		})
	}
}

func TestSchedulesUniquePerTenant(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := Run(ctx, db); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	insert := `INSERT INTO schedules (id, tenant_id, name, type, created_at, updated_at)
		VALUES (?, ?, ?, 'ONCE', '2024-01-01T00:00:00.000Z', '2024-01-01T00:00:00.000Z')`

	if _, err := db.ExecContext(ctx, insert, "a", "acme", "report"); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "b", "other", "report"); err != nil {
		t.Fatalf("same name for another tenant should be allowed: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "c", "acme", "report"); err == nil {
		t.Error("expected unique violation for duplicate tenant and name")
	}
}

func TestStatements(t *testing.T) {
	got := statements("-- header\nCREATE TABLE a (\n    id TEXT\n);\n\n-- trailing\nCREATE TABLE b (id TEXT);\nSELECT 1")
	want := []string{"CREATE TABLE a (\n    id TEXT\n)", "CREATE TABLE b (id TEXT)", "SELECT 1"}
	if len(got) != len(want) {
		t.Fatalf("expected %d statements, got %d: %q", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("statement %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func tableColumns(t *testing.T, db *sql.DB, table string) map[string]bool {
	t.Helper()

	rows, err := db.QueryContext(context.Background(), "PRAGMA table_info("+table+")")
	if err != nil {
		t.Fatalf("getting %s schema: %v", table, err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, typ string
		var notnull, pk int
		var dfltValue sql.NullString
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("scanning column info: %v", err)
		}
		columns[name] = true
	}
	return columns
}
