package task

import (
	"strings"
	"testing"
	"testing/fstest"

	"hedera-swap-plugin/deploy/migrations"
)

func TestLoadMigrationsOrdersByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"010_later.sql":  {Data: []byte("ALTER TABLE t ADD c INT;")},
		"002_second.sql": {Data: []byte("CREATE INDEX i ON t (a);\n\nCREATE INDEX j ON t (b);")},
		"001_first.sql":  {Data: []byte("CREATE TABLE t (a INT, b INT);")},
		"003_empty.sql":  {Data: []byte("  ;\n")},
		"README.md":      {Data: []byte("ignored")},
	}

	got, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(got))
	}
	if got[0].version != "001" || got[1].version != "002" || got[2].version != "010" {
		t.Fatalf("unexpected order: %s %s %s", got[0].version, got[1].version, got[2].version)
	}
	if len(got[1].statements) != 2 {
		t.Fatalf("expected two statements, got %v", got[1].statements)
	}
}

func TestEmbeddedMigrationsCreateJobsTable(t *testing.T) {
	got, err := loadMigrations(migrations.Files)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) == 0 || got[0].version != "001" {
		t.Fatalf("expected the jobs table migration first, got %+v", got)
	}
	if !strings.Contains(got[0].statements[0], "CREATE TABLE IF NOT EXISTS swap_jobs") {
		t.Fatalf("unexpected first statement: %s", got[0].statements[0])
	}
	for _, col := range strings.Split(jobColumns, ",") {
		if !strings.Contains(got[0].statements[0], strings.TrimSpace(col)+" ") {
			t.Fatalf("schema is missing column %q", col)
		}
	}
}

func TestMigrationVersion(t *testing.T) {
	if v := migrationVersion("001_swap_jobs.sql"); v != "001" {
		t.Fatalf("got %s", v)
	}
	if v := migrationVersion("bootstrap.sql"); v != "bootstrap" {
		t.Fatalf("got %s", v)
	}
}
