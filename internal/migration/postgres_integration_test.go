package migration

import (
	"database/sql"
	"io/fs"
	"os"
	"testing"

	_ "github.com/lib/pq"

	"github.com/julianstephens/planmate/migrations"
)

// Set POSTGRES_TEST_URL to run, e.g.
// POSTGRES_TEST_URL="postgres://user@localhost:5432/testdb?sslmode=disable"
func setupPostgresTestDB(t *testing.T) *sql.DB {
	connStr := os.Getenv("POSTGRES_TEST_URL")
	if connStr == "" {
		t.Skip("POSTGRES_TEST_URL not set, skipping PostgreSQL integration test")
	}
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("failed to open postgres database: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Fatalf("failed to ping postgres database: %v", err)
	}
	t.Cleanup(func() {
		db.Exec("DROP TABLE IF EXISTS schema_version")
		db.Exec("DROP TABLE IF EXISTS preferences")
		db.Close()
	})
	return db
}

func TestPostgresEmbeddedMigrations(t *testing.T) {
	db := setupPostgresTestDB(t)
	sub, err := fs.Sub(migrations.FS, "postgres")
	if err != nil {
		t.Fatal(err)
	}
	runner := NewRunner(db, sub).WithDialect(Postgres)

	if _, err := runner.ApplyMigrations(nil); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	st, err := runner.Status()
	if err != nil {
		t.Fatal(err)
	}
	if st.Current != st.Latest || len(st.Pending) != 0 {
		t.Errorf("unexpected status: %+v", st)
	}

	n, err := runner.ApplyMigrations(nil)
	if err != nil || n != 0 {
		t.Errorf("second apply should be a no-op: n=%d err=%v", n, err)
	}
}
