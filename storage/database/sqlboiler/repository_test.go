package boiledrepos_test

import (
	"database/sql"
	"os"
	"testing"

	"github.com/trezcool/mahudhurio/storage/database"
	"github.com/trezcool/mahudhurio/storage/database/sqlboiler"
	"github.com/trezcool/mahudhurio/testutil"
)

// openDB connects to the postgres database at TEST_DATABASE_URL, migrated & emptied.
func openDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sql.Open(database.DriverName(database.EnginePostgres), dsn)
	if err != nil {
		t.Fatalf("sql.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db, database.EnginePostgres); err != nil {
		t.Fatalf("database.Migrate() failed: %v", err)
	}
	if _, err = db.Exec("TRUNCATE attendance_records, users"); err != nil {
		t.Fatalf("truncating tables failed: %v", err)
	}
	return db
}

func TestUserRepository(t *testing.T) {
	testutil.TestUserRepository(t, boiledrepos.NewUserRepository(openDB(t)))
}

func TestAttendanceRepository(t *testing.T) {
	db := openDB(t)
	testutil.TestAttendanceRepository(t, boiledrepos.NewUserRepository(db), boiledrepos.NewAttendanceRepository(db))
}
