package inmemdb_test

import (
	"context"
	"testing"

	"github.com/trezcool/mahudhurio/storage/database/inmem"
	"github.com/trezcool/mahudhurio/testutil"
)

func TestUserRepository(t *testing.T) {
	testutil.TestUserRepository(t, inmemdb.NewUserRepository(inmemdb.Open()))
}

func TestAttendanceRepository(t *testing.T) {
	db := inmemdb.Open()
	testutil.TestAttendanceRepository(t, inmemdb.NewUserRepository(db), inmemdb.NewAttendanceRepository(db))
}

func TestDB_Reset(t *testing.T) {
	db := inmemdb.Open()
	repo := inmemdb.NewUserRepository(db)
	testutil.CreateStudent(t, repo, "Hero", "hero")

	db.Reset()
	users, err := repo.QueryUsers(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("QueryUsers() error = %v", err)
	}
	if len(users) != 0 {
		t.Errorf("QueryUsers() = %v; want none", users)
	}
}
