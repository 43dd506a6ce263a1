// Package testutil holds the fixtures shared by the tests.
package testutil

import (
	"context"
	"database/sql"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/user"
	"github.com/trezcool/mahudhurio/services/logger"
	"github.com/trezcool/mahudhurio/storage/database"
)

// Password satisfies the password policy.
const Password = "Sup3r$ecret"

func NewConfig() *core.Config {
	return &core.Config{
		TestMode:  true,
		Env:       "TEST",
		AppName:   "Mahudhurio",
		SecretKey: "secret",
		Server: core.ServerConfig{
			DisableReqLogs:            true,
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			ShutdownTimeout:           time.Second,
		},
		Database: core.DatabaseConfig{Engine: database.EngineMemory},
	}
}

// NewLogger returns a logger that discards everything.
func NewLogger() core.Logger {
	std := log.New("test")
	std.SetOutput(io.Discard)
	return logsvc.NewRollbarLogger(std, NewConfig())
}

// NewValidator returns a validator with every custom validation registered.
func NewValidator() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)
	return validate
}

// PrepareDB opens a migrated sqlite database in a temp dir, closed on cleanup.
func PrepareDB(t *testing.T) *sql.DB {
	t.Helper()

	conf := NewConfig()
	conf.Database.Engine = database.EngineSqlite
	conf.Database.Name = filepath.Join(t.TempDir(), "test.db")

	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("database.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db, conf.Database.Engine); err != nil {
		t.Fatalf("database.Migrate() failed: %v", err)
	}
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC().Truncate(time.Microsecond)
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func CreateStudent(t *testing.T, repo user.Repository, name, uname string) user.User {
	return CreateUser(t, repo, name, uname, uname+"@test.cd", Password, user.RoleStudent, true)
}

func CreateTeacher(t *testing.T, repo user.Repository, name, uname string) user.User {
	return CreateUser(t, repo, name, uname, uname+"@test.cd", Password, user.RoleTeacher, true)
}

// CreateRecord stores a record as of `markedAt`.
func CreateRecord(
	t *testing.T,
	repo attendance.Repository,
	studentID string,
	date core.Date,
	status attendance.Status,
	reason *string,
	markedAt ...time.Time,
) attendance.Record {
	t.Helper()

	tstamp := time.Now().UTC().Truncate(time.Microsecond)
	if len(markedAt) > 0 {
		tstamp = markedAt[0].UTC()
	}
	rec, err := repo.UpsertRecord(context.Background(), attendance.Record{
		Date:          date,
		StudentID:     studentID,
		Status:        status,
		AbsenceReason: reason,
		MarkedAt:      tstamp,
		UpdatedAt:     tstamp,
	})
	if err != nil {
		t.Fatalf("createRecord() failed: %v", err)
	}
	return rec
}

// FreezeTime makes attendance.NowFunc return `now` until the test ends.
func FreezeTime(t *testing.T, now time.Time) {
	orig := attendance.NowFunc
	attendance.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { attendance.NowFunc = orig })
}
