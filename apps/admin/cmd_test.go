package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/user"
	"github.com/trezcool/mahudhurio/storage/database"
	sqlxrepos "github.com/trezcool/mahudhurio/storage/database/sqlx"
	"github.com/trezcool/mahudhurio/testutil"
)

type testCLI struct {
	*commandLine
	usrRepo user.Repository
	attRepo attendance.Repository
}

func setup(t *testing.T) *testCLI {
	// set up DB & repos
	db := testutil.PrepareDB(t)
	xdb := sqlx.NewDb(db, database.DriverName(database.EngineSqlite))
	usrRepo := sqlxrepos.NewUserRepository(xdb)
	attRepo := sqlxrepos.NewAttendanceRepository(xdb)
	usrSvc := user.NewService(usrRepo)

	// start CLI
	return &testCLI{
		commandLine: &commandLine{
			db:       db,
			engine:   database.EngineSqlite,
			validate: testutil.NewValidator(),
			usrSvc:   usrSvc,
			attSvc:   attendance.NewService(attRepo, usrSvc, nil, testutil.NewLogger()),
		},
		usrRepo: usrRepo,
		attRepo: attRepo,
	}
}

func mockPassword(t *testing.T, pwd string) {
	orig := readPasswordFunc
	readPasswordFunc = func(int) ([]byte, error) { return []byte(pwd), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
}

type cliTest struct {
	name       string
	args       []string // without program name
	pwd        string
	wantErr    error
	wantErrStr string
	wantAnyErr bool
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.ErrorIs(t, err, tt.wantErr)
	case tt.wantErrStr != "":
		assert.EqualError(t, err, tt.wantErrStr)
	case tt.wantAnyErr:
		assert.Error(t, err)
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_run(t *testing.T) {
	cli := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "migrate: no subcommand", args: []string{"migrate"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	orig := gooseRunFunc
	t.Cleanup(func() { gooseRunFunc = orig })
	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "holidays", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}
}

func Test_commandLine_migrate_status(t *testing.T) {
	cli := setup(t)

	// the real goose runs against the already migrated database
	require.NoError(t, cli.run([]string{"admin", "migrate", "up"}))
	require.NoError(t, cli.run([]string{"admin", "migrate", "version"}))
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	testutil.CreateStudent(t, cli.usrRepo, "Hero", "hero")

	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "name but no username", args: []string{"adduser", "-name", "Ace"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-name", "Ace", "-username", "ace"}, wantErr: errHelp},
		{name: "unknown role", args: []string{"adduser", "-name", "Ace", "-username", "ace", "-role", "JANITOR"}, pwd: testutil.Password, wantAnyErr: true},
		{name: "taken username", args: []string{"adduser", "-name", "Hero", "-username", "HERO"}, pwd: testutil.Password, wantErr: user.ErrUserExists},
		{name: "teacher", args: []string{"adduser", "-name", "Teacher", "-username", "teacher", "-role", "TEACHER"}, pwd: testutil.Password},
		{name: "student by default", args: []string{"adduser", "-name", "Ace", "-email", "ace@test.cd"}, pwd: testutil.Password},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPassword(t, tt.pwd)
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	ctx := context.Background()
	teacher, err := cli.usrSvc.GetByUsernameOrEmail(ctx, "teacher")
	require.NoError(t, err)
	assert.True(t, teacher.IsTeacher())
	assert.True(t, teacher.IsActive)
	assert.NoError(t, teacher.CheckPassword(testutil.Password))

	ace, err := cli.usrSvc.GetByUsernameOrEmail(ctx, "ace@test.cd")
	require.NoError(t, err)
	assert.Equal(t, user.RoleStudent, ace.Role)
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)
	usr := testutil.CreateStudent(t, cli.usrRepo, "User", "awe")

	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, pwd: "lol", wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, pwd: "lol"},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, pwd: "lmao"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPassword(t, tt.pwd)
			err := cli.run(append([]string{"admin"}, tt.args...))
			tt.check(t, err)
			if err != nil {
				return
			}

			refreshedUsr, err := cli.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			require.NoError(t, err)
			assert.False(t, bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash), "failed to update new password")
			assert.NoError(t, refreshedUsr.CheckPassword(tt.pwd))
		})
	}
}

func Test_commandLine_bulkMark(t *testing.T) {
	testutil.FreezeTime(t, time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC))
	cli := setup(t)
	teacher := testutil.CreateTeacher(t, cli.usrRepo, "Teacher", "teacher")
	student := testutil.CreateStudent(t, cli.usrRepo, "Hero", "hero")

	tests := []cliTest{
		{name: "no args", args: []string{"bulkmark"}, wantErr: errHelp},
		{name: "no month", args: []string{"bulkmark", "-student", "hero"}, wantErr: errHelp},
		{name: "unknown student", args: []string{"bulkmark", "-student", "lol", "-month", "2024-02"}, wantErr: attendance.ErrStudentNotFound},
		{name: "teacher is not a student", args: []string{"bulkmark", "-student", "teacher", "-month", "2024-02"}, wantErr: attendance.ErrStudentNotFound},
		{name: "unknown teacher", args: []string{"bulkmark", "-student", "hero", "-month", "2024-02", "-teacher", "lol"}, wantErr: user.ErrNotFound},
		{name: "future month", args: []string{"bulkmark", "-student", "hero", "-month", "2024-04"}, wantErr: attendance.ErrFutureMonth},
		{name: "february", args: []string{"bulkmark", "-student", "hero", "-month", "2024-02", "-teacher", "teacher"}},
		{name: "march", args: []string{"bulkmark", "-student", "hero@test.cd", "-month", "2024-03", "-status", "absent"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	ctx := context.Background()
	feb := attendance.Month{Year: 2024, Month: time.February}
	records, err := cli.attRepo.QueryRecords(ctx, &attendance.QueryFilter{StudentID: student.ID, Month: &feb}, nil)
	require.NoError(t, err)
	require.Len(t, records, 29)
	for _, rec := range records {
		assert.Equal(t, attendance.StatusPresent, rec.Status)
		assert.Equal(t, core.StringPtr(teacher.ID), rec.MarkedBy)
	}

	records, err = cli.attRepo.QueryRecords(ctx, &attendance.QueryFilter{StudentID: student.ID, Status: attendance.StatusAbsent}, nil)
	require.NoError(t, err)
	require.Len(t, records, 15)
	assert.Nil(t, records[0].MarkedBy)
}

func Test_commandLine_bulkMark_dropsCachedSummaries(t *testing.T) {
	testutil.FreezeTime(t, time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()
	cli := setup(t)
	testutil.CreateStudent(t, cli.usrRepo, "Hero", "hero")

	// the API and the CLI share the summary cache
	cache := testutil.NewMemCache()
	api := attendance.NewService(cli.attRepo, cli.usrSvc, cache, testutil.NewLogger())
	cli.attSvc = attendance.NewService(cli.attRepo, cli.usrSvc, cache, testutil.NewLogger())

	before, err := api.ClassSummary(ctx, "2024-02")
	require.NoError(t, err)
	assert.Equal(t, 0, before.Overview.TotalRecords)
	require.Equal(t, 1, cache.ClassSets("2024-02"))

	require.NoError(t, cli.run([]string{"admin", "bulkmark", "-student", "hero", "-month", "2024-02"}))

	after, err := api.ClassSummary(ctx, "2024-02")
	require.NoError(t, err)
	assert.Equal(t, 29, after.Overview.TotalRecords)
	assert.Equal(t, 2, cache.ClassSets("2024-02"))
}
