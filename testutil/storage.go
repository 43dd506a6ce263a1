package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/user"
)

var errRollback = errors.New("rollback")

func ids(users []user.User) []string {
	res := make([]string, 0, len(users))
	for _, u := range users {
		res = append(res, u.ID)
	}
	return res
}

// TestUserRepository runs the behaviour every user.Repository must share against an empty store.
func TestUserRepository(t *testing.T, repo user.Repository) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	teacher := CreateUser(t, repo, "Teacher", "teacher", "teacher@test.cd", Password, user.RoleTeacher, true, now.Add(3*time.Hour))
	hero := CreateUser(t, repo, "Hero", "hero", "hero@test.cd", Password, user.RoleStudent, true, now.Add(2*time.Hour))
	ndog := CreateUser(t, repo, "N Dog", "ndog", "", Password, user.RoleStudent, false, now.Add(time.Hour))
	ace := CreateUser(t, repo, "Ace", "", "ace@test.cd", Password, user.RoleStudent, true, now)

	t.Run("GetUser", func(t *testing.T) {
		tests := []struct {
			name    string
			filter  user.GetFilter
			want    user.User
			wantErr error
		}{
			{name: "by id", filter: user.GetFilter{ID: hero.ID}, want: hero},
			{name: "by username", filter: user.GetFilter{Username: "ndog"}, want: ndog},
			{name: "by email", filter: user.GetFilter{Email: "ace@test.cd"}, want: ace},
			{name: "by username or email (username)", filter: user.GetFilter{UsernameOrEmail: "teacher"}, want: teacher},
			{name: "by username or email (email)", filter: user.GetFilter{UsernameOrEmail: "hero@test.cd"}, want: hero},
			{name: "unknown id", filter: user.GetFilter{ID: uuid.New().String()}, wantErr: user.ErrNotFound},
			{name: "unknown username", filter: user.GetFilter{Username: "lol"}, wantErr: user.ErrNotFound},
			{name: "empty filter", filter: user.GetFilter{}, wantErr: user.ErrNotFound},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := repo.GetUser(ctx, tt.filter)
				if tt.wantErr != nil {
					assert.Equal(t, tt.wantErr, err)
					return
				}
				require.NoError(t, err)
				assert.Equal(t, tt.want.ID, got.ID)
				assert.Equal(t, tt.want.Username, got.Username)
				assert.Equal(t, tt.want.Email, got.Email)
				assert.Equal(t, tt.want.Role, got.Role)
				assert.Equal(t, tt.want.IsActive, got.IsActive)
				assert.True(t, tt.want.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", tt.want.CreatedAt, got.CreatedAt)
				assert.NoError(t, got.CheckPassword(Password))
			})
		}
	})

	t.Run("CheckUsernameUniqueness", func(t *testing.T) {
		assert.Equal(t, user.ErrUserExists, repo.CheckUsernameUniqueness(ctx, "hero", ""))
		assert.Equal(t, user.ErrUserExists, repo.CheckUsernameUniqueness(ctx, "", "hero@test.cd"))
		assert.Equal(t, user.ErrUserExists, repo.CheckUsernameUniqueness(ctx, "lol", "hero@test.cd"))
		assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "hero", "hero@test.cd", hero))
		assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "lol", "lol@test.cd"))
		assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "", ""))
	})

	t.Run("QueryUsers", func(t *testing.T) {
		active, inactive := true, false
		tests := []struct {
			name     string
			filter   *user.QueryFilter
			ordering []core.DBOrdering
			want     []string
		}{
			{name: "all, newest first", want: []string{teacher.ID, hero.ID, ndog.ID, ace.ID}},
			{name: "search", filter: &user.QueryFilter{Search: "HE"}, want: []string{teacher.ID, hero.ID}},
			{name: "search (email)", filter: &user.QueryFilter{Search: "ace@"}, want: []string{ace.ID}},
			{name: "search (unknown)", filter: &user.QueryFilter{Search: "lol"}, want: []string{}},
			{name: "role", filter: &user.QueryFilter{Role: user.RoleStudent}, want: []string{hero.ID, ndog.ID, ace.ID}},
			{name: "active", filter: &user.QueryFilter{IsActive: &active}, want: []string{teacher.ID, hero.ID, ace.ID}},
			{name: "inactive", filter: &user.QueryFilter{IsActive: &inactive}, want: []string{ndog.ID}},
			{
				name: "by name", filter: &user.QueryFilter{Role: user.RoleStudent},
				ordering: []core.DBOrdering{{Field: "name", Ascending: true}},
				want:     []string{ace.ID, hero.ID, ndog.ID},
			},
			{
				name: "by -name", filter: &user.QueryFilter{Role: user.RoleStudent},
				ordering: []core.DBOrdering{{Field: "name"}},
				want:     []string{ndog.ID, hero.ID, ace.ID},
			},
			{
				name:     "unknown field ignored",
				ordering: []core.DBOrdering{{Field: "password_hash; DROP TABLE users"}},
				want:     []string{teacher.ID, hero.ID, ndog.ID, ace.ID},
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := repo.QueryUsers(ctx, tt.filter, tt.ordering)
				require.NoError(t, err)
				assert.Equal(t, tt.want, ids(got))
			})
		}
	})

	t.Run("UpdateUser", func(t *testing.T) {
		usr := hero
		usr.Name = "Super Hero"
		usr.IsActive = false
		usr.LastLogin = now.Add(time.Minute)
		got, err := repo.UpdateUser(ctx, usr)
		require.NoError(t, err)
		assert.Equal(t, "Super Hero", got.Name)
		assert.False(t, got.IsActive)
		assert.True(t, usr.LastLogin.Equal(got.LastLogin))

		_, err = repo.UpdateUser(ctx, user.User{ID: uuid.New().String(), Name: "lol", Role: user.RoleStudent, UpdatedAt: now})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("DeleteUsersByID", func(t *testing.T) {
		n, err := repo.DeleteUsersByID(ctx, ndog.ID, ace.ID, uuid.New().String())
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		users, err := repo.QueryUsers(ctx, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{teacher.ID, hero.ID}, ids(users))

		n, err = repo.DeleteUsersByID(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

// TestAttendanceRepository runs the behaviour every attendance.Repository must share against an empty store.
// usrRepo must share its store.
func TestAttendanceRepository(t *testing.T, usrRepo user.Repository, repo attendance.Repository) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	day := func(m time.Month, d int) core.Date { return core.Date{Year: 2024, Month: m, Day: d} }

	teacher := CreateTeacher(t, usrRepo, "Teacher", "teacher")
	hero := CreateStudent(t, usrRepo, "Hero", "hero")
	ndog := CreateStudent(t, usrRepo, "N Dog", "ndog")

	newRecord := func(student user.User, date core.Date, status attendance.Status, reason *string) attendance.Record {
		return attendance.Record{
			Date:          date,
			StudentID:     student.ID,
			Status:        status,
			AbsenceReason: reason,
			MarkedBy:      core.StringPtr(teacher.ID),
			MarkedAt:      now,
			UpdatedAt:     now,
		}
	}

	var leapDay attendance.Record

	t.Run("UpsertRecord", func(t *testing.T) {
		created, err := repo.UpsertRecord(ctx, newRecord(hero, day(time.February, 29), attendance.StatusAbsent, core.StringPtr("flu")))
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, day(time.February, 29), created.Date)
		assert.Equal(t, "flu", *created.AbsenceReason)
		assert.Equal(t, teacher.ID, *created.MarkedBy)
		assert.True(t, now.Equal(created.MarkedAt))

		later := now.Add(time.Hour)
		upd := newRecord(hero, day(time.February, 29), attendance.StatusPresent, nil)
		upd.MarkedAt, upd.UpdatedAt = later, later
		updated, err := repo.UpsertRecord(ctx, upd)
		require.NoError(t, err)
		assert.Equal(t, created.ID, updated.ID, "one record per student & date")
		assert.Equal(t, attendance.StatusPresent, updated.Status)
		assert.Nil(t, updated.AbsenceReason)
		assert.True(t, now.Equal(updated.MarkedAt), "marked_at is kept")
		assert.True(t, later.Equal(updated.UpdatedAt))
		leapDay = updated
	})

	t.Run("InsertRecordIfAbsent", func(t *testing.T) {
		inserted, err := repo.InsertRecordIfAbsent(ctx, newRecord(hero, day(time.February, 29), attendance.StatusAbsent, nil))
		require.NoError(t, err)
		assert.False(t, inserted)

		got, err := repo.GetRecord(ctx, attendance.GetFilter{StudentID: hero.ID, Date: day(time.February, 29)})
		require.NoError(t, err)
		assert.Equal(t, attendance.StatusPresent, got.Status)

		for _, rec := range []attendance.Record{
			newRecord(hero, day(time.March, 1), attendance.StatusAbsent, core.StringPtr("dentist")),
			newRecord(ndog, day(time.February, 28), attendance.StatusAbsent, nil),
			newRecord(ndog, day(time.February, 29), attendance.StatusPresent, nil),
		} {
			inserted, err = repo.InsertRecordIfAbsent(ctx, rec)
			require.NoError(t, err)
			assert.True(t, inserted)
		}
	})

	t.Run("GetRecord", func(t *testing.T) {
		got, err := repo.GetRecord(ctx, attendance.GetFilter{ID: leapDay.ID})
		require.NoError(t, err)
		assert.Equal(t, leapDay.ID, got.ID)
		assert.Equal(t, leapDay.Date, got.Date)

		got, err = repo.GetRecord(ctx, attendance.GetFilter{ID: leapDay.ID, StudentID: hero.ID})
		require.NoError(t, err)
		assert.Equal(t, leapDay.ID, got.ID)

		_, err = repo.GetRecord(ctx, attendance.GetFilter{ID: leapDay.ID, StudentID: ndog.ID})
		assert.Equal(t, attendance.ErrNotFound, err)
		_, err = repo.GetRecord(ctx, attendance.GetFilter{ID: uuid.New().String()})
		assert.Equal(t, attendance.ErrNotFound, err)
		_, err = repo.GetRecord(ctx, attendance.GetFilter{StudentID: hero.ID, Date: day(time.January, 1)})
		assert.Equal(t, attendance.ErrNotFound, err)
	})

	t.Run("QueryRecords", func(t *testing.T) {
		feb := attendance.Month{Year: 2024, Month: time.February}
		d := day(time.February, 29)
		dates := func(records []attendance.Record) []string {
			res := make([]string, 0, len(records))
			for _, rec := range records {
				res = append(res, rec.Date.String())
			}
			return res
		}

		tests := []struct {
			name     string
			filter   *attendance.QueryFilter
			ordering []core.DBOrdering
			want     []string
		}{
			{name: "all", want: []string{"2024-02-28", "2024-02-29", "2024-02-29", "2024-03-01"}},
			{name: "month", filter: &attendance.QueryFilter{Month: &feb}, want: []string{"2024-02-28", "2024-02-29", "2024-02-29"}},
			{name: "date", filter: &attendance.QueryFilter{Date: &d}, want: []string{"2024-02-29", "2024-02-29"}},
			{name: "student", filter: &attendance.QueryFilter{StudentID: hero.ID}, want: []string{"2024-02-29", "2024-03-01"}},
			{name: "status", filter: &attendance.QueryFilter{Status: attendance.StatusAbsent}, want: []string{"2024-02-28", "2024-03-01"}},
			{
				name: "student & month, newest first", filter: &attendance.QueryFilter{StudentID: ndog.ID, Month: &feb},
				ordering: []core.DBOrdering{{Field: "date"}}, want: []string{"2024-02-29", "2024-02-28"},
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := repo.QueryRecords(ctx, tt.filter, tt.ordering)
				require.NoError(t, err)
				assert.Equal(t, tt.want, dates(got))
			})
		}
	})

	t.Run("QueryRecords in the last month", func(t *testing.T) {
		last, err := attendance.ParseMonth("9999-12")
		require.NoError(t, err)
		rec := newRecord(ndog, core.Date{Year: 9999, Month: time.December, Day: 31}, attendance.StatusPresent, nil)
		_, err = repo.UpsertRecord(ctx, rec)
		require.NoError(t, err)
		defer func() { _, _ = repo.DeleteRecord(ctx, ndog.ID, rec.Date) }()

		got, err := repo.QueryRecords(ctx, &attendance.QueryFilter{Month: &last}, nil)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, rec.Date, got[0].Date)
	})

	t.Run("UpdateAbsenceReason", func(t *testing.T) {
		absent, err := repo.GetRecord(ctx, attendance.GetFilter{StudentID: hero.ID, Date: day(time.March, 1)})
		require.NoError(t, err)

		later := now.Add(2 * time.Hour)
		got, err := repo.UpdateAbsenceReason(ctx, absent.ID, hero.ID, "orthodontist", later)
		require.NoError(t, err)
		assert.Equal(t, "orthodontist", *got.AbsenceReason)
		assert.True(t, later.Equal(got.UpdatedAt))
		assert.Equal(t, absent.Status, got.Status)
		assert.True(t, absent.MarkedAt.Equal(got.MarkedAt))

		_, err = repo.UpdateAbsenceReason(ctx, absent.ID, ndog.ID, "lol", later)
		assert.Equal(t, attendance.ErrNotFound, err, "someone else's record")
		_, err = repo.UpdateAbsenceReason(ctx, leapDay.ID, hero.ID, "lol", later)
		assert.Equal(t, attendance.ErrNotFound, err, "present record")
	})

	t.Run("RunAtomic", func(t *testing.T) {
		err := repo.RunAtomic(ctx, func(tx attendance.Repository) error {
			if _, err := tx.DeleteRecord(ctx, hero.ID, day(time.February, 29)); err != nil {
				return err
			}
			if _, err := tx.UpsertRecord(ctx, newRecord(hero, day(time.March, 2), attendance.StatusPresent, nil)); err != nil {
				return err
			}
			if _, err := tx.GetRecord(ctx, attendance.GetFilter{StudentID: hero.ID, Date: day(time.March, 2)}); err != nil {
				return err
			}
			return errRollback
		})
		assert.Equal(t, errRollback, err)

		_, err = repo.GetRecord(ctx, attendance.GetFilter{StudentID: hero.ID, Date: day(time.February, 29)})
		assert.NoError(t, err, "delete rolled back")
		_, err = repo.GetRecord(ctx, attendance.GetFilter{StudentID: hero.ID, Date: day(time.March, 2)})
		assert.Equal(t, attendance.ErrNotFound, err, "insert rolled back")

		err = repo.RunAtomic(ctx, func(tx attendance.Repository) error {
			_, err := tx.UpsertRecord(ctx, newRecord(hero, day(time.March, 2), attendance.StatusPresent, nil))
			return err
		})
		require.NoError(t, err)
		_, err = repo.GetRecord(ctx, attendance.GetFilter{StudentID: hero.ID, Date: day(time.March, 2)})
		assert.NoError(t, err, "committed")
	})

	t.Run("DeleteRecord", func(t *testing.T) {
		deleted, err := repo.DeleteRecord(ctx, hero.ID, day(time.March, 2))
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = repo.DeleteRecord(ctx, hero.ID, day(time.March, 2))
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("deleting users", func(t *testing.T) {
		_, err := usrRepo.DeleteUsersByID(ctx, ndog.ID)
		require.NoError(t, err)
		records, err := repo.QueryRecords(ctx, &attendance.QueryFilter{StudentID: ndog.ID}, nil)
		require.NoError(t, err)
		assert.Empty(t, records, "student records are deleted")

		_, err = usrRepo.DeleteUsersByID(ctx, teacher.ID)
		require.NoError(t, err)
		records, err = repo.QueryRecords(ctx, &attendance.QueryFilter{StudentID: hero.ID}, nil)
		require.NoError(t, err)
		require.NotEmpty(t, records)
		for _, rec := range records {
			assert.Nil(t, rec.MarkedBy, "marker is unset")
		}
	})
}
