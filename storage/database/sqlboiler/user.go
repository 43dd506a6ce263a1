// Package boiledrepos implements the repositories for postgres with sqlboiler raw queries.
package boiledrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/friendsofgo/errors"
	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/strmangle"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/user"
)

var userColumns = []string{
	"id", "name", "username", "email", "role", "is_active", "password_hash", "created_at", "updated_at", "last_login",
}

type boiledUser struct {
	ID           string      `boil:"id"`
	Name         string      `boil:"name"`
	Username     null.String `boil:"username"`
	Email        null.String `boil:"email"`
	Role         string      `boil:"role"`
	IsActive     bool        `boil:"is_active"`
	PasswordHash string      `boil:"password_hash"`
	CreatedAt    time.Time   `boil:"created_at"`
	UpdatedAt    time.Time   `boil:"updated_at"`
	LastLogin    null.Time   `boil:"last_login"`
}

// values are in userColumns order.
func (u boiledUser) values() []interface{} {
	return []interface{}{u.ID, u.Name, u.Username, u.Email, u.Role, u.IsActive, u.PasswordHash, u.CreatedAt, u.UpdatedAt, u.LastLogin}
}

type userRepository struct {
	exec core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) user.Repository {
	return &userRepository{exec: exec}
}

func (repo userRepository) boil(usr user.User) boiledUser {
	return boiledUser{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		Role:         usr.Role,
		IsActive:     usr.IsActive,
		PasswordHash: string(usr.PasswordHash),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) unboil(usr *boiledUser) user.User {
	if usr == nil {
		return user.User{}
	}
	u := user.User{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     usr.Username.String,
		Email:        usr.Email.String,
		Role:         usr.Role,
		IsActive:     usr.IsActive,
		PasswordHash: []byte(usr.PasswordHash),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
	}
	if usr.LastLogin.Valid {
		u.LastLogin = usr.LastLogin.Time.UTC()
	}
	return u
}

func (repo userRepository) unboilSlice(slice []*boiledUser) []user.User {
	users := make([]user.User, 0, len(slice))
	for _, u := range slice {
		users = append(users, repo.unboil(u))
	}
	return users
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func selectUsers() string {
	return "SELECT " + strings.Join(strmangle.IdentQuoteSlice('"', '"', userColumns), ", ") + ` FROM "users"`
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	if username == "" && email == "" {
		return nil
	}

	args := []interface{}{null.NewString(username, username != ""), null.NewString(email, email != "")}
	q := `SELECT EXISTS (SELECT 1 FROM "users" WHERE ("username" = $1 OR "email" = $2)`
	if len(excludedUsers) > 0 {
		q += fmt.Sprintf(` AND "id" NOT IN (%s)`, strmangle.Placeholders(true, len(excludedUsers), 3, 1))
		for _, u := range excludedUsers {
			args = append(args, u.ID)
		}
	}
	q += ")"

	var exists bool
	if err := repo.exec.QueryRowContext(ctx, q, args...).Scan(&exists); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	if exists {
		return user.ErrUserExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	u := repo.boil(usr)

	q := fmt.Sprintf(`INSERT INTO "users" (%s) VALUES (%s)`,
		strings.Join(strmangle.IdentQuoteSlice('"', '"', userColumns), ", "),
		strmangle.Placeholders(true, len(userColumns), 1, 1))
	if _, err := queries.Raw(q, u.values()...).ExecContext(ctx, repo.exec); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.unboil(&u), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			val := arg("%" + filter.Search + "%")
			conds = append(conds, fmt.Sprintf(`("name" ILIKE %s OR "username" ILIKE %s OR "email" ILIKE %s)`, val, val, val))
		}
		if filter.Role != "" {
			conds = append(conds, `"role" = `+arg(filter.Role))
		}
		if filter.IsActive != nil {
			conds = append(conds, `"is_active" = `+arg(*filter.IsActive))
		}
	}

	q := selectUsers()
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY " + core.OrderBy(ordering, user.OrderingColumns, "created_at DESC") + ", id ASC"

	var users []*boiledUser
	if err := queries.Raw(q, args...).Bind(ctx, repo.exec, &users); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return repo.unboilSlice(users), nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var (
		cond string
		args []interface{}
	)
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		cond, args = `"id" = $1`, []interface{}{filter.ID}
	case filter.Username != "":
		cond, args = `"username" = $1`, []interface{}{filter.Username}
	case filter.Email != "":
		cond, args = `"email" = $1`, []interface{}{filter.Email}
	case filter.UsernameOrEmail != "":
		cond, args = `("username" = $1 OR "email" = $1)`, []interface{}{filter.UsernameOrEmail}
	default:
		return user.User{}, user.ErrNotFound
	}

	var usr boiledUser
	if err := queries.Raw(selectUsers()+" WHERE "+cond+" LIMIT 1", args...).Bind(ctx, repo.exec, &usr); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "finding user")
	}
	return repo.unboil(&usr), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	u := repo.boil(usr)
	cols := []string{"name", "username", "email", "role", "is_active", "password_hash", "updated_at", "last_login"}
	q := fmt.Sprintf(`UPDATE "users" SET %s WHERE "id" = $%d`, strmangle.SetParamNames(`"`, `"`, 1, cols), len(cols)+1)

	res, err := queries.Raw(q, u.Name, u.Username, u.Email, u.Role, u.IsActive, u.PasswordHash, u.UpdatedAt, u.LastLogin, u.ID).
		ExecContext(ctx, repo.exec)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUser(ctx, user.GetFilter{ID: usr.ID})
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	q := fmt.Sprintf(`DELETE FROM "users" WHERE "id" IN (%s)`, strmangle.Placeholders(true, len(ids), 1, 1))
	res, err := queries.Raw(q, args...).ExecContext(ctx, repo.exec)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "counting deleted users")
	}
	return int(cnt), nil
}
