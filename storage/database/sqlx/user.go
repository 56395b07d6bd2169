package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/user"
)

const userColumns = `id, username, email, staff_id, role, profile_picture, password_hash, created_at, updated_at, last_login`

type userRepository struct {
	exec core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{exec: exec}
}

func (repo userRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckUniqueness(ctx context.Context, username, email, staffID string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	query := `SELECT ` + userColumns + ` FROM "user"
WHERE (LOWER(username) = LOWER($1) OR LOWER(email) = LOWER($2) OR ($3 != '' AND LOWER(staff_id) = LOWER($3)))`
	args := []interface{}{username, email, staffID}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, "$"+strconv.Itoa(len(args)+1))
			args = append(args, u.ID)
		}
		query += ` AND id NOT IN (` + strings.Join(ids, ", ") + `)`
	}

	var matches []user.User
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &matches, query, args...); err != nil {
		return errors.Wrap(err, "querying conflicting users")
	}
	for _, m := range matches {
		switch {
		case strings.EqualFold(m.Username, username):
			return user.ErrUsernameExists
		case strings.EqualFold(m.Email, email):
			return user.ErrEmailExists
		case staffID != "" && strings.EqualFold(m.StaffID.String, staffID):
			return user.ErrStaffIDExists
		}
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	now := time.Now().UTC()
	usr.CreatedAt, usr.UpdatedAt = now, now

	query := `INSERT INTO "user" (username, email, staff_id, role, profile_picture, password_hash, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	err := sqlx.GetContext(ctx, repo.getExec(exec), &usr.ID, query,
		usr.Username, usr.Email, usr.StaffID, usr.Role, usr.ProfilePicture, usr.PasswordHash, usr.CreatedAt, usr.UpdatedAt)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) GetUserByID(ctx context.Context, id int, exec ...core.DBExecutor) (user.User, error) {
	var usr user.User
	query := `SELECT ` + userColumns + ` FROM "user" WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &usr, query, id); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "finding user by ID")
	}
	return usr, nil
}

func (repo userRepository) GetUserByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (user.User, error) {
	var usr user.User
	query := `SELECT ` + userColumns + ` FROM "user" WHERE LOWER(email) = LOWER($1)`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &usr, query, email); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "finding user by email")
	}
	return usr, nil
}

func (repo userRepository) QueryUsersByRole(ctx context.Context, role string, exec ...core.DBExecutor) ([]user.User, error) {
	var users []user.User
	query := `SELECT ` + userColumns + ` FROM "user" WHERE role = $1 ORDER BY username`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &users, query, role); err != nil {
		return nil, errors.Wrap(err, "querying users by role")
	}
	return users, nil
}

func (repo userRepository) AdminExists(ctx context.Context, exec ...core.DBExecutor) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM "user" WHERE role = $1)`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &exists, query, user.RoleAdmin); err != nil {
		return false, errors.Wrap(err, "checking for admin")
	}
	return exists, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.UpdatedAt = time.Now().UTC()

	query := `UPDATE "user"
SET username = $1, email = $2, staff_id = $3, profile_picture = $4, password_hash = $5, updated_at = $6
WHERE id = $7`
	res, err := repo.getExec(exec).ExecContext(ctx, query,
		usr.Username, usr.Email, usr.StaffID, usr.ProfilePicture, usr.PasswordHash, usr.UpdatedAt, usr.ID)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo userRepository) SetLastLogin(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.LastLogin = null.TimeFrom(time.Now().UTC())

	query := `UPDATE "user" SET last_login = $1 WHERE id = $2`
	if _, err := repo.getExec(exec).ExecContext(ctx, query, usr.LastLogin, usr.ID); err != nil {
		return user.User{}, errors.Wrap(err, "setting last login")
	}
	return usr, nil
}
