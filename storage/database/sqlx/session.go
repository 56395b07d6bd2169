package sqlxrepos

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/user"
)

type sessionRepository struct {
	exec core.DBExecutor
}

var _ user.SessionStore = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(exec core.DBExecutor) *sessionRepository {
	return &sessionRepository{exec: exec}
}

// newSessionKey returns 32 random bytes hex-encoded. The key is the sole
// client-held credential so it comes from crypto/rand, never math/rand.
func newSessionKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "generating session key")
	}
	return hex.EncodeToString(buf), nil
}

func (repo sessionRepository) CreateSession(ctx context.Context, usr user.User, ttl time.Duration) (user.Session, error) {
	key, err := newSessionKey()
	if err != nil {
		return user.Session{}, err
	}
	now := time.Now().UTC()
	sess := user.Session{
		Key:       key,
		UserID:    usr.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	query := `INSERT INTO session (key, user_id, created_at, expires_at) VALUES ($1, $2, $3, $4)`
	if _, err = repo.exec.ExecContext(ctx, query, sess.Key, sess.UserID, sess.CreatedAt, sess.ExpiresAt); err != nil {
		return user.Session{}, errors.Wrap(err, "inserting session")
	}
	return sess, nil
}

func (repo sessionRepository) ResolveSession(ctx context.Context, key string) (user.User, error) {
	var sess user.Session
	query := `SELECT key, user_id, created_at, expires_at FROM session WHERE key = $1`
	if err := sqlx.GetContext(ctx, repo.exec, &sess, query, key); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return user.User{}, user.ErrSessionInvalid
		}
		return user.User{}, errors.Wrap(err, "finding session")
	}
	if sess.Expired(time.Now().UTC()) {
		_ = repo.DeleteSession(ctx, key)
		return user.User{}, user.ErrSessionInvalid
	}

	var usr user.User
	query = `SELECT ` + userColumns + ` FROM "user" WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.exec, &usr, query, sess.UserID); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "finding session user")
	}
	return usr, nil
}

func (repo sessionRepository) DeleteSession(ctx context.Context, key string) error {
	if _, err := repo.exec.ExecContext(ctx, `DELETE FROM session WHERE key = $1`, key); err != nil {
		return errors.Wrap(err, "deleting session")
	}
	return nil
}

func (repo sessionRepository) DeleteExpiredSessions(ctx context.Context) error {
	if _, err := repo.exec.ExecContext(ctx, `DELETE FROM session WHERE expires_at < now()`); err != nil {
		return errors.Wrap(err, "deleting expired sessions")
	}
	return nil
}
