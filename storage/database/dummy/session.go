package dummydb

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/alama/core/user"
)

type sessionRepository struct {
	db    *sessionTable
	users *userTable
}

var _ user.SessionStore = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(db *DB) *sessionRepository {
	return &sessionRepository{db: db.session, users: db.user}
}

func (repo *sessionRepository) CreateSession(_ context.Context, usr user.User, ttl time.Duration) (user.Session, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return user.Session{}, errors.Wrap(err, "generating session key")
	}

	repo.db.Lock()
	defer repo.db.Unlock()

	now := time.Now().UTC()
	sess := user.Session{
		Key:       hex.EncodeToString(buf),
		UserID:    usr.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	repo.db.table[sess.Key] = &sess
	return sess, nil
}

func (repo *sessionRepository) ResolveSession(_ context.Context, key string) (user.User, error) {
	repo.db.Lock()
	sess, ok := repo.db.table[key]
	if ok && sess.Expired(time.Now().UTC()) {
		delete(repo.db.table, key)
		ok = false
	}
	repo.db.Unlock()
	if !ok {
		return user.User{}, user.ErrSessionInvalid
	}

	repo.users.RLock()
	defer repo.users.RUnlock()
	if usr, uok := repo.users.table[sess.UserID]; uok {
		return *usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *sessionRepository) DeleteSession(_ context.Context, key string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	delete(repo.db.table, key)
	return nil
}

func (repo *sessionRepository) DeleteExpiredSessions(_ context.Context) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	now := time.Now().UTC()
	for key, sess := range repo.db.table {
		if sess.Expired(now) {
			delete(repo.db.table, key)
		}
	}
	return nil
}
