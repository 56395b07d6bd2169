package user

import (
	"context"
	"errors"
	"time"
)

// ErrSessionInvalid covers a missing, unknown or expired session key. Kept
// distinct from ErrNotFound so handlers can tell "bad session" from "user
// row gone" even though both surface as 401 upstream.
var ErrSessionInvalid = errors.New("invalid or expired session")

// Session is one opaque-key login. The key is the only thing the client ever
// holds; everything else stays server-side.
type Session struct {
	Key       string    `json:"sessionId" db:"key"`
	UserID    int       `json:"-" db:"user_id"`
	CreatedAt time.Time `json:"-" db:"created_at"` // UTC
	ExpiresAt time.Time `json:"-" db:"expires_at"` // UTC
}

func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// SessionStore resolves opaque session keys to users. Implementations
// generate the keys; callers never construct them.
type SessionStore interface {
	CreateSession(ctx context.Context, usr User, ttl time.Duration) (Session, error)
	// ResolveSession returns the session's user, or ErrSessionInvalid for an
	// unknown/expired key, or ErrNotFound when the user row no longer exists.
	ResolveSession(ctx context.Context, key string) (User, error)
	DeleteSession(ctx context.Context, key string) error
	DeleteExpiredSessions(ctx context.Context) error
}
