package model

import (
	"errors"
	"time"
)

// TokenKind distinguishes access tokens from refresh tokens inside the claims.
type TokenKind string

const (
	KindAccess  TokenKind = "access_token"
	KindRefresh TokenKind = "refresh_token"
)

// Valid reports whether k is one of the known token kinds.
func (k TokenKind) Valid() bool {
	return k == KindAccess || k == KindRefresh
}

// ErrUsernameTaken is returned when registering a username that already exists.
var ErrUsernameTaken = errors.New("username already registered")

// Identity is a registered user as seen by the auth domain.
type Identity struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// TokenClaims is the decoded payload of a verified token.
type TokenClaims struct {
	Subject   string
	UserID    int64
	Kind      TokenKind
	Issuer    string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SessionRecord is the single live token pair bound to a user.
type SessionRecord struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Token returns the stored token of the given kind.
func (r SessionRecord) Token(kind TokenKind) string {
	switch kind {
	case KindAccess:
		return r.AccessToken
	case KindRefresh:
		return r.RefreshToken
	default:
		return ""
	}
}

// Complete reports whether both tokens are present.
func (r SessionRecord) Complete() bool {
	return r.AccessToken != "" && r.RefreshToken != ""
}

// TokenPair is handed back to the transport layer after login or refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Logger provides the minimal logging contract required by the auth domain.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}
