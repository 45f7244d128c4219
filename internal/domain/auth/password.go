package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"receipt-server-go/internal/domain/auth/model"
)

// HashPassword returns a salted bcrypt hash of plain.
func HashPassword(plain string, cost int) (string, error) {
	if plain == "" {
		return "", ErrInvalidRegistration
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrInvalidRegistration
	}
	return string(h), err
}

// VerifyPassword reports whether plain matches the identity's stored hash.
// The comparison is bcrypt's own; no extra timing guarantee is made for the
// unknown-user path.
func VerifyPassword(identity *model.Identity, plain string) bool {
	if identity == nil || identity.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(plain)) == nil
}
