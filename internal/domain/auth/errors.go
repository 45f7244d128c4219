package auth

import (
	"errors"

	"receipt-server-go/internal/domain/auth/model"
)

// Reason names why a request was refused authorization.
type Reason string

const (
	ReasonInvalidCredentials    Reason = "InvalidCredentials"
	ReasonAccountInactive       Reason = "AccountInactive"
	ReasonTokenExpired          Reason = "TokenExpired"
	ReasonTokenIssuerMismatch   Reason = "TokenIssuerMismatch"
	ReasonTokenMalformed        Reason = "TokenMalformed"
	ReasonInvalidOrRevokedToken Reason = "InvalidOrRevokedToken"
	ReasonIdentityNotFound      Reason = "IdentityNotFound"
)

// Rejection is an authorization failure. Every rejection maps to a 401 and
// requires the caller to re-authenticate.
type Rejection struct {
	Reason  Reason
	Message string
}

func (r *Rejection) Error() string {
	return r.Message
}

// Is matches any rejection carrying the same reason.
func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	return ok && t.Reason == r.Reason
}

var (
	ErrInvalidCredentials    = &Rejection{Reason: ReasonInvalidCredentials, Message: "Wrong username or password"}
	ErrAccountInactive       = &Rejection{Reason: ReasonAccountInactive, Message: "Account is not active"}
	ErrTokenExpired          = &Rejection{Reason: ReasonTokenExpired, Message: "Token has expired"}
	ErrTokenIssuerMismatch   = &Rejection{Reason: ReasonTokenIssuerMismatch, Message: "Invalid token issuer"}
	ErrTokenMalformed        = &Rejection{Reason: ReasonTokenMalformed, Message: "Invalid token"}
	ErrInvalidOrRevokedToken = &Rejection{Reason: ReasonInvalidOrRevokedToken, Message: "Fake or non-working token"}
	ErrIdentityNotFound      = &Rejection{Reason: ReasonIdentityNotFound, Message: "User not found"}
)

// ErrUsernameTaken is returned by Register for duplicate usernames.
var ErrUsernameTaken = model.ErrUsernameTaken

// ErrInvalidRegistration is returned by Register for empty or oversized input.
var ErrInvalidRegistration = errors.New("username and password are required")

// ReasonOf extracts the rejection reason from err, if any.
func ReasonOf(err error) (Reason, bool) {
	var rejection *Rejection
	if errors.As(err, &rejection) {
		return rejection.Reason, true
	}
	return "", false
}

// IsRejection reports whether err is an authorization failure rather than an
// infrastructure error.
func IsRejection(err error) bool {
	_, ok := ReasonOf(err)
	return ok
}
