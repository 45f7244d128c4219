package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"receipt-server-go/internal/domain/auth/model"
)

// CodecOptions configures token signing and verification.
type CodecOptions struct {
	Secret    string
	Algorithm string
	Issuer    string
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// TokenCodec signs and verifies access and refresh tokens. It has no
// knowledge of session state.
type TokenCodec struct {
	secret []byte
	method jwt.SigningMethod
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

type tokenClaims struct {
	UserID int64           `json:"user_id"`
	Kind   model.TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// NewTokenCodec validates opts and builds a codec.
func NewTokenCodec(opts CodecOptions) (*TokenCodec, error) {
	if opts.Secret == "" {
		return nil, errors.New("token secret must not be empty")
	}
	if opts.Issuer == "" {
		return nil, errors.New("token issuer must not be empty")
	}
	alg := strings.ToUpper(opts.Algorithm)
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm: %s", opts.Algorithm)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &TokenCodec{
		secret: []byte(opts.Secret),
		method: method,
		issuer: opts.Issuer,
		now:    now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{method.Alg()}),
			jwt.WithIssuer(opts.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithTimeFunc(now),
		),
	}, nil
}

// Issue signs a token of the given kind for the user, valid for ttl.
func (c *TokenCodec) Issue(subject string, userID int64, kind model.TokenKind, ttl time.Duration) (string, time.Time, error) {
	if !kind.Valid() {
		return "", time.Time{}, fmt.Errorf("unknown token kind: %q", kind)
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("token ttl must be positive")
	}

	now := c.now()
	expiresAt := now.Add(ttl)
	claims := tokenClaims{
		UserID: userID,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse verifies signature, expiry and issuer and returns the claims.
// Failures are ErrTokenIssuerMismatch, ErrTokenExpired or ErrTokenMalformed.
// A token failing both the issuer and expiry checks reports the issuer.
func (c *TokenCodec) Parse(token string) (model.TokenClaims, error) {
	if strings.TrimSpace(token) == "" {
		return model.TokenClaims{}, ErrTokenMalformed
	}

	var claims tokenClaims
	_, err := c.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return model.TokenClaims{}, ErrTokenIssuerMismatch
	case errors.Is(err, jwt.ErrTokenExpired):
		return model.TokenClaims{}, ErrTokenExpired
	default:
		return model.TokenClaims{}, ErrTokenMalformed
	}

	if claims.UserID <= 0 || !claims.Kind.Valid() {
		return model.TokenClaims{}, ErrTokenMalformed
	}

	out := model.TokenClaims{
		Subject: claims.Subject,
		UserID:  claims.UserID,
		Kind:    claims.Kind,
		Issuer:  claims.Issuer,
		ID:      claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
