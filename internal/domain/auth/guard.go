package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"receipt-server-go/internal/domain/auth/model"
	"receipt-server-go/internal/domain/eventbus"
	platformerrors "receipt-server-go/internal/platform/errors"
	"receipt-server-go/internal/platform/observability"
)

// IdentityStore is the credential store contract.
type IdentityStore interface {
	// GetByUsername and GetByID return nil, nil when the identity is absent.
	GetByUsername(ctx context.Context, username string) (*model.Identity, error)
	GetByID(ctx context.Context, id int64) (*model.Identity, error)
	Save(ctx context.Context, identity *model.Identity) error
}

// Outcome is the terminal state of an authorization attempt.
type Outcome int

const (
	OutcomeRejected Outcome = iota
	OutcomeAdmitted
	// OutcomeFailed means a backing store failed; the request should 5xx.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdmitted:
		return "admitted"
	case OutcomeFailed:
		return "failed"
	default:
		return "rejected"
	}
}

// Decision is the result of Guard.Authorize.
type Decision struct {
	Outcome  Outcome
	Identity *model.Identity
	Claims   model.TokenClaims
	// Err is a *Rejection when Outcome is OutcomeRejected and the storage
	// error when OutcomeFailed.
	Err error
}

// Admitted reports whether the request may proceed.
func (d Decision) Admitted() bool {
	return d.Outcome == OutcomeAdmitted
}

// GuardOptions collects the guard's dependencies.
type GuardOptions struct {
	Codec      *TokenCodec
	Registry   *Registry
	Identities IdentityStore
	Logger     Logger
	Events     eventbus.Publisher
	Metrics    observability.Recorder
}

// Guard admits or rejects requests presenting an access token.
type Guard struct {
	codec      *TokenCodec
	registry   *Registry
	identities IdentityStore
	logger     Logger
	events     eventbus.Publisher
	metrics    observability.Recorder
}

// NewGuard wires a Guard.
func NewGuard(opts GuardOptions) (*Guard, error) {
	if opts.Codec == nil || opts.Registry == nil || opts.Identities == nil {
		return nil, errors.New("session guard requires codec, registry and identity store")
	}
	if opts.Logger == nil {
		return nil, errors.New("session guard requires a logger")
	}
	if opts.Events == nil {
		opts.Events = eventbus.Nop{}
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.Nop{}
	}
	return &Guard{
		codec:      opts.Codec,
		registry:   opts.Registry,
		identities: opts.Identities,
		logger:     opts.Logger,
		events:     opts.Events,
		metrics:    opts.Metrics,
	}, nil
}

// VerifyToken checks signature, expiry and issuer, then requires the token to
// be of the given kind and identical to the one stored for its user.
func (g *Guard) VerifyToken(ctx context.Context, token string, kind model.TokenKind) (model.TokenClaims, error) {
	claims, err := g.codec.Parse(token)
	if err != nil {
		return model.TokenClaims{}, err
	}
	if claims.Kind != kind {
		g.logger.Debug("token kind %s presented where %s required (user %d)", claims.Kind, kind, claims.UserID)
		return model.TokenClaims{}, ErrInvalidOrRevokedToken
	}

	record, found, err := g.registry.Get(ctx, claims.UserID)
	if err != nil {
		return model.TokenClaims{}, err
	}
	stored := record.Token(kind)
	if !found || stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(token)) != 1 {
		return model.TokenClaims{}, ErrInvalidOrRevokedToken
	}
	return claims, nil
}

// Authorize runs the full gate for a protected request. An empty token is
// rejected as malformed.
func (g *Guard) Authorize(ctx context.Context, token string) Decision {
	ctx, end := observability.StartSpan(ctx, "auth", "authorize")
	decision := g.authorize(ctx, token)
	end(decision.Err)

	outcome := "ok"
	if reason, ok := ReasonOf(decision.Err); ok {
		outcome = string(reason)
	} else if decision.Outcome == OutcomeFailed {
		outcome = "error"
	}
	g.metrics.RecordAuthOutcome("authorize", outcome)
	return decision
}

func (g *Guard) authorize(ctx context.Context, token string) Decision {
	if token == "" {
		return reject(ErrTokenMalformed)
	}

	claims, err := g.VerifyToken(ctx, token, model.KindAccess)
	if err != nil {
		if IsRejection(err) {
			g.logger.Debug("access token rejected: %v", err)
			return reject(err)
		}
		return fail(err)
	}

	identity, err := g.identities.GetByID(ctx, claims.UserID)
	if err != nil {
		return fail(platformerrors.Wrap(platformerrors.KindStorage, "guard.identity", "failed to load identity", err))
	}

	var rejection *Rejection
	switch {
	case identity == nil:
		rejection = ErrIdentityNotFound
	case !identity.IsActive:
		rejection = ErrAccountInactive
	}
	if rejection != nil {
		if err := g.registry.Delete(ctx, claims.UserID); err != nil {
			return fail(err)
		}
		g.logger.Info("revoked session of user %d: %s", claims.UserID, rejection.Reason)
		g.events.PublishAsync(eventbus.EventAuthSessionRevoked, eventbus.AuthEventData{
			UserID:     claims.UserID,
			Username:   claims.Subject,
			Reason:     string(rejection.Reason),
			OccurredAt: time.Now(),
		})
		return reject(rejection)
	}

	return Decision{Outcome: OutcomeAdmitted, Identity: identity, Claims: claims}
}

func reject(err error) Decision {
	return Decision{Outcome: OutcomeRejected, Err: err}
}

func fail(err error) Decision {
	return Decision{Outcome: OutcomeFailed, Err: err}
}
