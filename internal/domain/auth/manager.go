package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"receipt-server-go/internal/domain/auth/model"
	"receipt-server-go/internal/domain/eventbus"
	"receipt-server-go/internal/platform/observability"
)

type (
	// Identity re-exports the shared auth entity for callers.
	Identity = model.Identity
	// TokenPair re-exports the issued pair for callers.
	TokenPair = model.TokenPair
	// Logger re-exports the logging interface used across the domain.
	Logger = model.Logger
)

const (
	defaultAccessTTL       = 5 * time.Minute
	defaultRefreshTTL      = 5 * 24 * time.Hour
	defaultCleanupInterval = 10 * time.Minute
	minCleanupInterval     = 30 * time.Second
	maxUsernameLength      = 200
)

// Options encapsulates the dependencies required to construct a Manager.
type Options struct {
	Identities      IdentityStore
	Registry        *Registry
	Codec           *TokenCodec
	Guard           *Guard
	Logger          Logger
	Events          eventbus.Publisher
	Metrics         observability.Recorder
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	BcryptCost      int
	CleanupInterval time.Duration
}

// Manager implements registration, login, refresh and logout on top of the
// codec, registry and guard.
type Manager struct {
	identities IdentityStore
	registry   *Registry
	codec      *TokenCodec
	guard      *Guard
	logger     Logger
	events     eventbus.Publisher
	metrics    observability.Recorder
	accessTTL  time.Duration
	refreshTTL time.Duration
	bcryptCost int

	cleanupInterval time.Duration
	cleanupStop     chan struct{}
	cleanupOnce     sync.Once
}

// NewManager wires a Manager using the supplied options.
func NewManager(opts Options) (*Manager, error) {
	if opts.Identities == nil {
		return nil, errors.New("auth manager requires an identity store")
	}
	if opts.Registry == nil || opts.Codec == nil || opts.Guard == nil {
		return nil, errors.New("auth manager requires registry, codec and guard")
	}
	if opts.Logger == nil {
		return nil, errors.New("auth manager requires a logger")
	}
	if opts.Events == nil {
		opts.Events = eventbus.Nop{}
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.Nop{}
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = defaultAccessTTL
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = defaultRefreshTTL
	}
	cleanupInterval := opts.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = defaultCleanupInterval
	} else if cleanupInterval < minCleanupInterval {
		opts.Logger.Warn("cleanup interval too small, adjusting to minimum %s", minCleanupInterval)
		cleanupInterval = minCleanupInterval
	}

	mgr := &Manager{
		identities:      opts.Identities,
		registry:        opts.Registry,
		codec:           opts.Codec,
		guard:           opts.Guard,
		logger:          opts.Logger,
		events:          opts.Events,
		metrics:         opts.Metrics,
		accessTTL:       opts.AccessTTL,
		refreshTTL:      opts.RefreshTTL,
		bcryptCost:      opts.BcryptCost,
		cleanupInterval: cleanupInterval,
		cleanupStop:     make(chan struct{}),
	}

	go mgr.runCleanup()
	return mgr, nil
}

func (m *Manager) runCleanup() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.registry.CleanupExpired(context.Background()); err != nil {
				m.logger.Warn("session store cleanup failed: %v", err)
			}
		case <-m.cleanupStop:
			return
		}
	}
}

// RefreshTTL is the refresh token lifetime, used for the cookie attributes.
func (m *Manager) RefreshTTL() time.Duration {
	return m.refreshTTL
}

// Guard returns the session guard protecting downstream operations.
func (m *Manager) Guard() *Guard {
	return m.guard
}

// Register creates an active identity with a bcrypt-hashed password.
func (m *Manager) Register(ctx context.Context, name, username, password string) (*Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" || len(username) > maxUsernameLength {
		return nil, ErrInvalidRegistration
	}

	existing, err := m.identities.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	hash, err := HashPassword(password, m.bcryptCost)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = username
	}
	identity := &Identity{
		Name:         name,
		Username:     username,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := m.identities.Save(ctx, identity); err != nil {
		return nil, err
	}

	m.logger.Info("registered user %s (id %d)", username, identity.ID)
	m.publish(eventbus.EventAuthRegistered, identity.ID, username, "")
	return identity, nil
}

// Login checks credentials and starts a new session, invalidating any tokens
// issued earlier to the same user.
func (m *Manager) Login(ctx context.Context, username, password string) (TokenPair, error) {
	ctx, end := observability.StartSpan(ctx, "auth", "login")
	pair, err := m.login(ctx, username, password)
	end(err)
	m.recordOutcome("login", err)
	return pair, err
}

func (m *Manager) login(ctx context.Context, username, password string) (TokenPair, error) {
	identity, err := m.identities.GetByUsername(ctx, username)
	if err != nil {
		return TokenPair{}, err
	}
	if identity == nil || !VerifyPassword(identity, password) {
		m.logger.Info("login rejected for %q: %s", username, ReasonInvalidCredentials)
		m.publish(eventbus.EventAuthLoginFailed, 0, username, string(ReasonInvalidCredentials))
		return TokenPair{}, ErrInvalidCredentials
	}
	if !identity.IsActive {
		m.logger.Info("login rejected for %q: %s", username, ReasonAccountInactive)
		m.publish(eventbus.EventAuthLoginFailed, identity.ID, username, string(ReasonAccountInactive))
		return TokenPair{}, ErrAccountInactive
	}

	pair, err := m.startSession(ctx, identity.Username, identity.ID)
	if err != nil {
		return TokenPair{}, err
	}
	m.logger.Debug("user %d logged in", identity.ID)
	m.publish(eventbus.EventAuthLogin, identity.ID, identity.Username, "")
	return pair, nil
}

// Refresh rotates the pair bound to a valid refresh token. The presented pair
// stops working as soon as the new one is stored.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	ctx, end := observability.StartSpan(ctx, "auth", "refresh")
	pair, err := m.refresh(ctx, refreshToken)
	end(err)
	m.recordOutcome("refresh", err)
	return pair, err
}

func (m *Manager) refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := m.guard.VerifyToken(ctx, refreshToken, model.KindRefresh)
	if err != nil {
		if IsRejection(err) {
			m.logger.Info("refresh rejected: %v", err)
		}
		return TokenPair{}, err
	}

	pair, err := m.startSession(ctx, claims.Subject, claims.UserID)
	if err != nil {
		return TokenPair{}, err
	}
	m.logger.Debug("user %d refreshed session", claims.UserID)
	m.publish(eventbus.EventAuthRefresh, claims.UserID, claims.Subject, "")
	return pair, nil
}

// Logout ends the identity's session. Logging out twice is not an error.
func (m *Manager) Logout(ctx context.Context, identity *Identity) error {
	if identity == nil {
		return ErrIdentityNotFound
	}
	if err := m.registry.Delete(ctx, identity.ID); err != nil {
		return err
	}
	m.logger.Debug("user %d logged out", identity.ID)
	m.publish(eventbus.EventAuthLogout, identity.ID, identity.Username, "")
	m.metrics.RecordAuthOutcome("logout", "ok")
	return nil
}

// Ping checks the session store.
func (m *Manager) Ping(ctx context.Context) error {
	return m.registry.Ping(ctx)
}

// Close stops the cleanup loop and releases the session store.
func (m *Manager) Close() error {
	m.cleanupOnce.Do(func() {
		close(m.cleanupStop)
	})
	if err := m.registry.Close(context.Background()); err != nil {
		m.logger.Error("failed closing session store: %v", err)
		return err
	}
	return nil
}

func (m *Manager) startSession(ctx context.Context, subject string, userID int64) (TokenPair, error) {
	access, accessExp, err := m.codec.Issue(subject, userID, model.KindAccess, m.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := m.codec.Issue(subject, userID, model.KindRefresh, m.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}

	record := model.SessionRecord{AccessToken: access, RefreshToken: refresh}
	if err := m.registry.Put(ctx, userID, record); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (m *Manager) publish(topic string, userID int64, username, reason string) {
	m.events.PublishAsync(topic, eventbus.AuthEventData{
		UserID:     userID,
		Username:   username,
		Reason:     reason,
		OccurredAt: time.Now(),
	})
}

func (m *Manager) recordOutcome(operation string, err error) {
	outcome := "ok"
	if reason, ok := ReasonOf(err); ok {
		outcome = string(reason)
	} else if err != nil {
		outcome = "error"
	}
	m.metrics.RecordAuthOutcome(operation, outcome)
}
