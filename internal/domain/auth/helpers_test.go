package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"receipt-server-go/internal/domain/auth/model"
	"receipt-server-go/internal/domain/auth/store"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// memoryIdentities is an IdentityStore backed by a map.
type memoryIdentities struct {
	mu     sync.Mutex
	byID   map[int64]*model.Identity
	nextID int64
	err    error
}

func newMemoryIdentities() *memoryIdentities {
	return &memoryIdentities{byID: make(map[int64]*model.Identity)}
}

func (s *memoryIdentities) GetByUsername(_ context.Context, username string) (*model.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for _, id := range s.byID {
		if id.Username == username {
			cp := *id
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memoryIdentities) GetByID(_ context.Context, id int64) (*model.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	identity, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *identity
	return &cp, nil
}

func (s *memoryIdentities) Save(_ context.Context, identity *model.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if identity.ID == 0 {
		for _, existing := range s.byID {
			if existing.Username == identity.Username {
				return model.ErrUsernameTaken
			}
		}
		s.nextID++
		identity.ID = s.nextID
		identity.CreatedAt = time.Now()
	}
	cp := *identity
	s.byID[identity.ID] = &cp
	return nil
}

func (s *memoryIdentities) setActive(id int64, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[id].IsActive = active
}

func (s *memoryIdentities) remove(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}

// failingStore is a session store whose backend is down.
type failingStore struct{}

var errBackendDown = errors.New("connection refused")

func (failingStore) Put(context.Context, int64, model.SessionRecord) error { return errBackendDown }
func (failingStore) Get(context.Context, int64) (model.SessionRecord, bool, error) {
	return model.SessionRecord{}, false, errBackendDown
}
func (failingStore) Delete(context.Context, int64) error           { return errBackendDown }
func (failingStore) CleanupExpired(context.Context) error          { return nil }
func (failingStore) Stats(context.Context) (map[string]any, error) { return nil, errBackendDown }
func (failingStore) Ping(context.Context) error                    { return errBackendDown }
func (failingStore) Close(context.Context) error                   { return nil }

// recordingPublisher captures published topics.
type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	data   []any
}

func (p *recordingPublisher) PublishAsync(topic string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	if len(args) > 0 {
		p.data = append(p.data, args[0])
	}
}

func (p *recordingPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

type fixture struct {
	manager    *Manager
	guard      *Guard
	codec      *TokenCodec
	identities *memoryIdentities
	events     *recordingPublisher
}

const (
	testSecret = "test-secret"
	testIssuer = "receipts-test"
)

func newCodec(t *testing.T, secret, issuer string, now func() time.Time) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(CodecOptions{Secret: secret, Algorithm: "HS256", Issuer: issuer, Now: now})
	require.NoError(t, err)
	return codec
}

func newFixture(t *testing.T, sessions store.Store) *fixture {
	t.Helper()
	if sessions == nil {
		sessions = store.NewMemory(store.Config{})
	}

	codec := newCodec(t, testSecret, testIssuer, nil)
	registry := NewRegistry(sessions, testLogger{})
	identities := newMemoryIdentities()
	events := &recordingPublisher{}

	guard, err := NewGuard(GuardOptions{
		Codec:      codec,
		Registry:   registry,
		Identities: identities,
		Logger:     testLogger{},
		Events:     events,
	})
	require.NoError(t, err)

	manager, err := NewManager(Options{
		Identities: identities,
		Registry:   registry,
		Codec:      codec,
		Guard:      guard,
		Logger:     testLogger{},
		Events:     events,
		AccessTTL:  5 * time.Minute,
		RefreshTTL: 5 * 24 * time.Hour,
		BcryptCost: bcrypt.MinCost,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return &fixture{
		manager:    manager,
		guard:      guard,
		codec:      codec,
		identities: identities,
		events:     events,
	}
}

func (f *fixture) register(t *testing.T, username, password string) *model.Identity {
	t.Helper()
	identity, err := f.manager.Register(context.Background(), "", username, password)
	require.NoError(t, err)
	return identity
}
