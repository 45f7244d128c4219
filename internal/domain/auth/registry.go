package auth

import (
	"context"
	"errors"

	"receipt-server-go/internal/domain/auth/model"
	"receipt-server-go/internal/domain/auth/store"
	platformerrors "receipt-server-go/internal/platform/errors"
)

var errIncompleteSession = errors.New("session record requires both tokens")

// Registry is the authoritative record of the one live token pair per user.
// Storage failures come back as KindStorage errors, never as rejections.
type Registry struct {
	store  store.Store
	logger Logger
}

// NewRegistry wraps a session store.
func NewRegistry(s store.Store, logger Logger) *Registry {
	return &Registry{store: s, logger: logger}
}

// Put overwrites the user's session. A record missing either token is refused
// so a half-written session can never exist.
func (r *Registry) Put(ctx context.Context, userID int64, record model.SessionRecord) error {
	if !record.Complete() {
		return platformerrors.Wrap(platformerrors.KindDomain, "session.put", "refusing partial session", errIncompleteSession)
	}
	if err := r.store.Put(ctx, userID, record); err != nil {
		r.logger.Error("session store put failed for user %d: %v", userID, err)
		return platformerrors.Wrap(platformerrors.KindStorage, "session.put", "failed to store session", err)
	}
	return nil
}

// Get returns the stored pair, found == false when the user has no session.
func (r *Registry) Get(ctx context.Context, userID int64) (model.SessionRecord, bool, error) {
	record, found, err := r.store.Get(ctx, userID)
	if err != nil {
		r.logger.Error("session store get failed for user %d: %v", userID, err)
		return model.SessionRecord{}, false, platformerrors.Wrap(platformerrors.KindStorage, "session.get", "failed to load session", err)
	}
	return record, found, nil
}

// Delete removes the user's session; absent sessions are not an error.
func (r *Registry) Delete(ctx context.Context, userID int64) error {
	if err := r.store.Delete(ctx, userID); err != nil {
		r.logger.Error("session store delete failed for user %d: %v", userID, err)
		return platformerrors.Wrap(platformerrors.KindStorage, "session.delete", "failed to delete session", err)
	}
	return nil
}

// Ping checks the backing store.
func (r *Registry) Ping(ctx context.Context) error {
	if err := r.store.Ping(ctx); err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "session.ping", "session store unreachable", err)
	}
	return nil
}

// CleanupExpired purges records past the store TTL.
func (r *Registry) CleanupExpired(ctx context.Context) error {
	return r.store.CleanupExpired(ctx)
}

// Stats returns debug information from the store backend.
func (r *Registry) Stats(ctx context.Context) (map[string]any, error) {
	return r.store.Stats(ctx)
}

// Close releases the store.
func (r *Registry) Close(ctx context.Context) error {
	return r.store.Close(ctx)
}
