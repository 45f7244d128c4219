package store

import (
	"context"
	"sync"
	"time"

	"receipt-server-go/internal/domain/auth/model"
)

type memoryEntry struct {
	record    model.SessionRecord
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

type memoryStore struct {
	items       map[int64]memoryEntry
	mutex       sync.RWMutex
	ttl         time.Duration
	cleanupFreq time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewMemory builds an in-memory session store.
func NewMemory(cfg Config) Store {
	cleanup := 5 * time.Minute
	if cfg.Memory != nil && cfg.Memory.GCInterval > 0 {
		cleanup = cfg.Memory.GCInterval
	}
	s := &memoryStore{
		items:       make(map[int64]memoryEntry),
		ttl:         cfg.TTL,
		cleanupFreq: cleanup,
		stop:        make(chan struct{}),
	}
	go s.gcLoop()
	return s
}

func (s *memoryStore) gcLoop() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = s.CleanupExpired(context.Background())
		case <-s.stop:
			return
		}
	}
}

func (s *memoryStore) Put(_ context.Context, userID int64, record model.SessionRecord) error {
	entry := memoryEntry{record: record}
	if s.ttl > 0 {
		entry.expiresAt = time.Now().Add(s.ttl)
	}

	s.mutex.Lock()
	s.items[userID] = entry
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Get(_ context.Context, userID int64) (model.SessionRecord, bool, error) {
	s.mutex.RLock()
	entry, ok := s.items[userID]
	s.mutex.RUnlock()
	if !ok || entry.expired(time.Now()) {
		return model.SessionRecord{}, false, nil
	}
	return entry.record, true, nil
}

func (s *memoryStore) Delete(_ context.Context, userID int64) error {
	s.mutex.Lock()
	delete(s.items, userID)
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) CleanupExpired(_ context.Context) error {
	now := time.Now()
	s.mutex.Lock()
	for id, entry := range s.items {
		if entry.expired(now) {
			delete(s.items, id)
		}
	}
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Stats(_ context.Context) (map[string]any, error) {
	now := time.Now()
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	active := 0
	for _, entry := range s.items {
		if !entry.expired(now) {
			active++
		}
	}
	return map[string]any{
		"type":        DriverMemory,
		"total":       len(s.items),
		"active":      active,
		"ttl_seconds": int(s.ttl.Seconds()),
	}, nil
}

func (s *memoryStore) Ping(context.Context) error {
	return nil
}

func (s *memoryStore) Close(_ context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	return nil
}
