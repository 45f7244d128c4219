package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"receipt-server-go/internal/domain/auth/model"
)

// sessionField is the hash field holding the JSON-encoded token pair.
const sessionField = "auth"

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis constructs a redis-backed session store. Each user is a hash
// keyed by prefix+user id with the pair stored under the "auth" field.
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &redisStore{
		client: client,
		ttl:    cfg.TTL,
		prefix: cfg.Redis.Prefix,
	}, nil
}

func (s *redisStore) key(userID int64) string {
	return s.prefix + strconv.FormatInt(userID, 10)
}

func (s *redisStore) Put(ctx context.Context, userID int64, record model.SessionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	key := s.key(userID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, sessionField, data)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	return err
}

func (s *redisStore) Get(ctx context.Context, userID int64) (model.SessionRecord, bool, error) {
	raw, err := s.client.HGet(ctx, s.key(userID), sessionField).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.SessionRecord{}, false, nil
	}
	if err != nil {
		return model.SessionRecord{}, false, err
	}
	var record model.SessionRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return model.SessionRecord{}, false, fmt.Errorf("corrupt session record for user %d: %w", userID, err)
	}
	return record, true, nil
}

func (s *redisStore) Delete(ctx context.Context, userID int64) error {
	return s.client.Del(ctx, s.key(userID)).Err()
}

func (s *redisStore) CleanupExpired(context.Context) error {
	// Redis handles expiration via TTL.
	return nil
}

func (s *redisStore) Stats(ctx context.Context) (map[string]any, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return nil, err
		}
		total += len(keys)
		if next == 0 {
			break
		}
		cursor = next
	}
	return map[string]any{
		"type":  DriverRedis,
		"total": total,
		"ttl":   int(s.ttl.Seconds()),
	}, nil
}

func (s *redisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}
