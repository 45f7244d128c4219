package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"receipt-server-go/internal/domain/auth/model"
	"receipt-server-go/internal/platform/storage"
)

type sqliteStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// NewSQLite builds a session store on the relational database. Despite the
// name it works with any gorm dialect the storage layer opens.
func NewSQLite(db *gorm.DB, cfg Config) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires database handle")
	}
	return &sqliteStore{
		db:  db,
		ttl: cfg.TTL,
	}, nil
}

func (s *sqliteStore) Put(ctx context.Context, userID int64, record model.SessionRecord) error {
	row := &storage.AuthSession{
		UserID:       userID,
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
	}
	if s.ttl > 0 {
		exp := time.Now().Add(s.ttl)
		row.ExpiresAt = &exp
	}

	// Single upsert statement keeps the write atomic.
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "expires_at", "updated_at"}),
		}).
		Create(row).Error
}

func (s *sqliteStore) Get(ctx context.Context, userID int64) (model.SessionRecord, bool, error) {
	var row storage.AuthSession
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.SessionRecord{}, false, nil
	}
	if err != nil {
		return model.SessionRecord{}, false, err
	}
	if row.ExpiresAt != nil && time.Now().After(*row.ExpiresAt) {
		return model.SessionRecord{}, false, nil
	}
	return model.SessionRecord{
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
	}, true, nil
}

func (s *sqliteStore) Delete(ctx context.Context, userID int64) error {
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&storage.AuthSession{}).Error
}

func (s *sqliteStore) CleanupExpired(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", time.Now()).
		Delete(&storage.AuthSession{}).
		Error
}

func (s *sqliteStore) Stats(ctx context.Context) (map[string]any, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&storage.AuthSession{}).Count(&total).Error; err != nil {
		return nil, err
	}
	return map[string]any{
		"type":  DriverSQLite,
		"total": total,
		"ttl":   int(s.ttl.Seconds()),
	}, nil
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	return storage.Ping(ctx, s.db)
}

func (s *sqliteStore) Close(context.Context) error {
	return nil
}
