package storage

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"

	"receipt-server-go/internal/domain/auth/model"
	"receipt-server-go/internal/platform/errors"
)

// UserRepository persists auth identities in the users table.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a user repository instance.
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByUsername returns nil, nil when no user has that username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.Identity, error) {
	var row User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&row).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.KindStorage, "user.get_by_username", "failed to load user", err)
	}
	return r.fromModel(&row), nil
}

// GetByID returns nil, nil when the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.Identity, error) {
	var row User
	if err := r.db.WithContext(ctx).First(&row, id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.KindStorage, "user.get_by_id", "failed to load user", err)
	}
	return r.fromModel(&row), nil
}

// Save inserts a new identity (ID == 0) or updates an existing one.
func (r *UserRepository) Save(ctx context.Context, identity *model.Identity) error {
	row := r.toModel(identity)

	var err error
	if row.ID == 0 {
		err = r.db.WithContext(ctx).Create(row).Error
	} else {
		err = r.db.WithContext(ctx).Save(row).Error
	}
	if err != nil {
		if stderrors.Is(err, gorm.ErrDuplicatedKey) {
			return model.ErrUsernameTaken
		}
		return errors.Wrap(errors.KindStorage, "user.save", "failed to save user", err)
	}

	identity.ID = row.ID
	identity.CreatedAt = row.CreatedAt
	return nil
}

func (r *UserRepository) toModel(identity *model.Identity) *User {
	return &User{
		ID:        identity.ID,
		Name:      identity.Name,
		Username:  identity.Username,
		Password:  identity.PasswordHash,
		IsActive:  identity.IsActive,
		CreatedAt: identity.CreatedAt,
	}
}

func (r *UserRepository) fromModel(row *User) *model.Identity {
	return &model.Identity{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username,
		PasswordHash: row.Password,
		IsActive:     row.IsActive,
		CreatedAt:    row.CreatedAt,
	}
}
