package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
	EnsureExists(ctx context.Context, principalID, displayName string, now time.Time) error
	FindByID(ctx context.Context, principalID string) (*domain.User, error)
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

// EnsureExists inserts the principal's user row unless one is already there.
// An existing display name is never overwritten.
func (r *GormUserRepository) EnsureExists(ctx context.Context, principalID, displayName string, now time.Time) error {
	u := domain.User{ID: principalID, DisplayName: displayName, CreatedAt: now}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&u).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "ensure_exists", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "user", "ensure_exists", "success")
	return nil
}

func (r *GormUserRepository) FindByID(ctx context.Context, principalID string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Where("id = ?", principalID).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "user", "find_by_id", "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(ctx, "user", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "user", "find_by_id", "success")
	return &u, nil
}
