package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"party-game/internal/domain"
	"party-game/internal/repository"
)

type GormFriendshipRepository struct {
	db *gorm.DB
}

func NewGormFriendshipRepository(db *gorm.DB) *GormFriendshipRepository {
	if db == nil {
		panic("database connection cannot be nil for GormFriendshipRepository")
	}
	return &GormFriendshipRepository{db: db}
}

func (r *GormFriendshipRepository) FindByPair(ctx context.Context, a, b string) (*domain.Friendship, error) {
	lo, hi := domain.FriendPair(a, b)
	var f domain.Friendship
	err := r.db.WithContext(ctx).Where("user_a = ? AND user_b = ?", lo, hi).First(&f).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrFriendshipNotFound
		}
		return nil, fmt.Errorf("gorm: find friendship (%s, %s): %w", lo, hi, err)
	}
	return &f, nil
}

func (r *GormFriendshipRepository) ListByUser(ctx context.Context, userID string, status domain.FriendshipStatus) ([]domain.Friendship, error) {
	var out []domain.Friendship
	q := r.db.WithContext(ctx).Where("user_a = ? OR user_b = ?", userID, userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Order("updated_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("gorm: list friendships of %s: %w", userID, err)
	}
	return out, nil
}

func (r *GormFriendshipRepository) Create(ctx context.Context, f *domain.Friendship) error {
	if err := r.db.WithContext(ctx).Create(f).Error; err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create friendship (%s, %s): %w", f.UserA, f.UserB, err)
	}
	return nil
}

func (r *GormFriendshipRepository) Update(ctx context.Context, f *domain.Friendship) error {
	res := r.db.WithContext(ctx).Model(&domain.Friendship{}).Where("id = ?", f.ID).
		Updates(map[string]interface{}{
			"status":       f.Status,
			"requested_by": f.RequestedBy,
			"updated_at":   f.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("gorm: update friendship %s: %w", f.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrFriendshipNotFound
	}
	return nil
}
