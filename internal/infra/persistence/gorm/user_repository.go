package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"party-game/internal/domain"
	"party-game/internal/repository"
)

// GormUserRepository 是 UserRepository 接口的 GORM 实现
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository 创建 GormUserRepository 实例
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	if db == nil {
		panic("database connection cannot be nil for GormUserRepository")
	}
	return &GormUserRepository{db: db}
}

// FindByID 实现根据用户 ID 查找用户
func (r *GormUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrUserNotFound
		}
		return nil, fmt.Errorf("gorm: find user by id %s: %w", id, err)
	}
	return &user, nil
}

// Upsert 插入用户；主键冲突时只更新非空的资料字段，created_at 不变。
func (r *GormUserRepository) Upsert(ctx context.Context, user *domain.User) (*domain.User, error) {
	updates := []string{"updated_at"}
	if user.Email != "" {
		updates = append(updates, "email")
	}
	if user.DisplayName != "" {
		updates = append(updates, "display_name")
	}
	if user.Avatar != "" {
		updates = append(updates, "avatar")
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(user).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: upsert user %s: %w", user.ID, err)
	}
	// 读回合并后的记录（created_at 以数据库为准）
	return r.FindByID(ctx, user.ID)
}
