package repository

import (
	"context"

	"party-game/internal/domain"
)

// UserRepository 定义了用户资料的存储操作。
type UserRepository interface {
	// FindByID 根据用户 ID 查找用户，不存在时返回 ErrUserNotFound。
	FindByID(ctx context.Context, id string) (*domain.User, error)

	// Upsert 创建或合并更新用户资料，保留原始的 CreatedAt。
	Upsert(ctx context.Context, user *domain.User) (*domain.User, error)
}
