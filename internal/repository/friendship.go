package repository

import (
	"context"

	"party-game/internal/domain"
)

// FriendshipRepository 定义好友关系的存储操作。每对用户最多一条记录。
type FriendshipRepository interface {
	// FindByPair 查找两个用户之间的关系（顺序无关）。
	FindByPair(ctx context.Context, a, b string) (*domain.Friendship, error)

	// ListByUser 列出用户参与的关系，status 为空时不过滤。
	ListByUser(ctx context.Context, userID string, status domain.FriendshipStatus) ([]domain.Friendship, error)

	// Create 新建关系，已存在时返回 ErrDuplicateEntry。
	Create(ctx context.Context, f *domain.Friendship) error

	// Update 更新已有关系。
	Update(ctx context.Context, f *domain.Friendship) error
}
