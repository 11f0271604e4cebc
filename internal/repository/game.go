package repository

import (
	"context"

	"party-game/internal/domain"
)

// GameRepository 是只读的游戏题库。
type GameRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Game, error)
	// ListByCategory 列出某个分类下的游戏，category 为空时返回全部。
	ListByCategory(ctx context.Context, category string) ([]domain.Game, error)
}
