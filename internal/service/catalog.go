package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"party-game/internal/domain"
	"party-game/internal/repository"
)

// CatalogService 只读地暴露游戏题库。
type CatalogService struct {
	gameRepo repository.GameRepository
}

func NewCatalogService(gameRepo repository.GameRepository) *CatalogService {
	if gameRepo == nil {
		panic("GameRepository cannot be nil for CatalogService")
	}
	return &CatalogService{gameRepo: gameRepo}
}

// GetGame 返回游戏条目，不存在时返回 ErrGameNotFound。
func (s *CatalogService) GetGame(ctx context.Context, gameID string) (*domain.Game, error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrGameNotFound
		}
		logrus.WithField("game_id", gameID).WithError(err).Error("Failed to load game")
		return nil, ErrInternalServer
	}
	return game, nil
}

// ListGames 按分类列出游戏，category 为空时返回全部。
func (s *CatalogService) ListGames(ctx context.Context, category string) ([]domain.Game, error) {
	games, err := s.gameRepo.ListByCategory(ctx, category)
	if err != nil {
		logrus.WithField("category", category).WithError(err).Error("Failed to list games")
		return nil, ErrInternalServer
	}
	return games, nil
}
