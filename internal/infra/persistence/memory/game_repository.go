package memory

import (
	"context"
	"sort"
	"sync"

	"party-game/internal/domain"
	"party-game/internal/repository"
)

// GameRepository 是只读题库的内存实现，内容在构造时给定。
type GameRepository struct {
	mu    sync.RWMutex
	games map[string]domain.Game
}

func NewGameRepository(games ...domain.Game) *GameRepository {
	r := &GameRepository{games: make(map[string]domain.Game, len(games))}
	for _, g := range games {
		r.games[g.ID] = g
	}
	return r
}

func (r *GameRepository) FindByID(ctx context.Context, id string) (*domain.Game, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.games[id]
	if !ok {
		return nil, repository.ErrGameNotFound
	}
	g.Prompts = append([]domain.Prompt(nil), g.Prompts...)
	return &g, nil
}

func (r *GameRepository) ListByCategory(ctx context.Context, category string) ([]domain.Game, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	games := make([]domain.Game, 0, len(r.games))
	for _, g := range r.games {
		if category == "" || g.Category == category {
			games = append(games, g)
		}
	}
	sort.Slice(games, func(i, j int) bool { return games[i].Name < games[j].Name })
	return games, nil
}
