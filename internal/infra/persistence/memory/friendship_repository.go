package memory

import (
	"context"
	"sync"

	"party-game/internal/domain"
	"party-game/internal/repository"
)

type FriendshipRepository struct {
	mu    sync.RWMutex
	pairs map[[2]string]domain.Friendship
}

func NewFriendshipRepository() *FriendshipRepository {
	return &FriendshipRepository{pairs: make(map[[2]string]domain.Friendship)}
}

func pairKey(a, b string) [2]string {
	lo, hi := domain.FriendPair(a, b)
	return [2]string{lo, hi}
}

func (r *FriendshipRepository) FindByPair(ctx context.Context, a, b string) (*domain.Friendship, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.pairs[pairKey(a, b)]
	if !ok {
		return nil, repository.ErrFriendshipNotFound
	}
	return &f, nil
}

func (r *FriendshipRepository) ListByUser(ctx context.Context, userID string, status domain.FriendshipStatus) ([]domain.Friendship, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Friendship, 0)
	for _, f := range r.pairs {
		if f.UserA != userID && f.UserB != userID {
			continue
		}
		if status != "" && f.Status != status {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func (r *FriendshipRepository) Create(ctx context.Context, f *domain.Friendship) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey(f.UserA, f.UserB)
	if _, exists := r.pairs[key]; exists {
		return repository.ErrDuplicateEntry
	}
	r.pairs[key] = *f
	return nil
}

func (r *FriendshipRepository) Update(ctx context.Context, f *domain.Friendship) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey(f.UserA, f.UserB)
	if _, exists := r.pairs[key]; !exists {
		return repository.ErrFriendshipNotFound
	}
	r.pairs[key] = *f
	return nil
}
