package memory

import (
	"context"
	"sync"
	"time"

	"party-game/internal/domain"
	"party-game/internal/repository"
)

type UserRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]domain.User)}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

// Upsert 合并非空字段，保留原始 CreatedAt。
func (r *UserRepository) Upsert(ctx context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	merged := *user
	if existing, ok := r.users[user.ID]; ok {
		merged = existing
		if user.Email != "" {
			merged.Email = user.Email
		}
		if user.DisplayName != "" {
			merged.DisplayName = user.DisplayName
		}
		if user.Avatar != "" {
			merged.Avatar = user.Avatar
		}
	} else {
		merged.CreatedAt = now
	}
	merged.UpdatedAt = now
	r.users[user.ID] = merged
	out := merged
	return &out, nil
}
