package memory

import (
	"context"
	"errors"
	"sync"

	"party-game/internal/domain"
	"party-game/internal/repository"
)

// RoomRepository 是 RoomRepository 接口的进程内实现，存取时做深拷贝。
type RoomRepository struct {
	mu    sync.RWMutex
	rooms map[string]*domain.Room
}

func NewRoomRepository() *RoomRepository {
	return &RoomRepository{rooms: make(map[string]*domain.Room)}
}

func (r *RoomRepository) FindByID(ctx context.Context, id string) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (r *RoomRepository) FindOpenByCode(ctx context.Context, code string) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, room := range r.rooms {
		if room.Code == code && room.Status.IsOpen() {
			return room.Clone(), nil
		}
	}
	return nil, repository.ErrRoomNotFound
}

func (r *RoomRepository) IsOpenCodeTaken(ctx context.Context, code string) (bool, error) {
	_, err := r.FindOpenByCode(ctx, code)
	if errors.Is(err, repository.ErrRoomNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *RoomRepository) FindByStatuses(ctx context.Context, statuses ...domain.RoomStatus) ([]domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := make(map[domain.RoomStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]domain.Room, 0)
	for _, room := range r.rooms {
		if want[room.Status] {
			rooms = append(rooms, *room.Clone())
		}
	}
	return rooms, nil
}

func (r *RoomRepository) FindByMember(ctx context.Context, userID string) ([]domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]domain.Room, 0)
	for _, room := range r.rooms {
		if room.IsMember(userID) {
			rooms = append(rooms, *room.Clone())
		}
	}
	return rooms, nil
}

func (r *RoomRepository) Save(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[room.ID] = room.Clone()
	return nil
}
