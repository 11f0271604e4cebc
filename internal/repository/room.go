package repository

import (
	"context"

	"party-game/internal/domain"
)

// RoomRepository 定义了房间文档的存储和检索操作。
// 返回的 Room 是副本，调用方修改后需要 Save 才会生效。
type RoomRepository interface {
	// FindByID 根据房间 ID 查找房间，不存在时返回 ErrRoomNotFound。
	FindByID(ctx context.Context, id string) (*domain.Room, error)

	// FindOpenByCode 查找状态为 pending/active 且邀请码为 code 的房间。
	FindOpenByCode(ctx context.Context, code string) (*domain.Room, error)

	// IsOpenCodeTaken 检查邀请码是否被某个 pending/active 房间占用。
	IsOpenCodeTaken(ctx context.Context, code string) (bool, error)

	// FindByStatuses 返回处于给定状态之一的所有房间。
	FindByStatuses(ctx context.Context, statuses ...domain.RoomStatus) ([]domain.Room, error)

	// FindByMember 返回 players 中出现过该用户的所有房间。
	FindByMember(ctx context.Context, userID string) ([]domain.Room, error)

	// Save 保存房间（按 ID 创建或整体替换）。
	Save(ctx context.Context, room *domain.Room) error
}
