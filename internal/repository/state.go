package repository

import (
	"context"
	"time"

	"party-game/internal/domain"
)

// StateRepository 定义了基于 Redis 的辅助状态操作：限流计数与房间事件发布。
// 房间的权威状态始终在 RoomRepository 中。
type StateRepository interface {
	// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。
	// 返回 true 如果超限。
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	// PublishRoomEvent 将房间事件发布到该房间的频道，供外部订阅者使用。
	PublishRoomEvent(ctx context.Context, event domain.RoomEvent) error
}
