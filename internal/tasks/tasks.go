package tasks

import (
	"encoding/json"
	"time"
)

// 定义任务类型常量
const (
	TypeRoomSweep = "room:sweep" // 终止长时间无变更的房间
)

// RoomSweepPayload 定义了空闲房间清理任务的数据结构
type RoomSweepPayload struct {
	// IdleFor 房间超过这么久没有任何变更就会被终止
	IdleFor time.Duration `json:"idleFor"`
}

// NewRoomSweepTask 创建空闲房间清理任务的 payload
func NewRoomSweepTask(idleFor time.Duration) ([]byte, error) {
	payloadBytes, err := json.Marshal(RoomSweepPayload{IdleFor: idleFor})
	if err != nil {
		return nil, err
	}
	return payloadBytes, nil
}
