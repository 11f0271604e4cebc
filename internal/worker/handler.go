package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"party-game/internal/tasks"
)

// RoomSweeper 是清理任务需要的房间操作
type RoomSweeper interface {
	SweepIdleRooms(ctx context.Context, idleFor time.Duration) (int, error)
}

// RoomSweepHandler 处理空闲房间清理任务
type RoomSweepHandler struct {
	sweeper        RoomSweeper
	defaultIdleFor time.Duration
}

// NewRoomSweepHandler 创建 Handler 实例。payload 未指定时长时使用 defaultIdleFor。
func NewRoomSweepHandler(sweeper RoomSweeper, defaultIdleFor time.Duration) *RoomSweepHandler {
	if sweeper == nil {
		panic("RoomSweeper cannot be nil for RoomSweepHandler")
	}
	return &RoomSweepHandler{sweeper: sweeper, defaultIdleFor: defaultIdleFor}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *RoomSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	currentRetry, _ := asynq.GetRetryCount(ctx)
	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"retry":     currentRetry,
	})

	var payload tasks.RoomSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logCtx.WithError(err).Error("Failed to unmarshal task payload")
			return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	idleFor := payload.IdleFor
	if idleFor <= 0 {
		idleFor = h.defaultIdleFor
	}

	swept, err := h.sweeper.SweepIdleRooms(ctx, idleFor)
	if err != nil {
		logCtx.WithError(err).Error("Idle room sweep failed")
		return fmt.Errorf("sweep idle rooms: %w", err)
	}
	logCtx.WithFields(logrus.Fields{"swept": swept, "idle_for": idleFor}).Info("Room sweep task processed successfully")
	return nil
}
