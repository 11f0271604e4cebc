package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RoomGate 为每个房间提供互斥的临界区，以及一个可取消的延迟任务槽位。
// 同一房间的所有读-改-写都必须在 Do 内执行；不同房间互不阻塞。
type RoomGate struct {
	mu          sync.Mutex
	rooms       map[string]*gateEntry
	lockTimeout time.Duration
	retryDelay  time.Duration // 延迟任务拿不到锁时重新排队的间隔
}

const defaultRetryDelay = 250 * time.Millisecond

type gateEntry struct {
	sem   chan struct{} // 容量为 1，持有即拥有该房间
	refs  int
	timer *time.Timer
	seq   uint64 // 每次 Schedule/Cancel 递增，过期的回调据此放弃执行
}

// NewRoomGate 创建 RoomGate。lockTimeout 是等待房间锁的上限。
func NewRoomGate(lockTimeout time.Duration) *RoomGate {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &RoomGate{
		rooms:       make(map[string]*gateEntry),
		lockTimeout: lockTimeout,
		retryDelay:  defaultRetryDelay,
	}
}

func (g *RoomGate) entryLocked(roomID string) *gateEntry {
	e, ok := g.rooms[roomID]
	if !ok {
		e = &gateEntry{sem: make(chan struct{}, 1)}
		g.rooms[roomID] = e
	}
	return e
}

func (g *RoomGate) ref(roomID string) *gateEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.entryLocked(roomID)
	e.refs++
	return e
}

func (g *RoomGate) unref(roomID string, e *gateEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e.refs--
	g.releaseLocked(roomID, e)
}

// releaseLocked 在没有持有者且没有待执行任务时回收条目
func (g *RoomGate) releaseLocked(roomID string, e *gateEntry) {
	if e.refs == 0 && e.timer == nil && g.rooms[roomID] == e {
		delete(g.rooms, roomID)
	}
}

// Do 获取房间锁后执行 fn。等待超过 lockTimeout 或 ctx 结束时返回 ErrRoomBusy / ctx 错误。
// fn 内不得再次对同一房间调用 Do。
func (g *RoomGate) Do(ctx context.Context, roomID string, fn func() error) error {
	e := g.ref(roomID)
	defer g.unref(roomID, e)

	wait := time.NewTimer(g.lockTimeout)
	defer wait.Stop()
	select {
	case e.sem <- struct{}{}:
	case <-wait.C:
		return ErrRoomBusy
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.sem }()
	return fn()
}

// Schedule 为房间安排一个延迟任务，取代之前尚未执行的任务。
// 调用方必须已经持有该房间（在 Do 内调用），这样取代与下一次变更天然有序。
// 任务触发时会重新获取房间锁，仅当它仍是最新安排的任务时才执行 fire。
func (g *RoomGate) Schedule(roomID string, delay time.Duration, fire func(ctx context.Context)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.entryLocked(roomID)
	if e.timer != nil {
		e.timer.Stop()
	}
	e.seq++
	seq := e.seq
	e.timer = time.AfterFunc(delay, func() { g.fire(roomID, seq, fire) })
}

// Cancel 取消房间上待执行的任务（如果有）。
func (g *RoomGate) Cancel(roomID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.rooms[roomID]
	if !ok {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.seq++
	g.releaseLocked(roomID, e)
}

// Pending 报告房间当前是否有待执行的任务。
func (g *RoomGate) Pending(roomID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.rooms[roomID]
	return ok && e.timer != nil
}

// claim 检查 seq 是否仍是最新任务，是则清空槽位并返回 true
func (g *RoomGate) claim(roomID string, seq uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.rooms[roomID]
	if !ok || e.seq != seq || e.timer == nil {
		return false
	}
	e.timer = nil
	g.releaseLocked(roomID, e)
	return true
}

func (g *RoomGate) fire(roomID string, seq uint64, fn func(ctx context.Context)) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "operation": "gateFire"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*g.lockTimeout)
	defer cancel()

	err := g.Do(ctx, roomID, func() error {
		if !g.claim(roomID, seq) {
			logCtx.Debug("Scheduled task superseded, skipping")
			return nil
		}
		fn(ctx)
		return nil
	})
	if err != nil {
		// 拿不到锁时保留槽位稍后重试，期间的 Cancel/Schedule 仍然可以取代它
		if g.rearm(roomID, seq, fn) {
			logCtx.WithError(err).Warn("Scheduled task could not acquire room, retrying")
			return
		}
		logCtx.WithError(err).Debug("Scheduled task superseded while waiting for room")
	}
}

// rearm 在 seq 仍是最新任务时重新安排一次 fire，返回是否已重新安排
func (g *RoomGate) rearm(roomID string, seq uint64, fn func(ctx context.Context)) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.rooms[roomID]
	if !ok || e.seq != seq || e.timer == nil {
		return false
	}
	e.timer = time.AfterFunc(g.retryDelay, func() { g.fire(roomID, seq, fn) })
	return true
}
