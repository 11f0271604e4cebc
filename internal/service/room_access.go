package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"party-game/internal/domain"
	"party-game/internal/repository"
)

// Notifier 接收已提交的房间事件（实时广播器实现此接口）。
// 实现必须是非阻塞的：它在房间临界区内被调用。
type Notifier interface {
	NotifyRoom(event domain.RoomEvent)
}

// NotifierRelay 允许在服务创建之后再接入广播器，避免 Hub 与服务之间的构造循环。
type NotifierRelay struct {
	mu     sync.RWMutex
	target Notifier
}

func (r *NotifierRelay) Set(n Notifier) {
	r.mu.Lock()
	r.target = n
	r.mu.Unlock()
}

func (r *NotifierRelay) NotifyRoom(event domain.RoomEvent) {
	r.mu.RLock()
	n := r.target
	r.mu.RUnlock()
	if n != nil {
		n.NotifyRoom(event)
	}
}

// Options 是房间引擎的可调参数。
type Options struct {
	RotationDelay time.Duration // 提交答案到自动轮换之间的展示窗口
	StoreTimeout  time.Duration // 单次存储调用的超时
	LockTimeout   time.Duration // 等待房间锁的上限
}

func (o Options) withDefaults() Options {
	if o.RotationDelay <= 0 {
		o.RotationDelay = 20 * time.Second
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 3 * time.Second
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = 5 * time.Second
	}
	return o
}

// RoomAccess 是三个房间服务共享的读写原语：按房间串行化，写入后读回再广播。
type RoomAccess struct {
	rooms    repository.RoomRepository
	games    repository.GameRepository
	gate     *RoomGate
	notifier *NotifierRelay
	opts     Options
	now      func() time.Time
}

// NewRoomAccess 创建共享的房间访问层。RoomService / TurnService / VotingService 必须共用同一个实例，
// 否则各自的房间锁互不可见。
func NewRoomAccess(rooms repository.RoomRepository, games repository.GameRepository, notifier *NotifierRelay, opts Options) *RoomAccess {
	if rooms == nil || games == nil {
		panic("RoomRepository and GameRepository must be non-nil")
	}
	if notifier == nil {
		notifier = &NotifierRelay{}
	}
	opts = opts.withDefaults()
	return &RoomAccess{
		rooms:    rooms,
		games:    games,
		gate:     NewRoomGate(opts.LockTimeout),
		notifier: notifier,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// withRoom 在房间临界区内执行 fn
func (a *RoomAccess) withRoom(ctx context.Context, roomID string, fn func() error) error {
	return a.gate.Do(ctx, roomID, fn)
}

// load 读取房间，带存储超时
func (a *RoomAccess) load(ctx context.Context, roomID string) (*domain.Room, error) {
	sctx, cancel := context.WithTimeout(ctx, a.opts.StoreTimeout)
	defer cancel()
	room, err := a.rooms.FindByID(sctx, roomID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrRoomNotFound
		}
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to load room from store")
		return nil, ErrInternalServer
	}
	return room, nil
}

// save 写入房间后立即读回，保证广播的一定是已提交的状态
func (a *RoomAccess) save(ctx context.Context, room *domain.Room) (*domain.Room, error) {
	logCtx := logrus.WithField("room_id", room.ID)
	room.UpdatedAt = a.now()
	sctx, cancel := context.WithTimeout(ctx, a.opts.StoreTimeout)
	defer cancel()
	if err := a.rooms.Save(sctx, room); err != nil {
		logCtx.WithError(err).Error("Failed to save room to store")
		return nil, ErrInternalServer
	}
	return a.load(ctx, room.ID)
}

// mutateLocked 执行 读取-修改-写回-读回。必须在 withRoom 内调用。
// fn 返回 false 表示无需写入，此时返回当前状态。
func (a *RoomAccess) mutateLocked(ctx context.Context, roomID string, fn func(room *domain.Room) (bool, error)) (*domain.Room, bool, error) {
	room, err := a.load(ctx, roomID)
	if err != nil {
		return nil, false, err
	}
	changed, err := fn(room)
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return room, false, nil
	}
	saved, err := a.save(ctx, room)
	if err != nil {
		return nil, false, err
	}
	return saved, true, nil
}

func (a *RoomAccess) emit(eventType domain.EventType, room *domain.Room, userID string, payload interface{}) {
	a.notifier.NotifyRoom(domain.RoomEvent{
		Type:    eventType,
		RoomID:  room.ID,
		UserID:  userID,
		Room:    room,
		Payload: payload,
	})
}

// findGame 读取题库条目
func (a *RoomAccess) findGame(ctx context.Context, gameID string) (*domain.Game, error) {
	sctx, cancel := context.WithTimeout(ctx, a.opts.StoreTimeout)
	defer cancel()
	game, err := a.games.FindByID(sctx, gameID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrGameNotFound
		}
		logrus.WithField("game_id", gameID).WithError(err).Error("Failed to load game from catalog")
		return nil, ErrInternalServer
	}
	return game, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
