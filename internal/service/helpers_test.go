package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"party-game/internal/domain"
	"party-game/internal/infra/persistence/memory"
	"party-game/internal/service"
)

// recorder 记录所有广播出去的事件
type recorder struct {
	mu     sync.Mutex
	events []domain.RoomEvent
}

func (r *recorder) NotifyRoom(event domain.RoomEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) types(roomID string) []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.EventType
	for _, e := range r.events {
		if e.RoomID == roomID {
			out = append(out, e.Type)
		}
	}
	return out
}

func (r *recorder) last(roomID string) domain.RoomEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].RoomID == roomID {
			return r.events[i]
		}
	}
	return domain.RoomEvent{}
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// engine 是共用一个 RoomAccess 的三个房间服务
type engine struct {
	rooms  *service.RoomService
	turns  *service.TurnService
	votes  *service.VotingService
	store  *memory.RoomRepository
	events *recorder
}

func testGame() domain.Game {
	prompts := make([]domain.Prompt, 8)
	for i := range prompts {
		prompts[i] = domain.Prompt{ID: fmt.Sprintf("q%d", i+1), Text: fmt.Sprintf("prompt %d", i+1)}
	}
	return domain.Game{ID: "trivia", Name: "Trivia", Category: "casual", MaxPlayers: 4, Prompts: prompts}
}

func newEngine(t *testing.T, rotationDelay time.Duration) *engine {
	t.Helper()
	store := memory.NewRoomRepository()
	games := memory.NewGameRepository(testGame())
	rec := &recorder{}
	relay := &service.NotifierRelay{}
	relay.Set(rec)
	access := service.NewRoomAccess(store, games, relay, service.Options{
		RotationDelay: rotationDelay,
		StoreTimeout:  time.Second,
		LockTimeout:   2 * time.Second,
	})
	turns := service.NewTurnService(access)
	return &engine{
		rooms:  service.NewRoomService(access),
		turns:  turns,
		votes:  service.NewVotingService(access, turns),
		store:  store,
		events: rec,
	}
}

// createRoom 由 host 创建房间，并让 others 依次加入
func (e *engine) createRoom(t *testing.T, maxPlayers int, host string, others ...string) *domain.Room {
	t.Helper()
	ctx := context.Background()
	room, err := e.rooms.CreateRoom(ctx, service.CreateRoomInput{HostID: host, Username: host, GameID: "trivia", MaxPlayers: maxPlayers})
	require.NoError(t, err)
	for _, id := range others {
		room, _, err = e.rooms.JoinRoomByCode(ctx, room.Code, service.JoinInput{UserID: id, Username: id})
		require.NoError(t, err)
	}
	return room
}

// startedRoom 创建并开始一局游戏，返回开始后的房间
func (e *engine) startedRoom(t *testing.T, host string, others ...string) *domain.Room {
	t.Helper()
	room := e.createRoom(t, 10, host, others...)
	started, err := e.turns.StartRoom(context.Background(), room.ID, host)
	require.NoError(t, err)
	return started
}

// voters 返回除答题者外的活跃玩家
func voters(room *domain.Room) []string {
	var out []string
	for _, id := range room.ActivePlayerIDs() {
		if id != room.CurrentPlayerTurn {
			out = append(out, id)
		}
	}
	return out
}
