package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"party-game/internal/domain"
	"party-game/internal/infra/persistence/memory"
	"party-game/internal/repository"
	"party-game/internal/repository/mocks"
	"party-game/internal/service"
)

func TestRoomService_CreateRoom(t *testing.T) {
	// Arrange
	e := newEngine(t, time.Minute)
	ctx := context.Background()

	// Act
	room, err := e.rooms.CreateRoom(ctx, service.CreateRoomInput{HostID: "host", Username: "Hosty", GameID: "trivia"})

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, room.ID)
	assert.Len(t, room.Code, domain.CodeLength)
	assert.Equal(t, strings.ToUpper(room.Code), room.Code)
	assert.Equal(t, domain.RoomStatusPending, room.Status)
	assert.Equal(t, 4, room.MaxPlayers, "未指定时使用游戏默认人数")
	assert.Equal(t, "Trivia", room.GameName)
	assert.Equal(t, "host", room.HostID)
	require.Len(t, room.Players, 1)
	assert.True(t, room.Players[0].IsHost)
	assert.True(t, room.Players[0].IsActive)
	assert.Equal(t, 0, room.Round)
	assert.Empty(t, e.events.types(room.ID), "创建房间不广播")
}

func TestRoomService_CreateRoom_Validation(t *testing.T) {
	e := newEngine(t, time.Minute)
	ctx := context.Background()

	tests := []struct {
		name    string
		in      service.CreateRoomInput
		wantErr error
	}{
		{name: "人数过少", in: service.CreateRoomInput{HostID: "h", GameID: "trivia", MaxPlayers: 1}, wantErr: service.ErrInvalidMaxPlayers},
		{name: "人数过多", in: service.CreateRoomInput{HostID: "h", GameID: "trivia", MaxPlayers: 21}, wantErr: service.ErrInvalidMaxPlayers},
		{name: "游戏不存在", in: service.CreateRoomInput{HostID: "h", GameID: "nope"}, wantErr: service.ErrGameNotFound},
		{name: "缺少房主", in: service.CreateRoomInput{GameID: "trivia"}, wantErr: service.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.rooms.CreateRoom(ctx, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRoomService_CreateRoom_CodesAreUniqueAmongOpenRooms(t *testing.T) {
	e := newEngine(t, time.Minute)
	ctx := context.Background()
	seen := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			room, err := e.rooms.CreateRoom(ctx, service.CreateRoomInput{HostID: "h", GameID: "trivia"})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			assert.False(t, seen[room.Code], "邀请码 %s 重复", room.Code)
			seen[room.Code] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 30)
}

func TestRoomService_CreateRoom_StoreErrorDuringCodeCheck(t *testing.T) {
	// Arrange: 邀请码查询失败时返回内部错误
	mockRooms := new(mocks.RoomRepository)
	access := service.NewRoomAccess(mockRooms, memory.NewGameRepository(testGame()), nil, service.Options{})
	rooms := service.NewRoomService(access)
	mockRooms.On("IsOpenCodeTaken", mock.Anything, mock.AnythingOfType("string")).Return(false, errors.New("db down")).Once()

	// Act
	_, err := rooms.CreateRoom(context.Background(), service.CreateRoomInput{HostID: "h", GameID: "trivia"})

	// Assert
	assert.ErrorIs(t, err, service.ErrInternalServer)
	mockRooms.AssertExpectations(t)
	mockRooms.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestRoomService_JoinRoomByCode(t *testing.T) {
	e := newEngine(t, time.Minute)
	ctx := context.Background()
	room := e.createRoom(t, 4, "host")

	// 邀请码大小写不敏感
	joined, autoStart, err := e.rooms.JoinRoomByCode(ctx, strings.ToLower(room.Code), service.JoinInput{UserID: "u2", Username: "bob"})

	require.NoError(t, err)
	assert.False(t, autoStart)
	require.Len(t, joined.Players, 2)
	assert.Equal(t, "u2", joined.Players[1].UserID)
	assert.False(t, joined.Players[1].IsHost)
	assert.Equal(t, []domain.EventType{domain.EventPlayerJoined}, e.events.types(room.ID))
	ev := e.events.last(room.ID)
	assert.Equal(t, "u2", ev.UserID)
	assert.Equal(t, domain.PlayerPayload{UserID: "u2", HostID: "host"}, ev.Payload)
}

func TestRoomService_JoinRoomByCode_Idempotent(t *testing.T) {
	e := newEngine(t, time.Minute)
	ctx := context.Background()
	room := e.createRoom(t, 4, "host", "u2")
	e.events.reset()

	again, _, err := e.rooms.JoinRoomByCode(ctx, room.Code, service.JoinInput{UserID: "u2"})

	require.NoError(t, err)
	assert.Len(t, again.Players, 2, "重复加入不追加记录")
	assert.Empty(t, e.events.types(room.ID), "重复加入不广播")
}

func TestRoomService_JoinRoomByCode_Errors(t *testing.T) {
	e := newEngine(t, time.Minute)
	ctx := context.Background()
	full := e.createRoom(t, 2, "host", "u2")
	closed := e.createRoom(t, 4, "solo")
	_, err := e.rooms.LeaveRoom(ctx, closed.ID, "solo")
	require.NoError(t, err)

	tests := []struct {
		name    string
		code    string
		wantErr error
	}{
		{name: "格式错误", code: "AB", wantErr: service.ErrInvalidRoomCode},
		{name: "非法字符", code: "ABC-12", wantErr: service.ErrInvalidRoomCode},
		{name: "不存在", code: "ZZZZZZ", wantErr: service.ErrRoomNotFound},
		{name: "已满", code: full.Code, wantErr: service.ErrRoomFull},
		{name: "已终止", code: closed.Code, wantErr: service.ErrRoomNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := e.rooms.JoinRoomByCode(ctx, tt.code, service.JoinInput{UserID: "newcomer"})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRoomService_JoinRoomByCode_ReportsAutoStartWhenFull(t *testing.T) {
	e := newEngine(t, time.Minute)
	room := e.createRoom(t, 3, "host", "u2")

	_, autoStart, err := e.rooms.JoinRoomByCode(context.Background(), room.Code, service.JoinInput{UserID: "u3"})

	require.NoError(t, err)
	assert.True(t, autoStart)
}

func TestRoomService_ConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	// Arrange
	e := newEngine(t, time.Minute)
	ctx := context.Background()
	room := e.createRoom(t, 5, "host")

	// Act: 20 个用户同时加入一个只剩 4 个位置的房间
	var wg sync.WaitGroup
	var mu sync.Mutex
	joined, full := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := e.rooms.JoinRoomByCode(ctx, room.Code, service.JoinInput{UserID: string(rune('a' + i))})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				joined++
			case errors.Is(err, service.ErrRoomFull):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	// Assert
	assert.Equal(t, 4, joined)
	assert.Equal(t, 16, full)
	final, err := e.rooms.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, final.ActivePlayerCount())
	assert.Len(t, final.Players, 5)
}

func TestRoomService_RejoinKeepsPosition(t *testing.T) {
	e := newEngine(t, time.Minute)
	ctx := context.Background()
	room := e.createRoom(t, 4, "host", "u2", "u3")

	_, err := e.rooms.LeaveRoom(ctx, room.ID, "u2")
	require.NoError(t, err)
	rejoined, _, err := e.rooms.JoinRoomByCode(ctx, room.Code, service.JoinInput{UserID: "u2"})

	require.NoError(t, err)
	require.Len(t, rejoined.Players, 3)
	assert.Equal(t, "u2", rejoined.Players[1].UserID)
	assert.True(t, rejoined.Players[1].IsActive)
	assert.NotNil(t, rejoined.Players[1].RejoinedAt)
}

func TestRoomService_LeaveRoom_TransfersHost(t *testing.T) {
	e := newEngine(t, time.Minute)
	ctx := context.Background()
	room := e.createRoom(t, 4, "host", "u2", "u3")
	e.events.reset()

	left, err := e.rooms.LeaveRoom(ctx, room.ID, "host")

	require.NoError(t, err)
	assert.Equal(t, "u2", left.HostID)
	assert.True(t, left.Players[1].IsHost)
	assert.Equal(t, domain.RoomStatusPending, left.Status)
	assert.Equal(t, []domain.EventType{domain.EventPlayerLeft}, e.events.types(room.ID))
	assert.Equal(t, domain.PlayerPayload{UserID: "host", HostID: "u2"}, e.events.last(room.ID).Payload)
}

func TestRoomService_LeaveRoom_LastPlayerTerminates(t *testing.T) {
	e := newEngine(t, time.Minute)
	ctx := context.Background()
	room := e.createRoom(t, 4, "host", "u2")

	_, err := e.rooms.LeaveRoom(ctx, room.ID, "u2")
	require.NoError(t, err)
	left, err := e.rooms.LeaveRoom(ctx, room.ID, "host")
	require.NoError(t, err)

	assert.Equal(t, domain.RoomStatusTerminated, left.Status)
	types := e.events.types(room.ID)
	assert.Equal(t, domain.EventRoomState, types[len(types)-1])

	// 终止后邀请码释放
	_, err = e.rooms.ValidateRoomCode(ctx, room.Code)
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
}

func TestRoomService_LeaveRoom_Errors(t *testing.T) {
	e := newEngine(t, time.Minute)
	ctx := context.Background()
	room := e.createRoom(t, 4, "host", "u2")

	_, err := e.rooms.LeaveRoom(ctx, room.ID, "stranger")
	assert.ErrorIs(t, err, service.ErrPlayerNotInRoom)

	_, err = e.rooms.LeaveRoom(ctx, "missing", "host")
	assert.ErrorIs(t, err, service.ErrRoomNotFound)

	// 已离开的玩家再次离开不报错也不广播
	_, err = e.rooms.LeaveRoom(ctx, room.ID, "u2")
	require.NoError(t, err)
	e.events.reset()
	_, err = e.rooms.LeaveRoom(ctx, room.ID, "u2")
	assert.NoError(t, err)
	assert.Empty(t, e.events.types(room.ID))
}

func TestRoomService_LeaveRoom_RemovesVote(t *testing.T) {
	e := newEngine(t, time.Minute)
	ctx := context.Background()
	room := e.startedRoom(t, "a", "b", "c", "d")
	voter := voters(room)[0]
	_, err := e.votes.SubmitVote(ctx, room.ID, voter, room.Questions[0].ID)
	require.NoError(t, err)

	left, err := e.rooms.LeaveRoom(ctx, room.ID, voter)

	require.NoError(t, err)
	assert.Equal(t, 0, left.TotalVotes())
}

func TestRoomService_ValidateRoomCode(t *testing.T) {
	e := newEngine(t, time.Minute)
	room := e.createRoom(t, 4, "host", "u2")

	summary, err := e.rooms.ValidateRoomCode(context.Background(), room.Code)

	require.NoError(t, err)
	assert.Equal(t, room.ID, summary.RoomID)
	assert.Equal(t, 2, summary.ActivePlayers)
	assert.Equal(t, 4, summary.MaxPlayers)
	assert.Equal(t, domain.RoomStatusPending, summary.Status)
}

func TestRoomService_EnsureMember(t *testing.T) {
	e := newEngine(t, time.Minute)
	ctx := context.Background()
	room := e.createRoom(t, 4, "host", "u2")
	_, err := e.rooms.LeaveRoom(ctx, room.ID, "u2")
	require.NoError(t, err)

	_, err = e.rooms.EnsureMember(ctx, room.ID, "host")
	assert.NoError(t, err)
	_, err = e.rooms.EnsureMember(ctx, room.ID, "u2")
	assert.NoError(t, err, "历史成员仍可查看房间")
	_, err = e.rooms.EnsureMember(ctx, room.ID, "stranger")
	assert.ErrorIs(t, err, service.ErrNotARoomMember)
}

func TestRoomService_ListUserRooms(t *testing.T) {
	e := newEngine(t, time.Minute)
	ctx := context.Background()
	first := e.createRoom(t, 4, "host", "me")
	second := e.createRoom(t, 4, "me")
	e.createRoom(t, 4, "other")
	_, err := e.rooms.LeaveRoom(ctx, first.ID, "me")
	require.NoError(t, err)

	rooms, err := e.rooms.ListUserRooms(ctx, "me")

	require.NoError(t, err)
	require.Len(t, rooms, 2)
	// 最近更新的在前
	assert.Equal(t, first.ID, rooms[0].Room.ID)
	assert.False(t, rooms[0].UserIsActive)
	assert.Equal(t, second.ID, rooms[1].Room.ID)
	assert.True(t, rooms[1].UserIsHost)
}

func TestRoomService_DeleteRoom(t *testing.T) {
	e := newEngine(t, time.Minute)
	ctx := context.Background()
	room := e.createRoom(t, 4, "host", "u2")

	_, err := e.rooms.DeleteRoom(ctx, room.ID, "u2")
	assert.ErrorIs(t, err, service.ErrNotHost)

	deleted, err := e.rooms.DeleteRoom(ctx, room.ID, "host")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusTerminated, deleted.Status)

	_, _, err = e.rooms.JoinRoomByCode(ctx, room.Code, service.JoinInput{UserID: "u3"})
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
}

func TestRoomService_SweepIdleRooms(t *testing.T) {
	e := newEngine(t, time.Minute)
	ctx := context.Background()
	idle := e.createRoom(t, 4, "a")
	fresh := e.createRoom(t, 4, "b")

	// 把 idle 的更新时间改到很久以前
	stale, err := e.store.FindByID(ctx, idle.ID)
	require.NoError(t, err)
	stale.UpdatedAt = time.Now().Add(-3 * time.Hour)
	require.NoError(t, e.store.Save(ctx, stale))

	n, err := e.rooms.SweepIdleRooms(ctx, time.Hour)

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := e.rooms.GetRoom(ctx, idle.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusTerminated, got.Status)
	got, err = e.rooms.GetRoom(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusPending, got.Status)
}

func TestRoomService_StoreFailureSurfacesInternal(t *testing.T) {
	mockRooms := new(mocks.RoomRepository)
	access := service.NewRoomAccess(mockRooms, memory.NewGameRepository(testGame()), nil, service.Options{})
	rooms := service.NewRoomService(access)
	mockRooms.On("FindByID", mock.Anything, "r1").Return(nil, errors.New("connection reset")).Once()
	mockRooms.On("FindByID", mock.Anything, "r2").Return(nil, repository.ErrRoomNotFound).Once()

	_, err := rooms.GetRoom(context.Background(), "r1")
	assert.ErrorIs(t, err, service.ErrInternalServer)
	_, err = rooms.GetRoom(context.Background(), "r2")
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
	mockRooms.AssertExpectations(t)
}

func TestRoomService_LeaveRoom_TurnHolderHandsOff(t *testing.T) {
	// Arrange
	e := newEngine(t, time.Minute)
	ctx := context.Background()
	room := e.startedRoom(t, "a", "b", "c", "d")
	holder := room.CurrentPlayerTurn
	want := room.NextTurnHolder()
	voter := voters(room)[0]
	_, err := e.votes.SubmitVote(ctx, room.ID, voter, room.Questions[0].ID)
	require.NoError(t, err)
	_, err = e.votes.SubmitAnswer(ctx, room.ID, holder, "my answer", "")
	require.NoError(t, err)
	require.True(t, e.turns.RotationPending(room.ID))
	e.events.reset()

	// Act
	left, err := e.rooms.LeaveRoom(ctx, room.ID, holder)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, want, left.CurrentPlayerTurn)
	assert.True(t, left.IsActivePlayer(left.CurrentPlayerTurn))
	assert.Equal(t, room.Round, left.Round, "交接不消耗轮次")
	assert.Equal(t, room.Questions, left.Questions)
	assert.Empty(t, left.Answers)
	assert.Equal(t, 0, left.TotalVotes())
	assert.False(t, e.turns.RotationPending(room.ID), "旧答题者的轮换被取消")
	assert.Equal(t, []domain.EventType{domain.EventPlayerLeft, domain.EventPlayerTurnChanged}, e.events.types(room.ID))
	payload := e.events.last(room.ID).Payload.(domain.TurnPayload)
	assert.Equal(t, want, payload.CurrentPlayerTurn)

	// 新答题者可以作答
	_, err = e.votes.SubmitAnswer(ctx, room.ID, want, "next answer", "")
	assert.NoError(t, err)
}

func TestRoomService_LeaveRoom_NonHolderKeepsTurn(t *testing.T) {
	e := newEngine(t, time.Minute)
	ctx := context.Background()
	room := e.startedRoom(t, "a", "b", "c")
	leaver := voters(room)[0]
	e.events.reset()

	left, err := e.rooms.LeaveRoom(ctx, room.ID, leaver)

	require.NoError(t, err)
	assert.Equal(t, room.CurrentPlayerTurn, left.CurrentPlayerTurn)
	assert.Equal(t, []domain.EventType{domain.EventPlayerLeft}, e.events.types(room.ID))
}

func TestRoomService_Subscribe(t *testing.T) {
	e := newEngine(t, time.Minute)
	ctx := context.Background()
	room := e.createRoom(t, 4, "host", "u2")

	var attached *domain.Room
	got, err := e.rooms.Subscribe(ctx, room.ID, "u2", func(r *domain.Room) { attached = r })
	require.NoError(t, err)
	require.NotNil(t, attached)
	assert.Equal(t, got, attached)
	assert.Equal(t, 2, attached.ActivePlayerCount())

	called := false
	_, err = e.rooms.Subscribe(ctx, room.ID, "stranger", func(*domain.Room) { called = true })
	assert.ErrorIs(t, err, service.ErrNotARoomMember)
	assert.False(t, called)

	_, err = e.rooms.Subscribe(ctx, "missing", "host", func(*domain.Room) { called = true })
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
	assert.False(t, called)
}
