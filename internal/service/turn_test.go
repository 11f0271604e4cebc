package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"party-game/internal/domain"
	"party-game/internal/service"
)

func TestTurnService_StartRoom(t *testing.T) {
	// Arrange
	e := newEngine(t, time.Minute)
	ctx := context.Background()
	room := e.createRoom(t, 4, "host", "u2", "u3")
	e.events.reset()

	// Act
	started, err := e.turns.StartRoom(ctx, room.ID, "host")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusActive, started.Status)
	assert.Equal(t, 1, started.Round)
	assert.Contains(t, started.ActivePlayerIDs(), started.CurrentPlayerTurn)
	require.Len(t, started.Questions, domain.QuestionsPerTurn)
	ids := map[string]bool{}
	for _, q := range started.Questions {
		ids[q.ID] = true
	}
	assert.Len(t, ids, domain.QuestionsPerTurn, "同一回合的题目不重复")
	assert.Empty(t, started.Votes)
	assert.Empty(t, started.Answers)

	assert.Equal(t, []domain.EventType{domain.EventGameStarted}, e.events.types(room.ID))
	assert.Equal(t, domain.TurnPayload{CurrentPlayerTurn: started.CurrentPlayerTurn, Round: 1}, e.events.last(room.ID).Payload)
}

func TestTurnService_StartRoom_Errors(t *testing.T) {
	e := newEngine(t, time.Minute)
	ctx := context.Background()

	alone := e.createRoom(t, 4, "host")
	_, err := e.turns.StartRoom(ctx, alone.ID, "host")
	assert.ErrorIs(t, err, service.ErrInsufficientPlayers)

	room := e.createRoom(t, 4, "host", "u2")
	_, err = e.turns.StartRoom(ctx, room.ID, "u2")
	assert.ErrorIs(t, err, service.ErrNotHost)

	_, err = e.turns.StartRoom(ctx, room.ID, "host")
	require.NoError(t, err)
	_, err = e.turns.StartRoom(ctx, room.ID, "host")
	assert.ErrorIs(t, err, service.ErrRoomAlreadyStarted)

	deleted := e.createRoom(t, 4, "host", "u2")
	_, err = e.rooms.DeleteRoom(ctx, deleted.ID, "host")
	require.NoError(t, err)
	_, err = e.turns.StartRoom(ctx, deleted.ID, "host")
	assert.ErrorIs(t, err, service.ErrRoomClosed)

	_, err = e.turns.StartRoom(ctx, "missing", "host")
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
}

func TestTurnService_AutoStartRoom(t *testing.T) {
	e := newEngine(t, time.Minute)
	ctx := context.Background()

	notFull := e.createRoom(t, 4, "host", "u2")
	e.events.reset()
	room, started, err := e.turns.AutoStartRoom(ctx, notFull.ID)
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, domain.RoomStatusPending, room.Status)
	assert.Empty(t, e.events.types(notFull.ID))

	full := e.createRoom(t, 3, "host", "u2", "u3")
	room, started, err = e.turns.AutoStartRoom(ctx, full.ID)
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, domain.RoomStatusActive, room.Status)

	// 已经开始的房间不会被再次开始
	room, started, err = e.turns.AutoStartRoom(ctx, full.ID)
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, 1, room.Round)
}

func TestTurnService_RotatePlayerTurn(t *testing.T) {
	e := newEngine(t, time.Minute)
	ctx := context.Background()
	room := e.startedRoom(t, "a", "b", "c")
	voter := voters(room)[0]
	_, err := e.votes.SubmitVote(ctx, room.ID, voter, room.Questions[0].ID)
	require.NoError(t, err)

	rotated, ended, err := e.turns.RotatePlayerTurn(ctx, room.ID)

	require.NoError(t, err)
	assert.False(t, ended)
	assert.Equal(t, 2, rotated.Round)
	assert.Equal(t, room.NextTurnHolder(), rotated.CurrentPlayerTurn)
	assert.Empty(t, rotated.Votes, "新回合清空投票")
	assert.Empty(t, rotated.SelectedQuestionID)
	assert.Len(t, rotated.Questions, domain.QuestionsPerTurn)
	assert.Equal(t, domain.EventTurnRotated, e.events.last(room.ID).Type)
}

func TestTurnService_CompletesAfterMaxRounds(t *testing.T) {
	e := newEngine(t, time.Minute)
	ctx := context.Background()
	room := e.startedRoom(t, "a", "b")

	for round := 2; round <= domain.MaxRounds; round++ {
		rotated, ended, err := e.turns.RotatePlayerTurn(ctx, room.ID)
		require.NoError(t, err)
		require.False(t, ended)
		require.Equal(t, round, rotated.Round)
	}

	final, ended, err := e.turns.RotatePlayerTurn(ctx, room.ID)
	require.NoError(t, err)
	assert.True(t, ended)
	assert.Equal(t, domain.RoomStatusCompleted, final.Status)
	assert.Equal(t, domain.MaxRounds, final.Round, "轮次不会超过上限")
	ev := e.events.last(room.ID)
	assert.Equal(t, domain.EventGameEnded, ev.Type)
	assert.True(t, ev.Payload.(domain.TurnPayload).GameEnded)

	_, _, err = e.turns.RotatePlayerTurn(ctx, room.ID)
	assert.ErrorIs(t, err, service.ErrRoomNotActive)

	// 完成后邀请码释放，不能再加入
	_, _, err = e.rooms.JoinRoomByCode(ctx, room.Code, service.JoinInput{UserID: "late"})
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
}

func TestTurnService_RotationSkipsPlayersWhoLeft(t *testing.T) {
	e := newEngine(t, time.Minute)
	ctx := context.Background()
	room := e.startedRoom(t, "a", "b", "c", "d")
	next := room.NextTurnHolder()
	_, err := e.rooms.LeaveRoom(ctx, room.ID, next)
	require.NoError(t, err)

	rotated, _, err := e.turns.RotatePlayerTurn(ctx, room.ID)

	require.NoError(t, err)
	assert.NotEqual(t, next, rotated.CurrentPlayerTurn)
	assert.True(t, rotated.IsActivePlayer(rotated.CurrentPlayerTurn))
}

func TestTurnService_NextTurn(t *testing.T) {
	e := newEngine(t, time.Minute)
	ctx := context.Background()
	room := e.startedRoom(t, "a", "b", "c")
	outsider := ""
	for _, id := range voters(room) {
		if id != room.HostID {
			outsider = id
			break
		}
	}
	require.NotEmpty(t, outsider)

	_, _, err := e.turns.NextTurn(ctx, room.ID, outsider)
	assert.ErrorIs(t, err, service.ErrWrongTurn)

	rotated, _, err := e.turns.NextTurn(ctx, room.ID, room.CurrentPlayerTurn)
	require.NoError(t, err)
	assert.Equal(t, 2, rotated.Round)

	rotated, _, err = e.turns.NextTurn(ctx, room.ID, room.HostID)
	require.NoError(t, err)
	assert.Equal(t, 3, rotated.Round)
}

func TestTurnService_SetPlayerTurn(t *testing.T) {
	e := newEngine(t, time.Minute)
	ctx := context.Background()
	room := e.startedRoom(t, "a", "b", "c", "d")
	target := voters(room)[0]
	_, err := e.votes.SubmitVote(ctx, room.ID, target, room.Questions[0].ID)
	require.NoError(t, err)

	updated, err := e.turns.SetPlayerTurn(ctx, room.ID, "a", target)

	require.NoError(t, err)
	assert.Equal(t, target, updated.CurrentPlayerTurn)
	assert.Empty(t, updated.VotedFor(target), "新答题者的投票被移除")
	assert.Equal(t, 1, updated.Round, "指定答题者不改变轮次")
	assert.Equal(t, domain.EventPlayerTurnChanged, e.events.last(room.ID).Type)
}

func TestTurnService_SetPlayerTurn_Errors(t *testing.T) {
	e := newEngine(t, time.Minute)
	ctx := context.Background()

	pending := e.createRoom(t, 4, "a", "b")
	_, err := e.turns.SetPlayerTurn(ctx, pending.ID, "a", "b")
	assert.ErrorIs(t, err, service.ErrRoomNotActive)

	room := e.startedRoom(t, "a", "b", "c", "d")
	_, err = e.rooms.LeaveRoom(ctx, room.ID, "d")
	require.NoError(t, err)

	tests := []struct {
		name    string
		caller  string
		target  string
		wantErr error
	}{
		{name: "非房主", caller: "b", target: "c", wantErr: service.ErrNotHost},
		{name: "不在房间", caller: "a", target: "ghost", wantErr: service.ErrPlayerNotInRoom},
		{name: "已离开", caller: "a", target: "d", wantErr: service.ErrPlayerNotActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.turns.SetPlayerTurn(ctx, room.ID, tt.caller, tt.target)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTurnService_SetQuestion(t *testing.T) {
	e := newEngine(t, time.Minute)
	ctx := context.Background()
	room := e.startedRoom(t, "a", "b", "c")
	qid := room.Questions[1].ID

	_, err := e.turns.SetQuestion(ctx, room.ID, room.CurrentPlayerTurn, "not-offered")
	assert.ErrorIs(t, err, service.ErrQuestionNotOffered)

	for _, id := range voters(room) {
		if id != room.HostID {
			_, err = e.turns.SetQuestion(ctx, room.ID, id, qid)
			assert.ErrorIs(t, err, service.ErrWrongTurn)
		}
	}

	updated, err := e.turns.SetQuestion(ctx, room.ID, room.CurrentPlayerTurn, qid)
	require.NoError(t, err)
	assert.Equal(t, qid, updated.SelectedQuestionID)
	ev := e.events.last(room.ID)
	assert.Equal(t, domain.EventQuestionSet, ev.Type)
	assert.Equal(t, domain.QuestionPayload{QuestionID: qid}, ev.Payload)
}

func TestTurnService_AnswerTriggersDelayedRotation(t *testing.T) {
	// Arrange: 展示窗口缩短为 30ms
	e := newEngine(t, 30*time.Millisecond)
	ctx := context.Background()
	room := e.startedRoom(t, "a", "b", "c")

	// Act
	_, err := e.votes.SubmitAnswer(ctx, room.ID, room.CurrentPlayerTurn, "my answer", "")
	require.NoError(t, err)
	assert.True(t, e.turns.RotationPending(room.ID))

	// Assert
	assert.Eventually(t, func() bool {
		r, err := e.rooms.GetRoom(ctx, room.ID)
		return err == nil && r.Round == 2
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return !e.turns.RotationPending(room.ID) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.EventTurnRotated, e.events.last(room.ID).Type)
}

func TestTurnService_ResubmittedAnswerRotatesOnce(t *testing.T) {
	e := newEngine(t, 40*time.Millisecond)
	ctx := context.Background()
	room := e.startedRoom(t, "a", "b", "c")
	holder := room.CurrentPlayerTurn

	_, err := e.votes.SubmitAnswer(ctx, room.ID, holder, "first", "")
	require.NoError(t, err)
	time.Sleep(15 * time.Millisecond)
	_, err = e.votes.SubmitAnswer(ctx, room.ID, holder, "second", "")
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return !e.turns.RotationPending(room.ID) }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	final, err := e.rooms.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, final.Round, "被取代的轮换不应执行")
}

func TestTurnService_ManualChangesCancelPendingRotation(t *testing.T) {
	e := newEngine(t, 40*time.Millisecond)
	ctx := context.Background()

	t.Run("房主指定答题者", func(t *testing.T) {
		room := e.startedRoom(t, "a", "b", "c")
		_, err := e.votes.SubmitAnswer(ctx, room.ID, room.CurrentPlayerTurn, "answer", "")
		require.NoError(t, err)

		_, err = e.turns.SetPlayerTurn(ctx, room.ID, "a", voters(room)[0])
		require.NoError(t, err)

		assert.False(t, e.turns.RotationPending(room.ID))
		time.Sleep(80 * time.Millisecond)
		r, err := e.rooms.GetRoom(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, r.Round)
	})

	t.Run("手动进入下一回合", func(t *testing.T) {
		room := e.startedRoom(t, "a", "b", "c")
		_, err := e.votes.SubmitAnswer(ctx, room.ID, room.CurrentPlayerTurn, "answer", "")
		require.NoError(t, err)

		_, _, err = e.turns.NextTurn(ctx, room.ID, room.CurrentPlayerTurn)
		require.NoError(t, err)

		time.Sleep(80 * time.Millisecond)
		r, err := e.rooms.GetRoom(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, r.Round, "待执行的轮换已被取消")
	})

	t.Run("房间终止", func(t *testing.T) {
		room := e.startedRoom(t, "a", "b")
		_, err := e.votes.SubmitAnswer(ctx, room.ID, room.CurrentPlayerTurn, "answer", "")
		require.NoError(t, err)

		_, err = e.rooms.DeleteRoom(ctx, room.ID, "a")
		require.NoError(t, err)

		assert.False(t, e.turns.RotationPending(room.ID))
		time.Sleep(80 * time.Millisecond)
		r, err := e.rooms.GetRoom(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.RoomStatusTerminated, r.Status)
		assert.Equal(t, 1, r.Round)
	})
}

func TestTurnService_EventsFollowMutationOrder(t *testing.T) {
	e := newEngine(t, time.Minute)
	ctx := context.Background()
	room := e.createRoom(t, 4, "a", "b", "c")
	e.events.reset()

	started, err := e.turns.StartRoom(ctx, room.ID, "a")
	require.NoError(t, err)
	for _, id := range voters(started) {
		_, err := e.votes.SubmitVote(ctx, room.ID, id, started.Questions[0].ID)
		require.NoError(t, err)
	}
	_, _, err = e.turns.RotatePlayerTurn(ctx, room.ID)
	require.NoError(t, err)

	assert.Equal(t, []domain.EventType{
		domain.EventGameStarted,
		domain.EventVoteUpdate,
		domain.EventVoteUpdate,
		domain.EventQuestionSelected,
		domain.EventTurnRotated,
	}, e.events.types(room.ID))
}
