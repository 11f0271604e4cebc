package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestRoom(ids ...string) *Room {
	r := &Room{ID: "room-1", Code: "ABC234", MaxPlayers: 4, Status: RoomStatusPending}
	for i, id := range ids {
		r.Players = append(r.Players, Player{UserID: id, Username: id, IsActive: true, IsHost: i == 0, JoinedAt: t0})
	}
	if len(ids) > 0 {
		r.HostID = ids[0]
	}
	r.ResetTurn()
	return r
}

func TestRoom_AddPlayer(t *testing.T) {
	r := newTestRoom("host")

	assert.True(t, r.AddPlayer(Player{UserID: "u2", Username: "bob", IsHost: true}, t0))
	require.Len(t, r.Players, 2)
	assert.False(t, r.Players[1].IsHost, "新加入的玩家不能是房主")
	assert.True(t, r.Players[1].IsActive)

	// 已活跃的玩家再次加入不改变房间
	assert.False(t, r.AddPlayer(Player{UserID: "u2"}, t0.Add(time.Minute)))
	assert.Len(t, r.Players, 2)
}

func TestRoom_RejoinReactivatesInPlace(t *testing.T) {
	r := newTestRoom("host", "u2", "u3")
	require.True(t, r.RemovePlayer("u2", t0.Add(time.Minute)))
	require.NotNil(t, r.Players[1].LeftAt)

	later := t0.Add(2 * time.Minute)
	assert.True(t, r.AddPlayer(Player{UserID: "u2", Username: "bobby"}, later))

	// 重新加入不追加新记录，保持原有顺序
	require.Len(t, r.Players, 3)
	p := r.Players[1]
	assert.Equal(t, "u2", p.UserID)
	assert.True(t, p.IsActive)
	assert.Nil(t, p.LeftAt)
	require.NotNil(t, p.RejoinedAt)
	assert.Equal(t, later, *p.RejoinedAt)
	assert.Equal(t, "bobby", p.Username)
}

func TestRoom_RemovePlayer_TransfersHost(t *testing.T) {
	r := newTestRoom("host", "u2", "u3")

	assert.True(t, r.RemovePlayer("host", t0))

	assert.Equal(t, "u2", r.HostID)
	assert.True(t, r.Players[1].IsHost)
	assert.False(t, r.Players[0].IsHost)
	assert.Equal(t, RoomStatusPending, r.Status)

	hosts := 0
	for _, p := range r.Players {
		if p.IsHost {
			hosts++
		}
	}
	assert.Equal(t, 1, hosts, "任何时候只有一个房主")
}

func TestRoom_RemovePlayer_LastLeaverTerminates(t *testing.T) {
	r := newTestRoom("host", "u2")
	r.Status = RoomStatusActive

	require.True(t, r.RemovePlayer("u2", t0))
	require.True(t, r.RemovePlayer("host", t0))

	assert.Equal(t, RoomStatusTerminated, r.Status)
	assert.Equal(t, 0, r.ActivePlayerCount())
	assert.False(t, r.RemovePlayer("host", t0), "重复离开不产生变化")
}

func TestRoom_ShouldAutoStart(t *testing.T) {
	r := newTestRoom("a", "b", "c")
	assert.False(t, r.ShouldAutoStart())

	r.AddPlayer(Player{UserID: "d"}, t0)
	assert.True(t, r.ShouldAutoStart())
	assert.True(t, r.IsFull())

	r.Status = RoomStatusActive
	assert.False(t, r.ShouldAutoStart(), "已开始的房间不再自动开局")
}

func TestRoom_CastVote_ChangesVote(t *testing.T) {
	r := newTestRoom("a", "b", "c")
	r.Questions = []Prompt{{ID: "q1"}, {ID: "q2"}, {ID: "q3"}}

	r.CastVote("b", "q1", t0)
	r.CastVote("b", "q2", t0)

	assert.Equal(t, 1, r.TotalVotes(), "每个用户最多一票")
	assert.Equal(t, "q2", r.VotedFor("b"))
	assert.Equal(t, map[string]int{"q2": 1}, r.VoteCounts())
}

func TestRoom_VotingComplete(t *testing.T) {
	r := newTestRoom("a", "b", "c")
	r.Questions = []Prompt{{ID: "q1"}, {ID: "q2"}, {ID: "q3"}}
	r.CurrentPlayerTurn = "a"

	assert.Equal(t, 2, r.EligibleVoterCount(), "答题者不参与投票")
	r.CastVote("b", "q1", t0)
	assert.False(t, r.VotingComplete())
	r.CastVote("c", "q2", t0)
	assert.True(t, r.VotingComplete())
}

func TestRoom_WinningQuestion_TieBreaksByOfferOrder(t *testing.T) {
	r := newTestRoom("a", "b", "c", "d", "e")
	r.Questions = []Prompt{{ID: "q1"}, {ID: "q2"}, {ID: "q3"}}

	r.CastVote("b", "q3", t0)
	r.CastVote("c", "q2", t0)
	assert.Equal(t, "q2", r.WinningQuestion(), "平票时取先提供的题目")

	r.CastVote("d", "q3", t0)
	assert.Equal(t, "q3", r.WinningQuestion())
}

func TestRoom_NextTurnHolder(t *testing.T) {
	r := newTestRoom("a", "b", "c")

	tests := []struct {
		name    string
		current string
		leave   string
		want    string
	}{
		{name: "按加入顺序前进", current: "a", want: "b"},
		{name: "末尾回到开头", current: "c", want: "a"},
		{name: "跳过离开的玩家", current: "a", leave: "b", want: "c"},
		{name: "答题者已离开时从其位置往后", current: "b", leave: "b", want: "c"},
		{name: "末位答题者离开时回到开头", current: "c", leave: "c", want: "a"},
		{name: "未知答题者从头开始", current: "ghost", want: "a"},
		{name: "空答题者", current: "", want: "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room := r.Clone()
			room.CurrentPlayerTurn = tt.current
			if tt.leave != "" {
				room.RemovePlayer(tt.leave, t0)
			}
			assert.Equal(t, tt.want, room.NextTurnHolder())
		})
	}
}

func TestRoom_ResetTurn(t *testing.T) {
	r := newTestRoom("a", "b")
	r.CastVote("b", "q1", t0)
	r.Answers["a"] = Answer{Content: "hi"}
	r.SelectedQuestionID = "q1"

	r.ResetTurn()

	assert.Empty(t, r.Votes)
	assert.Empty(t, r.Answers)
	assert.Empty(t, r.SelectedQuestionID)
}

func TestRoom_CloneIsDeep(t *testing.T) {
	r := newTestRoom("a", "b")
	r.Questions = []Prompt{{ID: "q1"}}
	r.CastVote("b", "q1", t0)

	c := r.Clone()
	c.Players[0].Username = "changed"
	c.Questions[0].ID = "other"
	c.CastVote("a", "q1", t0)

	assert.Equal(t, "a", r.Players[0].Username)
	assert.Equal(t, "q1", r.Questions[0].ID)
	assert.Equal(t, 1, r.TotalVotes())
}

func TestRoomStatus_IsOpen(t *testing.T) {
	assert.True(t, RoomStatusPending.IsOpen())
	assert.True(t, RoomStatusActive.IsOpen())
	assert.False(t, RoomStatusCompleted.IsOpen())
	assert.False(t, RoomStatusTerminated.IsOpen())
}
