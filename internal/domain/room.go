package domain

import "time"

// RoomStatus 表示房间所处的生命周期阶段。
type RoomStatus string

const (
	RoomStatusPending    RoomStatus = "pending"    // 等待玩家加入
	RoomStatusActive     RoomStatus = "active"     // 游戏进行中
	RoomStatusCompleted  RoomStatus = "completed"  // 第 10 轮结束
	RoomStatusTerminated RoomStatus = "terminated" // 所有玩家离开或房主关闭
)

// IsOpen 报告该状态的房间是否仍占用邀请码、可以被加入。
func (s RoomStatus) IsOpen() bool {
	return s == RoomStatusPending || s == RoomStatusActive
}

const (
	MaxRounds        = 10
	QuestionsPerTurn = 3
	CodeLength       = 6
	MinPlayers       = 2
	MaxPlayersLimit  = 20
)

// Player 是嵌入在 Room 中的玩家记录，一旦加入就不会被删除。
type Player struct {
	UserID     string     `json:"userId"`
	Username   string     `json:"username"`
	Avatar     string     `json:"avatar,omitempty"`
	IsHost     bool       `json:"isHost"`
	IsActive   bool       `json:"isActive"`
	JoinedAt   time.Time  `json:"joinedAt"`
	LeftAt     *time.Time `json:"leftAt,omitempty"`
	RejoinedAt *time.Time `json:"rejoinedAt,omitempty"`
}

// VoteRecord 记录一次投票。
type VoteRecord struct {
	UserID string    `json:"userId"`
	CastAt time.Time `json:"castAt"`
}

// Answer 是当前回合答题者提交的答案。
type Answer struct {
	Content     string    `json:"content"`
	QuestionID  string    `json:"questionId,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Room 是房间聚合根，持久化存储中的唯一事实来源。
type Room struct {
	ID                 string                  `json:"id"`
	Code               string                  `json:"code"`
	HostID             string                  `json:"hostId"`
	GameID             string                  `json:"gameId"`
	GameName           string                  `json:"gameName"`
	MaxPlayers         int                     `json:"maxPlayers"`
	Players            []Player                `json:"players"`
	Status             RoomStatus              `json:"status"`
	Questions          []Prompt                `json:"questions"`
	SelectedQuestionID string                  `json:"selectedQuestionId,omitempty"`
	CurrentPlayerTurn  string                  `json:"currentPlayerTurn,omitempty"`
	Votes              map[string][]VoteRecord `json:"votes"`
	Answers            map[string]Answer       `json:"answers"`
	Round              int                     `json:"round"`
	CreatedAt          time.Time               `json:"createdAt"`
	UpdatedAt          time.Time               `json:"updatedAt"`
}

// PlayerIndex 返回用户在 Players 中的下标，不存在时返回 -1。
func (r *Room) PlayerIndex(userID string) int {
	for i := range r.Players {
		if r.Players[i].UserID == userID {
			return i
		}
	}
	return -1
}

// FindPlayer 返回玩家记录的指针（可原地修改），不存在时返回 nil。
func (r *Room) FindPlayer(userID string) *Player {
	if i := r.PlayerIndex(userID); i >= 0 {
		return &r.Players[i]
	}
	return nil
}

// IsMember 报告用户是否曾加入过该房间（无论当前是否活跃）。
func (r *Room) IsMember(userID string) bool {
	return r.PlayerIndex(userID) >= 0
}

// IsActivePlayer 报告用户当前是否是活跃玩家。
func (r *Room) IsActivePlayer(userID string) bool {
	p := r.FindPlayer(userID)
	return p != nil && p.IsActive
}

// ActivePlayerCount 返回活跃玩家数量。
func (r *Room) ActivePlayerCount() int {
	n := 0
	for _, p := range r.Players {
		if p.IsActive {
			n++
		}
	}
	return n
}

// ActivePlayerIDs 按加入顺序返回活跃玩家的 user id。
func (r *Room) ActivePlayerIDs() []string {
	ids := make([]string, 0, len(r.Players))
	for _, p := range r.Players {
		if p.IsActive {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}

// IsFull 报告活跃玩家数是否已达上限。
func (r *Room) IsFull() bool {
	return r.ActivePlayerCount() >= r.MaxPlayers
}

// ShouldAutoStart 当房间恰好满员且仍处于 pending 时为 true。
func (r *Room) ShouldAutoStart() bool {
	return r.Status == RoomStatusPending && r.ActivePlayerCount() == r.MaxPlayers
}

// AddPlayer 追加新玩家或原地重新激活已有记录。
// 返回 false 表示该用户本来就是活跃玩家，房间未发生变化。
func (r *Room) AddPlayer(p Player, now time.Time) bool {
	if existing := r.FindPlayer(p.UserID); existing != nil {
		if existing.IsActive {
			return false
		}
		existing.IsActive = true
		existing.LeftAt = nil
		rejoined := now
		existing.RejoinedAt = &rejoined
		if p.Username != "" {
			existing.Username = p.Username
		}
		if p.Avatar != "" {
			existing.Avatar = p.Avatar
		}
		return true
	}
	p.IsActive = true
	p.IsHost = false
	p.JoinedAt = now
	r.Players = append(r.Players, p)
	return true
}

// RemovePlayer 将玩家标记为离开，必要时转移房主或终止房间。
// 返回 false 表示玩家已经不活跃，无需修改。
func (r *Room) RemovePlayer(userID string, now time.Time) bool {
	p := r.FindPlayer(userID)
	if p == nil || !p.IsActive {
		return false
	}
	p.IsActive = false
	left := now
	p.LeftAt = &left

	if r.ActivePlayerCount() == 0 {
		r.Status = RoomStatusTerminated
		return true
	}
	if p.IsHost {
		p.IsHost = false
		r.assignHostToFirstActive()
	}
	return true
}

// assignHostToFirstActive 把房主交给加入顺序最靠前的活跃玩家。
func (r *Room) assignHostToFirstActive() {
	for i := range r.Players {
		if r.Players[i].IsActive {
			r.Players[i].IsHost = true
			r.HostID = r.Players[i].UserID
			return
		}
	}
}

// HasQuestion 报告 questionID 是否在本回合提供的题目中。
func (r *Room) HasQuestion(questionID string) bool {
	for _, q := range r.Questions {
		if q.ID == questionID {
			return true
		}
	}
	return false
}

// CastVote 记录一票，先移除该用户在任何题目上的旧票。
func (r *Room) CastVote(userID, questionID string, now time.Time) {
	r.RemoveVote(userID)
	if r.Votes == nil {
		r.Votes = make(map[string][]VoteRecord)
	}
	r.Votes[questionID] = append(r.Votes[questionID], VoteRecord{UserID: userID, CastAt: now})
}

// RemoveVote 删除用户在所有题目上的投票。
func (r *Room) RemoveVote(userID string) {
	for qid, voters := range r.Votes {
		kept := voters[:0]
		for _, v := range voters {
			if v.UserID != userID {
				kept = append(kept, v)
			}
		}
		if len(kept) == 0 {
			delete(r.Votes, qid)
		} else {
			r.Votes[qid] = kept
		}
	}
}

// VotedFor 返回用户当前投给的题目 id，未投票时返回空串。
func (r *Room) VotedFor(userID string) string {
	for qid, voters := range r.Votes {
		for _, v := range voters {
			if v.UserID == userID {
				return qid
			}
		}
	}
	return ""
}

// TotalVotes 返回所有题目的票数之和。
func (r *Room) TotalVotes() int {
	n := 0
	for _, voters := range r.Votes {
		n += len(voters)
	}
	return n
}

// EligibleVoterCount 活跃玩家中除答题者以外的人数。
func (r *Room) EligibleVoterCount() int {
	n := r.ActivePlayerCount()
	if r.IsActivePlayer(r.CurrentPlayerTurn) {
		n--
	}
	return n
}

// VotingComplete 当已投票数不少于有资格投票的人数时为 true。
func (r *Room) VotingComplete() bool {
	return r.TotalVotes() >= r.EligibleVoterCount()
}

// VoteCounts 返回每个题目的票数。
func (r *Room) VoteCounts() map[string]int {
	counts := make(map[string]int, len(r.Votes))
	for qid, voters := range r.Votes {
		counts[qid] = len(voters)
	}
	return counts
}

// WinningQuestion 返回票数最多的题目；平票时取题目列表中最先出现的那个。
func (r *Room) WinningQuestion() string {
	winner, best := "", 0
	for _, q := range r.Questions {
		if n := len(r.Votes[q.ID]); n > best {
			winner, best = q.ID, n
		}
	}
	return winner
}

// NextTurnHolder 按加入顺序返回当前答题者之后的下一个活跃玩家（循环）。
// 当前答题者已离开时仍从他的位置往后找；没有当前答题者时从第一个活跃玩家开始。
func (r *Room) NextTurnHolder() string {
	n := len(r.Players)
	start := -1
	for i := range r.Players {
		if r.Players[i].UserID == r.CurrentPlayerTurn {
			start = i
			break
		}
	}
	for k := 1; k <= n; k++ {
		p := r.Players[(start+k)%n]
		if p.IsActive {
			return p.UserID
		}
	}
	return ""
}

// ResetTurn 清空投票、答案和已选题目。
func (r *Room) ResetTurn() {
	r.Votes = make(map[string][]VoteRecord)
	r.Answers = make(map[string]Answer)
	r.SelectedQuestionID = ""
}

// Clone 返回深拷贝，避免调用方与存储层共享切片和 map。
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.Players = make([]Player, len(r.Players))
	for i, p := range r.Players {
		c.Players[i] = p
		if p.LeftAt != nil {
			t := *p.LeftAt
			c.Players[i].LeftAt = &t
		}
		if p.RejoinedAt != nil {
			t := *p.RejoinedAt
			c.Players[i].RejoinedAt = &t
		}
	}
	c.Questions = append([]Prompt(nil), r.Questions...)
	c.Votes = make(map[string][]VoteRecord, len(r.Votes))
	for k, v := range r.Votes {
		c.Votes[k] = append([]VoteRecord(nil), v...)
	}
	c.Answers = make(map[string]Answer, len(r.Answers))
	for k, v := range r.Answers {
		c.Answers[k] = v
	}
	return &c
}
