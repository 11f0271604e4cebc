package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"party-game/internal/domain"
)

const codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RoomService 负责房间生命周期：创建、加入、离开、房主转移与终止。
type RoomService struct {
	*RoomAccess
	codeMu sync.Mutex // 串行化邀请码分配，避免两个并发创建拿到同一个码
}

// NewRoomService 创建 RoomService 实例。
func NewRoomService(access *RoomAccess) *RoomService {
	if access == nil {
		panic("RoomAccess cannot be nil for RoomService")
	}
	return &RoomService{RoomAccess: access}
}

// CreateRoomInput 是创建房间的参数。MaxPlayers 为 0 时使用游戏默认值。
type CreateRoomInput struct {
	HostID     string
	Username   string
	Avatar     string
	GameID     string
	MaxPlayers int
}

// JoinInput 是加入房间的玩家资料。
type JoinInput struct {
	UserID   string
	Username string
	Avatar   string
}

// RoomSummary 是邀请码校验返回的房间概要。
type RoomSummary struct {
	RoomID        string            `json:"roomId"`
	Code          string            `json:"code"`
	GameName      string            `json:"gameName"`
	Status        domain.RoomStatus `json:"status"`
	ActivePlayers int               `json:"activePlayers"`
	MaxPlayers    int               `json:"maxPlayers"`
}

// UserRoom 是带有当前用户视角标注的房间。
type UserRoom struct {
	Room         *domain.Room `json:"room"`
	UserIsActive bool         `json:"userIsActive"`
	UserIsHost   bool         `json:"userIsHost"`
}

// CreateRoom 创建一个新房间，房主是唯一的活跃玩家。
func (s *RoomService) CreateRoom(ctx context.Context, in CreateRoomInput) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"host_id": in.HostID, "game_id": in.GameID})
	if in.HostID == "" || in.GameID == "" {
		return nil, ErrInvalidInput
	}

	game, err := s.findGame(ctx, in.GameID)
	if err != nil {
		return nil, err
	}
	maxPlayers := in.MaxPlayers
	if maxPlayers == 0 {
		maxPlayers = game.MaxPlayers
	}
	if maxPlayers < domain.MinPlayers || maxPlayers > domain.MaxPlayersLimit {
		return nil, ErrInvalidMaxPlayers
	}

	s.codeMu.Lock()
	defer s.codeMu.Unlock()

	code, err := s.generateUniqueCode(ctx)
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate unique room code")
		if KindOf(err) == KindUnavailable {
			return nil, err
		}
		return nil, ErrInternalServer
	}
	logCtx = logCtx.WithField("code", code)

	now := s.now()
	room := &domain.Room{
		ID:         uuid.NewString(),
		Code:       code,
		HostID:     in.HostID,
		GameID:     game.ID,
		GameName:   game.Name,
		MaxPlayers: maxPlayers,
		Players: []domain.Player{{
			UserID:   in.HostID,
			Username: in.Username,
			Avatar:   in.Avatar,
			IsHost:   true,
			IsActive: true,
			JoinedAt: now,
		}},
		Status:    domain.RoomStatusPending,
		Questions: []domain.Prompt{},
		Votes:     map[string][]domain.VoteRecord{},
		Answers:   map[string]domain.Answer{},
		CreatedAt: now,
	}

	saved, err := s.save(ctx, room)
	if err != nil {
		return nil, err
	}
	logCtx.WithField("room_id", saved.ID).Info("Room created successfully")
	return saved, nil
}

// JoinRoomByCode 通过邀请码加入房间。已是活跃玩家时原样返回房间。
// shouldAutoStart 为 true 表示房间刚好满员且仍在等待，调用方应启动游戏。
func (s *RoomService) JoinRoomByCode(ctx context.Context, code string, in JoinInput) (*domain.Room, bool, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return nil, false, err
	}
	if in.UserID == "" {
		return nil, false, ErrInvalidInput
	}
	logCtx := logrus.WithFields(logrus.Fields{"user_id": in.UserID, "code": code})

	found, err := s.findOpenByCode(ctx, code)
	if err != nil {
		return nil, false, err
	}

	var result *domain.Room
	err = s.withRoom(ctx, found.ID, func() error {
		room, changed, err := s.mutateLocked(ctx, found.ID, func(room *domain.Room) (bool, error) {
			// 加锁后重新校验：等待期间房间可能已结束
			if !room.Status.IsOpen() {
				return false, ErrRoomNotFound
			}
			if room.IsActivePlayer(in.UserID) {
				return false, nil
			}
			if room.IsFull() {
				return false, ErrRoomFull
			}
			return room.AddPlayer(domain.Player{
				UserID:   in.UserID,
				Username: in.Username,
				Avatar:   in.Avatar,
			}, s.now()), nil
		})
		if err != nil {
			return err
		}
		if changed {
			s.emit(domain.EventPlayerJoined, room, in.UserID, domain.PlayerPayload{UserID: in.UserID, HostID: room.HostID})
		}
		result = room
		return nil
	})
	if err != nil {
		logCtx.WithError(err).Warn("Join room failed")
		return nil, false, err
	}
	logCtx.WithField("room_id", result.ID).Info("User joined room")
	return result, result.ShouldAutoStart(), nil
}

// ValidateRoomCode 检查邀请码是否对应一个可加入的房间。
func (s *RoomService) ValidateRoomCode(ctx context.Context, code string) (*RoomSummary, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return nil, err
	}
	room, err := s.findOpenByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return &RoomSummary{
		RoomID:        room.ID,
		Code:          room.Code,
		GameName:      room.GameName,
		Status:        room.Status,
		ActivePlayers: room.ActivePlayerCount(),
		MaxPlayers:    room.MaxPlayers,
	}, nil
}

// GetRoom 返回房间当前状态。
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	return s.load(ctx, roomID)
}

// LeaveRoom 将玩家标记为离开。房主离开时转移给最早加入的活跃玩家，最后一人离开时终止房间。
// 进行中的游戏里答题者离开时，本回合交给加入顺序上的下一位活跃玩家并取消待执行的轮换。
func (s *RoomService) LeaveRoom(ctx context.Context, roomID, userID string) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID})

	var result *domain.Room
	err := s.withRoom(ctx, roomID, func() error {
		handedOff := false
		room, changed, err := s.mutateLocked(ctx, roomID, func(room *domain.Room) (bool, error) {
			if !room.IsMember(userID) {
				return false, ErrPlayerNotInRoom
			}
			if !room.RemovePlayer(userID, s.now()) {
				return false, nil
			}
			room.RemoveVote(userID)
			// 答题者离开时把本回合交给下一位，轮次和题目不变
			if room.Status == domain.RoomStatusActive && room.CurrentPlayerTurn == userID {
				room.CurrentPlayerTurn = room.NextTurnHolder()
				room.ResetTurn()
				handedOff = true
			}
			return true, nil
		})
		if err != nil {
			return err
		}
		if changed {
			if room.Status == domain.RoomStatusTerminated || handedOff {
				s.gate.Cancel(roomID)
			}
			s.emit(domain.EventPlayerLeft, room, userID, domain.PlayerPayload{UserID: userID, HostID: room.HostID})
			if handedOff {
				s.emit(domain.EventPlayerTurnChanged, room, userID, domain.TurnPayload{CurrentPlayerTurn: room.CurrentPlayerTurn, Round: room.Round})
				logCtx.WithField("current_player", room.CurrentPlayerTurn).Info("Turn handed off after holder left")
			}
			if room.Status == domain.RoomStatusTerminated {
				s.emit(domain.EventRoomState, room, userID, nil)
			}
		}
		result = room
		return nil
	})
	if err != nil {
		logCtx.WithError(err).Warn("Leave room failed")
		return nil, err
	}
	logCtx.WithField("status", result.Status).Info("User left room")
	return result, nil
}

// ListUserRooms 返回用户参与过的所有房间（包括已结束的），按最近更新时间倒序。
func (s *RoomService) ListUserRooms(ctx context.Context, userID string) ([]UserRoom, error) {
	sctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	rooms, err := s.rooms.FindByMember(sctx, userID)
	if err != nil {
		logrus.WithField("user_id", userID).WithError(err).Error("Failed to list rooms by member")
		return nil, ErrInternalServer
	}

	result := make([]UserRoom, 0, len(rooms))
	for i := range rooms {
		room := &rooms[i]
		p := room.FindPlayer(userID)
		if p == nil {
			continue
		}
		result = append(result, UserRoom{Room: room, UserIsActive: p.IsActive, UserIsHost: p.IsHost})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Room.UpdatedAt.After(result[j].Room.UpdatedAt)
	})
	return result, nil
}

// DeleteRoom 由房主终止房间。房间记录保留用于历史查询。
func (s *RoomService) DeleteRoom(ctx context.Context, roomID, userID string) (*domain.Room, error) {
	var result *domain.Room
	err := s.withRoom(ctx, roomID, func() error {
		room, changed, err := s.mutateLocked(ctx, roomID, func(room *domain.Room) (bool, error) {
			if room.HostID != userID {
				return false, ErrNotHost
			}
			if !room.Status.IsOpen() {
				return false, nil
			}
			room.Status = domain.RoomStatusTerminated
			return true, nil
		})
		if err != nil {
			return err
		}
		if changed {
			s.gate.Cancel(roomID)
			s.emit(domain.EventRoomState, room, userID, nil)
		}
		result = room
		return nil
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID}).Info("Room terminated by host")
	return result, nil
}

// EnsureMember 从存储中重新读取房间，确认用户是（活跃或历史）成员。
func (s *RoomService) EnsureMember(ctx context.Context, roomID, userID string) (*domain.Room, error) {
	room, err := s.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsMember(userID) {
		return nil, ErrNotARoomMember
	}
	return room, nil
}

// Subscribe 在持有房间锁时确认成员资格并调用 attach(room)。
// attach 完成订阅后，之后提交的变更产生的事件都晚于 room 这份快照。
// attach 不得再对同一房间发起操作。
func (s *RoomService) Subscribe(ctx context.Context, roomID, userID string, attach func(room *domain.Room)) (*domain.Room, error) {
	var result *domain.Room
	err := s.withRoom(ctx, roomID, func() error {
		room, err := s.load(ctx, roomID)
		if err != nil {
			return err
		}
		if !room.IsMember(userID) {
			return ErrNotARoomMember
		}
		attach(room)
		result = room
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SweepIdleRooms 终止超过 idleFor 没有任何变更的 pending/active 房间，返回终止的数量。
func (s *RoomService) SweepIdleRooms(ctx context.Context, idleFor time.Duration) (int, error) {
	logCtx := logrus.WithField("operation", "SweepIdleRooms")
	sctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	candidates, err := s.rooms.FindByStatuses(sctx, domain.RoomStatusPending, domain.RoomStatusActive)
	cancel()
	if err != nil {
		logCtx.WithError(err).Error("Failed to list open rooms")
		return 0, ErrInternalServer
	}

	cutoff := s.now().Add(-idleFor)
	swept := 0
	for _, c := range candidates {
		if !c.UpdatedAt.Before(cutoff) {
			continue
		}
		roomID := c.ID
		err := s.withRoom(ctx, roomID, func() error {
			room, changed, err := s.mutateLocked(ctx, roomID, func(room *domain.Room) (bool, error) {
				if !room.Status.IsOpen() || !room.UpdatedAt.Before(cutoff) {
					return false, nil
				}
				room.Status = domain.RoomStatusTerminated
				return true, nil
			})
			if err != nil {
				return err
			}
			if changed {
				s.gate.Cancel(roomID)
				s.emit(domain.EventRoomState, room, "", nil)
				swept++
			}
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return swept, ctx.Err()
			}
			logCtx.WithField("room_id", roomID).WithError(err).Warn("Failed to sweep idle room")
		}
	}
	if swept > 0 {
		logCtx.WithField("swept", swept).Info("Idle rooms terminated")
	}
	return swept, nil
}

// --- 私有辅助函数 ---

func (s *RoomService) findOpenByCode(ctx context.Context, code string) (*domain.Room, error) {
	sctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	room, err := s.rooms.FindOpenByCode(sctx, code)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrRoomNotFound
		}
		logrus.WithField("code", code).WithError(err).Error("Failed to find room by code")
		return nil, ErrInternalServer
	}
	return room, nil
}

// generateUniqueCode 生成一个未被 pending/active 房间占用的邀请码。
// 冲突时无限重试，只有 ctx 结束或存储出错才会退出。
func (s *RoomService) generateUniqueCode(ctx context.Context) (string, error) {
	b := make([]byte, domain.CodeLength)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for i := range b {
			b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
		}
		code := string(b)

		sctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
		taken, err := s.rooms.IsOpenCodeTaken(sctx, code)
		cancel()
		if err != nil {
			return "", fmt.Errorf("store error checking room code: %w", err)
		}
		if !taken {
			logrus.WithField("code", code).Debugf("Generated unique room code after %d attempt(s).", attempt)
			return code, nil
		}
		logrus.WithField("code", code).Warnf("Generated room code already in use, retrying (attempt %d)...", attempt)
	}
}

// normalizeCode 转为大写并校验长度和字符集
func normalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != domain.CodeLength {
		return "", ErrInvalidRoomCode
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(codeAlphabet, code[i]) < 0 {
			return "", ErrInvalidRoomCode
		}
	}
	return code, nil
}
