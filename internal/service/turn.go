package service

import (
	"context"
	"errors"
	"math/rand"

	"github.com/sirupsen/logrus"

	"party-game/internal/domain"
)

// TurnService 驱动回合状态机：pending → active → completed/terminated。
type TurnService struct {
	*RoomAccess
}

// NewTurnService 创建 TurnService 实例。
func NewTurnService(access *RoomAccess) *TurnService {
	if access == nil {
		panic("RoomAccess cannot be nil for TurnService")
	}
	return &TurnService{RoomAccess: access}
}

// StartRoom 由房主开始游戏：抽取题目、随机选择答题者、进入第 1 轮。
func (s *TurnService) StartRoom(ctx context.Context, roomID, userID string) (*domain.Room, error) {
	return s.start(ctx, roomID, func(room *domain.Room) error {
		if room.HostID != userID {
			return ErrNotHost
		}
		return nil
	})
}

// AutoStartRoom 在房间恰好满员时开始游戏，用于加入后的自动开局。
// 房间已经开始或不再满员时返回当前房间和 started=false。
func (s *TurnService) AutoStartRoom(ctx context.Context, roomID string) (*domain.Room, bool, error) {
	room, err := s.start(ctx, roomID, func(room *domain.Room) error {
		if !room.ShouldAutoStart() {
			return errSkipStart
		}
		return nil
	})
	if errors.Is(err, errSkipStart) {
		current, err := s.load(ctx, roomID)
		return current, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return room, true, nil
}

// errSkipStart 让 start 在不报错的情况下放弃本次变更，不会返回给调用方
var errSkipStart = errors.New("auto start skipped")

func (s *TurnService) start(ctx context.Context, roomID string, authorize func(room *domain.Room) error) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "operation": "StartRoom"})

	var result *domain.Room
	err := s.withRoom(ctx, roomID, func() error {
		room, _, err := s.mutateLocked(ctx, roomID, func(room *domain.Room) (bool, error) {
			if err := authorize(room); err != nil {
				return false, err
			}
			switch room.Status {
			case domain.RoomStatusPending:
			case domain.RoomStatusActive:
				return false, ErrRoomAlreadyStarted
			default:
				return false, ErrRoomClosed
			}
			active := room.ActivePlayerIDs()
			if len(active) < domain.MinPlayers {
				return false, ErrInsufficientPlayers
			}
			game, err := s.findGame(ctx, room.GameID)
			if err != nil {
				return false, err
			}
			room.Questions = drawPrompts(game.Prompts, domain.QuestionsPerTurn)
			room.CurrentPlayerTurn = active[rand.Intn(len(active))]
			room.Round = 1
			room.ResetTurn()
			room.Status = domain.RoomStatusActive
			return true, nil
		})
		if err != nil {
			return err
		}
		s.gate.Cancel(roomID)
		s.emit(domain.EventGameStarted, room, "", domain.TurnPayload{
			CurrentPlayerTurn: room.CurrentPlayerTurn,
			Round:             room.Round,
		})
		result = room
		return nil
	})
	if err != nil {
		if !errors.Is(err, errSkipStart) {
			logCtx.WithError(err).Warn("Start room failed")
		}
		return nil, err
	}
	logCtx.WithFields(logrus.Fields{
		"current_player": result.CurrentPlayerTurn,
		"players":        result.ActivePlayerCount(),
	}).Info("Game started")
	return result, nil
}

// RotatePlayerTurn 进入下一回合。当前轮次已达上限时结束游戏，gameEnded 为 true。
func (s *TurnService) RotatePlayerTurn(ctx context.Context, roomID string) (*domain.Room, bool, error) {
	var (
		result *domain.Room
		ended  bool
	)
	err := s.withRoom(ctx, roomID, func() error {
		var err error
		result, ended, err = s.rotateLocked(ctx, roomID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return result, ended, nil
}

// NextTurn 由房主或当前答题者立即结束本回合，不等待展示窗口。
func (s *TurnService) NextTurn(ctx context.Context, roomID, userID string) (*domain.Room, bool, error) {
	var (
		result *domain.Room
		ended  bool
	)
	err := s.withRoom(ctx, roomID, func() error {
		room, err := s.load(ctx, roomID)
		if err != nil {
			return err
		}
		if room.HostID != userID && room.CurrentPlayerTurn != userID {
			return ErrWrongTurn
		}
		result, ended, err = s.rotateLocked(ctx, roomID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return result, ended, nil
}

// rotateLocked 执行一次轮换，调用方必须已持有房间锁。
func (s *TurnService) rotateLocked(ctx context.Context, roomID string) (*domain.Room, bool, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "operation": "RotatePlayerTurn"})
	s.gate.Cancel(roomID)

	ended := false
	room, _, err := s.mutateLocked(ctx, roomID, func(room *domain.Room) (bool, error) {
		if room.Status != domain.RoomStatusActive {
			return false, ErrRoomNotActive
		}
		if room.Round >= domain.MaxRounds {
			room.Status = domain.RoomStatusCompleted
			ended = true
			return true, nil
		}
		game, err := s.findGame(ctx, room.GameID)
		if err != nil {
			return false, err
		}
		room.Questions = drawPrompts(game.Prompts, domain.QuestionsPerTurn)
		room.CurrentPlayerTurn = room.NextTurnHolder()
		room.Round++
		room.ResetTurn()
		return true, nil
	})
	if err != nil {
		logCtx.WithError(err).Warn("Rotate player turn failed")
		return nil, false, err
	}

	payload := domain.TurnPayload{CurrentPlayerTurn: room.CurrentPlayerTurn, Round: room.Round, GameEnded: ended}
	if ended {
		s.emit(domain.EventGameEnded, room, "", payload)
		logCtx.WithField("round", room.Round).Info("Game completed")
	} else {
		s.emit(domain.EventTurnRotated, room, "", payload)
		logCtx.WithFields(logrus.Fields{"round": room.Round, "current_player": room.CurrentPlayerTurn}).Debug("Turn rotated")
	}
	return room, ended, nil
}

// SetPlayerTurn 由房主把答题权交给指定的活跃玩家。
// 该玩家在本回合的投票被移除，已提交的答案和待执行的轮换一并清空。
func (s *TurnService) SetPlayerTurn(ctx context.Context, roomID, hostID, playerID string) (*domain.Room, error) {
	var result *domain.Room
	err := s.withRoom(ctx, roomID, func() error {
		room, changed, err := s.mutateLocked(ctx, roomID, func(room *domain.Room) (bool, error) {
			if room.HostID != hostID {
				return false, ErrNotHost
			}
			if room.Status != domain.RoomStatusActive {
				return false, ErrRoomNotActive
			}
			p := room.FindPlayer(playerID)
			if p == nil {
				return false, ErrPlayerNotInRoom
			}
			if !p.IsActive {
				return false, ErrPlayerNotActive
			}
			if room.CurrentPlayerTurn == playerID {
				return false, nil
			}
			room.CurrentPlayerTurn = playerID
			room.RemoveVote(playerID)
			room.Answers = map[string]domain.Answer{}
			return true, nil
		})
		if err != nil {
			return err
		}
		if changed {
			s.gate.Cancel(roomID)
			s.emit(domain.EventPlayerTurnChanged, room, hostID, domain.TurnPayload{
				CurrentPlayerTurn: room.CurrentPlayerTurn,
				Round:             room.Round,
			})
		}
		result = room
		return nil
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{"room_id": roomID, "player_id": playerID}).WithError(err).Warn("Set player turn failed")
		return nil, err
	}
	return result, nil
}

// SetQuestion 由答题者或房主直接指定本回合的题目。
func (s *TurnService) SetQuestion(ctx context.Context, roomID, userID, questionID string) (*domain.Room, error) {
	var result *domain.Room
	err := s.withRoom(ctx, roomID, func() error {
		room, _, err := s.mutateLocked(ctx, roomID, func(room *domain.Room) (bool, error) {
			if room.Status != domain.RoomStatusActive {
				return false, ErrRoomNotActive
			}
			if room.CurrentPlayerTurn != userID && room.HostID != userID {
				return false, ErrWrongTurn
			}
			if !room.HasQuestion(questionID) {
				return false, ErrQuestionNotOffered
			}
			room.SelectedQuestionID = questionID
			return true, nil
		})
		if err != nil {
			return err
		}
		s.emit(domain.EventQuestionSet, room, userID, domain.QuestionPayload{QuestionID: questionID})
		result = room
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// scheduleRotationLocked 安排展示窗口结束后的自动轮换，取代之前的安排。调用方必须持有房间锁。
func (s *TurnService) scheduleRotationLocked(roomID string) {
	s.gate.Schedule(roomID, s.opts.RotationDelay, func(ctx context.Context) {
		if _, _, err := s.rotateLocked(ctx, roomID); err != nil {
			logrus.WithField("room_id", roomID).WithError(err).Warn("Scheduled rotation failed")
		}
	})
}

// RotationPending 报告房间是否有等待中的自动轮换。
func (s *TurnService) RotationPending(roomID string) bool {
	return s.gate.Pending(roomID)
}

// drawPrompts 无放回地随机抽取至多 n 道题目
func drawPrompts(prompts []domain.Prompt, n int) []domain.Prompt {
	if n > len(prompts) {
		n = len(prompts)
	}
	picked := make([]domain.Prompt, 0, n)
	for _, i := range rand.Perm(len(prompts))[:n] {
		picked = append(picked, prompts[i])
	}
	return picked
}
