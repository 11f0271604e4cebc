package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"party-game/internal/domain"
)

// VotingService 处理投票和答题。提交答案后的轮换由 TurnService 的延时任务完成。
type VotingService struct {
	*RoomAccess
	turns *TurnService
}

// NewVotingService 创建 VotingService 实例。turns 必须与本服务共用同一个 RoomAccess。
func NewVotingService(access *RoomAccess, turns *TurnService) *VotingService {
	if access == nil || turns == nil {
		panic("RoomAccess and TurnService cannot be nil for VotingService")
	}
	return &VotingService{RoomAccess: access, turns: turns}
}

// VoteResult 是一次投票后的结果。Complete 为 true 时 WinningQuestionID 是本回合胜出的题目。
type VoteResult struct {
	Room              *domain.Room `json:"room"`
	Complete          bool         `json:"complete"`
	WinningQuestionID string       `json:"winningQuestionId,omitempty"`
}

// SubmitVote 为题目投票。每个用户在本回合只保留一票：再次投票会替换之前的选择。
// 当前答题者不能投票。
func (s *VotingService) SubmitVote(ctx context.Context, roomID, userID, questionID string) (*VoteResult, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID, "question_id": questionID})

	var result *VoteResult
	err := s.withRoom(ctx, roomID, func() error {
		room, _, err := s.mutateLocked(ctx, roomID, func(room *domain.Room) (bool, error) {
			if room.Status != domain.RoomStatusActive {
				return false, ErrRoomNotActive
			}
			if !room.IsActivePlayer(userID) {
				return false, ErrPlayerNotInRoom
			}
			if room.CurrentPlayerTurn == userID {
				return false, ErrInvalidVoter
			}
			if !room.HasQuestion(questionID) {
				return false, ErrQuestionNotOffered
			}
			room.CastVote(userID, questionID, s.now())
			if room.VotingComplete() {
				room.SelectedQuestionID = room.WinningQuestion()
			}
			return true, nil
		})
		if err != nil {
			return err
		}

		complete := room.VotingComplete()
		result = &VoteResult{Room: room, Complete: complete}
		if complete {
			result.WinningQuestionID = room.SelectedQuestionID
		}
		s.emit(domain.EventVoteUpdate, room, userID, domain.VotePayload{
			Counts:            room.VoteCounts(),
			TotalVotes:        room.TotalVotes(),
			EligibleVoters:    room.EligibleVoterCount(),
			Complete:          complete,
			WinningQuestionID: result.WinningQuestionID,
		})
		if complete {
			s.emit(domain.EventQuestionSelected, room, "", domain.QuestionPayload{QuestionID: result.WinningQuestionID})
		}
		return nil
	})
	if err != nil {
		logCtx.WithError(err).Warn("Submit vote failed")
		return nil, err
	}
	logCtx.WithField("complete", result.Complete).Debug("Vote recorded")
	return result, nil
}

// SubmitAnswer 记录当前答题者的答案，并（重新）开始展示窗口倒计时。
// questionID 可以为空；非空时必须是本回合提供的题目。
func (s *VotingService) SubmitAnswer(ctx context.Context, roomID, userID, content, questionID string) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID})
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrInvalidInput
	}

	var result *domain.Room
	err := s.withRoom(ctx, roomID, func() error {
		room, _, err := s.mutateLocked(ctx, roomID, func(room *domain.Room) (bool, error) {
			if room.Status != domain.RoomStatusActive {
				return false, ErrRoomNotActive
			}
			if room.CurrentPlayerTurn != userID {
				return false, ErrWrongTurn
			}
			if questionID != "" && !room.HasQuestion(questionID) {
				return false, ErrQuestionNotOffered
			}
			if room.Answers == nil {
				room.Answers = make(map[string]domain.Answer)
			}
			room.Answers[userID] = domain.Answer{
				Content:     content,
				QuestionID:  questionID,
				SubmittedAt: s.now(),
			}
			return true, nil
		})
		if err != nil {
			return err
		}
		s.emit(domain.EventAnswerSubmitted, room, userID, domain.AnswerPayload{UserID: userID, Answer: room.Answers[userID]})
		s.turns.scheduleRotationLocked(roomID)
		result = room
		return nil
	})
	if err != nil {
		logCtx.WithError(err).Warn("Submit answer failed")
		return nil, err
	}
	logCtx.WithField("rotation_delay", s.opts.RotationDelay).Info("Answer recorded, rotation scheduled")
	return result, nil
}

// ShareAnswer 让答题者把已提交的答案再次推送给房间内所有人，不修改房间状态。
func (s *VotingService) ShareAnswer(ctx context.Context, roomID, userID string) (*domain.Room, error) {
	var result *domain.Room
	err := s.withRoom(ctx, roomID, func() error {
		room, err := s.load(ctx, roomID)
		if err != nil {
			return err
		}
		if room.Status != domain.RoomStatusActive {
			return ErrRoomNotActive
		}
		if room.CurrentPlayerTurn != userID {
			return ErrWrongTurn
		}
		answer, ok := room.Answers[userID]
		if !ok {
			return ErrAnswerNotFound
		}
		s.emit(domain.EventAnswerSubmitted, room, userID, domain.AnswerPayload{UserID: userID, Answer: answer, Shared: true})
		result = room
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
