package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"party-game/internal/domain"
	"party-game/internal/repository"
)

// FriendshipService 管理用户之间的好友关系。每对用户最多一条记录。
type FriendshipService struct {
	repo repository.FriendshipRepository
	now  func() time.Time
}

func NewFriendshipService(repo repository.FriendshipRepository) *FriendshipService {
	if repo == nil {
		panic("FriendshipRepository cannot be nil for FriendshipService")
	}
	return &FriendshipService{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// Friend 是从某个用户视角看到的一条好友关系。
type Friend struct {
	UserID      string                  `json:"userId"`
	Status      domain.FriendshipStatus `json:"status"`
	RequestedBy string                  `json:"requestedBy"`
	UpdatedAt   time.Time               `json:"updatedAt"`
}

// SendRequest 发起好友请求。对方已经向自己发起过请求时直接成为好友。
func (s *FriendshipService) SendRequest(ctx context.Context, fromID, toID string) (*domain.Friendship, error) {
	logCtx := logrus.WithFields(logrus.Fields{"from": fromID, "to": toID})
	if fromID == "" || toID == "" || fromID == toID {
		return nil, ErrInvalidInput
	}

	existing, err := s.find(ctx, fromID, toID)
	if err != nil && !errors.Is(err, ErrFriendshipNotFound) {
		return nil, err
	}
	if existing != nil {
		switch {
		case existing.Status == domain.FriendshipBlocked:
			return nil, ErrFriendshipBlocked
		case existing.Status == domain.FriendshipPending && existing.RequestedBy == toID:
			return s.setStatus(ctx, existing, domain.FriendshipAccepted, existing.RequestedBy)
		default:
			return nil, ErrFriendshipExists
		}
	}

	a, b := domain.FriendPair(fromID, toID)
	now := s.now()
	f := &domain.Friendship{
		ID:          uuid.NewString(),
		UserA:       a,
		UserB:       b,
		Status:      domain.FriendshipPending,
		RequestedBy: fromID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, f); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return nil, ErrFriendshipExists
		}
		logCtx.WithError(err).Error("Failed to create friendship")
		return nil, ErrInternalServer
	}
	logCtx.Info("Friend request sent")
	return f, nil
}

// Accept 接受对方发来的请求。发起方自己不能接受。
func (s *FriendshipService) Accept(ctx context.Context, userID, otherID string) (*domain.Friendship, error) {
	f, err := s.find(ctx, userID, otherID)
	if err != nil {
		return nil, err
	}
	switch f.Status {
	case domain.FriendshipAccepted:
		return f, nil
	case domain.FriendshipBlocked:
		return nil, ErrFriendshipBlocked
	}
	if f.RequestedBy == userID {
		return nil, ErrOwnRequest
	}
	return s.setStatus(ctx, f, domain.FriendshipAccepted, f.RequestedBy)
}

// Block 屏蔽对方，不存在关系时新建一条 blocked 记录。
func (s *FriendshipService) Block(ctx context.Context, userID, otherID string) (*domain.Friendship, error) {
	if userID == "" || otherID == "" || userID == otherID {
		return nil, ErrInvalidInput
	}
	f, err := s.find(ctx, userID, otherID)
	if err == nil {
		return s.setStatus(ctx, f, domain.FriendshipBlocked, userID)
	}
	if !errors.Is(err, ErrFriendshipNotFound) {
		return nil, err
	}

	a, b := domain.FriendPair(userID, otherID)
	now := s.now()
	f = &domain.Friendship{
		ID:          uuid.NewString(),
		UserA:       a,
		UserB:       b,
		Status:      domain.FriendshipBlocked,
		RequestedBy: userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, f); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			// 并发创建，按已存在处理
			existing, findErr := s.find(ctx, userID, otherID)
			if findErr != nil {
				return nil, findErr
			}
			return s.setStatus(ctx, existing, domain.FriendshipBlocked, userID)
		}
		logrus.WithFields(logrus.Fields{"user_id": userID, "other_id": otherID}).WithError(err).Error("Failed to create block")
		return nil, ErrInternalServer
	}
	return f, nil
}

// ListFriends 列出用户的关系，status 为空时不过滤。按最近更新时间倒序。
func (s *FriendshipService) ListFriends(ctx context.Context, userID string, status domain.FriendshipStatus) ([]Friend, error) {
	list, err := s.repo.ListByUser(ctx, userID, status)
	if err != nil {
		logrus.WithField("user_id", userID).WithError(err).Error("Failed to list friendships")
		return nil, ErrInternalServer
	}
	friends := make([]Friend, 0, len(list))
	for i := range list {
		friends = append(friends, Friend{
			UserID:      list[i].Other(userID),
			Status:      list[i].Status,
			RequestedBy: list[i].RequestedBy,
			UpdatedAt:   list[i].UpdatedAt,
		})
	}
	sort.SliceStable(friends, func(i, j int) bool {
		return friends[i].UpdatedAt.After(friends[j].UpdatedAt)
	})
	return friends, nil
}

func (s *FriendshipService) find(ctx context.Context, a, b string) (*domain.Friendship, error) {
	f, err := s.repo.FindByPair(ctx, a, b)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrFriendshipNotFound
		}
		logrus.WithFields(logrus.Fields{"a": a, "b": b}).WithError(err).Error("Failed to find friendship")
		return nil, ErrInternalServer
	}
	return f, nil
}

func (s *FriendshipService) setStatus(ctx context.Context, f *domain.Friendship, status domain.FriendshipStatus, requestedBy string) (*domain.Friendship, error) {
	f.Status = status
	f.RequestedBy = requestedBy
	f.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, f); err != nil {
		if isNotFound(err) {
			return nil, ErrFriendshipNotFound
		}
		logrus.WithField("friendship_id", f.ID).WithError(err).Error("Failed to update friendship")
		return nil, ErrInternalServer
	}
	return f, nil
}
