package domain

import "time"

type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
	FriendshipBlocked  FriendshipStatus = "blocked"
)

// Friendship 是两个用户之间的关系。UserA < UserB，保证每对用户只有一条记录。
type Friendship struct {
	ID          string           `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserA       string           `gorm:"type:varchar(191);not null;uniqueIndex:idx_friendship_pair" json:"userA"`
	UserB       string           `gorm:"type:varchar(191);not null;uniqueIndex:idx_friendship_pair" json:"userB"`
	Status      FriendshipStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	RequestedBy string           `gorm:"type:varchar(191);not null" json:"requestedBy"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// FriendPair 返回规范化后的用户对（较小者在前）。
func FriendPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// Other 返回关系中除 userID 之外的另一方。
func (f *Friendship) Other(userID string) string {
	if f.UserA == userID {
		return f.UserB
	}
	return f.UserA
}
