package domain

import "time"

// User 表示从外部身份提供方同步过来的用户资料。
// ID 即外部身份的 subject。
type User struct {
	ID          string    `gorm:"primaryKey;type:varchar(191)" json:"id"`
	Email       string    `gorm:"type:varchar(191);index" json:"email,omitempty"`
	DisplayName string    `gorm:"type:varchar(191)" json:"displayName"`
	Avatar      string    `gorm:"type:varchar(512)" json:"avatar,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
