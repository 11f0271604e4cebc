package gormpersistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"party-game/internal/domain"
	"party-game/internal/repository"
)

// RoomRecord 是 rooms 表的行结构。嵌入集合以 JSON 列存储。
type RoomRecord struct {
	ID                 string            `gorm:"primaryKey;type:varchar(64)"`
	Code               string            `gorm:"type:varchar(16);not null;index:idx_rooms_code_status"`
	Status             domain.RoomStatus `gorm:"type:varchar(16);not null;index:idx_rooms_code_status;index"`
	HostID             string            `gorm:"type:varchar(191);not null"`
	GameID             string            `gorm:"type:varchar(191);not null"`
	GameName           string            `gorm:"type:varchar(191)"`
	MaxPlayers         int               `gorm:"not null"`
	Players            datatypes.JSON    `gorm:"not null"`
	Questions          datatypes.JSON
	SelectedQuestionID string `gorm:"type:varchar(191)"`
	CurrentPlayerTurn  string `gorm:"type:varchar(191)"`
	Votes              datatypes.JSON
	Answers            datatypes.JSON
	Round              int
	CreatedAt          time.Time
	UpdatedAt          time.Time `gorm:"index"`
}

func (RoomRecord) TableName() string { return "rooms" }

// RoomMember 是 (room_id, user_id) 索引表，用于按成员查询房间历史。
type RoomMember struct {
	RoomID string `gorm:"primaryKey;type:varchar(64)"`
	UserID string `gorm:"primaryKey;type:varchar(191);index"`
}

func (RoomMember) TableName() string { return "room_members" }

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

var openStatuses = []domain.RoomStatus{domain.RoomStatusPending, domain.RoomStatusActive}

// FindByID 实现根据房间 ID 查找房间
func (r *GormRoomRepository) FindByID(ctx context.Context, id string) (*domain.Room, error) {
	var rec RoomRecord
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by id %s: %w", id, err)
	}
	return rec.toDomain()
}

// FindOpenByCode 实现根据邀请码查找 pending/active 房间
func (r *GormRoomRepository) FindOpenByCode(ctx context.Context, code string) (*domain.Room, error) {
	var rec RoomRecord
	err := r.db.WithContext(ctx).
		Where("code = ? AND status IN ?", code, openStatuses).
		Order("created_at DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by code '%s': %w", code, err)
	}
	return rec.toDomain()
}

// IsOpenCodeTaken 实现检查邀请码是否被占用
func (r *GormRoomRepository) IsOpenCodeTaken(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&RoomRecord{}).
		Where("code = ? AND status IN ?", code, openStatuses).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: count rooms by code '%s': %w", code, err)
	}
	return count > 0, nil
}

func (r *GormRoomRepository) FindByStatuses(ctx context.Context, statuses ...domain.RoomStatus) ([]domain.Room, error) {
	if len(statuses) == 0 {
		return []domain.Room{}, nil // 避免空的 IN 查询
	}
	var recs []RoomRecord
	if err := r.db.WithContext(ctx).Where("status IN ?", statuses).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("gorm: find rooms by status: %w", err)
	}
	return toDomainRooms(recs)
}

func (r *GormRoomRepository) FindByMember(ctx context.Context, userID string) ([]domain.Room, error) {
	var recs []RoomRecord
	err := r.db.WithContext(ctx).
		Joins("JOIN room_members ON room_members.room_id = rooms.id").
		Where("room_members.user_id = ?", userID).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find rooms by member %s: %w", userID, err)
	}
	return toDomainRooms(recs)
}

// Save 在同一个事务中写入房间行和成员索引
func (r *GormRoomRepository) Save(ctx context.Context, room *domain.Room) error {
	rec, err := fromDomain(room)
	if err != nil {
		return err
	}
	members := make([]RoomMember, 0, len(room.Players))
	for _, p := range room.Players {
		members = append(members, RoomMember{RoomID: room.ID, UserID: p.UserID})
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(rec).Error; err != nil {
			return err
		}
		if len(members) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&members).Error
	})
	if err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save room (id: %s, code: %s): %w", room.ID, room.Code, err)
	}
	return nil
}

func toDomainRooms(recs []RoomRecord) ([]domain.Room, error) {
	rooms := make([]domain.Room, 0, len(recs))
	for i := range recs {
		room, err := recs[i].toDomain()
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	return rooms, nil
}

func fromDomain(room *domain.Room) (*RoomRecord, error) {
	rec := &RoomRecord{
		ID:                 room.ID,
		Code:               room.Code,
		Status:             room.Status,
		HostID:             room.HostID,
		GameID:             room.GameID,
		GameName:           room.GameName,
		MaxPlayers:         room.MaxPlayers,
		SelectedQuestionID: room.SelectedQuestionID,
		CurrentPlayerTurn:  room.CurrentPlayerTurn,
		Round:              room.Round,
		CreatedAt:          room.CreatedAt,
		UpdatedAt:          room.UpdatedAt,
	}
	var err error
	if rec.Players, err = marshalColumn(room.Players); err != nil {
		return nil, err
	}
	if rec.Questions, err = marshalColumn(room.Questions); err != nil {
		return nil, err
	}
	if rec.Votes, err = marshalColumn(room.Votes); err != nil {
		return nil, err
	}
	if rec.Answers, err = marshalColumn(room.Answers); err != nil {
		return nil, err
	}
	return rec, nil
}

func (rec *RoomRecord) toDomain() (*domain.Room, error) {
	room := &domain.Room{
		ID:                 rec.ID,
		Code:               rec.Code,
		Status:             rec.Status,
		HostID:             rec.HostID,
		GameID:             rec.GameID,
		GameName:           rec.GameName,
		MaxPlayers:         rec.MaxPlayers,
		SelectedQuestionID: rec.SelectedQuestionID,
		CurrentPlayerTurn:  rec.CurrentPlayerTurn,
		Round:              rec.Round,
		CreatedAt:          rec.CreatedAt,
		UpdatedAt:          rec.UpdatedAt,
	}
	if err := unmarshalColumn(rec.Players, &room.Players); err != nil {
		return nil, fmt.Errorf("gorm: decode players of room %s: %w", rec.ID, err)
	}
	if err := unmarshalColumn(rec.Questions, &room.Questions); err != nil {
		return nil, fmt.Errorf("gorm: decode questions of room %s: %w", rec.ID, err)
	}
	if err := unmarshalColumn(rec.Votes, &room.Votes); err != nil {
		return nil, fmt.Errorf("gorm: decode votes of room %s: %w", rec.ID, err)
	}
	if err := unmarshalColumn(rec.Answers, &room.Answers); err != nil {
		return nil, fmt.Errorf("gorm: decode answers of room %s: %w", rec.ID, err)
	}
	if room.Votes == nil {
		room.Votes = make(map[string][]domain.VoteRecord)
	}
	if room.Answers == nil {
		room.Answers = make(map[string]domain.Answer)
	}
	return room, nil
}

func marshalColumn(v interface{}) (datatypes.JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("gorm: encode json column: %w", err)
	}
	return datatypes.JSON(b), nil
}

func unmarshalColumn(col datatypes.JSON, out interface{}) error {
	if len(col) == 0 || string(col) == "null" {
		return nil
	}
	return json.Unmarshal(col, out)
}
