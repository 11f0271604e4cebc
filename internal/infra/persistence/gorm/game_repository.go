package gormpersistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"party-game/internal/domain"
	"party-game/internal/repository"
)

// GameRecord 是 games 表的行结构，题目列表存为 JSON。
type GameRecord struct {
	ID         string         `gorm:"primaryKey;type:varchar(191)"`
	Name       string         `gorm:"type:varchar(191);not null"`
	Category   string         `gorm:"type:varchar(64);index"`
	MaxPlayers int            `gorm:"not null"`
	Prompts    datatypes.JSON `gorm:"not null"`
}

func (GameRecord) TableName() string { return "games" }

// GormGameRepository 是只读题库的 GORM 实现
type GormGameRepository struct {
	db *gorm.DB
}

func NewGormGameRepository(db *gorm.DB) *GormGameRepository {
	if db == nil {
		panic("database connection cannot be nil for GormGameRepository")
	}
	return &GormGameRepository{db: db}
}

func (r *GormGameRepository) FindByID(ctx context.Context, id string) (*domain.Game, error) {
	var rec GameRecord
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrGameNotFound
		}
		return nil, fmt.Errorf("gorm: find game by id %s: %w", id, err)
	}
	return rec.toDomain()
}

func (r *GormGameRepository) ListByCategory(ctx context.Context, category string) ([]domain.Game, error) {
	var recs []GameRecord
	q := r.db.WithContext(ctx).Order("name")
	if category != "" {
		q = q.Where("category = ?", category)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("gorm: list games by category '%s': %w", category, err)
	}
	games := make([]domain.Game, 0, len(recs))
	for i := range recs {
		g, err := recs[i].toDomain()
		if err != nil {
			return nil, err
		}
		games = append(games, *g)
	}
	return games, nil
}

func (rec *GameRecord) toDomain() (*domain.Game, error) {
	g := &domain.Game{
		ID:         rec.ID,
		Name:       rec.Name,
		Category:   rec.Category,
		MaxPlayers: rec.MaxPlayers,
	}
	if len(rec.Prompts) > 0 {
		if err := json.Unmarshal(rec.Prompts, &g.Prompts); err != nil {
			return nil, fmt.Errorf("gorm: decode prompts of game %s: %w", rec.ID, err)
		}
	}
	return g, nil
}
