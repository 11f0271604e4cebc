package setup

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"party-game/internal/domain"
	gormpersistence "party-game/internal/infra/persistence/gorm"
)

// MigrateDB 迁移所有表。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}
	err := db.AutoMigrate(
		&gormpersistence.RoomRecord{},
		&gormpersistence.RoomMember{},
		&gormpersistence.GameRecord{},
		&domain.User{},
		&domain.Friendship{},
	)
	if err != nil {
		logrus.Errorf("Failed to auto-migrate tables: %v", err)
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}
	logrus.Info("Database migration completed successfully")
	return nil
}

// LoadCatalogFile 从 JSON 文件读取游戏题库（[]domain.Game）。
func LoadCatalogFile(path string) ([]domain.Game, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file %s: %w", path, err)
	}
	var games []domain.Game
	if err := json.Unmarshal(raw, &games); err != nil {
		return nil, fmt.Errorf("decode catalog file %s: %w", path, err)
	}
	for _, g := range games {
		if g.ID == "" || len(g.Prompts) == 0 {
			return nil, fmt.Errorf("catalog file %s: game %q must have an id and prompts", path, g.Name)
		}
	}
	return games, nil
}

// SeedGames 把题库写入 games 表，已存在的条目会被覆盖。
func SeedGames(db *gorm.DB, games []domain.Game) error {
	for _, g := range games {
		prompts, err := json.Marshal(g.Prompts)
		if err != nil {
			return fmt.Errorf("encode prompts of game %s: %w", g.ID, err)
		}
		rec := gormpersistence.GameRecord{
			ID:         g.ID,
			Name:       g.Name,
			Category:   g.Category,
			MaxPlayers: g.MaxPlayers,
			Prompts:    datatypes.JSON(prompts),
		}
		err = db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
		if err != nil {
			return fmt.Errorf("seed game %s: %w", g.ID, err)
		}
	}
	logrus.WithField("games", len(games)).Info("Game catalog seeded")
	return nil
}
