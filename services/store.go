package services

import (
	"context"
	"errors"

	"dynamicbingo/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrGameNotFound = errors.New("game not found")

// GameStore loads and saves the full game aggregate. Load must return the
// complete unit (players, boards, turns, marks); Save persists all of it.
type GameStore interface {
	Load(ctx context.Context, id uuid.UUID) (*models.Game, error)
	Save(ctx context.Context, game *models.Game) error
	ActiveGameIDs(ctx context.Context) ([]uuid.UUID, error)
	OngoingGamesForUser(ctx context.Context, userID uuid.UUID) ([]models.Game, error)
}

// Broadcaster pushes a named event to every participant of a game channel.
// Delivery is fire-and-forget.
type Broadcaster interface {
	Publish(channel, event string, payload interface{})
}

// GormGameStore is the Postgres-backed GameStore.
type GormGameStore struct {
	db *gorm.DB
}

func NewGormGameStore(db *gorm.DB) *GormGameStore {
	return &GormGameStore{db: db}
}

func (s *GormGameStore) Load(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	var game models.Game
	err := s.db.WithContext(ctx).
		Preload("Players").
		Preload("Boards").
		Preload("Turns", func(db *gorm.DB) *gorm.DB {
			return db.Order("turn_index ASC")
		}).
		Preload("Marks", func(db *gorm.DB) *gorm.DB {
			return db.Order("marked_at ASC")
		}).
		First(&game, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}
	return &game, nil
}

func (s *GormGameStore) Save(ctx context.Context, game *models.Game) error {
	return s.db.WithContext(ctx).
		Session(&gorm.Session{FullSaveAssociations: true}).
		Save(game).Error
}

func (s *GormGameStore) ActiveGameIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).
		Model(&models.Game{}).
		Where("status = ?", models.StatusActive).
		Pluck("id", &ids).Error
	return ids, err
}

func (s *GormGameStore) OngoingGamesForUser(ctx context.Context, userID uuid.UUID) ([]models.Game, error) {
	var games []models.Game
	err := s.db.WithContext(ctx).
		Where("(creator_id = ? OR opponent_id = ?) AND status = ?", userID, userID, models.StatusActive).
		Find(&games).Error
	return games, err
}
