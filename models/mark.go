package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Mark records one claimed number. Marks are append-only: a number is marked
// at most once per game and the set never shrinks.
type Mark struct {
	ID             uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	GameID         uuid.UUID      `json:"game_id" gorm:"type:uuid;not null;index"`
	Number         int            `json:"number" gorm:"not null"`
	MarkedByUserID uuid.UUID      `json:"marked_by_user_id" gorm:"type:uuid;not null"`
	TurnIndex      int            `json:"turn_index" gorm:"not null"`
	MarkedAt       time.Time      `json:"marked_at" gorm:"not null"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`
}

func NewMark(gameID uuid.UUID, number int, markedByUserID uuid.UUID, turnIndex int, now time.Time) *Mark {
	return &Mark{
		ID:             uuid.New(),
		GameID:         gameID,
		Number:         number,
		MarkedByUserID: markedByUserID,
		TurnIndex:      turnIndex,
		MarkedAt:       now,
	}
}
