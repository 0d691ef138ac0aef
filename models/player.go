package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GamePlayer is one seat in a game: score, idle history and outcome flags.
type GamePlayer struct {
	ID             uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	GameID         uuid.UUID      `json:"game_id" gorm:"type:uuid;not null;index"`
	UserID         uuid.UUID      `json:"user_id" gorm:"type:uuid;not null"`
	IsCreator      bool           `json:"is_creator" gorm:"not null"`
	IdleCount      int            `json:"idle_count" gorm:"not null;default:0"`
	Score          int            `json:"score" gorm:"not null;default:0"`
	LettersCrossed int            `json:"letters_crossed" gorm:"not null;default:0"`
	IsWinner       bool           `json:"is_winner" gorm:"not null;default:false"`
	ForfeitReason  *string        `json:"forfeit_reason"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`
}

func NewGamePlayer(gameID, userID uuid.UUID, isCreator bool) *GamePlayer {
	return &GamePlayer{
		ID:        uuid.New(),
		GameID:    gameID,
		UserID:    userID,
		IsCreator: isCreator,
	}
}

// IncrementIdle bumps the idle counter. Counters are monotonic for the whole
// match; an on-time move never resets them.
func (p *GamePlayer) IncrementIdle() {
	p.IdleCount++
}

// AddScore credits completed lines. Scores only ever grow; a non-positive
// delta is a logic bug.
func (p *GamePlayer) AddScore(points int) {
	if points <= 0 {
		panic(fmt.Sprintf("AddScore called with non-positive delta %d", points))
	}
	p.Score += points
	p.LettersCrossed = min(p.LettersCrossed+points, WinScore)
}

// Forfeit records why the player forfeited.
func (p *GamePlayer) Forfeit(reason string) {
	p.ForfeitReason = &reason
}

// HasWon reports whether the player reached the win threshold.
func (p *GamePlayer) HasWon() bool {
	return p.Score >= WinScore
}

// HasForfeited reports whether a forfeit reason has been recorded.
func (p *GamePlayer) HasForfeited() bool {
	return p.ForfeitReason != nil && *p.ForfeitReason != ""
}
