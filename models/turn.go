package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Turn outcomes.
const (
	OutcomeMark     = "mark"
	OutcomeAutoMark = "auto_mark"
	OutcomeForfeit  = "forfeit"
)

// Turn is one time-boxed move slot. Indexes are zero-based, strictly
// increasing and gapless within a game.
type Turn struct {
	ID             uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	GameID         uuid.UUID      `json:"game_id" gorm:"type:uuid;not null;index"`
	Index          int            `json:"index" gorm:"column:turn_index;not null"`
	PlayerToMoveID uuid.UUID      `json:"player_to_move_id" gorm:"type:uuid;not null"`
	StartedAt      time.Time      `json:"started_at" gorm:"not null"`
	ExpiresAt      time.Time      `json:"expires_at" gorm:"not null"`
	ResolvedAt     *time.Time     `json:"resolved_at"`
	Outcome        string         `json:"outcome"`
	MarkedNumber   *int           `json:"marked_number"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`
}

func NewTurn(gameID uuid.UUID, index int, playerToMoveID uuid.UUID, now time.Time, duration time.Duration) *Turn {
	return &Turn{
		ID:             uuid.New(),
		GameID:         gameID,
		Index:          index,
		PlayerToMoveID: playerToMoveID,
		StartedAt:      now,
		ExpiresAt:      now.Add(duration),
	}
}

// Resolve closes the turn with an outcome. A turn is resolved exactly once;
// resolving it again is a logic bug.
func (t *Turn) Resolve(outcome string, markedNumber *int, now time.Time) {
	if t.Resolved() {
		panic(fmt.Sprintf("turn %d of game %s resolved twice", t.Index, t.GameID))
	}
	t.Outcome = outcome
	t.MarkedNumber = markedNumber
	t.ResolvedAt = &now
}

// Resolved reports whether the turn has been closed.
func (t *Turn) Resolved() bool {
	return t.ResolvedAt != nil
}

// Expired reports whether the deadline has passed.
func (t *Turn) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Remaining returns the time left before the deadline, clamped at zero.
func (t *Turn) Remaining(now time.Time) time.Duration {
	if t.Expired(now) {
		return 0
	}
	return t.ExpiresAt.Sub(now)
}
