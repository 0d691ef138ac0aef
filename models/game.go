package models

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Game statuses.
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusFinished  = "finished"
	StatusDraw      = "draw"
	StatusForfeited = "forfeited"
)

// Fill modes for board layouts.
const (
	FillSequential = "sequential"
	FillRandom     = "random"
	FillManual     = "manual"
)

// Starter choices.
const (
	StarterCreator  = "creator"
	StarterOpponent = "opponent"
	StarterRandom   = "random"
)

// Reasons a game can end.
const (
	EndReasonWin     = "win"
	EndReasonDraw    = "draw"
	EndReasonForfeit = "forfeit"
)

// WinScore is the number of completed lines needed to win.
const WinScore = 5

var wordPattern = regexp.MustCompile(`^[A-Za-z]+$`)

var (
	ErrInvalidWord     = errors.New("word must be 4 to 8 letters")
	ErrInvalidFillMode = errors.New("invalid fill mode")
	ErrInvalidStarter  = errors.New("invalid starter choice")
	ErrNotPending      = errors.New("game is not pending")
	ErrHasOpponent     = errors.New("game already has an opponent")
	ErrOwnOpponent     = errors.New("creator cannot be their own opponent")
	ErrNoOpponent      = errors.New("cannot start game without an opponent")
	ErrNotActive       = errors.New("game is not active")
)

// Game is the match aggregate. Players, boards, turns and marks are owned by
// the game and only mutated through it.
type Game struct {
	ID                uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Word              string         `json:"word" gorm:"not null"`
	N                 int            `json:"n" gorm:"not null"`
	CreatorID         uuid.UUID      `json:"creator_id" gorm:"type:uuid;not null"`
	OpponentID        *uuid.UUID     `json:"opponent_id" gorm:"type:uuid"`
	Status            string         `json:"status" gorm:"not null;default:'pending'"`
	FillMode          string         `json:"fill_mode" gorm:"not null"`
	StarterChoice     string         `json:"starter_choice" gorm:"not null"`
	ResolvedStarterID *uuid.UUID     `json:"resolved_starter_id" gorm:"type:uuid"`
	StartedAt         *time.Time     `json:"started_at"`
	FinishedAt        *time.Time     `json:"finished_at"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Players []GamePlayer `json:"players,omitempty" gorm:"foreignKey:GameID"`
	Boards  []Board      `json:"boards,omitempty" gorm:"foreignKey:GameID"`
	Turns   []Turn       `json:"turns,omitempty" gorm:"foreignKey:GameID"`
	Marks   []Mark       `json:"marks,omitempty" gorm:"foreignKey:GameID"`
}

// NewGame creates a pending game from a word. The board dimension is the word
// length, so the word's letters double as the win-bar labels.
func NewGame(word string, creatorID uuid.UUID, fillMode, starterChoice string) (*Game, error) {
	if len(word) < 4 || len(word) > 8 || !wordPattern.MatchString(word) {
		return nil, ErrInvalidWord
	}
	switch fillMode {
	case FillSequential, FillRandom, FillManual:
	default:
		return nil, ErrInvalidFillMode
	}
	switch starterChoice {
	case StarterCreator, StarterOpponent, StarterRandom:
	default:
		return nil, ErrInvalidStarter
	}

	game := &Game{
		ID:            uuid.New(),
		Word:          strings.ToUpper(word),
		N:             len(word),
		CreatorID:     creatorID,
		Status:        StatusPending,
		FillMode:      fillMode,
		StarterChoice: starterChoice,
		CreatedAt:     time.Now().UTC(),
	}
	game.Players = append(game.Players, *NewGamePlayer(game.ID, creatorID, true))
	return game, nil
}

// AddOpponent seats the opponent. Allowed exactly once, while pending.
func (g *Game) AddOpponent(opponentID uuid.UUID) error {
	if g.Status != StatusPending {
		return ErrNotPending
	}
	if g.OpponentID != nil {
		return ErrHasOpponent
	}
	if opponentID == g.CreatorID {
		return ErrOwnOpponent
	}
	g.OpponentID = &opponentID
	g.Players = append(g.Players, *NewGamePlayer(g.ID, opponentID, false))
	return nil
}

// Start activates a pending game and fixes the starting player. The coin toss
// result is only consulted for the random starter policy.
func (g *Game) Start(creatorWonToss bool, now time.Time) error {
	if g.Status != StatusPending {
		return ErrNotPending
	}
	if g.OpponentID == nil {
		return ErrNoOpponent
	}

	g.Status = StatusActive
	g.StartedAt = &now

	starter := g.CreatorID
	switch g.StarterChoice {
	case StarterOpponent:
		starter = *g.OpponentID
	case StarterRandom:
		if !creatorWonToss {
			starter = *g.OpponentID
		}
	}
	g.ResolvedStarterID = &starter
	return nil
}

// End moves an active game to its terminal status and flags the winner, if any.
func (g *Game) End(reason string, winnerID *uuid.UUID, now time.Time) error {
	if g.Status != StatusActive {
		return ErrNotActive
	}

	switch reason {
	case EndReasonWin:
		g.Status = StatusFinished
	case EndReasonDraw:
		g.Status = StatusDraw
	case EndReasonForfeit:
		g.Status = StatusForfeited
	default:
		return errors.New("invalid end reason")
	}
	g.FinishedAt = &now

	if winnerID != nil && reason != EndReasonDraw {
		if winner := g.PlayerByUser(*winnerID); winner != nil {
			winner.IsWinner = true
		}
	}
	return nil
}

// Finished reports whether the game has reached a terminal status.
func (g *Game) Finished() bool {
	return g.Status == StatusFinished || g.Status == StatusDraw || g.Status == StatusForfeited
}

// CurrentTurn returns the lowest-index unresolved turn, or nil. At most one
// open turn exists at any time.
func (g *Game) CurrentTurn() *Turn {
	var current *Turn
	for i := range g.Turns {
		t := &g.Turns[i]
		if t.Resolved() {
			continue
		}
		if current == nil || t.Index < current.Index {
			current = t
		}
	}
	return current
}

// LastTurn returns the highest-index turn, or nil if none exist yet.
func (g *Game) LastTurn() *Turn {
	var last *Turn
	for i := range g.Turns {
		t := &g.Turns[i]
		if last == nil || t.Index > last.Index {
			last = t
		}
	}
	return last
}

// PlayerByUser returns the seat record for a user, or nil.
func (g *Game) PlayerByUser(userID uuid.UUID) *GamePlayer {
	for i := range g.Players {
		if g.Players[i].UserID == userID {
			return &g.Players[i]
		}
	}
	return nil
}

// BoardByUser returns the board owned by a user, or nil.
func (g *Game) BoardByUser(userID uuid.UUID) *Board {
	for i := range g.Boards {
		if g.Boards[i].UserID == userID {
			return &g.Boards[i]
		}
	}
	return nil
}

// CreatorPlayer returns the creator's seat record.
func (g *Game) CreatorPlayer() *GamePlayer {
	for i := range g.Players {
		if g.Players[i].IsCreator {
			return &g.Players[i]
		}
	}
	return nil
}

// OpponentPlayer returns the opponent's seat record.
func (g *Game) OpponentPlayer() *GamePlayer {
	for i := range g.Players {
		if !g.Players[i].IsCreator {
			return &g.Players[i]
		}
	}
	return nil
}

// OpponentOf returns the other side's user id.
func (g *Game) OpponentOf(userID uuid.UUID) uuid.UUID {
	if userID == g.CreatorID && g.OpponentID != nil {
		return *g.OpponentID
	}
	return g.CreatorID
}

// MarkedNumbers returns the set of numbers marked so far.
func (g *Game) MarkedNumbers() map[int]bool {
	marked := make(map[int]bool, len(g.Marks))
	for i := range g.Marks {
		marked[g.Marks[i].Number] = true
	}
	return marked
}

// IsMarked reports whether a number has already been claimed.
func (g *Game) IsMarked(number int) bool {
	for i := range g.Marks {
		if g.Marks[i].Number == number {
			return true
		}
	}
	return false
}

// TotalMoves is the number of marks placed so far.
func (g *Game) TotalMoves() int {
	return len(g.Marks)
}
