package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotManualFill = errors.New("can only set a layout on a manual-fill board")
	ErrInvalidLayout = errors.New("invalid board layout")
)

// Board holds one player's N×N arrangement of the numbers 1..N². The grid is
// stored as a JSON-encoded [][]int so the whole aggregate round-trips through
// a single row.
type Board struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	GameID    uuid.UUID      `json:"game_id" gorm:"type:uuid;not null;index"`
	UserID    uuid.UUID      `json:"user_id" gorm:"type:uuid;not null"`
	FillMode  string         `json:"fill_mode" gorm:"not null"`
	LayoutRaw string         `json:"layout" gorm:"column:layout;not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// NewBoard generates a board for the given fill mode. Sequential boards are
// filled row-major with 1..N², random boards use a uniform permutation, and
// manual boards start as an all-zero placeholder awaiting SetManualLayout.
func NewBoard(gameID, userID uuid.UUID, fillMode string, n int, rng *rand.Rand) (*Board, error) {
	grid := make([][]int, n)
	for row := range grid {
		grid[row] = make([]int, n)
	}

	switch fillMode {
	case FillSequential:
		number := 1
		for row := 0; row < n; row++ {
			for col := 0; col < n; col++ {
				grid[row][col] = number
				number++
			}
		}
	case FillRandom:
		perm := rng.Perm(n * n)
		for i, v := range perm {
			grid[i/n][i%n] = v + 1
		}
	case FillManual:
		// all zeros until the player submits a layout
	default:
		return nil, ErrInvalidFillMode
	}

	board := &Board{
		ID:       uuid.New(),
		GameID:   gameID,
		UserID:   userID,
		FillMode: fillMode,
	}
	board.storeLayout(grid)
	return board, nil
}

// SetManualLayout replaces the placeholder grid. Only valid on manual-fill
// boards, and only with a complete permutation of 1..N².
func (b *Board) SetManualLayout(grid [][]int) error {
	if b.FillMode != FillManual {
		return ErrNotManualFill
	}
	n := len(b.Layout())
	if err := validateLayout(grid, n); err != nil {
		return err
	}
	b.storeLayout(grid)
	return nil
}

// Layout decodes the stored grid. The stored value was validated on write, so
// a decode failure is a corruption bug, not a user error.
func (b *Board) Layout() [][]int {
	var grid [][]int
	if err := json.Unmarshal([]byte(b.LayoutRaw), &grid); err != nil {
		panic(fmt.Sprintf("corrupt board layout for board %s: %v", b.ID, err))
	}
	return grid
}

// Lookup returns the number at (row, col).
func (b *Board) Lookup(row, col int) int {
	return b.Layout()[row][col]
}

// Ready reports whether the board has a playable layout. Only manual boards
// can be unready, while their placeholder is still all zeros.
func (b *Board) Ready() bool {
	if b.FillMode != FillManual {
		return true
	}
	for _, row := range b.Layout() {
		for _, number := range row {
			if number == 0 {
				return false
			}
		}
	}
	return true
}

func (b *Board) storeLayout(grid [][]int) {
	data, err := json.Marshal(grid)
	if err != nil {
		panic(fmt.Sprintf("failed to encode board layout: %v", err))
	}
	b.LayoutRaw = string(data)
}

func validateLayout(grid [][]int, n int) error {
	if len(grid) != n {
		return fmt.Errorf("%w: expected %dx%d grid", ErrInvalidLayout, n, n)
	}
	seen := make(map[int]bool, n*n)
	for _, row := range grid {
		if len(row) != n {
			return fmt.Errorf("%w: expected %dx%d grid", ErrInvalidLayout, n, n)
		}
		for _, number := range row {
			if number < 1 || number > n*n {
				return fmt.Errorf("%w: number %d out of range", ErrInvalidLayout, number)
			}
			if seen[number] {
				return fmt.Errorf("%w: duplicate number %d", ErrInvalidLayout, number)
			}
			seen[number] = true
		}
	}
	return nil
}
